// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package fork

import (
	"context"
	"math"
	"sync"

	"github.com/Fantom-foundation/devchain/go/chain"
)

// latest is the cache block key of reads served from the head of a
// non-archive fork source.
const latest = math.MaxUint64

type accountKey struct {
	addr  chain.Address
	block uint64
}

type slotKey struct {
	addr  chain.Address
	key   chain.Key
	block uint64
}

// table is a concurrent map of cached remote values. Entries are never
// evicted.
type table[K comparable, V any] struct {
	mutex   sync.Mutex
	entries map[K]V
}

func (t *table[K, V]) get(key K) (V, bool) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	value, found := t.entries[key]
	return value, found
}

func (t *table[K, V]) put(key K, value V) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	if t.entries == nil {
		t.entries = map[K]V{}
	}
	t.entries[key] = value
}

func (t *table[K, V]) len() int {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return len(t.entries)
}

type cache struct {
	balances table[accountKey, chain.Value]
	nonces   table[accountKey, uint64]
	codes    table[accountKey, chain.Code]
	storage  table[slotKey, chain.Word]
	hashes   table[uint64, chain.Hash]
}

// fetch produces a read-through lookup in the given table. Misses are
// fetched from the remote node without holding the table lock; failed
// fetches are not cached.
func fetch[K comparable, V any](ctx context.Context, c *Context, table *table[K, V], key K, load func(context.Context) (V, error)) (V, error) {
	if value, found := table.get(key); found {
		return value, nil
	}
	c.log.Trace("Fork cache miss", "key", key)
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	value, err := load(ctx)
	if err != nil {
		return value, err
	}
	table.put(key, value)
	return value, nil
}
