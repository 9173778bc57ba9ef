// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package devchain

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/Fantom-foundation/devchain/go/chain"
	"github.com/Fantom-foundation/devchain/go/state"
)

// InvalidSnapshotError is reported when reverting to a snapshot that was
// never taken or that was discarded by an earlier revert.
type InvalidSnapshotError struct {
	ID uint64
}

func (e *InvalidSnapshotError) Error() string {
	return fmt.Sprintf("invalid snapshot id %d", e.ID)
}

type snapshot struct {
	id          uint64
	state       *state.State
	blocks      int
	pending     []*Transaction
	time        timeControl
	nextBaseFee *chain.Value
	coinbase    chain.Address
}

// Snapshot records the current state of the chain and returns an id to
// revert to it. Ids start at 1 and increase with every snapshot. They are
// never reused, not even after a revert discarded them.
func (n *Node) Snapshot() uint64 {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	n.lastID++
	n.snapshots = append(n.snapshots, snapshot{
		id:          n.lastID,
		state:       n.state,
		blocks:      len(n.blocks),
		pending:     slices.Clone(n.pending),
		time:        n.time,
		nextBaseFee: n.nextBaseFee,
		coinbase:    n.coinbase,
	})
	return n.lastID
}

// Revert restores the chain to the snapshot with the given id. The snapshot
// and all snapshots taken after it are discarded.
func (n *Node) Revert(id uint64) error {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	pos, found := slices.BinarySearchFunc(n.snapshots, id, func(s snapshot, id uint64) int {
		return cmp.Compare(s.id, id)
	})
	if !found {
		return &InvalidSnapshotError{ID: id}
	}
	s := n.snapshots[pos]
	n.snapshots = n.snapshots[:pos]

	for _, block := range n.blocks[s.blocks:] {
		delete(n.byHash, block.Hash)
		for _, tx := range block.Transactions {
			delete(n.txs, tx.Hash)
			delete(n.receipts, tx.Hash)
		}
	}
	clear(n.blocks[s.blocks:])
	n.blocks = n.blocks[:s.blocks]

	n.state = s.state
	n.pending = s.pending
	n.time = s.time
	n.nextBaseFee = s.nextBaseFee
	n.coinbase = s.coinbase
	n.log.Debug("Reverted to snapshot", "id", id, "block", n.head().Number)
	return nil
}
