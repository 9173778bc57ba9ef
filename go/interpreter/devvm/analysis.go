// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package devvm

import (
	"github.com/Fantom-foundation/devchain/go/chain"
	"github.com/Fantom-foundation/devchain/go/chain/vm"
	lru "github.com/hashicorp/golang-lru/v2"
)

// jumpDests marks the code positions holding a JUMPDEST instruction that is
// not part of the data of a PUSH instruction.
type jumpDests []uint64

func (j jumpDests) isValid(pos uint64) bool {
	if pos/64 >= uint64(len(j)) {
		return false
	}
	return j[pos/64]&(1<<(pos%64)) != 0
}

func analyze(code []byte) jumpDests {
	res := make(jumpDests, (len(code)+63)/64)
	for i := 0; i < len(code); {
		op := vm.OpCode(code[i])
		if op == vm.JUMPDEST {
			res[i/64] |= 1 << (i % 64)
		}
		i += op.Width()
	}
	return res
}

// AnalysisConfig configures the code analysis cache.
type AnalysisConfig struct {
	// CacheSize is the number of analysed codes retained. If set to 0, a
	// default size is used. If negative, no cache is used.
	CacheSize int
}

// analyser computes jump destinations of codes and caches the results of
// codes with a known hash.
type analyser struct {
	cache *lru.Cache[chain.Hash, jumpDests]
}

// maxCachedCodeLength is the largest code size retained in the cache, the
// limit for deployed contract codes. Longer init codes are not cached.
const maxCachedCodeLength = 24_576

func newAnalyser(config AnalysisConfig) (*analyser, error) {
	if config.CacheSize == 0 {
		config.CacheSize = 1 << 12
	}
	res := &analyser{}
	if config.CacheSize > 0 {
		cache, err := lru.New[chain.Hash, jumpDests](config.CacheSize)
		if err != nil {
			return nil, err
		}
		res.cache = cache
	}
	return res, nil
}

// analyse returns the jump destinations of code. If codeHash is not nil, it
// is assumed to be the hash of code and used as the cache key.
func (a *analyser) analyse(code []byte, codeHash *chain.Hash) jumpDests {
	if a.cache == nil || codeHash == nil || len(code) > maxCachedCodeLength {
		return analyze(code)
	}
	if res, found := a.cache.Get(*codeHash); found {
		return res
	}
	res := analyze(code)
	a.cache.Add(*codeHash, res)
	return res
}
