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
	"fmt"
	"slices"

	"github.com/Fantom-foundation/devchain/go/chain"
)

// FilterQuery selects logs of mined blocks. A block hash excludes a block
// range. Topics are matched by position; an empty position matches any
// topic, otherwise one of the listed topics has to match.
type FilterQuery struct {
	BlockHash *chain.Hash
	FromBlock *uint64 // nil for the latest block
	ToBlock   *uint64 // nil for the latest block
	Addresses []chain.Address
	Topics    [][]chain.Hash
}

// GetLogs returns the logs matching the given filter in chain order.
func (n *Node) GetLogs(query FilterQuery) ([]*Log, error) {
	n.mutex.RLock()
	defer n.mutex.RUnlock()

	var blocks []*Block
	if query.BlockHash != nil {
		block, found := n.byHash[*query.BlockHash]
		if !found {
			return nil, fmt.Errorf("%w: %v", ErrUnknownBlock, *query.BlockHash)
		}
		blocks = []*Block{block}
	} else {
		from, to := n.head().Number, n.head().Number
		if query.FromBlock != nil {
			from = max(*query.FromBlock, n.first)
		}
		if query.ToBlock != nil {
			to = min(*query.ToBlock, to)
		}
		if from > to {
			return []*Log{}, nil
		}
		blocks = n.blocks[from-n.first : to-n.first+1]
	}

	res := []*Log{}
	for _, block := range blocks {
		for _, receipt := range block.Receipts {
			for _, log := range receipt.Logs {
				if query.matches(log) {
					res = append(res, log)
				}
			}
		}
	}
	return res, nil
}

func (q *FilterQuery) matches(log *Log) bool {
	if len(q.Addresses) > 0 && !slices.Contains(q.Addresses, log.Address) {
		return false
	}
	if len(q.Topics) > len(log.Topics) {
		return false
	}
	for i, alternatives := range q.Topics {
		if len(alternatives) > 0 && !slices.Contains(alternatives, log.Topics[i]) {
			return false
		}
	}
	return true
}
