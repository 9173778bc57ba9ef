// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package main

import (
	"context"
	"time"

	"github.com/Fantom-foundation/devchain/go/devchain"
	"github.com/dsnet/golib/unitconv"
	"github.com/ethereum/go-ethereum/log"
)

// reportStats periodically logs the throughput of the chain until the
// context is canceled.
func reportStats(ctx context.Context, node *devchain.Node, interval time.Duration, logger log.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	last, lastTime := node.Stats(), time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			current := node.Stats()
			logger.Info("Chain statistics", statsContext(last, current, now.Sub(lastTime))...)
			last, lastTime = current, now
		}
	}
}

// statsContext produces the log context describing the progress between two
// samples. Blocks removed by a revert in between do not yield negative rates.
func statsContext(prev, cur devchain.Stats, elapsed time.Duration) []any {
	seconds := elapsed.Seconds()
	rate := func(before, after uint64) string {
		if after < before || seconds <= 0 {
			return unitconv.FormatPrefix(0, unitconv.SI, 0)
		}
		return unitconv.FormatPrefix(float64(after-before)/seconds, unitconv.SI, 0)
	}
	return []any{
		"head", cur.Head,
		"blocks", cur.Blocks,
		"txs", cur.Transactions,
		"tx/s", rate(prev.Transactions, cur.Transactions),
		"gas/s", rate(prev.GasUsed, cur.GasUsed),
	}
}
