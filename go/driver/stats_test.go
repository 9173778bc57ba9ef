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
	"testing"
	"time"

	"github.com/Fantom-foundation/devchain/go/devchain"
)

func TestStatsContext_ReportsRates(t *testing.T) {
	prev := devchain.Stats{Head: 10, Blocks: 10, Transactions: 100, GasUsed: 2_100_000}
	cur := devchain.Stats{Head: 20, Blocks: 20, Transactions: 300, GasUsed: 6_300_000}

	got := statsContext(prev, cur, 2*time.Second)
	want := map[string]any{
		"head":   uint64(20),
		"blocks": uint64(20),
		"txs":    uint64(300),
	}
	if len(got)%2 != 0 {
		t.Fatalf("log context must consist of key/value pairs, got %v", got)
	}
	values := map[string]any{}
	for i := 0; i < len(got); i += 2 {
		values[got[i].(string)] = got[i+1]
	}
	for key, value := range want {
		if values[key] != value {
			t.Errorf("unexpected value for %s, wanted %v, got %v", key, value, values[key])
		}
	}
	if values["tx/s"] == values["gas/s"] {
		t.Errorf("rates should differ, got %v", values["tx/s"])
	}
}

func TestStatsContext_RevertedBlocksDoNotProduceNegativeRates(t *testing.T) {
	prev := devchain.Stats{Head: 20, Blocks: 20, Transactions: 300, GasUsed: 6_300_000}
	cur := devchain.Stats{Head: 5, Blocks: 5, Transactions: 50, GasUsed: 1_050_000}
	zero := statsContext(devchain.Stats{}, devchain.Stats{}, time.Second)
	got := statsContext(prev, cur, time.Second)
	if got[7] != zero[7] || got[9] != zero[9] {
		t.Errorf("expected zero rates, got %v and %v", got[7], got[9])
	}
}

func TestReportStats_StopsOnCancel(t *testing.T) {
	config := devchain.DefaultConfig()
	config.AccountCount = 1
	node, err := devchain.NewWithFork(context.Background(), config, nil, nil)
	if err != nil {
		t.Fatalf("failed to create node: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		reportStats(ctx, node, time.Millisecond, newLogger(&testWriter{t}, 3))
	}()
	time.Sleep(5 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("stats reporter did not stop")
	}
}

type testWriter struct {
	t *testing.T
}

func (w *testWriter) Write(data []byte) (int, error) {
	w.t.Log(string(data))
	return len(data), nil
}
