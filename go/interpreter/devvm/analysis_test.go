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
	"testing"

	"github.com/Fantom-foundation/devchain/go/chain"
	"github.com/Fantom-foundation/devchain/go/chain/vm"
)

func TestAnalysis_JumpDestsInPushDataAreIgnored(t *testing.T) {
	code := []byte{
		byte(vm.JUMPDEST),
		byte(vm.PUSH2), byte(vm.JUMPDEST), byte(vm.JUMPDEST),
		byte(vm.JUMPDEST),
		byte(vm.PUSH32),
	}
	dests := analyze(code)
	tests := map[uint64]bool{0: true, 1: false, 2: false, 3: false, 4: true, 5: false, 6: false, 1000: false}
	for pos, want := range tests {
		if got := dests.isValid(pos); got != want {
			t.Errorf("unexpected validity of %d, wanted %t, got %t", pos, want, got)
		}
	}
}

func TestAnalysis_ResultsAreCachedByCodeHash(t *testing.T) {
	analyser, err := newAnalyser(AnalysisConfig{CacheSize: 4})
	if err != nil {
		t.Fatalf("failed to create analyser: %v", err)
	}
	code := []byte{byte(vm.JUMPDEST)}
	hash := Keccak256(code)
	first := analyser.analyse(code, &hash)
	if analyser.cache.Len() != 1 {
		t.Fatalf("analysis result not cached")
	}
	// A different code with the same hash returns the cached result.
	second := analyser.analyse([]byte{byte(vm.STOP)}, &hash)
	if !second.isValid(0) || &first[0] != &second[0] {
		t.Errorf("cached result not reused")
	}
	analyser.analyse(code, nil)
	if analyser.cache.Len() != 1 {
		t.Errorf("codes without hash should not be cached")
	}
}

func TestAnalysis_CacheCanBeDisabled(t *testing.T) {
	analyser, err := newAnalyser(AnalysisConfig{CacheSize: -1})
	if err != nil {
		t.Fatalf("failed to create analyser: %v", err)
	}
	hash := chain.Hash{}
	if dests := analyser.analyse([]byte{byte(vm.JUMPDEST)}, &hash); !dests.isValid(0) {
		t.Errorf("analysis without cache failed")
	}
	if analyser.cache != nil {
		t.Errorf("cache should be disabled")
	}
}

func TestKeccak256_MatchesKnownHash(t *testing.T) {
	// keccak256 of the empty input
	want := "0xc5d2460186f7233c927e7db2dcc703c0e500b653ca82273b7bfad8045d85a470"
	if got := Keccak256(nil).String(); got != want {
		t.Errorf("unexpected hash, wanted %s, got %s", want, got)
	}
}
