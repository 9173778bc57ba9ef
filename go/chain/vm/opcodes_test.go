// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package vm

import (
	"regexp"
	"testing"
)

func TestOpCode_CanBePrinted(t *testing.T) {
	validName := regexp.MustCompile(`^(op\(0x[0-9A-F]{2}\)|[A-Z0-9]+)$`)
	for i := 0; i < 256; i++ {
		op := OpCode(i)
		if !validName.MatchString(op.String()) {
			t.Errorf("invalid print for op %v (%d)", op, i)
		}
	}
}

func TestOpCode_UndefinedOpCodesArePrintedAsHex(t *testing.T) {
	tests := map[OpCode]string{
		0x0C: "op(0x0C)",
		0x21: "op(0x21)",
		0xEF: "op(0xEF)",
	}
	for op, want := range tests {
		if op.IsDefined() {
			t.Errorf("op %v should not be defined", op)
		}
		if got := op.String(); got != want {
			t.Errorf("unexpected print of %d, wanted %s, got %s", byte(op), want, got)
		}
	}
}

func TestOpCode_Sha3IsPrintedAsKeccak(t *testing.T) {
	if got, want := SHA3.String(), "KECCAK256"; got != want {
		t.Errorf("unexpected name, wanted %s, got %s", want, got)
	}
}

func TestOpCode_Width(t *testing.T) {
	tests := map[OpCode]int{
		STOP:   1,
		PUSH0:  1,
		PUSH1:  2,
		PUSH20: 21,
		PUSH32: 33,
		DUP1:   1,
	}
	for op, want := range tests {
		if got := op.Width(); got != want {
			t.Errorf("unexpected width of %v, wanted %d, got %d", op, want, got)
		}
	}
}

func TestOpCode_DefinedCount(t *testing.T) {
	count := 0
	for i := 0; i < 256; i++ {
		if OpCode(i).IsDefined() {
			count++
		}
	}
	// 149 instructions are defined up to Cancun, including INVALID.
	if count != 149 {
		t.Errorf("unexpected number of defined instructions, wanted 149, got %d", count)
	}
}
