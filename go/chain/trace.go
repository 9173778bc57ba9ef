// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package chain

import "github.com/Fantom-foundation/devchain/go/chain/vm"

// TraceStep is the record of a single executed instruction.
type TraceStep struct {
	Pc      uint64
	Op      vm.OpCode
	Gas     Gas // gas available before the instruction
	GasCost Gas // gas consumed by the instruction, including nested calls
	Depth   int // 1 for the top-level call frame
	Refund  Gas // refund counter of the frame before the instruction
	Address Address

	// Optional parts, only filled if requested by the TraceOptions.
	Stack  []Word // bottom element first
	Memory []byte

	// Storage access of SLOAD and SSTORE instructions.
	HasStorage   bool
	StorageKey   Key
	StorageValue Word

	// Err is the reason the execution failed at this step, if it did.
	Err error
}

// TraceOptions selects the optional parts recorded per step.
type TraceOptions struct {
	Stack   bool
	Memory  bool
	Storage bool
}

// Tracer observes the instructions executed by an interpreter. Steps are
// reported in execution order, including the steps of nested call frames.
type Tracer interface {
	TraceOptions() TraceOptions

	// BeginStep records an instruction before it is executed and returns
	// the index of the new step.
	BeginStep(step TraceStep) int

	// EndStep completes the step with the given index after the instruction
	// was executed or failed.
	EndStep(index int, cost Gas, err error)
}
