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
)

// tracingRunner reports every executed instruction to a chain.Tracer. The
// gas cost of a step is the difference of the gas levels before and after
// the instruction, which includes the consumption of nested calls. A step
// running out of gas reports the charge it failed to pay in addition.
type tracingRunner struct {
	tracer chain.Tracer
}

func (r tracingRunner) run(c *context) (status, error) {
	options := r.tracer.TraceOptions()
	status := statusRunning
	for status == statusRunning {
		index := r.tracer.BeginStep(newTraceStep(c, options))
		// The end of the code is an implicit STOP.
		if c.pc >= uint64(len(c.code)) {
			r.tracer.EndStep(index, 0, nil)
			return statusStopped, nil
		}
		before := c.gas
		c.unpaid = 0
		status = execute(c)
		cost := before - c.gas
		var err error
		if status == statusFailed {
			err = c.failure
			if IsOutOfGas(err) {
				cost += c.unpaid
			}
		}
		r.tracer.EndStep(index, cost, err)
	}
	return status, nil
}

func newTraceStep(c *context, options chain.TraceOptions) chain.TraceStep {
	op := c.currentOp()
	step := chain.TraceStep{
		Pc:      c.pc,
		Op:      op,
		Gas:     c.gas,
		Depth:   c.params.Depth + 1,
		Refund:  c.refund,
		Address: c.params.Recipient,
	}
	if options.Stack {
		step.Stack = c.stack.words()
	}
	if options.Memory {
		step.Memory = c.memory.snapshot()
	}
	if options.Storage {
		switch {
		case op == vm.SLOAD && c.stack.len() >= 1:
			step.HasStorage = true
			step.StorageKey = c.stack.peek().Bytes32()
			step.StorageValue = c.context.GetStorage(c.params.Recipient, step.StorageKey)
		case op == vm.SSTORE && c.stack.len() >= 2:
			step.HasStorage = true
			step.StorageKey = c.stack.peek().Bytes32()
			step.StorageValue = c.stack.peekN(1).Bytes32()
		}
	}
	return step
}
