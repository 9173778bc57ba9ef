// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

// Package tracer produces the opcode level traces served by
// debug_traceTransaction and debug_traceCall. A Recorder collects the steps
// reported by a tracing interpreter, which are then converted into the
// struct log format established by geth.
package tracer

import (
	"fmt"
	"maps"

	"github.com/Fantom-foundation/devchain/go/chain"
	"github.com/holiman/uint256"
)

// Config selects the parts of the execution state included in a trace.
type Config struct {
	DisableStack   bool `json:"disableStack"`
	DisableStorage bool `json:"disableStorage"`
	EnableMemory   bool `json:"enableMemory"`
	// Limit is the maximum number of recorded steps, zero means unlimited.
	Limit int `json:"limit"`
}

type entry struct {
	chain.TraceStep
	storage map[chain.Key]chain.Word
}

// Recorder is a chain.Tracer keeping all reported steps in memory. It is not
// safe for concurrent use; a new Recorder is needed for every traced
// transaction.
type Recorder struct {
	config  Config
	entries []entry
	// storage accumulates the slots accessed so far per contract.
	storage map[chain.Address]map[chain.Key]chain.Word
}

func NewRecorder(config Config) *Recorder {
	return &Recorder{
		config:  config,
		storage: map[chain.Address]map[chain.Key]chain.Word{},
	}
}

func (r *Recorder) TraceOptions() chain.TraceOptions {
	return chain.TraceOptions{
		Stack:   !r.config.DisableStack,
		Memory:  r.config.EnableMemory,
		Storage: !r.config.DisableStorage,
	}
}

func (r *Recorder) BeginStep(step chain.TraceStep) int {
	if r.config.Limit > 0 && len(r.entries) >= r.config.Limit {
		return -1
	}
	e := entry{TraceStep: step}
	if step.HasStorage && !r.config.DisableStorage {
		slots := r.storage[step.Address]
		if slots == nil {
			slots = map[chain.Key]chain.Word{}
			r.storage[step.Address] = slots
		}
		slots[step.StorageKey] = step.StorageValue
		e.storage = maps.Clone(slots)
	}
	r.entries = append(r.entries, e)
	return len(r.entries) - 1
}

func (r *Recorder) EndStep(index int, cost chain.Gas, err error) {
	if index < 0 || index >= len(r.entries) {
		return
	}
	r.entries[index].GasCost = cost
	r.entries[index].Err = err
}

// Len returns the number of recorded steps.
func (r *Recorder) Len() int {
	return len(r.entries)
}

// ExecutionResult is the response of the struct log tracer.
type ExecutionResult struct {
	Gas         uint64      `json:"gas"`
	Failed      bool        `json:"failed"`
	ReturnValue string      `json:"returnValue"`
	StructLogs  []StructLog `json:"structLogs"`
}

// StructLog is the record of a single executed instruction.
type StructLog struct {
	Pc            uint64             `json:"pc"`
	Op            string             `json:"op"`
	Gas           uint64             `json:"gas"`
	GasCost       uint64             `json:"gasCost"`
	Depth         int                `json:"depth"`
	Error         string             `json:"error,omitempty"`
	Stack         *[]string          `json:"stack,omitempty"`
	Memory        *[]string          `json:"memory,omitempty"`
	Storage       *map[string]string `json:"storage,omitempty"`
	RefundCounter uint64             `json:"refund,omitempty"`
}

// Result converts the recorded steps into a response. The return value is
// the output on success and the revert data on revert; failures have none.
func (r *Recorder) Result(gasUsed chain.Gas, outcome chain.Outcome, output chain.Data) *ExecutionResult {
	res := &ExecutionResult{
		Gas:        clamp(gasUsed),
		Failed:     outcome != chain.OutcomeSuccess,
		StructLogs: make([]StructLog, 0, len(r.entries)),
	}
	if outcome != chain.OutcomeFailure {
		res.ReturnValue = fmt.Sprintf("%x", []byte(output))
	}
	for _, e := range r.entries {
		res.StructLogs = append(res.StructLogs, r.format(e))
	}
	return res
}

func (r *Recorder) format(e entry) StructLog {
	log := StructLog{
		Pc:            e.Pc,
		Op:            e.Op.String(),
		Gas:           clamp(e.Gas),
		GasCost:       clamp(e.GasCost),
		Depth:         e.Depth,
		RefundCounter: clamp(e.Refund),
	}
	if e.Err != nil {
		log.Error = e.Err.Error()
	}
	if !r.config.DisableStack {
		stack := make([]string, len(e.Stack))
		for i, word := range e.Stack {
			stack[i] = new(uint256.Int).SetBytes32(word[:]).Hex()
		}
		log.Stack = &stack
	}
	if r.config.EnableMemory {
		memory := make([]string, 0, len(e.Memory)/32)
		for i := 0; i+32 <= len(e.Memory); i += 32 {
			memory = append(memory, fmt.Sprintf("%x", e.Memory[i:i+32]))
		}
		log.Memory = &memory
	}
	if e.storage != nil {
		storage := make(map[string]string, len(e.storage))
		for key, value := range e.storage {
			storage[fmt.Sprintf("%x", key[:])] = fmt.Sprintf("%x", value[:])
		}
		log.Storage = &storage
	}
	return log
}

// clamp maps gas values to the unsigned range, saturating at zero.
func clamp(gas chain.Gas) uint64 {
	if gas < 0 {
		return 0
	}
	return uint64(gas)
}
