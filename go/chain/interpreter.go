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

import (
	"encoding/json"
	"fmt"
	"strings"
)

//go:generate mockgen -source interpreter.go -destination interpreter_mock.go -package chain

// Interpreter is a component capable of executing EVM byte-code of a single
// call frame. Nested calls are delegated to the RunContext provided through
// the parameters.
type Interpreter interface {
	// Run executes the code provided by the parameters. The resulting error
	// is nil whenever the code was processed, even if the execution ended in
	// a revert or an execution failure; those are reported by the Outcome of
	// the result. A non-nil error signals a fault of the interpreter itself.
	// Interpreters are required to be thread-safe.
	Run(Parameters) (Result, error)
}

// Parameters summarizes the input parameters required for executing code.
type Parameters struct {
	BlockParameters
	TransactionParameters
	Context   RunContext
	Kind      CallKind
	Static    bool
	Depth     int
	Gas       Gas
	Recipient Address
	Sender    Address
	Input     Data
	Value     Value
	CodeHash  *Hash
	Code      Code
}

// BlockParameters contains information about the block the code is executed in.
type BlockParameters struct {
	ChainID     Word
	BlockNumber int64
	Timestamp   int64
	Coinbase    Address
	GasLimit    Gas
	PrevRandao  Hash
	BaseFee     Value
	BlobBaseFee Value
	Revision    Revision
}

// TransactionParameters contains information about the current transaction.
type TransactionParameters struct {
	Origin     Address
	GasPrice   Value
	BlobHashes []Hash
}

// RunContext provides access to the state and to nested calls as needed by
// individual instructions.
type RunContext interface {
	TransactionContext

	Call(kind CallKind, parameter CallParameters) (CallResult, error)
}

// TransactionContext buffers all modifications of the world state made
// within a transaction. Modifications may be rolled back to a snapshot.
// Additionally, it tracks transient storage, access lists, and logs.
type TransactionContext interface {
	WorldState

	CreateSnapshot() Snapshot
	RestoreSnapshot(Snapshot)

	GetTransientStorage(Address, Key) Word
	SetTransientStorage(Address, Key, Word)

	AccessAccount(Address) AccessStatus
	AccessStorage(Address, Key) AccessStatus

	EmitLog(Log)
	GetLogs() []Log

	// GetBlockHash returns the hash of the block with the given number or
	// the zero hash if the block is not accessible.
	GetBlockHash(number int64) Hash

	// GetCommittedStorage returns the value of a slot at the beginning of
	// the current transaction.
	GetCommittedStorage(addr Address, key Key) Word
}

// AccessStatus distinguishes cold and warm account or storage slot accesses.
type AccessStatus bool

const (
	ColdAccess AccessStatus = false
	WarmAccess AccessStatus = true
)

// Outcome tags the way a code execution ended.
type Outcome byte

const (
	OutcomeSuccess Outcome = iota // STOP, RETURN, SELFDESTRUCT or end of code
	OutcomeRevert                 // REVERT, remaining gas is returned
	OutcomeFailure                // any execution failure, all gas is consumed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeRevert:
		return "revert"
	case OutcomeFailure:
		return "failure"
	}
	return fmt.Sprintf("Outcome(%d)", o)
}

// Result summarizes the result of a code execution.
type Result struct {
	Outcome   Outcome
	Output    Data // return data on success, revert data on revert
	GasLeft   Gas
	GasRefund Gas
	Reason    error // set for failures, e.g. out of gas or static call violation
}

// Success is true if the execution neither reverted nor failed.
func (r Result) Success() bool {
	return r.Outcome == OutcomeSuccess
}

// Data represents the input or output of contract invocations.
type Data []byte

// Gas represents gas amounts.
type Gas int64

// Snapshot identifies a restorable state of a transaction context.
type Snapshot int

// Log is a log message emitted as a side effect of a contract execution.
type Log struct {
	Address Address
	Topics  []Hash
	Data    Data
}

// CallKind differentiates the recursive contract calls supported by the EVM.
type CallKind int

const (
	Call CallKind = iota
	DelegateCall
	StaticCall
	CallCode
	Create
	Create2
)

var callKindNames = map[CallKind]string{
	Call:         "call",
	DelegateCall: "delegate_call",
	StaticCall:   "static_call",
	CallCode:     "call_code",
	Create:       "create",
	Create2:      "create2",
}

func (k CallKind) String() string {
	if name, found := callKindNames[k]; found {
		return name
	}
	return "unknown"
}

func (k CallKind) MarshalJSON() ([]byte, error) {
	name, found := callKindNames[k]
	if !found {
		return nil, fmt.Errorf("invalid call kind: %d", int(k))
	}
	return json.Marshal(name)
}

func (k *CallKind) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	for kind, cur := range callKindNames {
		if cur == strings.ToLower(name) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown call kind: %s", name)
}

// CallParameters are the parameters of a nested call or create.
type CallParameters struct {
	Sender      Address
	Recipient   Address // < not relevant for CREATE and CREATE2
	Value       Value   // < ignored by static calls
	Input       Data
	Gas         Gas
	Salt        Hash // < only relevant for CREATE2 calls
	CodeAddress Address
}

// CallResult is the result of a nested call or create.
type CallResult struct {
	Output         Data
	GasLeft        Gas
	GasRefund      Gas
	CreatedAddress Address // < only meaningful for CREATE and CREATE2
	Success        bool
}
