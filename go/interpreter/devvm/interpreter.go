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
	"fmt"

	"github.com/Fantom-foundation/devchain/go/chain"
	"github.com/Fantom-foundation/devchain/go/chain/vm"
)

// status is the execution state of a frame.
type status byte

const (
	statusRunning        status = iota // < all fine, ops are processed
	statusStopped                      // < execution stopped with a STOP
	statusReverted                     // < execution stopped with a REVERT
	statusReturned                     // < execution stopped with a RETURN
	statusSelfDestructed               // < execution stopped with a SELFDESTRUCT
	statusFailed                       // < execution stopped with a logic error
)

// context is the execution environment of a single call frame.
type context struct {
	// Inputs
	params    chain.Parameters
	context   chain.RunContext
	code      chain.Code
	jumpDests jumpDests
	gasPrices *staticGasPrices

	// Execution state
	pc     uint64
	gas    chain.Gas
	refund chain.Gas
	stack  *stack
	memory *Memory

	// Intermediate data
	returnData []byte    // < the result of the last nested call or of this frame
	failure    error     // < the reason of the failure if the status is statusFailed
	unpaid     chain.Gas // < the charge that could not be paid if running out of gas
}

// useGas reduces the gas level by the given amount. Running out of gas
// leaves the level unchanged, records the amount as unpaid and reports
// errOutOfGas.
func (c *context) useGas(amount chain.Gas) error {
	if c.gas < 0 || amount < 0 || c.gas < amount {
		if amount > 0 {
			c.unpaid = amount
		}
		return errOutOfGas
	}
	c.gas -= amount
	return nil
}

func (c *context) isAtLeast(revision chain.Revision) bool {
	return c.params.Revision >= revision
}

// runner drives the execution of the instructions of a frame.
type runner interface {
	// run executes the code of the frame until it halts. Execution failures
	// are reported as statusFailed; the error result is reserved for faults
	// of the interpreter itself.
	run(*context) (status, error)
}

func run(analyser *analyser, runner runner, params chain.Parameters) (chain.Result, error) {
	if len(params.Code) == 0 {
		return chain.Result{
			Outcome: chain.OutcomeSuccess,
			GasLeft: params.Gas,
		}, nil
	}

	ctxt := context{
		params:    params,
		context:   params.Context,
		code:      params.Code,
		jumpDests: analyser.analyse(params.Code, params.CodeHash),
		gasPrices: getStaticGasPrices(params.Revision),
		gas:       params.Gas,
		stack:     newStack(),
		memory:    NewMemory(),
	}
	defer returnStack(ctxt.stack)

	if runner == nil {
		runner = vanillaRunner{}
	}
	status, err := runner.run(&ctxt)
	if err != nil {
		return chain.Result{}, err
	}
	return generateResult(status, &ctxt)
}

func generateResult(status status, c *context) (chain.Result, error) {
	switch status {
	case statusStopped, statusSelfDestructed:
		return chain.Result{
			Outcome:   chain.OutcomeSuccess,
			GasLeft:   c.gas,
			GasRefund: c.refund,
		}, nil
	case statusReturned:
		return chain.Result{
			Outcome:   chain.OutcomeSuccess,
			Output:    c.returnData,
			GasLeft:   c.gas,
			GasRefund: c.refund,
		}, nil
	case statusReverted:
		return chain.Result{
			Outcome: chain.OutcomeRevert,
			Output:  c.returnData,
			GasLeft: c.gas,
		}, nil
	case statusFailed:
		return chain.Result{
			Outcome: chain.OutcomeFailure,
			Reason:  c.failure,
		}, nil
	}
	return chain.Result{}, fmt.Errorf("unexpected error in interpreter, unknown status: %v", status)
}

// vanillaRunner executes instructions without any instrumentation.
type vanillaRunner struct{}

func (vanillaRunner) run(c *context) (status, error) {
	status := statusRunning
	for status == statusRunning {
		status = execute(c)
	}
	return status, nil
}

// execute runs the instruction at the current program counter. Execution
// violations like running out of gas are recorded in the context and turn
// the frame into statusFailed.
func execute(c *context) status {
	status, err := step(c)
	if err != nil {
		c.failure = err
		return statusFailed
	}
	return status
}

// currentOp returns the instruction at the program counter. The end of the
// code is an implicit STOP.
func (c *context) currentOp() vm.OpCode {
	if c.pc >= uint64(len(c.code)) {
		return vm.STOP
	}
	return vm.OpCode(c.code[c.pc])
}

func step(c *context) (status, error) {
	if c.pc >= uint64(len(c.code)) {
		return statusStopped, nil
	}
	op := vm.OpCode(c.code[c.pc])

	if !op.IsDefined() || op == vm.INVALID {
		return statusFailed, errInvalidOpCode
	}
	if !c.isAtLeast(introducedIn(op)) {
		return statusFailed, errInvalidRevision
	}
	if err := checkStackLimits(c.stack.len(), op); err != nil {
		return statusFailed, err
	}
	if err := c.useGas(c.gasPrices[op]); err != nil {
		return statusFailed, err
	}

	status, err := dispatch(c, op)
	if err != nil {
		return statusFailed, err
	}
	c.pc++
	return status, nil
}

func dispatch(c *context, op vm.OpCode) (status, error) {
	switch {
	case vm.PUSH1 <= op && op <= vm.PUSH32:
		opPush(c, int(op-vm.PUSH1)+1)
		return statusRunning, nil
	case vm.DUP1 <= op && op <= vm.DUP16:
		c.stack.dup(int(op - vm.DUP1))
		return statusRunning, nil
	case vm.SWAP1 <= op && op <= vm.SWAP16:
		c.stack.swap(int(op-vm.SWAP1) + 1)
		return statusRunning, nil
	case vm.LOG0 <= op && op <= vm.LOG4:
		return statusRunning, opLog(c, int(op-vm.LOG0))
	}

	var err error
	switch op {
	case vm.STOP:
		return statusStopped, nil
	case vm.RETURN:
		return statusReturned, opEndWithResult(c)
	case vm.REVERT:
		return statusReverted, opEndWithResult(c)
	case vm.SELFDESTRUCT:
		return opSelfdestruct(c)

	case vm.ADD:
		opAdd(c)
	case vm.MUL:
		opMul(c)
	case vm.SUB:
		opSub(c)
	case vm.DIV:
		opDiv(c)
	case vm.SDIV:
		opSDiv(c)
	case vm.MOD:
		opMod(c)
	case vm.SMOD:
		opSMod(c)
	case vm.ADDMOD:
		opAddMod(c)
	case vm.MULMOD:
		opMulMod(c)
	case vm.EXP:
		err = opExp(c)
	case vm.SIGNEXTEND:
		opSignExtend(c)
	case vm.LT:
		opLt(c)
	case vm.GT:
		opGt(c)
	case vm.SLT:
		opSlt(c)
	case vm.SGT:
		opSgt(c)
	case vm.EQ:
		opEq(c)
	case vm.ISZERO:
		opIszero(c)
	case vm.AND:
		opAnd(c)
	case vm.OR:
		opOr(c)
	case vm.XOR:
		opXor(c)
	case vm.NOT:
		opNot(c)
	case vm.BYTE:
		opByte(c)
	case vm.SHL:
		opShl(c)
	case vm.SHR:
		opShr(c)
	case vm.SAR:
		opSar(c)
	case vm.SHA3:
		err = opSha3(c)

	case vm.ADDRESS:
		opAddress(c)
	case vm.BALANCE:
		err = opBalance(c)
	case vm.ORIGIN:
		opOrigin(c)
	case vm.CALLER:
		opCaller(c)
	case vm.CALLVALUE:
		opCallvalue(c)
	case vm.CALLDATALOAD:
		opCallDataload(c)
	case vm.CALLDATASIZE:
		opCallDatasize(c)
	case vm.CALLDATACOPY:
		err = genericDataCopy(c, c.params.Input)
	case vm.CODESIZE:
		opCodeSize(c)
	case vm.CODECOPY:
		err = genericDataCopy(c, c.params.Code)
	case vm.GASPRICE:
		opGasPrice(c)
	case vm.EXTCODESIZE:
		err = opExtcodesize(c)
	case vm.EXTCODECOPY:
		err = opExtCodeCopy(c)
	case vm.RETURNDATASIZE:
		opReturnDataSize(c)
	case vm.RETURNDATACOPY:
		err = opReturnDataCopy(c)
	case vm.EXTCODEHASH:
		err = opExtcodehash(c)

	case vm.BLOCKHASH:
		opBlockhash(c)
	case vm.COINBASE:
		opCoinbase(c)
	case vm.TIMESTAMP:
		opTimestamp(c)
	case vm.NUMBER:
		opNumber(c)
	case vm.PREVRANDAO:
		opPrevRandao(c)
	case vm.GASLIMIT:
		opGasLimit(c)
	case vm.CHAINID:
		opChainId(c)
	case vm.SELFBALANCE:
		opSelfbalance(c)
	case vm.BASEFEE:
		opBaseFee(c)
	case vm.BLOBHASH:
		opBlobHash(c)
	case vm.BLOBBASEFEE:
		opBlobBaseFee(c)

	case vm.POP:
		c.stack.pop()
	case vm.MLOAD:
		err = opMload(c)
	case vm.MSTORE:
		err = opMstore(c)
	case vm.MSTORE8:
		err = opMstore8(c)
	case vm.SLOAD:
		err = opSload(c)
	case vm.SSTORE:
		err = opSstore(c)
	case vm.JUMP:
		err = opJump(c)
	case vm.JUMPI:
		err = opJumpi(c)
	case vm.PC:
		c.stack.pushUndefined().SetUint64(c.pc)
	case vm.MSIZE:
		c.stack.pushUndefined().SetUint64(c.memory.length())
	case vm.GAS:
		c.stack.pushUndefined().SetUint64(uint64(c.gas))
	case vm.JUMPDEST:
		// nothing
	case vm.TLOAD:
		opTload(c)
	case vm.TSTORE:
		err = opTstore(c)
	case vm.MCOPY:
		err = opMcopy(c)
	case vm.PUSH0:
		c.stack.pushUndefined().Clear()

	case vm.CREATE:
		err = genericCreate(c, chain.Create)
	case vm.CREATE2:
		err = genericCreate(c, chain.Create2)
	case vm.CALL:
		err = opCall(c)
	case vm.CALLCODE:
		err = genericCall(c, chain.CallCode)
	case vm.DELEGATECALL:
		err = genericCall(c, chain.DelegateCall)
	case vm.STATICCALL:
		err = genericCall(c, chain.StaticCall)

	default:
		err = errInvalidOpCode
	}
	return statusRunning, err
}

// stackLimits defines the stack size range in which an instruction can be
// executed without under- or overflowing the stack.
type stackLimits struct {
	min int // the minimum stack size required by an instruction
	max int // the maximum stack size allowed before running an instruction
}

var _precomputedStackLimits = func() (res [256]stackLimits) {
	for i := range res {
		pops, pushes := stackUsage(vm.OpCode(i))
		res[i] = stackLimits{min: pops, max: maxStackSize}
		if pushes > pops {
			res[i].max = maxStackSize - (pushes - pops)
		}
	}
	return
}()

func checkStackLimits(stackLen int, op vm.OpCode) error {
	limits := _precomputedStackLimits[op]
	if stackLen < limits.min {
		return errStackUnderflow
	}
	if stackLen > limits.max {
		return errStackOverflow
	}
	return nil
}

// stackUsage returns the number of elements consumed and produced by op.
func stackUsage(op vm.OpCode) (pops, pushes int) {
	switch {
	case vm.PUSH1 <= op && op <= vm.PUSH32:
		return 0, 1
	case vm.DUP1 <= op && op <= vm.DUP16:
		n := int(op-vm.DUP1) + 1
		return n, n + 1
	case vm.SWAP1 <= op && op <= vm.SWAP16:
		n := int(op-vm.SWAP1) + 2
		return n, n
	case vm.LOG0 <= op && op <= vm.LOG4:
		return int(op-vm.LOG0) + 2, 0
	}

	switch op {
	case vm.PUSH0, vm.MSIZE, vm.ADDRESS, vm.ORIGIN, vm.CALLER, vm.CALLVALUE,
		vm.CALLDATASIZE, vm.CODESIZE, vm.GASPRICE, vm.COINBASE, vm.TIMESTAMP,
		vm.NUMBER, vm.PREVRANDAO, vm.GASLIMIT, vm.PC, vm.GAS, vm.RETURNDATASIZE,
		vm.SELFBALANCE, vm.CHAINID, vm.BASEFEE, vm.BLOBBASEFEE:
		return 0, 1
	case vm.POP, vm.JUMP, vm.SELFDESTRUCT:
		return 1, 0
	case vm.ISZERO, vm.NOT, vm.BALANCE, vm.CALLDATALOAD, vm.EXTCODESIZE,
		vm.BLOCKHASH, vm.MLOAD, vm.SLOAD, vm.TLOAD, vm.EXTCODEHASH, vm.BLOBHASH:
		return 1, 1
	case vm.MSTORE, vm.MSTORE8, vm.SSTORE, vm.TSTORE, vm.JUMPI, vm.RETURN, vm.REVERT:
		return 2, 0
	case vm.ADD, vm.SUB, vm.MUL, vm.DIV, vm.SDIV, vm.MOD, vm.SMOD, vm.EXP,
		vm.SIGNEXTEND, vm.SHA3, vm.LT, vm.GT, vm.SLT, vm.SGT, vm.EQ, vm.AND,
		vm.XOR, vm.OR, vm.BYTE, vm.SHL, vm.SHR, vm.SAR:
		return 2, 1
	case vm.CALLDATACOPY, vm.CODECOPY, vm.RETURNDATACOPY, vm.MCOPY:
		return 3, 0
	case vm.ADDMOD, vm.MULMOD, vm.CREATE:
		return 3, 1
	case vm.EXTCODECOPY:
		return 4, 0
	case vm.CREATE2:
		return 4, 1
	case vm.STATICCALL, vm.DELEGATECALL:
		return 6, 1
	case vm.CALL, vm.CALLCODE:
		return 7, 1
	}
	return 0, 0
}
