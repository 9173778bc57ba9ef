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
	"bytes"
	"math"

	"github.com/Fantom-foundation/devchain/go/chain"
	"github.com/holiman/uint256"
)

func opEndWithResult(c *context) error {
	offset, size := c.stack.pop(), c.stack.pop()
	if err := checkSizeOffsetUint64Overflow(offset, size); err != nil {
		return err
	}
	data, err := c.memory.getSlice(offset.Uint64(), size.Uint64(), c)
	if err != nil {
		return err
	}
	c.returnData = bytes.Clone(data)
	return nil
}

func jumpTo(c *context, destination *uint256.Int) error {
	if !destination.IsUint64() || !c.jumpDests.isValid(destination.Uint64()) {
		return errInvalidJump
	}
	// The interpreter loop increments the PC after the instruction.
	c.pc = destination.Uint64() - 1
	return nil
}

func opJump(c *context) error {
	return jumpTo(c, c.stack.pop())
}

func opJumpi(c *context) error {
	destination, condition := c.stack.pop(), c.stack.pop()
	if condition.IsZero() {
		return nil
	}
	return jumpTo(c, destination)
}

// opPush pushes the n bytes following the instruction. Data beyond the end
// of the code reads as zero.
func opPush(c *context, n int) {
	var data [32]byte
	start := c.pc + 1
	if start < uint64(len(c.code)) {
		copy(data[:n], c.code[start:])
	}
	c.stack.pushUndefined().SetBytes(data[:n])
	c.pc += uint64(n)
}

func opMstore(c *context) error {
	addr, value := c.stack.pop(), c.stack.pop()
	offset, overflow := addr.Uint64WithOverflow()
	if overflow {
		return errOverflow
	}
	data := value.Bytes32()
	return c.memory.set(offset, data[:], c)
}

func opMstore8(c *context) error {
	addr, value := c.stack.pop(), c.stack.pop()
	offset, overflow := addr.Uint64WithOverflow()
	if overflow {
		return errOverflow
	}
	return c.memory.set(offset, []byte{byte(value.Uint64())}, c)
}

func opMload(c *context) error {
	top := c.stack.peek()
	offset, overflow := top.Uint64WithOverflow()
	if overflow {
		return errOverflow
	}
	return c.memory.readWord(offset, top, c)
}

func opMcopy(c *context) error {
	dest, src, size := c.stack.pop(), c.stack.pop(), c.stack.pop()
	if size.IsZero() {
		return nil
	}
	destOffset, destOverflow := dest.Uint64WithOverflow()
	srcOffset, srcOverflow := src.Uint64WithOverflow()
	if destOverflow || srcOverflow || !size.IsUint64() {
		return errOverflow
	}
	length := size.Uint64()
	if err := c.useGas(chain.Gas(3 * chain.SizeInWords(length))); err != nil {
		return err
	}
	// Expand for the larger of both ranges first, slices may alias.
	if err := c.memory.expandMemory(max(destOffset, srcOffset), length, c); err != nil {
		return err
	}
	copy(c.memory.store[destOffset:destOffset+length], c.memory.store[srcOffset:srcOffset+length])
	return nil
}

func opSstore(c *context) error {
	if c.params.Static {
		return errStaticContextViolation
	}

	// EIP-2200 demands more than 2300 gas to be available for SSTORE.
	if c.gas <= SstoreSentryGasEIP2200 {
		return errSstoreSentry
	}

	key := chain.Key(c.stack.pop().Bytes32())
	value := chain.Word(c.stack.pop().Bytes32())

	cost := chain.Gas(0)
	if c.isAtLeast(chain.R09_Berlin) &&
		c.context.AccessStorage(c.params.Recipient, key) == chain.ColdAccess {
		cost += ColdSloadCostEIP2929
	}

	original := c.context.GetCommittedStorage(c.params.Recipient, key)
	current := c.context.GetStorage(c.params.Recipient, key)
	status := chain.GetStorageStatus(original, current, value)

	cost += getDynamicCostsForSstore(c.params.Revision, status)
	if err := c.useGas(cost); err != nil {
		return err
	}

	c.context.SetStorage(c.params.Recipient, key, value)
	c.refund += getRefundForSstore(c.params.Revision, status)
	return nil
}

func opSload(c *context) error {
	top := c.stack.peek()
	slot := chain.Key(top.Bytes32())
	if c.isAtLeast(chain.R09_Berlin) {
		cost := WarmStorageReadCostEIP2929
		if c.context.AccessStorage(c.params.Recipient, slot) == chain.ColdAccess {
			cost = ColdSloadCostEIP2929
		}
		if err := c.useGas(cost); err != nil {
			return err
		}
	}
	value := c.context.GetStorage(c.params.Recipient, slot)
	top.SetBytes32(value[:])
	return nil
}

func opTstore(c *context) error {
	if c.params.Static {
		return errStaticContextViolation
	}
	key := chain.Key(c.stack.pop().Bytes32())
	value := chain.Word(c.stack.pop().Bytes32())
	c.context.SetTransientStorage(c.params.Recipient, key, value)
	return nil
}

func opTload(c *context) {
	top := c.stack.peek()
	value := c.context.GetTransientStorage(c.params.Recipient, chain.Key(top.Bytes32()))
	top.SetBytes32(value[:])
}

func opCaller(c *context) {
	c.stack.pushUndefined().SetBytes20(c.params.Sender[:])
}

func opCallvalue(c *context) {
	c.stack.pushUndefined().SetBytes32(c.params.Value[:])
}

func opCallDatasize(c *context) {
	c.stack.pushUndefined().SetUint64(uint64(len(c.params.Input)))
}

func opCallDataload(c *context) {
	top := c.stack.peek()
	offset, overflow := top.Uint64WithOverflow()
	if overflow {
		top.Clear()
		return
	}
	data := getData(c.params.Input, offset, 32)
	top.SetBytes32(data)
}

// genericDataCopy implements CALLDATACOPY and CODECOPY.
func genericDataCopy(c *context, source []byte) error {
	memOffset, dataOffset, length := c.stack.pop(), c.stack.pop(), c.stack.pop()
	if err := checkSizeOffsetUint64Overflow(memOffset, length); err != nil {
		return err
	}
	offset, overflow := dataOffset.Uint64WithOverflow()
	if overflow {
		offset = math.MaxUint64
	}

	if err := c.useGas(chain.Gas(3 * chain.SizeInWords(length.Uint64()))); err != nil {
		return err
	}
	data, err := c.memory.getSlice(memOffset.Uint64(), length.Uint64(), c)
	if err != nil {
		return err
	}
	copy(data, getData(source, offset, length.Uint64()))
	return nil
}

func opAnd(c *context) {
	a := c.stack.pop()
	b := c.stack.peek()
	b.And(a, b)
}

func opOr(c *context) {
	a := c.stack.pop()
	b := c.stack.peek()
	b.Or(a, b)
}

func opNot(c *context) {
	a := c.stack.peek()
	a.Not(a)
}

func opXor(c *context) {
	a := c.stack.pop()
	b := c.stack.peek()
	b.Xor(a, b)
}

func setBool(z *uint256.Int, value bool) {
	if value {
		z.SetOne()
	} else {
		z.Clear()
	}
}

func opIszero(c *context) {
	top := c.stack.peek()
	setBool(top, top.IsZero())
}

func opEq(c *context) {
	a := c.stack.pop()
	b := c.stack.peek()
	setBool(b, a.Eq(b))
}

func opLt(c *context) {
	a := c.stack.pop()
	b := c.stack.peek()
	setBool(b, a.Lt(b))
}

func opGt(c *context) {
	a := c.stack.pop()
	b := c.stack.peek()
	setBool(b, a.Gt(b))
}

func opSlt(c *context) {
	a := c.stack.pop()
	b := c.stack.peek()
	setBool(b, a.Slt(b))
}

func opSgt(c *context) {
	a := c.stack.pop()
	b := c.stack.peek()
	setBool(b, a.Sgt(b))
}

func opShr(c *context) {
	a := c.stack.pop()
	b := c.stack.peek()
	if a.LtUint64(256) {
		b.Rsh(b, uint(a.Uint64()))
	} else {
		b.Clear()
	}
}

func opShl(c *context) {
	a := c.stack.pop()
	b := c.stack.peek()
	if a.LtUint64(256) {
		b.Lsh(b, uint(a.Uint64()))
	} else {
		b.Clear()
	}
}

func opSar(c *context) {
	a := c.stack.pop()
	b := c.stack.peek()
	if a.GtUint64(255) {
		if b.Sign() >= 0 {
			b.Clear()
		} else {
			b.SetAllOne()
		}
		return
	}
	b.SRsh(b, uint(a.Uint64()))
}

func opSignExtend(c *context) {
	back, num := c.stack.pop(), c.stack.peek()
	num.ExtendSign(num, back)
}

func opByte(c *context) {
	th, val := c.stack.pop(), c.stack.peek()
	val.Byte(th)
}

func opAdd(c *context) {
	a := c.stack.pop()
	b := c.stack.peek()
	b.Add(a, b)
}

func opSub(c *context) {
	a := c.stack.pop()
	b := c.stack.peek()
	b.Sub(a, b)
}

func opMul(c *context) {
	a := c.stack.pop()
	b := c.stack.peek()
	b.Mul(a, b)
}

func opDiv(c *context) {
	a := c.stack.pop()
	b := c.stack.peek()
	b.Div(a, b)
}

func opSDiv(c *context) {
	a := c.stack.pop()
	b := c.stack.peek()
	b.SDiv(a, b)
}

func opMod(c *context) {
	a := c.stack.pop()
	b := c.stack.peek()
	b.Mod(a, b)
}

func opSMod(c *context) {
	a := c.stack.pop()
	b := c.stack.peek()
	b.SMod(a, b)
}

func opAddMod(c *context) {
	a, b := c.stack.pop(), c.stack.pop()
	n := c.stack.peek()
	n.AddMod(a, b, n)
}

func opMulMod(c *context) {
	a, b := c.stack.pop(), c.stack.pop()
	n := c.stack.peek()
	n.MulMod(a, b, n)
}

func opExp(c *context) error {
	base, exponent := c.stack.pop(), c.stack.peek()
	if err := c.useGas(chain.Gas(50 * exponent.ByteLen())); err != nil {
		return err
	}
	exponent.Exp(base, exponent)
	return nil
}

func opSha3(c *context) error {
	offset, size := c.stack.pop(), c.stack.peek()
	if err := checkSizeOffsetUint64Overflow(offset, size); err != nil {
		return err
	}
	data, err := c.memory.getSlice(offset.Uint64(), size.Uint64(), c)
	if err != nil {
		return err
	}
	if err := c.useGas(chain.Gas(6 * chain.SizeInWords(size.Uint64()))); err != nil {
		return err
	}
	hash := Keccak256(data)
	size.SetBytes32(hash[:])
	return nil
}

func opPrevRandao(c *context) {
	c.stack.pushUndefined().SetBytes32(c.params.PrevRandao[:])
}

func opTimestamp(c *context) {
	c.stack.pushUndefined().SetUint64(uint64(c.params.Timestamp))
}

func opNumber(c *context) {
	c.stack.pushUndefined().SetUint64(uint64(c.params.BlockNumber))
}

func opCoinbase(c *context) {
	c.stack.pushUndefined().SetBytes20(c.params.Coinbase[:])
}

func opGasLimit(c *context) {
	c.stack.pushUndefined().SetUint64(uint64(c.params.GasLimit))
}

func opGasPrice(c *context) {
	c.stack.pushUndefined().SetBytes32(c.params.GasPrice[:])
}

func opChainId(c *context) {
	c.stack.pushUndefined().SetBytes32(c.params.ChainID[:])
}

func opBaseFee(c *context) {
	c.stack.pushUndefined().SetBytes32(c.params.BaseFee[:])
}

func opBlobBaseFee(c *context) {
	c.stack.pushUndefined().SetBytes32(c.params.BlobBaseFee[:])
}

func opBlobHash(c *context) {
	top := c.stack.peek()
	if top.IsUint64() && top.Uint64() < uint64(len(c.params.BlobHashes)) {
		top.SetBytes32(c.params.BlobHashes[top.Uint64()][:])
	} else {
		top.Clear()
	}
}

func opAddress(c *context) {
	c.stack.pushUndefined().SetBytes20(c.params.Recipient[:])
}

func opOrigin(c *context) {
	c.stack.pushUndefined().SetBytes20(c.params.Origin[:])
}

func opCodeSize(c *context) {
	c.stack.pushUndefined().SetUint64(uint64(len(c.params.Code)))
}

// accessAccount charges the warm or cold access costs of addr since Berlin.
func accessAccount(c *context, addr chain.Address) error {
	if !c.isAtLeast(chain.R09_Berlin) {
		return nil
	}
	return c.useGas(getAccessCost(c.context.AccessAccount(addr)))
}

func opBalance(c *context) error {
	top := c.stack.peek()
	address := chain.Address(top.Bytes20())
	if err := accessAccount(c, address); err != nil {
		return err
	}
	balance := c.context.GetBalance(address)
	top.SetBytes32(balance[:])
	return nil
}

func opSelfbalance(c *context) {
	balance := c.context.GetBalance(c.params.Recipient)
	c.stack.pushUndefined().SetBytes32(balance[:])
}

func opExtcodesize(c *context) error {
	top := c.stack.peek()
	address := chain.Address(top.Bytes20())
	if err := accessAccount(c, address); err != nil {
		return err
	}
	top.SetUint64(uint64(c.context.GetCodeSize(address)))
	return nil
}

func opExtcodehash(c *context) error {
	top := c.stack.peek()
	address := chain.Address(top.Bytes20())
	if err := accessAccount(c, address); err != nil {
		return err
	}
	if !c.context.AccountExists(address) {
		top.Clear()
		return nil
	}
	hash := c.context.GetCodeHash(address)
	top.SetBytes32(hash[:])
	return nil
}

func opExtCodeCopy(c *context) error {
	a, memOffset, codeOffset, length := c.stack.pop(), c.stack.pop(), c.stack.pop(), c.stack.pop()
	if err := checkSizeOffsetUint64Overflow(memOffset, length); err != nil {
		return err
	}
	if err := c.useGas(chain.Gas(3 * chain.SizeInWords(length.Uint64()))); err != nil {
		return err
	}
	address := chain.Address(a.Bytes20())
	if err := accessAccount(c, address); err != nil {
		return err
	}
	offset, overflow := codeOffset.Uint64WithOverflow()
	if overflow {
		offset = math.MaxUint64
	}
	data, err := c.memory.getSlice(memOffset.Uint64(), length.Uint64(), c)
	if err != nil {
		return err
	}
	copy(data, getData(c.context.GetCode(address), offset, length.Uint64()))
	return nil
}

func opBlockhash(c *context) {
	top := c.stack.peek()
	number, overflow := top.Uint64WithOverflow()
	if overflow {
		top.Clear()
		return
	}
	upper := uint64(c.params.BlockNumber)
	lower := uint64(0)
	if upper > 256 {
		lower = upper - 256
	}
	if number >= lower && number < upper {
		hash := c.context.GetBlockHash(int64(number))
		top.SetBytes32(hash[:])
	} else {
		top.Clear()
	}
}

func opSelfdestruct(c *context) (status, error) {
	if c.params.Static {
		return statusFailed, errStaticContextViolation
	}

	beneficiary := chain.Address(c.stack.pop().Bytes20())
	cost := chain.Gas(0)
	// Warm beneficiaries are not charged.
	if c.isAtLeast(chain.R09_Berlin) &&
		c.context.AccessAccount(beneficiary) == chain.ColdAccess {
		cost += ColdAccountAccessCostEIP2929
	}
	if !c.context.AccountExists(beneficiary) &&
		c.context.GetBalance(c.params.Recipient) != (chain.Value{}) {
		cost += CreateBySelfdestructGas
	}
	if err := c.useGas(cost); err != nil {
		return statusFailed, err
	}

	destructed := c.context.SelfDestruct(c.params.Recipient, beneficiary)
	// EIP-3529 removed the refund with London.
	if destructed && !c.isAtLeast(chain.R10_London) {
		c.refund += SelfdestructRefundGas
	}
	return statusSelfDestructed, nil
}

func genericCreate(c *context, kind chain.CallKind) error {
	if c.params.Static {
		return errStaticContextViolation
	}

	value, offset, size := c.stack.pop(), c.stack.pop(), c.stack.pop()
	var salt chain.Hash
	if kind == chain.Create2 {
		salt = c.stack.pop().Bytes32()
	}
	if err := checkSizeOffsetUint64Overflow(offset, size); err != nil {
		return err
	}

	length := size.Uint64()
	input, err := c.memory.getSlice(offset.Uint64(), length, c)
	if err != nil {
		return err
	}

	if c.isAtLeast(chain.R12_Shanghai) {
		initCodeCost, err := computeCodeSizeCost(length)
		if err != nil {
			return err
		}
		if err := c.useGas(initCodeCost); err != nil {
			return err
		}
	}
	if kind == chain.Create2 {
		// hashing the init code for the address
		if err := c.useGas(chain.Gas(6 * chain.SizeInWords(length))); err != nil {
			return err
		}
	}

	if !value.IsZero() {
		balance := c.context.GetBalance(c.params.Recipient)
		if value.Gt(balance.ToUint256()) {
			c.stack.pushUndefined().Clear()
			c.returnData = nil
			return nil
		}
	}

	// EIP-150: all but one 64th of the available gas
	gas := c.gas - c.gas/64
	if err := c.useGas(gas); err != nil {
		return err
	}

	res, err := c.context.Call(kind, chain.CallParameters{
		Sender: c.params.Recipient,
		Value:  chain.Value(value.Bytes32()),
		Input:  bytes.Clone(input),
		Gas:    gas,
		Salt:   salt,
	})

	result := c.stack.pushUndefined()
	if err != nil || !res.Success {
		result.Clear()
	} else {
		result.SetBytes20(res.CreatedAddress[:])
	}
	if err == nil && !res.Success {
		c.returnData = res.Output
	} else {
		c.returnData = nil
	}
	c.gas += res.GasLeft
	c.refund += res.GasRefund
	return nil
}

// computeCodeSizeCost returns the EIP-3860 costs for init codes.
func computeCodeSizeCost(size uint64) (chain.Gas, error) {
	const (
		maxCodeSize     = 24576
		maxInitCodeSize = 2 * maxCodeSize
		initCodeWordGas = 2
	)
	if size > maxInitCodeSize {
		return 0, errInitCodeTooLarge
	}
	return chain.Gas(initCodeWordGas * chain.SizeInWords(size)), nil
}

// getData returns size bytes of data starting at start, right-padded with
// zeros where data is exceeded.
func getData(data []byte, start uint64, size uint64) []byte {
	length := uint64(len(data))
	if start > length {
		start = length
	}
	end := start + size
	if end > length || end < start {
		end = length
	}
	res := make([]byte, size)
	copy(res, data[start:end])
	return res
}

func checkSizeOffsetUint64Overflow(offset, size *uint256.Int) error {
	if size.IsZero() {
		return nil
	}
	if !offset.IsUint64() || !size.IsUint64() || offset.Uint64()+size.Uint64() < offset.Uint64() {
		return errOverflow
	}
	return nil
}

func opCall(c *context) error {
	if c.params.Static && !c.stack.peekN(2).IsZero() {
		return errStaticContextViolation
	}
	return genericCall(c, chain.Call)
}

func genericCall(c *context, kind chain.CallKind) error {
	value := uint256.NewInt(0)
	providedGas, addr := c.stack.pop(), c.stack.pop()
	if kind == chain.Call || kind == chain.CallCode {
		value = c.stack.pop()
	}
	inOffset, inSize, retOffset, retSize := c.stack.pop(), c.stack.pop(), c.stack.pop(), c.stack.pop()
	toAddr := chain.Address(addr.Bytes20())

	if err := checkSizeOffsetUint64Overflow(inOffset, inSize); err != nil {
		return err
	}
	if err := checkSizeOffsetUint64Overflow(retOffset, retSize); err != nil {
		return err
	}

	args, err := c.memory.getSlice(inOffset.Uint64(), inSize.Uint64(), c)
	if err != nil {
		return err
	}
	args = bytes.Clone(args)
	if _, err := c.memory.getSlice(retOffset.Uint64(), retSize.Uint64(), c); err != nil {
		return err
	}

	if err := accessAccount(c, toAddr); err != nil {
		return err
	}
	if !value.IsZero() {
		if err := c.useGas(CallValueTransferGas); err != nil {
			return err
		}
	}
	if kind == chain.Call && !value.IsZero() && !c.context.AccountExists(toAddr) {
		if err := c.useGas(CallNewAccountGas); err != nil {
			return err
		}
	}

	// EIP-150: at most all but one 64th of the remaining gas is forwarded.
	nestedCallGas := c.gas - c.gas/64
	if providedGas.IsUint64() && nestedCallGas >= chain.Gas(providedGas.Uint64()) {
		nestedCallGas = chain.Gas(providedGas.Uint64())
	}
	if err := c.useGas(nestedCallGas); err != nil {
		return err
	}
	if !value.IsZero() {
		nestedCallGas += CallStipend
	}

	if (kind == chain.Call || kind == chain.CallCode) && !value.IsZero() {
		balance := c.context.GetBalance(c.params.Recipient)
		if balance.ToUint256().Lt(value) {
			c.stack.pushUndefined().Clear()
			c.returnData = nil
			c.gas += nestedCallGas
			return nil
		}
	}

	// Calls nested in static calls remain static.
	if c.params.Static && kind == chain.Call {
		kind = chain.StaticCall
	}

	params := chain.CallParameters{
		Input: args,
		Gas:   nestedCallGas,
		Value: chain.Value(value.Bytes32()),
	}
	switch kind {
	case chain.Call, chain.StaticCall:
		params.Sender = c.params.Recipient
		params.Recipient = toAddr
		params.CodeAddress = toAddr
	case chain.CallCode:
		params.Sender = c.params.Recipient
		params.Recipient = c.params.Recipient
		params.CodeAddress = toAddr
	case chain.DelegateCall:
		params.Sender = c.params.Sender
		params.Recipient = c.params.Recipient
		params.CodeAddress = toAddr
		params.Value = c.params.Value
	}

	ret, err := c.context.Call(kind, params)
	if err == nil && retSize.Uint64() > 0 {
		// memory was expanded above, the copy is bounded by retSize
		output := c.memory.store[retOffset.Uint64() : retOffset.Uint64()+retSize.Uint64()]
		copy(output, ret.Output)
	}

	setBool(c.stack.pushUndefined(), err == nil && ret.Success)
	c.gas += ret.GasLeft
	c.refund += ret.GasRefund
	c.returnData = ret.Output
	return nil
}

func opReturnDataSize(c *context) {
	c.stack.pushUndefined().SetUint64(uint64(len(c.returnData)))
}

func opReturnDataCopy(c *context) error {
	memOffset, dataOffset, length := c.stack.pop(), c.stack.pop(), c.stack.pop()

	offset, overflow := dataOffset.Uint64WithOverflow()
	if overflow {
		return errReturnDataOutOfBounds
	}
	end, overflow := new(uint256.Int).AddOverflow(dataOffset, length)
	if overflow || !end.IsUint64() || uint64(len(c.returnData)) < end.Uint64() {
		return errReturnDataOutOfBounds
	}
	if err := checkSizeOffsetUint64Overflow(memOffset, length); err != nil {
		return err
	}
	if err := c.useGas(chain.Gas(3 * chain.SizeInWords(length.Uint64()))); err != nil {
		return err
	}
	return c.memory.set(memOffset.Uint64(), c.returnData[offset:end.Uint64()], c)
}

func opLog(c *context, size int) error {
	if c.params.Static {
		return errStaticContextViolation
	}

	start, length := c.stack.pop(), c.stack.pop()
	if err := checkSizeOffsetUint64Overflow(start, length); err != nil {
		return err
	}
	topics := make([]chain.Hash, size)
	for i := range topics {
		topics[i] = c.stack.pop().Bytes32()
	}

	if err := c.useGas(chain.Gas(8 * length.Uint64())); err != nil {
		return err
	}
	data, err := c.memory.getSlice(start.Uint64(), length.Uint64(), c)
	if err != nil {
		return err
	}
	c.context.EmitLog(chain.Log{
		Address: c.params.Recipient,
		Topics:  topics,
		Data:    bytes.Clone(data),
	})
	return nil
}
