// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package floria

import (
	"github.com/Fantom-foundation/devchain/go/chain"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	// MaxRecursiveDepth is the deepest nesting level of call frames.
	MaxRecursiveDepth = 1024

	maxCodeSize          = 24576
	createGasCostPerByte = 200
)

const (
	errMaxDepthExceeded     = chain.ConstError("max call depth exceeded")
	errInsufficientBalance  = chain.ConstError("insufficient balance for transfer")
	errNonceOverflow        = chain.ConstError("nonce overflow")
	errContractCollision    = chain.ConstError("contract address collision")
	errMaxCodeSizeExceeded  = chain.ConstError("max code size exceeded")
	errInvalidCodePrefix    = chain.ConstError("invalid code: must not begin with 0xef")
	errCodeStoreOutOfGas    = chain.ConstError("contract creation code storage out of gas")
	errInterpreterRejection = chain.ConstError("interpreter failed to run the code")
)

var emptyCodeHash = chain.Hash(crypto.Keccak256Hash(nil))

// runContext routes nested calls of the interpreter back into the processor.
// It is passed by value; every frame sees its own depth and static flag.
type runContext struct {
	chain.TransactionContext
	interpreter           chain.Interpreter
	blockParameters       chain.BlockParameters
	transactionParameters chain.TransactionParameters
	depth                 int
	static                bool
}

func (r runContext) Call(kind chain.CallKind, parameters chain.CallParameters) (chain.CallResult, error) {
	if kind == chain.Create || kind == chain.Create2 {
		result, created, err := r.executeCreate(kind, parameters)
		return toCallResult(result, created), err
	}
	result, err := r.executeCall(kind, parameters)
	return toCallResult(result, chain.Address{}), err
}

func toCallResult(result chain.Result, created chain.Address) chain.CallResult {
	return chain.CallResult{
		Output:         result.Output,
		GasLeft:        result.GasLeft,
		GasRefund:      result.GasRefund,
		CreatedAddress: created,
		Success:        result.Success(),
	}
}

// failed produces a failure that hands the provided gas back to the caller,
// used for calls rejected before any code is run.
func failed(gas chain.Gas, reason error) chain.Result {
	return chain.Result{
		Outcome: chain.OutcomeFailure,
		GasLeft: gas,
		Reason:  reason,
	}
}

func (r runContext) executeCall(kind chain.CallKind, parameters chain.CallParameters) (chain.Result, error) {
	if r.depth > MaxRecursiveDepth {
		return failed(parameters.Gas, errMaxDepthExceeded), nil
	}
	r.depth++

	transfersValue := kind == chain.Call || kind == chain.CallCode
	if transfersValue && !canTransferValue(r, parameters.Value, parameters.Sender, &parameters.Recipient) {
		return failed(parameters.Gas, errInsufficientBalance), nil
	}
	if kind == chain.StaticCall {
		r.static = true
	}

	recipient := parameters.Recipient
	codeAddress := parameters.CodeAddress
	if kind == chain.Call || kind == chain.StaticCall {
		codeAddress = recipient
	}
	revision := r.blockParameters.Revision

	// Calls to empty, non-existing accounts without value have no effect.
	if revision >= chain.R09_Berlin &&
		!isPrecompiled(codeAddress, revision) &&
		!r.AccountExists(recipient) &&
		parameters.Value == (chain.Value{}) {
		return chain.Result{Outcome: chain.OutcomeSuccess, GasLeft: parameters.Gas}, nil
	}

	snapshot := r.CreateSnapshot()
	if transfersValue {
		transferValue(r, parameters.Value, parameters.Sender, recipient)
	}

	if result, isPrecompiled := handlePrecompiled(revision, parameters.Input, codeAddress, parameters.Gas); isPrecompiled {
		if !result.Success() {
			r.RestoreSnapshot(snapshot)
		}
		return result, nil
	}

	codeHash := r.GetCodeHash(codeAddress)
	result, err := r.interpreter.Run(chain.Parameters{
		BlockParameters:       r.blockParameters,
		TransactionParameters: r.transactionParameters,
		Context:               r,
		Kind:                  kind,
		Static:                r.static,
		Depth:                 r.depth - 1,
		Gas:                   parameters.Gas,
		Recipient:             recipient,
		Sender:                parameters.Sender,
		Input:                 parameters.Input,
		Value:                 parameters.Value,
		CodeHash:              &codeHash,
		Code:                  r.GetCode(codeAddress),
	})
	if err != nil {
		r.RestoreSnapshot(snapshot)
		return failed(0, errInterpreterRejection), err
	}
	if !result.Success() {
		r.RestoreSnapshot(snapshot)
		result.GasRefund = 0
		if result.Outcome == chain.OutcomeFailure {
			result.GasLeft = 0
		}
	}
	return result, nil
}

func (r runContext) executeCreate(kind chain.CallKind, parameters chain.CallParameters) (chain.Result, chain.Address, error) {
	if r.depth > MaxRecursiveDepth {
		return failed(parameters.Gas, errMaxDepthExceeded), chain.Address{}, nil
	}
	r.depth++

	if !canTransferValue(r, parameters.Value, parameters.Sender, nil) {
		return failed(parameters.Gas, errInsufficientBalance), chain.Address{}, nil
	}
	if err := incrementNonce(r, parameters.Sender); err != nil {
		return failed(parameters.Gas, err), chain.Address{}, nil
	}

	code := chain.Code(parameters.Input)
	codeHash := chain.Hash(crypto.Keccak256Hash(code))
	created := createAddress(kind, parameters.Sender, r.GetNonce(parameters.Sender)-1, parameters.Salt, codeHash)

	if r.blockParameters.Revision >= chain.R09_Berlin {
		r.AccessAccount(created)
	}

	if r.GetNonce(created) != 0 ||
		(r.GetCodeHash(created) != (chain.Hash{}) && r.GetCodeHash(created) != emptyCodeHash) {
		return failed(0, errContractCollision), chain.Address{}, nil
	}

	snapshot := r.CreateSnapshot()
	r.SetNonce(created, 1)
	transferValue(r, parameters.Value, parameters.Sender, created)

	result, err := r.interpreter.Run(chain.Parameters{
		BlockParameters:       r.blockParameters,
		TransactionParameters: r.transactionParameters,
		Context:               r,
		Kind:                  kind,
		Static:                r.static,
		Depth:                 r.depth - 1,
		Gas:                   parameters.Gas,
		Recipient:             created,
		Sender:                parameters.Sender,
		Value:                 parameters.Value,
		CodeHash:              &codeHash,
		Code:                  code,
	})
	if err != nil {
		r.RestoreSnapshot(snapshot)
		return failed(0, errInterpreterRejection), chain.Address{}, err
	}
	switch result.Outcome {
	case chain.OutcomeRevert:
		r.RestoreSnapshot(snapshot)
		result.GasRefund = 0
		return result, chain.Address{}, nil
	case chain.OutcomeFailure:
		r.RestoreSnapshot(snapshot)
		return failed(0, result.Reason), chain.Address{}, nil
	}

	if reason := checkDeployedCode(r.blockParameters.Revision, result.Output, result.GasLeft); reason != nil {
		r.RestoreSnapshot(snapshot)
		return failed(0, reason), chain.Address{}, nil
	}
	result.GasLeft -= chain.Gas(len(result.Output) * createGasCostPerByte)
	r.SetCode(created, chain.Code(result.Output))
	result.Output = nil
	return result, created, nil
}

// checkDeployedCode validates the code returned by an init code before it
// gets stored.
func checkDeployedCode(revision chain.Revision, code chain.Data, gasLeft chain.Gas) error {
	if len(code) > maxCodeSize {
		return errMaxCodeSizeExceeded
	}
	if revision >= chain.R10_London && len(code) > 0 && code[0] == 0xEF {
		return errInvalidCodePrefix
	}
	if gasLeft < chain.Gas(len(code)*createGasCostPerByte) {
		return errCodeStoreOutOfGas
	}
	return nil
}
