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
	"fmt"

	"github.com/Fantom-foundation/devchain/go/chain"
)

const (
	TxGas                     = 21_000
	TxGasContractCreation     = 53_000
	TxDataNonZeroGasEIP2028   = 16
	TxDataZeroGasEIP2028      = 4
	TxAccessListAddressGas    = 2400
	TxAccessListStorageKeyGas = 1900
	InitCodeWordGas           = 2
	MaxInitCodeSize           = 2 * maxCodeSize

	// refund quotients before and after EIP-3529
	RefundQuotient        = 2
	RefundQuotientEIP3529 = 5
)

// Name is the name under which the processor is registered.
const Name = "floria"

func init() {
	chain.RegisterProcessorFactory(Name, newProcessor)
}

func newProcessor(interpreter chain.Interpreter) chain.Processor {
	return &processor{
		interpreter: interpreter,
	}
}

type processor struct {
	interpreter chain.Interpreter
}

// Run executes a transaction. Transactions failing the pre-checks (nonce,
// balance, intrinsic gas) are rejected with an error before the context is
// modified. All other transactions produce a receipt, even if their
// execution reverts or fails.
func (p *processor) Run(
	blockParams chain.BlockParameters,
	transaction chain.Transaction,
	context chain.TransactionContext,
) (chain.Receipt, error) {
	if err := checkNonce(transaction, context); err != nil {
		return chain.Receipt{}, err
	}
	if transaction.Recipient == nil && blockParams.Revision >= chain.R12_Shanghai && len(transaction.Input) > MaxInitCodeSize {
		return chain.Receipt{}, fmt.Errorf("max initcode size exceeded: %d > %d", len(transaction.Input), MaxInitCodeSize)
	}
	intrinsicGas := setupGasBilling(blockParams.Revision, transaction)
	if transaction.GasLimit < intrinsicGas {
		return chain.Receipt{}, fmt.Errorf("intrinsic gas too low: have %d, want %d", transaction.GasLimit, intrinsicGas)
	}
	if err := buyGas(transaction, context); err != nil {
		return chain.Receipt{}, err
	}
	gas := transaction.GasLimit - intrinsicGas

	if blockParams.Revision >= chain.R09_Berlin {
		warmUpAccessList(blockParams, transaction, context)
	}

	runContext := runContext{
		TransactionContext: context,
		interpreter:        p.interpreter,
		blockParameters:    blockParams,
		transactionParameters: chain.TransactionParameters{
			Origin:   transaction.Sender,
			GasPrice: transaction.GasPrice,
		},
	}

	var (
		result          chain.Result
		contractAddress *chain.Address
		err             error
	)
	if transaction.Recipient == nil {
		var created chain.Address
		result, created, err = runContext.executeCreate(chain.Create, chain.CallParameters{
			Sender: transaction.Sender,
			Value:  transaction.Value,
			Input:  transaction.Input,
			Gas:    gas,
		})
		// The receipt names the derived address even if the creation failed.
		address := createAddress(chain.Create, transaction.Sender, transaction.Nonce, chain.Hash{}, chain.Hash{})
		if created != (chain.Address{}) {
			address = created
		}
		contractAddress = &address
	} else {
		if err := handleNonce(transaction, context); err != nil {
			return chain.Receipt{}, err
		}
		result, err = runContext.executeCall(chain.Call, chain.CallParameters{
			Sender:      transaction.Sender,
			Recipient:   *transaction.Recipient,
			Value:       transaction.Value,
			Input:       transaction.Input,
			Gas:         gas,
			CodeAddress: *transaction.Recipient,
		})
	}
	if err != nil {
		return chain.Receipt{}, err
	}

	gasUsed := gasUsed(blockParams.Revision, transaction, result)
	refundGas(transaction, gasUsed, context)
	payCoinbase(blockParams, transaction, gasUsed, context)

	var logs []chain.Log
	if result.Success() {
		logs = context.GetLogs()
	}
	return chain.Receipt{
		Outcome:         result.Outcome,
		Reason:          result.Reason,
		Output:          result.Output,
		ContractAddress: contractAddress,
		GasUsed:         gasUsed,
		Logs:            logs,
	}, nil
}

// gasUsed computes the gas charged for the transaction after refunds.
func gasUsed(revision chain.Revision, transaction chain.Transaction, result chain.Result) chain.Gas {
	used := transaction.GasLimit - result.GasLeft
	quotient := chain.Gas(RefundQuotient)
	if revision >= chain.R10_London {
		quotient = RefundQuotientEIP3529
	}
	refund := result.GasRefund
	if limit := used / quotient; refund > limit {
		refund = limit
	}
	return used - refund
}

func setupGasBilling(revision chain.Revision, transaction chain.Transaction) chain.Gas {
	var gas chain.Gas
	if transaction.Recipient == nil {
		gas = TxGasContractCreation
		if revision >= chain.R12_Shanghai {
			gas += InitCodeWordGas * chain.Gas(chain.SizeInWords(uint64(len(transaction.Input))))
		}
	} else {
		gas = TxGas
	}

	if len(transaction.Input) > 0 {
		nonZeroBytes := chain.Gas(0)
		for _, inputByte := range transaction.Input {
			if inputByte != 0 {
				nonZeroBytes++
			}
		}
		zeroBytes := chain.Gas(len(transaction.Input)) - nonZeroBytes
		gas += zeroBytes * TxDataZeroGasEIP2028
		gas += nonZeroBytes * TxDataNonZeroGasEIP2028
	}

	gas += chain.Gas(len(transaction.AccessList)) * TxAccessListAddressGas
	for _, accessTuple := range transaction.AccessList {
		gas += chain.Gas(len(accessTuple.Keys)) * TxAccessListStorageKeyGas
	}
	return gas
}

// IntrinsicGas returns the gas charged for a transaction before any code is
// run.
func IntrinsicGas(revision chain.Revision, transaction chain.Transaction) chain.Gas {
	return setupGasBilling(revision, transaction)
}

func checkNonce(transaction chain.Transaction, context chain.TransactionContext) error {
	stateNonce := context.GetNonce(transaction.Sender)
	if transaction.Nonce != stateNonce {
		return fmt.Errorf("nonce mismatch: %v != %v", transaction.Nonce, stateNonce)
	}
	if stateNonce+1 < stateNonce {
		return errNonceOverflow
	}
	return nil
}

func handleNonce(transaction chain.Transaction, context chain.TransactionContext) error {
	if err := checkNonce(transaction, context); err != nil {
		return err
	}
	context.SetNonce(transaction.Sender, transaction.Nonce+1)
	return nil
}

// buyGas charges the sender for the full gas limit. The sender also needs to
// cover the transferred value.
func buyGas(transaction chain.Transaction, context chain.TransactionContext) error {
	gas := transaction.GasPrice.Scale(uint64(transaction.GasLimit))
	needed := chain.Add(gas, transaction.Value)

	senderBalance := context.GetBalance(transaction.Sender)
	if senderBalance.Cmp(needed) < 0 || needed.Cmp(gas) < 0 {
		return fmt.Errorf("insufficient funds for gas * price + value: have %v, want %v", senderBalance, needed)
	}
	context.SetBalance(transaction.Sender, chain.Sub(senderBalance, gas))
	return nil
}

// refundGas returns the price of the unused gas to the sender.
func refundGas(transaction chain.Transaction, gasUsed chain.Gas, context chain.TransactionContext) {
	remaining := transaction.GasPrice.Scale(uint64(transaction.GasLimit - gasUsed))
	context.SetBalance(transaction.Sender, chain.Add(context.GetBalance(transaction.Sender), remaining))
}

// payCoinbase credits the priority fee of the used gas to the block's
// coinbase. The base fee is burned from London on.
func payCoinbase(blockParams chain.BlockParameters, transaction chain.Transaction, gasUsed chain.Gas, context chain.TransactionContext) {
	tip := transaction.GasPrice
	if blockParams.Revision >= chain.R10_London {
		if tip.Cmp(blockParams.BaseFee) <= 0 {
			return
		}
		tip = chain.Sub(tip, blockParams.BaseFee)
	}
	fee := tip.Scale(uint64(gasUsed))
	if fee.IsZero() {
		return
	}
	context.SetBalance(blockParams.Coinbase, chain.Add(context.GetBalance(blockParams.Coinbase), fee))
}

func warmUpAccessList(blockParams chain.BlockParameters, transaction chain.Transaction, context chain.TransactionContext) {
	context.AccessAccount(transaction.Sender)
	if transaction.Recipient != nil {
		context.AccessAccount(*transaction.Recipient)
	}
	for _, address := range PrecompiledAddresses(blockParams.Revision) {
		context.AccessAccount(address)
	}
	if blockParams.Revision >= chain.R12_Shanghai {
		context.AccessAccount(blockParams.Coinbase)
	}
	for _, tuple := range transaction.AccessList {
		context.AccessAccount(tuple.Address)
		for _, key := range tuple.Keys {
			context.AccessStorage(tuple.Address, key)
		}
	}
}
