// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package devchain

import (
	"fmt"

	"github.com/Fantom-foundation/devchain/go/chain"
	"github.com/Fantom-foundation/devchain/go/processor/floria"
	"github.com/Fantom-foundation/devchain/go/state"
	"github.com/Fantom-foundation/devchain/go/tracer"
)

// ExecutionError reports a call that reverted or failed.
type ExecutionError struct {
	Outcome chain.Outcome
	Reason  error
	Output  chain.Data
}

func (e *ExecutionError) Error() string {
	if e.Outcome == chain.OutcomeRevert {
		return "execution reverted"
	}
	if e.Reason != nil {
		return fmt.Sprintf("execution failed: %v", e.Reason)
	}
	return "execution failed"
}

// OverrideAccount replaces parts of an account for a single call. State
// replaces the entire storage while StateDiff only updates the given slots.
type OverrideAccount struct {
	Nonce     *uint64
	Code      *chain.Code
	Balance   *chain.Value
	State     map[chain.Key]chain.Word
	StateDiff map[chain.Key]chain.Word
}

// StateOverride is a set of account overrides applied before a call.
type StateOverride map[chain.Address]OverrideAccount

func (o StateOverride) apply(s *state.State) error {
	for addr, account := range o {
		if account.State != nil && account.StateDiff != nil {
			return fmt.Errorf("account %v has both 'state' and 'stateDiff'", addr)
		}
		if account.State != nil {
			balance, nonce, code := s.GetBalance(addr), s.GetNonce(addr), s.GetCode(addr)
			s.DeleteAccount(addr)
			s.SetBalance(addr, balance)
			s.SetNonce(addr, nonce)
			s.SetCode(addr, code)
			for key, value := range account.State {
				s.SetStorage(addr, key, value)
			}
		}
		for key, value := range account.StateDiff {
			s.SetStorage(addr, key, value)
		}
		if account.Nonce != nil {
			s.SetNonce(addr, *account.Nonce)
		}
		if account.Code != nil {
			s.SetCode(addr, *account.Code)
		}
		if account.Balance != nil {
			s.SetBalance(addr, *account.Balance)
		}
	}
	return s.Err()
}

// Call simulates the execution of a transaction on top of the state after
// the given block, the latest if number is nil. The state of the chain is
// not modified. Calls without gas price are not charged a base fee.
func (n *Node) Call(msg CallMsg, number *uint64, overrides StateOverride) (chain.Receipt, error) {
	n.mutex.RLock()
	defer n.mutex.RUnlock()
	return n.call(msg, number, overrides, nil)
}

func (n *Node) call(msg CallMsg, number *uint64, overrides StateOverride, tracer chain.Tracer) (chain.Receipt, error) {
	base, err := n.stateAt(number)
	if err != nil {
		return chain.Receipt{}, err
	}
	if len(overrides) > 0 {
		base = base.Clone()
		if err := overrides.apply(base); err != nil {
			return chain.Receipt{}, err
		}
	}

	block := n.nextBlock()
	if number != nil && *number != PendingBlock && *number != n.head().Number {
		if block, err = n.blockByNumber(number); err != nil {
			return chain.Receipt{}, err
		}
	}
	params := n.blockParameters(block)

	tx := chain.Transaction{
		Recipient:  msg.To,
		Input:      msg.Input,
		Value:      msg.Value,
		GasLimit:   chain.Gas(block.GasLimit),
		AccessList: msg.AccessList,
	}
	if msg.From != nil {
		tx.Sender = *msg.From
	}
	tx.Nonce = base.GetNonce(tx.Sender)
	if msg.Gas != nil && *msg.Gas < block.GasLimit {
		tx.GasLimit = chain.Gas(*msg.Gas)
	}
	if msg.GasPrice != nil {
		tx.GasPrice = *msg.GasPrice
	}
	if tx.GasPrice.IsZero() {
		params.BaseFee = chain.Value{}
	}
	receipt, _, err := n.execute(base, params, tx, tracer)
	return receipt, err
}

// EstimateGas determines the lowest gas limit the given transaction
// succeeds with.
func (n *Node) EstimateGas(msg CallMsg, number *uint64) (uint64, error) {
	n.mutex.RLock()
	defer n.mutex.RUnlock()
	return n.estimateGas(msg, number)
}

func (n *Node) estimateGas(msg CallMsg, number *uint64) (uint64, error) {
	hi := n.config.BlockGasLimit
	if msg.Gas != nil && *msg.Gas < hi {
		hi = *msg.Gas
	}
	run := func(gas uint64) (chain.Receipt, error) {
		msg.Gas = &gas
		return n.call(msg, number, nil, nil)
	}
	receipt, err := run(hi)
	if err != nil {
		return 0, err
	}
	if !receipt.Success() {
		return 0, &ExecutionError{Outcome: receipt.Outcome, Reason: receipt.Reason, Output: receipt.Output}
	}

	lo := uint64(floria.IntrinsicGas(n.config.Revision, chain.Transaction{Recipient: msg.To, Input: msg.Input, AccessList: msg.AccessList})) - 1
	for lo+1 < hi {
		mid := lo + (hi-lo)/2
		receipt, err := run(mid)
		if err == nil && receipt.Success() {
			hi = mid
		} else {
			lo = mid
		}
	}
	return hi, nil
}

// TraceCall simulates a call like Call and records all executed
// instructions.
func (n *Node) TraceCall(msg CallMsg, number *uint64, overrides StateOverride, config tracer.Config) (*tracer.ExecutionResult, error) {
	n.mutex.RLock()
	defer n.mutex.RUnlock()
	recorder := tracer.NewRecorder(config)
	receipt, err := n.call(msg, number, overrides, recorder)
	if err != nil {
		return nil, err
	}
	return recorder.Result(receipt.GasUsed, receipt.Outcome, receipt.Output), nil
}

// TraceTransaction replays a mined transaction and records all executed
// instructions. The transactions preceding it in its block are replayed
// without tracing.
func (n *Node) TraceTransaction(hash chain.Hash, config tracer.Config) (*tracer.ExecutionResult, error) {
	n.mutex.RLock()
	defer n.mutex.RUnlock()
	tx, found := n.txs[hash]
	if !found || tx.BlockNumber == nil {
		return nil, fmt.Errorf("%w: %v", ErrUnknownTransaction, hash)
	}
	block, err := n.blockByNumber(tx.BlockNumber)
	if err != nil {
		return nil, err
	}
	params := n.blockParameters(block)
	current := block.base
	for _, prev := range block.Transactions[:tx.Index] {
		if _, current, err = n.execute(current, params, prev.message(), nil); err != nil {
			return nil, fmt.Errorf("failed to replay transaction %v: %w", prev.Hash, err)
		}
	}
	recorder := tracer.NewRecorder(config)
	receipt, _, err := n.execute(current, params, tx.message(), recorder)
	if err != nil {
		return nil, err
	}
	return recorder.Result(receipt.GasUsed, receipt.Outcome, receipt.Output), nil
}
