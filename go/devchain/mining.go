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
)

const (
	ErrUnknownAccount    = chain.ConstError("unknown account")
	ErrNonceMismatch     = chain.ConstError("nonce mismatch")
	ErrInsufficientFunds = chain.ConstError("insufficient funds for gas * price + value")
	ErrIntrinsicGas      = chain.ConstError("intrinsic gas too low")
	ErrGasLimit          = chain.ConstError("exceeds block gas limit")
)

// execute runs a transaction on a copy of the given state. The given state
// remains unmodified. A non-nil tracer receives all executed instructions.
func (n *Node) execute(
	base *state.State,
	block chain.BlockParameters,
	tx chain.Transaction,
	tracer chain.Tracer,
) (chain.Receipt, *state.State, error) {
	processor := n.processor
	if tracer != nil {
		var err error
		processor, err = chain.NewProcessor(floria.Name, n.interpreter.WithTracer(tracer))
		if err != nil {
			return chain.Receipt{}, nil, err
		}
	}
	next := base.Clone()
	current := uint64(block.BlockNumber)
	context := state.NewTransactionContext(next, block.Revision, func(number int64) chain.Hash {
		return n.blockHash(current, number)
	})
	receipt, err := processor.Run(block, tx, context)
	if err != nil {
		return chain.Receipt{}, nil, err
	}
	context.Finalize()
	if err := next.Err(); err != nil {
		return chain.Receipt{}, nil, err
	}
	return receipt, next, nil
}

// SendTransaction validates the transaction and adds it to the pending
// pool. With automining enabled, a block including the transaction is mined
// right away.
func (n *Node) SendTransaction(msg CallMsg) (chain.Hash, error) {
	n.mutex.Lock()
	defer n.mutex.Unlock()

	tx, err := n.newTransaction(msg)
	if err != nil {
		return chain.Hash{}, err
	}
	n.pending = append(n.pending, tx)
	n.log.Debug("Queued transaction", "hash", tx.Hash, "from", tx.From, "nonce", tx.Nonce)
	if !n.automine {
		return tx.Hash, nil
	}
	if err, found := n.mine()[tx.Hash]; found {
		return chain.Hash{}, err
	}
	return tx.Hash, nil
}

func (n *Node) newTransaction(msg CallMsg) (*Transaction, error) {
	if msg.From == nil {
		return nil, fmt.Errorf("%w: missing sender", ErrUnknownAccount)
	}
	from := *msg.From
	if !n.accounts.CanSign(from) {
		return nil, fmt.Errorf("%w: %v", ErrUnknownAccount, from)
	}
	nonce, err := n.pendingNonce(from)
	if err != nil {
		return nil, err
	}
	if msg.Nonce != nil {
		if *msg.Nonce != nonce {
			return nil, fmt.Errorf("%w: expected %d, got %d", ErrNonceMismatch, nonce, *msg.Nonce)
		}
	}
	tx := &Transaction{
		From:       from,
		To:         msg.To,
		Nonce:      nonce,
		Gas:        n.config.BlockGasLimit,
		GasPrice:   n.defaultGasPrice(),
		Value:      msg.Value,
		Input:      msg.Input,
		AccessList: msg.AccessList,
	}
	if msg.Gas != nil {
		tx.Gas = *msg.Gas
	} else if estimate, err := n.estimateGas(msg, nil); err == nil {
		tx.Gas = estimate
	} else {
		// failing transactions are still accepted and fail when mined
		n.log.Debug("Gas estimation failed", "from", from, "err", err)
	}
	if msg.GasPrice != nil {
		tx.GasPrice = *msg.GasPrice
	}
	if tx.Gas > n.config.BlockGasLimit {
		return nil, fmt.Errorf("%w: %d > %d", ErrGasLimit, tx.Gas, n.config.BlockGasLimit)
	}
	if intrinsic := floria.IntrinsicGas(n.config.Revision, tx.message()); chain.Gas(tx.Gas) < intrinsic {
		return nil, fmt.Errorf("%w: have %d, want %d", ErrIntrinsicGas, tx.Gas, intrinsic)
	}
	view := n.state.View()
	balance := view.GetBalance(from)
	if err := view.Err(); err != nil {
		return nil, err
	}
	cost := chain.Add(tx.GasPrice.Scale(tx.Gas), tx.Value)
	if balance.Cmp(cost) < 0 || cost.Cmp(tx.Value) < 0 {
		return nil, fmt.Errorf("%w: have %v, want %v", ErrInsufficientFunds, balance, cost)
	}
	tx.Hash = tx.computeHash(n.config.ChainID)
	return tx, nil
}

// Automine reports whether a block is mined for every transaction.
func (n *Node) Automine() bool {
	n.mutex.RLock()
	defer n.mutex.RUnlock()
	return n.automine
}

func (n *Node) SetAutomine(enabled bool) {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	n.automine = enabled
}

// Mine produces the given number of blocks. Pending transactions are
// included in the first blocks as far as the block gas limit permits. If an
// interval is given, the timestamps of the blocks after the first one are
// that many seconds apart.
func (n *Node) Mine(blocks uint64, interval uint64) {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	for i := uint64(0); i < blocks; i++ {
		if i > 0 && interval > 0 {
			next := n.head().Timestamp + interval
			n.time.fixed = &next
		}
		n.mine()
	}
}

// pendingState returns the state resulting from the pending transactions
// that would be included in the next block. The state of the chain is not
// modified.
func (n *Node) pendingState() *state.State {
	block := n.nextBlock()
	params := n.blockParameters(block)
	current := n.state
	var gasUsed uint64
	for _, tx := range n.pending {
		if gasUsed+tx.Gas > block.GasLimit {
			break
		}
		result, next, err := n.execute(current, params, tx.message(), nil)
		if err != nil {
			continue
		}
		current = next
		gasUsed += uint64(result.GasUsed)
	}
	return current
}

// mine produces a single block from the pending transactions. Transactions
// failing the pre-checks of the processor are dropped; their errors are
// returned.
func (n *Node) mine() map[chain.Hash]error {
	block := n.nextBlock()
	params := n.blockParameters(block)

	dropped := map[chain.Hash]error{}
	current := n.state
	var remaining []*Transaction
	var logIndex uint64
	for _, tx := range n.pending {
		// transactions keep their order, so all following ones are deferred
		if len(remaining) > 0 || block.GasUsed+tx.Gas > block.GasLimit {
			remaining = append(remaining, tx)
			continue
		}
		result, next, err := n.execute(current, params, tx.message(), nil)
		if err != nil {
			n.log.Warn("Dropped transaction", "hash", tx.Hash, "from", tx.From, "err", err)
			dropped[tx.Hash] = err
			continue
		}
		current = next
		index := uint64(len(block.Transactions))
		block.GasUsed += uint64(result.GasUsed)
		receipt := &Receipt{
			TransactionHash:   tx.Hash,
			TransactionIndex:  index,
			BlockNumber:       block.Number,
			From:              tx.From,
			To:                tx.To,
			ContractAddress:   result.ContractAddress,
			GasUsed:           uint64(result.GasUsed),
			CumulativeGasUsed: block.GasUsed,
			EffectiveGasPrice: tx.GasPrice,
			Outcome:           result.Outcome,
			Output:            result.Output,
		}
		for _, l := range result.Logs {
			receipt.Logs = append(receipt.Logs, &Log{
				Log:              l,
				BlockNumber:      block.Number,
				TransactionHash:  tx.Hash,
				TransactionIndex: index,
				Index:            logIndex,
			})
			logIndex++
		}
		block.Transactions = append(block.Transactions, tx)
		block.Receipts = append(block.Receipts, receipt)
	}

	block.seal()
	for i, tx := range block.Transactions {
		// pending transactions are shared with snapshots and stay untouched
		mined := *tx
		mined.BlockNumber = &block.Number
		mined.BlockHash = block.Hash
		mined.Index = uint64(i)
		block.Transactions[i] = &mined
		block.Receipts[i].BlockHash = block.Hash
		for _, l := range block.Receipts[i].Logs {
			l.BlockHash = block.Hash
		}
	}
	block.base = n.state
	block.state = current

	n.state = current
	n.pending = remaining
	n.nextBaseFee = nil
	n.time.mined(block.Timestamp, n.now())
	n.appendBlock(block)
	n.log.Info("Mined block", "number", block.Number, "hash", block.Hash, "txs", len(block.Transactions), "gasUsed", block.GasUsed)
	return dropped
}
