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
	"github.com/Fantom-foundation/devchain/go/chain"
	"github.com/Fantom-foundation/devchain/go/state"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

// Block is a block of the development chain.
type Block struct {
	Number       uint64
	Hash         chain.Hash
	ParentHash   chain.Hash
	Timestamp    uint64
	Coinbase     chain.Address
	GasLimit     uint64
	GasUsed      uint64
	BaseFee      chain.Value
	PrevRandao   chain.Hash
	Transactions []*Transaction
	Receipts     []*Receipt

	// The world states before and after the block; both are never modified.
	base, state *state.State
}

type header struct {
	ParentHash chain.Hash
	Coinbase   chain.Address
	Number     uint64
	GasLimit   uint64
	GasUsed    uint64
	Time       uint64
	BaseFee    chain.Value
	PrevRandao chain.Hash
	TxHashes   []chain.Hash
}

// seal computes the hash of the block from its header fields.
func (b *Block) seal() {
	h := header{
		ParentHash: b.ParentHash,
		Coinbase:   b.Coinbase,
		Number:     b.Number,
		GasLimit:   b.GasLimit,
		GasUsed:    b.GasUsed,
		Time:       b.Timestamp,
		BaseFee:    b.BaseFee,
		PrevRandao: b.PrevRandao,
		TxHashes:   make([]chain.Hash, 0, len(b.Transactions)),
	}
	for _, tx := range b.Transactions {
		h.TxHashes = append(h.TxHashes, tx.Hash)
	}
	b.Hash = rlpHash(h)
}

// Transaction is a transaction sent to the development chain. Transactions
// are not signed; the sender must be an account known to the node.
type Transaction struct {
	Hash       chain.Hash
	From       chain.Address
	To         *chain.Address
	Nonce      uint64
	Gas        uint64
	GasPrice   chain.Value
	Value      chain.Value
	Input      chain.Data
	AccessList []chain.AccessTuple

	// Position in the chain, only set once mined.
	BlockNumber *uint64
	BlockHash   chain.Hash
	Index       uint64
}

type txPayload struct {
	ChainID  uint64
	From     chain.Address
	To       *chain.Address
	Nonce    uint64
	Gas      uint64
	GasPrice chain.Value
	Value    chain.Value
	Input    []byte
}

func (tx *Transaction) computeHash(chainID uint64) chain.Hash {
	return rlpHash(txPayload{
		ChainID:  chainID,
		From:     tx.From,
		To:       tx.To,
		Nonce:    tx.Nonce,
		Gas:      tx.Gas,
		GasPrice: tx.GasPrice,
		Value:    tx.Value,
		Input:    tx.Input,
	})
}

func (tx *Transaction) message() chain.Transaction {
	return chain.Transaction{
		Sender:     tx.From,
		Recipient:  tx.To,
		Nonce:      tx.Nonce,
		Input:      tx.Input,
		Value:      tx.Value,
		GasLimit:   chain.Gas(tx.Gas),
		GasPrice:   tx.GasPrice,
		AccessList: tx.AccessList,
	}
}

// Receipt summarizes the execution of a mined transaction.
type Receipt struct {
	TransactionHash   chain.Hash
	TransactionIndex  uint64
	BlockHash         chain.Hash
	BlockNumber       uint64
	From              chain.Address
	To                *chain.Address
	ContractAddress   *chain.Address
	GasUsed           uint64
	CumulativeGasUsed uint64
	EffectiveGasPrice chain.Value
	Outcome           chain.Outcome
	Output            chain.Data
	Logs              []*Log
}

// Status is 1 for successful transactions and 0 otherwise.
func (r *Receipt) Status() uint64 {
	if r.Outcome == chain.OutcomeSuccess {
		return 1
	}
	return 0
}

// Log is a log emitted by a mined transaction.
type Log struct {
	chain.Log
	BlockNumber      uint64
	BlockHash        chain.Hash
	TransactionHash  chain.Hash
	TransactionIndex uint64
	Index            uint64 // position within the block
}

// CallMsg describes a transaction to be sent or a call to be simulated.
// Unset fields are filled with defaults by the node.
type CallMsg struct {
	From       *chain.Address
	To         *chain.Address
	Gas        *uint64
	GasPrice   *chain.Value
	Value      chain.Value
	Input      chain.Data
	Nonce      *uint64
	AccessList []chain.AccessTuple
}

func rlpHash(v any) chain.Hash {
	data, err := rlp.EncodeToBytes(v)
	if err != nil {
		// all hashed types are encodable
		panic(err)
	}
	return chain.Hash(crypto.Keccak256Hash(data))
}
