// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package rpc

import (
	"github.com/Fantom-foundation/devchain/go/chain"
	"github.com/Fantom-foundation/devchain/go/devchain"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

type rpcBlock struct {
	Number        hexutil.Uint64   `json:"number"`
	Hash          chain.Hash       `json:"hash"`
	ParentHash    chain.Hash       `json:"parentHash"`
	Nonce         types.BlockNonce `json:"nonce"`
	MixHash       chain.Hash       `json:"mixHash"`
	Sha3Uncles    chain.Hash       `json:"sha3Uncles"`
	LogsBloom     types.Bloom      `json:"logsBloom"`
	Miner         chain.Address    `json:"miner"`
	Difficulty    hexutil.Uint64   `json:"difficulty"`
	ExtraData     hexutil.Bytes    `json:"extraData"`
	GasLimit      hexutil.Uint64   `json:"gasLimit"`
	GasUsed       hexutil.Uint64   `json:"gasUsed"`
	Timestamp     hexutil.Uint64   `json:"timestamp"`
	BaseFeePerGas chain.Value      `json:"baseFeePerGas"`
	Transactions  []any            `json:"transactions"`
	Uncles        []chain.Hash     `json:"uncles"`
}

func newRPCBlock(block *devchain.Block, fullTx bool, chainID uint64) *rpcBlock {
	res := &rpcBlock{
		Number:        hexutil.Uint64(block.Number),
		Hash:          block.Hash,
		ParentHash:    block.ParentHash,
		MixHash:       block.PrevRandao,
		Sha3Uncles:    chain.Hash(types.EmptyUncleHash),
		Miner:         block.Coinbase,
		ExtraData:     hexutil.Bytes{},
		GasLimit:      hexutil.Uint64(block.GasLimit),
		GasUsed:       hexutil.Uint64(block.GasUsed),
		Timestamp:     hexutil.Uint64(block.Timestamp),
		BaseFeePerGas: block.BaseFee,
		Transactions:  make([]any, 0, len(block.Transactions)),
		Uncles:        []chain.Hash{},
	}
	for _, receipt := range block.Receipts {
		addToBloom(&res.LogsBloom, receipt.Logs)
	}
	for _, tx := range block.Transactions {
		if fullTx {
			res.Transactions = append(res.Transactions, newRPCTransaction(tx, chainID))
		} else {
			res.Transactions = append(res.Transactions, tx.Hash)
		}
	}
	return res
}

type rpcTransaction struct {
	Hash             chain.Hash        `json:"hash"`
	Type             hexutil.Uint64    `json:"type"`
	ChainID          hexutil.Uint64    `json:"chainId"`
	From             chain.Address     `json:"from"`
	To               *chain.Address    `json:"to"`
	Nonce            hexutil.Uint64    `json:"nonce"`
	Gas              hexutil.Uint64    `json:"gas"`
	GasPrice         chain.Value       `json:"gasPrice"`
	Value            chain.Value       `json:"value"`
	Input            hexutil.Bytes     `json:"input"`
	AccessList       *types.AccessList `json:"accessList,omitempty"`
	BlockHash        *chain.Hash       `json:"blockHash"`
	BlockNumber      *hexutil.Uint64   `json:"blockNumber"`
	TransactionIndex *hexutil.Uint64   `json:"transactionIndex"`
}

func newRPCTransaction(tx *devchain.Transaction, chainID uint64) *rpcTransaction {
	res := &rpcTransaction{
		Hash:     tx.Hash,
		ChainID:  hexutil.Uint64(chainID),
		From:     tx.From,
		To:       tx.To,
		Nonce:    hexutil.Uint64(tx.Nonce),
		Gas:      hexutil.Uint64(tx.Gas),
		GasPrice: tx.GasPrice,
		Value:    tx.Value,
		Input:    hexutil.Bytes(tx.Input),
	}
	if len(tx.AccessList) > 0 {
		list := make(types.AccessList, 0, len(tx.AccessList))
		for _, tuple := range tx.AccessList {
			entry := types.AccessTuple{Address: [20]byte(tuple.Address)}
			for _, key := range tuple.Keys {
				entry.StorageKeys = append(entry.StorageKeys, [32]byte(key))
			}
			list = append(list, entry)
		}
		res.Type = types.AccessListTxType
		res.AccessList = &list
	}
	if tx.BlockNumber != nil {
		number, index, hash := hexutil.Uint64(*tx.BlockNumber), hexutil.Uint64(tx.Index), tx.BlockHash
		res.BlockNumber = &number
		res.TransactionIndex = &index
		res.BlockHash = &hash
	}
	return res
}

type rpcReceipt struct {
	TransactionHash   chain.Hash     `json:"transactionHash"`
	TransactionIndex  hexutil.Uint64 `json:"transactionIndex"`
	BlockHash         chain.Hash     `json:"blockHash"`
	BlockNumber       hexutil.Uint64 `json:"blockNumber"`
	From              chain.Address  `json:"from"`
	To                *chain.Address `json:"to"`
	ContractAddress   *chain.Address `json:"contractAddress"`
	GasUsed           hexutil.Uint64 `json:"gasUsed"`
	CumulativeGasUsed hexutil.Uint64 `json:"cumulativeGasUsed"`
	EffectiveGasPrice chain.Value    `json:"effectiveGasPrice"`
	Status            hexutil.Uint64 `json:"status"`
	Type              hexutil.Uint64 `json:"type"`
	Logs              []*rpcLog      `json:"logs"`
	LogsBloom         types.Bloom    `json:"logsBloom"`
}

func newRPCReceipt(receipt *devchain.Receipt) *rpcReceipt {
	res := &rpcReceipt{
		TransactionHash:   receipt.TransactionHash,
		TransactionIndex:  hexutil.Uint64(receipt.TransactionIndex),
		BlockHash:         receipt.BlockHash,
		BlockNumber:       hexutil.Uint64(receipt.BlockNumber),
		From:              receipt.From,
		To:                receipt.To,
		ContractAddress:   receipt.ContractAddress,
		GasUsed:           hexutil.Uint64(receipt.GasUsed),
		CumulativeGasUsed: hexutil.Uint64(receipt.CumulativeGasUsed),
		EffectiveGasPrice: receipt.EffectiveGasPrice,
		Status:            hexutil.Uint64(receipt.Status()),
		Logs:              newRPCLogs(receipt.Logs),
	}
	addToBloom(&res.LogsBloom, receipt.Logs)
	return res
}

type rpcLog struct {
	Address          chain.Address  `json:"address"`
	Topics           []chain.Hash   `json:"topics"`
	Data             hexutil.Bytes  `json:"data"`
	BlockNumber      hexutil.Uint64 `json:"blockNumber"`
	BlockHash        chain.Hash     `json:"blockHash"`
	TransactionHash  chain.Hash     `json:"transactionHash"`
	TransactionIndex hexutil.Uint64 `json:"transactionIndex"`
	LogIndex         hexutil.Uint64 `json:"logIndex"`
	Removed          bool           `json:"removed"`
}

func newRPCLogs(logs []*devchain.Log) []*rpcLog {
	res := make([]*rpcLog, 0, len(logs))
	for _, log := range logs {
		topics := log.Topics
		if topics == nil {
			topics = []chain.Hash{}
		}
		res = append(res, &rpcLog{
			Address:          log.Address,
			Topics:           topics,
			Data:             hexutil.Bytes(log.Data),
			BlockNumber:      hexutil.Uint64(log.BlockNumber),
			BlockHash:        log.BlockHash,
			TransactionHash:  log.TransactionHash,
			TransactionIndex: hexutil.Uint64(log.TransactionIndex),
			LogIndex:         hexutil.Uint64(log.Index),
		})
	}
	return res
}

func addToBloom(bloom *types.Bloom, logs []*devchain.Log) {
	for _, log := range logs {
		bloom.Add(log.Address[:])
		for _, topic := range log.Topics {
			bloom.Add(topic[:])
		}
	}
}
