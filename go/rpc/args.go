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
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/Fantom-foundation/devchain/go/chain"
	"github.com/Fantom-foundation/devchain/go/devchain"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
)

// blockNumber converts a block tag into the block number understood by
// the node, nil for the latest block.
func blockNumber(number gethrpc.BlockNumber) *uint64 {
	// latest, pending, safe and finalized are all the head of the chain in
	// block ranges
	if number < 0 {
		return nil
	}
	res := uint64(number)
	return &res
}

// optionalBlock decodes an optional block tag at the given position. A
// missing tag selects the latest block, the pending tag the state after the
// pending transactions.
func optionalBlock(params Params, i int) (*uint64, error) {
	var number gethrpc.BlockNumber
	found, err := params.Optional(i, &number)
	if err != nil || !found {
		return nil, err
	}
	if number == gethrpc.PendingBlockNumber {
		pending := devchain.PendingBlock
		return &pending, nil
	}
	return blockNumber(number), nil
}

// quantity is an unsigned integer given either as JSON number or as hex or
// decimal string.
type quantity uint64

func (q *quantity) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
			v, err := hexutil.DecodeUint64(s)
			*q = quantity(v)
			return err
		}
		data = []byte(s)
	}
	v, err := strconv.ParseUint(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid quantity %s", data)
	}
	*q = quantity(v)
	return nil
}

// slot is a storage key given as hex string of up to 32 bytes. Leading
// zeros may be omitted.
type slot chain.Key

func (s *slot) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	if !strings.HasPrefix(str, "0x") {
		return fmt.Errorf("storage slot %q lacks 0x prefix", str)
	}
	str = str[2:]
	if len(str) > 64 {
		return fmt.Errorf("storage slot 0x%s exceeds 32 bytes", str)
	}
	decoded, err := hex.DecodeString(strings.Repeat("0", 64-len(str)) + str)
	if err != nil {
		return fmt.Errorf("invalid storage slot: %w", err)
	}
	copy(s[:], decoded)
	return nil
}

// TransactionArgs are the arguments of transactions and calls.
type TransactionArgs struct {
	From         *chain.Address    `json:"from"`
	To           *chain.Address    `json:"to"`
	Gas          *hexutil.Uint64   `json:"gas"`
	GasPrice     *chain.Value      `json:"gasPrice"`
	MaxFeePerGas *chain.Value      `json:"maxFeePerGas"`
	Value        *chain.Value      `json:"value"`
	Nonce        *hexutil.Uint64   `json:"nonce"`
	Data         *hexutil.Bytes    `json:"data"`
	Input        *hexutil.Bytes    `json:"input"`
	AccessList   *types.AccessList `json:"accessList"`
}

func (args *TransactionArgs) message() (devchain.CallMsg, error) {
	msg := devchain.CallMsg{
		From:     args.From,
		To:       args.To,
		GasPrice: args.GasPrice,
	}
	if args.Data != nil && args.Input != nil && !bytesEqual(*args.Data, *args.Input) {
		return msg, invalidParams(`both "data" and "input" are set and not equal`)
	}
	if args.Input != nil {
		msg.Input = chain.Data(*args.Input)
	} else if args.Data != nil {
		msg.Input = chain.Data(*args.Data)
	}
	if args.Gas != nil {
		gas := uint64(*args.Gas)
		msg.Gas = &gas
	}
	if msg.GasPrice == nil {
		msg.GasPrice = args.MaxFeePerGas
	}
	if args.Value != nil {
		msg.Value = *args.Value
	}
	if args.Nonce != nil {
		nonce := uint64(*args.Nonce)
		msg.Nonce = &nonce
	}
	if args.AccessList != nil {
		for _, tuple := range *args.AccessList {
			keys := make([]chain.Key, 0, len(tuple.StorageKeys))
			for _, key := range tuple.StorageKeys {
				keys = append(keys, chain.Key(key))
			}
			msg.AccessList = append(msg.AccessList, chain.AccessTuple{
				Address: chain.Address(tuple.Address),
				Keys:    keys,
			})
		}
	}
	return msg, nil
}

func bytesEqual(a, b hexutil.Bytes) bool {
	return string(a) == string(b)
}

// overrideAccount is the JSON form of an account override of eth_call and
// debug_traceCall.
type overrideAccount struct {
	Nonce     *hexutil.Uint64          `json:"nonce"`
	Code      *hexutil.Bytes           `json:"code"`
	Balance   *chain.Value             `json:"balance"`
	State     map[chain.Key]chain.Word `json:"state"`
	StateDiff map[chain.Key]chain.Word `json:"stateDiff"`
}

type stateOverride map[chain.Address]overrideAccount

func (o stateOverride) toOverride() devchain.StateOverride {
	if len(o) == 0 {
		return nil
	}
	res := make(devchain.StateOverride, len(o))
	for addr, account := range o {
		override := devchain.OverrideAccount{
			Balance:   account.Balance,
			State:     account.State,
			StateDiff: account.StateDiff,
		}
		if account.Nonce != nil {
			nonce := uint64(*account.Nonce)
			override.Nonce = &nonce
		}
		if account.Code != nil {
			code := chain.Code(*account.Code)
			override.Code = &code
		}
		res[addr] = override
	}
	return res
}

// filterQuery is the JSON form of the filter of eth_getLogs.
type filterQuery struct {
	BlockHash *chain.Hash          `json:"blockHash"`
	FromBlock *gethrpc.BlockNumber `json:"fromBlock"`
	ToBlock   *gethrpc.BlockNumber `json:"toBlock"`
	Addresses json.RawMessage      `json:"address"`
	Topics    []json.RawMessage    `json:"topics"`
}

func (q *filterQuery) toQuery() (devchain.FilterQuery, error) {
	res := devchain.FilterQuery{BlockHash: q.BlockHash}
	if q.BlockHash != nil && (q.FromBlock != nil || q.ToBlock != nil) {
		return res, invalidParams("cannot specify both blockHash and fromBlock/toBlock")
	}
	if q.FromBlock != nil {
		res.FromBlock = blockNumber(*q.FromBlock)
	}
	if q.ToBlock != nil {
		res.ToBlock = blockNumber(*q.ToBlock)
	}
	if err := decodeOneOrMany(q.Addresses, &res.Addresses); err != nil {
		return res, invalidParams("invalid address filter: %v", err)
	}
	for i, raw := range q.Topics {
		var topics []chain.Hash
		if err := decodeOneOrMany(raw, &topics); err != nil {
			return res, invalidParams("invalid topic filter %d: %v", i, err)
		}
		res.Topics = append(res.Topics, topics)
	}
	return res, nil
}

// decodeOneOrMany decodes null, a single value or an array of values.
func decodeOneOrMany[T any](raw json.RawMessage, res *[]T) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if raw[0] == '[' {
		return json.Unmarshal(raw, res)
	}
	var single T
	if err := json.Unmarshal(raw, &single); err != nil {
		return err
	}
	*res = append(*res, single)
	return nil
}
