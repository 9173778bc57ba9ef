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
	"context"
	"errors"
	"fmt"

	"github.com/Fantom-foundation/devchain/go/chain"
	"github.com/Fantom-foundation/devchain/go/devchain"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// ClientVersion is reported by web3_clientVersion.
const ClientVersion = "devchain/v1.0.0/go"

// StandardHandlers are the handlers of the Ethereum JSON-RPC API served by
// the node.
func StandardHandlers() []Handler {
	return []Handler{
		NewHandler("eth_chainId", chainID),
		NewHandler("net_version", netVersion),
		NewHandler("web3_clientVersion", clientVersion),
		NewHandler("web3_sha3", sha3),
		NewHandler("eth_accounts", noAccounts),
		NewHandler("eth_blockNumber", blockNumberHandler),
		NewHandler("eth_gasPrice", gasPrice),
		NewHandler("eth_getBalance", getBalance),
		NewHandler("eth_getCode", getCode),
		NewHandler("eth_getStorageAt", getStorageAt),
		NewHandler("eth_getTransactionCount", getTransactionCount),
		NewHandler("eth_getBlockByNumber", getBlockByNumber),
		NewHandler("eth_getBlockByHash", getBlockByHash),
		NewHandler("eth_getTransactionByHash", getTransactionByHash),
		NewHandler("eth_getTransactionReceipt", getTransactionReceipt),
		NewHandler("eth_getLogs", getLogs),
		NewHandler("eth_call", call),
		NewHandler("eth_estimateGas", estimateGas),
		NewHandler("eth_sendTransaction", sendTransaction),
	}
}

func chainID(_ context.Context, rc *Context, params Params) (any, error) {
	if err := params.Expect(0, 0); err != nil {
		return nil, err
	}
	return hexutil.Uint64(rc.Node.ChainID()), nil
}

func netVersion(_ context.Context, rc *Context, params Params) (any, error) {
	if err := params.Expect(0, 0); err != nil {
		return nil, err
	}
	return fmt.Sprint(rc.Node.ChainID()), nil
}

func clientVersion(context.Context, *Context, Params) (any, error) {
	return ClientVersion, nil
}

func sha3(_ context.Context, _ *Context, params Params) (any, error) {
	var data hexutil.Bytes
	if err := params.Expect(1, 1); err != nil {
		return nil, err
	}
	if err := params.Get(0, &data); err != nil {
		return nil, err
	}
	return hexutil.Bytes(crypto.Keccak256(data)), nil
}

// noAccounts serves eth_accounts of nodes without local accounts.
func noAccounts(context.Context, *Context, Params) (any, error) {
	return []chain.Address{}, nil
}

func blockNumberHandler(_ context.Context, rc *Context, params Params) (any, error) {
	if err := params.Expect(0, 0); err != nil {
		return nil, err
	}
	return hexutil.Uint64(rc.Node.BlockNumber()), nil
}

func gasPrice(_ context.Context, rc *Context, params Params) (any, error) {
	if err := params.Expect(0, 0); err != nil {
		return nil, err
	}
	return rc.Node.GasPrice(), nil
}

// addressAndBlock decodes the common parameter list [address, block?].
func addressAndBlock(params Params) (chain.Address, *uint64, error) {
	var addr chain.Address
	if err := params.Expect(1, 2); err != nil {
		return addr, nil, err
	}
	if err := params.Get(0, &addr); err != nil {
		return addr, nil, err
	}
	number, err := optionalBlock(params, 1)
	return addr, number, err
}

func getBalance(ctx context.Context, rc *Context, params Params) (any, error) {
	addr, number, err := addressAndBlock(params)
	if err != nil {
		return nil, err
	}
	return rc.Node.GetBalance(ctx, addr, number)
}

func getCode(_ context.Context, rc *Context, params Params) (any, error) {
	addr, number, err := addressAndBlock(params)
	if err != nil {
		return nil, err
	}
	code, err := rc.Node.GetCode(addr, number)
	if err != nil {
		return nil, err
	}
	return hexutil.Bytes(code), nil
}

func getStorageAt(_ context.Context, rc *Context, params Params) (any, error) {
	var addr chain.Address
	var key slot
	if err := params.Expect(2, 3); err != nil {
		return nil, err
	}
	if err := params.Get(0, &addr); err != nil {
		return nil, err
	}
	if err := params.Get(1, &key); err != nil {
		return nil, err
	}
	number, err := optionalBlock(params, 2)
	if err != nil {
		return nil, err
	}
	return rc.Node.GetStorageAt(addr, chain.Key(key), number)
}

func getTransactionCount(_ context.Context, rc *Context, params Params) (any, error) {
	var addr chain.Address
	if err := params.Expect(1, 2); err != nil {
		return nil, err
	}
	if err := params.Get(0, &addr); err != nil {
		return nil, err
	}
	var tag string
	if params.Len() > 1 && params.Get(1, &tag) == nil && tag == "pending" {
		nonce, err := rc.Node.PendingNonce(addr)
		return hexutil.Uint64(nonce), err
	}
	number, err := optionalBlock(params, 1)
	if err != nil {
		return nil, err
	}
	nonce, err := rc.Node.GetNonce(addr, number)
	return hexutil.Uint64(nonce), err
}

func getBlockByNumber(_ context.Context, rc *Context, params Params) (any, error) {
	var fullTx bool
	if err := params.Expect(1, 2); err != nil {
		return nil, err
	}
	number, err := optionalBlock(params, 0)
	if err != nil {
		return nil, err
	}
	if _, err := params.Optional(1, &fullTx); err != nil {
		return nil, err
	}
	block, err := rc.Node.BlockByNumber(number)
	if errors.Is(err, devchain.ErrUnknownBlock) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return newRPCBlock(block, fullTx, rc.Node.ChainID()), nil
}

func getBlockByHash(_ context.Context, rc *Context, params Params) (any, error) {
	var hash chain.Hash
	var fullTx bool
	if err := params.Expect(1, 2); err != nil {
		return nil, err
	}
	if err := params.Get(0, &hash); err != nil {
		return nil, err
	}
	if _, err := params.Optional(1, &fullTx); err != nil {
		return nil, err
	}
	block, err := rc.Node.BlockByHash(hash)
	if errors.Is(err, devchain.ErrUnknownBlock) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return newRPCBlock(block, fullTx, rc.Node.ChainID()), nil
}

func hashParam(params Params) (chain.Hash, error) {
	var hash chain.Hash
	if err := params.Expect(1, 1); err != nil {
		return hash, err
	}
	return hash, params.Get(0, &hash)
}

func getTransactionByHash(_ context.Context, rc *Context, params Params) (any, error) {
	hash, err := hashParam(params)
	if err != nil {
		return nil, err
	}
	tx, err := rc.Node.Transaction(hash)
	if errors.Is(err, devchain.ErrUnknownTransaction) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return newRPCTransaction(tx, rc.Node.ChainID()), nil
}

func getTransactionReceipt(_ context.Context, rc *Context, params Params) (any, error) {
	hash, err := hashParam(params)
	if err != nil {
		return nil, err
	}
	receipt, err := rc.Node.Receipt(hash)
	if errors.Is(err, devchain.ErrUnknownTransaction) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return newRPCReceipt(receipt), nil
}

func getLogs(_ context.Context, rc *Context, params Params) (any, error) {
	var filter filterQuery
	if err := params.Expect(1, 1); err != nil {
		return nil, err
	}
	if err := params.Get(0, &filter); err != nil {
		return nil, err
	}
	query, err := filter.toQuery()
	if err != nil {
		return nil, err
	}
	logs, err := rc.Node.GetLogs(query)
	if err != nil {
		return nil, err
	}
	return newRPCLogs(logs), nil
}

// callParams decodes the parameter list [transaction, block?].
func callParams(params Params, max int) (devchain.CallMsg, *uint64, error) {
	var args TransactionArgs
	if err := params.Expect(1, max); err != nil {
		return devchain.CallMsg{}, nil, err
	}
	if err := params.Get(0, &args); err != nil {
		return devchain.CallMsg{}, nil, err
	}
	msg, err := args.message()
	if err != nil {
		return msg, nil, err
	}
	number, err := optionalBlock(params, 1)
	return msg, number, err
}

func call(_ context.Context, rc *Context, params Params) (any, error) {
	msg, number, err := callParams(params, 3)
	if err != nil {
		return nil, err
	}
	var overrides stateOverride
	if _, err := params.Optional(2, &overrides); err != nil {
		return nil, err
	}
	receipt, err := rc.Node.Call(msg, number, overrides.toOverride())
	if err != nil {
		return nil, err
	}
	if !receipt.Success() {
		return nil, &devchain.ExecutionError{Outcome: receipt.Outcome, Reason: receipt.Reason, Output: receipt.Output}
	}
	return hexutil.Bytes(receipt.Output), nil
}

func estimateGas(_ context.Context, rc *Context, params Params) (any, error) {
	msg, number, err := callParams(params, 2)
	if err != nil {
		return nil, err
	}
	gas, err := rc.Node.EstimateGas(msg, number)
	if err != nil {
		return nil, err
	}
	return hexutil.Uint64(gas), nil
}

func sendTransaction(_ context.Context, rc *Context, params Params) (any, error) {
	var args TransactionArgs
	if err := params.Expect(1, 1); err != nil {
		return nil, err
	}
	if err := params.Get(0, &args); err != nil {
		return nil, err
	}
	if args.From == nil {
		return nil, invalidParams(`missing "from" field`)
	}
	msg, err := args.message()
	if err != nil {
		return nil, err
	}
	return rc.Node.SendTransaction(msg)
}
