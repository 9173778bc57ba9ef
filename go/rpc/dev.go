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
	"strings"

	"github.com/Fantom-foundation/devchain/go/accounts"
	"github.com/Fantom-foundation/devchain/go/chain"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// DevHandlers are the handlers controlling the development chain. Their
// names follow Hardhat; Anvil names are registered as aliases.
func DevHandlers() []Handler {
	return []Handler{
		NewHandler("evm_mine", mine),
		NewHandler("evm_snapshot", snapshot),
		NewHandler("evm_revert", revert),
		NewHandler("evm_increaseTime", increaseTime),
		NewHandler("evm_setNextBlockTimestamp", setNextBlockTimestamp),
		NewHandler("evm_setAutomine", setAutomine),
		NewHandler("hardhat_getAutomine", getAutomine),
		NewHandler("hardhat_setBalance", setBalance),
		NewHandler("hardhat_setCode", setCode),
		NewHandler("hardhat_setNonce", setNonce),
		NewHandler("hardhat_setStorageAt", setStorageAt),
		NewHandler("hardhat_setCoinbase", setCoinbase),
		NewHandler("hardhat_setNextBlockBaseFeePerGas", setNextBlockBaseFee),
		NewHandler("hardhat_impersonateAccount", impersonateAccount),
		NewHandler("hardhat_stopImpersonatingAccount", stopImpersonatingAccount),
		NewHandler("anvil_setBlockTimestampInterval", setBlockTimestampInterval),
		NewHandler("anvil_removeBlockTimestampInterval", removeBlockTimestampInterval),
	}
}

// devAliases maps alternative method names to the names of DevHandlers.
var devAliases = map[string]string{
	"hardhat_mine":                    "evm_mine",
	"anvil_mine":                      "evm_mine",
	"anvil_snapshot":                  "evm_snapshot",
	"anvil_revert":                    "evm_revert",
	"anvil_increaseTime":              "evm_increaseTime",
	"anvil_setNextBlockTimestamp":     "evm_setNextBlockTimestamp",
	"anvil_setAutomine":               "evm_setAutomine",
	"anvil_getAutomine":               "hardhat_getAutomine",
	"anvil_setBalance":                "hardhat_setBalance",
	"anvil_setCode":                   "hardhat_setCode",
	"anvil_setNonce":                  "hardhat_setNonce",
	"anvil_setStorageAt":              "hardhat_setStorageAt",
	"anvil_setCoinbase":               "hardhat_setCoinbase",
	"anvil_setNextBlockBaseFeePerGas": "hardhat_setNextBlockBaseFeePerGas",
	"anvil_impersonateAccount":        "hardhat_impersonateAccount",
	"anvil_stopImpersonatingAccount":  "hardhat_stopImpersonatingAccount",
}

// NewDevRegistry creates a registry serving the standard API, the
// development chain controls, and the debug API.
func NewDevRegistry() (*Registry, error) {
	registry := NewRegistry()
	for _, handlers := range [][]Handler{StandardHandlers(), DevHandlers(), DebugHandlers()} {
		for _, handler := range handlers {
			if err := registry.Register(handler); err != nil {
				return nil, err
			}
		}
	}
	if err := registry.Override(NewHandler("eth_accounts", localAccounts)); err != nil {
		return nil, err
	}
	for alias, canonical := range devAliases {
		if err := registry.RegisterAlias(alias, canonical); err != nil {
			return nil, err
		}
	}
	if err := registry.Register(NewHandler("rpc_modules", modules(registry))); err != nil {
		return nil, err
	}
	return registry, nil
}

// modules lists the API namespaces of the given registry.
func modules(registry *Registry) func(context.Context, *Context, Params) (any, error) {
	return func(context.Context, *Context, Params) (any, error) {
		res := map[string]string{}
		for _, method := range registry.Methods() {
			if namespace, _, found := strings.Cut(method, "_"); found {
				res[namespace] = "1.0"
			}
		}
		return res, nil
	}
}

func localAccounts(_ context.Context, rc *Context, params Params) (any, error) {
	if err := params.Expect(0, 0); err != nil {
		return nil, err
	}
	manager, err := Resolve[*accounts.Manager](rc)
	if err != nil {
		return nil, err
	}
	return manager.Accounts(), nil
}

// mine produces blocks. Without parameters, a single block is produced in
// manual mining mode while in automine mode the request is acknowledged
// without producing a block. An explicit block count and interval are
// always honored.
func mine(_ context.Context, rc *Context, params Params) (any, error) {
	var blocks, interval quantity
	if err := params.Expect(0, 2); err != nil {
		return nil, err
	}
	count, err := params.Optional(0, &blocks)
	if err != nil {
		return nil, err
	}
	if _, err := params.Optional(1, &interval); err != nil {
		return nil, err
	}
	if !count {
		if rc.Node.Automine() {
			return "0x0", nil
		}
		blocks = 1
	}
	rc.Node.Mine(uint64(blocks), uint64(interval))
	return "0x0", nil
}

func snapshot(_ context.Context, rc *Context, params Params) (any, error) {
	if err := params.Expect(0, 0); err != nil {
		return nil, err
	}
	return hexutil.Uint64(rc.Node.Snapshot()), nil
}

func revert(_ context.Context, rc *Context, params Params) (any, error) {
	var id quantity
	if err := params.Expect(1, 1); err != nil {
		return nil, err
	}
	if err := params.Get(0, &id); err != nil {
		return nil, err
	}
	if err := rc.Node.Revert(uint64(id)); err != nil {
		return nil, err
	}
	return true, nil
}

func increaseTime(_ context.Context, rc *Context, params Params) (any, error) {
	var seconds quantity
	if err := params.Expect(1, 1); err != nil {
		return nil, err
	}
	if err := params.Get(0, &seconds); err != nil {
		return nil, err
	}
	return rc.Node.IncreaseTime(uint64(seconds)), nil
}

func setNextBlockTimestamp(_ context.Context, rc *Context, params Params) (any, error) {
	var timestamp quantity
	if err := params.Expect(1, 1); err != nil {
		return nil, err
	}
	if err := params.Get(0, &timestamp); err != nil {
		return nil, err
	}
	if err := rc.Node.SetNextBlockTimestamp(uint64(timestamp)); err != nil {
		return nil, invalidParams("%v", err)
	}
	return nil, nil
}

func setAutomine(_ context.Context, rc *Context, params Params) (any, error) {
	var enabled bool
	if err := params.Expect(1, 1); err != nil {
		return nil, err
	}
	if err := params.Get(0, &enabled); err != nil {
		return nil, err
	}
	rc.Node.SetAutomine(enabled)
	return true, nil
}

func getAutomine(_ context.Context, rc *Context, params Params) (any, error) {
	if err := params.Expect(0, 0); err != nil {
		return nil, err
	}
	return rc.Node.Automine(), nil
}

func setBalance(_ context.Context, rc *Context, params Params) (any, error) {
	var addr chain.Address
	var balance chain.Value
	if err := params.Expect(2, 2); err != nil {
		return nil, err
	}
	if err := params.Get(0, &addr); err != nil {
		return nil, err
	}
	if err := params.Get(1, &balance); err != nil {
		return nil, err
	}
	return true, rc.Node.SetBalance(addr, balance)
}

func setCode(_ context.Context, rc *Context, params Params) (any, error) {
	var addr chain.Address
	var code hexutil.Bytes
	if err := params.Expect(2, 2); err != nil {
		return nil, err
	}
	if err := params.Get(0, &addr); err != nil {
		return nil, err
	}
	if err := params.Get(1, &code); err != nil {
		return nil, err
	}
	return true, rc.Node.SetCode(addr, chain.Code(code))
}

func setNonce(_ context.Context, rc *Context, params Params) (any, error) {
	var addr chain.Address
	var nonce quantity
	if err := params.Expect(2, 2); err != nil {
		return nil, err
	}
	if err := params.Get(0, &addr); err != nil {
		return nil, err
	}
	if err := params.Get(1, &nonce); err != nil {
		return nil, err
	}
	return true, rc.Node.SetNonce(addr, uint64(nonce))
}

func setStorageAt(_ context.Context, rc *Context, params Params) (any, error) {
	var addr chain.Address
	var key slot
	var value chain.Word
	if err := params.Expect(3, 3); err != nil {
		return nil, err
	}
	if err := params.Get(0, &addr); err != nil {
		return nil, err
	}
	if err := params.Get(1, &key); err != nil {
		return nil, err
	}
	if err := params.Get(2, &value); err != nil {
		return nil, err
	}
	return true, rc.Node.SetStorageAt(addr, chain.Key(key), value)
}

func setCoinbase(_ context.Context, rc *Context, params Params) (any, error) {
	var addr chain.Address
	if err := params.Expect(1, 1); err != nil {
		return nil, err
	}
	if err := params.Get(0, &addr); err != nil {
		return nil, err
	}
	rc.Node.SetCoinbase(addr)
	return true, nil
}

func setNextBlockBaseFee(_ context.Context, rc *Context, params Params) (any, error) {
	var fee chain.Value
	if err := params.Expect(1, 1); err != nil {
		return nil, err
	}
	if err := params.Get(0, &fee); err != nil {
		return nil, err
	}
	rc.Node.SetNextBlockBaseFee(fee)
	return true, nil
}

func impersonationParams(rc *Context, params Params) (*accounts.Manager, chain.Address, error) {
	var addr chain.Address
	if err := params.Expect(1, 1); err != nil {
		return nil, addr, err
	}
	if err := params.Get(0, &addr); err != nil {
		return nil, addr, err
	}
	manager, err := Resolve[*accounts.Manager](rc)
	return manager, addr, err
}

func impersonateAccount(_ context.Context, rc *Context, params Params) (any, error) {
	manager, addr, err := impersonationParams(rc, params)
	if err != nil {
		return nil, err
	}
	manager.Impersonate(addr)
	return true, nil
}

func stopImpersonatingAccount(_ context.Context, rc *Context, params Params) (any, error) {
	manager, addr, err := impersonationParams(rc, params)
	if err != nil {
		return nil, err
	}
	return manager.StopImpersonating(addr), nil
}

func setBlockTimestampInterval(_ context.Context, rc *Context, params Params) (any, error) {
	var seconds quantity
	if err := params.Expect(1, 1); err != nil {
		return nil, err
	}
	if err := params.Get(0, &seconds); err != nil {
		return nil, err
	}
	rc.Node.SetBlockTimestampInterval(uint64(seconds))
	return nil, nil
}

func removeBlockTimestampInterval(_ context.Context, rc *Context, params Params) (any, error) {
	if err := params.Expect(0, 0); err != nil {
		return nil, err
	}
	return rc.Node.RemoveBlockTimestampInterval(), nil
}
