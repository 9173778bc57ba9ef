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
	"github.com/ethereum/go-ethereum/common"
	geth "github.com/ethereum/go-ethereum/core/vm"
)

const errPrecompileOutOfGas = chain.ConstError("out of gas in precompiled contract")

// handlePrecompiled runs the precompiled contract at address, if there is
// one in the given revision. The second result is false otherwise.
func handlePrecompiled(revision chain.Revision, input chain.Data, address chain.Address, gas chain.Gas) (chain.Result, bool) {
	contract, ok := precompiledContract(address, revision)
	if !ok {
		return chain.Result{}, false
	}
	gasCost := contract.RequiredGas(input)
	if gasCost > uint64(gas) {
		return failed(0, errPrecompileOutOfGas), true
	}
	output, err := contract.Run(input)
	if err != nil {
		// precompiled contracts only return errors on invalid input
		return failed(0, err), true
	}
	return chain.Result{
		Outcome: chain.OutcomeSuccess,
		Output:  output,
		GasLeft: gas - chain.Gas(gasCost),
	}, true
}

func isPrecompiled(address chain.Address, revision chain.Revision) bool {
	_, ok := precompiledContract(address, revision)
	return ok
}

// PrecompiledAddresses lists the addresses of all precompiled contracts of
// the given revision. They are warm from the start of every transaction.
func PrecompiledAddresses(revision chain.Revision) []chain.Address {
	precompiles := precompiledContracts(revision)
	res := make([]chain.Address, 0, len(precompiles))
	for address := range precompiles {
		res = append(res, chain.Address(address))
	}
	return res
}

func precompiledContract(address chain.Address, revision chain.Revision) (geth.PrecompiledContract, bool) {
	contract, ok := precompiledContracts(revision)[common.Address(address)]
	return contract, ok
}

func precompiledContracts(revision chain.Revision) map[common.Address]geth.PrecompiledContract {
	switch {
	case revision >= chain.R13_Cancun:
		return geth.PrecompiledContractsCancun
	case revision >= chain.R09_Berlin:
		return geth.PrecompiledContractsBerlin
	default:
		return geth.PrecompiledContractsIstanbul
	}
}
