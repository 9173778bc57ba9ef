// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package devvm

import (
	"github.com/Fantom-foundation/devchain/go/chain"
	"github.com/Fantom-foundation/devchain/go/chain/vm"
)

const (
	CallNewAccountGas    chain.Gas = 25000 // paid for value transfers to accounts not existing before
	CallValueTransferGas chain.Gas = 9000  // paid for non-zero value transfers
	CallStipend          chain.Gas = 2300  // free gas given to the callee of a value transfer

	ColdSloadCostEIP2929         chain.Gas = 2100
	ColdAccountAccessCostEIP2929 chain.Gas = 2600
	WarmStorageReadCostEIP2929   chain.Gas = 100

	SloadGasEIP2200        chain.Gas = 800
	SstoreSentryGasEIP2200 chain.Gas = 2300 // minimum gas required to be present for SSTORE, not consumed
	SstoreSetGasEIP2200    chain.Gas = 20000
	SstoreResetGasEIP2200  chain.Gas = 5000

	SstoreClearsScheduleRefundEIP2200 chain.Gas = 15000
	SstoreClearsScheduleRefundEIP3529 chain.Gas = 4800

	CreateBySelfdestructGas chain.Gas = 25000
	SelfdestructRefundGas   chain.Gas = 24000
)

// staticGasPrices lists the constant part of the gas costs of all
// instructions for a revision. Dynamic parts are charged by the instructions.
type staticGasPrices [256]chain.Gas

var (
	staticGasPricesIstanbul = newStaticGasPrices(chain.R07_Istanbul)
	staticGasPricesBerlin   = newStaticGasPrices(chain.R09_Berlin)
)

func getStaticGasPrices(revision chain.Revision) *staticGasPrices {
	if revision >= chain.R09_Berlin {
		return &staticGasPricesBerlin
	}
	return &staticGasPricesIstanbul
}

func newStaticGasPrices(revision chain.Revision) staticGasPrices {
	var res staticGasPrices
	for i := range res {
		res[i] = getStaticGasPrice(vm.OpCode(i), revision)
	}
	return res
}

func getStaticGasPrice(op vm.OpCode, revision chain.Revision) chain.Gas {
	// Since Berlin, account and slot accesses are charged dynamically as
	// warm or cold accesses.
	if revision >= chain.R09_Berlin {
		switch op {
		case vm.SLOAD, vm.BALANCE, vm.EXTCODESIZE, vm.EXTCODECOPY, vm.EXTCODEHASH,
			vm.CALL, vm.CALLCODE, vm.DELEGATECALL, vm.STATICCALL:
			return 0
		}
	}

	switch {
	case vm.PUSH1 <= op && op <= vm.PUSH32,
		vm.DUP1 <= op && op <= vm.DUP16,
		vm.SWAP1 <= op && op <= vm.SWAP16,
		vm.LT <= op && op <= vm.SAR:
		return 3
	case vm.COINBASE <= op && op <= vm.CHAINID:
		return 2
	case vm.LOG0 <= op && op <= vm.LOG4:
		return 375 * chain.Gas(op-vm.LOG0+1)
	}

	switch op {
	case vm.STOP, vm.RETURN, vm.REVERT, vm.SSTORE, vm.INVALID:
		return 0
	case vm.JUMPDEST:
		return 1
	case vm.ADDRESS, vm.ORIGIN, vm.CALLER, vm.CALLVALUE, vm.CALLDATASIZE,
		vm.CODESIZE, vm.GASPRICE, vm.RETURNDATASIZE, vm.POP, vm.PC, vm.MSIZE,
		vm.GAS, vm.BASEFEE, vm.BLOBBASEFEE, vm.PUSH0:
		return 2
	case vm.ADD, vm.SUB, vm.CALLDATALOAD, vm.CALLDATACOPY, vm.CODECOPY,
		vm.RETURNDATACOPY, vm.MLOAD, vm.MSTORE, vm.MSTORE8, vm.MCOPY, vm.BLOBHASH:
		return 3
	case vm.MUL, vm.DIV, vm.SDIV, vm.MOD, vm.SMOD, vm.SIGNEXTEND, vm.SELFBALANCE:
		return 5
	case vm.ADDMOD, vm.MULMOD, vm.JUMP:
		return 8
	case vm.EXP, vm.JUMPI:
		return 10
	case vm.BLOCKHASH:
		return 20
	case vm.SHA3:
		return 30
	case vm.TLOAD, vm.TSTORE:
		return 100
	case vm.BALANCE, vm.EXTCODESIZE, vm.EXTCODECOPY, vm.EXTCODEHASH,
		vm.CALL, vm.CALLCODE, vm.DELEGATECALL, vm.STATICCALL:
		return 700
	case vm.SLOAD:
		return SloadGasEIP2200
	case vm.SELFDESTRUCT:
		return 5000
	case vm.CREATE, vm.CREATE2:
		return 32000
	}
	return 0
}

// introducedIn returns the first revision supporting the given instruction.
func introducedIn(op vm.OpCode) chain.Revision {
	switch op {
	case vm.BASEFEE:
		return chain.R10_London
	case vm.PUSH0:
		return chain.R12_Shanghai
	case vm.TLOAD, vm.TSTORE, vm.MCOPY, vm.BLOBHASH, vm.BLOBBASEFEE:
		return chain.R13_Cancun
	}
	return chain.R07_Istanbul
}

func getAccessCost(status chain.AccessStatus) chain.Gas {
	if status == chain.ColdAccess {
		return ColdAccountAccessCostEIP2929
	}
	return WarmStorageReadCostEIP2929
}

// getDynamicCostsForSstore returns the costs of an SSTORE with the given
// effect, excluding the cold access surcharge.
func getDynamicCostsForSstore(revision chain.Revision, status chain.StorageStatus) chain.Gas {
	if revision < chain.R09_Berlin {
		switch status {
		case chain.StorageAdded:
			return SstoreSetGasEIP2200
		case chain.StorageDeleted, chain.StorageModified:
			return SstoreResetGasEIP2200
		}
		return SloadGasEIP2200
	}
	switch status {
	case chain.StorageAdded:
		return SstoreSetGasEIP2200
	case chain.StorageDeleted, chain.StorageModified:
		return SstoreResetGasEIP2200 - ColdSloadCostEIP2929
	}
	return WarmStorageReadCostEIP2929
}

// getRefundForSstore returns the refund, possibly negative, granted for an
// SSTORE with the given effect.
func getRefundForSstore(revision chain.Revision, status chain.StorageStatus) chain.Gas {
	clearing := SstoreClearsScheduleRefundEIP2200
	if revision >= chain.R10_London {
		clearing = SstoreClearsScheduleRefundEIP3529
	}
	read := SloadGasEIP2200
	reset := SstoreResetGasEIP2200
	if revision >= chain.R09_Berlin {
		read = WarmStorageReadCostEIP2929
		reset = SstoreResetGasEIP2200 - ColdSloadCostEIP2929
	}

	switch status {
	case chain.StorageDeleted, chain.StorageModifiedDeleted:
		return clearing
	case chain.StorageDeletedAdded:
		return -clearing
	case chain.StorageDeletedRestored:
		return reset - read - clearing
	case chain.StorageAddedDeleted:
		return SstoreSetGasEIP2200 - read
	case chain.StorageModifiedRestored:
		return reset - read
	}
	return 0
}
