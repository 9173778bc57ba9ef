// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package examples

import (
	"github.com/Fantom-foundation/devchain/go/chain"
	"github.com/Fantom-foundation/devchain/go/chain/vm"
	"github.com/ethereum/go-ethereum/crypto"
)

// maxCodeSize is the size limit of deployed contracts.
const maxCodeSize = 0x6000

// returnWord returns the word stored at memory offset 0.
var returnWord = []byte{
	byte(vm.PUSH1), 32,
	byte(vm.PUSH1), 0,
	byte(vm.RETURN),
}

func GetIncrementExample() Example {
	code := append([]byte{
		byte(vm.PUSH1), 4,
		byte(vm.CALLDATALOAD),
		byte(vm.PUSH1), 1,
		byte(vm.ADD),
		byte(vm.PUSH1), 0,
		byte(vm.MSTORE),
	}, returnWord...)
	return Example{
		Name:      "increment",
		Code:      code,
		reference: func(x int) int { return x + 1 },
	}
}

// GetStaticOverheadExample provides the shortest contract touching call
// data, memory and output.
func GetStaticOverheadExample() Example {
	code := []byte{
		byte(vm.PUSH1), 4,
		byte(vm.PUSH1), 32,
		byte(vm.PUSH1), 28,
		byte(vm.CALLDATACOPY), // the low 4 bytes of the argument into memory[28:32]
		byte(vm.PUSH1), 32,
		byte(vm.PUSH1), 0,
		byte(vm.RETURN),
	}
	return Example{
		Name:      "static_overhead",
		Code:      code,
		reference: identity,
	}
}

// GetSha3Example provides a loop hashing the first memory word x times and
// returning the last byte of the result.
func GetSha3Example() Example {
	code := []byte{
		byte(vm.PUSH1), 4,
		byte(vm.CALLDATALOAD),

		// loop header at 3
		byte(vm.JUMPDEST),
		byte(vm.DUP1),
		byte(vm.ISZERO),
		byte(vm.PUSH1), 24,
		byte(vm.JUMPI),

		byte(vm.PUSH1), 32,
		byte(vm.PUSH1), 0,
		byte(vm.SHA3),
		byte(vm.PUSH1), 0,
		byte(vm.MSTORE),

		byte(vm.PUSH1), 1,
		byte(vm.SWAP1),
		byte(vm.SUB),
		byte(vm.PUSH1), 3,
		byte(vm.JUMP),

		// loop exit at 24
		byte(vm.JUMPDEST),
		byte(vm.PUSH1), 0,
		byte(vm.MLOAD),
		byte(vm.PUSH1), 255,
		byte(vm.AND),
		byte(vm.PUSH1), 0,
		byte(vm.MSTORE),
	}
	return Example{
		Name:      "sha3",
		Code:      append(code, returnWord...),
		reference: sha3Loop,
	}
}

func sha3Loop(x int) int {
	var hash chain.Hash
	for i := 0; i < x; i++ {
		hash = chain.Hash(crypto.Keccak256Hash(hash[:]))
	}
	return int(hash[31])
}

// GenerateAnalysisCode produces a contract of maximum size consisting mostly
// of the given filler, which is jumped over. It returns its argument.
// Running it is dominated by the jump destination analysis of the code.
func GenerateAnalysisCode(filler []byte) []byte {
	head := []byte{
		byte(vm.PUSH1), 4,
		byte(vm.CALLDATALOAD),
		byte(vm.PUSH1), 0,
		byte(vm.MSTORE),
		byte(vm.PUSH2), 0, 0, // patched below
		byte(vm.JUMP),
	}
	tail := append([]byte{byte(vm.JUMPDEST)}, returnWord...)

	repetitions := (maxCodeSize - len(head) - len(tail)) / len(filler)
	code := make([]byte, 0, maxCodeSize)
	code = append(code, head...)
	for i := 0; i < repetitions; i++ {
		code = append(code, filler...)
	}
	target := len(code)
	code[7] = byte(target >> 8)
	code[8] = byte(target)
	return append(code, tail...)
}

func analysisExample(name string, filler ...byte) Example {
	return Example{
		Name:      name,
		Code:      GenerateAnalysisCode(filler),
		reference: identity,
	}
}

func GetJumpdestAnalysisExample() Example {
	return analysisExample("jumpdest", byte(vm.JUMPDEST))
}

func GetStopAnalysisExample() Example {
	return analysisExample("stop", byte(vm.STOP))
}

func GetPush1AnalysisExample() Example {
	return analysisExample("push1", byte(vm.PUSH1), 0)
}

func GetPush32AnalysisExample() Example {
	return analysisExample("push32", append([]byte{byte(vm.PUSH32)}, make([]byte, 32)...)...)
}
