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
	"fmt"

	"github.com/Fantom-foundation/devchain/go/chain"
	"github.com/Fantom-foundation/devchain/go/devchain"
)

// ContractAddress is the address examples are installed at.
var ContractAddress = chain.Address{0xe0, 0xe0}

// Example is a contract with an entry point of signature (int)->int and a
// reference implementation of the same function in Go.
type Example struct {
	Name      string
	Code      chain.Code
	function  uint32        // selector of the entry point, ignored by hand written code
	reference func(int) int // computes the result expected from the contract
}

type Result struct {
	Result  int
	GasUsed uint64
}

// RunOn calls the example on the latest state of the given chain. The code
// is installed through a state override, the chain itself is not modified.
func (e *Example) RunOn(node *devchain.Node, argument int) (Result, error) {
	code := e.Code
	msg := devchain.CallMsg{
		To:    &ContractAddress,
		Input: encodeArgument(e.function, argument),
	}
	overrides := devchain.StateOverride{
		ContractAddress: {Code: &code},
	}
	receipt, err := node.Call(msg, nil, overrides)
	if err != nil {
		return Result{}, err
	}
	if !receipt.Success() {
		return Result{}, fmt.Errorf("example %s did not succeed: %v", e.Name, receipt.Outcome)
	}
	result, err := decodeOutput(receipt.Output)
	if err != nil {
		return Result{}, err
	}
	return Result{Result: result, GasUsed: uint64(receipt.GasUsed)}, nil
}

// RunReference computes the result expected from the contract.
func (e *Example) RunReference(argument int) int {
	return e.reference(argument)
}

// All returns every available example.
func All() []Example {
	return []Example{
		GetIncrementExample(),
		GetStaticOverheadExample(),
		GetSha3Example(),
		GetArithmeticExample(),
		GetGasBurnerExample(),
		GetJumpdestAnalysisExample(),
		GetStopAnalysisExample(),
		GetPush1AnalysisExample(),
		GetPush32AnalysisExample(),
	}
}

// encodeArgument produces ABI encoded call data: the big-endian function
// selector followed by the argument padded to 32 bytes.
func encodeArgument(function uint32, arg int) chain.Data {
	data := make(chain.Data, 4+32)
	data[0] = byte(function >> 24)
	data[1] = byte(function >> 16)
	data[2] = byte(function >> 8)
	data[3] = byte(function)

	data[32] = byte(arg >> 24)
	data[33] = byte(arg >> 16)
	data[34] = byte(arg >> 8)
	data[35] = byte(arg)
	return data
}

func decodeOutput(output chain.Data) (int, error) {
	if len(output) != 32 {
		return 0, fmt.Errorf("unexpected length of output; wanted 32, got %d", len(output))
	}
	return int(output[28])<<24 | int(output[29])<<16 | int(output[30])<<8 | int(output[31]), nil
}
