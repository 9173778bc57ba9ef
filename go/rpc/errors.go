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
	"errors"
	"fmt"

	"github.com/Fantom-foundation/devchain/go/chain"
	"github.com/Fantom-foundation/devchain/go/devchain"
	"github.com/Fantom-foundation/devchain/go/interpreter/devvm"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Error codes of JSON-RPC responses.
const (
	CodeParseError        = -32700
	CodeInvalidRequest    = -32600
	CodeMethodNotFound    = -32601
	CodeInvalidParams     = -32602
	CodeInternal          = -32603
	CodeServer            = -32000
	CodeExecutionReverted = 3
)

// Error is the error object of a JSON-RPC response.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return e.Message
}

func invalidParams(format string, args ...any) *Error {
	return &Error{Code: CodeInvalidParams, Message: fmt.Sprintf(format, args...)}
}

func methodNotFound(method string) *Error {
	return &Error{Code: CodeMethodNotFound, Message: fmt.Sprintf("the method %s does not exist/is not available", method)}
}

func internalError() *Error {
	return &Error{Code: CodeInternal, Message: "internal error"}
}

// toError translates errors reported by handlers into JSON-RPC errors.
func toError(err error) *Error {
	var rpcErr *Error
	if errors.As(err, &rpcErr) {
		return rpcErr
	}
	var execErr *devchain.ExecutionError
	if errors.As(err, &execErr) {
		if execErr.Outcome != chain.OutcomeRevert {
			if devvm.IsOutOfGas(execErr.Reason) {
				return &Error{Code: CodeServer, Message: "out of gas"}
			}
			return &Error{Code: CodeServer, Message: execErr.Error()}
		}
		message := execErr.Error()
		if reason, err := abi.UnpackRevert(execErr.Output); err == nil {
			message += ": " + reason
		}
		return &Error{Code: CodeExecutionReverted, Message: message, Data: hexutil.Bytes(execErr.Output)}
	}
	var snapshotErr *devchain.InvalidSnapshotError
	if errors.As(err, &snapshotErr) {
		return &Error{Code: CodeInvalidParams, Message: snapshotErr.Error()}
	}
	return &Error{Code: CodeServer, Message: err.Error()}
}
