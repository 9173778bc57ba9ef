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
	"bytes"
	"encoding/json"
)

const version = "2.0"

// Request is a JSON-RPC request. Requests without id are notifications
// and receive no response.
type Request struct {
	Version string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

func (r *Request) isNotification() bool {
	return r.ID == nil
}

// Response is a JSON-RPC response carrying either a result or an error.
type Response struct {
	Version string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

func errorResponse(id json.RawMessage, err *Error) *Response {
	if id == nil {
		id = json.RawMessage("null")
	}
	return &Response{Version: version, ID: id, Error: err}
}

// Params are the positional parameters of a request.
type Params []json.RawMessage

func parseParams(raw json.RawMessage) (Params, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	var params Params
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, invalidParams("non-array args")
	}
	return params, nil
}

func (p Params) Len() int {
	return len(p)
}

// Expect checks that the number of parameters is within the given bounds.
func (p Params) Expect(min, max int) error {
	if len(p) < min {
		return invalidParams("missing value for required argument %d", len(p))
	}
	if len(p) > max {
		return invalidParams("too many arguments, want at most %d", max)
	}
	return nil
}

// Get decodes the parameter at the given position into v.
func (p Params) Get(i int, v any) error {
	if i >= len(p) {
		return invalidParams("missing value for required argument %d", i)
	}
	if err := json.Unmarshal(p[i], v); err != nil {
		return invalidParams("invalid argument %d: %v", i, err)
	}
	return nil
}

// Optional decodes the parameter at the given position into v if it is
// present and not null. It reports whether a value was decoded.
func (p Params) Optional(i int, v any) (bool, error) {
	if i >= len(p) || bytes.Equal(bytes.TrimSpace(p[i]), []byte("null")) {
		return false, nil
	}
	return true, p.Get(i, v)
}
