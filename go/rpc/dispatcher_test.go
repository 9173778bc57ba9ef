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
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/Fantom-foundation/devchain/go/chain"
	"github.com/Fantom-foundation/devchain/go/devchain"
	"github.com/ethereum/go-ethereum/log"
)

func newTestNode(t *testing.T) *devchain.Node {
	t.Helper()
	config := devchain.DefaultConfig()
	config.AccountCount = 2
	node, err := devchain.NewWithFork(context.Background(), config, nil, nil)
	if err != nil {
		t.Fatalf("failed to create node: %v", err)
	}
	return node
}

func newTestDispatcher(t *testing.T, node *devchain.Node) *Dispatcher {
	t.Helper()
	registry, err := NewDevRegistry()
	if err != nil {
		t.Fatalf("failed to create registry: %v", err)
	}
	return NewDispatcher(registry, NewContext(node), nil, true)
}

// request dispatches a request with the given parameters and returns the
// encoded result.
func request(t *testing.T, d *Dispatcher, method string, params ...any) (json.RawMessage, *Error) {
	t.Helper()
	if params == nil {
		params = []any{}
	}
	encoded, err := json.Marshal(params)
	if err != nil {
		t.Fatalf("failed to encode parameters: %v", err)
	}
	res := d.Handle(context.Background(), &Request{
		Version: "2.0",
		ID:      json.RawMessage("1"),
		Method:  method,
		Params:  encoded,
	})
	return res.Result, res.Error
}

func mustRequest(t *testing.T, d *Dispatcher, method string, params ...any) json.RawMessage {
	t.Helper()
	res, err := request(t, d, method, params...)
	if err != nil {
		t.Fatalf("%s failed: %v (code %d)", method, err, err.Code)
	}
	return res
}

func decode[T any](t *testing.T, data json.RawMessage) T {
	t.Helper()
	var res T
	if err := json.Unmarshal(data, &res); err != nil {
		t.Fatalf("failed to decode %s: %v", data, err)
	}
	return res
}

func TestDispatcher_UnknownMethodIsReported(t *testing.T) {
	d := newTestDispatcher(t, newTestNode(t))
	_, err := request(t, d, "eth_unknown")
	if err == nil || err.Code != CodeMethodNotFound {
		t.Fatalf("unexpected error %v", err)
	}
	if !strings.Contains(err.Message, "eth_unknown") {
		t.Errorf("error message does not name the method: %s", err.Message)
	}
}

func TestDispatcher_InvalidParamsAreReported(t *testing.T) {
	d := newTestDispatcher(t, newTestNode(t))
	tests := map[string]struct {
		method string
		params []any
	}{
		"missing argument":  {"eth_getBalance", nil},
		"too many":          {"eth_blockNumber", []any{1}},
		"wrong type":        {"eth_getBalance", []any{42}},
		"invalid address":   {"eth_getBalance", []any{"0x1234"}},
		"invalid block":     {"eth_getBalance", []any{"0x0000000000000000000000000000000000000001", "yesterday"}},
		"invalid snapshot":  {"evm_revert", []any{"0x5"}},
		"invalid timestamp": {"evm_setNextBlockTimestamp", []any{0}},
		"data and input":    {"eth_call", []any{map[string]any{"data": "0x01", "input": "0x02"}}},
		"no sender":         {"eth_sendTransaction", []any{map[string]any{}}},
	}
	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := request(t, d, test.method, test.params...)
			if err == nil || err.Code != CodeInvalidParams {
				t.Errorf("expected invalid params error, got %v", err)
			}
		})
	}
}

func TestDispatcher_ParamsMustBeAnArray(t *testing.T) {
	d := newTestDispatcher(t, newTestNode(t))
	_, err := d.Dispatch(context.Background(), "eth_blockNumber", json.RawMessage(`{"a":1}`))
	if err == nil || err.Code != CodeInvalidParams {
		t.Errorf("unexpected error %v", err)
	}
}

func TestDispatcher_PanicsAreReportedAsInternalErrors(t *testing.T) {
	registry := NewRegistry()
	mustRegister(t, registry,
		NewHandler("test_panic", func(context.Context, *Context, Params) (any, error) {
			panic("boom")
		}),
		constant("test_ok", 1),
	)
	d := NewDispatcher(registry, NewContext(newTestNode(t)), nil, false)

	if _, err := request(t, d, "test_panic"); err == nil || err.Code != CodeInternal {
		t.Fatalf("expected internal error, got %v", err)
	}
	// the dispatcher remains available
	if res := mustRequest(t, d, "test_ok"); string(res) != "1" {
		t.Errorf("unexpected result %s", res)
	}
}

func TestDispatcher_VerboseRequestsAreLoggedAtDefaultVerbosity(t *testing.T) {
	registry, err := NewDevRegistry()
	if err != nil {
		t.Fatalf("failed to create registry: %v", err)
	}
	for _, verbose := range []bool{true, false} {
		var buffer bytes.Buffer
		logger := log.NewLogger(log.NewTerminalHandlerWithLevel(&buffer, log.LevelInfo, false))
		d := NewDispatcher(registry, NewContext(newTestNode(t)), logger, verbose)
		mustRequest(t, d, "eth_chainId")
		request(t, d, "evm_revert", "0x9")

		output := buffer.String()
		for _, want := range []string{"Dispatching request", "eth_chainId", "Request failed", "evm_revert"} {
			if got := strings.Contains(output, want); got != verbose {
				t.Errorf("verbose=%t: unexpected presence of %q in log output %q", verbose, want, output)
			}
		}
	}
}

func TestDispatcher_DomainErrorsAreTranslated(t *testing.T) {
	tests := map[string]struct {
		err  error
		code int
	}{
		"rpc error":        {&Error{Code: 42, Message: "x"}, 42},
		"revert":           {&devchain.ExecutionError{Outcome: chain.OutcomeRevert}, CodeExecutionReverted},
		"failure":          {&devchain.ExecutionError{Outcome: chain.OutcomeFailure}, CodeServer},
		"invalid snapshot": {&devchain.InvalidSnapshotError{ID: 3}, CodeInvalidParams},
		"wrapped":          {errors.Join(errors.New("context"), &devchain.InvalidSnapshotError{ID: 3}), CodeInvalidParams},
		"other":            {devchain.ErrNonceMismatch, CodeServer},
	}
	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			if got := toError(test.err); got.Code != test.code {
				t.Errorf("unexpected code, wanted %d, got %d", test.code, got.Code)
			}
		})
	}
}

func TestDispatcher_RevertReasonIsDecoded(t *testing.T) {
	// Error("nope")
	output := chain.Data{0x08, 0xc3, 0x79, 0xa0}
	output = append(output, make([]byte, 31)...)
	output = append(output, 0x20)
	output = append(output, make([]byte, 31)...)
	output = append(output, 4)
	output = append(output, []byte("nope")...)
	output = append(output, make([]byte, 28)...)

	err := toError(&devchain.ExecutionError{Outcome: chain.OutcomeRevert, Output: output})
	if err.Message != "execution reverted: nope" {
		t.Errorf("unexpected message %q", err.Message)
	}
	if err.Data == nil {
		t.Errorf("revert data missing")
	}
}

func TestDispatcher_HandleMessage(t *testing.T) {
	d := newTestDispatcher(t, newTestNode(t))
	tests := map[string]struct {
		request  string
		response string
	}{
		"single":          {`{"jsonrpc":"2.0","id":1,"method":"eth_chainId"}`, `{"jsonrpc":"2.0","id":1,"result":"0x7a69"}`},
		"string id":       {`{"jsonrpc":"2.0","id":"a","method":"net_version","params":[]}`, `{"jsonrpc":"2.0","id":"a","result":"31337"}`},
		"null result":     {`{"jsonrpc":"2.0","id":1,"method":"eth_getBlockByNumber","params":["0x10",false]}`, `{"jsonrpc":"2.0","id":1,"result":null}`},
		"notification":    {`{"jsonrpc":"2.0","method":"eth_chainId"}`, ``},
		"parse error":     {`{"jsonrpc":`, `{"jsonrpc":"2.0","id":null,"error":{"code":-32700,"message":"unexpected end of JSON input"}}`},
		"invalid version": {`{"jsonrpc":"1.0","id":1,"method":"eth_chainId"}`, `{"jsonrpc":"2.0","id":1,"error":{"code":-32600,"message":"invalid request"}}`},
		"empty batch":     {`[]`, `{"jsonrpc":"2.0","id":null,"error":{"code":-32600,"message":"empty batch"}}`},
		"batch": {
			`[{"jsonrpc":"2.0","id":1,"method":"eth_chainId"},{"jsonrpc":"2.0","method":"eth_chainId"},{"jsonrpc":"2.0","id":2,"method":"eth_blockNumber"}]`,
			`[{"jsonrpc":"2.0","id":1,"result":"0x7a69"},{"jsonrpc":"2.0","id":2,"result":"0x0"}]`,
		},
	}
	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			got := d.HandleMessage(context.Background(), []byte(test.request))
			if string(got) != test.response {
				t.Errorf("unexpected response\nwanted %s\ngot    %s", test.response, got)
			}
		})
	}
}
