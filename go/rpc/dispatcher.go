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
	"fmt"
	"runtime/debug"

	"github.com/Fantom-foundation/devchain/go/devchain"
	"github.com/ethereum/go-ethereum/log"
)

// Context is shared by all handlers. It provides the node and resolves
// additional services required by individual handlers.
type Context struct {
	Node     *devchain.Node
	services []any
}

// NewContext creates a handler context for the given node. The account
// manager of the node is always available as a service.
func NewContext(node *devchain.Node, services ...any) *Context {
	return &Context{
		Node:     node,
		services: append([]any{node.Accounts()}, services...),
	}
}

// Resolve returns the first service of the context with type T.
func Resolve[T any](rc *Context) (T, error) {
	for _, service := range rc.services {
		if res, ok := service.(T); ok {
			return res, nil
		}
	}
	var zero T
	return zero, fmt.Errorf("no service of type %T available", zero)
}

// Dispatcher routes requests to the handlers of a registry.
type Dispatcher struct {
	registry *Registry
	context  *Context
	log      log.Logger
	verbose  bool
}

// NewDispatcher creates a dispatcher. If verbose is set, every dispatched
// request is logged.
func NewDispatcher(registry *Registry, rc *Context, logger log.Logger, verbose bool) *Dispatcher {
	if logger == nil {
		logger = log.Root()
	}
	return &Dispatcher{
		registry: registry,
		context:  rc,
		log:      logger,
		verbose:  verbose,
	}
}

// Dispatch invokes the handler of the given method. Panics of handlers are
// recovered and reported as internal errors.
func (d *Dispatcher) Dispatch(ctx context.Context, method string, rawParams json.RawMessage) (result any, rpcErr *Error) {
	if d.verbose {
		d.log.Info("Dispatching request", "method", method, "params", string(rawParams))
	}
	handler := d.registry.Lookup(method)
	if handler == nil {
		d.log.Debug("Unknown method", "method", method)
		return nil, methodNotFound(method)
	}
	params, err := parseParams(rawParams)
	if err != nil {
		return nil, toError(err)
	}

	defer func() {
		if r := recover(); r != nil {
			d.log.Error("Handler panicked", "method", method, "panic", r, "stack", string(debug.Stack()))
			result, rpcErr = nil, internalError()
		}
	}()
	res, err := handler.Handle(ctx, d.context, params)
	if err != nil {
		rpcErr = toError(err)
		if d.verbose {
			d.log.Info("Request failed", "method", method, "code", rpcErr.Code, "err", err)
		}
		return nil, rpcErr
	}
	return res, nil
}

// Handle serves a single request. It returns nil for notifications.
func (d *Dispatcher) Handle(ctx context.Context, req *Request) *Response {
	if req.Version != version || req.Method == "" {
		return errorResponse(req.ID, &Error{Code: CodeInvalidRequest, Message: "invalid request"})
	}
	result, rpcErr := d.Dispatch(ctx, req.Method, req.Params)
	if req.isNotification() {
		return nil
	}
	if rpcErr != nil {
		return errorResponse(req.ID, rpcErr)
	}
	encoded, err := json.Marshal(result)
	if err != nil {
		d.log.Error("Failed to encode result", "method", req.Method, "err", err)
		return errorResponse(req.ID, internalError())
	}
	return &Response{Version: version, ID: req.ID, Result: encoded}
}

// HandleMessage serves a single request or a batch of requests encoded in
// JSON. It returns the encoded response, nil if no response is due.
func (d *Dispatcher) HandleMessage(ctx context.Context, data []byte) []byte {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		return d.handleBatch(ctx, data)
	}
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return d.encode(errorResponse(nil, &Error{Code: CodeParseError, Message: err.Error()}))
	}
	if res := d.Handle(ctx, &req); res != nil {
		return d.encode(res)
	}
	return nil
}

func (d *Dispatcher) handleBatch(ctx context.Context, data []byte) []byte {
	var batch []json.RawMessage
	if err := json.Unmarshal(data, &batch); err != nil {
		return d.encode(errorResponse(nil, &Error{Code: CodeParseError, Message: err.Error()}))
	}
	if len(batch) == 0 {
		return d.encode(errorResponse(nil, &Error{Code: CodeInvalidRequest, Message: "empty batch"}))
	}
	responses := make([]*Response, 0, len(batch))
	for _, msg := range batch {
		var req Request
		if err := json.Unmarshal(msg, &req); err != nil {
			responses = append(responses, errorResponse(nil, &Error{Code: CodeInvalidRequest, Message: err.Error()}))
			continue
		}
		if res := d.Handle(ctx, &req); res != nil {
			responses = append(responses, res)
		}
	}
	if len(responses) == 0 {
		return nil
	}
	return d.encode(responses)
}

func (d *Dispatcher) encode(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		// responses only contain pre-encoded results
		d.log.Error("Failed to encode response", "err", err)
		return nil
	}
	return data
}
