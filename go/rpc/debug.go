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

	"github.com/Fantom-foundation/devchain/go/tracer"
)

func DebugHandlers() []Handler {
	return []Handler{
		NewHandler("debug_traceTransaction", traceTransaction),
		NewHandler("debug_traceCall", traceCall),
	}
}

// traceCallConfig extends the trace options of debug_traceCall with state
// overrides.
type traceCallConfig struct {
	tracer.Config
	StateOverrides stateOverride `json:"stateOverrides"`
}

func traceTransaction(_ context.Context, rc *Context, params Params) (any, error) {
	var config tracer.Config
	if err := params.Expect(1, 2); err != nil {
		return nil, err
	}
	hash, err := hashParam(params[:1])
	if err != nil {
		return nil, err
	}
	if _, err := params.Optional(1, &config); err != nil {
		return nil, err
	}
	return rc.Node.TraceTransaction(hash, config)
}

func traceCall(_ context.Context, rc *Context, params Params) (any, error) {
	var config traceCallConfig
	msg, number, err := callParams(params, 3)
	if err != nil {
		return nil, err
	}
	if _, err := params.Optional(2, &config); err != nil {
		return nil, err
	}
	return rc.Node.TraceCall(msg, number, config.StateOverrides.toOverride(), config.Config)
}
