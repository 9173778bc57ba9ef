// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

// Package devvm provides a gas-metered interpreter for EVM byte code.
//
// The interpreter executes a single call frame. Nested calls and contract
// creations are delegated to the chain.RunContext of the frame, which is
// typically provided by a transaction processor. Execution failures like
// running out of gas are reported through the Outcome of the result, never
// as Go errors.
package devvm

import (
	"fmt"

	"github.com/Fantom-foundation/devchain/go/chain"
)

// Name is the name under which the interpreter is registered.
const Name = "devvm"

func init() {
	err := chain.RegisterInterpreterFactory(Name, func(config any) (chain.Interpreter, error) {
		cfg, ok := config.(Config)
		if config != nil && !ok {
			return nil, fmt.Errorf("invalid configuration type %T", config)
		}
		return NewInterpreter(cfg)
	})
	if err != nil {
		panic(err)
	}
}

type Config struct {
	AnalysisConfig
}

// Interpreter is the devvm implementation of chain.Interpreter. Instances
// are safe for concurrent use.
type Interpreter struct {
	analyser *analyser
	runner   runner
}

func NewInterpreter(config Config) (*Interpreter, error) {
	analyser, err := newAnalyser(config.AnalysisConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create code analyser: %w", err)
	}
	return &Interpreter{analyser: analyser, runner: vanillaRunner{}}, nil
}

// WithTracer returns an interpreter reporting all executed instructions to
// the given tracer. The code analysis cache is shared with the receiver.
func (i *Interpreter) WithTracer(tracer chain.Tracer) *Interpreter {
	return &Interpreter{analyser: i.analyser, runner: tracingRunner{tracer: tracer}}
}

func (i *Interpreter) Run(params chain.Parameters) (chain.Result, error) {
	if params.Revision > chain.NewestRevision || params.Revision < chain.R07_Istanbul {
		return chain.Result{}, &chain.ErrUnsupportedRevision{Revision: params.Revision}
	}
	return run(i.analyser, i.runner, params)
}
