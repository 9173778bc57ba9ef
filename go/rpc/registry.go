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
	"fmt"
	"slices"
	"sync"

	"golang.org/x/exp/maps"
)

// Handler serves a single JSON-RPC method.
type Handler interface {
	// Method is the name the handler is registered under.
	Method() string
	// Handle serves a request. Errors of type *Error are reported as is,
	// other errors are translated into JSON-RPC errors.
	Handle(ctx context.Context, rc *Context, params Params) (any, error)
}

type handlerFunc struct {
	method string
	handle func(context.Context, *Context, Params) (any, error)
}

// NewHandler creates a handler for the given method from a function.
func NewHandler(method string, handle func(context.Context, *Context, Params) (any, error)) Handler {
	return &handlerFunc{method: method, handle: handle}
}

func (h *handlerFunc) Method() string {
	return h.method
}

func (h *handlerFunc) Handle(ctx context.Context, rc *Context, params Params) (any, error) {
	return h.handle(ctx, rc, params)
}

// Registry maps method names to handlers. Aliases resolve to the handler
// currently registered under their canonical name. All methods are safe
// for concurrent use.
type Registry struct {
	handlers map[string]Handler
	aliases  map[string]string
	mutex    sync.RWMutex
}

func NewRegistry() *Registry {
	return &Registry{
		handlers: map[string]Handler{},
		aliases:  map[string]string{},
	}
}

// Register adds a handler under its method name. Registering nil or a
// name that is already taken fails.
func (r *Registry) Register(handler Handler) error {
	if handler == nil {
		return fmt.Errorf("invalid registration: cannot register nil handler")
	}
	r.mutex.Lock()
	defer r.mutex.Unlock()
	method := handler.Method()
	if _, found := r.handlers[method]; found {
		return fmt.Errorf("invalid registration: handler for %s already registered", method)
	}
	if _, found := r.aliases[method]; found {
		return fmt.Errorf("invalid registration: %s is already an alias", method)
	}
	r.handlers[method] = handler
	return nil
}

// Override replaces the handler registered under the method name of the
// given handler. Overriding a method that was never registered fails.
func (r *Registry) Override(handler Handler) error {
	if handler == nil {
		return fmt.Errorf("invalid registration: cannot register nil handler")
	}
	r.mutex.Lock()
	defer r.mutex.Unlock()
	method := handler.Method()
	if _, found := r.handlers[method]; !found {
		return fmt.Errorf("invalid override: no handler for %s registered", method)
	}
	r.handlers[method] = handler
	return nil
}

// RegisterAlias makes alias resolve to the handler of the canonical method,
// which has to be registered already.
func (r *Registry) RegisterAlias(alias, canonical string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if _, found := r.handlers[canonical]; !found {
		return fmt.Errorf("invalid alias %s: no handler for %s registered", alias, canonical)
	}
	if _, found := r.handlers[alias]; found {
		return fmt.Errorf("invalid alias %s: a handler is registered under this name", alias)
	}
	if _, found := r.aliases[alias]; found {
		return fmt.Errorf("invalid alias %s: already registered", alias)
	}
	r.aliases[alias] = canonical
	return nil
}

// Lookup returns the handler for the given method or alias, nil if there
// is none.
func (r *Registry) Lookup(method string) Handler {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	if canonical, found := r.aliases[method]; found {
		method = canonical
	}
	return r.handlers[method]
}

// Methods lists all registered method names and aliases in sorted order.
func (r *Registry) Methods() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	res := append(maps.Keys(r.handlers), maps.Keys(r.aliases)...)
	slices.Sort(res)
	return res
}
