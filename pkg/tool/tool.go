// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package tool defines the tools a reasoning engine can invoke and the
// outcomes of running them.
//
// A tool call ends in one of three ways:
//   - a Result with Data, which is fed back to the engine
//   - a Result with Payment set, which suspends the whole run for payment
//   - an error, which is fed back to the engine as a structured error
//
// A whole run ends in an Outcome: Completed, *NeedsPayment or Failed.
package tool

import (
	"context"
	"fmt"

	"github.com/kadirpekel/paygate/pkg/x402"
)

// Tool defines the base interface for a callable tool.
type Tool interface {
	// Name returns the unique name of the tool.
	Name() string

	// Description is shown to the engine to decide when to use the tool.
	Description() string

	// Schema returns the JSON schema of the parameters, or nil if there are none.
	Schema() map[string]any
}

// CallableTool extends Tool with synchronous execution.
type CallableTool interface {
	Tool

	// Call executes the tool. A returned error is reported back to the
	// engine and does not end the run.
	Call(ctx Context, args map[string]any) (Result, error)
}

// Result is the output of one tool call.
type Result struct {
	// Data is returned to the engine.
	Data map[string]any

	// Payment, when set, suspends the run until the requester pays.
	Payment *NeedsPayment
}

// Data wraps plain output in a Result.
func Data(data map[string]any) Result {
	return Result{Data: data}
}

// State is the conversation-scoped key/value store visible to tools.
type State interface {
	Get(key string) (any, bool)
	Set(key string, value any)
	Delete(key string)
}

// Context provides the execution context for a tool.
type Context interface {
	context.Context

	// FunctionCallID returns the unique ID of this tool invocation.
	FunctionCallID() string

	// State returns the state of the conversation the call belongs to.
	State() State
}

// NewContext builds a Context from its parts.
func NewContext(ctx context.Context, callID string, state State) Context {
	return &callContext{Context: ctx, callID: callID, state: state}
}

type callContext struct {
	context.Context
	callID string
	state  State
}

func (c *callContext) FunctionCallID() string { return c.callID }
func (c *callContext) State() State           { return c.state }

// Outcome is the result of a run. It is exactly one of Completed,
// *NeedsPayment or Failed.
type Outcome interface {
	isOutcome()
}

// Completed means the run finished and its output has been emitted.
type Completed struct{}

// NeedsPayment means the run cannot continue until the requester pays for
// Product with one of Requirements.
type NeedsPayment struct {
	Product      string
	Requirements []x402.PaymentRequirements
}

// Failed means the run ended unsuccessfully.
type Failed struct {
	Reason string
}

func (Completed) isOutcome()     {}
func (*NeedsPayment) isOutcome() {}
func (Failed) isOutcome()        {}

func (n *NeedsPayment) String() string {
	return fmt.Sprintf("payment required for %q (%d options)", n.Product, len(n.Requirements))
}

// Registry resolves tools by name.
type Registry struct {
	tools map[string]CallableTool
	order []string
}

// NewRegistry creates a registry of tools. Later tools with a duplicate name
// replace earlier ones.
func NewRegistry(tools ...CallableTool) *Registry {
	r := &Registry{tools: make(map[string]CallableTool, len(tools))}
	for _, t := range tools {
		if _, dup := r.tools[t.Name()]; !dup {
			r.order = append(r.order, t.Name())
		}
		r.tools[t.Name()] = t
	}
	return r
}

// Get returns the tool named name.
func (r *Registry) Get(name string) (CallableTool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// All returns the tools in registration order.
func (r *Registry) All() []CallableTool {
	out := make([]CallableTool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}
