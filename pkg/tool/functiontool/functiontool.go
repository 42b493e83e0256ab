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

// Package functiontool creates tools from typed Go functions.
//
// The parameter schema is generated from the struct tags of the argument type:
//
//	type BuyArgs struct {
//	    ProductName string `json:"product_name" jsonschema:"required,description=Product to buy"`
//	}
//
//	buy, err := functiontool.New(
//	    functiontool.Config{Name: "buy", Description: "Buy a product"},
//	    func(ctx tool.Context, args BuyArgs) (map[string]any, error) {
//	        return map[string]any{"ok": true}, nil
//	    },
//	)
//
// Tools that may suspend the run for payment use NewWithResult and return a
// tool.Result with Payment set.
package functiontool

import (
	"fmt"

	"github.com/kadirpekel/paygate/pkg/tool"
)

// Config defines the configuration for a function tool.
type Config struct {
	// Name is the unique identifier for this tool (required).
	Name string

	// Description explains what the tool does (required).
	Description string
}

// New creates a CallableTool from a typed function returning plain data.
func New[Args any](cfg Config, fn func(tool.Context, Args) (map[string]any, error)) (tool.CallableTool, error) {
	return NewWithResult(cfg, func(ctx tool.Context, args Args) (tool.Result, error) {
		data, err := fn(ctx, args)
		if err != nil {
			return tool.Result{}, err
		}
		return tool.Data(data), nil
	})
}

// NewWithResult creates a CallableTool from a typed function returning a
// full tool.Result.
func NewWithResult[Args any](cfg Config, fn func(tool.Context, Args) (tool.Result, error)) (tool.CallableTool, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	schema, err := generateSchema[Args]()
	if err != nil {
		return nil, fmt.Errorf("failed to generate schema for %s: %w", cfg.Name, err)
	}

	return &functionTool[Args]{
		config: cfg,
		fn:     fn,
		schema: schema,
	}, nil
}

// functionTool implements tool.CallableTool by wrapping a typed function.
type functionTool[Args any] struct {
	config Config
	fn     func(tool.Context, Args) (tool.Result, error)
	schema map[string]any
}

func (t *functionTool[Args]) Name() string {
	return t.config.Name
}

func (t *functionTool[Args]) Description() string {
	return t.config.Description
}

func (t *functionTool[Args]) Schema() map[string]any {
	return t.schema
}

// Call converts the arguments to Args and runs the function.
func (t *functionTool[Args]) Call(ctx tool.Context, args map[string]any) (tool.Result, error) {
	var typedArgs Args
	if err := decodeArgs(args, &typedArgs); err != nil {
		return tool.Result{}, fmt.Errorf("invalid arguments for %s: %w", t.config.Name, err)
	}
	return t.fn(ctx, typedArgs)
}

func validateConfig(cfg Config) error {
	if cfg.Name == "" {
		return fmt.Errorf("tool name is required")
	}
	if cfg.Description == "" {
		return fmt.Errorf("tool description is required")
	}
	return nil
}

var _ tool.CallableTool = (*functionTool[struct{}])(nil)
