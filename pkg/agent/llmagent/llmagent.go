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

// Package llmagent drives a reasoning engine through rounds of tool calls.
//
// Each round sends the session history to the engine. A final answer is
// published as an artifact and completes the run. Tool calls are executed
// and their results fed back for the next round. A tool that needs payment
// suspends the whole run: Run returns *tool.NeedsPayment and the session
// keeps everything needed to resume later.
//
// # Usage
//
//	agent, err := llmagent.New(llmagent.Config{
//	    Name:        "merchant",
//	    Model:       gemini,
//	    Instruction: "You sell fruit.",
//	    Tools:       []tool.CallableTool{buyTool},
//	})
//	outcome, err := agent.Run(ctx, &llmagent.Run{Session: sess, Input: userTurn, Emitter: updater})
package llmagent

import (
	"context"
	"fmt"

	"github.com/kadirpekel/paygate/pkg/model"
	"github.com/kadirpekel/paygate/pkg/tool"
)

// DefaultMaxIterations bounds the rounds of one run.
const DefaultMaxIterations = 10

// Config contains the configuration for an LLM agent.
type Config struct {
	// Name identifies the agent in logs.
	Name string

	// Model is the reasoning engine.
	Model model.LLM

	// Instruction guides the agent's behavior.
	Instruction string

	// Tools the engine may call.
	Tools []tool.CallableTool

	// MaxIterations caps the rounds of one run.
	// Default: 10
	MaxIterations int

	// EnableStreaming consumes the engine in streaming mode.
	EnableStreaming bool

	// GenerateConfig contains engine generation settings.
	GenerateConfig *model.GenerateConfig
}

// Agent is a tool-calling agent backed by a reasoning engine.
type Agent struct {
	config Config
	tools  *tool.Registry
	flow   *Flow
}

// New creates an agent.
func New(cfg Config) (*Agent, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("agent name is required")
	}
	if cfg.Model == nil {
		return nil, fmt.Errorf("agent %q: model is required", cfg.Name)
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}

	a := &Agent{config: cfg, tools: tool.NewRegistry(cfg.Tools...)}
	a.flow = NewFlow(a)
	return a, nil
}

// Name returns the agent name.
func (a *Agent) Name() string {
	return a.config.Name
}

// Tools returns the tools the agent exposes to the engine.
func (a *Agent) Tools() []tool.CallableTool {
	return a.tools.All()
}

// Run drives the engine until it answers, a tool needs payment, or the
// iteration cap is hit. A non-nil error means the engine itself failed.
func (a *Agent) Run(ctx context.Context, run *Run) (tool.Outcome, error) {
	if run == nil || run.Session == nil {
		return nil, fmt.Errorf("agent %q: run requires a session", a.config.Name)
	}
	if run.Emitter == nil {
		run.Emitter = DiscardEmitter{}
	}
	return a.flow.Run(ctx, run)
}
