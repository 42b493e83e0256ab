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

package llmagent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/kadirpekel/paygate/pkg/model"
	"github.com/kadirpekel/paygate/pkg/observability"
	"github.com/kadirpekel/paygate/pkg/tool"
)

// Flow implements the resumable reasoning loop.
//  1. Each round reads the whole history from the session
//  2. Tool calls and their results are appended to the session immediately
//  3. The loop stops on a final answer, a payment request or the iteration cap
type Flow struct {
	agent *Agent
}

// NewFlow creates a new flow for the given agent.
func NewFlow(a *Agent) *Flow {
	return &Flow{agent: a}
}

// stepResult is what one round decided.
type stepResult struct {
	outcome tool.Outcome
	done    bool
}

// Run executes rounds until one of them ends the run.
func (f *Flow) Run(ctx context.Context, run *Run) (tool.Outcome, error) {
	if run.Input != nil {
		run.Session.Append(run.Input)
	}

	maxIter := f.agent.config.MaxIterations
	for iteration := 0; iteration < maxIter; iteration++ {
		if err := ctx.Err(); err != nil {
			slog.Debug("Flow terminating due to context cancellation",
				"agent", f.agent.config.Name,
				"iteration", iteration,
				"error", err)
			return nil, err
		}

		res, err := f.runOneStep(ctx, run)
		if err != nil {
			return nil, err
		}
		if res.done {
			slog.Debug("Flow terminating",
				"agent", f.agent.config.Name,
				"iteration", iteration,
				"outcome", fmt.Sprintf("%T", res.outcome))
			return res.outcome, nil
		}
	}

	reason := fmt.Sprintf("reasoning loop safety limit exceeded (%d iterations)", maxIter)
	slog.Warn("Flow aborted", "agent", f.agent.config.Name, "reason", reason)
	return tool.Failed{Reason: reason}, nil
}

// runOneStep executes one round: engine call, then either the final answer
// or the requested tools.
func (f *Flow) runOneStep(ctx context.Context, run *Run) (stepResult, error) {
	resp, err := f.callLLM(ctx, run)
	if err != nil {
		return stepResult{}, err
	}

	var content *model.Content
	if resp != nil {
		content = resp.Content
	}
	if content != nil && len(content.Parts) > 0 {
		run.Session.Append(content)
	}

	calls := content.ToolCalls()
	if len(calls) > 0 {
		if text := content.Text(); text != "" {
			if err := run.Emitter.Working(ctx, text); err != nil {
				return stepResult{}, fmt.Errorf("failed to emit status: %w", err)
			}
		}
		return f.handleToolCalls(ctx, run, calls)
	}

	if resp.IsFinal() {
		if parts := content.ToA2A(); len(parts) > 0 {
			if err := run.Emitter.AddArtifact(ctx, parts...); err != nil {
				return stepResult{}, fmt.Errorf("failed to emit artifact: %w", err)
			}
		}
		if err := run.Emitter.Complete(ctx); err != nil {
			return stepResult{}, fmt.Errorf("failed to complete run: %w", err)
		}
		return stepResult{outcome: tool.Completed{}, done: true}, nil
	}

	slog.Warn("Engine round ended without tool calls or a final answer",
		"agent", f.agent.config.Name)
	if err := run.Emitter.Complete(ctx); err != nil {
		return stepResult{}, fmt.Errorf("failed to complete run: %w", err)
	}
	return stepResult{outcome: tool.Completed{}, done: true}, nil
}

// callLLM sends the session history and returns the aggregated response.
func (f *Flow) callLLM(ctx context.Context, run *Run) (*model.Response, error) {
	cfg := f.agent.config
	req := &model.Request{
		Contents:          run.Session.History(),
		Tools:             model.Definitions(f.agent.tools.All()),
		SystemInstruction: cfg.Instruction,
		Config:            cfg.GenerateConfig,
	}

	ctx, span := observability.StartSpan(ctx, observability.SpanLLMRequest,
		attribute.String(observability.AttrLLMModel, cfg.Model.Name()))
	start := time.Now()

	var final *model.Response
	var callErr error
	for resp, err := range cfg.Model.GenerateContent(ctx, req, cfg.EnableStreaming) {
		if err != nil {
			callErr = err
			break
		}
		if resp != nil && !resp.Partial {
			final = resp
		}
	}

	in, out := 0, 0
	if final != nil && final.Usage != nil {
		in, out = final.Usage.PromptTokens, final.Usage.CompletionTokens
	}
	observability.GetGlobalMetrics().RecordLLMCall(ctx, cfg.Model.Name(), time.Since(start), in, out, callErr)
	observability.EndSpan(span, callErr)

	if callErr != nil {
		return nil, fmt.Errorf("engine call failed: %w", callErr)
	}
	return final, nil
}

// handleToolCalls executes calls in order and records their results. A
// payment request stops the run at once; calls after it are not executed.
func (f *Flow) handleToolCalls(ctx context.Context, run *Run, calls []model.ToolCall) (stepResult, error) {
	results := &model.Content{Role: model.RoleTool}
	defer func() {
		if len(results.Parts) > 0 {
			run.Session.Append(results)
		}
	}()

	for i, call := range calls {
		res := f.callTool(ctx, run, call)
		if res.Payment != nil {
			slog.Info("Tool requested payment",
				"agent", f.agent.config.Name,
				"tool", call.Name,
				"product", res.Payment.Product)
			results.Parts = append(results.Parts, toolResultPart(call, map[string]any{
				"status":  "PAYMENT_REQUIRED",
				"product": res.Payment.Product,
			}))
			for _, skipped := range calls[i+1:] {
				results.Parts = append(results.Parts, toolResultPart(skipped, map[string]any{
					"error": "not executed: run suspended for payment",
				}))
			}
			return stepResult{outcome: res.Payment, done: true}, nil
		}
		results.Parts = append(results.Parts, toolResultPart(call, res.Data))
	}
	return stepResult{}, nil
}

// callTool runs one tool. Errors and unknown tools become structured error
// responses for the engine; only a payment request escapes.
func (f *Flow) callTool(ctx context.Context, run *Run, call model.ToolCall) tool.Result {
	t, ok := f.agent.tools.Get(call.Name)
	if !ok {
		slog.Warn("Engine requested unknown tool", "agent", f.agent.config.Name, "tool", call.Name)
		return tool.Data(map[string]any{"error": fmt.Sprintf("tool %q not found", call.Name)})
	}

	ctx, span := observability.StartSpan(ctx, observability.SpanToolExecution,
		attribute.String(observability.AttrToolName, call.Name))
	start := time.Now()

	res, err := t.Call(tool.NewContext(ctx, call.ID, run.Session.State()), call.Args)

	observability.GetGlobalMetrics().RecordToolExecution(ctx, call.Name, time.Since(start), err)
	observability.EndSpan(span, err)

	if err != nil {
		slog.Error("Tool failed", "agent", f.agent.config.Name, "tool", call.Name, "error", err)
		return tool.Data(map[string]any{"error": err.Error()})
	}
	if res.Payment != nil {
		return res
	}
	return tool.Data(map[string]any{"result": res.Data})
}

func toolResultPart(call model.ToolCall, response map[string]any) model.Part {
	return model.Part{ToolResult: &model.ToolResult{ID: call.ID, Name: call.Name, Response: response}}
}
