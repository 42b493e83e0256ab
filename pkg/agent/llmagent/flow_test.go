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
	"errors"
	"iter"
	"testing"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/paygate/pkg/model"
	"github.com/kadirpekel/paygate/pkg/session"
	"github.com/kadirpekel/paygate/pkg/tool"
	"github.com/kadirpekel/paygate/pkg/tool/functiontool"
	"github.com/kadirpekel/paygate/pkg/x402"
)

// scriptedLLM replays one response per round and records the requests.
type scriptedLLM struct {
	rounds   []*model.Response
	requests []*model.Request
	err      error
}

func (s *scriptedLLM) Name() string             { return "scripted" }
func (s *scriptedLLM) Provider() model.Provider { return model.ProviderUnknown }
func (s *scriptedLLM) Close() error             { return nil }

func (s *scriptedLLM) GenerateContent(_ context.Context, req *model.Request, stream bool) iter.Seq2[*model.Response, error] {
	return func(yield func(*model.Response, error) bool) {
		s.requests = append(s.requests, req)
		if s.err != nil {
			yield(nil, s.err)
			return
		}
		i := len(s.requests) - 1
		if i >= len(s.rounds) {
			yield(&model.Response{Content: &model.Content{Role: model.RoleModel}, TurnComplete: true}, nil)
			return
		}
		if stream {
			if !yield(&model.Response{Content: model.NewTextContent(model.RoleModel, "..."), Partial: true}, nil) {
				return
			}
		}
		yield(s.rounds[i], nil)
	}
}

type recordingEmitter struct {
	working   []string
	artifacts [][]a2a.Part
	completed int
}

func (e *recordingEmitter) Working(_ context.Context, text string) error {
	e.working = append(e.working, text)
	return nil
}

func (e *recordingEmitter) AddArtifact(_ context.Context, parts ...a2a.Part) error {
	e.artifacts = append(e.artifacts, parts)
	return nil
}

func (e *recordingEmitter) Complete(context.Context) error {
	e.completed++
	return nil
}

func final(text string) *model.Response {
	return &model.Response{Content: model.NewTextContent(model.RoleModel, text), TurnComplete: true}
}

func calls(text string, tcs ...model.ToolCall) *model.Response {
	c := &model.Content{Role: model.RoleModel}
	if text != "" {
		c.Parts = append(c.Parts, model.Part{Text: text})
	}
	for i := range tcs {
		c.Parts = append(c.Parts, model.Part{ToolCall: &tcs[i]})
	}
	return &model.Response{Content: c, TurnComplete: true}
}

type productArgs struct {
	ProductName string `json:"product_name"`
}

func newTestAgent(t *testing.T, llm model.LLM, tools ...tool.CallableTool) (*Agent, session.Session) {
	t.Helper()
	a, err := New(Config{Name: "test", Model: llm, Tools: tools, MaxIterations: 4})
	require.NoError(t, err)
	sess, err := session.InMemoryService().GetOrCreate(context.Background(), "test", "ctx-1")
	require.NoError(t, err)
	return a, sess
}

func lastToolResults(t *testing.T, sess session.Session) []*model.ToolResult {
	t.Helper()
	h := sess.History()
	for i := len(h) - 1; i >= 0; i-- {
		if h[i].Role == model.RoleTool {
			var out []*model.ToolResult
			for _, p := range h[i].Parts {
				out = append(out, p.ToolResult)
			}
			return out
		}
	}
	t.Fatal("no tool results in history")
	return nil
}

func TestRun_FinalAnswerEmitsArtifactAndCompletes(t *testing.T) {
	llm := &scriptedLLM{rounds: []*model.Response{final("Hello!")}}
	a, sess := newTestAgent(t, llm)
	em := &recordingEmitter{}

	outcome, err := a.Run(context.Background(), &Run{
		Session: sess, Input: model.NewTextContent(model.RoleUser, "hi"), Emitter: em,
	})
	require.NoError(t, err)
	assert.Equal(t, tool.Completed{}, outcome)
	require.Len(t, em.artifacts, 1)
	assert.Equal(t, a2a.TextPart{Text: "Hello!"}, em.artifacts[0][0])
	assert.Equal(t, 1, em.completed)
	assert.Len(t, sess.History(), 2)
}

func TestRun_ToolResultFedBack(t *testing.T) {
	lookup, err := functiontool.New(functiontool.Config{Name: "lookup", Description: "Lookup"},
		func(_ tool.Context, args productArgs) (map[string]any, error) {
			return map[string]any{"price": 3, "name": args.ProductName}, nil
		})
	require.NoError(t, err)

	llm := &scriptedLLM{rounds: []*model.Response{
		calls("Let me check.", model.ToolCall{ID: "c1", Name: "lookup", Args: map[string]any{"product_name": "apple"}}),
		final("Apples cost 3."),
	}}
	a, sess := newTestAgent(t, llm, lookup)
	em := &recordingEmitter{}

	outcome, err := a.Run(context.Background(), &Run{Session: sess, Input: model.NewTextContent(model.RoleUser, "price?"), Emitter: em})
	require.NoError(t, err)
	assert.Equal(t, tool.Completed{}, outcome)
	assert.Equal(t, []string{"Let me check."}, em.working)

	results := lastToolResults(t, sess)
	require.Len(t, results, 1)
	assert.Equal(t, "c1", results[0].ID)
	assert.Equal(t, map[string]any{"price": 3, "name": "apple"}, results[0].Response["result"])

	// The second round saw the tool result.
	require.Len(t, llm.requests, 2)
	assert.Len(t, llm.requests[1].Contents, 3)
	require.Len(t, llm.requests[0].Tools, 1)
	assert.Equal(t, "lookup", llm.requests[0].Tools[0].Name)
}

func TestRun_ToolErrorBecomesStructuredError(t *testing.T) {
	failing, err := functiontool.New(functiontool.Config{Name: "explode", Description: "Fails"},
		func(tool.Context, struct{}) (map[string]any, error) { return nil, errors.New("warehouse offline") })
	require.NoError(t, err)

	llm := &scriptedLLM{rounds: []*model.Response{
		calls("", model.ToolCall{ID: "c1", Name: "explode"}, model.ToolCall{ID: "c2", Name: "missing"}),
		final("Sorry."),
	}}
	a, sess := newTestAgent(t, llm, failing)

	outcome, err := a.Run(context.Background(), &Run{Session: sess, Input: model.NewTextContent(model.RoleUser, "go")})
	require.NoError(t, err)
	assert.Equal(t, tool.Completed{}, outcome)

	results := lastToolResults(t, sess)
	require.Len(t, results, 2)
	assert.Equal(t, "warehouse offline", results[0].Response["error"])
	assert.Contains(t, results[1].Response["error"], "not found")
}

func TestRun_PaymentSuspendsImmediately(t *testing.T) {
	var secondCalled bool
	buy, err := functiontool.NewWithResult(functiontool.Config{Name: "buy", Description: "Buy"},
		func(_ tool.Context, args productArgs) (tool.Result, error) {
			return tool.Result{Payment: &tool.NeedsPayment{
				Product:      args.ProductName,
				Requirements: []x402.PaymentRequirements{{Scheme: "exact", Network: "base-sepolia", Amount: "1000"}},
			}}, nil
		})
	require.NoError(t, err)
	after, err := functiontool.New(functiontool.Config{Name: "after", Description: "After"},
		func(tool.Context, struct{}) (map[string]any, error) {
			secondCalled = true
			return nil, nil
		})
	require.NoError(t, err)

	llm := &scriptedLLM{rounds: []*model.Response{
		calls("", model.ToolCall{ID: "c1", Name: "buy", Args: map[string]any{"product_name": "banana"}},
			model.ToolCall{ID: "c2", Name: "after"}),
	}}
	a, sess := newTestAgent(t, llm, buy, after)
	em := &recordingEmitter{}

	outcome, err := a.Run(context.Background(), &Run{Session: sess, Input: model.NewTextContent(model.RoleUser, "buy banana"), Emitter: em})
	require.NoError(t, err)

	np, ok := outcome.(*tool.NeedsPayment)
	require.True(t, ok, "outcome %T", outcome)
	assert.Equal(t, "banana", np.Product)
	assert.False(t, secondCalled)
	assert.Zero(t, em.completed)
	assert.Empty(t, em.artifacts)
	assert.Len(t, llm.requests, 1)

	results := lastToolResults(t, sess)
	require.Len(t, results, 2)
	assert.Equal(t, "PAYMENT_REQUIRED", results[0].Response["status"])
}

func TestRun_ResumeContinuesFromSession(t *testing.T) {
	llm := &scriptedLLM{rounds: []*model.Response{final("Order placed.")}}
	a, sess := newTestAgent(t, llm)
	sess.Append(
		model.NewTextContent(model.RoleUser, "buy banana"),
		model.NewTextContent(model.RoleUser, "Payment verified. Please proceed."),
	)

	outcome, err := a.Run(context.Background(), &Run{Session: sess})
	require.NoError(t, err)
	assert.Equal(t, tool.Completed{}, outcome)
	assert.Len(t, llm.requests[0].Contents, 2)
}

func TestRun_NoCallsNoFinalCompletesWithWarning(t *testing.T) {
	llm := &scriptedLLM{rounds: []*model.Response{{Content: &model.Content{Role: model.RoleModel}, TurnComplete: true}}}
	a, sess := newTestAgent(t, llm)
	em := &recordingEmitter{}

	outcome, err := a.Run(context.Background(), &Run{Session: sess, Input: model.NewTextContent(model.RoleUser, "?"), Emitter: em})
	require.NoError(t, err)
	assert.Equal(t, tool.Completed{}, outcome)
	assert.Equal(t, 1, em.completed)
	assert.Empty(t, em.artifacts)
}

func TestRun_IterationCap(t *testing.T) {
	echo, err := functiontool.New(functiontool.Config{Name: "echo", Description: "Echo"},
		func(tool.Context, struct{}) (map[string]any, error) { return map[string]any{}, nil })
	require.NoError(t, err)

	loop := calls("", model.ToolCall{ID: "c", Name: "echo"})
	llm := &scriptedLLM{rounds: []*model.Response{loop, loop, loop, loop, loop}}
	a, sess := newTestAgent(t, llm, echo)

	outcome, err := a.Run(context.Background(), &Run{Session: sess, Input: model.NewTextContent(model.RoleUser, "loop")})
	require.NoError(t, err)
	failed, ok := outcome.(tool.Failed)
	require.True(t, ok)
	assert.Contains(t, failed.Reason, "safety limit")
	assert.Len(t, llm.requests, 4)
}

func TestRun_EngineErrorPropagates(t *testing.T) {
	llm := &scriptedLLM{err: errors.New("quota")}
	a, sess := newTestAgent(t, llm)
	_, err := a.Run(context.Background(), &Run{Session: sess, Input: model.NewTextContent(model.RoleUser, "x")})
	assert.ErrorContains(t, err, "quota")
}

func TestRun_StreamingUsesAggregate(t *testing.T) {
	llm := &scriptedLLM{rounds: []*model.Response{final("done")}}
	a, err := New(Config{Name: "s", Model: llm, EnableStreaming: true})
	require.NoError(t, err)
	sess, _ := session.InMemoryService().GetOrCreate(context.Background(), "s", "c")
	em := &recordingEmitter{}

	_, err = a.Run(context.Background(), &Run{Session: sess, Input: model.NewTextContent(model.RoleUser, "x"), Emitter: em})
	require.NoError(t, err)
	require.Len(t, em.artifacts, 1)
	assert.Equal(t, a2a.TextPart{Text: "done"}, em.artifacts[0][0])
}

func TestRun_CancelledContext(t *testing.T) {
	a, sess := newTestAgent(t, &scriptedLLM{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := a.Run(ctx, &Run{Session: sess})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{Model: &scriptedLLM{}})
	assert.Error(t, err)
	_, err = New(Config{Name: "x"})
	assert.Error(t, err)
}
