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

package buyer

import (
	"context"
	"errors"
	"iter"
	"net/http/httptest"
	"testing"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/a2aproject/a2a-go/a2asrv"
	"github.com/a2aproject/a2a-go/a2asrv/eventqueue"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/paygate/pkg/agent/remoteagent"
	"github.com/kadirpekel/paygate/pkg/facilitator"
	"github.com/kadirpekel/paygate/pkg/model"
	"github.com/kadirpekel/paygate/pkg/payment"
	"github.com/kadirpekel/paygate/pkg/session"
	"github.com/kadirpekel/paygate/pkg/task"
	"github.com/kadirpekel/paygate/pkg/tool"
	"github.com/kadirpekel/paygate/pkg/wallet"
	"github.com/kadirpekel/paygate/pkg/x402"
)

type scriptedLLM struct {
	rounds   []*model.Response
	requests []*model.Request
}

func (s *scriptedLLM) Name() string             { return "scripted" }
func (s *scriptedLLM) Provider() model.Provider { return model.ProviderUnknown }
func (s *scriptedLLM) Close() error             { return nil }

func (s *scriptedLLM) GenerateContent(_ context.Context, req *model.Request, _ bool) iter.Seq2[*model.Response, error] {
	return func(yield func(*model.Response, error) bool) {
		s.requests = append(s.requests, req)
		i := len(s.requests) - 1
		if i >= len(s.rounds) {
			yield(&model.Response{Content: &model.Content{Role: model.RoleModel}, TurnComplete: true}, nil)
			return
		}
		yield(s.rounds[i], nil)
	}
}

func send(agent, message string) *model.Response {
	return &model.Response{
		Content: &model.Content{Role: model.RoleModel, Parts: []model.Part{{ToolCall: &model.ToolCall{
			ID:   uuid.NewString(),
			Name: ToolSendMessage,
			Args: map[string]any{"agent_name": agent, "message": message},
		}}}},
		TurnComplete: true,
	}
}

func answer(text string) *model.Response {
	return &model.Response{Content: model.NewTextContent(model.RoleModel, text), TurnComplete: true}
}

// lastToolResponse returns what send_message told the engine in a round.
func lastToolResponse(t *testing.T, req *model.Request) map[string]any {
	t.Helper()
	last := req.Contents[len(req.Contents)-1]
	require.Equal(t, model.RoleTool, last.Role)
	resp := last.Parts[0].ToolResult.Response
	if result, ok := resp["result"].(map[string]any); ok {
		return result
	}
	return resp
}

// forwardingQueue hands server events straight to the buyer.
type forwardingQueue struct {
	eventqueue.Queue
	onEvent remoteagent.EventFunc
}

func (q *forwardingQueue) Write(ctx context.Context, ev a2a.Event) error {
	return q.onEvent(ctx, ev)
}

// inProcessRemote serves a gated shop without a network hop.
type inProcessRemote struct {
	name     string
	gate     *payment.Gate
	registry *task.Registry
	sends    int
}

func (r *inProcessRemote) Name() string { return r.name }

func (r *inProcessRemote) Card() *a2a.AgentCard {
	return &a2a.AgentCard{Name: r.name, Description: "Sells bananas."}
}

func (r *inProcessRemote) Send(ctx context.Context, msg *a2a.Message, onEvent remoteagent.EventFunc) (remoteagent.Result, error) {
	r.sends++
	reqCtx := &a2asrv.RequestContext{TaskID: msg.TaskID, ContextID: msg.ContextID, Message: msg}
	if reqCtx.TaskID == "" {
		reqCtx.TaskID = a2a.TaskID(uuid.NewString())
	} else {
		stored, err := r.registry.Get(ctx, reqCtx.TaskID)
		if err != nil {
			return remoteagent.Result{}, err
		}
		if reqCtx.StoredTask, err = stored.ToA2A(); err != nil {
			return remoteagent.Result{}, err
		}
	}
	if reqCtx.ContextID == "" {
		reqCtx.ContextID = uuid.NewString()
	}
	err := r.gate.Execute(ctx, reqCtx, &forwardingQueue{onEvent: onEvent})
	return remoteagent.Result{TaskID: reqCtx.TaskID, ContextID: reqCtx.ContextID}, err
}

type bananaShop struct{}

func (bananaShop) Execute(ctx context.Context, inv *payment.Invocation) (tool.Outcome, error) {
	if inv.Verified == nil {
		return &tool.NeedsPayment{Product: "banana", Requirements: []x402.PaymentRequirements{{
			Scheme:            x402.SchemeExactPermit,
			Network:           "tron:nile",
			Amount:            "100",
			Asset:             "TUSDT",
			PayTo:             "TMerchant",
			MaxTimeoutSeconds: 1200,
			Extra:             &x402.RequirementsExtra{Name: "USDT"},
		}}}, nil
	}
	if err := inv.Updater.AddArtifact(ctx, a2a.TextPart{Text: "Your banana is on its way."}); err != nil {
		return nil, err
	}
	return tool.Completed{}, nil
}

func newShop(t *testing.T) (*inProcessRemote, *facilitator.Server) {
	t.Helper()
	srv, err := facilitator.NewServer(facilitator.ServerConfig{Networks: []string{"tron:nile"}})
	require.NoError(t, err)
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	client, err := facilitator.NewClient(facilitator.ClientConfig{URL: ts.URL})
	require.NoError(t, err)

	reg := task.NewRegistry()
	return &inProcessRemote{name: "merchant", gate: payment.NewGate(bananaShop{}, reg, client), registry: reg}, srv
}

func newTestBuyer(t *testing.T, llm model.LLM, remotes ...Remote) *Buyer {
	t.Helper()
	w, err := wallet.GenerateLocalWallet()
	require.NoError(t, err)
	b, err := New(Config{Model: llm, Wallet: w, Remotes: remotes})
	require.NoError(t, err)
	return b
}

func TestPurchaseFlow(t *testing.T) {
	ctx := context.Background()
	shop, srv := newShop(t)
	llm := &scriptedLLM{rounds: []*model.Response{
		send("merchant", "I want to buy a banana"),
		answer("The merchant wants 100 USDT. Approve?"),
		send("merchant", SignAndSendPayment),
		answer("Done! Your banana is on its way."),
	}}
	b := newTestBuyer(t, llm, shop)

	reply, err := b.Chat(ctx, "s1", "buy me a banana")
	require.NoError(t, err)
	assert.Equal(t, "The merchant wants 100 USDT. Approve?", reply)
	assert.Equal(t, "The merchant is requesting payment of 100 USDT. Approve?",
		lastToolResponse(t, llm.requests[1])["response"])

	reply, err = b.Chat(ctx, "s1", "yes")
	require.NoError(t, err)
	assert.Equal(t, "Done! Your banana is on its way.", reply)

	result := lastToolResponse(t, llm.requests[3])["response"].(string)
	assert.Contains(t, result, "Your banana is on its way.")
	assert.Contains(t, result, "\nTx Hash: 0x")
	assert.Equal(t, 1, srv.Settlements())
	assert.Equal(t, 2, shop.sends)

	tasks := b.Registry().List("")
	require.Len(t, tasks, 1)
	assert.Equal(t, task.StateCompleted, tasks[0].Status.State)

	sess, err := b.sessions.Get(ctx, DefaultName, "s1")
	require.NoError(t, err)
	_, pending := sess.State().Get(statePurchaseTask)
	assert.False(t, pending, "paid purchase is cleared")
	cid, _ := sess.State().Get(stateContextID)
	assert.Equal(t, tasks[0].ContextID, cid)
}

func TestPayWithoutPendingPurchase(t *testing.T) {
	shop, _ := newShop(t)
	llm := &scriptedLLM{rounds: []*model.Response{
		send("merchant", SignAndSendPayment),
		answer("There is nothing to pay for."),
	}}
	b := newTestBuyer(t, llm, shop)

	_, err := b.Chat(context.Background(), "s1", "pay")
	require.NoError(t, err)
	resp := lastToolResponse(t, llm.requests[1])
	assert.Equal(t, ErrNoPendingPurchase.Error(), resp["error"])
	assert.Equal(t, 0, shop.sends)
}

func TestSendToUnknownAgent(t *testing.T) {
	llm := &scriptedLLM{rounds: []*model.Response{
		send("nobody", "hello"),
		answer("I could not reach that agent."),
	}}
	b := newTestBuyer(t, llm)

	_, err := b.Chat(context.Background(), "s1", "hi")
	require.NoError(t, err)
	assert.Contains(t, lastToolResponse(t, llm.requests[1])["error"], "agent not found")
}

func TestListRemoteAgents(t *testing.T) {
	shop, _ := newShop(t)
	llm := &scriptedLLM{rounds: []*model.Response{
		{Content: &model.Content{Role: model.RoleModel, Parts: []model.Part{{ToolCall: &model.ToolCall{
			ID: "c1", Name: ToolListRemoteAgents, Args: map[string]any{},
		}}}}, TurnComplete: true},
		answer("I know a merchant."),
	}}
	b := newTestBuyer(t, llm, shop)

	_, err := b.Chat(context.Background(), "s1", "who is there?")
	require.NoError(t, err)
	agents := lastToolResponse(t, llm.requests[1])["agents"].([]map[string]any)
	require.Len(t, agents, 1)
	assert.Equal(t, "merchant", agents[0]["name"])
	assert.Contains(t, llm.requests[0].SystemInstruction, "Sells bananas.")
}

func TestNewValidates(t *testing.T) {
	_, err := New(Config{Model: &scriptedLLM{}})
	assert.Error(t, err, "wallet is required")

	w, err := wallet.GenerateLocalWallet()
	require.NoError(t, err)
	shop, _ := newShop(t)
	_, err = New(Config{Model: &scriptedLLM{}, Wallet: w, Remotes: []Remote{shop, shop}})
	assert.Error(t, err, "duplicate remote")
}

func TestFormatResult(t *testing.T) {
	state := session.InMemoryService()
	sess, err := state.GetOrCreate(context.Background(), "app", "s")
	require.NoError(t, err)

	paid := task.New("t1", "c1")
	paid.Status.State = task.StateCompleted
	paid.Payment = x402.PaymentContext{
		Status:   x402.StatusCompleted,
		Receipts: []x402.SettleResponse{{Success: true, Transaction: "0xabc"}},
	}
	assert.Equal(t, "Payment successful!\nTx Hash: 0xabc", describe(paid, "merchant", sess.State()))

	failed := task.New("t2", "c1")
	failed.Status.State = task.StateFailed
	failed.Payment = x402.PaymentContext{Status: x402.StatusFailed, Error: "insufficient_funds"}
	assert.Equal(t, "Task with merchant: failed. Reason: insufficient_funds", describe(failed, "merchant", sess.State()))

	working := task.New("t3", "c1")
	working.Status.State = task.StateWorking
	assert.Equal(t, "Task with merchant: working", describe(working, "merchant", sess.State()))
}

type failingRemote struct{ inProcessRemote }

func (f *failingRemote) Send(context.Context, *a2a.Message, remoteagent.EventFunc) (remoteagent.Result, error) {
	return remoteagent.Result{}, errors.New("connection refused")
}

func TestRemoteFailureIsReportedToEngine(t *testing.T) {
	llm := &scriptedLLM{rounds: []*model.Response{
		send("down", "hello"),
		answer("The merchant is unreachable."),
	}}
	b := newTestBuyer(t, llm, &failingRemote{inProcessRemote{name: "down"}})

	reply, err := b.Chat(context.Background(), "s1", "hi")
	require.NoError(t, err)
	assert.Equal(t, "The merchant is unreachable.", reply)
	assert.Equal(t, "connection refused", lastToolResponse(t, llm.requests[1])["error"])
}
