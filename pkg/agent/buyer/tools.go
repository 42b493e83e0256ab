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
	"fmt"
	"log/slog"
	"strings"

	"github.com/a2aproject/a2a-go/a2a"

	"github.com/kadirpekel/paygate/pkg/task"
	"github.com/kadirpekel/paygate/pkg/tool"
	"github.com/kadirpekel/paygate/pkg/tool/functiontool"
	"github.com/kadirpekel/paygate/pkg/x402"
)

// Tool names the engine sees.
const (
	ToolListRemoteAgents = "list_remote_agents"
	ToolSendMessage      = "send_message"
)

// SignAndSendPayment is the message that pays the pending purchase.
const SignAndSendPayment = "sign_and_send_payment"

// Text sent along with a signed payment.
const signedPaymentText = "send_signed_payment_payload"

// Session state keys.
const (
	stateContextID    = "context_id"
	statePurchaseTask = "purchase_task"
)

var (
	// ErrUnknownAgent is returned for messages to agents the buyer does not know.
	ErrUnknownAgent = errors.New("agent not found")

	// ErrNoPendingPurchase is returned when paying with nothing to pay for.
	ErrNoPendingPurchase = errors.New("no purchase awaiting payment")

	// ErrNoPaymentRequirements is returned when the pending task has no options.
	ErrNoPaymentRequirements = errors.New("no payment requirements found")
)

type sendMessageArgs struct {
	AgentName string `json:"agent_name" jsonschema:"required,description=Name of the remote agent"`
	Message   string `json:"message" jsonschema:"required,description=Message for the agent, or sign_and_send_payment to pay the pending purchase"`
}

type noArgs struct{}

func (b *Buyer) tools() ([]tool.CallableTool, error) {
	list, err := functiontool.New(functiontool.Config{
		Name:        ToolListRemoteAgents,
		Description: "Lists the remote agents you can delegate to.",
	}, func(tool.Context, noArgs) (map[string]any, error) {
		return map[string]any{"agents": b.agentInfo()}, nil
	})
	if err != nil {
		return nil, err
	}

	send, err := functiontool.New(functiontool.Config{
		Name:        ToolSendMessage,
		Description: "Sends a message to a remote agent and returns its answer. Payment requests are handled transparently.",
	}, b.sendMessage)
	if err != nil {
		return nil, err
	}
	return []tool.CallableTool{list, send}, nil
}

func (b *Buyer) sendMessage(ctx tool.Context, args sendMessageArgs) (map[string]any, error) {
	remote, ok := b.remotes[args.AgentName]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAgent, args.AgentName)
	}
	state := ctx.State()

	var msg *a2a.Message
	if strings.TrimSpace(args.Message) == SignAndSendPayment {
		signed, err := b.signPayment(ctx, state)
		if err != nil {
			return nil, err
		}
		msg = signed
	} else {
		msg = a2a.NewMessage(a2a.MessageRoleUser, a2a.TextPart{Text: args.Message})
		if cid, ok := state.Get(stateContextID); ok {
			msg.ContextID, _ = cid.(string)
		}
	}

	res, err := remote.Send(ctx, msg, b.apply)
	if err != nil {
		slog.Error("Remote agent call failed", "agent", args.AgentName, "error", err)
		return nil, err
	}
	if res.ContextID != "" {
		state.Set(stateContextID, res.ContextID)
	}
	if res.Message != nil {
		return map[string]any{"response": messageText(res.Message)}, nil
	}

	t, err := b.registry.Get(ctx, res.TaskID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"response": describe(t, remote.Name(), state)}, nil
}

func (b *Buyer) apply(ctx context.Context, ev a2a.Event) error {
	_, err := b.registry.ApplyEvent(ctx, ev)
	return err
}

// signPayment signs the challenge of the pending purchase and builds the
// message that resumes it.
func (b *Buyer) signPayment(ctx context.Context, state tool.State) (*a2a.Message, error) {
	raw, _ := state.Get(statePurchaseTask)
	id, _ := raw.(string)
	if id == "" {
		return nil, ErrNoPendingPurchase
	}
	t, err := b.registry.Get(ctx, a2a.TaskID(id))
	if err != nil {
		return nil, err
	}
	if t.Payment.Required == nil || len(t.Payment.Required.Accepts) == 0 {
		return nil, ErrNoPaymentRequirements
	}

	payload, err := b.wallet.SignPayment(ctx, t.Payment.Required)
	if err != nil {
		return nil, fmt.Errorf("failed to sign payment: %w", err)
	}
	md, err := x402.PaymentContext{Status: x402.StatusSubmitted, Payload: payload}.Metadata()
	if err != nil {
		return nil, err
	}
	slog.Info("Payment signed", "taskID", t.ID, "network", payload.Network, "payer", b.wallet.Address())

	msg := a2a.NewMessage(a2a.MessageRoleUser, a2a.TextPart{Text: signedPaymentText})
	msg.TaskID = t.ID
	msg.ContextID = t.ContextID
	msg.Metadata = md
	return msg, nil
}

// describe renders a remote task for the engine.
func describe(t *task.Task, agentName string, state tool.State) string {
	switch {
	case t.Status.State == task.StateInputRequired && t.Payment.Required != nil && len(t.Payment.Required.Accepts) > 0:
		state.Set(statePurchaseTask, string(t.ID))
		opt := t.Payment.Required.Cheapest()
		return fmt.Sprintf("The merchant is requesting payment of %s %s. Approve?", opt.Amount, opt.TokenName())
	case t.Status.State == task.StateInputRequired:
		if text := messageText(t.Status.Message); text != "" {
			return text
		}
	case t.Status.State.IsTerminal():
		if pending, _ := state.Get(statePurchaseTask); pending == string(t.ID) {
			state.Delete(statePurchaseTask)
		}
		return formatResult(t, agentName)
	}
	return fmt.Sprintf("Task with %s: %s", agentName, t.Status.State)
}

func formatResult(t *task.Task, agentName string) string {
	var txMsg string
	if receipt := t.Payment.LatestReceipt(); receipt != nil && receipt.Transaction != "" {
		txMsg = "\nTx Hash: " + receipt.Transaction
	}

	if texts := t.ArtifactTexts(); len(texts) > 0 {
		return strings.Join(texts, " ") + txMsg
	}
	if t.Payment.Status == x402.StatusCompleted && t.Status.State == task.StateCompleted {
		return "Payment successful!" + txMsg
	}
	if t.Payment.Error != "" {
		return fmt.Sprintf("Task with %s: %s. Reason: %s", agentName, t.Status.State, t.Payment.Error)
	}
	return fmt.Sprintf("Task with %s: %s.", agentName, t.Status.State)
}

func messageText(msg *a2a.Message) string {
	if msg == nil {
		return ""
	}
	var texts []string
	for _, p := range msg.Parts {
		if tp, ok := p.(a2a.TextPart); ok {
			texts = append(texts, tp.Text)
		}
	}
	return strings.Join(texts, " ")
}
