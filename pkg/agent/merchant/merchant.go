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

// Package merchant is a shop agent that sells catalog items behind a
// payment gate.
//
// Merchant implements payment.BusinessExecutor. The engine prices a product
// with a tool that suspends the run for payment. Once the gate has settled
// the payment, the next run is told so through a check_payment_status tool
// response and the engine confirms the order.
package merchant

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/kadirpekel/paygate/pkg/agent/llmagent"
	"github.com/kadirpekel/paygate/pkg/model"
	"github.com/kadirpekel/paygate/pkg/payment"
	"github.com/kadirpekel/paygate/pkg/session"
	"github.com/kadirpekel/paygate/pkg/tool"
	"github.com/kadirpekel/paygate/pkg/x402"
)

// DefaultName is the agent name used when none is configured.
const DefaultName = "merchant"

// DefaultInstruction steers the engine through a sale.
const DefaultInstruction = `You are a helpful and friendly merchant agent.
- When a user asks to buy an item, use the ` + "`" + ToolRequestPayment + "`" + ` tool.
- If you receive a successful result from the ` + "`" + ToolCheckPaymentStatus + "`" + ` tool, you MUST confirm the purchase with the user and tell them their order is being prepared. Do not ask for payment again.
- If the system tells you the payment failed, relay the error clearly and politely.`

// Config configures a Merchant.
type Config struct {
	// Name of the agent. Default: "merchant"
	Name string

	// Description is shown on the agent card.
	Description string

	// Model is the reasoning engine.
	Model model.LLM

	// Instruction overrides DefaultInstruction.
	Instruction string

	// Catalog is what is for sale.
	Catalog Catalog

	// Sessions keeps conversations across the suspended and resumed runs of
	// a task. Default: in-memory.
	Sessions session.Service

	// MaxIterations caps engine rounds per run.
	MaxIterations int

	// EnableStreaming consumes the engine in streaming mode.
	EnableStreaming bool

	GenerateConfig *model.GenerateConfig
}

// Merchant sells catalog items.
type Merchant struct {
	name        string
	description string
	agent       *llmagent.Agent
	sessions    session.Service
	streaming   bool
	catalog     atomic.Pointer[Catalog]
}

// New creates a merchant.
func New(cfg Config) (*Merchant, error) {
	if cfg.Name == "" {
		cfg.Name = DefaultName
	}
	if cfg.Instruction == "" {
		cfg.Instruction = DefaultInstruction
	}
	if cfg.Description == "" {
		cfg.Description = "Sells any item and collects payment in-band using the x402 protocol."
	}
	if cfg.Sessions == nil {
		cfg.Sessions = session.InMemoryService()
	}

	m := &Merchant{name: cfg.Name, description: cfg.Description, sessions: cfg.Sessions, streaming: cfg.EnableStreaming}
	if err := m.SetCatalog(cfg.Catalog); err != nil {
		return nil, err
	}

	buy, err := newRequestPaymentTool(m.currentCatalog)
	if err != nil {
		return nil, err
	}
	m.agent, err = llmagent.New(llmagent.Config{
		Name:            cfg.Name,
		Model:           cfg.Model,
		Instruction:     cfg.Instruction,
		Tools:           []tool.CallableTool{buy},
		MaxIterations:   cfg.MaxIterations,
		EnableStreaming: cfg.EnableStreaming,
		GenerateConfig:  cfg.GenerateConfig,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create merchant agent: %w", err)
	}
	return m, nil
}

// Name returns the agent name.
func (m *Merchant) Name() string {
	return m.name
}

// Catalog returns a copy of the current catalog.
func (m *Merchant) Catalog() Catalog {
	return m.currentCatalog().Clone()
}

// SetCatalog replaces the catalog. Challenges already issued keep their
// prices.
func (m *Merchant) SetCatalog(c Catalog) error {
	if err := c.Validate(); err != nil {
		return err
	}
	c = c.Clone()
	m.catalog.Store(&c)
	return nil
}

func (m *Merchant) currentCatalog() *Catalog {
	return m.catalog.Load()
}

// Execute implements payment.BusinessExecutor. The conversation is keyed by
// the A2A context so a resumed task sees its earlier turns.
func (m *Merchant) Execute(ctx context.Context, inv *payment.Invocation) (tool.Outcome, error) {
	sess, err := m.sessions.GetOrCreate(ctx, m.name, inv.Updater.ContextID())
	if err != nil {
		return nil, fmt.Errorf("failed to open session: %w", err)
	}
	defer session.ClearTempKeys(sess.State())

	run := &llmagent.Run{Session: sess, Emitter: inv.Updater}
	if inv.Verified != nil {
		slog.Info("Resuming sale after payment",
			"agent", m.name,
			"taskID", inv.Updater.TaskID(),
			"transaction", inv.Verified.Transaction)
		sess.Append(paymentConfirmation(inv.Verified)...)
	} else {
		run.Input = model.FromA2A(inv.Message)
	}

	return m.agent.Run(ctx, run)
}

// paymentConfirmation is the turn sequence that tells the engine a payment
// went through: a status check call, its result, and a nudge to continue.
func paymentConfirmation(v *x402.VerifiedPayment) []*model.Content {
	call := model.ToolCall{ID: "payment-" + uuid.NewString(), Name: ToolCheckPaymentStatus, Args: map[string]any{}}
	return []*model.Content{
		{Role: model.RoleModel, Parts: []model.Part{{ToolCall: &call}}},
		{Role: model.RoleTool, Parts: []model.Part{{ToolResult: &model.ToolResult{
			ID:   call.ID,
			Name: call.Name,
			Response: map[string]any{
				"status":      "SUCCESS",
				"transaction": v.Transaction,
				"network":     v.Network,
				"payer":       v.Payer,
			},
		}}}},
		model.NewTextContent(model.RoleUser, "Payment verified. Please proceed."),
	}
}

var _ payment.BusinessExecutor = (*Merchant)(nil)
