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

// Package buyer is an orchestrator that shops from remote agents and pays
// them with a wallet.
//
// The engine talks to remote agents through the send_message tool. When a
// merchant suspends a task for payment the buyer asks the user to approve;
// sending "sign_and_send_payment" signs the pending challenge and resumes
// the merchant's task with the signed payload.
package buyer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/a2aproject/a2a-go/a2a"

	"github.com/kadirpekel/paygate/pkg/agent/llmagent"
	"github.com/kadirpekel/paygate/pkg/agent/remoteagent"
	"github.com/kadirpekel/paygate/pkg/model"
	"github.com/kadirpekel/paygate/pkg/session"
	"github.com/kadirpekel/paygate/pkg/task"
	"github.com/kadirpekel/paygate/pkg/tool"
	"github.com/kadirpekel/paygate/pkg/wallet"
)

// DefaultName is the agent name used when none is configured.
const DefaultName = "buyer"

// DefaultInstruction is the standard operating procedure of the buyer.
const DefaultInstruction = `You are an orchestrator agent. Complete user requests by delegating to specialized agents.

**SOP:**
1. Use ` + "`" + ToolListRemoteAgents + "`" + ` to discover available agents.
2. Use ` + "`" + ToolSendMessage + "`" + ` to delegate the request.
3. If payment is required, present the confirmation to the user.
4. If the user confirms, call ` + "`" + ToolSendMessage + "`" + ` again with: "` + SignAndSendPayment + `".
5. Report the final outcome.`

// Remote is a remote agent the buyer can message.
type Remote interface {
	Name() string
	Card() *a2a.AgentCard
	Send(ctx context.Context, msg *a2a.Message, onEvent remoteagent.EventFunc) (remoteagent.Result, error)
}

// Config configures a Buyer.
type Config struct {
	// Name of the agent. Default: "buyer"
	Name string

	// Model is the reasoning engine.
	Model model.LLM

	// Instruction overrides DefaultInstruction. The list of remote agents
	// is appended to it.
	Instruction string

	// Wallet signs payments.
	Wallet wallet.Wallet

	// Remotes are the agents the buyer can talk to.
	Remotes []Remote

	// Registry tracks remote tasks. Default: in-memory.
	Registry *task.Registry

	// Sessions holds conversations. Default: in-memory.
	Sessions session.Service

	MaxIterations   int
	EnableStreaming bool
}

// Buyer is the requester side of a purchase.
type Buyer struct {
	name     string
	agent    *llmagent.Agent
	wallet   wallet.Wallet
	registry *task.Registry
	sessions session.Service
	remotes  map[string]Remote
	order    []string
}

// New creates a buyer.
func New(cfg Config) (*Buyer, error) {
	if cfg.Wallet == nil {
		return nil, errors.New("buyer: wallet is required")
	}
	if cfg.Name == "" {
		cfg.Name = DefaultName
	}
	if cfg.Instruction == "" {
		cfg.Instruction = DefaultInstruction
	}
	if cfg.Registry == nil {
		cfg.Registry = task.NewRegistry()
	}
	if cfg.Sessions == nil {
		cfg.Sessions = session.InMemoryService()
	}

	b := &Buyer{
		name:     cfg.Name,
		wallet:   cfg.Wallet,
		registry: cfg.Registry,
		sessions: cfg.Sessions,
		remotes:  make(map[string]Remote, len(cfg.Remotes)),
	}
	for _, r := range cfg.Remotes {
		if _, dup := b.remotes[r.Name()]; dup {
			return nil, fmt.Errorf("buyer: duplicate remote agent %q", r.Name())
		}
		b.remotes[r.Name()] = r
		b.order = append(b.order, r.Name())
	}

	tools, err := b.tools()
	if err != nil {
		return nil, err
	}
	instruction, err := b.instruction(cfg.Instruction)
	if err != nil {
		return nil, err
	}
	b.agent, err = llmagent.New(llmagent.Config{
		Name:            cfg.Name,
		Model:           cfg.Model,
		Instruction:     instruction,
		Tools:           tools,
		MaxIterations:   cfg.MaxIterations,
		EnableStreaming: cfg.EnableStreaming,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create buyer agent: %w", err)
	}
	return b, nil
}

func (b *Buyer) instruction(base string) (string, error) {
	info, err := json.MarshalIndent(b.agentInfo(), "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to describe remote agents: %w", err)
	}
	return base + "\n\n**Available Agents:**\n" + string(info), nil
}

func (b *Buyer) agentInfo() []map[string]any {
	out := make([]map[string]any, 0, len(b.order))
	for _, name := range b.order {
		desc := ""
		if card := b.remotes[name].Card(); card != nil {
			desc = card.Description
		}
		out = append(out, map[string]any{"name": name, "description": desc})
	}
	return out
}

// Registry returns the tasks the buyer has seen.
func (b *Buyer) Registry() *task.Registry {
	return b.registry
}

// Chat sends one user turn and returns the buyer's answer. Turns with the
// same sessionID share history and the pending purchase.
func (b *Buyer) Chat(ctx context.Context, sessionID, text string) (string, error) {
	sess, err := b.sessions.GetOrCreate(ctx, b.name, sessionID)
	if err != nil {
		return "", fmt.Errorf("failed to open session: %w", err)
	}
	defer session.ClearTempKeys(sess.State())

	out := &transcript{}
	outcome, err := b.agent.Run(ctx, &llmagent.Run{
		Session: sess,
		Input:   model.NewTextContent(model.RoleUser, text),
		Emitter: out,
	})
	if err != nil {
		return "", err
	}
	if failed, ok := outcome.(tool.Failed); ok {
		return out.String(), fmt.Errorf("buyer: %s", failed.Reason)
	}
	return out.String(), nil
}

// transcript collects the visible answer of a run.
type transcript struct {
	texts []string
}

func (t *transcript) Working(_ context.Context, text string) error {
	slog.Debug("Buyer working", "text", text)
	return nil
}

func (t *transcript) AddArtifact(_ context.Context, parts ...a2a.Part) error {
	for _, p := range parts {
		if tp, ok := p.(a2a.TextPart); ok {
			t.texts = append(t.texts, tp.Text)
		}
	}
	return nil
}

func (t *transcript) Complete(context.Context) error { return nil }

func (t *transcript) String() string {
	return strings.Join(t.texts, "\n")
}

var _ llmagent.Emitter = (*transcript)(nil)
