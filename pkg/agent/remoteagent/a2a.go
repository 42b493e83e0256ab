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

package remoteagent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/a2aproject/a2a-go/a2aclient"
	"github.com/a2aproject/a2a-go/a2aclient/agentcard"

	"github.com/kadirpekel/paygate/pkg/httpclient"
)

// Config configures a remote A2A agent.
type Config struct {
	// Name overrides the name from the agent card.
	Name string

	// URL is the base URL of the remote A2A server. The card is fetched
	// from its well-known path.
	// Example: "http://localhost:8080"
	URL string

	// AgentCard provides the agent card directly.
	// Takes precedence over URL and AgentCardSource.
	AgentCard *a2a.AgentCard

	// AgentCardSource is a URL or file path to resolve the agent card.
	// Used if AgentCard is not provided.
	AgentCardSource string

	// Timeout bounds card resolution. Default: 30s.
	Timeout time.Duration

	// TLS configures the card resolver's transport.
	TLS *httpclient.TLSConfig
}

// Result is what a remote agent answered.
type Result struct {
	// TaskID is set when the agent answered with a task.
	TaskID a2a.TaskID

	// ContextID of the conversation.
	ContextID string

	// Message is set when the agent answered with a plain message.
	Message *a2a.Message
}

// EventFunc receives every task event of a send.
type EventFunc func(ctx context.Context, ev a2a.Event) error

// ErrNoResponse is returned when a stream ends before any task or message.
var ErrNoResponse = errors.New("remote agent returned no response")

// Connection is a client for one remote agent.
type Connection struct {
	name   string
	card   *a2a.AgentCard
	client *a2aclient.Client
}

// Dial resolves the agent card and creates a client for it.
func Dial(ctx context.Context, cfg Config) (*Connection, error) {
	if cfg.URL == "" && cfg.AgentCard == nil && cfg.AgentCardSource == "" {
		return nil, fmt.Errorf("one of URL, AgentCard, or AgentCardSource must be provided")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.URL != "" && cfg.AgentCardSource == "" && cfg.AgentCard == nil {
		cfg.AgentCardSource = strings.TrimSuffix(cfg.URL, "/")
	}

	card, err := resolveAgentCard(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("agent card resolution failed: %w", err)
	}

	client, err := a2aclient.NewFromCard(ctx, card)
	if err != nil {
		return nil, fmt.Errorf("client creation failed: %w", err)
	}

	name := cfg.Name
	if name == "" {
		name = card.Name
	}
	slog.Debug("Connected to remote agent", "name", name, "url", card.URL, "streaming", card.Capabilities.Streaming)
	return &Connection{name: name, card: card, client: client}, nil
}

func resolveAgentCard(ctx context.Context, cfg Config) (*a2a.AgentCard, error) {
	if cfg.AgentCard != nil {
		return cfg.AgentCard, nil
	}

	source := cfg.AgentCardSource
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		transport, err := cfg.TLS.Transport()
		if err != nil {
			return nil, fmt.Errorf("failed to configure TLS: %w", err)
		}
		httpClient := &http.Client{Timeout: cfg.Timeout, Transport: transport}
		card, err := agentcard.NewResolver(httpClient).Resolve(ctx, source)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch agent card from %s: %w", source, err)
		}
		return card, nil
	}

	fileBytes, err := os.ReadFile(source)
	if err != nil {
		return nil, fmt.Errorf("failed to read agent card from %q: %w", source, err)
	}
	var card a2a.AgentCard
	if err := json.Unmarshal(fileBytes, &card); err != nil {
		return nil, fmt.Errorf("failed to unmarshal agent card: %w", err)
	}
	return &card, nil
}

// Name returns the local name of the agent.
func (c *Connection) Name() string {
	return c.name
}

// Card returns the resolved agent card.
func (c *Connection) Card() *a2a.AgentCard {
	return c.card
}

// Send delivers msg. Agents that advertise streaming are consumed as a
// stream until the final status event; others are called once.
func (c *Connection) Send(ctx context.Context, msg *a2a.Message, onEvent EventFunc) (Result, error) {
	params := &a2a.MessageSendParams{Message: msg}
	if c.card.Capabilities.Streaming {
		return c.stream(ctx, params, onEvent)
	}
	return c.unary(ctx, params, onEvent)
}

func (c *Connection) unary(ctx context.Context, params *a2a.MessageSendParams, onEvent EventFunc) (Result, error) {
	resp, err := c.client.SendMessage(ctx, params)
	if err != nil {
		return Result{}, fmt.Errorf("agent %q: %w", c.name, err)
	}
	switch r := resp.(type) {
	case *a2a.Message:
		return Result{Message: r, ContextID: r.ContextID}, nil
	case *a2a.Task:
		if err := onEvent(ctx, r); err != nil {
			return Result{}, err
		}
		return Result{TaskID: r.ID, ContextID: r.ContextID}, nil
	default:
		return Result{}, fmt.Errorf("agent %q: unexpected response %T", c.name, resp)
	}
}

func (c *Connection) stream(ctx context.Context, params *a2a.MessageSendParams, onEvent EventFunc) (Result, error) {
	var res Result
	for ev, err := range c.client.SendStreamingMessage(ctx, params) {
		if err != nil {
			return Result{}, fmt.Errorf("agent %q: %w", c.name, err)
		}
		if m, ok := ev.(*a2a.Message); ok {
			return Result{Message: m, ContextID: m.ContextID}, nil
		}
		if err := onEvent(ctx, ev); err != nil {
			return Result{}, err
		}
		info := ev.TaskInfo()
		res.TaskID, res.ContextID = info.TaskID, info.ContextID
		if s, ok := ev.(*a2a.TaskStatusUpdateEvent); ok && s.Final {
			break
		}
	}
	if res.TaskID == "" {
		return Result{}, fmt.Errorf("agent %q: %w", c.name, ErrNoResponse)
	}
	return res, nil
}

// Close releases the client.
func (c *Connection) Close() error {
	return c.client.Destroy()
}
