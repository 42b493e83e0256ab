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

// Package model defines the reasoning engine interface.
//
// GenerateContent returns iter.Seq2[*Response, error] for both modes:
//   - stream=false yields exactly one Response
//   - stream=true yields partial Responses (Partial=true) and then one
//     aggregated Response (Partial=false)
package model

import (
	"context"
	"encoding/json"
	"iter"
	"strings"

	"github.com/a2aproject/a2a-go/a2a"

	"github.com/kadirpekel/paygate/pkg/tool"
)

// LLM is the interface for reasoning engines.
type LLM interface {
	// Name returns the model identifier.
	Name() string

	// Provider returns the provider type.
	Provider() Provider

	// GenerateContent produces responses for the given request.
	GenerateContent(ctx context.Context, req *Request, stream bool) iter.Seq2[*Response, error]

	// Close releases any resources held by the LLM.
	Close() error
}

// Provider identifies the engine provider.
type Provider string

const (
	ProviderGemini  Provider = "gemini"
	ProviderUnknown Provider = "unknown"
)

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"

	// RoleTool carries tool results back to the engine.
	RoleTool Role = "tool"
)

// ToolCall is a tool invocation requested by the engine.
type ToolCall struct {
	ID   string
	Name string
	Args map[string]any
}

// ToolResult answers a ToolCall.
type ToolResult struct {
	ID       string
	Name     string
	Response map[string]any
}

// Part is one piece of a turn. Exactly one field is set.
type Part struct {
	Text       string
	ToolCall   *ToolCall
	ToolResult *ToolResult
}

// Content is one conversation turn.
type Content struct {
	Role  Role
	Parts []Part
}

// NewTextContent creates a single text turn.
func NewTextContent(role Role, text string) *Content {
	return &Content{Role: role, Parts: []Part{{Text: text}}}
}

// Text concatenates the text parts of c.
func (c *Content) Text() string {
	if c == nil {
		return ""
	}
	var b strings.Builder
	for _, p := range c.Parts {
		b.WriteString(p.Text)
	}
	return b.String()
}

// ToolCalls returns the tool calls in c.
func (c *Content) ToolCalls() []ToolCall {
	if c == nil {
		return nil
	}
	var calls []ToolCall
	for _, p := range c.Parts {
		if p.ToolCall != nil {
			calls = append(calls, *p.ToolCall)
		}
	}
	return calls
}

// FromA2A converts the text and data parts of a protocol message into a turn.
func FromA2A(msg *a2a.Message) *Content {
	if msg == nil {
		return nil
	}
	role := RoleUser
	if msg.Role == a2a.MessageRoleAgent {
		role = RoleModel
	}
	c := &Content{Role: role}
	for _, p := range msg.Parts {
		switch part := p.(type) {
		case a2a.TextPart:
			c.Parts = append(c.Parts, Part{Text: part.Text})
		case a2a.DataPart:
			c.Parts = append(c.Parts, Part{Text: dataText(part.Data)})
		}
	}
	return c
}

// ToA2A converts the text of a turn into protocol parts.
func (c *Content) ToA2A() []a2a.Part {
	if c == nil {
		return nil
	}
	var parts []a2a.Part
	for _, p := range c.Parts {
		if p.Text != "" {
			parts = append(parts, a2a.TextPart{Text: p.Text})
		}
	}
	return parts
}

// ToolDefinition describes a tool to the engine.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Definitions builds definitions for tools.
func Definitions[T tool.Tool](tools []T) []ToolDefinition {
	defs := make([]ToolDefinition, 0, len(tools))
	for _, t := range tools {
		defs = append(defs, ToolDefinition{Name: t.Name(), Description: t.Description(), Parameters: t.Schema()})
	}
	return defs
}

// Request contains the input for an engine call.
type Request struct {
	// Contents is the conversation history.
	Contents []*Content

	// Tools available for the engine to call.
	Tools []ToolDefinition

	// SystemInstruction is prepended to the conversation.
	SystemInstruction string

	Config *GenerateConfig
}

// GenerateConfig contains configuration for generation.
type GenerateConfig struct {
	Temperature *float64
	MaxTokens   *int
}

// Response contains the result of an engine call.
type Response struct {
	Content *Content

	// Partial marks a streaming chunk; the aggregated response has Partial=false.
	Partial bool

	// TurnComplete indicates whether the engine has finished its turn.
	TurnComplete bool

	FinishReason FinishReason
	Usage        *Usage
}

// IsFinal reports whether the response is a final answer: a complete turn
// with content and no tool calls.
func (r *Response) IsFinal() bool {
	return r != nil && !r.Partial && r.TurnComplete && r.Content != nil &&
		len(r.Content.Parts) > 0 && len(r.Content.ToolCalls()) == 0
}

// Usage contains token usage statistics.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// FinishReason indicates why generation stopped.
type FinishReason string

const (
	FinishReasonStop    FinishReason = "stop"
	FinishReasonLength  FinishReason = "length"
	FinishReasonContent FinishReason = "content_filter"
	FinishReasonError   FinishReason = "error"
)

func dataText(data map[string]any) string {
	raw, err := json.Marshal(data)
	if err != nil {
		return ""
	}
	return string(raw)
}
