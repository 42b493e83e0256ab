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

// Package gemini implements model.LLM for Google Gemini models using the
// official google.golang.org/genai SDK.
package gemini

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"iter"

	"google.golang.org/genai"

	"github.com/kadirpekel/paygate/pkg/model"
)

// DefaultModel is used when Config.Model is empty.
const DefaultModel = "gemini-2.5-flash"

// Config contains configuration for the Gemini model.
type Config struct {
	// APIKey is the Google AI API key.
	APIKey string

	// Model is the model name (e.g., "gemini-2.5-flash").
	Model string

	// MaxTokens limits the response length.
	MaxTokens int

	// Temperature controls randomness (0-2).
	Temperature float64
}

type geminiModel struct {
	client *genai.Client
	name   string
	config Config
}

// New creates a new Gemini model instance.
func New(cfg Config) (model.LLM, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &geminiModel{client: client, name: cfg.Model, config: cfg}, nil
}

func (m *geminiModel) Name() string {
	return m.name
}

func (m *geminiModel) Provider() model.Provider {
	return model.ProviderGemini
}

// GenerateContent produces responses for the given request.
func (m *geminiModel) GenerateContent(ctx context.Context, req *model.Request, stream bool) iter.Seq2[*model.Response, error] {
	if stream {
		return m.generateStream(ctx, req)
	}
	return func(yield func(*model.Response, error) bool) {
		yield(m.generate(ctx, req))
	}
}

func (m *geminiModel) Close() error {
	return nil
}

func (m *geminiModel) generate(ctx context.Context, req *model.Request) (*model.Response, error) {
	genResp, err := m.client.Models.GenerateContent(ctx, m.name, toContents(req.Contents), m.buildConfig(req))
	if err != nil {
		return nil, fmt.Errorf("Gemini generation failed: %w", err)
	}
	resp, err := parseResponse(genResp)
	if err != nil {
		return nil, err
	}
	resp.TurnComplete = true
	return resp, nil
}

// generateStream yields every chunk as a partial response and finishes with
// one aggregated response carrying all text and tool calls.
func (m *geminiModel) generateStream(ctx context.Context, req *model.Request) iter.Seq2[*model.Response, error] {
	return func(yield func(*model.Response, error) bool) {
		agg := &model.Content{Role: model.RoleModel}
		var text string
		seen := make(map[string]bool)
		var last *model.Response

		for genResp, err := range m.client.Models.GenerateContentStream(ctx, m.name, toContents(req.Contents), m.buildConfig(req)) {
			if err != nil {
				yield(nil, fmt.Errorf("Gemini streaming error: %w", err))
				return
			}
			chunk, err := parseResponse(genResp)
			if err != nil {
				continue
			}
			last = chunk
			for _, p := range chunk.Content.Parts {
				switch {
				case p.ToolCall != nil:
					if !seen[p.ToolCall.ID] {
						seen[p.ToolCall.ID] = true
						agg.Parts = append(agg.Parts, p)
					}
				case p.Text != "":
					text += p.Text
				}
			}
			chunk.Partial = true
			if !yield(chunk, nil) {
				return
			}
		}

		final := &model.Response{Content: agg, TurnComplete: true, FinishReason: model.FinishReasonStop}
		if text != "" {
			agg.Parts = append([]model.Part{{Text: text}}, agg.Parts...)
		}
		if last != nil {
			final.FinishReason = last.FinishReason
			final.Usage = last.Usage
		}
		yield(final, nil)
	}
}

func (m *geminiModel) buildConfig(req *model.Request) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{}
	if req.SystemInstruction != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.SystemInstruction}}}
	}
	if cfg := req.Config; cfg != nil {
		if cfg.Temperature != nil {
			config.Temperature = genai.Ptr(float32(*cfg.Temperature))
		}
		if cfg.MaxTokens != nil {
			config.MaxOutputTokens = int32(*cfg.MaxTokens)
		}
	}
	if config.Temperature == nil && m.config.Temperature > 0 {
		config.Temperature = genai.Ptr(float32(m.config.Temperature))
	}
	if config.MaxOutputTokens == 0 && m.config.MaxTokens > 0 {
		config.MaxOutputTokens = int32(m.config.MaxTokens)
	}
	if len(req.Tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(req.Tools))
		for _, t := range req.Tools {
			decls = append(decls, &genai.FunctionDeclaration{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  toGenaiSchema(t.Parameters),
			})
		}
		config.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}
	return config
}

func toContents(contents []*model.Content) []*genai.Content {
	out := make([]*genai.Content, 0, len(contents))
	for _, c := range contents {
		if c == nil {
			continue
		}
		var parts []*genai.Part
		for _, p := range c.Parts {
			switch {
			case p.ToolCall != nil:
				parts = append(parts, &genai.Part{FunctionCall: &genai.FunctionCall{
					ID: p.ToolCall.ID, Name: p.ToolCall.Name, Args: p.ToolCall.Args,
				}})
			case p.ToolResult != nil:
				parts = append(parts, &genai.Part{FunctionResponse: &genai.FunctionResponse{
					ID: p.ToolResult.ID, Name: p.ToolResult.Name, Response: p.ToolResult.Response,
				}})
			case p.Text != "":
				parts = append(parts, &genai.Part{Text: p.Text})
			}
		}
		if len(parts) == 0 {
			continue
		}
		// Gemini expects function responses in user turns.
		role := genai.RoleUser
		if c.Role == model.RoleModel {
			role = genai.RoleModel
		}
		out = append(out, &genai.Content{Role: role, Parts: parts})
	}
	return out
}

func parseResponse(genResp *genai.GenerateContentResponse) (*model.Response, error) {
	if genResp == nil || len(genResp.Candidates) == 0 {
		return nil, fmt.Errorf("empty response from Gemini")
	}
	candidate := genResp.Candidates[0]
	resp := &model.Response{
		Content:      &model.Content{Role: model.RoleModel},
		FinishReason: mapFinishReason(candidate.FinishReason),
	}
	if candidate.Content != nil {
		for _, part := range candidate.Content.Parts {
			if part.Text != "" && !part.Thought {
				resp.Content.Parts = append(resp.Content.Parts, model.Part{Text: part.Text})
			}
			if fc := part.FunctionCall; fc != nil {
				id := fc.ID
				if id == "" {
					id = stableCallID(fc.Name, fc.Args)
				}
				resp.Content.Parts = append(resp.Content.Parts, model.Part{
					ToolCall: &model.ToolCall{ID: id, Name: fc.Name, Args: fc.Args},
				})
			}
		}
	}
	if u := genResp.UsageMetadata; u != nil {
		resp.Usage = &model.Usage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}
	return resp, nil
}

// stableCallID derives an ID from name and args so a call repeated across
// stream chunks without an ID is recognized as the same call.
func stableCallID(name string, args map[string]any) string {
	raw, _ := json.Marshal(map[string]any{"name": name, "args": args})
	sum := sha256.Sum256(raw)
	return fmt.Sprintf("call-%x", sum[:12])
}

// toGenaiSchema converts a JSON schema to a Gemini schema.
func toGenaiSchema(schema map[string]any) *genai.Schema {
	if schema == nil {
		return nil
	}
	s := &genai.Schema{}
	if t, ok := schema["type"].(string); ok {
		s.Type = genai.Type(t)
	}
	if desc, ok := schema["description"].(string); ok {
		s.Description = desc
	}
	if props, ok := schema["properties"].(map[string]any); ok {
		s.Properties = make(map[string]*genai.Schema, len(props))
		for name, prop := range props {
			if propMap, ok := prop.(map[string]any); ok {
				s.Properties[name] = toGenaiSchema(propMap)
			}
		}
	}
	if required, ok := schema["required"].([]any); ok {
		for _, r := range required {
			if rs, ok := r.(string); ok {
				s.Required = append(s.Required, rs)
			}
		}
	}
	if items, ok := schema["items"].(map[string]any); ok {
		s.Items = toGenaiSchema(items)
	}
	if enum, ok := schema["enum"].([]any); ok {
		for _, e := range enum {
			if es, ok := e.(string); ok {
				s.Enum = append(s.Enum, es)
			}
		}
	}
	return s
}

func mapFinishReason(reason genai.FinishReason) model.FinishReason {
	switch reason {
	case genai.FinishReasonMaxTokens:
		return model.FinishReasonLength
	case genai.FinishReasonSafety:
		return model.FinishReasonContent
	default:
		return model.FinishReasonStop
	}
}

var _ model.LLM = (*geminiModel)(nil)
