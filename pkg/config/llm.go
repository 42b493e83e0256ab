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

package config

import (
	"fmt"
	"os"
)

// LLMProvider identifies a reasoning engine backend.
type LLMProvider string

const (
	LLMProviderGemini LLMProvider = "gemini"
)

// LLMConfig configures the reasoning engine used by both agents.
//
//	llm:
//	  provider: gemini
//	  model: gemini-2.5-flash
//	  api_key: ${GEMINI_API_KEY}
type LLMConfig struct {
	// Provider selects the backend.
	// Default: gemini
	Provider LLMProvider `yaml:"provider,omitempty"`

	// Model name.
	// Default: gemini-2.5-flash
	Model string `yaml:"model,omitempty"`

	// APIKey falls back to the provider's environment variable.
	APIKey string `yaml:"api_key,omitempty"`

	// Temperature controls randomness (0-2).
	Temperature *float64 `yaml:"temperature,omitempty"`

	// MaxTokens limits response length. Zero leaves the provider default.
	MaxTokens int `yaml:"max_tokens,omitempty"`

	// MaxIterations caps reasoning/tool rounds per turn.
	// Default: 10
	MaxIterations int `yaml:"max_iterations,omitempty"`
}

// SetDefaults applies default values.
func (c *LLMConfig) SetDefaults() {
	if c.Provider == "" {
		c.Provider = LLMProviderGemini
	}
	if c.Model == "" {
		c.Model = "gemini-2.5-flash"
	}
	if c.APIKey == "" {
		c.APIKey = GetProviderAPIKey(c.Provider)
	}
	if c.MaxIterations == 0 {
		c.MaxIterations = 10
	}
}

// Validate checks the LLM configuration. A missing API key is reported when
// the model is built, so commands that never reason can run without one.
func (c *LLMConfig) Validate() error {
	if c.Provider != LLMProviderGemini {
		return fmt.Errorf("unsupported llm.provider %q (valid: gemini)", c.Provider)
	}
	if c.Temperature != nil && (*c.Temperature < 0 || *c.Temperature > 2) {
		return fmt.Errorf("llm.temperature must be between 0 and 2")
	}
	if c.MaxIterations < 0 {
		return fmt.Errorf("llm.max_iterations must not be negative")
	}
	return nil
}

// GetProviderAPIKey reads the conventional API key variable of a provider.
func GetProviderAPIKey(provider LLMProvider) string {
	switch provider {
	case LLMProviderGemini:
		if key := os.Getenv("GEMINI_API_KEY"); key != "" {
			return key
		}
		return os.Getenv("GOOGLE_API_KEY")
	default:
		return ""
	}
}
