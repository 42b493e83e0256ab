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
	"time"
)

// BuyerConfig configures the purchasing agent.
//
//	buyer:
//	  remotes:
//	    - name: banana_shop
//	      url: http://localhost:8080
type BuyerConfig struct {
	// Name of the buyer agent.
	// Default: buyer
	Name string `yaml:"name,omitempty"`

	// Instruction overrides the built-in system instruction.
	Instruction string `yaml:"instruction,omitempty"`

	// Remotes are the merchant agents the buyer can talk to.
	Remotes []RemoteAgentConfig `yaml:"remotes,omitempty"`
}

// RemoteAgentConfig locates one merchant agent.
type RemoteAgentConfig struct {
	// Name the buyer uses to address the agent.
	Name string `yaml:"name"`

	// URL is the agent's base URL; its card is resolved from the well-known path.
	URL string `yaml:"url,omitempty"`

	// AgentCard is an http(s) URL or file path of the agent card, used
	// instead of URL discovery.
	AgentCard string `yaml:"agent_card,omitempty"`

	// Timeout bounds each request.
	// Default: 30s
	Timeout time.Duration `yaml:"timeout,omitempty"`

	// InsecureSkipVerify disables TLS verification (dev only).
	InsecureSkipVerify bool `yaml:"insecure_skip_verify,omitempty"`
}

// SetDefaults applies default values.
func (c *BuyerConfig) SetDefaults() {
	if c.Name == "" {
		c.Name = "buyer"
	}
	for i := range c.Remotes {
		if c.Remotes[i].Timeout == 0 {
			c.Remotes[i].Timeout = 30 * time.Second
		}
	}
}

// Validate checks remote names are unique and each remote is locatable.
func (c *BuyerConfig) Validate() error {
	seen := make(map[string]bool, len(c.Remotes))
	for i, r := range c.Remotes {
		if r.Name == "" {
			return fmt.Errorf("buyer.remotes[%d].name is required", i)
		}
		if seen[r.Name] {
			return fmt.Errorf("buyer.remotes: duplicate name %q", r.Name)
		}
		seen[r.Name] = true
		if r.URL == "" && r.AgentCard == "" {
			return fmt.Errorf("buyer.remotes[%s]: url or agent_card is required", r.Name)
		}
	}
	return nil
}
