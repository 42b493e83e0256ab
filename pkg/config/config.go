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

// Package config loads paygate configuration.
//
// Configuration is YAML (or JSON) with ${VAR} and ${VAR:-default}
// expansion. It can come from a file or a key in Consul, etcd or
// ZooKeeper, and the Loader can watch the source and hand reloaded
// configs to a callback.
package config

import (
	"fmt"

	"github.com/kadirpekel/paygate/pkg/observability"
)

// Config is the root configuration.
type Config struct {
	Server        ServerConfig         `yaml:"server,omitempty"`
	Merchant      MerchantConfig       `yaml:"merchant,omitempty"`
	Facilitator   FacilitatorConfig    `yaml:"facilitator,omitempty"`
	Wallet        WalletConfig         `yaml:"wallet,omitempty"`
	LLM           LLMConfig            `yaml:"llm,omitempty"`
	Storage       StorageConfig        `yaml:"storage,omitempty"`
	Observability observability.Config `yaml:"observability,omitempty"`
	Logging       LoggerConfig         `yaml:"logging,omitempty"`
	Buyer         BuyerConfig          `yaml:"buyer,omitempty"`
}

// Default returns a config with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.SetDefaults()
	return cfg
}

// SetDefaults applies default values to every section.
func (c *Config) SetDefaults() {
	c.Server.SetDefaults()
	c.Merchant.SetDefaults()
	c.Facilitator.SetDefaults()
	c.Wallet.SetDefaults()
	c.LLM.SetDefaults()
	c.Storage.SetDefaults()
	c.Observability.SetDefaults()
	c.Logging.SetDefaults()
	c.Buyer.SetDefaults()
}

// Validate checks every section. The merchant section is only checked when
// it is present; commands that sell call Merchant.Validate themselves.
func (c *Config) Validate() error {
	type section struct {
		name     string
		validate func() error
	}
	checks := []section{
		{"server", c.Server.Validate},
		{"facilitator", c.Facilitator.Validate},
		{"llm", c.LLM.Validate},
		{"storage", c.Storage.Validate},
		{"observability", c.Observability.Validate},
		{"logging", c.Logging.Validate},
		{"buyer", c.Buyer.Validate},
	}
	if c.Merchant.IsConfigured() {
		checks = append(checks, section{"merchant", c.Merchant.Validate})
	}

	for _, check := range checks {
		if err := check.validate(); err != nil {
			return fmt.Errorf("%s: %w", check.name, err)
		}
	}
	return nil
}

// IsConfigured reports whether any catalog field is set.
func (c *MerchantConfig) IsConfigured() bool {
	return c.Network != "" || c.Asset != "" || c.PayTo != "" || len(c.Products) > 0 || c.DefaultPrice != ""
}
