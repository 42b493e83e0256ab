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

// FacilitatorConfig configures access to the x402 facilitator.
//
//	facilitator:
//	  url: http://localhost:8090
//	  timeout: 30s
//	  quote_timeout: 5s
type FacilitatorConfig struct {
	// URL is the facilitator base URL.
	// Default: http://localhost:<local.port>
	URL string `yaml:"url,omitempty"`

	// APIKey is sent as a bearer token.
	APIKey string `yaml:"api_key,omitempty"`

	// Timeout bounds each HTTP attempt.
	// Default: 30s
	Timeout time.Duration `yaml:"timeout,omitempty"`

	// MaxRetries for throttled or unavailable responses.
	// Default: 2
	MaxRetries *int `yaml:"max_retries,omitempty"`

	// QuoteTimeout bounds fee quoting. On timeout the challenge goes out
	// without fees.
	// Default: 5s
	QuoteTimeout time.Duration `yaml:"quote_timeout,omitempty"`

	// SettleCacheTTL is how long a successful settlement is replayed for
	// repeated submissions of the same payload.
	// Default: 10m
	SettleCacheTTL time.Duration `yaml:"settle_cache_ttl,omitempty"`

	// InsecureSkipVerify disables TLS verification (dev only).
	InsecureSkipVerify bool `yaml:"insecure_skip_verify,omitempty"`

	// CACertificate is a PEM file trusted in addition to the system roots.
	CACertificate string `yaml:"ca_certificate,omitempty"`

	// Local configures `paygate facilitator`, the in-memory facilitator.
	Local LocalFacilitatorConfig `yaml:"local,omitempty"`
}

// LocalFacilitatorConfig configures the in-memory facilitator.
type LocalFacilitatorConfig struct {
	Host string `yaml:"host,omitempty"`

	// Port defaults to 8090.
	Port int `yaml:"port,omitempty"`

	// Networks accepted. Empty accepts any.
	Networks []string `yaml:"networks,omitempty"`

	// Fees is the fee schedule served by the quote endpoint.
	Fees []FeeConfig `yaml:"fees,omitempty"`

	// Balances caps what each payer may spend. Unset means unlimited.
	Balances map[string]string `yaml:"balances,omitempty"`
}

// FeeConfig is one fee schedule entry.
type FeeConfig struct {
	Network   string `yaml:"network"`
	Scheme    string `yaml:"scheme,omitempty"`
	Asset     string `yaml:"asset"`
	FeeTo     string `yaml:"fee_to"`
	FeeAmount string `yaml:"fee_amount"`
}

// SetDefaults applies default values.
func (c *FacilitatorConfig) SetDefaults() {
	if c.Local.Host == "" {
		c.Local.Host = "0.0.0.0"
	}
	if c.Local.Port == 0 {
		c.Local.Port = 8090
	}
	if c.URL == "" {
		c.URL = fmt.Sprintf("http://localhost:%d", c.Local.Port)
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxRetries == nil {
		retries := 2
		c.MaxRetries = &retries
	}
	if c.QuoteTimeout == 0 {
		c.QuoteTimeout = 5 * time.Second
	}
	if c.SettleCacheTTL == 0 {
		c.SettleCacheTTL = 10 * time.Minute
	}
	for i := range c.Local.Fees {
		if c.Local.Fees[i].Scheme == "" {
			c.Local.Fees[i].Scheme = "exact_permit"
		}
	}
}

// Validate checks the facilitator configuration.
func (c *FacilitatorConfig) Validate() error {
	if c.MaxRetries != nil && *c.MaxRetries < 0 {
		return fmt.Errorf("facilitator.max_retries must not be negative")
	}
	if c.Timeout < 0 || c.QuoteTimeout < 0 || c.SettleCacheTTL < 0 {
		return fmt.Errorf("facilitator timeouts must not be negative")
	}
	for i, fee := range c.Local.Fees {
		if fee.Network == "" || fee.Asset == "" || fee.FeeTo == "" {
			return fmt.Errorf("facilitator.local.fees[%d]: network, asset and fee_to are required", i)
		}
		if err := validAmount(fee.FeeAmount); err != nil {
			return fmt.Errorf("facilitator.local.fees[%d].fee_amount: %w", i, err)
		}
	}
	for payer, amount := range c.Local.Balances {
		if err := validAmount(amount); err != nil {
			return fmt.Errorf("facilitator.local.balances[%s]: %w", payer, err)
		}
	}
	return nil
}

// Retries returns MaxRetries or zero.
func (c *FacilitatorConfig) Retries() int {
	if c.MaxRetries == nil {
		return 0
	}
	return *c.MaxRetries
}

// LocalAddress returns the local facilitator's host:port.
func (c *FacilitatorConfig) LocalAddress() string {
	return fmt.Sprintf("%s:%d", c.Local.Host, c.Local.Port)
}
