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
	"math/big"
	"strings"
)

// MerchantConfig configures the selling agent and its catalog.
//
//	merchant:
//	  network: tron:nile
//	  asset: TXYZopYRdj2D9XRtbG411XZZ3kM5VkAeBf
//	  pay_to: TMerchantAddress
//	  token_name: USDT
//	  default_price: "100"
//	  products:
//	    laptop: "250000"
//
// Catalog fields are hot-reloadable; a reload replaces the catalog of a
// running merchant without a restart.
type MerchantConfig struct {
	// Name is the agent name shown in the agent card.
	// Default: merchant
	Name string `yaml:"name,omitempty"`

	Description string `yaml:"description,omitempty"`

	// Instruction overrides the built-in system instruction.
	Instruction string `yaml:"instruction,omitempty"`

	// Network is the CAIP-2 style network id payments settle on.
	Network string `yaml:"network,omitempty"`

	// Asset is the token contract address.
	Asset string `yaml:"asset,omitempty"`

	// PayTo is the merchant's receiving address.
	PayTo string `yaml:"pay_to,omitempty"`

	// TokenName is the display name of the asset, e.g. USDT.
	TokenName string `yaml:"token_name,omitempty"`

	// TokenVersion is the token's permit domain version.
	TokenVersion string `yaml:"token_version,omitempty"`

	// DefaultPrice applies to products missing from Products, in base units.
	// Empty means unlisted products are not for sale.
	DefaultPrice string `yaml:"default_price,omitempty"`

	// Products maps product names to prices in base units.
	Products map[string]string `yaml:"products,omitempty"`

	// MaxTimeoutSeconds is how long a signed payment stays valid.
	// Default: 1200
	MaxTimeoutSeconds int `yaml:"max_timeout_seconds,omitempty"`

	// Streaming advertises and uses streaming responses.
	Streaming bool `yaml:"streaming,omitempty"`
}

// SetDefaults applies default values.
func (c *MerchantConfig) SetDefaults() {
	if c.Name == "" {
		c.Name = "merchant"
	}
	if c.MaxTimeoutSeconds == 0 {
		c.MaxTimeoutSeconds = 1200
	}
	if c.TokenName == "" {
		c.TokenName = "USDT"
	}
}

// Validate checks the catalog is sellable.
func (c *MerchantConfig) Validate() error {
	if c.Network == "" {
		return fmt.Errorf("merchant.network is required")
	}
	if c.Asset == "" {
		return fmt.Errorf("merchant.asset is required")
	}
	if c.PayTo == "" {
		return fmt.Errorf("merchant.pay_to is required")
	}
	if c.MaxTimeoutSeconds < 0 {
		return fmt.Errorf("merchant.max_timeout_seconds must not be negative")
	}
	if c.DefaultPrice != "" {
		if err := validAmount(c.DefaultPrice); err != nil {
			return fmt.Errorf("merchant.default_price: %w", err)
		}
	}
	for name, price := range c.Products {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("merchant.products: empty product name")
		}
		if err := validAmount(price); err != nil {
			return fmt.Errorf("merchant.products[%s]: %w", name, err)
		}
	}
	return nil
}

func validAmount(s string) error {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok || n.Sign() < 0 {
		return fmt.Errorf("%q is not a non-negative integer amount", s)
	}
	return nil
}
