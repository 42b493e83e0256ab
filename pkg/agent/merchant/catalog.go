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

package merchant

import (
	"errors"
	"fmt"
	"maps"
	"strings"

	"github.com/kadirpekel/paygate/pkg/x402"
)

// DefaultMaxTimeoutSeconds is how long a buyer has to pay a challenge.
const DefaultMaxTimeoutSeconds = 1200

// Catalog is what the merchant sells and where the money goes.
type Catalog struct {
	// Network is the chain the merchant is paid on, e.g. "tron:nile".
	Network string

	// Asset is the token contract.
	Asset string

	// PayTo receives the payment.
	PayTo string

	// TokenName and TokenVersion describe Asset to wallets.
	TokenName    string
	TokenVersion string

	// DefaultPrice in base units applies to products without a listed price.
	// Empty means unlisted products are not for sale.
	DefaultPrice string

	// Products maps a product name to its price in base units.
	Products map[string]string

	// MaxTimeoutSeconds bounds how long a challenge stays payable.
	// Default: 1200
	MaxTimeoutSeconds int
}

// ErrNotForSale is returned for products without a price.
var ErrNotForSale = errors.New("product not for sale")

// Validate checks that the catalog can produce payment requirements.
func (c *Catalog) Validate() error {
	if c.Network == "" {
		return fmt.Errorf("catalog: network is required")
	}
	if c.Asset == "" {
		return fmt.Errorf("catalog: asset is required")
	}
	if c.PayTo == "" {
		return fmt.Errorf("catalog: pay_to is required")
	}
	for name, price := range c.Products {
		if err := c.requirement(name, price).Validate(); err != nil {
			return fmt.Errorf("catalog: product %q: %w", name, err)
		}
	}
	if c.DefaultPrice != "" {
		if err := c.requirement("", c.DefaultPrice).Validate(); err != nil {
			return fmt.Errorf("catalog: default price: %w", err)
		}
	}
	return nil
}

// Clone returns a deep copy.
func (c Catalog) Clone() Catalog {
	c.Products = maps.Clone(c.Products)
	return c
}

// Price returns the price of product. Names match case-insensitively.
func (c *Catalog) Price(product string) (string, bool) {
	want := normalize(product)
	for name, price := range c.Products {
		if normalize(name) == want {
			return price, true
		}
	}
	if c.DefaultPrice != "" {
		return c.DefaultPrice, true
	}
	return "", false
}

// Requirements builds the payment option for product.
func (c *Catalog) Requirements(product string) (x402.PaymentRequirements, error) {
	price, ok := c.Price(product)
	if !ok {
		return x402.PaymentRequirements{}, fmt.Errorf("%w: %s", ErrNotForSale, product)
	}
	return c.requirement(product, price), nil
}

func (c *Catalog) requirement(product, price string) x402.PaymentRequirements {
	timeout := c.MaxTimeoutSeconds
	if timeout <= 0 {
		timeout = DefaultMaxTimeoutSeconds
	}
	req := x402.PaymentRequirements{
		Scheme:            x402.SchemeExactPermit,
		Network:           c.Network,
		Amount:            price,
		Asset:             c.Asset,
		PayTo:             c.PayTo,
		MaxTimeoutSeconds: timeout,
		Description:       product,
	}
	if c.TokenName != "" || c.TokenVersion != "" {
		req.Extra = &x402.RequirementsExtra{Name: c.TokenName, Version: c.TokenVersion}
	}
	return req
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
