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

package x402

import (
	"errors"
	"fmt"
	"math/big"
)

// FeeInfo is the facilitator fee attached to a requirement.
type FeeInfo struct {
	FeeTo     string `json:"feeTo"`
	FeeAmount string `json:"feeAmount"`
}

// RequirementsExtra carries token display data and an optional fee.
type RequirementsExtra struct {
	Name    string   `json:"name,omitempty"`
	Version string   `json:"version,omitempty"`
	Fee     *FeeInfo `json:"fee,omitempty"`
}

// PaymentRequirements is one acceptable way to pay.
//
// Values are treated as immutable. Use WithFee to derive an enriched copy.
type PaymentRequirements struct {
	Scheme            string             `json:"scheme"`
	Network           string             `json:"network"`
	Amount            string             `json:"amount"`
	Asset             string             `json:"asset"`
	PayTo             string             `json:"payTo"`
	MaxTimeoutSeconds int                `json:"maxTimeoutSeconds"`
	Resource          string             `json:"resource,omitempty"`
	Description       string             `json:"description,omitempty"`
	MimeType          string             `json:"mimeType,omitempty"`
	Extra             *RequirementsExtra `json:"extra,omitempty"`
}

// QuoteKey identifies the fee quote that applies to a requirement.
type QuoteKey struct {
	Network string
	Scheme  string
	Asset   string
}

// FeeQuote is the facilitator fee for one (network, scheme, asset).
type FeeQuote struct {
	Network string  `json:"network"`
	Scheme  string  `json:"scheme"`
	Asset   string  `json:"asset"`
	Fee     FeeInfo `json:"fee"`
}

// Key returns the lookup key of q.
func (q FeeQuote) Key() QuoteKey {
	return QuoteKey{Network: q.Network, Scheme: q.Scheme, Asset: q.Asset}
}

// Key returns the quote lookup key of r.
func (r PaymentRequirements) Key() QuoteKey {
	return QuoteKey{Network: r.Network, Scheme: r.Scheme, Asset: r.Asset}
}

// WithFee returns a copy of r whose extra carries fee. The receiver is not modified.
func (r PaymentRequirements) WithFee(fee FeeInfo) PaymentRequirements {
	extra := RequirementsExtra{}
	if r.Extra != nil {
		extra = *r.Extra
	}
	extra.Fee = &fee
	r.Extra = &extra
	return r
}

// TokenName returns the display name of the asset, or "TOKEN" if none is set.
func (r PaymentRequirements) TokenName() string {
	if r.Extra != nil && r.Extra.Name != "" {
		return r.Extra.Name
	}
	return "TOKEN"
}

// AmountInt parses Amount as a base-unit integer.
func (r PaymentRequirements) AmountInt() (*big.Int, error) {
	n, ok := new(big.Int).SetString(r.Amount, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", r.Amount)
	}
	return n, nil
}

// Validate checks the fields a payer needs.
func (r PaymentRequirements) Validate() error {
	var errs []error
	if r.Scheme == "" {
		errs = append(errs, errors.New("scheme is required"))
	}
	if r.Network == "" {
		errs = append(errs, errors.New("network is required"))
	}
	if r.PayTo == "" {
		errs = append(errs, errors.New("payTo is required"))
	}
	if r.Asset == "" {
		errs = append(errs, errors.New("asset is required"))
	}
	if n, err := r.AmountInt(); err != nil {
		errs = append(errs, err)
	} else if n.Sign() < 0 {
		errs = append(errs, fmt.Errorf("amount must not be negative: %s", r.Amount))
	}
	if r.MaxTimeoutSeconds < 0 {
		errs = append(errs, errors.New("maxTimeoutSeconds must not be negative"))
	}
	return errors.Join(errs...)
}

// PaymentRequired is the challenge recorded on a suspended task.
type PaymentRequired struct {
	X402Version int                   `json:"x402Version"`
	Accepts     []PaymentRequirements `json:"accepts"`
	Error       string                `json:"error,omitempty"`
}

// Cheapest returns the option with the lowest amount. Ties and unparsable
// amounts keep the offered order. It returns nil when nothing is offered.
func (p *PaymentRequired) Cheapest() *PaymentRequirements {
	if p == nil || len(p.Accepts) == 0 {
		return nil
	}
	best := 0
	var bestAmt *big.Int
	for i, req := range p.Accepts {
		amt, err := req.AmountInt()
		if err != nil {
			continue
		}
		if bestAmt == nil || amt.Cmp(bestAmt) < 0 {
			best, bestAmt = i, amt
		}
	}
	req := p.Accepts[best]
	return &req
}

// Match returns the offered option the payload was signed for.
func (p *PaymentRequired) Match(payload *PaymentPayload) (PaymentRequirements, bool) {
	if p == nil || payload == nil {
		return PaymentRequirements{}, false
	}
	for _, req := range p.Accepts {
		if req.Scheme == payload.Scheme && req.Network == payload.Network {
			return req, true
		}
	}
	return PaymentRequirements{}, false
}

// PaymentPayload is the signed proof returned by the requester. Payload is
// opaque outside of verification and settlement.
type PaymentPayload struct {
	X402Version int            `json:"x402Version"`
	Scheme      string         `json:"scheme"`
	Network     string         `json:"network"`
	Payload     map[string]any `json:"payload"`
}

// VerifyResponse is the facilitator's verdict on a payload.
type VerifyResponse struct {
	IsValid       bool   `json:"isValid"`
	InvalidReason string `json:"invalidReason,omitempty"`
	Payer         string `json:"payer,omitempty"`
}

// SettleResponse is the facilitator's settlement outcome.
type SettleResponse struct {
	Success     bool   `json:"success"`
	Transaction string `json:"transaction,omitempty"`
	Network     string `json:"network,omitempty"`
	Payer       string `json:"payer,omitempty"`
	ErrorReason string `json:"errorReason,omitempty"`
}

// VerifiedPayment is handed to business logic exactly once after settlement.
type VerifiedPayment struct {
	Transaction string
	Network     string
	Payer       string
}
