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

package wallet

import (
	"crypto"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/kadirpekel/paygate/pkg/x402"
)

// Keys of a signed payment payload.
const (
	PayloadKeyPermit = "permit"
	PayloadKeyKey    = "jwk"
)

// Private claims of a permit token. The standard claims carry the payer
// (iss), the recipient (sub), the network (aud), the nonce (jti) and the
// deadline (exp).
const (
	claimScheme    = "scheme"
	claimAsset     = "asset"
	claimAmount    = "amount"
	claimFeeTo     = "fee_to"
	claimFeeAmount = "fee_amount"
)

var (
	// ErrInvalidPermit is returned when a payload does not carry a valid permit.
	ErrInvalidPermit = errors.New("invalid payment permit")

	// ErrPermitExpired is returned for a correctly signed permit past its deadline.
	ErrPermitExpired = fmt.Errorf("%w: expired", ErrInvalidPermit)
)

// Permit is a verified payment authorization.
type Permit struct {
	Payer       string
	PayTo       string
	Network     string
	Scheme      string
	Asset       string
	Amount      string
	FeeTo       string
	FeeAmount   string
	Nonce       string
	ValidBefore time.Time

	// Token is the signed compact form.
	Token string
}

// Address derives the payer address of a public key.
func Address(pub jwk.Key) (string, error) {
	tp, err := pub.Thumbprint(crypto.SHA256)
	if err != nil {
		return "", fmt.Errorf("failed to compute key thumbprint: %w", err)
	}
	return "P" + base64.RawURLEncoding.EncodeToString(tp), nil
}

// ParsePermit checks the signature and expiry of the permit in payload and
// returns its claims. The signer's key travels with the payload and must
// hash to the issuer address.
func ParsePermit(payload *x402.PaymentPayload) (*Permit, error) {
	if payload == nil || payload.Payload == nil {
		return nil, fmt.Errorf("%w: empty payload", ErrInvalidPermit)
	}
	token, _ := payload.Payload[PayloadKeyPermit].(string)
	rawKey, _ := payload.Payload[PayloadKeyKey].(string)
	if token == "" || rawKey == "" {
		return nil, fmt.Errorf("%w: %s and %s are required", ErrInvalidPermit, PayloadKeyPermit, PayloadKeyKey)
	}

	pub, err := jwk.ParseKey([]byte(rawKey))
	if err != nil {
		return nil, fmt.Errorf("%w: bad key: %v", ErrInvalidPermit, err)
	}
	address, err := Address(pub)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPermit, err)
	}

	parsed, err := jwt.Parse(
		[]byte(token),
		jwt.WithKey(jwa.ES256, pub),
		jwt.WithValidate(true),
		jwt.WithIssuer(address),
	)
	if errors.Is(err, jwt.ErrTokenExpired()) {
		return nil, fmt.Errorf("%w: %v", ErrPermitExpired, err)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPermit, err)
	}

	p := &Permit{
		Payer:       parsed.Issuer(),
		PayTo:       parsed.Subject(),
		Nonce:       parsed.JwtID(),
		ValidBefore: parsed.Expiration(),
		Token:       token,
	}
	if aud := parsed.Audience(); len(aud) > 0 {
		p.Network = aud[0]
	}
	for claim, dst := range map[string]*string{
		claimScheme:    &p.Scheme,
		claimAsset:     &p.Asset,
		claimAmount:    &p.Amount,
		claimFeeTo:     &p.FeeTo,
		claimFeeAmount: &p.FeeAmount,
	} {
		if v, ok := parsed.Get(claim); ok {
			if s, ok := v.(string); ok {
				*dst = s
			}
		}
	}
	return p, nil
}

func signPermit(key jwk.Key, p *Permit) (string, error) {
	token := jwt.New()
	claims := map[string]any{
		jwt.IssuerKey:     p.Payer,
		jwt.SubjectKey:    p.PayTo,
		jwt.AudienceKey:   []string{p.Network},
		jwt.JwtIDKey:      p.Nonce,
		jwt.IssuedAtKey:   time.Now(),
		jwt.ExpirationKey: p.ValidBefore,
		claimScheme:       p.Scheme,
		claimAsset:        p.Asset,
		claimAmount:       p.Amount,
	}
	if p.FeeTo != "" {
		claims[claimFeeTo] = p.FeeTo
		claims[claimFeeAmount] = p.FeeAmount
	}
	for k, v := range claims {
		if err := token.Set(k, v); err != nil {
			return "", fmt.Errorf("failed to set claim %s: %w", k, err)
		}
	}

	signed, err := jwt.Sign(token, jwt.WithKey(jwa.ES256, key))
	if err != nil {
		return "", fmt.Errorf("failed to sign permit: %w", err)
	}
	return string(signed), nil
}
