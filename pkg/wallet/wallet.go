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

// Package wallet signs x402 payment challenges on behalf of a requester.
//
// LocalWallet holds an ECDSA P-256 key and answers a challenge with a signed
// permit token. The permit names the payer, the recipient, the amount and a
// one-time nonce, and expires after the option's maxTimeoutSeconds.
package wallet

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"

	"github.com/kadirpekel/paygate/pkg/x402"
)

// DefaultValidity applies when an option does not set maxTimeoutSeconds.
const DefaultValidity = 10 * time.Minute

// ErrNoAcceptableOption is returned when the wallet can pay none of the offered options.
var ErrNoAcceptableOption = errors.New("no acceptable payment option")

// Wallet signs payment challenges.
type Wallet interface {
	// Address identifies the payer.
	Address() string

	// SignPayment picks one offered option and returns the signed payload for it.
	SignPayment(ctx context.Context, required *x402.PaymentRequired) (*x402.PaymentPayload, error)
}

// LocalWallet signs with a key held in memory.
type LocalWallet struct {
	key      jwk.Key
	pubJSON  string
	address  string
	networks []string
}

// Option configures a LocalWallet.
type Option func(*LocalWallet)

// WithNetworks limits the wallet to the given networks.
func WithNetworks(networks ...string) Option {
	return func(w *LocalWallet) {
		w.networks = networks
	}
}

// NewLocalWallet wraps an ECDSA P-256 private key.
func NewLocalWallet(priv *ecdsa.PrivateKey, opts ...Option) (*LocalWallet, error) {
	if priv == nil {
		return nil, fmt.Errorf("private key is required")
	}
	key, err := jwk.FromRaw(priv)
	if err != nil {
		return nil, fmt.Errorf("failed to import key: %w", err)
	}
	return fromKey(key, opts...)
}

// GenerateLocalWallet creates a wallet with a fresh key.
func GenerateLocalWallet(opts ...Option) (*LocalWallet, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return NewLocalWallet(priv, opts...)
}

// LoadLocalWallet reads a JWK private key from path. When the file does not
// exist a new key is generated and written there.
func LoadLocalWallet(path string, opts ...Option) (*LocalWallet, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		w, genErr := GenerateLocalWallet(opts...)
		if genErr != nil {
			return nil, genErr
		}
		if saveErr := w.Save(path); saveErr != nil {
			return nil, saveErr
		}
		slog.Info("Created new wallet key", "path", path, "address", w.Address())
		return w, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read wallet key: %w", err)
	}

	key, err := jwk.ParseKey(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse wallet key %s: %w", path, err)
	}
	return fromKey(key, opts...)
}

func fromKey(key jwk.Key, opts ...Option) (*LocalWallet, error) {
	if key.KeyType() != jwa.EC {
		return nil, fmt.Errorf("wallet key must be an EC key, got %s", key.KeyType())
	}
	pub, err := jwk.PublicKeyOf(key)
	if err != nil {
		return nil, fmt.Errorf("failed to derive public key: %w", err)
	}
	pubJSON, err := json.Marshal(pub)
	if err != nil {
		return nil, fmt.Errorf("failed to encode public key: %w", err)
	}
	address, err := Address(pub)
	if err != nil {
		return nil, err
	}

	w := &LocalWallet{key: key, pubJSON: string(pubJSON), address: address}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Save writes the private key to path with owner-only permissions.
func (w *LocalWallet) Save(path string) error {
	data, err := json.Marshal(w.key)
	if err != nil {
		return fmt.Errorf("failed to encode wallet key: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("failed to create wallet directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write wallet key: %w", err)
	}
	return nil
}

// Address implements Wallet.
func (w *LocalWallet) Address() string {
	return w.address
}

// SignPayment implements Wallet. It pays the cheapest option on a network
// the wallet accepts, including the facilitator fee when one is quoted.
func (w *LocalWallet) SignPayment(ctx context.Context, required *x402.PaymentRequired) (*x402.PaymentPayload, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if required == nil {
		return nil, fmt.Errorf("%w: no challenge", ErrNoAcceptableOption)
	}

	candidates := &x402.PaymentRequired{X402Version: required.X402Version}
	for _, req := range required.Accepts {
		if len(w.networks) > 0 && !slices.Contains(w.networks, req.Network) {
			continue
		}
		if err := req.Validate(); err != nil {
			slog.Debug("Skipping invalid payment option", "network", req.Network, "error", err)
			continue
		}
		candidates.Accepts = append(candidates.Accepts, req)
	}
	req := candidates.Cheapest()
	if req == nil {
		return nil, fmt.Errorf("%w among %d offered", ErrNoAcceptableOption, len(required.Accepts))
	}

	validity := DefaultValidity
	if req.MaxTimeoutSeconds > 0 {
		validity = time.Duration(req.MaxTimeoutSeconds) * time.Second
	}
	permit := &Permit{
		Payer:       w.address,
		PayTo:       req.PayTo,
		Network:     req.Network,
		Scheme:      req.Scheme,
		Asset:       req.Asset,
		Amount:      req.Amount,
		Nonce:       uuid.NewString(),
		ValidBefore: time.Now().Add(validity),
	}
	if req.Extra != nil && req.Extra.Fee != nil {
		permit.FeeTo = req.Extra.Fee.FeeTo
		permit.FeeAmount = req.Extra.Fee.FeeAmount
	}

	token, err := signPermit(w.key, permit)
	if err != nil {
		return nil, err
	}

	version := required.X402Version
	if version == 0 {
		version = x402.ProtocolVersion
	}
	slog.Debug("Signed payment permit", "network", req.Network, "amount", req.Amount, "payTo", req.PayTo)
	return &x402.PaymentPayload{
		X402Version: version,
		Scheme:      req.Scheme,
		Network:     req.Network,
		Payload: map[string]any{
			PayloadKeyPermit: token,
			PayloadKeyKey:    w.pubJSON,
		},
	}, nil
}

var _ Wallet = (*LocalWallet)(nil)
