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

package facilitator

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"slices"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kadirpekel/paygate/pkg/wallet"
	"github.com/kadirpekel/paygate/pkg/x402"
)

// Reasons reported by the local facilitator.
const (
	ReasonInvalidSignature   = "invalid_signature"
	ReasonUnsupportedScheme  = "unsupported_scheme"
	ReasonRecipientMismatch  = "recipient_mismatch"
	ReasonAssetMismatch      = "asset_mismatch"
	ReasonNetworkMismatch    = "network_mismatch"
	ReasonInsufficientAmount = "insufficient_amount"
	ReasonInsufficientFunds  = "insufficient_funds"
	ReasonFeeMismatch        = "fee_mismatch"
	ReasonNonceAlreadyUsed   = "nonce_already_used"
	ReasonPermitExpired      = "permit_expired"
)

const maxRequestBody = 1 << 20

// ServerConfig configures the local facilitator.
type ServerConfig struct {
	// Networks accepted. Empty accepts any network.
	Networks []string

	// Fees is the fee schedule returned by the quote endpoint.
	Fees []x402.FeeQuote

	// Balances, when set, caps what each payer can spend in base units.
	// Payers missing from a non-nil map have no funds.
	Balances map[string]string
}

// Server is an in-memory facilitator for development and tests. It verifies
// wallet permits and records settlements without touching any chain.
type Server struct {
	cfg    ServerConfig
	router chi.Router

	mu       sync.Mutex
	used     map[string]string // nonce -> transaction
	balances map[string]*big.Int
}

// NewServer creates a local facilitator.
func NewServer(cfg ServerConfig) (*Server, error) {
	s := &Server{cfg: cfg, used: make(map[string]string)}
	if cfg.Balances != nil {
		s.balances = make(map[string]*big.Int, len(cfg.Balances))
		for payer, amount := range cfg.Balances {
			n, ok := new(big.Int).SetString(amount, 10)
			if !ok {
				return nil, fmt.Errorf("invalid balance %q for %s", amount, payer)
			}
			s.balances[payer] = n
		}
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Get(PathSupported, s.handleSupported)
	r.Post(PathQuote, s.handleQuote)
	r.Post(PathVerify, s.handleVerify)
	r.Post(PathSettle, s.handleSettle)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	s.router = r
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleSupported(w http.ResponseWriter, _ *http.Request) {
	var kinds []SupportedKind
	for _, network := range s.cfg.Networks {
		for _, scheme := range []string{x402.SchemeExact, x402.SchemeExactPermit} {
			kinds = append(kinds, SupportedKind{X402Version: x402.ProtocolVersion, Scheme: scheme, Network: network})
		}
	}
	writeJSON(w, http.StatusOK, SupportedResponse{Kinds: kinds})
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	var in QuoteRequest
	if !decodeJSON(w, r, &in) {
		return
	}

	var quotes []x402.FeeQuote
	for _, req := range in.PaymentRequirements {
		for _, fee := range s.cfg.Fees {
			if fee.Key() == req.Key() && !slices.ContainsFunc(quotes, func(q x402.FeeQuote) bool { return q.Key() == fee.Key() }) {
				quotes = append(quotes, fee)
			}
		}
	}
	writeJSON(w, http.StatusOK, QuoteResponse{Quotes: quotes})
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var in PaymentRequest
	if !decodeJSON(w, r, &in) {
		return
	}

	permit, reason := s.check(&in)
	if reason != "" {
		slog.Info("Payment rejected", "reason", reason)
		writeJSON(w, http.StatusOK, x402.VerifyResponse{IsValid: false, InvalidReason: reason})
		return
	}
	writeJSON(w, http.StatusOK, x402.VerifyResponse{IsValid: true, Payer: permit.Payer})
}

func (s *Server) handleSettle(w http.ResponseWriter, r *http.Request) {
	var in PaymentRequest
	if !decodeJSON(w, r, &in) {
		return
	}

	permit, reason := s.check(&in)
	if reason != "" {
		writeJSON(w, http.StatusOK, x402.SettleResponse{Success: false, ErrorReason: reason, Network: in.PaymentRequirements.Network})
		return
	}

	tx, reason := s.settle(permit)
	if reason != "" {
		writeJSON(w, http.StatusOK, x402.SettleResponse{Success: false, ErrorReason: reason, Network: permit.Network, Payer: permit.Payer})
		return
	}
	slog.Info("Payment settled", "transaction", tx, "payer", permit.Payer, "amount", permit.Amount, "network", permit.Network)
	writeJSON(w, http.StatusOK, x402.SettleResponse{Success: true, Transaction: tx, Network: permit.Network, Payer: permit.Payer})
}

// check validates a permit against the requirement it claims to pay. It
// returns a reason when the payment is not acceptable.
func (s *Server) check(in *PaymentRequest) (*wallet.Permit, string) {
	req := in.PaymentRequirements
	if in.PaymentPayload == nil {
		return nil, ReasonInvalidSignature
	}
	if in.PaymentPayload.Scheme != req.Scheme ||
		(req.Scheme != x402.SchemeExact && req.Scheme != x402.SchemeExactPermit) {
		return nil, ReasonUnsupportedScheme
	}
	if len(s.cfg.Networks) > 0 && !slices.Contains(s.cfg.Networks, req.Network) {
		return nil, ReasonNetworkMismatch
	}

	permit, err := wallet.ParsePermit(in.PaymentPayload)
	if err != nil {
		slog.Debug("Permit parse failed", "error", err)
		if errors.Is(err, wallet.ErrPermitExpired) {
			return nil, ReasonPermitExpired
		}
		return nil, ReasonInvalidSignature
	}

	switch {
	case permit.Network != req.Network || in.PaymentPayload.Network != req.Network:
		return nil, ReasonNetworkMismatch
	case permit.PayTo != req.PayTo:
		return nil, ReasonRecipientMismatch
	case permit.Asset != req.Asset:
		return nil, ReasonAssetMismatch
	}

	paid, ok := new(big.Int).SetString(permit.Amount, 10)
	want, err := req.AmountInt()
	if !ok || err != nil || paid.Cmp(want) < 0 {
		return nil, ReasonInsufficientAmount
	}

	if req.Extra != nil && req.Extra.Fee != nil {
		if permit.FeeTo != req.Extra.Fee.FeeTo || permit.FeeAmount != req.Extra.Fee.FeeAmount {
			return nil, ReasonFeeMismatch
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, used := s.used[permit.Nonce]; used {
		return nil, ReasonNonceAlreadyUsed
	}
	if s.balances != nil {
		bal, ok := s.balances[permit.Payer]
		if !ok || bal.Cmp(total(permit)) < 0 {
			return nil, ReasonInsufficientFunds
		}
	}
	return permit, ""
}

// settle consumes the nonce and debits the payer.
func (s *Server) settle(p *wallet.Permit) (string, string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, used := s.used[p.Nonce]; used {
		return "", ReasonNonceAlreadyUsed
	}
	if s.balances != nil {
		bal := s.balances[p.Payer]
		cost := total(p)
		if bal == nil || bal.Cmp(cost) < 0 {
			return "", ReasonInsufficientFunds
		}
		bal.Sub(bal, cost)
	}

	sum := sha256.Sum256([]byte(p.Token))
	tx := "0x" + hex.EncodeToString(sum[:])
	s.used[p.Nonce] = tx
	return tx, ""
}

// Settlements returns the number of settled permits.
func (s *Server) Settlements() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.used)
}

func total(p *wallet.Permit) *big.Int {
	sum, _ := new(big.Int).SetString(p.Amount, 10)
	if sum == nil {
		sum = new(big.Int)
	}
	if fee, ok := new(big.Int).SetString(p.FeeAmount, 10); ok {
		sum.Add(sum, fee)
	}
	return sum
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("invalid request: %v", err)})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("Failed to write response", "error", err)
	}
}

var _ http.Handler = (*Server)(nil)
