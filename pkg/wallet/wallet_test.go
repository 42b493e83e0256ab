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
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/paygate/pkg/x402"
)

func option(network, amount string) x402.PaymentRequirements {
	return x402.PaymentRequirements{
		Scheme:            x402.SchemeExactPermit,
		Network:           network,
		Amount:            amount,
		Asset:             "TUSDT",
		PayTo:             "TMerchant",
		MaxTimeoutSeconds: 1200,
		Extra:             &x402.RequirementsExtra{Name: "USDT"},
	}
}

func TestSignPaymentRoundTrip(t *testing.T) {
	w, err := GenerateLocalWallet()
	require.NoError(t, err)

	fee := option("tron:nile", "100").WithFee(x402.FeeInfo{FeeTo: "TFacilitator", FeeAmount: "2"})
	required := &x402.PaymentRequired{
		X402Version: x402.ProtocolVersion,
		Accepts:     []x402.PaymentRequirements{option("tron:shasta", "300"), fee},
	}

	payload, err := w.SignPayment(context.Background(), required)
	require.NoError(t, err)
	assert.Equal(t, "tron:nile", payload.Network, "cheapest option is paid")
	assert.Equal(t, x402.SchemeExactPermit, payload.Scheme)

	permit, err := ParsePermit(payload)
	require.NoError(t, err)
	assert.Equal(t, w.Address(), permit.Payer)
	assert.Equal(t, "TMerchant", permit.PayTo)
	assert.Equal(t, "tron:nile", permit.Network)
	assert.Equal(t, "100", permit.Amount)
	assert.Equal(t, "TUSDT", permit.Asset)
	assert.Equal(t, "TFacilitator", permit.FeeTo)
	assert.Equal(t, "2", permit.FeeAmount)
	assert.NotEmpty(t, permit.Nonce)
	assert.WithinDuration(t, time.Now().Add(20*time.Minute), permit.ValidBefore, time.Minute)
}

func TestSignPaymentUsesFreshNonce(t *testing.T) {
	w, err := GenerateLocalWallet()
	require.NoError(t, err)
	required := &x402.PaymentRequired{Accepts: []x402.PaymentRequirements{option("tron:nile", "1")}}

	a, err := w.SignPayment(context.Background(), required)
	require.NoError(t, err)
	b, err := w.SignPayment(context.Background(), required)
	require.NoError(t, err)

	pa, err := ParsePermit(a)
	require.NoError(t, err)
	pb, err := ParsePermit(b)
	require.NoError(t, err)
	assert.NotEqual(t, pa.Nonce, pb.Nonce)
	assert.Equal(t, x402.ProtocolVersion, a.X402Version)
}

func TestSignPaymentRespectsNetworks(t *testing.T) {
	w, err := GenerateLocalWallet(WithNetworks("tron:mainnet"))
	require.NoError(t, err)

	_, err = w.SignPayment(context.Background(), &x402.PaymentRequired{
		Accepts: []x402.PaymentRequirements{option("tron:nile", "1")},
	})
	assert.ErrorIs(t, err, ErrNoAcceptableOption)

	_, err = w.SignPayment(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNoAcceptableOption)
}

func TestParsePermitRejectsTampering(t *testing.T) {
	w, err := GenerateLocalWallet()
	require.NoError(t, err)
	other, err := GenerateLocalWallet()
	require.NoError(t, err)

	payload, err := w.SignPayment(context.Background(), &x402.PaymentRequired{
		Accepts: []x402.PaymentRequirements{option("tron:nile", "1")},
	})
	require.NoError(t, err)

	// Swap in a key that did not sign the permit.
	payload.Payload[PayloadKeyKey] = other.pubJSON
	_, err = ParsePermit(payload)
	assert.ErrorIs(t, err, ErrInvalidPermit)

	_, err = ParsePermit(&x402.PaymentPayload{Payload: map[string]any{}})
	assert.ErrorIs(t, err, ErrInvalidPermit)
}

func TestLoadLocalWalletCreatesAndReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys", "wallet.jwk")

	created, err := LoadLocalWallet(path)
	require.NoError(t, err)
	loaded, err := LoadLocalWallet(path)
	require.NoError(t, err)
	assert.Equal(t, created.Address(), loaded.Address())
}
