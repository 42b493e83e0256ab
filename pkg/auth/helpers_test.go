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

package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

const (
	testIssuer   = "https://test-issuer.com"
	testAudience = "test-audience"
	testKeyID    = "test-key-id"
)

func createJWKS(publicKey *rsa.PublicKey) (jwk.Set, error) {
	key, err := jwk.FromRaw(publicKey)
	if err != nil {
		return nil, err
	}
	if err := key.Set(jwk.KeyIDKey, testKeyID); err != nil {
		return nil, err
	}
	if err := key.Set(jwk.AlgorithmKey, jwa.RS256); err != nil {
		return nil, err
	}

	keyset := jwk.NewSet()
	if err := keyset.AddKey(key); err != nil {
		return nil, err
	}
	return keyset, nil
}

func createTestJWT(privateKey *rsa.PrivateKey, issuer, subject string, ttl time.Duration, claims map[string]any) (string, error) {
	token := jwt.New()
	std := map[string]any{
		jwt.IssuerKey:     issuer,
		jwt.AudienceKey:   testAudience,
		jwt.SubjectKey:    subject,
		jwt.IssuedAtKey:   time.Now(),
		jwt.ExpirationKey: time.Now().Add(ttl),
	}
	for k, v := range std {
		if err := token.Set(k, v); err != nil {
			return "", err
		}
	}
	for k, v := range claims {
		if err := token.Set(k, v); err != nil {
			return "", err
		}
	}

	key, err := jwk.FromRaw(privateKey)
	if err != nil {
		return "", err
	}
	if err := key.Set(jwk.KeyIDKey, testKeyID); err != nil {
		return "", err
	}

	signed, err := jwt.Sign(token, jwt.WithKey(jwa.RS256, key))
	if err != nil {
		return "", err
	}
	return string(signed), nil
}

// setupTestValidator serves a JWKS and returns a validator for it together
// with the signing key.
func setupTestValidator(t testing.TB) (*JWTValidator, *rsa.PrivateKey) {
	t.Helper()

	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("Failed to generate key pair: %v", err)
	}
	keyset, err := createJWKS(&privateKey.PublicKey)
	if err != nil {
		t.Fatalf("Failed to create JWKS: %v", err)
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/.well-known/jwks.json" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(keyset)
	}))
	t.Cleanup(server.Close)

	validator, err := NewJWTValidator(JWTValidatorConfig{
		JWKSURL:  server.URL + "/.well-known/jwks.json",
		Issuer:   testIssuer,
		Audience: testAudience,
	})
	if err != nil {
		t.Fatalf("Failed to create validator: %v", err)
	}
	t.Cleanup(validator.Close)
	return validator, privateKey
}
