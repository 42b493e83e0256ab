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
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNewJWTValidator(t *testing.T) {
	if _, err := NewJWTValidator(JWTValidatorConfig{}); err == nil {
		t.Error("expected error for missing JWKS URL")
	}

	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()
	if _, err := NewJWTValidator(JWTValidatorConfig{JWKSURL: server.URL + "/jwks.json"}); err == nil {
		t.Error("expected error for unreachable JWKS")
	}
}

func TestValidateToken(t *testing.T) {
	validator, key := setupTestValidator(t)
	ctx := context.Background()

	token, err := createTestJWT(key, testIssuer, "user-1", time.Hour, map[string]any{
		"email": "buyer@example.com",
		"role":  "buyer",
		"plan":  "pro",
	})
	if err != nil {
		t.Fatalf("createTestJWT() error = %v", err)
	}

	claims, err := validator.ValidateToken(ctx, token)
	if err != nil {
		t.Fatalf("ValidateToken() error = %v", err)
	}
	if claims.Subject != "user-1" {
		t.Errorf("Subject = %q, want %q", claims.Subject, "user-1")
	}
	if claims.Email != "buyer@example.com" {
		t.Errorf("Email = %q, want %q", claims.Email, "buyer@example.com")
	}
	if !claims.HasAnyRole("admin", "buyer") {
		t.Errorf("HasAnyRole() = false for role %q", claims.Role)
	}
	if got := claims.GetStringClaim("plan"); got != "pro" {
		t.Errorf("GetStringClaim(plan) = %q, want %q", got, "pro")
	}
}

func TestValidateTokenRejects(t *testing.T) {
	validator, key := setupTestValidator(t)

	tests := []struct {
		name   string
		issuer string
		ttl    time.Duration
	}{
		{name: "wrong issuer", issuer: "https://evil.example.com", ttl: time.Hour},
		{name: "expired", issuer: testIssuer, ttl: -time.Hour},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := createTestJWT(key, tt.issuer, "user-1", tt.ttl, nil)
			if err != nil {
				t.Fatalf("createTestJWT() error = %v", err)
			}
			_, err = validator.ValidateToken(context.Background(), token)
			if !errors.Is(err, ErrInvalidToken) {
				t.Errorf("ValidateToken() error = %v, want ErrInvalidToken", err)
			}
		})
	}

	if _, err := validator.ValidateToken(context.Background(), "not-a-jwt"); err == nil {
		t.Error("expected error for garbage token")
	}
}

func TestMiddleware(t *testing.T) {
	validator, key := setupTestValidator(t)
	token, err := createTestJWT(key, testIssuer, "user-1", time.Hour, map[string]any{"role": "buyer"})
	if err != nil {
		t.Fatalf("createTestJWT() error = %v", err)
	}

	var seen *Claims
	handler := Middleware(validator, []string{"/health"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = ClaimsFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name       string
		path       string
		header     string
		wantStatus int
		wantClaims bool
	}{
		{name: "valid token", path: "/", header: "Bearer " + token, wantStatus: http.StatusOK, wantClaims: true},
		{name: "missing header", path: "/", wantStatus: http.StatusUnauthorized},
		{name: "wrong scheme", path: "/", header: "Basic abc", wantStatus: http.StatusUnauthorized},
		{name: "bad token", path: "/", header: "Bearer nope", wantStatus: http.StatusUnauthorized},
		{name: "excluded path", path: "/health", wantStatus: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = nil
			req := httptest.NewRequest(http.MethodPost, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if (seen != nil) != tt.wantClaims {
				t.Errorf("claims present = %v, want %v", seen != nil, tt.wantClaims)
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	handler := RequireRole("admin")(ok)

	tests := []struct {
		name       string
		claims     *Claims
		wantStatus int
	}{
		{name: "no claims", wantStatus: http.StatusUnauthorized},
		{name: "wrong role", claims: &Claims{Role: "buyer"}, wantStatus: http.StatusForbidden},
		{name: "allowed", claims: &Claims{Role: "admin"}, wantStatus: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.claims != nil {
				req = req.WithContext(ContextWithClaims(req.Context(), tt.claims))
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestCaller(t *testing.T) {
	if got := Caller(context.Background()); got != "" {
		t.Errorf("Caller() = %q for anonymous context", got)
	}
	ctx := ContextWithClaims(context.Background(), &Claims{Subject: "buyer-7"})
	if got := Caller(ctx); got != "buyer-7" {
		t.Errorf("Caller() = %q, want %q", got, "buyer-7")
	}
}
