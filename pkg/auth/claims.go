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

// Package auth validates bearer tokens from an external identity provider
// in front of the merchant's agent endpoint.
//
// Tokens are JWTs checked against the provider's JWKS, which is cached and
// refreshed in the background. The validated caller travels on the request
// context so the payment gate can attribute orders.
package auth

import (
	"context"
	"slices"
)

type claimsKey struct{}

// Claims of a validated caller token.
type Claims struct {
	// Subject identifies the caller (sub).
	Subject string

	Email string

	// Role drives RequireRole.
	Role string

	// Custom holds the remaining private claims.
	Custom map[string]any
}

// GetStringClaim returns a custom claim when it is a string.
func (c *Claims) GetStringClaim(key string) string {
	s, _ := c.Custom[key].(string)
	return s
}

// HasAnyRole reports whether the caller's role is one of roles.
func (c *Claims) HasAnyRole(roles ...string) bool {
	return slices.Contains(roles, c.Role)
}

// ClaimsFromContext returns the caller's claims, or nil for anonymous calls.
func ClaimsFromContext(ctx context.Context) *Claims {
	claims, _ := ctx.Value(claimsKey{}).(*Claims)
	return claims
}

// ContextWithClaims attaches claims to ctx.
func ContextWithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, claims)
}

// Caller returns the authenticated subject in ctx, or "" when the request
// was not authenticated.
func Caller(ctx context.Context) string {
	if c := ClaimsFromContext(ctx); c != nil {
		return c.Subject
	}
	return ""
}
