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
	"time"
)

// AuthConfig puts the merchant's JSON-RPC endpoint behind bearer tokens
// issued by an external identity provider. Payment itself needs no token;
// this only restricts who may place orders.
//
//	server:
//	  auth:
//	    enabled: true
//	    jwks_url: https://auth.example.com/.well-known/jwks.json
//	    issuer: https://auth.example.com
//	    audience: paygate
//	    required_roles: [buyer]
type AuthConfig struct {
	Enabled  bool   `yaml:"enabled,omitempty"`
	JWKSURL  string `yaml:"jwks_url,omitempty"`
	Issuer   string `yaml:"issuer,omitempty"`
	Audience string `yaml:"audience,omitempty"`

	// RefreshInterval of the cached key set.
	// Default: 15m
	RefreshInterval time.Duration `yaml:"refresh_interval,omitempty"`

	// ExcludedPaths stay public. Health, the agent card and metrics are
	// always public.
	ExcludedPaths []string `yaml:"excluded_paths,omitempty"`

	// RequiredRoles, when set, limits the agent endpoint to callers whose
	// role claim is one of them.
	RequiredRoles []string `yaml:"required_roles,omitempty"`
}

// SetDefaults applies default values.
func (c *AuthConfig) SetDefaults() {
	if c.RefreshInterval == 0 {
		c.RefreshInterval = 15 * time.Minute
	}
	if len(c.ExcludedPaths) == 0 {
		c.ExcludedPaths = []string{"/health", "/.well-known/agent-card.json"}
	}
}

// Validate checks an enabled config is complete.
func (c *AuthConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	for name, v := range map[string]string{"jwks_url": c.JWKSURL, "issuer": c.Issuer, "audience": c.Audience} {
		if v == "" {
			return fmt.Errorf("auth.%s is required when auth is enabled", name)
		}
	}
	if c.RefreshInterval < time.Minute {
		return fmt.Errorf("auth.refresh_interval must be at least 1 minute")
	}
	return nil
}

// IsEnabled is nil-safe.
func (c *AuthConfig) IsEnabled() bool {
	return c != nil && c.Enabled
}
