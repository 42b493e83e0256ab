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

// WalletConfig configures the buyer's signing wallet.
type WalletConfig struct {
	// KeyFile holds the JWK private key. A missing file is created with a
	// fresh key.
	// Default: .paygate/wallet.jwk
	KeyFile string `yaml:"key_file,omitempty"`

	// Networks the wallet is willing to pay on. Empty means any.
	Networks []string `yaml:"networks,omitempty"`
}

// SetDefaults applies default values.
func (c *WalletConfig) SetDefaults() {
	if c.KeyFile == "" {
		c.KeyFile = ".paygate/wallet.jwk"
	}
}
