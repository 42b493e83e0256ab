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

package merchant

import (
	"github.com/a2aproject/a2a-go/a2a"

	"github.com/kadirpekel/paygate/pkg/x402"
)

// AgentCard describes the merchant to buyers. The x402 extension is marked
// required: the merchant cannot serve a client that cannot pay.
func (m *Merchant) AgentCard(url, version string) *a2a.AgentCard {
	if version == "" {
		version = "1.0.0"
	}
	modes := []string{"text", "text/plain"}
	return &a2a.AgentCard{
		Name:               m.name,
		Description:        m.description,
		URL:                url,
		Version:            version,
		ProtocolVersion:    "1.0",
		DefaultInputModes:  modes,
		DefaultOutputModes: modes,
		Skills: []a2a.AgentSkill{{
			ID:          "buy_product",
			Name:        "Buy a product",
			Description: "Provides the price and x402 payment requirements for any product, then confirms the order once paid.",
			Tags:        []string{"pricing", "product", "x402", "merchant"},
			Examples: []string{
				"How much for a new laptop?",
				"I want to buy a red stapler.",
				"Can you give me the price for a copy of 'Moby Dick'?",
			},
		}},
		Capabilities: a2a.AgentCapabilities{
			Streaming: m.streaming,
			Extensions: []a2a.AgentExtension{{
				URI:         x402.ExtensionURI,
				Description: "Supports payments using the x402 protocol.",
				Required:    true,
			}},
		},
		PreferredTransport: a2a.TransportProtocolJSONRPC,
		Provider: &a2a.AgentProvider{
			Org: "paygate",
			URL: "https://github.com/kadirpekel/paygate",
		},
	}
}
