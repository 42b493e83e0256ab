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

package main

import (
	"fmt"

	"github.com/kadirpekel/paygate/pkg/agent/merchant"
	"github.com/kadirpekel/paygate/pkg/config"
	"github.com/kadirpekel/paygate/pkg/facilitator"
	"github.com/kadirpekel/paygate/pkg/httpclient"
	"github.com/kadirpekel/paygate/pkg/model"
	"github.com/kadirpekel/paygate/pkg/model/gemini"
	"github.com/kadirpekel/paygate/pkg/x402"
)

// catalogFromConfig maps the merchant section to a catalog.
func catalogFromConfig(cfg config.MerchantConfig) merchant.Catalog {
	products := make(map[string]string, len(cfg.Products))
	for name, price := range cfg.Products {
		products[name] = price
	}
	return merchant.Catalog{
		Network:           cfg.Network,
		Asset:             cfg.Asset,
		PayTo:             cfg.PayTo,
		TokenName:         cfg.TokenName,
		TokenVersion:      cfg.TokenVersion,
		DefaultPrice:      cfg.DefaultPrice,
		Products:          products,
		MaxTimeoutSeconds: cfg.MaxTimeoutSeconds,
	}
}

// newModel builds the reasoning engine.
func newModel(cfg config.LLMConfig) (model.LLM, error) {
	switch cfg.Provider {
	case config.LLMProviderGemini:
		gc := gemini.Config{
			APIKey:    cfg.APIKey,
			Model:     cfg.Model,
			MaxTokens: cfg.MaxTokens,
		}
		if cfg.Temperature != nil {
			gc.Temperature = *cfg.Temperature
		}
		llm, err := gemini.New(gc)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s model: %w", cfg.Provider, err)
		}
		return llm, nil
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
}

func generateConfig(cfg config.LLMConfig) *model.GenerateConfig {
	if cfg.Temperature == nil && cfg.MaxTokens == 0 {
		return nil
	}
	gc := &model.GenerateConfig{Temperature: cfg.Temperature}
	if cfg.MaxTokens > 0 {
		maxTokens := cfg.MaxTokens
		gc.MaxTokens = &maxTokens
	}
	return gc
}

func newFacilitatorClient(cfg config.FacilitatorConfig) (*facilitator.Client, error) {
	return facilitator.NewClient(facilitator.ClientConfig{
		URL:        cfg.URL,
		APIKey:     cfg.APIKey,
		Timeout:    cfg.Timeout,
		MaxRetries: cfg.Retries(),
		TLS: &httpclient.TLSConfig{
			InsecureSkipVerify: cfg.InsecureSkipVerify,
			CACertificate:      cfg.CACertificate,
		},
	})
}

func facilitatorServerConfig(cfg config.LocalFacilitatorConfig) facilitator.ServerConfig {
	fees := make([]x402.FeeQuote, 0, len(cfg.Fees))
	for _, f := range cfg.Fees {
		fees = append(fees, x402.FeeQuote{
			Network: f.Network,
			Scheme:  f.Scheme,
			Asset:   f.Asset,
			Fee:     x402.FeeInfo{FeeTo: f.FeeTo, FeeAmount: f.FeeAmount},
		})
	}
	return facilitator.ServerConfig{
		Networks: cfg.Networks,
		Fees:     fees,
		Balances: cfg.Balances,
	}
}
