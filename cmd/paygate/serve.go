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
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/a2aproject/a2a-go/a2asrv"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/kadirpekel/paygate"
	"github.com/kadirpekel/paygate/pkg/agent/merchant"
	"github.com/kadirpekel/paygate/pkg/auth"
	"github.com/kadirpekel/paygate/pkg/config"
	"github.com/kadirpekel/paygate/pkg/facilitator"
	"github.com/kadirpekel/paygate/pkg/observability"
	"github.com/kadirpekel/paygate/pkg/payment"
	"github.com/kadirpekel/paygate/pkg/server"
	"github.com/kadirpekel/paygate/pkg/task"
)

// ServeCmd starts the merchant behind the payment gate.
type ServeCmd struct {
	Port  int  `help:"Port to listen on (overrides server.port)."`
	Watch bool `help:"Watch the config source and hot-reload the catalog."`
}

func (c *ServeCmd) Run(cli *CLI) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Set once the merchant exists; reloads before that are ignored.
	var current atomic.Pointer[merchant.Merchant]
	cfg, loader, cleanup, err := cli.setup(ctx, config.WithOnChange(func(next *config.Config) {
		reloadCatalog(current.Load(), next)
	}))
	if err != nil {
		return err
	}
	defer cleanup()

	if c.Port != 0 {
		defaultURL := fmt.Sprintf("http://localhost:%d", cfg.Server.Port)
		cfg.Server.Port = c.Port
		if cfg.Server.URL == defaultURL {
			cfg.Server.URL = ""
			cfg.Server.SetDefaults()
		}
	}
	if err := cfg.Merchant.Validate(); err != nil {
		return fmt.Errorf("merchant: %w", err)
	}

	if cfg.Observability.Tracing.ServiceVersion == "" {
		cfg.Observability.Tracing.ServiceVersion = paygate.GetVersion().Version
	}
	obs := observability.NewManager(cfg.Observability)
	if err := obs.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize observability: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := obs.Shutdown(shutdownCtx); err != nil {
			slog.Warn("Observability shutdown failed", "error", err)
		}
	}()

	llm, err := newModel(cfg.LLM)
	if err != nil {
		return err
	}

	store, err := task.NewStoreFromConfig(&cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to create task store: %w", err)
	}
	defer store.Close()
	registry := task.NewRegistry(task.WithStore(store))

	m, err := merchant.New(merchant.Config{
		Name:            cfg.Merchant.Name,
		Description:     cfg.Merchant.Description,
		Model:           llm,
		Instruction:     cfg.Merchant.Instruction,
		Catalog:         catalogFromConfig(cfg.Merchant),
		MaxIterations:   cfg.LLM.MaxIterations,
		EnableStreaming: cfg.Merchant.Streaming,
		GenerateConfig:  generateConfig(cfg.LLM),
	})
	if err != nil {
		return err
	}
	current.Store(m)

	client, err := newFacilitatorClient(cfg.Facilitator)
	if err != nil {
		return fmt.Errorf("failed to create facilitator client: %w", err)
	}
	gate := payment.NewGate(m, registry,
		facilitator.NewIdempotentProcessor(client, cfg.Facilitator.SettleCacheTTL),
		payment.WithFeeEnricher(payment.NewFeeEnricher(client, cfg.Facilitator.QuoteTimeout)),
	)

	opts := []server.Option{
		server.WithTaskStore(registry.A2AStore()),
		server.WithObservability(obs),
	}
	validator, err := auth.NewValidatorFromConfig(cfg.Server.Auth)
	if err != nil {
		return err
	}
	if validator != nil {
		defer validator.Close()
		opts = append(opts, server.WithAuthValidator(validator))
	}

	srv, err := server.New(cfg.Server, gate, m.AgentCard(cfg.Server.URL, cfg.Server.Version), opts...)
	if err != nil {
		return err
	}

	if term.IsTerminal(int(os.Stdout.Fd())) {
		printBanner(cfg, srv)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Start(gctx)
	})
	if c.Watch && loader != nil {
		g.Go(func() error {
			if err := loader.Watch(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("config watch: %w", err)
			}
			return nil
		})
	}

	err = g.Wait()
	slog.Info("Shut down")
	return err
}

// reloadCatalog swaps the catalog of a running merchant. Tasks already
// waiting for payment keep the requirements they were challenged with.
func reloadCatalog(m *merchant.Merchant, next *config.Config) {
	if m == nil {
		return
	}
	if err := next.Merchant.Validate(); err != nil {
		slog.Warn("Ignoring reloaded catalog", "error", err)
		return
	}
	if err := m.SetCatalog(catalogFromConfig(next.Merchant)); err != nil {
		slog.Warn("Ignoring reloaded catalog", "error", err)
		return
	}
	slog.Info("Catalog reloaded", "products", len(next.Merchant.Products), "default_price", next.Merchant.DefaultPrice)
}

func printBanner(cfg *config.Config, srv *server.Server) {
	const green, reset = "\033[38;2;16;185;129m", "\033[0m"
	fmt.Printf("\n%spaygate merchant ready%s\n", green, reset)
	fmt.Printf("   Agent:       %s\n", srv.Card().Name)
	fmt.Printf("   Endpoint:    %s/\n", cfg.Server.URL)
	fmt.Printf("   Agent Card:  %s%s\n", cfg.Server.URL, a2asrv.WellKnownAgentCardPath)
	fmt.Printf("   Health:      %s%s\n", cfg.Server.URL, server.HealthPath)
	fmt.Printf("   Network:     %s (%s)\n", cfg.Merchant.Network, cfg.Merchant.TokenName)
	fmt.Printf("   Facilitator: %s\n", cfg.Facilitator.URL)
	if cfg.Storage.IsSQL() {
		fmt.Printf("   Tasks:       %s (%s)\n", cfg.Storage.Dialect, cfg.Storage.DSN)
	} else {
		fmt.Printf("   Tasks:       in-memory (not persisted)\n")
	}
	if cfg.Observability.Metrics.Enabled {
		fmt.Printf("   Metrics:     %s%s\n", cfg.Server.URL, cfg.Observability.Metrics.Endpoint)
	}
	fmt.Println("\nPress Ctrl+C to stop")
}
