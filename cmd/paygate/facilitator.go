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
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kadirpekel/paygate/pkg/facilitator"
)

// FacilitatorCmd runs the in-memory facilitator. It verifies wallet permits
// and settles them without touching a chain.
type FacilitatorCmd struct {
	Port int `help:"Port to listen on (overrides facilitator.local.port)."`
}

func (c *FacilitatorCmd) Run(cli *CLI) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, _, cleanup, err := cli.setup(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	local := cfg.Facilitator
	if c.Port != 0 {
		local.Local.Port = c.Port
	}

	handler, err := facilitator.NewServer(facilitatorServerConfig(local.Local))
	if err != nil {
		return fmt.Errorf("failed to create facilitator: %w", err)
	}

	srv := &http.Server{
		Addr:              local.LocalAddress(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("Facilitator starting", "address", srv.Addr, "networks", local.Local.Networks, "fees", len(local.Local.Fees))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	slog.Info("Facilitator stopped", "settlements", handler.Settlements())
	return err
}
