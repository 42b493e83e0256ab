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
	"io/fs"
	"log/slog"
	"os"

	"github.com/kadirpekel/paygate/pkg/config"
	"github.com/kadirpekel/paygate/pkg/config/provider"
)

// DefaultConfigFile is used when --config is not given and the file exists.
const DefaultConfigFile = "paygate.yaml"

// loadConfig loads configuration from the selected provider, or returns the
// defaults when there is nothing to load. The loader is nil in that case.
func (cli *CLI) loadConfig(ctx context.Context, opts ...config.LoaderOption) (*config.Config, *config.Loader, error) {
	path := cli.Config
	if path == "" {
		if _, err := os.Stat(DefaultConfigFile); errors.Is(err, fs.ErrNotExist) {
			slog.Debug("No config file, using defaults")
			return config.Default(), nil, nil
		}
		path = DefaultConfigFile
	}

	typ, err := provider.ParseType(cli.ConfigProvider)
	if err != nil {
		return nil, nil, err
	}
	cfg, loader, err := config.LoadConfig(ctx, provider.ProviderConfig{
		Type:      typ,
		Path:      path,
		Endpoints: cli.ConfigEndpoints,
	}, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config from %s: %w", path, err)
	}
	slog.Debug("Config loaded", "provider", typ, "path", path)
	return cfg, loader, nil
}

// setup loads the config and re-applies logging with the config's logging
// section under the CLI and env overrides. The returned cleanup closes the
// loader and the log file.
func (cli *CLI) setup(ctx context.Context, opts ...config.LoaderOption) (*config.Config, *config.Loader, func(), error) {
	cfg, loader, err := cli.loadConfig(ctx, opts...)
	if err != nil {
		return nil, nil, nil, err
	}

	closeLog, err := initLogger(cli, cfg.Logging)
	if err != nil {
		if loader != nil {
			_ = loader.Close()
		}
		return nil, nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	cleanup := func() {
		if loader != nil {
			_ = loader.Close()
		}
		closeLog()
	}
	return cfg, loader, cleanup, nil
}
