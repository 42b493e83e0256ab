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

// Command paygate runs x402 payment-gated A2A agents.
//
// Usage:
//
//	paygate serve --config paygate.yaml
//	paygate facilitator --config paygate.yaml
//	paygate buy --config paygate.yaml
//	paygate wallet new
package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"

	"github.com/kadirpekel/paygate/pkg/config"
)

// CLI defines the command-line interface.
type CLI struct {
	Version     VersionCmd     `cmd:"" help:"Show version information."`
	Serve       ServeCmd       `cmd:"" help:"Start the payment-gated merchant agent."`
	Facilitator FacilitatorCmd `cmd:"" help:"Start the in-memory facilitator for local development."`
	Buy         BuyCmd         `cmd:"" help:"Chat with merchant agents through a paying buyer agent."`
	Wallet      WalletCmd      `cmd:"" help:"Manage the local signing wallet."`
	Validate    ValidateCmd    `cmd:"" help:"Validate configuration."`

	Config          string   `short:"c" help:"Path to config file, or key in a remote config store."`
	ConfigProvider  string   `name:"config-provider" help:"Config source (file, consul, etcd, zookeeper)." default:"file"`
	ConfigEndpoints []string `name:"config-endpoints" help:"Endpoints of the remote config store." sep:","`
	LogLevel        string   `help:"Log level (debug, info, warn, error)."`
	LogFile         string   `help:"Log file path (empty = stderr)."`
	LogFormat       string   `help:"Log format (simple, verbose, json)."`
}

func main() {
	// .env files never override variables already set.
	if err := config.LoadEnvFiles(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load .env: %v\n", err)
		os.Exit(1)
	}

	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("paygate"),
		kong.Description("paygate - x402 payments for A2A agents"),
		kong.UsageOnError(),
	)

	// Bootstrap logging from flags and env; commands re-apply it once the
	// config file's logging section is known.
	cleanup, err := initLogger(&cli, config.LoggerConfig{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	err = ctx.Run(&cli)
	cleanup()
	ctx.FatalIfErrorf(err)
}
