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
	"fmt"
	"os"

	"github.com/kadirpekel/paygate"
	"github.com/kadirpekel/paygate/pkg/wallet"
)

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Println(paygate.GetVersion())
	return nil
}

// ValidateCmd loads and validates the configuration.
type ValidateCmd struct{}

func (c *ValidateCmd) Run(cli *CLI) error {
	cfg, _, cleanup, err := cli.setup(context.Background())
	if err != nil {
		return err
	}
	defer cleanup()

	if cfg.Merchant.IsConfigured() {
		if err := cfg.Merchant.Validate(); err != nil {
			return fmt.Errorf("merchant: %w", err)
		}
	}
	fmt.Println("Configuration is valid")
	return nil
}

// WalletCmd manages the local wallet.
type WalletCmd struct {
	New     WalletNewCmd     `cmd:"" help:"Generate a new wallet key."`
	Address WalletAddressCmd `cmd:"" help:"Print the wallet address."`
}

// WalletNewCmd generates a key.
type WalletNewCmd struct {
	Out   string `short:"o" help:"Key file (default: wallet.key_file)." type:"path"`
	Force bool   `help:"Overwrite an existing key."`
}

func (c *WalletNewCmd) Run(cli *CLI) error {
	cfg, _, cleanup, err := cli.setup(context.Background())
	if err != nil {
		return err
	}
	defer cleanup()

	path := c.Out
	if path == "" {
		path = cfg.Wallet.KeyFile
	}
	if !c.Force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already holds a key (use --force to replace it)", path)
		}
	}

	w, err := wallet.GenerateLocalWallet()
	if err != nil {
		return err
	}
	if err := w.Save(path); err != nil {
		return err
	}
	fmt.Printf("Wallet saved to %s\nAddress: %s\n", path, w.Address())
	return nil
}

// WalletAddressCmd prints the address of the configured key.
type WalletAddressCmd struct{}

func (c *WalletAddressCmd) Run(cli *CLI) error {
	cfg, _, cleanup, err := cli.setup(context.Background())
	if err != nil {
		return err
	}
	defer cleanup()

	w, err := wallet.LoadLocalWallet(cfg.Wallet.KeyFile)
	if err != nil {
		return err
	}
	fmt.Println(w.Address())
	return nil
}
