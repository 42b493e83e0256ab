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
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"

	"github.com/kadirpekel/paygate/pkg/agent/buyer"
	"github.com/kadirpekel/paygate/pkg/agent/remoteagent"
	"github.com/kadirpekel/paygate/pkg/config"
	"github.com/kadirpekel/paygate/pkg/httpclient"
	"github.com/kadirpekel/paygate/pkg/wallet"
)

// BuyCmd chats with merchant agents through a buyer that pays on its own.
type BuyCmd struct {
	Remote  []string `short:"r" help:"Extra merchant agents as name=url." placeholder:"NAME=URL"`
	Message string   `short:"m" help:"Send one message and exit instead of starting a chat."`
	Stream  bool     `help:"Consume the reasoning engine in streaming mode."`
}

func (c *BuyCmd) Run(cli *CLI) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, _, cleanup, err := cli.setup(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	remotes, err := c.remotes(cfg.Buyer.Remotes)
	if err != nil {
		return err
	}
	if len(remotes) == 0 {
		return fmt.Errorf("no merchant agents configured (use buyer.remotes or --remote name=url)")
	}

	w, err := wallet.LoadLocalWallet(cfg.Wallet.KeyFile, wallet.WithNetworks(cfg.Wallet.Networks...))
	if err != nil {
		return err
	}

	llm, err := newModel(cfg.LLM)
	if err != nil {
		return err
	}

	var conns []buyer.Remote
	for _, r := range remotes {
		conn, err := remoteagent.Dial(ctx, remoteagent.Config{
			Name:            r.Name,
			URL:             r.URL,
			AgentCardSource: r.AgentCard,
			Timeout:         r.Timeout,
			TLS:             &httpclient.TLSConfig{InsecureSkipVerify: r.InsecureSkipVerify},
		})
		if err != nil {
			return fmt.Errorf("failed to reach %s: %w", r.Name, err)
		}
		defer conn.Close()
		conns = append(conns, conn)
	}

	b, err := buyer.New(buyer.Config{
		Name:            cfg.Buyer.Name,
		Model:           llm,
		Instruction:     cfg.Buyer.Instruction,
		Wallet:          w,
		Remotes:         conns,
		MaxIterations:   cfg.LLM.MaxIterations,
		EnableStreaming: c.Stream,
	})
	if err != nil {
		return err
	}

	sessionID := uuid.NewString()
	if c.Message != "" {
		answer, err := b.Chat(ctx, sessionID, c.Message)
		if answer != "" {
			fmt.Println(answer)
		}
		return err
	}

	fmt.Printf("Wallet %s. Talking to %d merchant(s).\n", w.Address(), len(conns))
	fmt.Println("Type your message (or /quit to exit, /clear to start over)")
	fmt.Println()
	return chatLoop(ctx, b, sessionID)
}

// remotes merges the configured agents with --remote flags. Flags win on
// name clashes.
func (c *BuyCmd) remotes(configured []config.RemoteAgentConfig) ([]config.RemoteAgentConfig, error) {
	out := append([]config.RemoteAgentConfig(nil), configured...)
	for _, spec := range c.Remote {
		name, url, ok := strings.Cut(spec, "=")
		if !ok || name == "" || url == "" {
			return nil, fmt.Errorf("invalid --remote %q (want name=url)", spec)
		}
		r := config.RemoteAgentConfig{Name: name, URL: url}
		replaced := false
		for i := range out {
			if out[i].Name == name {
				out[i], replaced = r, true
			}
		}
		if !replaced {
			out = append(out, r)
		}
	}

	bc := config.BuyerConfig{Remotes: out}
	bc.SetDefaults()
	if err := bc.Validate(); err != nil {
		return nil, err
	}
	return bc.Remotes, nil
}

func chatLoop(ctx context.Context, b *buyer.Buyer, sessionID string) error {
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("You: ")
		if !scanner.Scan() {
			return scanner.Err()
		}

		input := strings.TrimSpace(scanner.Text())
		switch input {
		case "":
			continue
		case "/quit", "/exit":
			fmt.Println("Goodbye!")
			return nil
		case "/clear":
			sessionID = uuid.NewString()
			fmt.Println("Started a new conversation.")
			continue
		}

		answer, err := b.Chat(ctx, sessionID, input)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			slog.Error("Chat failed", "error", err)
			fmt.Printf("\nError: %v\n\n", err)
			continue
		}
		fmt.Printf("\nBuyer: %s\n\n", answer)
	}
}
