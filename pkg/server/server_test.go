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

package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/a2aproject/a2a-go/a2asrv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/paygate/pkg/agent/remoteagent"
	"github.com/kadirpekel/paygate/pkg/config"
	"github.com/kadirpekel/paygate/pkg/facilitator"
	"github.com/kadirpekel/paygate/pkg/payment"
	"github.com/kadirpekel/paygate/pkg/task"
	"github.com/kadirpekel/paygate/pkg/tool"
	"github.com/kadirpekel/paygate/pkg/wallet"
	"github.com/kadirpekel/paygate/pkg/x402"
)

func bananaShop() payment.BusinessExecutor {
	return payment.BusinessExecutorFunc(func(ctx context.Context, inv *payment.Invocation) (tool.Outcome, error) {
		if inv.Verified == nil {
			return &tool.NeedsPayment{Product: "banana", Requirements: []x402.PaymentRequirements{{
				Scheme:            x402.SchemeExactPermit,
				Network:           "tron:nile",
				Amount:            "100",
				Asset:             "TUSDT",
				PayTo:             "TMerchant",
				MaxTimeoutSeconds: 1200,
				Extra:             &x402.RequirementsExtra{Name: "USDT"},
			}}}, nil
		}
		if err := inv.Updater.AddArtifact(ctx, a2a.TextPart{Text: "Your banana is on its way."}); err != nil {
			return nil, err
		}
		return tool.Completed{}, nil
	})
}

type testShop struct {
	url         string
	facilitator *facilitator.Server
}

func startShop(t *testing.T, cfg config.ServerConfig, opts ...Option) *testShop {
	t.Helper()

	fac, err := facilitator.NewServer(facilitator.ServerConfig{Networks: []string{"tron:nile"}})
	require.NoError(t, err)
	facTS := httptest.NewServer(fac)
	t.Cleanup(facTS.Close)
	client, err := facilitator.NewClient(facilitator.ClientConfig{URL: facTS.URL})
	require.NoError(t, err)

	ts := httptest.NewUnstartedServer(nil)
	url := "http://" + ts.Listener.Addr().String()

	reg := task.NewRegistry()
	gate := payment.NewGate(bananaShop(), reg, client)
	card := &a2a.AgentCard{
		Name:               "banana_shop",
		URL:                url,
		Version:            "1.0.0",
		ProtocolVersion:    "1.0",
		DefaultInputModes:  []string{"text"},
		DefaultOutputModes: []string{"text"},
		PreferredTransport: a2a.TransportProtocolJSONRPC,
	}
	opts = append([]Option{WithTaskStore(reg.A2AStore())}, opts...)
	srv, err := New(cfg, gate, card, opts...)
	require.NoError(t, err)

	ts.Config.Handler = srv.Handler()
	ts.Start()
	t.Cleanup(ts.Close)
	return &testShop{url: url, facilitator: fac}
}

func TestHealthAndCard(t *testing.T) {
	shop := startShop(t, config.ServerConfig{})

	resp, err := http.Get(shop.url + HealthPath)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cardResp, err := http.Get(shop.url + a2asrv.WellKnownAgentCardPath)
	require.NoError(t, err)
	defer cardResp.Body.Close()
	var card a2a.AgentCard
	require.NoError(t, json.NewDecoder(cardResp.Body).Decode(&card))
	assert.Equal(t, "banana_shop", card.Name)
	assert.Equal(t, shop.url, card.URL)
}

func TestPurchaseOverHTTP(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	shop := startShop(t, config.ServerConfig{})

	conn, err := remoteagent.Dial(ctx, remoteagent.Config{URL: shop.url})
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, "banana_shop", conn.Name())

	local := task.NewRegistry()
	track := func(ctx context.Context, ev a2a.Event) error {
		_, err := local.ApplyEvent(ctx, ev)
		return err
	}

	res, err := conn.Send(ctx, a2a.NewMessage(a2a.MessageRoleUser, a2a.TextPart{Text: "I want a banana"}), track)
	require.NoError(t, err)
	require.NotEmpty(t, res.TaskID)

	challenged, err := local.Get(ctx, res.TaskID)
	require.NoError(t, err)
	assert.Equal(t, task.StateInputRequired, challenged.Status.State)
	assert.Equal(t, x402.StatusRequired, challenged.Payment.Status)
	require.NotNil(t, challenged.Payment.Required)
	assert.Equal(t, "100", challenged.Payment.Required.Accepts[0].Amount)

	w, err := wallet.GenerateLocalWallet()
	require.NoError(t, err)
	payload, err := w.SignPayment(ctx, challenged.Payment.Required)
	require.NoError(t, err)
	md, err := x402.PaymentContext{Status: x402.StatusSubmitted, Payload: payload}.Metadata()
	require.NoError(t, err)

	pay := a2a.NewMessage(a2a.MessageRoleUser, a2a.TextPart{Text: "send_signed_payment_payload"})
	pay.TaskID = res.TaskID
	pay.ContextID = res.ContextID
	pay.Metadata = md

	_, err = conn.Send(ctx, pay, track)
	require.NoError(t, err)

	done, err := local.Get(ctx, res.TaskID)
	require.NoError(t, err)
	assert.Equal(t, task.StateCompleted, done.Status.State)
	assert.Equal(t, []string{"Your banana is on its way."}, done.ArtifactTexts())
	receipt := done.Payment.LatestReceipt()
	require.NotNil(t, receipt)
	assert.True(t, receipt.Success)
	assert.Equal(t, w.Address(), receipt.Payer)
	assert.Equal(t, 1, shop.facilitator.Settlements())
}

func TestCORSPreflight(t *testing.T) {
	shop := startShop(t, config.ServerConfig{})

	req, err := http.NewRequest(http.MethodOptions, shop.url+"/", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://wallet.example.com")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "https://wallet.example.com", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Methods"), "POST")
}

func TestExcludedPathsKeepPublicEndpoints(t *testing.T) {
	s := &Server{cfg: config.ServerConfig{Auth: &config.AuthConfig{ExcludedPaths: []string{"/docs"}}}}
	assert.ElementsMatch(t, []string{"/docs", HealthPath, a2asrv.WellKnownAgentCardPath}, s.excludedPaths())
}

func TestNewValidates(t *testing.T) {
	_, err := New(config.ServerConfig{}, nil, &a2a.AgentCard{})
	assert.Error(t, err)
	_, err = New(config.ServerConfig{}, payment.NewGate(bananaShop(), task.NewRegistry(), nil), nil)
	assert.Error(t, err)
}

func TestServeAndShutdown(t *testing.T) {
	srv, err := New(config.ServerConfig{}, payment.NewGate(bananaShop(), task.NewRegistry(), nil), &a2a.AgentCard{Name: "shop"})
	require.NoError(t, err)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + HealthPath)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 3*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
