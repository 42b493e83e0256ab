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

package facilitator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kadirpekel/paygate/pkg/httpclient"
	"github.com/kadirpekel/paygate/pkg/payment"
	"github.com/kadirpekel/paygate/pkg/x402"
)

// maxErrorBody bounds how much of an error response ends up in an error message.
const maxErrorBody = 512

// ClientConfig configures a Client.
type ClientConfig struct {
	// URL is the facilitator base URL.
	URL string

	// Timeout bounds each HTTP attempt. Zero keeps the httpclient default.
	Timeout time.Duration

	// MaxRetries for throttled and gateway-error responses.
	MaxRetries int

	// APIKey, when set, is sent as a bearer token.
	APIKey string

	TLS *httpclient.TLSConfig
}

// Client calls a remote facilitator over HTTP.
type Client struct {
	baseURL string
	apiKey  string
	http    *httpclient.Client
}

// NewClient creates a facilitator client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("facilitator url is required")
	}
	transport, err := cfg.TLS.Transport()
	if err != nil {
		return nil, err
	}
	opts := []httpclient.Option{
		httpclient.WithTransport(transport),
		httpclient.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.Timeout > 0 {
		opts = append(opts, httpclient.WithTimeout(cfg.Timeout))
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		apiKey:  cfg.APIKey,
		http:    httpclient.New(opts...),
	}, nil
}

// QuoteFees implements payment.FeeQuoter.
func (c *Client) QuoteFees(ctx context.Context, reqs []x402.PaymentRequirements) ([]x402.FeeQuote, error) {
	var out QuoteResponse
	if err := c.do(ctx, http.MethodPost, PathQuote, QuoteRequest{PaymentRequirements: reqs}, &out); err != nil {
		return nil, err
	}
	return out.Quotes, nil
}

// Verify implements payment.Processor.
func (c *Client) Verify(ctx context.Context, payload *x402.PaymentPayload, req x402.PaymentRequirements) (*x402.VerifyResponse, error) {
	var out x402.VerifyResponse
	if err := c.do(ctx, http.MethodPost, PathVerify, newPaymentRequest(payload, req), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Settle implements payment.Processor.
func (c *Client) Settle(ctx context.Context, payload *x402.PaymentPayload, req x402.PaymentRequirements) (*x402.SettleResponse, error) {
	var out x402.SettleResponse
	if err := c.do(ctx, http.MethodPost, PathSettle, newPaymentRequest(payload, req), &out); err != nil {
		return nil, err
	}
	if out.Network == "" {
		out.Network = req.Network
	}
	return &out, nil
}

// Supported lists the kinds of payment the facilitator handles.
func (c *Client) Supported(ctx context.Context) (*SupportedResponse, error) {
	var out SupportedResponse
	if err := c.do(ctx, http.MethodGet, PathSupported, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func newPaymentRequest(payload *x402.PaymentPayload, req x402.PaymentRequirements) PaymentRequest {
	version := x402.ProtocolVersion
	if payload != nil && payload.X402Version != 0 {
		version = payload.X402Version
	}
	return PaymentRequest{X402Version: version, PaymentPayload: payload, PaymentRequirements: req}
}

// do performs one JSON call. Any transport failure, non-2xx status or
// undecodable body is reported as ErrUnavailable.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	var raw []byte
	if in != nil {
		var err error
		if raw, err = json.Marshal(in); err != nil {
			return fmt.Errorf("failed to encode %s request: %w", path, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", path, err)
	}
	if raw != nil {
		req.Header.Set("Content-Type", "application/json")
		req.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(raw)), nil
		}
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrUnavailable, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("%w: %s returned HTTP %d: %s", ErrUnavailable, path, resp.StatusCode,
			strings.TrimSpace(string(snippet)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %s: invalid response: %w", ErrUnavailable, path, err)
	}
	return nil
}

var (
	_ payment.Processor = (*Client)(nil)
	_ payment.FeeQuoter = (*Client)(nil)
)
