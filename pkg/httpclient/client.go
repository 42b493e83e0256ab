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

// Package httpclient is the HTTP client used for facilitator calls. It
// retries on throttling and gateway statuses and leaves every other
// response to the caller.
package httpclient

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

const (
	defaultTimeout    = 30 * time.Second
	defaultMaxRetries = 3
	defaultBaseDelay  = 500 * time.Millisecond
)

// Client retries requests according to Classify.
type Client struct {
	client     *http.Client
	maxRetries int
	baseDelay  time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.client = client
	}
}

// WithTransport sets the round tripper, e.g. one from TLSConfig.Transport.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) {
		c.client.Transport = rt
	}
}

// WithTimeout bounds each attempt.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.client.Timeout = timeout
	}
}

// WithMaxRetries sets how many times a request is retried after the first
// attempt. Zero disables retries.
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		c.maxRetries = n
	}
}

// WithBaseDelay sets the unit of the backoff.
func WithBaseDelay(d time.Duration) Option {
	return func(c *Client) {
		c.baseDelay = d
	}
}

// New creates a client. Defaults: 30s timeout, 3 retries, 500ms base delay.
func New(opts ...Option) *Client {
	c := &Client{
		client:     &http.Client{Timeout: defaultTimeout},
		maxRetries: defaultMaxRetries,
		baseDelay:  defaultBaseDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Do sends req. Transport errors and non-retryable statuses return at once;
// a retryable status is retried until the budget runs out, which yields an
// *ExhaustedError. Waits end early when the request context is done.
// Requests with a body must set GetBody to be retried.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	rewindable := req.Body == nil || req.Body == http.NoBody || req.GetBody != nil
	for attempt := 0; ; attempt++ {
		if attempt > 0 && req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, fmt.Errorf("failed to rewind request body: %w", err)
			}
			req.Body = body
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return nil, err
		}
		kind := Classify(resp.StatusCode)
		if kind == NoRetry {
			return resp, nil
		}

		delay := c.backoff(kind, attempt, RetryAfter(resp.Header))
		resp.Body.Close()
		if attempt >= c.maxRetries || delay <= 0 || !rewindable {
			return nil, &ExhaustedError{StatusCode: resp.StatusCode, Attempts: attempt + 1, RetryAfter: delay}
		}

		slog.Debug("Retrying request", "url", req.URL.String(), "status", resp.StatusCode,
			"delay", delay, "attempt", attempt+1)
		if err := sleep(req.Context(), delay); err != nil {
			return nil, err
		}
	}
}

// backoff honours Retry-After on throttling and otherwise doubles the base
// delay. Gateway errors get two quick retries at most.
func (c *Client) backoff(kind RetryKind, attempt int, retryAfter time.Duration) time.Duration {
	switch kind {
	case RetryThrottled:
		if retryAfter > 0 {
			return retryAfter
		}
		return c.baseDelay << attempt
	case RetryGateway:
		if attempt >= 2 {
			return 0
		}
		return time.Duration(attempt+1) * c.baseDelay
	default:
		return 0
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
