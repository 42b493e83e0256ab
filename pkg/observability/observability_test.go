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

package observability

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZeroValueMetricsAreNilSafe(t *testing.T) {
	ctx := context.Background()
	var nilMetrics *PrometheusMetrics
	for _, m := range []Metrics{&PrometheusMetrics{}, nilMetrics, NoopMetrics{}} {
		m.RecordToolExecution(ctx, "search", 50*time.Millisecond, nil)
		m.RecordLLMCall(ctx, "gemini", time.Second, 10, 5, errors.New("x"))
		m.RecordPayment(ctx, StageVerify, OutcomeOK)
		m.RecordTaskTransition(ctx, "working")
		m.RecordHTTPRequest(ctx, "GET", "/", 200, time.Millisecond)
	}
}

func TestGlobalMetricsNeverNil(t *testing.T) {
	SetGlobalMetrics(nil)
	assert.NotNil(t, GetGlobalMetrics())

	custom := &PrometheusMetrics{}
	SetGlobalMetrics(custom)
	defer SetGlobalMetrics(nil)
	assert.Same(t, custom, GetGlobalMetrics())
}

func TestManager_ExposesPrometheusMetrics(t *testing.T) {
	ctx := context.Background()
	mgr := NewManager(Config{Metrics: MetricsConfig{Enabled: true}})
	require.NoError(t, mgr.Initialize(ctx))
	defer func() { _ = mgr.Shutdown(ctx) }()

	mgr.GetMetrics().RecordPayment(ctx, StageSettle, OutcomeOK)
	mgr.GetMetrics().RecordToolExecution(ctx, "buy", time.Millisecond, nil)

	rec := httptest.NewRecorder()
	mgr.MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, _ := io.ReadAll(rec.Body)
	assert.True(t, strings.Contains(string(body), "paygate_payment_events_total"), string(body))
	assert.Equal(t, "/metrics", mgr.MetricsPath())
}

func TestConfigValidation(t *testing.T) {
	cfg := Config{Tracing: TracingConfig{Enabled: true, Exporter: "zipkin"}}
	cfg.SetDefaults()
	assert.Error(t, cfg.Validate())

	cfg.Tracing.Exporter = "stdout"
	assert.NoError(t, cfg.Validate())

	cfg.Tracing.SamplingRate = 2
	assert.Error(t, cfg.Validate())
}

func TestHTTPMiddleware_CapturesStatus(t *testing.T) {
	rec := &capturingMetrics{}
	h := HTTPMiddleware(rec)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/verify", nil))
	assert.Equal(t, http.StatusTeapot, rec.status)
	assert.Equal(t, "/verify", rec.path)
}

type capturingMetrics struct {
	NoopMetrics
	path   string
	status int
}

func (c *capturingMetrics) RecordHTTPRequest(_ context.Context, _, path string, status int, _ time.Duration) {
	c.path = path
	c.status = status
}
