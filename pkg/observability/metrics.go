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
	"fmt"
	"net/http"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// InitMetrics builds the otel instruments on a private Prometheus registry
// and returns the recorder with the HTTP handler that scrapes it. When
// metrics are disabled both results record and serve nothing.
func InitMetrics(_ context.Context, cfg MetricsConfig) (*PrometheusMetrics, *sdkmetric.MeterProvider, http.Handler, error) {
	if !cfg.Enabled {
		return &PrometheusMetrics{}, nil, http.NotFoundHandler(), nil
	}

	registry := promclient.NewRegistry()
	promExporter, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	meterProvider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(promExporter))
	meter := meterProvider.Meter(instrumentationName)

	ns := cfg.Namespace
	if ns == "" {
		ns = DefaultServiceName
	}
	b := &instrumentBuilder{meter: meter, ns: ns}

	m := &PrometheusMetrics{
		toolDuration:     b.histogram("tool_execution_duration_seconds", "Tool execution duration in seconds"),
		toolCallsTotal:   b.counter("tool_calls_total", "Total tool calls"),
		toolErrorsTotal:  b.counter("tool_errors_total", "Total tool errors"),
		llmDuration:      b.histogram("llm_request_duration_seconds", "LLM request duration in seconds"),
		llmInputTokens:   b.counter("llm_tokens_input_total", "Total input tokens sent to LLM"),
		llmOutputTokens:  b.counter("llm_tokens_output_total", "Total output tokens from LLM"),
		llmErrorsTotal:   b.counter("llm_errors_total", "Total LLM errors"),
		paymentsTotal:    b.counter("payment_events_total", "Payment stage outcomes"),
		transitionsTotal: b.counter("task_transitions_total", "Task state transitions"),
		httpDuration:     b.histogram("http_request_duration_seconds", "HTTP request duration in seconds"),
	}
	if b.err != nil {
		return nil, nil, nil, b.err
	}

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
	return m, meterProvider, handler, nil
}

// instrumentBuilder keeps the first creation error so instruments can be
// declared in one block.
type instrumentBuilder struct {
	meter metric.Meter
	ns    string
	err   error
}

func (b *instrumentBuilder) counter(name, desc string) metric.Int64Counter {
	if b.err != nil {
		return nil
	}
	c, err := b.meter.Int64Counter(b.ns+"_"+name, metric.WithDescription(desc))
	if err != nil {
		b.err = fmt.Errorf("failed to create %s counter: %w", name, err)
	}
	return c
}

func (b *instrumentBuilder) histogram(name, desc string) metric.Float64Histogram {
	if b.err != nil {
		return nil
	}
	h, err := b.meter.Float64Histogram(b.ns+"_"+name, metric.WithDescription(desc))
	if err != nil {
		b.err = fmt.Errorf("failed to create %s histogram: %w", name, err)
	}
	return h
}
