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
	"fmt"
	"time"
)

// Trace exporters.
const (
	ExporterOTLP   = "otlp"
	ExporterStdout = "stdout"
)

// Config configures tracing and metrics.
//
//	observability:
//	  metrics:
//	    enabled: true
//	  tracing:
//	    enabled: true
//	    endpoint: otel-collector:4317
type Config struct {
	Tracing TracingConfig `yaml:"tracing,omitempty"`
	Metrics MetricsConfig `yaml:"metrics,omitempty"`
}

// TracingConfig configures span export for gate runs, facilitator calls and
// engine rounds.
type TracingConfig struct {
	Enabled bool `yaml:"enabled,omitempty"`

	// Exporter is otlp (default) or stdout.
	Exporter string `yaml:"exporter,omitempty"`

	// Endpoint of the OTLP gRPC collector.
	// Default: localhost:4317
	Endpoint string `yaml:"endpoint,omitempty"`

	// SamplingRate is the sampled fraction of traces, 0 to 1.
	// Default: 1
	SamplingRate float64 `yaml:"sampling_rate,omitempty"`

	ServiceName    string `yaml:"service_name,omitempty"`
	ServiceVersion string `yaml:"service_version,omitempty"`

	// Insecure sends spans without TLS. Unset means true.
	Insecure *bool `yaml:"insecure,omitempty"`

	// Headers are sent with every export, e.g. collector credentials.
	Headers map[string]string `yaml:"headers,omitempty"`

	// Timeout bounds one export.
	// Default: 10s
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled,omitempty"`

	// Endpoint is the HTTP path of the scrape handler.
	// Default: /metrics
	Endpoint string `yaml:"endpoint,omitempty"`

	// Namespace prefixes metric names, e.g. paygate_payments_total.
	// Default: paygate
	Namespace string `yaml:"namespace,omitempty"`
}

// SetDefaults applies default values.
func (c *Config) SetDefaults() {
	t := &c.Tracing
	if t.Exporter == "" {
		t.Exporter = ExporterOTLP
	}
	if t.Endpoint == "" {
		t.Endpoint = DefaultOTLPEndpoint
	}
	if t.SamplingRate == 0 {
		t.SamplingRate = DefaultSamplingRate
	}
	if t.ServiceName == "" {
		t.ServiceName = DefaultServiceName
	}
	if t.Timeout == 0 {
		t.Timeout = 10 * time.Second
	}

	m := &c.Metrics
	if m.Endpoint == "" {
		m.Endpoint = DefaultMetricsPath
	}
	if m.Namespace == "" {
		m.Namespace = DefaultServiceName
	}
}

// Validate checks enabled sections only.
func (c *Config) Validate() error {
	if t := c.Tracing; t.Enabled {
		if t.SamplingRate < 0 || t.SamplingRate > 1 {
			return fmt.Errorf("tracing: sampling_rate must be between 0 and 1, got %g", t.SamplingRate)
		}
		switch t.Exporter {
		case ExporterOTLP:
			if t.Endpoint == "" {
				return fmt.Errorf("tracing: endpoint is required for the otlp exporter")
			}
		case ExporterStdout:
		default:
			return fmt.Errorf("tracing: invalid exporter %q (valid: otlp, stdout)", t.Exporter)
		}
	}
	if c.Metrics.Enabled && c.Metrics.Endpoint == "" {
		return fmt.Errorf("metrics: endpoint is required when metrics are enabled")
	}
	return nil
}

// IsInsecure reports whether spans are exported without TLS.
func (c *TracingConfig) IsInsecure() bool {
	return c.Insecure == nil || *c.Insecure
}
