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

// Package server exposes a payment-gated agent over A2A JSON-RPC.
//
// Routes:
//   - POST /                              A2A JSON-RPC (message/send, message/stream, tasks/get)
//   - GET  /.well-known/agent-card.json   agent card
//   - GET  /health                        liveness
//   - GET  <metrics path>                 Prometheus metrics, when enabled
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/a2aproject/a2a-go/a2asrv"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kadirpekel/paygate/pkg/auth"
	"github.com/kadirpekel/paygate/pkg/config"
	"github.com/kadirpekel/paygate/pkg/observability"
)

// HealthPath is the liveness endpoint.
const HealthPath = "/health"

// Server serves one agent executor.
type Server struct {
	cfg       config.ServerConfig
	card      *a2a.AgentCard
	handler   http.Handler
	validator *auth.JWTValidator
	obs       *observability.Manager
	taskStore a2asrv.TaskStore

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
}

// Option configures a Server.
type Option func(*Server)

// WithTaskStore persists tasks in store instead of a2a-go's in-memory store.
func WithTaskStore(store a2asrv.TaskStore) Option {
	return func(s *Server) {
		s.taskStore = store
	}
}

// WithAuthValidator requires a valid bearer token outside the excluded paths.
func WithAuthValidator(v *auth.JWTValidator) Option {
	return func(s *Server) {
		s.validator = v
	}
}

// WithObservability enables request metrics and the metrics endpoint.
func WithObservability(m *observability.Manager) Option {
	return func(s *Server) {
		s.obs = m
	}
}

// New creates a server for executor described by card.
func New(cfg config.ServerConfig, executor a2asrv.AgentExecutor, card *a2a.AgentCard, opts ...Option) (*Server, error) {
	if executor == nil {
		return nil, fmt.Errorf("executor is required")
	}
	if card == nil {
		return nil, fmt.Errorf("agent card is required")
	}
	cfg.SetDefaults()

	s := &Server{cfg: cfg, card: card}
	for _, opt := range opts {
		opt(s)
	}
	s.handler = s.buildHandler(executor)
	return s, nil
}

// Handler returns the full middleware-wrapped handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Card returns the served agent card.
func (s *Server) Card() *a2a.AgentCard {
	return s.card
}

func (s *Server) buildHandler(executor a2asrv.AgentExecutor) http.Handler {
	var handlerOpts []a2asrv.RequestHandlerOption
	if s.taskStore != nil {
		handlerOpts = append(handlerOpts, a2asrv.WithTaskStore(s.taskStore))
	}
	requestHandler := a2asrv.NewHandler(executor, handlerOpts...)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get(HealthPath, handleHealth)
	r.Method(http.MethodGet, a2asrv.WellKnownAgentCardPath, a2asrv.NewStaticAgentCardHandler(s.card))
	if s.obs != nil && s.obs.MetricsEnabled() {
		r.Method(http.MethodGet, s.obs.MetricsPath(), s.obs.MetricsHandler())
		slog.Info("Metrics endpoint enabled", "path", s.obs.MetricsPath())
	}
	var rpc chi.Router = r
	if s.validator != nil && s.cfg.Auth != nil && len(s.cfg.Auth.RequiredRoles) > 0 {
		rpc = r.With(auth.RequireRole(s.cfg.Auth.RequiredRoles...))
	}
	rpc.Method(http.MethodPost, "/", a2asrv.NewJSONRPCHandler(requestHandler))

	// Order, outermost first: observability, request id, logging, cors, auth, routes.
	var handler http.Handler = r
	if s.validator != nil {
		excluded := s.excludedPaths()
		handler = auth.Middleware(s.validator, excluded)(handler)
		slog.Info("Authentication enabled", "excluded_paths", excluded)
	}
	handler = corsMiddleware(s.cfg.CORS)(handler)
	handler = loggingMiddleware(handler)
	handler = middleware.RequestID(handler)
	if s.obs != nil {
		handler = observability.HTTPMiddleware(s.obs.GetMetrics())(handler)
	}
	return handler
}

// excludedPaths always keeps health, the card and metrics public.
func (s *Server) excludedPaths() []string {
	var excluded []string
	if s.cfg.Auth != nil {
		excluded = append(excluded, s.cfg.Auth.ExcludedPaths...)
	}
	required := []string{HealthPath, a2asrv.WellKnownAgentCardPath}
	if s.obs != nil && s.obs.MetricsEnabled() {
		required = append(required, s.obs.MetricsPath())
	}
	for _, p := range required {
		if !slices.Contains(excluded, p) {
			excluded = append(excluded, p)
		}
	}
	return excluded
}

// Start listens and serves until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Address())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Address(), err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:      s.handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	s.mu.Lock()
	s.server = srv
	s.listener = ln
	s.mu.Unlock()

	slog.Info("Server starting", "address", ln.Addr().String(), "agent", s.card.Name, "url", s.card.URL)

	errCh := make(chan error, 1)
	go func() {
		var err error
		if s.cfg.TLS.Enabled() {
			err = srv.ServeTLS(ln, s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			err = srv.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	}
}

// Shutdown gracefully stops the server within the configured timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()

	slog.Info("Server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	return nil
}

// Addr returns the bound address once serving, or the configured one.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.cfg.Address()
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func corsMiddleware(cfg *config.CORSConfig) func(http.Handler) http.Handler {
	if cfg == nil {
		cfg = &config.CORSConfig{}
	}
	methods := strings.Join(cfg.AllowedMethods, ", ")
	headers := strings.Join(cfg.AllowedHeaders, ", ")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if origin := r.Header.Get("Origin"); origin != "" {
				if slices.Contains(cfg.AllowedOrigins, "*") || slices.Contains(cfg.AllowedOrigins, origin) {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Add("Vary", "Origin")
				}
			}
			if methods != "" {
				w.Header().Set("Access-Control-Allow-Methods", methods)
			}
			if headers != "" {
				w.Header().Set("Access-Control-Allow-Headers", headers)
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// loggingMiddleware doesn't wrap the ResponseWriter so streaming keeps its
// http.Flusher.
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
			"duration", time.Since(start),
		)
	})
}
