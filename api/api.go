// Copyright 2025 Blink Labs Software
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

// Package api exposes the approval workflow and the ledger over HTTP/JSON.
package api

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/aipx/aipx/ledger"
	"github.com/aipx/aipx/verifier"
	"github.com/aipx/aipx/workflow"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const DefaultListenAddress = ":8000"

// Backend is the interface that the API server uses to reach the workflow
// and the ledger. This decouples the HTTP server from the concrete Node and
// enables testing with mock implementations.
type Backend interface {
	SubmitItem(ctx context.Context, submitter, content, reason string) (*workflow.SubmitResult, error)
	RecordDecision(ctx context.Context, itemID uint64, approver, decision string) (*workflow.DecisionResult, error)
	ListItems(ctx context.Context) ([]workflow.ItemView, error)
	LedgerEntries(ctx context.Context) iter.Seq2[*ledger.Entry, error]
	VerifyLedger(ctx context.Context) (verifier.Result, error)
}

type Config struct {
	ListenAddress string
	// ShutdownTimeout bounds the graceful shutdown triggered by context
	// cancellation
	ShutdownTimeout time.Duration
}

// Server is the HTTP API server.
type Server struct {
	config     Config
	logger     *slog.Logger
	backend    Backend
	router     chi.Router
	httpServer *http.Server
	listenAddr net.Addr
	mu         sync.Mutex
}

// New creates a new API server instance.
func New(cfg Config, backend Backend, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = DefaultListenAddress
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	s := &Server{
		config:  cfg,
		logger:  logger.With("component", "api"),
		backend: backend,
	}
	s.router = s.newRouter()
	return s
}

func (s *Server) newRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	// Set before mounting subrouters so they inherit the JSON handlers
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "Not Found", "The requested component has not been found.")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method Not Allowed", "The requested method is not allowed.")
	})
	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)
	r.Route("/query", func(r chi.Router) {
		r.Post("/submit", s.handleSubmit)
		r.Post("/approve", s.handleApprove)
	})
	r.Get("/queries", s.handleQueries)
	r.Route("/ledger", func(r chi.Router) {
		r.Get("/", s.handleLedger)
		r.Get("/verify", s.handleVerify)
	})
	return r
}

// Handler returns the HTTP handler serving the API
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr returns the address the server is listening on, or nil when stopped
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listenAddr
}

// Start binds the listening socket and serves in a background goroutine.
// The server shuts down when ctx is cancelled
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.httpServer != nil {
		return errors.New("server already started")
	}
	// Bind first so that port conflicts are reported to the caller
	ln, err := net.Listen("tcp", s.config.ListenAddress)
	if err != nil {
		return fmt.Errorf("failed to listen for API server: %w", err)
	}
	server := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 60 * time.Second,
	}
	s.httpServer = server
	s.listenAddr = ln.Addr()
	go func() {
		if err := server.Serve(ln); err != nil &&
			!errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()
	s.logger.Info("API listener started on " + ln.Addr().String())
	go func() {
		<-ctx.Done()
		//nolint:contextcheck
		shutdownCtx, cancel := context.WithTimeout(
			context.Background(),
			s.config.ShutdownTimeout,
		)
		defer cancel()
		//nolint:contextcheck
		if err := s.Stop(shutdownCtx); err != nil {
			s.logger.Error(
				"failed to shutdown API server on context cancellation",
				"error", err,
			)
		}
	}()
	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpServer
	s.httpServer = nil
	s.listenAddr = nil
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	s.logger.Debug("shutting down API server")
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown API server: %w", err)
	}
	return nil
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug(
			"handled request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
