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

package node

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/aipx/aipx"
	"github.com/aipx/aipx/hashengine"
	"github.com/aipx/aipx/internal/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewNode builds an aipx.Node from the loaded configuration
func NewNode(
	cfg *config.Config,
	logger *slog.Logger,
	promRegistry prometheus.Registerer,
	apiEnabled bool,
) (*aipx.Node, error) {
	shutdownTimeout, err := cfg.ShutdownTimeoutDuration()
	if err != nil {
		return nil, err
	}
	opts := []aipx.ConfigOptionFunc{
		aipx.WithLogger(logger),
		aipx.WithDatabasePath(cfg.DatabasePath),
		aipx.WithMetadataPlugin(cfg.MetadataPlugin),
		aipx.WithHashAlgorithm(hashengine.Algorithm(cfg.HashAlgorithm)),
		aipx.WithPrivilegedRoles(cfg.PrivilegedRoles...),
		aipx.WithQuorumThreshold(cfg.QuorumThreshold),
		aipx.WithMaxAppendRetries(cfg.MaxAppendRetries),
		aipx.WithShutdownTimeout(shutdownTimeout),
		aipx.WithPrometheusRegistry(promRegistry),
		aipx.WithTracing(cfg.Tracing),
		aipx.WithTracingStdout(cfg.TracingStdout),
	}
	if apiEnabled && cfg.ApiPort > 0 {
		opts = append(
			opts,
			aipx.WithApiListenAddress(
				fmt.Sprintf("%s:%d", cfg.BindAddr, cfg.ApiPort),
			),
		)
	}
	return aipx.New(aipx.NewConfig(opts...))
}

func Run(cfg *config.Config, logger *slog.Logger) error {
	logger.Debug(fmt.Sprintf("config: %+v", cfg), "component", "node")
	shutdownTimeout, err := cfg.ShutdownTimeoutDuration()
	if err != nil {
		return err
	}
	// Enable metrics with default prometheus registry
	n, err := NewNode(cfg, logger, prometheus.DefaultRegisterer, true)
	if err != nil {
		return err
	}
	// Metrics listener
	var metricsServer *http.Server
	if cfg.MetricsPort > 0 {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsAddr := fmt.Sprintf("%s:%d", cfg.BindAddr, cfg.MetricsPort)
		logger.Info(
			"serving prometheus metrics on "+metricsAddr,
			"component",
			"node",
		)
		metricsServer = &http.Server{
			Addr:              metricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 60 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
		}
	}
	// Wait for interrupt/termination signal
	signalCtx, signalCtxStop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer signalCtxStop()

	errChan := make(chan error, 2)
	if metricsServer != nil {
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil &&
				!errors.Is(err, http.ErrServerClosed) {
				errChan <- fmt.Errorf("failed to start metrics listener: %w", err)
			}
		}()
	}
	// Run node in goroutine
	go func() {
		errChan <- n.Run(signalCtx)
	}()

	var runErr error
	select {
	case <-signalCtx.Done():
		logger.Info("signal received, initiating graceful shutdown")
	case runErr = <-errChan:
		if runErr != nil {
			logger.Error("node error", "error", runErr)
		} else {
			logger.Info("node stopped")
		}
	}
	signalCtxStop()

	shutdownCtx, cancel := context.WithTimeout(
		context.Background(),
		shutdownTimeout,
	)
	defer cancel()
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("metrics server shutdown error", "error", err)
		}
	}
	if stopErr := n.Stop(); stopErr != nil {
		logger.Error("shutdown errors occurred", "error", stopErr)
		return errors.Join(runErr, stopErr)
	}
	logger.Info("shutdown complete")
	return runErr
}
