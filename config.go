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

package aipx

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/aipx/aipx/hashengine"
	"github.com/prometheus/client_golang/prometheus"
)

type Config struct {
	promRegistry     prometheus.Registerer
	logger           *slog.Logger
	dataDir          string
	metadataPlugin   string
	apiListenAddress string
	hashAlgorithm    hashengine.Algorithm
	privilegedRoles  []string
	quorumThreshold  int
	maxAppendRetries uint64
	tracing          bool
	tracingStdout    bool
	shutdownTimeout  time.Duration
}

func (n *Node) configValidate() error {
	if n.config.quorumThreshold < 1 {
		return fmt.Errorf(
			"invalid quorum threshold: %d",
			n.config.quorumThreshold,
		)
	}
	if len(n.config.privilegedRoles) == 0 {
		return errors.New("no privileged roles defined")
	}
	if _, err := hashengine.ParseAlgorithm(string(n.config.hashAlgorithm)); err != nil {
		return err
	}
	if n.config.tracingStdout && !n.config.tracing {
		n.config.logger.Warn(
			"stdout tracing requested without tracing enabled, ignoring",
			"component", "node",
		)
	}
	return nil
}

// ConfigOptionFunc is a type that represents functions that modify the Node config
type ConfigOptionFunc func(*Config)

// NewConfig creates a new aipx config with the specified options
func NewConfig(opts ...ConfigOptionFunc) Config {
	c := Config{
		// Default logger will throw away logs
		// We do this so we don't have to add guards around every log operation
		logger:          slog.New(slog.NewJSONHandler(io.Discard, nil)),
		hashAlgorithm:   hashengine.DefaultAlgorithm,
		privilegedRoles: []string{"supervisor", "judge"},
		quorumThreshold: 2,
	}
	// Apply options
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// WithDatabasePath specifies the persistent data directory to use. The default is to store everything in memory
func WithDatabasePath(dataDir string) ConfigOptionFunc {
	return func(c *Config) {
		c.dataDir = dataDir
	}
}

// WithMetadataPlugin specifies the metadata storage plugin to use.
func WithMetadataPlugin(plugin string) ConfigOptionFunc {
	return func(c *Config) {
		c.metadataPlugin = plugin
	}
}

// WithLogger specifies the logger to use. This defaults to discarding log output
func WithLogger(logger *slog.Logger) ConfigOptionFunc {
	return func(c *Config) {
		c.logger = logger
	}
}

// WithPrometheusRegistry specifies a prometheus.Registerer instance to add metrics to. In most cases, prometheus.DefaultRegistry would be
// a good choice to get metrics working
func WithPrometheusRegistry(registry prometheus.Registerer) ConfigOptionFunc {
	return func(c *Config) {
		c.promRegistry = registry
	}
}

// WithApiListenAddress specifies the listen address for the HTTP API, such as ":8000". The API is disabled when empty
func WithApiListenAddress(address string) ConfigOptionFunc {
	return func(c *Config) {
		c.apiListenAddress = address
	}
}

// WithHashAlgorithm specifies the digest used for ledger entries and content hashes. The default is sha256
func WithHashAlgorithm(alg hashengine.Algorithm) ConfigOptionFunc {
	return func(c *Config) {
		c.hashAlgorithm = alg
	}
}

// WithPrivilegedRoles specifies the operator roles allowed to approve or reject items
func WithPrivilegedRoles(roles ...string) ConfigOptionFunc {
	return func(c *Config) {
		c.privilegedRoles = roles
	}
}

// WithQuorumThreshold specifies the number of approvals that moves an item to approved. The default is 2
func WithQuorumThreshold(threshold int) ConfigOptionFunc {
	return func(c *Config) {
		c.quorumThreshold = threshold
	}
}

// WithMaxAppendRetries specifies how many times a ledger write unit is re-run after a store conflict
func WithMaxAppendRetries(retries uint64) ConfigOptionFunc {
	return func(c *Config) {
		c.maxAppendRetries = retries
	}
}

// WithTracing enables tracing. By default, spans are submitted to a HTTP(s) endpoint using OTLP. This can be configured
// using the OTEL_EXPORTER_OTLP_* env vars documented in the README for [go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp]
func WithTracing(tracing bool) ConfigOptionFunc {
	return func(c *Config) {
		c.tracing = tracing
	}
}

// WithTracingStdout enables tracing output to stdout. This also requires tracing to enabled separately. This is mostly useful for debugging
func WithTracingStdout(stdout bool) ConfigOptionFunc {
	return func(c *Config) {
		c.tracingStdout = stdout
	}
}

// WithShutdownTimeout specifies the timeout for graceful shutdown. The default is 30 seconds
func WithShutdownTimeout(timeout time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.shutdownTimeout = timeout
	}
}
