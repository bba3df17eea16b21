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

package postgres

import (
	"log/slog"

	"github.com/aipx/aipx/database/plugin/metadata/gormstore"
	"github.com/prometheus/client_golang/prometheus"
)

type PostgresOptionFunc func(*MetadataStorePostgres)

// WithLogger specifies the logger object to use for logging messages
func WithLogger(logger *slog.Logger) PostgresOptionFunc {
	return func(m *MetadataStorePostgres) {
		m.logger = logger
	}
}

// WithPromRegistry specifies the prometheus registry for connection pool stats
func WithPromRegistry(registry prometheus.Registerer) PostgresOptionFunc {
	return func(m *MetadataStorePostgres) {
		m.promRegistry = registry
	}
}

// WithConn specifies the server connection settings
func WithConn(conn gormstore.ConnParams) PostgresOptionFunc {
	return func(m *MetadataStorePostgres) {
		m.conn = conn
	}
}

// WithMaxConnections specifies the connection pool size. Half of it is kept
// idle
func WithMaxConnections(maxConns int) PostgresOptionFunc {
	return func(m *MetadataStorePostgres) {
		m.maxConnections = maxConns
	}
}
