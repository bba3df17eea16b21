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

package badger

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
)

type BadgerOptionFunc func(*MetadataStoreBadger)

// WithLogger specifies the logger object to use for logging messages
func WithLogger(logger *slog.Logger) BadgerOptionFunc {
	return func(m *MetadataStoreBadger) {
		m.logger = logger
	}
}

// WithPromRegistry specifies the prometheus registry to use for metrics
func WithPromRegistry(
	registry prometheus.Registerer,
) BadgerOptionFunc {
	return func(m *MetadataStoreBadger) {
		m.promRegistry = registry
	}
}

// WithDataDir specifies the data directory to use for storage. An empty
// value selects an in-memory database
func WithDataDir(dataDir string) BadgerOptionFunc {
	return func(m *MetadataStoreBadger) {
		m.dataDir = dataDir
	}
}

// WithBlockCacheSize specifies the block cache size
func WithBlockCacheSize(size uint64) BadgerOptionFunc {
	return func(m *MetadataStoreBadger) {
		m.blockCacheSize = size
	}
}

// WithIndexCacheSize specifies the index cache size
func WithIndexCacheSize(size uint64) BadgerOptionFunc {
	return func(m *MetadataStoreBadger) {
		m.indexCacheSize = size
	}
}

// WithGc specifies whether periodic value log garbage collection is enabled
func WithGc(enabled bool) BadgerOptionFunc {
	return func(m *MetadataStoreBadger) {
		m.gcEnabled = enabled
	}
}
