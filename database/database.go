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

package database

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aipx/aipx/database/plugin"
	"github.com/aipx/aipx/database/plugin/metadata"
	"github.com/aipx/aipx/database/types"
	"github.com/prometheus/client_golang/prometheus"

	// Register the metadata backends
	_ "github.com/aipx/aipx/database/plugin/metadata/badger"
	_ "github.com/aipx/aipx/database/plugin/metadata/mysql"
	_ "github.com/aipx/aipx/database/plugin/metadata/postgres"
	_ "github.com/aipx/aipx/database/plugin/metadata/sqlite"
)

const DefaultMetadataPlugin = "sqlite"

// ErrConflict is returned when a write collides with a concurrent writer
var ErrConflict = types.ErrConflict

// Config holds the options for opening a Database
type Config struct {
	Logger       *slog.Logger
	PromRegistry prometheus.Registerer
	// DataDir is handed to file-backed plugins. An empty value selects an
	// in-memory store where the plugin supports one
	DataDir        string
	MetadataPlugin string
}

type Database struct {
	logger   *slog.Logger
	metadata metadata.MetadataStore
	config   *Config
}

// DataDir returns the path to the data directory used for storage
func (d *Database) DataDir() string {
	return d.config.DataDir
}

// Logger returns the logger instance
func (d *Database) Logger() *slog.Logger {
	return d.logger
}

// Metadata returns the underlying metadata store instance
func (d *Database) Metadata() metadata.MetadataStore {
	return d.metadata
}

// Transaction starts a new database transaction and returns a handle to it
func (d *Database) Transaction(readWrite bool) *Txn {
	return NewTxn(context.Background(), d, readWrite)
}

// TransactionContext starts a new database transaction bound to ctx
func (d *Database) TransactionContext(ctx context.Context, readWrite bool) *Txn {
	return NewTxn(ctx, d, readWrite)
}

// Close cleans up the database connections
func (d *Database) Close() error {
	if d.metadata == nil {
		return nil
	}
	return d.metadata.Close()
}

// New opens the configured metadata plugin and returns a Database wrapping it
func New(config *Config) (*Database, error) {
	if config == nil {
		config = &Config{}
	}
	cfg := *config
	if cfg.Logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		cfg.Logger = plugin.DiscardLogger()
	}
	if cfg.MetadataPlugin == "" {
		cfg.MetadataPlugin = DefaultMetadataPlugin
	}
	if err := plugin.SetPluginOption(
		plugin.PluginTypeMetadata,
		cfg.MetadataPlugin,
		"data-dir",
		cfg.DataDir,
	); err != nil {
		return nil, err
	}
	metadataStore, err := metadata.New(
		cfg.MetadataPlugin,
		cfg.Logger,
		cfg.PromRegistry,
	)
	if err != nil {
		return nil, fmt.Errorf("open metadata store: %w", err)
	}
	cfg.Logger.Debug(
		"opened database",
		"plugin", cfg.MetadataPlugin,
		"data_dir", cfg.DataDir,
	)
	return &Database{
		logger:   cfg.Logger,
		metadata: metadataStore,
		config:   &cfg,
	}, nil
}
