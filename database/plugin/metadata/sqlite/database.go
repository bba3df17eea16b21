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

package sqlite

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/aipx/aipx/database/plugin"
	"github.com/aipx/aipx/database/plugin/metadata/gormstore"
	"github.com/glebarez/sqlite"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const (
	DefaultMaxConnections = 4
	DefaultBusyTimeout    = 5000

	metadataFileName = "metadata.sqlite"
)

var appendOnlySQL = []string{
	`CREATE TRIGGER IF NOT EXISTS ledger_entries_no_update
	BEFORE UPDATE ON ledger_entries
	BEGIN
		SELECT RAISE(ABORT, 'ledger_entries is append-only');
	END`,
	`CREATE TRIGGER IF NOT EXISTS ledger_entries_no_delete
	BEFORE DELETE ON ledger_entries
	BEGIN
		SELECT RAISE(ABORT, 'ledger_entries is append-only');
	END`,
}

// MetadataStoreSqlite stores metadata in SQLite
type MetadataStoreSqlite struct {
	*gormstore.Store

	promRegistry   prometheus.Registerer
	statsCollector prometheus.Collector
	logger         *slog.Logger
	dataDir        string
	maxConnections int
	busyTimeout    int
}

// New creates a SQLite metadata store. Uses in-memory database if dataDir is empty.
func New(
	dataDir string,
	logger *slog.Logger,
	promRegistry prometheus.Registerer,
) (*MetadataStoreSqlite, error) {
	return NewWithOptions(
		WithDataDir(dataDir),
		WithLogger(logger),
		WithPromRegistry(promRegistry),
	)
}

// NewWithOptions creates a new database with options. The connection is
// opened by Start
func NewWithOptions(opts ...SqliteOptionFunc) (*MetadataStoreSqlite, error) {
	db := &MetadataStoreSqlite{}
	for _, opt := range opts {
		opt(db)
	}
	if db.logger == nil {
		db.logger = plugin.DiscardLogger()
	}
	if db.maxConnections <= 0 {
		db.maxConnections = DefaultMaxConnections
	}
	if db.busyTimeout <= 0 {
		db.busyTimeout = DefaultBusyTimeout
	}
	return db, nil
}

// Start implements the plugin.Plugin interface
func (d *MetadataStoreSqlite) Start() error {
	if d.Store != nil {
		return nil
	}
	pragmas := []string{
		"_pragma=foreign_keys(1)",
		fmt.Sprintf("_pragma=busy_timeout(%d)", d.busyTimeout),
	}
	var dsn string
	maxConns := d.maxConnections
	if d.dataDir == "" {
		// A private in-memory database only lives as long as its
		// connection, so the pool is pinned to one
		dsn = "file::memory:?" + strings.Join(pragmas, "&")
		maxConns = 1
	} else {
		// Make sure that we can read data dir, and create if it doesn't exist
		if _, err := os.Stat(d.dataDir); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("failed to read data dir: %w", err)
			}
			if err := os.MkdirAll(d.dataDir, fs.ModePerm); err != nil {
				return fmt.Errorf("failed to create data dir: %w", err)
			}
		}
		pragmas = append(pragmas, "_pragma=journal_mode(WAL)")
		dsn = fmt.Sprintf(
			"file:%s?%s",
			filepath.Join(d.dataDir, metadataFileName),
			strings.Join(pragmas, "&"),
		)
	}
	metadataDb, err := gorm.Open(
		sqlite.Open(dsn),
		&gorm.Config{
			Logger:                 gormlogger.Discard,
			SkipDefaultTransaction: true,
			TranslateError:         true,
		},
	)
	if err != nil {
		return err
	}
	sqlDB, err := metadataDb.DB()
	if err != nil {
		return err
	}
	sqlDB.SetMaxOpenConns(maxConns)
	sqlDB.SetMaxIdleConns(maxConns)
	sqlDB.SetConnMaxLifetime(0)
	store, err := gormstore.New(
		metadataDb,
		d.logger,
		gormstore.Dialect{
			Name:          "sqlite",
			AppendOnlySQL: appendOnlySQL,
			IsConflict:    isConflict,
		},
	)
	if err != nil {
		_ = sqlDB.Close()
		return err
	}
	if err := store.Migrate(); err != nil {
		_ = sqlDB.Close()
		return err
	}
	d.Store = store
	if d.promRegistry != nil {
		d.statsCollector = collectors.NewDBStatsCollector(sqlDB, "metadata_sqlite")
		if err := d.promRegistry.Register(d.statsCollector); err != nil {
			d.logger.Warn(
				"failed to register sqlite stats collector",
				"error", err,
			)
			d.statsCollector = nil
		}
	}
	d.logger.Debug(
		"opened sqlite metadata store",
		"data_dir", d.dataDir,
		"max_connections", maxConns,
	)
	return nil
}

// Stop implements the plugin.Plugin interface
func (d *MetadataStoreSqlite) Stop() error {
	return d.Close()
}

// Close closes the database connections
func (d *MetadataStoreSqlite) Close() error {
	if d.Store == nil {
		return nil
	}
	if d.statsCollector != nil {
		d.promRegistry.Unregister(d.statsCollector)
		d.statsCollector = nil
	}
	err := d.Store.Close()
	d.Store = nil
	return err
}

func isConflict(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database is locked")
}
