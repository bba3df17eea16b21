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
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/aipx/aipx/database/plugin"
	"github.com/aipx/aipx/database/plugin/metadata/gormstore"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const DefaultMaxConnections = 20

// SQLSTATE codes meaning another writer won
var conflictCodes = map[string]struct{}{
	"23505": {}, // unique_violation
	"40001": {}, // serialization_failure
	"40P01": {}, // deadlock_detected
	"55P03": {}, // lock_not_available
}

var appendOnlySQL = []string{
	`CREATE OR REPLACE FUNCTION ledger_entries_append_only() RETURNS trigger AS $$
	BEGIN
		RAISE EXCEPTION 'ledger_entries is append-only';
	END;
	$$ LANGUAGE plpgsql`,
	`DROP TRIGGER IF EXISTS ledger_entries_append_only ON ledger_entries`,
	`CREATE TRIGGER ledger_entries_append_only
	BEFORE UPDATE OR DELETE ON ledger_entries
	FOR EACH ROW EXECUTE FUNCTION ledger_entries_append_only()`,
	`DROP TRIGGER IF EXISTS ledger_entries_no_truncate ON ledger_entries`,
	`CREATE TRIGGER ledger_entries_no_truncate
	BEFORE TRUNCATE ON ledger_entries
	FOR EACH STATEMENT EXECUTE FUNCTION ledger_entries_append_only()`,
}

// MetadataStorePostgres stores metadata in PostgreSQL
type MetadataStorePostgres struct {
	*gormstore.Store

	promRegistry   prometheus.Registerer
	statsCollector prometheus.Collector
	logger         *slog.Logger

	conn           gormstore.ConnParams
	maxConnections int
}

// NewWithOptions creates a new database with options. The connection is
// opened by Start
func NewWithOptions(opts ...PostgresOptionFunc) (*MetadataStorePostgres, error) {
	db := &MetadataStorePostgres{}
	for _, opt := range opts {
		opt(db)
	}
	db.conn = db.conn.Merge(defaultConn)
	if db.maxConnections <= 0 {
		db.maxConnections = DefaultMaxConnections
	}
	if db.logger == nil {
		db.logger = plugin.DiscardLogger()
	}
	return db, nil
}

func (d *MetadataStorePostgres) buildDSN() string {
	if d.conn.DSN != "" {
		return d.conn.DSN
	}
	parts := []string{
		"host=" + d.conn.Host,
		"user=" + d.conn.User,
		"password=" + d.conn.Password,
		"dbname=" + d.conn.Database,
		"port=" + strconv.FormatUint(d.conn.Port, 10),
		"sslmode=" + d.conn.SSLMode,
	}
	if d.conn.TimeZone != "" {
		parts = append(parts, "TimeZone="+d.conn.TimeZone)
	}
	return strings.Join(parts, " ")
}

// Start implements the plugin.Plugin interface
func (d *MetadataStorePostgres) Start() error {
	if d.Store != nil {
		return nil
	}
	metadataDb, err := gorm.Open(
		postgres.Open(d.buildDSN()),
		&gorm.Config{
			Logger:                 gormlogger.Discard,
			SkipDefaultTransaction: true,
			PrepareStmt:            true,
			TranslateError:         true,
		},
	)
	if err != nil {
		return err
	}
	d.logger.Info(
		"connected to postgres metadata store",
		"host", d.conn.Host,
		"port", d.conn.Port,
		"database", d.conn.Database,
	)
	sqlDB, err := metadataDb.DB()
	if err != nil {
		return err
	}
	sqlDB.SetMaxIdleConns(d.maxConnections / 2)
	sqlDB.SetMaxOpenConns(d.maxConnections)
	sqlDB.SetConnMaxLifetime(time.Hour)
	store, err := gormstore.New(
		metadataDb,
		d.logger,
		gormstore.Dialect{
			Name:          "postgres",
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
		d.statsCollector = collectors.NewDBStatsCollector(sqlDB, "metadata_postgres")
		if err := d.promRegistry.Register(d.statsCollector); err != nil {
			d.logger.Warn(
				"failed to register postgres stats collector",
				"error", err,
			)
			d.statsCollector = nil
		}
	}
	return nil
}

// Stop implements the plugin.Plugin interface
func (d *MetadataStorePostgres) Stop() error {
	return d.Close()
}

// Close closes the database connections
func (d *MetadataStorePostgres) Close() error {
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
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	_, ok := conflictCodes[pgErr.Code]
	return ok
}
