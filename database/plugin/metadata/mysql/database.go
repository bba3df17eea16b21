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

package mysql

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/aipx/aipx/database/plugin"
	"github.com/aipx/aipx/database/plugin/metadata/gormstore"
	"github.com/go-sql-driver/mysql"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const errUnknownDatabase = 1049

// Server error numbers meaning another writer won
var conflictErrors = map[uint16]struct{}{
	1062: {}, // ER_DUP_ENTRY
	1205: {}, // ER_LOCK_WAIT_TIMEOUT
	1213: {}, // ER_LOCK_DEADLOCK
}

var appendOnlySQL = []string{
	`DROP TRIGGER IF EXISTS ledger_entries_no_update`,
	`CREATE TRIGGER ledger_entries_no_update
	BEFORE UPDATE ON ledger_entries FOR EACH ROW
	SIGNAL SQLSTATE '45000' SET MESSAGE_TEXT = 'ledger_entries is append-only'`,
	`DROP TRIGGER IF EXISTS ledger_entries_no_delete`,
	`CREATE TRIGGER ledger_entries_no_delete
	BEFORE DELETE ON ledger_entries FOR EACH ROW
	SIGNAL SQLSTATE '45000' SET MESSAGE_TEXT = 'ledger_entries is append-only'`,
}

// MetadataStoreMysql stores metadata in MySQL.
type MetadataStoreMysql struct {
	*gormstore.Store

	promRegistry   prometheus.Registerer
	statsCollector prometheus.Collector
	logger         *slog.Logger

	conn gormstore.ConnParams
}

// NewWithOptions creates a new database with options. The connection is
// opened by Start
func NewWithOptions(opts ...MysqlOptionFunc) (*MetadataStoreMysql, error) {
	db := &MetadataStoreMysql{}
	for _, opt := range opts {
		opt(db)
	}
	db.conn = db.conn.Merge(defaultConn)
	if db.logger == nil {
		db.logger = plugin.DiscardLogger()
	}
	return db, nil
}

// buildDSN returns the connection string and the database name it selects
func (d *MetadataStoreMysql) buildDSN() (string, string) {
	if d.conn.DSN != "" {
		if parsedDB, ok := parseMysqlDatabaseFromDSN(d.conn.DSN); ok {
			return d.conn.DSN, parsedDB
		}
		return d.conn.DSN, d.conn.Database
	}
	loc, err := time.LoadLocation(d.conn.TimeZone)
	if err != nil {
		loc = time.UTC
	}
	cfg := mysql.Config{
		User:                 d.conn.User,
		Passwd:               d.conn.Password,
		Net:                  "tcp",
		Addr:                 net.JoinHostPort(d.conn.Host, strconv.FormatUint(d.conn.Port, 10)),
		DBName:               d.conn.Database,
		Loc:                  loc,
		ParseTime:            true,
		AllowNativePasswords: true,
		Params:               map[string]string{},
	}
	if d.conn.SSLMode != "" {
		cfg.Params["tls"] = d.conn.SSLMode
	}
	return cfg.FormatDSN(), d.conn.Database
}

func gormConfig() *gorm.Config {
	return &gorm.Config{
		Logger:                 gormlogger.Discard,
		SkipDefaultTransaction: true,
		PrepareStmt:            true,
		TranslateError:         true,
	}
}

// Start implements the plugin.Plugin interface
func (d *MetadataStoreMysql) Start() error {
	if d.Store != nil {
		return nil
	}
	dsn, logDatabase := d.buildDSN()
	metadataDb, err := gorm.Open(gormmysql.Open(dsn), gormConfig())
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == errUnknownDatabase {
			if created, createErr := d.ensureDatabaseExists(dsn, logDatabase); createErr == nil &&
				created {
				metadataDb, err = gorm.Open(gormmysql.Open(dsn), gormConfig())
			}
		}
		if err != nil {
			return err
		}
	}
	d.logger.Info(
		"connected to mysql metadata store",
		"host", d.conn.Host,
		"port", d.conn.Port,
		"database", logDatabase,
	)
	sqlDB, err := metadataDb.DB()
	if err != nil {
		return err
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)
	store, err := gormstore.New(
		metadataDb,
		d.logger,
		gormstore.Dialect{
			Name:          "mysql",
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
		d.statsCollector = collectors.NewDBStatsCollector(sqlDB, "metadata_mysql")
		if err := d.promRegistry.Register(d.statsCollector); err != nil {
			d.logger.Warn(
				"failed to register mysql stats collector",
				"error", err,
			)
			d.statsCollector = nil
		}
	}
	return nil
}

func (d *MetadataStoreMysql) ensureDatabaseExists(
	dsn string,
	dbName string,
) (bool, error) {
	if dbName == "" {
		return false, nil
	}
	adminDsn, ok := stripDatabaseFromDSN(dsn)
	if !ok {
		return false, nil
	}
	adminDb, err := gorm.Open(gormmysql.Open(adminDsn), gormConfig())
	if err != nil {
		return false, err
	}
	sqlAdminDb, err := adminDb.DB()
	if err != nil {
		return false, err
	}
	defer sqlAdminDb.Close()
	if result := adminDb.Exec(fmt.Sprintf("CREATE DATABASE IF NOT EXISTS `%s`", dbName)); result.Error != nil {
		return false, result.Error
	}
	d.logger.Info("created mysql database", "database", dbName)
	return true, nil
}

// Stop implements the plugin.Plugin interface
func (d *MetadataStoreMysql) Stop() error {
	return d.Close()
}

// Close closes the database connections
func (d *MetadataStoreMysql) Close() error {
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
	var mysqlErr *mysql.MySQLError
	if !errors.As(err, &mysqlErr) {
		return false
	}
	_, ok := conflictErrors[mysqlErr.Number]
	return ok
}

func parseMysqlDatabaseFromDSN(dsn string) (string, bool) {
	base := dsn
	if idx := strings.Index(base, "?"); idx >= 0 {
		base = base[:idx]
	}
	slash := strings.LastIndex(base, "/")
	if slash < 0 || slash == len(base)-1 {
		return "", false
	}
	return base[slash+1:], true
}

func stripDatabaseFromDSN(dsn string) (string, bool) {
	base := dsn
	params := ""
	if idx := strings.Index(dsn, "?"); idx >= 0 {
		base = dsn[:idx]
		params = dsn[idx+1:]
	}
	slash := strings.LastIndex(base, "/")
	if slash < 0 {
		return "", false
	}
	base = base[:slash+1]
	if params == "" {
		return base, true
	}
	return base + "?" + params, true
}
