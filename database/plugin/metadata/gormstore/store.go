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

// Package gormstore holds the MetadataStore implementation shared by the
// relational backends. Each backend opens its own gorm connection and
// supplies a Dialect describing the engine-specific parts.
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aipx/aipx/database/models"
	"github.com/aipx/aipx/database/types"
	"gorm.io/gorm"
	"gorm.io/plugin/opentelemetry/tracing"
)

// Dialect describes the engine-specific behavior of a relational backend
type Dialect struct {
	// Name is used in log and error messages
	Name string
	// AppendOnlySQL contains the statements that install the triggers
	// rejecting UPDATE and DELETE on the ledger table. They must be
	// idempotent, since they run on every start
	AppendOnlySQL []string
	// IsConflict reports whether a driver error means a concurrent writer
	// won. gorm.ErrDuplicatedKey is always treated as a conflict
	IsConflict func(error) bool
}

type Store struct {
	db      *gorm.DB
	logger  *slog.Logger
	dialect Dialect
}

// New wraps an open gorm connection. Call Migrate before use
func New(db *gorm.DB, logger *slog.Logger, dialect Dialect) (*Store, error) {
	if db == nil {
		return nil, errors.New("nil gorm database")
	}
	if logger == nil {
		return nil, errors.New("nil logger")
	}
	s := &Store{
		db:      db,
		logger:  logger,
		dialect: dialect,
	}
	// Configure tracing for GORM
	if err := s.db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
		return nil, err
	}
	return s, nil
}

// Migrate creates the table schemas and installs the append-only triggers
func (s *Store) Migrate() error {
	for _, model := range models.MigrateModels {
		s.logger.Debug(fmt.Sprintf("creating table: %T", model))
		if err := s.db.AutoMigrate(model); err != nil {
			return fmt.Errorf("migrate %T: %w", model, err)
		}
	}
	ddl := s.db.Session(&gorm.Session{PrepareStmt: false})
	for _, stmt := range s.dialect.AppendOnlySQL {
		if result := ddl.Exec(stmt); result.Error != nil {
			return fmt.Errorf(
				"install append-only trigger on %s: %w",
				s.dialect.Name,
				result.Error,
			)
		}
	}
	return nil
}

// DB returns the underlying gorm connection
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Close closes the underlying connection pool
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Transaction starts a new transaction bound to ctx
func (s *Store) Transaction(ctx context.Context, readWrite bool) types.Txn {
	if ctx == nil {
		ctx = context.Background()
	}
	tx := s.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		s.logger.Error(
			"failed to begin transaction",
			"error", tx.Error,
			"read_write", readWrite,
		)
		return newFailedTxn(s, s.classify(tx.Error))
	}
	return newTxn(s, tx)
}

func (s *Store) resolveTxn(txn types.Txn) (*gorm.DB, error) {
	if txn == nil {
		return s.db, nil
	}
	t, ok := txn.(*Txn)
	if !ok {
		return nil, types.ErrTxnWrongType
	}
	if t.beginErr != nil {
		return nil, t.beginErr
	}
	if t.finished {
		return nil, types.ErrTxnFinished
	}
	return t.db, nil
}

// classify marks conflict errors so the ledger can retry the write unit
func (s *Store) classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) ||
		(s.dialect.IsConflict != nil && s.dialect.IsConflict(err)) {
		return types.NewConflictError(err)
	}
	return err
}
