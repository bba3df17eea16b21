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
	"errors"
	"fmt"
	"sync"

	"github.com/aipx/aipx/database/types"
)

// Txn wraps a metadata store transaction. A Txn is finished by the first
// Commit or Rollback; later calls are no-ops
type Txn struct {
	db          *Database
	metadataTxn types.Txn
	mu          sync.Mutex
	finished    bool
	readWrite   bool
}

func NewTxn(ctx context.Context, db *Database, readWrite bool) *Txn {
	t := &Txn{db: db, readWrite: readWrite}
	if ms := db.Metadata(); ms != nil {
		t.metadataTxn = ms.Transaction(ctx, readWrite)
	}
	if t.metadataTxn == nil {
		db.logger.Warn("no metadata transaction available", "read_write", readWrite)
	}
	return t
}

// Metadata returns the underlying metadata transaction handle
func (t *Txn) Metadata() types.Txn {
	return t.metadataTxn
}

// ReadWrite reports whether the transaction was opened for writing
func (t *Txn) ReadWrite() bool {
	return t.readWrite
}

// Finished reports whether the transaction was committed or rolled back
func (t *Txn) Finished() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.finished
}

// Do runs fn in the transaction, committing when it succeeds and rolling
// back when it fails
func (t *Txn) Do(fn func(*Txn) error) error {
	if err := fn(t); err != nil {
		if rbErr := t.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}
	if err := t.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Commit makes the writes of a read-write transaction durable. A read-only
// transaction is released instead
func (t *Txn) Commit() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.finished {
		return nil
	}
	switch {
	case t.metadataTxn == nil:
		t.finished = true
		if t.readWrite {
			return types.ErrNoStoreAvailable
		}
		return nil
	case !t.readWrite:
		return t.rollbackLocked()
	}
	t.finished = true
	return t.metadataTxn.Commit()
}

func (t *Txn) Rollback() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rollbackLocked()
}

func (t *Txn) rollbackLocked() error {
	if t.finished {
		return nil
	}
	t.finished = true
	if t.metadataTxn == nil {
		return nil
	}
	if err := t.metadataTxn.Rollback(); err != nil {
		return fmt.Errorf("metadata rollback: %w", err)
	}
	return nil
}

// Release rolls back an unfinished transaction and logs any failure. It is
// meant for defer statements
func (t *Txn) Release() {
	if err := t.Rollback(); err != nil {
		t.db.logger.Debug(
			"transaction release failed",
			"error", err,
			"read_write", t.readWrite,
		)
	}
}
