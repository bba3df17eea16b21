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

package types

import (
	"errors"
	"fmt"
)

// ErrTxnWrongType is returned when a transaction has the wrong type
var ErrTxnWrongType = errors.New("invalid transaction type")

// ErrNilTxn is returned when a nil transaction is provided where a valid transaction is required
var ErrNilTxn = errors.New("nil transaction")

// ErrNoStoreAvailable is returned when no metadata store is available
var ErrNoStoreAvailable = errors.New("no store available")

// ErrTxnFinished is returned when a transaction is used after commit or rollback
var ErrTxnFinished = errors.New("transaction already finished")

// ErrConflict is returned when a write collides with a concurrent writer.
// This covers unique-key violations on the ledger sequence, serialization
// failures and lock timeouts. Callers may retry the whole write unit.
var ErrConflict = errors.New("write conflict")

// ConflictError wraps a backend error that was classified as a write conflict
type ConflictError struct {
	Err error
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("write conflict: %s", e.Err)
}

func (e *ConflictError) Unwrap() []error {
	return []error{ErrConflict, e.Err}
}

// NewConflictError wraps err so that errors.Is(err, ErrConflict) holds.
// A nil error returns nil
func NewConflictError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrConflict) {
		return err
	}
	return &ConflictError{Err: err}
}

// Txn is a simple transaction handle for commit/rollback only.
// Database layer (Txn) coordinates the store operations.
type Txn interface {
	Commit() error
	Rollback() error
}
