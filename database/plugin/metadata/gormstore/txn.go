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

package gormstore

import (
	"gorm.io/gorm"
)

// Txn wraps a gorm transaction and implements types.Txn
type Txn struct {
	store    *Store
	db       *gorm.DB
	finished bool
	beginErr error
}

func newTxn(store *Store, db *gorm.DB) *Txn {
	return &Txn{store: store, db: db}
}

func newFailedTxn(store *Store, err error) *Txn {
	return &Txn{store: store, beginErr: err}
}

func (t *Txn) Commit() error {
	if t.beginErr != nil {
		return t.beginErr
	}
	if t.finished {
		return nil
	}
	if t.db == nil {
		t.finished = true
		return nil
	}
	t.finished = true
	if result := t.db.Commit(); result.Error != nil {
		return t.store.classify(result.Error)
	}
	return nil
}

func (t *Txn) Rollback() error {
	if t.beginErr != nil {
		return t.beginErr
	}
	if t.finished {
		return nil
	}
	t.finished = true
	if t.db != nil {
		if result := t.db.Rollback(); result.Error != nil {
			return result.Error
		}
	}
	return nil
}
