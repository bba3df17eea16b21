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
	"errors"

	"github.com/aipx/aipx/database/models"
	"github.com/aipx/aipx/database/types"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GetLedgerTail returns the entry with the highest sequence
func (s *Store) GetLedgerTail(txn types.Txn) (*models.LedgerEntry, error) {
	db, err := s.resolveTxn(txn)
	if err != nil {
		return nil, err
	}
	var ret models.LedgerEntry
	result := db.Order("sequence DESC").First(&ret)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, s.classify(result.Error)
	}
	return &ret, nil
}

// AddLedgerEntry inserts a ledger entry. The sequence is the primary key, so
// two writers racing for the same position collide here
func (s *Store) AddLedgerEntry(entry *models.LedgerEntry, txn types.Txn) error {
	db, err := s.resolveTxn(txn)
	if err != nil {
		return err
	}
	if result := db.Omit(clause.Associations).Create(entry); result.Error != nil {
		return s.classify(result.Error)
	}
	return nil
}

// GetLedgerEntries returns up to limit entries with a sequence greater than
// afterSequence, in ascending order
func (s *Store) GetLedgerEntries(
	afterSequence uint64,
	limit int,
	txn types.Txn,
) ([]models.LedgerEntry, error) {
	db, err := s.resolveTxn(txn)
	if err != nil {
		return nil, err
	}
	var ret []models.LedgerEntry
	result := db.Where("sequence > ?", afterSequence).
		Order("sequence ASC").
		Limit(limit).
		Find(&ret)
	if result.Error != nil {
		return nil, s.classify(result.Error)
	}
	return ret, nil
}

// GetLedgerEntryCount returns the number of ledger entries
func (s *Store) GetLedgerEntryCount(txn types.Txn) (int64, error) {
	db, err := s.resolveTxn(txn)
	if err != nil {
		return 0, err
	}
	var count int64
	if result := db.Model(&models.LedgerEntry{}).Count(&count); result.Error != nil {
		return 0, s.classify(result.Error)
	}
	return count, nil
}
