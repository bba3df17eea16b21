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
	"fmt"

	"github.com/aipx/aipx/database/models"
	"github.com/aipx/aipx/database/types"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AddItem inserts an item and populates its ID
func (s *Store) AddItem(item *models.Item, txn types.Txn) error {
	db, err := s.resolveTxn(txn)
	if err != nil {
		return err
	}
	if result := db.Omit(clause.Associations).Create(item); result.Error != nil {
		return s.classify(result.Error)
	}
	return nil
}

// GetItem returns the item with the given ID
func (s *Store) GetItem(id uint64, txn types.Txn) (*models.Item, error) {
	db, err := s.resolveTxn(txn)
	if err != nil {
		return nil, err
	}
	var ret models.Item
	result := db.Where("id = ?", id).First(&ret)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, s.classify(result.Error)
	}
	return &ret, nil
}

// SetItemStatus updates the status of an existing item
func (s *Store) SetItemStatus(id uint64, status string, txn types.Txn) error {
	db, err := s.resolveTxn(txn)
	if err != nil {
		return err
	}
	result := db.Model(&models.Item{}).
		Where("id = ?", id).
		Update("status", status)
	if result.Error != nil {
		return s.classify(result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("item %d not found", id)
	}
	return nil
}

// GetItems returns all items, newest first, with the submitter username
func (s *Store) GetItems(txn types.Txn) ([]models.ItemListing, error) {
	db, err := s.resolveTxn(txn)
	if err != nil {
		return nil, err
	}
	var ret []models.ItemListing
	result := db.Table("items").
		Select(
			"items.id, items.operator_id, operators.username AS submitter, " +
				"items.content, items.reason, items.content_hash, " +
				"items.status, items.created_at",
		).
		Joins("JOIN operators ON operators.id = items.operator_id").
		Order("items.id DESC").
		Scan(&ret)
	if result.Error != nil {
		return nil, s.classify(result.Error)
	}
	return ret, nil
}
