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
	"github.com/aipx/aipx/database/models"
	"github.com/aipx/aipx/database/types"
	"gorm.io/gorm/clause"
)

// AddApproval records a decision
func (s *Store) AddApproval(approval *models.Approval, txn types.Txn) error {
	db, err := s.resolveTxn(txn)
	if err != nil {
		return err
	}
	if result := db.Omit(clause.Associations).Create(approval); result.Error != nil {
		return s.classify(result.Error)
	}
	return nil
}

// CountApprovals counts the decisions recorded on an item
func (s *Store) CountApprovals(
	itemID uint64,
	decision string,
	txn types.Txn,
) (int64, error) {
	db, err := s.resolveTxn(txn)
	if err != nil {
		return 0, err
	}
	query := db.Model(&models.Approval{}).Where("item_id = ?", itemID)
	if decision != "" {
		query = query.Where("decision = ?", decision)
	}
	var count int64
	if result := query.Count(&count); result.Error != nil {
		return 0, s.classify(result.Error)
	}
	return count, nil
}
