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
)

// GetOperator returns the operator with the given username
func (s *Store) GetOperator(
	username string,
	txn types.Txn,
) (*models.Operator, error) {
	db, err := s.resolveTxn(txn)
	if err != nil {
		return nil, err
	}
	var ret models.Operator
	result := db.Where("username = ?", username).First(&ret)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, s.classify(result.Error)
	}
	return &ret, nil
}

// SetOperator registers a new operator
func (s *Store) SetOperator(operator *models.Operator, txn types.Txn) error {
	db, err := s.resolveTxn(txn)
	if err != nil {
		return err
	}
	if result := db.Create(operator); result.Error != nil {
		return s.classify(result.Error)
	}
	return nil
}

// GetOperators returns all operators ordered by username
func (s *Store) GetOperators(txn types.Txn) ([]models.Operator, error) {
	db, err := s.resolveTxn(txn)
	if err != nil {
		return nil, err
	}
	var ret []models.Operator
	if result := db.Order("username").Find(&ret); result.Error != nil {
		return nil, s.classify(result.Error)
	}
	return ret, nil
}
