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

import "github.com/aipx/aipx/database/models"

// GetOperator returns the operator with the given username, or nil
func (d *Database) GetOperator(username string, txn *Txn) (*models.Operator, error) {
	if txn == nil {
		return d.metadata.GetOperator(username, nil)
	}
	return d.metadata.GetOperator(username, txn.Metadata())
}

// AddOperator registers a new operator
func (d *Database) AddOperator(operator *models.Operator, txn *Txn) error {
	if txn == nil {
		return d.metadata.SetOperator(operator, nil)
	}
	return d.metadata.SetOperator(operator, txn.Metadata())
}

// GetOperators returns all operators
func (d *Database) GetOperators(txn *Txn) ([]models.Operator, error) {
	if txn == nil {
		return d.metadata.GetOperators(nil)
	}
	return d.metadata.GetOperators(txn.Metadata())
}
