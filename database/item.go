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

// AddItem inserts an item and populates its ID
func (d *Database) AddItem(item *models.Item, txn *Txn) error {
	if txn == nil {
		return d.metadata.AddItem(item, nil)
	}
	return d.metadata.AddItem(item, txn.Metadata())
}

// GetItem returns the item with the given ID, or nil
func (d *Database) GetItem(id uint64, txn *Txn) (*models.Item, error) {
	if txn == nil {
		return d.metadata.GetItem(id, nil)
	}
	return d.metadata.GetItem(id, txn.Metadata())
}

// SetItemStatus updates the status of an item
func (d *Database) SetItemStatus(id uint64, status string, txn *Txn) error {
	if txn == nil {
		return d.metadata.SetItemStatus(id, status, nil)
	}
	return d.metadata.SetItemStatus(id, status, txn.Metadata())
}

// GetItems returns all items newest first
func (d *Database) GetItems(txn *Txn) ([]models.ItemListing, error) {
	if txn == nil {
		return d.metadata.GetItems(nil)
	}
	return d.metadata.GetItems(txn.Metadata())
}

// AddApproval records a decision on an item
func (d *Database) AddApproval(approval *models.Approval, txn *Txn) error {
	if txn == nil {
		return d.metadata.AddApproval(approval, nil)
	}
	return d.metadata.AddApproval(approval, txn.Metadata())
}

// CountApprovals counts decisions on an item. An empty decision counts all
func (d *Database) CountApprovals(itemID uint64, decision string, txn *Txn) (int64, error) {
	if txn == nil {
		return d.metadata.CountApprovals(itemID, decision, nil)
	}
	return d.metadata.CountApprovals(itemID, decision, txn.Metadata())
}
