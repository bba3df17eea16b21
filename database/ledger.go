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

// GetLedgerTail returns the most recent ledger entry, or nil when empty
func (d *Database) GetLedgerTail(txn *Txn) (*models.LedgerEntry, error) {
	if txn == nil {
		return d.metadata.GetLedgerTail(nil)
	}
	return d.metadata.GetLedgerTail(txn.Metadata())
}

// AddLedgerEntry persists a ledger entry
func (d *Database) AddLedgerEntry(entry *models.LedgerEntry, txn *Txn) error {
	if txn == nil {
		return d.metadata.AddLedgerEntry(entry, nil)
	}
	return d.metadata.AddLedgerEntry(entry, txn.Metadata())
}

// GetLedgerEntries returns a page of entries after the given sequence
func (d *Database) GetLedgerEntries(
	afterSequence uint64,
	limit int,
	txn *Txn,
) ([]models.LedgerEntry, error) {
	if txn == nil {
		return d.metadata.GetLedgerEntries(afterSequence, limit, nil)
	}
	return d.metadata.GetLedgerEntries(afterSequence, limit, txn.Metadata())
}

// GetLedgerEntryCount returns the number of ledger entries
func (d *Database) GetLedgerEntryCount(txn *Txn) (int64, error) {
	if txn == nil {
		return d.metadata.GetLedgerEntryCount(nil)
	}
	return d.metadata.GetLedgerEntryCount(txn.Metadata())
}
