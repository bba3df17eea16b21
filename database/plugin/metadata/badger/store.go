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

package badger

import (
	"fmt"

	"github.com/aipx/aipx/database/models"
	"github.com/aipx/aipx/database/types"
	badger "github.com/dgraph-io/badger/v4"
)

// GetOperator returns the operator with the given username
func (d *MetadataStoreBadger) GetOperator(
	username string,
	txn types.Txn,
) (*models.Operator, error) {
	var ret *models.Operator
	err := d.view(txn, func(tx *badger.Txn) error {
		var op models.Operator
		found, err := getJSON(tx, operatorKey(username), &op)
		if err != nil || !found {
			return err
		}
		ret = &op
		return nil
	})
	return ret, err
}

// SetOperator registers a new operator
func (d *MetadataStoreBadger) SetOperator(
	operator *models.Operator,
	txn types.Txn,
) error {
	return d.update(txn, func(tx *badger.Txn) error {
		found, err := exists(tx, operatorKey(operator.Username))
		if err != nil {
			return err
		}
		if found {
			return types.NewConflictError(
				fmt.Errorf("operator %q already exists", operator.Username),
			)
		}
		id, err := nextID(tx, operatorCounterKey)
		if err != nil {
			return err
		}
		stored := *operator
		stored.ID = id
		if err := setJSON(tx, operatorKey(stored.Username), &stored); err != nil {
			return err
		}
		if err := tx.Set(operatorIdKey(id), []byte(stored.Username)); err != nil {
			return err
		}
		operator.ID = id
		return nil
	})
}

// GetOperators returns all operators ordered by username
func (d *MetadataStoreBadger) GetOperators(txn types.Txn) ([]models.Operator, error) {
	var ret []models.Operator
	err := d.view(txn, func(tx *badger.Txn) error {
		prefix := []byte(operatorKeyPrefix)
		it := tx.NewIterator(badger.IteratorOptions{Prefix: prefix})
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var op models.Operator
			if err := it.Item().Value(func(val []byte) error {
				return jsonUnmarshal(val, &op)
			}); err != nil {
				return err
			}
			ret = append(ret, op)
		}
		return nil
	})
	return ret, err
}

func (d *MetadataStoreBadger) operatorUsername(tx *badger.Txn, id uint64) (string, error) {
	item, err := tx.Get(operatorIdKey(id))
	if err != nil {
		return "", err
	}
	val, err := item.ValueCopy(nil)
	if err != nil {
		return "", err
	}
	return string(val), nil
}

// AddItem inserts an item and populates its ID
func (d *MetadataStoreBadger) AddItem(item *models.Item, txn types.Txn) error {
	return d.update(txn, func(tx *badger.Txn) error {
		if _, err := d.operatorUsername(tx, item.OperatorID); err != nil {
			return fmt.Errorf("item operator %d: %w", item.OperatorID, err)
		}
		id, err := nextID(tx, itemCounterKey)
		if err != nil {
			return err
		}
		stored := *item
		stored.ID = id
		if err := setJSON(tx, itemKey(id), &stored); err != nil {
			return err
		}
		item.ID = id
		return nil
	})
}

// GetItem returns the item with the given ID
func (d *MetadataStoreBadger) GetItem(id uint64, txn types.Txn) (*models.Item, error) {
	var ret *models.Item
	err := d.view(txn, func(tx *badger.Txn) error {
		var item models.Item
		found, err := getJSON(tx, itemKey(id), &item)
		if err != nil || !found {
			return err
		}
		ret = &item
		return nil
	})
	return ret, err
}

// SetItemStatus updates the status of an existing item
func (d *MetadataStoreBadger) SetItemStatus(
	id uint64,
	status string,
	txn types.Txn,
) error {
	return d.update(txn, func(tx *badger.Txn) error {
		var item models.Item
		found, err := getJSON(tx, itemKey(id), &item)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("item %d not found", id)
		}
		item.Status = status
		return setJSON(tx, itemKey(id), &item)
	})
}

// GetItems returns all items, newest first, with the submitter username
func (d *MetadataStoreBadger) GetItems(txn types.Txn) ([]models.ItemListing, error) {
	var ret []models.ItemListing
	err := d.view(txn, func(tx *badger.Txn) error {
		prefix := []byte(itemKeyPrefix)
		it := tx.NewIterator(badger.IteratorOptions{
			Prefix:  prefix,
			Reverse: true,
		})
		defer it.Close()
		seekKey := append(append([]byte{}, prefix...), 0xff)
		for it.Seek(seekKey); it.ValidForPrefix(prefix); it.Next() {
			var item models.Item
			if err := it.Item().Value(func(val []byte) error {
				return jsonUnmarshal(val, &item)
			}); err != nil {
				return err
			}
			submitter, err := d.operatorUsername(tx, item.OperatorID)
			if err != nil {
				return fmt.Errorf("item %d submitter: %w", item.ID, err)
			}
			ret = append(ret, models.ItemListing{
				ID:          item.ID,
				OperatorID:  item.OperatorID,
				Submitter:   submitter,
				Content:     item.Content,
				Reason:      item.Reason,
				ContentHash: item.ContentHash,
				Status:      item.Status,
				CreatedAt:   item.CreatedAt,
			})
		}
		return nil
	})
	return ret, err
}

// AddApproval records a decision
func (d *MetadataStoreBadger) AddApproval(approval *models.Approval, txn types.Txn) error {
	return d.update(txn, func(tx *badger.Txn) error {
		found, err := exists(tx, itemKey(approval.ItemID))
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("approval item %d not found", approval.ItemID)
		}
		id, err := nextID(tx, approvalCounterKey)
		if err != nil {
			return err
		}
		stored := *approval
		stored.ID = id
		if err := setJSON(tx, approvalKey(approval.ItemID, id), &stored); err != nil {
			return err
		}
		approval.ID = id
		return nil
	})
}

// CountApprovals counts the decisions recorded on an item
func (d *MetadataStoreBadger) CountApprovals(
	itemID uint64,
	decision string,
	txn types.Txn,
) (int64, error) {
	var count int64
	err := d.view(txn, func(tx *badger.Txn) error {
		prefix := approvalKeyPrefixForItem(itemID)
		it := tx.NewIterator(badger.IteratorOptions{Prefix: prefix})
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if decision == "" {
				count++
				continue
			}
			var approval models.Approval
			if err := it.Item().Value(func(val []byte) error {
				return jsonUnmarshal(val, &approval)
			}); err != nil {
				return err
			}
			if approval.Decision == decision {
				count++
			}
		}
		return nil
	})
	return count, err
}

// GetLedgerTail returns the entry with the highest sequence
func (d *MetadataStoreBadger) GetLedgerTail(txn types.Txn) (*models.LedgerEntry, error) {
	var ret *models.LedgerEntry
	err := d.view(txn, func(tx *badger.Txn) error {
		tail, err := getUint64(tx, []byte(ledgerTailKey))
		if err != nil || tail == 0 {
			return err
		}
		var entry models.LedgerEntry
		found, err := getJSON(tx, ledgerKey(tail), &entry)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("ledger tail %d has no entry", tail)
		}
		ret = &entry
		return nil
	})
	return ret, err
}

// AddLedgerEntry inserts a ledger entry. Both the sequence and the entry
// hash must be unused. The tail pointer is read and written in the same
// transaction, so two writers appending concurrently conflict on commit
func (d *MetadataStoreBadger) AddLedgerEntry(entry *models.LedgerEntry, txn types.Txn) error {
	return d.update(txn, func(tx *badger.Txn) error {
		found, err := exists(tx, ledgerKey(entry.Sequence))
		if err != nil {
			return err
		}
		if found {
			return types.NewConflictError(
				fmt.Errorf("ledger sequence %d already exists", entry.Sequence),
			)
		}
		found, err = exists(tx, ledgerHashKey(entry.EntryHash))
		if err != nil {
			return err
		}
		if found {
			return types.NewConflictError(
				fmt.Errorf("ledger entry hash %s already exists", entry.EntryHash),
			)
		}
		tail, err := getUint64(tx, []byte(ledgerTailKey))
		if err != nil {
			return err
		}
		if err := setJSON(tx, ledgerKey(entry.Sequence), entry); err != nil {
			return err
		}
		if err := tx.Set(ledgerHashKey(entry.EntryHash), uint64ToBytes(entry.Sequence)); err != nil {
			return err
		}
		if entry.Sequence > tail {
			return tx.Set([]byte(ledgerTailKey), uint64ToBytes(entry.Sequence))
		}
		return nil
	})
}

// GetLedgerEntries returns up to limit entries with a sequence greater than
// afterSequence, in ascending order
func (d *MetadataStoreBadger) GetLedgerEntries(
	afterSequence uint64,
	limit int,
	txn types.Txn,
) ([]models.LedgerEntry, error) {
	var ret []models.LedgerEntry
	err := d.view(txn, func(tx *badger.Txn) error {
		prefix := []byte(ledgerKeyPrefix)
		it := tx.NewIterator(badger.IteratorOptions{Prefix: prefix})
		defer it.Close()
		for it.Seek(ledgerKey(afterSequence + 1)); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(ret) >= limit {
				break
			}
			var entry models.LedgerEntry
			if err := it.Item().Value(func(val []byte) error {
				return jsonUnmarshal(val, &entry)
			}); err != nil {
				return err
			}
			ret = append(ret, entry)
		}
		return nil
	})
	return ret, err
}

// GetLedgerEntryCount returns the number of ledger entries
func (d *MetadataStoreBadger) GetLedgerEntryCount(txn types.Txn) (int64, error) {
	var count int64
	err := d.view(txn, func(tx *badger.Txn) error {
		prefix := []byte(ledgerKeyPrefix)
		it := tx.NewIterator(badger.IteratorOptions{
			Prefix:         prefix,
			PrefetchValues: false,
		})
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}
