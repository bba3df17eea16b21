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

package database_test

import (
	"errors"
	"testing"
	"time"

	"github.com/aipx/aipx/database"
	"github.com/aipx/aipx/database/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDatabase(t *testing.T) *database.Database {
	t.Helper()
	db, err := database.New(nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})
	return db
}

func TestNewDefaults(t *testing.T) {
	db := newTestDatabase(t)
	assert.NotNil(t, db.Logger())
	assert.NotNil(t, db.Metadata())
	assert.Empty(t, db.DataDir())
}

func TestNewUnknownPlugin(t *testing.T) {
	_, err := database.New(&database.Config{MetadataPlugin: "does-not-exist"})
	require.Error(t, err)
}

func TestTxnDoCommit(t *testing.T) {
	db := newTestDatabase(t)
	txn := db.Transaction(true)
	assert.True(t, txn.ReadWrite())
	assert.False(t, txn.Finished())
	err := txn.Do(func(txn *database.Txn) error {
		return db.AddOperator(
			&models.Operator{Username: "alice", Role: "analyst", CreatedAt: time.Now().UTC()},
			txn,
		)
	})
	require.NoError(t, err)
	assert.True(t, txn.Finished())
	// Finished transactions ignore further commits and rollbacks
	require.NoError(t, txn.Commit())
	require.NoError(t, txn.Rollback())

	op, err := db.GetOperator("alice", nil)
	require.NoError(t, err)
	require.NotNil(t, op)
	assert.Equal(t, "analyst", op.Role)
}

func TestTxnDoRollback(t *testing.T) {
	db := newTestDatabase(t)
	errBoom := errors.New("boom")
	txn := db.Transaction(true)
	err := txn.Do(func(txn *database.Txn) error {
		if err := db.AddOperator(
			&models.Operator{Username: "bob", Role: "judge", CreatedAt: time.Now().UTC()},
			txn,
		); err != nil {
			return err
		}
		return errBoom
	})
	require.ErrorIs(t, err, errBoom)

	op, err := db.GetOperator("bob", nil)
	require.NoError(t, err)
	assert.Nil(t, op)
}

func TestDuplicateOperatorConflict(t *testing.T) {
	db := newTestDatabase(t)
	op := &models.Operator{Username: "carol", Role: "judge", CreatedAt: time.Now().UTC()}
	require.NoError(t, db.AddOperator(op, nil))
	err := db.AddOperator(
		&models.Operator{Username: "carol", Role: "judge", CreatedAt: time.Now().UTC()},
		nil,
	)
	require.ErrorIs(t, err, database.ErrConflict)
}

func TestItemsAndApprovals(t *testing.T) {
	db := newTestDatabase(t)
	op := &models.Operator{Username: "alice", Role: "analyst", CreatedAt: time.Now().UTC()}
	require.NoError(t, db.AddOperator(op, nil))

	txn := db.Transaction(true)
	item := &models.Item{
		OperatorID:  op.ID,
		Content:     "SELECT 1",
		Reason:      "case 7",
		ContentHash: "00",
		Status:      models.ItemStatusPending,
		CreatedAt:   time.Now().UTC(),
	}
	require.NoError(t, txn.Do(func(txn *database.Txn) error {
		if err := db.AddItem(item, txn); err != nil {
			return err
		}
		for _, d := range []string{models.DecisionApproved, models.DecisionRejected, models.DecisionApproved} {
			if err := db.AddApproval(&models.Approval{
				ItemID:     item.ID,
				Approver:   "bob",
				Decision:   d,
				RecordedAt: time.Now().UTC(),
			}, txn); err != nil {
				return err
			}
		}
		return db.SetItemStatus(item.ID, models.ItemStatusApproved, txn)
	}))

	ro := db.Transaction(false)
	defer ro.Release()
	approved, err := db.CountApprovals(item.ID, models.DecisionApproved, ro)
	require.NoError(t, err)
	assert.Equal(t, int64(2), approved)
	all, err := db.CountApprovals(item.ID, "", ro)
	require.NoError(t, err)
	assert.Equal(t, int64(3), all)

	got, err := db.GetItem(item.ID, ro)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, models.ItemStatusApproved, got.Status)

	items, err := db.GetItems(ro)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "alice", items[0].Submitter)

	missing, err := db.GetItem(item.ID+100, ro)
	require.NoError(t, err)
	assert.Nil(t, missing)

	count, err := db.GetLedgerEntryCount(ro)
	require.NoError(t, err)
	assert.Zero(t, count)
	tail, err := db.GetLedgerTail(ro)
	require.NoError(t, err)
	assert.Nil(t, tail)
}
