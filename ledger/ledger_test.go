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

package ledger_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/aipx/aipx/database"
	"github.com/aipx/aipx/database/models"
	"github.com/aipx/aipx/database/types"
	"github.com/aipx/aipx/hashengine"
	"github.com/aipx/aipx/ledger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func openDatabase(t *testing.T, dataDir string) *database.Database {
	t.Helper()
	db, err := database.New(&database.Config{DataDir: dataDir})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})
	return db
}

func newLedger(t *testing.T, db *database.Database, reg prometheus.Registerer) *ledger.Ledger {
	t.Helper()
	l, err := ledger.New(ledger.LedgerConfig{
		Database:      db,
		PromRegistry:  reg,
		RetryInterval: time.Millisecond,
	})
	require.NoError(t, err)
	return l
}

func seedItem(t *testing.T, db *database.Database) uint64 {
	t.Helper()
	op, err := db.GetOperator("alice", nil)
	require.NoError(t, err)
	if op == nil {
		op = &models.Operator{
			Username:  "alice",
			Role:      "analyst",
			CreatedAt: time.Now().UTC(),
		}
		require.NoError(t, db.AddOperator(op, nil))
	}
	item := &models.Item{
		OperatorID:  op.ID,
		Content:     "SELECT * FROM cases",
		Reason:      "audit",
		ContentHash: "00",
		Status:      models.ItemStatusPending,
		CreatedAt:   time.Now().UTC(),
	}
	require.NoError(t, db.AddItem(item, nil))
	return item.ID
}

// metricValue sums the counter and gauge samples of a metric family
func metricValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	var total float64
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			total += m.GetCounter().GetValue() + m.GetGauge().GetValue()
		}
	}
	return total
}

func collect(t *testing.T, l *ledger.Ledger) []*ledger.Entry {
	t.Helper()
	var ret []*ledger.Entry
	for entry, err := range l.Entries(context.Background()) {
		require.NoError(t, err)
		ret = append(ret, entry)
	}
	return ret
}

func requireChain(t *testing.T, l *ledger.Ledger, entries []*ledger.Entry) {
	t.Helper()
	for i, entry := range entries {
		assert.Equal(t, uint64(i+1), entry.Sequence)
		if i == 0 {
			assert.Nil(t, entry.PreviousHash)
		} else {
			require.NotNil(t, entry.PreviousHash)
			assert.Equal(t, entries[i-1].EntryHash, *entry.PreviousHash)
		}
		hash, err := entry.ComputeHash(l.HashEngine())
		require.NoError(t, err)
		assert.Equal(t, entry.EntryHash, hash)
	}
}

func TestAppendChain(t *testing.T) {
	db := openDatabase(t, "")
	reg := prometheus.NewRegistry()
	l := newLedger(t, db, reg)
	itemID := seedItem(t, db)
	ctx := context.Background()

	tail, err := l.Tail(ctx)
	require.NoError(t, err)
	assert.Nil(t, tail)

	first, err := l.Append(ctx, itemID, ledger.EventSubmitted, "alice", map[string]any{"content_hash": "abc"})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), first.Sequence)
	assert.True(t, first.IsGenesis())
	assert.Nil(t, first.PreviousHash)
	assert.Len(t, first.EntryHash, 2*hashengine.DigestSize)

	second, err := l.Append(ctx, itemID, ledger.EventApproved, "bob", map[string]any{"approval_count": 1})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), second.Sequence)
	require.NotNil(t, second.PreviousHash)
	assert.Equal(t, first.EntryHash, *second.PreviousHash)

	tail, err = l.Tail(ctx)
	require.NoError(t, err)
	require.NotNil(t, tail)
	assert.Equal(t, second.EntryHash, tail.EntryHash)
	assert.Equal(t, int64(1), tail.Fields["approval_count"])
	assert.True(t, second.RecordedAt.Equal(tail.RecordedAt))

	count, err := l.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	requireChain(t, l, collect(t, l))
	assert.Equal(t, 2.0, metricValue(t, reg, "aipx_ledger_entries_appended_total"))
	assert.Equal(t, 2.0, metricValue(t, reg, "aipx_ledger_tail_sequence"))
	histograms, err := testutil.GatherAndCount(reg, "aipx_ledger_write_unit_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, histograms)
}

func TestAppendValidation(t *testing.T) {
	db := openDatabase(t, "")
	l := newLedger(t, db, nil)
	itemID := seedItem(t, db)
	ctx := context.Background()

	_, err := l.Append(ctx, itemID, "deleted", "alice", nil)
	require.ErrorIs(t, err, ledger.ErrInvalidEvent)

	_, err = l.Append(ctx, itemID, ledger.EventSubmitted, "alice", map[string]any{"actor": "mallory"})
	require.ErrorIs(t, err, ledger.ErrInvalidEvent)

	_, err = l.Append(ctx, itemID, ledger.EventSubmitted, "alice", map[string]any{"score": 0.5})
	require.ErrorIs(t, err, hashengine.ErrIntegrityViolation)

	// Missing item violates referential integrity
	_, err = l.Append(ctx, itemID+1000, ledger.EventSubmitted, "alice", nil)
	require.ErrorIs(t, err, ledger.ErrPersistence)

	count, err := l.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestAppendOutsideUnit(t *testing.T) {
	db := openDatabase(t, "")
	l := newLedger(t, db, nil)
	itemID := seedItem(t, db)

	var leaked *ledger.Unit
	require.NoError(t, l.Update(context.Background(), func(u *ledger.Unit) error {
		leaked = u
		return nil
	}))
	_, err := leaked.Append(itemID, ledger.EventSubmitted, "alice", nil)
	require.ErrorIs(t, err, ledger.ErrNotInWriteUnit)

	var nilUnit *ledger.Unit
	_, err = nilUnit.Append(itemID, ledger.EventSubmitted, "alice", nil)
	require.ErrorIs(t, err, ledger.ErrNotInWriteUnit)
}

func TestEntriesPagination(t *testing.T) {
	db := openDatabase(t, "")
	l, err := ledger.New(ledger.LedgerConfig{Database: db, PageSize: 2})
	require.NoError(t, err)
	itemID := seedItem(t, db)
	ctx := context.Background()
	for range 5 {
		_, err := l.Append(ctx, itemID, ledger.EventApproved, "bob", map[string]any{"approval_count": 1})
		require.NoError(t, err)
	}
	entries := collect(t, l)
	require.Len(t, entries, 5)
	requireChain(t, l, entries)

	// Iteration can be stopped early and restarted
	seen := 0
	for _, err := range l.Entries(ctx) {
		require.NoError(t, err)
		seen++
		if seen == 3 {
			break
		}
	}
	assert.Equal(t, 3, seen)
	assert.Len(t, collect(t, l), 5)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	for _, err := range l.Entries(cancelled) {
		require.ErrorIs(t, err, context.Canceled)
	}
}

func TestConcurrentAppends(t *testing.T) {
	db := openDatabase(t, "")
	l := newLedger(t, db, nil)
	itemID := seedItem(t, db)
	const writers = 25
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.Append(context.Background(), itemID, ledger.EventApproved, "bob", map[string]any{"approval_count": 1})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	entries := collect(t, l)
	require.Len(t, entries, writers)
	requireChain(t, l, entries)
}

func TestRollback(t *testing.T) {
	db := openDatabase(t, "")
	l := newLedger(t, db, nil)
	itemID := seedItem(t, db)
	boom := errors.New("boom")

	err := l.Update(context.Background(), func(u *ledger.Unit) error {
		op, err := db.GetOperator("alice", u.Txn())
		if err != nil {
			return err
		}
		item := &models.Item{
			OperatorID: op.ID,
			Content:    "rolled back",
			Status:     models.ItemStatusPending,
			CreatedAt:  time.Now().UTC(),
		}
		if err := db.AddItem(item, u.Txn()); err != nil {
			return err
		}
		if _, err := u.Append(item.ID, ledger.EventSubmitted, "alice", nil); err != nil {
			return err
		}
		if _, err := u.Append(itemID, ledger.EventApproved, "bob", nil); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	items, err := db.GetItems(nil)
	require.NoError(t, err)
	assert.Len(t, items, 1)
	count, err := l.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestConflictRetry(t *testing.T) {
	db := openDatabase(t, "")
	reg := prometheus.NewRegistry()
	l := newLedger(t, db, reg)
	itemID := seedItem(t, db)

	attempts := 0
	err := l.Update(context.Background(), func(u *ledger.Unit) error {
		attempts++
		if _, err := u.Append(itemID, ledger.EventSubmitted, "alice", nil); err != nil {
			return err
		}
		if attempts < 3 {
			return types.NewConflictError(errors.New("simulated concurrent writer"))
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, 2.0, metricValue(t, reg, "aipx_ledger_append_retries_total"))
	entries := collect(t, l)
	require.Len(t, entries, 1, "failed attempts must not leave entries behind")

	attempts = 0
	err = l.Update(context.Background(), func(u *ledger.Unit) error {
		attempts++
		return types.NewConflictError(errors.New("always losing"))
	})
	require.ErrorIs(t, err, ledger.ErrPersistence)
	require.ErrorIs(t, err, database.ErrConflict)
	assert.Equal(t, ledger.DefaultMaxRetries+1, attempts)
}

func TestNonConflictErrorNotRetried(t *testing.T) {
	db := openDatabase(t, "")
	l := newLedger(t, db, nil)
	attempts := 0
	boom := errors.New("boom")
	err := l.Update(context.Background(), func(*ledger.Unit) error {
		attempts++
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.NotErrorIs(t, err, ledger.ErrPersistence)
	assert.Equal(t, 1, attempts)
}

// Two ledgers over the same database file behave like two processes: their
// write locks are independent, so only the store detects colliding appends
func TestCrossInstanceAppends(t *testing.T) {
	dataDir := filepath.Join(t.TempDir(), "data")
	dbA := openDatabase(t, dataDir)
	dbB := openDatabase(t, dataDir)
	ledgerA, err := ledger.New(ledger.LedgerConfig{Database: dbA, MaxRetries: 100, RetryInterval: time.Millisecond})
	require.NoError(t, err)
	ledgerB, err := ledger.New(ledger.LedgerConfig{Database: dbB, MaxRetries: 100, RetryInterval: time.Millisecond})
	require.NoError(t, err)
	itemID := seedItem(t, dbA)

	const perLedger = 10
	var wg sync.WaitGroup
	errs := make(chan error, 2*perLedger)
	for _, l := range []*ledger.Ledger{ledgerA, ledgerB} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range perLedger {
				_, err := l.Append(context.Background(), itemID, ledger.EventApproved, "bob", map[string]any{"approval_count": 1})
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	entries := collect(t, ledgerA)
	require.Len(t, entries, 2*perLedger)
	requireChain(t, ledgerA, entries)
}
