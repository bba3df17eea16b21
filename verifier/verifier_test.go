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

package verifier_test

import (
	"context"
	"errors"
	"iter"
	"strings"
	"testing"
	"time"

	"github.com/aipx/aipx/database"
	"github.com/aipx/aipx/database/models"
	"github.com/aipx/aipx/database/plugin/metadata/sqlite"
	"github.com/aipx/aipx/hashengine"
	"github.com/aipx/aipx/ledger"
	"github.com/aipx/aipx/verifier"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sliceSource serves entries from memory
type sliceSource struct {
	entries []*ledger.Entry
	err     error
}

func (s *sliceSource) Entries(context.Context) iter.Seq2[*ledger.Entry, error] {
	return func(yield func(*ledger.Entry, error) bool) {
		for _, e := range s.entries {
			if !yield(e, nil) {
				return
			}
		}
		if s.err != nil {
			yield(nil, s.err)
		}
	}
}

func buildChain(t *testing.T, engine *hashengine.Engine, n int) []*ledger.Entry {
	t.Helper()
	base := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	entries := make([]*ledger.Entry, 0, n)
	for i := range n {
		e := &ledger.Entry{
			Sequence:   uint64(i + 1),
			ItemID:     uint64(1 + i/3),
			EventType:  ledger.EventApproved,
			Actor:      "bob",
			RecordedAt: base.Add(time.Duration(i) * time.Second),
			Fields:     map[string]any{"approval_count": int64(i % 3)},
		}
		if i%3 == 0 {
			e.EventType = ledger.EventSubmitted
			e.Actor = "alice"
			e.Fields = map[string]any{"content_hash": "c0ffee"}
		}
		if i > 0 {
			prev := entries[i-1].EntryHash
			e.PreviousHash = &prev
		}
		hash, err := e.ComputeHash(engine)
		require.NoError(t, err)
		e.EntryHash = hash
		entries = append(entries, e)
	}
	return entries
}

func newVerifier(t *testing.T, src verifier.Source, reg prometheus.Registerer) *verifier.Verifier {
	t.Helper()
	v, err := verifier.New(verifier.VerifierConfig{Source: src, PromRegistry: reg})
	require.NoError(t, err)
	return v
}

func TestVerifyEmpty(t *testing.T) {
	result, err := newVerifier(t, &sliceSource{}, nil).Verify(context.Background())
	require.NoError(t, err)
	assert.Equal(t, verifier.StatusEmpty, result.Status)
	assert.Zero(t, result.Count)
	assert.Equal(t, "No entries in ledger yet.", result.Message())
}

func TestVerifyIntact(t *testing.T) {
	reg := prometheus.NewRegistry()
	entries := buildChain(t, hashengine.Default(), 10)
	result, err := newVerifier(t, &sliceSource{entries: entries}, reg).Verify(context.Background())
	require.NoError(t, err)
	assert.Equal(t, verifier.StatusVerified, result.Status)
	assert.Equal(t, int64(10), result.Count)
	assert.Empty(t, result.Breakpoints)
	assert.Empty(t, result.Issues())
	assert.Equal(t, "Ledger chain intact: 10 entries verified.", result.Message())

	expected := `
# HELP aipx_verifier_runs_total total number of ledger verifications by result status
# TYPE aipx_verifier_runs_total counter
aipx_verifier_runs_total{status="verified"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "aipx_verifier_runs_total"))
}

func TestVerifyTamperedFields(t *testing.T) {
	engine := hashengine.Default()
	const n = 8
	mutations := map[string]func(e *ledger.Entry){
		"actor":     func(e *ledger.Entry) { e.Actor = "mallory" },
		"item":      func(e *ledger.Entry) { e.ItemID += 100 },
		"event":     func(e *ledger.Entry) { e.EventType = ledger.EventRejected },
		"timestamp": func(e *ledger.Entry) { e.RecordedAt = e.RecordedAt.Add(time.Microsecond) },
		"fields":    func(e *ledger.Entry) { e.Fields = map[string]any{"approval_count": int64(99)} },
		"entry hash": func(e *ledger.Entry) {
			e.EntryHash = "0000000000000000000000000000000000000000000000000000000000000000"
		},
		"previous hash": func(e *ledger.Entry) {
			bogus := "ffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff"
			e.PreviousHash = &bogus
		},
		"sequence": func(e *ledger.Entry) { e.Sequence += 5 },
	}
	for name, mutate := range mutations {
		for j := range n {
			entries := buildChain(t, engine, n)
			mutate(entries[j])
			result, err := newVerifier(t, &sliceSource{entries: entries}, nil).Verify(context.Background())
			require.NoError(t, err)
			require.Equal(t, verifier.StatusTampered, result.Status, "%s at %d", name, j)
			require.NotEmpty(t, result.Breakpoints)
			assert.GreaterOrEqual(
				t,
				result.Breakpoints[0].Sequence,
				uint64(j+1),
				"%s at %d: first breakpoint before the mutation",
				name,
				j,
			)
			assert.Equal(t, int64(n), result.Count)
		}
	}
}

func TestVerifyBreakpointReasons(t *testing.T) {
	engine := hashengine.Default()

	entries := buildChain(t, engine, 3)
	genesisPrev := "abc"
	entries[0].PreviousHash = &genesisPrev
	result, err := newVerifier(t, &sliceSource{entries: entries}, nil).Verify(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Breakpoints, 1)
	assert.Equal(
		t,
		verifier.Breakpoint{Previous: 0, Sequence: 1, Reason: verifier.ReasonGenesisPreviousHash},
		result.Breakpoints[0],
	)
	assert.Equal(t, []string{"Chain broken between entry 0 and 1"}, result.Issues())

	// A deleted entry shows up as a gap and nothing else
	entries = buildChain(t, engine, 4)
	entries = append(entries[:2], entries[3:]...)
	result, err = newVerifier(t, &sliceSource{entries: entries}, nil).Verify(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Breakpoints, 1)
	assert.Equal(
		t,
		verifier.Breakpoint{Previous: 2, Sequence: 4, Reason: verifier.ReasonSequenceGap},
		result.Breakpoints[0],
	)

	// A rewritten entry hash breaks its own content check and the next link
	entries = buildChain(t, engine, 4)
	entries[1].EntryHash = entries[2].EntryHash
	result, err = newVerifier(t, &sliceSource{entries: entries}, nil).Verify(context.Background())
	require.NoError(t, err)
	assert.Equal(
		t,
		[]verifier.Breakpoint{
			{Previous: 1, Sequence: 2, Reason: verifier.ReasonEntryHashMismatch},
			{Previous: 2, Sequence: 3, Reason: verifier.ReasonPreviousHashMismatch},
		},
		result.Breakpoints,
	)
	assert.Equal(
		t,
		[]string{
			"Chain broken between entry 1 and 2",
			"Chain broken between entry 2 and 3",
		},
		result.Issues(),
	)
}

func TestVerifySourceError(t *testing.T) {
	boom := errors.New("read failed")
	src := &sliceSource{entries: buildChain(t, hashengine.Default(), 2), err: boom}
	_, err := newVerifier(t, src, nil).Verify(context.Background())
	require.ErrorIs(t, err, boom)
}

func TestVerifyStoredLedger(t *testing.T) {
	db, err := database.New(&database.Config{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	l, err := ledger.New(ledger.LedgerConfig{Database: db, PageSize: 2})
	require.NoError(t, err)
	ctx := context.Background()

	op := &models.Operator{Username: "alice", Role: "analyst", CreatedAt: time.Now().UTC()}
	require.NoError(t, db.AddOperator(op, nil))
	item := &models.Item{OperatorID: op.ID, Content: "q", Status: models.ItemStatusPending, CreatedAt: time.Now().UTC()}
	require.NoError(t, db.AddItem(item, nil))
	_, err = l.Append(ctx, item.ID, ledger.EventSubmitted, "alice", map[string]any{"content_hash": "aa"})
	require.NoError(t, err)
	for i := 1; i <= 4; i++ {
		_, err = l.Append(ctx, item.ID, ledger.EventApproved, "bob", map[string]any{"approval_count": i})
		require.NoError(t, err)
	}

	v := newVerifier(t, l, nil)
	result, err := v.Verify(ctx)
	require.NoError(t, err)
	assert.Equal(t, verifier.StatusVerified, result.Status)
	assert.Equal(t, int64(5), result.Count)

	// The append-only trigger has to be removed before a row can be altered
	store, ok := db.Metadata().(*sqlite.MetadataStoreSqlite)
	require.True(t, ok)
	require.Error(t, store.DB().Exec("UPDATE ledger_entries SET actor = 'mallory' WHERE sequence = 3").Error)
	require.NoError(t, store.DB().Exec("DROP TRIGGER ledger_entries_no_update").Error)
	require.NoError(t, store.DB().Exec("UPDATE ledger_entries SET fields = '{\"approval_count\":7}' WHERE sequence = 3").Error)

	result, err = v.Verify(ctx)
	require.NoError(t, err)
	assert.Equal(t, verifier.StatusTampered, result.Status)
	assert.Equal(
		t,
		[]verifier.Breakpoint{{Previous: 2, Sequence: 3, Reason: verifier.ReasonEntryHashMismatch}},
		result.Breakpoints,
	)

	require.NoError(t, store.DB().Exec("UPDATE ledger_entries SET fields = 'not json' WHERE sequence = 4").Error)
	result, err = v.Verify(ctx)
	require.NoError(t, err)
	require.Len(t, result.Breakpoints, 2)
	assert.Equal(t, verifier.ReasonEntryHashMismatch, result.Breakpoints[1].Reason)
}
