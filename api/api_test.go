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

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aipx/aipx/ledger"
	"github.com/aipx/aipx/verifier"
	"github.com/aipx/aipx/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockBackend implements Backend for testing.
type mockBackend struct {
	submitRes   *workflow.SubmitResult
	submitErr   error
	decisionRes *workflow.DecisionResult
	decisionErr error
	items       []workflow.ItemView
	itemsErr    error
	entries     []*ledger.Entry
	entriesErr  error
	verifyRes   verifier.Result
	verifyErr   error

	lastSubmit   [3]string
	lastDecision struct {
		itemID   uint64
		approver string
		decision string
	}
}

func (m *mockBackend) SubmitItem(
	_ context.Context,
	submitter, content, reason string,
) (*workflow.SubmitResult, error) {
	m.lastSubmit = [3]string{submitter, content, reason}
	return m.submitRes, m.submitErr
}

func (m *mockBackend) RecordDecision(
	_ context.Context,
	itemID uint64,
	approver, decision string,
) (*workflow.DecisionResult, error) {
	m.lastDecision.itemID = itemID
	m.lastDecision.approver = approver
	m.lastDecision.decision = decision
	return m.decisionRes, m.decisionErr
}

func (m *mockBackend) ListItems(context.Context) ([]workflow.ItemView, error) {
	return m.items, m.itemsErr
}

func (m *mockBackend) LedgerEntries(context.Context) iter.Seq2[*ledger.Entry, error] {
	return func(yield func(*ledger.Entry, error) bool) {
		for _, e := range m.entries {
			if !yield(e, nil) {
				return
			}
		}
		if m.entriesErr != nil {
			yield(nil, m.entriesErr)
		}
	}
}

func (m *mockBackend) VerifyLedger(context.Context) (verifier.Result, error) {
	return m.verifyRes, m.verifyErr
}

func newTestServer(backend Backend) *Server {
	return New(Config{ListenAddress: "127.0.0.1:0"}, backend, nil)
}

func doRequest(
	t *testing.T,
	s *Server,
	method, path string,
	body any,
) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestRootAndHealth(t *testing.T) {
	s := newTestServer(&mockBackend{})

	rec := doRequest(t, s, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	root := decode[RootResponse](t, rec)
	assert.Equal(t, "running", root.Status)
	assert.NotEmpty(t, root.Version)

	rec = doRequest(t, s, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[HealthResponse](t, rec).IsHealthy)
}

func TestSubmit(t *testing.T) {
	mock := &mockBackend{
		submitRes: &workflow.SubmitResult{
			ItemID:          7,
			Status:          "pending",
			ContentHash:     "aa",
			LedgerEntryHash: "bb",
			Message:         workflow.MessageSubmitted,
		},
	}
	s := newTestServer(mock)
	rec := doRequest(t, s, http.MethodPost, "/query/submit", SubmitRequest{
		OperatorUsername: "alice",
		QueryText:        "find x",
		Reason:           "case 42",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, [3]string{"alice", "find x", "case 42"}, mock.lastSubmit)
	resp := decode[SubmitResponse](t, rec)
	assert.Equal(t, SubmitResponse{
		QueryID:         7,
		Status:          "pending",
		QueryHash:       "aa",
		LedgerEntryHash: "bb",
		Message:         workflow.MessageSubmitted,
	}, resp)
}

func TestApprove(t *testing.T) {
	mock := &mockBackend{
		decisionRes: &workflow.DecisionResult{
			ItemID:          3,
			Decision:        workflow.DecisionApproved,
			ApprovalsSoFar:  2,
			Status:          "approved",
			LedgerEntryHash: "cc",
			Message:         workflow.MessageApproved,
		},
	}
	s := newTestServer(mock)
	rec := doRequest(t, s, http.MethodPost, "/query/approve", ApproveRequest{
		QueryID:          3,
		ApproverUsername: "bob",
		Decision:         "approved",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, uint64(3), mock.lastDecision.itemID)
	assert.Equal(t, "bob", mock.lastDecision.approver)
	assert.Equal(t, "approved", mock.lastDecision.decision)
	resp := decode[ApproveResponse](t, rec)
	assert.Equal(t, "approved", resp.Decision)
	assert.Equal(t, int64(2), resp.ApprovalsSoFar)
	assert.Equal(t, "approved", resp.Status)
	assert.Equal(t, "cc", resp.LedgerEntryHash)
	assert.Equal(t, workflow.MessageApproved, resp.Message)
}

func TestBackendErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"validation", fmt.Errorf("%w: empty content", workflow.ErrValidation), http.StatusBadRequest},
		{"authorization", fmt.Errorf("%w: role analyst", workflow.ErrAuthorization), http.StatusForbidden},
		{"not found", fmt.Errorf("%w: operator", workflow.ErrNotFound), http.StatusNotFound},
		{"persistence", fmt.Errorf("%w: disk", ledger.ErrPersistence), http.StatusInternalServerError},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := newTestServer(&mockBackend{decisionErr: tc.err})
			rec := doRequest(t, s, http.MethodPost, "/query/approve", ApproveRequest{
				QueryID:          1,
				ApproverUsername: "dave",
				Decision:         "approved",
			})
			require.Equal(t, tc.code, rec.Code)
			resp := decode[ErrorResponse](t, rec)
			assert.Equal(t, tc.code, resp.StatusCode)
			if tc.code == http.StatusInternalServerError {
				assert.NotContains(t, resp.Message, "boom")
				assert.NotContains(t, resp.Message, "disk")
			} else {
				assert.Equal(t, tc.err.Error(), resp.Message)
			}
		})
	}
}

func TestInvalidBody(t *testing.T) {
	mock := &mockBackend{}
	s := newTestServer(mock)
	for _, body := range []string{
		"not json",
		`{"operator_username":"alice","unknown":1}`,
		`{"operator_username":5}`,
	} {
		rec := doRequest(t, s, http.MethodPost, "/query/submit", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
	assert.Equal(t, [3]string{}, mock.lastSubmit)
}

func TestQueries(t *testing.T) {
	created := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s := newTestServer(&mockBackend{
		items: []workflow.ItemView{
			{
				ID:          1,
				Submitter:   "alice",
				Content:     "find x",
				Reason:      "case 42",
				Status:      "pending",
				ContentHash: "aa",
				CreatedAt:   created,
			},
		},
	})
	rec := doRequest(t, s, http.MethodGet, "/queries", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[QueriesResponse](t, rec)
	require.Len(t, resp.Queries, 1)
	assert.Equal(t, "alice", resp.Queries[0].Operator)
	assert.Equal(t, "2025-03-01T12:00:00Z", resp.Queries[0].CreatedAt)

	// An empty list is rendered as [] rather than null
	rec = doRequest(t, newTestServer(&mockBackend{}), http.MethodGet, "/queries", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"queries":[]}`, rec.Body.String())
}

func TestLedger(t *testing.T) {
	prev := "aa"
	recorded := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	mock := &mockBackend{
		entries: []*ledger.Entry{
			{
				Sequence:   1,
				ItemID:     1,
				EventType:  ledger.EventSubmitted,
				Actor:      "alice",
				EntryHash:  "aa",
				RecordedAt: recorded,
				Fields:     map[string]any{"reason": "case 42"},
			},
			{
				Sequence:     2,
				ItemID:       1,
				EventType:    ledger.EventApproved,
				Actor:        "bob",
				EntryHash:    "bb",
				PreviousHash: &prev,
				RecordedAt:   recorded,
				Fields:       map[string]any{"approval_count": int64(1)},
			},
		},
	}
	s := newTestServer(mock)
	rec := doRequest(t, s, http.MethodGet, "/ledger", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[LedgerResponse](t, rec)
	require.Equal(t, 2, resp.TotalEntries)
	require.Len(t, resp.Ledger, 2)
	assert.Nil(t, resp.Ledger[0].PreviousHash)
	require.NotNil(t, resp.Ledger[1].PreviousHash)
	assert.Equal(t, "aa", *resp.Ledger[1].PreviousHash)
	assert.Equal(t, "case 42", resp.Ledger[0].Fields["reason"])
	assert.InDelta(t, 1, resp.Ledger[1].Fields["approval_count"], 0)

	mock.entriesErr = errors.New("read failed")
	rec = doRequest(t, s, http.MethodGet, "/ledger", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestVerify(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		s := newTestServer(&mockBackend{
			verifyRes: verifier.Result{Status: verifier.StatusEmpty},
		})
		rec := doRequest(t, s, http.MethodGet, "/ledger/verify", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		resp := decode[VerifyResponse](t, rec)
		assert.Equal(t, "empty", resp.Status)
		assert.Equal(t, "No entries in ledger yet.", resp.Message)
	})
	t.Run("verified", func(t *testing.T) {
		s := newTestServer(&mockBackend{
			verifyRes: verifier.Result{Status: verifier.StatusVerified, Count: 3},
		})
		rec := doRequest(t, s, http.MethodGet, "/ledger/verify", nil)
		resp := decode[VerifyResponse](t, rec)
		assert.Equal(t, "VERIFIED", resp.Status)
		assert.Equal(t, int64(3), resp.TotalEntries)
		assert.Equal(t, "Ledger chain intact: 3 entries verified.", resp.Message)
		assert.Empty(t, resp.Issues)
	})
	t.Run("tampered", func(t *testing.T) {
		s := newTestServer(&mockBackend{
			verifyRes: verifier.Result{
				Status: verifier.StatusTampered,
				Count:  3,
				Breakpoints: []verifier.Breakpoint{
					{Previous: 1, Sequence: 2, Reason: verifier.ReasonEntryHashMismatch},
				},
			},
		})
		rec := doRequest(t, s, http.MethodGet, "/ledger/verify", nil)
		resp := decode[VerifyResponse](t, rec)
		assert.Equal(t, "TAMPERED", resp.Status)
		assert.Equal(t, []string{"Chain broken between entry 1 and 2"}, resp.Issues)
		require.Len(t, resp.Breakpoints, 1)
		assert.Equal(t, verifier.ReasonEntryHashMismatch, resp.Breakpoints[0].Reason)
	})
	t.Run("error", func(t *testing.T) {
		s := newTestServer(&mockBackend{verifyErr: errors.New("boom")})
		rec := doRequest(t, s, http.MethodGet, "/ledger/verify", nil)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestRoutingErrors(t *testing.T) {
	s := newTestServer(&mockBackend{})
	rec := doRequest(t, s, http.MethodGet, "/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, http.StatusNotFound, decode[ErrorResponse](t, rec).StatusCode)

	rec = doRequest(t, s, http.MethodGet, "/query/submit", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestStartStop(t *testing.T) {
	mock := &mockBackend{}
	s := newTestServer(mock)

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	require.NoError(t, s.Start(ctx))
	addr := s.Addr()
	require.NotNil(t, addr)

	// Starting twice is an error
	require.Error(t, s.Start(ctx))

	resp, err := http.Get("http://" + addr.String() + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	require.NoError(t, s.Stop(stopCtx))
	assert.Nil(t, s.Addr())

	// Stopping a stopped server is a no-op
	require.NoError(t, s.Stop(stopCtx))
}

func TestStartPortInUse(t *testing.T) {
	first := newTestServer(&mockBackend{})
	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	require.NoError(t, first.Start(ctx))
	defer first.Stop(context.Background()) //nolint:errcheck

	second := New(Config{ListenAddress: first.Addr().String()}, &mockBackend{}, nil)
	err := second.Start(ctx)
	require.Error(t, err)
	assert.Nil(t, second.Addr())
}
