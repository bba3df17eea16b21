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
	"time"

	"github.com/aipx/aipx/ledger"
	"github.com/aipx/aipx/verifier"
)

// RootResponse is returned by GET /.
type RootResponse struct {
	Project string `json:"project"`
	Status  string `json:"status"`
	Version string `json:"version"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	IsHealthy bool `json:"is_healthy"`
}

// SubmitRequest is the body of POST /query/submit.
type SubmitRequest struct {
	OperatorUsername string `json:"operator_username"`
	QueryText        string `json:"query_text"`
	Reason           string `json:"reason"`
}

// SubmitResponse is returned by POST /query/submit.
type SubmitResponse struct {
	QueryID         uint64 `json:"query_id"`
	Status          string `json:"status"`
	QueryHash       string `json:"query_hash"`
	LedgerEntryHash string `json:"ledger_entry_hash"`
	Message         string `json:"message"`
}

// ApproveRequest is the body of POST /query/approve.
type ApproveRequest struct {
	QueryID          uint64 `json:"query_id"`
	ApproverUsername string `json:"approver_username"`
	Decision         string `json:"decision"`
}

// ApproveResponse is returned by POST /query/approve.
type ApproveResponse struct {
	QueryID         uint64 `json:"query_id"`
	Decision        string `json:"decision"`
	ApprovalsSoFar  int64  `json:"approvals_so_far"`
	Status          string `json:"status"`
	LedgerEntryHash string `json:"ledger_entry_hash"`
	Message         string `json:"message"`
}

// LedgerEntryResponse represents one ledger entry.
type LedgerEntryResponse struct {
	ID           uint64         `json:"id"`
	QueryID      uint64         `json:"query_id"`
	EventType    string         `json:"event_type"`
	Actor        string         `json:"actor"`
	EntryHash    string         `json:"entry_hash"`
	PreviousHash *string        `json:"previous_hash"`
	Timestamp    string         `json:"timestamp"`
	Fields       map[string]any `json:"fields"`
}

// NewLedgerEntryResponse renders a ledger entry in its API form
func NewLedgerEntryResponse(entry *ledger.Entry) LedgerEntryResponse {
	return LedgerEntryResponse{
		ID:           entry.Sequence,
		QueryID:      entry.ItemID,
		EventType:    entry.EventType,
		Actor:        entry.Actor,
		EntryHash:    entry.EntryHash,
		PreviousHash: entry.PreviousHash,
		Timestamp:    entry.RecordedAt.Format(time.RFC3339Nano),
		Fields:       entry.Fields,
	}
}

// LedgerResponse is returned by GET /ledger.
type LedgerResponse struct {
	Ledger       []LedgerEntryResponse `json:"ledger"`
	TotalEntries int                   `json:"total_entries"`
}

// VerifyResponse is returned by GET /ledger/verify.
type VerifyResponse struct {
	Status       string                `json:"status"`
	Message      string                `json:"message,omitempty"`
	Issues       []string              `json:"issues,omitempty"`
	TotalEntries int64                 `json:"total_entries"`
	Breakpoints  []verifier.Breakpoint `json:"breakpoints,omitempty"`
}

// QueryResponse represents one submitted item.
type QueryResponse struct {
	ID        uint64 `json:"id"`
	Operator  string `json:"operator"`
	QueryText string `json:"query_text"`
	Reason    string `json:"reason"`
	Status    string `json:"status"`
	QueryHash string `json:"query_hash"`
	CreatedAt string `json:"created_at"`
}

// QueriesResponse is returned by GET /queries.
type QueriesResponse struct {
	Queries []QueryResponse `json:"queries"`
}

// ErrorResponse is the body of every error response.
type ErrorResponse struct {
	StatusCode int    `json:"status_code"`
	Error      string `json:"error"`
	Message    string `json:"message"`
}
