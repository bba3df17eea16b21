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
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/aipx/aipx/internal/version"
	"github.com/aipx/aipx/verifier"
	"github.com/aipx/aipx/workflow"
)

const maxRequestBodySize = 1 << 20

// writeJSON writes a JSON response with the given status
// code.
func writeJSON(
	w http.ResponseWriter,
	status int,
	v any,
) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck,errchkjson
	json.NewEncoder(w).Encode(v)
}

func writeError(
	w http.ResponseWriter,
	status int,
	errStr string,
	message string,
) {
	writeJSON(w, status, ErrorResponse{
		StatusCode: status,
		Error:      errStr,
		Message:    message,
	})
}

// writeBackendError maps workflow errors to status codes. Anything
// unexpected is logged and reported without details
func (s *Server) writeBackendError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, workflow.ErrValidation):
		writeError(w, http.StatusBadRequest, "Bad Request", err.Error())
	case errors.Is(err, workflow.ErrAuthorization):
		writeError(w, http.StatusForbidden, "Forbidden", err.Error())
	case errors.Is(err, workflow.ErrNotFound):
		writeError(w, http.StatusNotFound, "Not Found", err.Error())
	default:
		s.logger.Error(
			"request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		writeError(
			w,
			http.StatusInternalServerError,
			"Internal Server Error",
			"An unexpected response was received from the backend.",
		)
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dest any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dest); err != nil {
		writeError(w, http.StatusBadRequest, "Bad Request", "invalid request body: "+err.Error())
		return false
	}
	return true
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, RootResponse{
		Project: "AIP-X Accountable Intelligence Platform",
		Status:  "running",
		Version: version.GetVersionString(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{IsHealthy: true})
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := s.backend.SubmitItem(r.Context(), req.OperatorUsername, req.QueryText, req.Reason)
	if err != nil {
		s.writeBackendError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SubmitResponse{
		QueryID:         res.ItemID,
		Status:          res.Status,
		QueryHash:       res.ContentHash,
		LedgerEntryHash: res.LedgerEntryHash,
		Message:         res.Message,
	})
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	var req ApproveRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := s.backend.RecordDecision(r.Context(), req.QueryID, req.ApproverUsername, req.Decision)
	if err != nil {
		s.writeBackendError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ApproveResponse{
		QueryID:         res.ItemID,
		Decision:        string(res.Decision),
		ApprovalsSoFar:  res.ApprovalsSoFar,
		Status:          res.Status,
		LedgerEntryHash: res.LedgerEntryHash,
		Message:         res.Message,
	})
}

func (s *Server) handleQueries(w http.ResponseWriter, r *http.Request) {
	items, err := s.backend.ListItems(r.Context())
	if err != nil {
		s.writeBackendError(w, r, err)
		return
	}
	resp := QueriesResponse{Queries: make([]QueryResponse, 0, len(items))}
	for _, item := range items {
		resp.Queries = append(resp.Queries, QueryResponse{
			ID:        item.ID,
			Operator:  item.Submitter,
			QueryText: item.Content,
			Reason:    item.Reason,
			Status:    item.Status,
			QueryHash: item.ContentHash,
			CreatedAt: item.CreatedAt.Format(time.RFC3339Nano),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLedger(w http.ResponseWriter, r *http.Request) {
	resp := LedgerResponse{Ledger: []LedgerEntryResponse{}}
	for entry, err := range s.backend.LedgerEntries(r.Context()) {
		if err != nil {
			s.writeBackendError(w, r, err)
			return
		}
		resp.Ledger = append(resp.Ledger, NewLedgerEntryResponse(entry))
	}
	resp.TotalEntries = len(resp.Ledger)
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	result, err := s.backend.VerifyLedger(r.Context())
	if err != nil {
		s.writeBackendError(w, r, err)
		return
	}
	resp := VerifyResponse{
		Status:       verifyStatus(result.Status),
		TotalEntries: result.Count,
	}
	if result.Status == verifier.StatusTampered {
		resp.Issues = result.Issues()
		resp.Breakpoints = result.Breakpoints
	} else {
		resp.Message = result.Message()
	}
	writeJSON(w, http.StatusOK, resp)
}

// verifyStatus renders verification statuses the way API clients expect
// them: "empty", "VERIFIED" or "TAMPERED"
func verifyStatus(status verifier.Status) string {
	if status == verifier.StatusEmpty {
		return string(status)
	}
	return strings.ToUpper(string(status))
}
