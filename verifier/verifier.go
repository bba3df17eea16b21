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

// Package verifier audits the ledger chain. It never modifies the ledger:
// every inconsistency it finds is reported as a Breakpoint in the Result.
package verifier

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"

	"github.com/aipx/aipx/hashengine"
	"github.com/aipx/aipx/ledger"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type Status string

const (
	StatusEmpty    Status = "empty"
	StatusVerified Status = "verified"
	StatusTampered Status = "tampered"
)

type Reason string

const (
	ReasonGenesisPreviousHash  Reason = "genesis_previous_hash"
	ReasonSequenceGap          Reason = "sequence_gap"
	ReasonPreviousHashMismatch Reason = "previous_hash_mismatch"
	ReasonEntryHashMismatch    Reason = "entry_hash_mismatch"
)

// Breakpoint identifies the pair of entries between which the chain broke.
// Previous is zero when the break is at the first entry
type Breakpoint struct {
	Previous uint64 `json:"previous"`
	Sequence uint64 `json:"sequence"`
	Reason   Reason `json:"reason"`
}

type Result struct {
	Status      Status       `json:"status"`
	Count       int64        `json:"count"`
	Breakpoints []Breakpoint `json:"breakpoints,omitempty"`
}

// Issues renders each breakpoint as a human readable message
func (r Result) Issues() []string {
	ret := make([]string, 0, len(r.Breakpoints))
	for _, bp := range r.Breakpoints {
		ret = append(
			ret,
			fmt.Sprintf("Chain broken between entry %d and %d", bp.Previous, bp.Sequence),
		)
	}
	return ret
}

// Message summarizes the result
func (r Result) Message() string {
	switch r.Status {
	case StatusEmpty:
		return "No entries in ledger yet."
	case StatusVerified:
		return fmt.Sprintf("Ledger chain intact: %d entries verified.", r.Count)
	default:
		return fmt.Sprintf(
			"Ledger chain tampered: %d issues found in %d entries.",
			len(r.Breakpoints),
			r.Count,
		)
	}
}

// Source provides the entries to verify in ascending sequence order
type Source interface {
	Entries(ctx context.Context) iter.Seq2[*ledger.Entry, error]
}

type VerifierConfig struct {
	Logger       *slog.Logger
	Source       Source
	HashEngine   *hashengine.Engine
	PromRegistry prometheus.Registerer
}

type Verifier struct {
	source  Source
	engine  *hashengine.Engine
	logger  *slog.Logger
	metrics verifierMetrics
	tracer  trace.Tracer
}

func New(cfg VerifierConfig) (*Verifier, error) {
	if cfg.Source == nil {
		return nil, errors.New("verifier: source is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.HashEngine == nil {
		cfg.HashEngine = hashengine.Default()
	}
	v := &Verifier{
		source: cfg.Source,
		engine: cfg.HashEngine,
		logger: cfg.Logger.With("component", "verifier"),
		tracer: otel.Tracer("github.com/aipx/aipx/verifier"),
	}
	v.metrics.init(cfg.PromRegistry)
	return v, nil
}

// Verify walks the whole ledger once. Only failures to read the ledger are
// returned as errors
func (v *Verifier) Verify(ctx context.Context) (Result, error) {
	ctx, span := v.tracer.Start(ctx, "verifier.Verify")
	defer span.End()
	var (
		result Result
		prev   *ledger.Entry
	)
	for entry, err := range v.source.Entries(ctx) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return Result{}, fmt.Errorf("verify ledger: %w", err)
		}
		result.Count++
		if bp, ok := v.check(prev, entry); ok {
			v.logger.Warn(
				"ledger chain break detected",
				"previous", bp.Previous,
				"sequence", bp.Sequence,
				"reason", string(bp.Reason),
			)
			result.Breakpoints = append(result.Breakpoints, bp)
		}
		prev = entry
	}
	switch {
	case result.Count == 0:
		result.Status = StatusEmpty
	case len(result.Breakpoints) > 0:
		result.Status = StatusTampered
	default:
		result.Status = StatusVerified
	}
	v.metrics.runs.WithLabelValues(string(result.Status)).Inc()
	v.metrics.lastCount.Set(float64(result.Count))
	span.SetAttributes(
		attribute.String("verifier.status", string(result.Status)),
		attribute.Int64("verifier.count", result.Count),
		attribute.Int("verifier.breakpoints", len(result.Breakpoints)),
	)
	v.logger.Debug(
		"ledger verification complete",
		"status", string(result.Status),
		"count", result.Count,
		"breakpoints", len(result.Breakpoints),
	)
	return result, nil
}

// check returns the first failing check for entry against its predecessor.
// Linkage is checked before content
func (v *Verifier) check(prev, entry *ledger.Entry) (Breakpoint, bool) {
	var prevSeq uint64
	if prev != nil {
		prevSeq = prev.Sequence
	}
	bp := Breakpoint{Previous: prevSeq, Sequence: entry.Sequence}
	if prev == nil {
		if entry.Sequence != 1 {
			bp.Reason = ReasonSequenceGap
			return bp, true
		}
		if entry.PreviousHash != nil {
			bp.Reason = ReasonGenesisPreviousHash
			return bp, true
		}
	} else {
		if entry.Sequence != prev.Sequence+1 {
			bp.Reason = ReasonSequenceGap
			return bp, true
		}
		if entry.PreviousHash == nil || *entry.PreviousHash != prev.EntryHash {
			bp.Reason = ReasonPreviousHashMismatch
			return bp, true
		}
	}
	hash, err := entry.ComputeHash(v.engine)
	if err != nil || hash != entry.EntryHash {
		if err != nil {
			v.logger.Warn(
				"ledger entry cannot be rehashed",
				"sequence", entry.Sequence,
				"error", err,
			)
		}
		bp.Reason = ReasonEntryHashMismatch
		return bp, true
	}
	return bp, false
}
