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

// Package ledger maintains the append-only, hash-chained record of workflow
// events. All writes go through Ledger.Update, which serializes the
// read-tail, hash and append sequence together with the caller's own
// mutations in a single store transaction.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"sync"
	"time"

	"github.com/aipx/aipx/database"
	"github.com/aipx/aipx/database/models"
	"github.com/aipx/aipx/event"
	"github.com/aipx/aipx/hashengine"
	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultMaxRetries      = 5
	DefaultPageSize        = 256
	DefaultRetryInterval   = 10 * time.Millisecond
	DefaultMaxRetryBackoff = 500 * time.Millisecond

	tracerName = "github.com/aipx/aipx/ledger"
)

var (
	// ErrPersistence wraps store failures. The underlying store error stays
	// reachable with errors.Is and errors.As
	ErrPersistence    = errors.New("ledger persistence failure")
	ErrNotInWriteUnit = errors.New("ledger append outside of write unit")
	ErrInvalidEvent   = errors.New("invalid ledger event")
)

type LedgerConfig struct {
	Logger       *slog.Logger
	Database     *database.Database
	HashEngine   *hashengine.Engine
	PromRegistry prometheus.Registerer
	// EventBus receives an EntryAppendedEvent per committed entry when set
	EventBus *event.EventBus
	// MaxRetries is the number of times a write unit is re-run after a store
	// conflict
	MaxRetries    uint64
	RetryInterval time.Duration
	PageSize      int
	// Now overrides the clock used for entry timestamps
	Now func() time.Time
}

type Ledger struct {
	sync.Mutex
	config  LedgerConfig
	db      *database.Database
	engine  *hashengine.Engine
	logger  *slog.Logger
	metrics ledgerMetrics
	tracer  trace.Tracer
}

func New(cfg LedgerConfig) (*Ledger, error) {
	if cfg.Database == nil {
		return nil, errors.New("ledger: database is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.HashEngine == nil {
		cfg.HashEngine = hashengine.Default()
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = DefaultRetryInterval
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	l := &Ledger{
		config: cfg,
		db:     cfg.Database,
		engine: cfg.HashEngine,
		logger: cfg.Logger.With("component", "ledger"),
		tracer: otel.Tracer(tracerName),
	}
	l.metrics.init(cfg.PromRegistry)
	return l, nil
}

// HashEngine returns the engine used to hash entries
func (l *Ledger) HashEngine() *hashengine.Engine {
	return l.engine
}

// Update runs fn inside a write unit. The unit holds the ledger write lock
// and a read-write store transaction, committed when fn returns nil and
// rolled back otherwise. A unit that fails with a store conflict is run
// again from the start, so fn must not keep state across attempts
func (l *Ledger) Update(ctx context.Context, fn func(*Unit) error) error {
	ctx, span := l.tracer.Start(ctx, "ledger.Update")
	defer span.End()
	l.Lock()
	defer l.Unlock()
	start := time.Now()
	defer func() {
		l.metrics.unitLatency.Observe(time.Since(start).Seconds())
	}()
	var (
		attempts int
		appended []*Entry
	)
	op := func() error {
		attempts++
		if attempts > 1 {
			l.metrics.appendRetries.Inc()
			l.logger.Debug(
				"retrying ledger write unit after conflict",
				"attempt", attempts,
			)
		}
		entries, err := l.runUnit(ctx, fn)
		if err != nil {
			if errors.Is(err, database.ErrConflict) {
				return err
			}
			return backoff.Permanent(err)
		}
		appended = entries
		return nil
	}
	err := backoff.Retry(op, l.newBackOff(ctx))
	span.SetAttributes(attribute.Int("ledger.attempts", attempts))
	if err != nil {
		if errors.Is(err, database.ErrConflict) {
			if !errors.Is(err, ErrPersistence) {
				err = fmt.Errorf("%w: %w", ErrPersistence, err)
			}
			err = fmt.Errorf("write unit failed after %d attempts: %w", attempts, err)
			l.logger.Error(
				"ledger write unit exhausted conflict retries",
				"attempts", attempts,
				"error", err,
			)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	for _, entry := range appended {
		l.metrics.entriesAppended.WithLabelValues(entry.EventType).Inc()
		l.metrics.tailSequence.Set(float64(entry.Sequence))
		l.logger.Debug(
			"appended ledger entry",
			"sequence", entry.Sequence,
			"event_type", entry.EventType,
			"item_id", entry.ItemID,
			"entry_hash", entry.EntryHash,
		)
		if l.config.EventBus != nil {
			l.config.EventBus.Publish(
				event.EntryAppendedEventType,
				event.NewEvent(
					event.EntryAppendedEventType,
					event.EntryAppendedEvent{
						Sequence:  entry.Sequence,
						ItemID:    entry.ItemID,
						EventType: entry.EventType,
						Actor:     entry.Actor,
						EntryHash: entry.EntryHash,
					},
				),
			)
		}
	}
	span.SetAttributes(attribute.Int("ledger.entries", len(appended)))
	return nil
}

func (l *Ledger) runUnit(ctx context.Context, fn func(*Unit) error) ([]*Entry, error) {
	txn := l.db.TransactionContext(ctx, true)
	unit := &Unit{
		ctx:    ctx,
		ledger: l,
		txn:    txn,
	}
	if err := fn(unit); err != nil {
		unit.done = true
		if rbErr := txn.Rollback(); rbErr != nil {
			l.logger.Warn(
				"failed to roll back ledger write unit",
				"error", rbErr,
			)
		}
		return nil, err
	}
	unit.done = true
	if err := txn.Commit(); err != nil {
		// A failed commit may leave the transaction open
		_ = txn.Rollback()
		return nil, fmt.Errorf("%w: commit: %w", ErrPersistence, err)
	}
	return unit.appended, nil
}

func (l *Ledger) newBackOff(ctx context.Context) backoff.BackOff {
	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = l.config.RetryInterval
	expBackoff.MaxInterval = DefaultMaxRetryBackoff
	return backoff.WithContext(
		backoff.WithMaxRetries(expBackoff, l.config.MaxRetries),
		ctx,
	)
}

// Append records a single event in its own write unit
func (l *Ledger) Append(
	ctx context.Context,
	itemID uint64,
	eventType string,
	actor string,
	fields map[string]any,
) (*Entry, error) {
	var ret *Entry
	err := l.Update(ctx, func(u *Unit) error {
		entry, err := u.Append(itemID, eventType, actor, fields)
		if err != nil {
			return err
		}
		ret = entry
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ret, nil
}

// Tail returns the most recent entry, or nil when the ledger is empty
func (l *Ledger) Tail(ctx context.Context) (*Entry, error) {
	txn := l.db.TransactionContext(ctx, false)
	defer txn.Release()
	tail, err := l.db.GetLedgerTail(txn)
	if err != nil {
		return nil, fmt.Errorf("%w: read tail: %w", ErrPersistence, err)
	}
	if tail == nil {
		return nil, nil
	}
	return EntryFromModel(tail), nil
}

// Count returns the number of entries in the ledger
func (l *Ledger) Count(ctx context.Context) (int64, error) {
	txn := l.db.TransactionContext(ctx, false)
	defer txn.Release()
	count, err := l.db.GetLedgerEntryCount(txn)
	if err != nil {
		return 0, fmt.Errorf("%w: count entries: %w", ErrPersistence, err)
	}
	return count, nil
}

// Entries iterates over the ledger in ascending sequence order. Entries are
// fetched in pages, each in its own read transaction, and no transaction is
// held while the caller processes an entry
func (l *Ledger) Entries(ctx context.Context) iter.Seq2[*Entry, error] {
	return func(yield func(*Entry, error) bool) {
		var after uint64
		for {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			page, err := l.entriesPage(ctx, after)
			if err != nil {
				yield(nil, err)
				return
			}
			for i := range page {
				if !yield(EntryFromModel(&page[i]), nil) {
					return
				}
				after = page[i].Sequence
			}
			if len(page) < l.config.PageSize {
				return
			}
		}
	}
}

func (l *Ledger) entriesPage(ctx context.Context, after uint64) ([]models.LedgerEntry, error) {
	txn := l.db.TransactionContext(ctx, false)
	defer txn.Release()
	page, err := l.db.GetLedgerEntries(after, l.config.PageSize, txn)
	if err != nil {
		return nil, fmt.Errorf(
			"%w: read entries after %d: %w",
			ErrPersistence,
			after,
			err,
		)
	}
	return page, nil
}
