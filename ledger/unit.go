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

package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/aipx/aipx/database"
	"github.com/aipx/aipx/hashengine"
)

// Unit is the handle passed to the function given to Ledger.Update. It is
// only valid until that function returns
type Unit struct {
	ctx      context.Context
	ledger   *Ledger
	txn      *database.Txn
	appended []*Entry
	done     bool
}

// Context returns the context of the write unit
func (u *Unit) Context() context.Context {
	return u.ctx
}

// Txn returns the read-write transaction of the unit. Writes made through it
// commit or roll back together with the appended entries
func (u *Unit) Txn() *database.Txn {
	return u.txn
}

// Append adds an entry built on the current tail. The tail is read inside the
// unit's transaction, so the new entry always links to the latest committed
// or in-unit entry
func (u *Unit) Append(
	itemID uint64,
	eventType string,
	actor string,
	fields map[string]any,
) (*Entry, error) {
	if u == nil || u.done || u.txn.Finished() {
		return nil, ErrNotInWriteUnit
	}
	l := u.ledger
	if !validEventType(eventType) {
		return nil, fmt.Errorf("%w: unknown event type %q", ErrInvalidEvent, eventType)
	}
	normalized := make(map[string]any, len(fields))
	for k, v := range fields {
		if _, ok := reservedKeys[k]; ok {
			return nil, fmt.Errorf("%w: field %q is reserved", ErrInvalidEvent, k)
		}
		nv, err := hashengine.Normalize(v)
		if err != nil {
			l.logger.Error(
				"refusing to append entry with unencodable field",
				"field", k,
				"error", err,
			)
			return nil, fmt.Errorf("field %s: %w", k, err)
		}
		normalized[k] = nv
	}
	tail, err := l.db.GetLedgerTail(u.txn)
	if err != nil {
		return nil, fmt.Errorf("%w: read tail: %w", ErrPersistence, err)
	}
	entry := &Entry{
		Sequence:   1,
		ItemID:     itemID,
		EventType:  eventType,
		Actor:      actor,
		RecordedAt: l.config.Now().UTC().Truncate(time.Microsecond),
		Fields:     normalized,
	}
	if tail != nil {
		prev := tail.EntryHash
		entry.Sequence = tail.Sequence + 1
		entry.PreviousHash = &prev
	}
	entry.EntryHash, err = entry.ComputeHash(l.engine)
	if err != nil {
		l.logger.Error(
			"failed to hash ledger entry",
			"sequence", entry.Sequence,
			"error", err,
		)
		return nil, err
	}
	model, err := entry.toModel()
	if err != nil {
		return nil, err
	}
	if err := l.db.AddLedgerEntry(model, u.txn); err != nil {
		return nil, fmt.Errorf(
			"%w: add entry %d: %w",
			ErrPersistence,
			entry.Sequence,
			err,
		)
	}
	u.appended = append(u.appended, entry)
	return entry, nil
}
