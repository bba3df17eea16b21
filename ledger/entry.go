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
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aipx/aipx/database/models"
	"github.com/aipx/aipx/hashengine"
)

const (
	EventSubmitted = "submitted"
	EventApproved  = "approved"
	EventRejected  = "rejected"
)

// Keys of the hashed record that are not taken from the entry fields
const (
	RecordKeyItemID       = "item_id"
	RecordKeyEventType    = "event_type"
	RecordKeyActor        = "actor"
	RecordKeyPreviousHash = "previous_hash"
	RecordKeyRecordedAt   = "recorded_at"
)

var reservedKeys = map[string]struct{}{
	RecordKeyItemID:       {},
	RecordKeyEventType:    {},
	RecordKeyActor:        {},
	RecordKeyPreviousHash: {},
	RecordKeyRecordedAt:   {},
}

// Entry is one link of the ledger chain
type Entry struct {
	Sequence     uint64
	ItemID       uint64
	EventType    string
	Actor        string
	EntryHash    string
	PreviousHash *string
	RecordedAt   time.Time
	// Fields holds the event-specific values included in the hash, in
	// normalized form
	Fields map[string]any

	fieldsErr error
}

// Record returns the map that is hashed to produce the entry hash
func (e *Entry) Record() map[string]any {
	ret := make(map[string]any, len(e.Fields)+len(reservedKeys))
	for k, v := range e.Fields {
		ret[k] = v
	}
	ret[RecordKeyItemID] = e.ItemID
	ret[RecordKeyEventType] = e.EventType
	ret[RecordKeyActor] = e.Actor
	ret[RecordKeyPreviousHash] = e.PreviousHash
	ret[RecordKeyRecordedAt] = e.RecordedAt
	return ret
}

// ComputeHash recomputes the entry hash from the entry contents
func (e *Entry) ComputeHash(engine *hashengine.Engine) (string, error) {
	if e.fieldsErr != nil {
		return "", e.fieldsErr
	}
	return engine.Hex(e.Record())
}

// IsGenesis reports whether the entry is the first one in the chain
func (e *Entry) IsGenesis() bool {
	return e.Sequence == 1
}

func validEventType(eventType string) bool {
	switch eventType {
	case EventSubmitted, EventApproved, EventRejected:
		return true
	default:
		return false
	}
}

func (e *Entry) toModel() (*models.LedgerEntry, error) {
	fields := e.Fields
	if fields == nil {
		fields = map[string]any{}
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("encode entry fields: %w", err)
	}
	return &models.LedgerEntry{
		Sequence:     e.Sequence,
		ItemID:       e.ItemID,
		EventType:    e.EventType,
		Actor:        e.Actor,
		EntryHash:    e.EntryHash,
		PreviousHash: e.PreviousHash,
		RecordedAt:   e.RecordedAt,
		Fields:       string(data),
	}, nil
}

// EntryFromModel converts a stored ledger row. A fields column that cannot be
// decoded does not fail the conversion; the error is reported by ComputeHash
// instead so that audits can flag the entry
func EntryFromModel(m *models.LedgerEntry) *Entry {
	e := &Entry{
		Sequence:     m.Sequence,
		ItemID:       m.ItemID,
		EventType:    m.EventType,
		Actor:        m.Actor,
		EntryHash:    m.EntryHash,
		PreviousHash: m.PreviousHash,
		RecordedAt:   m.RecordedAt.UTC(),
	}
	e.Fields, e.fieldsErr = decodeFields(m.Fields)
	return e
}

func decodeFields(data string) (map[string]any, error) {
	if data == "" {
		return map[string]any{}, nil
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(data)))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, &hashengine.EncodingError{
			Reason: fmt.Sprintf("decode stored fields: %s", err),
		}
	}
	ret := make(map[string]any, len(raw))
	for k, v := range raw {
		nv, err := hashengine.Normalize(v)
		if err != nil {
			return nil, err
		}
		ret[k] = nv
	}
	return ret, nil
}
