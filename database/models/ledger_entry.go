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

package models

import "time"

// LedgerEntry is the stored form of one hash-chained ledger record. The
// table is append-only: backends install triggers rejecting UPDATE and DELETE
type LedgerEntry struct {
	Sequence     uint64    `gorm:"primaryKey;autoIncrement:false"`
	ItemID       uint64    `gorm:"index;not null"`
	Item         *Item     `gorm:"foreignKey:ItemID;constraint:OnUpdate:RESTRICT,OnDelete:RESTRICT" json:"-"`
	EventType    string    `gorm:"size:16;not null"`
	Actor        string    `gorm:"size:255;not null"`
	EntryHash    string    `gorm:"size:64;uniqueIndex;not null"`
	PreviousHash *string   `gorm:"size:64"`
	RecordedAt   time.Time `gorm:"precision:6;not null"`
	// Fields holds the event-specific hash inputs as a JSON object
	Fields       string    `gorm:"type:text;not null"`
}

func (LedgerEntry) TableName() string {
	return "ledger_entries"
}
