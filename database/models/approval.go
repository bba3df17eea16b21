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

// Approval records a single approve or reject decision on an item.
// Repeated decisions by the same approver are kept
type Approval struct {
	ID         uint64    `gorm:"primarykey"`
	ItemID     uint64    `gorm:"index:idx_approval_item_decision;not null"`
	Item       *Item     `gorm:"foreignKey:ItemID;constraint:OnUpdate:RESTRICT,OnDelete:RESTRICT" json:"-"`
	Approver   string    `gorm:"size:255;not null"`
	Decision   string    `gorm:"size:16;index:idx_approval_item_decision;not null"`
	RecordedAt time.Time `gorm:"precision:6;not null"`
}

func (Approval) TableName() string {
	return "approvals"
}
