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

// Item is a submitted piece of work awaiting approval
type Item struct {
	ID          uint64    `gorm:"primarykey"`
	OperatorID  uint64    `gorm:"index;not null"`
	Operator    *Operator `gorm:"foreignKey:OperatorID;constraint:OnUpdate:RESTRICT,OnDelete:RESTRICT" json:"-"`
	Content     string    `gorm:"type:text;not null"`
	Reason      string    `gorm:"type:text;not null"`
	ContentHash string    `gorm:"size:64;not null"`
	Status      string    `gorm:"size:16;index;not null"`
	CreatedAt   time.Time `gorm:"precision:6;not null"`
}

func (Item) TableName() string {
	return "items"
}

// ItemListing is an item joined with the username of its submitter
type ItemListing struct {
	ID          uint64
	OperatorID  uint64
	Submitter   string
	Content     string
	Reason      string
	ContentHash string
	Status      string
	CreatedAt   time.Time
}
