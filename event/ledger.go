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

package event

// EntryAppendedEventType is the event type for committed ledger entries
const EntryAppendedEventType = EventType("ledger.entry_appended")

// EntryAppendedEvent is published once per entry after its write unit commits
type EntryAppendedEvent struct {
	Sequence  uint64
	ItemID    uint64
	EventType string
	Actor     string
	EntryHash string
}

// ItemDecidedEventType is the event type for recorded approval decisions
const ItemDecidedEventType = EventType("workflow.item_decided")

// ItemDecidedEvent is published after a decision is recorded. Status is the
// item status after the decision
type ItemDecidedEvent struct {
	ItemID         uint64
	Approver       string
	Decision       string
	ApprovalsSoFar int64
	Status         string
}
