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

package badger

import (
	"encoding/binary"
	"slices"
)

const (
	operatorKeyPrefix   = "o:"
	operatorIdKeyPrefix = "oi:"
	itemKeyPrefix       = "i:"
	approvalKeyPrefix   = "a:"
	ledgerKeyPrefix     = "l:"
	ledgerHashKeyPrefix = "lh:"

	ledgerTailKey      = "m:tail"
	operatorCounterKey = "m:seq:operator"
	itemCounterKey     = "m:seq:item"
	approvalCounterKey = "m:seq:approval"
)

func uint64ToBytes(input uint64) []byte {
	ret := make([]byte, 8)
	binary.BigEndian.PutUint64(ret, input)
	return ret
}

func bytesToUint64(input []byte) uint64 {
	if len(input) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(input)
}

func operatorKey(username string) []byte {
	return slices.Concat([]byte(operatorKeyPrefix), []byte(username))
}

func operatorIdKey(id uint64) []byte {
	return slices.Concat([]byte(operatorIdKeyPrefix), uint64ToBytes(id))
}

func itemKey(id uint64) []byte {
	return slices.Concat([]byte(itemKeyPrefix), uint64ToBytes(id))
}

// approvalKeyPrefixForItem groups approvals under their item so they can be
// counted with a prefix scan
func approvalKeyPrefixForItem(itemID uint64) []byte {
	return slices.Concat([]byte(approvalKeyPrefix), uint64ToBytes(itemID))
}

func approvalKey(itemID uint64, id uint64) []byte {
	return slices.Concat(approvalKeyPrefixForItem(itemID), uint64ToBytes(id))
}

// ledgerKey sorts in sequence order, since the sequence is big-endian
func ledgerKey(sequence uint64) []byte {
	return slices.Concat([]byte(ledgerKeyPrefix), uint64ToBytes(sequence))
}

func ledgerHashKey(entryHash string) []byte {
	return slices.Concat([]byte(ledgerHashKeyPrefix), []byte(entryHash))
}
