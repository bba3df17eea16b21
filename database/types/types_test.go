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

package types_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/aipx/aipx/database/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConflictError(t *testing.T) {
	base := errors.New("UNIQUE constraint failed: ledger_entries.sequence")
	err := types.NewConflictError(base)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrConflict)
	assert.ErrorIs(t, err, base)
	assert.Contains(t, err.Error(), "UNIQUE constraint failed")

	// Wrapping survives further context
	wrapped := fmt.Errorf("append entry: %w", err)
	assert.ErrorIs(t, wrapped, types.ErrConflict)

	// Already-classified errors are returned as-is
	assert.Same(t, err, types.NewConflictError(err))

	assert.NoError(t, types.NewConflictError(nil))
}
