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

package aipx

import (
	"testing"
	"time"

	"github.com/aipx/aipx/hashengine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfigDefaults(t *testing.T) {
	cfg := NewConfig()
	assert.NotNil(t, cfg.logger)
	assert.Equal(t, hashengine.DefaultAlgorithm, cfg.hashAlgorithm)
	assert.Equal(t, []string{"supervisor", "judge"}, cfg.privilegedRoles)
	assert.Equal(t, 2, cfg.quorumThreshold)
	assert.Empty(t, cfg.dataDir)
	assert.Empty(t, cfg.apiListenAddress)
}

func TestConfigOptions(t *testing.T) {
	cfg := NewConfig(
		WithDatabasePath("/tmp/aipx"),
		WithMetadataPlugin("badger"),
		WithApiListenAddress(":9000"),
		WithHashAlgorithm(hashengine.AlgorithmBlake2b256),
		WithPrivilegedRoles("auditor"),
		WithQuorumThreshold(3),
		WithMaxAppendRetries(9),
		WithTracing(true),
		WithTracingStdout(true),
		WithShutdownTimeout(5*time.Second),
	)
	assert.Equal(t, "/tmp/aipx", cfg.dataDir)
	assert.Equal(t, "badger", cfg.metadataPlugin)
	assert.Equal(t, ":9000", cfg.apiListenAddress)
	assert.Equal(t, hashengine.AlgorithmBlake2b256, cfg.hashAlgorithm)
	assert.Equal(t, []string{"auditor"}, cfg.privilegedRoles)
	assert.Equal(t, 3, cfg.quorumThreshold)
	assert.Equal(t, uint64(9), cfg.maxAppendRetries)
	assert.True(t, cfg.tracing)
	assert.True(t, cfg.tracingStdout)
	assert.Equal(t, 5*time.Second, cfg.shutdownTimeout)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name string
		opts []ConfigOptionFunc
		ok   bool
	}{
		{"defaults", nil, true},
		{"zero quorum", []ConfigOptionFunc{WithQuorumThreshold(0)}, false},
		{"no roles", []ConfigOptionFunc{WithPrivilegedRoles()}, false},
		{"unknown hash", []ConfigOptionFunc{WithHashAlgorithm("md5")}, false},
		{"nil logger", []ConfigOptionFunc{WithLogger(nil)}, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(NewConfig(tc.opts...))
			if tc.ok {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "invalid configuration")
			}
		})
	}
}
