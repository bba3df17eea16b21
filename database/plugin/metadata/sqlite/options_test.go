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

package sqlite

import (
	"testing"

	"github.com/aipx/aipx/database/plugin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptions(t *testing.T) {
	logger := plugin.DiscardLogger()
	reg := prometheus.NewRegistry()
	m, err := NewWithOptions(
		WithDataDir("/tmp/test"),
		WithLogger(logger),
		WithPromRegistry(reg),
		WithMaxConnections(8),
		WithBusyTimeout(100),
	)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/test", m.dataDir)
	assert.Same(t, logger, m.logger)
	assert.Equal(t, reg, m.promRegistry)
	assert.Equal(t, 8, m.maxConnections)
	assert.Equal(t, 100, m.busyTimeout)
}

func TestOptionDefaults(t *testing.T) {
	m, err := NewWithOptions()
	require.NoError(t, err)
	assert.NotNil(t, m.logger)
	assert.Equal(t, DefaultMaxConnections, m.maxConnections)
	assert.Equal(t, DefaultBusyTimeout, m.busyTimeout)
}

func TestRegisteredPlugin(t *testing.T) {
	require.NoError(t, plugin.SetPluginOption(plugin.PluginTypeMetadata, "sqlite", "data-dir", ""))
	t.Cleanup(initCmdlineOptions)
	p := plugin.GetPlugin(plugin.PluginTypeMetadata, "sqlite", plugin.Env{})
	require.NotNil(t, p)
	store, ok := p.(*MetadataStoreSqlite)
	require.True(t, ok, "got %T", p)
	assert.Empty(t, store.dataDir)
}
