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

package postgres

import (
	"sync"

	"github.com/aipx/aipx/database/plugin"
	"github.com/aipx/aipx/database/plugin/metadata/gormstore"
)

var defaultConn = gormstore.ConnParams{
	Host:     "localhost",
	Port:     5432,
	User:     "postgres",
	Database: "aipx",
	SSLMode:  "disable",
	TimeZone: "UTC",
}

var (
	cmdlineOptions struct {
		conn     gormstore.ConnParams
		maxConns int
	}
	cmdlineOptionsMutex sync.RWMutex
)

func init() {
	cmdlineOptionsMutex.Lock()
	options := append(
		gormstore.ConnOptions("Postgres", "POSTGRES", &cmdlineOptions.conn, defaultConn),
		plugin.PluginOption{
			Name:         "max-connections",
			Type:         plugin.PluginOptionTypeInt,
			Description:  "Maximum number of open connections",
			DefaultValue: DefaultMaxConnections,
			Dest:         &(cmdlineOptions.maxConns),
		},
	)
	cmdlineOptions.maxConns = DefaultMaxConnections
	cmdlineOptionsMutex.Unlock()
	plugin.Register(
		plugin.PluginEntry{
			Type:               plugin.PluginTypeMetadata,
			Name:               "postgres",
			Description:        "PostgreSQL relational database",
			NewFromOptionsFunc: NewFromCmdlineOptions,
			Options:            options,
		},
	)
}

func NewFromCmdlineOptions(env plugin.Env) plugin.Plugin {
	cmdlineOptionsMutex.RLock()
	opts := []PostgresOptionFunc{
		WithConn(cmdlineOptions.conn),
		WithMaxConnections(cmdlineOptions.maxConns),
		WithLogger(env.Logger),
		WithPromRegistry(env.PromRegistry),
	}
	cmdlineOptionsMutex.RUnlock()
	p, err := NewWithOptions(opts...)
	if err != nil {
		// Return a plugin that defers the error to Start()
		return plugin.NewErrorPlugin(err)
	}
	return p
}
