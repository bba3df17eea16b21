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

package mysql

import (
	"sync"

	"github.com/aipx/aipx/database/plugin"
	"github.com/aipx/aipx/database/plugin/metadata/gormstore"
)

var defaultConn = gormstore.ConnParams{
	Host:     "localhost",
	Port:     3306,
	User:     "root",
	Database: "aipx",
	TimeZone: "UTC",
}

var (
	cmdlineOptions      gormstore.ConnParams
	cmdlineOptionsMutex sync.RWMutex
)

func init() {
	cmdlineOptionsMutex.Lock()
	options := gormstore.ConnOptions("MySQL", "MYSQL", &cmdlineOptions, defaultConn)
	cmdlineOptionsMutex.Unlock()
	plugin.Register(
		plugin.PluginEntry{
			Type:               plugin.PluginTypeMetadata,
			Name:               "mysql",
			Description:        "MySQL relational database",
			NewFromOptionsFunc: NewFromCmdlineOptions,
			Options:            options,
		},
	)
}

func NewFromCmdlineOptions(env plugin.Env) plugin.Plugin {
	cmdlineOptionsMutex.RLock()
	conn := cmdlineOptions
	cmdlineOptionsMutex.RUnlock()
	p, err := NewWithOptions(
		WithConn(conn),
		WithLogger(env.Logger),
		WithPromRegistry(env.PromRegistry),
	)
	if err != nil {
		// Return a plugin that defers the error to Start()
		return plugin.NewErrorPlugin(err)
	}
	return p
}
