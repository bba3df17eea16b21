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

package gormstore

import (
	"strings"

	"github.com/aipx/aipx/database/plugin"
)

// ConnParams holds the network connection settings of a server backend.
// A non-empty DSN replaces the other fields
type ConnParams struct {
	Host     string
	Port     uint64
	User     string
	Password string
	Database string
	SSLMode  string
	TimeZone string
	DSN      string
}

// Merge returns p with its empty fields taken from defaults
func (p ConnParams) Merge(defaults ConnParams) ConnParams {
	pick := func(v, def string) string {
		if v == "" {
			return def
		}
		return v
	}
	ret := ConnParams{
		Host:     pick(p.Host, defaults.Host),
		Port:     p.Port,
		User:     pick(p.User, defaults.User),
		Password: p.Password,
		Database: pick(p.Database, defaults.Database),
		SSLMode:  pick(p.SSLMode, defaults.SSLMode),
		TimeZone: pick(p.TimeZone, defaults.TimeZone),
		DSN:      strings.TrimSpace(p.DSN),
	}
	if ret.Port == 0 {
		ret.Port = defaults.Port
	}
	return ret
}

// ConnOptions returns the plugin options that fill dest. Each option also
// reads <envPrefix>_<NAME> from the environment, so the usual client
// variables such as POSTGRES_HOST are honored
func ConnOptions(
	label string,
	envPrefix string,
	dest *ConnParams,
	defaults ConnParams,
) []plugin.PluginOption {
	str := func(name, envName, desc string, def string, field *string) plugin.PluginOption {
		*field = def
		return plugin.PluginOption{
			Name:         name,
			Type:         plugin.PluginOptionTypeString,
			Description:  label + " " + desc,
			DefaultValue: def,
			CustomEnvVar: envPrefix + "_" + envName,
			Dest:         field,
		}
	}
	dest.Port = defaults.Port
	return []plugin.PluginOption{
		str("host", "HOST", "host", defaults.Host, &dest.Host),
		{
			Name:         "port",
			Type:         plugin.PluginOptionTypeUint,
			Description:  label + " port",
			DefaultValue: defaults.Port,
			CustomEnvVar: envPrefix + "_PORT",
			Dest:         &dest.Port,
		},
		str("user", "USER", "user", defaults.User, &dest.User),
		str("password", "PASSWORD", "password (required)", "", &dest.Password),
		str("database", "DATABASE", "database name", defaults.Database, &dest.Database),
		str("ssl-mode", "SSLMODE", "TLS mode", defaults.SSLMode, &dest.SSLMode),
		str("timezone", "TIMEZONE", "time zone", defaults.TimeZone, &dest.TimeZone),
		str("dsn", "DSN", "DSN (overrides other options when set)", "", &dest.DSN),
	}
}
