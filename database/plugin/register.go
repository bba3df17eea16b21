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

package plugin

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/spf13/pflag"
)

const envVarPrefix = "AIPX"

type PluginType int

const (
	PluginTypeMetadata PluginType = 1
)

func PluginTypeName(pluginType PluginType) string {
	switch pluginType {
	case PluginTypeMetadata:
		return "metadata"
	default:
		return "unknown"
	}
}

type PluginOptionType int

const (
	PluginOptionTypeString PluginOptionType = 1
	PluginOptionTypeBool   PluginOptionType = 2
	PluginOptionTypeInt    PluginOptionType = 3
	PluginOptionTypeUint   PluginOptionType = 4
)

type PluginOption struct {
	Name         string
	Type         PluginOptionType
	Description  string
	DefaultValue any
	// CustomEnvVar is an additional environment variable checked after the
	// generated AIPX_<TYPE>_<PLUGIN>_<OPTION> name
	CustomEnvVar string
	Dest         any
	flagName     string
}

type PluginEntry struct {
	Type               PluginType
	Name               string
	Description        string
	NewFromOptionsFunc func(Env) Plugin
	Options            []PluginOption
}

var (
	pluginEntries      []PluginEntry
	pluginEntriesMutex sync.RWMutex
	cmdlineFlagSet     *pflag.FlagSet
)

func Register(pluginEntry PluginEntry) {
	pluginEntriesMutex.Lock()
	defer pluginEntriesMutex.Unlock()
	pluginEntries = append(pluginEntries, pluginEntry)
}

func GetPlugins(pluginType PluginType) []PluginEntry {
	pluginEntriesMutex.RLock()
	defer pluginEntriesMutex.RUnlock()
	ret := []PluginEntry{}
	for _, entry := range pluginEntries {
		if entry.Type == pluginType {
			ret = append(ret, entry)
		}
	}
	return ret
}

func GetPlugin(pluginType PluginType, pluginName string, env Env) Plugin {
	pluginEntriesMutex.RLock()
	var newFunc func(Env) Plugin
	for _, entry := range pluginEntries {
		if entry.Type == pluginType && entry.Name == pluginName {
			newFunc = entry.NewFromOptionsFunc
			break
		}
	}
	pluginEntriesMutex.RUnlock()
	if newFunc == nil {
		return nil
	}
	return newFunc(env)
}

// PopulateCmdlineOptions adds a flag for every registered plugin option to
// the provided flag set. Flags are named <type>-<plugin>-<option>
func PopulateCmdlineOptions(fs *pflag.FlagSet) error {
	pluginEntriesMutex.Lock()
	defer pluginEntriesMutex.Unlock()
	cmdlineFlagSet = fs
	for i := range pluginEntries {
		entry := &pluginEntries[i]
		for j := range entry.Options {
			opt := &entry.Options[j]
			opt.flagName = fmt.Sprintf(
				"%s-%s-%s",
				PluginTypeName(entry.Type),
				entry.Name,
				opt.Name,
			)
			if err := opt.addFlag(fs); err != nil {
				return err
			}
		}
	}
	return nil
}

// ProcessEnvVars applies plugin option values from the environment. Options
// explicitly set on the command line are left alone
func ProcessEnvVars() error {
	pluginEntriesMutex.RLock()
	defer pluginEntriesMutex.RUnlock()
	for _, entry := range pluginEntries {
		for _, opt := range entry.Options {
			if opt.setOnCmdline() {
				continue
			}
			envNames := []string{
				strings.ToUpper(
					strings.ReplaceAll(
						fmt.Sprintf(
							"%s_%s_%s_%s",
							envVarPrefix,
							PluginTypeName(entry.Type),
							entry.Name,
							opt.Name,
						),
						"-",
						"_",
					),
				),
			}
			if opt.CustomEnvVar != "" {
				envNames = append(envNames, opt.CustomEnvVar)
			}
			for _, envName := range envNames {
				val, ok := os.LookupEnv(envName)
				if !ok {
					continue
				}
				if err := opt.assign(val); err != nil {
					return fmt.Errorf("%s: %w", envName, err)
				}
			}
		}
	}
	return nil
}

// ProcessConfig applies plugin option values from the config file. The map
// is keyed by plugin type name, plugin name, then option name
func ProcessConfig(pluginConfig map[string]map[string]map[string]any) error {
	pluginEntriesMutex.RLock()
	defer pluginEntriesMutex.RUnlock()
	for _, entry := range pluginEntries {
		typeConfig, ok := pluginConfig[PluginTypeName(entry.Type)]
		if !ok {
			continue
		}
		entryConfig, ok := typeConfig[entry.Name]
		if !ok {
			continue
		}
		for _, opt := range entry.Options {
			if opt.setOnCmdline() {
				continue
			}
			val, ok := entryConfig[opt.Name]
			if !ok {
				continue
			}
			if err := opt.assign(val); err != nil {
				return fmt.Errorf(
					"%s plugin %s: %w",
					PluginTypeName(entry.Type),
					entry.Name,
					err,
				)
			}
		}
	}
	return nil
}

func (p *PluginOption) setOnCmdline() bool {
	if cmdlineFlagSet == nil || p.flagName == "" {
		return false
	}
	return cmdlineFlagSet.Changed(p.flagName)
}

func (p *PluginOption) addFlag(fs *pflag.FlagSet) error {
	switch p.Type {
	case PluginOptionTypeString:
		dest, ok := p.Dest.(*string)
		if !ok {
			return fmt.Errorf("option %s: expected *string destination", p.Name)
		}
		def, _ := p.DefaultValue.(string)
		fs.StringVar(dest, p.flagName, def, p.Description)
	case PluginOptionTypeBool:
		dest, ok := p.Dest.(*bool)
		if !ok {
			return fmt.Errorf("option %s: expected *bool destination", p.Name)
		}
		def, _ := p.DefaultValue.(bool)
		fs.BoolVar(dest, p.flagName, def, p.Description)
	case PluginOptionTypeInt:
		dest, ok := p.Dest.(*int)
		if !ok {
			return fmt.Errorf("option %s: expected *int destination", p.Name)
		}
		def, _ := p.DefaultValue.(int)
		fs.IntVar(dest, p.flagName, def, p.Description)
	case PluginOptionTypeUint:
		dest, ok := p.Dest.(*uint64)
		if !ok {
			return fmt.Errorf("option %s: expected *uint64 destination", p.Name)
		}
		def, _ := p.DefaultValue.(uint64)
		fs.Uint64Var(dest, p.flagName, def, p.Description)
	default:
		return fmt.Errorf("unknown plugin option type %d for option %s", p.Type, p.Name)
	}
	return nil
}

// assign performs a type-checked write into the option destination. String
// values are parsed for non-string options so that env vars can be applied
func (p *PluginOption) assign(value any) error {
	if p.Dest == nil {
		return fmt.Errorf("nil destination for option %s", p.Name)
	}
	switch p.Type {
	case PluginOptionTypeString:
		v, ok := value.(string)
		if !ok {
			return fmt.Errorf("invalid type for option %s: expected string", p.Name)
		}
		dest, ok := p.Dest.(*string)
		if !ok || dest == nil {
			return fmt.Errorf("invalid destination type for option %s: expected *string", p.Name)
		}
		*dest = v
	case PluginOptionTypeBool:
		var v bool
		switch tv := value.(type) {
		case bool:
			v = tv
		case string:
			parsed, err := strconv.ParseBool(tv)
			if err != nil {
				return fmt.Errorf("invalid value for option %s: %w", p.Name, err)
			}
			v = parsed
		default:
			return fmt.Errorf("invalid type for option %s: expected bool", p.Name)
		}
		dest, ok := p.Dest.(*bool)
		if !ok || dest == nil {
			return fmt.Errorf("invalid destination type for option %s: expected *bool", p.Name)
		}
		*dest = v
	case PluginOptionTypeInt:
		var v int
		switch tv := value.(type) {
		case int:
			v = tv
		case string:
			parsed, err := strconv.Atoi(tv)
			if err != nil {
				return fmt.Errorf("invalid value for option %s: %w", p.Name, err)
			}
			v = parsed
		default:
			return fmt.Errorf("invalid type for option %s: expected int", p.Name)
		}
		dest, ok := p.Dest.(*int)
		if !ok || dest == nil {
			return fmt.Errorf("invalid destination type for option %s: expected *int", p.Name)
		}
		*dest = v
	case PluginOptionTypeUint:
		var v uint64
		switch tv := value.(type) {
		case uint64:
			v = tv
		case int:
			if tv < 0 {
				return fmt.Errorf("invalid value for option %s: negative int", p.Name)
			}
			v = uint64(tv)
		case string:
			parsed, err := strconv.ParseUint(tv, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for option %s: %w", p.Name, err)
			}
			v = parsed
		default:
			return fmt.Errorf("invalid type for option %s: expected uint64 or int", p.Name)
		}
		dest, ok := p.Dest.(*uint64)
		if !ok || dest == nil {
			return fmt.Errorf("invalid destination type for option %s: expected *uint64", p.Name)
		}
		*dest = v
	default:
		return fmt.Errorf("unknown plugin option type %d for option %s", p.Type, p.Name)
	}
	return nil
}
