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

package config

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/aipx/aipx/database/plugin"
	"github.com/aipx/aipx/hashengine"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

type ctxKey string

const configContextKey ctxKey = "aipx.config"

const (
	DefaultShutdownTimeout = "30s"
	DefaultMetadataPlugin  = "sqlite"
	DefaultQuorumThreshold = 2
	DefaultHashAlgorithm   = string(hashengine.DefaultAlgorithm)
	DefaultMaxRetries      = 5

	envPrefix = "aipx"
)

var ErrInvalidConfig = errors.New("invalid configuration")

func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configContextKey, cfg)
}

func FromContext(ctx context.Context) *Config {
	cfg, ok := ctx.Value(configContextKey).(*Config)
	if !ok {
		return nil
	}
	return cfg
}

type tempConfig struct {
	Config   *Config                   `yaml:"config,omitempty"`
	Database *databaseConfig           `yaml:"database,omitempty"`
	Metadata map[string]map[string]any `yaml:"metadata,omitempty"`
}

type databaseConfig struct {
	Metadata map[string]any `yaml:"metadata,omitempty"`
}

type Config struct {
	DatabasePath     string   `yaml:"databasePath"                                              split_words:"true"`
	MetadataPlugin   string   `yaml:"metadataPlugin"   envconfig:"DATABASE_METADATA_PLUGIN"`
	BindAddr         string   `yaml:"bindAddr"                                                  split_words:"true"`
	ShutdownTimeout  string   `yaml:"shutdownTimeout"                                           split_words:"true"`
	HashAlgorithm    string   `yaml:"hashAlgorithm"                                             split_words:"true"`
	PrivilegedRoles  []string `yaml:"privilegedRoles"                                           split_words:"true"`
	QuorumThreshold  int      `yaml:"quorumThreshold"                                           split_words:"true"`
	MaxAppendRetries uint64   `yaml:"maxAppendRetries"                                          split_words:"true"`
	ApiPort          uint     `yaml:"apiPort"                                                   split_words:"true"`
	MetricsPort      uint     `yaml:"metricsPort"                                               split_words:"true"`
	Tracing          bool     `yaml:"tracing"`
	TracingStdout    bool     `yaml:"tracingStdout"                                             split_words:"true"`
}

// Validate checks the values that cannot be defaulted
func (c *Config) Validate() error {
	if c.QuorumThreshold < 1 {
		return fmt.Errorf(
			"%w: quorumThreshold must be at least 1, got %d",
			ErrInvalidConfig,
			c.QuorumThreshold,
		)
	}
	if len(c.PrivilegedRoles) == 0 ||
		slices.Contains(c.PrivilegedRoles, "") {
		return fmt.Errorf(
			"%w: privilegedRoles must list at least one non-empty role",
			ErrInvalidConfig,
		)
	}
	if _, err := hashengine.ParseAlgorithm(c.HashAlgorithm); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if _, err := c.ShutdownTimeoutDuration(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// ShutdownTimeoutDuration parses ShutdownTimeout
func (c *Config) ShutdownTimeoutDuration() (time.Duration, error) {
	if c.ShutdownTimeout == "" {
		c.ShutdownTimeout = DefaultShutdownTimeout
	}
	d, err := time.ParseDuration(c.ShutdownTimeout)
	if err != nil {
		return 0, fmt.Errorf("invalid shutdownTimeout %q: %w", c.ShutdownTimeout, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("shutdownTimeout must be positive, got %s", d)
	}
	return d, nil
}

func defaultConfig() *Config {
	return &Config{
		DatabasePath:     ".aipx",
		MetadataPlugin:   DefaultMetadataPlugin,
		BindAddr:         "0.0.0.0",
		ShutdownTimeout:  DefaultShutdownTimeout,
		HashAlgorithm:    DefaultHashAlgorithm,
		PrivilegedRoles:  []string{"supervisor", "judge"},
		QuorumThreshold:  DefaultQuorumThreshold,
		MaxAppendRetries: DefaultMaxRetries,
		ApiPort:          8000,
		MetricsPort:      12799,
	}
}

var globalConfig = defaultConfig()

func LoadConfig(configFile string) (*Config, error) {
	// Load config file as YAML if provided
	if configFile == "" {
		// Check for config file in this path: ~/.aipx/aipx.yaml
		if homeDir, err := os.UserHomeDir(); err == nil {
			userPath := filepath.Join(homeDir, ".aipx", "aipx.yaml")
			if _, err := os.Stat(userPath); err == nil {
				configFile = userPath
			}
		}

		// Try to check for /etc/aipx/aipx.yaml if still not found
		if configFile == "" {
			systemPath := "/etc/aipx/aipx.yaml"
			if _, err := os.Stat(systemPath); err == nil {
				configFile = systemPath
			}
		}
	}

	if configFile != "" {
		if err := loadConfigFile(configFile); err != nil {
			return nil, err
		}
	}
	// Process environment variables
	err := envconfig.Process(envPrefix, globalConfig)
	if err != nil {
		return nil, fmt.Errorf("error processing environment: %+w", err)
	}

	// Process plugin environment variables
	err = plugin.ProcessEnvVars()
	if err != nil {
		return nil, fmt.Errorf(
			"error processing plugin environment variables: %w",
			err,
		)
	}

	if err := globalConfig.Validate(); err != nil {
		return nil, err
	}
	return globalConfig, nil
}

func loadConfigFile(configFile string) error {
	buf, err := os.ReadFile(configFile)
	if err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}

	// First unmarshal into temp config to handle plugin sections
	var tempCfg tempConfig
	err = yaml.Unmarshal(buf, &tempCfg)
	if err != nil {
		return fmt.Errorf("error parsing config file: %w", err)
	}

	// If config section exists, use it for main config
	if tempCfg.Config != nil {
		// Overlay config values onto existing defaults
		configBytes, err := yaml.Marshal(tempCfg.Config)
		if err != nil {
			return fmt.Errorf("error re-marshalling config: %w", err)
		}
		err = yaml.Unmarshal(configBytes, globalConfig)
		if err != nil {
			return fmt.Errorf("error parsing config section: %w", err)
		}
	} else {
		// Otherwise unmarshal the whole file as main config
		err = yaml.Unmarshal(buf, globalConfig)
		if err != nil {
			return fmt.Errorf("error parsing config file: %w", err)
		}
	}

	// Process plugin configurations
	pluginConfig := make(map[string]map[string]map[string]any)
	if tempCfg.Metadata != nil {
		pluginConfig["metadata"] = tempCfg.Metadata
	}
	// Handle database section if present
	if tempCfg.Database != nil && tempCfg.Database.Metadata != nil {
		// Extract plugin name if specified
		if pluginVal, exists := tempCfg.Database.Metadata["plugin"]; exists {
			if pluginName, ok := pluginVal.(string); ok {
				globalConfig.MetadataPlugin = pluginName
				// Remove plugin from config map
				delete(tempCfg.Database.Metadata, "plugin")
			}
		}
		// Build plugin config map
		metadataConfig := make(map[string]map[string]any)
		for k, v := range tempCfg.Database.Metadata {
			if val, ok := v.(map[string]any); ok {
				metadataConfig[k] = val
			} else {
				// Log skipped non-map config entries
				fmt.Fprintf(os.Stderr, "warning: skipping metadata config entry %q: expected map, got %T\n", k, v)
			}
		}
		// Merge with existing metadata config instead of overwriting
		if pluginConfig["metadata"] == nil {
			pluginConfig["metadata"] = metadataConfig
		} else {
			maps.Copy(pluginConfig["metadata"], metadataConfig)
		}
	}
	if len(pluginConfig) > 0 {
		err = plugin.ProcessConfig(pluginConfig)
		if err != nil {
			return fmt.Errorf(
				"error processing plugin config: %w",
				err,
			)
		}
	}
	return nil
}

func GetConfig() *Config {
	return globalConfig
}
