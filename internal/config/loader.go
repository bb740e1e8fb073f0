/*
 * Copyright 2025 Google LLC
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *    https://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g. GEONAMES_DATABASE_HOST.
const EnvPrefix = "GEONAMES"

// NewViper returns a viper instance with defaults registered and environment lookup enabled.
// Every key must have a default so that AutomaticEnv can see it during Unmarshal.
func NewViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v, Default())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// SetDefaults registers every field of cfg as a viper default.
func SetDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("database.dialect", cfg.Database.Dialect)
	v.SetDefault("database.host", cfg.Database.Host)
	v.SetDefault("database.port", cfg.Database.Port)
	v.SetDefault("database.user", cfg.Database.User)
	v.SetDefault("database.password", cfg.Database.Password)
	v.SetDefault("database.name", cfg.Database.DBName)
	v.SetDefault("database.sslmode", cfg.Database.SSLMode)
	v.SetDefault("database.cloudsql_instance_connection_name", cfg.Database.CloudSQLInstanceConnectionName)
	v.SetDefault("database.cloudsql_use_private_ip", cfg.Database.UsePrivateIP)

	v.SetDefault("import.geonames_table", cfg.Import.GeonamesTable)
	v.SetDefault("import.alternate_names_table", cfg.Import.AlternateNamesTable)
	v.SetDefault("import.batch_size", cfg.Import.BatchSize)
	v.SetDefault("import.max_line_size", cfg.Import.MaxLineSize)
	v.SetDefault("import.encoding", cfg.Import.Encoding)
	v.SetDefault("import.fail_fast", cfg.Import.FailFast)
	v.SetDefault("import.max_reported_failures", cfg.Import.MaxReportedFailures)
	v.SetDefault("import.retry.max_attempts", cfg.Import.Retry.MaxAttempts)
	v.SetDefault("import.retry.initial_backoff", cfg.Import.Retry.InitialBackoff)
	v.SetDefault("import.retry.max_backoff", cfg.Import.Retry.MaxBackoff)
	v.SetDefault("import.retry.backoff_multiplier", cfg.Import.Retry.BackoffMultiplier)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)

	v.SetDefault("metrics.backend", cfg.Metrics.Backend)
	v.SetDefault("metrics.tags", cfg.Metrics.Tags)
}

// LoadDotEnv loads a .env file into the process environment if one exists.
// Variables already set in the environment win.
func LoadDotEnv(paths ...string) error {
	err := godotenv.Load(paths...)
	if err != nil && isNotExist(err) {
		return nil
	}
	return err
}

// Load reads an optional config file into v, decodes the result and validates it.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config load: failed to read %s: %w", configFile, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}
	// Comma separated tags from env arrive as a single element.
	cfg.Metrics.Tags = splitTags(cfg.Metrics.Tags)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

func splitTags(in []string) []string {
	var out []string
	for _, t := range in {
		for _, p := range strings.Split(t, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
