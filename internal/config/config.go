// Package config loads dbxp's runtime configuration: the data directory
// holding .sde/.sdi files, the default duplicate-key policy for new
// indexes, and the telemetry exporter endpoint. Layering follows the
// teacher's config package: defaults, then an optional TOML file, then
// environment overrides, via spf13/viper.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the resolved runtime configuration.
type Config struct {
	// DataDir holds one .sde/.sdi pair per table.
	DataDir string `mapstructure:"data_dir"`
	// AllowDupesDefault is the configured allow_dupes default. It is loaded
	// here but not read elsewhere in this module; index creation does not
	// consult it.
	AllowDupesDefault bool `mapstructure:"allow_dupes_default"`
	// LockTimeoutMs bounds how long a share waits for an exclusive lock.
	LockTimeoutMs int `mapstructure:"lock_timeout_ms"`
	// OTLPEndpoint is the configured OTLP endpoint. It is loaded here but not
	// read elsewhere in this module; setting it does not enable any export.
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
}

// LockTimeout returns LockTimeoutMs as a time.Duration.
func (c Config) LockTimeout() time.Duration {
	return time.Duration(c.LockTimeoutMs) * time.Millisecond
}

// Default returns the built-in configuration used when no file is present.
func Default() Config {
	return Config{
		DataDir:           "./data",
		AllowDupesDefault: false,
		LockTimeoutMs:     5000,
		OTLPEndpoint:      "",
	}
}

// Load resolves configuration from, in increasing precedence: built-in
// defaults, an optional TOML file at path (skipped if empty or missing),
// then DBXP_-prefixed environment variables.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigType("toml")
	def := Default()
	v.SetDefault("data_dir", def.DataDir)
	v.SetDefault("allow_dupes_default", def.AllowDupesDefault)
	v.SetDefault("lock_timeout_ms", def.LockTimeoutMs)
	v.SetDefault("otlp_endpoint", def.OTLPEndpoint)

	v.SetEnvPrefix("DBXP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !errors.Is(err, os.ErrNotExist) {
				return Config{}, fmt.Errorf("load config %s: %w", path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}
