// ABOUTME: Configuration loading and parsing for composer-transfer
// ABOUTME: Supports YAML files with environment variable expansion and defaults

package config

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Default table names for the host application's store files
const (
	DefaultIndexTable   = "ItemTable"
	DefaultPayloadTable = "cursorDiskKV"
)

// DefaultMaxStoreBytes is the default in-memory-processing guard: a
// payload store larger than this aborts the export.
const DefaultMaxStoreBytes = 2 << 30 // 2 GiB

// Config represents the complete composer-transfer configuration
type Config struct {
	Stores  StoresConfig  `yaml:"stores"`
	Backup  BackupConfig  `yaml:"backup"`
	Limits  LimitsConfig  `yaml:"limits"`
	Logging LoggingConfig `yaml:"logging"`
}

// StoresConfig names the default store files and their key-value tables.
// Paths can always be overridden per invocation on the command line.
type StoresConfig struct {
	IndexPath    string `yaml:"index_path"`
	IndexTable   string `yaml:"index_table"`
	PayloadPath  string `yaml:"payload_path"`
	PayloadTable string `yaml:"payload_table"`
}

// BackupConfig holds backup placement configuration
type BackupConfig struct {
	// Dir is where pre-merge backups are written. Empty means next to
	// each store file.
	Dir string `yaml:"dir"`
}

// LimitsConfig holds safety limits
type LimitsConfig struct {
	// MaxStoreBytes aborts exports when the payload store file exceeds
	// this size. Zero or negative falls back to the default.
	MaxStoreBytes int64 `yaml:"max_store_bytes"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// Default returns a configuration with all defaults applied and no
// store paths set
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads a configuration file from the given path and returns a
// parsed Config. Environment variables in the format ${VAR_NAME} are
// expanded before parsing.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Stores.IndexTable == "" {
		c.Stores.IndexTable = DefaultIndexTable
	}
	if c.Stores.PayloadTable == "" {
		c.Stores.PayloadTable = DefaultPayloadTable
	}
	if c.Limits.MaxStoreBytes <= 0 {
		c.Limits.MaxStoreBytes = DefaultMaxStoreBytes
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding
// environment variable values. Unset variables become empty strings.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that configuration fields hold usable values.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error (got %q)", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json (got %q)", c.Logging.Format)
	}

	return nil
}
