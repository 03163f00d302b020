package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Load builds the configuration from defaults, an optional TOML file, and
// environment overrides. A missing file is not an error; an empty path
// skips the file layer entirely.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := loadFile(cfg, path); err != nil {
			return nil, err
		}
	}
	loadEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading config file %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

// loadEnv applies environment overrides. Only logging is overridable from
// the environment; workload knobs belong in the file or on flags.
func loadEnv(cfg *Config) {
	if v := os.Getenv("COALESCE_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("COALESCE_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}
