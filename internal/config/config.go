package config

import "fmt"

// Config is the full CLI configuration.
type Config struct {
	Log   Log   `toml:"log"`
	Sync  Sync  `toml:"sync"`
	Bench Bench `toml:"bench"`
}

// Log configures CLI logging.
type Log struct {
	// Level is one of debug, info, warn, error.
	Level string `toml:"level"`
	// Format is text or json.
	Format string `toml:"format"`
}

// Sync configures the sync command.
type Sync struct {
	// Watch keeps the process alive, re-reconciling on file changes.
	Watch bool `toml:"watch"`
	// DebounceMS collapses bursts of file events into one reconciliation.
	DebounceMS int `toml:"debounce_ms"`
	// Dump prints the reconciled document back to stdout after each set.
	Dump bool `toml:"dump"`
}

// Bench configures the bench command's synthetic workload.
type Bench struct {
	Cells int   `toml:"cells"`
	Edits int   `toml:"edits"`
	Seed  int64 `toml:"seed"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Log:   Log{Level: "info", Format: "text"},
		Sync:  Sync{DebounceMS: 250},
		Bench: Bench{Cells: 2000, Edits: 200, Seed: 1},
	}
}

// Validate checks field values after all layers are applied.
func (c *Config) Validate() error {
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: invalid log level %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("config: invalid log format %q", c.Log.Format)
	}
	if c.Sync.DebounceMS < 0 {
		return fmt.Errorf("config: negative debounce %d", c.Sync.DebounceMS)
	}
	if c.Bench.Cells <= 0 || c.Bench.Edits < 0 {
		return fmt.Errorf("config: invalid bench workload %d cells, %d edits", c.Bench.Cells, c.Bench.Edits)
	}
	return nil
}
