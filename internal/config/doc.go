// Package config provides configuration loading for the coalesce CLI.
//
// Configuration comes from three layers, later layers winning: built-in
// defaults, an optional TOML file, and environment variables.
package config
