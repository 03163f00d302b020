// Package main is the entry point for the coalesce CLI, which mirrors a
// notebook file into a live reconciled document and benchmarks the
// reconciliation drivers.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/dshills/coalesce/internal/config"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	if len(os.Args) < 2 {
		usage()
		return 2
	}
	switch os.Args[1] {
	case "sync":
		return runSync(os.Args[2:])
	case "bench":
		return runBench(os.Args[2:])
	case "version", "-v", "--version":
		fmt.Printf("coalesce %s (%s)\n", version, commit)
		return 0
	case "help", "-h", "--help":
		usage()
		return 0
	default:
		fmt.Fprintf(os.Stderr, "coalesce: unknown command %q\n\n", os.Args[1])
		usage()
		return 2
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "coalesce - incremental notebook reconciliation\n\n")
	fmt.Fprintf(os.Stderr, "Usage: coalesce <command> [options]\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  sync     Mirror a notebook file into a live document\n")
	fmt.Fprintf(os.Stderr, "  bench    Compare the synchronous and yielding drivers\n")
	fmt.Fprintf(os.Stderr, "  version  Show version information\n\n")
	fmt.Fprintf(os.Stderr, "Examples:\n")
	fmt.Fprintf(os.Stderr, "  coalesce sync notebook.ipynb\n")
	fmt.Fprintf(os.Stderr, "  coalesce sync -watch -dump notebook.ipynb\n")
	fmt.Fprintf(os.Stderr, "  coalesce sync -edit cells.0.source='print(1)' notebook.ipynb\n")
	fmt.Fprintf(os.Stderr, "  coalesce sync -text -watch notes.txt\n")
	fmt.Fprintf(os.Stderr, "  coalesce bench -cells 5000\n")
}

// newLogger builds the process logger from configuration.
func newLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	switch cfg.Log.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
