package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/dshills/coalesce/internal/config"
	"github.com/dshills/coalesce/internal/document"
)

func runBench(args []string) int {
	fs := flag.NewFlagSet("bench", flag.ExitOnError)
	var configPath string
	cells := fs.Int("cells", 0, "Number of synthetic cells (overrides config)")
	edits := fs.Int("edits", -1, "Number of random edits between states (overrides config)")
	seed := fs.Int64("seed", 0, "Workload seed (overrides config)")
	fs.StringVar(&configPath, "config", "", "Path to configuration file")
	fs.Parse(args)

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if *cells > 0 {
		cfg.Bench.Cells = *cells
	}
	if *edits >= 0 {
		cfg.Bench.Edits = *edits
	}
	if *seed != 0 {
		cfg.Bench.Seed = *seed
	}
	logger := newLogger(cfg)

	rng := rand.New(rand.NewSource(cfg.Bench.Seed))
	before := syntheticNotebook(rng, cfg.Bench.Cells)
	after := mutate(rng, before, cfg.Bench.Edits)

	// Two documents seeded identically, one per driver.
	syncDoc := document.NewNotebook()
	yieldDoc := document.NewNotebook()
	if _, err := syncDoc.Set(before); err != nil {
		logger.Error("seed", "error", err)
		return 1
	}
	if _, err := yieldDoc.Set(before); err != nil {
		logger.Error("seed", "error", err)
		return 1
	}

	syncStart := time.Now()
	if _, err := syncDoc.Set(after); err != nil {
		logger.Error("sync driver", "error", err)
		return 1
	}
	syncTotal := time.Since(syncStart)

	var maxStep time.Duration
	last := time.Now()
	yieldStart := last
	_, err = yieldDoc.ASet(context.Background(), after, func(ctx context.Context) error {
		now := time.Now()
		if d := now.Sub(last); d > maxStep {
			maxStep = d
		}
		last = now
		return nil
	})
	if err != nil {
		logger.Error("yield driver", "error", err)
		return 1
	}
	yieldTotal := time.Since(yieldStart)

	a, err := document.EncodeNotebook(syncDoc.Get())
	if err != nil {
		logger.Error("encode", "error", err)
		return 1
	}
	b, err := document.EncodeNotebook(yieldDoc.Get())
	if err != nil {
		logger.Error("encode", "error", err)
		return 1
	}
	identical := bytes.Equal(a, b)

	logger.Info("bench complete",
		"cells", cfg.Bench.Cells,
		"edits", cfg.Bench.Edits,
		"sync_total", syncTotal,
		"yield_total", yieldTotal,
		"yield_max_step", maxStep,
		"identical", identical)
	if !identical {
		logger.Error("drivers diverged")
		return 1
	}
	return 0
}

// syntheticNotebook builds a plain notebook value with n generated cells.
func syntheticNotebook(rng *rand.Rand, n int) map[string]any {
	cells := make([]any, n)
	for i := range cells {
		cells[i] = map[string]any{
			"id":              uuid.NewString(),
			"cell_type":       "code",
			"source":          randomSource(rng),
			"metadata":        map[string]any{},
			"outputs":         []any{},
			"execution_count": nil,
		}
	}
	return map[string]any{
		"cells":          cells,
		"metadata":       map[string]any{},
		"nbformat":       document.NBFormatMajor,
		"nbformat_minor": document.NBFormatMinor,
	}
}

// mutate returns a copy of the notebook value with n random cell edits:
// source rewrites, swaps, deletions and insertions.
func mutate(rng *rand.Rand, nb map[string]any, n int) map[string]any {
	cells := append([]any(nil), nb["cells"].([]any)...)
	for i := 0; i < n && len(cells) > 1; i++ {
		switch j := rng.Intn(len(cells)); rng.Intn(4) {
		case 0: // rewrite one line of a cell's source
			cell := copyCell(cells[j].(map[string]any))
			cell["source"] = cell["source"].(string) + fmt.Sprintf("\nx%d = %d", i, rng.Intn(1000))
			cells[j] = cell
		case 1: // swap two cells
			k := rng.Intn(len(cells))
			cells[j], cells[k] = cells[k], cells[j]
		case 2: // delete a cell
			cells = append(cells[:j], cells[j+1:]...)
		case 3: // insert a fresh cell
			fresh := map[string]any{
				"id":              uuid.NewString(),
				"cell_type":       "code",
				"source":          randomSource(rng),
				"metadata":        map[string]any{},
				"outputs":         []any{},
				"execution_count": nil,
			}
			cells = append(cells[:j], append([]any{fresh}, cells[j:]...)...)
		}
	}
	out := make(map[string]any, len(nb))
	for k, v := range nb {
		out[k] = v
	}
	out["cells"] = cells
	return out
}

func copyCell(cell map[string]any) map[string]any {
	out := make(map[string]any, len(cell))
	for k, v := range cell {
		out[k] = v
	}
	return out
}

func randomSource(rng *rand.Rand) string {
	lines := rng.Intn(8) + 1
	var b bytes.Buffer
	for i := 0; i < lines; i++ {
		fmt.Fprintf(&b, "v%d = %d\n", i, rng.Intn(1000))
	}
	return b.String()
}
