package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/tidwall/sjson"

	"github.com/dshills/coalesce/internal/config"
	"github.com/dshills/coalesce/internal/crdt"
	"github.com/dshills/coalesce/internal/document"
	"github.com/dshills/coalesce/internal/reconcile"
)

// editList collects repeated -edit path=value flags.
type editList []string

func (e *editList) String() string { return strings.Join(*e, ",") }

func (e *editList) Set(v string) error {
	*e = append(*e, v)
	return nil
}

func runSync(args []string) int {
	fs := flag.NewFlagSet("sync", flag.ExitOnError)
	var (
		configPath string
		watch      bool
		dump       bool
		text       bool
		edits      editList
	)
	fs.StringVar(&configPath, "config", "", "Path to configuration file")
	fs.BoolVar(&watch, "watch", false, "Re-reconcile when the file changes")
	fs.BoolVar(&dump, "dump", false, "Print the reconciled document after each set")
	fs.BoolVar(&text, "text", false, "Treat the file as plain text instead of a notebook")
	fs.Var(&edits, "edit", "JSON path=value edit applied before reconciling (repeatable)")
	fs.Parse(args)

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: coalesce sync [options] <notebook.ipynb>")
		return 2
	}
	path := fs.Arg(0)
	if text && len(edits) > 0 {
		fmt.Fprintln(os.Stderr, "Error: -edit applies JSON paths and cannot be combined with -text")
		return 2
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	cfg.Sync.Watch = cfg.Sync.Watch || watch
	cfg.Sync.Dump = cfg.Sync.Dump || dump
	logger := newLogger(cfg)

	s := &syncer{cfg: cfg, logger: logger, path: path, edits: edits}
	observe := func(topic string, ev crdt.Event) {
		if ev.Structural() {
			s.structural++
		} else {
			s.narrow++
		}
		logger.Debug("document changed", "topic", topic, "path", ev.Path, "keys", ev.Keys)
	}

	if text {
		doc := document.NewText()
		doc.Observe(observe)
		if err := doc.SetPath(path); err != nil {
			logger.Error("set path", "error", err)
			return 1
		}
		s.text = doc
	} else {
		doc := document.NewNotebook(document.WithDiagnostics(func(d reconcile.Diagnostic) {
			logger.Warn("duplicate cell identity repaired",
				"old_id", d.OldID, "new_id", d.NewID, "index", d.Index, "fields", d.Fields)
		}))
		doc.Observe(observe)
		if err := doc.SetPath(path); err != nil {
			logger.Error("set path", "error", err)
			return 1
		}
		s.doc = doc
	}

	if err := s.once(); err != nil {
		logger.Error("reconcile", "file", path, "error", err)
		return 1
	}
	if !cfg.Sync.Watch {
		return 0
	}
	if err := s.watch(); err != nil && err != context.Canceled {
		logger.Error("watch", "file", path, "error", err)
		return 1
	}
	return 0
}

type syncer struct {
	cfg    *config.Config
	logger *slog.Logger
	doc    *document.Notebook
	text   *document.Text
	path   string
	edits  editList

	// Per-round event tallies, reset by once.
	structural int
	narrow     int
}

// once reads the file, applies any requested JSON edits, and reconciles
// the live document against the result.
func (s *syncer) once() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}
	s.structural, s.narrow = 0, 0

	if s.text != nil {
		return s.onceText(data)
	}
	for _, edit := range s.edits {
		path, value, ok := strings.Cut(edit, "=")
		if !ok {
			return fmt.Errorf("malformed edit %q, want path=value", edit)
		}
		if data, err = sjson.SetBytes(data, path, value); err != nil {
			return fmt.Errorf("applying edit %q: %w", edit, err)
		}
	}
	value, err := document.DecodeNotebook(data)
	if err != nil {
		return err
	}
	start := time.Now()
	applied, err := s.doc.Set(value)
	if err != nil {
		return err
	}
	s.logger.Info("reconciled",
		"file", s.path,
		"applied", applied,
		"cells", s.doc.CellNumber(),
		"narrow_events", s.narrow,
		"structural_events", s.structural,
		"elapsed", time.Since(start))
	if s.cfg.Sync.Dump {
		out, err := document.EncodeNotebook(s.doc.Get())
		if err != nil {
			return err
		}
		fmt.Println(string(out))
	}
	return nil
}

// onceText reconciles a plain text document against the file content.
func (s *syncer) onceText(data []byte) error {
	start := time.Now()
	applied, err := s.text.Set(string(data))
	if err != nil {
		return err
	}
	s.logger.Info("reconciled",
		"file", s.path,
		"applied", applied,
		"bytes", len(data),
		"narrow_events", s.narrow,
		"structural_events", s.structural,
		"elapsed", time.Since(start))
	if s.cfg.Sync.Dump {
		fmt.Println(s.text.Get())
	}
	return nil
}

// watch re-runs once on every debounced file change until interrupted.
func (s *syncer) watch() error {
	w, err := config.NewWatcher(s.path, time.Duration(s.cfg.Sync.DebounceMS)*time.Millisecond)
	if err != nil {
		return err
	}
	defer w.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s.logger.Info("watching", "file", s.path)
	return w.Run(ctx, func() {
		if err := s.once(); err != nil {
			s.logger.Error("reconcile", "file", s.path, "error", err)
		}
	})
}
