package document

import (
	"context"

	"github.com/dshills/coalesce/internal/crdt"
	"github.com/dshills/coalesce/internal/reconcile"
)

// Text is a plain Unicode text document backed by a single text root.
type Text struct {
	base
	source *crdt.Text
}

// NewText constructs an empty text document.
func NewText() *Text {
	b := newBase()
	return &Text{base: b, source: b.tree.GetText("source")}
}

// Version returns the document schema version.
func (d *Text) Version() string { return "1.0.0" }

// Source exposes the content root for callers that patch it directly.
func (d *Text) Source() *crdt.Text { return d.source }

// Get returns the document content.
func (d *Text) Get() string { return d.source.String() }

// Set reconciles the content to value and reports whether anything
// changed. Setting the current content back is silent.
func (d *Text) Set(value string) (bool, error) {
	return reconcile.Text(d.source, value)
}

// ASet is Set on the yielding driver: the same edits, the same final
// content, applied one step at a time so a shared run loop is never held
// for the whole reconciliation.
func (d *Text) ASet(ctx context.Context, value string, yield reconcile.YieldFunc) (bool, error) {
	return reconcile.NewText(d.source, value).RunYield(ctx, yield)
}

// Observe subscribes fn to state and content changes, replacing any
// previous registration.
func (d *Text) Observe(fn Observer) {
	d.Unobserve()
	d.observeState(fn)
	token := d.source.Observe(func(ev crdt.Event) { fn("source", ev) })
	d.track(func() { d.source.Unobserve(token) })
}
