package document

import (
	"github.com/dshills/coalesce/internal/crdt"
)

// Observer receives document change notifications. The topic names the
// root that changed ("state", "source", "meta", "cells").
type Observer func(topic string, ev crdt.Event)

// base carries what every document kind shares: the backing tree, the
// state root, and the subscription table.
type base struct {
	tree  *crdt.Tree
	state *crdt.Map
	subs  []func()
}

func newBase() base {
	tree := crdt.NewTree()
	return base{tree: tree, state: tree.GetMap("state")}
}

// Tree exposes the backing shared tree.
func (b *base) Tree() *crdt.Tree { return b.tree }

// State exposes the state root. It holds at least the dirty flag and the
// document path; callers mutate it, reconciliation never does.
func (b *base) State() *crdt.Map { return b.state }

// Dirty reports whether the document has uncommitted changes.
func (b *base) Dirty() bool {
	v, _ := b.state.Get("dirty")
	d, _ := v.(bool)
	return d
}

// SetDirty flags or clears uncommitted changes. Writing the current value
// again is silent.
func (b *base) SetDirty(dirty bool) error {
	return b.setStateKey("dirty", dirty)
}

// Path returns the document's external identity.
func (b *base) Path() string {
	v, _ := b.state.Get("path")
	p, _ := v.(string)
	return p
}

// SetPath records the document's external identity.
func (b *base) SetPath(path string) error {
	return b.setStateKey("path", path)
}

// Hash returns the content hash recorded by the contents manager.
func (b *base) Hash() string {
	v, _ := b.state.Get("hash")
	h, _ := v.(string)
	return h
}

// SetHash records the content hash.
func (b *base) SetHash(hash string) error {
	return b.setStateKey("hash", hash)
}

func (b *base) setStateKey(key string, v any) error {
	if cur, ok := b.state.Get(key); ok && cur == v {
		return nil
	}
	return b.state.Set(key, v)
}

// Unobserve removes every registered callback. Calling it with nothing
// registered is a no-op, and it is safe to call repeatedly.
func (b *base) Unobserve() {
	for _, off := range b.subs {
		off()
	}
	b.subs = nil
}

// track records an unsubscribe closure for Unobserve to run.
func (b *base) track(off func()) {
	b.subs = append(b.subs, off)
}

// observeState wires the state root to the observer under the "state"
// topic.
func (b *base) observeState(fn Observer) {
	token := b.state.Observe(func(ev crdt.Event) { fn("state", ev) })
	b.track(func() { b.state.Unobserve(token) })
}
