package crdt

import (
	"sort"
	"sync"
	"sync/atomic"
)

// Kind identifies the type of a handle.
type Kind uint8

const (
	// KindText is an ordered Unicode scalar sequence.
	KindText Kind = iota

	// KindMap is a string-keyed, order-irrelevant container.
	KindMap

	// KindArray is an ordered, index-addressed container.
	KindArray
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindMap:
		return "map"
	case KindArray:
		return "array"
	default:
		return "unknown"
	}
}

// Tree is the root of a shared document: a set of named root handles plus
// the transaction and observation machinery they share.
type Tree struct {
	mu    sync.Mutex
	depth int

	roots map[string]any // *Text | *Map | *Array

	// pending accumulates at most one event per handle per transaction,
	// in first-mutation order.
	pending []*pendingEvent
}

// subCounter feeds Subscription tokens; process-wide so tokens stay unique
// across attach/detach cycles.
var subCounter atomic.Uint64

type pendingEvent struct {
	target *handle
	event  Event
}

// NewTree creates an empty tree.
func NewTree() *Tree {
	return &Tree{roots: make(map[string]any)}
}

// GetText returns the named root text handle, creating it if needed.
func (t *Tree) GetText(name string) *Text {
	if h, ok := t.roots[name]; ok {
		return h.(*Text)
	}
	txt := NewText("")
	txt.h.attach(t, nil, name)
	t.roots[name] = txt
	return txt
}

// GetMap returns the named root map handle, creating it if needed.
func (t *Tree) GetMap(name string) *Map {
	if h, ok := t.roots[name]; ok {
		return h.(*Map)
	}
	m := NewMap(nil)
	m.h.attach(t, nil, name)
	t.roots[name] = m
	return m
}

// GetArray returns the named root array handle, creating it if needed.
func (t *Tree) GetArray(name string) *Array {
	if h, ok := t.roots[name]; ok {
		return h.(*Array)
	}
	a := NewArray(nil)
	a.h.attach(t, nil, name)
	t.roots[name] = a
	return a
}

// Transact runs fn inside a transaction. Nested calls join the outer
// transaction; buffered change events are delivered to observers only when
// the outermost transaction commits, and only if any mutation occurred.
// The transaction is released on all exit paths, including panics.
func (t *Tree) Transact(fn func() error) error {
	t.Begin()
	defer t.Commit()
	return fn()
}

// Begin opens a transaction (or joins the current one). Every Begin must be
// paired with a Commit; prefer Transact, which guarantees the pairing.
func (t *Tree) Begin() {
	if t.depth == 0 {
		t.mu.Lock()
	}
	t.depth++
}

// Commit closes the innermost transaction. Closing the outermost
// transaction delivers the buffered events.
func (t *Tree) Commit() {
	t.depth--
	if t.depth > 0 {
		return
	}
	events := t.pending
	t.pending = nil
	t.mu.Unlock()
	deliver(events)
}

// InTransaction reports whether a transaction is currently open.
func (t *Tree) InTransaction() bool {
	return t.depth > 0
}

// withTx runs a mutation on an attached handle inside an implicit
// transaction, recording its changes into the handle's pending event.
func (t *Tree) withTx(h *handle, kind EventKind, mutate func(ev *Event)) {
	t.Begin()
	defer t.Commit()
	mutate(t.eventFor(h, kind))
}

// eventFor returns the pending event for a handle, creating it on first
// mutation within the current transaction.
func (t *Tree) eventFor(h *handle, kind EventKind) *Event {
	for _, p := range t.pending {
		if p.target == h {
			return &p.event
		}
	}
	p := &pendingEvent{target: h, event: Event{Kind: kind}}
	t.pending = append(t.pending, p)
	return &p.event
}

// deliver routes each buffered event to the shallow observers of its target
// and the deep observers of the target and every ancestor still reachable
// from a root. Events whose target was detached during the transaction are
// dropped.
func deliver(events []*pendingEvent) {
	for _, p := range events {
		if len(p.event.Keys) > 1 {
			sort.Strings(p.event.Keys)
		}
		path, ok := p.target.pathFromRoot()
		if !ok {
			continue
		}
		depth := 0
		for h := p.target; h != nil; h = h.parent {
			for _, ob := range h.observersInOrder() {
				if h != p.target && !ob.deep {
					continue
				}
				ev := p.event
				ev.Path = path[len(path)-depth:]
				ob.fn(ev)
			}
			depth++
		}
	}
}

// Normalize converts a plain snapshot value into the substrate's native
// value model: all numbers become float64 (the substrate, like the wire
// format it mirrors, natively represents numbers as floating point), nested
// containers become map[string]any and []any, and detached handles pass
// through untouched.
func Normalize(v any) any {
	switch x := v.(type) {
	case nil, bool, string, []byte, float64:
		return x
	case *Text, *Map, *Array:
		return x
	case int:
		return float64(x)
	case int8:
		return float64(x)
	case int16:
		return float64(x)
	case int32:
		return float64(x)
	case int64:
		return float64(x)
	case uint:
		return float64(x)
	case uint8:
		return float64(x)
	case uint16:
		return float64(x)
	case uint32:
		return float64(x)
	case uint64:
		return float64(x)
	case float32:
		return float64(x)
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			out[k] = Normalize(val)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, val := range x {
			out[i] = Normalize(val)
		}
		return out
	case []string:
		out := make([]any, len(x))
		for i, s := range x {
			out[i] = s
		}
		return out
	case []map[string]any:
		out := make([]any, len(x))
		for i, m := range x {
			out[i] = Normalize(m)
		}
		return out
	default:
		return x
	}
}

// handle carries the bookkeeping shared by all handle types: tree
// attachment, parent linkage for path computation, and observers.
type handle struct {
	tree   *Tree
	parent *handle

	// key is the map key or root name this handle lives under. Array
	// children locate themselves by scanning the parent instead, because
	// their index shifts as siblings come and go.
	key string

	kind  Kind
	owner any // back-pointer to the typed handle

	subs     map[Subscription]observer
	subOrder []Subscription
}

// attach wires a detached handle (and, via the typed owner, its nested
// content) into a tree.
func (h *handle) attach(t *Tree, parent *handle, key string) {
	h.tree = t
	h.parent = parent
	h.key = key
	switch o := h.owner.(type) {
	case *Map:
		for k, v := range o.entries {
			attachValue(t, h, k, v)
		}
	case *Array:
		for _, v := range o.items {
			attachValue(t, h, "", v)
		}
	}
}

// attachValue attaches v if it is a handle; plain values need no wiring.
func attachValue(t *Tree, parent *handle, key string, v any) {
	switch c := v.(type) {
	case *Text:
		c.h.attach(t, parent, key)
	case *Map:
		c.h.attach(t, parent, key)
	case *Array:
		c.h.attach(t, parent, key)
	}
}

// detach severs a handle removed from its parent. The handle keeps its
// content for already-held references but rejects further mutation.
func detachValue(v any) {
	switch c := v.(type) {
	case *Text:
		c.h.tree = nil
		c.h.parent = nil
	case *Map:
		c.h.tree = nil
		c.h.parent = nil
	case *Array:
		c.h.tree = nil
		c.h.parent = nil
	}
}

// attached reports whether the handle is reachable through a tree.
func (h *handle) attached() bool {
	return h.tree != nil
}

// pathFromRoot returns the path segments from the handle's root to the
// handle itself. ok is false when the handle (or an ancestor) was detached.
func (h *handle) pathFromRoot() ([]any, bool) {
	if !h.attached() {
		return nil, false
	}
	var rev []any
	for cur := h; cur.parent != nil; cur = cur.parent {
		switch cur.parent.kind {
		case KindMap:
			rev = append(rev, cur.key)
		case KindArray:
			idx := cur.parent.owner.(*Array).indexOfHandle(cur.owner)
			if idx < 0 {
				return nil, false
			}
			rev = append(rev, idx)
		default:
			return nil, false
		}
		if !cur.parent.attached() {
			return nil, false
		}
	}
	path := make([]any, len(rev))
	for i, seg := range rev {
		path[len(rev)-1-i] = seg
	}
	return path, true
}

// observe registers a callback. Deep observers also receive events for
// every descendant handle.
func (h *handle) observe(fn func(Event), deep bool) Subscription {
	if h.subs == nil {
		h.subs = make(map[Subscription]observer)
	}
	token := Subscription{id: subCounter.Add(1)}
	h.subs[token] = observer{fn: fn, deep: deep}
	h.subOrder = append(h.subOrder, token)
	return token
}

// unobserve removes a registration. Removing an unknown or already-removed
// token is a no-op.
func (h *handle) unobserve(token Subscription) {
	if h.subs == nil {
		return
	}
	if _, ok := h.subs[token]; !ok {
		return
	}
	delete(h.subs, token)
	for i, t := range h.subOrder {
		if t == token {
			h.subOrder = append(h.subOrder[:i], h.subOrder[i+1:]...)
			break
		}
	}
}

func (h *handle) observersInOrder() []observer {
	if len(h.subOrder) == 0 {
		return nil
	}
	out := make([]observer, 0, len(h.subOrder))
	for _, token := range h.subOrder {
		if ob, ok := h.subs[token]; ok {
			out = append(out, ob)
		}
	}
	return out
}

// materialize converts a stored value to its plain projection: nested
// handles become strings, maps and lists.
func materialize(v any) any {
	switch c := v.(type) {
	case *Text:
		return c.String()
	case *Map:
		return c.ToMap()
	case *Array:
		return c.ToList()
	case map[string]any:
		out := make(map[string]any, len(c))
		for k, val := range c {
			out[k] = materialize(val)
		}
		return out
	case []any:
		out := make([]any, len(c))
		for i, val := range c {
			out[i] = materialize(val)
		}
		return out
	default:
		return c
	}
}
