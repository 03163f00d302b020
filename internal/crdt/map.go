package crdt

import "sort"

// Map is a string-keyed, order-irrelevant container. Values are plain
// substrate values or nested handles.
type Map struct {
	h       handle
	entries map[string]any
}

// NewMap creates a detached map handle seeded with the normalized content
// of init (which may be nil). Handle values in init stay live children.
func NewMap(init map[string]any) *Map {
	m := &Map{entries: make(map[string]any, len(init))}
	m.h.kind = KindMap
	m.h.owner = m
	for k, v := range init {
		m.entries[k] = Normalize(v)
	}
	return m
}

// Kind returns KindMap.
func (m *Map) Kind() Kind { return KindMap }

// Tree returns the tree this handle is attached to, or nil when detached.
func (m *Map) Tree() *Tree { return m.h.tree }

// Len returns the number of keys.
func (m *Map) Len() int { return len(m.entries) }

// Get returns the stored value for key: a plain value or a nested handle.
func (m *Map) Get(key string) (any, bool) {
	v, ok := m.entries[key]
	return v, ok
}

// Keys returns the keys in sorted order.
func (m *Map) Keys() []string {
	keys := make([]string, 0, len(m.entries))
	for k := range m.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Set stores a value under key, replacing (and detaching) any previous
// handle value. Detached handles passed as v become children of this map.
func (m *Map) Set(key string, v any) error {
	if !m.h.attached() {
		return ErrDetached
	}
	v = Normalize(v)
	if err := claimable(v); err != nil {
		return err
	}
	m.h.tree.withTx(&m.h, MapChanged, func(ev *Event) {
		if old, ok := m.entries[key]; ok {
			detachValue(old)
		}
		attachValue(m.h.tree, &m.h, key, v)
		m.entries[key] = v
		ev.Keys = appendKey(ev.Keys, key)
	})
	return nil
}

// Delete removes key. Deleting an absent key is a no-op.
func (m *Map) Delete(key string) error {
	if !m.h.attached() {
		return ErrDetached
	}
	old, ok := m.entries[key]
	if !ok {
		return nil
	}
	m.h.tree.withTx(&m.h, MapChanged, func(ev *Event) {
		detachValue(old)
		delete(m.entries, key)
		ev.Keys = appendKey(ev.Keys, key)
	})
	return nil
}

// Clear removes all keys. An already-empty map produces no event.
func (m *Map) Clear() error {
	if !m.h.attached() {
		return ErrDetached
	}
	if len(m.entries) == 0 {
		return nil
	}
	m.h.tree.withTx(&m.h, MapChanged, func(ev *Event) {
		for k, v := range m.entries {
			detachValue(v)
			delete(m.entries, k)
			ev.Keys = appendKey(ev.Keys, k)
		}
	})
	return nil
}

// ToMap returns the plain-value projection of the map, materializing any
// nested handles.
func (m *Map) ToMap() map[string]any {
	out := make(map[string]any, len(m.entries))
	for k, v := range m.entries {
		out[k] = materialize(v)
	}
	return out
}

// Observe registers a callback for changes to this handle only.
func (m *Map) Observe(fn func(Event)) Subscription { return m.h.observe(fn, false) }

// ObserveDeep registers a callback for changes to this handle and every
// handle nested below it.
func (m *Map) ObserveDeep(fn func(Event)) Subscription { return m.h.observe(fn, true) }

// Unobserve removes a registration; unknown tokens are ignored.
func (m *Map) Unobserve(token Subscription) { m.h.unobserve(token) }

// claimable verifies that any handle in v is detached and free to adopt.
func claimable(v any) error {
	switch c := v.(type) {
	case *Text:
		if c.h.attached() {
			return ErrAttached
		}
	case *Map:
		if c.h.attached() {
			return ErrAttached
		}
	case *Array:
		if c.h.attached() {
			return ErrAttached
		}
	}
	return nil
}

// appendKey records a changed key once per transaction event.
func appendKey(keys []string, key string) []string {
	for _, k := range keys {
		if k == key {
			return keys
		}
	}
	return append(keys, key)
}
