package crdt

// Array is an ordered, index-addressed container. There is deliberately no
// atomic move operation: callers that reorder elements do so by delete and
// reinsert, which is the portable contract across substrate versions.
type Array struct {
	h     handle
	items []any
}

// NewArray creates a detached array handle seeded with the normalized
// content of init (which may be nil).
func NewArray(init []any) *Array {
	a := &Array{items: make([]any, 0, len(init))}
	a.h.kind = KindArray
	a.h.owner = a
	for _, v := range init {
		a.items = append(a.items, Normalize(v))
	}
	return a
}

// Kind returns KindArray.
func (a *Array) Kind() Kind { return KindArray }

// Tree returns the tree this handle is attached to, or nil when detached.
func (a *Array) Tree() *Tree { return a.h.tree }

// Len returns the number of elements.
func (a *Array) Len() int { return len(a.items) }

// Get returns the element at index i: a plain value or a nested handle.
func (a *Array) Get(i int) (any, error) {
	if i < 0 || i >= len(a.items) {
		return nil, ErrIndexOutOfRange
	}
	return a.items[i], nil
}

// Insert places v at index i, shifting later elements right. Detached
// handles passed as v become children of this array.
func (a *Array) Insert(i int, v any) error {
	if !a.h.attached() {
		return ErrDetached
	}
	if i < 0 || i > len(a.items) {
		return ErrIndexOutOfRange
	}
	v = Normalize(v)
	if err := claimable(v); err != nil {
		return err
	}
	a.h.tree.withTx(&a.h, ArrayChanged, func(ev *Event) {
		attachValue(a.h.tree, &a.h, "", v)
		a.items = append(a.items, nil)
		copy(a.items[i+1:], a.items[i:])
		a.items[i] = v
		ev.Edits = append(ev.Edits, Edit{Op: EditInsert, Index: i, Length: 1})
	})
	return nil
}

// Append places v after the last element.
func (a *Array) Append(v any) error {
	return a.Insert(len(a.items), v)
}

// Delete removes the element at index i, shifting later elements left. A
// removed handle element is detached and rejects further mutation.
func (a *Array) Delete(i int) error {
	if !a.h.attached() {
		return ErrDetached
	}
	if i < 0 || i >= len(a.items) {
		return ErrIndexOutOfRange
	}
	a.h.tree.withTx(&a.h, ArrayChanged, func(ev *Event) {
		detachValue(a.items[i])
		a.items = append(a.items[:i], a.items[i+1:]...)
		ev.Edits = append(ev.Edits, Edit{Op: EditDelete, Index: i, Length: 1})
	})
	return nil
}

// Clear removes all elements. An already-empty array produces no event.
func (a *Array) Clear() error {
	if !a.h.attached() {
		return ErrDetached
	}
	if len(a.items) == 0 {
		return nil
	}
	a.h.tree.withTx(&a.h, ArrayChanged, func(ev *Event) {
		for _, v := range a.items {
			detachValue(v)
		}
		ev.Edits = append(ev.Edits, Edit{Op: EditDelete, Index: 0, Length: len(a.items)})
		a.items = nil
	})
	return nil
}

// ToList returns the plain-value projection of the array, materializing
// any nested handles.
func (a *Array) ToList() []any {
	out := make([]any, len(a.items))
	for i, v := range a.items {
		out[i] = materialize(v)
	}
	return out
}

// Observe registers a callback for changes to this handle only.
func (a *Array) Observe(fn func(Event)) Subscription { return a.h.observe(fn, false) }

// ObserveDeep registers a callback for changes to this handle and every
// handle nested below it.
func (a *Array) ObserveDeep(fn func(Event)) Subscription { return a.h.observe(fn, true) }

// Unobserve removes a registration; unknown tokens are ignored.
func (a *Array) Unobserve(token Subscription) { a.h.unobserve(token) }

// indexOfHandle locates a nested handle by identity.
func (a *Array) indexOfHandle(owner any) int {
	for i, v := range a.items {
		if v == owner {
			return i
		}
	}
	return -1
}
