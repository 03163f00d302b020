package crdt

// EventKind identifies which handle kind produced a change event.
type EventKind uint8

const (
	// TextChanged indicates a Text handle changed.
	TextChanged EventKind = iota

	// MapChanged indicates a Map handle changed.
	MapChanged

	// ArrayChanged indicates an Array handle changed.
	ArrayChanged
)

// String returns the event kind name.
func (k EventKind) String() string {
	switch k {
	case TextChanged:
		return "text"
	case MapChanged:
		return "map"
	case ArrayChanged:
		return "array"
	default:
		return "unknown"
	}
}

// EditOp is the type of a positional edit within a text or array change.
type EditOp uint8

const (
	// EditInsert indicates content was inserted.
	EditInsert EditOp = iota

	// EditDelete indicates content was removed.
	EditDelete
)

// String returns the edit op name.
func (op EditOp) String() string {
	switch op {
	case EditInsert:
		return "insert"
	case EditDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Edit is one positional mutation applied to a text or array handle during
// a transaction. Index and Length are byte offsets for text and element
// indices for arrays, both in the coordinate space current when the edit
// was applied.
type Edit struct {
	Op     EditOp
	Index  int
	Length int
}

// Event describes the consolidated changes one handle accumulated over a
// single committed transaction. A transaction produces at most one Event
// per changed handle, delivered in first-mutation order.
type Event struct {
	// Kind is the kind of the handle that changed.
	Kind EventKind

	// Path locates the changed handle relative to the observed handle:
	// string segments are map keys, int segments are array indices. Empty
	// when the observed handle itself changed.
	Path []any

	// Keys lists the changed map keys, sorted. Only set for MapChanged.
	Keys []string

	// Edits lists positional edits in application order. Only set for
	// TextChanged and ArrayChanged.
	Edits []Edit
}

// Structural reports whether the event describes a change to the observed
// handle itself rather than to a nested handle below it.
func (e Event) Structural() bool {
	return len(e.Path) == 0
}

// Subscription is an opaque token identifying one observer registration.
type Subscription struct {
	id uint64
}

type observer struct {
	fn   func(Event)
	deep bool
}
