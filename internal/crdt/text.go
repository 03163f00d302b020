package crdt

import "unicode/utf8"

// Text is an ordered Unicode scalar sequence addressed by byte offset over
// its UTF-8 encoding. Positions that would split a multi-byte encoding unit
// are rejected.
type Text struct {
	h   handle
	buf []byte
}

// NewText creates a detached text handle with initial content. It becomes
// live once inserted into an attached Map or Array (or obtained as a root
// via Tree.GetText).
func NewText(s string) *Text {
	t := &Text{buf: []byte(s)}
	t.h.kind = KindText
	t.h.owner = t
	return t
}

// Kind returns KindText.
func (t *Text) Kind() Kind { return KindText }

// Tree returns the tree this handle is attached to, or nil when detached.
func (t *Text) Tree() *Tree { return t.h.tree }

// Len returns the content length in bytes.
func (t *Text) Len() int { return len(t.buf) }

// String returns the materialized content.
func (t *Text) String() string { return string(t.buf) }

// Insert places s at byte position pos.
func (t *Text) Insert(pos int, s string) error {
	if !t.h.attached() {
		return ErrDetached
	}
	if pos < 0 || pos > len(t.buf) {
		return ErrIndexOutOfRange
	}
	if !t.boundary(pos) {
		return ErrSplitCodepoint
	}
	if s == "" {
		return nil
	}
	t.h.tree.withTx(&t.h, TextChanged, func(ev *Event) {
		t.buf = append(t.buf[:pos], append([]byte(s), t.buf[pos:]...)...)
		ev.Edits = append(ev.Edits, Edit{Op: EditInsert, Index: pos, Length: len(s)})
	})
	return nil
}

// Delete removes the byte range [start, end).
func (t *Text) Delete(start, end int) error {
	if !t.h.attached() {
		return ErrDetached
	}
	if start > end {
		return ErrInvalidRange
	}
	if start < 0 || end > len(t.buf) {
		return ErrIndexOutOfRange
	}
	if !t.boundary(start) || !t.boundary(end) {
		return ErrSplitCodepoint
	}
	if start == end {
		return nil
	}
	t.h.tree.withTx(&t.h, TextChanged, func(ev *Event) {
		t.buf = append(t.buf[:start], t.buf[end:]...)
		ev.Edits = append(ev.Edits, Edit{Op: EditDelete, Index: start, Length: end - start})
	})
	return nil
}

// Clear removes all content.
func (t *Text) Clear() error {
	return t.Delete(0, len(t.buf))
}

// Observe registers a callback for changes to this handle.
func (t *Text) Observe(fn func(Event)) Subscription { return t.h.observe(fn, false) }

// Unobserve removes a registration; unknown tokens are ignored.
func (t *Text) Unobserve(token Subscription) { t.h.unobserve(token) }

// boundary reports whether pos is a valid UTF-8 boundary in the buffer.
func (t *Text) boundary(pos int) bool {
	if pos == 0 || pos == len(t.buf) {
		return true
	}
	return utf8.RuneStart(t.buf[pos])
}
