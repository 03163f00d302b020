package document

import (
	"bytes"

	"github.com/dshills/coalesce/internal/crdt"
)

// Blob is an opaque binary document. The payload lives under a single key
// of the source root so observers see one consolidated change per set.
type Blob struct {
	base
	source *crdt.Map
}

// NewBlob constructs an empty blob document.
func NewBlob() *Blob {
	b := newBase()
	return &Blob{base: b, source: b.tree.GetMap("source")}
}

// Version returns the document schema version.
func (d *Blob) Version() string { return "2.0.0" }

// Get returns the payload, empty when never set.
func (d *Blob) Get() []byte {
	v, _ := d.source.Get("bytes")
	p, _ := v.([]byte)
	return p
}

// Set replaces the payload and reports whether anything changed. Setting
// the current payload back is silent.
func (d *Blob) Set(value []byte) (bool, error) {
	if bytes.Equal(d.Get(), value) {
		return false, nil
	}
	if err := d.source.Set("bytes", value); err != nil {
		return false, err
	}
	return true, nil
}

// Observe subscribes fn to state and content changes, replacing any
// previous registration.
func (d *Blob) Observe(fn Observer) {
	d.Unobserve()
	d.observeState(fn)
	token := d.source.Observe(func(ev crdt.Event) { fn("source", ev) })
	d.track(func() { d.source.Unobserve(token) })
}
