package document

import (
	"context"

	"github.com/dshills/coalesce/internal/crdt"
	"github.com/dshills/coalesce/internal/reconcile"
)

// Default notebook interchange format version.
const (
	NBFormatMajor = 4
	NBFormatMinor = 5
)

// Notebook is a structured notebook document: format versions and
// document-level metadata under one root, the ordered cell list under
// another. Set reconciles rather than rebuilds, so cells whose content did
// not change keep their live handles and observers across the call.
type Notebook struct {
	base
	meta  *crdt.Map
	cells *crdt.Array
	diag  reconcile.DiagnosticFunc
}

// NotebookOption configures a Notebook.
type NotebookOption func(*Notebook)

// WithDiagnostics routes duplicate-identity repair warnings to fn.
func WithDiagnostics(fn reconcile.DiagnosticFunc) NotebookOption {
	return func(n *Notebook) { n.diag = fn }
}

// NewNotebook constructs an empty notebook document.
func NewNotebook(opts ...NotebookOption) *Notebook {
	b := newBase()
	n := &Notebook{
		base:  b,
		meta:  b.tree.GetMap("meta"),
		cells: b.tree.GetArray("cells"),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Version returns the document schema version.
func (d *Notebook) Version() string { return "2.0.0" }

// Cells exposes the live cell array.
func (d *Notebook) Cells() *crdt.Array { return d.cells }

// Meta exposes the notebook-level map.
func (d *Notebook) Meta() *crdt.Map { return d.meta }

// CellNumber returns the number of cells.
func (d *Notebook) CellNumber() int { return d.cells.Len() }

// GetCell returns the plain projection of one cell, with whole-valued
// floats cast back to int and the live-only execution state removed. Cell
// ids are stripped for notebook formats 4.0 through 4.4, which predate
// them.
func (d *Notebook) GetCell(index int) (map[string]any, error) {
	v, err := d.cells.Get(index)
	if err != nil {
		return nil, err
	}
	live, ok := v.(*crdt.Map)
	if !ok {
		return nil, crdt.ErrIndexOutOfRange
	}
	cell, _ := CastInts(live.ToMap()).(map[string]any)
	delete(cell, "execution_state")
	if d.stripIDs() {
		delete(cell, "id")
	}
	switch cell["cell_type"] {
	case "raw", "markdown":
		if att, ok := cell["attachments"].(map[string]any); ok && len(att) == 0 {
			delete(cell, "attachments")
		}
	}
	return cell, nil
}

// SetCell replaces the cell at index with a freshly constructed one. This
// is a structural replacement; use Set for identity-preserving updates.
func (d *Notebook) SetCell(index int, value map[string]any) error {
	cell := d.buildCell(value)
	return d.tree.Transact(func() error {
		if err := d.cells.Delete(index); err != nil {
			return err
		}
		return d.cells.Insert(index, cell)
	})
}

// AppendCell appends a freshly constructed cell.
func (d *Notebook) AppendCell(value map[string]any) error {
	return d.cells.Append(d.buildCell(value))
}

// CreateCell constructs a detached live cell from a plain value, minting an
// identity when absent. The cell is not added to the notebook; insert it
// through the cells array, or use AppendCell/SetCell directly.
func (d *Notebook) CreateCell(value map[string]any) *crdt.Map {
	return d.buildCell(value)
}

func (d *Notebook) buildCell(value map[string]any) *crdt.Map {
	spec := reconcile.NormalizeCellSpec(value)
	if id, _ := spec["id"].(string); id == "" {
		spec["id"] = reconcile.MintCellID()
	}
	return reconcile.BuildCell(spec)
}

// Get returns the wire-format projection of the notebook: cells, metadata
// and format version integers.
func (d *Notebook) Get() map[string]any {
	meta, _ := CastInts(d.meta.ToMap()).(map[string]any)
	cells := make([]any, 0, d.cells.Len())
	for i := 0; i < d.cells.Len(); i++ {
		cell, err := d.GetCell(i)
		if err != nil {
			continue
		}
		cells = append(cells, cell)
	}
	metadata, ok := meta["metadata"].(map[string]any)
	if !ok {
		metadata = map[string]any{}
	}
	return map[string]any{
		"cells":          cells,
		"metadata":       metadata,
		"nbformat":       intValue(meta["nbformat"], 0),
		"nbformat_minor": intValue(meta["nbformat_minor"], 0),
	}
}

// Set reconciles the notebook to the given wire-format value and reports
// whether anything changed. Unchanged cells keep their handles; setting
// back exactly what Get returned is silent.
func (d *Notebook) Set(value map[string]any) (bool, error) {
	rec, cleanup := d.planSet(value)
	if !cleanup {
		return rec.Run()
	}
	err := d.tree.Transact(func() error {
		if err := d.cleanState(); err != nil {
			return err
		}
		_, err := rec.Run()
		return err
	})
	return true, err
}

// ASet is Set on the yielding driver, producing identical final state and
// notifications one step at a time.
func (d *Notebook) ASet(ctx context.Context, value map[string]any, yield reconcile.YieldFunc) (bool, error) {
	rec, cleanup := d.planSet(value)
	if !cleanup {
		return rec.RunYield(ctx, yield)
	}
	err := d.tree.Transact(func() error {
		if err := d.cleanState(); err != nil {
			return err
		}
		_, err := rec.RunYield(ctx, yield)
		return err
	})
	return true, err
}

// planSet builds the reconciliation plan and reports whether stale state
// keys need clearing first. State cleanup runs outside the reconcilers,
// which never touch the state root.
func (d *Notebook) planSet(value map[string]any) (*reconcile.Reconciliation, bool) {
	snap := d.snapshot(value)
	rec := reconcile.NewNotebook(d.meta, d.cells, snap, reconcile.WithDiagnostics(d.diag))
	for _, k := range d.state.Keys() {
		if k != "dirty" && k != "path" {
			return rec, true
		}
	}
	return rec, false
}

// cleanState drops every state key except the dirty flag and the path.
func (d *Notebook) cleanState() error {
	for _, k := range d.state.Keys() {
		if k == "dirty" || k == "path" {
			continue
		}
		if err := d.state.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

// snapshot converts a wire-format value into the reconciliation target,
// applying the interchange defaults: format 4.5, a named-but-empty
// language info and kernelspec, and a single empty trusted code cell when
// no cells are given.
func (d *Notebook) snapshot(value map[string]any) reconcile.Snapshot {
	metadata, _ := value["metadata"].(map[string]any)
	withDefaults := map[string]any{
		"language_info": map[string]any{"name": ""},
		"kernelspec":    map[string]any{"name": "", "display_name": ""},
	}
	for k, v := range metadata {
		withDefaults[k] = v
	}
	cells := cellSpecs(value["cells"])
	if len(cells) == 0 {
		cells = []map[string]any{{
			"cell_type":       "code",
			"execution_count": nil,
			// An auto-created empty code cell without outputs ought to be
			// trusted.
			"metadata": map[string]any{"trusted": true},
			"outputs":  []any{},
			"source":   "",
			"id":       reconcile.MintCellID(),
		}}
	}
	return reconcile.Snapshot{
		Cells:         cells,
		Metadata:      withDefaults,
		NBFormat:      intValue(value["nbformat"], NBFormatMajor),
		NBFormatMinor: intValue(value["nbformat_minor"], NBFormatMinor),
	}
}

// Observe subscribes fn to state, metadata and cell changes, replacing any
// previous registration. Metadata and cells are observed deep, so a
// single-field cell patch surfaces as a narrow event scoped to that field
// rather than an array-level one.
func (d *Notebook) Observe(fn Observer) {
	d.Unobserve()
	d.observeState(fn)
	metaToken := d.meta.ObserveDeep(func(ev crdt.Event) { fn("meta", ev) })
	d.track(func() { d.meta.Unobserve(metaToken) })
	cellToken := d.cells.ObserveDeep(func(ev crdt.Event) { fn("cells", ev) })
	d.track(func() { d.cells.Unobserve(cellToken) })
}

// stripIDs reports whether the current format version predates cell ids.
func (d *Notebook) stripIDs() bool {
	major, _ := d.meta.Get("nbformat")
	minor, _ := d.meta.Get("nbformat_minor")
	return intValue(major, 0) == 4 && intValue(minor, 0) <= 4
}

// cellSpecs coerces the wire-format cells value to a list of cell maps.
func cellSpecs(v any) []map[string]any {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(list))
	for _, item := range list {
		if cell, ok := item.(map[string]any); ok {
			out = append(out, cell)
		}
	}
	return out
}

// intValue reads an int from a wire or substrate numeric value.
func intValue(v any, fallback int) int {
	switch x := v.(type) {
	case int:
		return x
	case float64:
		return int(x)
	}
	return fallback
}
