package reconcile

import (
	"reflect"
	"sort"

	"github.com/dshills/coalesce/internal/crdt"
)

// Snapshot is the plain-value target for a notebook reconciliation.
type Snapshot struct {
	Cells         []map[string]any
	Metadata      map[string]any
	NBFormat      int
	NBFormatMinor int
}

// Cells plans and runs a cell-list reconciliation synchronously, bringing
// the live array to the desired list with identity-preserving edits. It
// reports whether anything was applied.
func Cells(arr *crdt.Array, desired []map[string]any, opts ...Option) (bool, error) {
	return NewCells(arr, desired, opts...).Run()
}

// NewCells plans a cell-list reconciliation for one of the drivers to run.
// The plan walks five phases, each broken into one-cell steps: heal and
// index the live array, match desired cells by identity with granular
// patching, sweep unretained live cells, place desired order, and trim any
// trailing surplus.
func NewCells(arr *crdt.Array, desired []map[string]any, opts ...Option) *Reconciliation {
	p := newPlan(arr.Tree())
	seedCellPhases(p, arr, desired, buildOptions(opts))
	return &Reconciliation{plan: p}
}

// NewNotebook plans a whole-notebook reconciliation: document metadata and
// format versions first (value-compared, written only on change), then the
// cell list. One plan, one transaction, one driver run.
func NewNotebook(meta *crdt.Map, cells *crdt.Array, snap Snapshot, opts ...Option) *Reconciliation {
	p := newPlan(cells.Tree())
	p.add(func(p *Plan) error {
		return reconcileMeta(p, meta, snap)
	})
	seedCellPhases(p, cells, snap.Cells, buildOptions(opts))
	return &Reconciliation{plan: p}
}

// reconcileMeta updates the notebook-level map key by key, skipping keys
// whose live value already equals the target.
func reconcileMeta(p *Plan, meta *crdt.Map, snap Snapshot) error {
	want := map[string]any{
		"nbformat":       float64(snap.NBFormat),
		"nbformat_minor": float64(snap.NBFormatMinor),
		"metadata":       crdt.Normalize(snap.Metadata),
	}
	if want["metadata"] == nil {
		want["metadata"] = map[string]any{}
	}
	current := meta.ToMap()
	for k, v := range want {
		if reflect.DeepEqual(current[k], v) {
			continue
		}
		p.ensureTx()
		if err := meta.Set(k, v); err != nil {
			return err
		}
	}
	return nil
}

// cellList carries the shared state of one cell-list reconciliation across
// its phase steps.
type cellList struct {
	arr   *crdt.Array
	opts  *Options
	specs []map[string]any

	desired  []*cellState
	index    map[string]*crdt.Map
	views    map[string]map[string]any
	retained map[string]bool
	swept    map[string]bool
}

// cellState tracks one desired cell through the passes.
type cellState struct {
	id       string
	spec     map[string]any
	retained bool
}

func seedCellPhases(p *Plan, arr *crdt.Array, desired []map[string]any, o *Options) {
	cl := &cellList{
		arr:      arr,
		opts:     o,
		specs:    desired,
		index:    map[string]*crdt.Map{},
		views:    map[string]map[string]any{},
		retained: map[string]bool{},
		swept:    map[string]bool{},
	}
	p.add(cl.startHeal)
}

// startHeal enqueues one heal step per live cell, then the match phase.
// Enumeration happens at run time so the plan sees the array as it is when
// the driver reaches this phase.
func (cl *cellList) startHeal(p *Plan) error {
	if cl.arr.Tree() == nil {
		return ErrNotAttached
	}
	for i := 0; i < cl.arr.Len(); i++ {
		i := i
		p.add(func(p *Plan) error { return cl.healStep(p, i) })
	}
	p.add(cl.startMatch)
	return nil
}

// healStep indexes the live cell at i by identity, first occurrence wins.
// A second occurrence of an id is externally introduced corruption: it is
// given a freshly minted identity on the spot and reported through the
// diagnostics channel with the field names on which the two copies differ.
func (cl *cellList) healStep(p *Plan, i int) error {
	cell, err := liveCell(cl.arr, i)
	if err != nil {
		return err
	}
	id := cellID(cell)
	first, dup := cl.index[id]
	if id != "" && !dup {
		cl.index[id] = cell
		cl.views[id] = cell.ToMap()
		return nil
	}
	fresh := cl.mintUnique()
	p.ensureTx()
	if err := cell.Set(fieldID, fresh); err != nil {
		return err
	}
	cl.index[fresh] = cell
	view := cell.ToMap()
	cl.views[fresh] = view
	if cl.opts.diagnostics != nil {
		var fields []string
		if first != nil {
			fields = differingFields(cl.views[id], view)
		}
		cl.opts.diagnostics(Diagnostic{OldID: id, NewID: fresh, Index: i, Fields: fields})
	}
	return nil
}

// startMatch normalizes the desired specs, mints identities where absent,
// and enqueues one match step per desired cell, then the deletion phase.
// A freshly minted identity colliding with any live or desired identity is
// a fatal integrity violation.
func (cl *cellList) startMatch(p *Plan) error {
	taken := map[string]bool{}
	for id := range cl.index {
		taken[id] = true
	}
	for _, spec := range cl.specs {
		if id, ok := spec[fieldID].(string); ok && id != "" {
			taken[id] = true
		}
	}
	seen := map[string]bool{}
	for _, spec := range cl.specs {
		ns := NormalizeCellSpec(spec)
		id, _ := ns[fieldID].(string)
		if id == "" || seen[id] {
			// Missing identity, or the same identity twice in the desired
			// list: the later occurrence is re-identified the way a live
			// duplicate would be.
			fresh := MintCellID()
			if taken[fresh] {
				panic(ErrIdentityCollision)
			}
			taken[fresh] = true
			ns[fieldID] = fresh
			id = fresh
		}
		seen[id] = true
		st := &cellState{id: id, spec: ns}
		cl.desired = append(cl.desired, st)
		p.add(func(p *Plan) error { return cl.matchStep(p, st) })
	}
	p.add(func(p *Plan) error { return cl.deleteStep(p, 0) })
	return nil
}

// matchStep attempts a granular in-place update of the live cell carrying
// this desired identity. Success retains the identity; refusal demotes the
// desired cell to delete-and-recreate.
func (cl *cellList) matchStep(p *Plan, st *cellState) error {
	live, ok := cl.index[st.id]
	if !ok {
		return nil
	}
	cp, ok := planCellPatch(live, st.spec)
	if !ok {
		return nil
	}
	if !cp.empty() {
		if err := applyCellPatch(p, live, cp); err != nil {
			return err
		}
	}
	st.retained = true
	cl.retained[st.id] = true
	return nil
}

// deleteStep sweeps the live array forward, removing every cell whose
// identity was not retained and any residual duplicate. The index does not
// advance on removal. One step per live cell; the final step starts the
// positional phase.
func (cl *cellList) deleteStep(p *Plan, i int) error {
	if i >= cl.arr.Len() {
		p.add(func(p *Plan) error { return cl.positionStep(p, 0) })
		return nil
	}
	cell, err := liveCell(cl.arr, i)
	if err != nil {
		return err
	}
	id := cellID(cell)
	if !cl.retained[id] || cl.swept[id] {
		p.ensureTx()
		if err := cl.arr.Delete(i); err != nil {
			return err
		}
		p.add(func(p *Plan) error { return cl.deleteStep(p, i) })
		return nil
	}
	cl.swept[id] = true
	p.add(func(p *Plan) error { return cl.deleteStep(p, i + 1) })
	return nil
}

// positionStep places the desired identity at index i. A retained cell
// already in place is untouched; a retained cell further along is moved by
// delete and fresh construction; anything else is constructed new. One
// step per desired index; the final step starts the trim phase.
func (cl *cellList) positionStep(p *Plan, i int) error {
	if i >= len(cl.desired) {
		p.add(cl.trimStep)
		return nil
	}
	st := cl.desired[i]
	if st.retained {
		if at := cl.findID(st.id, i); at == i {
			p.add(func(p *Plan) error { return cl.positionStep(p, i + 1) })
			return nil
		} else if at > i {
			p.ensureTx()
			if err := cl.arr.Delete(at); err != nil {
				return err
			}
		}
	}
	p.ensureTx()
	if err := cl.arr.Insert(i, BuildCell(st.spec)); err != nil {
		return err
	}
	p.add(func(p *Plan) error { return cl.positionStep(p, i + 1) })
	return nil
}

// trimStep removes one trailing cell beyond the desired length and
// re-enqueues itself until the lengths agree.
func (cl *cellList) trimStep(p *Plan) error {
	if cl.arr.Len() <= len(cl.desired) {
		return nil
	}
	p.ensureTx()
	if err := cl.arr.Delete(cl.arr.Len() - 1); err != nil {
		return err
	}
	p.add(cl.trimStep)
	return nil
}

// findID scans the live array from index from for the given identity.
func (cl *cellList) findID(id string, from int) int {
	for i := from; i < cl.arr.Len(); i++ {
		cell, err := liveCell(cl.arr, i)
		if err != nil {
			return -1
		}
		if cellID(cell) == id {
			return i
		}
	}
	return -1
}

// mintUnique mints an identity guaranteed absent from the current index.
func (cl *cellList) mintUnique() string {
	id := MintCellID()
	if _, clash := cl.index[id]; clash {
		panic(ErrIdentityCollision)
	}
	return id
}

// liveCell fetches the cell handle at index i.
func liveCell(arr *crdt.Array, i int) (*crdt.Map, error) {
	v, err := arr.Get(i)
	if err != nil {
		return nil, err
	}
	cell, ok := v.(*crdt.Map)
	if !ok {
		return nil, ErrNotAttached
	}
	return cell, nil
}

// cellID reads a live cell's identity, empty when absent.
func cellID(cell *crdt.Map) string {
	v, _ := cell.Get(fieldID)
	id, _ := v.(string)
	return id
}

// differingFields returns the sorted field names on which two cell
// projections disagree, identity excluded.
func differingFields(a, b map[string]any) []string {
	var fields []string
	for k, av := range a {
		if k == fieldID {
			continue
		}
		if bv, ok := b[k]; !ok || !reflect.DeepEqual(av, bv) {
			fields = append(fields, k)
		}
	}
	for k := range b {
		if k == fieldID {
			continue
		}
		if _, ok := a[k]; !ok {
			fields = append(fields, k)
		}
	}
	sort.Strings(fields)
	return fields
}
