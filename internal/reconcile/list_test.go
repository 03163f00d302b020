package reconcile

import (
	"context"
	"fmt"
	"reflect"
	"testing"

	"github.com/dshills/coalesce/internal/crdt"
)

// newCellArray builds a live array seeded with cells constructed from the
// given specs.
func newCellArray(t *testing.T, specs ...map[string]any) *crdt.Array {
	t.Helper()
	tree := crdt.NewTree()
	arr := tree.GetArray("cells")
	for _, spec := range specs {
		if err := arr.Append(BuildCell(NormalizeCellSpec(spec))); err != nil {
			t.Fatalf("seeding cells: %v", err)
		}
	}
	return arr
}

func codeCell(id, source string) map[string]any {
	return map[string]any{
		"id":        id,
		"cell_type": "code",
		"source":    source,
		"metadata":  map[string]any{},
		"outputs":   []any{},
	}
}

// liveIDs reads the cell identities in array order.
func liveIDs(t *testing.T, arr *crdt.Array) []string {
	t.Helper()
	ids := make([]string, 0, arr.Len())
	for i := 0; i < arr.Len(); i++ {
		cell, err := liveCell(arr, i)
		if err != nil {
			t.Fatalf("cell %d: %v", i, err)
		}
		ids = append(ids, cellID(cell))
	}
	return ids
}

func liveSource(t *testing.T, arr *crdt.Array, i int) string {
	t.Helper()
	cell, err := liveCell(arr, i)
	if err != nil {
		t.Fatalf("cell %d: %v", i, err)
	}
	src, ok := handleOf[*crdt.Text](cell, "source")
	if !ok {
		t.Fatalf("cell %d has no source handle", i)
	}
	return src.String()
}

func TestCellsReorderPreservesContent(t *testing.T) {
	arr := newCellArray(t,
		codeCell("A", "a"),
		codeCell("B", "b"),
		codeCell("C", "c"),
	)

	applied, err := Cells(arr, []map[string]any{
		codeCell("C", "c"),
		codeCell("B", "b"),
		codeCell("A", "a"),
	})
	if err != nil {
		t.Fatalf("Cells() error = %v", err)
	}
	if !applied {
		t.Fatal("applied = false for a reorder")
	}

	if got := liveIDs(t, arr); !reflect.DeepEqual(got, []string{"C", "B", "A"}) {
		t.Fatalf("ids = %v, want [C B A]", got)
	}
	for i, want := range []string{"c", "b", "a"} {
		if got := liveSource(t, arr, i); got != want {
			t.Errorf("cell %d source = %q, want %q", i, got, want)
		}
	}
}

func TestCellsUnchangedCellKeepsHandles(t *testing.T) {
	arr := newCellArray(t,
		codeCell("A", "a"),
		codeCell("B", "b"),
	)
	before, err := liveCell(arr, 1)
	if err != nil {
		t.Fatal(err)
	}

	// Only A's source changes; B must keep its live handle.
	if _, err := Cells(arr, []map[string]any{
		codeCell("A", "a2"),
		codeCell("B", "b"),
	}); err != nil {
		t.Fatalf("Cells() error = %v", err)
	}

	after, err := liveCell(arr, 1)
	if err != nil {
		t.Fatal(err)
	}
	if before != after {
		t.Error("unchanged cell was recreated")
	}
	if got := liveSource(t, arr, 0); got != "a2" {
		t.Errorf("patched source = %q, want %q", got, "a2")
	}
}

func TestCellsDuplicateCleanup(t *testing.T) {
	arr := newCellArray(t,
		codeCell("A", "a"),
		codeCell("B", "b"),
		codeCell("B", "b-dup"),
		codeCell("C", "c"),
	)

	var diags []Diagnostic
	_, err := Cells(arr, []map[string]any{
		codeCell("A", "a"),
		codeCell("B", "b"),
		codeCell("C", "c"),
	}, WithDiagnostics(func(d Diagnostic) { diags = append(diags, d) }))
	if err != nil {
		t.Fatalf("Cells() error = %v", err)
	}

	ids := liveIDs(t, arr)
	if !reflect.DeepEqual(ids, []string{"A", "B", "C"}) {
		t.Errorf("ids = %v, want [A B C]", ids)
	}
	if len(diags) != 1 {
		t.Fatalf("got %d diagnostics, want 1", len(diags))
	}
	d := diags[0]
	if d.OldID != "B" || d.NewID == "B" || d.NewID == "" {
		t.Errorf("diagnostic = %+v, want old B and a fresh new id", d)
	}
	if !reflect.DeepEqual(d.Fields, []string{"source"}) {
		t.Errorf("differing fields = %v, want [source]", d.Fields)
	}
}

func TestCellsMintsMissingIDs(t *testing.T) {
	arr := newCellArray(t)

	specA := codeCell("", "a")
	delete(specA, "id")
	specB := codeCell("", "b")
	delete(specB, "id")

	if _, err := Cells(arr, []map[string]any{specA, specB}); err != nil {
		t.Fatalf("Cells() error = %v", err)
	}
	ids := liveIDs(t, arr)
	if len(ids) != 2 || ids[0] == "" || ids[1] == "" || ids[0] == ids[1] {
		t.Errorf("ids = %v, want two distinct minted ids", ids)
	}
}

func TestCellsInsertDeleteTruncate(t *testing.T) {
	arr := newCellArray(t,
		codeCell("A", "a"),
		codeCell("B", "b"),
		codeCell("C", "c"),
	)

	if _, err := Cells(arr, []map[string]any{
		codeCell("B", "b"),
		codeCell("D", "d"),
	}); err != nil {
		t.Fatalf("Cells() error = %v", err)
	}
	if got := liveIDs(t, arr); !reflect.DeepEqual(got, []string{"B", "D"}) {
		t.Errorf("ids = %v, want [B D]", got)
	}
}

func TestCellsIdempotent(t *testing.T) {
	specs := []map[string]any{
		codeCell("A", "a"),
		codeCell("B", "b"),
	}
	arr := newCellArray(t, specs...)

	fired := 0
	arr.ObserveDeep(func(crdt.Event) { fired++ })

	applied, err := Cells(arr, specs)
	if err != nil {
		t.Fatalf("Cells() error = %v", err)
	}
	if applied {
		t.Error("applied = true for identical desired state")
	}
	if fired != 0 {
		t.Errorf("observer fired %d times, want 0", fired)
	}
}

func TestCellsSourcePatchEmitsNarrowEvent(t *testing.T) {
	arr := newCellArray(t, codeCell("A", "'a'"))

	var events []crdt.Event
	arr.ObserveDeep(func(ev crdt.Event) { events = append(events, ev) })

	if _, err := Cells(arr, []map[string]any{codeCell("A", "'b'")}); err != nil {
		t.Fatalf("Cells() error = %v", err)
	}

	if len(events) != 1 {
		t.Fatalf("got %d events, want 1: %v", len(events), events)
	}
	ev := events[0]
	if ev.Structural() {
		t.Errorf("source patch emitted structural event: %+v", ev)
	}
	if ev.Kind != crdt.TextChanged {
		t.Errorf("Kind = %v, want TextChanged", ev.Kind)
	}
	if !reflect.DeepEqual(ev.Path, []any{0, "source"}) {
		t.Errorf("Path = %v, want [0 source]", ev.Path)
	}
}

func TestCellsStreamOutputForcesStructuralEvent(t *testing.T) {
	arr := newCellArray(t, codeCell("A", "'a'"))

	var structural []crdt.Event
	arr.ObserveDeep(func(ev crdt.Event) {
		if ev.Structural() {
			structural = append(structural, ev)
		}
	})

	desired := codeCell("A", "'a'")
	desired["outputs"] = []any{map[string]any{
		"output_type": "stream",
		"name":        "stdout",
		"text":        "hi\n",
	}}
	if _, err := Cells(arr, []map[string]any{desired}); err != nil {
		t.Fatalf("Cells() error = %v", err)
	}

	if len(structural) == 0 {
		t.Error("stream output change produced no structural event")
	}
	cell, err := liveCell(arr, 0)
	if err != nil {
		t.Fatal(err)
	}
	outs, ok := handleOf[*crdt.Array](cell, "outputs")
	if !ok || outs.Len() != 1 {
		t.Fatalf("outputs not rebuilt: %v", cell.ToMap())
	}
	out, err := liveCell(outs, 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := handleOf[*crdt.Text](out, "text"); !ok {
		t.Error("stream text is not a live text handle")
	}
}

func TestCellsYieldDriverEquivalence(t *testing.T) {
	const n = 40
	var before, after []map[string]any
	for i := 0; i < n; i++ {
		before = append(before, codeCell(fmt.Sprintf("c%d", i), fmt.Sprintf("v = %d", i)))
	}
	// Reverse order and touch every third source.
	for i := n - 1; i >= 0; i-- {
		spec := codeCell(fmt.Sprintf("c%d", i), fmt.Sprintf("v = %d", i))
		if i%3 == 0 {
			spec["source"] = fmt.Sprintf("v = %d # edited", i)
		}
		after = append(after, spec)
	}

	syncArr := newCellArray(t, before...)
	if _, err := NewCells(syncArr, after).Run(); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	yieldArr := newCellArray(t, before...)
	steps := 0
	_, err := NewCells(yieldArr, after).RunYield(context.Background(), func(context.Context) error {
		steps++
		return nil
	})
	if err != nil {
		t.Fatalf("RunYield() error = %v", err)
	}

	if !reflect.DeepEqual(syncArr.ToList(), yieldArr.ToList()) {
		t.Error("drivers produced different final state")
	}
	if steps < n {
		t.Errorf("yield driver took %d steps, want at least one per cell", steps)
	}
}

func TestNotebookMetaOnlyWritesChanges(t *testing.T) {
	tree := crdt.NewTree()
	meta := tree.GetMap("meta")
	cells := tree.GetArray("cells")

	snap := Snapshot{
		Cells:         []map[string]any{codeCell("A", "a")},
		Metadata:      map[string]any{"kernelspec": map[string]any{"name": "go"}},
		NBFormat:      4,
		NBFormatMinor: 5,
	}
	if _, err := NewNotebook(meta, cells, snap).Run(); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	fired := 0
	meta.Observe(func(crdt.Event) { fired++ })

	applied, err := NewNotebook(meta, cells, snap).Run()
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if applied {
		t.Error("applied = true for identical snapshot")
	}
	if fired != 0 {
		t.Errorf("meta observer fired %d times, want 0", fired)
	}

	snap.NBFormatMinor = 4
	if _, err := NewNotebook(meta, cells, snap).Run(); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	got := meta.ToMap()
	if got["nbformat_minor"] != float64(4) {
		t.Errorf("nbformat_minor = %v, want 4", got["nbformat_minor"])
	}
}
