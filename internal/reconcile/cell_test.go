package reconcile

import (
	"reflect"
	"testing"

	"github.com/dshills/coalesce/internal/crdt"
)

// newLiveCell builds one attached cell from a spec.
func newLiveCell(t *testing.T, spec map[string]any) *crdt.Map {
	t.Helper()
	arr := newCellArray(t, spec)
	cell, err := liveCell(arr, 0)
	if err != nil {
		t.Fatal(err)
	}
	return cell
}

func TestNormalizeCellSpec(t *testing.T) {
	t.Run("joins list source", func(t *testing.T) {
		spec := NormalizeCellSpec(map[string]any{
			"cell_type": "code",
			"source":    []any{"a\n", "b\n"},
		})
		if got := spec["source"]; got != "a\nb\n" {
			t.Errorf("source = %q, want %q", got, "a\nb\n")
		}
	})

	t.Run("defaults", func(t *testing.T) {
		spec := NormalizeCellSpec(map[string]any{})
		if spec["cell_type"] != "code" {
			t.Errorf("cell_type = %v, want code", spec["cell_type"])
		}
		if spec["source"] != "" {
			t.Errorf("source = %v, want empty", spec["source"])
		}
		if _, ok := spec["metadata"].(map[string]any); !ok {
			t.Error("metadata not defaulted")
		}
		if _, ok := spec["outputs"].([]any); !ok {
			t.Error("outputs not defaulted for code cell")
		}
	})

	t.Run("strips empty attachments", func(t *testing.T) {
		spec := NormalizeCellSpec(map[string]any{
			"cell_type":   "markdown",
			"source":      "# hi",
			"attachments": map[string]any{},
		})
		if _, ok := spec["attachments"]; ok {
			t.Error("empty attachments survived normalization")
		}
	})

	t.Run("drops live-only execution state", func(t *testing.T) {
		spec := NormalizeCellSpec(map[string]any{
			"cell_type":       "code",
			"source":          "x",
			"execution_state": "busy",
		})
		if _, ok := spec["execution_state"]; ok {
			t.Error("execution_state survived normalization")
		}
	})
}

func TestBuildCell(t *testing.T) {
	cell := newLiveCell(t, map[string]any{
		"id":        "X",
		"cell_type": "code",
		"source":    "print(1)",
		"outputs": []any{map[string]any{
			"output_type": "stream",
			"name":        "stdout",
			"text":        []any{"a", "b"},
		}},
	})

	if _, ok := handleOf[*crdt.Text](cell, "source"); !ok {
		t.Error("source is not a text handle")
	}
	if _, ok := handleOf[*crdt.Map](cell, "metadata"); !ok {
		t.Error("metadata is not a map handle")
	}
	state, _ := cell.Get("execution_state")
	if state != "idle" {
		t.Errorf("execution_state = %v, want idle", state)
	}
	outs, ok := handleOf[*crdt.Array](cell, "outputs")
	if !ok {
		t.Fatal("outputs is not an array handle")
	}
	out, err := liveCell(outs, 0)
	if err != nil {
		t.Fatal(err)
	}
	text, ok := handleOf[*crdt.Text](out, "text")
	if !ok {
		t.Fatal("stream text is not a text handle")
	}
	if got := text.String(); got != "ab" {
		t.Errorf("stream text = %q, want %q", got, "ab")
	}
}

func TestPlanCellPatchTrivialSuccess(t *testing.T) {
	spec := codeCell("X", "x")
	cell := newLiveCell(t, spec)

	cp, ok := planCellPatch(cell, NormalizeCellSpec(spec))
	if !ok {
		t.Fatal("ok = false for deep-equal cell")
	}
	if !cp.empty() {
		t.Errorf("patch not empty: %+v", cp)
	}
}

func TestPlanCellPatchRefusals(t *testing.T) {
	tests := []struct {
		name    string
		live    map[string]any
		desired map[string]any
	}{
		{
			name:    "cell type changed",
			live:    codeCell("X", "x"),
			desired: map[string]any{"id": "X", "cell_type": "markdown", "source": "x"},
		},
		{
			name: "stream output desired",
			live: codeCell("X", "x"),
			desired: map[string]any{
				"id": "X", "cell_type": "code", "source": "x",
				"outputs": []any{map[string]any{"output_type": "stream", "text": "hi"}},
			},
		},
		{
			name: "stream output live",
			live: map[string]any{
				"id": "X", "cell_type": "code", "source": "x",
				"outputs": []any{map[string]any{"output_type": "stream", "text": "hi"}},
			},
			desired: codeCell("X", "x"),
		},
		{
			name: "structural field added",
			live: map[string]any{"id": "X", "cell_type": "markdown", "source": "# hi"},
			desired: map[string]any{
				"id": "X", "cell_type": "markdown", "source": "# hi",
				"attachments": map[string]any{"img.png": map[string]any{"mime": "image/png"}},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cell := newLiveCell(t, tt.live)
			if _, ok := planCellPatch(cell, NormalizeCellSpec(tt.desired)); ok {
				t.Error("ok = true, want refusal")
			}
		})
	}
}

func TestPlanCellPatchFieldEdits(t *testing.T) {
	live := codeCell("X", "x")
	live["execution_count"] = 1
	live["metadata"] = map[string]any{"collapsed": false, "stale": true}
	cell := newLiveCell(t, live)

	desired := codeCell("X", "x")
	desired["execution_count"] = 2
	desired["metadata"] = map[string]any{"collapsed": true}
	desired["outputs"] = []any{map[string]any{
		"output_type": "execute_result",
		"data":        map[string]any{"text/plain": "2"},
	}}

	cp, ok := planCellPatch(cell, NormalizeCellSpec(desired))
	if !ok {
		t.Fatal("ok = false, want granular patch")
	}
	if cp.setPlain["execution_count"] != float64(2) {
		t.Errorf("execution_count edit = %v, want 2", cp.setPlain["execution_count"])
	}
	if cp.metadata == nil {
		t.Fatal("metadata patch missing")
	}
	if cp.metadata.set["collapsed"] != true {
		t.Errorf("metadata set = %v, want collapsed=true", cp.metadata.set)
	}
	if !reflect.DeepEqual(cp.metadata.remove, []string{"stale"}) {
		t.Errorf("metadata remove = %v, want [stale]", cp.metadata.remove)
	}
	if len(cp.outputs) == 0 {
		t.Error("outputs edits missing")
	}

	// Apply and verify in-place handles survive.
	src, _ := handleOf[*crdt.Text](cell, "source")
	meta, _ := handleOf[*crdt.Map](cell, "metadata")
	p := newPlan(cell.Tree())
	if err := applyCellPatch(p, cell, cp); err != nil {
		t.Fatalf("applyCellPatch() error = %v", err)
	}
	p.closeTx()

	srcAfter, _ := handleOf[*crdt.Text](cell, "source")
	metaAfter, _ := handleOf[*crdt.Map](cell, "metadata")
	if src != srcAfter || meta != metaAfter {
		t.Error("granular patch replaced nested handles")
	}
	got := cell.ToMap()
	if got["execution_count"] != float64(2) {
		t.Errorf("execution_count = %v, want 2", got["execution_count"])
	}
	wantMeta := map[string]any{"collapsed": true}
	if !reflect.DeepEqual(got["metadata"], wantMeta) {
		t.Errorf("metadata = %v, want %v", got["metadata"], wantMeta)
	}
}

func TestPlanOutputEdits(t *testing.T) {
	current := []any{"a", "b", "c"}
	desired := []any{"a", "B"}

	edits := planOutputEdits(current, desired)
	want := []outputEdit{
		{op: crdt.EditDelete, index: 1},
		{op: crdt.EditInsert, index: 1, value: "B"},
		{op: crdt.EditDelete, index: 2},
	}
	if !reflect.DeepEqual(edits, want) {
		t.Errorf("edits = %v, want %v", edits, want)
	}
}

func TestAnyStream(t *testing.T) {
	if anyStream([]any{map[string]any{"output_type": "display_data"}}) {
		t.Error("display_data flagged as stream")
	}
	if !anyStream([]any{map[string]any{"output_type": "stream"}}) {
		t.Error("stream not detected")
	}
	if anyStream(nil) {
		t.Error("nil outputs flagged as stream")
	}
}
