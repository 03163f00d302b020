package reconcile

import (
	"reflect"
	"strings"

	"github.com/google/uuid"

	"github.com/dshills/coalesce/internal/crdt"
)

// Cell field names with substrate-backed values. These are the structural
// fields: a live cell stores them as nested handles, everything else is a
// plain value patched by whole-value writes.
const (
	fieldSource      = "source"
	fieldMetadata    = "metadata"
	fieldOutputs     = "outputs"
	fieldAttachments = "attachments"
	fieldID          = "id"
	fieldCellType    = "cell_type"
	fieldExecState   = "execution_state"
)

// NormalizeCellSpec returns a deep-copied, canonical form of a plain cell
// description: numerics coerced, list sources joined, metadata defaulted,
// empty attachments stripped, and the live-only execution state removed.
// Reconciliation and construction both start from this form, so comparing
// a live cell's projection against a normalized spec is stable.
func NormalizeCellSpec(spec map[string]any) map[string]any {
	out, _ := crdt.Normalize(spec).(map[string]any)
	if out == nil {
		out = map[string]any{}
	}
	if _, ok := out[fieldCellType]; !ok {
		out[fieldCellType] = "code"
	}
	switch src := out[fieldSource].(type) {
	case string:
	case []any:
		var b strings.Builder
		for _, line := range src {
			if s, ok := line.(string); ok {
				b.WriteString(s)
			}
		}
		out[fieldSource] = b.String()
	default:
		out[fieldSource] = ""
	}
	if _, ok := out[fieldMetadata].(map[string]any); !ok {
		out[fieldMetadata] = map[string]any{}
	}
	delete(out, fieldExecState)
	switch out[fieldCellType] {
	case "raw", "markdown":
		if att, ok := out[fieldAttachments].(map[string]any); ok && len(att) == 0 {
			delete(out, fieldAttachments)
		}
		delete(out, fieldOutputs)
		delete(out, "execution_count")
	case "code":
		delete(out, fieldAttachments)
		if _, ok := out[fieldOutputs].([]any); !ok {
			out[fieldOutputs] = []any{}
		}
		if _, ok := out["execution_count"]; !ok {
			out["execution_count"] = nil
		}
	}
	return out
}

// MintCellID returns a fresh random cell identity.
func MintCellID() string {
	return uuid.NewString()
}

// BuildCell constructs a detached live cell from a normalized spec. Source
// and metadata become nested handles; code cells get an outputs array (with
// stream output text as a nested handle) and start in the idle execution
// state. The spec must already carry an id.
func BuildCell(spec map[string]any) *crdt.Map {
	entries := make(map[string]any, len(spec)+1)
	for k, v := range spec {
		entries[k] = v
	}
	src, _ := entries[fieldSource].(string)
	entries[fieldSource] = crdt.NewText(src)
	meta, _ := entries[fieldMetadata].(map[string]any)
	entries[fieldMetadata] = crdt.NewMap(meta)
	if entries[fieldCellType] == "code" {
		entries[fieldExecState] = "idle"
		outputs, _ := entries[fieldOutputs].([]any)
		built := make([]any, len(outputs))
		for i, out := range outputs {
			built[i] = buildOutput(out)
		}
		entries[fieldOutputs] = crdt.NewArray(built)
	}
	return crdt.NewMap(entries)
}

// buildOutput prepares one output record for storage. Every record becomes
// a nested map handle; stream output text is additionally promoted to a
// nested text handle so producers can append to it in place.
func buildOutput(out any) any {
	m, ok := out.(map[string]any)
	if !ok {
		return out
	}
	built := make(map[string]any, len(m))
	for k, v := range m {
		built[k] = v
	}
	if m["output_type"] == "stream" {
		built["text"] = crdt.NewText(streamText(m["text"]))
	}
	return crdt.NewMap(built)
}

// streamText flattens a stream output's text field, which the wire format
// allows as either a string or a list of strings.
func streamText(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []any:
		var b strings.Builder
		for _, line := range t {
			if s, ok := line.(string); ok {
				b.WriteString(s)
			}
		}
		return b.String()
	}
	return ""
}

// cellPatch is the precomputed edit set bringing one live cell to its
// desired state. It is built by a pure comparison pass so that a refusal
// costs no writes.
type cellPatch struct {
	source      *string
	metadata    *mapPatch
	outputs     []outputEdit
	setPlain    map[string]any
	deletePlain []string
}

func (cp *cellPatch) empty() bool {
	return cp.source == nil && cp.metadata == nil && len(cp.outputs) == 0 &&
		len(cp.setPlain) == 0 && len(cp.deletePlain) == 0
}

// mapPatch is a per-key edit set for a nested map handle.
type mapPatch struct {
	set    map[string]any
	remove []string
}

// outputEdit is one positional edit of a live outputs array.
type outputEdit struct {
	op    crdt.EditOp
	index int
	value any
}

// planCellPatch compares a live cell against a normalized desired spec and
// returns the granular edits, or ok=false when the cell must be rebuilt:
// the cell type changed, stream outputs are involved on either side, or a
// structural field appears on only one side. The live-only execution state
// is exempt from comparison so a round-tripped snapshot patches clean.
func planCellPatch(cell *crdt.Map, desired map[string]any) (*cellPatch, bool) {
	current := cell.ToMap()
	delete(current, fieldExecState)
	if reflect.DeepEqual(current, desired) {
		return &cellPatch{}, true
	}
	if current[fieldCellType] != desired[fieldCellType] {
		return nil, false
	}
	if anyStream(current[fieldOutputs]) || anyStream(desired[fieldOutputs]) {
		return nil, false
	}

	cp := &cellPatch{}

	if cur, _ := current[fieldSource].(string); cur != desired[fieldSource] {
		if _, ok := handleOf[*crdt.Text](cell, fieldSource); !ok {
			return nil, false
		}
		want, _ := desired[fieldSource].(string)
		cp.source = &want
	}

	curMeta, _ := current[fieldMetadata].(map[string]any)
	wantMeta, _ := desired[fieldMetadata].(map[string]any)
	if !reflect.DeepEqual(curMeta, wantMeta) {
		if _, ok := handleOf[*crdt.Map](cell, fieldMetadata); !ok {
			return nil, false
		}
		cp.metadata = planMapPatch(curMeta, wantMeta)
	}

	_, curHasOut := current[fieldOutputs]
	wantOut, wantHasOut := desired[fieldOutputs].([]any)
	if curHasOut != wantHasOut {
		return nil, false
	}
	if wantHasOut {
		curOut, _ := current[fieldOutputs].([]any)
		if !reflect.DeepEqual(curOut, wantOut) {
			if _, ok := handleOf[*crdt.Array](cell, fieldOutputs); !ok {
				return nil, false
			}
			cp.outputs = planOutputEdits(curOut, wantOut)
		}
	}

	for k, want := range desired {
		switch k {
		case fieldID, fieldSource, fieldMetadata, fieldOutputs:
			continue
		}
		cur, ok := current[k]
		if !ok && isStructural(want) {
			return nil, false
		}
		if !ok || !reflect.DeepEqual(cur, want) {
			if cp.setPlain == nil {
				cp.setPlain = map[string]any{}
			}
			cp.setPlain[k] = want
		}
	}
	for k := range current {
		switch k {
		case fieldID, fieldSource, fieldMetadata, fieldOutputs:
			continue
		}
		if _, ok := desired[k]; !ok {
			if isHandleField(cell, k) {
				return nil, false
			}
			cp.deletePlain = append(cp.deletePlain, k)
		}
	}
	return cp, true
}

// applyCellPatch writes a precomputed patch into the live cell.
func applyCellPatch(p *Plan, cell *crdt.Map, cp *cellPatch) error {
	if cp.source != nil {
		src, _ := handleOf[*crdt.Text](cell, fieldSource)
		if err := reconcileTextNow(p, src, *cp.source); err != nil {
			return err
		}
	}
	if cp.metadata != nil {
		meta, _ := handleOf[*crdt.Map](cell, fieldMetadata)
		if err := applyMapPatch(p, meta, cp.metadata); err != nil {
			return err
		}
	}
	if len(cp.outputs) > 0 {
		outs, _ := handleOf[*crdt.Array](cell, fieldOutputs)
		if err := applyOutputEdits(p, outs, cp.outputs); err != nil {
			return err
		}
	}
	for k, v := range cp.setPlain {
		p.ensureTx()
		if err := cell.Set(k, v); err != nil {
			return err
		}
	}
	for _, k := range cp.deletePlain {
		p.ensureTx()
		if err := cell.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

// planMapPatch computes key-level edits between two plain maps.
func planMapPatch(current, desired map[string]any) *mapPatch {
	mp := &mapPatch{}
	for k, want := range desired {
		cur, ok := current[k]
		if !ok || !reflect.DeepEqual(cur, want) {
			if mp.set == nil {
				mp.set = map[string]any{}
			}
			mp.set[k] = want
		}
	}
	for k := range current {
		if _, ok := desired[k]; !ok {
			mp.remove = append(mp.remove, k)
		}
	}
	return mp
}

func applyMapPatch(p *Plan, m *crdt.Map, mp *mapPatch) error {
	for k, v := range mp.set {
		p.ensureTx()
		if err := m.Set(k, v); err != nil {
			return err
		}
	}
	for _, k := range mp.remove {
		p.ensureTx()
		if err := m.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

// planOutputEdits computes positional edits between two plain output lists:
// differing indexes become delete+insert pairs, then the shorter side's
// tail is appended or trimmed. The edits replay back to front for deletes
// past the common prefix so earlier indexes stay valid.
func planOutputEdits(current, desired []any) []outputEdit {
	var edits []outputEdit
	common := len(current)
	if len(desired) < common {
		common = len(desired)
	}
	for i := 0; i < common; i++ {
		if !reflect.DeepEqual(current[i], desired[i]) {
			edits = append(edits,
				outputEdit{op: crdt.EditDelete, index: i},
				outputEdit{op: crdt.EditInsert, index: i, value: desired[i]})
		}
	}
	for i := len(current) - 1; i >= common; i-- {
		edits = append(edits, outputEdit{op: crdt.EditDelete, index: i})
	}
	for i := common; i < len(desired); i++ {
		edits = append(edits, outputEdit{op: crdt.EditInsert, index: i, value: desired[i]})
	}
	return edits
}

func applyOutputEdits(p *Plan, arr *crdt.Array, edits []outputEdit) error {
	for _, e := range edits {
		p.ensureTx()
		switch e.op {
		case crdt.EditDelete:
			if err := arr.Delete(e.index); err != nil {
				return err
			}
		case crdt.EditInsert:
			if err := arr.Insert(e.index, buildOutput(e.value)); err != nil {
				return err
			}
		}
	}
	return nil
}

// anyStream reports whether a materialized outputs value contains a stream
// output. Stream text lives in a nested handle that granular patching does
// not manage, so its presence forces a rebuild.
func anyStream(outputs any) bool {
	list, ok := outputs.([]any)
	if !ok {
		return false
	}
	for _, out := range list {
		if m, ok := out.(map[string]any); ok && m["output_type"] == "stream" {
			return true
		}
	}
	return false
}

// isStructural reports whether a desired plain value would require a nested
// handle if built fresh. Appearing on only one side of a comparison, such a
// field cannot be patched in place.
func isStructural(v any) bool {
	switch v.(type) {
	case map[string]any, []any:
		return true
	}
	return false
}

// isHandleField reports whether the live cell stores key as a nested handle.
func isHandleField(m *crdt.Map, key string) bool {
	v, ok := m.Get(key)
	if !ok {
		return false
	}
	switch v.(type) {
	case *crdt.Text, *crdt.Map, *crdt.Array:
		return true
	}
	return false
}

// handleOf fetches a nested handle of a concrete type from a live map.
func handleOf[H any](m *crdt.Map, key string) (H, bool) {
	var zero H
	v, ok := m.Get(key)
	if !ok {
		return zero, false
	}
	h, ok := v.(H)
	if !ok {
		return zero, false
	}
	return h, true
}
