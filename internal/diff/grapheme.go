package diff

import (
	"sort"

	"github.com/rivo/uniseg"
)

// Snap corrects every non-equal opcode boundary to the nearest enclosing
// grapheme-cluster boundary, so no emitted range ever splits a multi-byte
// character or a composed cluster (emoji with modifiers, flag sequences).
//
// Expanding a range on the old side pulls in bytes from an adjacent equal
// region; those bytes are compensated on the new side (and vice versa) so
// replaying the corrected script still reproduces b exactly. When two
// corrected ranges would overlap, ok is false and the caller must abandon
// granular mode rather than emit corrupt ranges.
func Snap(a, b string, ops []Opcode) ([]Opcode, bool) {
	if isASCII(a) && isASCII(b) {
		return ops, true
	}

	boundsA := clusterBoundaries(a)
	boundsB := clusterBoundaries(b)

	type span struct{ i1, i2, j1, j2 int }
	var spans []span
	for _, op := range ops {
		if op.Tag == OpEqual {
			continue
		}
		s := span{op.I1, op.I2, op.J1, op.J2}
		for {
			if s.i1 < 0 || s.j1 < 0 || s.i2 > len(a) || s.j2 > len(b) {
				return nil, false
			}
			changed := false
			if d := s.i1 - floorBound(boundsA, s.i1); d > 0 {
				s.i1 -= d
				s.j1 -= d
				changed = true
			}
			if d := ceilBound(boundsA, s.i2) - s.i2; d > 0 {
				s.i2 += d
				s.j2 += d
				changed = true
			}
			if s.i1 < 0 || s.j1 < 0 || s.i2 > len(a) || s.j2 > len(b) {
				return nil, false
			}
			if d := s.j1 - floorBound(boundsB, s.j1); d > 0 {
				s.j1 -= d
				s.i1 -= d
				changed = true
			}
			if d := ceilBound(boundsB, s.j2) - s.j2; d > 0 {
				s.j2 += d
				s.i2 += d
				changed = true
			}
			if !changed {
				break
			}
		}
		spans = append(spans, s)
	}

	// Corrected ranges must stay disjoint and ordered in both coordinate
	// spaces; expansion across the equal gap into a neighboring change
	// means the script cannot be replayed safely.
	for i := 1; i < len(spans); i++ {
		if spans[i].i1 < spans[i-1].i2 || spans[i].j1 < spans[i-1].j2 {
			return nil, false
		}
	}

	// Rebuild the full script, refilling equal gaps between the corrected
	// ranges. Gap lengths must agree on both sides by construction.
	var out []Opcode
	ci, cj := 0, 0
	for _, s := range spans {
		if s.i1-ci != s.j1-cj {
			return nil, false
		}
		if s.i1 > ci {
			out = append(out, Opcode{Tag: OpEqual, I1: ci, I2: s.i1, J1: cj, J2: s.j1})
		}
		tag := OpReplace
		switch {
		case s.j1 == s.j2:
			tag = OpDelete
		case s.i1 == s.i2:
			tag = OpInsert
		}
		out = append(out, Opcode{Tag: tag, I1: s.i1, I2: s.i2, J1: s.j1, J2: s.j2})
		ci, cj = s.i2, s.j2
	}
	if len(a)-ci != len(b)-cj {
		return nil, false
	}
	if ci < len(a) {
		out = append(out, Opcode{Tag: OpEqual, I1: ci, I2: len(a), J1: cj, J2: len(b)})
	}
	return out, true
}

// clusterBoundaries returns the sorted byte offsets of every grapheme
// cluster boundary in s, including 0 and len(s).
func clusterBoundaries(s string) []int {
	bounds := []int{0}
	g := uniseg.NewGraphemes(s)
	for g.Next() {
		_, to := g.Positions()
		bounds = append(bounds, to)
	}
	return bounds
}

// floorBound returns the largest boundary <= pos.
func floorBound(bounds []int, pos int) int {
	i := sort.SearchInts(bounds, pos)
	if i < len(bounds) && bounds[i] == pos {
		return pos
	}
	return bounds[i-1]
}

// ceilBound returns the smallest boundary >= pos.
func ceilBound(bounds []int, pos int) int {
	i := sort.SearchInts(bounds, pos)
	return bounds[i]
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}
