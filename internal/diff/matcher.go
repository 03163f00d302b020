package diff

import "errors"

// SimilarityCutoff is the fixed ratio below which a granular edit script is
// not worth producing. 0.6 is the standard heuristic for diff usefulness.
const SimilarityCutoff = 0.6

// ErrTooLarge is returned when the inputs exceed the configured guards and
// an exact edit script will not be computed. Callers fall back to a hard
// replace, which costs a single delete/insert pair on the wire.
var ErrTooLarge = errors.New("diff input exceeds size guard")

// Options configures edit-script computation.
type Options struct {
	// MaxBytes limits the combined size of the unshared middles (after
	// common prefix/suffix trimming) that Compute will diff exactly.
	// Zero means DefaultMaxBytes.
	MaxBytes int

	// MaxMemoryMB limits the memory of the Myers trace. If the search
	// would exceed it, Compute gives up with ErrTooLarge. Zero means
	// DefaultMaxMemoryMB.
	MaxMemoryMB int
}

// Default guard values.
const (
	DefaultMaxBytes    = 256 * 1024
	DefaultMaxMemoryMB = 128
)

// DefaultOptions returns the default guards.
func DefaultOptions() Options {
	return Options{MaxBytes: DefaultMaxBytes, MaxMemoryMB: DefaultMaxMemoryMB}
}

// Result is a computed edit script plus the match statistics that yield the
// exact similarity ratio.
type Result struct {
	// Ops is the merged opcode list covering both inputs end to end.
	Ops []Opcode

	// Matches is the number of equal bytes across all OpEqual ranges.
	Matches int

	total int
}

// Ratio returns the exact similarity ratio 2*M/T, where M is the number of
// matched bytes and T the combined input length. Two empty inputs have
// ratio 1.
func (r Result) Ratio() float64 {
	if r.total == 0 {
		return 1
	}
	return 2 * float64(r.Matches) / float64(r.total)
}

// Changed reports whether the script contains any non-equal opcode.
func (r Result) Changed() bool {
	for _, op := range r.Ops {
		if op.Tag != OpEqual {
			return true
		}
	}
	return false
}

// QuickRatio returns a cheap upper bound on the similarity ratio, from
// byte-frequency intersection alone. It never underestimates the exact
// ratio, so a QuickRatio below the cutoff rules granular mode out without
// computing an edit script.
func QuickRatio(a, b string) float64 {
	total := len(a) + len(b)
	if total == 0 {
		return 1
	}
	var counts [256]int
	for i := 0; i < len(b); i++ {
		counts[b[i]]++
	}
	matches := 0
	for i := 0; i < len(a); i++ {
		if counts[a[i]] > 0 {
			counts[a[i]]--
			matches++
		}
	}
	return 2 * float64(matches) / float64(total)
}

// Compute produces the merged opcode list between a and b over byte
// offsets. Common prefix and suffix are matched first; the unshared middles
// go through Myers diff, subject to the Options guards.
func Compute(a, b string, opts Options) (Result, error) {
	maxBytes := opts.MaxBytes
	if maxBytes == 0 {
		maxBytes = DefaultMaxBytes
	}
	res := Result{total: len(a) + len(b)}

	if a == b {
		if len(a) > 0 {
			res.Ops = []Opcode{{Tag: OpEqual, I1: 0, I2: len(a), J1: 0, J2: len(b)}}
			res.Matches = len(a)
		}
		return res, nil
	}

	prefix := commonPrefix(a, b)
	suffix := commonSuffix(a[prefix:], b[prefix:])
	midA := a[prefix : len(a)-suffix]
	midB := b[prefix : len(b)-suffix]

	if len(midA)+len(midB) > maxBytes {
		return Result{}, ErrTooLarge
	}

	script, err := myersBytes([]byte(midA), []byte(midB), opts)
	if err != nil {
		return Result{}, err
	}

	var ops []Opcode
	if prefix > 0 {
		ops = append(ops, Opcode{Tag: OpEqual, I1: 0, I2: prefix, J1: 0, J2: prefix})
	}
	ops = append(ops, mergeOps(script, prefix, prefix)...)
	if suffix > 0 {
		ops = append(ops, Opcode{
			Tag: OpEqual,
			I1:  len(a) - suffix, I2: len(a),
			J1: len(b) - suffix, J2: len(b),
		})
	}
	ops = coalesceEqual(ops)

	res.Ops = ops
	res.Matches = prefix + suffix
	for _, op := range script {
		if op.op == opKeep {
			res.Matches++
		}
	}
	return res, nil
}

func commonPrefix(a, b string) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return i
}

func commonSuffix(a, b string) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[len(a)-1-i] == b[len(b)-1-i] {
		i++
	}
	return i
}

// editKind is the per-byte edit vocabulary produced by the Myers pass.
type editKind uint8

const (
	opKeep editKind = iota
	opDrop
	opAdd
)

// byteOp is a single-byte edit referencing an index in the old or new
// middle.
type byteOp struct {
	op       editKind
	oldIndex int
	newIndex int
}

// myersBytes runs the Myers shortest-edit-script algorithm over two byte
// slices. The trace needed for backtracking grows with the edit distance;
// the search aborts with ErrTooLarge once it would exceed the memory guard.
func myersBytes(oldB, newB []byte, opts Options) ([]byteOp, error) {
	n := len(oldB)
	m := len(newB)

	if n == 0 && m == 0 {
		return nil, nil
	}
	if n == 0 {
		ops := make([]byteOp, m)
		for i := 0; i < m; i++ {
			ops[i] = byteOp{op: opAdd, newIndex: i}
		}
		return ops, nil
	}
	if m == 0 {
		ops := make([]byteOp, n)
		for i := 0; i < n; i++ {
			ops[i] = byteOp{op: opDrop, oldIndex: i}
		}
		return ops, nil
	}

	maxMemMB := opts.MaxMemoryMB
	if maxMemMB == 0 {
		maxMemMB = DefaultMaxMemoryMB
	}
	maxD := n + m
	layerBytes := int64(2*maxD+1) * 8
	dLimit := maxD
	if budget := int64(maxMemMB) * 1024 * 1024; layerBytes > 0 && int64(dLimit)*layerBytes > budget {
		dLimit = int(budget / layerBytes)
	}

	offset := maxD
	v := make([]int, 2*maxD+1)
	v[offset+1] = 0

	var trace [][]int
	found := false

outer:
	for d := 0; d <= dLimit; d++ {
		vCopy := make([]int, len(v))
		copy(vCopy, v)
		trace = append(trace, vCopy)

		for k := -d; k <= d; k += 2 {
			var x int
			if k == -d || (k != d && v[offset+k-1] < v[offset+k+1]) {
				x = v[offset+k+1]
			} else {
				x = v[offset+k-1] + 1
			}
			y := x - k

			for x < n && y < m && oldB[x] == newB[y] {
				x++
				y++
			}
			v[offset+k] = x

			if x >= n && y >= m {
				vFinal := make([]int, len(v))
				copy(vFinal, v)
				trace = append(trace, vFinal)
				found = true
				break outer
			}
		}
	}
	if !found {
		return nil, ErrTooLarge
	}
	return backtrackBytes(trace, n, m, offset), nil
}

// backtrackBytes reconstructs the edit script from the trace.
func backtrackBytes(trace [][]int, n, m, offset int) []byteOp {
	x := n
	y := m
	var ops []byteOp

	for d := len(trace) - 2; d >= 0; d-- {
		v := trace[d]
		k := x - y

		var prevK int
		if k == -d || (k != d && v[offset+k-1] < v[offset+k+1]) {
			prevK = k + 1
		} else {
			prevK = k - 1
		}
		prevX := v[offset+prevK]
		prevY := prevX - prevK

		for x > prevX && y > prevY {
			x--
			y--
			ops = append(ops, byteOp{op: opKeep, oldIndex: x, newIndex: y})
		}
		if d > 0 {
			if x > prevX {
				x--
				ops = append(ops, byteOp{op: opDrop, oldIndex: x})
			} else if y > prevY {
				y--
				ops = append(ops, byteOp{op: opAdd, newIndex: y})
			}
		}
	}

	for i, j := 0, len(ops)-1; i < j; i, j = i+1, j-1 {
		ops[i], ops[j] = ops[j], ops[i]
	}
	return ops
}

// mergeOps folds the per-byte edit script into ranged opcodes, pairing
// adjacent drop and add runs into replaces. offI and offJ shift the middle
// coordinates back into whole-string space.
func mergeOps(script []byteOp, offI, offJ int) []Opcode {
	var ops []Opcode
	i := 0
	for i < len(script) {
		if script[i].op == opKeep {
			start := i
			for i < len(script) && script[i].op == opKeep {
				i++
			}
			first := script[start]
			last := script[i-1]
			ops = append(ops, Opcode{
				Tag: OpEqual,
				I1:  offI + first.oldIndex, I2: offI + last.oldIndex + 1,
				J1: offJ + first.newIndex, J2: offJ + last.newIndex + 1,
			})
			continue
		}

		// Collect the run of drops and adds up to the next keep.
		i1, i2 := -1, -1
		j1, j2 := -1, -1
		for i < len(script) && script[i].op != opKeep {
			switch script[i].op {
			case opDrop:
				if i1 < 0 {
					i1 = script[i].oldIndex
				}
				i2 = script[i].oldIndex + 1
			case opAdd:
				if j1 < 0 {
					j1 = script[i].newIndex
				}
				j2 = script[i].newIndex + 1
			}
			i++
		}

		op := Opcode{}
		switch {
		case i1 >= 0 && j1 >= 0:
			op = Opcode{Tag: OpReplace, I1: offI + i1, I2: offI + i2, J1: offJ + j1, J2: offJ + j2}
		case i1 >= 0:
			// Anchor the empty new-side range at the position the deleted
			// content maps to.
			jPos := offJ + anchorJ(script, i)
			op = Opcode{Tag: OpDelete, I1: offI + i1, I2: offI + i2, J1: jPos, J2: jPos}
		default:
			iPos := offI + anchorI(script, i)
			op = Opcode{Tag: OpInsert, I1: iPos, I2: iPos, J1: offJ + j1, J2: offJ + j2}
		}
		ops = append(ops, op)
	}
	return ops
}

// anchorJ finds the new-side position for a pure delete ending before
// script index next: the newIndex of the following keep, or one past the
// last add/keep seen so far.
func anchorJ(script []byteOp, next int) int {
	if next < len(script) {
		return script[next].newIndex
	}
	for i := len(script) - 1; i >= 0; i-- {
		if script[i].op != opDrop {
			return script[i].newIndex + 1
		}
	}
	return 0
}

// anchorI is the old-side analogue of anchorJ for pure inserts.
func anchorI(script []byteOp, next int) int {
	if next < len(script) {
		return script[next].oldIndex
	}
	for i := len(script) - 1; i >= 0; i-- {
		if script[i].op != opAdd {
			return script[i].oldIndex + 1
		}
	}
	return 0
}

// coalesceEqual joins adjacent equal opcodes (the trimmed prefix or suffix
// can sit flush against an equal run from the middle).
func coalesceEqual(ops []Opcode) []Opcode {
	if len(ops) < 2 {
		return ops
	}
	out := ops[:1]
	for _, op := range ops[1:] {
		last := &out[len(out)-1]
		if op.Tag == OpEqual && last.Tag == OpEqual && last.I2 == op.I1 && last.J2 == op.J1 {
			last.I2 = op.I2
			last.J2 = op.J2
			continue
		}
		out = append(out, op)
	}
	return out
}
