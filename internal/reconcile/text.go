package reconcile

import (
	"fmt"

	"github.com/dshills/coalesce/internal/crdt"
	"github.com/dshills/coalesce/internal/diff"
)

// Text brings the handle's content to desired with the smallest reasonable
// edit script and reports whether anything was applied. Identical content
// is a silent no-op: no transaction opens and no observer fires.
func Text(handle *crdt.Text, desired string) (bool, error) {
	return NewText(handle, desired).Run()
}

// NewText plans a text reconciliation for one of the drivers to run.
func NewText(handle *crdt.Text, desired string) *Reconciliation {
	p := newPlan(handle.Tree())
	p.add(func(p *Plan) error {
		if handle.Tree() == nil {
			return ErrNotAttached
		}
		current := handle.String()
		if current == desired {
			return nil
		}
		ops, granular := planTextOps(current, desired)
		if !granular {
			p.add(hardReplaceStep(handle, desired))
			return nil
		}
		enqueueTextOps(p, handle, desired, ops)
		return nil
	})
	return &Reconciliation{plan: p}
}

// planTextOps decides between granular and hard-replace mode. Both
// similarity checks run cheap-then-exact against the fixed cutoff, and the
// script survives only if every range can be corrected to grapheme
// boundaries without overlap.
func planTextOps(current, desired string) ([]diff.Opcode, bool) {
	if diff.QuickRatio(current, desired) < diff.SimilarityCutoff {
		return nil, false
	}
	res, err := diff.Compute(current, desired, diff.DefaultOptions())
	if err != nil {
		return nil, false
	}
	if res.Ratio() < diff.SimilarityCutoff {
		return nil, false
	}
	ops, ok := diff.Snap(current, desired, res.Ops)
	if !ok {
		return nil, false
	}
	return ops, true
}

// enqueueTextOps queues one step per non-equal opcode. Replay keeps a
// running length delta so each op targets the handle's current coordinate
// space mid-replay.
func enqueueTextOps(p *Plan, handle *crdt.Text, desired string, ops []diff.Opcode) {
	delta := 0
	deltaP := &delta
	for _, op := range ops {
		if op.Tag == diff.OpEqual {
			continue
		}
		op := op
		p.add(func(p *Plan) error {
			return applyTextOp(p, handle, desired, op, deltaP)
		})
	}
}

// applyTextOp replays a single opcode against the handle.
func applyTextOp(p *Plan, handle *crdt.Text, desired string, op diff.Opcode, delta *int) error {
	switch op.Tag {
	case diff.OpReplace:
		p.ensureTx()
		if err := handle.Delete(op.I1+*delta, op.I2+*delta); err != nil {
			return err
		}
		if err := handle.Insert(op.I1+*delta, desired[op.J1:op.J2]); err != nil {
			return err
		}
		*delta += (op.J2 - op.J1) - (op.I2 - op.I1)
	case diff.OpDelete:
		p.ensureTx()
		if err := handle.Delete(op.I1+*delta, op.I2+*delta); err != nil {
			return err
		}
		*delta -= op.I2 - op.I1
	case diff.OpInsert:
		p.ensureTx()
		if err := handle.Insert(op.I1+*delta, desired[op.J1:op.J2]); err != nil {
			return err
		}
		*delta += op.J2 - op.J1
	default:
		// The opcode vocabulary is closed; anything else is a dependency
		// contract violation, not an input condition.
		panic(fmt.Sprintf("reconcile: unknown opcode tag %d", op.Tag))
	}
	return nil
}

// hardReplaceStep clears the handle and writes the full desired content: a
// single pair of wire ops, used when granular mode is unsafe or not worth
// its op count.
func hardReplaceStep(handle *crdt.Text, desired string) Step {
	return func(p *Plan) error {
		p.ensureTx()
		if handle.Len() > 0 {
			if err := handle.Delete(0, handle.Len()); err != nil {
				return err
			}
		}
		if desired != "" {
			if err := handle.Insert(0, desired); err != nil {
				return err
			}
		}
		return nil
	}
}

// reconcileTextNow runs a full text reconciliation immediately, inside the
// caller's already-open transaction. Used by the granular cell patcher for
// a cell's source field.
func reconcileTextNow(p *Plan, handle *crdt.Text, desired string) error {
	current := handle.String()
	if current == desired {
		return nil
	}
	p.ensureTx()
	ops, granular := planTextOps(current, desired)
	if !granular {
		return hardReplaceStep(handle, desired)(p)
	}
	delta := 0
	for _, op := range ops {
		if op.Tag == diff.OpEqual {
			continue
		}
		if err := applyTextOp(p, handle, desired, op, &delta); err != nil {
			return err
		}
	}
	return nil
}
