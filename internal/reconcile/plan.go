package reconcile

import (
	"context"
	"runtime"

	"github.com/dshills/coalesce/internal/crdt"
)

// Step is one discrete unit of reconciliation work: one cell, one opcode,
// one planning pass. A step may enqueue further steps, which run after the
// steps already queued.
type Step func(p *Plan) error

// Plan is an explicit work queue of reconciliation steps sharing one lazy
// transaction. The mutation half of the plan opens the transaction on its
// first write; a plan that never writes never opens one, so observers stay
// silent on a no-op.
type Plan struct {
	tree    *crdt.Tree
	steps   []Step
	txOpen  bool
	applied bool
}

func newPlan(tree *crdt.Tree) *Plan {
	return &Plan{tree: tree}
}

// add appends steps to the end of the queue.
func (p *Plan) add(steps ...Step) {
	p.steps = append(p.steps, steps...)
}

// ensureTx opens the plan's transaction if it is not open yet. Every
// mutating step calls this before its first write.
func (p *Plan) ensureTx() {
	if p.txOpen {
		return
	}
	p.tree.Begin()
	p.txOpen = true
	p.applied = true
}

// closeTx commits the transaction if one was opened. Safe to call more
// than once.
func (p *Plan) closeTx() {
	if !p.txOpen {
		return
	}
	p.txOpen = false
	p.tree.Commit()
}

// run drains the queue. With a nil yield it runs every step back to back;
// otherwise it yields after each step and checks ctx between steps. The
// transaction, if opened, commits on all exit paths, so cancellation
// leaves the tree in the valid state the completed steps produced.
func (p *Plan) run(ctx context.Context, yield YieldFunc) error {
	defer p.closeTx()
	for len(p.steps) > 0 {
		if ctx != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
		}
		step := p.steps[0]
		p.steps = p.steps[1:]
		if err := step(p); err != nil {
			return err
		}
		if yield != nil {
			if err := yield(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}

// YieldFunc hands control back to the scheduler's host between steps.
// Returning an error aborts the run (the transaction still commits the
// completed steps).
type YieldFunc func(ctx context.Context) error

// Gosched is the default yield: it offers the processor to other
// goroutines without blocking.
func Gosched(ctx context.Context) error {
	runtime.Gosched()
	return nil
}

// Reconciliation is a planned reconciliation ready to run. The synchronous
// and yielding drivers execute the identical step sequence and produce
// identical final state and observer notifications.
type Reconciliation struct {
	plan *Plan
}

// Run executes every step back to back and reports whether any change was
// applied.
func (r *Reconciliation) Run() (bool, error) {
	err := r.plan.run(nil, nil)
	return r.plan.applied, err
}

// RunYield executes the same steps but yields control after each one,
// never holding the host for more than a single step's cost. A nil yield
// uses Gosched. Cancellation between steps commits the completed work and
// returns the context error.
func (r *Reconciliation) RunYield(ctx context.Context, yield YieldFunc) (bool, error) {
	if yield == nil {
		yield = Gosched
	}
	err := r.plan.run(ctx, yield)
	return r.plan.applied, err
}

// Steps returns the number of steps currently queued. Useful for
// instrumentation; it shrinks as the plan runs and can grow as steps
// enqueue follow-up work.
func (r *Reconciliation) Steps() int {
	return len(r.plan.steps)
}
