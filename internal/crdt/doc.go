// Package crdt defines the shared-tree substrate boundary that the
// reconciliation engine builds on: transactional, observable Text, Map and
// Array handles rooted in a Tree.
//
// The package provides:
//
//   - Typed handles (Text, Map, Array) with position- and key-addressed
//     mutation
//   - Scoped, reentrant transactions; change events are buffered and
//     delivered only when the outermost transaction commits
//   - Shallow (Observe) and subtree (ObserveDeep) change observation with
//     idempotent unsubscription
//   - Detached handle construction (NewText, NewMap, NewArray) for building
//     nested records before they are inserted into a tree
//
// This is deliberately a boundary plus an in-memory reference store, not a
// replicated CRDT: merge semantics, network synchronization and persistence
// belong to whatever substrate implementation is attached behind these
// handles. Within a process the store assumes the single-writer discipline
// of the reconciliation layer; concurrent top-level transactions serialize
// on the tree, and reads racing an open transaction are not supported.
//
// Basic usage:
//
//	tree := crdt.NewTree()
//	src := tree.GetText("source")
//	err := tree.Transact(func() error {
//	    return src.Insert(0, "hello")
//	})
package crdt
