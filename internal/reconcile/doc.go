// Package reconcile transforms live shared-tree state to match a desired
// plain-value snapshot with minimal, identity-preserving edits.
//
// The package provides:
//
//   - Text reconciliation: a grapheme-safe edit script replayed against a
//     Text handle, with a similarity-guarded hard-replace fallback
//   - Cell-list reconciliation: match, retain, reorder, insert, delete and
//     granularly patch identity-bearing notebook cells in a shared array
//   - A cooperative scheduler: reconciliations are explicit step queues
//     run either to completion (Run) or one step at a time with a yield
//     after each step (RunYield), with byte-identical results
//
// All mutation happens inside a single transaction per reconciliation,
// opened lazily on the first write, so a no-op reconciliation opens no
// transaction and observers stay silent. Cancelling a yielding run commits
// the work completed so far: the tree is left in a valid, if incomplete,
// state and never sees a torn write.
//
// Duplicate cell identities found in the live array are repaired (the
// second occurrence is reassigned a fresh identity) and reported through
// the DiagnosticFunc supplied via WithDiagnostics.
package reconcile
