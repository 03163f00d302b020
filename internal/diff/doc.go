// Package diff computes byte-offset edit scripts and similarity ratios
// between two strings, for replay against a shared text handle.
//
// The package provides:
//
//   - QuickRatio, a cheap upper bound on similarity from byte histograms
//   - Compute, which produces merged equal/replace/delete/insert opcodes
//     via Myers diff (with common prefix/suffix trimming and size guards)
//     together with the exact similarity ratio
//   - Snap, which corrects opcode boundaries so they never split a grapheme
//     cluster, reporting failure when corrected ranges would overlap
//
// Ratios are on a 0-1 scale; SimilarityCutoff is the fixed threshold below
// which a granular edit script stops being worth its op count and callers
// should hard-replace instead.
package diff
