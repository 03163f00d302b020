// Package document provides the per-kind facades over a shared tree: plain
// text, binary blob, and notebook. Each facade owns its tree's roots,
// dispatches get and set through the reconcilers so unchanged content never
// produces change events, and multiplexes root-level change notifications
// to a single observer callback keyed by topic.
package document
