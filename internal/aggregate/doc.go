// Package aggregate folds externally-sourced facts into reference entities
// addressed by a natural key (an address, a person's name, a place).
//
// Merging is additive: accumulators are summed, notes and cross-references
// are appended and deduplicated, and an existing entity keeps its identity.
// Merge is commutative over a fixed batch of facts but not idempotent, so
// every fact must be merged exactly once. That boundary belongs to the
// caller (a load, an append, a confirmed trip).
package aggregate
