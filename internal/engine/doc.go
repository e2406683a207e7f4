// Package engine implements the local-first synchronization engine.
//
// Local edits never wait for the network. Every create, update and delete is
// written to the local store immediately with a lifecycle state and a
// version, and a later commit cycle reconciles the pending records with the
// positional remote store.
//
// ARCHITECTURE:
//
// Single Writer:
// Tracker is the only component that writes lifecycle state and versions.
// The Reconciler clears pending state, removes committed deletes and
// compacts sequence ids, but only through the Tracker's unexported methods
// so every write is serialised by the same mutex.
//
// Commit Cycle:
//  1. Pending records are read per collection in ascending seq
//  2. Deletes go to the remote store first in seq order; each successful
//     delete shifts later remote rows up, so later rows are addressed
//     as seq minus the deletes already made in this pass
//  3. Pushes capture the version they read; state is cleared only if the
//     stored version still matches (compare-and-set)
//  4. Freed seqs are compacted so surviving records stay dense from 1
//
// Single-Flight:
// PollScheduler guarantees at most one commit cycle at a time. Overlapping
// triggers are dropped, not queued.
//
// ERROR HANDLING:
// Per-record failures are logged and the record stays pending. A cycle
// never aborts because one record failed, and no local data is discarded
// on failure.
package engine
