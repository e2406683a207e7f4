// Package harness runs sync scenarios against the engine.
//
// A scenario drives a fresh engine (temporary SQLite store, in-memory sheet,
// fake clock, sequential ids) through a list of steps and then checks the
// local and remote state.
//
// # Scenario Format
//
//	name: delete_middle_expense
//	description: "Deleting a committed row shifts the rows after it"
//	steps:
//	  - op: create
//	    collection: expenses
//	    as: a
//	    payload: { date: "2026-10-14", name: gas, amount: 40 }
//	  - op: commit
//	    expect: { pushed: 1 }
//	  - op: delete
//	    ref: a
//	  - op: fail
//	    collection: expenses
//	assertions:
//	  - type: seqs
//	    collection: expenses
//	    seqs: { b: 1, c: 2 }
//	  - type: remote
//	    collection: expenses
//	    rows: [b, c]
//
// # Steps
//
//   - create: create a record from payload and remember it as `as`
//   - update: replace the payload of `ref`
//   - delete: mark `ref` deleted
//   - commit: run one commit cycle; `expect` checks the report counts
//   - fail / recover: make the sheet's `collection` fail or work again
//   - seed: replace the sheet rows of `collection` with `rows`
//   - load: replace local data with the sheet's
//   - recompute: recompute shifts and rollups
//   - advance: move the clock forward by `duration`
//
// # Assertion Types
//
//   - pending: number of records awaiting commit
//   - state: lifecycle state of `ref` ("absent" once purged)
//   - seqs: seq of each listed ref; 0 means the record is gone
//   - remote: sheet rows of `collection`, by ref; "~" is a blank row
//
// Runs are deterministic, so RunWithGolden can snapshot the trace and the
// final state.
package harness
