// Package remote abstracts the authoritative spreadsheet-backed store.
//
// The remote store is positional: every collection is a sheet whose rows are
// addressed by a 1-based row number. Deleting a row shifts every later row up
// by one, which is why local sequence ids must stay dense.
//
// Three implementations are provided:
//   - Sheet: an in-memory sheet used by tests and by the sheet-server command
//   - Client: an HTTP client for a sheet served by NewHandler
//   - NewHandler: a chi router exposing a Sheet over HTTP
package remote
