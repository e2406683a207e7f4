// Package ledger provides the payload types of the gig-work ledger.
//
// This package contains type definitions and small value helpers only. The
// sync engine treats these payloads as opaque JSON; only the rollup and
// aggregate packages look inside them.
//
// Key design constraints:
//   - Money and distance use decimal.Decimal, never float64
//   - Dates are ISO "2006-01-02" strings, clock times are "15:04" strings
//   - All JSON tags use snake_case
//   - ledger imports nothing internal
package ledger
