// Package rollup derives shift totals from trips, and day, weekday, week
// and year rollups from shifts.
//
// Derived values are always recomputed from scratch from the manual fields
// and the current trips. Nothing is patched incrementally, so a deleted or
// excluded trip can never leave drift behind.
package rollup
