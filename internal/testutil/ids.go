package testutil

import (
	"fmt"
	"sync/atomic"
)

// SequentialIDs generates predictable local ids: prefix-0001, prefix-0002...
//
// The same scenario with a fresh SequentialIDs produces identical ids, which
// keeps golden snapshots stable.
//
// Thread-safety: SequentialIDs is safe for concurrent use.
type SequentialIDs struct {
	prefix string
	n      atomic.Int64
}

// NewSequentialIDs creates a generator. An empty prefix becomes "id".
func NewSequentialIDs(prefix string) *SequentialIDs {
	if prefix == "" {
		prefix = "id"
	}
	return &SequentialIDs{prefix: prefix}
}

// Generate returns the next id.
func (g *SequentialIDs) Generate() string {
	return fmt.Sprintf("%s-%04d", g.prefix, g.n.Add(1))
}
