package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/gigledger/internal/ledger"
	"github.com/roach88/gigledger/internal/store"
)

// CompactSequence closes the gap at freed by shifting every later record
// down to the next free seq, preserving order. A moved clean record becomes
// PendingUpdate so its new row reaches the remote store; pending records
// keep their state.
//
// A slot that cannot be moved is logged and skipped; the walk continues
// after it and the remaining gap is repaired by a later cycle. Returns the
// number of records moved.
func (r *Reconciler) CompactSequence(ctx context.Context, c ledger.Collection, freed int64) (int, error) {
	moved := 0
	err := r.tracker.locked(func() error {
		max, err := r.store.MaxSeq(ctx, c)
		if err != nil {
			return fmt.Errorf("compact %s: %w", c, err)
		}

		fill := freed
		for candidate := freed + 1; candidate <= max; candidate++ {
			rec, err := r.store.BySeq(ctx, c, candidate)
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			if err == nil && rec.Seq == fill {
				fill++
				continue
			}
			if err == nil {
				err = r.store.Resequence(ctx, c, rec.LocalID, fill)
			}
			if err != nil {
				r.logger.Warn("compaction slot skipped",
					"error", NewCompactionGapError(c, rec.LocalID, candidate, fill, err))
				fill = candidate + 1
				continue
			}
			fill++
			moved++
		}
		return nil
	})
	if moved > 0 {
		r.logger.Info("sequence compacted", "collection", c, "from", freed, "moved", moved)
	}
	return moved, err
}

// repairGaps compacts from the first missing seq, if any. Gaps remain when
// an earlier compaction skipped a slot or a cycle stopped part way.
func (r *Reconciler) repairGaps(ctx context.Context, c ledger.Collection, report *CommitReport) error {
	gap, ok, err := r.store.FirstGap(ctx, c)
	if err != nil {
		return fmt.Errorf("find gap %s: %w", c, err)
	}
	if !ok {
		return nil
	}

	r.logger.Info("repairing sequence gap", "collection", c, "seq", gap)
	moved, err := r.CompactSequence(ctx, c, gap)
	report.Compacted += moved
	return err
}
