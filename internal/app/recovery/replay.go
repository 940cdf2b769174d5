// Package recovery re-appends journaled records that never reached the store.
package recovery

import (
	"context"
	"fmt"

	"github.com/sanjai-web/Micro-Plastic-Detection/internal/domain"
	"github.com/sanjai-web/Micro-Plastic-Detection/internal/ports"
)

// Result counts what a replay did.
type Result struct {
	Replayed int
	Failed   int
}

// Replay appends every uncommitted journal entry to store and commits the ones
// that succeed. Appends are idempotent, so an entry whose first write landed
// before a crash is harmless to replay. Failed entries stay in the journal.
func Replay(ctx context.Context, j ports.Journal, store ports.RecordStore, obs ports.Observability) (Result, error) {
	var res Result
	start := j.Stats().OldestUncommitted

	err := j.Iterate(start, func(id ports.JournalEntryID, rec domain.DetectionRecord) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := store.Append(ctx, rec); err != nil {
			res.Failed++
			obs.LogError("journal_replay_append_failed", err,
				ports.Field{Key: "entry", Value: id},
				ports.Field{Key: "record", Value: rec.Key().String()})
			return nil
		}
		if err := j.Commit(id); err != nil {
			return fmt.Errorf("commit journal entry %d: %w", id, err)
		}
		res.Replayed++
		obs.IncCounter(ports.MetricJournalReplayed, 1)
		return nil
	})
	if err != nil {
		return res, fmt.Errorf("replay journal: %w", err)
	}

	if err := j.TruncateCommitted(); err != nil {
		obs.LogError("journal_truncate_failed", err)
	}
	obs.SetGauge(ports.GaugeJournalBytes, float64(j.Stats().SizeBytes))
	if res.Replayed > 0 || res.Failed > 0 {
		obs.LogInfo("journal_replayed",
			ports.Field{Key: "replayed", Value: res.Replayed},
			ports.Field{Key: "failed", Value: res.Failed})
	}
	return res, nil
}
