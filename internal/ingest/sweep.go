package ingest

import (
	"context"
	"fmt"

	"github.com/TobiSchelling/RivalWatch/internal/database"
)

// SweepResult holds the counters of a re-classification sweep.
type SweepResult struct {
	Found        int
	Reclassified int
	Errors       int
}

// Reclassify re-runs classification over recent unprocessed updates and
// marks them processed. Per-item storage failures are logged and skipped.
func (o *Orchestrator) Reclassify(ctx context.Context) (*SweepResult, error) {
	processed := false
	updates, err := o.db.ListUpdates(database.UpdateFilter{
		CreatedFrom: o.now().Add(-o.opts.ReclassifyWindow),
		Processed:   &processed,
		Limit:       uint64(o.opts.ReclassifyBatch),
	})
	if err != nil {
		return nil, fmt.Errorf("listing unprocessed updates: %w", err)
	}

	o.logger.Info("starting re-classification", "updates", len(updates))
	r := &SweepResult{Found: len(updates)}
	for i := range updates {
		u := &updates[i]
		prev := u.Entities
		result := o.classifier.Classify(ctx, u.Title, u.Summary, u.Content)
		result.Apply(u)
		// Card-derived prices are not in the text the classifier sees.
		if prev.Price != "" {
			keepPricing(&u.Entities, prev.Price, prev.Product)
		}
		if err := o.db.SaveClassification(u); err != nil {
			o.logger.Error("re-classification failed", "update_id", u.ID, "error", err)
			r.Errors++
			continue
		}
		r.Reclassified++
		o.logger.Debug("re-classified", "update_id", u.ID, "category", u.Category)

		if err := o.sleep(ctx, o.opts.ReclassifyDelay); err != nil {
			return r, err
		}
	}

	o.logger.Info("re-classification complete", "reclassified", r.Reclassified, "errors", r.Errors)
	return r, nil
}

// Cleanup marks updates older than the retention age that are still
// unprocessed as processed. Nothing is deleted. Returns rows affected.
func (o *Orchestrator) Cleanup(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	n, err := o.db.MarkStaleProcessed(o.now().Add(-o.opts.RetentionAge))
	if err != nil {
		return 0, fmt.Errorf("marking stale updates: %w", err)
	}
	o.logger.Info("cleanup complete", "marked_processed", n)
	return n, nil
}
