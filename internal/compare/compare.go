// Package compare builds the cross-competitor comparison matrix and its
// narrative insights.
package compare

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/TobiSchelling/RivalWatch/internal/database"
	"github.com/TobiSchelling/RivalWatch/internal/llm"
	"github.com/TobiSchelling/RivalWatch/internal/logging"
)

// Insight sources recorded in comparison metadata.
const (
	InsightsLLM      = "llm"
	InsightsTemplate = "template"
)

// Options configures comparisons.
type Options struct {
	Window      time.Duration // trailing period analyzed. Default: 30 days.
	Parallelism int           // concurrent per-competitor loads. Default: 4.
	MaxTokens   int           // Default: 2048.
}

// Engine generates comparisons.
type Engine struct {
	db       *database.DB
	provider llm.Provider
	opts     Options
	now      func() time.Time
	logger   *slog.Logger
}

// New creates an Engine. provider may be nil.
func New(db *database.DB, provider llm.Provider, opts Options, logger *slog.Logger) *Engine {
	if opts.Window <= 0 {
		opts.Window = 30 * 24 * time.Hour
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = 4
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 2048
	}
	return &Engine{
		db:       db,
		provider: provider,
		opts:     opts,
		now:      time.Now,
		logger:   logging.Or(logger),
	}
}

// Generate compares every active competitor over the trailing window and
// stores the result. Returns nil when fewer than two competitors are active.
func (e *Engine) Generate(ctx context.Context) (*database.Comparison, error) {
	competitors, err := e.db.ListCompetitors(true)
	if err != nil {
		return nil, fmt.Errorf("loading competitors: %w", err)
	}
	if len(competitors) < 2 {
		e.logger.Info("not enough active competitors to compare", "active", len(competitors))
		return nil, nil
	}

	end := e.now()
	start := end.Add(-e.opts.Window)
	e.logger.Info("generating comparison", "competitors", len(competitors), "from", start)

	stats, total, err := e.load(ctx, competitors, start)
	if err != nil {
		return nil, err
	}

	m := newMatrix()
	ids := make([]int64, len(competitors))
	for i, c := range competitors {
		ids[i] = c.ID
		m.Add(c.Name, stats[i])
	}

	insights, source := e.insights(ctx, m)

	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encoding comparison: %w", err)
	}
	insightsJSON, err := json.Marshal(insights)
	if err != nil {
		return nil, fmt.Errorf("encoding insights: %w", err)
	}
	metaJSON, err := json.Marshal(map[string]any{
		"totalCompetitors": len(competitors),
		"totalUpdates":     total,
		"period":           map[string]time.Time{"start": start, "end": end},
		"insights":         source,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding metadata: %w", err)
	}

	c := &database.Comparison{
		CompetitorIDs: ids,
		Data:          data,
		Insights:      insightsJSON,
		Metadata:      metaJSON,
		CreatedAt:     end,
	}
	if _, err := e.db.InsertComparison(c); err != nil {
		return nil, fmt.Errorf("storing comparison: %w", err)
	}
	e.logger.Info("comparison generated", "comparison_id", c.ID, "updates", total, "insights", source)
	return c, nil
}

// load fetches and analyzes each competitor's updates concurrently. The
// returned stats are indexed like competitors.
func (e *Engine) load(ctx context.Context, competitors []database.Competitor, since time.Time) ([]Stats, int, error) {
	stats := make([]Stats, len(competitors))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Parallelism)

	for i, c := range competitors {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			updates, err := e.db.ListUpdates(database.UpdateFilter{
				CompetitorIDs: []int64{c.ID},
				CreatedFrom:   since,
			})
			if err != nil {
				return fmt.Errorf("loading updates for %s: %w", c.Name, err)
			}
			stats[i] = Analyze(updates)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}

	total := 0
	for _, s := range stats {
		total += s.TotalUpdates
	}
	return stats, total, nil
}

func (e *Engine) insights(ctx context.Context, m *Matrix) (Insights, string) {
	if e.provider != nil {
		response, err := e.provider.Generate(ctx, buildPrompt(m), e.opts.MaxTokens)
		if err == nil {
			var ins Insights
			ins, err = decodeInsights(llm.ParseJSONResponse(response))
			if err == nil {
				return ins, InsightsLLM
			}
		}
		e.logger.Warn("comparison insights failed, using template", "error", err)
	}
	return templateInsights(m), InsightsTemplate
}

// Latest returns the newest stored comparison, or nil.
func (e *Engine) Latest() (*database.Comparison, error) {
	return e.db.GetLatestComparison()
}

// History returns stored comparisons, newest first.
func (e *Engine) History(limit int) ([]database.Comparison, error) {
	if limit <= 0 {
		limit = 10
	}
	return e.db.ListComparisons(limit)
}
