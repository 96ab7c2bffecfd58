// Package digest builds daily and weekly competitor digests: aggregate the
// window's updates, narrate them with an LLM or a fixed template, store the
// result and email it.
package digest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/TobiSchelling/RivalWatch/internal/database"
	"github.com/TobiSchelling/RivalWatch/internal/llm"
	"github.com/TobiSchelling/RivalWatch/internal/logging"
	"github.com/TobiSchelling/RivalWatch/internal/notify"
)

// Narrative sources recorded in digest metadata.
const (
	NarrativeLLM      = "llm"
	NarrativeTemplate = "template"
)

// Options configures digest windows.
type Options struct {
	Location  *time.Location // Default: UTC.
	WeekStart time.Weekday   // Default: Sunday.
	MaxTokens int            // Default: 2048.
}

// Generator produces digests.
type Generator struct {
	db       *database.DB
	provider llm.Provider
	sender   notify.Sender
	opts     Options
	now      func() time.Time
	logger   *slog.Logger
}

// New creates a Generator. provider and sender may be nil.
func New(db *database.DB, provider llm.Provider, sender notify.Sender, opts Options, logger *slog.Logger) *Generator {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 2048
	}
	return &Generator{
		db:       db,
		provider: provider,
		sender:   sender,
		opts:     opts,
		now:      time.Now,
		logger:   logging.Or(logger),
	}
}

// DailyWindow spans the start of yesterday through the end of today in loc.
func DailyWindow(now time.Time, loc *time.Location) (time.Time, time.Time) {
	now = now.In(loc)
	return startOfDay(now.AddDate(0, 0, -1)), endOfDay(now)
}

// WeeklyWindow spans the start of the week containing now-7d through the
// end of the week containing now.
func WeeklyWindow(now time.Time, loc *time.Location, weekStart time.Weekday) (time.Time, time.Time) {
	now = now.In(loc)
	start := startOfWeek(now.AddDate(0, 0, -7), weekStart)
	end := startOfWeek(now, weekStart).AddDate(0, 0, 7).Add(-time.Microsecond)
	return start, end
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// endOfDay is the last instant of t's day at storage precision.
func endOfDay(t time.Time) time.Time {
	return startOfDay(t).AddDate(0, 0, 1).Add(-time.Microsecond)
}

func startOfWeek(t time.Time, weekStart time.Weekday) time.Time {
	offset := (int(t.Weekday()) - int(weekStart) + 7) % 7
	return startOfDay(t).AddDate(0, 0, -offset)
}

// GenerateDaily builds and stores the daily digest. Returns nil when the
// window has no updates.
func (g *Generator) GenerateDaily(ctx context.Context) (*database.Digest, error) {
	start, end := DailyWindow(g.now(), g.opts.Location)
	g.logger.Info("generating daily digest", "from", start, "to", end)

	updates, names, err := g.load(start, end)
	if err != nil {
		return nil, err
	}
	if len(updates) == 0 {
		g.logger.Info("no updates found for daily digest")
		return nil, nil
	}

	a := Aggregate(updates, names)
	summary, source := g.narrateDaily(ctx, a)

	metadata := map[string]any{
		"totalUpdates":      a.Total,
		"competitorsActive": len(a.Activity),
		"categories":        a.CategoryBreakdown,
		"topCompetitor":     a.MostActive,
		"narrative":         source,
	}
	d, err := g.store(database.DigestDaily, start, end, summary, metadata, updates)
	if err != nil {
		return nil, err
	}
	g.email(ctx, d, dailyMarkdown(summary, start, end, g.opts.Location))
	g.logger.Info("daily digest generated", "digest_id", d.ID, "updates", a.Total, "narrative", source)
	return d, nil
}

// GenerateWeekly builds and stores the weekly digest. Returns nil when the
// window has no updates.
func (g *Generator) GenerateWeekly(ctx context.Context) (*database.Digest, error) {
	start, end := WeeklyWindow(g.now(), g.opts.Location, g.opts.WeekStart)
	g.logger.Info("generating weekly digest", "from", start, "to", end)

	updates, names, err := g.load(start, end)
	if err != nil {
		return nil, err
	}
	if len(updates) == 0 {
		g.logger.Info("no updates found for weekly digest")
		return nil, nil
	}

	a := Aggregate(updates, names)
	trends := AnalyzeTrends(updates, names, a)
	summary, source := g.narrateWeekly(ctx, a, trends)

	metadata := map[string]any{
		"totalUpdates":      a.Total,
		"competitorsActive": len(a.Activity),
		"categories":        a.CategoryBreakdown,
		"trends":            trends,
		"narrative":         source,
	}
	d, err := g.store(database.DigestWeekly, start, end, summary, metadata, updates)
	if err != nil {
		return nil, err
	}
	g.email(ctx, d, weeklyMarkdown(summary, start, end, g.opts.Location))
	g.logger.Info("weekly digest generated", "digest_id", d.ID, "updates", a.Total, "narrative", source)
	return d, nil
}

// Latest returns the newest digest of a type, or nil.
func (g *Generator) Latest(digestType string) (*database.Digest, error) {
	return g.db.GetLatestDigest(digestType)
}

// History returns stored digests, newest first. An empty type lists all.
func (g *Generator) History(digestType string, limit int) ([]database.Digest, error) {
	if limit <= 0 {
		limit = 30
	}
	return g.db.ListDigests(digestType, limit)
}

func (g *Generator) load(start, end time.Time) ([]database.Update, map[int64]string, error) {
	updates, err := g.db.ListUpdates(database.UpdateFilter{CreatedFrom: start, CreatedTo: end})
	if err != nil {
		return nil, nil, fmt.Errorf("loading updates: %w", err)
	}
	competitors, err := g.db.ListCompetitors(false)
	if err != nil {
		return nil, nil, fmt.Errorf("loading competitors: %w", err)
	}
	names := make(map[int64]string, len(competitors))
	for _, c := range competitors {
		names[c.ID] = c.Name
	}
	return updates, names, nil
}

func (g *Generator) narrateDaily(ctx context.Context, a *Analytics) (DailySummary, string) {
	if g.provider != nil {
		var s DailySummary
		err := g.generate(ctx, dailyPrompt(a), &s)
		if err == nil {
			return s, NarrativeLLM
		}
		g.logger.Warn("daily narrative failed, using template", "error", err)
	}
	return dailyTemplate(a), NarrativeTemplate
}

func (g *Generator) narrateWeekly(ctx context.Context, a *Analytics, t Trends) (WeeklySummary, string) {
	if g.provider != nil {
		var s WeeklySummary
		err := g.generate(ctx, weeklyPrompt(a, t), &s)
		if err == nil {
			return s, NarrativeLLM
		}
		g.logger.Warn("weekly narrative failed, using template", "error", err)
	}
	return weeklyTemplate(a, t), NarrativeTemplate
}

func (g *Generator) generate(ctx context.Context, prompt string, out any) error {
	response, err := g.provider.Generate(ctx, prompt, g.opts.MaxTokens)
	if err != nil {
		return err
	}
	return decodeNarrative(llm.ParseJSONResponse(response), out)
}

func (g *Generator) store(digestType string, start, end time.Time, summary any, metadata map[string]any, updates []database.Update) (*database.Digest, error) {
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return nil, fmt.Errorf("encoding summary: %w", err)
	}
	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("encoding metadata: %w", err)
	}
	ids := make([]int64, len(updates))
	for i, u := range updates {
		ids[i] = u.ID
	}

	d := &database.Digest{
		Type:        digestType,
		PeriodStart: start,
		PeriodEnd:   end,
		Summary:     summaryJSON,
		Metadata:    metaJSON,
		UpdateIDs:   ids,
		CreatedAt:   g.now(),
	}
	if _, err := g.db.InsertDigest(d); err != nil {
		return nil, fmt.Errorf("storing %s digest: %w", digestType, err)
	}
	return d, nil
}

// email sends the digest when email is configured. Failures are logged only.
func (g *Generator) email(ctx context.Context, d *database.Digest, msg notify.Message) {
	if g.sender == nil || !g.sender.IsConfigured() {
		return
	}
	if err := g.sender.Send(ctx, msg); err != nil {
		g.logger.Error("failed to email digest", "digest_id", d.ID, "error", err)
		return
	}
	at := g.now()
	if err := g.db.MarkDigestEmailed(d.ID, at); err != nil {
		g.logger.Error("failed to mark digest emailed", "digest_id", d.ID, "error", err)
		return
	}
	d.EmailSent = true
	d.EmailSentAt = &at
}
