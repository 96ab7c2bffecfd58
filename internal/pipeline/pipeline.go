// Package pipeline wires the RivalWatch components together from config and
// exposes the manual triggers and scheduled jobs built on them.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/TobiSchelling/RivalWatch/internal/alert"
	"github.com/TobiSchelling/RivalWatch/internal/classify"
	"github.com/TobiSchelling/RivalWatch/internal/compare"
	"github.com/TobiSchelling/RivalWatch/internal/config"
	"github.com/TobiSchelling/RivalWatch/internal/database"
	"github.com/TobiSchelling/RivalWatch/internal/digest"
	"github.com/TobiSchelling/RivalWatch/internal/extract"
	"github.com/TobiSchelling/RivalWatch/internal/fetch"
	"github.com/TobiSchelling/RivalWatch/internal/ingest"
	"github.com/TobiSchelling/RivalWatch/internal/llm"
	"github.com/TobiSchelling/RivalWatch/internal/logging"
	"github.com/TobiSchelling/RivalWatch/internal/notify"
	"github.com/TobiSchelling/RivalWatch/internal/scheduler"
)

// Job names.
const (
	JobScrape       = "scrape"
	JobReclassify   = "reclassify"
	JobCleanup      = "cleanup"
	JobDailyDigest  = "daily_digest"
	JobWeeklyDigest = "weekly_digest"
	JobComparison   = "comparison"
)

// StepResult holds the result of a single triggered step.
type StepResult struct {
	Name    string
	Summary string
	Err     error
}

// Pipeline holds the wired components.
type Pipeline struct {
	cfg      *config.Config
	db       *database.DB
	provider llm.Provider
	logger   *slog.Logger

	orchestrator *ingest.Orchestrator
	alerts       *alert.Engine
	digests      *digest.Generator
	comparisons  *compare.Engine
}

// New builds every component from cfg. The LLM provider is optional;
// without one classification and narratives use their fallbacks.
func New(cfg *config.Config, db *database.DB, logger *slog.Logger) (*Pipeline, error) {
	logger = logging.Or(logger)
	loc, err := cfg.Digest.Location()
	if err != nil {
		return nil, err
	}

	llmCfg := cfg.LLM
	provider := llm.CreateProvider(llm.Options{
		Precedence:         llmCfg.Providers,
		OllamaURL:          llmCfg.OllamaURL,
		Model:              llmCfg.Model,
		OpenAIModel:        llmCfg.OpenAIModel,
		OpenAIAPIKeyEnv:    llmCfg.OpenAIAPIKeyEnv,
		AnthropicModel:     llmCfg.AnthropicModel,
		AnthropicAPIKeyEnv: llmCfg.AnthropicAPIKeyEnv,
	}, logger)

	var sender notify.Sender = notify.NewMailer(cfg.Email, logger)

	sc := cfg.Scraping
	fetcher := fetch.New(fetch.Config{
		UserAgent:    sc.UserAgent,
		Timeout:      sc.Timeout,
		MaxAttempts:  sc.MaxRetries,
		BaseDelay:    sc.RetryBaseDelay,
		MaxRedirects: sc.MaxRedirects,
	}, logger)

	alerts := alert.New(db, sender, logger)
	p := &Pipeline{
		cfg:      cfg,
		db:       db,
		provider: provider,
		logger:   logger,
		alerts:   alerts,
		orchestrator: ingest.New(db, fetcher, extract.New(logger), classify.New(provider, logger), alerts,
			ingest.Options{ItemDelay: sc.ItemDelay, ReclassifyDelay: sc.ReclassifyDelay}, logger),
		digests: digest.New(db, provider, sender, digest.Options{
			Location:  loc,
			WeekStart: cfg.Digest.WeekStartDay(),
			MaxTokens: llmCfg.MaxTokens,
		}, logger),
		comparisons: compare.New(db, provider, compare.Options{MaxTokens: llmCfg.MaxTokens}, logger),
	}
	return p, nil
}

// ProviderName returns the active LLM provider, or "rules" without one.
func (p *Pipeline) ProviderName() string {
	if p.provider == nil {
		return "rules"
	}
	return p.provider.Name()
}

// Alerts returns the alert engine.
func (p *Pipeline) Alerts() *alert.Engine { return p.alerts }

// Digests returns the digest generator.
func (p *Pipeline) Digests() *digest.Generator { return p.digests }

// Comparisons returns the comparison engine.
func (p *Pipeline) Comparisons() *compare.Engine { return p.comparisons }

// Scrape runs one ingestion pass over every active competitor.
func (p *Pipeline) Scrape(ctx context.Context) StepResult {
	r, err := p.orchestrator.ScrapeAll(ctx)
	return ingestStep("Scrape", r, err)
}

// ScrapeCompetitor runs one ingestion pass for a single competitor,
// whether or not it is active.
func (p *Pipeline) ScrapeCompetitor(ctx context.Context, id int64) StepResult {
	c, err := p.db.GetCompetitor(id)
	if err != nil {
		return StepResult{Name: "Scrape", Err: err}
	}
	if c == nil {
		return StepResult{Name: "Scrape", Err: fmt.Errorf("competitor %d not found", id)}
	}
	r, err := p.orchestrator.IngestCompetitor(ctx, *c)
	return ingestStep("Scrape "+c.Name, r, err)
}

func ingestStep(name string, r *ingest.Result, err error) StepResult {
	if err != nil {
		return StepResult{Name: name, Err: err}
	}
	return StepResult{
		Name: name,
		Summary: fmt.Sprintf("%d new items (%d candidates, %d duplicates, %d/%d targets failed, %d alerts)",
			r.NewUpdates, r.Candidates, r.Duplicates, r.TargetFailures, r.Targets, r.Alerts),
	}
}

// Reclassify runs the re-classification sweep.
func (p *Pipeline) Reclassify(ctx context.Context) StepResult {
	r, err := p.orchestrator.Reclassify(ctx)
	if err != nil {
		return StepResult{Name: "Reclassify", Err: err}
	}
	return StepResult{
		Name:    "Reclassify",
		Summary: fmt.Sprintf("Reclassified %d of %d updates, %d errors", r.Reclassified, r.Found, r.Errors),
	}
}

// Cleanup runs the retention sweep.
func (p *Pipeline) Cleanup(ctx context.Context) StepResult {
	n, err := p.orchestrator.Cleanup(ctx)
	if err != nil {
		return StepResult{Name: "Cleanup", Err: err}
	}
	return StepResult{Name: "Cleanup", Summary: fmt.Sprintf("Marked %d stale updates processed", n)}
}

// DailyDigest generates the daily digest.
func (p *Pipeline) DailyDigest(ctx context.Context) StepResult {
	d, err := p.digests.GenerateDaily(ctx)
	return digestStep("Daily digest", d, err)
}

// WeeklyDigest generates the weekly digest.
func (p *Pipeline) WeeklyDigest(ctx context.Context) StepResult {
	d, err := p.digests.GenerateWeekly(ctx)
	return digestStep("Weekly digest", d, err)
}

func digestStep(name string, d *database.Digest, err error) StepResult {
	switch {
	case err != nil:
		return StepResult{Name: name, Err: err}
	case d == nil:
		return StepResult{Name: name, Summary: "no digest generated (no updates in window)"}
	}
	summary := fmt.Sprintf("Digest %d stored with %d updates", d.ID, len(d.UpdateIDs))
	if d.EmailSent {
		summary += ", emailed"
	}
	return StepResult{Name: name, Summary: summary}
}

// Compare generates the comparison matrix.
func (p *Pipeline) Compare(ctx context.Context) StepResult {
	c, err := p.comparisons.Generate(ctx)
	switch {
	case err != nil:
		return StepResult{Name: "Compare", Err: err}
	case c == nil:
		return StepResult{Name: "Compare", Summary: "no comparison generated (need at least 2 active competitors)"}
	}
	return StepResult{
		Name:    "Compare",
		Summary: fmt.Sprintf("Comparison %d stored across %d competitors", c.ID, len(c.CompetitorIDs)),
	}
}

// Scheduler returns a scheduler with every job registered on its
// configured cron spec. Empty specs leave a job manual-only.
func (p *Pipeline) Scheduler() (*scheduler.Scheduler, error) {
	loc, err := p.cfg.Digest.Location()
	if err != nil {
		return nil, err
	}
	s := scheduler.New(loc, p.logger)

	sched := p.cfg.Schedule
	jobs := []struct {
		name string
		spec string
		run  func(context.Context) StepResult
	}{
		{JobScrape, sched.Scrape, p.Scrape},
		{JobReclassify, sched.Reclassify, p.Reclassify},
		{JobCleanup, sched.Cleanup, p.Cleanup},
		{JobDailyDigest, sched.DailyDigest, p.DailyDigest},
		{JobWeeklyDigest, sched.WeeklyDigest, p.WeeklyDigest},
		{JobComparison, sched.Comparison, p.Compare},
	}
	for _, j := range jobs {
		run := j.run
		if err := s.Add(j.name, j.spec, func(ctx context.Context) error {
			r := run(ctx)
			if r.Err == nil {
				p.logger.Info(r.Name, "summary", r.Summary)
			}
			return r.Err
		}); err != nil {
			return nil, err
		}
	}
	return s, nil
}
