// Package ingest runs competitor scrape passes: fetch each target, extract
// candidate items, skip known URLs, classify, store and alert.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/TobiSchelling/RivalWatch/internal/alert"
	"github.com/TobiSchelling/RivalWatch/internal/classify"
	"github.com/TobiSchelling/RivalWatch/internal/database"
	"github.com/TobiSchelling/RivalWatch/internal/extract"
	"github.com/TobiSchelling/RivalWatch/internal/fetch"
	"github.com/TobiSchelling/RivalWatch/internal/logging"
)

// spikeCheckThreshold is the per-pass new-update count that triggers a spike check.
const spikeCheckThreshold = 5

// Fetcher retrieves a page.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*fetch.Page, error)
}

// Options tunes pacing and sweep bounds. Zero values take defaults.
type Options struct {
	ItemDelay        time.Duration // pause after each new item. Default: 1s.
	ReclassifyDelay  time.Duration // pause between re-classified items. Default: 500ms.
	ReclassifyWindow time.Duration // Default: 24h.
	ReclassifyBatch  int           // Default: 50.
	RetentionAge     time.Duration // Default: 90 days.
}

func (o *Options) defaults() {
	if o.ItemDelay == 0 {
		o.ItemDelay = time.Second
	}
	if o.ReclassifyDelay == 0 {
		o.ReclassifyDelay = 500 * time.Millisecond
	}
	if o.ReclassifyWindow <= 0 {
		o.ReclassifyWindow = 24 * time.Hour
	}
	if o.ReclassifyBatch <= 0 {
		o.ReclassifyBatch = 50
	}
	if o.RetentionAge <= 0 {
		o.RetentionAge = 90 * 24 * time.Hour
	}
}

// Result holds the counters of an ingestion pass.
type Result struct {
	Competitors    int
	Targets        int
	TargetFailures int
	Candidates     int
	Duplicates     int
	NewUpdates     int
	Alerts         int
}

func (r *Result) add(o *Result) {
	r.Competitors += o.Competitors
	r.Targets += o.Targets
	r.TargetFailures += o.TargetFailures
	r.Candidates += o.Candidates
	r.Duplicates += o.Duplicates
	r.NewUpdates += o.NewUpdates
	r.Alerts += o.Alerts
}

// Orchestrator runs ingestion passes and the maintenance sweeps.
type Orchestrator struct {
	db         *database.DB
	fetcher    Fetcher
	extractor  *extract.Extractor
	classifier *classify.Classifier
	alerts     *alert.Engine
	opts       Options
	now        func() time.Time
	sleep      func(ctx context.Context, d time.Duration) error
	logger     *slog.Logger
}

// New creates an Orchestrator.
func New(db *database.DB, fetcher Fetcher, extractor *extract.Extractor, classifier *classify.Classifier,
	alerts *alert.Engine, opts Options, logger *slog.Logger) *Orchestrator {
	opts.defaults()
	return &Orchestrator{
		db:         db,
		fetcher:    fetcher,
		extractor:  extractor,
		classifier: classifier,
		alerts:     alerts,
		opts:       opts,
		now:        time.Now,
		sleep:      sleep,
		logger:     logging.Or(logger),
	}
}

// ScrapeAll runs a pass over every active competitor. A competitor whose
// pass fails is logged and the rest still run.
func (o *Orchestrator) ScrapeAll(ctx context.Context) (*Result, error) {
	competitors, err := o.db.ListCompetitors(true)
	if err != nil {
		return nil, fmt.Errorf("listing competitors: %w", err)
	}

	o.logger.Info("starting scrape", "competitors", len(competitors))
	total := &Result{}
	for _, c := range competitors {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		r, err := o.IngestCompetitor(ctx, c)
		if r != nil {
			total.add(r)
		}
		if err != nil {
			o.logger.Error("scrape failed", "competitor", c.Name, "error", err)
		}
	}

	o.logger.Info("scrape complete",
		"competitors", total.Competitors, "new", total.NewUpdates,
		"duplicates", total.Duplicates, "target_failures", total.TargetFailures, "alerts", total.Alerts)
	return total, nil
}

// IngestCompetitor runs a pass over all of c's targets.
func (o *Orchestrator) IngestCompetitor(ctx context.Context, c database.Competitor) (*Result, error) {
	targets := c.Targets
	if targets == nil {
		var err error
		if targets, err = o.db.GetScrapeTargets(c.ID); err != nil {
			return nil, fmt.Errorf("loading targets for %s: %w", c.Name, err)
		}
	}
	return o.IngestTargets(ctx, c, targets)
}

// IngestTargets processes targets one at a time. A target that fails to
// fetch or extract is counted and skipped. The competitor's last-scraped
// time is updated however the targets fared.
func (o *Orchestrator) IngestTargets(ctx context.Context, c database.Competitor, targets []database.ScrapeTarget) (r *Result, err error) {
	o.logger.Info("scraping competitor", "competitor", c.Name, "targets", len(targets))
	r = &Result{Competitors: 1}

	defer func() {
		if touchErr := o.db.TouchLastScraped(c.ID, o.now()); touchErr != nil && err == nil {
			err = fmt.Errorf("updating last scraped: %w", touchErr)
		}
		o.logger.Info("competitor scraped", "competitor", c.Name, "new", r.NewUpdates, "duplicates", r.Duplicates)
		if err == nil && r.NewUpdates >= spikeCheckThreshold {
			if _, spikeErr := o.alerts.CheckUpdateSpike(ctx, c.ID); spikeErr != nil {
				o.logger.Error("spike check failed", "competitor", c.Name, "error", spikeErr)
			}
		}
	}()

	for _, t := range targets {
		if err := ctx.Err(); err != nil {
			return r, err
		}
		items, ferr := o.fetchTarget(ctx, c, t)
		if ferr != nil {
			r.TargetFailures++
			o.logger.Warn("target failed", "competitor", c.Name, "target", t.Name, "url", t.URL, "error", ferr)
			continue
		}
		r.Targets++
		r.Candidates += len(items)

		for _, item := range items {
			if err := o.ingestItem(ctx, c, t, item, r); err != nil {
				return r, err
			}
		}
	}
	return r, nil
}

func (o *Orchestrator) fetchTarget(ctx context.Context, c database.Competitor, t database.ScrapeTarget) ([]extract.Item, error) {
	target, err := ResolveTargetURL(c.BaseURL, t.URL)
	if err != nil {
		return nil, err
	}
	page, err := o.fetcher.Fetch(ctx, target)
	if err != nil {
		return nil, err
	}
	return o.extractor.Extract(page.Body, page.ContentType, page.URL, t.Type, t.Selector)
}

// ingestItem stores one candidate if its URL is new. Only storage errors
// and cancellation are returned.
func (o *Orchestrator) ingestItem(ctx context.Context, c database.Competitor, t database.ScrapeTarget, item extract.Item, r *Result) error {
	exists, err := o.db.UpdateExists(item.URL)
	if err != nil {
		return fmt.Errorf("checking %s: %w", item.URL, err)
	}
	if exists {
		o.logger.Debug("skipping duplicate", "url", item.URL)
		r.Duplicates++
		return nil
	}

	u := o.buildUpdate(ctx, c, t, item)
	id, err := o.db.InsertUpdate(u)
	if err != nil {
		return err
	}
	if id == 0 {
		r.Duplicates++
		return nil
	}
	r.NewUpdates++
	o.logger.Info("new update detected", "competitor", c.Name, "title", u.Title, "category", u.Category)

	alerts, err := o.alerts.ProcessUpdate(ctx, u)
	if err != nil {
		o.logger.Error("alert processing failed", "update_id", u.ID, "error", err)
	}
	r.Alerts += len(alerts)

	return o.sleep(ctx, o.opts.ItemDelay)
}

// keepPricing fills the price and product the classifier left empty.
func keepPricing(e *database.Entities, price, product string) {
	if e.Price == "" {
		e.Price = price
	}
	if e.Product == "" {
		e.Product = product
	}
}

func (o *Orchestrator) buildUpdate(ctx context.Context, c database.Competitor, t database.ScrapeTarget, item extract.Item) *database.Update {
	content := item.Content
	if content == "" {
		content = item.Summary
	}
	result := o.classifier.Classify(ctx, item.Title, item.Summary, content)

	u := &database.Update{
		CompetitorID: c.ID,
		Title:        item.Title,
		Summary:      item.Summary,
		Content:      content,
		URL:          item.URL,
		SourceType:   t.Type,
		Processed:    result.Source == classify.SourceLLM,
		Metadata: database.UpdateMetadata{
			ImageURL: item.ImageURL,
			Author:   item.Author,
			Tags:     item.Tags,
		},
	}
	result.Apply(u)

	if item.Price != "" {
		keepPricing(&u.Entities, item.Price, item.Title)
	}

	now := o.now()
	u.CreatedAt = now
	u.DetectedAt = now
	if item.PublishedAt != nil {
		u.DetectedAt = *item.PublishedAt
	}
	return u
}

// ResolveTargetURL returns target as-is when absolute, else joined to base.
func ResolveTargetURL(base, target string) (string, error) {
	t, err := url.Parse(strings.TrimSpace(target))
	if err != nil {
		return "", fmt.Errorf("invalid target URL %q: %w", target, err)
	}
	if t.IsAbs() {
		return t.String(), nil
	}
	b, err := url.Parse(strings.TrimSpace(base))
	if err != nil || !b.IsAbs() {
		return "", fmt.Errorf("relative target %q needs an absolute base URL, got %q", target, base)
	}
	return b.ResolveReference(t).String(), nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
