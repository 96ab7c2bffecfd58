package pipeline

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/TobiSchelling/RivalWatch/internal/config"
	"github.com/TobiSchelling/RivalWatch/internal/database"
	"github.com/TobiSchelling/RivalWatch/internal/scheduler"
)

const testConfig = `
scraping:
  retry_base_delay: 1ms
  max_retries: 1
  item_delay: 1ms
llm:
  providers: []
schedule:
  cleanup: ""
`

func newTestPipeline(t *testing.T) (*Pipeline, *database.DB) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(testConfig), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("loading config: %v", err)
	}
	db, err := database.Open(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	p, err := New(cfg, db, nil)
	if err != nil {
		t.Fatalf("building pipeline: %v", err)
	}
	return p, db
}

func TestNoOpOutcomes(t *testing.T) {
	p, _ := newTestPipeline(t)
	ctx := context.Background()

	if p.ProviderName() != "rules" {
		t.Errorf("expected rule-based fallback without providers, got %q", p.ProviderName())
	}

	cases := []StepResult{p.Scrape(ctx), p.DailyDigest(ctx), p.WeeklyDigest(ctx), p.Compare(ctx), p.Reclassify(ctx), p.Cleanup(ctx)}
	wants := []string{"0 new items", "no digest generated", "no digest generated", "no comparison generated", "Reclassified 0", "Marked 0"}
	for i, r := range cases {
		if r.Err != nil {
			t.Errorf("%s: unexpected error: %v", r.Name, r.Err)
			continue
		}
		if !strings.HasPrefix(r.Summary, wants[i]) {
			t.Errorf("%s: expected summary starting %q, got %q", r.Name, wants[i], r.Summary)
		}
	}
}

func TestScrapeCompetitor(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<div class="pricing-card"><h3>Pro Plan</h3><span class="price">$49</span></div>`))
	}))
	defer srv.Close()

	p, db := newTestPipeline(t)
	c := database.Competitor{
		Name: "Acme", BaseURL: srv.URL, Active: false,
		Targets: []database.ScrapeTarget{{Name: "Pricing", URL: "/pricing", Type: database.PageTypePricing}},
	}
	if _, err := db.InsertCompetitor(&c); err != nil {
		t.Fatalf("inserting competitor: %v", err)
	}

	r := p.ScrapeCompetitor(context.Background(), c.ID)
	if r.Err != nil {
		t.Fatalf("unexpected error: %v", r.Err)
	}
	if !strings.HasPrefix(r.Summary, "1 new items") {
		t.Errorf("expected one new item, got %q", r.Summary)
	}

	r = p.ScrapeCompetitor(context.Background(), c.ID)
	if !strings.HasPrefix(r.Summary, "0 new items") {
		t.Errorf("expected rerun to find nothing new, got %q", r.Summary)
	}

	if r := p.ScrapeCompetitor(context.Background(), 999); r.Err == nil {
		t.Error("expected unknown competitor to fail")
	}
}

func TestSchedulerRegistersJobs(t *testing.T) {
	p, _ := newTestPipeline(t)
	s, err := p.Scheduler()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	jobs := s.Jobs()
	if len(jobs) != 6 {
		t.Fatalf("expected 6 jobs, got %v", jobs)
	}
	if err := s.Trigger(context.Background(), JobCleanup); err != nil {
		t.Errorf("expected manual-only job to be triggerable, got %v", err)
	}
	if err := s.Trigger(context.Background(), "missing"); !errors.Is(err, scheduler.ErrUnknownJob) {
		t.Errorf("expected ErrUnknownJob, got %v", err)
	}
}

func TestSchedulerRejectsBadSpec(t *testing.T) {
	p, _ := newTestPipeline(t)
	p.cfg.Schedule.Comparison = "every day"
	if _, err := p.Scheduler(); err == nil {
		t.Error("expected invalid cron spec to fail")
	}
}
