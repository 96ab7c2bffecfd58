package database

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func insertAcme(t *testing.T, db *DB) int64 {
	t.Helper()
	id, err := db.InsertCompetitor(&Competitor{
		Name:    "Acme",
		BaseURL: "https://acme.example",
		Active:  true,
		Targets: []ScrapeTarget{
			{Name: "Pricing", URL: "/pricing", Type: PageTypePricing},
			{Name: "Blog", URL: "https://acme.example/blog", Type: PageTypeBlog, Selector: ".post"},
		},
	})
	if err != nil {
		t.Fatalf("inserting competitor: %v", err)
	}
	return id
}

func TestInsertCompetitorWithTargets(t *testing.T) {
	db := openTestDB(t)
	id := insertAcme(t, db)

	c, err := db.GetCompetitor(id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c == nil {
		t.Fatal("expected competitor")
	}
	if !c.Active {
		t.Error("expected competitor to be active")
	}
	if len(c.Targets) != 2 {
		t.Fatalf("expected 2 targets, got %d", len(c.Targets))
	}
	if c.Targets[0].Type != PageTypePricing || c.Targets[1].Selector != ".post" {
		t.Errorf("targets not stored in order: %+v", c.Targets)
	}
	if c.LastScrapedAt != nil {
		t.Error("expected no last-scraped timestamp yet")
	}
}

func TestInsertCompetitorSetsIDs(t *testing.T) {
	db := openTestDB(t)
	c := Competitor{
		Name:    "Globex",
		BaseURL: "https://globex.example",
		Targets: []ScrapeTarget{
			{Name: "Pricing", URL: "/pricing", Type: PageTypePricing},
			{Name: "News", URL: "/news", Type: PageTypeNews},
		},
	}
	id, err := db.InsertCompetitor(&c)
	if err != nil {
		t.Fatalf("inserting competitor: %v", err)
	}
	if c.ID != id || id == 0 {
		t.Fatalf("expected c.ID %d, got %d", id, c.ID)
	}
	for i, tg := range c.Targets {
		if tg.ID == 0 {
			t.Errorf("target %d: expected ID to be set", i)
		}
		if tg.CompetitorID != id {
			t.Errorf("target %d: expected competitor ID %d, got %d", i, id, tg.CompetitorID)
		}
	}

	got, err := db.GetCompetitor(c.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil {
		t.Fatal("expected competitor")
	}
	if got.Targets[0].ID != c.Targets[0].ID || got.Targets[1].ID != c.Targets[1].ID {
		t.Errorf("expected stored target IDs to match, got %+v", got.Targets)
	}
}

func TestGetCompetitorMissing(t *testing.T) {
	db := openTestDB(t)
	c, err := db.GetCompetitor(999)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c != nil {
		t.Error("expected nil for missing competitor")
	}
}

func TestListActiveCompetitors(t *testing.T) {
	db := openTestDB(t)
	insertAcme(t, db)
	id, _ := db.InsertCompetitor(&Competitor{Name: "Globex", BaseURL: "https://globex.example", Active: true})
	db.SetCompetitorActive(id, false)

	all, err := db.ListCompetitors(false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("expected 2 competitors, got %d", len(all))
	}

	active, _ := db.ListCompetitors(true)
	if len(active) != 1 || active[0].Name != "Acme" {
		t.Errorf("expected only Acme active, got %+v", active)
	}
	if len(active[0].Targets) != 2 {
		t.Errorf("expected targets loaded with list, got %d", len(active[0].Targets))
	}
}

func TestAddAndRemoveScrapeTarget(t *testing.T) {
	db := openTestDB(t)
	id := insertAcme(t, db)

	tid, err := db.AddScrapeTarget(id, ScrapeTarget{Name: "Press", URL: "/press", Type: PageTypePress})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	targets, _ := db.GetScrapeTargets(id)
	if len(targets) != 3 || targets[2].ID != tid {
		t.Fatalf("expected new target appended last, got %+v", targets)
	}

	if err := db.RemoveScrapeTarget(tid); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	targets, _ = db.GetScrapeTargets(id)
	if len(targets) != 2 {
		t.Errorf("expected 2 targets after removal, got %d", len(targets))
	}
}

func TestTouchLastScraped(t *testing.T) {
	db := openTestDB(t)
	id := insertAcme(t, db)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if err := db.TouchLastScraped(id, at); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c, _ := db.GetCompetitor(id)
	if c.LastScrapedAt == nil || !c.LastScrapedAt.Equal(at) {
		t.Errorf("expected last scraped %v, got %v", at, c.LastScrapedAt)
	}
}

func TestInsertUpdate(t *testing.T) {
	db := openTestDB(t)
	cid := insertAcme(t, db)

	u := &Update{
		CompetitorID: cid,
		Title:        "Pro Plan",
		URL:          "https://acme.example/pricing#pro-plan-49",
		SourceType:   PageTypePricing,
		Category:     CategoryPricing,
		Sentiment:    SentimentNeutral,
		ImpactScore:  8,
		Confidence:   0.6,
		Entities:     Entities{Product: "Pro Plan", Price: "$49", Keywords: []string{"monthly"}},
		Metadata:     UpdateMetadata{ImageURL: "https://acme.example/pro.png"},
	}
	id, err := db.InsertUpdate(u)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id == 0 || u.ID != id {
		t.Fatalf("expected non-zero id set on update, got %d / %d", id, u.ID)
	}

	got, err := db.GetUpdate(id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Entities.Price != "$49" || got.Entities.Product != "Pro Plan" {
		t.Errorf("entities not round-tripped: %+v", got.Entities)
	}
	if len(got.Entities.Keywords) != 1 || got.Entities.Keywords[0] != "monthly" {
		t.Errorf("keywords not round-tripped: %v", got.Entities.Keywords)
	}
	if got.Metadata.ImageURL != "https://acme.example/pro.png" {
		t.Errorf("metadata not round-tripped: %+v", got.Metadata)
	}
	if got.DetectedAt.IsZero() {
		t.Error("expected detected_at to default to insert time")
	}
}

func TestInsertDuplicateUpdate(t *testing.T) {
	db := openTestDB(t)
	cid := insertAcme(t, db)

	first := &Update{CompetitorID: cid, Title: "First", URL: "https://acme.example/dup", SourceType: PageTypeNews, Category: CategoryOther, Sentiment: SentimentNeutral}
	if _, err := db.InsertUpdate(first); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	dup := &Update{CompetitorID: cid, Title: "Duplicate", URL: "https://acme.example/dup", SourceType: PageTypeNews, Category: CategoryOther, Sentiment: SentimentNeutral}
	id, err := db.InsertUpdate(dup)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != 0 {
		t.Error("expected 0 for duplicate update")
	}

	exists, _ := db.UpdateExists("https://acme.example/dup")
	if !exists {
		t.Error("expected URL to exist")
	}
}

func TestListUpdatesFilter(t *testing.T) {
	db := openTestDB(t)
	cid := insertAcme(t, db)
	base := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	for i, cat := range []string{CategoryPricing, CategoryCampaign, CategoryPricing} {
		db.InsertUpdate(&Update{
			CompetitorID: cid,
			Title:        cat,
			URL:          "https://acme.example/u" + string(rune('a'+i)),
			SourceType:   PageTypeNews,
			Category:     cat,
			Sentiment:    SentimentNeutral,
			CreatedAt:    base.Add(time.Duration(i) * 24 * time.Hour),
		})
	}

	pricing, err := db.ListUpdates(UpdateFilter{Category: CategoryPricing})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pricing) != 2 {
		t.Errorf("expected 2 pricing updates, got %d", len(pricing))
	}

	windowed, _ := db.ListUpdates(UpdateFilter{
		CompetitorIDs: []int64{cid},
		CreatedFrom:   base.Add(12 * time.Hour),
		CreatedTo:     base.Add(36 * time.Hour),
	})
	if len(windowed) != 1 || windowed[0].Category != CategoryCampaign {
		t.Errorf("expected only the campaign update in window, got %+v", windowed)
	}

	unprocessed := false
	limited, _ := db.ListUpdates(UpdateFilter{Processed: &unprocessed, Limit: 2})
	if len(limited) != 2 {
		t.Errorf("expected limit of 2, got %d", len(limited))
	}
}

func TestGetPreviousPricedUpdate(t *testing.T) {
	db := openTestDB(t)
	cid := insertAcme(t, db)
	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	old := &Update{CompetitorID: cid, Title: "Pro", URL: "https://acme.example/p1", SourceType: PageTypePricing,
		Category: CategoryPricing, Sentiment: SentimentNeutral, Entities: Entities{Price: "$100"}, DetectedAt: t0}
	db.InsertUpdate(old)
	noPrice := &Update{CompetitorID: cid, Title: "Promo", URL: "https://acme.example/p2", SourceType: PageTypePricing,
		Category: CategoryPricing, Sentiment: SentimentNeutral, DetectedAt: t0.Add(time.Hour)}
	db.InsertUpdate(noPrice)
	current := &Update{CompetitorID: cid, Title: "Pro", URL: "https://acme.example/p3", SourceType: PageTypePricing,
		Category: CategoryPricing, Sentiment: SentimentNeutral, Entities: Entities{Price: "$89"}, DetectedAt: t0.Add(2 * time.Hour)}
	db.InsertUpdate(current)

	prev, err := db.GetPreviousPricedUpdate(cid, current.ID, current.DetectedAt)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if prev == nil || prev.ID != old.ID {
		t.Fatalf("expected the $100 update, got %+v", prev)
	}

	none, _ := db.GetPreviousPricedUpdate(cid, old.ID, old.DetectedAt)
	if none != nil {
		t.Errorf("expected no prior update before the first one, got %+v", none)
	}
}

func TestSaveClassification(t *testing.T) {
	db := openTestDB(t)
	cid := insertAcme(t, db)
	u := &Update{CompetitorID: cid, Title: "Launch", URL: "https://acme.example/l", SourceType: PageTypeNews,
		Category: CategoryOther, Sentiment: SentimentNeutral}
	db.InsertUpdate(u)

	u.Category = CategoryProductLaunch
	u.ImpactScore = 9
	u.Entities.Keywords = []string{"rocket"}
	if err := db.SaveClassification(u); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, _ := db.GetUpdate(u.ID)
	if got.Category != CategoryProductLaunch || got.ImpactScore != 9 {
		t.Errorf("classification not saved: %+v", got)
	}
	if !got.Processed {
		t.Error("expected update to be marked processed")
	}
}

func TestMarkStaleProcessed(t *testing.T) {
	db := openTestDB(t)
	cid := insertAcme(t, db)
	now := time.Now()

	db.InsertUpdate(&Update{CompetitorID: cid, Title: "old", URL: "https://acme.example/old", SourceType: PageTypeNews,
		Category: CategoryOther, Sentiment: SentimentNeutral, CreatedAt: now.AddDate(0, 0, -91)})
	db.InsertUpdate(&Update{CompetitorID: cid, Title: "new", URL: "https://acme.example/new", SourceType: PageTypeNews,
		Category: CategoryOther, Sentiment: SentimentNeutral, CreatedAt: now.AddDate(0, 0, -1)})

	n, err := db.MarkStaleProcessed(now.AddDate(0, 0, -90))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 row marked, got %d", n)
	}

	stats, _ := db.GetStats()
	if stats.Updates != 2 {
		t.Errorf("expected no deletions, got %d updates", stats.Updates)
	}
	if stats.UnprocessedUpdates != 1 {
		t.Errorf("expected 1 unprocessed update left, got %d", stats.UnprocessedUpdates)
	}
}

func TestCountUpdatesSince(t *testing.T) {
	db := openTestDB(t)
	cid := insertAcme(t, db)
	now := time.Now()
	for i := 0; i < 3; i++ {
		db.InsertUpdate(&Update{CompetitorID: cid, Title: "x", URL: "https://acme.example/c" + string(rune('a'+i)),
			SourceType: PageTypeNews, Category: CategoryOther, Sentiment: SentimentNeutral,
			DetectedAt: now.Add(-time.Duration(i*45) * time.Minute)})
	}

	n, err := db.CountUpdatesSince(cid, now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 updates in the last hour, got %d", n)
	}
}

func TestDeleteCompetitorCascades(t *testing.T) {
	db := openTestDB(t)
	cid := insertAcme(t, db)
	u := &Update{CompetitorID: cid, Title: "x", URL: "https://acme.example/x", SourceType: PageTypeNews,
		Category: CategoryOther, Sentiment: SentimentNeutral}
	db.InsertUpdate(u)
	db.InsertAlert(&Alert{UpdateID: &u.ID, CompetitorID: cid, Rule: RuleHighImpact, Severity: SeverityCritical,
		Title: "t", Message: "m"})

	if err := db.DeleteCompetitor(cid); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	stats, _ := db.GetStats()
	if stats.Updates != 0 || stats.Alerts != 0 || stats.Targets != 0 {
		t.Errorf("expected cascade delete, got %+v", stats)
	}
}

func TestAlertLifecycle(t *testing.T) {
	db := openTestDB(t)
	cid := insertAcme(t, db)

	a := &Alert{
		CompetitorID: cid,
		Rule:         RuleUpdateSpike,
		Severity:     SeverityMedium,
		Title:        "Activity Spike",
		Message:      "7 updates in the last hour",
		Channels:     []string{ChannelInApp},
		Metadata:     map[string]any{"recentCount": 7},
	}
	id, err := db.InsertAlert(a)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, _ := db.GetAlert(id)
	if got.UpdateID != nil {
		t.Error("expected nil update reference for spike alert")
	}
	if !got.HasChannel(ChannelInApp) || got.HasChannel(ChannelEmail) {
		t.Errorf("unexpected channels: %v", got.Channels)
	}
	if got.Metadata["recentCount"] != float64(7) {
		t.Errorf("expected metadata recentCount 7, got %v", got.Metadata["recentCount"])
	}

	unread, _ := db.ListAlerts(AlertFilter{UnreadOnly: true})
	if len(unread) != 1 {
		t.Fatalf("expected 1 unread alert, got %d", len(unread))
	}

	at := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	ok, err := db.MarkAlertRead(id, at)
	if err != nil || !ok {
		t.Fatalf("expected alert marked read, got %v / %v", ok, err)
	}
	if err := db.MarkAlertNotified(id, at); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, _ = db.GetAlert(id)
	if !got.Read || got.ReadAt == nil || !got.ReadAt.Equal(at) {
		t.Errorf("expected read at %v, got %+v", at, got)
	}
	if !got.Notified || got.NotifiedAt == nil {
		t.Error("expected alert notified")
	}

	unread, _ = db.ListAlerts(AlertFilter{UnreadOnly: true})
	if len(unread) != 0 {
		t.Errorf("expected no unread alerts, got %d", len(unread))
	}

	ok, _ = db.MarkAlertRead(12345, at)
	if ok {
		t.Error("expected false for missing alert")
	}
}

func TestDigestLifecycle(t *testing.T) {
	db := openTestDB(t)
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	d := &Digest{
		Type:        DigestDaily,
		PeriodStart: start,
		PeriodEnd:   start.Add(48*time.Hour - time.Nanosecond),
		Summary:     json.RawMessage(`{"headline":"Quiet day"}`),
		Metadata:    json.RawMessage(`{"totalUpdates":3}`),
		UpdateIDs:   []int64{1, 2, 3},
	}
	id, err := db.InsertDigest(d)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	latest, _ := db.GetLatestDigest(DigestDaily)
	if latest == nil || latest.ID != id {
		t.Fatalf("expected latest daily digest %d, got %+v", id, latest)
	}
	if len(latest.UpdateIDs) != 3 {
		t.Errorf("expected 3 update ids, got %v", latest.UpdateIDs)
	}
	if string(latest.Summary) != `{"headline":"Quiet day"}` {
		t.Errorf("summary not round-tripped: %s", latest.Summary)
	}
	if !latest.PeriodStart.Equal(start) {
		t.Errorf("expected period start %v, got %v", start, latest.PeriodStart)
	}

	none, _ := db.GetLatestDigest(DigestWeekly)
	if none != nil {
		t.Error("expected no weekly digest")
	}

	if err := db.MarkDigestEmailed(id, time.Now()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, _ := db.GetDigest(id)
	if !got.EmailSent || got.EmailSentAt == nil {
		t.Error("expected email_sent to be recorded")
	}
}

func TestComparisonLifecycle(t *testing.T) {
	db := openTestDB(t)
	c := &Comparison{
		CompetitorIDs: []int64{1, 2},
		Data:          json.RawMessage(`{"activity":{}}`),
		Insights:      json.RawMessage(`{"summary":"x"}`),
	}
	if _, err := db.InsertComparison(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	latest, err := db.GetLatestComparison()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if latest == nil || len(latest.CompetitorIDs) != 2 {
		t.Fatalf("expected comparison with 2 competitors, got %+v", latest)
	}
	if latest.Metadata != nil {
		t.Errorf("expected nil metadata, got %s", latest.Metadata)
	}

	history, _ := db.ListComparisons(10)
	if len(history) != 1 {
		t.Errorf("expected 1 comparison in history, got %d", len(history))
	}
}

func TestTimeFormatIsLexicallyOrdered(t *testing.T) {
	a := formatTime(time.Date(2026, 1, 2, 3, 4, 5, 6000, time.UTC))
	b := formatTime(time.Date(2026, 1, 2, 3, 4, 5, 7000, time.UTC))
	if !(a < b) {
		t.Errorf("expected %q < %q", a, b)
	}
	if !parseTime(a).Equal(time.Date(2026, 1, 2, 3, 4, 5, 6000, time.UTC)) {
		t.Errorf("round-trip failed for %q", a)
	}
}

func TestListDigestsByType(t *testing.T) {
	db := openTestDB(t)
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i, typ := range []string{DigestDaily, DigestWeekly, DigestDaily} {
		db.InsertDigest(&Digest{
			Type:        typ,
			PeriodStart: base,
			PeriodEnd:   base.Add(24 * time.Hour),
			Summary:     json.RawMessage(`{}`),
			CreatedAt:   base.Add(time.Duration(i) * time.Hour),
		})
	}

	daily, _ := db.ListDigests(DigestDaily, 10)
	if len(daily) != 2 {
		t.Errorf("expected 2 daily digests, got %d", len(daily))
	}
	all, _ := db.ListDigests("", 0)
	if len(all) != 3 {
		t.Fatalf("expected 3 digests, got %d", len(all))
	}
	if all[0].Type != DigestDaily || !all[0].CreatedAt.Equal(base.Add(2*time.Hour)) {
		t.Errorf("expected newest first, got %+v", all[0])
	}
	limited, _ := db.ListDigests("", 1)
	if len(limited) != 1 {
		t.Errorf("expected limit 1, got %d", len(limited))
	}
}

func TestIsPageType(t *testing.T) {
	if !IsPageType(PageTypePricing) || !IsPageType("blog") {
		t.Error("expected known page types accepted")
	}
	if IsPageType("careers") || IsPageType("") {
		t.Error("expected unknown page types rejected")
	}
}
