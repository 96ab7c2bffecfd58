package classify

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/TobiSchelling/RivalWatch/internal/database"
)

// mockProvider implements llm.Provider for testing.
type mockProvider struct {
	response string
	err      error
	calls    int
	prompt   string
}

func (m *mockProvider) Generate(_ context.Context, prompt string, _ int) (string, error) {
	m.calls++
	m.prompt = prompt
	return m.response, m.err
}

func (m *mockProvider) IsConfigured() bool { return true }
func (m *mockProvider) Name() string       { return "mock" }

func newTestClassifier(p *mockProvider) *Classifier {
	c := New(p, nil)
	c.retryDelay = 0
	return c
}

func TestClassifyWithLLM(t *testing.T) {
	p := &mockProvider{response: `{"category": "product_launch", "confidence": 0.9, "sentiment": "positive",
		"sentimentScore": 0.8, "impactScore": 9, "entities": {"product": "Rocket", "keywords": ["deploy"]},
		"reasoning": "New product"}`}
	got := newTestClassifier(p).Classify(context.Background(), "Acme launches Rocket", "summary", "body")

	if got.Source != SourceLLM {
		t.Errorf("expected llm source, got %s", got.Source)
	}
	if got.Category != database.CategoryProductLaunch {
		t.Errorf("expected product_launch, got %s", got.Category)
	}
	if got.Entities.Product != "Rocket" {
		t.Errorf("expected product Rocket, got %q", got.Entities.Product)
	}
	if got.ImpactScore != 9 || got.SentimentScore != 0.8 || got.Confidence != 0.9 {
		t.Errorf("unexpected scores: %+v", got)
	}
}

func TestClassifyPromptTruncated(t *testing.T) {
	p := &mockProvider{response: `{"category": "other"}`}
	newTestClassifier(p).Classify(context.Background(), "t", "s", strings.Repeat("x", 10000))
	if strings.Count(p.prompt, "x") > maxPromptText {
		t.Errorf("expected prompt text truncated to %d chars", maxPromptText)
	}
	if !strings.Contains(p.prompt, "Return ONLY the JSON") {
		t.Error("expected schema instructions in prompt")
	}
}

func TestClassifyJSONInProse(t *testing.T) {
	p := &mockProvider{response: "Here you go:\n{\"category\": \"campaign\", \"impactScore\": 4}\nThanks!"}
	got := newTestClassifier(p).Classify(context.Background(), "t", "s", "b")
	if got.Category != database.CategoryCampaign {
		t.Errorf("expected campaign, got %s", got.Category)
	}
	if got.ImpactScore != 4 {
		t.Errorf("expected impact 4, got %v", got.ImpactScore)
	}
}

func TestClassifyMissingFieldsDefault(t *testing.T) {
	p := &mockProvider{response: `{}`}
	got := newTestClassifier(p).Classify(context.Background(), "t", "s", "b")
	if got.Category != database.CategoryOther || got.Confidence != 0.5 ||
		got.Sentiment != database.SentimentNeutral || got.SentimentScore != 0 || got.ImpactScore != 5 {
		t.Errorf("unexpected defaults: %+v", got)
	}
}

func TestClassifyClampsOutOfRange(t *testing.T) {
	p := &mockProvider{response: `{"category": "Bogus", "confidence": 7, "sentiment": "ecstatic",
		"sentimentScore": -4, "impactScore": 42}`}
	got := newTestClassifier(p).Classify(context.Background(), "t", "s", "b")
	if got.Category != database.CategoryOther {
		t.Errorf("expected unknown category mapped to other, got %s", got.Category)
	}
	if got.Confidence != 1 || got.SentimentScore != -1 || got.ImpactScore != 10 {
		t.Errorf("expected clamped values, got %+v", got)
	}
	if got.Sentiment != database.SentimentNeutral {
		t.Errorf("expected unknown sentiment mapped to neutral, got %s", got.Sentiment)
	}
}

func TestClassifyFallsBackOnError(t *testing.T) {
	p := &mockProvider{err: errors.New("connection refused")}
	got := newTestClassifier(p).Classify(context.Background(), "New pricing", "Now $39 per month", "")
	if got.Source != SourceRules {
		t.Errorf("expected rules fallback, got %s", got.Source)
	}
	if got.Category != database.CategoryPricing {
		t.Errorf("expected pricing, got %s", got.Category)
	}
	if p.calls != maxAttempts {
		t.Errorf("expected %d attempts, got %d", maxAttempts, p.calls)
	}
}

func TestClassifyFallsBackOnGarbage(t *testing.T) {
	p := &mockProvider{response: "I cannot help with that."}
	got := newTestClassifier(p).Classify(context.Background(), "Outage hits Acme", "", "")
	if got.Source != SourceRules {
		t.Errorf("expected rules fallback, got %s", got.Source)
	}
	if got.Category != database.CategoryNegativeNews {
		t.Errorf("expected negative_news, got %s", got.Category)
	}
}

func TestClassifyNilProvider(t *testing.T) {
	got := New(nil, nil).Classify(context.Background(), "Spring campaign", "", "")
	if got.Source != SourceRules || got.Category != database.CategoryCampaign {
		t.Errorf("expected rules campaign, got %+v", got)
	}
}

func TestRuleBasedCategories(t *testing.T) {
	cases := []struct {
		text     string
		category string
		impact   float64
	}{
		{"Pro Plan: $49. For growing teams", database.CategoryPricing, 8},
		{"Acme unveils Rocket", database.CategoryProductLaunch, 9},
		{"Our new marketing push", database.CategoryCampaign, 6},
		{"Dark mode feature shipped", database.CategoryFeatureUpdate, 6},
		{"Official statement from the board", database.CategoryPress, 5},
		{"Lawsuit filed against Acme", database.CategoryNegativeNews, 8},
		{"Team offsite photos", database.CategoryOther, 5},
		// Pricing beats launch when both match.
		{"Launch discount on Rocket", database.CategoryPricing, 8},
		// Whole-word: "loaded" must not match "ad", "salesforce" must not match "sale".
		{"Salesforce loaded", database.CategoryOther, 5},
	}
	for _, c := range cases {
		got := RuleBased(c.text, "", "")
		if got.Category != c.category {
			t.Errorf("%q: expected %s, got %s", c.text, c.category, got.Category)
		}
		if got.ImpactScore != c.impact {
			t.Errorf("%q: expected impact %v, got %v", c.text, c.impact, got.ImpactScore)
		}
		if got.Confidence != 0.6 {
			t.Errorf("%q: expected confidence 0.6, got %v", c.text, got.Confidence)
		}
	}
}

func TestRuleBasedSentiment(t *testing.T) {
	got := RuleBased("Great results", "an excellent quarter", "")
	if got.Sentiment != database.SentimentPositive || got.SentimentScore != 0.6 {
		t.Errorf("expected positive 0.6, got %s %v", got.Sentiment, got.SentimentScore)
	}

	got = RuleBased("Release failed", "worse than before", "")
	if got.Sentiment != database.SentimentNegative || got.SentimentScore != -0.6 {
		t.Errorf("expected negative -0.6, got %s %v", got.Sentiment, got.SentimentScore)
	}

	got = RuleBased("Great and bad bug", "", "")
	if got.Sentiment != database.SentimentNeutral || got.SentimentScore != 0 {
		t.Errorf("expected tie to be neutral, got %s %v", got.Sentiment, got.SentimentScore)
	}
}

func TestRuleBasedNegativeNewsForcesSentiment(t *testing.T) {
	got := RuleBased("Scandal", "but a great, excellent, innovative success", "")
	if got.Category != database.CategoryNegativeNews {
		t.Fatalf("expected negative_news, got %s", got.Category)
	}
	if got.Sentiment != database.SentimentNegative || got.SentimentScore != -0.7 {
		t.Errorf("expected forced negative -0.7, got %s %v", got.Sentiment, got.SentimentScore)
	}
}

func TestRuleBasedKeywords(t *testing.T) {
	got := RuleBased("Company update", "Acme announce product improvements, faster pipelines, smarter deploys, greater insight, better things", "")
	want := []string{"improvements", "faster", "pipelines", "smarter", "deploys"}
	if !reflect.DeepEqual(got.Entities.Keywords, want) {
		t.Errorf("expected %v, got %v", want, got.Entities.Keywords)
	}
}

func TestRuleBasedDeterministic(t *testing.T) {
	a := RuleBased("Acme cuts prices", "Pro now $39", "Limited offer for teams")
	b := RuleBased("Acme cuts prices", "Pro now $39", "Limited offer for teams")
	if !reflect.DeepEqual(a, b) {
		t.Errorf("expected identical results, got %+v and %+v", a, b)
	}
}

func TestRuleBasedRanges(t *testing.T) {
	inputs := []string{"", "$", "lawsuit great", "feature", strings.Repeat("problem ", 100)}
	for _, in := range inputs {
		got := RuleBased(in, in, in)
		if got.SentimentScore < -1 || got.SentimentScore > 1 {
			t.Errorf("%q: sentiment out of range: %v", in, got.SentimentScore)
		}
		if got.ImpactScore < 0 || got.ImpactScore > 10 {
			t.Errorf("%q: impact out of range: %v", in, got.ImpactScore)
		}
		if got.Confidence < 0 || got.Confidence > 1 {
			t.Errorf("%q: confidence out of range: %v", in, got.Confidence)
		}
	}
}

func TestDefault(t *testing.T) {
	d := Default()
	if d.Confidence != 0.3 || d.Category != database.CategoryOther || d.Source != SourceDefault {
		t.Errorf("unexpected default: %+v", d)
	}
}
