package digest

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	dailySampleSize  = 10
	weeklySampleSize = 15
)

// DailySummary is the narrative of a daily digest.
type DailySummary struct {
	Headline             string   `json:"headline"`
	Summary              string   `json:"summary"`
	Highlights           []string `json:"highlights"`
	MajorPricingMoves    string   `json:"majorPricingMoves"`
	ProductAnnouncements string   `json:"productAnnouncements"`
	CampaignChanges      string   `json:"campaignChanges"`
	NegativePress        string   `json:"negativePress"`
}

// Rankings names a leader per competitive dimension.
type Rankings struct {
	Innovation string `json:"innovation"`
	Pricing    string `json:"pricing"`
	Marketing  string `json:"marketing"`
}

// WeeklySummary is the narrative of a weekly digest.
type WeeklySummary struct {
	Headline           string   `json:"headline"`
	ExecutiveSummary   string   `json:"executiveSummary"`
	StrategicInsights  []string `json:"strategicInsights"`
	CompetitorRankings Rankings `json:"competitorRankings"`
	Recommendations    []string `json:"recommendations"`
}

func dailyPrompt(a *Analytics) string {
	var b strings.Builder
	b.WriteString("You are a competitive intelligence analyst. Analyze the following competitor updates from the last 24 hours and generate a concise daily summary.\n\n")
	b.WriteString("Updates Data:\n")
	fmt.Fprintf(&b, "- Total Updates: %d\n", a.Total)
	fmt.Fprintf(&b, "- Active Competitors: %s\n", strings.Join(a.ActiveCompetitors(), ", "))
	fmt.Fprintf(&b, "- Category Breakdown: %s\n", mustJSON(a.CategoryBreakdown))
	fmt.Fprintf(&b, "- Major Pricing Changes: %d\n", len(a.PricingChanges))
	fmt.Fprintf(&b, "- New Product Launches: %d\n", len(a.ProductLaunches))
	fmt.Fprintf(&b, "- Campaign Updates: %d\n", len(a.Campaigns))
	fmt.Fprintf(&b, "- Negative Press: %d\n\n", len(a.NegativeNews))

	b.WriteString("Key Updates:\n")
	for _, e := range sample(a.Entries, dailySampleSize) {
		fmt.Fprintf(&b, "- %s: %s (%s)\n", e.Competitor, e.Title, e.Category)
	}

	b.WriteString(`
Generate a daily summary in the following JSON format:
{
  "headline": "Eye-catching headline about today's market activity",
  "summary": "2-3 paragraph executive summary written like a professional analyst",
  "highlights": [
    "Key highlight 1",
    "Key highlight 2",
    "Key highlight 3"
  ],
  "majorPricingMoves": "Summary of any pricing changes",
  "productAnnouncements": "Summary of new products/features",
  "campaignChanges": "Summary of marketing campaigns",
  "negativePress": "Summary of any negative news"
}

Write in a professional, analytical tone. Be specific about competitor names and actions.`)
	return b.String()
}

func weeklyPrompt(a *Analytics, t Trends) string {
	var b strings.Builder
	b.WriteString("You are a competitive strategy analyst. Analyze the following competitor activity from the last 7 days and generate weekly strategic insights.\n\n")
	b.WriteString("Weekly Analytics:\n")
	fmt.Fprintf(&b, "- Total Updates: %d\n", a.Total)
	fmt.Fprintf(&b, "- Active Competitors: %s\n", strings.Join(a.ActiveCompetitors(), ", "))
	fmt.Fprintf(&b, "- Category Breakdown: %s\n", mustJSON(a.CategoryBreakdown))
	fmt.Fprintf(&b, "- Innovation Leader: %s (%d product updates)\n", orNone(t.InnovationLeader), t.InnovationScore)
	fmt.Fprintf(&b, "- Aggressive Discounter: %s (%d price cuts)\n", orNone(t.AggressiveDiscounter), t.DiscountCount)
	if t.ProductLineGrowth != nil {
		fmt.Fprintf(&b, "- Product Line Growth: %s (%d updates)\n", t.ProductLineGrowth.Name, t.ProductLineGrowth.ProductUpdates)
	} else {
		b.WriteString("- Product Line Growth: none\n")
	}
	if t.CampaignLeader != nil {
		fmt.Fprintf(&b, "- Campaign Leader: %s (%d campaigns)\n\n", t.CampaignLeader.Name, t.CampaignLeader.Campaigns)
	} else {
		b.WriteString("- Campaign Leader: none\n\n")
	}

	b.WriteString("Top Updates:\n")
	for _, e := range sample(a.Entries, weeklySampleSize) {
		fmt.Fprintf(&b, "- %s: %s (%s, impact: %g)\n", e.Competitor, e.Title, e.Category, e.Impact)
	}

	b.WriteString(`
Generate weekly strategy insights in the following JSON format:
{
  "headline": "Strategic headline about this week's competitive landscape",
  "executiveSummary": "3-4 paragraph strategic analysis written like a senior analyst presenting to leadership",
  "strategicInsights": [
    "Who is leading in innovation and why?",
    "Which competitor is discounting aggressively and what does it mean?",
    "Which product lines are growing and emerging trends?",
    "What are the competitive threats and opportunities?"
  ],
  "competitorRankings": {
    "innovation": "Competitor name and reason",
    "pricing": "Competitor name and strategy",
    "marketing": "Competitor name and approach"
  },
  "recommendations": [
    "Strategic recommendation 1",
    "Strategic recommendation 2",
    "Strategic recommendation 3"
  ]
}

Write like a seasoned competitive intelligence professional presenting to executives. Be insightful and actionable.`)
	return b.String()
}

// dailyTemplate fills the daily shape from aggregates alone.
func dailyTemplate(a *Analytics) DailySummary {
	top, topCount := "", 0
	if a.MostActive != nil {
		top, topCount = a.MostActive.Name, a.MostActive.Count
	}
	return DailySummary{
		Headline: fmt.Sprintf("%d Competitor Updates Detected Today", a.Total),
		Summary: fmt.Sprintf("Today we tracked %d updates across %d competitors. %s was the most active with %d updates. "+
			"Key activity includes %d pricing changes, %d product launches, and %d new campaigns.",
			a.Total, len(a.Activity), top, topCount, len(a.PricingChanges), len(a.ProductLaunches), len(a.Campaigns)),
		Highlights: []string{
			"Most Active: " + top,
			fmt.Sprintf("Pricing Changes: %d", len(a.PricingChanges)),
			fmt.Sprintf("Product Launches: %d", len(a.ProductLaunches)),
		},
		MajorPricingMoves:    joinEntries(a.PricingChanges),
		ProductAnnouncements: joinEntries(a.ProductLaunches),
		CampaignChanges:      joinEntries(a.Campaigns),
		NegativePress:        joinEntries(a.NegativeNews),
	}
}

// weeklyTemplate fills the weekly shape from aggregates alone.
func weeklyTemplate(a *Analytics, t Trends) WeeklySummary {
	discounter := t.AggressiveDiscounter
	if discounter == "" {
		discounter = "No competitor"
	}
	pricing := t.AggressiveDiscounter
	if pricing == "" {
		pricing = "Market stable"
	}
	growth := "Multiple competitors"
	if t.ProductLineGrowth != nil {
		growth = t.ProductLineGrowth.Name
	}
	marketing, campaignLeader := "Industry-wide", ""
	if t.CampaignLeader != nil {
		marketing, campaignLeader = t.CampaignLeader.Name, t.CampaignLeader.Name
	}

	return WeeklySummary{
		Headline: fmt.Sprintf("Weekly Competitive Intelligence: %d Updates Analyzed", a.Total),
		ExecutiveSummary: fmt.Sprintf("This week we monitored %d competitors with %d total updates. "+
			"%s leads in innovation with %d product-related updates. "+
			"%s showed aggressive pricing with %d price reductions. "+
			"Overall market activity shows healthy competition across multiple fronts.",
			len(a.Activity), a.Total, t.InnovationLeader, t.InnovationScore, discounter, t.DiscountCount),
		StrategicInsights: []string{
			fmt.Sprintf("Innovation Leadership: %s is pushing product boundaries", t.InnovationLeader),
			fmt.Sprintf("Pricing Strategy: %s pricing dynamics", pricing),
			fmt.Sprintf("Product Growth: %s expanding offerings", growth),
			fmt.Sprintf("Marketing Activity: %s campaign presence", marketing),
		},
		CompetitorRankings: Rankings{
			Innovation: t.InnovationLeader,
			Pricing:    t.AggressiveDiscounter,
			Marketing:  campaignLeader,
		},
		Recommendations: []string{
			"Monitor innovation leaders for market trends",
			"Analyze pricing strategies for competitive positioning",
			"Track product line expansions for gaps and opportunities",
		},
	}
}

// decodeNarrative re-decodes a parsed LLM object into out. It fails when
// the object does not fit the shape or has no headline.
func decodeNarrative(parsed map[string]any, out any) error {
	if parsed == nil {
		return fmt.Errorf("no JSON object in response")
	}
	if h, _ := parsed["headline"].(string); strings.TrimSpace(h) == "" {
		return fmt.Errorf("response has no headline")
	}
	data, err := json.Marshal(parsed)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func sample(entries []Entry, n int) []Entry {
	if len(entries) > n {
		return entries[:n]
	}
	return entries
}

func joinEntries(entries []Entry) string {
	parts := make([]string, len(entries))
	for i, e := range entries {
		parts[i] = e.Competitor + ": " + e.Title
	}
	return strings.Join(parts, "; ")
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}

func mustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(data)
}
