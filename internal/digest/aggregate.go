package digest

import (
	"sort"

	"github.com/TobiSchelling/RivalWatch/internal/database"
)

// Entry is one update as it appears in digest lists and prompts.
type Entry struct {
	Competitor string  `json:"competitor"`
	Title      string  `json:"title"`
	Category   string  `json:"category"`
	Impact     float64 `json:"impact"`
	URL        string  `json:"url,omitempty"`
}

// Activity is one competitor's activity within the window.
type Activity struct {
	Name       string         `json:"name"`
	Count      int            `json:"count"`
	Categories map[string]int `json:"categories"`
	AvgImpact  float64        `json:"avgImpact"`

	impactSum float64
}

// Analytics is the aggregate view of a digest window.
type Analytics struct {
	Total             int            `json:"totalUpdates"`
	CategoryBreakdown map[string]int `json:"categories"`
	Activity          []*Activity    `json:"competitorActivity"` // first-seen order
	MostActive        *Activity      `json:"topCompetitor,omitempty"`
	PricingChanges    []Entry        `json:"-"`
	ProductLaunches   []Entry        `json:"-"`
	Campaigns         []Entry        `json:"-"`
	NegativeNews      []Entry        `json:"-"`
	Entries           []Entry        `json:"-"`
}

// ActiveCompetitors returns competitor names in first-seen order.
func (a *Analytics) ActiveCompetitors() []string {
	names := make([]string, len(a.Activity))
	for i, act := range a.Activity {
		names[i] = act.Name
	}
	return names
}

// Aggregate summarizes updates. names maps competitor IDs to names; unknown
// IDs are reported as "Unknown". It has no side effects.
func Aggregate(updates []database.Update, names map[int64]string) *Analytics {
	a := &Analytics{
		Total:             len(updates),
		CategoryBreakdown: make(map[string]int),
	}
	byName := make(map[string]*Activity)

	for _, u := range updates {
		name := names[u.CompetitorID]
		if name == "" {
			name = "Unknown"
		}
		e := Entry{Competitor: name, Title: u.Title, Category: u.Category, Impact: u.ImpactScore, URL: u.URL}
		a.Entries = append(a.Entries, e)
		a.CategoryBreakdown[u.Category]++

		act, ok := byName[name]
		if !ok {
			act = &Activity{Name: name, Categories: make(map[string]int)}
			byName[name] = act
			a.Activity = append(a.Activity, act)
		}
		act.Count++
		act.Categories[u.Category]++
		act.impactSum += u.ImpactScore

		switch u.Category {
		case database.CategoryPricing:
			a.PricingChanges = append(a.PricingChanges, e)
		case database.CategoryProductLaunch:
			a.ProductLaunches = append(a.ProductLaunches, e)
		case database.CategoryCampaign:
			a.Campaigns = append(a.Campaigns, e)
		case database.CategoryNegativeNews:
			a.NegativeNews = append(a.NegativeNews, e)
		}
	}

	for _, act := range a.Activity {
		act.AvgImpact = act.impactSum / float64(act.Count)
		if a.MostActive == nil || act.Count > a.MostActive.Count {
			a.MostActive = act
		}
	}
	return a
}

// ProductLine is a competitor's launch plus feature-update activity.
type ProductLine struct {
	Name           string  `json:"name"`
	ProductUpdates int     `json:"productUpdates"`
	AvgImpact      float64 `json:"avgImpact"`
}

// CampaignLeader is the competitor with the most campaigns.
type CampaignLeader struct {
	Name      string `json:"name"`
	Campaigns int    `json:"campaigns"`
}

// Trends are the weekly strategic signals.
type Trends struct {
	InnovationLeader     string          `json:"innovationLeader,omitempty"`
	InnovationScore      int             `json:"innovationScore"`
	AggressiveDiscounter string          `json:"aggressiveDiscounter,omitempty"`
	DiscountCount        int             `json:"discountCount"`
	ProductLineGrowth    *ProductLine    `json:"productLineGrowth,omitempty"`
	CampaignLeader       *CampaignLeader `json:"campaignLeader,omitempty"`
}

// discountSentiment is the sentiment score below which a pricing update
// counts as a discount.
const discountSentiment = -0.3

// AnalyzeTrends derives the weekly signals. Ties go to the competitor seen
// first.
func AnalyzeTrends(updates []database.Update, names map[int64]string, a *Analytics) Trends {
	var t Trends

	innovation := func(act *Activity) int {
		return act.Categories[database.CategoryProductLaunch] + act.Categories[database.CategoryFeatureUpdate]
	}

	for _, act := range a.Activity {
		if score := innovation(act); t.InnovationLeader == "" || score > t.InnovationScore {
			t.InnovationLeader = act.Name
			t.InnovationScore = score
		}
		if n := innovation(act); n > 0 && (t.ProductLineGrowth == nil || n > t.ProductLineGrowth.ProductUpdates) {
			t.ProductLineGrowth = &ProductLine{Name: act.Name, ProductUpdates: n, AvgImpact: act.AvgImpact}
		}
		if n := act.Categories[database.CategoryCampaign]; n > 0 && (t.CampaignLeader == nil || n > t.CampaignLeader.Campaigns) {
			t.CampaignLeader = &CampaignLeader{Name: act.Name, Campaigns: n}
		}
	}

	discounts := make(map[string]int)
	var order []string
	for _, u := range updates {
		if u.Category != database.CategoryPricing {
			continue
		}
		if u.Sentiment != database.SentimentNegative && u.SentimentScore >= discountSentiment {
			continue
		}
		name := names[u.CompetitorID]
		if name == "" {
			name = "Unknown"
		}
		if _, ok := discounts[name]; !ok {
			order = append(order, name)
		}
		discounts[name]++
	}
	sort.SliceStable(order, func(i, j int) bool { return discounts[order[i]] > discounts[order[j]] })
	if len(order) > 0 {
		t.AggressiveDiscounter = order[0]
		t.DiscountCount = discounts[order[0]]
	}
	return t
}
