package compare

import (
	"math"
	"time"

	"github.com/TobiSchelling/RivalWatch/internal/database"
)

// Stats summarizes one competitor's updates in the comparison window.
type Stats struct {
	TotalUpdates   int
	CategoryCount  map[string]int
	AvgSentiment   float64
	AvgImpact      float64
	PricingCount   int
	FeatureCount   int // feature updates plus product launches
	CampaignCount  int
	LatestPricing  *database.Update
	LatestFeature  *database.Update
	LatestCampaign *database.Update
}

// Analyze computes Stats for updates ordered newest first.
func Analyze(updates []database.Update) Stats {
	s := Stats{TotalUpdates: len(updates), CategoryCount: make(map[string]int)}
	var sentiment, impact float64
	for i := range updates {
		u := &updates[i]
		s.CategoryCount[u.Category]++
		sentiment += u.SentimentScore
		impact += u.ImpactScore

		switch u.Category {
		case database.CategoryPricing:
			s.PricingCount++
			if s.LatestPricing == nil {
				s.LatestPricing = u
			}
		case database.CategoryFeatureUpdate, database.CategoryProductLaunch:
			s.FeatureCount++
			if s.LatestFeature == nil {
				s.LatestFeature = u
			}
		case database.CategoryCampaign:
			s.CampaignCount++
			if s.LatestCampaign == nil {
				s.LatestCampaign = u
			}
		}
	}
	if len(updates) > 0 {
		s.AvgSentiment = sentiment / float64(len(updates))
		s.AvgImpact = impact / float64(len(updates))
	}
	return s
}

// InnovationScore weighs feature activity, average impact and volume.
func InnovationScore(s Stats) int {
	return score(3*float64(s.FeatureCount) + 2*(s.AvgImpact*10) + float64(s.TotalUpdates))
}

// PricingAggressiveness weighs pricing frequency and sentiment strength.
func PricingAggressiveness(s Stats) int {
	if s.PricingCount == 0 {
		return 0
	}
	return score(10*float64(s.PricingCount) + 30*math.Abs(s.AvgSentiment))
}

// CampaignStrength weighs campaign frequency and average impact.
func CampaignStrength(s Stats) int {
	if s.CampaignCount == 0 {
		return 0
	}
	return score(15*float64(s.CampaignCount) + 20*s.AvgImpact)
}

// score rounds raw and clamps it to [0,100].
func score(raw float64) int {
	if math.IsNaN(raw) {
		return 0
	}
	return int(math.Max(0, math.Min(100, math.Round(raw))))
}

// Item points at a notable update.
type Item struct {
	Title     string    `json:"title"`
	Date      time.Time `json:"date"`
	Impact    float64   `json:"impact,omitempty"`
	Sentiment string    `json:"sentiment,omitempty"`
}

// Features is the features dimension for one competitor.
type Features struct {
	TotalFeatures   int    `json:"totalFeatures"`
	RecentFeatures  []Item `json:"recentFeatures"`
	InnovationScore int    `json:"innovationScore"`
}

// Pricing is the pricing dimension for one competitor.
type Pricing struct {
	TotalPricingUpdates   int   `json:"totalPricingUpdates"`
	LatestChange          *Item `json:"latestChange"`
	PricingAggressiveness int   `json:"pricingAggressiveness"`
}

// Campaigns is the campaigns dimension for one competitor.
type Campaigns struct {
	TotalCampaigns   int   `json:"totalCampaigns"`
	LatestCampaign   *Item `json:"latestCampaign"`
	CampaignStrength int   `json:"campaignStrength"`
}

// Activity is the activity dimension for one competitor.
type Activity struct {
	TotalUpdates      int            `json:"totalUpdates"`
	CategoryBreakdown map[string]int `json:"categoryBreakdown"`
	ActivityScore     int            `json:"activityScore"`
}

// Sentiment is the sentiment dimension for one competitor.
type Sentiment struct {
	AverageSentiment float64 `json:"averageSentiment"`
	AverageImpact    float64 `json:"averageImpact"`
	OverallScore     float64 `json:"overallScore"`
}

// Matrix holds every dimension keyed by competitor name.
type Matrix struct {
	Features  map[string]Features  `json:"features"`
	Pricing   map[string]Pricing   `json:"pricing"`
	Campaigns map[string]Campaigns `json:"campaigns"`
	Activity  map[string]Activity  `json:"activity"`
	Sentiment map[string]Sentiment `json:"sentiment"`

	// Names lists competitors in the order they were added.
	Names []string `json:"-"`
}

func newMatrix() *Matrix {
	return &Matrix{
		Features:  make(map[string]Features),
		Pricing:   make(map[string]Pricing),
		Campaigns: make(map[string]Campaigns),
		Activity:  make(map[string]Activity),
		Sentiment: make(map[string]Sentiment),
	}
}

// Add records one competitor across every dimension.
func (m *Matrix) Add(name string, s Stats) {
	m.Names = append(m.Names, name)

	f := Features{TotalFeatures: s.FeatureCount, RecentFeatures: []Item{}, InnovationScore: InnovationScore(s)}
	if u := s.LatestFeature; u != nil {
		f.RecentFeatures = append(f.RecentFeatures, Item{Title: u.Title, Date: u.CreatedAt, Impact: u.ImpactScore})
	}
	m.Features[name] = f

	p := Pricing{TotalPricingUpdates: s.PricingCount, PricingAggressiveness: PricingAggressiveness(s)}
	if u := s.LatestPricing; u != nil {
		p.LatestChange = &Item{Title: u.Title, Date: u.CreatedAt, Sentiment: u.Sentiment}
	}
	m.Pricing[name] = p

	c := Campaigns{TotalCampaigns: s.CampaignCount, CampaignStrength: CampaignStrength(s)}
	if u := s.LatestCampaign; u != nil {
		c.LatestCampaign = &Item{Title: u.Title, Date: u.CreatedAt}
	}
	m.Campaigns[name] = c

	m.Activity[name] = Activity{
		TotalUpdates:      s.TotalUpdates,
		CategoryBreakdown: s.CategoryCount,
		ActivityScore:     s.TotalUpdates,
	}
	m.Sentiment[name] = Sentiment{
		AverageSentiment: s.AvgSentiment,
		AverageImpact:    s.AvgImpact,
		OverallScore:     (s.AvgSentiment + s.AvgImpact) / 2,
	}
}
