package database

import (
	"encoding/json"
	"time"
)

// Page types a scrape target can have. Also recorded as an update's source type.
const (
	PageTypePricing = "pricing"
	PageTypeNews    = "news"
	PageTypePress   = "press"
	PageTypeBlog    = "blog"
	PageTypeProduct = "product"
)

// PageTypes lists every valid scrape target type.
var PageTypes = []string{PageTypePricing, PageTypeNews, PageTypePress, PageTypeBlog, PageTypeProduct}

// IsPageType reports whether t is a known page type.
func IsPageType(t string) bool {
	for _, pt := range PageTypes {
		if pt == t {
			return true
		}
	}
	return false
}

// Update categories.
const (
	CategoryPricing       = "pricing"
	CategoryCampaign      = "campaign"
	CategoryProductLaunch = "product_launch"
	CategoryFeatureUpdate = "feature_update"
	CategoryPress         = "press"
	CategoryNegativeNews  = "negative_news"
	CategoryOther         = "other"
)

// Categories lists every update category in rule-matching priority order,
// with the catch-all last.
var Categories = []string{
	CategoryPricing,
	CategoryProductLaunch,
	CategoryCampaign,
	CategoryFeatureUpdate,
	CategoryPress,
	CategoryNegativeNews,
	CategoryOther,
}

// Sentiments.
const (
	SentimentPositive = "positive"
	SentimentNeutral  = "neutral"
	SentimentNegative = "negative"
)

// Alert rules.
const (
	RulePriceDrop        = "price_drop"
	RulePriceIncrease    = "price_increase"
	RuleNewProduct       = "new_product"
	RuleCampaignDetected = "campaign_detected"
	RuleNegativeNews     = "negative_news"
	RuleUpdateSpike      = "update_spike"
	RuleHighImpact       = "high_impact"
	RuleCustom           = "custom"
)

// Alert severities.
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// Notification channels.
const (
	ChannelEmail = "email"
	ChannelInApp = "in_app"
)

// Digest types.
const (
	DigestDaily  = "daily"
	DigestWeekly = "weekly"
)

// Competitor is a tracked competitor.
type Competitor struct {
	ID            int64
	Name          string
	BaseURL       string
	Industry      string
	Notes         string
	Active        bool
	LastScrapedAt *time.Time
	Metadata      map[string]string
	Targets       []ScrapeTarget
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ScrapeTarget is one page fetched periodically for a competitor.
type ScrapeTarget struct {
	ID           int64
	CompetitorID int64
	Name         string
	URL          string // absolute, or relative to the competitor's base URL
	Type         string // one of the PageType constants
	Selector     string // optional CSS selector override
}

// Entities holds the structured facts pulled out of an update.
type Entities struct {
	Product  string
	Price    string
	Discount string
	Date     string
	Keywords []string
}

// UpdateMetadata carries optional page details for an update.
type UpdateMetadata struct {
	ImageURL string   `json:"imageUrl,omitempty"`
	Author   string   `json:"author,omitempty"`
	Tags     []string `json:"tags,omitempty"`
}

// Update is one detected and classified page item.
type Update struct {
	ID             int64
	CompetitorID   int64
	Title          string
	Summary        string
	Content        string
	URL            string
	SourceType     string
	Category       string
	Sentiment      string
	SentimentScore float64
	ImpactScore    float64
	Confidence     float64
	Entities       Entities
	DetectedAt     time.Time
	Processed      bool
	Metadata       UpdateMetadata
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Alert is a rule-triggered notification.
type Alert struct {
	ID           int64
	UpdateID     *int64 // nil for competitor-level alerts such as spikes
	CompetitorID int64
	Rule         string
	Severity     string
	Title        string
	Message      string
	Read         bool
	ReadAt       *time.Time
	Notified     bool
	NotifiedAt   *time.Time
	Channels     []string
	Metadata     map[string]any
	CreatedAt    time.Time
}

// HasChannel reports whether the alert is routed to channel.
func (a *Alert) HasChannel(channel string) bool {
	for _, c := range a.Channels {
		if c == channel {
			return true
		}
	}
	return false
}

// Digest is a stored daily or weekly summary. Summary and Metadata hold
// JSON documents whose shape depends on Type.
type Digest struct {
	ID          int64
	Type        string
	PeriodStart time.Time
	PeriodEnd   time.Time
	Summary     json.RawMessage
	Metadata    json.RawMessage
	UpdateIDs   []int64
	EmailSent   bool
	EmailSentAt *time.Time
	CreatedAt   time.Time
}

// Comparison is a stored cross-competitor comparison matrix.
type Comparison struct {
	ID            int64
	CompetitorIDs []int64
	Data          json.RawMessage
	Insights      json.RawMessage
	Metadata      json.RawMessage
	CreatedAt     time.Time
}

// Stats contains aggregate database statistics.
type Stats struct {
	Competitors        int
	ActiveCompetitors  int
	Targets            int
	Updates            int
	UnprocessedUpdates int
	Alerts             int
	UnreadAlerts       int
	Digests            int
	Comparisons        int
}
