package digest

import (
	"testing"

	"github.com/TobiSchelling/RivalWatch/internal/database"
)

var testNames = map[int64]string{1: "Acme", 2: "Globex"}

func TestAggregate(t *testing.T) {
	updates := []database.Update{
		{CompetitorID: 1, Category: database.CategoryPricing, ImpactScore: 8, Title: "a"},
		{CompetitorID: 2, Category: database.CategoryCampaign, ImpactScore: 6, Title: "b"},
		{CompetitorID: 1, Category: database.CategoryProductLaunch, ImpactScore: 9, Title: "c"},
		{CompetitorID: 3, Category: database.CategoryNegativeNews, ImpactScore: 8, Title: "d"},
	}
	a := Aggregate(updates, testNames)

	if a.Total != 4 {
		t.Errorf("expected 4 total, got %d", a.Total)
	}
	if a.CategoryBreakdown[database.CategoryPricing] != 1 || len(a.CategoryBreakdown) != 4 {
		t.Errorf("unexpected breakdown %v", a.CategoryBreakdown)
	}
	if a.MostActive == nil || a.MostActive.Name != "Acme" || a.MostActive.Count != 2 {
		t.Errorf("unexpected most active %+v", a.MostActive)
	}
	if a.MostActive.AvgImpact != 8.5 {
		t.Errorf("expected avg impact 8.5, got %v", a.MostActive.AvgImpact)
	}
	names := a.ActiveCompetitors()
	if len(names) != 3 || names[2] != "Unknown" {
		t.Errorf("unexpected active competitors %v", names)
	}
	if len(a.PricingChanges) != 1 || len(a.ProductLaunches) != 1 || len(a.Campaigns) != 1 || len(a.NegativeNews) != 1 {
		t.Error("expected one entry in each category list")
	}
}

func TestAggregateMostActiveTieGoesToFirstSeen(t *testing.T) {
	updates := []database.Update{
		{CompetitorID: 2, Category: database.CategoryOther},
		{CompetitorID: 1, Category: database.CategoryOther},
	}
	if a := Aggregate(updates, testNames); a.MostActive.Name != "Globex" {
		t.Errorf("expected Globex, got %s", a.MostActive.Name)
	}
}

func TestAnalyzeTrends(t *testing.T) {
	updates := []database.Update{
		{CompetitorID: 1, Category: database.CategoryFeatureUpdate},
		{CompetitorID: 2, Category: database.CategoryProductLaunch},
		{CompetitorID: 2, Category: database.CategoryFeatureUpdate},
		{CompetitorID: 1, Category: database.CategoryPricing, Sentiment: database.SentimentNegative},
		{CompetitorID: 2, Category: database.CategoryPricing, SentimentScore: -0.4},
		{CompetitorID: 2, Category: database.CategoryPricing, SentimentScore: -0.5},
		{CompetitorID: 1, Category: database.CategoryPricing, SentimentScore: 0.2},
		{CompetitorID: 1, Category: database.CategoryCampaign},
	}
	a := Aggregate(updates, testNames)
	tr := AnalyzeTrends(updates, testNames, a)

	if tr.InnovationLeader != "Globex" || tr.InnovationScore != 2 {
		t.Errorf("unexpected innovation leader %s (%d)", tr.InnovationLeader, tr.InnovationScore)
	}
	if tr.AggressiveDiscounter != "Globex" || tr.DiscountCount != 2 {
		t.Errorf("unexpected discounter %s (%d)", tr.AggressiveDiscounter, tr.DiscountCount)
	}
	if tr.ProductLineGrowth == nil || tr.ProductLineGrowth.Name != "Globex" {
		t.Errorf("unexpected product line growth %+v", tr.ProductLineGrowth)
	}
	if tr.CampaignLeader == nil || tr.CampaignLeader.Name != "Acme" || tr.CampaignLeader.Campaigns != 1 {
		t.Errorf("unexpected campaign leader %+v", tr.CampaignLeader)
	}
}

func TestAnalyzeTrendsQuietWeek(t *testing.T) {
	updates := []database.Update{{CompetitorID: 1, Category: database.CategoryOther}}
	a := Aggregate(updates, testNames)
	tr := AnalyzeTrends(updates, testNames, a)
	if tr.AggressiveDiscounter != "" || tr.ProductLineGrowth != nil || tr.CampaignLeader != nil {
		t.Errorf("expected no leaders, got %+v", tr)
	}
}
