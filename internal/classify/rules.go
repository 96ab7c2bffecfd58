package classify

import (
	"regexp"
	"strings"

	"github.com/TobiSchelling/RivalWatch/internal/database"
)

type categoryRule struct {
	category string
	pattern  *regexp.Regexp
	impact   float64
}

// Checked in order; first match wins.
var categoryRules = []categoryRule{
	{database.CategoryPricing, keywordPattern("price", "pricing", "cost", "$", "€", "£", "discount", "sale", "offer", "per month", "/mo"), 8},
	{database.CategoryProductLaunch, keywordPattern("launch", "launches", "launched", "introduce", "introducing", "unveil", "unveils", "announce", "announces", "new product", "release", "released"), 9},
	{database.CategoryCampaign, keywordPattern("campaign", "marketing", "ad", "advertisement", "promotion", "promo"), 6},
	{database.CategoryFeatureUpdate, keywordPattern("feature", "features", "update", "improvement", "enhance", "enhanced", "upgrade"), 6},
	{database.CategoryPress, keywordPattern("press release", "announcement", "statement"), 5},
	{database.CategoryNegativeNews, keywordPattern("controversy", "scandal", "problem", "issue", "crisis", "lawsuit", "breach", "outage", "recall"), 8},
}

const otherImpact = 5

var (
	positiveWords = []string{"great", "excellent", "innovative", "improved", "better", "success"}
	negativeWords = []string{"problem", "issue", "bug", "failed", "worse", "criticism"}
	keywordStop   = map[string]bool{"product": true, "company": true, "update": true, "announce": true}
)

const maxKeywords = 5

// RuleBased classifies by keyword matching. It is deterministic.
func RuleBased(title, summary, body string) Classification {
	text := strings.ToLower(title + " " + summary + " " + body)

	result := Classification{
		Category:    database.CategoryOther,
		Confidence:  0.6,
		Sentiment:   database.SentimentNeutral,
		ImpactScore: otherImpact,
		Source:      SourceRules,
	}
	for _, rule := range categoryRules {
		if rule.pattern.MatchString(text) {
			result.Category = rule.category
			result.ImpactScore = rule.impact
			break
		}
	}

	positive := countHits(text, positiveWords)
	negative := countHits(text, negativeWords)
	switch {
	case positive > negative:
		result.Sentiment = database.SentimentPositive
		result.SentimentScore = 0.6
	case negative > positive:
		result.Sentiment = database.SentimentNegative
		result.SentimentScore = -0.6
	}
	if result.Category == database.CategoryNegativeNews {
		result.Sentiment = database.SentimentNegative
		result.SentimentScore = -0.7
	}

	result.Entities.Keywords = extractKeywords(text)
	return result
}

func countHits(text string, words []string) int {
	n := 0
	for _, w := range words {
		if strings.Contains(text, w) {
			n++
		}
	}
	return n
}

// extractKeywords returns the first words longer than five characters,
// in source order, skipping stopwords and repeats.
func extractKeywords(text string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, field := range strings.Fields(text) {
		word := strings.Trim(field, ".,;:!?\"'()[]{}")
		if len([]rune(word)) <= 5 || keywordStop[word] || seen[word] {
			continue
		}
		seen[word] = true
		out = append(out, word)
		if len(out) == maxKeywords {
			break
		}
	}
	return out
}
