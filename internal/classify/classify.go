// Package classify assigns a category, sentiment and impact score to a
// detected update, using an LLM when one is available and keyword rules
// otherwise.
package classify

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/TobiSchelling/RivalWatch/internal/database"
	"github.com/TobiSchelling/RivalWatch/internal/llm"
	"github.com/TobiSchelling/RivalWatch/internal/logging"
)

const classificationPrompt = `Analyze the following competitive intelligence update and classify it.

Text: %s

Provide a JSON response with the following structure:
{
  "category": "<one of: pricing, campaign, product_launch, feature_update, press, negative_news, other>",
  "confidence": <0-1>,
  "sentiment": "<positive, neutral, or negative>",
  "sentimentScore": <-1 to 1>,
  "impactScore": <0-10>,
  "entities": {
    "product": "<product name if mentioned>",
    "price": "<price if mentioned>",
    "discount": "<discount percentage if mentioned>",
    "date": "<date if mentioned>",
    "keywords": ["<key phrases>"]
  },
  "reasoning": "<brief explanation>"
}

Guidelines:
- pricing: Price changes, discounts, new pricing tiers
- campaign: Marketing campaigns, promotions, advertising
- product_launch: New product announcements
- feature_update: New features, improvements
- press: Press releases, media coverage
- negative_news: Controversies, problems, bad press
- other: Everything else

- sentiment: Overall tone (positive, neutral, negative)
- sentimentScore: -1 (very negative) to 1 (very positive)
- impactScore: 0-10 based on how significant this update is for competitive analysis
- confidence: 0-1 indicating how confident you are in the classification

Return ONLY the JSON, no other text.`

const (
	maxPromptText = 4000
	maxTokens     = 1024
	maxAttempts   = 2
)

// Source records which path produced a classification.
const (
	SourceLLM     = "llm"
	SourceRules   = "rules"
	SourceDefault = "default"
)

// Classification is the outcome of classifying one update.
type Classification struct {
	Category       string
	Confidence     float64 // [0,1]
	Sentiment      string
	SentimentScore float64 // [-1,1]
	ImpactScore    float64 // [0,10]
	Entities       database.Entities
	Reasoning      string
	Source         string
}

// Apply copies the classification fields onto u.
func (c Classification) Apply(u *database.Update) {
	u.Category = c.Category
	u.Confidence = c.Confidence
	u.Sentiment = c.Sentiment
	u.SentimentScore = c.SentimentScore
	u.ImpactScore = c.ImpactScore
	u.Entities = c.Entities
}

// Classifier classifies updates. A nil provider means rules only.
type Classifier struct {
	provider   llm.Provider
	logger     *slog.Logger
	retryDelay time.Duration
}

// New creates a Classifier.
func New(provider llm.Provider, logger *slog.Logger) *Classifier {
	return &Classifier{
		provider:   provider,
		logger:     logging.Or(logger),
		retryDelay: time.Second,
	}
}

// Classify never fails: backend errors, unparseable responses and a missing
// backend all fall through to RuleBased.
func (c *Classifier) Classify(ctx context.Context, title, summary, body string) Classification {
	if c.provider != nil {
		result, err := c.classifyWithLLM(ctx, title, summary, body)
		if err == nil {
			return result
		}
		c.logger.Warn("classification failed, using rules", "title", title, "error", err)
	}
	return c.ruleBasedOrDefault(title, summary, body)
}

func (c *Classifier) classifyWithLLM(ctx context.Context, title, summary, body string) (Classification, error) {
	text := truncate(title+"\n\n"+summary+"\n\n"+body, maxPromptText)
	prompt := fmt.Sprintf(classificationPrompt, text)

	var response string
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		response, err = c.provider.Generate(ctx, prompt, maxTokens)
		if err == nil {
			break
		}
		if attempt < maxAttempts {
			select {
			case <-ctx.Done():
				return Classification{}, ctx.Err()
			case <-time.After(c.retryDelay):
			}
		}
	}
	if err != nil {
		return Classification{}, fmt.Errorf("%s: %w", c.provider.Name(), err)
	}

	parsed := llm.ParseJSONResponse(response)
	if parsed == nil {
		return Classification{}, fmt.Errorf("%s: no JSON object in response", c.provider.Name())
	}
	return fromParsed(parsed), nil
}

// fromParsed maps an LLM JSON object onto a Classification, defaulting
// missing fields and clamping numbers into range.
func fromParsed(m map[string]any) Classification {
	result := Classification{
		Category:       normalizeCategory(llm.GetString(m, "category", database.CategoryOther)),
		Confidence:     clamp(llm.GetFloat(m, "confidence", 0.5), 0, 1),
		Sentiment:      normalizeSentiment(llm.GetString(m, "sentiment", database.SentimentNeutral)),
		SentimentScore: clamp(llm.GetFloat(m, "sentimentScore", 0), -1, 1),
		ImpactScore:    clamp(llm.GetFloat(m, "impactScore", 5), 0, 10),
		Reasoning:      llm.GetString(m, "reasoning", ""),
		Source:         SourceLLM,
	}
	if e := llm.GetMap(m, "entities"); e != nil {
		result.Entities = database.Entities{
			Product:  llm.GetString(e, "product", ""),
			Price:    llm.GetString(e, "price", ""),
			Discount: llm.GetString(e, "discount", ""),
			Date:     llm.GetString(e, "date", ""),
			Keywords: llm.GetStringSlice(e, "keywords"),
		}
	}
	return result
}

func (c *Classifier) ruleBasedOrDefault(title, summary, body string) (result Classification) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("rule-based classification failed", "panic", r)
			result = Default()
		}
	}()
	return RuleBased(title, summary, body)
}

// Default is the classification used when nothing else produced one.
func Default() Classification {
	return Classification{
		Category:       database.CategoryOther,
		Confidence:     0.3,
		Sentiment:      database.SentimentNeutral,
		SentimentScore: 0,
		ImpactScore:    5,
		Source:         SourceDefault,
	}
}

func normalizeCategory(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, c := range database.Categories {
		if s == c {
			return s
		}
	}
	return database.CategoryOther
}

func normalizeSentiment(s string) string {
	switch s = strings.ToLower(strings.TrimSpace(s)); s {
	case database.SentimentPositive, database.SentimentNegative, database.SentimentNeutral:
		return s
	}
	return database.SentimentNeutral
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

var plainWord = regexp.MustCompile(`^[a-z]+$`)

// keywordPattern matches any of terms. Plain words match whole-word;
// symbols and phrases match anywhere.
func keywordPattern(terms ...string) *regexp.Regexp {
	parts := make([]string, len(terms))
	for i, t := range terms {
		if plainWord.MatchString(t) {
			parts[i] = `\b` + t + `\b`
		} else {
			parts[i] = regexp.QuoteMeta(t)
		}
	}
	return regexp.MustCompile(strings.Join(parts, "|"))
}
