// Package extract turns fetched pages into candidate update items.
package extract

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/TobiSchelling/RivalWatch/internal/database"
	"github.com/TobiSchelling/RivalWatch/internal/logging"
)

const (
	maxArticles      = 20
	maxPricingCards  = 10
	maxSummaryLength = 500
	maxContentLength = 5000
)

// Item is a candidate update pulled from a page.
type Item struct {
	Title       string
	Summary     string
	Content     string
	URL         string
	Price       string
	Features    []string
	PublishedAt *time.Time
	ImageURL    string
	Author      string
	Tags        []string
}

// Extractor parses pages per page type. It never panics on bad markup; a
// page that cannot be parsed at all yields an error the caller can log.
type Extractor struct {
	logger *slog.Logger
}

// New creates an Extractor.
func New(logger *slog.Logger) *Extractor {
	return &Extractor{logger: logging.Or(logger)}
}

// Extract parses body fetched from pageURL according to pageType. selector,
// when non-empty, overrides the heuristic container selection.
func (e *Extractor) Extract(body []byte, contentType, pageURL, pageType, selector string) ([]Item, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parsing page URL %q: %w", pageURL, err)
	}

	switch pageType {
	case database.PageTypeNews, database.PageTypePress, database.PageTypeBlog:
		if isFeed(contentType, body) {
			return e.extractFeed(body, base)
		}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parsing HTML from %s: %w", pageURL, err)
	}

	switch pageType {
	case database.PageTypePricing:
		return extractPricing(doc, base, selector), nil
	case database.PageTypeNews, database.PageTypePress, database.PageTypeBlog:
		return extractArticles(doc, base, selector), nil
	default:
		item := e.extractGeneric(doc, body, base)
		if item == nil {
			return nil, nil
		}
		return []Item{*item}, nil
	}
}

// resolveURL makes href absolute against the page's origin. Empty or
// unparseable hrefs return "".
func resolveURL(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if ref.IsAbs() {
		return ref.String()
	}
	origin := &url.URL{Scheme: base.Scheme, Host: base.Host, Path: "/"}
	return origin.ResolveReference(ref).String()
}

var whitespace = regexp.MustCompile(`\s+`)

func cleanText(s string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}

func firstText(s *goquery.Selection, selector string) string {
	return cleanText(s.Find(selector).First().Text())
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}

var slugUnsafe = regexp.MustCompile(`[^a-z0-9]+`)

func slugify(parts ...string) string {
	s := strings.ToLower(strings.Join(parts, " "))
	s = slugUnsafe.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

var dateLayouts = []string{
	time.RFC3339,
	time.RFC1123Z,
	time.RFC1123,
	"2006-01-02T15:04:05",
	"2006-01-02",
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
	"2 Jan 2006",
	"01/02/2006",
}

// parseDate tries a fixed list of layouts and returns nil if none match.
func parseDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}
