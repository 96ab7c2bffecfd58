package extract

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
)

// extractFeed reads RSS/Atom entries as article items.
func (e *Extractor) extractFeed(body []byte, base *url.URL) ([]Item, error) {
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parsing feed from %s: %w", base, err)
	}

	var items []Item
	for _, entry := range feed.Items {
		if len(items) >= maxArticles {
			break
		}
		item := feedItem(entry, base)
		if item.Title == "" || item.URL == "" {
			continue
		}
		items = append(items, item)
	}
	e.logger.Debug("parsed feed", "url", base.String(), "entries", len(feed.Items), "items", len(items))
	return items, nil
}

func feedItem(entry *gofeed.Item, base *url.URL) Item {
	link := entry.Link
	if link == "" {
		link = entry.GUID
	}

	content := stripHTML(entry.Content)
	summary := stripHTML(entry.Description)
	if summary == "" {
		summary = content
	}
	if content == "" {
		content = summary
	}

	item := Item{
		Title:   cleanText(entry.Title),
		Summary: truncate(summary, maxSummaryLength),
		Content: truncate(content, maxContentLength),
		URL:     resolveURL(base, link),
		Tags:    entry.Categories,
	}
	if entry.PublishedParsed != nil {
		t := *entry.PublishedParsed
		item.PublishedAt = &t
	} else if entry.UpdatedParsed != nil {
		t := *entry.UpdatedParsed
		item.PublishedAt = &t
	}
	if entry.Image != nil {
		item.ImageURL = resolveURL(base, entry.Image.URL)
	}
	if entry.Author != nil {
		item.Author = entry.Author.Name
	}
	return item
}

func stripHTML(fragment string) string {
	if strings.TrimSpace(fragment) == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return cleanText(fragment)
	}
	return cleanText(doc.Text())
}
