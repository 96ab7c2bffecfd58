package extract

import (
	"net/url"

	"github.com/PuerkitoBio/goquery"
)

// articleSelectors are tried in order; the first that matches anything wins.
var articleSelectors = []string{
	"article",
	".post",
	".article",
	`[class*="article"]`,
	".news-item",
	".blog-post",
}

func extractArticles(doc *goquery.Document, base *url.URL, selector string) []Item {
	var containers *goquery.Selection
	if selector != "" {
		containers = doc.Find(selector)
	} else {
		for _, sel := range articleSelectors {
			found := doc.Find(sel)
			if found.Length() > 0 {
				containers = found.Slice(0, min(found.Length(), maxArticles))
				break
			}
		}
	}
	if containers == nil {
		return nil
	}

	var items []Item
	containers.Each(func(_ int, el *goquery.Selection) {
		item := extractArticle(el, base)
		if item.Title != "" && item.URL != "" {
			items = append(items, item)
		}
	})
	return items
}

func extractArticle(el *goquery.Selection, base *url.URL) Item {
	item := Item{
		Title:   firstText(el, `h1, h2, h3, h4, .title, [class*="title"]`),
		Summary: truncate(firstText(el, `p, .excerpt, .summary, [class*="summary"]`), maxSummaryLength),
	}

	href, _ := el.Find("a").First().Attr("href")
	if el.Is("a") {
		href, _ = el.Attr("href")
	}
	item.URL = resolveURL(base, href)
	if item.URL == "" {
		item.URL = base.String()
	}

	dateEl := el.Find(`time, .date, [class*="date"]`).First()
	if dt, ok := dateEl.Attr("datetime"); ok {
		item.PublishedAt = parseDate(dt)
	}
	if item.PublishedAt == nil {
		item.PublishedAt = parseDate(cleanText(dateEl.Text()))
	}

	if src, ok := el.Find("img").First().Attr("src"); ok {
		item.ImageURL = resolveURL(base, src)
	}

	item.Content = item.Summary
	return item
}
