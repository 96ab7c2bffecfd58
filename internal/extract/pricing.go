package extract

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

const priceSelector = `.price, [class*="price"], [class*="pricing"]`

// extractPricing finds pricing cards. With a selector each match is a card;
// otherwise the innermost price-like elements are located and each is paired
// with the nearest enclosing block that has a heading.
func extractPricing(doc *goquery.Document, base *url.URL, selector string) []Item {
	var items []Item

	if selector != "" {
		doc.Find(selector).Each(func(_ int, card *goquery.Selection) {
			item := Item{
				Title:   firstText(card, "h1, h2, h3, .title, .name"),
				Price:   firstText(card, `.price, [class*="price"]`),
				Summary: firstText(card, "p, .description"),
			}
			card.Find("li, .feature").Each(func(_ int, f *goquery.Selection) {
				if text := cleanText(f.Text()); text != "" {
					item.Features = append(item.Features, text)
				}
			})
			items = appendPricing(items, item, base)
		})
		return items
	}

	seen := make(map[*html.Node]struct{})
	doc.Find(priceSelector).EachWithBreak(func(_ int, el *goquery.Selection) bool {
		if len(items) >= maxPricingCards {
			return false
		}
		// Skip wrappers; only the innermost price-like element carries the price.
		if el.Find(priceSelector).Length() > 0 {
			return true
		}
		card := enclosingCard(el)
		if card.Length() == 0 {
			return true
		}
		node := card.Get(0)
		if _, dup := seen[node]; dup {
			return true
		}
		seen[node] = struct{}{}

		items = appendPricing(items, Item{
			Title:   firstText(card, "h1, h2, h3, h4"),
			Price:   cleanText(el.Text()),
			Summary: firstText(card, "p"),
		}, base)
		return true
	})
	return items
}

// enclosingCard walks up from a price element to the first block container
// holding a heading, falling back to the nearest block.
func enclosingCard(el *goquery.Selection) *goquery.Selection {
	blocks := el.ParentsFiltered("div, section, article, li")
	for i := 0; i < blocks.Length() && i < 4; i++ {
		b := blocks.Eq(i)
		if b.Find("h1, h2, h3, h4").Length() > 0 {
			return b
		}
	}
	return blocks.First()
}

func appendPricing(items []Item, item Item, base *url.URL) []Item {
	if item.Title == "" && item.Price == "" {
		return items
	}
	item.Summary = truncate(item.Summary, maxSummaryLength)
	item.Content = pricingContent(item)
	item.URL = pricingURL(base, item)
	if item.Title == "" {
		item.Title = item.Price
	}
	return append(items, item)
}

// pricingURL gives each card a stable identity on the page. The price is part
// of the fragment, so a changed price is detected as a new item.
func pricingURL(base *url.URL, item Item) string {
	u := *base
	u.Fragment = slugify(item.Title, item.Price)
	u.RawFragment = ""
	return u.String()
}

func pricingContent(item Item) string {
	var b strings.Builder
	b.WriteString(item.Title)
	if item.Price != "" {
		fmt.Fprintf(&b, ": %s", item.Price)
	}
	if item.Summary != "" {
		fmt.Fprintf(&b, ". %s", item.Summary)
	}
	if len(item.Features) > 0 {
		fmt.Fprintf(&b, ". Features: %s", strings.Join(item.Features, "; "))
	}
	return truncate(strings.TrimSpace(b.String()), maxContentLength)
}
