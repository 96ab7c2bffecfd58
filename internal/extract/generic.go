package extract

import (
	"bytes"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
)

// minReadableLength is the shortest readability result trusted over the
// plain-text fallback.
const minReadableLength = 100

// extractGeneric summarizes a whole page as one item. Returns nil when the
// page has neither a title nor any text.
func (e *Extractor) extractGeneric(doc *goquery.Document, body []byte, base *url.URL) *Item {
	content := readableText(body, base)

	doc.Find("script, style, nav, header, footer, noscript").Remove()

	title := firstText(doc.Selection, "h1")
	if title == "" {
		title = cleanText(doc.Find("title").First().Text())
	}
	metaDescription, _ := doc.Find(`meta[name="description"]`).Attr("content")
	metaDescription = cleanText(metaDescription)

	if content == "" {
		main := doc.Find(`main, article, .content, .main, [role="main"]`).First()
		if main.Length() > 0 {
			content = cleanText(main.Text())
		} else {
			content = cleanText(doc.Find("body").Text())
		}
	}

	if title == "" && content == "" {
		e.logger.Debug("generic page has no extractable text", "url", base.String())
		return nil
	}

	summary := metaDescription
	if summary == "" {
		summary = truncate(content, maxSummaryLength)
	}

	item := &Item{
		Title:   title,
		Summary: summary,
		Content: truncate(content, maxContentLength),
		URL:     base.String(),
	}
	if img, ok := doc.Find(`meta[property="og:image"]`).Attr("content"); ok {
		item.ImageURL = resolveURL(base, img)
	}
	if author, ok := doc.Find(`meta[name="author"]`).Attr("content"); ok {
		item.Author = cleanText(author)
	}
	return item
}

func readableText(body []byte, base *url.URL) string {
	article, err := readability.FromReader(bytes.NewReader(body), base)
	if err != nil {
		return ""
	}
	text := cleanText(article.TextContent)
	if len(text) > minReadableLength {
		return text
	}
	return ""
}

// isFeed reports whether a response looks like RSS or Atom rather than HTML.
func isFeed(contentType string, body []byte) bool {
	ct := strings.ToLower(contentType)
	if strings.Contains(ct, "rss") || strings.Contains(ct, "atom") {
		return true
	}
	head := bytes.TrimSpace(body)
	if len(head) > 512 {
		head = head[:512]
	}
	lower := bytes.ToLower(head)
	if bytes.HasPrefix(lower, []byte("<rss")) || bytes.HasPrefix(lower, []byte("<feed")) {
		return true
	}
	if bytes.HasPrefix(lower, []byte("<?xml")) {
		return bytes.Contains(lower, []byte("<rss")) || bytes.Contains(lower, []byte("<feed")) ||
			bytes.Contains(lower, []byte("<rdf"))
	}
	return strings.Contains(ct, "xml") && !strings.Contains(ct, "html")
}
