package digest

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/TobiSchelling/RivalWatch/internal/database"
	"github.com/TobiSchelling/RivalWatch/internal/notify"
)

const periodLayout = "Jan 2, 2006"

func period(start, end time.Time, loc *time.Location) string {
	return start.In(loc).Format(periodLayout) + " to " + end.In(loc).Format(periodLayout)
}

func dailyMarkdown(s DailySummary, start, end time.Time, loc *time.Location) notify.Message {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n_Daily digest, %s_\n\n", s.Headline, period(start, end, loc))
	b.WriteString(s.Summary + "\n\n")
	writeList(&b, "Highlights", s.Highlights)
	writeSection(&b, "Pricing", s.MajorPricingMoves)
	writeSection(&b, "Products", s.ProductAnnouncements)
	writeSection(&b, "Campaigns", s.CampaignChanges)
	writeSection(&b, "Negative press", s.NegativePress)
	return notify.Message{Subject: "RivalWatch daily digest: " + s.Headline, Markdown: b.String()}
}

func weeklyMarkdown(s WeeklySummary, start, end time.Time, loc *time.Location) notify.Message {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n_Weekly digest, %s_\n\n", s.Headline, period(start, end, loc))
	b.WriteString(s.ExecutiveSummary + "\n\n")
	writeList(&b, "Strategic insights", s.StrategicInsights)
	b.WriteString("## Rankings\n\n")
	fmt.Fprintf(&b, "- **Innovation:** %s\n", orNone(s.CompetitorRankings.Innovation))
	fmt.Fprintf(&b, "- **Pricing:** %s\n", orNone(s.CompetitorRankings.Pricing))
	fmt.Fprintf(&b, "- **Marketing:** %s\n\n", orNone(s.CompetitorRankings.Marketing))
	writeList(&b, "Recommendations", s.Recommendations)
	return notify.Message{Subject: "RivalWatch weekly digest: " + s.Headline, Markdown: b.String()}
}

// Markdown renders a stored digest for display.
func Markdown(d *database.Digest, loc *time.Location) (string, error) {
	if loc == nil {
		loc = time.UTC
	}
	switch d.Type {
	case database.DigestDaily:
		var s DailySummary
		if err := json.Unmarshal(d.Summary, &s); err != nil {
			return "", fmt.Errorf("decoding daily digest %d: %w", d.ID, err)
		}
		return dailyMarkdown(s, d.PeriodStart, d.PeriodEnd, loc).Markdown, nil
	case database.DigestWeekly:
		var s WeeklySummary
		if err := json.Unmarshal(d.Summary, &s); err != nil {
			return "", fmt.Errorf("decoding weekly digest %d: %w", d.ID, err)
		}
		return weeklyMarkdown(s, d.PeriodStart, d.PeriodEnd, loc).Markdown, nil
	}
	return "", fmt.Errorf("unknown digest type %q", d.Type)
}

func writeList(b *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "## %s\n\n", title)
	for _, item := range items {
		fmt.Fprintf(b, "- %s\n", item)
	}
	b.WriteString("\n")
}

func writeSection(b *strings.Builder, title, text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	fmt.Fprintf(b, "## %s\n\n%s\n\n", title, text)
}
