package compare

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/TobiSchelling/RivalWatch/internal/database"
)

// Markdown renders a stored comparison for display.
func Markdown(c *database.Comparison) (string, error) {
	var m Matrix
	if err := json.Unmarshal(c.Data, &m); err != nil {
		return "", fmt.Errorf("decoding comparison %d: %w", c.ID, err)
	}
	var ins Insights
	if len(c.Insights) > 0 {
		if err := json.Unmarshal(c.Insights, &ins); err != nil {
			return "", fmt.Errorf("decoding comparison %d insights: %w", c.ID, err)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Competitor comparison (%s)\n\n", c.CreatedAt.Format("2006-01-02 15:04"))
	if ins.Summary != "" {
		b.WriteString(ins.Summary + "\n\n")
	}

	names := make([]string, 0, len(m.Activity))
	for name := range m.Activity {
		names = append(names, name)
	}
	sort.Strings(names)

	b.WriteString("| Competitor | Updates | Innovation | Pricing | Campaigns | Sentiment |\n")
	b.WriteString("|---|---|---|---|---|---|\n")
	for _, name := range names {
		fmt.Fprintf(&b, "| %s | %d | %d | %d | %d | %.2f |\n", name,
			m.Activity[name].TotalUpdates,
			m.Features[name].InnovationScore,
			m.Pricing[name].PricingAggressiveness,
			m.Campaigns[name].CampaignStrength,
			m.Sentiment[name].AverageSentiment)
	}
	b.WriteString("\n")

	r := ins.Rankings
	if r.Overall.Leader != "" {
		b.WriteString("## Leaders\n\n")
		for _, l := range []struct {
			label string
			r     Ranking
		}{{"Innovation", r.Innovation}, {"Pricing", r.Pricing}, {"Marketing", r.Marketing}, {"Overall", r.Overall}} {
			if l.r.Leader == "" {
				continue
			}
			fmt.Fprintf(&b, "- **%s**: %s", l.label, l.r.Leader)
			if l.r.Reason != "" {
				fmt.Fprintf(&b, " (%s)", l.r.Reason)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	writeList(&b, "Key findings", ins.KeyFindings)
	writeList(&b, "Recommendations", ins.Recommendations)
	return b.String(), nil
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
