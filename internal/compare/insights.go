package compare

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Ranking names the leader of one dimension.
type Ranking struct {
	Leader string `json:"leader"`
	Score  *int   `json:"score,omitempty"`
	Reason string `json:"reason"`
}

// Rankings holds the per-dimension leaders.
type Rankings struct {
	Innovation Ranking `json:"innovation"`
	Pricing    Ranking `json:"pricing"`
	Marketing  Ranking `json:"marketing"`
	Overall    Ranking `json:"overall"`
}

// Insights is the narrative part of a comparison.
type Insights struct {
	Summary         string              `json:"summary"`
	Rankings        Rankings            `json:"rankings"`
	KeyFindings     []string            `json:"keyFindings"`
	Strengths       map[string][]string `json:"strengths"`
	Weaknesses      map[string][]string `json:"weaknesses"`
	Recommendations []string            `json:"recommendations"`
}

func buildPrompt(m *Matrix) string {
	var features, pricing, campaigns, activity []string
	for _, name := range m.Names {
		f, p, c, a := m.Features[name], m.Pricing[name], m.Campaigns[name], m.Activity[name]
		features = append(features, fmt.Sprintf("%s: %d new features, innovation score %d", name, f.TotalFeatures, f.InnovationScore))
		pricing = append(pricing, fmt.Sprintf("%s: %d pricing updates, aggressiveness %d", name, p.TotalPricingUpdates, p.PricingAggressiveness))
		campaigns = append(campaigns, fmt.Sprintf("%s: %d campaigns, strength %d", name, c.TotalCampaigns, c.CampaignStrength))
		activity = append(activity, fmt.Sprintf("%s: %d total updates", name, a.TotalUpdates))
	}

	return fmt.Sprintf(`You are a competitive intelligence analyst. Analyze the following competitor comparison data and generate strategic insights.

Competitors: %s

Feature & Innovation Comparison:
%s

Pricing Strategy Comparison:
%s

Marketing Campaign Comparison:
%s

Overall Activity Comparison:
%s

Generate a comprehensive comparison analysis in the following JSON format:
{
  "summary": "2-3 paragraph executive summary comparing all competitors across features, pricing, and marketing",
  "rankings": {
    "innovation": {"leader": "Competitor name", "score": 0-100, "reason": "Why they lead"},
    "pricing": {"leader": "Competitor name", "score": 0-100, "reason": "Their pricing strategy"},
    "marketing": {"leader": "Competitor name", "score": 0-100, "reason": "Their marketing approach"},
    "overall": {"leader": "Competitor name", "reason": "Why they're winning overall"}
  },
  "keyFindings": [
    "Key finding about competitive positioning 1",
    "Key finding about competitive positioning 2",
    "Key finding about competitive positioning 3",
    "Key finding about market dynamics"
  ],
  "strengths": {"CompetitorName": ["Strength 1", "Strength 2"]},
  "weaknesses": {"CompetitorName": ["Weakness 1", "Weakness 2"]},
  "recommendations": [
    "Strategic recommendation 1",
    "Strategic recommendation 2",
    "Strategic recommendation 3"
  ]
}

Write like a professional competitive analyst presenting to senior leadership. Be specific, insightful, and actionable.`,
		strings.Join(m.Names, ", "),
		strings.Join(features, "\n"),
		strings.Join(pricing, "\n"),
		strings.Join(campaigns, "\n"),
		strings.Join(activity, "\n"))
}

type leader struct {
	name  string
	score int
}

// findLeader returns the first competitor with the strictly highest
// positive score, or "Unknown" when every score is zero.
func findLeader(m *Matrix, scoreOf func(name string) int) leader {
	best := leader{name: "Unknown"}
	for _, name := range m.Names {
		if s := scoreOf(name); s > best.score {
			best = leader{name: name, score: s}
		}
	}
	return best
}

func ranking(l leader, reason string) Ranking {
	score := l.score
	return Ranking{Leader: l.name, Score: &score, Reason: reason}
}

// templateInsights fills the insights shape from scores alone.
func templateInsights(m *Matrix) Insights {
	innovation := findLeader(m, func(n string) int { return m.Features[n].InnovationScore })
	pricing := findLeader(m, func(n string) int { return m.Pricing[n].PricingAggressiveness })
	campaign := findLeader(m, func(n string) int { return m.Campaigns[n].CampaignStrength })
	activity := findLeader(m, func(n string) int { return m.Activity[n].ActivityScore })

	strengths, weaknesses := strengthsAndWeaknesses(m)
	return Insights{
		Summary: fmt.Sprintf("Competitive analysis across %d competitors shows %s leading in innovation (score: %d), "+
			"%s most aggressive in pricing (score: %d), and %s strongest in marketing campaigns (score: %d). "+
			"%s shows the highest overall activity with %d updates.",
			len(m.Names), innovation.name, innovation.score, pricing.name, pricing.score,
			campaign.name, campaign.score, activity.name, activity.score),
		Rankings: Rankings{
			Innovation: ranking(innovation, "Most new features and product updates"),
			Pricing:    ranking(pricing, "Most frequent pricing changes"),
			Marketing:  ranking(campaign, "Strongest campaign presence"),
			Overall:    Ranking{Leader: activity.name, Reason: "Highest overall market activity"},
		},
		KeyFindings: []string{
			innovation.name + " is driving product innovation",
			pricing.name + " employing aggressive pricing strategy",
			campaign.name + " leading marketing efforts",
			"Market shows competitive activity across all fronts",
		},
		Strengths:  strengths,
		Weaknesses: weaknesses,
		Recommendations: []string{
			"Monitor innovation leaders for market trends",
			"Analyze pricing strategies for competitive response",
			"Benchmark marketing campaigns against leaders",
		},
	}
}

// strengthsAndWeaknesses lists each competitor's two highest and two
// lowest scoring dimensions.
func strengthsAndWeaknesses(m *Matrix) (map[string][]string, map[string][]string) {
	strengths := make(map[string][]string, len(m.Names))
	weaknesses := make(map[string][]string, len(m.Names))

	for _, name := range m.Names {
		dims := []leader{
			{"Innovation", m.Features[name].InnovationScore},
			{"Pricing", m.Pricing[name].PricingAggressiveness},
			{"Campaigns", m.Campaigns[name].CampaignStrength},
		}
		sort.SliceStable(dims, func(i, j int) bool { return dims[i].score > dims[j].score })

		label := func(d leader) string { return fmt.Sprintf("%s (score: %d)", d.name, d.score) }
		strengths[name] = []string{label(dims[0]), label(dims[1])}
		weaknesses[name] = []string{label(dims[1]), label(dims[2])}
	}
	return strengths, weaknesses
}

func decodeInsights(parsed map[string]any) (Insights, error) {
	var ins Insights
	if parsed == nil {
		return ins, fmt.Errorf("no JSON object in response")
	}
	if s, _ := parsed["summary"].(string); strings.TrimSpace(s) == "" {
		return ins, fmt.Errorf("response has no summary")
	}
	data, err := json.Marshal(parsed)
	if err != nil {
		return ins, err
	}
	if err := json.Unmarshal(data, &ins); err != nil {
		return ins, fmt.Errorf("response does not fit the insights shape: %w", err)
	}
	return ins, nil
}
