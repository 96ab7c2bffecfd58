// Package alert turns classified updates into persisted alerts and sends
// email notifications for the ones routed to email.
package alert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/TobiSchelling/RivalWatch/internal/database"
	"github.com/TobiSchelling/RivalWatch/internal/logging"
	"github.com/TobiSchelling/RivalWatch/internal/notify"
)

// Thresholds in percent.
const (
	priceDropThreshold     = -10.0
	priceDropHighThreshold = 20.0
	priceIncreaseThreshold = 15.0
	highImpactThreshold    = 8.0
	negativeSentiment      = -0.5

	spikeMultiplier = 3.0
	spikeMinimum    = 5
	hoursPerWeek    = 7 * 24
)

// Engine evaluates alert rules.
type Engine struct {
	db     *database.DB
	sender notify.Sender
	now    func() time.Time
	logger *slog.Logger
}

// New creates an Engine. sender may be nil, in which case email alerts are
// stored but never delivered.
func New(db *database.DB, sender notify.Sender, logger *slog.Logger) *Engine {
	return &Engine{
		db:     db,
		sender: sender,
		now:    time.Now,
		logger: logging.Or(logger),
	}
}

// ProcessUpdate evaluates every per-update rule against u and stores the
// alerts that fire. Rules are independent, so one update may yield several
// alerts. The returned error joins any storage failures; alerts that were
// stored are returned regardless.
func (e *Engine) ProcessUpdate(ctx context.Context, u *database.Update) ([]database.Alert, error) {
	var candidates []database.Alert

	if u.Category == database.CategoryPricing && u.Entities.Price != "" {
		a, err := e.checkPriceChange(u)
		if err != nil {
			e.logger.Error("price change check failed", "update_id", u.ID, "error", err)
		} else if a != nil {
			candidates = append(candidates, *a)
		}
	}

	if u.Category == database.CategoryProductLaunch {
		candidates = append(candidates, e.updateAlert(u, database.RuleNewProduct, database.SeverityHigh,
			"New Product Launch Detected", u.Title, database.ChannelEmail, database.ChannelInApp))
	}

	if u.Category == database.CategoryCampaign {
		candidates = append(candidates, e.updateAlert(u, database.RuleCampaignDetected, database.SeverityMedium,
			"New Marketing Campaign Detected", u.Title, database.ChannelInApp))
	}

	if u.Category == database.CategoryNegativeNews || u.SentimentScore < negativeSentiment {
		candidates = append(candidates, e.updateAlert(u, database.RuleNegativeNews, database.SeverityHigh,
			"Negative News Alert", u.Title, database.ChannelEmail, database.ChannelInApp))
	}

	if u.ImpactScore >= highImpactThreshold {
		candidates = append(candidates, e.updateAlert(u, database.RuleHighImpact, database.SeverityCritical,
			"High Impact Update", u.Category+": "+u.Title, database.ChannelEmail, database.ChannelInApp))
	}

	var created []database.Alert
	var errs []error
	for i := range candidates {
		a := &candidates[i]
		if err := e.saveAndNotify(ctx, a, u.URL); err != nil {
			errs = append(errs, err)
			continue
		}
		created = append(created, *a)
	}
	return created, errors.Join(errs...)
}

func (e *Engine) updateAlert(u *database.Update, rule, severity, title, message string, channels ...string) database.Alert {
	id := u.ID
	return database.Alert{
		UpdateID:     &id,
		CompetitorID: u.CompetitorID,
		Rule:         rule,
		Severity:     severity,
		Title:        title,
		Message:      message,
		Channels:     channels,
	}
}

// checkPriceChange compares u against the latest earlier priced pricing
// update of the same competitor. Returns nil when no rule fires.
func (e *Engine) checkPriceChange(u *database.Update) (*database.Alert, error) {
	prev, err := e.db.GetPreviousPricedUpdate(u.CompetitorID, u.ID, u.DetectedAt)
	if err != nil {
		return nil, err
	}
	if prev == nil {
		return nil, nil
	}

	current, ok := ExtractPrice(u.Entities.Price)
	if !ok {
		return nil, nil
	}
	previous, ok := ExtractPrice(prev.Entities.Price)
	if !ok {
		return nil, nil
	}

	change := PercentChange(previous, current)
	metadata := map[string]any{
		"previousValue":    previous,
		"newValue":         current,
		"changePercentage": change,
	}

	switch {
	case change <= priceDropThreshold:
		severity := database.SeverityMedium
		if math.Abs(change) >= priceDropHighThreshold {
			severity = database.SeverityHigh
		}
		metadata["triggerThreshold"] = priceDropThreshold
		a := e.updateAlert(u, database.RulePriceDrop, severity,
			fmt.Sprintf("Price Drop Alert: %.1f%%", change),
			fmt.Sprintf("Price dropped from %s to %s", prev.Entities.Price, u.Entities.Price),
			database.ChannelEmail, database.ChannelInApp)
		a.Metadata = metadata
		return &a, nil

	case change >= priceIncreaseThreshold:
		metadata["triggerThreshold"] = priceIncreaseThreshold
		a := e.updateAlert(u, database.RulePriceIncrease, database.SeverityMedium,
			fmt.Sprintf("Price Increase Alert: +%.1f%%", change),
			fmt.Sprintf("Price increased from %s to %s", prev.Entities.Price, u.Entities.Price),
			database.ChannelInApp)
		a.Metadata = metadata
		return &a, nil
	}
	return nil, nil
}

// CheckUpdateSpike stores an update_spike alert when the competitor's
// last-hour update count is both above 3x its trailing-week hourly average
// and at least 5. Returns the alert, or nil when activity is normal.
func (e *Engine) CheckUpdateSpike(ctx context.Context, competitorID int64) (*database.Alert, error) {
	now := e.now()
	recent, err := e.db.CountUpdatesSince(competitorID, now.Add(-time.Hour))
	if err != nil {
		return nil, fmt.Errorf("counting recent updates: %w", err)
	}
	week, err := e.db.CountUpdatesSince(competitorID, now.Add(-hoursPerWeek*time.Hour))
	if err != nil {
		return nil, fmt.Errorf("counting weekly updates: %w", err)
	}

	avg := float64(week) / hoursPerWeek
	if !IsSpike(recent, avg) {
		return nil, nil
	}

	name := fmt.Sprintf("Competitor %d", competitorID)
	if c, err := e.db.GetCompetitor(competitorID); err == nil && c != nil {
		name = c.Name
	}

	a := &database.Alert{
		CompetitorID: competitorID,
		Rule:         database.RuleUpdateSpike,
		Severity:     database.SeverityMedium,
		Title:        "Unusual Activity Detected",
		Message:      fmt.Sprintf("%s has %d updates in the last hour (avg: %.1f)", name, recent, avg),
		Channels:     []string{database.ChannelInApp},
		Metadata: map[string]any{
			"recentCount": recent,
			"avgPerHour":  avg,
		},
	}
	if err := e.saveAndNotify(ctx, a, ""); err != nil {
		return nil, err
	}
	return a, nil
}

// saveAndNotify persists a, then emails it when routed to email. Delivery
// failures are logged and leave the alert stored but unnotified.
func (e *Engine) saveAndNotify(ctx context.Context, a *database.Alert, updateURL string) error {
	a.CreatedAt = e.now()
	if _, err := e.db.InsertAlert(a); err != nil {
		return fmt.Errorf("storing %s alert: %w", a.Rule, err)
	}
	e.logger.Info("alert created", "rule", a.Rule, "severity", a.Severity, "title", a.Title)

	if !a.HasChannel(database.ChannelEmail) || e.sender == nil || !e.sender.IsConfigured() {
		return nil
	}

	competitor := fmt.Sprintf("Competitor %d", a.CompetitorID)
	if c, err := e.db.GetCompetitor(a.CompetitorID); err == nil && c != nil {
		competitor = c.Name
	}
	msg := notify.AlertMessage(competitor, a.Title, a.Message, updateURL, a.Severity)
	if err := e.sender.Send(ctx, msg); err != nil {
		e.logger.Error("failed to send alert email", "alert_id", a.ID, "error", err)
		return nil
	}

	at := e.now()
	if err := e.db.MarkAlertNotified(a.ID, at); err != nil {
		e.logger.Error("failed to mark alert notified", "alert_id", a.ID, "error", err)
		return nil
	}
	a.Notified = true
	a.NotifiedAt = &at
	return nil
}

// MarkRead marks an alert read. Returns false if it does not exist.
func (e *Engine) MarkRead(id int64) (bool, error) {
	return e.db.MarkAlertRead(id, e.now())
}

// ListUnread returns unread alerts, newest first.
func (e *Engine) ListUnread(limit int) ([]database.Alert, error) {
	return e.db.ListAlerts(database.AlertFilter{UnreadOnly: true, Limit: uint64(limit)})
}

var priceToken = regexp.MustCompile(`\d[\d,]*(\.\d+)?`)

// ExtractPrice pulls the first number out of a free-text price such as
// "$1,299.00/mo". Zero and unparseable values report false.
func ExtractPrice(text string) (float64, bool) {
	m := priceToken.FindString(text)
	if m == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(m, ",", ""), 64)
	if err != nil || v == 0 {
		return 0, false
	}
	return v, true
}

// PercentChange returns the change from old to new in percent.
func PercentChange(oldPrice, newPrice float64) float64 {
	if oldPrice == 0 {
		return 0
	}
	return (newPrice - oldPrice) / oldPrice * 100
}

// IsSpike reports whether recent hourly activity is anomalous against the
// trailing hourly average.
func IsSpike(recent int, avgPerHour float64) bool {
	return float64(recent) > avgPerHour*spikeMultiplier && recent >= spikeMinimum
}
