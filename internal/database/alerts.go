package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
)

var alertColumns = []string{
	"id", "update_id", "competitor_id", "rule", "severity", "title", "message",
	"is_read", "read_at", "notified", "notified_at", "channels", "metadata", "created_at",
}

// AlertFilter narrows ListAlerts.
type AlertFilter struct {
	CompetitorID int64
	Rule         string
	Severity     string
	UnreadOnly   bool
	Limit        uint64
}

// InsertAlert stores an alert and sets its ID.
func (db *DB) InsertAlert(a *Alert) (int64, error) {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	channels, err := marshalJSON(a.Channels)
	if err != nil {
		return 0, err
	}
	meta, err := marshalJSON(a.Metadata)
	if err != nil {
		return 0, err
	}

	result, err := db.conn.Exec(
		`INSERT INTO alerts (update_id, competitor_id, rule, severity, title, message,
			is_read, read_at, notified, notified_at, channels, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.UpdateID, a.CompetitorID, a.Rule, a.Severity, a.Title, a.Message,
		boolToInt(a.Read), formatNullTime(a.ReadAt), boolToInt(a.Notified), formatNullTime(a.NotifiedAt),
		channels, meta, formatTime(a.CreatedAt),
	)
	if err != nil {
		return 0, fmt.Errorf("inserting %s alert: %w", a.Rule, err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, err
	}
	a.ID = id
	return id, nil
}

// GetAlert returns a single alert, or nil if not found.
func (db *DB) GetAlert(id int64) (*Alert, error) {
	query, args, err := builder().Select(alertColumns...).From("alerts").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, err
	}
	a, err := scanAlert(db.conn.QueryRow(query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// ListAlerts returns alerts matching f, newest first.
func (db *DB) ListAlerts(f AlertFilter) ([]Alert, error) {
	q := builder().Select(alertColumns...).From("alerts")
	if f.CompetitorID != 0 {
		q = q.Where(sq.Eq{"competitor_id": f.CompetitorID})
	}
	if f.Rule != "" {
		q = q.Where(sq.Eq{"rule": f.Rule})
	}
	if f.Severity != "" {
		q = q.Where(sq.Eq{"severity": f.Severity})
	}
	if f.UnreadOnly {
		q = q.Where(sq.Eq{"is_read": 0})
	}
	q = q.OrderBy("created_at DESC", "id DESC")
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, *a)
	}
	return alerts, rows.Err()
}

// MarkAlertNotified records a successful notification delivery.
func (db *DB) MarkAlertNotified(id int64, at time.Time) error {
	_, err := db.conn.Exec(
		"UPDATE alerts SET notified = 1, notified_at = ? WHERE id = ?", formatTime(at), id,
	)
	return err
}

// MarkAlertRead flips an alert to read. Already-read alerts keep their
// original read timestamp. Returns false if no such alert exists.
func (db *DB) MarkAlertRead(id int64, at time.Time) (bool, error) {
	result, err := db.conn.Exec(
		"UPDATE alerts SET is_read = 1, read_at = COALESCE(read_at, ?) WHERE id = ?", formatTime(at), id,
	)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	return n > 0, err
}

// MarkAllAlertsRead marks every unread alert as read.
func (db *DB) MarkAllAlertsRead(at time.Time) (int64, error) {
	result, err := db.conn.Exec(
		"UPDATE alerts SET is_read = 1, read_at = ? WHERE is_read = 0", formatTime(at),
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func scanAlert(row rowScanner) (*Alert, error) {
	var a Alert
	var updateID sql.NullInt64
	var read, notified int
	var readAt, notifiedAt, channels, meta sql.NullString
	var created string
	if err := row.Scan(&a.ID, &updateID, &a.CompetitorID, &a.Rule, &a.Severity, &a.Title, &a.Message,
		&read, &readAt, &notified, &notifiedAt, &channels, &meta, &created); err != nil {
		return nil, err
	}
	if updateID.Valid {
		id := updateID.Int64
		a.UpdateID = &id
	}
	a.Read = read != 0
	a.ReadAt = parseNullTime(readAt)
	a.Notified = notified != 0
	a.NotifiedAt = parseNullTime(notifiedAt)
	a.CreatedAt = parseTime(created)
	if channels.Valid && channels.String != "" {
		json.Unmarshal([]byte(channels.String), &a.Channels)
	}
	if meta.Valid && meta.String != "" {
		json.Unmarshal([]byte(meta.String), &a.Metadata)
	}
	return &a, nil
}
