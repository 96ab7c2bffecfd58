package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
)

var updateColumns = []string{
	"id", "competitor_id", "title", "summary", "content", "url", "source_type",
	"category", "sentiment", "sentiment_score", "impact_score", "confidence",
	"entity_product", "entity_price", "entity_discount", "entity_date", "keywords",
	"detected_at", "processed", "metadata", "created_at", "updated_at",
}

// UpdateFilter narrows ListUpdates. Zero values mean "no constraint".
type UpdateFilter struct {
	CompetitorIDs []int64
	Category      string
	CreatedFrom   time.Time // inclusive
	CreatedTo     time.Time // inclusive
	DetectedFrom  time.Time // inclusive
	Processed     *bool
	Limit         uint64
}

// InsertUpdate stores a new update. Returns the ID on success, 0 if an
// update with the same URL already exists.
func (db *DB) InsertUpdate(u *Update) (int64, error) {
	now := time.Now()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	if u.DetectedAt.IsZero() {
		u.DetectedAt = u.CreatedAt
	}
	u.UpdatedAt = u.CreatedAt

	keywords, err := marshalJSON(u.Entities.Keywords)
	if err != nil {
		return 0, err
	}
	meta, err := json.Marshal(u.Metadata)
	if err != nil {
		return 0, err
	}

	result, err := db.conn.Exec(
		`INSERT INTO updates (competitor_id, title, summary, content, url, source_type,
			category, sentiment, sentiment_score, impact_score, confidence,
			entity_product, entity_price, entity_discount, entity_date, keywords,
			detected_at, processed, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.CompetitorID, u.Title, u.Summary, u.Content, u.URL, u.SourceType,
		u.Category, u.Sentiment, u.SentimentScore, u.ImpactScore, u.Confidence,
		u.Entities.Product, u.Entities.Price, u.Entities.Discount, u.Entities.Date, keywords,
		formatTime(u.DetectedAt), boolToInt(u.Processed), string(meta),
		formatTime(u.CreatedAt), formatTime(u.UpdatedAt),
	)
	if isUniqueViolation(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("inserting update %s: %w", u.URL, err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, err
	}
	u.ID = id
	return id, nil
}

// UpdateExists reports whether an update with this URL is already stored.
func (db *DB) UpdateExists(url string) (bool, error) {
	var n int
	if err := db.conn.QueryRow("SELECT COUNT(*) FROM updates WHERE url = ?", url).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// GetUpdate returns a single update by ID, or nil if not found.
func (db *DB) GetUpdate(id int64) (*Update, error) {
	query, args, err := builder().Select(updateColumns...).From("updates").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, err
	}
	u, err := scanUpdate(db.conn.QueryRow(query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

// ListUpdates returns updates matching f, newest detection first.
func (db *DB) ListUpdates(f UpdateFilter) ([]Update, error) {
	q := builder().Select(updateColumns...).From("updates")
	if len(f.CompetitorIDs) > 0 {
		q = q.Where(sq.Eq{"competitor_id": f.CompetitorIDs})
	}
	if f.Category != "" {
		q = q.Where(sq.Eq{"category": f.Category})
	}
	if !f.CreatedFrom.IsZero() {
		q = q.Where(sq.GtOrEq{"created_at": formatTime(f.CreatedFrom)})
	}
	if !f.CreatedTo.IsZero() {
		q = q.Where(sq.LtOrEq{"created_at": formatTime(f.CreatedTo)})
	}
	if !f.DetectedFrom.IsZero() {
		q = q.Where(sq.GtOrEq{"detected_at": formatTime(f.DetectedFrom)})
	}
	if f.Processed != nil {
		q = q.Where(sq.Eq{"processed": boolToInt(*f.Processed)})
	}
	q = q.OrderBy("detected_at DESC", "id DESC")
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
	return scanUpdates(rows)
}

// CountUpdatesSince counts a competitor's updates detected at or after since.
func (db *DB) CountUpdatesSince(competitorID int64, since time.Time) (int, error) {
	var n int
	err := db.conn.QueryRow(
		"SELECT COUNT(*) FROM updates WHERE competitor_id = ? AND detected_at >= ?",
		competitorID, formatTime(since),
	).Scan(&n)
	return n, err
}

// GetPreviousPricedUpdate returns the most recent pricing update for the
// competitor that carries a price, was detected strictly before `before`, and
// is not excludeID. Returns nil when there is none.
func (db *DB) GetPreviousPricedUpdate(competitorID, excludeID int64, before time.Time) (*Update, error) {
	query, args, err := builder().Select(updateColumns...).From("updates").
		Where(sq.Eq{"competitor_id": competitorID, "category": CategoryPricing}).
		Where(sq.NotEq{"id": excludeID, "entity_price": ""}).
		Where(sq.Lt{"detected_at": formatTime(before)}).
		OrderBy("detected_at DESC", "id DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, err
	}
	u, err := scanUpdate(db.conn.QueryRow(query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

// SaveClassification writes the classification fields of u and marks it processed.
func (db *DB) SaveClassification(u *Update) error {
	keywords, err := marshalJSON(u.Entities.Keywords)
	if err != nil {
		return err
	}
	query, args, err := builder().Update("updates").SetMap(map[string]any{
		"category":        u.Category,
		"sentiment":       u.Sentiment,
		"sentiment_score": u.SentimentScore,
		"impact_score":    u.ImpactScore,
		"confidence":      u.Confidence,
		"entity_product":  u.Entities.Product,
		"entity_price":    u.Entities.Price,
		"entity_discount": u.Entities.Discount,
		"entity_date":     u.Entities.Date,
		"keywords":        keywords,
		"processed":       1,
		"updated_at":      formatTime(time.Now()),
	}).Where(sq.Eq{"id": u.ID}).ToSql()
	if err != nil {
		return err
	}
	if _, err := db.conn.Exec(query, args...); err != nil {
		return fmt.Errorf("saving classification for update %d: %w", u.ID, err)
	}
	u.Processed = true
	return nil
}

// MarkStaleProcessed flags unprocessed updates created before cutoff as
// processed. Nothing is deleted. Returns the number of rows affected.
func (db *DB) MarkStaleProcessed(cutoff time.Time) (int64, error) {
	result, err := db.conn.Exec(
		"UPDATE updates SET processed = 1, updated_at = ? WHERE processed = 0 AND created_at < ?",
		formatTime(time.Now()), formatTime(cutoff),
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// DeleteUpdate removes a single update.
func (db *DB) DeleteUpdate(id int64) error {
	_, err := db.conn.Exec("DELETE FROM updates WHERE id = ?", id)
	return err
}

func scanUpdates(rows *sql.Rows) ([]Update, error) {
	var updates []Update
	for rows.Next() {
		u, err := scanUpdate(rows)
		if err != nil {
			return nil, err
		}
		updates = append(updates, *u)
	}
	return updates, rows.Err()
}

func scanUpdate(row rowScanner) (*Update, error) {
	var u Update
	var processed int
	var keywords, meta sql.NullString
	var detected, created, updated string
	if err := row.Scan(&u.ID, &u.CompetitorID, &u.Title, &u.Summary, &u.Content, &u.URL, &u.SourceType,
		&u.Category, &u.Sentiment, &u.SentimentScore, &u.ImpactScore, &u.Confidence,
		&u.Entities.Product, &u.Entities.Price, &u.Entities.Discount, &u.Entities.Date, &keywords,
		&detected, &processed, &meta, &created, &updated); err != nil {
		return nil, err
	}
	u.Processed = processed != 0
	u.DetectedAt = parseTime(detected)
	u.CreatedAt = parseTime(created)
	u.UpdatedAt = parseTime(updated)
	if keywords.Valid && keywords.String != "" {
		json.Unmarshal([]byte(keywords.String), &u.Entities.Keywords)
	}
	if meta.Valid && meta.String != "" {
		json.Unmarshal([]byte(meta.String), &u.Metadata)
	}
	return &u, nil
}
