package database

import (
	"database/sql"
	"encoding/json"
	"time"
)

const comparisonColumns = `id, competitor_ids, comparison_data, ai_insights, metadata, created_at`

// InsertComparison stores a comparison matrix and sets its ID.
func (db *DB) InsertComparison(c *Comparison) (int64, error) {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	ids, err := json.Marshal(c.CompetitorIDs)
	if err != nil {
		return 0, err
	}

	result, err := db.conn.Exec(
		`INSERT INTO comparisons (competitor_ids, comparison_data, ai_insights, metadata, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		string(ids), string(c.Data), rawOrNull(c.Insights), rawOrNull(c.Metadata), formatTime(c.CreatedAt),
	)
	if err != nil {
		return 0, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, err
	}
	c.ID = id
	return id, nil
}

// GetLatestComparison returns the newest comparison matrix, or nil.
func (db *DB) GetLatestComparison() (*Comparison, error) {
	c, err := scanComparison(db.conn.QueryRow(
		"SELECT " + comparisonColumns + " FROM comparisons ORDER BY created_at DESC, id DESC LIMIT 1",
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// ListComparisons returns comparison history, newest first.
func (db *DB) ListComparisons(limit int) ([]Comparison, error) {
	rows, err := db.conn.Query(
		"SELECT "+comparisonColumns+" FROM comparisons ORDER BY created_at DESC, id DESC LIMIT ?", limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Comparison
	for rows.Next() {
		c, err := scanComparison(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func scanComparison(row rowScanner) (*Comparison, error) {
	var c Comparison
	var ids, data, created string
	var insights, meta sql.NullString
	if err := row.Scan(&c.ID, &ids, &data, &insights, &meta, &created); err != nil {
		return nil, err
	}
	json.Unmarshal([]byte(ids), &c.CompetitorIDs)
	c.Data = json.RawMessage(data)
	c.Insights = nullToRaw(insights)
	c.Metadata = nullToRaw(meta)
	c.CreatedAt = parseTime(created)
	return &c, nil
}
