package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

const competitorColumns = `id, name, base_url, industry, notes, active, last_scraped_at, metadata, created_at, updated_at`

// InsertCompetitor creates a competitor together with its scrape targets.
func (db *DB) InsertCompetitor(c *Competitor) (int64, error) {
	meta, err := marshalJSON(c.Metadata)
	if err != nil {
		return 0, err
	}
	now := formatTime(time.Now())

	tx, err := db.conn.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	result, err := tx.Exec(
		`INSERT INTO competitors (name, base_url, industry, notes, active, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.Name, c.BaseURL, c.Industry, c.Notes, boolToInt(c.Active), meta, now, now,
	)
	if err != nil {
		return 0, fmt.Errorf("inserting competitor %q: %w", c.Name, err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, err
	}

	targetIDs := make([]int64, len(c.Targets))
	for i, t := range c.Targets {
		res, err := tx.Exec(
			`INSERT INTO scrape_targets (competitor_id, position, name, url, type, selector)
			VALUES (?, ?, ?, ?, ?, ?)`,
			id, i, t.Name, t.URL, t.Type, t.Selector,
		)
		if err != nil {
			return 0, fmt.Errorf("inserting target %q: %w", t.Name, err)
		}
		if targetIDs[i], err = res.LastInsertId(); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	c.ID = id
	for i := range c.Targets {
		c.Targets[i].ID = targetIDs[i]
		c.Targets[i].CompetitorID = id
	}
	return id, nil
}

// GetCompetitor returns a competitor with its targets, or nil if not found.
func (db *DB) GetCompetitor(id int64) (*Competitor, error) {
	row := db.conn.QueryRow("SELECT "+competitorColumns+" FROM competitors WHERE id = ?", id)
	c, err := scanCompetitor(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if c.Targets, err = db.GetScrapeTargets(c.ID); err != nil {
		return nil, err
	}
	return c, nil
}

// GetCompetitorByName returns a competitor by its unique name, or nil.
func (db *DB) GetCompetitorByName(name string) (*Competitor, error) {
	row := db.conn.QueryRow("SELECT "+competitorColumns+" FROM competitors WHERE name = ?", name)
	c, err := scanCompetitor(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if c.Targets, err = db.GetScrapeTargets(c.ID); err != nil {
		return nil, err
	}
	return c, nil
}

// ListCompetitors returns competitors ordered by name, optionally only active ones.
func (db *DB) ListCompetitors(activeOnly bool) ([]Competitor, error) {
	query := "SELECT " + competitorColumns + " FROM competitors"
	if activeOnly {
		query += " WHERE active = 1"
	}
	query += " ORDER BY name"

	rows, err := db.conn.Query(query)
	if err != nil {
		return nil, err
	}
	var competitors []Competitor
	for rows.Next() {
		c, err := scanCompetitor(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		competitors = append(competitors, *c)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range competitors {
		targets, err := db.GetScrapeTargets(competitors[i].ID)
		if err != nil {
			return nil, err
		}
		competitors[i].Targets = targets
	}
	return competitors, nil
}

// SetCompetitorActive enables or disables scraping for a competitor.
func (db *DB) SetCompetitorActive(id int64, active bool) error {
	_, err := db.conn.Exec(
		"UPDATE competitors SET active = ?, updated_at = ? WHERE id = ?",
		boolToInt(active), formatTime(time.Now()), id,
	)
	return err
}

// TouchLastScraped records when a competitor was last scraped.
func (db *DB) TouchLastScraped(id int64, at time.Time) error {
	_, err := db.conn.Exec(
		"UPDATE competitors SET last_scraped_at = ?, updated_at = ? WHERE id = ?",
		formatTime(at), formatTime(time.Now()), id,
	)
	return err
}

// DeleteCompetitor removes a competitor. Targets, updates and alerts cascade.
func (db *DB) DeleteCompetitor(id int64) error {
	_, err := db.conn.Exec("DELETE FROM competitors WHERE id = ?", id)
	return err
}

// AddScrapeTarget appends a target to a competitor's target list.
func (db *DB) AddScrapeTarget(competitorID int64, t ScrapeTarget) (int64, error) {
	result, err := db.conn.Exec(
		`INSERT INTO scrape_targets (competitor_id, position, name, url, type, selector)
		VALUES (?, (SELECT COALESCE(MAX(position), -1) + 1 FROM scrape_targets WHERE competitor_id = ?), ?, ?, ?, ?)`,
		competitorID, competitorID, t.Name, t.URL, t.Type, t.Selector,
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// RemoveScrapeTarget deletes a single target.
func (db *DB) RemoveScrapeTarget(id int64) error {
	_, err := db.conn.Exec("DELETE FROM scrape_targets WHERE id = ?", id)
	return err
}

// GetScrapeTargets returns a competitor's targets in configured order.
func (db *DB) GetScrapeTargets(competitorID int64) ([]ScrapeTarget, error) {
	rows, err := db.conn.Query(
		`SELECT id, competitor_id, name, url, type, selector
		FROM scrape_targets WHERE competitor_id = ? ORDER BY position, id`, competitorID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var targets []ScrapeTarget
	for rows.Next() {
		var t ScrapeTarget
		if err := rows.Scan(&t.ID, &t.CompetitorID, &t.Name, &t.URL, &t.Type, &t.Selector); err != nil {
			return nil, err
		}
		targets = append(targets, t)
	}
	return targets, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCompetitor(row rowScanner) (*Competitor, error) {
	var c Competitor
	var active int
	var lastScraped, meta sql.NullString
	var created, updated string
	if err := row.Scan(&c.ID, &c.Name, &c.BaseURL, &c.Industry, &c.Notes, &active,
		&lastScraped, &meta, &created, &updated); err != nil {
		return nil, err
	}
	c.Active = active != 0
	c.LastScrapedAt = parseNullTime(lastScraped)
	c.CreatedAt = parseTime(created)
	c.UpdatedAt = parseTime(updated)
	if meta.Valid && meta.String != "" {
		json.Unmarshal([]byte(meta.String), &c.Metadata)
	}
	return &c, nil
}
