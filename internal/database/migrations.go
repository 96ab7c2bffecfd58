package database

import "database/sql"

// Migration represents a single schema migration step.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

// migrations is the ordered list of all schema migrations.
// Append new migrations to the end with incrementing Version numbers.
var migrations = []Migration{
	{
		Version:     1,
		Description: "initial schema",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS competitors (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT UNIQUE NOT NULL,
    base_url TEXT NOT NULL,
    industry TEXT NOT NULL DEFAULT '',
    notes TEXT NOT NULL DEFAULT '',
    active INTEGER NOT NULL DEFAULT 1,
    last_scraped_at TEXT,
    metadata TEXT,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS scrape_targets (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    competitor_id INTEGER NOT NULL REFERENCES competitors(id) ON DELETE CASCADE,
    position INTEGER NOT NULL DEFAULT 0,
    name TEXT NOT NULL,
    url TEXT NOT NULL,
    type TEXT NOT NULL CHECK(type IN ('pricing', 'news', 'press', 'blog', 'product')),
    selector TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS updates (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    competitor_id INTEGER NOT NULL REFERENCES competitors(id) ON DELETE CASCADE,
    title TEXT NOT NULL,
    summary TEXT NOT NULL DEFAULT '',
    content TEXT NOT NULL DEFAULT '',
    url TEXT UNIQUE NOT NULL,
    source_type TEXT NOT NULL,
    category TEXT NOT NULL DEFAULT 'other',
    sentiment TEXT NOT NULL DEFAULT 'neutral',
    sentiment_score REAL NOT NULL DEFAULT 0,
    impact_score REAL NOT NULL DEFAULT 5,
    confidence REAL NOT NULL DEFAULT 0.5,
    entity_product TEXT NOT NULL DEFAULT '',
    entity_price TEXT NOT NULL DEFAULT '',
    entity_discount TEXT NOT NULL DEFAULT '',
    entity_date TEXT NOT NULL DEFAULT '',
    keywords TEXT,
    detected_at TEXT NOT NULL,
    processed INTEGER NOT NULL DEFAULT 0,
    metadata TEXT,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS alerts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    update_id INTEGER REFERENCES updates(id) ON DELETE SET NULL,
    competitor_id INTEGER NOT NULL REFERENCES competitors(id) ON DELETE CASCADE,
    rule TEXT NOT NULL,
    severity TEXT NOT NULL CHECK(severity IN ('low', 'medium', 'high', 'critical')),
    title TEXT NOT NULL,
    message TEXT NOT NULL,
    is_read INTEGER NOT NULL DEFAULT 0,
    read_at TEXT,
    notified INTEGER NOT NULL DEFAULT 0,
    notified_at TEXT,
    channels TEXT,
    metadata TEXT,
    created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS digests (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    type TEXT NOT NULL CHECK(type IN ('daily', 'weekly')),
    period_start TEXT NOT NULL,
    period_end TEXT NOT NULL,
    summary TEXT NOT NULL,
    metadata TEXT,
    update_ids TEXT,
    email_sent INTEGER NOT NULL DEFAULT 0,
    email_sent_at TEXT,
    created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS comparisons (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    competitor_ids TEXT NOT NULL,
    comparison_data TEXT NOT NULL,
    ai_insights TEXT,
    metadata TEXT,
    created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_targets_competitor ON scrape_targets(competitor_id, position);
CREATE INDEX IF NOT EXISTS idx_updates_competitor_detected ON updates(competitor_id, detected_at);
CREATE INDEX IF NOT EXISTS idx_updates_category_detected ON updates(category, detected_at);
CREATE INDEX IF NOT EXISTS idx_updates_created ON updates(created_at);
CREATE INDEX IF NOT EXISTS idx_updates_processed ON updates(processed, created_at);
CREATE INDEX IF NOT EXISTS idx_alerts_competitor ON alerts(competitor_id, created_at);
CREATE INDEX IF NOT EXISTS idx_alerts_read ON alerts(is_read, created_at);
CREATE INDEX IF NOT EXISTS idx_digests_type ON digests(type, created_at);
`)
			return err
		},
	},
}

// latestVersion returns the highest migration version number.
func latestVersion() int {
	if len(migrations) == 0 {
		return 0
	}
	return migrations[len(migrations)-1].Version
}
