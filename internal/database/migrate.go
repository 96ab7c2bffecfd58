package database

import (
	"database/sql"
	"fmt"
	"log/slog"
)

// schemaVersion returns the applied migration level stored in user_version.
func schemaVersion(conn *sql.DB) (int, error) {
	var v int
	if err := conn.QueryRow("PRAGMA user_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}
	return v, nil
}

// SchemaVersion returns the applied migration level.
func (db *DB) SchemaVersion() (int, error) {
	return schemaVersion(db.conn)
}

// pending returns the migrations above version, in order.
func pending(version int) []Migration {
	var out []Migration
	for _, m := range migrations {
		if m.Version > version {
			out = append(out, m)
		}
	}
	return out
}

// migrate applies every pending migration and returns how many ran.
func migrate(conn *sql.DB, logger *slog.Logger) (int, error) {
	current, err := schemaVersion(conn)
	if err != nil {
		return 0, err
	}

	applied := 0
	for _, m := range pending(current) {
		if err := apply(conn, m); err != nil {
			return applied, err
		}
		logger.Info("schema migrated", "version", m.Version, "description", m.Description)
		applied++
	}
	return applied, nil
}

func apply(conn *sql.DB, m Migration) error {
	tx, err := conn.Begin()
	if err != nil {
		return fmt.Errorf("begin migration %d: %w", m.Version, err)
	}
	defer tx.Rollback()

	if err := m.Up(tx); err != nil {
		return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %d: %w", m.Version, err)
	}

	// modernc/sqlite will not set user_version inside the transaction. The
	// DDL is idempotent, so a crash before this line re-runs the migration.
	if _, err := conn.Exec(fmt.Sprintf("PRAGMA user_version = %d", m.Version)); err != nil {
		return fmt.Errorf("recording schema version %d: %w", m.Version, err)
	}
	return nil
}
