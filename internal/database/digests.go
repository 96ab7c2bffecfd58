package database

import (
	"database/sql"
	"encoding/json"
	"time"

	sq "github.com/Masterminds/squirrel"
)

const digestColumns = `id, type, period_start, period_end, summary, metadata, update_ids, email_sent, email_sent_at, created_at`

// InsertDigest stores a digest and sets its ID.
func (db *DB) InsertDigest(d *Digest) (int64, error) {
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}
	ids, err := marshalJSON(d.UpdateIDs)
	if err != nil {
		return 0, err
	}

	result, err := db.conn.Exec(
		`INSERT INTO digests (type, period_start, period_end, summary, metadata, update_ids, email_sent, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		d.Type, formatTime(d.PeriodStart), formatTime(d.PeriodEnd),
		string(d.Summary), rawOrNull(d.Metadata), ids, boolToInt(d.EmailSent), formatTime(d.CreatedAt),
	)
	if err != nil {
		return 0, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, err
	}
	d.ID = id
	return id, nil
}

// GetDigest returns a digest by ID, or nil if not found.
func (db *DB) GetDigest(id int64) (*Digest, error) {
	d, err := scanDigest(db.conn.QueryRow("SELECT "+digestColumns+" FROM digests WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return d, nil
}

// GetLatestDigest returns the most recent digest of a type, or nil.
func (db *DB) GetLatestDigest(digestType string) (*Digest, error) {
	d, err := scanDigest(db.conn.QueryRow(
		"SELECT "+digestColumns+" FROM digests WHERE type = ? ORDER BY created_at DESC, id DESC LIMIT 1",
		digestType,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return d, nil
}

// ListDigests returns digest history, newest first. An empty type lists
// every type.
func (db *DB) ListDigests(digestType string, limit int) ([]Digest, error) {
	q := builder().Select(digestColumns).From("digests")
	if digestType != "" {
		q = q.Where(sq.Eq{"type": digestType})
	}
	q = q.OrderBy("created_at DESC", "id DESC")
	if limit > 0 {
		q = q.Limit(uint64(limit))
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

	var digests []Digest
	for rows.Next() {
		d, err := scanDigest(rows)
		if err != nil {
			return nil, err
		}
		digests = append(digests, *d)
	}
	return digests, rows.Err()
}

// MarkDigestEmailed records that the digest email went out.
func (db *DB) MarkDigestEmailed(id int64, at time.Time) error {
	_, err := db.conn.Exec(
		"UPDATE digests SET email_sent = 1, email_sent_at = ? WHERE id = ?", formatTime(at), id,
	)
	return err
}

func scanDigest(row rowScanner) (*Digest, error) {
	var d Digest
	var start, end, summary, created string
	var meta, ids, sentAt sql.NullString
	var sent int
	if err := row.Scan(&d.ID, &d.Type, &start, &end, &summary, &meta, &ids, &sent, &sentAt, &created); err != nil {
		return nil, err
	}
	d.PeriodStart = parseTime(start)
	d.PeriodEnd = parseTime(end)
	d.Summary = json.RawMessage(summary)
	d.Metadata = nullToRaw(meta)
	d.EmailSent = sent != 0
	d.EmailSentAt = parseNullTime(sentAt)
	d.CreatedAt = parseTime(created)
	if ids.Valid && ids.String != "" {
		json.Unmarshal([]byte(ids.String), &d.UpdateIDs)
	}
	return &d, nil
}
