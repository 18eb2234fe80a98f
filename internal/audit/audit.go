// Package audit is the changelog sink: an append-only journal of successful
// reconciliation operations.
package audit

import (
	"context"
	"database/sql"
	"time"

	"github.com/pergus/netbox-zabbix/internal/store"
)

// Entry is a single recorded reconciliation event.
type Entry struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Object    string    `json:"object"`
	Action    string    `json:"action"`
	User      string    `json:"user"`
	RequestID string    `json:"request_id"`
}

// Journal persists audit entries in the configuration store's database.
type Journal struct {
	db *sql.DB
}

// NewJournal creates a Journal backed by the given database. The caller runs
// Migrations via the store before passing store.DB() here.
func NewJournal(db *sql.DB) *Journal {
	return &Journal{db: db}
}

// Migrations returns the journal schema.
func Migrations() []store.Migration {
	return []store.Migration{
		{
			Version:     1,
			Description: "create sync journal table",
			Up: func(tx *sql.Tx) error {
				stmts := []string{
					`CREATE TABLE IF NOT EXISTS sync_journal (
						id         INTEGER PRIMARY KEY AUTOINCREMENT,
						timestamp  TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now')),
						object     TEXT NOT NULL,
						action     TEXT NOT NULL,
						user       TEXT NOT NULL DEFAULT 'system',
						request_id TEXT NOT NULL DEFAULT ''
					)`,
					`CREATE INDEX IF NOT EXISTS idx_sync_journal_object ON sync_journal(object)`,
					`CREATE INDEX IF NOT EXISTS idx_sync_journal_timestamp ON sync_journal(timestamp)`,
				}
				for _, stmt := range stmts {
					if _, err := tx.Exec(stmt); err != nil {
						return err
					}
				}
				return nil
			},
		},
	}
}

// RecordEvent appends an event to the journal.
func (j *Journal) RecordEvent(ctx context.Context, object, action, user, requestID string) error {
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO sync_journal (timestamp, object, action, user, request_id) VALUES (?, ?, ?, ?, ?)`,
		time.Now().UTC().Format(time.RFC3339Nano),
		object,
		action,
		user,
		requestID,
	)
	return err
}

// List returns events ordered newest first, optionally filtered by object.
func (j *Journal) List(ctx context.Context, object string, limit int) ([]Entry, error) {
	query := "SELECT id, timestamp, object, action, user, request_id FROM sync_journal"
	var args []any
	if object != "" {
		query += " WHERE object = ?"
		args = append(args, object)
	}
	query += " ORDER BY timestamp DESC LIMIT ?"
	args = append(args, limit)

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var ts string
		if err := rows.Scan(&e.ID, &ts, &e.Object, &e.Action, &e.User, &e.RequestID); err != nil {
			return nil, err
		}
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			e.Timestamp = t
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
