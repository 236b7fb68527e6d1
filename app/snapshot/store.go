package snapshot

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/coct-data/service-alerts/app/alert"

	_ "modernc.org/sqlite"
)

var _ Repository = (*Store)(nil)

const timeLayout = time.RFC3339Nano

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open opens the SQLite database at path and brings its schema up to date.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, unavailable("open database", err)
	}
	// SQLite allows a single writer
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, unavailable("ping database", err)
	}

	version, err := migrateSchema(db)
	if err != nil {
		db.Close()
		return nil, unavailable("migrate database", err)
	}
	slog.Debug("Snapshot store ready", "path", path, "schema_version", version)

	return NewStore(db), nil
}

func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Get(ctx context.Context, id int64) (*Entry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, content_hash, status, first_seen_at, last_seen_at, expired_at, payload
		FROM snapshot_entries
		WHERE id = ?
	`, id)

	entry, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable(fmt.Sprintf("get entry %d", id), err)
	}

	return entry, nil
}

func (s *Store) Put(ctx context.Context, entry Entry) error {
	return s.Commit(ctx, Batch{Upserts: []Entry{entry}})
}

func (s *Store) AllIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM snapshot_entries ORDER BY id`)
	if err != nil {
		return nil, unavailable("list entry ids", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, unavailable("scan entry id", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list entry ids", err)
	}

	return ids, nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM snapshot_entries`).Scan(&count); err != nil {
		return 0, unavailable("count entries", err)
	}
	return count, nil
}

// Baseline reads every entry inside one read transaction, so the result is a consistent
// point-in-time view of the store.
func (s *Store) Baseline(ctx context.Context) (map[int64]*Entry, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, unavailable("begin baseline transaction", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT id, content_hash, status, first_seen_at, last_seen_at, expired_at, payload
		FROM snapshot_entries
	`)
	if err != nil {
		return nil, unavailable("read baseline", err)
	}
	defer rows.Close()

	baseline := make(map[int64]*Entry)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, unavailable("scan baseline entry", err)
		}
		baseline[entry.ID] = entry
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("read baseline", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, unavailable("commit baseline transaction", err)
	}

	return baseline, nil
}

// Commit writes the batch atomically. first_seen_at is kept from the existing row on update.
func (s *Store) Commit(ctx context.Context, batch Batch) error {
	if batch.Empty() {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("begin commit transaction", err)
	}
	defer tx.Rollback()

	for _, entry := range batch.Upserts {
		payload, err := json.Marshal(entry.Alert)
		if err != nil {
			return fmt.Errorf("failed to encode entry %d: %w", entry.ID, err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO snapshot_entries (id, content_hash, status, first_seen_at, last_seen_at, expired_at, payload)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (id) DO UPDATE SET
				content_hash = excluded.content_hash,
				status = excluded.status,
				last_seen_at = excluded.last_seen_at,
				expired_at = excluded.expired_at,
				payload = excluded.payload
		`, entry.ID, entry.ContentHash, string(entry.Status),
			formatTime(entry.FirstSeenAt), formatTime(entry.LastSeenAt), formatNullTime(entry.ExpiredAt),
			string(payload))
		if err != nil {
			return unavailable(fmt.Sprintf("upsert entry %d", entry.ID), err)
		}
	}

	if len(batch.Seen) > 0 {
		stmt, err := tx.PrepareContext(ctx, `UPDATE snapshot_entries SET last_seen_at = ? WHERE id = ?`)
		if err != nil {
			return unavailable("prepare last_seen_at update", err)
		}
		defer stmt.Close()

		seenAt := formatTime(batch.SeenAt)
		for _, id := range batch.Seen {
			if _, err := stmt.ExecContext(ctx, seenAt, id); err != nil {
				return unavailable(fmt.Sprintf("refresh entry %d", id), err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return unavailable("commit transaction", err)
	}

	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (*Entry, error) {
	var (
		entry       Entry
		status      string
		firstSeenAt string
		lastSeenAt  string
		expiredAt   sql.NullString
		payload     string
	)

	if err := row.Scan(&entry.ID, &entry.ContentHash, &status, &firstSeenAt, &lastSeenAt, &expiredAt, &payload); err != nil {
		return nil, err
	}

	entry.Status = alert.Status(status)

	var err error
	if entry.FirstSeenAt, err = time.Parse(timeLayout, firstSeenAt); err != nil {
		return nil, fmt.Errorf("failed to parse first_seen_at: %w", err)
	}
	if entry.LastSeenAt, err = time.Parse(timeLayout, lastSeenAt); err != nil {
		return nil, fmt.Errorf("failed to parse last_seen_at: %w", err)
	}
	if expiredAt.Valid {
		t, err := time.Parse(timeLayout, expiredAt.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse expired_at: %w", err)
		}
		entry.ExpiredAt = &t
	}

	entry.Alert = &alert.Alert{}
	if err := json.Unmarshal([]byte(payload), entry.Alert); err != nil {
		return nil, fmt.Errorf("failed to decode payload: %w", err)
	}

	return &entry, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatNullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: failed to %s: %w", ErrStoreUnavailable, op, err)
}
