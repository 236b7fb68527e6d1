package snapshot

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

const DefaultLeaseName = "pipeline"

var _ Lease = (*SQLiteLease)(nil)

// SQLiteLease keeps the lease as a row in run_leases. A lease whose holder died is taken over
// once it passes its TTL.
type SQLiteLease struct {
	db   *sql.DB
	name string
	ttl  time.Duration
	now  func() time.Time
}

func NewSQLiteLease(db *sql.DB, name string, ttl time.Duration) *SQLiteLease {
	return &SQLiteLease{
		db:   db,
		name: name,
		ttl:  ttl,
		now:  time.Now,
	}
}

func (l *SQLiteLease) Acquire(ctx context.Context) (func(), error) {
	holder := uuid.NewString()
	now := l.now().UTC()

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, unavailable("begin lease transaction", err)
	}
	defer tx.Rollback()

	var currentHolder, expiresAt string
	err = tx.QueryRowContext(ctx, `SELECT holder, expires_at FROM run_leases WHERE name = ?`, l.name).
		Scan(&currentHolder, &expiresAt)
	switch {
	case err == sql.ErrNoRows:
	case err != nil:
		return nil, unavailable("read lease", err)
	default:
		expiry, err := time.Parse(timeLayout, expiresAt)
		if err != nil {
			return nil, unavailable("parse lease expiry", err)
		}
		if now.Before(expiry) {
			return nil, fmt.Errorf("%w: lease %q held by %s until %s", ErrRunInProgress, l.name, currentHolder, expiresAt)
		}
		slog.Warn("Taking over expired run lease", "lease", l.name, "previous_holder", currentHolder, "expired_at", expiresAt)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO run_leases (name, holder, acquired_at, expires_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET
			holder = excluded.holder,
			acquired_at = excluded.acquired_at,
			expires_at = excluded.expires_at
	`, l.name, holder, formatTime(now), formatTime(now.Add(l.ttl)))
	if err != nil {
		return nil, unavailable("write lease", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, unavailable("commit lease", err)
	}

	slog.Debug("Run lease acquired", "lease", l.name, "holder", holder, "ttl", l.ttl)

	release := func() {
		// Released on a fresh context so a cancelled run still frees the lease
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		_, err := l.db.ExecContext(ctx, `DELETE FROM run_leases WHERE name = ? AND holder = ?`, l.name, holder)
		if err != nil {
			slog.Error("Failed to release run lease", "lease", l.name, "holder", holder, "error", err)
			return
		}
		slog.Debug("Run lease released", "lease", l.name, "holder", holder)
	}

	return release, nil
}
