package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres is a conversation store backed by PostgreSQL.
//
// Appends run in a transaction that takes a row lock on the session
// (SELECT ... FOR UPDATE), so concurrent appends to one session serialize
// at the database and sequence numbers never collide, even across multiple
// server processes sharing the database.
type Postgres struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgres creates a Postgres conversation store on the given pool.
func NewPostgres(pool *pgxpool.Pool, logger *slog.Logger) *Postgres {
	if logger == nil {
		logger = slog.Default()
	}
	return &Postgres{pool: pool, logger: logger}
}

// GetOrCreate ensures the session row exists, creating an empty one on first
// access. Existing sessions and their history are left untouched.
func (p *Postgres) GetOrCreate(ctx context.Context, sessionID string) error {
	if _, err := p.pool.Exec(ctx, `
		INSERT INTO sessions (id) VALUES ($1)
		ON CONFLICT (id) DO NOTHING`, sessionID); err != nil {
		return fmt.Errorf("creating session %q: %w", sessionID, err)
	}
	return nil
}

// Append adds turns to the session in order, creating the session row if it
// does not exist. Timestamps are assigned by the database clock; ordering
// within a session is carried by the seq column, not by timestamps.
func (p *Postgres) Append(ctx context.Context, sessionID string, turns ...Turn) error {
	if len(turns) == 0 {
		return nil
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil {
			p.logger.Debug("transaction rollback (may be already committed)", "error", err)
		}
	}()

	if _, err := tx.Exec(ctx, `
		INSERT INTO sessions (id) VALUES ($1)
		ON CONFLICT (id) DO NOTHING`, sessionID); err != nil {
		return fmt.Errorf("creating session %q: %w", sessionID, err)
	}

	// Lock the session row so concurrent appends queue up behind us.
	var locked string
	if err := tx.QueryRow(ctx, `
		SELECT id FROM sessions WHERE id = $1 FOR UPDATE`, sessionID).Scan(&locked); err != nil {
		return fmt.Errorf("locking session %q: %w", sessionID, err)
	}

	var maxSeq int
	if err := tx.QueryRow(ctx, `
		SELECT COALESCE(MAX(seq), 0) FROM turns WHERE session_id = $1`, sessionID).Scan(&maxSeq); err != nil {
		return fmt.Errorf("reading sequence for session %q: %w", sessionID, err)
	}

	for i, turn := range turns {
		if _, err := tx.Exec(ctx, `
			INSERT INTO turns (session_id, seq, role, content)
			VALUES ($1, $2, $3, $4)`,
			sessionID, maxSeq+i+1, turn.Role, turn.Text); err != nil {
			return fmt.Errorf("inserting turn %d for session %q: %w", i, sessionID, err)
		}
	}

	if _, err := tx.Exec(ctx, `
		UPDATE sessions SET updated_at = now() WHERE id = $1`, sessionID); err != nil {
		return fmt.Errorf("touching session %q: %w", sessionID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	p.logger.Debug("appended turns", "session_id", sessionID, "count", len(turns))
	return nil
}

// History returns the session's turns oldest first. An unknown session
// yields an empty history, mirroring Append's auto-create policy; callers
// that need to distinguish absence use Exists.
func (p *Postgres) History(ctx context.Context, sessionID string) ([]Turn, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT role, content, created_at FROM turns
		WHERE session_id = $1
		ORDER BY seq`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("reading history for session %q: %w", sessionID, err)
	}
	defer rows.Close()

	var turns []Turn
	for rows.Next() {
		var t Turn
		if err := rows.Scan(&t.Role, &t.Text, &t.Timestamp); err != nil {
			return nil, fmt.Errorf("scanning turn: %w", err)
		}
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading turn rows: %w", err)
	}
	return turns, nil
}

// Exists reports whether the session has been created.
func (p *Postgres) Exists(ctx context.Context, sessionID string) (bool, error) {
	var exists bool
	if err := p.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM sessions WHERE id = $1)`, sessionID).Scan(&exists); err != nil {
		return false, fmt.Errorf("checking session %q: %w", sessionID, err)
	}
	return exists, nil
}

// Delete removes the session and its turns (CASCADE).
// Deleting an unknown session is a no-op.
func (p *Postgres) Delete(ctx context.Context, sessionID string) error {
	if _, err := p.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, sessionID); err != nil {
		return fmt.Errorf("deleting session %q: %w", sessionID, err)
	}
	return nil
}

// ListIDs returns all session IDs in sorted order.
func (p *Postgres) ListIDs(ctx context.Context) ([]string, error) {
	rows, err := p.pool.Query(ctx, `SELECT id FROM sessions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning session id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading session rows: %w", err)
	}
	return ids, nil
}

// EvictIdle removes sessions not touched since the cutoff and reports how
// many were removed.
func (p *Postgres) EvictIdle(ctx context.Context, before time.Time) (int, error) {
	tag, err := p.pool.Exec(ctx, `DELETE FROM sessions WHERE updated_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("evicting idle sessions: %w", err)
	}
	evicted := int(tag.RowsAffected())
	if evicted > 0 {
		p.logger.Info("evicted idle sessions", "count", evicted, "before", before)
	}
	return evicted, nil
}
