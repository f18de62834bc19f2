package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/securemedai/portal/application/port/outbound"
	"github.com/securemedai/portal/domain/entity"
)

// Sealer encrypts the session payload before it reaches the table.
type Sealer interface {
	Seal(plaintext []byte) (string, error)
	Open(sealed string) ([]byte, error)
}

type sessionStore struct {
	db     *sql.DB
	sealer Sealer
	ttl    time.Duration
}

// SessionStore adds expiry housekeeping to the session port.
type SessionStore interface {
	outbound.SessionStore
	PurgeExpired(ctx context.Context) (int64, error)
}

func NewSessionStore(db *sql.DB, sealer Sealer, ttl time.Duration) SessionStore {
	return &sessionStore{db: db, sealer: sealer, ttl: ttl}
}

func (r *sessionStore) Get(ctx context.Context, sessionID string) (entity.Session, error) {
	query := `
		SELECT payload
		FROM portal_sessions
		WHERE session_id = $1 AND expires_at > NOW()
	`

	var payload string
	err := r.db.QueryRowContext(ctx, query, sessionID).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return entity.Session{}, nil
		}
		return entity.Session{}, fmt.Errorf("failed to find session: %w", err)
	}
	return r.decode(payload)
}

func (r *sessionStore) Set(ctx context.Context, sessionID string, update entity.SessionUpdate) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// A first write has no row to lock, so concurrent first writes would
	// both merge into an empty session. Claim the row first; an expired
	// placeholder reads as absent.
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO portal_sessions (session_id, payload, expires_at)
		VALUES ($1, '', NOW())
		ON CONFLICT (session_id) DO NOTHING
	`, sessionID); err != nil {
		return fmt.Errorf("failed to claim session: %w", err)
	}

	current := entity.Session{}
	var payload string
	var live bool
	err = tx.QueryRowContext(ctx, `
		SELECT payload, expires_at > NOW()
		FROM portal_sessions
		WHERE session_id = $1
		FOR UPDATE
	`, sessionID).Scan(&payload, &live)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return fmt.Errorf("failed to lock session: %w", err)
	case live:
		if current, err = r.decode(payload); err != nil {
			return err
		}
	}

	next, err := current.Apply(update)
	if err != nil {
		return err
	}

	if next.IsEmpty() {
		if _, err := tx.ExecContext(ctx, `DELETE FROM portal_sessions WHERE session_id = $1`, sessionID); err != nil {
			return fmt.Errorf("failed to delete session: %w", err)
		}
		return tx.Commit()
	}

	sealed, err := r.encode(next)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO portal_sessions (session_id, payload, role, expires_at, updated_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, NOW())
		ON CONFLICT (session_id) DO UPDATE
		SET payload = EXCLUDED.payload,
			role = EXCLUDED.role,
			expires_at = EXCLUDED.expires_at,
			updated_at = NOW()
	`, sessionID, sealed, string(next.Role), time.Now().Add(r.ttl))
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) {
			return fmt.Errorf("failed to upsert session (%s): %w", pqErr.Code.Name(), err)
		}
		return fmt.Errorf("failed to upsert session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit session: %w", err)
	}
	return nil
}

func (r *sessionStore) Clear(ctx context.Context, sessionID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM portal_sessions WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}

func (r *sessionStore) PurgeExpired(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM portal_sessions WHERE expires_at <= NOW()`)
	if err != nil {
		return 0, fmt.Errorf("failed to purge sessions: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected, nil
}

func (r *sessionStore) encode(sess entity.Session) (string, error) {
	raw, err := json.Marshal(sess)
	if err != nil {
		return "", fmt.Errorf("failed to marshal session: %w", err)
	}
	return r.sealer.Seal(raw)
}

func (r *sessionStore) decode(payload string) (entity.Session, error) {
	raw, err := r.sealer.Open(payload)
	if err != nil {
		return entity.Session{}, fmt.Errorf("failed to open session: %w", err)
	}
	var sess entity.Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return entity.Session{}, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return sess, nil
}

// Open connects with lib/pq and verifies the connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}
