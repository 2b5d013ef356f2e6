package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dropDatabas3/camguard/internal/domain/repository"
)

type sessionRepo struct {
	write *sql.DB
	read  *sql.DB
}

var _ repository.SessionRepository = (*sessionRepo)(nil)

const sessionColumns = `id, user_id, refresh_token_hash, device_info, issued_at, expires_at, revoked_at, last_used_at`

func scanSession(row rowScanner) (*repository.Session, error) {
	var s repository.Session
	var revokedAt, lastUsedAt sql.NullTime
	err := row.Scan(&s.ID, &s.UserID, &s.RefreshTokenHash, &s.DeviceInfo,
		&s.IssuedAt, &s.ExpiresAt, &revokedAt, &lastUsedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	s.IssuedAt = s.IssuedAt.UTC()
	s.ExpiresAt = s.ExpiresAt.UTC()
	s.RevokedAt = nullTimeToPtr(revokedAt)
	s.LastUsedAt = nullTimeToPtr(lastUsedAt)
	return &s, nil
}

func (r *sessionRepo) Create(ctx context.Context, in repository.CreateSessionInput) (*repository.Session, error) {
	_, err := r.write.ExecContext(ctx, `
		INSERT INTO auth_session (id, user_id, refresh_token_hash, device_info, issued_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		in.ID, in.UserID, in.RefreshTokenHash, in.DeviceInfo, in.IssuedAt.UTC(), in.ExpiresAt.UTC())
	if isUniqueViolation(err) {
		return nil, repository.ErrConflict
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: create session: %w", err)
	}
	return &repository.Session{
		ID: in.ID, UserID: in.UserID, RefreshTokenHash: in.RefreshTokenHash, DeviceInfo: in.DeviceInfo,
		IssuedAt: in.IssuedAt.UTC(), ExpiresAt: in.ExpiresAt.UTC(),
	}, nil
}

func (r *sessionRepo) Get(ctx context.Context, id string) (*repository.Session, error) {
	s, err := scanSession(r.read.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM auth_session WHERE id = ?`, id))
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("sqlite: get session: %w", err)
	}
	return s, err
}

type sessionTx struct {
	ctx  context.Context
	tx   *sql.Tx
	sess *repository.Session
}

func (t *sessionTx) Session() *repository.Session { return t.sess }

func (t *sessionTx) WasIssued(hash string) (bool, error) {
	var one int
	err := t.tx.QueryRowContext(t.ctx,
		`SELECT 1 FROM auth_session_rotation WHERE token_hash = ? AND session_id = ?`, hash, t.sess.ID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("sqlite: rotation lookup: %w", err)
	}
	return true, nil
}

func (t *sessionTx) Rotate(newHash string, at time.Time) error {
	at = at.UTC()
	if _, err := t.tx.ExecContext(t.ctx,
		`INSERT INTO auth_session_rotation (token_hash, session_id, rotated_at) VALUES (?, ?, ?)`,
		t.sess.RefreshTokenHash, t.sess.ID, at); err != nil {
		return fmt.Errorf("sqlite: record rotation: %w", err)
	}
	if _, err := t.tx.ExecContext(t.ctx,
		`UPDATE auth_session SET refresh_token_hash = ?, last_used_at = ? WHERE id = ?`,
		newHash, at, t.sess.ID); err != nil {
		return fmt.Errorf("sqlite: rotate session: %w", err)
	}
	t.sess.RefreshTokenHash = newHash
	t.sess.LastUsedAt = &at
	return nil
}

func (t *sessionTx) Revoke(at time.Time) error {
	at = at.UTC()
	if _, err := t.tx.ExecContext(t.ctx,
		`UPDATE auth_session SET revoked_at = ? WHERE id = ? AND revoked_at IS NULL`, at, t.sess.ID); err != nil {
		return fmt.Errorf("sqlite: revoke session: %w", err)
	}
	if t.sess.RevokedAt == nil {
		t.sess.RevokedAt = &at
	}
	return nil
}

// WithSessionLock usa el pool de escritura (una conexión, BEGIN IMMEDIATE),
// así que las rotaciones concurrentes se serializan.
func (r *sessionRepo) WithSessionLock(ctx context.Context, id string, fn func(tx repository.SessionTx) error) error {
	tx, err := r.write.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}
	defer tx.Rollback()

	sess, err := scanSession(tx.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM auth_session WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return err
		}
		return fmt.Errorf("sqlite: lock session: %w", err)
	}
	if err := fn(&sessionTx{ctx: ctx, tx: tx, sess: sess}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit: %w", err)
	}
	return nil
}

func (r *sessionRepo) Revoke(ctx context.Context, id string, at time.Time) error {
	_, err := r.write.ExecContext(ctx,
		`UPDATE auth_session SET revoked_at = ? WHERE id = ? AND revoked_at IS NULL`, at.UTC(), id)
	if err != nil {
		return fmt.Errorf("sqlite: revoke session: %w", err)
	}
	return nil
}

func (r *sessionRepo) RevokeAllByUser(ctx context.Context, userID string, at time.Time) (int, error) {
	res, err := r.write.ExecContext(ctx,
		`UPDATE auth_session SET revoked_at = ? WHERE user_id = ? AND revoked_at IS NULL`, at.UTC(), userID)
	if err != nil {
		return 0, fmt.Errorf("sqlite: revoke user sessions: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (r *sessionRepo) ListActiveByUser(ctx context.Context, userID string, now time.Time) ([]repository.Session, error) {
	rows, err := r.read.QueryContext(ctx, `
		SELECT `+sessionColumns+` FROM auth_session
		WHERE user_id = ? AND revoked_at IS NULL AND expires_at > ?
		ORDER BY issued_at`, userID, now.UTC())
	if err != nil {
		return nil, fmt.Errorf("sqlite: list sessions: %w", err)
	}
	defer rows.Close()

	var out []repository.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan session: %w", err)
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

func (r *sessionRepo) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	res, err := r.write.ExecContext(ctx,
		`DELETE FROM auth_session WHERE expires_at < ? OR (revoked_at IS NOT NULL AND revoked_at < ?)`,
		before.UTC(), before.UTC())
	if err != nil {
		return 0, fmt.Errorf("sqlite: delete expired sessions: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
