package pg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/camguard/internal/domain/repository"
)

// sessionRepo implementa repository.SessionRepository.
type sessionRepo struct {
	pool *pgxpool.Pool
}

var _ repository.SessionRepository = (*sessionRepo)(nil)

const sessionColumns = `id, user_id, refresh_token_hash, device_info, issued_at, expires_at, revoked_at, last_used_at`

func scanSession(row pgx.Row) (*repository.Session, error) {
	var s repository.Session
	err := row.Scan(&s.ID, &s.UserID, &s.RefreshTokenHash, &s.DeviceInfo,
		&s.IssuedAt, &s.ExpiresAt, &s.RevokedAt, &s.LastUsedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Create inserta una nueva sesión.
func (r *sessionRepo) Create(ctx context.Context, in repository.CreateSessionInput) (*repository.Session, error) {
	s, err := scanSession(r.pool.QueryRow(ctx, `
		INSERT INTO auth_session (id, user_id, refresh_token_hash, device_info, issued_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+sessionColumns,
		in.ID, in.UserID, in.RefreshTokenHash, in.DeviceInfo, in.IssuedAt.UTC(), in.ExpiresAt.UTC(),
	))
	if isUniqueViolation(err) {
		return nil, repository.ErrConflict
	}
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return s, nil
}

// Get obtiene una sesión por ID.
func (r *sessionRepo) Get(ctx context.Context, id string) (*repository.Session, error) {
	s, err := scanSession(r.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM auth_session WHERE id = $1`, id))
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return s, err
}

type sessionTx struct {
	ctx  context.Context
	tx   pgx.Tx
	sess *repository.Session
}

func (t *sessionTx) Session() *repository.Session { return t.sess }

func (t *sessionTx) WasIssued(hash string) (bool, error) {
	var seen bool
	err := t.tx.QueryRow(t.ctx,
		`SELECT EXISTS (SELECT 1 FROM auth_session_rotation WHERE token_hash = $1 AND session_id = $2)`,
		hash, t.sess.ID).Scan(&seen)
	if err != nil {
		return false, fmt.Errorf("rotation lookup: %w", err)
	}
	return seen, nil
}

func (t *sessionTx) Rotate(newHash string, at time.Time) error {
	at = at.UTC()
	if _, err := t.tx.Exec(t.ctx,
		`INSERT INTO auth_session_rotation (token_hash, session_id, rotated_at) VALUES ($1, $2, $3)`,
		t.sess.RefreshTokenHash, t.sess.ID, at); err != nil {
		return fmt.Errorf("record rotation: %w", err)
	}
	if _, err := t.tx.Exec(t.ctx,
		`UPDATE auth_session SET refresh_token_hash = $2, last_used_at = $3 WHERE id = $1`,
		t.sess.ID, newHash, at); err != nil {
		return fmt.Errorf("rotate session: %w", err)
	}
	t.sess.RefreshTokenHash = newHash
	t.sess.LastUsedAt = &at
	return nil
}

func (t *sessionTx) Revoke(at time.Time) error {
	at = at.UTC()
	if _, err := t.tx.Exec(t.ctx,
		`UPDATE auth_session SET revoked_at = $2 WHERE id = $1 AND revoked_at IS NULL`, t.sess.ID, at); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	if t.sess.RevokedAt == nil {
		t.sess.RevokedAt = &at
	}
	return nil
}

// WithSessionLock: SELECT ... FOR UPDATE dentro de una transacción. Una
// segunda rotación sobre la misma sesión espera al commit de la primera y
// lee el hash ya reemplazado.
func (r *sessionRepo) WithSessionLock(ctx context.Context, id string, fn func(tx repository.SessionTx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	sess, err := scanSession(tx.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM auth_session WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return err
		}
		return fmt.Errorf("lock session: %w", err)
	}
	if err := fn(&sessionTx{ctx: ctx, tx: tx, sess: sess}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Revoke marca la sesión como revocada. Idempotente.
func (r *sessionRepo) Revoke(ctx context.Context, id string, at time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE auth_session SET revoked_at = $2 WHERE id = $1 AND revoked_at IS NULL`, id, at.UTC())
	if err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

// RevokeAllByUser revoca todas las sesiones activas de un usuario.
func (r *sessionRepo) RevokeAllByUser(ctx context.Context, userID string, at time.Time) (int, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE auth_session SET revoked_at = $2 WHERE user_id = $1 AND revoked_at IS NULL`, userID, at.UTC())
	if err != nil {
		return 0, fmt.Errorf("revoke all sessions: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *sessionRepo) ListActiveByUser(ctx context.Context, userID string, now time.Time) ([]repository.Session, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+sessionColumns+` FROM auth_session
		WHERE user_id = $1 AND revoked_at IS NULL AND expires_at > $2
		ORDER BY issued_at`, userID, now.UTC())
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []repository.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

// DeleteExpired elimina sesiones expiradas o revocadas antes de before.
// El historial de rotación se borra en cascada.
func (r *sessionRepo) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM auth_session WHERE expires_at < $1 OR (revoked_at IS NOT NULL AND revoked_at < $1)`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
