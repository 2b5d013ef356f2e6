package pg

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/camguard/internal/domain/repository"
	"github.com/dropDatabas3/camguard/internal/domain/types"
)

type userRepo struct{ pool *pgxpool.Pool }

var _ repository.UserRepository = (*userRepo)(nil)

const userColumns = `id, username, password_hash, role, disabled, created_at, updated_at`

func scanUser(row pgx.Row) (*repository.User, error) {
	var u repository.User
	var role string
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &role, &u.Disabled, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	u.Role = types.Role(role)
	return &u, nil
}

func (r *userRepo) GetByUsername(ctx context.Context, username string) (*repository.User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM app_user WHERE lower(username) = lower($1)`, strings.TrimSpace(username)))
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("get user by username: %w", err)
	}
	return u, err
}

func (r *userRepo) GetByID(ctx context.Context, id string) (*repository.User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM app_user WHERE id = $1`, id))
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("get user by id: %w", err)
	}
	return u, err
}

const insertUser = `
	INSERT INTO app_user (id, username, password_hash, role, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $5)
	RETURNING ` + userColumns

func (r *userRepo) Create(ctx context.Context, in repository.CreateUserInput) (*repository.User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx, insertUser,
		in.ID, in.Username, in.PasswordHash, string(in.Role), in.CreatedAt.UTC()))
	if isUniqueViolation(err) {
		return nil, repository.ErrConflict
	}
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

// CreateIfEmpty toma un lock de tabla que excluye a otros writers pero no a
// los lectores, así dos bootstraps concurrentes no pueden insertar ambos.
func (r *userRepo) CreateIfEmpty(ctx context.Context, in repository.CreateUserInput) (*repository.User, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `LOCK TABLE app_user IN SHARE ROW EXCLUSIVE MODE`); err != nil {
		return nil, fmt.Errorf("lock app_user: %w", err)
	}
	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM app_user)`).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check users: %w", err)
	}
	if exists {
		return nil, repository.ErrConflict
	}
	u, err := scanUser(tx.QueryRow(ctx, insertUser,
		in.ID, in.Username, in.PasswordHash, string(in.Role), in.CreatedAt.UTC()))
	if isUniqueViolation(err) {
		return nil, repository.ErrConflict
	}
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return u, nil
}

func (r *userRepo) exec(ctx context.Context, op, query string, args ...any) error {
	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *userRepo) UpdateRole(ctx context.Context, id string, role types.Role) error {
	return r.exec(ctx, "update role",
		`UPDATE app_user SET role = $2, updated_at = NOW() WHERE id = $1`, id, string(role))
}

func (r *userRepo) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	return r.exec(ctx, "update password",
		`UPDATE app_user SET password_hash = $2, updated_at = NOW() WHERE id = $1`, id, hash)
}

func (r *userRepo) Disable(ctx context.Context, id string) error {
	return r.exec(ctx, "disable user",
		`UPDATE app_user SET disabled = TRUE, updated_at = NOW() WHERE id = $1`, id)
}

func (r *userRepo) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM app_user`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}
