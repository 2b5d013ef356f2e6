package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dropDatabas3/camguard/internal/domain/repository"
	"github.com/dropDatabas3/camguard/internal/domain/types"
)

type userRepo struct {
	write *sql.DB
	read  *sql.DB
}

var _ repository.UserRepository = (*userRepo)(nil)

const userColumns = `id, username, password_hash, role, disabled, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*repository.User, error) {
	var u repository.User
	var role string
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &role, &u.Disabled, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	u.Role = types.Role(role)
	u.CreatedAt = u.CreatedAt.UTC()
	u.UpdatedAt = u.UpdatedAt.UTC()
	return &u, nil
}

func (r *userRepo) GetByUsername(ctx context.Context, username string) (*repository.User, error) {
	u, err := scanUser(r.read.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM app_user WHERE username = ? COLLATE NOCASE`, strings.TrimSpace(username)))
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("sqlite: get user by username: %w", err)
	}
	return u, err
}

func (r *userRepo) GetByID(ctx context.Context, id string) (*repository.User, error) {
	u, err := scanUser(r.read.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM app_user WHERE id = ?`, id))
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("sqlite: get user by id: %w", err)
	}
	return u, err
}

const insertUser = `INSERT INTO app_user (id, username, password_hash, role, disabled, created_at, updated_at)
	VALUES (?, ?, ?, ?, 0, ?, ?)`

func (r *userRepo) Create(ctx context.Context, in repository.CreateUserInput) (*repository.User, error) {
	at := in.CreatedAt.UTC()
	_, err := r.write.ExecContext(ctx, insertUser, in.ID, in.Username, in.PasswordHash, string(in.Role), at, at)
	if isUniqueViolation(err) {
		return nil, repository.ErrConflict
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: create user: %w", err)
	}
	return &repository.User{
		ID: in.ID, Username: in.Username, PasswordHash: in.PasswordHash,
		Role: in.Role, CreatedAt: at, UpdatedAt: at,
	}, nil
}

// CreateIfEmpty corre en una transacción IMMEDIATE sobre el pool de
// escritura: el conteo y el insert no pueden intercalarse con otro writer.
func (r *userRepo) CreateIfEmpty(ctx context.Context, in repository.CreateUserInput) (*repository.User, error) {
	tx, err := r.write.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sqlite: begin: %w", err)
	}
	defer tx.Rollback()

	var n int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM app_user`).Scan(&n); err != nil {
		return nil, fmt.Errorf("sqlite: count users: %w", err)
	}
	if n > 0 {
		return nil, repository.ErrConflict
	}
	at := in.CreatedAt.UTC()
	if _, err := tx.ExecContext(ctx, insertUser, in.ID, in.Username, in.PasswordHash, string(in.Role), at, at); err != nil {
		if isUniqueViolation(err) {
			return nil, repository.ErrConflict
		}
		return nil, fmt.Errorf("sqlite: create user: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("sqlite: commit: %w", err)
	}
	return &repository.User{
		ID: in.ID, Username: in.Username, PasswordHash: in.PasswordHash,
		Role: in.Role, CreatedAt: at, UpdatedAt: at,
	}, nil
}

func (r *userRepo) exec(ctx context.Context, op, query string, args ...any) error {
	res, err := r.write.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("sqlite: %s: %w", op, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *userRepo) UpdateRole(ctx context.Context, id string, role types.Role) error {
	return r.exec(ctx, "update role",
		`UPDATE app_user SET role = ?, updated_at = ? WHERE id = ?`, string(role), time.Now().UTC(), id)
}

func (r *userRepo) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	return r.exec(ctx, "update password",
		`UPDATE app_user SET password_hash = ?, updated_at = ? WHERE id = ?`, hash, time.Now().UTC(), id)
}

func (r *userRepo) Disable(ctx context.Context, id string) error {
	return r.exec(ctx, "disable user",
		`UPDATE app_user SET disabled = 1, updated_at = ? WHERE id = ?`, time.Now().UTC(), id)
}

func (r *userRepo) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.read.QueryRowContext(ctx, `SELECT COUNT(*) FROM app_user`).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite: count users: %w", err)
	}
	return n, nil
}
