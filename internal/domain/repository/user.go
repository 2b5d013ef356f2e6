package repository

import (
	"context"
	"time"

	"github.com/dropDatabas3/camguard/internal/domain/types"
)

// User representa una cuenta. Nunca se borra físicamente mientras tenga
// sesiones; Disable reemplaza al borrado.
type User struct {
	ID           string
	Username     string
	PasswordHash string
	Role         types.Role
	Disabled     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// CreateUserInput contiene los datos para crear un usuario.
type CreateUserInput struct {
	ID           string
	Username     string
	PasswordHash string
	Role         types.Role
	CreatedAt    time.Time
}

// UserRepository define operaciones sobre usuarios.
type UserRepository interface {
	// GetByUsername busca por username (case-insensitive).
	// Retorna ErrNotFound si no existe.
	GetByUsername(ctx context.Context, username string) (*User, error)

	// GetByID retorna ErrNotFound si no existe.
	GetByID(ctx context.Context, id string) (*User, error)

	// Create retorna ErrConflict si el username ya existe.
	Create(ctx context.Context, input CreateUserInput) (*User, error)

	// CreateIfEmpty crea el usuario solo si no hay ningún otro, de forma
	// atómica. Retorna ErrConflict si ya existían usuarios.
	CreateIfEmpty(ctx context.Context, input CreateUserInput) (*User, error)

	UpdateRole(ctx context.Context, id string, role types.Role) error
	UpdatePasswordHash(ctx context.Context, id, hash string) error
	Disable(ctx context.Context, id string) error

	Count(ctx context.Context) (int, error)
}
