package repository

import (
	"context"
	"time"
)

// Session vincula un usuario con el hash del refresh token vigente.
type Session struct {
	ID               string
	UserID           string
	RefreshTokenHash string
	DeviceInfo       string
	IssuedAt         time.Time
	ExpiresAt        time.Time
	RevokedAt        *time.Time
	LastUsedAt       *time.Time
}

// Active indica si la sesión puede seguir rotando en el instante now.
func (s *Session) Active(now time.Time) bool {
	return s != nil && s.RevokedAt == nil && now.Before(s.ExpiresAt)
}

// CreateSessionInput contiene los datos para crear una sesión.
type CreateSessionInput struct {
	ID               string
	UserID           string
	RefreshTokenHash string
	DeviceInfo       string
	IssuedAt         time.Time
	ExpiresAt        time.Time
}

// SessionTx es la vista transaccional de una sesión bloqueada.
// Los cambios se confirman solo si la función pasada a WithSessionLock
// retorna nil.
type SessionTx interface {
	// Session retorna el estado de la sesión leído bajo lock.
	Session() *Session

	// WasIssued indica si hash fue alguna vez el refresh token de esta
	// sesión y ya fue rotado.
	WasIssued(hash string) (bool, error)

	// Rotate reemplaza el hash vigente y guarda el anterior en el historial.
	Rotate(newHash string, at time.Time) error

	// Revoke marca la sesión como revocada.
	Revoke(at time.Time) error
}

// SessionRepository define operaciones para gestionar sesiones.
type SessionRepository interface {
	Create(ctx context.Context, input CreateSessionInput) (*Session, error)

	// Get retorna ErrNotFound si no existe.
	Get(ctx context.Context, id string) (*Session, error)

	// WithSessionLock ejecuta fn con la sesión bloqueada para escritura.
	// Dos llamadas concurrentes sobre la misma sesión se serializan.
	// Retorna ErrNotFound si la sesión no existe.
	WithSessionLock(ctx context.Context, id string, fn func(tx SessionTx) error) error

	// Revoke es idempotente: revocar una sesión revocada o inexistente no
	// es error.
	Revoke(ctx context.Context, id string, at time.Time) error

	// RevokeAllByUser retorna el número de sesiones revocadas.
	RevokeAllByUser(ctx context.Context, userID string, at time.Time) (int, error)

	// ListActiveByUser lista las sesiones no revocadas ni expiradas.
	ListActiveByUser(ctx context.Context, userID string, now time.Time) ([]Session, error)

	// DeleteExpired elimina sesiones expiradas o revocadas antes de before.
	DeleteExpired(ctx context.Context, before time.Time) (int, error)
}
