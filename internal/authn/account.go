package authn

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/dropDatabas3/camguard/internal/domain/autherr"
	"github.com/dropDatabas3/camguard/internal/domain/repository"
	"github.com/dropDatabas3/camguard/internal/domain/types"
	"github.com/dropDatabas3/camguard/internal/observability/logger"
	"github.com/dropDatabas3/camguard/internal/security/password"
)

// Register crea un usuario standard. El username tiene que ser un email y
// la password cumplir la política.
func (s *Service) Register(ctx context.Context, username, plain string) (*repository.User, error) {
	log := logger.FromWithFields(ctx,
		logger.Layer("service"),
		logger.Component("authn.register"),
		logger.Op("Register"),
	)

	username = password.NormalizeUsername(username)
	if !password.ValidEmail(username) {
		return nil, autherr.ErrInvalidEmail
	}
	if ok, reasons := s.policy.Validate(plain); !ok {
		return nil, &WeakPasswordError{Reasons: reasons}
	}
	hash, err := s.hasher.Hash(plain)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u, err := s.users.Create(ctx, repository.CreateUserInput{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: hash,
		Role:         types.RoleStandard,
		CreatedAt:    s.now(),
	})
	switch {
	case errors.Is(err, repository.ErrConflict):
		return nil, autherr.ErrUserExists
	case err != nil:
		log.Error("create user failed", logger.Err(err))
		return nil, autherr.Unavailable(fmt.Errorf("create user: %w", err))
	}
	log.Info("user registered", logger.UserID(u.ID))
	return u, nil
}

// ChangePassword reemplaza la password después de verificar la actual y
// revoca todas las sesiones del usuario.
func (s *Service) ChangePassword(ctx context.Context, userID, current, next string) error {
	log := logger.FromWithFields(ctx,
		logger.Layer("service"),
		logger.Component("authn.password"),
		logger.Op("ChangePassword"),
		logger.UserID(userID),
	)

	u, err := s.users.GetByID(ctx, userID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return autherr.ErrInvalidCredentials
	case err != nil:
		return autherr.Unavailable(fmt.Errorf("get user: %w", err))
	}
	if u.Disabled || !s.hasher.Verify(current, u.PasswordHash) {
		return autherr.ErrInvalidCredentials
	}
	if ok, reasons := s.policy.Validate(next); !ok {
		return &WeakPasswordError{Reasons: reasons}
	}
	hash, err := s.hasher.Hash(next)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.users.UpdatePasswordHash(ctx, u.ID, hash); err != nil {
		return autherr.Unavailable(fmt.Errorf("update password: %w", err))
	}
	n, err := s.sessions.RevokeAll(ctx, u.ID)
	if err != nil {
		return err
	}
	log.Info("password changed, sessions revoked", logger.Count(n))
	return nil
}

// User devuelve el usuario dueño de una identidad autenticada.
func (s *Service) User(ctx context.Context, userID string) (*repository.User, error) {
	u, err := s.users.GetByID(ctx, userID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return nil, autherr.ErrUnauthenticated
	case err != nil:
		return nil, autherr.Unavailable(fmt.Errorf("get user: %w", err))
	}
	return u, nil
}

// ListSessions lista las sesiones activas del usuario.
func (s *Service) ListSessions(ctx context.Context, userID string) ([]repository.Session, error) {
	return s.sessions.ListActive(ctx, userID)
}
