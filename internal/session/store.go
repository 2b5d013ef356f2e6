// Package session implementa el CredentialStore: sesiones respaldadas por el
// hash del refresh token vigente, con rotación atómica y detección de reuso.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dropDatabas3/camguard/internal/domain/autherr"
	"github.com/dropDatabas3/camguard/internal/domain/repository"
	"github.com/dropDatabas3/camguard/internal/observability/logger"
	tokens "github.com/dropDatabas3/camguard/internal/security/token"
)

// Minter genera el refresh token en texto plano para una sesión. Solo su
// hash se persiste.
type Minter interface {
	Mint(userID, sessionID string, expiresAt time.Time) (string, error)
}

// OpaqueMinter genera secretos aleatorios sin estructura.
type OpaqueMinter struct{}

func (OpaqueMinter) Mint(string, string, time.Time) (string, error) {
	return tokens.GenerateOpaqueToken(tokens.RefreshSecretBytes)
}

// ReuseHook se invoca cuando se detecta reuso de un refresh token ya rotado.
type ReuseHook func(ctx context.Context, s repository.Session)

type Config struct {
	RefreshTTL time.Duration
	Minter     Minter
	Now        func() time.Time
	OnReuse    ReuseHook
}

// Issued es un refresh token recién emitido. RefreshToken se devuelve una
// única vez y nunca se guarda.
type Issued struct {
	SessionID    string
	UserID       string
	RefreshToken string
	ExpiresAt    time.Time
}

type Store struct {
	repo    repository.SessionRepository
	ttl     time.Duration
	minter  Minter
	now     func() time.Time
	onReuse ReuseHook
}

func NewStore(repo repository.SessionRepository, cfg Config) *Store {
	s := &Store{
		repo:    repo,
		ttl:     cfg.RefreshTTL,
		minter:  cfg.Minter,
		now:     cfg.Now,
		onReuse: cfg.OnReuse,
	}
	if s.ttl <= 0 {
		s.ttl = 30 * 24 * time.Hour
	}
	if s.minter == nil {
		s.minter = OpaqueMinter{}
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// TTL devuelve la vida de una sesión desde su creación.
func (s *Store) TTL() time.Duration { return s.ttl }

// Create abre una sesión nueva para userID.
func (s *Store) Create(ctx context.Context, userID, deviceInfo string) (Issued, error) {
	now := s.now().UTC()
	id := uuid.NewString()
	// segundos enteros, igual que el exp del token
	exp := now.Add(s.ttl).Truncate(time.Second)

	plain, err := s.minter.Mint(userID, id, exp)
	if err != nil {
		return Issued{}, fmt.Errorf("mint refresh token: %w", err)
	}
	_, err = s.repo.Create(ctx, repository.CreateSessionInput{
		ID:               id,
		UserID:           userID,
		RefreshTokenHash: tokens.SHA256Base64URL(plain),
		DeviceInfo:       deviceInfo,
		IssuedAt:         now,
		ExpiresAt:        exp,
	})
	if err != nil {
		return Issued{}, autherr.Unavailable(fmt.Errorf("create session: %w", err))
	}
	return Issued{SessionID: id, UserID: userID, RefreshToken: plain, ExpiresAt: exp}, nil
}

// Rotate valida presented contra el hash vigente y lo reemplaza en la misma
// transacción. La sesión conserva su expiración original.
//
// Si presented es un token ya rotado de esta sesión, la sesión se revoca y
// se devuelve autherr.ErrReuseDetected. Cualquier otro desajuste, o una
// sesión revocada, expirada o inexistente, es autherr.ErrInvalidSession.
func (s *Store) Rotate(ctx context.Context, sessionID, presented string) (Issued, error) {
	if sessionID == "" || presented == "" {
		return Issued{}, autherr.ErrInvalidSession
	}
	presentedHash := tokens.SHA256Base64URL(presented)

	var (
		out     Issued
		reused  *repository.Session
		mintErr error
	)
	err := s.repo.WithSessionLock(ctx, sessionID, func(tx repository.SessionTx) error {
		sess := tx.Session()
		now := s.now().UTC()
		if !sess.Active(now) || !sess.ExpiresAt.Truncate(time.Second).After(now) {
			return autherr.ErrInvalidSession
		}

		if !tokens.EqualHash(sess.RefreshTokenHash, presentedHash) {
			seen, err := tx.WasIssued(presentedHash)
			if err != nil {
				return err
			}
			if !seen {
				return autherr.ErrInvalidSession
			}
			cp := *sess
			reused = &cp
			return tx.Revoke(now)
		}

		plain, err := s.minter.Mint(sess.UserID, sess.ID, sess.ExpiresAt)
		if err != nil {
			mintErr = err
			return err
		}
		if err := tx.Rotate(tokens.SHA256Base64URL(plain), now); err != nil {
			return err
		}
		out = Issued{SessionID: sess.ID, UserID: sess.UserID, RefreshToken: plain, ExpiresAt: sess.ExpiresAt}
		return nil
	})

	switch {
	case mintErr != nil:
		return Issued{}, fmt.Errorf("mint refresh token: %w", mintErr)
	case errors.Is(err, repository.ErrNotFound), errors.Is(err, autherr.ErrInvalidSession):
		return Issued{}, autherr.ErrInvalidSession
	case err != nil:
		return Issued{}, autherr.Unavailable(fmt.Errorf("rotate session: %w", err))
	}

	if reused != nil {
		logger.From(ctx).Warn("refresh token reuse detected, session revoked",
			logger.Component("session"), logger.SessionID(reused.ID), logger.UserID(reused.UserID))
		if s.onReuse != nil {
			s.onReuse(ctx, *reused)
		}
		return Issued{}, autherr.ErrReuseDetected
	}
	return out, nil
}

// Get devuelve la sesión o autherr.ErrInvalidSession si no existe.
func (s *Store) Get(ctx context.Context, sessionID string) (*repository.Session, error) {
	sess, err := s.repo.Get(ctx, sessionID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return nil, autherr.ErrInvalidSession
	case err != nil:
		return nil, autherr.Unavailable(fmt.Errorf("get session: %w", err))
	}
	return sess, nil
}

// Revoke es idempotente.
func (s *Store) Revoke(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	if err := s.repo.Revoke(ctx, sessionID, s.now().UTC()); err != nil {
		return autherr.Unavailable(fmt.Errorf("revoke session: %w", err))
	}
	return nil
}

// RevokeAll revoca todas las sesiones activas de userID.
func (s *Store) RevokeAll(ctx context.Context, userID string) (int, error) {
	n, err := s.repo.RevokeAllByUser(ctx, userID, s.now().UTC())
	if err != nil {
		return 0, autherr.Unavailable(fmt.Errorf("revoke user sessions: %w", err))
	}
	return n, nil
}

// IsValid indica si presented es el refresh token vigente de una sesión
// activa. No modifica nada; un fallo del storage cuenta como inválido.
func (s *Store) IsValid(ctx context.Context, sessionID, presented string) bool {
	if sessionID == "" || presented == "" {
		return false
	}
	sess, err := s.repo.Get(ctx, sessionID)
	if err != nil {
		return false
	}
	return sess.Active(s.now().UTC()) &&
		tokens.EqualHash(sess.RefreshTokenHash, tokens.SHA256Base64URL(presented))
}

// ListActive lista las sesiones activas de userID.
func (s *Store) ListActive(ctx context.Context, userID string) ([]repository.Session, error) {
	out, err := s.repo.ListActiveByUser(ctx, userID, s.now().UTC())
	if err != nil {
		return nil, autherr.Unavailable(fmt.Errorf("list sessions: %w", err))
	}
	return out, nil
}
