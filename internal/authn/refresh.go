package authn

import (
	"context"
	"errors"
	"fmt"

	"github.com/dropDatabas3/camguard/internal/domain/autherr"
	"github.com/dropDatabas3/camguard/internal/domain/repository"
	"github.com/dropDatabas3/camguard/internal/domain/types"
	"github.com/dropDatabas3/camguard/internal/metrics"
	"github.com/dropDatabas3/camguard/internal/observability/logger"
)

// Refresh rota el refresh token de una sesión y emite un access token nuevo
// con el rol actual del usuario. sessionID puede ir vacío: se toma del sid
// del token.
//
// Errores: autherr.ErrInvalidSession (token inválido, sesión revocada o
// expirada, usuario deshabilitado), autherr.ErrReuseDetected (token ya
// rotado; la sesión queda revocada) o autherr.ErrUnavailable.
func (s *Service) Refresh(ctx context.Context, sessionID, refreshToken string) (TokenPair, error) {
	pair, err := s.refresh(ctx, sessionID, refreshToken)
	result := metrics.ResultOK
	switch {
	case err == nil:
	case errors.Is(err, autherr.ErrReuseDetected):
		result = metrics.ResultReuse
	case errors.Is(err, autherr.ErrInvalidSession):
		result = metrics.ResultRejected
	default:
		result = metrics.ResultError
	}
	s.metrics.Refresh(result)
	return pair, err
}

func (s *Service) refresh(ctx context.Context, sessionID, refreshToken string) (TokenPair, error) {
	log := logger.FromWithFields(ctx,
		logger.Layer("service"),
		logger.Component("authn.refresh"),
		logger.Op("Refresh"),
	)

	// Paso 1: el refresh token tiene que ser un JWT nuestro de tipo refresh
	v, err := s.codec.Verify(refreshToken)
	if err != nil {
		log.Debug("refresh token rejected", logger.Err(err))
		return TokenPair{}, autherr.ErrInvalidSession
	}
	if v.TokenType != types.TokenRefresh || v.SessionID == "" {
		log.Debug("not a refresh token", logger.String("token_type", string(v.TokenType)))
		return TokenPair{}, autherr.ErrInvalidSession
	}
	if sessionID == "" {
		sessionID = v.SessionID
	}
	if sessionID != v.SessionID {
		log.Debug("session id mismatch", logger.SessionID(sessionID))
		return TokenPair{}, autherr.ErrInvalidSession
	}
	log = log.With(logger.SessionID(sessionID), logger.UserID(v.Subject))

	// Paso 2: releer el usuario (rol vigente, cuenta habilitada)
	u, err := s.users.GetByID(ctx, v.Subject)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		log.Info("refresh for deleted user, revoking session")
		_ = s.sessions.Revoke(ctx, sessionID)
		return TokenPair{}, autherr.ErrInvalidSession
	case err != nil:
		log.Error("user lookup failed", logger.Err(err))
		return TokenPair{}, autherr.Unavailable(fmt.Errorf("get user: %w", err))
	}
	if u.Disabled {
		log.Info("refresh for disabled account, revoking session", logger.ErrKind(autherr.Kind(autherr.ErrAccountDisabled)))
		if err := s.sessions.Revoke(ctx, sessionID); err != nil {
			return TokenPair{}, err
		}
		// account_disabled queda solo en el log; el cliente ve invalid_session
		return TokenPair{}, autherr.ErrInvalidSession
	}

	// Paso 3: rotación atómica
	issued, err := s.sessions.Rotate(ctx, sessionID, refreshToken)
	if err != nil {
		if errors.Is(err, autherr.ErrReuseDetected) {
			log.Warn("refresh token reuse", logger.ErrKind(autherr.Kind(err)))
		}
		return TokenPair{}, err
	}
	if issued.UserID != u.ID {
		log.Error("session owner does not match token subject")
		_ = s.sessions.Revoke(ctx, sessionID)
		return TokenPair{}, autherr.ErrInvalidSession
	}

	// Paso 4: access token con el rol actual
	access, accessExp, err := s.issueAccess(u, sessionID)
	if err != nil {
		log.Error("issue access token failed", logger.Err(err))
		return TokenPair{}, fmt.Errorf("issue access token: %w", err)
	}

	log.Debug("refresh ok")
	return TokenPair{
		AccessToken:      access,
		RefreshToken:     issued.RefreshToken,
		TokenType:        "Bearer",
		SessionID:        sessionID,
		UserID:           u.ID,
		Role:             u.Role,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: issued.ExpiresAt,
	}, nil
}

// Logout revoca la sesión. Es idempotente.
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if err := s.sessions.Revoke(ctx, sessionID); err != nil {
		logger.From(ctx).Error("logout failed",
			logger.Component("authn.logout"), logger.SessionID(sessionID), logger.Err(err))
		return err
	}
	return nil
}

// LogoutWithToken revoca la sesión dueña de refreshToken. Un token inválido
// o vencido no es error: la sesión ya no es utilizable.
func (s *Service) LogoutWithToken(ctx context.Context, refreshToken string) error {
	v, err := s.codec.Verify(refreshToken)
	if err != nil || v.TokenType != types.TokenRefresh || v.SessionID == "" {
		return nil
	}
	if !s.sessions.IsValid(ctx, v.SessionID, refreshToken) {
		return nil
	}
	return s.Logout(ctx, v.SessionID)
}

// LogoutAll revoca todas las sesiones activas del usuario.
func (s *Service) LogoutAll(ctx context.Context, userID string) (int, error) {
	n, err := s.sessions.RevokeAll(ctx, userID)
	if err != nil {
		return 0, err
	}
	logger.From(ctx).Info("all sessions revoked",
		logger.Component("authn.logout"), logger.UserID(userID), logger.Count(n))
	return n, nil
}
