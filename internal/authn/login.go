package authn

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dropDatabas3/camguard/internal/domain/autherr"
	"github.com/dropDatabas3/camguard/internal/domain/repository"
	"github.com/dropDatabas3/camguard/internal/metrics"
	"github.com/dropDatabas3/camguard/internal/observability/logger"
	"github.com/dropDatabas3/camguard/internal/security/password"
)

// Login valida username/password y abre una sesión nueva.
//
// Usuario inexistente, password incorrecta y cuenta deshabilitada fallan
// todos con autherr.ErrInvalidCredentials (la deshabilitada además matchea
// autherr.ErrAccountDisabled para logs internos).
func (s *Service) Login(ctx context.Context, username, plain, device string) (TokenPair, error) {
	start := time.Now()
	log := logger.FromWithFields(ctx,
		logger.Layer("service"),
		logger.Component("authn.login"),
		logger.Op("Login"),
	)

	pair, err := s.login(ctx, log, username, plain, device)
	result := metrics.ResultOK
	switch {
	case err == nil:
	case errors.Is(err, autherr.ErrRateLimited):
		result = metrics.ResultLimited
	case errors.Is(err, autherr.ErrInvalidCredentials):
		result = metrics.ResultRejected
	default:
		result = metrics.ResultError
	}
	s.metrics.Login(result, time.Since(start).Seconds())
	return pair, err
}

func (s *Service) login(ctx context.Context, log *zap.Logger, username, plain, device string) (TokenPair, error) {
	// Paso 0: normalización
	username = password.NormalizeUsername(username)
	if username == "" || plain == "" {
		return TokenPair{}, autherr.ErrInvalidCredentials
	}
	log = log.With(logger.Username(username))

	// Paso 1: rate limit por username. Si el limiter falla se deja pasar.
	res, err := s.limiter.Allow(ctx, "login:"+username)
	if err != nil {
		log.Warn("rate limiter unavailable, allowing login", logger.Err(err))
	} else if !res.Allowed {
		log.Info("login rate limited", logger.Count(int(res.CurrentHits)))
		return TokenPair{}, &RateLimitError{RetryAfter: res.RetryAfter}
	}

	// Paso 2: buscar usuario y verificar password
	u, err := s.users.GetByUsername(ctx, username)
	if errors.Is(err, repository.ErrNotFound) {
		s.dummyVerify(plain)
		log.Debug("login for unknown user")
		return TokenPair{}, autherr.ErrInvalidCredentials
	}
	if err != nil {
		log.Error("user lookup failed", logger.Err(err))
		return TokenPair{}, autherr.Unavailable(fmt.Errorf("get user: %w", err))
	}
	log = log.With(logger.UserID(u.ID))

	if !s.hasher.Verify(plain, u.PasswordHash) {
		log.Debug("invalid password")
		return TokenPair{}, autherr.ErrInvalidCredentials
	}
	if u.Disabled {
		log.Info("login for disabled account")
		return TokenPair{}, autherr.ErrAccountDisabled
	}

	// Paso 3: upgrade transparente de parámetros argon2
	if s.hasher.NeedsRehash(u.PasswordHash) {
		s.rehash(ctx, log, u.ID, plain)
	}

	// Paso 4: sesión + tokens
	issued, err := s.sessions.Create(ctx, u.ID, device)
	if err != nil {
		log.Error("create session failed", logger.Err(err))
		return TokenPair{}, err
	}
	access, accessExp, err := s.issueAccess(u, issued.SessionID)
	if err != nil {
		log.Error("issue access token failed", logger.Err(err))
		_ = s.sessions.Revoke(ctx, issued.SessionID)
		return TokenPair{}, fmt.Errorf("issue access token: %w", err)
	}

	log.Info("login ok", logger.SessionID(issued.SessionID), logger.Role(u.Role.String()))
	return TokenPair{
		AccessToken:      access,
		RefreshToken:     issued.RefreshToken,
		TokenType:        "Bearer",
		SessionID:        issued.SessionID,
		UserID:           u.ID,
		Role:             u.Role,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: issued.ExpiresAt,
	}, nil
}

func (s *Service) rehash(ctx context.Context, log *zap.Logger, userID, plain string) {
	h, err := s.hasher.Hash(plain)
	if err != nil {
		log.Warn("password rehash failed", logger.Err(err))
		return
	}
	if err := s.users.UpdatePasswordHash(ctx, userID, h); err != nil {
		log.Warn("password rehash not stored", logger.Err(err))
		return
	}
	s.metrics.Rehashed()
	log.Debug("password hash upgraded")
}
