package authn

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dropDatabas3/camguard/internal/domain/autherr"
	"github.com/dropDatabas3/camguard/internal/domain/repository"
	"github.com/dropDatabas3/camguard/internal/domain/types"
	"github.com/dropDatabas3/camguard/internal/observability/logger"
)

// AuthenticateRequest verifica un bearer token (access o PAT) y devuelve la
// identidad. No consulta el storage y no refresca nada: un access token
// vencido falla con autherr.ErrInvalidToken.
//
// Acepta el token crudo o el header completo ("Bearer <token>"). Token
// ausente o sin forma de JWT es autherr.ErrUnauthenticated.
func (s *Service) AuthenticateRequest(ctx context.Context, bearer string) (types.Identity, error) {
	tok := ExtractBearer(bearer)
	if tok == "" || strings.Count(tok, ".") != 2 {
		return types.Identity{}, autherr.ErrUnauthenticated
	}
	v, err := s.codec.Verify(tok)
	if err != nil {
		return types.Identity{}, err
	}
	if !v.TokenType.Bearer() {
		return types.Identity{}, fmt.Errorf("%w: %s token used as bearer", autherr.ErrInvalidToken, v.TokenType)
	}
	return v.Identity(), nil
}

// ExtractBearer quita el prefijo "Bearer " (case-insensitive) si está.
func ExtractBearer(h string) string {
	h = strings.TrimSpace(h)
	if len(h) >= 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return h
}

// PersonalToken es un token de larga duración sin sesión asociada. No se
// puede revocar individualmente: vence o se invalida rotando la clave.
type PersonalToken struct {
	Token     string
	ExpiresAt time.Time
}

// IssuePersonalToken emite un PAT para el dueño de id. expiresInMinutes = 0
// significa PersonalTokenMaxTTL; negativo es autherr.ErrInvalidRequest.
// Solo se puede pedir con un access token de sesión, no con otro PAT.
func (s *Service) IssuePersonalToken(ctx context.Context, id types.Identity, expiresInMinutes int) (PersonalToken, error) {
	log := logger.FromWithFields(ctx,
		logger.Layer("service"),
		logger.Component("authn.pat"),
		logger.Op("IssuePersonalToken"),
		logger.UserID(id.SubjectID),
	)
	if expiresInMinutes < 0 {
		return PersonalToken{}, fmt.Errorf("%w: expires_in_minutes must be >= 0", autherr.ErrInvalidRequest)
	}
	if id.TokenType != types.TokenAccess {
		return PersonalToken{}, fmt.Errorf("%w: personal tokens require a session access token", autherr.ErrForbidden)
	}

	u, err := s.users.GetByID(ctx, id.SubjectID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return PersonalToken{}, autherr.ErrUnauthenticated
	case err != nil:
		return PersonalToken{}, autherr.Unavailable(fmt.Errorf("get user: %w", err))
	}
	if u.Disabled {
		log.Info("personal token denied for disabled account", logger.ErrKind(autherr.Kind(autherr.ErrAccountDisabled)))
		return PersonalToken{}, autherr.ErrUnauthenticated
	}

	ttl := PersonalTokenMaxTTL
	if expiresInMinutes > 0 {
		ttl = time.Duration(expiresInMinutes) * time.Minute
	}
	tok, exp, err := s.codec.Issue(u.ID, u.Role, types.TokenPersonal, ttl)
	if err != nil {
		log.Error("issue personal token failed", logger.Err(err))
		return PersonalToken{}, fmt.Errorf("issue personal token: %w", err)
	}
	log.Info("personal token issued", logger.Role(u.Role.String()))
	return PersonalToken{Token: tok, ExpiresAt: exp}, nil
}
