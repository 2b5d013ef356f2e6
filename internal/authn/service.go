// Package authn implementa el servicio de autenticación: login, refresh con
// rotación, logout y verificación de bearer tokens, más los flujos de cuenta
// (registro, cambio de password, personal access tokens).
package authn

import (
	"sync"
	"time"

	"github.com/dropDatabas3/camguard/internal/domain/repository"
	"github.com/dropDatabas3/camguard/internal/domain/types"
	jwtx "github.com/dropDatabas3/camguard/internal/jwt"
	"github.com/dropDatabas3/camguard/internal/metrics"
	"github.com/dropDatabas3/camguard/internal/rate"
	"github.com/dropDatabas3/camguard/internal/security/password"
	"github.com/dropDatabas3/camguard/internal/session"
)

const (
	DefaultAccessTTL  = 30 * time.Minute
	DefaultRefreshTTL = 30 * 24 * time.Hour
	// PersonalTokenMaxTTL es la vida de un PAT pedido sin expiración.
	PersonalTokenMaxTTL = 100 * 365 * 24 * time.Hour
)

// Deps contiene las dependencias del servicio.
type Deps struct {
	Users    repository.UserRepository
	Sessions repository.SessionRepository
	Codec    *jwtx.Codec
	Hasher   *password.Hasher
	Policy   password.Policy
	// Limiter aplica al login por username. nil = sin límite.
	Limiter rate.Limiter
	// Metrics puede ser nil.
	Metrics *metrics.Auth

	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// TokenPair es el resultado de login y refresh.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	TokenType        string
	SessionID        string
	UserID           string
	Role             types.Role
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// ExpiresIn devuelve la vida restante del access token en segundos.
func (p TokenPair) ExpiresIn(now time.Time) int64 {
	d := p.AccessExpiresAt.Sub(now)
	if d < 0 {
		return 0
	}
	return int64(d / time.Second)
}

type Service struct {
	users    repository.UserRepository
	sessions *session.Store
	codec    *jwtx.Codec
	hasher   *password.Hasher
	policy   password.Policy
	limiter  rate.Limiter
	metrics  *metrics.Auth

	accessTTL time.Duration

	dummyOnce sync.Once
	dummyHash string
}

// New arma el servicio. El CredentialStore usa refresh tokens firmados por
// el mismo codec (tipo "refresh", con sid y exp = expiración de la sesión).
func New(d Deps) *Service {
	if d.AccessTTL <= 0 {
		d.AccessTTL = DefaultAccessTTL
	}
	if d.RefreshTTL <= 0 {
		d.RefreshTTL = DefaultRefreshTTL
	}
	if d.Hasher == nil {
		d.Hasher = password.NewHasher(password.Default)
	}
	if d.Limiter == nil {
		d.Limiter = rate.Noop{}
	}
	s := &Service{
		users:     d.Users,
		codec:     d.Codec,
		hasher:    d.Hasher,
		policy:    d.Policy,
		limiter:   d.Limiter,
		metrics:   d.Metrics,
		accessTTL: d.AccessTTL,
	}
	s.sessions = session.NewStore(d.Sessions, session.Config{
		RefreshTTL: d.RefreshTTL,
		Minter:     refreshMinter{codec: d.Codec, ttl: d.RefreshTTL},
		Now:        d.Codec.Now,
	})
	return s
}

// Sessions expone el CredentialStore subyacente (janitor, listados).
func (s *Service) Sessions() *session.Store { return s.sessions }

// AccessTTL devuelve la vida configurada de los access tokens.
func (s *Service) AccessTTL() time.Duration { return s.accessTTL }

func (s *Service) now() time.Time { return s.codec.Now().UTC() }

// refreshMinter emite el refresh token de una sesión como JWT de tipo
// refresh. El jti aleatorio hace que cada rotación produzca un hash distinto.
type refreshMinter struct {
	codec *jwtx.Codec
	ttl   time.Duration
}

func (m refreshMinter) Mint(userID, sessionID string, expiresAt time.Time) (string, error) {
	tok, _, err := m.codec.Issue(userID, "", types.TokenRefresh, m.ttl,
		jwtx.WithSessionID(sessionID), jwtx.WithExpiresAt(expiresAt))
	return tok, err
}

// dummyVerify gasta el mismo tiempo que un Verify real para que un usuario
// inexistente no se distinga por latencia.
func (s *Service) dummyVerify(plain string) {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = s.hasher.Hash("camguard-timing-equalizer")
	})
	_ = s.hasher.Verify(plain, s.dummyHash)
}

func (s *Service) issueAccess(u *repository.User, sessionID string) (string, time.Time, error) {
	return s.codec.Issue(u.ID, u.Role, types.TokenAccess, s.accessTTL, jwtx.WithSessionID(sessionID))
}
