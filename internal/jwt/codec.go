// Package jwt emite y verifica los tokens firmados del servicio (access,
// refresh y PAT).
package jwt

import (
	"errors"
	"fmt"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/dropDatabas3/camguard/internal/domain/autherr"
	"github.com/dropDatabas3/camguard/internal/domain/types"
)

// DefaultLeeway es la tolerancia de reloj al validar exp/nbf.
const DefaultLeeway = 5 * time.Second

var ErrInvalidLifetime = errors.New("jwt: lifetime must be positive")

// Claims es el payload de todos los tokens emitidos.
type Claims struct {
	Role      types.Role      `json:"role,omitempty"`
	TokenType types.TokenType `json:"token_type"`
	SessionID string          `json:"sid,omitempty"`
	jwtv5.RegisteredClaims
}

// Verified es el resultado de una verificación exitosa.
type Verified struct {
	Subject   string
	Role      types.Role
	TokenType types.TokenType
	SessionID string
	ID        string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Identity convierte el token verificado en contexto de identidad.
func (v Verified) Identity() types.Identity {
	return types.Identity{
		SubjectID: v.Subject,
		Role:      v.Role,
		SessionID: v.SessionID,
		TokenType: v.TokenType,
		ExpiresAt: v.ExpiresAt,
	}
}

type Options struct {
	// Issuer se escribe en "iss" y se exige al verificar si no está vacío.
	Issuer string
	// Leeway para exp/nbf. Cero = DefaultLeeway; negativo = sin tolerancia.
	Leeway time.Duration
	// Now permite inyectar el reloj (tests). Default time.Now.
	Now func() time.Time
}

// Codec firma y verifica tokens con una única clave de proceso.
type Codec struct {
	keys   keySet
	issuer string
	leeway time.Duration
	now    func() time.Time
	parser *jwtv5.Parser
}

func NewCodec(kc KeyConfig, opts Options) (*Codec, error) {
	ks, err := loadKeys(kc)
	if err != nil {
		return nil, err
	}
	c := &Codec{
		keys:   ks,
		issuer: opts.Issuer,
		leeway: opts.Leeway,
		now:    opts.Now,
	}
	if c.leeway == 0 {
		c.leeway = DefaultLeeway
	} else if c.leeway < 0 {
		c.leeway = 0
	}
	if c.now == nil {
		c.now = time.Now
	}

	popts := []jwtv5.ParserOption{
		jwtv5.WithValidMethods([]string{ks.method.Alg()}),
		jwtv5.WithLeeway(c.leeway),
		jwtv5.WithTimeFunc(c.now),
		jwtv5.WithExpirationRequired(),
		jwtv5.WithIssuedAt(),
	}
	if c.issuer != "" {
		popts = append(popts, jwtv5.WithIssuer(c.issuer))
	}
	c.parser = jwtv5.NewParser(popts...)
	return c, nil
}

// Algorithm devuelve el alg configurado (ej: "HS256").
func (c *Codec) Algorithm() string { return c.keys.method.Alg() }

// Now expone el reloj del codec para que otros componentes compartan la
// misma noción de tiempo.
func (c *Codec) Now() time.Time { return c.now() }

type issueConfig struct {
	sessionID string
	expiresAt time.Time
	id        string
}

type IssueOption func(*issueConfig)

// WithSessionID agrega el claim sid.
func WithSessionID(sid string) IssueOption {
	return func(ic *issueConfig) { ic.sessionID = sid }
}

// WithExpiresAt fija la expiración absoluta. Debe ser <= now + lifetime.
func WithExpiresAt(t time.Time) IssueOption {
	return func(ic *issueConfig) { ic.expiresAt = t }
}

// WithTokenID fija el jti (default: uuid v4).
func WithTokenID(id string) IssueOption {
	return func(ic *issueConfig) { ic.id = id }
}

// Issue firma un token para subject. Devuelve el token y su expiración.
func (c *Codec) Issue(subject string, role types.Role, typ types.TokenType, lifetime time.Duration, opts ...IssueOption) (string, time.Time, error) {
	if c.keys.sign == nil {
		return "", time.Time{}, ErrSigningKeyMissing
	}
	if lifetime <= 0 {
		return "", time.Time{}, ErrInvalidLifetime
	}
	if subject == "" {
		return "", time.Time{}, errors.New("jwt: empty subject")
	}
	if !typ.Valid() {
		return "", time.Time{}, fmt.Errorf("jwt: invalid token type %q", typ)
	}
	if typ.Bearer() && !role.Valid() {
		return "", time.Time{}, fmt.Errorf("jwt: invalid role %q", role)
	}

	ic := issueConfig{}
	for _, o := range opts {
		o(&ic)
	}

	now := c.now().UTC().Truncate(time.Second)
	exp := now.Add(lifetime)
	if !ic.expiresAt.IsZero() {
		capped := ic.expiresAt.UTC().Truncate(time.Second)
		if capped.After(exp) {
			return "", time.Time{}, fmt.Errorf("jwt: expiry %s beyond lifetime", capped)
		}
		exp = capped
	}
	if !exp.After(now) {
		return "", time.Time{}, ErrInvalidLifetime
	}
	if ic.id == "" {
		ic.id = uuid.NewString()
	}

	claims := Claims{
		Role:      role,
		TokenType: typ,
		SessionID: ic.sessionID,
		RegisteredClaims: jwtv5.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   subject,
			ID:        ic.id,
			IssuedAt:  jwtv5.NewNumericDate(now),
			NotBefore: jwtv5.NewNumericDate(now),
			ExpiresAt: jwtv5.NewNumericDate(exp),
		},
	}
	tk := jwtv5.NewWithClaims(c.keys.method, claims)
	tk.Header["typ"] = "JWT"
	if c.keys.kid != "" {
		tk.Header["kid"] = c.keys.kid
	}
	signed, err := tk.SignedString(c.keys.sign)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

// tokenError oculta el motivo concreto: Error() siempre es "invalid token",
// pero la causa queda accesible con errors.Is/As para logs internos.
type tokenError struct{ cause error }

func (e *tokenError) Error() string   { return autherr.ErrInvalidToken.Error() }
func (e *tokenError) Unwrap() []error { return []error{autherr.ErrInvalidToken, e.cause} }

func invalid(cause error) error { return &tokenError{cause: cause} }

// Verify chequea firma, algoritmo, emisor, exp y nbf (con leeway). Cualquier
// fallo devuelve un error que matchea autherr.ErrInvalidToken.
func (c *Codec) Verify(token string) (Verified, error) {
	if token == "" {
		return Verified{}, invalid(jwtv5.ErrTokenMalformed)
	}
	var claims Claims
	tk, err := c.parser.ParseWithClaims(token, &claims, c.keyfunc)
	if err != nil {
		return Verified{}, invalid(err)
	}
	if !tk.Valid {
		return Verified{}, invalid(jwtv5.ErrTokenUnverifiable)
	}
	if claims.Subject == "" || !claims.TokenType.Valid() {
		return Verified{}, invalid(jwtv5.ErrTokenInvalidClaims)
	}
	if claims.TokenType.Bearer() && !claims.Role.Valid() {
		return Verified{}, invalid(jwtv5.ErrTokenInvalidClaims)
	}

	v := Verified{
		Subject:   claims.Subject,
		Role:      claims.Role,
		TokenType: claims.TokenType,
		SessionID: claims.SessionID,
		ID:        claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}
	if claims.IssuedAt != nil {
		v.IssuedAt = claims.IssuedAt.Time
	}
	return v, nil
}

func (c *Codec) keyfunc(t *jwtv5.Token) (any, error) {
	if t.Method.Alg() != c.keys.method.Alg() {
		return nil, jwtv5.ErrTokenSignatureInvalid
	}
	if kid, _ := t.Header["kid"].(string); c.keys.kid != "" && kid != c.keys.kid {
		return nil, jwtv5.ErrTokenUnverifiable
	}
	return c.keys.verify, nil
}
