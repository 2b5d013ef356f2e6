package jwt

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"

	jwtv5 "github.com/golang-jwt/jwt/v5"
)

// DefaultAlgorithm es el algoritmo simétrico por defecto.
const DefaultAlgorithm = "HS256"

var (
	ErrEmptySecret       = errors.New("jwt: empty signing secret")
	ErrUnknownAlgorithm  = errors.New("jwt: unknown algorithm")
	ErrMissingKey        = errors.New("jwt: missing key material")
	ErrSigningKeyMissing = errors.New("jwt: codec has no signing key")
)

// KeyConfig describe el material de firma. Se pasa por valor al construir el
// Codec; nunca se lee de estado global.
type KeyConfig struct {
	// Algorithm: HS256/384/512, RS*, PS*, ES*, EdDSA. Vacío = HS256.
	Algorithm string
	// Secret para los algoritmos HMAC.
	Secret []byte
	// PEM para algoritmos asimétricos. Con solo PublicKeyPEM el codec verifica
	// pero no emite.
	PrivateKeyPEM []byte
	PublicKeyPEM  []byte
	// KID opcional que se setea en el header.
	KID string
}

type keySet struct {
	method jwtv5.SigningMethod
	sign   any // nil: solo verificación
	verify any
	kid    string
}

// IsHMAC indica si alg es uno de los algoritmos simétricos soportados.
func IsHMAC(alg string) bool {
	switch strings.ToUpper(alg) {
	case "HS256", "HS384", "HS512":
		return true
	}
	return false
}

// KnownAlgorithm indica si alg está soportado.
func KnownAlgorithm(alg string) bool {
	_, ok := methodFor(alg)
	return ok
}

func methodFor(alg string) (jwtv5.SigningMethod, bool) {
	if alg == "" {
		alg = DefaultAlgorithm
	}
	if strings.EqualFold(alg, "EdDSA") {
		return jwtv5.SigningMethodEdDSA, true
	}
	switch strings.ToUpper(alg) {
	case "HS256", "HS384", "HS512",
		"RS256", "RS384", "RS512",
		"PS256", "PS384", "PS512",
		"ES256", "ES384", "ES512":
		m := jwtv5.GetSigningMethod(strings.ToUpper(alg))
		return m, m != nil
	}
	return nil, false
}

func loadKeys(cfg KeyConfig) (keySet, error) {
	m, ok := methodFor(cfg.Algorithm)
	if !ok {
		return keySet{}, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, cfg.Algorithm)
	}
	ks := keySet{method: m, kid: cfg.KID}

	switch m.(type) {
	case *jwtv5.SigningMethodHMAC:
		if len(cfg.Secret) == 0 {
			return keySet{}, ErrEmptySecret
		}
		secret := append([]byte(nil), cfg.Secret...)
		ks.sign, ks.verify = secret, secret

	case *jwtv5.SigningMethodRSA, *jwtv5.SigningMethodRSAPSS:
		if len(cfg.PrivateKeyPEM) > 0 {
			priv, err := jwtv5.ParseRSAPrivateKeyFromPEM(cfg.PrivateKeyPEM)
			if err != nil {
				return keySet{}, fmt.Errorf("parse rsa private key: %w", err)
			}
			ks.sign, ks.verify = priv, &priv.PublicKey
		}
		if len(cfg.PublicKeyPEM) > 0 {
			pub, err := jwtv5.ParseRSAPublicKeyFromPEM(cfg.PublicKeyPEM)
			if err != nil {
				return keySet{}, fmt.Errorf("parse rsa public key: %w", err)
			}
			ks.verify = pub
		}

	case *jwtv5.SigningMethodECDSA:
		if len(cfg.PrivateKeyPEM) > 0 {
			priv, err := jwtv5.ParseECPrivateKeyFromPEM(cfg.PrivateKeyPEM)
			if err != nil {
				return keySet{}, fmt.Errorf("parse ec private key: %w", err)
			}
			ks.sign, ks.verify = priv, &priv.PublicKey
		}
		if len(cfg.PublicKeyPEM) > 0 {
			pub, err := jwtv5.ParseECPublicKeyFromPEM(cfg.PublicKeyPEM)
			if err != nil {
				return keySet{}, fmt.Errorf("parse ec public key: %w", err)
			}
			ks.verify = pub
		}

	case *jwtv5.SigningMethodEd25519:
		if len(cfg.PrivateKeyPEM) > 0 {
			priv, err := jwtv5.ParseEdPrivateKeyFromPEM(cfg.PrivateKeyPEM)
			if err != nil {
				return keySet{}, fmt.Errorf("parse ed25519 private key: %w", err)
			}
			edPriv, ok := priv.(ed25519.PrivateKey)
			if !ok {
				return keySet{}, fmt.Errorf("parse ed25519 private key: unexpected type %T", priv)
			}
			ks.sign, ks.verify = edPriv, edPriv.Public()
		}
		if len(cfg.PublicKeyPEM) > 0 {
			pub, err := jwtv5.ParseEdPublicKeyFromPEM(cfg.PublicKeyPEM)
			if err != nil {
				return keySet{}, fmt.Errorf("parse ed25519 public key: %w", err)
			}
			ks.verify = pub
		}
	}

	if ks.verify == nil {
		return keySet{}, fmt.Errorf("%w for %s", ErrMissingKey, m.Alg())
	}
	return ks, nil
}
