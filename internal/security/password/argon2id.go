// Package password hashea y verifica passwords con argon2id y valida la
// política de passwords de usuarios.
package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/argon2"
)

type Params struct {
	Memory      uint32 // KiB
	Time        uint32
	Parallelism uint8
	SaltLen     uint32
	KeyLen      uint32
}

var Default = Params{Memory: 64 * 1024, Time: 3, Parallelism: 1, SaltLen: 16, KeyLen: 32}

// límites al decodificar: un hash corrupto no debe disparar un cómputo enorme.
const (
	maxMemory      = 1 << 20 // 1 GiB
	maxTime        = 16
	maxParallelism = 16
)

var (
	ErrEmptyPassword = errors.New("empty password")
	errMalformed     = errors.New("malformed argon2id hash")
)

// Hasher produce strings PHC: $argon2id$v=19$m=...,t=...,p=...$<saltB64>$<dkB64>
type Hasher struct {
	params Params
	rand   io.Reader
}

// NewHasher crea un Hasher. Los campos en cero toman el valor de Default.
func NewHasher(p Params) *Hasher {
	if p.Memory == 0 {
		p.Memory = Default.Memory
	}
	if p.Time == 0 {
		p.Time = Default.Time
	}
	if p.Parallelism == 0 {
		p.Parallelism = Default.Parallelism
	}
	if p.SaltLen == 0 {
		p.SaltLen = Default.SaltLen
	}
	if p.KeyLen == 0 {
		p.KeyLen = Default.KeyLen
	}
	return &Hasher{params: p, rand: rand.Reader}
}

func (h *Hasher) Params() Params { return h.params }

// Hash genera un salt nuevo en cada llamada, así que dos hashes de la misma
// password son distintos.
func (h *Hasher) Hash(plain string) (string, error) {
	if plain == "" {
		return "", ErrEmptyPassword
	}
	p := h.params
	salt := make([]byte, p.SaltLen)
	if _, err := io.ReadFull(h.rand, salt); err != nil {
		return "", fmt.Errorf("read salt: %w", err)
	}
	dk := argon2.IDKey([]byte(plain), salt, p.Time, p.Memory, p.Parallelism, p.KeyLen)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, p.Memory, p.Time, p.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(dk),
	), nil
}

// Verify retorna false ante cualquier hash malformado; nunca falla.
// La comparación final del digest es en tiempo constante.
func (h *Hasher) Verify(plain, encoded string) bool {
	p, salt, want, err := decode(encoded)
	if err != nil {
		return false
	}
	got := argon2.IDKey([]byte(plain), salt, p.Time, p.Memory, p.Parallelism, uint32(len(want)))
	return subtle.ConstantTimeCompare(got, want) == 1
}

// NeedsRehash indica si encoded fue generado con parámetros distintos a los
// actuales del Hasher (o no es decodificable).
func (h *Hasher) NeedsRehash(encoded string) bool {
	p, salt, key, err := decode(encoded)
	if err != nil {
		return true
	}
	cur := h.params
	return p.Memory != cur.Memory || p.Time != cur.Time || p.Parallelism != cur.Parallelism ||
		uint32(len(salt)) != cur.SaltLen || uint32(len(key)) != cur.KeyLen
}

func decode(encoded string) (Params, []byte, []byte, error) {
	parts := strings.Split(encoded, "$")
	// "", "argon2id", "v=19", "m=..,t=..,p=..", salt, dk
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return Params{}, nil, nil, errMalformed
	}
	var v int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &v); err != nil || v != argon2.Version {
		return Params{}, nil, nil, errMalformed
	}
	var m, t, par uint32
	if n, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &m, &t, &par); err != nil || n != 3 {
		return Params{}, nil, nil, errMalformed
	}
	if m == 0 || m > maxMemory || t == 0 || t > maxTime || par == 0 || par > maxParallelism || m < 8*par {
		return Params{}, nil, nil, errMalformed
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil || len(salt) == 0 {
		return Params{}, nil, nil, errMalformed
	}
	dk, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(dk) < 16 {
		return Params{}, nil, nil, errMalformed
	}
	return Params{Memory: m, Time: t, Parallelism: uint8(par)}, salt, dk, nil
}
