// Package bootstrap crea el primer administrador cuando el storage no tiene
// usuarios. Corre una vez al arrancar el proceso.
package bootstrap

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"

	"github.com/dropDatabas3/camguard/internal/domain/autherr"
	"github.com/dropDatabas3/camguard/internal/domain/repository"
	"github.com/dropDatabas3/camguard/internal/domain/types"
	"github.com/dropDatabas3/camguard/internal/observability/logger"
	"github.com/dropDatabas3/camguard/internal/security/password"
)

const (
	DefaultAdminUsername = "admin@camguard.local"
	generatedLength      = 20
)

// Config de bootstrap. Enabled corresponde a ENABLE_FIRST_USER_ADMIN.
type Config struct {
	Enabled  bool
	Username string
	// Password vacío = se genera uno y se devuelve en Result.
	Password string
}

type Deps struct {
	Users  repository.UserRepository
	Hasher *password.Hasher
	Now    func() time.Time
}

// Result describe lo que hizo Run. GeneratedPassword solo se completa
// cuando la password fue generada; nunca se loguea.
type Result struct {
	Created           bool
	Skipped           string // "users_exist" | "disabled"
	UserID            string
	Username          string
	GeneratedPassword string
}

type Service struct {
	cfg  Config
	deps Deps
}

func New(cfg Config, deps Deps) *Service {
	if cfg.Username == "" {
		cfg.Username = DefaultAdminUsername
	}
	if deps.Hasher == nil {
		deps.Hasher = password.NewHasher(password.Default)
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Service{cfg: cfg, deps: deps}
}

// Run crea el administrador si no hay usuarios y el flag está activo.
// Llamadas repetidas o concurrentes crean como mucho un usuario: el insert
// usa CreateIfEmpty y un ErrConflict cuenta como "ya hay usuarios".
func (s *Service) Run(ctx context.Context) (Result, error) {
	log := logger.FromWithFields(ctx, logger.Component("bootstrap"), logger.Op("Run"))

	// 1. ¿Ya hay usuarios?
	n, err := s.deps.Users.Count(ctx)
	if err != nil {
		return Result{}, autherr.Unavailable(fmt.Errorf("count users: %w", err))
	}
	if n > 0 {
		log.Debug("users present, bootstrap skipped", logger.Count(n))
		return Result{Skipped: "users_exist"}, nil
	}

	// 2. Flag apagado: el sistema queda con cero usuarios
	if !s.cfg.Enabled {
		log.Info("no users and first-user admin disabled; waiting for external onboarding")
		return Result{Skipped: "disabled"}, nil
	}

	// 3. Password configurada o generada
	plain := s.cfg.Password
	generated := ""
	if plain == "" {
		plain, err = GeneratePassword(generatedLength)
		if err != nil {
			return Result{}, fmt.Errorf("generate password: %w", err)
		}
		generated = plain
	}
	hash, err := s.deps.Hasher.Hash(plain)
	if err != nil {
		return Result{}, fmt.Errorf("hash password: %w", err)
	}

	// 4. Insert condicionado a tabla vacía
	u, err := s.deps.Users.CreateIfEmpty(ctx, repository.CreateUserInput{
		ID:           uuid.NewString(),
		Username:     password.NormalizeUsername(s.cfg.Username),
		PasswordHash: hash,
		Role:         types.RoleAdmin,
		CreatedAt:    s.deps.Now().UTC(),
	})
	if errors.Is(err, repository.ErrConflict) {
		log.Info("another instance bootstrapped first")
		return Result{Skipped: "users_exist"}, nil
	}
	if err != nil {
		return Result{}, autherr.Unavailable(fmt.Errorf("create admin: %w", err))
	}

	log.Info("first admin created", logger.UserID(u.ID), logger.Username(u.Username),
		logger.String("password_source", passwordSource(generated)))
	return Result{Created: true, UserID: u.ID, Username: u.Username, GeneratedPassword: generated}, nil
}

func passwordSource(generated string) string {
	if generated != "" {
		return "generated"
	}
	return "configured"
}

const (
	lowers  = "abcdefghijkmnopqrstuvwxyz"
	uppers  = "ABCDEFGHJKLMNPQRSTUVWXYZ"
	digits  = "23456789"
	symbols = "@$!%*?&"
)

// GeneratePassword devuelve una password aleatoria de n caracteres (mínimo
// 8) con al menos una minúscula, mayúscula, dígito y símbolo, de modo que
// cumple password.DefaultPolicy.
func GeneratePassword(n int) (string, error) {
	if n < 8 {
		n = 8
	}
	all := lowers + uppers + digits + symbols
	out := make([]byte, n)
	for i, set := range []string{lowers, uppers, digits, symbols} {
		c, err := pick(set)
		if err != nil {
			return "", err
		}
		out[i] = c
	}
	for i := 4; i < n; i++ {
		c, err := pick(all)
		if err != nil {
			return "", err
		}
		out[i] = c
	}
	// Fisher-Yates para no dejar las clases en posiciones fijas
	for i := n - 1; i > 0; i-- {
		j, err := rand.Int(rand.Reader, big.NewInt(int64(i+1)))
		if err != nil {
			return "", err
		}
		out[i], out[j.Int64()] = out[j.Int64()], out[i]
	}
	return string(out), nil
}

func pick(set string) (byte, error) {
	i, err := rand.Int(rand.Reader, big.NewInt(int64(len(set))))
	if err != nil {
		return 0, err
	}
	return set[i.Int64()], nil
}
