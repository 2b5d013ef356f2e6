// Package config carga la configuración del servicio: config.yaml opcional,
// .env (godotenv) y variables de entorno, en ese orden de prioridad creciente.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	jwtx "github.com/dropDatabas3/camguard/internal/jwt"
)

var (
	ErrMissingSecret = errors.New("config: SECRET_KEY is required")
	ErrInvalid       = errors.New("config: invalid value")
)

type Config struct {
	App struct {
		// dev | test | prod
		Env      string `yaml:"app_env"`
		LogLevel string `yaml:"log_level"`
	} `yaml:"app"`

	Server struct {
		Addr               string   `yaml:"addr"`
		CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`
		ShutdownTimeout    string   `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	Storage struct {
		// postgres | sqlite | memory
		Driver          string `yaml:"driver"`
		DSN             string `yaml:"dsn"`
		MaxOpenConns    int    `yaml:"max_open_conns"`
		MaxIdleConns    int    `yaml:"max_idle_conns"`
		ConnMaxLifetime string `yaml:"conn_max_lifetime"`
	} `yaml:"storage"`

	JWT struct {
		SecretKey                string `yaml:"secret_key"`
		Algorithm                string `yaml:"algorithm"`
		PrivateKeyFile           string `yaml:"private_key_file"`
		PublicKeyFile            string `yaml:"public_key_file"`
		KID                      string `yaml:"kid"`
		Issuer                   string `yaml:"issuer"`
		Leeway                   string `yaml:"leeway"`
		AccessTokenExpireMinutes int    `yaml:"access_token_expire_minutes"`
		RefreshTokenExpireDays   int    `yaml:"refresh_token_expire_days"`
	} `yaml:"jwt"`

	Bootstrap struct {
		// nil = default (true)
		EnableFirstUserAdmin *bool  `yaml:"enable_first_user_admin"`
		AdminUsername        string `yaml:"admin_username"`
		AdminPassword        string `yaml:"admin_password"`
	} `yaml:"bootstrap"`

	Password struct {
		BlacklistPath string `yaml:"blacklist_path"`
		Argon2        struct {
			MemoryKiB   uint32 `yaml:"memory_kib"`
			Time        uint32 `yaml:"time"`
			Parallelism uint8  `yaml:"parallelism"`
		} `yaml:"argon2"`
	} `yaml:"password"`

	Rate struct {
		Login struct {
			Limit  int    `yaml:"limit"`
			Window string `yaml:"window"`
		} `yaml:"login"`
		Redis struct {
			Addr   string `yaml:"addr"`
			DB     int    `yaml:"db"`
			Prefix string `yaml:"prefix"`
		} `yaml:"redis"`
	} `yaml:"rate"`

	Session struct {
		PurgeSchedule string `yaml:"purge_schedule"`
		Retention     string `yaml:"retention"`
	} `yaml:"session"`
}

// LoadDotEnv carga los .env indicados (o ".env") si existen. No pisa
// variables ya definidas en el entorno.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("config: load %s: %w", p, err)
		}
	}
	return nil
}

// Load lee path (si no está vacío), aplica defaults y overrides de entorno.
// No valida: llamar Validate antes de usar la config para servir requests.
func Load(path string) (*Config, error) {
	var c Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	c.applyEnvOverrides()
	c.applyDefaults()
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.ShutdownTimeout == "" {
		c.Server.ShutdownTimeout = "15s"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "sqlite"
	}
	if c.Storage.Driver == "sqlite" && c.Storage.DSN == "" {
		c.Storage.DSN = "camguard.db"
	}
	if c.Storage.ConnMaxLifetime == "" {
		c.Storage.ConnMaxLifetime = "1h"
	}
	if c.JWT.Algorithm == "" {
		c.JWT.Algorithm = jwtx.DefaultAlgorithm
	}
	if c.JWT.Issuer == "" {
		c.JWT.Issuer = "camguard"
	}
	if c.JWT.Leeway == "" {
		c.JWT.Leeway = "5s"
	}
	if c.JWT.AccessTokenExpireMinutes == 0 {
		c.JWT.AccessTokenExpireMinutes = 30
	}
	if c.JWT.RefreshTokenExpireDays == 0 {
		c.JWT.RefreshTokenExpireDays = 30
	}
	if c.Bootstrap.EnableFirstUserAdmin == nil {
		v := true
		c.Bootstrap.EnableFirstUserAdmin = &v
	}
	if c.Rate.Login.Limit == 0 {
		c.Rate.Login.Limit = 10
	}
	if c.Rate.Login.Window == "" {
		c.Rate.Login.Window = "1m"
	}
	if c.Rate.Redis.Prefix == "" {
		c.Rate.Redis.Prefix = "camguard:rl:"
	}
	if c.Session.PurgeSchedule == "" {
		c.Session.PurgeSchedule = "@hourly"
	}
	if c.Session.Retention == "" {
		c.Session.Retention = "168h"
	}
}

// ---- Helpers env ----

func getEnvStr(key string) (string, bool) {
	v := os.Getenv(key)
	return v, v != ""
}
func getEnvInt(key string) (int, bool) {
	if s, ok := getEnvStr(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i, true
		}
	}
	return 0, false
}
func getEnvBool(key string) (bool, bool) {
	if s, ok := getEnvStr(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return b, true
		}
	}
	return false, false
}
func getEnvCSV(key string) ([]string, bool) {
	if s, ok := getEnvStr(key); ok {
		parts := strings.Split(s, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				out = append(out, p)
			}
		}
		return out, true
	}
	return nil, false
}

// applyEnvOverrides: pisa config.yaml con variables de entorno.
func (c *Config) applyEnvOverrides() {
	// APP
	if v, ok := getEnvStr("APP_ENV"); ok {
		c.App.Env = strings.ToLower(v)
	}
	if v, ok := getEnvStr("LOG_LEVEL"); ok {
		c.App.LogLevel = strings.ToLower(v)
	}

	// SERVER
	if v, ok := getEnvStr("SERVER_ADDR"); ok {
		c.Server.Addr = v
	}
	if v, ok := getEnvCSV("SERVER_CORS_ALLOWED_ORIGINS"); ok {
		c.Server.CORSAllowedOrigins = v
	}

	// STORAGE
	if v, ok := getEnvStr("STORAGE_DRIVER"); ok {
		c.Storage.Driver = strings.ToLower(v)
	}
	if v, ok := getEnvStr("STORAGE_DSN"); ok {
		c.Storage.DSN = v
	}
	if v, ok := getEnvInt("STORAGE_MAX_OPEN_CONNS"); ok {
		c.Storage.MaxOpenConns = v
	}

	// JWT
	if v, ok := getEnvStr("SECRET_KEY"); ok {
		c.JWT.SecretKey = v
	}
	if v, ok := getEnvStr("JWT_ALGORITHM"); ok {
		c.JWT.Algorithm = strings.ToUpper(strings.TrimSpace(v))
		if c.JWT.Algorithm == "EDDSA" {
			c.JWT.Algorithm = "EdDSA"
		}
	}
	if v, ok := getEnvStr("JWT_PRIVATE_KEY_FILE"); ok {
		c.JWT.PrivateKeyFile = v
	}
	if v, ok := getEnvStr("JWT_PUBLIC_KEY_FILE"); ok {
		c.JWT.PublicKeyFile = v
	}
	if v, ok := getEnvStr("JWT_KID"); ok {
		c.JWT.KID = v
	}
	if v, ok := getEnvStr("JWT_ISSUER"); ok {
		c.JWT.Issuer = v
	}
	if v, ok := getEnvStr("JWT_LEEWAY"); ok {
		c.JWT.Leeway = v
	}
	if v, ok := getEnvInt("ACCESS_TOKEN_EXPIRE_MINUTES"); ok {
		c.JWT.AccessTokenExpireMinutes = v
	}
	if v, ok := getEnvInt("REFRESH_TOKEN_EXPIRE_DAYS"); ok {
		c.JWT.RefreshTokenExpireDays = v
	}

	// BOOTSTRAP
	if v, ok := getEnvBool("ENABLE_FIRST_USER_ADMIN"); ok {
		c.Bootstrap.EnableFirstUserAdmin = &v
	}
	if v, ok := getEnvStr("FIRST_ADMIN_USERNAME"); ok {
		c.Bootstrap.AdminUsername = v
	}
	if v, ok := getEnvStr("FIRST_ADMIN_PASSWORD"); ok {
		c.Bootstrap.AdminPassword = v
	}

	// PASSWORD
	if v, ok := getEnvStr("PASSWORD_BLACKLIST_PATH"); ok {
		c.Password.BlacklistPath = v
	}

	// RATE
	if v, ok := getEnvInt("RATE_LOGIN_LIMIT"); ok {
		c.Rate.Login.Limit = v
	}
	if v, ok := getEnvStr("RATE_LOGIN_WINDOW"); ok {
		c.Rate.Login.Window = v
	}
	if v, ok := getEnvStr("REDIS_ADDR"); ok {
		c.Rate.Redis.Addr = v
	}
	if v, ok := getEnvInt("REDIS_DB"); ok {
		c.Rate.Redis.DB = v
	}

	// SESSION
	if v, ok := getEnvStr("SESSION_PURGE_SCHEDULE"); ok {
		c.Session.PurgeSchedule = v
	}
	if v, ok := getEnvStr("SESSION_RETENTION"); ok {
		c.Session.Retention = v
	}
}

// ---- Accessors tipados (válidos después de Validate) ----

func (c *Config) AccessTTL() time.Duration {
	return time.Duration(c.JWT.AccessTokenExpireMinutes) * time.Minute
}

func (c *Config) RefreshTTL() time.Duration {
	return time.Duration(c.JWT.RefreshTokenExpireDays) * 24 * time.Hour
}

func (c *Config) FirstUserAdmin() bool {
	return c.Bootstrap.EnableFirstUserAdmin == nil || *c.Bootstrap.EnableFirstUserAdmin
}

// Leeway es la tolerancia de reloj configurada. JWT_LEEWAY=0s la desactiva.
func (c *Config) Leeway() time.Duration { return mustDur(c.JWT.Leeway) }

func (c *Config) LoginWindow() time.Duration     { return mustDur(c.Rate.Login.Window) }
func (c *Config) Retention() time.Duration       { return mustDur(c.Session.Retention) }
func (c *Config) ShutdownTimeout() time.Duration { return mustDur(c.Server.ShutdownTimeout) }
func (c *Config) ConnMaxLifetime() time.Duration { return mustDur(c.Storage.ConnMaxLifetime) }

func mustDur(s string) time.Duration {
	d, _ := time.ParseDuration(strings.TrimSpace(s))
	return d
}

// CodecOptions traduce la config a jwtx.Options. El codec toma Leeway cero
// como DefaultLeeway, así que un cero explícito viaja como negativo.
func (c *Config) CodecOptions() jwtx.Options {
	leeway := c.Leeway()
	if leeway == 0 {
		leeway = -1
	}
	return jwtx.Options{Issuer: c.JWT.Issuer, Leeway: leeway}
}

// KeyConfig arma el material de firma. Para algoritmos asimétricos lee los
// PEM de disco.
func (c *Config) KeyConfig() (jwtx.KeyConfig, error) {
	kc := jwtx.KeyConfig{Algorithm: c.JWT.Algorithm, KID: c.JWT.KID}
	if jwtx.IsHMAC(c.JWT.Algorithm) {
		kc.Secret = []byte(c.JWT.SecretKey)
		return kc, nil
	}
	if c.JWT.PrivateKeyFile != "" {
		b, err := os.ReadFile(c.JWT.PrivateKeyFile)
		if err != nil {
			return kc, fmt.Errorf("config: read private key: %w", err)
		}
		kc.PrivateKeyPEM = b
	}
	if c.JWT.PublicKeyFile != "" {
		b, err := os.ReadFile(c.JWT.PublicKeyFile)
		if err != nil {
			return kc, fmt.Errorf("config: read public key: %w", err)
		}
		kc.PublicKeyPEM = b
	}
	return kc, nil
}

// Validate chequea lo que impide arrancar: sin SECRET_KEY el proceso no
// debe servir requests.
func (c *Config) Validate() error {
	var errs []error
	if !jwtx.KnownAlgorithm(c.JWT.Algorithm) {
		errs = append(errs, fmt.Errorf("%w: JWT_ALGORITHM %q", ErrInvalid, c.JWT.Algorithm))
	}
	if jwtx.IsHMAC(c.JWT.Algorithm) {
		if strings.TrimSpace(c.JWT.SecretKey) == "" {
			errs = append(errs, ErrMissingSecret)
		}
	} else if c.JWT.PrivateKeyFile == "" {
		errs = append(errs, fmt.Errorf("%w: JWT_PRIVATE_KEY_FILE required for %s", ErrInvalid, c.JWT.Algorithm))
	}
	if c.JWT.AccessTokenExpireMinutes <= 0 {
		errs = append(errs, fmt.Errorf("%w: ACCESS_TOKEN_EXPIRE_MINUTES must be > 0", ErrInvalid))
	}
	if c.JWT.RefreshTokenExpireDays <= 0 {
		errs = append(errs, fmt.Errorf("%w: REFRESH_TOKEN_EXPIRE_DAYS must be > 0", ErrInvalid))
	} else if c.RefreshTTL() <= c.AccessTTL() {
		errs = append(errs, fmt.Errorf("%w: refresh lifetime must exceed access lifetime", ErrInvalid))
	}
	switch c.Storage.Driver {
	case "postgres", "sqlite", "memory":
	default:
		errs = append(errs, fmt.Errorf("%w: STORAGE_DRIVER %q", ErrInvalid, c.Storage.Driver))
	}
	if c.Storage.Driver == "postgres" && c.Storage.DSN == "" {
		errs = append(errs, fmt.Errorf("%w: STORAGE_DSN required for postgres", ErrInvalid))
	}
	for name, v := range map[string]string{
		"JWT_LEEWAY":        c.JWT.Leeway,
		"RATE_LOGIN_WINDOW": c.Rate.Login.Window,
		"SESSION_RETENTION": c.Session.Retention,
		"shutdown_timeout":  c.Server.ShutdownTimeout,
		"conn_max_lifetime": c.Storage.ConnMaxLifetime,
	} {
		if d, err := time.ParseDuration(strings.TrimSpace(v)); err != nil || d < 0 {
			errs = append(errs, fmt.Errorf("%w: %s %q", ErrInvalid, name, v))
		}
	}
	return errors.Join(errs...)
}
