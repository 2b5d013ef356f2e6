package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"APP_ENV", "LOG_LEVEL", "SERVER_ADDR", "STORAGE_DRIVER", "STORAGE_DSN", "SECRET_KEY",
	"JWT_ALGORITHM", "ACCESS_TOKEN_EXPIRE_MINUTES", "REFRESH_TOKEN_EXPIRE_DAYS",
	"ENABLE_FIRST_USER_ADMIN", "FIRST_ADMIN_USERNAME", "FIRST_ADMIN_PASSWORD",
	"RATE_LOGIN_LIMIT", "REDIS_ADDR", "JWT_LEEWAY",
}

// clearEnv deja el entorno limpio para las claves que lee Load.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func TestDefaults(t *testing.T) {
	clearEnv(t)
	c, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "HS256", c.JWT.Algorithm)
	assert.Equal(t, 30*time.Minute, c.AccessTTL())
	assert.Equal(t, 30*24*time.Hour, c.RefreshTTL())
	assert.True(t, c.FirstUserAdmin())
	assert.Equal(t, 5*time.Second, c.Leeway())
	assert.Equal(t, "sqlite", c.Storage.Driver)
	assert.Equal(t, 10, c.Rate.Login.Limit)

	assert.ErrorIs(t, c.Validate(), ErrMissingSecret, "empty SECRET_KEY is fatal")
}

func TestEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("SECRET_KEY", "s3cr3t-s3cr3t-s3cr3t")
	t.Setenv("JWT_ALGORITHM", "hs512")
	t.Setenv("ACCESS_TOKEN_EXPIRE_MINUTES", "15")
	t.Setenv("REFRESH_TOKEN_EXPIRE_DAYS", "7")
	t.Setenv("ENABLE_FIRST_USER_ADMIN", "false")
	t.Setenv("STORAGE_DRIVER", "memory")

	c, err := Load("")
	require.NoError(t, err)
	require.NoError(t, c.Validate())

	assert.Equal(t, "HS512", c.JWT.Algorithm)
	assert.Equal(t, 15*time.Minute, c.AccessTTL())
	assert.Equal(t, 7*24*time.Hour, c.RefreshTTL())
	assert.False(t, c.FirstUserAdmin())

	kc, err := c.KeyConfig()
	require.NoError(t, err)
	assert.Equal(t, []byte("s3cr3t-s3cr3t-s3cr3t"), kc.Secret)
}

func TestYAMLThenEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  addr: ":9090"
storage:
  driver: postgres
  dsn: postgres://localhost/camguard
jwt:
  secret_key: from-yaml
  access_token_expire_minutes: 10
bootstrap:
  enable_first_user_admin: false
`), 0o600))
	t.Setenv("SECRET_KEY", "from-env")

	c, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, c.Validate())
	assert.Equal(t, ":9090", c.Server.Addr)
	assert.Equal(t, "from-env", c.JWT.SecretKey)
	assert.Equal(t, 10*time.Minute, c.AccessTTL())
	assert.False(t, c.FirstUserAdmin())
}

func TestValidateRejects(t *testing.T) {
	clearEnv(t)
	base := func() *Config {
		c, err := Load("")
		require.NoError(t, err)
		c.JWT.SecretKey = "x"
		return c
	}

	c := base()
	c.JWT.Algorithm = "none"
	assert.ErrorIs(t, c.Validate(), ErrInvalid)

	c = base()
	c.JWT.AccessTokenExpireMinutes = 60 * 24 * 2
	c.JWT.RefreshTokenExpireDays = 1
	assert.ErrorIs(t, c.Validate(), ErrInvalid, "refresh must outlive access")

	c = base()
	c.Storage.Driver = "mongo"
	assert.ErrorIs(t, c.Validate(), ErrInvalid)

	c = base()
	c.JWT.Algorithm = "EdDSA"
	assert.ErrorIs(t, c.Validate(), ErrInvalid, "asymmetric algorithms need a private key file")

	c = base()
	c.Session.Retention = "forever"
	assert.ErrorIs(t, c.Validate(), ErrInvalid)

	c = base()
	c.JWT.Leeway = "-5s"
	assert.ErrorIs(t, c.Validate(), ErrInvalid)
}

func TestLeewayZeroDisablesTolerance(t *testing.T) {
	clearEnv(t)
	t.Setenv("SECRET_KEY", "s3cr3t-s3cr3t-s3cr3t")
	t.Setenv("JWT_LEEWAY", "0s")

	c, err := Load("")
	require.NoError(t, err)
	require.NoError(t, c.Validate())
	assert.Zero(t, c.Leeway())
	assert.Negative(t, c.CodecOptions().Leeway, "zero must not fall back to the codec default")

	t.Setenv("JWT_LEEWAY", "2s")
	c, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, c.CodecOptions().Leeway)
	assert.Equal(t, c.JWT.Issuer, c.CodecOptions().Issuer)
}

func TestLoadDotEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	p := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(p, []byte("REDIS_ADDR=localhost:6379\n"), 0o600))
	require.NoError(t, os.Unsetenv("REDIS_ADDR"))

	require.NoError(t, LoadDotEnv(p, filepath.Join(dir, "missing.env")))
	t.Cleanup(func() { _ = os.Unsetenv("REDIS_ADDR") })

	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "localhost:6379", c.Rate.Redis.Addr)
}
