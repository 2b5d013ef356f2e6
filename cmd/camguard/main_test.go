package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/camguard/internal/security/password"
)

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("APP_ENV", "test")
	t.Setenv("SECRET_KEY", "test-secret-test-secret-test-sec")
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := run(t, "", "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "camguard dev"))
}

func TestHashPassword(t *testing.T) {
	out, err := run(t, "Secr3t!pass\n", "hash-password")
	require.NoError(t, err)
	enc := strings.TrimSpace(out)
	assert.True(t, strings.HasPrefix(enc, "$argon2id$v=19$"))
	assert.True(t, password.NewHasher(password.Params{}).Verify("Secr3t!pass", enc))

	_, err = run(t, "", "hash-password")
	assert.Error(t, err)
}

func TestMigrateSqlite(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "sqlite")
	t.Setenv("STORAGE_DSN", filepath.Join(t.TempDir(), "camguard.db"))
	out, err := run(t, "", "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "schema at version 1")

	out, err = run(t, "", "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "schema at version 1")
}

func TestMigrateRequiresSecret(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "memory")
	cmd := newRootCmd()
	t.Setenv("APP_ENV", "test")
	t.Setenv("SECRET_KEY", "")
	cmd.SetArgs([]string{"migrate"})
	cmd.SetOut(&bytes.Buffer{})
	err := cmd.ExecuteContext(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SECRET_KEY")
}

func TestBootstrapCommand(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "sqlite")
	t.Setenv("STORAGE_DSN", filepath.Join(t.TempDir(), "camguard.db"))
	t.Setenv("ENABLE_FIRST_USER_ADMIN", "false")
	t.Setenv("FIRST_ADMIN_USERNAME", "ops@example.com")
	t.Setenv("FIRST_ADMIN_PASSWORD", "Adm1n!secret")

	out, err := run(t, "", "bootstrap")
	require.NoError(t, err)
	assert.Contains(t, out, "admin created: ops@example.com")

	out, err = run(t, "", "bootstrap")
	require.NoError(t, err)
	assert.Contains(t, out, "bootstrap skipped: users_exist")
}
