package bootstrap

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/camguard/internal/domain/autherr"
	"github.com/dropDatabas3/camguard/internal/domain/types"
	"github.com/dropDatabas3/camguard/internal/security/password"
	"github.com/dropDatabas3/camguard/internal/store/adapters/memory"
)

var cheap = password.NewHasher(password.Params{Memory: 8 * 1024, Time: 1, Parallelism: 1})

func TestRunCreatesSingleAdmin(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	svc := New(Config{Enabled: true, Username: "Root@Example.com", Password: "Adm1n!pass"},
		Deps{Users: mem.Users(), Hasher: cheap})

	res, err := svc.Run(ctx)
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Empty(t, res.GeneratedPassword)

	u, err := mem.Users().GetByUsername(ctx, "root@example.com")
	require.NoError(t, err)
	assert.Equal(t, types.RoleAdmin, u.Role)
	assert.True(t, cheap.Verify("Adm1n!pass", u.PasswordHash))

	res, err = svc.Run(ctx)
	require.NoError(t, err)
	assert.False(t, res.Created)
	assert.Equal(t, "users_exist", res.Skipped)

	n, err := mem.Users().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRunDisabledLeavesStoreEmpty(t *testing.T) {
	mem := memory.New()
	res, err := New(Config{Enabled: false}, Deps{Users: mem.Users(), Hasher: cheap}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "disabled", res.Skipped)

	n, err := mem.Users().Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRunGeneratesPassword(t *testing.T) {
	mem := memory.New()
	res, err := New(Config{Enabled: true}, Deps{Users: mem.Users(), Hasher: cheap}).Run(context.Background())
	require.NoError(t, err)
	require.True(t, res.Created)
	assert.Equal(t, DefaultAdminUsername, res.Username)
	assert.Len(t, res.GeneratedPassword, generatedLength)

	u, err := mem.Users().GetByID(context.Background(), res.UserID)
	require.NoError(t, err)
	assert.True(t, cheap.Verify(res.GeneratedPassword, u.PasswordHash))
}

func TestRunConcurrentCreatesOne(t *testing.T) {
	mem := memory.New()
	var wg sync.WaitGroup
	var mu sync.Mutex
	created := 0
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := New(Config{Enabled: true, Password: "Adm1n!pass"}, Deps{Users: mem.Users(), Hasher: cheap}).
				Run(context.Background())
			assert.NoError(t, err)
			if res.Created {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, created)
}

func TestRunStoreDown(t *testing.T) {
	mem := memory.New()
	mem.SetFailure(errors.New("db down"))
	_, err := New(Config{Enabled: true}, Deps{Users: mem.Users(), Hasher: cheap}).Run(context.Background())
	assert.ErrorIs(t, err, autherr.ErrUnavailable)
}

func TestGeneratePasswordMeetsPolicy(t *testing.T) {
	policy := password.DefaultPolicy()
	for i := 0; i < 50; i++ {
		pw, err := GeneratePassword(12)
		require.NoError(t, err)
		ok, reasons := policy.Validate(pw)
		assert.True(t, ok, "%q: %v", pw, reasons)
	}
	pw, err := GeneratePassword(3)
	require.NoError(t, err)
	assert.Len(t, pw, 8)
}

func TestPromptRequiresTerminal(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "stdin")
	require.NoError(t, err)
	defer f.Close()
	_, _, err = PromptCredentials(f, os.Stdout, password.DefaultPolicy())
	assert.Error(t, err)
}
