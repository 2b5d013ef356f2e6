// Package storetest contiene la suite de conformidad que todo adapter de
// store debe pasar.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/camguard/internal/domain/repository"
	"github.com/dropDatabas3/camguard/internal/domain/types"
	store "github.com/dropDatabas3/camguard/internal/store"
)

// Factory devuelve una conexión vacía y lista (migrada) para un test.
type Factory func(t *testing.T) store.AdapterConnection

var base = time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)

// Run ejecuta la suite completa.
func Run(t *testing.T, newConn Factory) {
	t.Run("Users", func(t *testing.T) { testUsers(t, newConn(t)) })
	t.Run("CreateIfEmpty", func(t *testing.T) { testCreateIfEmpty(t, newConn(t)) })
	t.Run("SessionLifecycle", func(t *testing.T) { testSessionLifecycle(t, newConn(t)) })
	t.Run("SessionLockRollback", func(t *testing.T) { testSessionLockRollback(t, newConn(t)) })
	t.Run("SessionLockSerializes", func(t *testing.T) { testSessionLockSerializes(t, newConn(t)) })
	t.Run("DeleteExpired", func(t *testing.T) { testDeleteExpired(t, newConn(t)) })
}

func mkUser(t *testing.T, users repository.UserRepository, name string, role types.Role) *repository.User {
	t.Helper()
	u, err := users.Create(context.Background(), repository.CreateUserInput{
		ID: uuid.NewString(), Username: name, PasswordHash: "$argon2id$fake", Role: role, CreatedAt: base,
	})
	require.NoError(t, err)
	return u
}

func mkSession(t *testing.T, sessions repository.SessionRepository, userID, hash string, exp time.Time) *repository.Session {
	t.Helper()
	s, err := sessions.Create(context.Background(), repository.CreateSessionInput{
		ID: uuid.NewString(), UserID: userID, RefreshTokenHash: hash,
		IssuedAt: base, ExpiresAt: exp,
	})
	require.NoError(t, err)
	return s
}

func testUsers(t *testing.T, conn store.AdapterConnection) {
	ctx := context.Background()
	users := conn.Users()

	n, err := users.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	alice := mkUser(t, users, "alice@example.com", types.RoleStandard)

	_, err = users.Create(ctx, repository.CreateUserInput{
		ID: uuid.NewString(), Username: "ALICE@example.com", PasswordHash: "x", Role: types.RoleStandard, CreatedAt: base,
	})
	assert.ErrorIs(t, err, repository.ErrConflict, "usernames are case-insensitive")

	got, err := users.GetByUsername(ctx, "Alice@Example.com")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, got.ID)
	assert.Equal(t, types.RoleStandard, got.Role)
	assert.False(t, got.Disabled)

	_, err = users.GetByUsername(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = users.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	require.NoError(t, users.UpdateRole(ctx, alice.ID, types.RoleAdmin))
	require.NoError(t, users.UpdatePasswordHash(ctx, alice.ID, "$argon2id$new"))
	require.NoError(t, users.Disable(ctx, alice.ID))

	got, err = users.GetByID(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, types.RoleAdmin, got.Role)
	assert.Equal(t, "$argon2id$new", got.PasswordHash)
	assert.True(t, got.Disabled)

	assert.ErrorIs(t, users.Disable(ctx, "missing"), repository.ErrNotFound)

	n, err = users.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func testCreateIfEmpty(t *testing.T, conn store.AdapterConnection) {
	ctx := context.Background()
	users := conn.Users()

	const workers = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	created, conflicts := 0, 0
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := users.CreateIfEmpty(ctx, repository.CreateUserInput{
				ID: uuid.NewString(), Username: "admin-" + uuid.NewString()[:8] + "@example.com",
				PasswordHash: "h", Role: types.RoleAdmin, CreatedAt: base,
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case errors.Is(err, repository.ErrConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Equal(t, workers-1, conflicts)
	n, err := users.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func testSessionLifecycle(t *testing.T, conn store.AdapterConnection) {
	ctx := context.Background()
	u := mkUser(t, conn.Users(), "cam-owner@example.com", types.RoleStandard)
	sessions := conn.Sessions()

	s := mkSession(t, sessions, u.ID, "hash-1", base.Add(time.Hour))
	got, err := sessions.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, "hash-1", got.RefreshTokenHash)
	assert.True(t, got.ExpiresAt.Equal(base.Add(time.Hour)))
	assert.Nil(t, got.RevokedAt)

	err = sessions.WithSessionLock(ctx, s.ID, func(tx repository.SessionTx) error {
		seen, err := tx.WasIssued("hash-1")
		require.NoError(t, err)
		assert.False(t, seen, "current hash is not part of the history")
		return tx.Rotate("hash-2", base.Add(time.Minute))
	})
	require.NoError(t, err)

	err = sessions.WithSessionLock(ctx, s.ID, func(tx repository.SessionTx) error {
		assert.Equal(t, "hash-2", tx.Session().RefreshTokenHash)
		seen, err := tx.WasIssued("hash-1")
		require.NoError(t, err)
		assert.True(t, seen)
		seen, err = tx.WasIssued("hash-unknown")
		require.NoError(t, err)
		assert.False(t, seen)
		return nil
	})
	require.NoError(t, err)

	got, err = sessions.Get(ctx, s.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastUsedAt)

	err = sessions.WithSessionLock(ctx, "missing", func(repository.SessionTx) error { return nil })
	assert.ErrorIs(t, err, repository.ErrNotFound)

	other := mkSession(t, sessions, u.ID, "hash-other", base.Add(time.Hour))
	active, err := sessions.ListActiveByUser(ctx, u.ID, base)
	require.NoError(t, err)
	assert.Len(t, active, 2)

	require.NoError(t, sessions.Revoke(ctx, s.ID, base.Add(2*time.Minute)))
	require.NoError(t, sessions.Revoke(ctx, s.ID, base.Add(3*time.Minute)))
	require.NoError(t, sessions.Revoke(ctx, "missing", base))
	got, err = sessions.Get(ctx, s.ID)
	require.NoError(t, err)
	require.NotNil(t, got.RevokedAt)
	assert.True(t, got.RevokedAt.Equal(base.Add(2*time.Minute)), "first revocation time is kept")

	n, err := sessions.RevokeAllByUser(ctx, u.ID, base.Add(4*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	got, err = sessions.Get(ctx, other.ID)
	require.NoError(t, err)
	assert.NotNil(t, got.RevokedAt)

	active, err = sessions.ListActiveByUser(ctx, u.ID, base)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func testSessionLockRollback(t *testing.T, conn store.AdapterConnection) {
	ctx := context.Background()
	u := mkUser(t, conn.Users(), "rb@example.com", types.RoleStandard)
	sessions := conn.Sessions()
	s := mkSession(t, sessions, u.ID, "hash-a", base.Add(time.Hour))

	boom := errors.New("boom")
	err := sessions.WithSessionLock(ctx, s.ID, func(tx repository.SessionTx) error {
		require.NoError(t, tx.Rotate("hash-b", base))
		require.NoError(t, tx.Revoke(base))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := sessions.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, "hash-a", got.RefreshTokenHash)
	assert.Nil(t, got.RevokedAt)
}

func testSessionLockSerializes(t *testing.T, conn store.AdapterConnection) {
	ctx := context.Background()
	u := mkUser(t, conn.Users(), "race@example.com", types.RoleStandard)
	sessions := conn.Sessions()
	s := mkSession(t, sessions, u.ID, "h0", base.Add(time.Hour))

	// cada worker rota solo si ve el hash que espera; exactamente uno lo logra.
	const workers = 6
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := sessions.WithSessionLock(ctx, s.ID, func(tx repository.SessionTx) error {
				if tx.Session().RefreshTokenHash != "h0" {
					return nil
				}
				if err := tx.Rotate("h1-"+uuid.NewString(), base); err != nil {
					return err
				}
				mu.Lock()
				wins++
				mu.Unlock()
				return nil
			})
			if err != nil {
				t.Errorf("worker %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func testDeleteExpired(t *testing.T, conn store.AdapterConnection) {
	ctx := context.Background()
	u := mkUser(t, conn.Users(), "gc@example.com", types.RoleStandard)
	sessions := conn.Sessions()

	expired := mkSession(t, sessions, u.ID, "e", base.Add(-time.Hour))
	alive := mkSession(t, sessions, u.ID, "a", base.Add(time.Hour))
	revoked := mkSession(t, sessions, u.ID, "r", base.Add(time.Hour))
	require.NoError(t, sessions.Revoke(ctx, revoked.ID, base.Add(-2*time.Hour)))

	require.NoError(t, sessions.WithSessionLock(ctx, expired.ID, func(tx repository.SessionTx) error {
		return tx.Rotate("e2", base.Add(-2*time.Hour))
	}))

	n, err := sessions.DeleteExpired(ctx, base)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = sessions.Get(ctx, expired.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = sessions.Get(ctx, revoked.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = sessions.Get(ctx, alive.ID)
	assert.NoError(t, err)
}
