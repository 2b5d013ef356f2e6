package session_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/camguard/internal/domain/autherr"
	"github.com/dropDatabas3/camguard/internal/domain/repository"
	"github.com/dropDatabas3/camguard/internal/session"
	"github.com/dropDatabas3/camguard/internal/store/adapters/memory"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newStore(t *testing.T) (*session.Store, *memory.Store, *clock) {
	t.Helper()
	clk := &clock{t: time.Date(2026, 5, 10, 8, 0, 0, 0, time.UTC)}
	mem := memory.New()
	st := session.NewStore(mem.Sessions(), session.Config{RefreshTTL: 24 * time.Hour, Now: clk.Now})
	return st, mem, clk
}

func TestCreateStoresOnlyHash(t *testing.T) {
	ctx := context.Background()
	st, mem, clk := newStore(t)

	iss, err := st.Create(ctx, "user-1", "ipcam-app/1.0")
	require.NoError(t, err)
	assert.NotEmpty(t, iss.SessionID)
	assert.NotEmpty(t, iss.RefreshToken)
	assert.Equal(t, clk.Now().Add(24*time.Hour), iss.ExpiresAt)

	sess, err := mem.Sessions().Get(ctx, iss.SessionID)
	require.NoError(t, err)
	assert.NotEqual(t, iss.RefreshToken, sess.RefreshTokenHash)
	assert.Equal(t, "user-1", sess.UserID)
	assert.Equal(t, "ipcam-app/1.0", sess.DeviceInfo)

	assert.True(t, st.IsValid(ctx, iss.SessionID, iss.RefreshToken))
	assert.False(t, st.IsValid(ctx, iss.SessionID, "wrong"))
	assert.False(t, st.IsValid(ctx, "missing", iss.RefreshToken))
}

func TestRotateKeepsExpiryAndInvalidatesOld(t *testing.T) {
	ctx := context.Background()
	st, _, clk := newStore(t)

	v1, err := st.Create(ctx, "user-1", "")
	require.NoError(t, err)

	clk.Advance(time.Hour)
	v2, err := st.Rotate(ctx, v1.SessionID, v1.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, v1.SessionID, v2.SessionID)
	assert.Equal(t, "user-1", v2.UserID)
	assert.NotEqual(t, v1.RefreshToken, v2.RefreshToken)
	assert.Equal(t, v1.ExpiresAt, v2.ExpiresAt, "rotation must not extend the session")

	assert.False(t, st.IsValid(ctx, v1.SessionID, v1.RefreshToken))
	assert.True(t, st.IsValid(ctx, v2.SessionID, v2.RefreshToken))
}

func TestExpiryIsWholeSeconds(t *testing.T) {
	ctx := context.Background()
	st, _, clk := newStore(t)
	clk.Advance(600 * time.Millisecond)

	iss, err := st.Create(ctx, "user-1", "")
	require.NoError(t, err)
	assert.Zero(t, iss.ExpiresAt.Nanosecond())
	assert.Equal(t, time.Date(2026, 5, 11, 8, 0, 0, 0, time.UTC), iss.ExpiresAt)

	clk.Advance(24*time.Hour - time.Second)
	v2, err := st.Rotate(ctx, iss.SessionID, iss.RefreshToken)
	require.NoError(t, err)

	clk.Advance(600 * time.Millisecond)
	_, err = st.Rotate(ctx, v2.SessionID, v2.RefreshToken)
	assert.ErrorIs(t, err, autherr.ErrInvalidSession)
}

func TestRotateReuseRevokesSession(t *testing.T) {
	ctx := context.Background()
	var hooked []string
	clk := &clock{t: time.Date(2026, 5, 10, 8, 0, 0, 0, time.UTC)}
	mem := memory.New()
	st := session.NewStore(mem.Sessions(), session.Config{
		RefreshTTL: 24 * time.Hour,
		Now:        clk.Now,
		OnReuse: func(_ context.Context, s repository.Session) {
			hooked = append(hooked, s.ID)
		},
	})

	v1, err := st.Create(ctx, "user-1", "")
	require.NoError(t, err)
	v2, err := st.Rotate(ctx, v1.SessionID, v1.RefreshToken)
	require.NoError(t, err)

	_, err = st.Rotate(ctx, v1.SessionID, v1.RefreshToken)
	require.Error(t, err)
	assert.ErrorIs(t, err, autherr.ErrReuseDetected)
	assert.ErrorIs(t, err, autherr.ErrInvalidSession)
	assert.Equal(t, []string{v1.SessionID}, hooked)

	// la sesión entera quedó revocada: el token vigente tampoco sirve
	_, err = st.Rotate(ctx, v2.SessionID, v2.RefreshToken)
	assert.ErrorIs(t, err, autherr.ErrInvalidSession)
	assert.NotErrorIs(t, err, autherr.ErrReuseDetected)
	assert.False(t, st.IsValid(ctx, v2.SessionID, v2.RefreshToken))

	sess, err := mem.Sessions().Get(ctx, v1.SessionID)
	require.NoError(t, err)
	assert.NotNil(t, sess.RevokedAt)
}

func TestRotateUnknownTokenDoesNotRevoke(t *testing.T) {
	ctx := context.Background()
	st, _, _ := newStore(t)

	v1, err := st.Create(ctx, "user-1", "")
	require.NoError(t, err)

	_, err = st.Rotate(ctx, v1.SessionID, "never-issued")
	assert.ErrorIs(t, err, autherr.ErrInvalidSession)
	assert.NotErrorIs(t, err, autherr.ErrReuseDetected)

	// un token de otra sesión tampoco cuenta como reuso
	other, err := st.Create(ctx, "user-2", "")
	require.NoError(t, err)
	_, err = st.Rotate(ctx, other.SessionID, other.RefreshToken)
	require.NoError(t, err)
	_, err = st.Rotate(ctx, v1.SessionID, other.RefreshToken)
	assert.NotErrorIs(t, err, autherr.ErrReuseDetected)

	assert.True(t, st.IsValid(ctx, v1.SessionID, v1.RefreshToken))
}

func TestRotateExpiredRevokedMissing(t *testing.T) {
	ctx := context.Background()
	st, _, clk := newStore(t)

	_, err := st.Rotate(ctx, "missing", "x")
	assert.ErrorIs(t, err, autherr.ErrInvalidSession)
	_, err = st.Rotate(ctx, "", "")
	assert.ErrorIs(t, err, autherr.ErrInvalidSession)

	a, err := st.Create(ctx, "user-1", "")
	require.NoError(t, err)
	require.NoError(t, st.Revoke(ctx, a.SessionID))
	require.NoError(t, st.Revoke(ctx, a.SessionID), "revoke must be idempotent")
	require.NoError(t, st.Revoke(ctx, "missing"))
	_, err = st.Rotate(ctx, a.SessionID, a.RefreshToken)
	assert.ErrorIs(t, err, autherr.ErrInvalidSession)

	b, err := st.Create(ctx, "user-1", "")
	require.NoError(t, err)
	clk.Advance(24 * time.Hour)
	_, err = st.Rotate(ctx, b.SessionID, b.RefreshToken)
	assert.ErrorIs(t, err, autherr.ErrInvalidSession)
}

func TestConcurrentRotationOnlyOneWins(t *testing.T) {
	ctx := context.Background()
	st, _, _ := newStore(t)

	v1, err := st.Create(ctx, "user-1", "")
	require.NoError(t, err)

	const n = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		wins    int
		reuses  int
		winners []session.Issued
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := st.Rotate(ctx, v1.SessionID, v1.RefreshToken)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
				winners = append(winners, out)
			case errors.Is(err, autherr.ErrReuseDetected):
				reuses++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.GreaterOrEqual(t, reuses, 1)
	// el reuso revocó la sesión: ni el ganador puede seguir
	assert.False(t, st.IsValid(ctx, v1.SessionID, winners[0].RefreshToken))
}

func TestRevokeAllAndList(t *testing.T) {
	ctx := context.Background()
	st, _, _ := newStore(t)

	a, _ := st.Create(ctx, "user-1", "phone")
	_, _ = st.Create(ctx, "user-1", "tablet")
	c, _ := st.Create(ctx, "user-2", "web")

	active, err := st.ListActive(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, active, 2)

	n, err := st.RevokeAll(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.False(t, st.IsValid(ctx, a.SessionID, a.RefreshToken))
	assert.True(t, st.IsValid(ctx, c.SessionID, c.RefreshToken))

	active, err = st.ListActive(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestStoreFailureIsUnavailable(t *testing.T) {
	ctx := context.Background()
	st, mem, _ := newStore(t)
	v1, err := st.Create(ctx, "user-1", "")
	require.NoError(t, err)

	mem.SetFailure(errors.New("disk on fire"))
	_, err = st.Create(ctx, "user-1", "")
	assert.ErrorIs(t, err, autherr.ErrUnavailable)
	_, err = st.Rotate(ctx, v1.SessionID, v1.RefreshToken)
	assert.ErrorIs(t, err, autherr.ErrUnavailable)
	assert.NotErrorIs(t, err, autherr.ErrInvalidSession)
	assert.ErrorIs(t, st.Revoke(ctx, v1.SessionID), autherr.ErrUnavailable)
	assert.False(t, st.IsValid(ctx, v1.SessionID, v1.RefreshToken))

	mem.SetFailure(nil)
	_, err = st.Rotate(ctx, v1.SessionID, v1.RefreshToken)
	assert.NoError(t, err, "failed attempts must not consume the token")
}

type failingMinter struct{}

func (failingMinter) Mint(string, string, time.Time) (string, error) {
	return "", errors.New("entropy exhausted")
}

func TestMinterFailure(t *testing.T) {
	st := session.NewStore(memory.New().Sessions(), session.Config{Minter: failingMinter{}})
	_, err := st.Create(context.Background(), "u", "")
	require.Error(t, err)
	assert.NotErrorIs(t, err, autherr.ErrUnavailable)
}
