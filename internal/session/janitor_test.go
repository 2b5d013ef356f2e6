package session_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/camguard/internal/domain/repository"
	"github.com/dropDatabas3/camguard/internal/session"
	"github.com/dropDatabas3/camguard/internal/store/adapters/memory"
)

func TestJanitorRunOnce(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 5, 10, 8, 0, 0, 0, time.UTC)
	mem := memory.New()
	repo := mem.Sessions()

	mk := func(id string, exp time.Time) {
		_, err := repo.Create(ctx, repository.CreateSessionInput{
			ID: id, UserID: "u", RefreshTokenHash: "h-" + id,
			IssuedAt: exp.Add(-time.Hour), ExpiresAt: exp,
		})
		require.NoError(t, err)
	}
	mk("old-expired", now.Add(-48*time.Hour))
	mk("recent-expired", now.Add(-time.Hour))
	mk("alive", now.Add(time.Hour))
	mk("revoked-long-ago", now.Add(time.Hour))
	require.NoError(t, repo.Revoke(ctx, "revoked-long-ago", now.Add(-72*time.Hour)))

	j, err := session.NewJanitor(repo, "@every 1h", 24*time.Hour, func() time.Time { return now })
	require.NoError(t, err)
	purged := -1
	j.OnPurge = func(n int) { purged = n }

	n, err := j.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, purged)

	_, err = repo.Get(ctx, "recent-expired")
	assert.NoError(t, err, "retention keeps recently expired sessions")
	_, err = repo.Get(ctx, "old-expired")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestJanitorInvalidSchedule(t *testing.T) {
	_, err := session.NewJanitor(memory.New().Sessions(), "every tuesday-ish", time.Hour, nil)
	assert.Error(t, err)
}

func TestJanitorStartStop(t *testing.T) {
	j, err := session.NewJanitor(memory.New().Sessions(), "", time.Hour, nil)
	require.NoError(t, err)
	j.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	j.Stop(ctx)
}
