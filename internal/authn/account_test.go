package authn_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/camguard/internal/authn"
	"github.com/dropDatabas3/camguard/internal/domain/autherr"
	"github.com/dropDatabas3/camguard/internal/domain/types"
)

func TestRegister(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	u, err := f.svc.Register(ctx, " Olga@Example.com ", "Str0ng!pw")
	require.NoError(t, err)
	assert.Equal(t, "olga@example.com", u.Username)
	assert.Equal(t, types.RoleStandard, u.Role)
	assert.NotContains(t, u.PasswordHash, "Str0ng!pw")

	_, err = f.svc.Register(ctx, "olga@example.com", "Str0ng!pw")
	assert.ErrorIs(t, err, autherr.ErrUserExists)

	_, err = f.svc.Register(ctx, "not-an-email", "Str0ng!pw")
	assert.ErrorIs(t, err, autherr.ErrInvalidEmail)

	_, err = f.svc.Register(ctx, "pete@example.com", "weak")
	require.ErrorIs(t, err, autherr.ErrWeakPassword)
	var wp *authn.WeakPasswordError
	require.True(t, errors.As(err, &wp))
	assert.Contains(t, wp.Reasons, "too_short")

	_, err = f.svc.Login(ctx, "olga@example.com", "Str0ng!pw", "")
	assert.NoError(t, err)
}

func TestChangePassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.addUser(t, "quinn@example.com", "Old!passw0rd", types.RoleStandard)
	p, err := f.svc.Login(ctx, "quinn@example.com", "Old!passw0rd", "")
	require.NoError(t, err)

	err = f.svc.ChangePassword(ctx, u.ID, "wrong", "New!passw0rd")
	assert.ErrorIs(t, err, autherr.ErrInvalidCredentials)

	err = f.svc.ChangePassword(ctx, u.ID, "Old!passw0rd", "short")
	assert.ErrorIs(t, err, autherr.ErrWeakPassword)

	require.NoError(t, f.svc.ChangePassword(ctx, u.ID, "Old!passw0rd", "New!passw0rd"))

	_, err = f.svc.Refresh(ctx, p.SessionID, p.RefreshToken)
	assert.ErrorIs(t, err, autherr.ErrInvalidSession, "sessions are revoked after a password change")

	_, err = f.svc.Login(ctx, "quinn@example.com", "Old!passw0rd", "")
	assert.ErrorIs(t, err, autherr.ErrInvalidCredentials)
	_, err = f.svc.Login(ctx, "quinn@example.com", "New!passw0rd", "")
	assert.NoError(t, err)
}

func TestIssuePersonalToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addUser(t, "ruth@example.com", "Corr3ct!pw", types.RoleStandard)
	p, err := f.svc.Login(ctx, "ruth@example.com", "Corr3ct!pw", "")
	require.NoError(t, err)
	id, err := f.svc.AuthenticateRequest(ctx, p.AccessToken)
	require.NoError(t, err)

	_, err = f.svc.IssuePersonalToken(ctx, id, -1)
	assert.ErrorIs(t, err, autherr.ErrInvalidRequest)

	pat, err := f.svc.IssuePersonalToken(ctx, id, 0)
	require.NoError(t, err)
	assert.True(t, pat.ExpiresAt.After(f.clk.Now().Add(99*365*24*time.Hour)))

	short, err := f.svc.IssuePersonalToken(ctx, id, 15)
	require.NoError(t, err)
	assert.True(t, short.ExpiresAt.Equal(f.clk.Now().Add(15*time.Minute)))

	patID, err := f.svc.AuthenticateRequest(ctx, pat.Token)
	require.NoError(t, err)
	assert.Equal(t, types.TokenPersonal, patID.TokenType)
	assert.Equal(t, id.SubjectID, patID.SubjectID)
	assert.Empty(t, patID.SessionID)

	_, err = f.svc.IssuePersonalToken(ctx, patID, 10)
	assert.ErrorIs(t, err, autherr.ErrForbidden)

	// el PAT sobrevive a la expiración del access token y al logout
	require.NoError(t, f.svc.Logout(ctx, p.SessionID))
	f.clk.Advance(2 * time.Hour)
	_, err = f.svc.AuthenticateRequest(ctx, pat.Token)
	assert.NoError(t, err)
	_, err = f.svc.AuthenticateRequest(ctx, short.Token)
	assert.ErrorIs(t, err, autherr.ErrInvalidToken)
}
