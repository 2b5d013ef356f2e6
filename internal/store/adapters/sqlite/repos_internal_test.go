package sqlite

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/camguard/internal/domain/repository"
	"github.com/dropDatabas3/camguard/internal/domain/types"
)

func newMock(t *testing.T) (*userRepo, *sessionRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return &userRepo{write: db, read: db}, &sessionRepo{write: db, read: db}, mock
}

var sessionCols = []string{"id", "user_id", "refresh_token_hash", "device_info", "issued_at", "expires_at", "revoked_at", "last_used_at"}

func TestCreateUserMapsUniqueViolation(t *testing.T) {
	users, _, mock := newMock(t)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO app_user")).
		WillReturnError(sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintUnique})

	_, err := users.Create(context.Background(), repository.CreateUserInput{
		ID: "u1", Username: "bob@example.com", PasswordHash: "h", Role: types.RoleStandard, CreatedAt: time.Now(),
	})
	assert.ErrorIs(t, err, repository.ErrConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetUserWrapsDriverErrors(t *testing.T) {
	users, _, mock := newMock(t)
	boom := errors.New("disk I/O error")
	mock.ExpectQuery(regexp.QuoteMeta("FROM app_user WHERE id = ?")).WithArgs("u1").WillReturnError(boom)

	_, err := users.GetByID(context.Background(), "u1")
	assert.ErrorIs(t, err, boom)
	assert.False(t, errors.Is(err, repository.ErrNotFound))
}

func TestUpdateRoleNoRowsIsNotFound(t *testing.T) {
	users, _, mock := newMock(t)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE app_user SET role")).WillReturnResult(sqlmock.NewResult(0, 0))

	err := users.UpdateRole(context.Background(), "ghost", types.RoleAdmin)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestCreateIfEmptyRefusesWhenUsersExist(t *testing.T) {
	users, _, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM app_user")).
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(1))
	mock.ExpectRollback()

	_, err := users.CreateIfEmpty(context.Background(), repository.CreateUserInput{ID: "a", Username: "admin@example.com"})
	assert.ErrorIs(t, err, repository.ErrConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithSessionLockRotationFlow(t *testing.T) {
	_, sessions, mock := newMock(t)
	now := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM auth_session WHERE id = ?")).WithArgs("s1").
		WillReturnRows(sqlmock.NewRows(sessionCols).
			AddRow("s1", "u1", "old", "", now, now.Add(time.Hour), nil, nil))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO auth_session_rotation")).
		WithArgs("old", "s1", now).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE auth_session SET refresh_token_hash")).
		WithArgs("new", now, "s1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := sessions.WithSessionLock(context.Background(), "s1", func(tx repository.SessionTx) error {
		assert.Equal(t, "old", tx.Session().RefreshTokenHash)
		return tx.Rotate("new", now)
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithSessionLockRollsBackOnError(t *testing.T) {
	_, sessions, mock := newMock(t)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM auth_session WHERE id = ?")).
		WillReturnRows(sqlmock.NewRows(sessionCols).
			AddRow("s1", "u1", "cur", "", now, now.Add(time.Hour), nil, nil))
	mock.ExpectRollback()

	stop := errors.New("stop")
	err := sessions.WithSessionLock(context.Background(), "s1", func(repository.SessionTx) error { return stop })
	assert.ErrorIs(t, err, stop)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithSessionLockMissingSession(t *testing.T) {
	_, sessions, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM auth_session WHERE id = ?")).
		WillReturnRows(sqlmock.NewRows(sessionCols))
	mock.ExpectRollback()

	err := sessions.WithSessionLock(context.Background(), "nope", func(repository.SessionTx) error {
		t.Fatal("fn must not run")
		return nil
	})
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestBuildDSN(t *testing.T) {
	w := buildDSN("/tmp/x.db", "write")
	r := buildDSN("/tmp/x.db", "read")
	assert.Contains(t, w, "_txlock=immediate")
	assert.NotContains(t, r, "_txlock")
	assert.Contains(t, r, "_foreign_keys=on")
	assert.Contains(t, r, "_journal_mode=WAL")
}
