package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/camguard/internal/authn"
	"github.com/dropDatabas3/camguard/internal/domain/autherr"
)

func TestFromErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{autherr.ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials"},
		{fmt.Errorf("%w: %w", autherr.ErrInvalidCredentials, autherr.ErrAccountDisabled), http.StatusUnauthorized, "invalid_credentials"},
		{autherr.ErrAccountDisabled, http.StatusUnauthorized, "invalid_credentials"},
		{fmt.Errorf("%w: %w", autherr.ErrInvalidSession, autherr.ErrAccountDisabled), http.StatusUnauthorized, "invalid_session"},
		{autherr.ErrReuseDetected, http.StatusUnauthorized, "invalid_session"},
		{autherr.ErrInvalidToken, http.StatusUnauthorized, "invalid_token"},
		{autherr.ErrUnauthenticated, http.StatusUnauthorized, "unauthenticated"},
		{fmt.Errorf("%w: read on x", autherr.ErrForbidden), http.StatusForbidden, "forbidden"},
		{autherr.Unavailable(errors.New("dial tcp: refused")), http.StatusServiceUnavailable, "unavailable"},
		{&authn.WeakPasswordError{Reasons: []string{"too_short"}}, http.StatusBadRequest, "weak_password"},
		{autherr.ErrInvalidEmail, http.StatusBadRequest, "invalid_email"},
		{autherr.ErrInvalidRequest, http.StatusBadRequest, "invalid_request"},
		{autherr.ErrUserExists, http.StatusConflict, "user_exists"},
		{&authn.RateLimitError{RetryAfter: time.Second}, http.StatusTooManyRequests, "rate_limited"},
		{errors.New("boom"), http.StatusInternalServerError, "internal_error"},
		{ErrInvalidJSON, http.StatusBadRequest, "invalid_json"},
	}
	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			ae := FromError(tc.err)
			assert.Equal(t, tc.status, ae.HTTPStatus)
			assert.Equal(t, tc.code, ae.Code)
		})
	}
}

func TestWriteErrorHidesInternals(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, autherr.Unavailable(errors.New("pq: password authentication failed for user camguard")))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.NotContains(t, rec.Body.String(), "pq:")
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "service temporarily unavailable", body["message"])
}

func TestWriteErrorHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, &authn.RateLimitError{RetryAfter: 1500 * time.Millisecond})
	assert.Equal(t, "2", rec.Header().Get("Retry-After"))

	rec = httptest.NewRecorder()
	WriteError(rec, autherr.ErrInvalidToken)
	assert.Equal(t, `Bearer error="invalid_token"`, rec.Header().Get("WWW-Authenticate"))

	rec = httptest.NewRecorder()
	WriteError(rec, &authn.WeakPasswordError{Reasons: []string{"too_short", "missing_digit"}})
	assert.Empty(t, rec.Header().Get("WWW-Authenticate"))
	assert.Contains(t, rec.Body.String(), "too_short,missing_digit")
}

func TestReadJSON(t *testing.T) {
	var v struct{ A string }

	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"a":"x","extra":1}`))
	r.Header.Set("Content-Type", "application/json")
	require.NoError(t, ReadJSON(httptest.NewRecorder(), r, &v))
	assert.Equal(t, "x", v.A)

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{`))
	r.Header.Set("Content-Type", "application/json")
	assert.Equal(t, "invalid_json", FromError(ReadJSON(httptest.NewRecorder(), r, &v)).Code)

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`))
	r.Header.Set("Content-Type", "text/plain")
	assert.Error(t, ReadJSON(httptest.NewRecorder(), r, &v))
}

func TestNormalizePath(t *testing.T) {
	assert.Equal(t, "/v1/users/:param/resources-check", normalizePath("/v1/users/6f1c2a3b-1d2e-4f5a-8b9c-0d1e2f3a4b5c/resources-check"))
	assert.Equal(t, "/v1/items/:param", normalizePath("/v1/items/42?x=1"))
	assert.Equal(t, "/", normalizePath(""))
}
