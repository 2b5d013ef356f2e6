package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/dropDatabas3/camguard/internal/authn"
	"github.com/dropDatabas3/camguard/internal/domain/autherr"
)

// AppError es la forma estándar de los errores HTTP.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Detail     string `json:"detail,omitempty"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"` // causa, solo para logs
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.Err }

// WithDetail devuelve una COPIA con detalle.
func (e *AppError) WithDetail(detail string) *AppError {
	cp := *e
	cp.Detail = detail
	return &cp
}

// WithCause devuelve una COPIA con la causa.
func (e *AppError) WithCause(err error) *AppError {
	cp := *e
	cp.Err = err
	return &cp
}

var (
	ErrInvalidJSON   = &AppError{Code: "invalid_json", Message: "request body is not valid JSON", HTTPStatus: http.StatusBadRequest}
	ErrMissingFields = &AppError{Code: "missing_fields", Message: "required fields are missing", HTTPStatus: http.StatusBadRequest}
	ErrInternal      = &AppError{Code: "internal_error", Message: "internal server error", HTTPStatus: http.StatusInternalServerError}
	ErrNotFound      = &AppError{Code: "not_found", Message: "resource not found", HTTPStatus: http.StatusNotFound}
)

// statusByKind traduce la taxonomía de autherr a HTTP. Los kinds internos
// (account_disabled, reuse_detected) se colapsan antes con autherr.Public.
var statusByKind = map[string]int{
	"invalid_credentials": http.StatusUnauthorized,
	"invalid_token":       http.StatusUnauthorized,
	"invalid_session":     http.StatusUnauthorized,
	"unauthenticated":     http.StatusUnauthorized,
	"forbidden":           http.StatusForbidden,
	"unavailable":         http.StatusServiceUnavailable,
	"weak_password":       http.StatusBadRequest,
	"invalid_email":       http.StatusBadRequest,
	"invalid_request":     http.StatusBadRequest,
	"user_exists":         http.StatusConflict,
	"rate_limited":        http.StatusTooManyRequests,
}

// FromError convierte cualquier error de las capas inferiores en AppError.
func FromError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	pub := autherr.Public(err)
	kind := autherr.Kind(pub)
	status, ok := statusByKind[kind]
	if !ok {
		return ErrInternal.WithCause(err)
	}
	// mensaje canónico: el contexto interno queda solo en Err
	out := &AppError{Code: kind, Message: canonicalMessage(kind, pub), HTTPStatus: status, Err: err}
	var wp *authn.WeakPasswordError
	if errors.As(err, &wp) {
		out.Detail = strings.Join(wp.Reasons, ",")
	}
	return out
}

func canonicalMessage(kind string, err error) string {
	for _, k := range []error{
		autherr.ErrInvalidCredentials, autherr.ErrInvalidToken, autherr.ErrInvalidSession,
		autherr.ErrUnauthenticated, autherr.ErrForbidden, autherr.ErrUnavailable,
		autherr.ErrWeakPassword, autherr.ErrInvalidEmail, autherr.ErrInvalidRequest,
		autherr.ErrUserExists, autherr.ErrRateLimited,
	} {
		if autherr.Kind(k) == kind {
			return k.Error()
		}
	}
	return err.Error()
}

type errorResponse struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Detail    string `json:"detail,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// WriteError escribe err como JSON. Los 401 llevan WWW-Authenticate y los
// 429 Retry-After.
func WriteError(w http.ResponseWriter, err error) {
	appErr := FromError(err)

	h := w.Header()
	h.Set("Content-Type", "application/json; charset=utf-8")
	h.Set("Cache-Control", "no-store")
	if appErr.HTTPStatus == http.StatusUnauthorized {
		h.Set("WWW-Authenticate", fmt.Sprintf(`Bearer error=%q`, wwwAuthError(appErr.Code)))
	}
	var rl *authn.RateLimitError
	if errors.As(err, &rl) && rl.RetryAfter > 0 {
		h.Set("Retry-After", strconv.Itoa(int(math.Ceil(rl.RetryAfter.Seconds()))))
	}
	w.WriteHeader(appErr.HTTPStatus)
	_ = json.NewEncoder(w).Encode(errorResponse{
		Code:      appErr.Code,
		Message:   appErr.Message,
		Detail:    appErr.Detail,
		RequestID: h.Get("X-Request-ID"),
	})
}

func wwwAuthError(code string) string {
	switch code {
	case "invalid_token", "invalid_session":
		return "invalid_token"
	}
	return "invalid_request"
}

// WriteJSON: respuesta JSON estándar
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// ReadJSON decodifica el body (máx 1MB) tolerando campos desconocidos.
func ReadJSON(w http.ResponseWriter, r *http.Request, v any) error {
	ct := strings.ToLower(r.Header.Get("Content-Type"))
	if !strings.Contains(ct, "application/json") {
		return ErrInvalidJSON.WithDetail("Content-Type must be application/json")
	}
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return ErrInvalidJSON.WithCause(err)
	}
	return nil
}
