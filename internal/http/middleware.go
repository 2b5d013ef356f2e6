package http

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dropDatabas3/camguard/internal/authn"
	"github.com/dropDatabas3/camguard/internal/domain/autherr"
	"github.com/dropDatabas3/camguard/internal/domain/types"
	"github.com/dropDatabas3/camguard/internal/observability/logger"
	"github.com/dropDatabas3/camguard/internal/rate"
	"go.uber.org/zap"
)

// Middleware envuelve un handler.
type Middleware func(http.Handler) http.Handler

type ctxKey int

const (
	ctxRequestID ctxKey = iota
	ctxIdentity
)

// RequestIDFrom devuelve el request id del contexto.
func RequestIDFrom(ctx context.Context) string {
	v, _ := ctx.Value(ctxRequestID).(string)
	return v
}

// IdentityFrom devuelve la identidad que dejó RequireAuth.
func IdentityFrom(ctx context.Context) (types.Identity, bool) {
	id, ok := ctx.Value(ctxIdentity).(types.Identity)
	return id, ok
}

// WithIdentity guarda la identidad en el contexto.
func WithIdentity(ctx context.Context, id types.Identity) context.Context {
	return context.WithValue(ctx, ctxIdentity, id)
}

// ─────────────── Security Headers ───────────────

func isHTTPS(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	return strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}

// WithSecurityHeaders inyecta cabeceras de defensa por defecto.
func WithSecurityHeaders() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Referrer-Policy", "no-referrer")
			h.Set("Cross-Origin-Opener-Policy", "same-origin")
			h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
			if isHTTPS(r) {
				h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WithNoStore evita que respuestas con tokens queden en caches.
func WithNoStore() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Cache-Control", "no-store")
			w.Header().Set("Pragma", "no-cache")
			next.ServeHTTP(w, r)
		})
	}
}

// ─────────────── Request ID ───────────────

// WithRequestID respeta un X-Request-ID entrante o genera uno nuevo.
func WithRequestID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rid := strings.TrimSpace(r.Header.Get("X-Request-ID"))
			if rid == "" || len(rid) > 128 {
				var b [16]byte
				_, _ = rand.Read(b[:])
				rid = hex.EncodeToString(b[:])
			}
			w.Header().Set("X-Request-ID", rid)
			ctx := context.WithValue(r.Context(), ctxRequestID, rid)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ─────────────── Logging / Recover ───────────────

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	n, err := s.ResponseWriter.Write(b)
	s.bytes += n
	return n, err
}

// WithLogging deja en el contexto un logger con los campos del request y
// loguea el resultado al terminar.
func WithLogging(base *zap.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			log := base.With(
				logger.RequestID(RequestIDFrom(r.Context())),
				logger.Method(r.Method),
				logger.Path(r.URL.Path),
			)
			rec := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, r.WithContext(logger.ToContext(r.Context(), log)))

			if rec.status == 0 {
				rec.status = http.StatusOK
			}
			fields := []zap.Field{
				logger.Status(rec.status),
				logger.Duration(time.Since(start)),
				logger.ClientIP(clientIP(r)),
				zap.Int("bytes", rec.bytes),
			}
			switch {
			case rec.status >= 500:
				log.Error("request", fields...)
			case rec.status >= 400:
				log.Warn("request", fields...)
			default:
				log.Info("request", fields...)
			}
		})
	}
}

// WithRecover convierte un panic en 500 sin tirar el proceso.
func WithRecover() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.From(r.Context()).Error("panic recovered",
						zap.Any("panic", rec),
						zap.Stack("stack"),
					)
					WriteError(w, ErrInternal.WithCause(fmt.Errorf("panic: %v", rec)))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	if xf := r.Header.Get("X-Forwarded-For"); xf != "" {
		parts := strings.Split(xf, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return host
	}
	return r.RemoteAddr
}

// ─────────────── Auth ───────────────

// Authenticator valida bearer tokens.
type Authenticator interface {
	AuthenticateRequest(ctx context.Context, bearer string) (types.Identity, error)
}

// RequireAuth exige un bearer token válido (access o PAT) y deja la
// identidad en el contexto.
func RequireAuth(a Authenticator) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := authn.ExtractBearer(r.Header.Get("Authorization"))
			if raw == "" {
				WriteError(w, autherr.ErrUnauthenticated)
				return
			}
			id, err := a.AuthenticateRequest(r.Context(), raw)
			if err != nil {
				logger.From(r.Context()).Debug("bearer rejected", logger.ErrKind(autherr.Kind(err)))
				WriteError(w, err)
				return
			}
			ctx := WithIdentity(r.Context(), id)
			ctx = logger.ToContext(ctx, logger.FromWithFields(ctx, logger.UserID(id.SubjectID)))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ─────────────── Rate limit ───────────────

// WithRateLimit limita por IP y ruta. Si el limiter falla se deja pasar el
// request.
func WithRateLimit(l rate.Limiter) Middleware {
	return func(next http.Handler) http.Handler {
		if l == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res, err := l.Allow(r.Context(), "ip:"+clientIP(r)+"|"+r.URL.Path)
			if err != nil {
				logger.From(r.Context()).Warn("rate limiter unavailable", logger.Err(err))
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(res.Remaining, 10))
			if !res.Allowed {
				WriteError(w, &authn.RateLimitError{RetryAfter: res.RetryAfter})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
