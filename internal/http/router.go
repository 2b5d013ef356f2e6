package http

import (
	"context"
	"net/http"
	"time"

	"github.com/dropDatabas3/camguard/internal/authn"
	"github.com/dropDatabas3/camguard/internal/authz"
	"github.com/dropDatabas3/camguard/internal/rate"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// RouterDeps son las dependencias del router.
type RouterDeps struct {
	Auth   *authn.Service
	Policy *authz.Policy
	Logger *zap.Logger

	// Opcionales
	Metrics     *Metrics
	Gatherer    prometheus.Gatherer
	IPLimiter   rate.Limiter
	CORSOrigins []string
	Health      func(ctx context.Context) error
	Now         func() time.Time
}

// NewRouter arma el router HTTP:
//
//	POST /v1/auth/register | login | refresh | logout
//	POST /v1/auth/logout-all | pat | password       (bearer)
//	GET  /v1/me, /v1/me/sessions                     (bearer)
//	GET  /v1/users/{ownerID}/resources-check         (bearer)
//	GET  /healthz, /metrics
func NewRouter(d RouterDeps) http.Handler {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Policy == nil {
		d.Policy = authz.NewPolicy(nil)
	}
	h := &handlers{auth: d.Auth, policy: d.Policy, health: d.Health, now: d.Now}

	r := chi.NewRouter()
	r.Use(WithRequestID())
	r.Use(WithLogging(d.Logger))
	r.Use(WithRecover())
	r.Use(d.Metrics.Middleware())
	r.Use(WithSecurityHeaders())
	if len(d.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   d.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"X-Request-ID", "Retry-After", "WWW-Authenticate"},
			AllowCredentials: true,
			MaxAge:           600,
		}))
	}

	r.Get("/healthz", h.healthz)
	if d.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(WithNoStore())

		r.Route("/auth", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(WithRateLimit(d.IPLimiter))
				r.Post("/register", h.register)
				r.Post("/login", h.login)
				r.Post("/refresh", h.refresh)
			})
			r.Post("/logout", h.logout)

			r.Group(func(r chi.Router) {
				r.Use(RequireAuth(d.Auth))
				r.Post("/logout-all", h.logoutAll)
				r.Post("/pat", h.personalToken)
				r.Post("/password", h.changePassword)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(RequireAuth(d.Auth))
			r.Get("/me", h.me)
			r.Get("/me/sessions", h.mySessions)
			r.Get("/users/{ownerID}/resources-check", h.accessCheck)
		})
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) { WriteError(w, ErrNotFound) })
	return r
}
