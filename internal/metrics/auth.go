// Package metrics define los collectors Prometheus del núcleo de auth.
// Vive en un paquete propio para que authn, session y http puedan usarlos
// sin ciclos de import.
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Resultados usados como label "result".
const (
	ResultOK       = "ok"
	ResultRejected = "rejected"
	ResultLimited  = "rate_limited"
	ResultReuse    = "reuse"
	ResultError    = "error"
)

// Auth agrupa las métricas de autenticación. Un *Auth nil es válido y no
// registra nada (tests, CLI).
type Auth struct {
	logins         *prometheus.CounterVec
	refreshes      *prometheus.CounterVec
	reuse          prometheus.Counter
	decisions      *prometheus.CounterVec
	sessionsPurged prometheus.Counter
	rehashes       prometheus.Counter
	loginLatency   prometheus.Histogram
}

// NewAuth crea y registra las métricas en reg (o el registry default si es nil).
// Si ya estaban registradas reutiliza los collectors existentes.
func NewAuth(reg prometheus.Registerer) (*Auth, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Auth{
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "camguard_auth_logins_total",
			Help: "Intentos de login por resultado",
		}, []string{"result"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "camguard_auth_refreshes_total",
			Help: "Rotaciones de refresh token por resultado",
		}, []string{"result"}),
		reuse: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "camguard_auth_refresh_reuse_total",
			Help: "Refresh tokens reutilizados (sesión revocada)",
		}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "camguard_authz_decisions_total",
			Help: "Decisiones de autorización por rol y resultado",
		}, []string{"role", "decision"}),
		sessionsPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "camguard_sessions_purged_total",
			Help: "Sesiones expiradas o revocadas eliminadas por el janitor",
		}),
		rehashes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "camguard_password_rehash_total",
			Help: "Hashes de password actualizados a parámetros nuevos en login",
		}),
		loginLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "camguard_auth_login_duration_seconds",
			Help:    "Duración del login (incluye argon2)",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
	}

	var err error
	if m.logins, err = register(reg, m.logins); err != nil {
		return nil, err
	}
	if m.refreshes, err = register(reg, m.refreshes); err != nil {
		return nil, err
	}
	if m.reuse, err = register(reg, m.reuse); err != nil {
		return nil, err
	}
	if m.decisions, err = register(reg, m.decisions); err != nil {
		return nil, err
	}
	if m.sessionsPurged, err = register(reg, m.sessionsPurged); err != nil {
		return nil, err
	}
	if m.rehashes, err = register(reg, m.rehashes); err != nil {
		return nil, err
	}
	if m.loginLatency, err = register(reg, m.loginLatency); err != nil {
		return nil, err
	}
	return m, nil
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func (m *Auth) Login(result string, seconds float64) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(result).Inc()
	m.loginLatency.Observe(seconds)
}

func (m *Auth) Refresh(result string) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(result).Inc()
	if result == ResultReuse {
		m.reuse.Inc()
	}
}

func (m *Auth) Decision(role string, allowed bool) {
	if m == nil {
		return
	}
	d := "deny"
	if allowed {
		d = "allow"
	}
	m.decisions.WithLabelValues(role, d).Inc()
}

func (m *Auth) SessionsPurged(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.sessionsPurged.Add(float64(n))
}

func (m *Auth) Rehashed() {
	if m == nil {
		return
	}
	m.rehashes.Inc()
}
