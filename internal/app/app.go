// Package app arma el grafo de dependencias del proceso a partir de la
// config: storage, codec, hasher, limiter, métricas y servicios.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	rdb "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/dropDatabas3/camguard/internal/authn"
	"github.com/dropDatabas3/camguard/internal/authz"
	"github.com/dropDatabas3/camguard/internal/bootstrap"
	"github.com/dropDatabas3/camguard/internal/config"
	camhttp "github.com/dropDatabas3/camguard/internal/http"
	jwtx "github.com/dropDatabas3/camguard/internal/jwt"
	"github.com/dropDatabas3/camguard/internal/metrics"
	"github.com/dropDatabas3/camguard/internal/observability/logger"
	"github.com/dropDatabas3/camguard/internal/rate"
	"github.com/dropDatabas3/camguard/internal/security/password"
	"github.com/dropDatabas3/camguard/internal/session"
	"github.com/dropDatabas3/camguard/internal/store"
	"github.com/dropDatabas3/camguard/internal/store/adapters/pg"
	"github.com/dropDatabas3/camguard/internal/store/adapters/sqlite"

	// registra memory, postgres y sqlite
	_ "github.com/dropDatabas3/camguard/internal/store/adapters/dal"
)

const ipLimitFactor = 5

type Container struct {
	Config   *config.Config
	Store    store.AdapterConnection
	Codec    *jwtx.Codec
	Hasher   *password.Hasher
	Limiter  rate.Limiter
	Registry *prometheus.Registry
	Metrics  *metrics.Auth
	HTTP     *camhttp.Metrics
	Auth     *authn.Service
	Policy   *authz.Policy

	redis *rdb.Client
}

// Build conecta el storage y arma los servicios. No migra ni corre el
// bootstrap: eso lo decide el comando.
func Build(ctx context.Context, cfg *config.Config) (*Container, error) {
	log := logger.FromWithFields(ctx, logger.Component("app"))

	kc, err := cfg.KeyConfig()
	if err != nil {
		return nil, err
	}
	codec, err := jwtx.NewCodec(kc, cfg.CodecOptions())
	if err != nil {
		return nil, fmt.Errorf("jwt codec: %w", err)
	}

	policy := password.DefaultPolicy()
	if cfg.Password.BlacklistPath != "" {
		bl, err := password.LoadBlacklist(cfg.Password.BlacklistPath)
		if err != nil {
			return nil, fmt.Errorf("password blacklist: %w", err)
		}
		policy.Blacklist = bl
	}
	hasher := password.NewHasher(password.Params{
		Memory:      cfg.Password.Argon2.MemoryKiB,
		Time:        cfg.Password.Argon2.Time,
		Parallelism: cfg.Password.Argon2.Parallelism,
	})

	conn, err := store.OpenAdapter(ctx, store.AdapterConfig{
		Name:            cfg.Storage.Driver,
		DSN:             cfg.Storage.DSN,
		MaxOpenConns:    cfg.Storage.MaxOpenConns,
		MaxIdleConns:    cfg.Storage.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime(),
	})
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", cfg.Storage.Driver, err)
	}

	c := &Container{
		Config:   cfg,
		Store:    conn,
		Codec:    codec,
		Hasher:   hasher,
		Registry: prometheus.NewRegistry(),
	}
	if err := c.registerCollectors(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	c.Limiter = c.buildLimiter(ctx, log)

	c.Auth = authn.New(authn.Deps{
		Users:      conn.Users(),
		Sessions:   conn.Sessions(),
		Codec:      codec,
		Hasher:     hasher,
		Policy:     policy,
		Limiter:    c.Limiter,
		Metrics:    c.Metrics,
		AccessTTL:  cfg.AccessTTL(),
		RefreshTTL: cfg.RefreshTTL(),
	})
	c.Policy = authz.NewPolicy(c.Metrics)

	log.Info("container ready",
		logger.String("storage", conn.Name()),
		logger.String("alg", codec.Algorithm()),
	)
	return c, nil
}

func (c *Container) registerCollectors() error {
	reg := c.Registry
	if err := reg.Register(collectors.NewGoCollector()); err != nil {
		return err
	}
	if err := reg.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return err
	}

	var err error
	if c.Metrics, err = metrics.NewAuth(reg); err != nil {
		return err
	}
	if c.HTTP, err = camhttp.NewMetrics(reg); err != nil {
		return err
	}

	switch conn := c.Store.(type) {
	case *pg.Connection:
		return reg.Register(camhttp.NewPoolCollector(conn.Pool))
	case *sqlite.Connection:
		w, r := conn.Pools()
		if err := reg.Register(collectors.NewDBStatsCollector(w, "sqlite_write")); err != nil {
			return err
		}
		return reg.Register(collectors.NewDBStatsCollector(r, "sqlite_read"))
	}
	return nil
}

// buildLimiter usa redis si hay REDIS_ADDR; si no, un limiter en memoria
// (solo vale para una instancia).
func (c *Container) buildLimiter(ctx context.Context, log *zap.Logger) rate.Limiter {
	cfg := c.Config
	if cfg.Rate.Login.Limit <= 0 {
		return rate.Noop{}
	}
	if cfg.Rate.Redis.Addr == "" {
		return rate.NewMemoryLimiter(cfg.Rate.Login.Limit, cfg.LoginWindow())
	}

	c.redis = rdb.NewClient(&rdb.Options{Addr: cfg.Rate.Redis.Addr, DB: cfg.Rate.Redis.DB})
	pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := c.redis.Ping(pctx).Err(); err != nil {
		// el limiter falla abierto, así que se sigue igual
		log.Warn("redis not reachable at startup", logger.String("addr", cfg.Rate.Redis.Addr), logger.Err(err))
	}
	return rate.NewRedisLimiter(c.redis, cfg.Rate.Redis.Prefix, cfg.Rate.Login.Limit, cfg.LoginWindow())
}

// Migrate aplica las migraciones del storage. -1 si el driver no migra.
func (c *Container) Migrate(ctx context.Context) (int64, error) {
	return store.Migrate(ctx, c.Store)
}

// Bootstrap corre el alta del primer admin según la config.
func (c *Container) Bootstrap(ctx context.Context) (bootstrap.Result, error) {
	svc := bootstrap.New(bootstrap.Config{
		Enabled:  c.Config.FirstUserAdmin(),
		Username: c.Config.Bootstrap.AdminUsername,
		Password: c.Config.Bootstrap.AdminPassword,
	}, bootstrap.Deps{Users: c.Store.Users(), Hasher: c.Hasher})
	return svc.Run(ctx)
}

// Janitor arma la limpieza periódica de sesiones, con métricas.
func (c *Container) Janitor() (*session.Janitor, error) {
	j, err := session.NewJanitor(c.Store.Sessions(), c.Config.Session.PurgeSchedule, c.Config.Retention(), nil)
	if err != nil {
		return nil, err
	}
	j.OnPurge = c.Metrics.SessionsPurged
	return j, nil
}

// Handler arma el router HTTP.
func (c *Container) Handler(ctx context.Context) http.Handler {
	return camhttp.NewRouter(camhttp.RouterDeps{
		Auth:        c.Auth,
		Policy:      c.Policy,
		Logger:      logger.From(ctx),
		Metrics:     c.HTTP,
		Gatherer:    c.Registry,
		IPLimiter:   c.ipLimiter(),
		CORSOrigins: c.Config.Server.CORSAllowedOrigins,
		Health:      c.Store.Ping,
	})
}

// ipLimiter acota register/login/refresh por IP. El límite por IP es más
// laxo que el de login por usuario porque detrás de un NAT hay varios.
func (c *Container) ipLimiter() rate.Limiter {
	if c.Config.Rate.Login.Limit <= 0 {
		return rate.Noop{}
	}
	return rate.NewMemoryLimiter(c.Config.Rate.Login.Limit*ipLimitFactor, c.Config.LoginWindow())
}

func (c *Container) Close() error {
	var errs []error
	if c.redis != nil {
		errs = append(errs, c.redis.Close())
	}
	if c.Store != nil {
		errs = append(errs, c.Store.Close())
	}
	return errors.Join(errs...)
}
