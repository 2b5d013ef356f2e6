// Package pg implementa el adapter PostgreSQL sobre pgxpool.
package pg

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/dropDatabas3/camguard/internal/domain/repository"
	store "github.com/dropDatabas3/camguard/internal/store"
	migrations "github.com/dropDatabas3/camguard/migrations/postgres"
)

func init() {
	store.RegisterAdapter(&pgAdapter{})
}

type pgAdapter struct{}

func (a *pgAdapter) Name() string { return "postgres" }

func (a *pgAdapter) Connect(ctx context.Context, cfg store.AdapterConfig) (store.AdapterConnection, error) {
	if cfg.DSN == "" {
		return nil, errors.New("pg: empty DSN")
	}
	pcfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("pg: parse dsn: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		pcfg.MaxConns = int32(cfg.MaxOpenConns)
	}
	// Mapear MaxIdleConns → MinConns (pgxpool)
	if cfg.MaxIdleConns > 0 {
		pcfg.MinConns = int32(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		pcfg.MaxConnLifetime = cfg.ConnMaxLifetime
		pcfg.MaxConnIdleTime = cfg.ConnMaxLifetime
	}
	if pcfg.MaxConns == 0 {
		pcfg.MaxConns = 10
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("pg: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pg: ping failed: %w", err)
	}
	return NewConnection(pool), nil
}

// Connection es una conexión activa a PostgreSQL.
type Connection struct {
	pool *pgxpool.Pool
}

// NewConnection envuelve un pool existente.
func NewConnection(pool *pgxpool.Pool) *Connection {
	return &Connection{pool: pool}
}

func (c *Connection) Name() string { return "postgres" }

func (c *Connection) Ping(ctx context.Context) error { return c.pool.Ping(ctx) }

func (c *Connection) Close() error {
	c.pool.Close()
	return nil
}

// Pool expone el pool interno para usos avanzados (metrics).
func (c *Connection) Pool() *pgxpool.Pool { return c.pool }

func (c *Connection) Users() repository.UserRepository       { return &userRepo{pool: c.pool} }
func (c *Connection) Sessions() repository.SessionRepository { return &sessionRepo{pool: c.pool} }

// Migrate aplica las migraciones embebidas con goose a través de un
// *sql.DB construido sobre el mismo pool.
func (c *Connection) Migrate(ctx context.Context) (int64, error) {
	fsys, err := fs.Sub(migrations.CoreFS, migrations.CoreDir)
	if err != nil {
		return 0, fmt.Errorf("pg: migrations fs: %w", err)
	}
	db := stdlib.OpenDBFromPool(c.pool)

	p, err := goose.NewProvider(goose.DialectPostgres, db, fsys)
	if err != nil {
		return 0, fmt.Errorf("pg: goose provider: %w", err)
	}
	if _, err := p.Up(ctx); err != nil {
		return 0, fmt.Errorf("pg: goose up: %w", err)
	}
	return p.GetDBVersion(ctx)
}

// isUniqueViolation: SQLSTATE 23505.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// Truncate vacía las tablas de auth. Solo para tests de integración.
func (c *Connection) Truncate(ctx context.Context) error {
	_, err := c.pool.Exec(ctx, `TRUNCATE auth_session_rotation, auth_session, app_user`)
	return err
}
