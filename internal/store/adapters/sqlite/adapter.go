// Package sqlite implementa el adapter SQLite (github.com/mattn/go-sqlite3).
//
// Abre dos pools sobre el mismo archivo: uno de escritura con una sola
// conexión y _txlock=immediate, que serializa las transacciones de rotación,
// y uno de lectura para el resto. Ambos usan WAL, busy_timeout y
// foreign_keys=on.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"

	"github.com/dropDatabas3/camguard/internal/domain/repository"
	store "github.com/dropDatabas3/camguard/internal/store"
	migrations "github.com/dropDatabas3/camguard/migrations/sqlite"
)

func init() {
	store.RegisterAdapter(&sqliteAdapter{})
}

const (
	defaultBusyTimeout = "5000"
	defaultSynchronous = "NORMAL"
	defaultJournalMode = "WAL"
)

type sqliteAdapter struct{}

func (a *sqliteAdapter) Name() string { return "sqlite" }

func (a *sqliteAdapter) Connect(ctx context.Context, cfg store.AdapterConfig) (store.AdapterConnection, error) {
	return Open(ctx, cfg.DSN, cfg.MaxOpenConns)
}

// Connection es una conexión activa a SQLite. Implementa
// store.AdapterConnection y store.MigratableConnection.
type Connection struct {
	write *sql.DB
	read  *sql.DB
}

// Open abre el par de pools para path. readMaxOpen <= 0 usa 4.
func Open(ctx context.Context, path string, readMaxOpen int) (*Connection, error) {
	path = strings.TrimPrefix(strings.TrimSpace(path), "sqlite://")
	if path == "" {
		return nil, errors.New("sqlite: empty path")
	}
	w, err := openPool(ctx, path, "write", 1)
	if err != nil {
		return nil, err
	}
	if readMaxOpen <= 0 {
		readMaxOpen = 4
	}
	r, err := openPool(ctx, path, "read", readMaxOpen)
	if err != nil {
		_ = w.Close()
		return nil, err
	}
	return &Connection{write: w, read: r}, nil
}

func openPool(ctx context.Context, path, mode string, maxOpen int) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", buildDSN(path, mode))
	if err != nil {
		return nil, fmt.Errorf("sqlite: open (%s): %w", mode, err)
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxOpen)
	db.SetConnMaxLifetime(time.Hour)

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: ping (%s): %w", mode, err)
	}
	return db, nil
}

func buildDSN(path, mode string) string {
	params := url.Values{}
	params.Set("_journal_mode", defaultJournalMode)
	params.Set("_busy_timeout", defaultBusyTimeout)
	params.Set("_synchronous", defaultSynchronous)
	params.Set("_foreign_keys", "on")
	if mode == "write" {
		params.Set("_txlock", "immediate")
	}
	return path + "?" + params.Encode()
}

func (c *Connection) Name() string { return "sqlite" }

// Pools expone los *sql.DB de escritura y lectura (métricas).
func (c *Connection) Pools() (write, read *sql.DB) { return c.write, c.read }

func (c *Connection) Ping(ctx context.Context) error {
	return c.read.PingContext(ctx)
}

func (c *Connection) Close() error {
	return errors.Join(c.read.Close(), c.write.Close())
}

func (c *Connection) Users() repository.UserRepository {
	return &userRepo{write: c.write, read: c.read}
}

func (c *Connection) Sessions() repository.SessionRepository {
	return &sessionRepo{write: c.write, read: c.read}
}

// Migrate aplica las migraciones embebidas con goose.
func (c *Connection) Migrate(ctx context.Context) (int64, error) {
	fsys, err := fs.Sub(migrations.CoreFS, migrations.CoreDir)
	if err != nil {
		return 0, fmt.Errorf("sqlite: migrations fs: %w", err)
	}
	p, err := goose.NewProvider(goose.DialectSQLite3, c.write, fsys)
	if err != nil {
		return 0, fmt.Errorf("sqlite: goose provider: %w", err)
	}
	if _, err := p.Up(ctx); err != nil {
		return 0, fmt.Errorf("sqlite: goose up: %w", err)
	}
	return p.GetDBVersion(ctx)
}

// isUniqueViolation detecta violaciones de UNIQUE / PRIMARY KEY.
func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique ||
			se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

func nullTimeToPtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}
