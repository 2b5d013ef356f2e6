package pg_test

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	store "github.com/dropDatabas3/camguard/internal/store"
	_ "github.com/dropDatabas3/camguard/internal/store/adapters/pg"
	"github.com/dropDatabas3/camguard/internal/store/storetest"
)

func TestPostgresAdapterRegistered(t *testing.T) {
	adapter, ok := store.GetAdapter("postgres")
	require.True(t, ok)
	assert.Equal(t, "postgres", adapter.Name())

	_, err := adapter.Connect(context.Background(), store.AdapterConfig{Name: "postgres"})
	assert.Error(t, err, "connect without DSN must fail")
}

// TestPostgresConformance necesita una base desechable en CAMGUARD_PG_DSN.
// Cada subtest trunca las tablas antes de arrancar.
func TestPostgresConformance(t *testing.T) {
	dsn := os.Getenv("CAMGUARD_PG_DSN")
	if dsn == "" {
		t.Skip("CAMGUARD_PG_DSN not set")
	}
	ctx := context.Background()
	storetest.Run(t, func(t *testing.T) store.AdapterConnection {
		conn, err := store.OpenAdapter(ctx, store.AdapterConfig{Name: "postgres", DSN: dsn, MaxOpenConns: 10})
		require.NoError(t, err)
		t.Cleanup(func() { _ = conn.Close() })

		_, err = store.Migrate(ctx, conn)
		require.NoError(t, err)

		type pooled interface{ Truncate(context.Context) error }
		require.NoError(t, conn.(pooled).Truncate(ctx))
		return conn
	})
}
