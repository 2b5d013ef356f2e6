package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	store "github.com/dropDatabas3/camguard/internal/store"
	_ "github.com/dropDatabas3/camguard/internal/store/adapters/dal"
)

func TestAllAdaptersRegistered(t *testing.T) {
	assert.Equal(t, []string{"memory", "postgres", "sqlite"}, store.ListAdapters())
}

func TestOpenUnknownAdapter(t *testing.T) {
	_, err := store.OpenAdapter(context.Background(), store.AdapterConfig{Name: "mongo"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not registered")
}

func TestMigrateWithoutSchema(t *testing.T) {
	conn, err := store.OpenAdapter(context.Background(), store.AdapterConfig{Name: "memory"})
	require.NoError(t, err)
	v, err := store.Migrate(context.Background(), conn)
	require.NoError(t, err)
	assert.EqualValues(t, -1, v)
}

type dupAdapter struct{}

func (dupAdapter) Name() string { return "memory" }
func (dupAdapter) Connect(context.Context, store.AdapterConfig) (store.AdapterConnection, error) {
	return nil, nil
}

func TestRegisterDuplicatePanics(t *testing.T) {
	assert.Panics(t, func() { store.RegisterAdapter(dupAdapter{}) })
}
