package bootstrap

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smsinbox/internal/config"
	"smsinbox/internal/logger"
	"smsinbox/internal/storage"
	"smsinbox/pkg/metrics"
	"smsinbox/pkg/models"
)

func testConfig(db config.DatabaseConfig) *config.Config {
	db.QueryTimeout = 5 * time.Second
	return &config.Config{Database: db}
}

func TestOpenStore_Memory(t *testing.T) {
	dc := NewDatabaseConnector(testConfig(config.DatabaseConfig{Driver: "memory"}), logger.NopLogger(), nil)

	store, err := dc.OpenStore(context.Background())
	require.NoError(t, err)
	assert.IsType(t, &storage.InstrumentedStore{}, store)
	assert.NoError(t, store.Ping(context.Background()))
}

func TestOpenStore_SQLiteMigratesAndWraps(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "inbox.db")
	cfg := testConfig(config.DatabaseConfig{
		URL:           "sqlite:///" + path,
		RunMigrations: true,
	})
	cfg.CircuitBreaker = config.CircuitBreakerConfig{Enabled: true}

	reg := metrics.NewRegistry()
	dc := NewDatabaseConnector(cfg, logger.NopLogger(), reg)

	store, err := dc.OpenStore(context.Background())
	require.NoError(t, err)
	assert.IsType(t, &storage.CircuitBreakerStore{}, store)

	ctx := context.Background()
	require.NoError(t, store.Ping(ctx))
	require.NoError(t, store.Insert(ctx, &models.Message{
		MessageID: "m1", From: "+1", To: "+2", TS: "2025-01-15T10:00:00Z", CreatedAt: "2025-01-15T10:00:00.000Z",
	}))

	assert.Empty(t, dc.ShutdownDatabases(store, nil))
}

func TestOpenStore_NoBackend(t *testing.T) {
	dc := NewDatabaseConnector(testConfig(config.DatabaseConfig{}), logger.NopLogger(), nil)

	_, err := dc.OpenStore(context.Background())
	assert.Error(t, err)
}

func TestInitRedis_Disabled(t *testing.T) {
	dc := NewDatabaseConnector(testConfig(config.DatabaseConfig{}), logger.NopLogger(), nil)

	client, err := dc.InitRedis(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, client)
}
