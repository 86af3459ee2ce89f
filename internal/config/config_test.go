package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFile_Defaults(t *testing.T) {
	cfg, err := LoadFile("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.ServerAddr)
	assert.Equal(t, BackendMemory, cfg.StoreBackend)
	assert.Equal(t, 3, cfg.Ledger.MaxConflictRetries)
	assert.Equal(t, 500, cfg.Projections.BatchSize)
	assert.Equal(t, "wms.stock-ledger.events", cfg.Kafka.Topic)
	assert.False(t, cfg.Relay.Enabled)
}

func TestLoadFile_YAMLThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
serverAddr: ":9000"
storeBackend: mongodb
mongodb:
  uri: mongodb://mongo:27017/?replicaSet=rs0
  database: ledger_test
projections:
  batchSize: 50
  pollInterval: 250ms
relay:
  enabled: true
`), 0o600))

	t.Setenv("MONGODB_DATABASE", "from_env")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("LEDGER_MAX_CONFLICT_RETRIES", "7")

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.ServerAddr)
	assert.Equal(t, BackendMongoDB, cfg.StoreBackend)
	assert.Equal(t, "mongodb://mongo:27017/?replicaSet=rs0", cfg.MongoDB.URI)
	assert.Equal(t, "from_env", cfg.MongoDB.Database)
	assert.Equal(t, 50, cfg.Projections.BatchSize)
	assert.Equal(t, 250*time.Millisecond, cfg.Projections.PollInterval)
	assert.True(t, cfg.Relay.Enabled)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 7, cfg.Ledger.MaxConflictRetries)

	assert.Equal(t, "from_env", cfg.MongoDBClientConfig().Database)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaClientConfig().Brokers)
}

func TestLoadFile_Rejects(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "unknown backend", env: map[string]string{"STORE_BACKEND": "postgres"}},
		{name: "non numeric retries", env: map[string]string{"LEDGER_MAX_CONFLICT_RETRIES": "many"}},
		{name: "zero batch size", env: map[string]string{"REBUILD_BATCH_SIZE": "0"}},
		{name: "bad bool", env: map[string]string{"RELAY_ENABLED": "perhaps"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadFile("")
			assert.Error(t, err)
		})
	}
}

func TestLoadFile_MissingFile(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
