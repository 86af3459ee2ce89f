package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/wms-platform/stock-ledger-service/pkg/kafka"
	"github.com/wms-platform/stock-ledger-service/pkg/mongodb"
	"github.com/wms-platform/stock-ledger-service/pkg/tracing"
)

// Store backends
const (
	BackendMemory  = "memory"
	BackendMongoDB = "mongodb"
)

// Config holds the service configuration
type Config struct {
	ServerAddr   string `yaml:"serverAddr" validate:"required"`
	LogLevel     string `yaml:"logLevel"`
	Environment  string `yaml:"environment"`
	StoreBackend string `yaml:"storeBackend" validate:"oneof=memory mongodb"`

	// CORSAllowedOrigins enables CORS for browser clients when non-empty.
	CORSAllowedOrigins []string `yaml:"corsAllowedOrigins"`

	MongoDB     MongoDBConfig     `yaml:"mongodb"`
	Kafka       KafkaConfig       `yaml:"kafka"`
	Ledger      LedgerConfig      `yaml:"ledger"`
	Projections ProjectionsConfig `yaml:"projections"`
	Relay       RelayConfig       `yaml:"relay"`
	Consumer    ConsumerConfig    `yaml:"consumer"`
	Tracing     TracingConfig     `yaml:"tracing"`
}

// MongoDBConfig locates the event and view database
type MongoDBConfig struct {
	URI        string `yaml:"uri" validate:"required"`
	Database   string `yaml:"database" validate:"required"`
	ReplicaSet string `yaml:"replicaSet"`
}

// KafkaConfig locates the broker and the ledger topic
type KafkaConfig struct {
	Brokers       []string `yaml:"brokers"`
	Topic         string   `yaml:"topic" validate:"required"`
	ConsumerGroup string   `yaml:"consumerGroup"`
}

// LedgerConfig tunes command handling
type LedgerConfig struct {
	MaxConflictRetries int `yaml:"maxConflictRetries" validate:"gte=0"`
}

// ProjectionsConfig tunes the projection engine
type ProjectionsConfig struct {
	BatchSize    int           `yaml:"batchSize" validate:"gt=0"`
	PollInterval time.Duration `yaml:"pollInterval" validate:"gt=0"`
}

// RelayConfig controls publishing the log to Kafka
type RelayConfig struct {
	Enabled      bool          `yaml:"enabled"`
	PollInterval time.Duration `yaml:"pollInterval" validate:"gt=0"`
	BatchSize    int           `yaml:"batchSize" validate:"gt=0"`
}

// ConsumerConfig controls feeding projections from Kafka instead of polling the log
type ConsumerConfig struct {
	Enabled bool `yaml:"enabled"`
}

// TracingConfig controls OpenTelemetry export
type TracingConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
}

// Default returns the configuration used when nothing overrides it
func Default() *Config {
	return &Config{
		ServerAddr:   ":8080",
		LogLevel:     "info",
		Environment:  "development",
		StoreBackend: BackendMemory,
		MongoDB: MongoDBConfig{
			URI:      "mongodb://localhost:27017",
			Database: "stock_ledger",
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			Topic:         kafka.Topics.StockLedgerEvents,
			ConsumerGroup: "stock-ledger-projections",
		},
		Ledger: LedgerConfig{MaxConflictRetries: 3},
		Projections: ProjectionsConfig{
			BatchSize:    500,
			PollInterval: time.Second,
		},
		Relay: RelayConfig{
			PollInterval: time.Second,
			BatchSize:    100,
		},
		Tracing: TracingConfig{Endpoint: "localhost:4317"},
	}
}

// Load builds the configuration from defaults, the YAML file named by
// CONFIG_FILE if set, and environment overrides, in that order.
func Load() (*Config, error) {
	return LoadFile(os.Getenv("CONFIG_FILE"))
}

// LoadFile is Load with an explicit file path; an empty path skips the file.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.ServerAddr = getEnv("SERVER_ADDR", c.ServerAddr)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.Environment = getEnv("ENVIRONMENT", c.Environment)
	c.StoreBackend = getEnv("STORE_BACKEND", c.StoreBackend)
	c.MongoDB.URI = getEnv("MONGODB_URI", c.MongoDB.URI)
	c.MongoDB.Database = getEnv("MONGODB_DATABASE", c.MongoDB.Database)
	c.MongoDB.ReplicaSet = getEnv("MONGODB_REPLICA_SET", c.MongoDB.ReplicaSet)
	c.Kafka.Topic = getEnv("KAFKA_TOPIC", c.Kafka.Topic)
	c.Kafka.ConsumerGroup = getEnv("KAFKA_CONSUMER_GROUP", c.Kafka.ConsumerGroup)
	c.Tracing.Endpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", c.Tracing.Endpoint)

	if origins := os.Getenv("CORS_ALLOWED_ORIGINS"); origins != "" {
		c.CORSAllowedOrigins = splitList(origins)
	}
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		c.Kafka.Brokers = splitList(brokers)
	}

	var err error
	if c.Ledger.MaxConflictRetries, err = getEnvInt("LEDGER_MAX_CONFLICT_RETRIES", c.Ledger.MaxConflictRetries); err != nil {
		return err
	}
	if c.Projections.BatchSize, err = getEnvInt("REBUILD_BATCH_SIZE", c.Projections.BatchSize); err != nil {
		return err
	}
	if c.Tracing.Enabled, err = getEnvBool("TRACING_ENABLED", c.Tracing.Enabled); err != nil {
		return err
	}
	if c.Relay.Enabled, err = getEnvBool("RELAY_ENABLED", c.Relay.Enabled); err != nil {
		return err
	}
	if c.Consumer.Enabled, err = getEnvBool("CONSUMER_ENABLED", c.Consumer.Enabled); err != nil {
		return err
	}
	return nil
}

// Validate checks the configuration is usable
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if (c.Relay.Enabled || c.Consumer.Enabled) && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("invalid configuration: kafka brokers are required when the relay or consumer is enabled")
	}
	return nil
}

// MongoDBClientConfig converts to the client package's config
func (c *Config) MongoDBClientConfig() *mongodb.Config {
	cfg := mongodb.DefaultConfig()
	cfg.URI = c.MongoDB.URI
	cfg.Database = c.MongoDB.Database
	cfg.ReplicaSet = c.MongoDB.ReplicaSet
	return cfg
}

// KafkaClientConfig converts to the client package's config
func (c *Config) KafkaClientConfig() *kafka.Config {
	cfg := kafka.DefaultConfig()
	cfg.Brokers = c.Kafka.Brokers
	if c.Kafka.ConsumerGroup != "" {
		cfg.ConsumerGroup = c.Kafka.ConsumerGroup
	}
	return cfg
}

// TracingClientConfig converts to the tracing package's config
func (c *Config) TracingClientConfig(serviceName string) *tracing.Config {
	cfg := tracing.DefaultConfig(serviceName)
	cfg.Enabled = c.Tracing.Enabled
	cfg.OTLPEndpoint = c.Tracing.Endpoint
	cfg.Environment = c.Environment
	return cfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getEnvBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
