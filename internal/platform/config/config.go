package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"
)

// Config holds all configuration for the engine process.
type Config struct {
	Service   ServiceConfig   `mapstructure:"service"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	S3        S3Config        `mapstructure:"s3"`
	Mongo     MongoConfig     `mapstructure:"mongo"`
	Webhook   WebhookConfig   `mapstructure:"webhook"`
	Logger    LoggerConfig    `mapstructure:"logger"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Version   string          `mapstructure:"version"`
}

// ServiceConfig holds process-identity configuration.
type ServiceConfig struct {
	Name        string `mapstructure:"name" envconfig:"SERVICE_NAME"`
	Environment string `mapstructure:"environment" envconfig:"ENVIRONMENT" default:"development"`
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port            int           `mapstructure:"port" envconfig:"HTTP_PORT" default:"8080"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" envconfig:"HTTP_READ_TIMEOUT" default:"10s"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" envconfig:"HTTP_WRITE_TIMEOUT" default:"10s"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout" envconfig:"HTTP_IDLE_TIMEOUT" default:"120s"`
	MaxRequestBytes int64         `mapstructure:"max_request_bytes" envconfig:"HTTP_MAX_REQUEST_BYTES" default:"1048576"`
}

// DatabaseConfig holds relational-store configuration. Driver selects the
// dialect (postgres|mysql); the capability itself (store.Store) stays
// dialect-agnostic and this field is the only place dialect choice leaks.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver" envconfig:"DB_DRIVER" default:"postgres"`
	Host            string        `mapstructure:"host" envconfig:"DB_HOST" default:"localhost"`
	Port            int           `mapstructure:"port" envconfig:"DB_PORT" default:"5432"`
	User            string        `mapstructure:"user" envconfig:"DB_USER" default:"postgres"`
	Password        string        `mapstructure:"password" envconfig:"DB_PASSWORD" default:"postgres"`
	Database        string        `mapstructure:"database" envconfig:"DB_NAME" default:"workflow_engine"`
	Schema          string        `mapstructure:"schema" envconfig:"DB_SCHEMA" default:"workflow_engine"`
	SSLMode         string        `mapstructure:"ssl_mode" envconfig:"DB_SSL_MODE" default:"disable"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" envconfig:"DB_MAX_OPEN_CONNS" default:"25"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" envconfig:"DB_MAX_IDLE_CONNS" default:"5"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" envconfig:"DB_CONN_MAX_LIFETIME" default:"5m"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time" envconfig:"DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

// RedisConfig holds configuration for the optional circuit-breaker
// cross-process StateStore.
type RedisConfig struct {
	Enabled      bool          `mapstructure:"enabled" envconfig:"REDIS_ENABLED" default:"false"`
	Host         string        `mapstructure:"host" envconfig:"REDIS_HOST" default:"localhost"`
	Port         int           `mapstructure:"port" envconfig:"REDIS_PORT" default:"6379"`
	Password     string        `mapstructure:"password" envconfig:"REDIS_PASSWORD"`
	DB           int           `mapstructure:"db" envconfig:"REDIS_DB" default:"0"`
	PoolSize     int           `mapstructure:"pool_size" envconfig:"REDIS_POOL_SIZE" default:"10"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout" envconfig:"REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" envconfig:"REDIS_READ_TIMEOUT" default:"3s"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" envconfig:"REDIS_WRITE_TIMEOUT" default:"3s"`
}

// KafkaConfig holds configuration for the best-effort lifecycle-event
// publisher.
type KafkaConfig struct {
	Enabled       bool     `mapstructure:"enabled" envconfig:"KAFKA_ENABLED" default:"false"`
	Brokers       []string `mapstructure:"brokers" envconfig:"KAFKA_BROKERS" default:"localhost:9092"`
	ConsumerGroup string   `mapstructure:"consumer_group" envconfig:"KAFKA_CONSUMER_GROUP"`
}

// S3Config holds configuration for the node-payload blob offload store.
type S3Config struct {
	Enabled        bool   `mapstructure:"enabled" envconfig:"S3_ENABLED" default:"false"`
	Bucket         string `mapstructure:"bucket" envconfig:"S3_BUCKET"`
	Region         string `mapstructure:"region" envconfig:"S3_REGION" default:"us-east-1"`
	Endpoint       string `mapstructure:"endpoint" envconfig:"S3_ENDPOINT"`
	ForcePathStyle bool   `mapstructure:"force_path_style" envconfig:"S3_FORCE_PATH_STYLE" default:"false"`
	InlineMaxBytes int    `mapstructure:"inline_max_bytes" envconfig:"S3_INLINE_MAX_BYTES" default:"262144"`
}

// MongoConfig holds configuration for the optional secondary execution
// history mirror.
type MongoConfig struct {
	Enabled    bool   `mapstructure:"enabled" envconfig:"MONGO_ENABLED" default:"false"`
	URI        string `mapstructure:"uri" envconfig:"MONGO_URI" default:"mongodb://localhost:27017"`
	Database   string `mapstructure:"database" envconfig:"MONGO_DATABASE" default:"workflow_engine"`
	Collection string `mapstructure:"collection" envconfig:"MONGO_COLLECTION" default:"execution_history"`
}

// WebhookConfig holds a signing secret and token TTL for wait-for-webhook
// resume tokens. Nothing in the engine reads it: resume deliveries are
// accepted by wait_id alone, without a token.
type WebhookConfig struct {
	SigningSecret string        `mapstructure:"signing_secret" envconfig:"WEBHOOK_SIGNING_SECRET" default:"change-me-in-production"`
	TokenTTL      time.Duration `mapstructure:"token_ttl" envconfig:"WEBHOOK_TOKEN_TTL" default:"24h"`
}

// LoggerConfig holds logger configuration.
type LoggerConfig struct {
	Level      string `mapstructure:"level" envconfig:"LOG_LEVEL" default:"info"`
	Format     string `mapstructure:"format" envconfig:"LOG_FORMAT" default:"json"`
	OutputPath string `mapstructure:"output_path" envconfig:"LOG_OUTPUT_PATH" default:"stdout"`
}

// TelemetryConfig holds tracing/metrics configuration.
type TelemetryConfig struct {
	MetricsEnabled bool   `mapstructure:"metrics_enabled" envconfig:"METRICS_ENABLED" default:"true"`
	TracingEnabled bool   `mapstructure:"tracing_enabled" envconfig:"TRACING_ENABLED" default:"false"`
	JaegerEndpoint string `mapstructure:"jaeger_endpoint" envconfig:"JAEGER_ENDPOINT" default:"http://localhost:14268/api/traces"`
	ServiceName    string `mapstructure:"service_name" envconfig:"TELEMETRY_SERVICE_NAME"`
}

// Load loads configuration from ./configs/config.yaml (if present) and
// layers environment-variable overrides on top.
func Load(serviceName string) (*Config, error) {
	var cfg Config

	cfg.Service.Name = serviceName
	cfg.Telemetry.ServiceName = serviceName

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env vars: %w", err)
	}

	if cfg.Kafka.ConsumerGroup == "" {
		cfg.Kafka.ConsumerGroup = serviceName + "-consumer"
	}

	if version := os.Getenv("VERSION"); version != "" {
		cfg.Version = version
	} else {
		cfg.Version = "dev"
	}

	return &cfg, nil
}

// DSN returns the Postgres connection string.
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// MySQLDSN returns the go-sql-driver/mysql connection string.
func (c *DatabaseConfig) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true", c.User, c.Password, c.Host, c.Port, c.Database)
}

// Addr returns the Redis address.
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
