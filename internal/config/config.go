package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

var (
	ErrInvalidBatchSize    = errors.New("batch size must be positive")
	ErrInvalidDelay        = errors.New("delay must be positive")
	ErrInvalidThreshold    = errors.New("zone threshold must be in (0, 1]")
	ErrUnknownSessionStore = errors.New("unknown session store driver")
	ErrMissingJWTSecret    = errors.New("JWT_SECRET is required in production")
	ErrInvalidRateLimit    = errors.New("INGEST_RATE_LIMIT must be >= 0 with a positive INGEST_RATE_BURST")
)

type Config struct {
	Environment string
	LogLevel    string
	HTTPPort    string
	GRPCPort    string
	JWTSecret   string
	CORSOrigin  string
	RateLimit   RateLimitConfig
	Postgres    PostgresConfig
	Kafka       KafkaConfig
	Client      ClientConfig
}

// RateLimitConfig throttles ingestion per client IP. A zero RPS disables it.
type RateLimitConfig struct {
	RPS   float64
	Burst int
}

type PostgresConfig struct {
	Host            string
	Port            string
	Database        string
	Username        string
	Password        string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	SSLMode         string
	AutoMigrate     bool
}

type KafkaConfig struct {
	Brokers          []string
	Topic            string
	ConsumerGroup    string
	ProducerRetries  int
	ProducerTimeout  time.Duration
	RequiredAcks     int
	CompressionType  string
	MaxMessageBytes  int
	IdempotentWrites bool
}

// ClientConfig configures the tracking SDK embedded in a client process.
type ClientConfig struct {
	APIBase        string
	RequestTimeout time.Duration
	BeaconTimeout  time.Duration
	Device         string
	Referrer       string

	BatchSize  int
	FlushDelay time.Duration

	CornerBatchSize  int
	CornerFlushDelay time.Duration
	CornerMinDwell   time.Duration

	ZoneMinViewDuration time.Duration
	ZoneThreshold       float64

	Session SessionStoreConfig
}

type SessionStoreConfig struct {
	Driver        string
	SQLitePath    string
	RedisAddress  string
	RedisPassword string
	RedisDB       int
}

func Load() (*Config, error) {
	_ = godotenv.Load()
	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		HTTPPort:    getEnv("HTTP_PORT", "8080"),
		GRPCPort:    getEnv("GRPC_PORT", "50051"),
		JWTSecret:   getEnv("JWT_SECRET", ""),
		CORSOrigin:  getEnv("CORS_ORIGIN", "*"),
		RateLimit: RateLimitConfig{
			RPS:   getEnvAsFloat("INGEST_RATE_LIMIT", 20),
			Burst: getEnvAsInt("INGEST_RATE_BURST", 40),
		},
	}

	cfg.Postgres = PostgresConfig{
		Host:            getEnv("POSTGRES_HOST", "localhost"),
		Port:            getEnv("POSTGRES_PORT", "5432"),
		Database:        getEnv("POSTGRES_DB", "engagement"),
		Username:        getEnv("POSTGRES_USER", "admin"),
		Password:        getEnv("POSTGRES_PASSWORD", "password"),
		MaxOpenConns:    getEnvAsInt("POSTGRES_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    getEnvAsInt("POSTGRES_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: getEnvAsDuration("POSTGRES_CONN_MAX_LIFETIME", 5*time.Minute),
		SSLMode:         getEnv("POSTGRES_SSL_MODE", "disable"),
		AutoMigrate:     getEnvAsBool("POSTGRES_AUTO_MIGRATE", true),
	}

	topic := getEnv("KAFKA_TOPIC_EVENTS", "tracked-events")
	cfg.Kafka = KafkaConfig{
		Brokers:          splitList(getEnv("KAFKA_BROKERS", "localhost:9092")),
		Topic:            topic,
		ConsumerGroup:    getEnv("KAFKA_CONSUMER_GROUP", topic+"-analytics"),
		ProducerRetries:  getEnvAsInt("KAFKA_PRODUCER_RETRIES", 3),
		ProducerTimeout:  getEnvAsDuration("KAFKA_PRODUCER_TIMEOUT", 10*time.Second),
		RequiredAcks:     getEnvAsInt("KAFKA_REQUIRED_ACKS", -1), // -1 = all in-sync replicas
		CompressionType:  getEnv("KAFKA_COMPRESSION", "snappy"),
		IdempotentWrites: getEnvAsBool("KAFKA_IDEMPOTENT", true),
		MaxMessageBytes:  getEnvAsInt("KAFKA_MAX_MESSAGE_BYTES", 1000000),
	}

	cfg.Client = ClientConfig{
		APIBase:        getEnv("TRACKING_API_BASE", "http://localhost:8080/api"),
		RequestTimeout: getEnvAsDuration("TRACKING_REQUEST_TIMEOUT", 10*time.Second),
		BeaconTimeout:  getEnvAsDuration("BEACON_TIMEOUT", 5*time.Second),
		Device:         getEnv("TRACKING_DEVICE", "go-client"),
		Referrer:       getEnv("TRACKING_REFERRER", ""),

		BatchSize:  getEnvAsInt("TRACKING_BATCH_SIZE", 10),
		FlushDelay: getEnvAsDuration("TRACKING_FLUSH_DELAY", 5*time.Second),

		CornerBatchSize:  getEnvAsInt("CORNER_BATCH_SIZE", 5),
		CornerFlushDelay: getEnvAsDuration("CORNER_FLUSH_DELAY", 10*time.Second),
		CornerMinDwell:   getEnvAsDuration("CORNER_MIN_DWELL", 3*time.Second),

		ZoneMinViewDuration: getEnvAsDuration("ZONE_MIN_VIEW_DURATION", 1500*time.Millisecond),
		ZoneThreshold:       getEnvAsFloat("ZONE_THRESHOLD", 0.5),

		Session: SessionStoreConfig{
			Driver:        getEnv("SESSION_STORE", "memory"),
			SQLitePath:    getEnv("SESSION_SQLITE_PATH", "tiger-session.db"),
			RedisAddress:  getEnv("REDIS_ADDRESS", "localhost:6379"),
			RedisPassword: getEnv("REDIS_PASSWORD", ""),
			RedisDB:       getEnvAsInt("REDIS_DB", 0),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	cl := c.Client
	if cl.BatchSize <= 0 {
		return fmt.Errorf("TRACKING_BATCH_SIZE: %w", ErrInvalidBatchSize)
	}
	if cl.CornerBatchSize <= 0 {
		return fmt.Errorf("CORNER_BATCH_SIZE: %w", ErrInvalidBatchSize)
	}
	for name, d := range map[string]time.Duration{
		"TRACKING_FLUSH_DELAY":   cl.FlushDelay,
		"CORNER_FLUSH_DELAY":     cl.CornerFlushDelay,
		"CORNER_MIN_DWELL":       cl.CornerMinDwell,
		"ZONE_MIN_VIEW_DURATION": cl.ZoneMinViewDuration,
		"BEACON_TIMEOUT":         cl.BeaconTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("%s: %w", name, ErrInvalidDelay)
		}
	}
	if cl.ZoneThreshold <= 0 || cl.ZoneThreshold > 1 {
		return ErrInvalidThreshold
	}
	switch cl.Session.Driver {
	case "memory", "sqlite", "redis":
	default:
		return fmt.Errorf("%w: %q", ErrUnknownSessionStore, cl.Session.Driver)
	}
	if c.RateLimit.RPS < 0 || (c.RateLimit.RPS > 0 && c.RateLimit.Burst <= 0) {
		return ErrInvalidRateLimit
	}
	if c.Environment == "production" && c.JWTSecret == "" {
		return ErrMissingJWTSecret
	}
	return nil
}

// PostgresDSN renders the lib/pq keyword/value connection string.
func (c *PostgresConfig) PostgresDSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.Username, c.Password, c.Database, c.SSLMode)
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

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

// parseEnv returns fallback when key is unset or does not parse.
func parseEnv[T any](key string, fallback T, parse func(string) (T, error)) T {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	v, err := parse(strings.TrimSpace(raw))
	if err != nil {
		return fallback
	}
	return v
}

func getEnvAsInt(key string, fallback int) int {
	return parseEnv(key, fallback, strconv.Atoi)
}

func getEnvAsBool(key string, fallback bool) bool {
	return parseEnv(key, fallback, strconv.ParseBool)
}

func getEnvAsFloat(key string, fallback float64) float64 {
	return parseEnv(key, fallback, func(s string) (float64, error) {
		return strconv.ParseFloat(s, 64)
	})
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	return parseEnv(key, fallback, time.ParseDuration)
}
