// Package config defines configuration parsing and helpers for the
// dsx-connect worker runtime.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds all application configuration parsed from environment
// variables prefixed DSXCONNECT_.
type Config struct {
	AppEnv          string `env:"DSXCONNECT_APP_ENV" envDefault:"dev"`
	Port            int    `env:"DSXCONNECT_PORT" envDefault:"8080"`
	OTELServiceName string `env:"DSXCONNECT_OTEL_SERVICE_NAME" envDefault:"dsx-connect-worker"`
	OTLPEndpoint    string `env:"DSXCONNECT_OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:""`

	// ResultsDB is the broker URL used for the task queue and pub/sub notifier.
	ResultsDB string `env:"DSXCONNECT_RESULTS_DB" envDefault:"redis://localhost:6379/0"`
	// RedisURL is the control-plane broker: job state, inflight gauge, malicious index, DLQ.
	RedisURL string `env:"DSXCONNECT_REDIS_URL" envDefault:"redis://localhost:6379/1"`
	// PostgresURL, when set, enables the optional DLQ archive mirror.
	PostgresURL string `env:"DSXCONNECT_POSTGRES_URL" envDefault:""`

	// KafkaBrokers, when non-empty, enables the Kafka/Redpanda bridge that
	// mirrors queue subjects for downstream analytics consumers.
	KafkaBrokers []string `env:"DSXCONNECT_KAFKA_BROKERS" envSeparator:","`

	// Scanner (DSXA) configuration.
	ScannerBaseURL        string        `env:"DSXCONNECT_SCANNER__BASE_URL" envDefault:"http://dsxa:8080"`
	ScannerAuthToken      string        `env:"DSXCONNECT_SCANNER__AUTH_TOKEN"`
	ScannerMaxInflight    int64         `env:"DSXCONNECT_SCANNER__MAX_INFLIGHT" envDefault:"16"`
	ScannerMaxFileSize    int64         `env:"DSXCONNECT_SCANNER__MAX_FILE_SIZE_BYTES" envDefault:"2147483648"`
	ScannerTimeoutSeconds time.Duration `env:"DSXCONNECT_SCANNER__TIMEOUT_SECONDS" envDefault:"600s"`

	// DIANNA (deep analysis) configuration.
	DiannaManagementURL   string        `env:"DSXCONNECT_DIANNA__MANAGEMENT_URL" envDefault:"http://dianna:9000"`
	DiannaAPIToken        string        `env:"DSXCONNECT_DIANNA__API_TOKEN"`
	DiannaChunkSizeBytes  float64       `env:"DSXCONNECT_DIANNA__CHUNK_SIZE_BYTES" envDefault:"4e6"`
	DiannaPollIntervalSec time.Duration `env:"DSXCONNECT_DIANNA__POLL_INTERVAL_SECONDS" envDefault:"3s"`
	DiannaPollTimeoutSec  time.Duration `env:"DSXCONNECT_DIANNA__POLL_TIMEOUT_SECONDS" envDefault:"300s"`
	DiannaTimeout         time.Duration `env:"DSXCONNECT_DIANNA__TIMEOUT" envDefault:"60s"`

	// Worker retry-family toggles and exponential backoff bases.
	// WorkersQueueDispatchRetryEnabled is parsed but not read by any retry
	// policy: QueueDispatchError retries follow the server_error toggle.
	WorkersConnectorRetryEnabled     bool          `env:"DSXCONNECT_WORKERS__CONNECTOR_RETRY_ENABLED" envDefault:"true"`
	WorkersDsxaRetryEnabled          bool          `env:"DSXCONNECT_WORKERS__DSXA_RETRY_ENABLED" envDefault:"true"`
	WorkersServerErrorRetryEnabled   bool          `env:"DSXCONNECT_WORKERS__SERVER_ERROR_RETRY_ENABLED" envDefault:"true"`
	WorkersQueueDispatchRetryEnabled bool          `env:"DSXCONNECT_WORKERS__QUEUE_DISPATCH_RETRY_ENABLED" envDefault:"false"`
	ConnectorRetryBackoffBase        time.Duration `env:"DSXCONNECT_WORKERS__CONNECTOR_RETRY_BACKOFF_BASE" envDefault:"1s"`
	DsxaRetryBackoffBase             time.Duration `env:"DSXCONNECT_WORKERS__DSXA_RETRY_BACKOFF_BASE" envDefault:"1s"`
	ServerErrorRetryBackoffBase      time.Duration `env:"DSXCONNECT_WORKERS__SERVER_ERROR_RETRY_BACKOFF_BASE" envDefault:"2s"`
	ScanRequestMaxRetries            int           `env:"DSXCONNECT_WORKERS__SCAN_REQUEST_MAX_RETRIES" envDefault:"1"`

	// SCAN_REQUEST_BATCH_SIZE is the default batch-worker chunk size.
	ScanRequestBatchSize int `env:"DSXCONNECT_SCAN_REQUEST_BATCH_SIZE" envDefault:"10"`

	// DLQ retention, in days. Parsed but not read: the Redis DLQ lists are
	// written without an expiry.
	DLQExpireAfterDays int `env:"DSXCONNECT_DLQ_EXPIRE_AFTER_DAYS" envDefault:"30"`

	// Syslog sink configuration.
	SyslogNetwork  string `env:"DSXCONNECT_SYSLOG__NETWORK" envDefault:""`
	SyslogAddress  string `env:"DSXCONNECT_SYSLOG__ADDRESS" envDefault:""`
	SyslogTLSCA    string `env:"DSXCONNECT_SYSLOG__TLS_CA_BUNDLE" envDefault:""`
	SyslogTLSCert  string `env:"DSXCONNECT_SYSLOG__TLS_CLIENT_CERT" envDefault:""`
	SyslogTLSKey   string `env:"DSXCONNECT_SYSLOG__TLS_CLIENT_KEY" envDefault:""`
	SyslogInsecure bool   `env:"DSXCONNECT_SYSLOG__TLS_INSECURE" envDefault:"false"`

	HTTPReadTimeout       time.Duration `env:"DSXCONNECT_HTTP_READ_TIMEOUT" envDefault:"15s"`
	HTTPWriteTimeout      time.Duration `env:"DSXCONNECT_HTTP_WRITE_TIMEOUT" envDefault:"30s"`
	HTTPIdleTimeout       time.Duration `env:"DSXCONNECT_HTTP_IDLE_TIMEOUT" envDefault:"60s"`
	ServerShutdownTimeout time.Duration `env:"DSXCONNECT_SERVER_SHUTDOWN_TIMEOUT" envDefault:"30s"`
}

// Load parses environment variables into a Config.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("op=config.Load: %w", err)
	}
	return cfg, nil
}

// IsDev reports whether the app is running in development mode.
func (c Config) IsDev() bool { return strings.ToLower(c.AppEnv) == "dev" }

// IsProd reports whether the app is running in production mode.
func (c Config) IsProd() bool { return strings.ToLower(c.AppEnv) == "prod" }

// IsTest reports whether the app is running in test mode.
func (c Config) IsTest() bool { return strings.ToLower(c.AppEnv) == "test" }

// DiannaChunkSizeBytesFloor floors DiannaChunkSizeBytes (which accepts
// scientific notation, e.g. "4e6") to a whole-byte integer chunk size.
func (c Config) DiannaChunkSizeBytesFloor() int64 {
	v := int64(c.DiannaChunkSizeBytes)
	if v <= 0 {
		return 4 * 1024 * 1024
	}
	return v
}
