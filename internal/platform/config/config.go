// Package config loads process configuration from ONBOARD_* environment
// variables.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the full process configuration.
type Config struct {
	Server       Server
	Redis        RedisConfig
	Postgres     PostgresConfig
	Registration Registration
	Notification Notification
	RateLimit    RateLimit
	Audit        Audit
	Tracing      Tracing
	Log          Log
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string        `env:"ONBOARD_ADDR" envDefault:":8080"`
	ShutdownTimeout time.Duration `env:"ONBOARD_SHUTDOWN_TIMEOUT" envDefault:"15s"`
	RequestTimeout  time.Duration `env:"ONBOARD_REQUEST_TIMEOUT" envDefault:"30s"`
	// ReviewerSigningKey verifies reviewer bearer tokens on the decision endpoint.
	ReviewerSigningKey string `env:"ONBOARD_REVIEWER_SIGNING_KEY"`
	ReviewerIssuer     string `env:"ONBOARD_REVIEWER_ISSUER" envDefault:"onboard"`
	ReviewerAudience   string `env:"ONBOARD_REVIEWER_AUDIENCE" envDefault:"onboard-reviewers"`
	DevMode            bool   `env:"ONBOARD_DEV_MODE"`
	// OpsToken guards /metrics when set.
	OpsToken string `env:"ONBOARD_OPS_TOKEN"`
}

// RedisConfig holds the session store connection settings. An empty URL
// selects the in-memory session store.
type RedisConfig struct {
	URL          string        `env:"ONBOARD_REDIS_URL"`
	PoolSize     int           `env:"ONBOARD_REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"ONBOARD_REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	DialTimeout  time.Duration `env:"ONBOARD_REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"ONBOARD_REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"ONBOARD_REDIS_WRITE_TIMEOUT" envDefault:"3s"`
	ScanCount    int64         `env:"ONBOARD_REDIS_SCAN_COUNT" envDefault:"100"`
}

// PostgresConfig holds the affiliate store connection settings. An empty DSN
// selects the in-memory affiliate store.
type PostgresConfig struct {
	DSN             string        `env:"ONBOARD_DATABASE_URL"`
	MaxOpenConns    int           `env:"ONBOARD_DATABASE_MAX_OPEN_CONNS" envDefault:"10"`
	MaxIdleConns    int           `env:"ONBOARD_DATABASE_MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxLifetime time.Duration `env:"ONBOARD_DATABASE_CONN_MAX_LIFETIME" envDefault:"30m"`
	Migrate         bool          `env:"ONBOARD_DATABASE_MIGRATE" envDefault:"true"`
}

// Registration holds the workflow knobs.
type Registration struct {
	SessionTTL              time.Duration `env:"ONBOARD_SESSION_TTL" envDefault:"72h"`
	MaxVerificationAttempts int           `env:"ONBOARD_MAX_VERIFICATION_ATTEMPTS" envDefault:"5"`
	DecisionLease           time.Duration `env:"ONBOARD_DECISION_LEASE" envDefault:"2m"`
	PublicBaseURL           string        `env:"ONBOARD_PUBLIC_BASE_URL" envDefault:"http://localhost:8080"`
	ReviewerEmails          []string      `env:"ONBOARD_REVIEWER_EMAILS" envSeparator:","`
	BlockedDomains          []string      `env:"ONBOARD_BLOCKED_DOMAINS" envSeparator:","`
	AllowedCountries        []string      `env:"ONBOARD_ALLOWED_COUNTRIES" envSeparator:","`
}

// Notification selects and configures the mail transport. Without a SendGrid
// key messages are written to the log.
type Notification struct {
	SendGridAPIKey   string        `env:"ONBOARD_SENDGRID_API_KEY"`
	FromAddress      string        `env:"ONBOARD_MAIL_FROM" envDefault:"no-reply@onboard.local"`
	FromName         string        `env:"ONBOARD_MAIL_FROM_NAME" envDefault:"Onboarding"`
	SendTimeout      time.Duration `env:"ONBOARD_MAIL_SEND_TIMEOUT" envDefault:"10s"`
	FailureThreshold int           `env:"ONBOARD_MAIL_FAILURE_THRESHOLD" envDefault:"5"`
	CoolDown         time.Duration `env:"ONBOARD_MAIL_COOL_DOWN" envDefault:"30s"`
}

// RateLimit throttles the unauthenticated endpoints per client IP.
type RateLimit struct {
	Requests int           `env:"ONBOARD_RATELIMIT_REQUESTS" envDefault:"20"`
	Window   time.Duration `env:"ONBOARD_RATELIMIT_WINDOW" envDefault:"1m"`
	Burst    int           `env:"ONBOARD_RATELIMIT_BURST" envDefault:"20"`
}

// Audit selects where audit events go. Without brokers they stay in memory.
type Audit struct {
	KafkaBrokers     []string `env:"ONBOARD_AUDIT_KAFKA_BROKERS" envSeparator:","`
	KafkaTopic       string   `env:"ONBOARD_AUDIT_KAFKA_TOPIC" envDefault:"onboard.audit"`
	TopicPartitions  int32    `env:"ONBOARD_AUDIT_KAFKA_PARTITIONS" envDefault:"3"`
	TopicReplication int16    `env:"ONBOARD_AUDIT_KAFKA_REPLICATION" envDefault:"1"`
	BufferSize       int      `env:"ONBOARD_AUDIT_BUFFER_SIZE" envDefault:"1024"`
}

// Tracing is opt-in: an empty endpoint disables span export.
type Tracing struct {
	Endpoint    string `env:"ONBOARD_OTEL_ENDPOINT"`
	ServiceName string `env:"ONBOARD_OTEL_SERVICE_NAME" envDefault:"onboard"`
}

type Log struct {
	Level  string `env:"ONBOARD_LOG_LEVEL" envDefault:"info"`
	Format string `env:"ONBOARD_LOG_FORMAT" envDefault:"json"`
}

// FromEnv parses the environment and checks the settings main depends on.
func FromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Server.ReviewerSigningKey == "" {
		if !c.Server.DevMode {
			return errors.New("ONBOARD_REVIEWER_SIGNING_KEY is required outside dev mode")
		}
	}
	if c.Registration.SessionTTL <= 0 {
		return errors.New("ONBOARD_SESSION_TTL must be positive")
	}
	if c.Registration.DecisionLease <= 0 {
		return errors.New("ONBOARD_DECISION_LEASE must be positive")
	}
	if c.Registration.MaxVerificationAttempts <= 0 {
		return errors.New("ONBOARD_MAX_VERIFICATION_ATTEMPTS must be positive")
	}
	if c.RateLimit.Requests <= 0 || c.RateLimit.Window <= 0 {
		return errors.New("rate limit requests and window must be positive")
	}
	return nil
}

// DevSigningKey is used for reviewer tokens when dev mode runs without a key.
const DevSigningKey = "dev-reviewer-key-change-me"

// SigningKey returns the configured reviewer key, or the dev key in dev mode.
func (s Server) SigningKey() string {
	if s.ReviewerSigningKey == "" && s.DevMode {
		return DevSigningKey
	}
	return s.ReviewerSigningKey
}
