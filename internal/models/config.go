package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Config represents the application configuration
type Config struct {
	Database   DatabaseConfig
	Formance   FormanceConfig
	Ledger     LedgerConfig
	Services   ServicesConfig
	Retry      RetryConfig
	Breaker    BreakerConfig
	Quality    QualityConfig
	Validation ValidationConfig
	Tracker    TrackerConfig
	Server     ServerConfig
	Processor  ProcessorConfig
	Limits     LimitsConfig
	Hold       HoldPolicyConfig
	Kafka      KafkaConfig
	Redis      RedisConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Path               string
	MaxOpenConns       int
	MaxIdleConns       int
	ConnMaxLifetime    time.Duration
	ConnMaxIdleTime    time.Duration
	PingTimeout        time.Duration
	CreateDemoAccounts bool
	// EncryptionKey is the hex master key sealing MICR data at rest.
	EncryptionKey      string
}

// FormanceConfig holds Formance Stack connection settings
type FormanceConfig struct {
	StackURL     string
	ClientID     string
	ClientSecret string
	LedgerName   string
}

// LedgerConfig selects the funds ledger backend ("sqlite" or "formance")
type LedgerConfig struct {
	Backend  string
	Currency string
}

// ServicesConfig holds the upstream endpoints used by the capture pipeline
type ServicesConfig struct {
	QualityURL    string
	OcrURL        string
	ValidationURL string
	DepositURL    string
	ApiToken      string
	Timeout       time.Duration
}

// RetryConfig bounds retries of transient network failures
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      bool
}

// BreakerConfig configures the per-upstream circuit breaker
type BreakerConfig struct {
	MaxFailures uint32
	MaxRequests uint32
	Interval    time.Duration
	OpenTimeout time.Duration
}

// QualityConfig holds image quality gate thresholds
type QualityConfig struct {
	MinScore float64
}

// ValidationConfig holds validation engine thresholds
type ValidationConfig struct {
	StalenessWindow      time.Duration
	AmountTolerance      decimal.Decimal
	FraudConfidenceFloor float64
	HighRiskThreshold    float64
	LowConfidence        float64
}

// TrackerConfig holds deposit status polling settings
type TrackerConfig struct {
	PollInterval time.Duration
}

// ServerConfig holds reference deposit backend settings
type ServerConfig struct {
	Addr            string
	JWTSecret       string
	MaxImageBytes   int64
	PolicyFile      string
	ShutdownTimeout time.Duration
}

// ProcessorConfig holds deposit processing engine settings
type ProcessorConfig struct {
	LookbackWindow     time.Duration
	PollingInterval    time.Duration
	CleanupInterval    time.Duration
	ReviewThreshold    float64
	RejectThreshold    float64
	MaxPostingAttempts int
}

// LimitsConfig holds per-account deposit limits
type LimitsConfig struct {
	SingleCheck     decimal.Decimal
	NewAccount      decimal.Decimal
	Daily           decimal.Decimal
	Monthly         decimal.Decimal
	DuplicateWindow time.Duration
}

// HoldPolicyConfig holds the funds availability policy applied on approval
type HoldPolicyConfig struct {
	StandardImmediate   decimal.Decimal
	LargeDeposit        decimal.Decimal
	HighRisk            float64
	EstablishedDeposits int
	EstablishedTotal    decimal.Decimal
}

// KafkaConfig holds status event publishing settings
type KafkaConfig struct {
	Brokers     []string
	StatusTopic string
	FraudTopic  string
}

// RedisConfig holds idempotency cache settings
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}
