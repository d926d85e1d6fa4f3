/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"check-deposit-go/internal/models"

	"github.com/shopspring/decimal"
)

func Load() (*models.Config, error) {
	var l loader

	cfg := &models.Config{
		Database: models.DatabaseConfig{
			Path:               getEnvString("DATABASE_PATH", "deposits.db"),
			MaxOpenConns:       getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:       getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime:    l.duration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			ConnMaxIdleTime:    l.duration("DB_CONN_MAX_IDLE_TIME", 30*time.Second),
			PingTimeout:        l.duration("DB_PING_TIMEOUT", 5*time.Second),
			CreateDemoAccounts: getEnvBool("CREATE_DEMO_ACCOUNTS", false),
			EncryptionKey:      getEnvString("DATABASE_ENCRYPTION_KEY", ""),
		},
		Formance: models.FormanceConfig{
			StackURL:     getEnvString("FORMANCE_STACK_URL", ""),
			ClientID:     getEnvString("FORMANCE_CLIENT_ID", ""),
			ClientSecret: getEnvString("FORMANCE_CLIENT_SECRET", ""),
			LedgerName:   getEnvString("FORMANCE_LEDGER", "check-deposits"),
		},
		Ledger: models.LedgerConfig{
			Backend:  strings.ToLower(getEnvString("LEDGER_BACKEND", "sqlite")),
			Currency: getEnvString("LEDGER_CURRENCY", "USD"),
		},
		Services: models.ServicesConfig{
			QualityURL:    getEnvString("QUALITY_SERVICE_URL", "http://localhost:8081"),
			OcrURL:        getEnvString("OCR_SERVICE_URL", "http://localhost:8082"),
			ValidationURL: getEnvString("VALIDATION_SERVICE_URL", "http://localhost:8080"),
			DepositURL:    getEnvString("DEPOSIT_SERVICE_URL", "http://localhost:8080"),
			ApiToken:      getEnvString("API_TOKEN", ""),
			Timeout:       l.duration("HTTP_TIMEOUT", 30*time.Second),
		},
		Retry: models.RetryConfig{
			MaxAttempts: getEnvInt("RETRY_MAX_ATTEMPTS", 3),
			BaseDelay:   l.duration("RETRY_BASE_DELAY", 500*time.Millisecond),
			MaxDelay:    l.duration("RETRY_MAX_DELAY", 8*time.Second),
			Jitter:      getEnvBool("RETRY_JITTER", true),
		},
		Breaker: models.BreakerConfig{
			MaxFailures: uint32(getEnvInt("BREAKER_MAX_FAILURES", 5)),
			MaxRequests: uint32(getEnvInt("BREAKER_MAX_REQUESTS", 1)),
			Interval:    l.duration("BREAKER_INTERVAL", time.Minute),
			OpenTimeout: l.duration("BREAKER_OPEN_TIMEOUT", 30*time.Second),
		},
		Quality: models.QualityConfig{
			MinScore: l.float("QUALITY_MIN_SCORE", 0.5),
		},
		Validation: models.ValidationConfig{
			StalenessWindow:      l.duration("VALIDATION_STALENESS_WINDOW", 180*24*time.Hour),
			AmountTolerance:      l.decimal("VALIDATION_AMOUNT_TOLERANCE", "0.01"),
			FraudConfidenceFloor: l.float("VALIDATION_FRAUD_CONFIDENCE", 0.6),
			HighRiskThreshold:    l.float("VALIDATION_HIGH_RISK", 0.7),
			LowConfidence:        l.float("VALIDATION_LOW_CONFIDENCE", 0.8),
		},
		Tracker: models.TrackerConfig{
			PollInterval: l.duration("TRACKER_POLL_INTERVAL", 30*time.Second),
		},
		Server: models.ServerConfig{
			Addr:            getEnvString("SERVER_ADDR", ":8080"),
			JWTSecret:       getEnvString("JWT_SECRET", ""),
			MaxImageBytes:   int64(getEnvInt("MAX_IMAGE_BYTES", 10<<20)),
			PolicyFile:      getEnvString("POLICY_FILE", ""),
			ShutdownTimeout: l.duration("SERVER_SHUTDOWN_TIMEOUT", 15*time.Second),
		},
		Processor: models.ProcessorConfig{
			LookbackWindow:     l.duration("PROCESSOR_LOOKBACK_WINDOW", 6*time.Hour),
			PollingInterval:    l.duration("PROCESSOR_POLL_INTERVAL", 10*time.Second),
			CleanupInterval:    l.duration("PROCESSOR_CLEANUP_INTERVAL", 15*time.Minute),
			ReviewThreshold:    l.float("PROCESSOR_REVIEW_THRESHOLD", 0.3),
			RejectThreshold:    l.float("PROCESSOR_REJECT_THRESHOLD", 0.9),
			MaxPostingAttempts: getEnvInt("PROCESSOR_MAX_POSTING_ATTEMPTS", 5),
		},
		Limits: models.LimitsConfig{
			SingleCheck:     l.decimal("LIMIT_SINGLE_CHECK", "2500"),
			NewAccount:      l.decimal("LIMIT_NEW_ACCOUNT", "500"),
			Daily:           l.decimal("LIMIT_DAILY", "5000"),
			Monthly:         l.decimal("LIMIT_MONTHLY", "20000"),
			DuplicateWindow: l.duration("DUPLICATE_WINDOW", 180*24*time.Hour),
		},
		Hold: models.HoldPolicyConfig{
			StandardImmediate:   l.decimal("HOLD_STANDARD_IMMEDIATE", "200"),
			LargeDeposit:        l.decimal("HOLD_LARGE_DEPOSIT", "5000"),
			HighRisk:            l.float("HOLD_HIGH_RISK", 0.5),
			EstablishedDeposits: getEnvInt("HOLD_ESTABLISHED_DEPOSITS", 10),
			EstablishedTotal:    l.decimal("HOLD_ESTABLISHED_TOTAL", "10000"),
		},
		Kafka: models.KafkaConfig{
			Brokers:     getEnvList("KAFKA_BROKERS"),
			StatusTopic: getEnvString("KAFKA_STATUS_TOPIC", "check-deposit-status"),
			FraudTopic:  getEnvString("KAFKA_FRAUD_TOPIC", "fraud-alerts"),
		},
		Redis: models.RedisConfig{
			Addr:     getEnvString("REDIS_ADDR", ""),
			Password: getEnvString("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			TTL:      l.duration("REDIS_TTL", 24*time.Hour),
		},
	}

	if l.err != nil {
		return nil, l.err
	}
	if cfg.Ledger.Backend != "sqlite" && cfg.Ledger.Backend != "formance" {
		return nil, fmt.Errorf("invalid LEDGER_BACKEND %q: expected sqlite or formance", cfg.Ledger.Backend)
	}
	return cfg, nil
}

// loader keeps the first parse error so Load can build the config in one pass.
type loader struct {
	err error
}

func (l *loader) duration(key string, defaultValue time.Duration) time.Duration {
	v, err := getEnvDuration(key, defaultValue)
	l.keep(err)
	return v
}

func (l *loader) float(key string, defaultValue float64) float64 {
	v, err := getEnvFloat(key, defaultValue)
	l.keep(err)
	return v
}

func (l *loader) decimal(key, defaultValue string) decimal.Decimal {
	v, err := getEnvDecimal(key, defaultValue)
	l.keep(err)
	return v
}

func (l *loader) keep(err error) {
	if err != nil && l.err == nil {
		l.err = err
	}
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	if value := os.Getenv(key); value != "" {
		duration, err := time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("invalid duration for %s: %q (%w)", key, value, err)
		}
		return duration, nil
	}
	return defaultValue, nil
}

func getEnvFloat(key string, defaultValue float64) (float64, error) {
	if value := os.Getenv(key); value != "" {
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid number for %s: %q (%w)", key, value, err)
		}
		return f, nil
	}
	return defaultValue, nil
}

func getEnvDecimal(key, defaultValue string) (decimal.Decimal, error) {
	value := getEnvString(key, defaultValue)
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount for %s: %q (%w)", key, value, err)
	}
	return d, nil
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
