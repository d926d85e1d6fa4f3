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

package common

import (
	"context"
	"fmt"
	"log"
	"strings"

	"check-deposit-go/internal/database"
	"check-deposit-go/internal/events"
	"check-deposit-go/internal/formance"
	"check-deposit-go/internal/metrics"
	"check-deposit-go/internal/models"
	"check-deposit-go/internal/store"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

// init loads environment variables from .env file if it exists
func init() {
	// Environment variables can be set via other means (shell export, docker, etc.)
	if err := godotenv.Load(); err != nil {
		log.Printf("Note: No .env file found or unable to load it: %v\n", err)
		log.Println("Make sure to set environment variables via export or other means")
	} else {
		log.Println("✓ Loaded environment variables from .env file")
	}
}

// Services bundles the backend dependencies shared by the commands.
type Services struct {
	DbService *database.Service
	Ledger    store.FundsLedger
	Publisher events.Publisher
	Metrics   *metrics.PrometheusCollector
	Registry  *prometheus.Registry
}

func InitializeLogger() (*zap.Logger, func()) {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	zap.ReplaceGlobals(logger)

	cleanup := func() {
		if err := logger.Sync(); err != nil {
			if !isIgnorableSyncError(err) {
				log.Printf("Failed to sync logger: %v\n", err)
			}
		}
	}

	return logger, cleanup
}

// InitializeServices opens the deposit store and the configured funds ledger
// and event publisher.
func InitializeServices(ctx context.Context, cfg *models.Config) (*Services, error) {
	dbService, err := database.NewService(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	ledger, err := InitializeLedger(ctx, cfg, dbService)
	if err != nil {
		dbService.Close()
		return nil, err
	}

	var publisher events.Publisher = events.LogPublisher{}
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaPublisher, err := events.NewKafkaPublisher(cfg.Kafka, cfg.Retry)
		if err != nil {
			dbService.Close()
			return nil, err
		}
		publisher = kafkaPublisher
		zap.L().Info("Publishing deposit events to Kafka",
			zap.Strings("brokers", cfg.Kafka.Brokers),
			zap.String("status_topic", cfg.Kafka.StatusTopic),
			zap.String("fraud_topic", cfg.Kafka.FraudTopic))
	} else {
		zap.L().Info("KAFKA_BROKERS not set, deposit events are only logged")
	}

	registry := prometheus.NewRegistry()
	collector := metrics.NewPrometheusCollector("checkdeposit")
	if err := collector.Register(registry); err != nil {
		_ = publisher.Close()
		dbService.Close()
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return &Services{
		DbService: dbService,
		Ledger:    ledger,
		Publisher: publisher,
		Metrics:   collector,
		Registry:  registry,
	}, nil
}

// InitializeDatabaseOnly initializes just the database service without the
// ledger backend or event publishing
func InitializeDatabaseOnly(ctx context.Context, cfg *models.Config) (*database.Service, error) {
	return database.NewService(ctx, cfg.Database)
}

// InitializeLedger returns the funds ledger selected by LEDGER_BACKEND
func InitializeLedger(ctx context.Context, cfg *models.Config, dbService *database.Service) (store.FundsLedger, error) {
	switch cfg.Ledger.Backend {
	case "", "sqlite":
		zap.L().Info("Using SQLite funds ledger", zap.String("path", cfg.Database.Path))
		return dbService, nil
	case "formance":
		zap.L().Info("Using Formance funds ledger",
			zap.String("stack_url", cfg.Formance.StackURL),
			zap.String("ledger", cfg.Formance.LedgerName))
		return formance.NewService(ctx, cfg.Formance)
	default:
		return nil, fmt.Errorf("unknown ledger backend %q", cfg.Ledger.Backend)
	}
}

func (cs *Services) Close() {
	if cs.Publisher != nil {
		if err := cs.Publisher.Close(); err != nil {
			zap.L().Warn("Failed to close event publisher", zap.Error(err))
		}
	}
	if cs.DbService != nil {
		cs.DbService.Close()
	}
}

func isIgnorableSyncError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "sync /dev/stderr: inappropriate ioctl for device") ||
		strings.Contains(msg, "sync /dev/stdout: inappropriate ioctl for device")
}
