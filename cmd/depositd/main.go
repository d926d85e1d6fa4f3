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

package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"check-deposit-go/internal/api"
	"check-deposit-go/internal/common"
	"check-deposit-go/internal/config"
	"check-deposit-go/internal/processor"
	"check-deposit-go/internal/server"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	policyFlag := flag.String("policy", "", "Path to a deposit policy YAML file (default: POLICY_FILE)")
	noProcessor := flag.Bool("no-processor", false, "Serve the API only, without the processing engine")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		_, _ = zap.NewProduction()
		zap.L().Fatal("Failed to load configuration", zap.Error(err))
	}

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	gin.SetMode(gin.ReleaseMode)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	zap.L().Info("Starting check deposit backend")

	policyFile := *policyFlag
	if policyFile == "" {
		policyFile = cfg.Server.PolicyFile
	}
	if policyFile != "" {
		policy, err := common.LoadPolicy(policyFile)
		if err != nil {
			zap.L().Fatal("Failed to load deposit policy", zap.Error(err))
		}
		if err := policy.Apply(cfg); err != nil {
			zap.L().Fatal("Invalid deposit policy", zap.Error(err))
		}
		zap.L().Info("Deposit policy loaded", zap.String("file", policyFile))
	}

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	svc := api.NewDepositService(services.DbService, services.Ledger, services.Publisher, cfg,
		api.WithMetrics(services.Metrics))
	if err := svc.LoadDuplicateIndex(ctx); err != nil {
		zap.L().Warn("Duplicate index not loaded, every lookup goes to the database", zap.Error(err))
	}

	srv, err := server.New(svc, cfg.Server, services.Registry)
	if err != nil {
		zap.L().Fatal("Failed to create server", zap.Error(err))
	}

	var proc *processor.Processor
	if !*noProcessor {
		proc = processor.New(processor.Config{
			Service:            svc,
			Store:              services.DbService,
			LookbackWindow:     cfg.Processor.LookbackWindow,
			PollingInterval:    cfg.Processor.PollingInterval,
			CleanupInterval:    cfg.Processor.CleanupInterval,
			MaxPostingAttempts: cfg.Processor.MaxPostingAttempts,
		})
		if err := proc.Start(ctx); err != nil {
			zap.L().Fatal("Failed to start deposit processor", zap.Error(err))
		}
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.Start()
	}()

	zap.L().Info("Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigChan:
		zap.L().Info("Shutdown signal received, stopping...")
	case err := <-serverErr:
		if err != nil {
			zap.L().Error("Server stopped unexpectedly", zap.Error(err))
		}
	}

	timeout := cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zap.L().Warn("Server shutdown did not complete", zap.Error(err))
	}

	if proc != nil {
		done := make(chan struct{})
		go func() {
			proc.Stop()
			close(done)
		}()
		select {
		case <-done:
			zap.L().Info("Deposit processor stopped gracefully")
		case <-shutdownCtx.Done():
			zap.L().Warn("Forced shutdown after timeout")
		}
	}
}
