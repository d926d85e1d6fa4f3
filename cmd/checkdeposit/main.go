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
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"check-deposit-go/internal/common"
	"check-deposit-go/internal/config"
	"check-deposit-go/internal/models"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	cfg           *models.Config
	serverURL     string
	apiToken      string
	policyFile    string
	loggerCleanup = func() {}

	rootCmd = &cobra.Command{
		Use:   "checkdeposit",
		Short: "Mobile check deposit client",
		Long: `checkdeposit runs the capture pipeline against a deposit backend:
quality gate, OCR extraction, validation, submission and status tracking.`,
		SilenceUsage:      true,
		PersistentPreRunE: initConfig,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "deposit backend base URL (default: DEPOSIT_SERVICE_URL)")
	rootCmd.PersistentFlags().StringVar(&apiToken, "token", "", "bearer token (default: API_TOKEN)")
	rootCmd.PersistentFlags().StringVar(&policyFile, "policy", "", "deposit policy YAML with quality suggestion overrides")

	rootCmd.AddCommand(depositCmd())
	rootCmd.AddCommand(resubmitCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(watchCmd())
	rootCmd.AddCommand(cancelCmd())
	rootCmd.AddCommand(reviewCmd())
	rootCmd.AddCommand(tokenCmd())
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		zap.L().Info("Received interrupt signal, shutting down")
		cancel()
	}()

	err := rootCmd.ExecuteContext(ctx)
	cancel()
	loggerCleanup()

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func initConfig(_ *cobra.Command, _ []string) error {
	_, cleanup := common.InitializeLogger()
	loggerCleanup = cleanup

	loaded, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if serverURL != "" {
		loaded.Services.DepositURL = serverURL
		loaded.Services.ValidationURL = serverURL
	}
	if apiToken != "" {
		loaded.Services.ApiToken = apiToken
	}
	cfg = loaded
	return nil
}
