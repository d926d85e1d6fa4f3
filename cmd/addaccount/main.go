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
	"fmt"
	"regexp"
	"strings"
	"time"

	"check-deposit-go/internal/common"
	"check-deposit-go/internal/config"
	"check-deposit-go/internal/server"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	emailRegex     = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	accountIdRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9\-]{2,63}$`)
)

func validateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("email cannot be empty")
	}
	if !emailRegex.MatchString(email) {
		return fmt.Errorf("invalid email format: %s", email)
	}
	return nil
}

func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("name cannot be empty")
	}
	if len(name) < 2 {
		return fmt.Errorf("name must be at least 2 characters")
	}
	return nil
}

func validateAccountId(id string) error {
	if !accountIdRegex.MatchString(id) {
		return fmt.Errorf("invalid account id %q: use 3-64 lowercase letters, digits or dashes", id)
	}
	return nil
}

func newAccountId() string {
	return "chk-" + strings.ReplaceAll(uuid.New().String(), "-", "")[:10]
}

func main() {
	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	nameFlag := flag.String("name", "", "Account holder's full name (required)")
	emailFlag := flag.String("email", "", "Account holder's email address (required)")
	userFlag := flag.String("user", "", "Owning user id (default: new uuid)")
	accountFlag := flag.String("account", "", "Account id (default: generated chk- id)")
	tokenTTL := flag.Duration("token-ttl", 0, "Also print a bearer token for the owner valid this long (requires JWT_SECRET)")
	flag.Parse()

	if *nameFlag == "" || *emailFlag == "" {
		zap.L().Fatal("Both flags are required: --name and --email")
	}
	if err := validateName(*nameFlag); err != nil {
		zap.L().Fatal("Invalid name", zap.Error(err))
	}
	if err := validateEmail(*emailFlag); err != nil {
		zap.L().Fatal("Invalid email", zap.Error(err))
	}

	accountId := *accountFlag
	if accountId == "" {
		accountId = newAccountId()
	}
	if err := validateAccountId(accountId); err != nil {
		zap.L().Fatal("Invalid account id", zap.Error(err))
	}
	userId := *userFlag
	if userId == "" {
		userId = uuid.New().String()
	}

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}

	dbService, err := common.InitializeDatabaseOnly(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize database", zap.Error(err))
	}
	defer dbService.Close()

	account, err := dbService.CreateAccount(ctx, accountId, userId, *nameFlag, *emailFlag)
	if err != nil {
		if strings.Contains(err.Error(), "already exists") {
			zap.L().Fatal("Account already exists", zap.String("account_id", accountId))
		}
		zap.L().Fatal("Failed to create account", zap.Error(err))
	}

	fmt.Println()
	common.PrintHeader("ACCOUNT CREATED", common.DefaultWidth)
	fmt.Printf("Account: %s\n", account.Id)
	fmt.Printf("Owner:   %s\n", account.UserId)
	fmt.Printf("Name:    %s\n", account.Name)
	fmt.Printf("Email:   %s\n", account.Email)
	fmt.Printf("Mobile deposit enabled: %t\n", account.CheckDepositEnabled)

	if *tokenTTL > 0 {
		if cfg.Server.JWTSecret == "" {
			zap.L().Fatal("JWT_SECRET must be set to issue a token")
		}
		token, err := server.IssueToken([]byte(cfg.Server.JWTSecret), account.UserId, []string{account.Id}, false, *tokenTTL)
		if err != nil {
			zap.L().Fatal("Failed to issue token", zap.Error(err))
		}
		fmt.Printf("Token (expires %s):\n%s\n", time.Now().Add(*tokenTTL).Format(time.RFC3339), token)
	}
	common.PrintSeparator("=", common.DefaultWidth)
	fmt.Println()

	zap.L().Info("Account created successfully",
		zap.String("account_id", account.Id),
		zap.String("user_id", account.UserId))
}
