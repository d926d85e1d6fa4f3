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
	"fmt"
	"strings"
	"time"

	"check-deposit-go/internal/server"

	"github.com/spf13/cobra"
)

func tokenCmd() *cobra.Command {
	var (
		user     string
		accounts string
		reviewer bool
		ttl      time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for a development backend (requires JWT_SECRET)",
		RunE: func(_ *cobra.Command, _ []string) error {
			if cfg.Server.JWTSecret == "" {
				return fmt.Errorf("JWT_SECRET must be set to issue tokens")
			}
			var ids []string
			for _, id := range strings.Split(accounts, ",") {
				if id = strings.TrimSpace(id); id != "" {
					ids = append(ids, id)
				}
			}
			token, err := server.IssueToken([]byte(cfg.Server.JWTSecret), user, ids, reviewer, ttl)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "user id placed in the sub claim (required)")
	cmd.Flags().StringVar(&accounts, "accounts", "", "comma-separated account ids the user may deposit to")
	cmd.Flags().BoolVar(&reviewer, "reviewer", false, "grant the manual review role")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
