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

	"check-deposit-go/internal/common"
	"check-deposit-go/internal/models"
	"check-deposit-go/internal/tracker"

	"github.com/spf13/cobra"
)

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <deposit-id>",
		Short: "Show the current status and timeline of a deposit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			deposits, err := newDepositClient()
			if err != nil {
				return err
			}
			snap, err := tracker.New(deposits, args[0], cfg.Tracker).Refresh(cmd.Context())
			if err != nil {
				return err
			}
			printSnapshot(snap)
			return nil
		},
	}
}

func cancelCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "cancel <deposit-id>",
		Short: "Cancel a deposit that has not started processing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			deposits, err := newDepositClient()
			if err != nil {
				return err
			}
			t := tracker.New(deposits, args[0], cfg.Tracker)
			if _, err := t.Refresh(cmd.Context()); err != nil {
				return err
			}
			snap, err := t.Cancel(cmd.Context(), reason)
			if err != nil {
				return explainFailure(nil, err)
			}
			fmt.Printf("Deposit %s cancelled\n", snap.Deposit.Id)
			return nil
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "cancellation reason")
	return cmd
}

func reviewCmd() *cobra.Command {
	var (
		approve bool
		reject  bool
		reason  string
	)
	cmd := &cobra.Command{
		Use:   "review <deposit-id>",
		Short: "Approve or reject a deposit held for manual review (reviewer token required)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if approve == reject {
				return fmt.Errorf("exactly one of --approve or --reject is required")
			}
			deposits, err := newDepositClient()
			if err != nil {
				return err
			}
			d, err := deposits.Review(cmd.Context(), args[0], approve, reason)
			if err != nil {
				return explainFailure(nil, err)
			}
			printDeposit(d)
			return nil
		},
	}
	cmd.Flags().BoolVar(&approve, "approve", false, "approve the deposit")
	cmd.Flags().BoolVar(&reject, "reject", false, "reject the deposit")
	cmd.Flags().StringVar(&reason, "reason", "", "decision reason (required when rejecting)")
	return cmd
}

func printDeposit(d *models.Deposit) {
	if d == nil {
		return
	}
	common.PrintHeader("DEPOSIT "+d.ConfirmationNumber, common.DefaultWidth)
	fmt.Printf("Deposit:   %s\n", d.Id)
	fmt.Printf("Account:   %s\n", d.AccountId)
	fmt.Printf("Amount:    %s\n", common.FormatMoney(d.Amount, ""))
	fmt.Printf("Status:    %s\n", d.Status)
	fmt.Printf("Submitted: %s\n", d.SubmittedAt.Local().Format("Jan 2, 2006 15:04"))
	if d.EstimatedAvailability != nil {
		fmt.Printf("Available: %s (estimated)\n", d.EstimatedAvailability.Local().Format("Jan 2, 2006"))
	}
	if d.ActualAvailability != nil {
		fmt.Printf("Available: %s\n", d.ActualAvailability.Local().Format("Jan 2, 2006 15:04"))
	}
	if d.ImmediatelyAvailable.IsPositive() {
		fmt.Printf("Immediate: %s\n", common.FormatMoney(d.ImmediatelyAvailable, ""))
	}
	if d.HoldReason != "" {
		fmt.Printf("Hold:      %s\n", d.HoldReason)
	}
	if d.RejectionReason != "" {
		fmt.Printf("Rejected:  %s\n", d.RejectionReason)
	}
	if d.OriginalDepositId != "" {
		fmt.Printf("Corrects:  %s\n", d.OriginalDepositId)
	}
	common.PrintSeparator("=", common.DefaultWidth)
}

func printSnapshot(snap tracker.Snapshot) {
	printDeposit(&snap.Deposit)

	steps := snap.Deposit.ProcessingSteps
	for i, step := range steps {
		when := ""
		switch {
		case step.Timestamp != nil:
			when = step.Timestamp.Local().Format("Jan 2 15:04")
		case step.EstimatedAt != nil:
			when = "est. " + step.EstimatedAt.Local().Format("Jan 2")
		}
		fmt.Printf("%s %-28s %-12s %s\n", common.BoxPrefix(i == len(steps)-1), step.Name, step.Status, when)
	}
	fmt.Printf("\nProgress: %.0f%%\n", snap.Progress)

	if len(snap.Actions) > 0 {
		actions := make([]string, len(snap.Actions))
		for i, a := range snap.Actions {
			actions[i] = string(a)
		}
		fmt.Printf("Actions:  %s\n", strings.Join(actions, ", "))
	}
	if snap.Stale {
		fmt.Printf("Status may be out of date: %v\n", snap.LastError)
	}
}
