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
	"time"

	"check-deposit-go/internal/depositapi"
	"check-deposit-go/internal/models"
	"check-deposit-go/internal/tracker"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const watchRefresh = time.Second

func watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch <deposit-id>",
		Short: "Follow a deposit until it reaches a final status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			deposits, err := newDepositClient()
			if err != nil {
				return err
			}
			d, err := deposits.GetDeposit(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return watchDeposit(cmd.Context(), deposits, d)
		},
	}
}

// watchDeposit polls at the tracker interval and renders progress until the
// deposit is terminal or ctx is cancelled.
func watchDeposit(ctx context.Context, deposits *depositapi.Client, d *models.Deposit) error {
	t := tracker.New(deposits, d.Id, cfg.Tracker, tracker.WithInitial(d))

	bar := progressbar.NewOptions(100,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription(describe(t.Snapshot())),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintln(os.Stderr)
		}),
	)

	t.StartPolling(ctx)
	defer t.StopPolling()

	ticker := time.NewTicker(watchRefresh)
	defer ticker.Stop()

	for {
		snap := t.Snapshot()
		bar.Describe(describe(snap))
		if err := bar.Set(int(snap.Progress)); err != nil {
			zap.L().Debug("Failed to update progress bar", zap.Error(err))
		}
		if snap.Terminal() || !t.Polling() {
			_ = bar.Finish()
			printSnapshot(snap)
			return nil
		}

		select {
		case <-ctx.Done():
			_ = bar.Exit()
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func describe(snap tracker.Snapshot) string {
	desc := fmt.Sprintf("[cyan]%s[reset]", snap.Deposit.Status)
	if snap.Stale {
		desc += " [yellow](reconnecting)[reset]"
	}
	return desc
}
