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
	"errors"
	"fmt"
	"os"

	"check-deposit-go/internal/errs"
	"check-deposit-go/internal/models"
	"check-deposit-go/internal/pipeline"
	"check-deposit-go/internal/resubmit"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

type captureFlags struct {
	front    string
	back     string
	account  string
	amount   string
	memo     string
	session  string
	device   string
	override bool
	watch    bool
}

func (f *captureFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.front, "front", "", "path to the front image (required)")
	cmd.Flags().StringVar(&f.back, "back", "", "path to the back image (required)")
	cmd.Flags().StringVar(&f.amount, "amount", "", "declared deposit amount, e.g. 125.50 (required)")
	cmd.Flags().StringVar(&f.memo, "memo", "", "optional memo")
	cmd.Flags().StringVar(&f.session, "session", "", "capture session id, reuse it to retry safely (default: new uuid)")
	cmd.Flags().StringVar(&f.device, "device", "", "device id (default: hostname)")
	cmd.Flags().BoolVar(&f.override, "override", false, "continue despite image quality or low confidence warnings")
	cmd.Flags().BoolVar(&f.watch, "watch", false, "track the deposit after submission")
	_ = cmd.MarkFlagRequired("front")
	_ = cmd.MarkFlagRequired("back")
	_ = cmd.MarkFlagRequired("amount")
}

func (f *captureFlags) build() (pipeline.Session, error) {
	amount, err := decimal.NewFromString(f.amount)
	if err != nil {
		return pipeline.Session{}, fmt.Errorf("invalid amount %q: %w", f.amount, err)
	}
	front, err := loadImage(f.front, models.SideFront)
	if err != nil {
		return pipeline.Session{}, err
	}
	back, err := loadImage(f.back, models.SideBack)
	if err != nil {
		return pipeline.Session{}, err
	}

	sessionId := f.session
	if sessionId == "" {
		sessionId = uuid.NewString()
	}
	device := f.device
	if device == "" {
		device, _ = os.Hostname()
	}

	return pipeline.Session{
		SessionId: sessionId,
		AccountId: f.account,
		Amount:    amount,
		Memo:      f.memo,
		Device:    models.DeviceMetadata{DeviceId: device, Timestamp: front.CapturedAt},
		Front:     front,
		Back:      back,
		Override:  f.override,
	}, nil
}

func depositCmd() *cobra.Command {
	var flags captureFlags
	cmd := &cobra.Command{
		Use:   "deposit",
		Short: "Capture and submit a check deposit",
		Long: `Runs both images through the quality gate, OCR and validation, then submits
the deposit. Re-running with the same --session never creates a second deposit.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := flags.build()
			if err != nil {
				return err
			}
			p, deposits, err := newPipeline(printStage)
			if err != nil {
				return err
			}

			fmt.Printf("Session %s\n", s.SessionId)
			res, err := p.Run(cmd.Context(), s)
			if err != nil {
				return explainFailure(res, err)
			}
			printWarnings(res)
			printDeposit(res.Deposit)

			if flags.watch {
				return watchDeposit(cmd.Context(), deposits, res.Deposit)
			}
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&flags.account, "account", "", "destination account id (required)")
	_ = cmd.MarkFlagRequired("account")
	return cmd
}

func resubmitCmd() *cobra.Command {
	var flags captureFlags
	cmd := &cobra.Command{
		Use:   "resubmit <deposit-id>",
		Short: "Submit corrected images for a rejected or failed deposit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := flags.build()
			if err != nil {
				return err
			}
			p, deposits, err := newPipeline(printStage)
			if err != nil {
				return err
			}

			res, err := resubmit.NewCoordinator(deposits, p).Resubmit(cmd.Context(), args[0], s)
			if err != nil {
				return explainFailure(res, err)
			}
			fmt.Printf("Resubmitted %s as a new deposit\n", args[0])
			printWarnings(res)
			printDeposit(res.Deposit)

			if flags.watch {
				return watchDeposit(cmd.Context(), deposits, res.Deposit)
			}
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&flags.account, "account", "", "destination account id (default: the original deposit's)")
	return cmd
}

func printStage(stage string) {
	fmt.Printf("  … %s\n", stage)
}

func printWarnings(res *pipeline.Result) {
	if res == nil || res.Verdict == nil {
		return
	}
	for _, w := range res.Verdict.Warnings {
		fmt.Printf("  ! %s\n", w.Message)
	}
}

// explainFailure prints what the user can do about err and returns it for the
// exit status.
func explainFailure(res *pipeline.Result, err error) error {
	var (
		soft    *errs.SoftQualityFailure
		blocked *errs.ValidationBlockingError
		sub     *errs.SubmissionError
		pre     *errs.PreconditionError
	)
	switch {
	case errors.As(err, &soft):
		fmt.Printf("The %s image did not pass the quality check (score %.2f).\n", soft.Side, soft.Result.Score)
		for i, issue := range soft.Result.Issues {
			fmt.Printf("  - %s\n", issue)
			if i < len(soft.Result.Suggestions) {
				fmt.Printf("    %s\n", soft.Result.Suggestions[i])
			}
		}
		fmt.Println("Retake the photo, or run again with --override to continue anyway.")
	case errors.As(err, &blocked):
		fmt.Println("The check could not be submitted:")
		for _, issue := range blocked.Verdict.Errors {
			fmt.Printf("  - %s\n", issue.Message)
			if issue.Suggestion != "" {
				fmt.Printf("    %s\n", issue.Suggestion)
			}
		}
		if blocked.Overridable() {
			fmt.Println("These issues can be overridden with --override.")
		}
	case errors.As(err, &sub):
		fmt.Println(sub.UserMessage())
		fmt.Println(sub.Suggestion())
		if sub.Retryable() && res != nil {
			fmt.Printf("Retry with --session %s so the deposit is not duplicated.\n", res.SessionId)
		}
	case errors.As(err, &pre):
		fmt.Printf("Deposit %s is %s: %s\n", pre.DepositId, pre.Status, pre.Reason)
	}
	return err
}
