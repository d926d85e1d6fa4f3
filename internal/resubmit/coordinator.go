package resubmit

import (
	"context"
	"fmt"

	"check-deposit-go/internal/errs"
	"check-deposit-go/internal/lifecycle"
	"check-deposit-go/internal/models"
	"check-deposit-go/internal/pipeline"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DepositReader loads the deposit being corrected.
type DepositReader interface {
	GetDeposit(ctx context.Context, id string) (*models.Deposit, error)
}

// Runner runs a full capture session.
type Runner interface {
	Run(ctx context.Context, s pipeline.Session) (*pipeline.Result, error)
}

// Coordinator links a corrected capture to a rejected or failed deposit.
type Coordinator struct {
	deposits DepositReader
	runner   Runner
}

func NewCoordinator(deposits DepositReader, runner Runner) *Coordinator {
	return &Coordinator{deposits: deposits, runner: runner}
}

// Resubmit runs s as a fresh session linked to originalId. Every stage runs
// again on the new images; nothing from the original attempt is reused.
func (c *Coordinator) Resubmit(ctx context.Context, originalId string, s pipeline.Session) (*pipeline.Result, error) {
	original, err := c.deposits.GetDeposit(ctx, originalId)
	if err != nil {
		return nil, fmt.Errorf("failed to load original deposit %s: %w", originalId, err)
	}
	if !lifecycle.CanResubmit(original.Status) {
		return nil, &errs.PreconditionError{
			Op:        "resubmit",
			DepositId: originalId,
			Status:    original.Status,
			Reason:    "only rejected or failed deposits can be resubmitted",
		}
	}

	if s.SessionId == "" || s.SessionId == original.SessionId {
		s.SessionId = uuid.NewString()
	}
	if s.AccountId == "" {
		s.AccountId = original.AccountId
	}
	s.OriginalDepositId = originalId

	zap.L().Info("Resubmitting deposit",
		zap.String("original_deposit_id", originalId),
		zap.String("original_status", string(original.Status)),
		zap.String("rejection_reason", original.RejectionReason),
		zap.String("session_id", s.SessionId))

	return c.runner.Run(ctx, s)
}
