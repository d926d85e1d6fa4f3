package api

import (
	"context"
	"math"

	"check-deposit-go/internal/models"

	"github.com/shopspring/decimal"
)

const (
	reviewConfidence = 0.8
	amountVariance   = 0.05
)

// ScoreInput is everything the fraud scorer sees about one deposit.
type ScoreInput struct {
	AccountId string
	Amount    decimal.Decimal
	Extracted *models.ExtractedCheckData
	Verdict   *models.ValidationVerdict
	Override  bool
	History   AccountHistory
}

// FraudAssessment is a risk score in [0,1] plus the signals behind it.
// ReviewReasons is non-empty when a person has to look at the deposit
// regardless of the score.
type FraudAssessment struct {
	RiskScore     float64
	Indicators    []string
	ReviewReasons []string
}

// FraudScorer scores deposits for fraud risk.
type FraudScorer interface {
	Score(ctx context.Context, in ScoreInput) (FraudAssessment, error)
}

// HeuristicScorer is a deterministic rule-based scorer.
type HeuristicScorer struct {
	singleCheck decimal.Decimal
}

func NewHeuristicScorer(limits models.LimitsConfig) *HeuristicScorer {
	single := limits.SingleCheck
	if !single.IsPositive() {
		single = decimal.NewFromInt(2500)
	}
	return &HeuristicScorer{singleCheck: single}
}

func (h *HeuristicScorer) Score(_ context.Context, in ScoreInput) (FraudAssessment, error) {
	var a FraudAssessment
	score := 0.05
	flag := func(weight float64, indicator string) {
		score += weight
		a.Indicators = append(a.Indicators, indicator)
	}
	review := func(reason string) {
		a.ReviewReasons = append(a.ReviewReasons, reason)
	}

	if in.History.IsNew() {
		flag(0.15, "new_account")
	}
	if ratio, _ := in.Amount.Div(h.singleCheck).Float64(); ratio >= 0.8 {
		flag(0.15, "large_amount")
	}

	x := in.Extracted
	switch {
	case x == nil:
		flag(0.3, "no_extraction")
		review("Check details could not be read")
	default:
		if x.Confidence < reviewConfidence {
			flag(0.2, "low_confidence")
			review("Low confidence in the check details")
		}
		if x.AmountMismatch {
			flag(0.25, "amount_mismatch")
			review("Written and numeric amounts disagree")
		}
		if x.NumericAmount != nil && in.Amount.IsPositive() {
			variance, _ := x.NumericAmount.Sub(in.Amount).Abs().Div(in.Amount).Float64()
			if variance > amountVariance {
				flag(0.3, "amount_variance")
				review("Declared amount differs from the check")
			}
		}
		if x.RoutingNumber == nil || x.AccountNumber == nil {
			flag(0.1, "micr_unreadable")
		}
	}

	if in.Override {
		flag(0.1, "quality_override")
		review("Submitted with a quality override")
	}
	if in.Verdict != nil && !in.Verdict.IsValid && !in.Verdict.CanOverride() {
		flag(0.3, "blocking_validation_errors")
	}

	a.RiskScore = math.Round(math.Min(score, 1)*100) / 100
	return a, nil
}
