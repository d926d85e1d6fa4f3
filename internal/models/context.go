package models

import (
	"context"
	"time"
)

type postingContextKey struct{}

// PostingContext carries check metadata through context so ledger backends can
// attach it to the posting without widening the FundsLedger interface.
type PostingContext struct {
	ConfirmationNumber string
	CheckNumber        string
	RoutingNumber      string
	HoldType           HoldType
	RiskScore          float64
	OriginalDepositId  string
	EffectiveAt        time.Time // effective time for the ledger entry
}

// WithPostingContext attaches check posting data to a context.
func WithPostingContext(ctx context.Context, pc *PostingContext) context.Context {
	return context.WithValue(ctx, postingContextKey{}, pc)
}

// GetPostingContext retrieves check posting data from context, or nil if absent.
func GetPostingContext(ctx context.Context) *PostingContext {
	pc, _ := ctx.Value(postingContextKey{}).(*PostingContext)
	return pc
}
