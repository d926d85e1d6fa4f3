package store

import (
	"context"
	"errors"
	"time"

	"check-deposit-go/internal/models"

	"github.com/shopspring/decimal"
)

// Sentinel errors shared across all backend implementations.
var (
	ErrNotFound               = errors.New("deposit not found")
	ErrAccountNotFound        = errors.New("account not found")
	ErrDuplicateSession       = errors.New("deposit session already submitted")
	ErrDuplicateCheck         = errors.New("check already deposited")
	ErrDuplicateTransaction   = errors.New("duplicate transaction")
	ErrConcurrentModification = errors.New("concurrent modification detected")
	ErrInvalidTransition      = errors.New("invalid deposit transition")
)

// DuplicateKey identifies a paper check independently of its images.
type DuplicateKey struct {
	RoutingNumber string
	AccountNumber string
	CheckNumber   string
	Amount        decimal.Decimal
}

// Complete reports whether every part of the key was read from the check.
func (k DuplicateKey) Complete() bool {
	return k.RoutingNumber != "" && k.AccountNumber != "" && k.CheckNumber != "" && k.Amount.IsPositive()
}

// String is the canonical form used by probabilistic prefilters.
func (k DuplicateKey) String() string {
	return k.RoutingNumber + "|" + k.AccountNumber + "|" + k.CheckNumber + "|" + k.Amount.StringFixed(2)
}

// DuplicateKeyFrom builds the key from OCR output. The result is incomplete when
// any MICR field or the amount was unreadable.
func DuplicateKeyFrom(data *models.ExtractedCheckData, amount decimal.Decimal) DuplicateKey {
	key := DuplicateKey{Amount: amount}
	if data == nil {
		return key
	}
	if data.RoutingNumber != nil {
		key.RoutingNumber = *data.RoutingNumber
	}
	if data.AccountNumber != nil {
		key.AccountNumber = *data.AccountNumber
	}
	if data.CheckNumber != nil {
		key.CheckNumber = *data.CheckNumber
	}
	return key
}

// CreateDepositParams carries a freshly built deposit plus the intake evidence
// persisted alongside it.
type CreateDepositParams struct {
	Deposit   models.Deposit
	Memo      string
	DeviceId  string
	Override  bool
	Extracted *models.ExtractedCheckData
	Verdict   *models.ValidationVerdict
	FrontHash string
	BackHash  string
	Key       DuplicateKey
}

// IntakeEvidence is what the client attached to a deposit at submission time.
type IntakeEvidence struct {
	Memo      string
	DeviceId  string
	Override  bool
	Extracted *models.ExtractedCheckData
	Verdict   *models.ValidationVerdict
}

// HoldDecision is the funds availability outcome applied on approval.
type HoldDecision struct {
	Type                  models.HoldType
	Reason                string
	ImmediatelyAvailable  decimal.Decimal
	EstimatedAvailability time.Time
}

// TransitionParams moves a deposit to a new status. ExpectedVersion must match
// the stored version or the update fails with ErrConcurrentModification.
type TransitionParams struct {
	DepositId       string
	ExpectedVersion int64
	To              models.DepositStatus
	Reason          string
	At              time.Time
	Hold            *HoldDecision
	RiskScore       *float64
}

// PostingParams describes a check credit to the funds ledger. Held is the part
// of Amount not yet available to the customer.
type PostingParams struct {
	DepositId string
	AccountId string
	Currency  string
	Amount    decimal.Decimal
	Held      decimal.Decimal
	Reference string
	At        time.Time
}

// DepositStore persists deposits and their intake evidence.
type DepositStore interface {
	// --- Accounts ---
	GetAccount(ctx context.Context, accountId string) (*models.Account, error)
	ListAccounts(ctx context.Context) ([]models.Account, error)
	CreateAccount(ctx context.Context, accountId, userId, name, email string) (*models.Account, error)

	// --- Deposits ---
	CreateDeposit(ctx context.Context, params CreateDepositParams) (*models.Deposit, bool, error)
	GetDeposit(ctx context.Context, depositId string) (*models.Deposit, error)
	GetDepositBySession(ctx context.Context, sessionId string) (*models.Deposit, error)
	GetIntakeEvidence(ctx context.Context, depositId string) (*IntakeEvidence, error)
	ListDepositsByStatus(ctx context.Context, status models.DepositStatus, limit int) ([]models.Deposit, error)
	ListDepositsByAccount(ctx context.Context, accountId string, limit, offset int) ([]models.Deposit, error)
	TransitionDeposit(ctx context.Context, params TransitionParams) (*models.Deposit, error)
	GetMostRecentDepositTime(ctx context.Context) (time.Time, error)

	// --- Duplicates and limits ---
	FindDuplicate(ctx context.Context, key DuplicateKey, since time.Time) (*models.Deposit, error)
	FindByImageHash(ctx context.Context, frontHash, backHash string, since time.Time) (*models.Deposit, error)
	DuplicateKeysSince(ctx context.Context, since time.Time) ([]DuplicateKey, error)
	SumSubmittedSince(ctx context.Context, accountId string, since time.Time) (decimal.Decimal, error)
	CountSuccessfulDeposits(ctx context.Context, accountId string) (int, decimal.Decimal, error)

	// --- Lifecycle ---
	Close()
}

// FundsLedger records check credits and hold releases. Postings are idempotent
// per deposit: repeating one is not an error.
type FundsLedger interface {
	PostDeposit(ctx context.Context, params PostingParams) error
	ReleaseHold(ctx context.Context, params PostingParams) error
	GetAccountBalance(ctx context.Context, accountId, currency string) (*models.AccountBalance, error)
	GetAllAccountBalances(ctx context.Context, accountId string) ([]models.AccountBalance, error)
	GetTransactionHistory(ctx context.Context, accountId, currency string, limit, offset int) ([]models.Transaction, error)
	ReconcileAccountBalance(ctx context.Context, accountId, currency string) error
	Close()
}
