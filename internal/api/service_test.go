package api

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"check-deposit-go/internal/database"
	"check-deposit-go/internal/errs"
	"check-deposit-go/internal/events"
	"check-deposit-go/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Wednesday, so a two business day hold lands on Friday.
var testNow = time.Date(2026, 3, 4, 15, 0, 0, 0, time.UTC)

var alice = Principal{UserId: "user-alice", Accounts: []string{"chk-1001"}}

type testEnv struct {
	svc      *DepositService
	db       *database.Service
	recorder *events.Recorder
}

func newTestEnv(t *testing.T, mutate func(cfg *models.Config), opts ...Option) *testEnv {
	t.Helper()
	db, err := database.NewService(context.Background(), models.DatabaseConfig{
		Path:               filepath.Join(t.TempDir(), "deposits.db"),
		MaxOpenConns:       1,
		MaxIdleConns:       1,
		PingTimeout:        time.Second,
		CreateDemoAccounts: true,
		EncryptionKey:      "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f",
	})
	require.NoError(t, err)
	t.Cleanup(db.Close)

	cfg := &models.Config{
		Limits: DefaultLimits(),
		Hold:   DefaultHoldPolicy(),
		Ledger: models.LedgerConfig{Currency: "USD"},
	}
	if mutate != nil {
		mutate(cfg)
	}

	recorder := &events.Recorder{}
	opts = append([]Option{WithClock(func() time.Time { return testNow })}, opts...)
	svc := NewDepositService(db, db, recorder, cfg, opts...)
	return &testEnv{svc: svc, db: db, recorder: recorder}
}

func strPtr(s string) *string { return &s }

func cleanCheck(checkNumber string, amount string) *models.ExtractedCheckData {
	amt := decimal.RequireFromString(amount)
	endorsed := true
	return &models.ExtractedCheckData{
		CheckNumber:   strPtr(checkNumber),
		RoutingNumber: strPtr("011000015"),
		AccountNumber: strPtr("123456789"),
		NumericAmount: &amt,
		Endorsed:      &endorsed,
		Confidence:    0.95,
	}
}

func newIntake(session, amount string) IntakeRequest {
	return IntakeRequest{
		IdempotencyKey: session,
		Metadata: models.SubmissionMetadata{
			SessionId: session,
			AccountId: "chk-1001",
			Amount:    decimal.RequireFromString(amount),
			Device:    models.DeviceMetadata{DeviceId: "device-1", Timestamp: testNow},
			Extracted: cleanCheck(session, amount),
			Verdict:   &models.ValidationVerdict{IsValid: true},
		},
		Front: []byte("front-" + session),
		Back:  []byte("back-" + session),
	}
}

func requireReason(t *testing.T, err error, reason errs.RejectReason) *errs.SubmissionError {
	t.Helper()
	var subErr *errs.SubmissionError
	require.True(t, errors.As(err, &subErr), "expected SubmissionError, got %v", err)
	assert.Equal(t, reason, subErr.Reason)
	return subErr
}

func TestIntakeCreatesSubmittedDeposit(t *testing.T) {
	env := newTestEnv(t, nil)

	result, err := env.svc.Intake(context.Background(), alice, newIntake("sess-1", "125.50"))
	require.NoError(t, err)
	assert.False(t, result.Replayed)

	d := result.Deposit
	assert.Equal(t, models.StatusSubmitted, d.Status)
	assert.Equal(t, "user-alice", d.UserId)
	assert.True(t, d.Amount.Equal(decimal.RequireFromString("125.50")))
	assert.Regexp(t, `^MCD-[0-9A-F]{10}$`, d.ConfirmationNumber)
	require.NotNil(t, d.EstimatedAvailability)
	// New account: five business days from Wednesday
	assert.Equal(t, time.Date(2026, 3, 11, 15, 0, 0, 0, time.UTC), d.EstimatedAvailability.UTC())
	assert.Len(t, d.ProcessingSteps, 5)

	evts := env.recorder.Events()
	require.Len(t, evts, 1)
	assert.Equal(t, models.StatusSubmitted, evts[0].To)
	assert.Empty(t, evts[0].From)
	assert.Equal(t, "125.50", evts[0].Amount)
}

func TestIntakeReplaysSameSession(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	first, err := env.svc.Intake(ctx, alice, newIntake("sess-1", "100.00"))
	require.NoError(t, err)

	second, err := env.svc.Intake(ctx, alice, newIntake("sess-1", "100.00"))
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.Deposit.Id, second.Deposit.Id)
	assert.Len(t, env.recorder.Events(), 1)
}

func TestIntakeRejectsInvalidRequests(t *testing.T) {
	env := newTestEnv(t, func(cfg *models.Config) { cfg.Server.MaxImageBytes = 64 })
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(r *IntakeRequest)
		reason errs.RejectReason
	}{
		{"missing session", func(r *IntakeRequest) { r.Metadata.SessionId = ""; r.IdempotencyKey = "" }, errs.ReasonInvalidRequest},
		{"zero amount", func(r *IntakeRequest) { r.Metadata.Amount = decimal.Zero }, errs.ReasonInvalidRequest},
		{"sub-cent amount", func(r *IntakeRequest) { r.Metadata.Amount = decimal.RequireFromString("10.005") }, errs.ReasonInvalidRequest},
		{"idempotency mismatch", func(r *IntakeRequest) { r.IdempotencyKey = "other" }, errs.ReasonInvalidRequest},
		{"missing back", func(r *IntakeRequest) { r.Back = nil }, errs.ReasonInvalidRequest},
		{"oversized image", func(r *IntakeRequest) { r.Front = make([]byte, 65) }, errs.ReasonPayloadTooLarge},
		{"foreign account", func(r *IntakeRequest) { r.Metadata.AccountId = "chk-1002" }, errs.ReasonForbidden},
		{"unknown account", func(r *IntakeRequest) { r.Metadata.AccountId = "chk-9999" }, errs.ReasonForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := newIntake("sess-"+tt.name, "50.00")
			tt.mutate(&req)
			principal := Principal{UserId: "user-alice", Accounts: []string{"chk-1001", "chk-9999"}}
			_, err := env.svc.Intake(ctx, principal, req)
			requireReason(t, err, tt.reason)
		})
	}
	assert.Empty(t, env.recorder.Events())
}

func TestIntakeEnforcesPerCheckLimits(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	_, err := env.svc.Intake(ctx, alice, newIntake("sess-big", "3000.00"))
	subErr := requireReason(t, err, errs.ReasonUnprocessable)
	assert.Contains(t, subErr.Detail, "single check limit of $2500.00")

	_, err = env.svc.Intake(ctx, alice, newIntake("sess-first", "600.00"))
	subErr = requireReason(t, err, errs.ReasonUnprocessable)
	assert.Contains(t, subErr.Detail, "First-time deposit limit is $500.00")
}

func TestIntakeEnforcesDailyLimitWithRemaining(t *testing.T) {
	env := newTestEnv(t, func(cfg *models.Config) { cfg.Limits.Daily = decimal.NewFromInt(1000) })
	ctx := context.Background()

	for i := 1; i <= 2; i++ {
		_, err := env.svc.Intake(ctx, alice, newIntake(fmt.Sprintf("sess-%d", i), "400.00"))
		require.NoError(t, err)
	}

	_, err := env.svc.Intake(ctx, alice, newIntake("sess-3", "300.00"))
	subErr := requireReason(t, err, errs.ReasonRateLimited)
	assert.Contains(t, subErr.Detail, "Daily check deposit limit exceeded")
	assert.Contains(t, subErr.Detail, "Remaining: $200.00")
	assert.Equal(t, subErr.Detail, subErr.UserMessage())
}

func TestIntakeDetectsDuplicateImages(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	_, err := env.svc.Intake(ctx, alice, newIntake("sess-1", "75.00"))
	require.NoError(t, err)

	again := newIntake("sess-2", "75.00")
	again.Metadata.Extracted = cleanCheck("other-check", "75.00")
	again.Front = []byte("front-sess-1")
	_, err = env.svc.Intake(ctx, alice, again)
	subErr := requireReason(t, err, errs.ReasonDuplicate)
	assert.Contains(t, subErr.Detail, "already deposited")
}

func TestIntakeDetectsDuplicateCheckAfterIndexLoad(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	_, err := env.svc.Intake(ctx, alice, newIntake("sess-1", "75.00"))
	require.NoError(t, err)
	require.NoError(t, env.svc.LoadDuplicateIndex(ctx))

	// Same MICR line and amount, retaken photos
	again := newIntake("sess-2", "75.00")
	again.Metadata.Extracted = cleanCheck("sess-1", "75.00")
	_, err = env.svc.Intake(ctx, alice, again)
	requireReason(t, err, errs.ReasonDuplicate)

	// A different check number passes
	other := newIntake("sess-3", "75.00")
	_, err = env.svc.Intake(ctx, alice, other)
	require.NoError(t, err)
}

func TestIntakeOverrideRules(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	blocking := newIntake("sess-1", "90.00")
	blocking.Metadata.Override = true
	blocking.Metadata.Verdict = &models.ValidationVerdict{
		Errors: []models.Issue{{Check: models.CheckMicr, Message: "MICR unreadable"}},
	}
	_, err := env.svc.Intake(ctx, alice, blocking)
	requireReason(t, err, errs.ReasonUnprocessable)

	invalid := newIntake("sess-2", "90.00")
	invalid.Metadata.Verdict = &models.ValidationVerdict{
		Errors: []models.Issue{{Check: models.CheckImageQuality, Message: "Blurry", Overridable: true}},
	}
	_, err = env.svc.Intake(ctx, alice, invalid)
	requireReason(t, err, errs.ReasonUnprocessable)

	invalid.Metadata.Override = true
	result, err := env.svc.Intake(ctx, alice, invalid)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSubmitted, result.Deposit.Status)
}

func TestHealthCheck(t *testing.T) {
	env := newTestEnv(t, nil)
	assert.NoError(t, env.svc.HealthCheck(context.Background()))
}
