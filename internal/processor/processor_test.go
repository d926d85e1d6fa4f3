package processor

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"check-deposit-go/internal/api"
	"check-deposit-go/internal/database"
	"check-deposit-go/internal/events"
	"check-deposit-go/internal/models"
	"check-deposit-go/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type failingLedger struct {
	store.FundsLedger
	calls int
}

func (f *failingLedger) PostDeposit(context.Context, store.PostingParams) error {
	f.calls++
	return errors.New("ledger unavailable")
}

type fixture struct {
	db        *database.Service
	svc       *api.DepositService
	processor *Processor
	clock     *testClock
	recorder  *events.Recorder
}

var principal = api.Principal{UserId: "user-alice", Accounts: []string{"chk-1001"}}

func newFixture(t *testing.T, wrapLedger func(store.FundsLedger) store.FundsLedger) *fixture {
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

	var ledger store.FundsLedger = db
	if wrapLedger != nil {
		ledger = wrapLedger(db)
	}

	clock := &testClock{now: time.Date(2026, 3, 4, 15, 0, 0, 0, time.UTC)}
	recorder := &events.Recorder{}
	cfg := &models.Config{Limits: api.DefaultLimits(), Hold: api.DefaultHoldPolicy()}
	svc := api.NewDepositService(db, ledger, recorder, cfg, api.WithClock(clock.Now))

	p := New(Config{
		Service:            svc,
		Store:              db,
		PollingInterval:    time.Hour,
		CleanupInterval:    time.Hour,
		MaxPostingAttempts: 2,
		Clock:              clock.Now,
	})
	return &fixture{db: db, svc: svc, processor: p, clock: clock, recorder: recorder}
}

func (f *fixture) submit(t *testing.T, session, amount string, confidence float64) *models.Deposit {
	t.Helper()
	amt := decimal.RequireFromString(amount)
	routing, account, number := "011000015", "123456789", session
	result, err := f.svc.Intake(context.Background(), principal, api.IntakeRequest{
		IdempotencyKey: session,
		Metadata: models.SubmissionMetadata{
			SessionId: session,
			AccountId: "chk-1001",
			Amount:    amt,
			Device:    models.DeviceMetadata{DeviceId: "device-1", Timestamp: f.clock.Now()},
			Extracted: &models.ExtractedCheckData{
				CheckNumber:   &number,
				RoutingNumber: &routing,
				AccountNumber: &account,
				NumericAmount: &amt,
				Confidence:    confidence,
			},
		},
		Front: []byte("front-" + session),
		Back:  []byte("back-" + session),
	})
	require.NoError(t, err)
	return result.Deposit
}

func (f *fixture) status(t *testing.T, id string) models.DepositStatus {
	t.Helper()
	d, err := f.db.GetDeposit(context.Background(), id)
	require.NoError(t, err)
	return d.Status
}

func TestRunOnceApprovesPostsAndReleases(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	d := f.submit(t, "sess-1", "300.00", 0.95)

	stats := f.processor.RunOnce(ctx)
	assert.Equal(t, 1, stats.Started)
	assert.Equal(t, models.StatusApproved, f.status(t, d.Id))

	balance, err := f.db.GetAccountBalance(ctx, "chk-1001", "USD")
	require.NoError(t, err)
	assert.True(t, balance.Balance.Equal(decimal.NewFromInt(300)))
	assert.True(t, balance.Held.Equal(decimal.NewFromInt(100)))

	// Hold still running
	stats = f.processor.RunOnce(ctx)
	assert.Zero(t, stats.Released)
	assert.Equal(t, models.StatusApproved, f.status(t, d.Id))

	f.clock.Advance(8 * 24 * time.Hour)
	stats = f.processor.RunOnce(ctx)
	assert.Equal(t, 1, stats.Released)
	assert.Equal(t, models.StatusDeposited, f.status(t, d.Id))

	balance, err = f.db.GetAccountBalance(ctx, "chk-1001", "USD")
	require.NoError(t, err)
	assert.True(t, balance.Held.IsZero())

	assert.Equal(t, []models.DepositStatus{
		models.StatusSubmitted, models.StatusProcessing, models.StatusApproved, models.StatusDeposited,
	}, f.recorder.Statuses())
}

func TestRunOnceSendsUncertainDepositsToReview(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	d := f.submit(t, "sess-1", "120.00", 0.5)
	f.processor.RunOnce(ctx)
	assert.Equal(t, models.StatusUnderReview, f.status(t, d.Id))

	stats := f.processor.RunOnce(ctx)
	assert.Equal(t, RunStats{}, stats)
}

func TestRunOnceFailsDepositWhenPostingKeepsFailing(t *testing.T) {
	ledger := &failingLedger{}
	f := newFixture(t, func(inner store.FundsLedger) store.FundsLedger {
		ledger.FundsLedger = inner
		return ledger
	})
	ctx := context.Background()

	d := f.submit(t, "sess-1", "90.00", 0.95)

	// The first pass approves and fails to post twice: once after the
	// decision and once in the approved stage.
	stats := f.processor.RunOnce(ctx)
	assert.Zero(t, stats.Failed)
	assert.Equal(t, models.StatusApproved, f.status(t, d.Id))

	stats = f.processor.RunOnce(ctx)
	assert.Equal(t, 1, stats.Failed)

	failed, err := f.db.GetDeposit(ctx, d.Id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, failed.Status)
	assert.Equal(t, "Funds could not be posted", failed.RejectionReason)
	assert.Contains(t, failed.SupportActions, models.ActionResubmit)
	assert.Equal(t, 3, ledger.calls)
}

func TestStartRecoversInFlightDeposits(t *testing.T) {
	f := newFixture(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d := f.submit(t, "sess-1", "60.00", 0.95)
	_, err := f.svc.Transition(ctx, d, models.StatusProcessing, "", nil, nil)
	require.NoError(t, err)

	require.NoError(t, f.processor.performStartupRecovery(ctx))
	assert.Equal(t, models.StatusApproved, f.status(t, d.Id))

	require.NoError(t, f.processor.Start(ctx))
	f.processor.Stop()
}

func TestCleanupPosted(t *testing.T) {
	f := newFixture(t, nil)
	f.processor.markPosted("old")
	f.clock.Advance(7 * time.Hour)
	f.processor.markPosted("fresh")

	f.processor.cleanupPosted()
	assert.False(t, f.processor.isPosted("old"))
	assert.True(t, f.processor.isPosted("fresh"))
}
