package tracker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"check-deposit-go/internal/errs"
	"check-deposit-go/internal/lifecycle"
	"check-deposit-go/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)

type fakeSource struct {
	mu        sync.Mutex
	deposit   *models.Deposit
	getErr    error
	cancelErr error
	gets      int
	cancels   int
	onGet     func(n int, d *models.Deposit)
}

func (f *fakeSource) GetDeposit(context.Context, string) (*models.Deposit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	if f.onGet != nil {
		f.onGet(f.gets, f.deposit)
	}
	if f.getErr != nil {
		return nil, f.getErr
	}
	cp := *f.deposit
	return &cp, nil
}

func (f *fakeSource) Cancel(_ context.Context, _ string, reason string) (*models.Deposit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels++
	if f.cancelErr != nil {
		return nil, f.cancelErr
	}
	if err := lifecycle.Apply(f.deposit, models.StatusCancelled, reason, t0); err != nil {
		return nil, &errs.PreconditionError{Op: "cancel", DepositId: f.deposit.Id, Reason: err.Error()}
	}
	f.deposit.Version++
	cp := *f.deposit
	return &cp, nil
}

func (f *fakeSource) advance(t *testing.T, to models.DepositStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NoError(t, lifecycle.Apply(f.deposit, to, "", t0.Add(time.Minute)))
	f.deposit.Version++
}

func submitted() *models.Deposit {
	return &models.Deposit{
		Id:              "dep-1",
		Status:          models.StatusSubmitted,
		Amount:          decimal.NewFromInt(125),
		SubmittedAt:     t0,
		ProcessingSteps: lifecycle.DefaultSteps(t0),
		Version:         1,
	}
}

func at(status models.DepositStatus, version int64) *models.Deposit {
	d := submitted()
	path := map[models.DepositStatus][]models.DepositStatus{
		models.StatusSubmitted:  nil,
		models.StatusProcessing: {models.StatusProcessing},
		models.StatusApproved:   {models.StatusProcessing, models.StatusApproved},
		models.StatusDeposited:  {models.StatusProcessing, models.StatusApproved, models.StatusDeposited},
		models.StatusRejected:   {models.StatusProcessing, models.StatusRejected},
	}[status]
	for _, s := range path {
		if err := lifecycle.Apply(d, s, "", t0); err != nil {
			panic(err)
		}
	}
	d.Version = version
	return d
}

func TestTerminalStateIsNeverLeft(t *testing.T) {
	tr := New(&fakeSource{}, "dep-1", models.TrackerConfig{}, WithInitial(at(models.StatusRejected, 3)))

	for _, next := range []models.DepositStatus{models.StatusProcessing, models.StatusApproved, models.StatusDeposited, models.StatusSubmitted} {
		_, accepted := tr.Observe(at(next, 9))
		assert.False(t, accepted, next)
		assert.Equal(t, models.StatusRejected, tr.Snapshot().Deposit.Status)
	}
}

func TestIllegalAndStaleUpdatesIgnored(t *testing.T) {
	tr := New(&fakeSource{}, "dep-1", models.TrackerConfig{}, WithInitial(at(models.StatusApproved, 3)))

	_, accepted := tr.Observe(at(models.StatusProcessing, 4))
	assert.False(t, accepted)

	_, accepted = tr.Observe(at(models.StatusDeposited, 2))
	assert.False(t, accepted)

	other := at(models.StatusDeposited, 5)
	other.Id = "dep-2"
	_, accepted = tr.Observe(other)
	assert.False(t, accepted)

	snap, accepted := tr.Observe(at(models.StatusDeposited, 5))
	assert.True(t, accepted)
	assert.Equal(t, models.StatusDeposited, snap.Deposit.Status)
	assert.Equal(t, 100.0, snap.Progress)
	assert.Equal(t, []models.SupportAction{models.ActionViewDetails}, snap.Actions)
}

func TestSkippedStatesAreAccepted(t *testing.T) {
	tr := New(&fakeSource{}, "dep-1", models.TrackerConfig{}, WithInitial(submitted()))

	snap, accepted := tr.Observe(at(models.StatusDeposited, 4))
	assert.True(t, accepted)
	assert.Equal(t, models.StatusDeposited, snap.Deposit.Status)
}

func TestProgressNeverDecreases(t *testing.T) {
	tr := New(&fakeSource{}, "dep-1", models.TrackerConfig{}, WithInitial(at(models.StatusApproved, 3)))
	before := tr.Snapshot().Progress

	regressed := at(models.StatusApproved, 4)
	regressed.ProcessingSteps = lifecycle.DefaultSteps(t0)
	snap, accepted := tr.Observe(regressed)
	assert.True(t, accepted)
	assert.Equal(t, before, snap.Progress)
	assert.GreaterOrEqual(t, snap.Progress, 0.0)
	assert.LessOrEqual(t, snap.Progress, 100.0)
}

func TestRefreshFailureKeepsLastKnownState(t *testing.T) {
	source := &fakeSource{getErr: &errs.TransientNetworkError{Op: "deposit.get", Attempts: 3, Err: errors.New("timeout")}}
	tr := New(source, "dep-1", models.TrackerConfig{}, WithInitial(at(models.StatusProcessing, 2)))

	snap, err := tr.Refresh(context.Background())
	require.Error(t, err)
	assert.True(t, errs.IsRetryable(err))
	assert.True(t, snap.Stale)
	assert.False(t, snap.Terminal())
	assert.Equal(t, models.StatusProcessing, snap.Deposit.Status)

	empty := New(source, "dep-1", models.TrackerConfig{})
	snap, err = empty.Refresh(context.Background())
	require.Error(t, err)
	assert.True(t, snap.Stale)
	assert.Empty(t, snap.Deposit.Status)
}

func TestCancelAfterProcessingIsRejectedLocally(t *testing.T) {
	source := &fakeSource{deposit: at(models.StatusProcessing, 2)}
	tr := New(source, "dep-1", models.TrackerConfig{}, WithInitial(source.deposit))

	snap, err := tr.Cancel(context.Background(), "changed my mind")
	var pre *errs.PreconditionError
	require.True(t, errors.As(err, &pre))
	assert.Equal(t, models.StatusProcessing, pre.Status)
	assert.Equal(t, models.StatusProcessing, snap.Deposit.Status)
	assert.Zero(t, source.cancels)
}

func TestCancelRaceLostToProcessing(t *testing.T) {
	source := &fakeSource{deposit: submitted()}
	tr := New(source, "dep-1", models.TrackerConfig{}, WithInitial(submitted()))
	source.advance(t, models.StatusProcessing)

	snap, err := tr.Cancel(context.Background(), "changed my mind")
	var pre *errs.PreconditionError
	require.True(t, errors.As(err, &pre))
	assert.Equal(t, models.StatusProcessing, pre.Status)
	assert.Equal(t, models.StatusProcessing, snap.Deposit.Status)
	assert.Equal(t, 1, source.cancels)
}

func TestCancelNetworkFailureIsNotOptimistic(t *testing.T) {
	source := &fakeSource{deposit: submitted(), cancelErr: &errs.TransientNetworkError{Op: "deposit.cancel", Err: errors.New("reset")}}
	tr := New(source, "dep-1", models.TrackerConfig{}, WithInitial(submitted()))

	snap, err := tr.Cancel(context.Background(), "")
	require.Error(t, err)
	assert.Equal(t, models.StatusSubmitted, snap.Deposit.Status)
}

func TestCancelConfirmed(t *testing.T) {
	source := &fakeSource{deposit: submitted()}
	tr := New(source, "dep-1", models.TrackerConfig{}, WithInitial(submitted()))

	var changes []models.DepositStatus
	tr.OnChange(func(s Snapshot) { changes = append(changes, s.Deposit.Status) })

	snap, err := tr.Cancel(context.Background(), "wrong account")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, snap.Deposit.Status)
	assert.Equal(t, []models.DepositStatus{models.StatusCancelled}, changes)
}

func TestPollingIsIdempotentAndStopsOnTerminal(t *testing.T) {
	source := &fakeSource{deposit: submitted()}
	source.onGet = func(n int, d *models.Deposit) {
		next := map[int]models.DepositStatus{2: models.StatusProcessing, 3: models.StatusApproved, 4: models.StatusDeposited}
		if to, ok := next[n]; ok {
			_ = lifecycle.Apply(d, to, "", t0)
			d.Version++
		}
	}
	tr := New(source, "dep-1", models.TrackerConfig{PollInterval: 5 * time.Millisecond}, WithInitial(submitted()))

	ctx := context.Background()
	tr.StartPolling(ctx)
	tr.StartPolling(ctx)
	tr.StartPolling(ctx)

	require.Eventually(t, func() bool { return !tr.Polling() }, 2*time.Second, 5*time.Millisecond)
	assert.True(t, tr.Snapshot().Terminal())

	source.mu.Lock()
	assert.Equal(t, 4, source.gets)
	source.mu.Unlock()

	tr.StopPolling()
}

func TestStopPolling(t *testing.T) {
	source := &fakeSource{deposit: submitted()}
	tr := New(source, "dep-1", models.TrackerConfig{PollInterval: time.Hour}, WithInitial(submitted()))

	tr.StartPolling(context.Background())
	assert.True(t, tr.Polling())
	tr.StopPolling()
	assert.False(t, tr.Polling())

	tr.StartPolling(context.Background())
	assert.True(t, tr.Polling())
	tr.StopPolling()
}

func TestStopPollingFromObserver(t *testing.T) {
	source := &fakeSource{deposit: submitted()}
	source.onGet = func(n int, d *models.Deposit) {
		if n == 1 {
			_ = lifecycle.Apply(d, models.StatusProcessing, "", t0)
			d.Version++
		}
	}
	tr := New(source, "dep-1", models.TrackerConfig{PollInterval: time.Hour}, WithInitial(submitted()))

	stopped := make(chan struct{})
	tr.OnChange(func(Snapshot) {
		tr.StopPolling()
		close(stopped)
	})
	tr.StartPolling(context.Background())

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("StopPolling blocked inside the change callback")
	}
	require.Eventually(t, func() bool { return !tr.Polling() }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, models.StatusProcessing, tr.Snapshot().Deposit.Status)
	tr.StopPolling()
}
