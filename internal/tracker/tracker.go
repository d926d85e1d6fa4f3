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

package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"check-deposit-go/internal/errs"
	"check-deposit-go/internal/lifecycle"
	"check-deposit-go/internal/models"

	"go.uber.org/zap"
)

// Source is the deposit backend as seen by the tracker.
type Source interface {
	GetDeposit(ctx context.Context, id string) (*models.Deposit, error)
	Cancel(ctx context.Context, id, reason string) (*models.Deposit, error)
}

// Snapshot is the tracker's view of one deposit. A stale snapshot is the last
// known state and is advisory only.
type Snapshot struct {
	Deposit   models.Deposit
	Progress  float64
	Actions   []models.SupportAction
	Stale     bool
	FetchedAt time.Time
	LastError error
}

// Terminal reports whether the snapshot shows a fresh terminal status.
func (s Snapshot) Terminal() bool {
	return !s.Stale && lifecycle.IsTerminal(s.Deposit.Status)
}

const defaultPollInterval = 30 * time.Second

// Tracker follows one deposit through its lifecycle. Server updates that would
// move it backwards or out of a terminal state are ignored.
type Tracker struct {
	source    Source
	depositId string
	interval  time.Duration
	now       func() time.Time

	mu        sync.RWMutex
	current   *models.Deposit
	progress  float64
	stale     bool
	fetchedAt time.Time
	lastErr   error
	observers []func(Snapshot)

	pollMu    sync.Mutex
	stopChan  chan struct{}
	doneChan  chan struct{}
	notifying atomic.Bool // polling loop is running observers
}

// Option customizes a Tracker.
type Option func(*Tracker)

func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithInitial seeds the tracker with the deposit returned by submission.
func WithInitial(d *models.Deposit) Option {
	return func(t *Tracker) {
		if d != nil {
			cp := *d
			t.current = &cp
			t.progress = lifecycle.Progress(cp.ProcessingSteps)
		}
	}
}

func New(source Source, depositId string, cfg models.TrackerConfig, opts ...Option) *Tracker {
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	t := &Tracker{
		source:    source,
		depositId: depositId,
		interval:  interval,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// DepositId returns the tracked deposit id.
func (t *Tracker) DepositId() string { return t.depositId }

// OnChange registers fn to be called after every accepted status change.
// While polling, fn runs on the polling goroutine; a StopPolling call made
// from fn stops the loop without waiting for it to exit.
func (t *Tracker) OnChange(fn func(Snapshot)) {
	t.mu.Lock()
	t.observers = append(t.observers, fn)
	t.mu.Unlock()
}

// Snapshot returns the current view without contacting the backend.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snapshotLocked()
}

func (t *Tracker) snapshotLocked() Snapshot {
	s := Snapshot{
		Progress:  t.progress,
		Stale:     t.stale,
		FetchedAt: t.fetchedAt,
		LastError: t.lastErr,
	}
	if t.current != nil {
		s.Deposit = *t.current
		s.Deposit.ProcessingSteps = append([]models.ProcessingStep(nil), t.current.ProcessingSteps...)
		s.Actions = lifecycle.AvailableActions(t.current.Status)
		s.Deposit.SupportActions = s.Actions
	}
	return s
}

// Refresh fetches the deposit once. On failure the last known state is returned
// marked stale together with the error; no state is ever synthesized.
func (t *Tracker) Refresh(ctx context.Context) (Snapshot, error) {
	return t.refresh(ctx, false)
}

func (t *Tracker) refresh(ctx context.Context, fromLoop bool) (Snapshot, error) {
	d, err := t.source.GetDeposit(ctx, t.depositId)
	if err != nil {
		t.mu.Lock()
		t.stale = true
		t.lastErr = err
		snap := t.snapshotLocked()
		t.mu.Unlock()

		zap.L().Warn("Deposit status fetch failed, keeping last known state",
			zap.String("deposit_id", t.depositId),
			zap.Bool("has_state", snap.Deposit.Id != ""),
			zap.Error(err))
		return snap, fmt.Errorf("status of deposit %s unavailable: %w", t.depositId, err)
	}
	snap, _ := t.observe(d, fromLoop)
	return snap, nil
}

// Observe applies a deposit pushed or fetched from the server. It reports whether
// the update was accepted.
func (t *Tracker) Observe(d *models.Deposit) (Snapshot, bool) {
	return t.observe(d, false)
}

func (t *Tracker) observe(d *models.Deposit, fromLoop bool) (Snapshot, bool) {
	if d == nil {
		return t.Snapshot(), false
	}

	t.mu.Lock()
	accepted, changed := t.acceptLocked(d)
	if accepted {
		cp := *d
		t.current = &cp
		if p := lifecycle.Progress(cp.ProcessingSteps); p > t.progress {
			t.progress = p
		}
		t.stale = false
		t.lastErr = nil
	}
	t.fetchedAt = t.now()
	snap := t.snapshotLocked()
	var observers []func(Snapshot)
	if changed {
		observers = append(observers, t.observers...)
	}
	t.mu.Unlock()

	if fromLoop && len(observers) > 0 {
		t.notifying.Store(true)
		defer t.notifying.Store(false)
	}
	for _, fn := range observers {
		fn(snap)
	}
	return snap, accepted
}

// acceptLocked decides whether d may replace the current state.
func (t *Tracker) acceptLocked(d *models.Deposit) (accepted, changed bool) {
	if d.Id != "" && d.Id != t.depositId {
		zap.L().Warn("Ignoring update for a different deposit",
			zap.String("deposit_id", t.depositId),
			zap.String("update_id", d.Id))
		return false, false
	}
	if !lifecycle.IsKnown(d.Status) {
		zap.L().Warn("Ignoring update with unknown status",
			zap.String("deposit_id", t.depositId),
			zap.String("status", string(d.Status)))
		return false, false
	}
	if t.current == nil {
		return true, true
	}

	from := t.current.Status
	switch {
	case d.Version != 0 && d.Version < t.current.Version:
		return false, false
	case d.Status == from:
		return !lifecycle.IsTerminal(from) || d.Version > t.current.Version, false
	case lifecycle.IsTerminal(from):
		zap.L().Warn("Ignoring update that would leave a terminal status",
			zap.String("deposit_id", t.depositId),
			zap.String("from", string(from)),
			zap.String("to", string(d.Status)))
		return false, false
	case lifecycle.Reachable(from, d.Status):
		zap.L().Info("Deposit status changed",
			zap.String("deposit_id", t.depositId),
			zap.String("from", string(from)),
			zap.String("to", string(d.Status)))
		return true, true
	default:
		zap.L().Warn("Ignoring illegal status update",
			zap.String("deposit_id", t.depositId),
			zap.String("from", string(from)),
			zap.String("to", string(d.Status)))
		return false, false
	}
}

// Cancel requests cancellation. The local state only changes once the server
// confirms; a refused or failed request leaves it untouched.
func (t *Tracker) Cancel(ctx context.Context, reason string) (Snapshot, error) {
	t.mu.RLock()
	var status models.DepositStatus
	if t.current != nil {
		status = t.current.Status
	}
	t.mu.RUnlock()

	if status != "" && !lifecycle.CanCancel(status) {
		return t.Snapshot(), &errs.PreconditionError{
			Op:        "cancel",
			DepositId: t.depositId,
			Status:    status,
			Reason:    "cancellation is only possible before processing starts",
		}
	}

	d, err := t.source.Cancel(ctx, t.depositId, reason)
	if err != nil {
		var pre *errs.PreconditionError
		if errors.As(err, &pre) {
			zap.L().Info("Server refused cancellation, refreshing status",
				zap.String("deposit_id", t.depositId),
				zap.Error(err))
			if _, rerr := t.Refresh(ctx); rerr == nil {
				pre.Status = t.Snapshot().Deposit.Status
			}
		}
		return t.Snapshot(), err
	}

	snap, _ := t.Observe(d)
	if snap.Deposit.Status != models.StatusCancelled {
		return snap, &errs.PreconditionError{
			Op:        "cancel",
			DepositId: t.depositId,
			Status:    snap.Deposit.Status,
			Reason:    "server did not confirm cancellation",
		}
	}
	return snap, nil
}

// StartPolling refreshes on a timer until StopPolling, ctx cancellation or a
// terminal status. Calling it while already polling has no effect.
func (t *Tracker) StartPolling(ctx context.Context) {
	t.pollMu.Lock()
	defer t.pollMu.Unlock()

	if t.stopChan != nil {
		select {
		case <-t.doneChan:
		default:
			return
		}
	}

	t.stopChan = make(chan struct{})
	t.doneChan = make(chan struct{})
	go t.pollLoop(ctx, t.stopChan, t.doneChan)

	zap.L().Info("Started deposit status polling",
		zap.String("deposit_id", t.depositId),
		zap.Duration("interval", t.interval))
}

// StopPolling stops the polling loop and waits for it to exit. Called from an
// OnChange observer it only signals the loop, which exits once the observer returns.
func (t *Tracker) StopPolling() {
	t.pollMu.Lock()
	defer t.pollMu.Unlock()

	if t.stopChan == nil {
		return
	}
	select {
	case <-t.stopChan:
	default:
		close(t.stopChan)
	}
	if t.notifying.Load() {
		zap.L().Info("Stopping deposit status polling from observer", zap.String("deposit_id", t.depositId))
		return
	}
	<-t.doneChan
	zap.L().Info("Stopped deposit status polling", zap.String("deposit_id", t.depositId))
}

// Polling reports whether the polling loop is running.
func (t *Tracker) Polling() bool {
	t.pollMu.Lock()
	defer t.pollMu.Unlock()
	if t.doneChan == nil {
		return false
	}
	select {
	case <-t.doneChan:
		return false
	default:
		return true
	}
}

func (t *Tracker) pollLoop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	if t.poll(ctx) {
		return
	}

	for {
		select {
		case <-ticker.C:
			if t.poll(ctx) {
				return
			}
		case <-stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// poll refreshes once and reports whether polling should end.
func (t *Tracker) poll(ctx context.Context) bool {
	snap, err := t.refresh(ctx, true)
	if err != nil {
		return false
	}
	if snap.Terminal() {
		zap.L().Info("Deposit reached terminal status, polling finished",
			zap.String("deposit_id", t.depositId),
			zap.String("status", string(snap.Deposit.Status)))
		return true
	}
	return false
}
