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

package processor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"check-deposit-go/internal/api"
	"check-deposit-go/internal/models"
	"check-deposit-go/internal/store"

	"go.uber.org/zap"
)

// Config contains configuration for Processor
type Config struct {
	Service            *api.DepositService
	Store              store.DepositStore
	LookbackWindow     time.Duration
	PollingInterval    time.Duration
	CleanupInterval    time.Duration
	MaxPostingAttempts int
	BatchSize          int
	Concurrency        int
	Clock              func() time.Time
}

// Processor polls the deposit store and drives deposits through processing,
// risk decision, funds posting and hold release.
type Processor struct {
	service *api.DepositService
	store   store.DepositStore

	// State management for posted credits and posting failures
	posted          map[string]time.Time
	failures        map[string]int
	mutex           sync.RWMutex
	lookbackWindow  time.Duration
	pollingInterval time.Duration
	cleanupInterval time.Duration
	maxAttempts     int
	batchSize       int
	concurrency     int
	now             func() time.Time

	// Control channels
	stopChan chan struct{}
	doneChan chan struct{}
}

// New creates a new deposit processor
func New(cfg Config) *Processor {
	p := &Processor{
		service:         cfg.Service,
		store:           cfg.Store,
		posted:          make(map[string]time.Time),
		failures:        make(map[string]int),
		lookbackWindow:  cfg.LookbackWindow,
		pollingInterval: cfg.PollingInterval,
		cleanupInterval: cfg.CleanupInterval,
		maxAttempts:     cfg.MaxPostingAttempts,
		batchSize:       cfg.BatchSize,
		concurrency:     cfg.Concurrency,
		now:             cfg.Clock,
		stopChan:        make(chan struct{}),
		doneChan:        make(chan struct{}),
	}
	if p.lookbackWindow <= 0 {
		p.lookbackWindow = 6 * time.Hour
	}
	if p.pollingInterval <= 0 {
		p.pollingInterval = 10 * time.Second
	}
	if p.cleanupInterval <= 0 {
		p.cleanupInterval = 15 * time.Minute
	}
	if p.maxAttempts <= 0 {
		p.maxAttempts = 5
	}
	if p.batchSize <= 0 {
		p.batchSize = 100
	}
	if p.concurrency <= 0 {
		p.concurrency = 4
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p
}

// Start recovers interrupted work and begins polling
func (p *Processor) Start(ctx context.Context) error {
	zap.L().Info("Starting deposit processor")

	if err := p.performStartupRecovery(ctx); err != nil {
		zap.L().Error("Startup recovery failed", zap.Error(err))
		return fmt.Errorf("startup recovery failed: %w", err)
	}

	go p.pollLoop(ctx)
	go p.cleanupLoop(ctx)

	zap.L().Info("Deposit processor started successfully",
		zap.Duration("polling_interval", p.pollingInterval),
		zap.Duration("lookback_window", p.lookbackWindow))
	return nil
}

// Stop gracefully stops the processor
func (p *Processor) Stop() {
	zap.L().Info("Stopping deposit processor")
	close(p.stopChan)
	<-p.doneChan
	zap.L().Info("Deposit processor stopped")
}

func (p *Processor) pollLoop(ctx context.Context) {
	defer close(p.doneChan)

	ticker := time.NewTicker(p.pollingInterval)
	defer ticker.Stop()

	p.RunOnce(ctx)

	for {
		select {
		case <-ticker.C:
			p.RunOnce(ctx)
		case <-p.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// performStartupRecovery finishes deposits a previous run left in PROCESSING
func (p *Processor) performStartupRecovery(ctx context.Context) error {
	zap.L().Info("Starting startup recovery process")

	mostRecent, err := p.store.GetMostRecentDepositTime(ctx)
	if err != nil {
		return fmt.Errorf("failed to get most recent deposit time: %w", err)
	}

	inFlight, err := p.store.ListDepositsByStatus(ctx, models.StatusProcessing, p.batchSize)
	if err != nil {
		return fmt.Errorf("failed to list in-flight deposits: %w", err)
	}

	zap.L().Info("Recovery window calculated",
		zap.Time("most_recent_deposit", mostRecent),
		zap.Time("current_time", p.now().UTC()),
		zap.Int("in_flight", len(inFlight)))

	var recovered int
	var failed []string
	for i := range inFlight {
		if err := p.decide(ctx, &inFlight[i]); err != nil {
			zap.L().Error("Failed to recover deposit",
				zap.String("deposit_id", inFlight[i].Id),
				zap.Error(err))
			failed = append(failed, inFlight[i].Id)
			continue
		}
		recovered++
	}

	if len(failed) > 0 {
		zap.L().Warn("Startup recovery completed with some failures",
			zap.Int("recovered", recovered),
			zap.Strings("failed_deposits", failed))
		if len(failed) > len(inFlight)/2 {
			return fmt.Errorf("recovery failed for majority of deposits (%d/%d)", len(failed), len(inFlight))
		}
		return nil
	}

	zap.L().Info("Startup recovery completed successfully", zap.Int("recovered", recovered))
	return nil
}

func (p *Processor) isPosted(key string) bool {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	_, exists := p.posted[key]
	return exists
}

func (p *Processor) markPosted(key string) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.posted[key] = p.now()
	delete(p.failures, key)
}

// recordFailure counts a posting failure and returns the total so far
func (p *Processor) recordFailure(key string) int {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.failures[key]++
	return p.failures[key]
}

func (p *Processor) forget(key string) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	delete(p.posted, key)
	delete(p.failures, key)
}

// cleanupLoop periodically drops old posting marks
func (p *Processor) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(p.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.cleanupPosted()
		case <-p.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// cleanupPosted removes marks older than the lookback window. Reposting after
// eviction is harmless because ledger postings are idempotent.
func (p *Processor) cleanupPosted() {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	cutoff := p.now().Add(-p.lookbackWindow)
	cleaned := 0

	for key, postedAt := range p.posted {
		if postedAt.Before(cutoff) {
			delete(p.posted, key)
			cleaned++
		}
	}

	if cleaned > 0 {
		zap.L().Debug("Cleaned up old posting marks",
			zap.Int("cleaned", cleaned),
			zap.Int("remaining", len(p.posted)))
	}
}
