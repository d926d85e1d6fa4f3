package cache

import (
	"context"
	"sync"
	"time"

	"check-deposit-go/internal/models"
)

// IdempotencyCache remembers the deposit created for a capture session so a
// retried submit can be answered without another upload.
type IdempotencyCache interface {
	Get(ctx context.Context, sessionId string) (*models.Deposit, bool)
	Set(ctx context.Context, sessionId string, deposit *models.Deposit)
	Delete(ctx context.Context, sessionId string)
}

type entry struct {
	deposit   models.Deposit
	expiresAt time.Time
}

// MemoryCache is a process-local IdempotencyCache. A zero ttl keeps entries
// until deleted.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]entry
	ttl     time.Duration
	now     func() time.Time
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]entry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (c *MemoryCache) Get(_ context.Context, sessionId string) (*models.Deposit, bool) {
	c.mu.RLock()
	e, ok := c.entries[sessionId]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if !e.expiresAt.IsZero() && c.now().After(e.expiresAt) {
		c.Delete(context.Background(), sessionId)
		return nil, false
	}
	d := e.deposit
	return &d, true
}

func (c *MemoryCache) Set(_ context.Context, sessionId string, deposit *models.Deposit) {
	if deposit == nil {
		return
	}
	e := entry{deposit: *deposit}
	if c.ttl > 0 {
		e.expiresAt = c.now().Add(c.ttl)
	}
	c.mu.Lock()
	c.entries[sessionId] = e
	c.mu.Unlock()
}

func (c *MemoryCache) Delete(_ context.Context, sessionId string) {
	c.mu.Lock()
	delete(c.entries, sessionId)
	c.mu.Unlock()
}
