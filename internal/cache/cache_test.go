package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"check-deposit-go/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func deposit() *models.Deposit {
	return &models.Deposit{
		Id:        "dep-1",
		SessionId: "sess-42",
		Status:    models.StatusSubmitted,
		Amount:    decimal.RequireFromString("125.00"),
	}
}

func TestMemoryCacheRoundTrip(t *testing.T) {
	c := NewMemoryCache(0)
	ctx := context.Background()

	_, ok := c.Get(ctx, "sess-42")
	assert.False(t, ok)

	c.Set(ctx, "sess-42", deposit())
	got, ok := c.Get(ctx, "sess-42")
	require.True(t, ok)
	assert.Equal(t, "dep-1", got.Id)

	got.Id = "mutated"
	again, _ := c.Get(ctx, "sess-42")
	assert.Equal(t, "dep-1", again.Id)

	c.Delete(ctx, "sess-42")
	_, ok = c.Get(ctx, "sess-42")
	assert.False(t, ok)
}

func TestMemoryCacheExpires(t *testing.T) {
	now := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	c := NewMemoryCache(time.Minute)
	c.now = func() time.Time { return now }

	c.Set(context.Background(), "sess-42", deposit())
	now = now.Add(30 * time.Second)
	_, ok := c.Get(context.Background(), "sess-42")
	assert.True(t, ok)

	now = now.Add(time.Minute)
	_, ok = c.Get(context.Background(), "sess-42")
	assert.False(t, ok)
}

func TestRedisCache(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	client, err := NewRedisClient(addr, os.Getenv("REDIS_PASSWORD"), 0)
	require.NoError(t, err)
	defer client.Close()

	c := NewRedisCache(client, time.Minute)
	ctx := context.Background()
	session := "test-" + uuid.NewString()

	c.Set(ctx, session, deposit())
	got, ok := c.Get(ctx, session)
	require.True(t, ok)
	assert.Equal(t, "dep-1", got.Id)
	assert.True(t, got.Amount.Equal(decimal.RequireFromString("125.00")))

	c.Delete(ctx, session)
	_, ok = c.Get(ctx, session)
	assert.False(t, ok)
}
