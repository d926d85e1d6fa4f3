package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"check-deposit-go/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePolicy(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadPolicyAppliesOverrides(t *testing.T) {
	path := writePolicy(t, `
limits:
  daily: "7500.00"
  duplicate_window: 720h
hold:
  standard_immediate: "225"
  established_deposits: 20
review:
  review_threshold: 0.25
  reject_threshold: 0.95
quality_suggestions:
  blur: Keep the phone still.
`)

	policy, err := LoadPolicy(path)
	require.NoError(t, err)

	cfg := &models.Config{
		Limits: models.LimitsConfig{Monthly: decimal.NewFromInt(20000)},
	}
	require.NoError(t, policy.Apply(cfg))

	assert.True(t, cfg.Limits.Daily.Equal(decimal.NewFromInt(7500)))
	assert.True(t, cfg.Limits.Monthly.Equal(decimal.NewFromInt(20000)))
	assert.Equal(t, 720*time.Hour, cfg.Limits.DuplicateWindow)
	assert.True(t, cfg.Hold.StandardImmediate.Equal(decimal.NewFromInt(225)))
	assert.Equal(t, 20, cfg.Hold.EstablishedDeposits)
	assert.Equal(t, 0.25, cfg.Processor.ReviewThreshold)
	assert.Equal(t, 0.95, cfg.Processor.RejectThreshold)
	assert.Equal(t, "Keep the phone still.", policy.QualitySuggestions["blur"])
}

func TestLoadPolicyErrors(t *testing.T) {
	_, err := LoadPolicy(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = LoadPolicy(writePolicy(t, "review:\n  review_threshold: 0.9\n  reject_threshold: 0.5\n"))
	assert.Error(t, err)

	policy, err := LoadPolicy(writePolicy(t, "limits:\n  daily: plenty\n"))
	require.NoError(t, err)
	assert.Error(t, policy.Apply(&models.Config{}))

	policy, err = LoadPolicy(writePolicy(t, "hold:\n  large_deposit: \"-5\"\n"))
	require.NoError(t, err)
	assert.Error(t, policy.Apply(&models.Config{}))
}
