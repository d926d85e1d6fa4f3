package store

import (
	"testing"

	"check-deposit-go/internal/models"

	"github.com/shopspring/decimal"
)

func TestDuplicateKeyFrom(t *testing.T) {
	routing, account, number := "011000015", "123456789", "1042"
	data := &models.ExtractedCheckData{RoutingNumber: &routing, AccountNumber: &account, CheckNumber: &number}

	key := DuplicateKeyFrom(data, decimal.RequireFromString("125.5"))
	if !key.Complete() {
		t.Fatalf("expected complete key, got %+v", key)
	}
	if got, want := key.String(), "011000015|123456789|1042|125.50"; got != want {
		t.Errorf("key.String() = %q, want %q", got, want)
	}
}

func TestDuplicateKeyIncomplete(t *testing.T) {
	routing := "011000015"
	tests := []struct {
		name string
		data *models.ExtractedCheckData
		amt  decimal.Decimal
	}{
		{"nil extraction", nil, decimal.NewFromInt(10)},
		{"missing account", &models.ExtractedCheckData{RoutingNumber: &routing}, decimal.NewFromInt(10)},
		{"zero amount", &models.ExtractedCheckData{RoutingNumber: &routing}, decimal.Zero},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if DuplicateKeyFrom(tt.data, tt.amt).Complete() {
				t.Error("expected incomplete key")
			}
		})
	}
}
