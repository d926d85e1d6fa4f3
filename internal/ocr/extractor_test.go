package ocr

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"check-deposit-go/internal/errs"
	"check-deposit-go/internal/models"
	"check-deposit-go/internal/transport"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newExtractor(t *testing.T, handler http.HandlerFunc) *HTTPExtractor {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := transport.NewClient("ocr", srv.Client(), models.RetryConfig{MaxAttempts: 1}, models.BreakerConfig{})
	return NewHTTPExtractor(client, srv.URL, "token", nil)
}

func frontImage() models.CheckImage {
	return models.CheckImage{Side: models.SideFront, Data: []byte("front"), MimeType: "image/jpeg"}
}

func TestExtractParsesFields(t *testing.T) {
	var got extractRequest
	ext := newExtractor(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/ocr", r.URL.Path)
		assert.Equal(t, "Bearer token", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"checkNumber": "1042",
			"routingNumber": "0110-0001-5",
			"accountNumber": "12345678",
			"payeeName": " Jane Doe ",
			"checkDate": "2026-10-01",
			"numericAmount": "$1,125.00",
			"writtenAmount": "One thousand one hundred twenty-five and 00/100",
			"confidence": 0.92
		}`))
	})

	data, err := ext.Extract(context.Background(), frontImage())
	require.NoError(t, err)

	assert.Equal(t, DefaultOptions, got.Options)
	assert.Equal(t, models.SideFront, got.Side)

	require.NotNil(t, data.RoutingNumber)
	assert.Equal(t, "011000015", *data.RoutingNumber)
	require.NotNil(t, data.PayeeName)
	assert.Equal(t, "Jane Doe", *data.PayeeName)
	require.NotNil(t, data.NumericAmount)
	assert.True(t, data.NumericAmount.Equal(decimal.RequireFromString("1125")))
	require.NotNil(t, data.CheckDate)
	assert.True(t, data.CheckDate.Equal(time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)))
	assert.False(t, data.AmountMismatch)
	assert.Equal(t, 0.92, data.Confidence)
	assert.Nil(t, data.Memo)
	assert.Nil(t, data.Endorsed)
}

func TestExtractLeavesUnreadableFieldsAbsent(t *testing.T) {
	ext := newExtractor(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"numericAmount": "12O.00", "checkDate": "sometime", "routingNumber": "--", "confidence": 0.4}`))
	})

	data, err := ext.Extract(context.Background(), frontImage())
	require.NoError(t, err)
	assert.Nil(t, data.NumericAmount)
	assert.Nil(t, data.CheckDate)
	assert.Nil(t, data.RoutingNumber)
	assert.False(t, data.AmountMismatch)
}

func TestExtractDetectsAmountMismatch(t *testing.T) {
	ext := newExtractor(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"numericAmount": "150.00", "writtenAmount": "One hundred five and 00/100", "confidence": 0.9}`))
	})

	data, err := ext.Extract(context.Background(), frontImage())
	require.NoError(t, err)
	assert.True(t, data.AmountMismatch)
}

func TestExtractServiceFailureIsTyped(t *testing.T) {
	ext := newExtractor(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := ext.Extract(context.Background(), frontImage())
	var ocrErr *errs.OcrServiceError
	require.True(t, errors.As(err, &ocrErr))
	assert.Equal(t, http.StatusServiceUnavailable, ocrErr.StatusCode)
	assert.Equal(t, models.SideFront, ocrErr.Side)
	assert.Equal(t, errs.KindOcrService, errs.Classify(err))
}

func TestExtractEmptyImage(t *testing.T) {
	ext := newExtractor(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})

	_, err := ext.Extract(context.Background(), models.CheckImage{Side: models.SideBack})
	var ocrErr *errs.OcrServiceError
	assert.True(t, errors.As(err, &ocrErr))
}

func TestMerge(t *testing.T) {
	num := "1042"
	endorsed := true
	amount := decimal.RequireFromString("125.00")
	backMemo := "rent"

	front := &models.ExtractedCheckData{Side: models.SideFront, CheckNumber: &num, NumericAmount: &amount, Confidence: 0.9}
	back := &models.ExtractedCheckData{Side: models.SideBack, Memo: &backMemo, Endorsed: &endorsed, Confidence: 0.7}

	merged := Merge(front, back)
	require.NotNil(t, merged)
	assert.Equal(t, &num, merged.CheckNumber)
	assert.Equal(t, &backMemo, merged.Memo)
	require.NotNil(t, merged.Endorsed)
	assert.True(t, *merged.Endorsed)
	assert.InDelta(t, 0.8, merged.Confidence, 1e-9)

	assert.Nil(t, Merge(nil, nil))
	assert.Equal(t, 0.9, Merge(front, nil).Confidence)
}

func TestParseWrittenAmount(t *testing.T) {
	tests := []struct {
		text string
		want string
		ok   bool
	}{
		{"One hundred twenty-five and 00/100", "125.00", true},
		{"one hundred and twenty five dollars and 50/100", "125.50", true},
		{"Twelve hundred fifty and xx/100 dollars only", "1250.00", true},
		{"Two thousand five hundred and 00/100", "2500.00", true},
		{"1,500 and 25/100", "1500.25", true},
		{"Three million four thousand", "3004000.00", true},
		{"Nine hundred ninety-nine", "999.00", true},
		{"", "", false},
		{"pay to the order of", "", false},
		{"and 00/100", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, ok := ParseWrittenAmount(tt.text)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.True(t, got.Equal(decimal.RequireFromString(tt.want)), "got %s", got)
			}
		})
	}
}
