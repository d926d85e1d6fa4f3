package depositapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
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

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	hc := transport.NewClient("deposit", srv.Client(), models.RetryConfig{MaxAttempts: 1}, models.BreakerConfig{})
	return NewClient(hc, srv.URL, "secret")
}

func request() *models.DepositRequest {
	return &models.DepositRequest{
		SessionId: "sess-42",
		AccountId: "acct-1",
		Amount:    decimal.RequireFromString("125.00"),
		Device:    models.DeviceMetadata{DeviceId: "device-1", Timestamp: time.Now()},
		Front:     models.CheckImage{Side: models.SideFront, Data: []byte("front-bytes")},
		Back:      models.CheckImage{Side: models.SideBack, Data: []byte("back-bytes")},
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestSubmitSendsMultipart(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/deposits", r.URL.Path)
		assert.Equal(t, "sess-42", r.Header.Get(IdempotencyHeader))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		require.NoError(t, r.ParseMultipartForm(1<<20))
		var meta models.SubmissionMetadata
		require.NoError(t, json.Unmarshal([]byte(r.FormValue("metadata")), &meta))
		assert.Equal(t, "acct-1", meta.AccountId)
		assert.True(t, meta.Amount.Equal(decimal.RequireFromString("125")))

		for side, want := range map[string]string{"front": "front-bytes", "back": "back-bytes"} {
			f, _, err := r.FormFile(side)
			require.NoError(t, err)
			data, _ := io.ReadAll(f)
			assert.Equal(t, want, string(data))
		}

		writeJSON(w, http.StatusCreated, models.Deposit{Id: "dep-1", SessionId: "sess-42", Status: models.StatusSubmitted})
	}))

	d, err := client.Submit(context.Background(), request())
	require.NoError(t, err)
	assert.Equal(t, "dep-1", d.Id)
	assert.Equal(t, models.StatusSubmitted, d.Status)
}

func TestSubmitReplayConflictReturnsExistingDeposit(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/deposits", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusConflict, models.ErrorBody{Code: errs.CodeIdempotencyReplay, DepositId: "dep-1"})
	})
	mux.HandleFunc("/v1/deposits/dep-1", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, models.Deposit{Id: "dep-1", Status: models.StatusProcessing})
	})
	client := newTestClient(t, mux)

	d, err := client.Submit(context.Background(), request())
	require.NoError(t, err)
	assert.Equal(t, "dep-1", d.Id)
}

func TestSubmitErrorTaxonomy(t *testing.T) {
	tests := []struct {
		status int
		code   string
		want   errs.RejectReason
	}{
		{http.StatusBadRequest, "invalid_request", errs.ReasonInvalidRequest},
		{http.StatusUnauthorized, "unauthenticated", errs.ReasonUnauthenticated},
		{http.StatusForbidden, "forbidden", errs.ReasonForbidden},
		{http.StatusConflict, "duplicate", errs.ReasonDuplicate},
		{http.StatusRequestEntityTooLarge, "payload_too_large", errs.ReasonPayloadTooLarge},
		{http.StatusUnprocessableEntity, "unprocessable", errs.ReasonUnprocessable},
		{http.StatusTooManyRequests, "rate_limited", errs.ReasonRateLimited},
		{http.StatusServiceUnavailable, "server_error", errs.ReasonServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.want), func(t *testing.T) {
			client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, tt.status, models.ErrorBody{Code: tt.code, Message: "server says no"})
			}))

			_, err := client.Submit(context.Background(), request())
			var subErr *errs.SubmissionError
			require.True(t, errors.As(err, &subErr))
			assert.Equal(t, tt.want, subErr.Reason)
			assert.Equal(t, tt.code, subErr.Code)
			assert.False(t, subErr.Retryable())
		})
	}
}

func TestSubmitNetworkFailureIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	hc := transport.NewClient("deposit", http.DefaultClient, models.RetryConfig{MaxAttempts: 1}, models.BreakerConfig{})
	_, err := NewClient(hc, url, "").Submit(context.Background(), request())

	var subErr *errs.SubmissionError
	require.True(t, errors.As(err, &subErr))
	assert.Equal(t, errs.ReasonNetworkError, subErr.Reason)
	assert.True(t, errs.IsRetryable(err))
}

func TestSubmitRequiresImages(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	}))
	req := request()
	req.Back = models.CheckImage{Side: models.SideBack}

	_, err := client.Submit(context.Background(), req)
	var subErr *errs.SubmissionError
	require.True(t, errors.As(err, &subErr))
	assert.Equal(t, errs.ReasonInvalidRequest, subErr.Reason)
}

func TestCancelAfterProcessingIsPreconditionError(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/deposits/dep-1/cancel", r.URL.Path)
		writeJSON(w, http.StatusConflict, models.ErrorBody{Code: errs.CodeInvalidState, Message: "deposit is PROCESSING"})
	}))

	_, err := client.Cancel(context.Background(), "dep-1", "changed my mind")
	var pre *errs.PreconditionError
	require.True(t, errors.As(err, &pre))
	assert.Equal(t, "cancel", pre.Op)
	assert.Equal(t, "dep-1", pre.DepositId)
}

func TestGetDepositNotFound(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, models.ErrorBody{Code: "not_found"})
	}))

	_, err := client.GetDeposit(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
