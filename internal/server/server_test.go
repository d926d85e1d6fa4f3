package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"check-deposit-go/internal/api"
	"check-deposit-go/internal/database"
	"check-deposit-go/internal/depositapi"
	"check-deposit-go/internal/errs"
	"check-deposit-go/internal/events"
	"check-deposit-go/internal/metrics"
	"check-deposit-go/internal/models"
	"check-deposit-go/internal/transport"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

type testServer struct {
	server *Server
	http   *httptest.Server
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

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

	registry := prometheus.NewRegistry()
	collector := metrics.NewPrometheusCollector("checkdeposit")
	require.NoError(t, collector.Register(registry))

	cfg := &models.Config{
		Limits: api.DefaultLimits(),
		Hold:   api.DefaultHoldPolicy(),
		Ledger: models.LedgerConfig{Currency: "USD"},
		Server: models.ServerConfig{JWTSecret: testSecret, MaxImageBytes: 1 << 20},
	}
	svc := api.NewDepositService(db, db, &events.Recorder{}, cfg, api.WithMetrics(collector))

	s, err := New(svc, cfg.Server, registry)
	require.NoError(t, err)

	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return &testServer{server: s, http: srv}
}

func token(t *testing.T, userId string, accounts []string, reviewer bool) string {
	t.Helper()
	tok, err := IssueToken([]byte(testSecret), userId, accounts, reviewer, time.Hour)
	require.NoError(t, err)
	return tok
}

func (ts *testServer) client(t *testing.T, tok string) *depositapi.Client {
	hc := transport.NewClient("deposit", ts.http.Client(), models.RetryConfig{MaxAttempts: 1}, models.BreakerConfig{})
	return depositapi.NewClient(hc, ts.http.URL, tok)
}

func (ts *testServer) do(t *testing.T, method, path, tok string, body any) (*http.Response, models.ErrorBody) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, ts.http.URL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := ts.http.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var errBody models.ErrorBody
	if resp.StatusCode >= 400 {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&errBody))
	}
	return resp, errBody
}

func depositRequest(session, checkNumber, amount string) *models.DepositRequest {
	amt := decimal.RequireFromString(amount)
	endorsed := true
	routing, account := "011000015", "123456789"
	return &models.DepositRequest{
		SessionId: session,
		AccountId: "chk-1001",
		Amount:    amt,
		Device:    models.DeviceMetadata{DeviceId: "device-1", Timestamp: time.Now()},
		Extracted: &models.ExtractedCheckData{
			CheckNumber:   &checkNumber,
			RoutingNumber: &routing,
			AccountNumber: &account,
			NumericAmount: &amt,
			Endorsed:      &endorsed,
			Confidence:    0.95,
		},
		Verdict: &models.ValidationVerdict{IsValid: true},
		Front:   models.CheckImage{Side: models.SideFront, Data: []byte("front-" + session)},
		Back:    models.CheckImage{Side: models.SideBack, Data: []byte("back-" + session)},
	}
}

func TestAuthMiddlewareRejectsMissingAndInvalidTokens(t *testing.T) {
	ts := newTestServer(t)

	otherSigned, err := IssueToken([]byte("another-secret"), "user-alice", []string{"chk-1001"}, false, time.Hour)
	require.NoError(t, err)
	expired, err := IssueToken([]byte(testSecret), "user-alice", []string{"chk-1001"}, false, -time.Minute)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
	}{
		{"missing", ""},
		{"wrong scheme", "Basic abc"},
		{"wrong secret", "Bearer " + otherSigned},
		{"expired", "Bearer " + expired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/v1/deposits/any", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			ts.server.Handler().ServeHTTP(w, req)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
			var body models.ErrorBody
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, string(errs.ReasonUnauthenticated), body.Code)
		})
	}
}

func TestSubmitReplayAndCancelThroughClient(t *testing.T) {
	ts := newTestServer(t)
	client := ts.client(t, token(t, "user-alice", []string{"chk-1001"}, false))
	ctx := context.Background()

	first, err := client.Submit(ctx, depositRequest("sess-42", "1001", "125.00"))
	require.NoError(t, err)
	assert.Equal(t, models.StatusSubmitted, first.Status)
	assert.NotEmpty(t, first.ConfirmationNumber)

	second, err := client.Submit(ctx, depositRequest("sess-42", "1001", "125.00"))
	require.NoError(t, err)
	assert.Equal(t, first.Id, second.Id)

	fetched, err := client.GetDeposit(ctx, first.Id)
	require.NoError(t, err)
	assert.Equal(t, first.ConfirmationNumber, fetched.ConfirmationNumber)

	cancelled, err := client.Cancel(ctx, first.Id, "Changed my mind")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, cancelled.Status)

	_, err = client.Cancel(ctx, first.Id, "")
	var pre *errs.PreconditionError
	require.True(t, errors.As(err, &pre), "expected PreconditionError, got %v", err)
	assert.Equal(t, errs.KindPrecondition, errs.Classify(err))
}

func TestSubmitRejectionsKeepTaxonomy(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.client(t, token(t, "user-alice", []string{"chk-1001"}, false))
	ctx := context.Background()

	_, err := alice.Submit(ctx, depositRequest("sess-big", "2001", "3000.00"))
	var subErr *errs.SubmissionError
	require.True(t, errors.As(err, &subErr), "expected SubmissionError, got %v", err)
	assert.Equal(t, errs.ReasonUnprocessable, subErr.Reason)
	assert.Equal(t, http.StatusUnprocessableEntity, subErr.StatusCode)

	bob := ts.client(t, token(t, "user-bob", []string{"chk-1002"}, false))
	_, err = bob.Submit(ctx, depositRequest("sess-bob", "2002", "50.00"))
	require.True(t, errors.As(err, &subErr), "expected SubmissionError, got %v", err)
	assert.Equal(t, errs.ReasonForbidden, subErr.Reason)
	assert.True(t, subErr.Terminal())
}

func TestForeignDepositIsNotFound(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	d, err := ts.client(t, token(t, "user-alice", []string{"chk-1001"}, false)).
		Submit(ctx, depositRequest("sess-1", "3001", "80.00"))
	require.NoError(t, err)

	_, err = ts.client(t, token(t, "user-bob", []string{"chk-1002"}, false)).GetDeposit(ctx, d.Id)
	assert.ErrorIs(t, err, depositapi.ErrNotFound)
}

func TestSubmitRequiresMetadataPart(t *testing.T) {
	ts := newTestServer(t)

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("front", "front.jpg")
	require.NoError(t, err)
	_, err = part.Write([]byte("front"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/deposits", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token(t, "user-alice", []string{"chk-1001"}, false))
	rec := httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var body models.ErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, string(errs.ReasonInvalidRequest), body.Code)
	assert.Contains(t, body.Message, "metadata")
}

func TestReviewEndpoint(t *testing.T) {
	ts := newTestServer(t)
	aliceToken := token(t, "user-alice", []string{"chk-1001"}, false)

	d, err := ts.client(t, aliceToken).Submit(context.Background(), depositRequest("sess-r", "4001", "60.00"))
	require.NoError(t, err)
	path := "/v1/deposits/" + d.Id + "/review"

	resp, body := ts.do(t, http.MethodPost, path, aliceToken, models.ReviewRequest{Approve: true})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, string(errs.ReasonForbidden), body.Code)

	reviewerToken := token(t, "user-ops", nil, true)
	resp, body = ts.do(t, http.MethodPost, path, reviewerToken, models.ReviewRequest{Approve: false})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body.Message, "Reason")

	resp, body = ts.do(t, http.MethodPost, path, reviewerToken, models.ReviewRequest{Approve: true})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, errs.CodeInvalidState, body.Code)
	assert.Equal(t, d.Id, body.DepositId)
}

func TestValidationEndpoint(t *testing.T) {
	ts := newTestServer(t)
	aliceToken := token(t, "user-alice", []string{"chk-1001"}, false)

	req := depositRequest("sess-v", "5001", "40.00")
	resp, _ := ts.do(t, http.MethodPost, "/v1/validation", aliceToken, models.AssessmentRequest{
		AccountId:      "chk-1001",
		Extracted:      *req.Extracted,
		DeclaredAmount: req.Amount,
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := ts.do(t, http.MethodPost, "/v1/validation", aliceToken, models.AssessmentRequest{
		AccountId:      "chk-1002",
		Extracted:      *req.Extracted,
		DeclaredAmount: req.Amount,
	})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, string(errs.ReasonForbidden), body.Code)
}

func TestAccountEndpoints(t *testing.T) {
	ts := newTestServer(t)
	aliceToken := token(t, "user-alice", []string{"chk-1001"}, false)

	_, err := ts.client(t, aliceToken).Submit(context.Background(), depositRequest("sess-a", "6001", "75.00"))
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodGet, ts.http.URL+"/v1/accounts/chk-1001/deposits?limit=5", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+aliceToken)
	resp, err := ts.http.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var listed struct {
		Deposits []models.Deposit `json:"deposits"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&listed))
	assert.Len(t, listed.Deposits, 1)

	for _, suffix := range []string{"balances", "deposits", "transactions"} {
		resp, body := ts.do(t, http.MethodGet, "/v1/accounts/chk-1002/"+suffix, aliceToken, nil)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode, suffix)
		assert.Equal(t, string(errs.ReasonForbidden), body.Code, suffix)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t)

	_, err := ts.client(t, token(t, "user-alice", []string{"chk-1001"}, false)).
		Submit(context.Background(), depositRequest("sess-m", "7001", "20.00"))
	require.NoError(t, err)

	resp, _ := ts.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = ts.http.Client().Get(ts.http.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.Contains(string(data), "checkdeposit_intake_total"))
}

func TestNewRequiresSecret(t *testing.T) {
	_, err := New(nil, models.ServerConfig{}, nil)
	assert.Error(t, err)
}
