package transport

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"check-deposit-go/internal/errs"
	"check-deposit-go/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func response(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     make(http.Header),
	}
}

func noSleep(context.Context, time.Duration) error { return nil }

func newTestClient(rt roundTripFunc, retry models.RetryConfig, breaker models.BreakerConfig) *Client {
	return NewClient("test", &http.Client{Transport: rt}, retry, breaker, WithSleep(noSleep))
}

func getRequest(ctx context.Context) (*http.Request, error) {
	return http.NewRequestWithContext(ctx, http.MethodGet, "http://upstream.test/x", nil)
}

func TestDoRetriesNetworkErrorsThenSucceeds(t *testing.T) {
	var calls int32
	c := newTestClient(func(*http.Request) (*http.Response, error) {
		if atomic.AddInt32(&calls, 1) < 3 {
			return nil, errors.New("connection reset by peer")
		}
		return response(http.StatusOK, `{}`), nil
	}, models.RetryConfig{MaxAttempts: 3}, models.BreakerConfig{MaxFailures: 10})

	resp, err := c.Do(context.Background(), "get", getRequest)
	require.NoError(t, err)
	DrainAndClose(resp.Body)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestDoGivesUpAfterMaxAttempts(t *testing.T) {
	var calls int32
	c := newTestClient(func(*http.Request) (*http.Response, error) {
		atomic.AddInt32(&calls, 1)
		return nil, errors.New("no route to host")
	}, models.RetryConfig{MaxAttempts: 3}, models.BreakerConfig{MaxFailures: 10})

	_, err := c.Do(context.Background(), "get", getRequest)
	var netErr *errs.TransientNetworkError
	require.True(t, errors.As(err, &netErr))
	assert.Equal(t, 3, netErr.Attempts)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.True(t, errs.IsRetryable(err))
}

func TestDoNeverRetriesHTTPStatuses(t *testing.T) {
	for _, status := range []int{http.StatusBadRequest, http.StatusConflict, http.StatusInternalServerError} {
		var calls int32
		c := newTestClient(func(*http.Request) (*http.Response, error) {
			atomic.AddInt32(&calls, 1)
			return response(status, `{"code":"x"}`), nil
		}, models.RetryConfig{MaxAttempts: 3}, models.BreakerConfig{MaxFailures: 10})

		resp, err := c.Do(context.Background(), "post", getRequest)
		require.NoError(t, err)
		assert.Equal(t, status, resp.StatusCode)
		DrainAndClose(resp.Body)
		assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "status %d", status)
	}
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var calls int32
	c := newTestClient(func(*http.Request) (*http.Response, error) {
		atomic.AddInt32(&calls, 1)
		return nil, errors.New("dial tcp: timeout")
	}, models.RetryConfig{MaxAttempts: 1}, models.BreakerConfig{MaxFailures: 2, OpenTimeout: time.Minute})

	for i := 0; i < 2; i++ {
		_, err := c.Do(context.Background(), "get", getRequest)
		require.Error(t, err)
	}
	_, err := c.Do(context.Background(), "get", getRequest)
	var netErr *errs.TransientNetworkError
	require.True(t, errors.As(err, &netErr))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls), "open breaker must short-circuit")
}

func TestBackoffIsCapped(t *testing.T) {
	c := newTestClient(nil, models.RetryConfig{MaxAttempts: 5, BaseDelay: 100 * time.Millisecond, MaxDelay: 300 * time.Millisecond}, models.BreakerConfig{})
	assert.Equal(t, 100*time.Millisecond, c.backoff(0))
	assert.Equal(t, 200*time.Millisecond, c.backoff(1))
	assert.Equal(t, 300*time.Millisecond, c.backoff(2))
	assert.Equal(t, 300*time.Millisecond, c.backoff(6))
}

func TestJSONRequestReplaysBody(t *testing.T) {
	newReq, err := JSONRequest(http.MethodPost, "http://upstream.test/v1", "tok", map[string]string{"a": "b"})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		req, err := newReq(context.Background())
		require.NoError(t, err)
		body, err := io.ReadAll(req.Body)
		require.NoError(t, err)
		assert.JSONEq(t, `{"a":"b"}`, string(body))
		assert.Equal(t, "Bearer tok", req.Header.Get("Authorization"))
		assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
	}
}
