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

package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"net"
	"net/http"
	"time"

	"check-deposit-go/internal/errs"
	"check-deposit-go/internal/metrics"
	"check-deposit-go/internal/models"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/net/http2"
)

// NewHTTPClient returns an HTTP/2-capable client tuned for large multipart
// uploads over mobile-grade links.
func NewHTTPClient(timeout time.Duration) (*http.Client, error) {
	tr := &http.Transport{
		ResponseHeaderTimeout: 30 * time.Second,
		Proxy:                 http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			KeepAlive: 30 * time.Second,
			Timeout:   15 * time.Second,
		}).DialContext,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		MaxIdleConnsPerHost:   5,
		ExpectContinueTimeout: 5 * time.Second,
	}

	if err := http2.ConfigureTransport(tr); err != nil {
		return nil, err
	}

	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &http.Client{
		Transport: tr,
		Timeout:   timeout,
	}, nil
}

// RequestFunc builds a fresh request for each attempt so bodies can be replayed.
type RequestFunc func(ctx context.Context) (*http.Request, error)

// Client sends requests to one upstream with bounded retry of network failures
// behind a circuit breaker. HTTP error statuses are returned to the caller
// unchanged and never retried here.
type Client struct {
	name    string
	http    *http.Client
	cb      *gobreaker.CircuitBreaker
	retry   models.RetryConfig
	metrics metrics.Collector
	sleep   func(ctx context.Context, d time.Duration) error
}

// Option customizes a Client.
type Option func(*Client)

// WithMetrics reports retries and breaker state changes to m.
func WithMetrics(m metrics.Collector) Option {
	return func(c *Client) { c.metrics = m }
}

// WithSleep replaces the backoff wait, mainly for tests.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Client) { c.sleep = sleep }
}

// NewClient creates a client for the named upstream.
func NewClient(name string, httpClient *http.Client, retry models.RetryConfig, breaker models.BreakerConfig, opts ...Option) *Client {
	if retry.MaxAttempts <= 0 {
		retry.MaxAttempts = 3
	}
	if retry.BaseDelay <= 0 {
		retry.BaseDelay = 200 * time.Millisecond
	}
	if retry.MaxDelay <= 0 {
		retry.MaxDelay = 5 * time.Second
	}
	if breaker.MaxFailures == 0 {
		breaker.MaxFailures = 5
	}
	if breaker.OpenTimeout <= 0 {
		breaker.OpenTimeout = 30 * time.Second
	}

	c := &Client{
		name:    name,
		http:    httpClient,
		retry:   retry,
		metrics: metrics.NoOpCollector{},
		sleep:   sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}

	maxFailures := breaker.MaxFailures
	c.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: breaker.MaxRequests,
		Interval:    breaker.Interval,
		Timeout:     breaker.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			zap.L().Warn("Circuit breaker state changed",
				zap.String("upstream", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))

			var state metrics.CircuitState
			switch to {
			case gobreaker.StateClosed:
				state = metrics.CircuitClosed
			case gobreaker.StateHalfOpen:
				state = metrics.CircuitHalfOpen
			case gobreaker.StateOpen:
				state = metrics.CircuitOpen
			}
			c.metrics.RecordCircuitState(name, state)
		},
	})
	return c
}

// Name returns the upstream name.
func (c *Client) Name() string { return c.name }

// serverStatusError lets 5xx responses count as breaker failures while still
// handing the response back to the caller.
type serverStatusError struct {
	resp *http.Response
}

func (e *serverStatusError) Error() string {
	return fmt.Sprintf("upstream returned status %d", e.resp.StatusCode)
}

// Do sends the request built by newReq. A response is returned for every HTTP
// status; the caller owns its body. When no response could be obtained after
// the retry budget, the error is an *errs.TransientNetworkError.
func (c *Client) Do(ctx context.Context, op string, newReq RequestFunc) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt < c.retry.MaxAttempts; attempt++ {
		req, err := newReq(ctx)
		if err != nil {
			return nil, fmt.Errorf("unable to build %s request: %w", op, err)
		}

		result, err := c.cb.Execute(func() (interface{}, error) {
			resp, err := c.http.Do(req)
			if err != nil {
				return nil, err
			}
			if resp.StatusCode >= 500 {
				return nil, &serverStatusError{resp: resp}
			}
			return resp, nil
		})
		if err == nil {
			return result.(*http.Response), nil
		}

		var statusErr *serverStatusError
		if errors.As(err, &statusErr) {
			return statusErr.resp, nil
		}

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			zap.L().Warn("Circuit breaker open - request rejected",
				zap.String("upstream", c.name),
				zap.String("operation", op))
			return nil, &errs.TransientNetworkError{Op: op, Attempts: attempt + 1, Err: err}
		}

		if ctx.Err() != nil {
			return nil, &errs.TransientNetworkError{Op: op, Attempts: attempt + 1, Err: ctx.Err()}
		}

		lastErr = err
		if attempt == c.retry.MaxAttempts-1 {
			break
		}

		delay := c.backoff(attempt)
		c.metrics.RecordRetry(c.name)
		zap.L().Warn("Retrying upstream request after network error",
			zap.String("upstream", c.name),
			zap.String("operation", op),
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", c.retry.MaxAttempts),
			zap.Duration("delay", delay),
			zap.Error(err))

		if err := c.sleep(ctx, delay); err != nil {
			return nil, &errs.TransientNetworkError{Op: op, Attempts: attempt + 1, Err: err}
		}
	}

	return nil, &errs.TransientNetworkError{Op: op, Attempts: c.retry.MaxAttempts, Err: lastErr}
}

func (c *Client) backoff(attempt int) time.Duration {
	delay := time.Duration(math.Pow(2, float64(attempt))) * c.retry.BaseDelay
	if delay > c.retry.MaxDelay {
		delay = c.retry.MaxDelay
	}
	if c.retry.Jitter {
		jitter := time.Duration(rand.Float64() * float64(delay) * 0.3)
		delay = delay + jitter - time.Duration(float64(delay)*0.15)
	}
	return delay
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// DrainAndClose discards the rest of body so the connection can be reused.
func DrainAndClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 64<<10))
	if err := body.Close(); err != nil {
		zap.L().Debug("Failed to close response body", zap.Error(err))
	}
}
