package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
)

// This file implements the resilient HTTP GET used for every upstream call.
// Each attempt runs under its own timeout inside a circuit breaker. Rate
// limited responses are retried with a linear backoff and transport failures
// with an exponential one. Any other non-2xx status is returned immediately
// and only 5xx responses count against the breaker.

var (
	errRateLimited      = errors.New("rate limited by upstream")
	errUnexpectedStatus = errors.New("unexpected upstream status")
	errServerError      = errors.New("upstream server error")
	errCircuitOpen      = errors.New("circuit breaker open")
)

// RetryPolicy controls how many times and how long to wait between attempts.
type RetryPolicy struct {
	MaxRetries int
	// Base is the first delay for both backoff schedules.
	Base time.Duration
	// RateLimitStep is added to Base for every retry after a 429.
	RateLimitStep time.Duration
	// MaxDelay caps any single delay when positive.
	MaxDelay time.Duration
}

// delay returns the wait before retry number attempt (zero based).
func (p RetryPolicy) delay(attempt int, cause error) time.Duration {
	var d time.Duration
	if errors.Is(cause, errRateLimited) {
		d = p.Base + time.Duration(attempt)*p.RateLimitStep
	} else {
		d = p.Base * time.Duration(math.Pow(2, float64(attempt)))
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

func retryable(err error) bool {
	if errors.Is(err, errUnexpectedStatus) || errors.Is(err, errServerError) || errors.Is(err, errCircuitOpen) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return true
}

// upstreamClient performs GET requests against one upstream host.
type upstreamClient struct {
	name    string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	policy  RetryPolicy
	logger  *slog.Logger
	// sleep waits for d or until ctx is done. Replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

func newUpstreamClient(name string, client *http.Client, policy RetryPolicy, logger *slog.Logger) *upstreamClient {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
		// Rate limiting and client errors say nothing about upstream health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, errRateLimited) || errors.Is(err, errUnexpectedStatus)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", "upstream", name, "from", from.String(), "to", to.String())
		},
	})
	return &upstreamClient{
		name:    name,
		client:  client,
		breaker: breaker,
		policy:  policy,
		logger:  logger,
		sleep:   sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// get fetches rawURL and returns the response body of a 2xx response.
func (u *upstreamClient) get(ctx context.Context, rawURL string, timeout time.Duration) ([]byte, error) {
	var attempt int
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		body, err := u.attempt(ctx, rawURL, timeout)
		if err == nil {
			upstreamRequestsTotal.WithLabelValues(u.name, "success").Inc()
			return body, nil
		}

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			upstreamRequestsTotal.WithLabelValues(u.name, "circuit_open").Inc()
			return nil, fmt.Errorf("%w: %v", errCircuitOpen, err)
		}
		if errors.Is(err, errRateLimited) {
			upstreamRequestsTotal.WithLabelValues(u.name, "rate_limited").Inc()
		} else {
			upstreamRequestsTotal.WithLabelValues(u.name, "error").Inc()
		}

		if !retryable(err) || attempt >= u.policy.MaxRetries {
			return nil, err
		}

		wait := u.policy.delay(attempt, err)
		if errors.Is(err, errRateLimited) {
			u.logger.Warn("upstream rate limited, backing off", "upstream", u.name, "attempt", attempt+1, "delay", wait.String())
		} else {
			u.logger.Debug("upstream request failed, retrying", "upstream", u.name, "attempt", attempt+1, "delay", wait.String(), "error", err)
		}
		if err := u.sleep(ctx, wait); err != nil {
			return nil, err
		}
		attempt++
	}
}

func (u *upstreamClient) attempt(ctx context.Context, rawURL string, timeout time.Duration) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := u.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, err
		}
		resp, err := u.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests {
			return nil, errRateLimited
		}
		if resp.StatusCode >= 500 {
			return nil, fmt.Errorf("%w: %s", errServerError, resp.Status)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, fmt.Errorf("%w: %s", errUnexpectedStatus, resp.Status)
		}
		return io.ReadAll(resp.Body)
	})
	if err != nil {
		return nil, err
	}
	body, ok := result.([]byte)
	if !ok {
		return nil, fmt.Errorf("unexpected result type from circuit breaker")
	}
	return body, nil
}
