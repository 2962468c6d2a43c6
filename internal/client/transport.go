package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"

	"github.com/kjstillabower/skyweather/internal/observability"
)

// Options configures a provider client. Zero values fall back to defaults.
type Options struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client

	// RetryAttempts is the total number of attempts per call; 1 (the default) disables retry.
	RetryAttempts  int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration

	// BreakerFailures consecutive failures open the circuit for BreakerTimeout.
	// Zero failures disables the breaker.
	BreakerFailures uint32
	BreakerTimeout  time.Duration

	// Outcomes, when set, receives the final result of every call.
	Outcomes OutcomeRecorder
}

// OutcomeRecorder tracks provider health from call results.
type OutcomeRecorder interface {
	RecordOutcome(provider string, err error)
}

// provider is the shared HTTP transport of all clients: one circuit breaker per upstream,
// metrics per endpoint and the FetchError mapping.
type provider struct {
	name           string
	baseURL        string
	timeout        time.Duration
	client         *http.Client
	breaker        *gobreaker.CircuitBreaker
	retryAttempts  int
	retryBaseDelay time.Duration
	retryMaxDelay  time.Duration
	outcomes       OutcomeRecorder
}

func newProvider(name, defaultURL string, opts Options) (*provider, error) {
	base := opts.BaseURL
	if base == "" {
		base = defaultURL
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("%s: invalid base URL: %w", name, err)
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	p := &provider{
		name:           name,
		baseURL:        base,
		timeout:        timeout,
		client:         httpClient,
		retryAttempts:  opts.RetryAttempts,
		retryBaseDelay: opts.RetryBaseDelay,
		retryMaxDelay:  opts.RetryMaxDelay,
		outcomes:       opts.Outcomes,
	}
	if p.retryAttempts <= 0 {
		p.retryAttempts = 1
	}
	if p.retryBaseDelay <= 0 {
		p.retryBaseDelay = 100 * time.Millisecond
	}
	if p.retryMaxDelay <= 0 {
		p.retryMaxDelay = 2 * time.Second
	}
	if opts.BreakerFailures > 0 {
		threshold := opts.BreakerFailures
		p.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        name,
			MaxRequests: 1,
			Timeout:     opts.BreakerTimeout,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= threshold
			},
			// Client errors say nothing about provider health.
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, ErrUnexpectedStatus)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				observability.CircuitBreakerState.WithLabelValues(name).Set(breakerStateValue(to))
			},
		})
		observability.CircuitBreakerState.WithLabelValues(name).Set(0)
	}
	return p, nil
}

func breakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	}
	return 0
}

// getJSON performs GET baseURL+path?params and decodes a 2xx body into out.
func (p *provider) getJSON(ctx context.Context, endpoint, path string, params url.Values, out any) error {
	err := p.fetchJSON(ctx, endpoint, path, params, out)
	p.recordOutcome(ctx, err)
	return err
}

// recordOutcome reports err unless the caller gave up first. Client errors count as
// success, matching the breaker.
func (p *provider) recordOutcome(ctx context.Context, err error) {
	if p.outcomes == nil || ctx.Err() != nil {
		return
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrUnexpectedStatus) {
		err = nil
	}
	p.outcomes.RecordOutcome(p.name, err)
}

func (p *provider) fetchJSON(ctx context.Context, endpoint, path string, params url.Values, out any) error {
	var body []byte
	var lastErr error
	for attempt := 0; attempt < p.retryAttempts; attempt++ {
		if attempt > 0 {
			observability.ProviderRetriesTotal.WithLabelValues(p.name).Inc()
			select {
			case <-ctx.Done():
				return &FetchError{Provider: p.name, Endpoint: endpoint, Message: "request cancelled", Err: ctx.Err()}
			case <-time.After(p.calculateBackoff(attempt)):
			}
		}
		body, lastErr = p.execute(ctx, endpoint, path, params)
		if lastErr == nil {
			break
		}
		if !Retryable(lastErr) {
			return lastErr
		}
	}
	if lastErr != nil {
		return lastErr
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s %s: %w: %v", p.name, endpoint, ErrParse, err)
	}
	return nil
}

func (p *provider) execute(ctx context.Context, endpoint, path string, params url.Values) ([]byte, error) {
	if p.breaker == nil {
		return p.callAPI(ctx, endpoint, path, params)
	}
	result, err := p.breaker.Execute(func() (interface{}, error) {
		return p.callAPI(ctx, endpoint, path, params)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		observability.ProviderCallsTotal.WithLabelValues(p.name, endpoint, "circuit_open").Inc()
		return nil, &FetchError{Provider: p.name, Endpoint: endpoint, Message: "provider temporarily disabled", Err: ErrCircuitOpen}
	}
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil
}

func (p *provider) callAPI(ctx context.Context, endpoint, path string, params url.Values) ([]byte, error) {
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := p.buildRequest(reqCtx, path, params)
	if err != nil {
		observability.ProviderCallsTotal.WithLabelValues(p.name, endpoint, "error").Inc()
		return nil, &FetchError{Provider: p.name, Endpoint: endpoint, Message: "build request", Err: err}
	}
	if corrID := CorrelationID(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}

	resp, err := p.client.Do(req)
	observability.ProviderDuration.WithLabelValues(p.name, endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		observability.ProviderCallsTotal.WithLabelValues(p.name, endpoint, "error").Inc()
		return nil, &FetchError{Provider: p.name, Endpoint: endpoint, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	observability.ProviderCallsTotal.WithLabelValues(p.name, endpoint, statusLabel(resp.StatusCode)).Inc()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, statusError(p.name, endpoint, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchError{Provider: p.name, Endpoint: endpoint, StatusCode: resp.StatusCode, Message: "read response body", Err: err}
	}
	return body, nil
}

func (p *provider) buildRequest(ctx context.Context, path string, params url.Values) (*http.Request, error) {
	u, err := url.Parse(p.baseURL + path)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (p *provider) calculateBackoff(attempt int) time.Duration {
	delay := float64(p.retryBaseDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(p.retryMaxDelay) {
		delay = float64(p.retryMaxDelay)
	}

	jitter := delay * 0.1 * rand.Float64()
	return time.Duration(delay + jitter)
}

type correlationIDKey struct{}

// WithCorrelationID attaches a correlation ID forwarded to providers as X-Correlation-ID.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey{}, id)
}

// CorrelationID returns the ID attached by WithCorrelationID, or "".
func CorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(correlationIDKey{}).(string); ok {
		return id
	}
	return ""
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == 429 {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}
