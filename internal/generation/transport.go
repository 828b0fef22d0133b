package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Muneerali199/DocMagic-sub004/internal/domain"
	"github.com/Muneerali199/DocMagic-sub004/pkg/logger"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"
)

const (
	defaultTimeout        = 60 * time.Second
	defaultInitialBackoff = 500 * time.Millisecond
	maxErrorBodyBytes     = 4096
	breakerFailureLimit   = 5
)

// statusError ответ провайдера с кодом, отличным от 200
type statusError struct {
	StatusCode int
	Body       string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("API request failed with status %d: %s", e.StatusCode, e.Body)
}

func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
}

// transport общий для провайдера HTTP-вызов: лимит частоты, ретраи и circuit breaker.
type transport struct {
	name           string
	client         *http.Client
	limiter        *rate.Limiter
	breaker        *gobreaker.CircuitBreaker[[]byte]
	maxRetries     uint64
	initialBackoff time.Duration
	log            *logger.Logger
}

func newTransport(name string, cfg Config, log *logger.Logger) *transport {
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		client = &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		}
	}

	limit := rate.Inf
	if cfg.RequestsPerSec > 0 {
		limit = rate.Limit(cfg.RequestsPerSec)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	initial := cfg.InitialBackoff
	if initial <= 0 {
		initial = defaultInitialBackoff
	}

	t := &transport{
		name:           name,
		client:         client,
		limiter:        rate.NewLimiter(limit, burst),
		maxRetries:     cfg.MaxRetries,
		initialBackoff: initial,
		log:            log,
	}
	t.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:    name,
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerFailureLimit
		},
		// ошибки запроса (4xx) не говорят о недоступности провайдера
		IsSuccessful: func(err error) bool {
			var se *statusError
			if errors.As(err, &se) {
				return !retryable(se.StatusCode)
			}
			return err == nil
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warnw("Circuit breaker state changed", "provider", name, "from", from.String(), "to", to.String())
		},
	})
	return t
}

// postJSON отправляет body и возвращает тело успешного ответа.
func (t *transport) postJSON(ctx context.Context, url string, headers map[string]string, body any) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to marshal request: %w", t.name, err)
	}

	attempt := 0
	operation := func() ([]byte, error) {
		attempt++
		if err := t.limiter.Wait(ctx); err != nil {
			return nil, backoff.Permanent(fmt.Errorf("rate limiter error: %w", err))
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return nil, backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := t.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, backoff.Permanent(err)
			}
			t.log.Warnw("Generation request failed, retrying", "provider", t.name, "attempt", attempt, "error", err)
			return nil, err
		}
		defer resp.Body.Close() //nolint:errcheck

		if resp.StatusCode != http.StatusOK {
			raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes)) //nolint:errcheck
			se := &statusError{StatusCode: resp.StatusCode, Body: string(raw)}
			if retryable(resp.StatusCode) {
				t.log.Warnw("Retryable provider response", "provider", t.name, "attempt", attempt, "status", resp.StatusCode)
				return nil, se
			}
			return nil, backoff.Permanent(se)
		}

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read response: %w", err)
		}
		return data, nil
	}

	data, err := t.breaker.Execute(func() ([]byte, error) {
		bo := backoff.NewExponentialBackOff()
		bo.InitialInterval = t.initialBackoff
		bo.MaxInterval = 15 * time.Second
		bo.MaxElapsedTime = 0
		return backoff.RetryWithData(operation, backoff.WithContext(backoff.WithMaxRetries(bo, t.maxRetries), ctx))
	})
	if err != nil {
		return nil, t.wrap(err)
	}
	return data, nil
}

// wrap переводит ошибку вызова в domain.ExternalServiceError.
func (t *transport) wrap(err error) error {
	var se *statusError
	switch {
	case errors.As(err, &se):
		code := "upstream_error"
		if se.StatusCode == http.StatusTooManyRequests {
			code = "rate_limited"
		}
		t.log.Errorw("Provider returned error", "provider", t.name, "status", se.StatusCode, "body", se.Body)
		return domain.NewExternalServiceError(t.name, code, "generation request failed", se.StatusCode, err)
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return domain.NewExternalServiceError(t.name, "circuit_open", "provider temporarily unavailable", http.StatusServiceUnavailable, err)
	default:
		t.log.Errorw("Provider call failed", "provider", t.name, "error", err)
		return domain.NewExternalServiceError(t.name, "transport_error", "generation request failed", 0, err)
	}
}
