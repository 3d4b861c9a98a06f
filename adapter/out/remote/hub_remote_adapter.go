// Package remote is the device-side HTTP client for the sync server.
package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"kitchenhub_server/core/domain"
	"kitchenhub_server/core/port/out"
	"kitchenhub_server/pkg/apperr"
	"kitchenhub_server/pkg/logger"

	"github.com/sony/gobreaker"
)

const requestTimeout = 15 * time.Second

// Adapter implements out.RemoteAPI over the server's HTTP surface.
type Adapter struct {
	baseURL string
	token   string
	client  *http.Client
	cb      *gobreaker.CircuitBreaker
	log     *logger.Logger
}

// NewAdapter creates a new Adapter. token is the bearer credential attached
// to every request; empty means guest access.
func NewAdapter(baseURL, token string) *Adapter {
	log := logger.Default().WithField("component", "remote")

	cbSettings := gobreaker.Settings{
		Name:        "sync-api",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.ConsecutiveFailures > 5 ||
				(counts.Requests >= 10 && failureRatio >= 0.6)
		},
		// The breaker guards connectivity, so only transport-level failures
		// count against it. A 4xx rejection is the server talking to us.
		IsSuccessful: func(err error) bool {
			var nce *nonCircuitError
			return err == nil || errors.As(err, &nce)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("[CircuitBreaker] %s: state changed from %s to %s", name, from.String(), to.String())
		},
	}

	return &Adapter{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: requestTimeout},
		cb:      gobreaker.NewCircuitBreaker(cbSettings),
		log:     log,
	}
}

// =============================================================================
// RemoteAPI
// =============================================================================

func (a *Adapter) FetchSnapshot(ctx context.Context, t domain.EntityType) ([]json.RawMessage, error) {
	url := fmt.Sprintf("%s/api/v1/snapshot/%s", a.baseURL, t)

	var records []json.RawMessage
	if err := a.do(ctx, http.MethodGet, url, nil, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func (a *Adapter) SubmitBatch(ctx context.Context, batch *domain.SyncBatch) (*domain.SyncResult, error) {
	body, err := json.Marshal(batch)
	if err != nil {
		return nil, fmt.Errorf("encode batch: %w", err)
	}

	var result domain.SyncResult
	if err := a.do(ctx, http.MethodPost, a.baseURL+"/api/v1/sync", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// =============================================================================
// HTTP plumbing
// =============================================================================

// responseEnvelope mirrors the server's response wrapper.
type responseEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// do executes one request through the circuit breaker and decodes the data
// payload into dest. Transport failures, timeouts, 5xx responses and an open
// breaker all collapse into out.ErrUnreachable so callers fall back to cache.
func (a *Adapter) do(ctx context.Context, method, url string, body []byte, dest interface{}) error {
	_, err := a.cb.Execute(func() (interface{}, error) {
		return nil, a.doOnce(ctx, method, url, body, dest)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return apperr.Unreachable(out.ErrUnreachable)
		}
		var nce *nonCircuitError
		if errors.As(err, &nce) {
			return nce.err
		}
		if errors.Is(err, out.ErrUnreachable) {
			return apperr.Unreachable(err)
		}
		return err
	}
	return nil
}

func (a *Adapter) doOnce(ctx context.Context, method, url string, body []byte, dest interface{}) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		// Malformed request, never a connectivity problem.
		return &nonCircuitError{err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		if isNetworkError(err) {
			return out.ErrUnreachable
		}
		return fmt.Errorf("%s %s: %w", method, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: server returned %d", out.ErrUnreachable, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return out.ErrUnreachable
	}

	var envelope responseEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return &nonCircuitError{err: fmt.Errorf("decode response: %w", err)}
	}

	if resp.StatusCode >= 400 || !envelope.Success {
		code, msg := apperr.CodeInternalError, "request failed"
		if envelope.Error != nil {
			code, msg = envelope.Error.Code, envelope.Error.Message
		}
		// 4xx is the server talking to us; surface its code, do not trip
		// the breaker.
		return &nonCircuitError{err: apperr.New(code, msg, resp.StatusCode)}
	}

	if dest != nil && len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, dest); err != nil {
			return &nonCircuitError{err: fmt.Errorf("decode data: %w", err)}
		}
	}
	return nil
}

func isNetworkError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// nonCircuitError wraps failures that must not open the circuit breaker.
type nonCircuitError struct {
	err error
}

func (e *nonCircuitError) Error() string { return e.err.Error() }
func (e *nonCircuitError) Unwrap() error { return e.err }
