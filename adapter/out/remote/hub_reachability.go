package remote

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Monitor implements out.ReachabilitySignal by polling the server health
// endpoint. Online() reads the last observed state and never blocks.
type Monitor struct {
	healthURL string
	client    *http.Client
	online    atomic.Bool
	log       zerolog.Logger
}

// NewMonitor creates a Monitor. The initial state is offline until the first
// probe succeeds.
func NewMonitor(baseURL string, log zerolog.Logger) *Monitor {
	return &Monitor{
		healthURL: baseURL + "/health",
		client:    &http.Client{Timeout: 5 * time.Second},
		log:       log.With().Str("component", "reachability").Logger(),
	}
}

func (m *Monitor) Online() bool {
	return m.online.Load()
}

// SetOnline overrides the observed state, for callers fed by a platform
// connectivity signal instead of polling.
func (m *Monitor) SetOnline(v bool) {
	m.online.Store(v)
}

// Run polls until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.probe(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.probe(ctx)
		}
	}
}

func (m *Monitor) probe(ctx context.Context) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.healthURL, nil)
	if err != nil {
		return
	}

	resp, err := m.client.Do(req)
	up := err == nil && resp.StatusCode < 500
	if resp != nil {
		resp.Body.Close()
	}

	if prev := m.online.Swap(up); prev != up {
		m.log.Info().Bool("online", up).Msg("connectivity changed")
	}
}
