package sync

import (
	"context"
	"time"

	"kitchenhub_server/core/port/out"

	"github.com/rs/zerolog"
)

// =============================================================================
// PendingSweeper - orphaned ledger record reclamation
// =============================================================================
//
// A PENDING record left behind by a crashed owning request would block retries
// for that operationId forever. The sweeper deletes PENDING records older than
// the lease TTL; a record that old cannot belong to a live request because the
// server request timeout is far shorter than the lease.

// SweeperConfig holds sweeper tuning.
type SweeperConfig struct {
	Interval   time.Duration // how often to sweep (default 1m)
	PendingTTL time.Duration // lease age before a PENDING record is reclaimed (default 5m)
}

// DefaultSweeperConfig returns sweeper defaults.
func DefaultSweeperConfig() *SweeperConfig {
	return &SweeperConfig{
		Interval:   time.Minute,
		PendingTTL: 5 * time.Minute,
	}
}

// PendingSweeper periodically reclaims orphaned PENDING ledger records.
type PendingSweeper struct {
	ledger out.IdempotencyLedger
	cfg    *SweeperConfig
	log    zerolog.Logger
	cancel context.CancelFunc
}

// NewPendingSweeper creates a sweeper.
func NewPendingSweeper(ledger out.IdempotencyLedger, cfg *SweeperConfig, log zerolog.Logger) *PendingSweeper {
	if cfg == nil {
		cfg = DefaultSweeperConfig()
	}
	return &PendingSweeper{
		ledger: ledger,
		cfg:    cfg,
		log:    log.With().Str("component", "pending_sweeper").Logger(),
	}
}

// Start launches the sweep loop.
func (s *PendingSweeper) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.log.Info().Dur("interval", s.cfg.Interval).Dur("pending_ttl", s.cfg.PendingTTL).Msg("starting")
	go s.run(ctx)
}

// Stop halts the sweep loop.
func (s *PendingSweeper) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *PendingSweeper) run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("stopped")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// Sweep runs one reclamation pass and returns the number of records removed.
func (s *PendingSweeper) Sweep(ctx context.Context) (int64, error) {
	cutoff := time.Now().Add(-s.cfg.PendingTTL)
	return s.ledger.DeletePendingBefore(ctx, cutoff)
}

func (s *PendingSweeper) sweep(ctx context.Context) {
	sweepCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	removed, err := s.Sweep(sweepCtx)
	if err != nil {
		s.log.Error().Err(err).Msg("sweep failed")
		return
	}
	if removed > 0 {
		s.log.Warn().Int64("reclaimed", removed).Msg("reclaimed orphaned pending records")
	}
}
