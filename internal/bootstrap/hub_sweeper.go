package bootstrap

import (
	"os"

	"kitchenhub_server/config"
	syncservice "kitchenhub_server/core/service/sync"

	"github.com/rs/zerolog"
)

// NewSweeper wires the PENDING-record sweeper as a standalone process.
func NewSweeper(cfg *config.Config) (*syncservice.PendingSweeper, func(), error) {
	deps, cleanup, err := NewDependencies(cfg)
	if err != nil {
		return nil, nil, err
	}

	zlog := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
		With().Timestamp().Logger()

	sweeper := syncservice.NewPendingSweeper(deps.Ledger, &syncservice.SweeperConfig{
		Interval:   cfg.SweepInterval,
		PendingTTL: cfg.SweepPendingTTL,
	}, zlog)

	return sweeper, cleanup, nil
}
