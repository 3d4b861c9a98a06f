package bootstrap

import (
	"context"
	"fmt"
	"os"

	"kitchenhub_server/adapter/out/cachestore"
	"kitchenhub_server/adapter/out/remote"
	"kitchenhub_server/config"
	"kitchenhub_server/core/domain"
	"kitchenhub_server/core/service/cache"
	"kitchenhub_server/core/service/queue"
	"kitchenhub_server/infra/database"
	pkgcache "kitchenhub_server/pkg/cache"

	"github.com/rs/zerolog"
)

// Device bundles the client-side sync agent: cache-first reads, write-through
// updates and the outbound operation queue, all pointed at a remote server.
type Device struct {
	Reader  *cache.Reader
	Writer  *cache.Writer
	Outbox  *queue.Outbox
	Monitor *remote.Monitor

	cfg *config.Config
	log zerolog.Logger
}

// NewDevice wires the device-side components over Redis and the remote API.
func NewDevice(cfg *config.Config) (*Device, func(), error) {
	if cfg.RedisURL == "" {
		return nil, nil, fmt.Errorf("device mode requires REDIS_URL")
	}

	mode := domain.AccessMode(cfg.SyncAccessMode)
	if mode != domain.AccessGuest && mode != domain.AccessAuthenticated {
		return nil, nil, fmt.Errorf("unknown access mode: %s", cfg.SyncAccessMode)
	}

	zlog := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
		With().Timestamp().Logger()

	redisClient, err := database.NewRedis(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("redis: %w", err)
	}
	cleanup := func() { _ = redisClient.Close() }

	store := cachestore.NewRedisStore(pkgcache.NewRedisCache(redisClient))
	api := remote.NewAdapter(cfg.SyncServerURL, cfg.SyncToken)
	monitor := remote.NewMonitor(cfg.SyncServerURL, zlog)

	thresholds := domain.CacheThresholds{
		Fresh:   cfg.CacheFreshWindow,
		Expired: cfg.CacheExpiredWindow,
	}

	reader := cache.NewReader(store, api, monitor, mode, thresholds, nil)
	writer := cache.NewWriter(store, mode, nil)
	outbox := queue.NewOutbox(store, api, monitor, mode, zlog)

	return &Device{
		Reader:  reader,
		Writer:  writer,
		Outbox:  outbox,
		Monitor: monitor,
		cfg:     cfg,
		log:     zlog.With().Str("component", "device").Logger(),
	}, cleanup, nil
}

// Run restores the persisted queue, then drives reachability probing and
// periodic sync until ctx is cancelled.
func (d *Device) Run(ctx context.Context) error {
	if err := d.Outbox.Load(ctx); err != nil {
		return fmt.Errorf("restore queue: %w", err)
	}

	go d.Monitor.Run(ctx, d.cfg.ReachProbeInterval)

	d.log.Info().
		Str("server", d.cfg.SyncServerURL).
		Dur("interval", d.cfg.SyncInterval).
		Msg("device sync agent started")

	d.Outbox.Run(ctx, d.cfg.SyncInterval)
	return nil
}
