package s0_data

import (
	"fmt"

	"github.com/wonny/screener/internal/contracts"
	"github.com/wonny/screener/pkg/config"
	"github.com/wonny/screener/pkg/database"
	"github.com/wonny/screener/pkg/logger"
	"github.com/wonny/screener/pkg/metrics"
	"github.com/wonny/screener/pkg/redis"
)

// Opened is a ready store plus its cleanup
type Opened struct {
	Store contracts.TimeSeriesStore
	Close func()
}

// Open builds the configured store wrapped in the TTL cache
func Open(cfg *config.Config, log *logger.Logger, rec *metrics.Recorder) (*Opened, error) {
	var (
		inner   contracts.TimeSeriesStore
		closers []func()
	)

	switch cfg.Store.Driver {
	case "postgres":
		db, err := database.New(cfg)
		if err != nil {
			return nil, fmt.Errorf("connect database: %w", err)
		}
		closers = append(closers, db.Close)
		inner = NewPostgresStore(db.Pool)
	case "sqlite":
		s, err := NewSQLiteStore(cfg.Store.SQLitePath)
		if err != nil {
			return nil, err
		}
		closers = append(closers, func() { _ = s.Close() })
		inner = s
	case "memory":
		inner = NewMemoryStore()
	default:
		return nil, fmt.Errorf("unknown store driver: %s", cfg.Store.Driver)
	}

	rc, err := redis.New(cfg)
	if err != nil {
		// L2 없이 계속
		log.WithError(err).Warn("Redis unavailable, using memory cache only")
		rc = redis.Disabled()
	}
	closers = append(closers, func() { _ = rc.Close() })

	cached := NewCachedStore(inner, cfg.Cache.TTL, cfg.Cache.MaxEntries, log,
		WithRedis(redis.NewCache(rc, "screener")),
		WithMetrics(rec),
	)

	log.WithFields(map[string]interface{}{
		"driver":      cfg.Store.Driver,
		"cache_ttl":   cfg.Cache.TTL.String(),
		"max_entries": cfg.Cache.MaxEntries,
		"redis":       rc.Addr(),
	}).Info("Time series store opened")

	return &Opened{
		Store: cached,
		Close: func() {
			for i := len(closers) - 1; i >= 0; i-- {
				closers[i]()
			}
		},
	}, nil
}
