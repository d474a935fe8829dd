package s0_data

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/wonny/screener/internal/contracts"
	"github.com/wonny/screener/pkg/logger"
	"github.com/wonny/screener/pkg/metrics"
	"github.com/wonny/screener/pkg/redis"
)

const dateKeyLayout = "2006-01-02"

var _ contracts.TimeSeriesStore = (*CachedStore)(nil)

// CachedStore decorates a TimeSeriesStore with a TTL cache
// L1: in-memory expirable LRU, L2: Redis (선택)
// ⭐ SSOT: 시계열 캐싱은 여기서만 (Aggregator/Backtest는 캐시하지 않음)
type CachedStore struct {
	inner   contracts.TimeSeriesStore
	l1      *expirable.LRU[string, interface{}]
	l2      *redis.Cache
	ttl     time.Duration
	metrics *metrics.Recorder
	logger  *logger.Logger
}

// CachedStoreOption configures a CachedStore
type CachedStoreOption func(*CachedStore)

// WithRedis adds a Redis second level
func WithRedis(c *redis.Cache) CachedStoreOption {
	return func(s *CachedStore) { s.l2 = c }
}

// WithMetrics records hit/miss counters
func WithMetrics(m *metrics.Recorder) CachedStoreOption {
	return func(s *CachedStore) { s.metrics = m }
}

// NewCachedStore creates a cached store.
// ttl <= 0 keeps L1 entries until they are evicted for size.
func NewCachedStore(inner contracts.TimeSeriesStore, ttl time.Duration, maxEntries int, log *logger.Logger, opts ...CachedStoreOption) *CachedStore {
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	s := &CachedStore{
		inner:  inner,
		l1:     expirable.NewLRU[string, interface{}](maxEntries, nil, ttl),
		ttl:    ttl,
		logger: log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Bars returns cached bars, loading through on miss
func (s *CachedStore) Bars(ctx context.Context, ticker string, from, to time.Time) ([]contracts.Bar, error) {
	key := redis.BarsKey(ticker, from.Format(dateKeyLayout), to.Format(dateKeyLayout))

	if v, ok := s.get(key); ok {
		return append([]contracts.Bar(nil), v.([]contracts.Bar)...), nil
	}

	var bars []contracts.Bar
	if s.loadL2(ctx, key, &bars) {
		s.put(key, bars)
		return append([]contracts.Bar(nil), bars...), nil
	}

	bars, err := s.inner.Bars(ctx, ticker, from, to)
	if err != nil {
		return nil, err
	}
	s.put(key, bars)
	s.storeL2(ctx, key, bars)
	return append([]contracts.Bar(nil), bars...), nil
}

// Fundamentals returns cached snapshots, loading through on miss
func (s *CachedStore) Fundamentals(ctx context.Context, ticker string, from, to time.Time) ([]contracts.Fundamentals, error) {
	key := redis.FundamentalsKey(ticker, from.Format(dateKeyLayout), to.Format(dateKeyLayout))

	if v, ok := s.get(key); ok {
		return append([]contracts.Fundamentals(nil), v.([]contracts.Fundamentals)...), nil
	}

	var snaps []contracts.Fundamentals
	if s.loadL2(ctx, key, &snaps) {
		s.put(key, snaps)
		return append([]contracts.Fundamentals(nil), snaps...), nil
	}

	snaps, err := s.inner.Fundamentals(ctx, ticker, from, to)
	if err != nil {
		return nil, err
	}
	s.put(key, snaps)
	s.storeL2(ctx, key, snaps)
	return append([]contracts.Fundamentals(nil), snaps...), nil
}

// Tickers returns the cached universe listing
func (s *CachedStore) Tickers(ctx context.Context) ([]string, error) {
	key := redis.TickersKey()

	if v, ok := s.get(key); ok {
		return append([]string(nil), v.([]string)...), nil
	}

	tickers, err := s.inner.Tickers(ctx)
	if err != nil {
		return nil, err
	}
	s.put(key, tickers)
	return append([]string(nil), tickers...), nil
}

// Len returns the number of L1 entries
func (s *CachedStore) Len() int {
	return s.l1.Len()
}

// Purge drops every L1 entry
func (s *CachedStore) Purge() {
	s.l1.Purge()
}

func (s *CachedStore) get(key string) (interface{}, bool) {
	v, ok := s.l1.Get(key)
	s.metrics.RecordCacheLookup("memory", ok)
	return v, ok
}

func (s *CachedStore) put(key string, value interface{}) {
	s.l1.Add(key, value)
}

func (s *CachedStore) loadL2(ctx context.Context, key string, dest interface{}) bool {
	if !s.l2.Enabled() {
		return false
	}

	found, err := s.l2.Get(ctx, key, dest)
	if err != nil {
		// Redis 장애는 캐시 미스로 취급
		s.logger.WithError(err).WithField("key", key).Warn("Redis cache read failed")
		return false
	}
	s.metrics.RecordCacheLookup("redis", found)
	return found
}

func (s *CachedStore) storeL2(ctx context.Context, key string, value interface{}) {
	if !s.l2.Enabled() {
		return
	}
	if err := s.l2.Set(ctx, key, value, s.ttl); err != nil {
		s.logger.WithError(err).WithField("key", key).Warn("Redis cache write failed")
	}
}
