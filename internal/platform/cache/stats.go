package cache

import (
	"context"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/carebook/carebook/internal/domain/booking"
)

// StatsKeyPrefix namespaces per-doctor stats entries.
const StatsKeyPrefix = "carebook:stats:doctor:"

// RedisStatsCache implements booking.StatsCache. Redis errors are logged and
// treated as misses so the booking path never fails on the cache.
type RedisStatsCache struct {
	cache  *JSONCache
	logger zerolog.Logger
}

func NewRedisStatsCache(kv KV, ttl time.Duration, logger zerolog.Logger) *RedisStatsCache {
	return &RedisStatsCache{
		cache:  NewJSONCache(kv, StatsKeyPrefix, ttl),
		logger: logger.With().Str("component", "stats_cache").Logger(),
	}
}

func doctorKey(id int64) string {
	return strconv.FormatInt(id, 10)
}

func (s *RedisStatsCache) Get(ctx context.Context, doctorID int64, day string) (*booking.Counts, bool) {
	var counts booking.Counts
	ok, err := s.cache.Get(ctx, doctorKey(doctorID), &counts)
	if err != nil {
		s.logger.Warn().Err(err).Int64("doctor_id", doctorID).Msg("stats cache read failed")
		return nil, false
	}
	if !ok || counts.Day != day {
		return nil, false
	}
	return &counts, true
}

func (s *RedisStatsCache) Put(ctx context.Context, doctorID int64, counts *booking.Counts) {
	if err := s.cache.Set(ctx, doctorKey(doctorID), counts); err != nil {
		s.logger.Warn().Err(err).Int64("doctor_id", doctorID).Msg("stats cache write failed")
	}
}

func (s *RedisStatsCache) Invalidate(ctx context.Context, doctorID int64) {
	if err := s.cache.Delete(ctx, doctorKey(doctorID)); err != nil {
		s.logger.Warn().Err(err).Int64("doctor_id", doctorID).Msg("stats cache invalidate failed")
	}
}

var _ booking.StatsCache = (*RedisStatsCache)(nil)
