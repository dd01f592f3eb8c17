package availability

import (
	"context"
	"errors"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/mediqueue/dental-scheduling/internal/clock"
)

const weeklyCachePrefix = "availability:weekly:"

type cachedWeekly struct {
	Weekly Weekly `json:"weekly"`
	Set    bool   `json:"set"`
}

// CachedSource keeps weekly templates in Redis. Leave and events are always
// read through, they change far more often than templates.
type CachedSource struct {
	next   Source
	client *redis.Client
	ttl    time.Duration
}

func NewCachedSource(next Source, client *redis.Client, ttl time.Duration) *CachedSource {
	return &CachedSource{next: next, client: client, ttl: ttl}
}

func (s *CachedSource) WeeklyAvailability(ctx context.Context, dentistCode string) (Weekly, bool, error) {
	key := weeklyCachePrefix + dentistCode

	raw, err := s.client.Get(ctx, key).Bytes()
	if err == nil {
		var v cachedWeekly
		if err := json.Unmarshal(raw, &v); err == nil {
			return v.Weekly, v.Set, nil
		}
		log.Warn().Str("key", key).Msg("discarding undecodable availability cache entry")
	} else if !errors.Is(err, redis.Nil) {
		log.Warn().Err(err).Str("key", key).Msg("availability cache read failed")
	}

	w, ok, err := s.next.WeeklyAvailability(ctx, dentistCode)
	if err != nil {
		return nil, false, err
	}

	data, err := json.Marshal(cachedWeekly{Weekly: w, Set: ok})
	if err == nil {
		if err := s.client.Set(ctx, key, data, s.ttl).Err(); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("availability cache write failed")
		}
	}

	return w, ok, nil
}

// Invalidate drops the cached template for a dentist after it was edited.
func (s *CachedSource) Invalidate(ctx context.Context, dentistCode string) error {
	if err := s.client.Del(ctx, weeklyCachePrefix+dentistCode).Err(); err != nil {
		return fmt.Errorf("invalidate availability cache: %w", err)
	}
	return nil
}

func (s *CachedSource) LeavePeriods(ctx context.Context, dentistCode string, from, to clock.Date) ([]LeavePeriod, error) {
	return s.next.LeavePeriods(ctx, dentistCode, from, to)
}

func (s *CachedSource) ClinicEvents(ctx context.Context, from, to time.Time) ([]ClinicEvent, error) {
	return s.next.ClinicEvents(ctx, from, to)
}
