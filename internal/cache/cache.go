package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Availability is the cached per-event summary served on event reads. It is a
// read optimization only: the database counters remain the source of truth,
// and every write that touches them deletes the key.
type Availability struct {
	EventID        uuid.UUID `json:"event_id"`
	Capacity       int       `json:"capacity"`
	Registered     int       `json:"registered"`
	AvailableSeats int       `json:"available_seats"`
	Status         string    `json:"status"`
}

type AvailabilityCache struct {
	rdb *redis.Client
	ttl time.Duration
	log *zerolog.Logger
}

func NewAvailabilityCache(rdb *redis.Client, ttl time.Duration, log *zerolog.Logger) *AvailabilityCache {
	return &AvailabilityCache{rdb: rdb, ttl: ttl, log: log}
}

func key(eventID uuid.UUID) string {
	return fmt.Sprintf("event:avail:%s", eventID)
}

func (c *AvailabilityCache) Get(ctx context.Context, eventID uuid.UUID) (*Availability, bool) {
	raw, err := c.rdb.Get(ctx, key(eventID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn().Err(err).Msg("availability cache read failed")
		}
		return nil, false
	}
	var a Availability
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, false
	}
	return &a, true
}

func (c *AvailabilityCache) Set(ctx context.Context, a Availability) {
	raw, err := json.Marshal(a)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, key(a.EventID), raw, c.ttl).Err(); err != nil {
		c.log.Warn().Err(err).Msg("availability cache write failed")
	}
}

// Invalidate drops the cached summary after any write that changes counters.
func (c *AvailabilityCache) Invalidate(ctx context.Context, eventID uuid.UUID) {
	if err := c.rdb.Del(ctx, key(eventID)).Err(); err != nil {
		c.log.Warn().Err(err).Msg("availability cache invalidation failed")
	}
}
