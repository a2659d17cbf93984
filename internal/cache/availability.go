package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/dextersy/label-dashboard-sub004/internal/service"
	"github.com/go-redis/redis/v8"
)

const DefaultAvailabilityTTL = 5 * time.Second

// AvailabilityCache stores the per-event availability listing in Redis. It
// fails open: any Redis error is logged and treated as a miss, so the
// listing falls back to the database.
type AvailabilityCache struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewAvailabilityCache(rdb redis.Cmdable, ttl time.Duration) *AvailabilityCache {
	if ttl <= 0 {
		ttl = DefaultAvailabilityTTL
	}
	return &AvailabilityCache{rdb: rdb, ttl: ttl}
}

// NewClient connects to Redis at addr.
func NewClient(addr, password string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})
}

func availabilityKey(eventID uint) string {
	return fmt.Sprintf("availability:%d", eventID)
}

func (c *AvailabilityCache) Get(ctx context.Context, eventID uint) ([]service.TicketTypeAvailability, bool) {
	raw, err := c.rdb.Get(ctx, availabilityKey(eventID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Printf("[Cache] get availability for event %d: %v", eventID, err)
		}
		return nil, false
	}

	var items []service.TicketTypeAvailability
	if err := json.Unmarshal(raw, &items); err != nil {
		log.Printf("[Cache] corrupt availability for event %d: %v", eventID, err)
		return nil, false
	}
	return items, true
}

func (c *AvailabilityCache) Set(ctx context.Context, eventID uint, items []service.TicketTypeAvailability) {
	raw, err := json.Marshal(items)
	if err != nil {
		log.Printf("[Cache] marshal availability for event %d: %v", eventID, err)
		return
	}
	if err := c.rdb.Set(ctx, availabilityKey(eventID), raw, c.ttl).Err(); err != nil {
		log.Printf("[Cache] set availability for event %d: %v", eventID, err)
	}
}

func (c *AvailabilityCache) Invalidate(ctx context.Context, eventID uint) {
	if err := c.rdb.Del(ctx, availabilityKey(eventID)).Err(); err != nil {
		log.Printf("[Cache] invalidate availability for event %d: %v", eventID, err)
	}
}
