package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"courier-sync/internal/config"
	"courier-sync/internal/parcel/model"
)

const (
	latestFixTTL = 10 * time.Minute
	// Matches the live point ring kept by parcel detail views.
	recentFixLimit = 50
)

// TrackingCache keeps the latest GPS fix and a short recent-fix ring per
// parcel in Redis, so tracking pages load without touching the database.
type TrackingCache struct {
	c *redis.Client
}

func NewTrackingCache(cfg config.RedisConfig) *TrackingCache {
	return &TrackingCache{
		c: redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
	}
}

// Ping verifies the Redis connection.
func (t *TrackingCache) Ping(ctx context.Context) error {
	return t.c.Ping(ctx).Err()
}

func (t *TrackingCache) Close() error {
	return t.c.Close()
}

// StoreLatestFix records the fix as both the latest value and the head of
// the recent ring for the parcel.
func (t *TrackingCache) StoreLatestFix(ctx context.Context, event model.TrackingEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal tracking fix: %w", err)
	}

	pipe := t.c.TxPipeline()
	pipe.Set(ctx, latestKey(event.ParcelID), data, latestFixTTL)
	pipe.LPush(ctx, recentKey(event.ParcelID), data)
	pipe.LTrim(ctx, recentKey(event.ParcelID), 0, recentFixLimit-1)
	pipe.Expire(ctx, recentKey(event.ParcelID), latestFixTTL)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store tracking fix: %w", err)
	}
	return nil
}

// LatestFix returns the most recent fix for the parcel, if cached.
func (t *TrackingCache) LatestFix(ctx context.Context, parcelID string) (model.TrackingEvent, bool, error) {
	data, err := t.c.Get(ctx, latestKey(parcelID)).Bytes()
	if err == redis.Nil {
		return model.TrackingEvent{}, false, nil
	}
	if err != nil {
		return model.TrackingEvent{}, false, fmt.Errorf("redis get: %w", err)
	}

	var event model.TrackingEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return model.TrackingEvent{}, false, fmt.Errorf("unmarshal tracking fix: %w", err)
	}
	return event, true, nil
}

// RecentFixes returns cached fixes for the parcel, newest first.
func (t *TrackingCache) RecentFixes(ctx context.Context, parcelID string) ([]model.TrackingEvent, error) {
	raw, err := t.c.LRange(ctx, recentKey(parcelID), 0, recentFixLimit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis lrange: %w", err)
	}

	events := make([]model.TrackingEvent, 0, len(raw))
	for _, item := range raw {
		var event model.TrackingEvent
		if err := json.Unmarshal([]byte(item), &event); err != nil {
			continue
		}
		events = append(events, event)
	}
	return events, nil
}

func latestKey(parcelID string) string {
	return "tracking:latest:" + parcelID
}

func recentKey(parcelID string) string {
	return "tracking:recent:" + parcelID
}
