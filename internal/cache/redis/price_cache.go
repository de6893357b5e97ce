package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/parimutuel/internal/domain"
)

// PriceCache implements domain.PriceCache using Redis hashes.
// Each feed's latest reading is stored as a hash at key "price:{feedID}" with
// fields "price", "expo", and "ts" (Unix nanosecond timestamp).
type PriceCache struct {
	rdb *redis.Client
}

// NewPriceCache creates a PriceCache backed by the given Client.
func NewPriceCache(c *Client) *PriceCache {
	return &PriceCache{rdb: c.Underlying()}
}

func priceKey(feedID string) string {
	return "price:" + feedID
}

// SetReading stores the latest reading for a feed.
func (pc *PriceCache) SetReading(ctx context.Context, r domain.PriceReading) error {
	key := priceKey(r.FeedID)
	fields := map[string]interface{}{
		"price": strconv.FormatInt(r.Price, 10),
		"expo":  strconv.FormatInt(int64(r.Expo), 10),
		"ts":    strconv.FormatInt(r.Timestamp.UnixNano(), 10),
	}
	if err := pc.rdb.HSet(ctx, key, fields).Err(); err != nil {
		return fmt.Errorf("redis: set price %s: %w", r.FeedID, err)
	}
	return nil
}

// GetReading retrieves the latest reading for a feed.
// It returns domain.ErrNotFound when the key does not exist.
func (pc *PriceCache) GetReading(ctx context.Context, feedID string) (domain.PriceReading, error) {
	vals, err := pc.rdb.HGetAll(ctx, priceKey(feedID)).Result()
	if err != nil {
		return domain.PriceReading{}, fmt.Errorf("redis: get price %s: %w", feedID, err)
	}
	if len(vals) == 0 {
		return domain.PriceReading{}, domain.ErrNotFound
	}

	price, err := strconv.ParseInt(vals["price"], 10, 64)
	if err != nil {
		return domain.PriceReading{}, fmt.Errorf("redis: parse price %s: %w", feedID, err)
	}
	expo, err := strconv.ParseInt(vals["expo"], 10, 32)
	if err != nil {
		return domain.PriceReading{}, fmt.Errorf("redis: parse expo %s: %w", feedID, err)
	}
	tsNano, err := strconv.ParseInt(vals["ts"], 10, 64)
	if err != nil {
		return domain.PriceReading{}, fmt.Errorf("redis: parse ts %s: %w", feedID, err)
	}

	return domain.PriceReading{
		FeedID:    feedID,
		Price:     price,
		Expo:      int32(expo),
		Timestamp: time.Unix(0, tsNano).UTC(),
	}, nil
}

// Compile-time interface check.
var _ domain.PriceCache = (*PriceCache)(nil)
