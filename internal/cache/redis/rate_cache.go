package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/basislabs/hedgerd/internal/domain"
)

// RateCache implements domain.RateCache using Redis hashes. Each asset's USD
// rate is stored as a hash at key "rate:{address}" with fields "rate"
// (micro-USD per whole token, ValueScale fixed point) and "ts" (Unix
// nanosecond timestamp).
type RateCache struct {
	rdb *redis.Client
}

// NewRateCache creates a RateCache backed by the given Client.
func NewRateCache(c *Client) *RateCache {
	return &RateCache{rdb: c.Underlying()}
}

func rateKey(asset domain.Address) string {
	return "rate:" + asset.Hex()
}

// SetRate stores the latest USD rate and timestamp for an asset.
func (rc *RateCache) SetRate(ctx context.Context, asset domain.Address, rate int64, ts time.Time) error {
	fields := map[string]interface{}{
		"rate": strconv.FormatInt(rate, 10),
		"ts":   strconv.FormatInt(ts.UnixNano(), 10),
	}
	if err := rc.rdb.HSet(ctx, rateKey(asset), fields).Err(); err != nil {
		return fmt.Errorf("redis: set rate %s: %w", asset.Hex(), err)
	}
	return nil
}

// GetRate retrieves the latest USD rate and timestamp for an asset.
// It returns domain.ErrNotFound when the key does not exist.
func (rc *RateCache) GetRate(ctx context.Context, asset domain.Address) (int64, time.Time, error) {
	vals, err := rc.rdb.HGetAll(ctx, rateKey(asset)).Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: get rate %s: %w", asset.Hex(), err)
	}
	if len(vals) == 0 {
		return 0, time.Time{}, domain.ErrNotFound
	}

	rateStr, ok := vals["rate"]
	if !ok {
		return 0, time.Time{}, domain.ErrNotFound
	}
	rate, err := strconv.ParseInt(rateStr, 10, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: parse rate %s: %w", asset.Hex(), err)
	}

	tsStr, ok := vals["ts"]
	if !ok {
		return 0, time.Time{}, domain.ErrNotFound
	}
	tsNano, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: parse ts %s: %w", asset.Hex(), err)
	}

	return rate, time.Unix(0, tsNano), nil
}

// GetRates retrieves the latest rates for multiple assets using a pipeline.
// Assets whose keys do not exist are silently omitted from the result map.
func (rc *RateCache) GetRates(ctx context.Context, assets []domain.Address) (map[domain.Address]int64, error) {
	if len(assets) == 0 {
		return map[domain.Address]int64{}, nil
	}

	pipe := rc.rdb.Pipeline()
	cmds := make(map[domain.Address]*redis.MapStringStringCmd, len(assets))
	for _, a := range assets {
		cmds[a] = pipe.HGetAll(ctx, rateKey(a))
	}

	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis: get rates pipeline: %w", err)
	}

	result := make(map[domain.Address]int64, len(assets))
	for a, cmd := range cmds {
		vals, err := cmd.Result()
		if err != nil {
			continue
		}
		rateStr, ok := vals["rate"]
		if !ok {
			continue
		}
		rate, err := strconv.ParseInt(rateStr, 10, 64)
		if err != nil {
			continue
		}
		result[a] = rate
	}

	return result, nil
}

// Compile-time interface check.
var _ domain.RateCache = (*RateCache)(nil)
