package vehicles

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// Catalog serves variant lookups through a Redis read-through cache. A nil
// Redis client disables caching.
type Catalog struct {
	repo   Repository
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
	group  singleflight.Group
}

// NewCatalog builds the catalog.
func NewCatalog(repo Repository, client *redis.Client, ttl time.Duration, logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	return &Catalog{repo: repo, client: client, ttl: ttl, logger: logger}
}

func variantKey(modelID, variantID int64) string {
	return strings.Join([]string{"vehicles", "variant", strconv.FormatInt(modelID, 10), strconv.FormatInt(variantID, 10)}, ":")
}

// Variant returns the variant with its live price. Concurrent misses for the
// same key share one database read.
func (c *Catalog) Variant(ctx context.Context, modelID, variantID int64) (*Variant, error) {
	key := variantKey(modelID, variantID)
	res, err, _ := c.group.Do(key, func() (interface{}, error) {
		return c.fetch(ctx, key, modelID, variantID)
	})
	if err != nil {
		return nil, err
	}
	v := *res.(*Variant)
	return &v, nil
}

func (c *Catalog) fetch(ctx context.Context, key string, modelID, variantID int64) (*Variant, error) {
	if c.client == nil || c.ttl <= 0 {
		return c.repo.GetVariant(ctx, modelID, variantID)
	}

	payload, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var cached Variant
		if jsonErr := json.Unmarshal(payload, &cached); jsonErr == nil {
			return &cached, nil
		}
		c.logger.Warn("vehicle cache entry corrupt", slog.String("key", key))
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("vehicle cache read", slog.String("key", key), slog.Any("error", err))
	}

	v, err := c.repo.GetVariant(ctx, modelID, variantID)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		c.logger.Warn("vehicle cache write", slog.String("key", key), slog.Any("error", err))
	}
	return v, nil
}
