package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/machikart/internal/models"
)

// Cache holds single products between catalog reads. A miss is reported as
// ok == false with a nil error.
type Cache interface {
	Get(ctx context.Context, id string) (models.Product, bool, error)
	Set(ctx context.Context, p models.Product) error
	Delete(ctx context.Context, id string) error
}

// RedisCache stores products as JSON under "product:<id>".
type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisCache(rdb *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, ttl: ttl}
}

func productKey(id string) string {
	return fmt.Sprintf("product:%s", id)
}

func (c *RedisCache) Get(ctx context.Context, id string) (models.Product, bool, error) {
	data, err := c.rdb.Get(ctx, productKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.Product{}, false, nil
	}
	if err != nil {
		return models.Product{}, false, err
	}
	var p models.Product
	if err := json.Unmarshal(data, &p); err != nil {
		return models.Product{}, false, err
	}
	return p, true, nil
}

func (c *RedisCache) Set(ctx context.Context, p models.Product) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, productKey(p.Key()), data, c.ttl).Err()
}

func (c *RedisCache) Delete(ctx context.Context, id string) error {
	return c.rdb.Del(ctx, productKey(id)).Err()
}

// noCache is used when no Redis is configured.
type noCache struct{}

func (noCache) Get(context.Context, string) (models.Product, bool, error) {
	return models.Product{}, false, nil
}

func (noCache) Set(context.Context, models.Product) error { return nil }

func (noCache) Delete(context.Context, string) error { return nil }
