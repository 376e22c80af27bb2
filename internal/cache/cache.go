// Gói cache cung cấp cache hai tầng cho các kết quả gọi API:
// tầng nhanh trong bộ nhớ và tầng bền trên đĩa. Đây là tối ưu
// cho một process duy nhất, không phải distributed cache.

package cache

import (
	"context"
	"time"

	"github.com/thep200/github-harvester/cfg"
	"github.com/thep200/github-harvester/pkg/log"
)

type Cache struct {
	Logger  log.Logger
	Config  *cfg.Config
	fast    *fastTier
	durable *durableTier
	ttl     time.Duration
}

func NewCache(logger log.Logger, config *cfg.Config) (*Cache, error) {
	durable, err := newDurableTier(config.Cache.Dir)
	if err != nil {
		return nil, err
	}

	ttl := time.Duration(config.Cache.TtlMin) * time.Minute
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	return &Cache{
		Logger:  logger,
		Config:  config,
		fast:    newFastTier(config.Cache.MaxFastEntries),
		durable: durable,
		ttl:     ttl,
	}, nil
}

// Get tra tầng nhanh trước, miss thì tra tầng bền. Hit ở tầng bền
// sẽ được promote lên tầng nhanh cho các lần đọc sau.
func (c *Cache) Get(key string) ([]byte, bool) {
	if value, ok := c.fast.get(key); ok {
		return value, true
	}

	value, ok, err := c.durable.get(key)
	if err != nil {
		c.Logger.Warn(context.Background(), "Durable cache read failed for key %s: %v", key, err)
		return nil, false
	}
	if !ok {
		return nil, false
	}

	c.fast.set(key, value, c.ttl)
	return value, true
}

// Set ghi xuyên qua cả hai tầng. Caller không bao giờ ghi tầng bền trực tiếp.
func (c *Cache) Set(key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.ttl
	}
	c.fast.set(key, value, ttl)
	if err := c.durable.set(key, value, ttl); err != nil {
		c.Logger.Warn(context.Background(), "Durable cache write failed for key %s: %v", key, err)
		return err
	}
	return nil
}

func (c *Cache) Invalidate(key string) error {
	c.fast.remove(key)
	return c.durable.remove(key)
}

func (c *Cache) Clear() error {
	c.fast.clear()
	return c.durable.clear()
}

func (c *Cache) Close() error {
	return c.durable.close()
}
