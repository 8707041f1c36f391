package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"leaddesk-api/domain"
)

type backend interface {
	GetAccount(ctx context.Context, id string) (*domain.Account, error)
	LinkedClients(ctx context.Context, managerID string) ([]domain.ClientSummary, error)
}

// Cache wraps a Storage instance with Redis-backed caching for the two hot
// reads: account resolution (every request) and the manager's client list.
type Cache struct {
	*Storage
	base  backend
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching Storage wrapper using the provided Redis client and TTL.
func NewCache(base backend, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base storage is nil")
	}
	if ttl < 0 {
		ttl = 0
	}

	c := &Cache{
		base:  base,
		redis: client,
		ttl:   ttl,
	}
	if s, ok := base.(*Storage); ok {
		c.Storage = s
	}
	return c
}

func (c *Cache) GetAccount(ctx context.Context, id string) (*domain.Account, error) {
	if acc, ok := c.loadAccountFromCache(ctx, id); ok {
		return acc, nil
	}

	acc, err := c.base.GetAccount(ctx, id)
	if err != nil {
		return nil, err
	}
	if acc != nil {
		c.storeAccount(ctx, *acc)
	}
	return acc, nil
}

func (c *Cache) LinkedClients(ctx context.Context, managerID string) ([]domain.ClientSummary, error) {
	if sums, ok := c.loadLinksFromCache(ctx, managerID); ok {
		return sums, nil
	}

	sums, err := c.base.LinkedClients(ctx, managerID)
	if err != nil {
		return nil, err
	}
	c.storeLinks(ctx, managerID, sums)
	return sums, nil
}

// EvictAccount drops the cached copy of an account after a write.
func (c *Cache) EvictAccount(ctx context.Context, id string) {
	if c.redis == nil {
		return
	}
	_ = c.redis.Del(ctx, accountCacheKey(id)).Err()
}

// EvictLinks drops the cached client list of a manager after a link write.
func (c *Cache) EvictLinks(ctx context.Context, managerID string) {
	if c.redis == nil {
		return
	}
	_ = c.redis.Del(ctx, linksCacheKey(managerID)).Err()
}

func (c *Cache) loadAccountFromCache(ctx context.Context, id string) (*domain.Account, bool) {
	if c.redis == nil {
		return nil, false
	}
	data, err := c.redis.Get(ctx, accountCacheKey(id)).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backing storage without failing.
			_ = c.redis.Del(ctx, accountCacheKey(id)).Err()
		}
		return nil, false
	}
	var acc domain.Account
	if err := json.Unmarshal(data, &acc); err != nil {
		_ = c.redis.Del(ctx, accountCacheKey(id)).Err()
		return nil, false
	}
	return &acc, true
}

func (c *Cache) storeAccount(ctx context.Context, acc domain.Account) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := json.Marshal(acc)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, accountCacheKey(acc.ID), data, c.ttl).Err()
}

func (c *Cache) loadLinksFromCache(ctx context.Context, managerID string) ([]domain.ClientSummary, bool) {
	if c.redis == nil {
		return nil, false
	}
	data, err := c.redis.Get(ctx, linksCacheKey(managerID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			_ = c.redis.Del(ctx, linksCacheKey(managerID)).Err()
		}
		return nil, false
	}
	var sums []domain.ClientSummary
	if err := json.Unmarshal(data, &sums); err != nil {
		_ = c.redis.Del(ctx, linksCacheKey(managerID)).Err()
		return nil, false
	}
	return sums, true
}

func (c *Cache) storeLinks(ctx context.Context, managerID string, sums []domain.ClientSummary) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := json.Marshal(sums)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, linksCacheKey(managerID), data, c.ttl).Err()
}

func accountCacheKey(id string) string {
	return "account:" + id
}

func linksCacheKey(managerID string) string {
	return "links:" + managerID
}
