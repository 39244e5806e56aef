package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"tillpoint/backend/internal/domain"
)

type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(addr string, password string, db int) *RedisCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisCache{client: client}
}

func NewRedisCacheWithClient(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

func productKey(businessID string, upc string) string {
	return fmt.Sprintf("catalog:%s:upc:%s", businessID, upc)
}

func departmentKey(businessID string, departmentID string) string {
	return fmt.Sprintf("catalog:%s:dept:%s", businessID, departmentID)
}

func sessionKey(sessionID string) string {
	return fmt.Sprintf("checkout:session:%s", sessionID)
}

func (c *RedisCache) GetProduct(ctx context.Context, businessID string, upc string) (*domain.Product, bool, error) {
	var product domain.Product
	ok, err := c.getJSON(ctx, productKey(businessID, upc), &product)
	if !ok || err != nil {
		return nil, false, err
	}
	return &product, true, nil
}

func (c *RedisCache) SetProduct(ctx context.Context, product domain.Product, ttl time.Duration) error {
	return c.setJSON(ctx, productKey(product.BusinessID, product.UPC), product, ttl)
}

func (c *RedisCache) GetDepartment(ctx context.Context, businessID string, departmentID string) (*domain.Department, bool, error) {
	var dept domain.Department
	ok, err := c.getJSON(ctx, departmentKey(businessID, departmentID), &dept)
	if !ok || err != nil {
		return nil, false, err
	}
	return &dept, true, nil
}

func (c *RedisCache) SetDepartment(ctx context.Context, dept domain.Department, ttl time.Duration) error {
	return c.setJSON(ctx, departmentKey(dept.BusinessID, dept.ID), dept, ttl)
}

func (c *RedisCache) SaveSession(ctx context.Context, session domain.CheckoutSession, ttl time.Duration) error {
	return c.setJSON(ctx, sessionKey(session.ID), session, ttl)
}

func (c *RedisCache) GetSession(ctx context.Context, sessionID string) (*domain.CheckoutSession, bool, error) {
	var session domain.CheckoutSession
	ok, err := c.getJSON(ctx, sessionKey(sessionID), &session)
	if !ok || err != nil {
		return nil, false, err
	}
	return &session, true, nil
}

func (c *RedisCache) getJSON(ctx context.Context, key string, dest any) (bool, error) {
	val, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal([]byte(val), dest); err != nil {
		return false, err
	}
	return true, nil
}

func (c *RedisCache) setJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, payload, ttl).Err()
}
