package catalog

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tillpoint/backend/internal/cache"
	"tillpoint/backend/internal/domain"
	"tillpoint/backend/internal/store/memory"
)

type countingStore struct {
	*memory.Store
	productReads atomic.Int32
	release      chan struct{}
}

func (c *countingStore) GetProductByUPC(ctx context.Context, businessID string, upc string) (*domain.Product, error) {
	c.productReads.Add(1)
	if c.release != nil {
		<-c.release
	}
	return c.Store.GetProductByUPC(ctx, businessID, upc)
}

func newRedisCache(t *testing.T) *cache.RedisCache {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return cache.NewRedisCacheWithClient(client)
}

func TestProductByUPCUsesCache(t *testing.T) {
	backing := &countingStore{Store: memory.NewSeeded()}
	lookup := NewLookup(backing, newRedisCache(t), time.Minute)
	ctx := context.Background()

	first, err := lookup.ProductByUPC(ctx, memory.DemoBusinessID, memory.UPCWater)
	require.NoError(t, err)
	second, err := lookup.ProductByUPC(ctx, memory.DemoBusinessID, memory.UPCWater)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), backing.productReads.Load())
}

func TestConcurrentMissesShareOneRead(t *testing.T) {
	backing := &countingStore{Store: memory.NewSeeded(), release: make(chan struct{})}
	lookup := NewLookup(backing, nil, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := lookup.ProductByUPC(context.Background(), memory.DemoBusinessID, memory.UPCCola)
			assert.NoError(t, err)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(backing.release)
	wg.Wait()

	assert.Equal(t, int32(1), backing.productReads.Load())
}

func TestUnknownProductIsNotFound(t *testing.T) {
	lookup := NewLookup(memory.NewSeeded(), nil, 0)
	_, err := lookup.ProductByUPC(context.Background(), memory.DemoBusinessID, "999999999999")
	assert.ErrorIs(t, err, domain.ErrProductNotFound)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDepartmentLookup(t *testing.T) {
	lookup := NewLookup(memory.NewSeeded(), newRedisCache(t), time.Minute)
	ctx := context.Background()

	dept, err := lookup.Department(ctx, memory.DemoBusinessID, memory.DeptTobacco)
	require.NoError(t, err)
	require.NotNil(t, dept.AgeRestriction)
	assert.Equal(t, 18, *dept.AgeRestriction)

	cached, err := lookup.Department(ctx, memory.DemoBusinessID, memory.DeptTobacco)
	require.NoError(t, err)
	assert.Equal(t, dept.Name, cached.Name)

	_, err = lookup.Department(ctx, memory.DemoBusinessID, "dept_missing")
	assert.ErrorIs(t, err, domain.ErrDepartmentNotFound)
}
