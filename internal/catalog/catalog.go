// Package catalog resolves products and departments for checkout, fronting the
// store with a short-lived cache. Concurrent misses for the same key share one
// store read.
package catalog

import (
	"context"
	"log"
	"time"

	"golang.org/x/sync/singleflight"

	"tillpoint/backend/internal/cache"
	"tillpoint/backend/internal/domain"
	"tillpoint/backend/internal/store"
)

type Lookup struct {
	store    store.Catalog
	cache    cache.CatalogCache
	cacheTTL time.Duration
	group    singleflight.Group
}

func NewLookup(catalogStore store.Catalog, cacheStore cache.CatalogCache, cacheTTL time.Duration) *Lookup {
	if cacheStore == nil {
		cacheStore = cache.NoopCatalogCache{}
	}
	if cacheTTL <= 0 {
		cacheTTL = 60 * time.Second
	}
	return &Lookup{
		store:    catalogStore,
		cache:    cacheStore,
		cacheTTL: cacheTTL,
	}
}

func (l *Lookup) Business(ctx context.Context, businessID string) (*domain.Business, error) {
	return l.store.GetBusiness(ctx, businessID)
}

func (l *Lookup) ProductByUPC(ctx context.Context, businessID string, upc string) (*domain.Product, error) {
	if cached, ok, err := l.cache.GetProduct(ctx, businessID, upc); err == nil && ok {
		return cached, nil
	} else if err != nil {
		log.Printf("[catalog] WARN product cache read failed upc=%s: %v", upc, err)
	}

	v, err, _ := l.group.Do("upc:"+businessID+":"+upc, func() (any, error) {
		product, err := l.store.GetProductByUPC(ctx, businessID, upc)
		if err != nil {
			return nil, err
		}
		if err := l.cache.SetProduct(ctx, *product, l.cacheTTL); err != nil {
			log.Printf("[catalog] WARN product cache write failed upc=%s: %v", upc, err)
		}
		return product, nil
	})
	if err != nil {
		return nil, err
	}
	product := *v.(*domain.Product)
	return &product, nil
}

func (l *Lookup) Department(ctx context.Context, businessID string, departmentID string) (*domain.Department, error) {
	if cached, ok, err := l.cache.GetDepartment(ctx, businessID, departmentID); err == nil && ok {
		return cached, nil
	} else if err != nil {
		log.Printf("[catalog] WARN department cache read failed dept=%s: %v", departmentID, err)
	}

	v, err, _ := l.group.Do("dept:"+businessID+":"+departmentID, func() (any, error) {
		dept, err := l.store.GetDepartment(ctx, businessID, departmentID)
		if err != nil {
			return nil, err
		}
		if err := l.cache.SetDepartment(ctx, *dept, l.cacheTTL); err != nil {
			log.Printf("[catalog] WARN department cache write failed dept=%s: %v", departmentID, err)
		}
		return dept, nil
	})
	if err != nil {
		return nil, err
	}
	dept := *v.(*domain.Department)
	return &dept, nil
}
