package quote

import (
	"context"

	"github.com/noah-isme/petlog-console/internal/cache"
	"github.com/noah-isme/petlog-console/internal/money"
	"github.com/noah-isme/petlog-console/internal/pricing"
)

// CachedCatalog serves the plan list and the extra-room unit price of api
// from c, keyed by scope (the hotel). Quotes and payments pass through.
func CachedCatalog(api API, c *cache.Cache, scope string) API {
	if c == nil {
		return api
	}
	return cachedCatalog{API: api, cache: c, scope: scope}
}

type cachedCatalog struct {
	API
	cache *cache.Cache
	scope string
}

func (c cachedCatalog) Plans(ctx context.Context) ([]pricing.Plan, error) {
	return cache.Remember(ctx, c.cache, "plans:"+c.scope, c.API.Plans)
}

func (c cachedCatalog) ExtraRoomPrice(ctx context.Context) (money.Money, error) {
	return cache.Remember(ctx, c.cache, "extra-room-price:"+c.scope, c.API.ExtraRoomPrice)
}
