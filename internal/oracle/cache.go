package oracle

import (
	"context"
	"fmt"

	"github.com/alanyoungcy/convictionmarket/internal/domain"
)

// CacheSource serves prices written to a domain.PriceCache by the ingest
// pipeline.
type CacheSource struct {
	cache domain.PriceCache
}

// NewCacheSource creates a source reading from cache.
func NewCacheSource(cache domain.PriceCache) *CacheSource {
	return &CacheSource{cache: cache}
}

// LatestPrice implements domain.PriceSource.
func (c *CacheSource) LatestPrice(ctx context.Context, reg domain.OracleRegistration) (domain.PriceData, error) {
	data, err := c.cache.GetPrice(ctx, reg.Feed)
	if err != nil {
		return domain.PriceData{}, fmt.Errorf("cache: price %s: %w", reg.Feed, err)
	}
	return data, nil
}
