package cache

import (
	"bytes"
	"context"
	"encoding/gob"
	"time"

	"router/internal/domain"
	"router/pkg/config"
)

// GeometryCache is a specialized wrapper over Cache that stores a reach's
// channel geometry, gob-encoded, keyed by route directory, reach id, and
// column mapping. It lets repeated runs over the same route directory skip
// the geospatial database entirely.
type GeometryCache struct {
	cache      Cache
	defaultTTL time.Duration
}

// NewGeometryCache creates a geometry cache wrapping the given backend.
func NewGeometryCache(cache Cache, defaultTTL time.Duration) *GeometryCache {
	if defaultTTL <= 0 {
		defaultTTL = 10 * time.Minute
	}
	return &GeometryCache{
		cache:      cache,
		defaultTTL: defaultTTL,
	}
}

// Get retrieves the cached geometry for a reach. The second return value is
// false on a cache miss (key not present or payload could not be decoded).
func (gc *GeometryCache) Get(ctx context.Context, routeDir string, reachID uint32, columns config.ColumnConfig) (domain.ChannelGeometry, bool, error) {
	key := GeometryCacheKey(routeDir, reachID, columns)

	data, err := gc.cache.Get(ctx, key)
	if err != nil {
		if err == ErrKeyNotFound {
			return domain.ChannelGeometry{}, false, nil
		}
		return domain.ChannelGeometry{}, false, err
	}

	var geom domain.ChannelGeometry
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&geom); err != nil {
		// Corrupt entry; evict it and report a miss rather than failing the run.
		_ = gc.cache.Delete(ctx, key) //nolint:errcheck // best effort cleanup
		return domain.ChannelGeometry{}, false, nil
	}

	return geom, true, nil
}

// Set stores a reach's channel geometry in the cache.
func (gc *GeometryCache) Set(ctx context.Context, routeDir string, reachID uint32, columns config.ColumnConfig, geom domain.ChannelGeometry, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = gc.defaultTTL
	}

	key := GeometryCacheKey(routeDir, reachID, columns)

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(geom); err != nil {
		return err
	}

	return gc.cache.Set(ctx, key, buf.Bytes(), ttl)
}

// InvalidateAll removes all cached channel geometry. The cache key is a
// hash of its inputs, so geometry cannot be selectively invalidated by
// route directory alone.
func (gc *GeometryCache) InvalidateAll(ctx context.Context) (int64, error) {
	return gc.cache.DeleteByPattern(ctx, "geom:*")
}
