package weather

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/unklstewy/airspace-assistant/pkg/coordinates"
)

// ttlCache memoizes successful lookups for a fixed time and collapses
// concurrent lookups of the same key into one upstream call.
type ttlCache[V any] struct {
	lru   *expirable.LRU[string, V]
	group singleflight.Group
}

func newTTLCache[V any](size int, ttl time.Duration) *ttlCache[V] {
	if size <= 0 {
		size = 256
	}
	return &ttlCache[V]{lru: expirable.NewLRU[string, V](size, nil, ttl)}
}

func (c *ttlCache[V]) get(key string, fetch func() (V, error)) (V, error) {
	if v, ok := c.lru.Get(key); ok {
		return v, nil
	}

	res, err, _ := c.group.Do(key, func() (interface{}, error) {
		v, err := fetch()
		if err != nil {
			return v, err
		}
		c.lru.Add(key, v)
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return res.(V), nil
}

// CachedProvider wraps a Provider with an expiring LRU cache.
// Coordinates are bucketed to two decimals (about one kilometre).
type CachedProvider struct {
	next  Provider
	cache *ttlCache[*Observation]
}

// NewCachedProvider caches up to size observations for ttl.
func NewCachedProvider(next Provider, size int, ttl time.Duration) *CachedProvider {
	return &CachedProvider{next: next, cache: newTTLCache[*Observation](size, ttl)}
}

// AtCoordinates implements Provider.
func (p *CachedProvider) AtCoordinates(ctx context.Context, pos coordinates.Geographic) (*Observation, error) {
	key := fmt.Sprintf("c:%.2f,%.2f", pos.Latitude, pos.Longitude)
	return p.cache.get(key, func() (*Observation, error) {
		return p.next.AtCoordinates(ctx, pos)
	})
}

// AtPlace implements Provider.
func (p *CachedProvider) AtPlace(ctx context.Context, place string) (*Observation, error) {
	key := "p:" + strings.ToLower(strings.TrimSpace(place))
	return p.cache.get(key, func() (*Observation, error) {
		return p.next.AtPlace(ctx, place)
	})
}

// CachedMETAR wraps a METARProvider with an expiring LRU cache.
type CachedMETAR struct {
	next  METARProvider
	cache *ttlCache[*METAR]
}

// NewCachedMETAR caches up to size reports for ttl.
func NewCachedMETAR(next METARProvider, size int, ttl time.Duration) *CachedMETAR {
	return &CachedMETAR{next: next, cache: newTTLCache[*METAR](size, ttl)}
}

// METAR implements METARProvider.
func (p *CachedMETAR) METAR(ctx context.Context, icao string) (*METAR, error) {
	key := strings.ToUpper(strings.TrimSpace(icao))
	return p.cache.get(key, func() (*METAR, error) {
		return p.next.METAR(ctx, icao)
	})
}
