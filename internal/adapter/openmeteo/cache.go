package openmeteo

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/couchcryptid/storm-data-runoff/internal/domain"
	"github.com/couchcryptid/storm-data-runoff/internal/observability"
	"github.com/jonboulle/clockwork"
)

// CachedSource wraps a PrecipitationSource with an in-memory LRU cache.
// Forecast entries expire after forecastTTL since Open-Meteo refreshes its
// models through the day. Archive entries are kept until evicted.
type CachedSource struct {
	inner       domain.PrecipitationSource
	cache       *lruCache
	forecastTTL time.Duration
	metrics     *observability.Metrics
}

// NewCachedSource creates a cache decorator around a precipitation source.
// A forecastTTL of zero keeps forecast entries until evicted.
func NewCachedSource(inner domain.PrecipitationSource, maxEntries int, forecastTTL time.Duration, clock clockwork.Clock, metrics *observability.Metrics) *CachedSource {
	cache := newLRUCache(maxEntries)
	cache.clock = clock
	return &CachedSource{
		inner:       inner,
		cache:       cache,
		forecastTTL: forecastTTL,
		metrics:     metrics,
	}
}

func (c *CachedSource) Forecast(ctx context.Context, geo domain.Geo, r domain.DateRange) (domain.PrecipitationSample, error) {
	return c.lookup(ctx, kindForecast, c.forecastTTL, geo, r, c.inner.Forecast)
}

func (c *CachedSource) Historical(ctx context.Context, geo domain.Geo, r domain.DateRange) (domain.PrecipitationSample, error) {
	return c.lookup(ctx, kindHistorical, 0, geo, r, c.inner.Historical)
}

type fetchFunc func(context.Context, domain.Geo, domain.DateRange) (domain.PrecipitationSample, error)

func (c *CachedSource) lookup(ctx context.Context, kind string, ttl time.Duration, geo domain.Geo, r domain.DateRange, fetch fetchFunc) (domain.PrecipitationSample, error) {
	key := fmt.Sprintf("%s:%.4f,%.4f|%s|%s", kind, geo.Lat, geo.Lon, r.StartDate(), r.EndDate())
	switch sample, result := c.cache.get(key); result {
	case cacheHit:
		c.metrics.PrecipitationCache.WithLabelValues(kind, "hit").Inc()
		return sample, nil
	case cacheExpired:
		c.metrics.PrecipitationCache.WithLabelValues(kind, "expired").Inc()
	default:
		c.metrics.PrecipitationCache.WithLabelValues(kind, "miss").Inc()
	}

	// Errors, including partial series, are never cached.
	sample, err := fetch(ctx, geo, r)
	if err != nil {
		return sample, err
	}
	c.cache.put(key, sample, ttl)
	return sample, nil
}

type cacheResult int

const (
	cacheMiss cacheResult = iota
	cacheHit
	cacheExpired
)

// lruCache is a simple thread-safe LRU cache for precipitation samples.
type lruCache struct {
	maxEntries int
	clock      clockwork.Clock
	mu         sync.Mutex
	entries    map[string]*entry
	head       *entry // most recently used
	tail       *entry // least recently used
}

type entry struct {
	key       string
	value     domain.PrecipitationSample
	expiresAt time.Time // zero means no expiry
	prev      *entry
	next      *entry
}

func newLRUCache(maxEntries int) *lruCache {
	return &lruCache{
		maxEntries: maxEntries,
		clock:      clockwork.NewRealClock(),
		entries:    make(map[string]*entry),
	}
}

// get returns the entry for key. Expired entries are dropped and reported as
// cacheExpired.
func (c *lruCache) get(key string) (domain.PrecipitationSample, cacheResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return domain.PrecipitationSample{}, cacheMiss
	}
	if !e.expiresAt.IsZero() && !c.clock.Now().Before(e.expiresAt) {
		delete(c.entries, key)
		c.remove(e)
		return domain.PrecipitationSample{}, cacheExpired
	}
	c.moveToFront(e)
	return e.value, cacheHit
}

// put stores value under key. A ttl of zero never expires.
func (c *lruCache) put(key string, value domain.PrecipitationSample, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = c.clock.Now().Add(ttl)
	}

	if e, ok := c.entries[key]; ok {
		e.value = value
		e.expiresAt = expiresAt
		c.moveToFront(e)
		return
	}

	e := &entry{key: key, value: value, expiresAt: expiresAt}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

func (c *lruCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *lruCache) moveToFront(e *entry) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *lruCache) addToFront(e *entry) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *lruCache) remove(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *lruCache) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.remove(c.tail)
}
