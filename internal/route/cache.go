package route

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/example/trip-matching/internal/models"
)

// Cache wraps a Client and remembers successful routes for ttl. Failures are
// never cached, so a retry always reaches the service. Expired entries are
// swept on insert, at most once per ttl.
type Cache struct {
	next      Client
	ttl       time.Duration
	now       func() time.Time
	mu        sync.RWMutex
	store     map[string]cacheEntry
	lastSweep time.Time
}

type cacheEntry struct {
	r  models.RouteResult
	ts time.Time
}

func NewCache(next Client, ttl time.Duration) *Cache {
	return &Cache{next: next, ttl: ttl, now: time.Now, store: make(map[string]cacheEntry)}
}

func keyFor(waypoints []models.Coord) string {
	parts := make([]string, len(waypoints))
	for i, w := range waypoints {
		parts[i] = fmt.Sprintf("%.6f,%.6f", w.Lon, w.Lat)
	}
	return strings.Join(parts, ";")
}

func (c *Cache) get(k string) (models.RouteResult, bool) {
	c.mu.RLock()
	e, ok := c.store[k]
	c.mu.RUnlock()
	if !ok {
		return models.RouteResult{}, false
	}
	if c.now().Sub(e.ts) > c.ttl {
		c.mu.Lock()
		delete(c.store, k)
		c.mu.Unlock()
		return models.RouteResult{}, false
	}
	return e.r, true
}

func (c *Cache) FetchRoute(ctx context.Context, waypoints []models.Coord) (models.RouteResult, error) {
	k := keyFor(waypoints)
	if r, ok := c.get(k); ok {
		return r, nil
	}
	r, err := c.next.FetchRoute(ctx, waypoints)
	if err != nil {
		return r, err
	}
	now := c.now()
	c.mu.Lock()
	if now.Sub(c.lastSweep) >= c.ttl {
		c.sweepLocked(now)
	}
	c.store[k] = cacheEntry{r: r, ts: now}
	c.mu.Unlock()
	return r, nil
}

func (c *Cache) sweepLocked(now time.Time) {
	for k, e := range c.store {
		if now.Sub(e.ts) > c.ttl {
			delete(c.store, k)
		}
	}
	c.lastSweep = now
}

// Len reports the number of stored routes, expired or not.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.store)
}
