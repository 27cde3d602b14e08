package dispatch

import (
	"errors"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// CacheStats reports cache activity.
type CacheStats struct {
	Entries int
	Hits    int64
	Misses  int64
	Loads   int64 // Calls that reached the loader or constructor
}

// RegistryCache lazily loads and caches one Registry per namespace.
//
// Concurrent misses on the same namespace share one load; every reader
// afterwards sees the same *Registry. Namespaces without a registry are
// cached too, so a hot path through uninstrumented code does not keep
// asking the loader.
type RegistryCache struct {
	loader  Loader
	metrics *Metrics

	mu      sync.RWMutex
	entries map[string]*Registry // nil value: loader reported not found
	flight  singleflight.Group

	hits   int64
	misses int64
	loads  int64
}

// NewRegistryCache creates a cache in front of loader. A nil loader makes
// every namespace not found.
func NewRegistryCache(loader Loader, metrics *Metrics) *RegistryCache {
	return &RegistryCache{
		loader:  loader,
		metrics: metrics,
		entries: make(map[string]*Registry),
	}
}

// GetOrLoad returns the registry for namespace. ErrRegistryNotFound is the
// expected answer for namespaces nothing was generated for; any other error
// comes from the loader and is not cached.
func (c *RegistryCache) GetOrLoad(namespace string) (*Registry, error) {
	c.mu.RLock()
	reg, ok := c.entries[namespace]
	c.mu.RUnlock()
	if ok {
		atomic.AddInt64(&c.hits, 1)
		c.metrics.cacheLookup("registry", true)
		if reg == nil {
			return nil, ErrRegistryNotFound
		}
		return reg, nil
	}

	atomic.AddInt64(&c.misses, 1)
	c.metrics.cacheLookup("registry", false)

	v, err, _ := c.flight.Do(namespace, func() (any, error) {
		// Double-check inside the flight: a previous flight may have
		// published while we were waiting to start this one.
		c.mu.RLock()
		reg, ok := c.entries[namespace]
		c.mu.RUnlock()
		if ok {
			return reg, nil
		}

		reg, err := c.load(namespace)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.entries[namespace] = reg
		c.mu.Unlock()
		return reg, nil
	})
	if err != nil {
		return nil, err
	}
	reg, _ = v.(*Registry)
	if reg == nil {
		return nil, ErrRegistryNotFound
	}
	return reg, nil
}

func (c *RegistryCache) load(namespace string) (*Registry, error) {
	if c.loader == nil {
		return nil, nil
	}
	atomic.AddInt64(&c.loads, 1)
	reg, err := c.loader.LoadRegistry(namespace)
	switch {
	case errors.Is(err, ErrRegistryNotFound):
		log.Debugf("no registry for namespace %s", namespace)
		return nil, nil
	case err != nil:
		return nil, err
	case reg == nil:
		log.Debugf("loader returned no registry for namespace %s", namespace)
		return nil, nil
	}
	log.Debugf("loaded registry %s with %d methods", namespace, reg.Len())
	return reg, nil
}

// Invalidate drops the cached entry for namespace.
func (c *RegistryCache) Invalidate(namespace string) {
	c.mu.Lock()
	delete(c.entries, namespace)
	c.mu.Unlock()
}

// Reset drops every cached entry.
func (c *RegistryCache) Reset() {
	c.mu.Lock()
	c.entries = make(map[string]*Registry)
	c.mu.Unlock()
}

// Stats returns cache counters.
func (c *RegistryCache) Stats() CacheStats {
	c.mu.RLock()
	n := len(c.entries)
	c.mu.RUnlock()
	return CacheStats{
		Entries: n,
		Hits:    atomic.LoadInt64(&c.hits),
		Misses:  atomic.LoadInt64(&c.misses),
		Loads:   atomic.LoadInt64(&c.loads),
	}
}
