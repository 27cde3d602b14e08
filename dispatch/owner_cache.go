package dispatch

import (
	"errors"
	"fmt"
	"io"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// OwnerCache lazily constructs and caches one instance per owner type.
// Construction is single-flight per type so constructors with side effects
// run once even when many goroutines miss at the same time.
type OwnerCache struct {
	source  OwnerSource
	metrics *Metrics

	mu        sync.RWMutex
	instances map[string]any
	flight    singleflight.Group

	// constructing maps an owner type to the goroutine running its
	// constructor.
	constructing map[string]int64

	hits   int64
	misses int64
	loads  int64
}

// NewOwnerCache creates a cache that builds owners from source.
func NewOwnerCache(source OwnerSource, metrics *Metrics) *OwnerCache {
	return &OwnerCache{
		source:    source,
		metrics:      metrics,
		instances:    make(map[string]any),
		constructing: make(map[string]int64),
	}
}

// GetOrCreate returns the singleton for ownerType. It fails with a
// *ConstructionError when no constructor is registered or the constructor
// fails, and with ErrNotDispatchTarget when the instance does not declare
// the Owner capability. In the latter case the instance stays cached.
// A constructor that reaches its own owner type gets a *ConstructionError
// wrapping ErrReentrantConstruction.
func (c *OwnerCache) GetOrCreate(ownerType string) (Owner, error) {
	c.mu.RLock()
	inst, ok := c.instances[ownerType]
	c.mu.RUnlock()
	if ok {
		atomic.AddInt64(&c.hits, 1)
		c.metrics.cacheLookup("owner", true)
		return asOwner(ownerType, inst)
	}

	atomic.AddInt64(&c.misses, 1)
	c.metrics.cacheLookup("owner", false)

	gid := goroutineID()
	c.mu.RLock()
	builder, busy := c.constructing[ownerType]
	c.mu.RUnlock()
	if busy && builder == gid {
		return nil, &ConstructionError{OwnerType: ownerType, Err: ErrReentrantConstruction}
	}

	v, err, _ := c.flight.Do(ownerType, func() (any, error) {
		c.mu.Lock()
		inst, ok := c.instances[ownerType]
		if !ok {
			c.constructing[ownerType] = gid
		}
		c.mu.Unlock()
		if ok {
			return inst, nil
		}
		defer func() {
			c.mu.Lock()
			delete(c.constructing, ownerType)
			c.mu.Unlock()
		}()

		inst, err := c.construct(ownerType)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.instances[ownerType] = inst
		c.mu.Unlock()
		log.Debugf("constructed owner %s", ownerType)
		return inst, nil
	})
	if err != nil {
		return nil, err
	}
	return asOwner(ownerType, v)
}

func (c *OwnerCache) construct(ownerType string) (inst any, err error) {
	if c.source == nil {
		return nil, &ConstructionError{OwnerType: ownerType, Err: ErrOwnerNotRegistered}
	}
	ot, ok := c.source.LookupOwner(ownerType)
	if !ok || ot.New == nil {
		return nil, &ConstructionError{OwnerType: ownerType, Err: ErrOwnerNotRegistered}
	}

	atomic.AddInt64(&c.loads, 1)
	defer func() {
		if r := recover(); r != nil {
			inst = nil
			err = &ConstructionError{OwnerType: ownerType, Err: panicError(r)}
		}
	}()

	inst, err = ot.New()
	if err != nil {
		return nil, &ConstructionError{OwnerType: ownerType, Err: err}
	}
	if inst == nil {
		return nil, &ConstructionError{OwnerType: ownerType, Err: errors.New("constructor returned nil")}
	}
	return inst, nil
}

// goroutineID parses the current goroutine's id from its stack header,
// which starts with "goroutine <id> [".
func goroutineID() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	s := strings.TrimPrefix(string(buf[:n]), "goroutine ")
	if idx := strings.IndexByte(s, ' '); idx > 0 {
		s = s[:idx]
	}
	id, _ := strconv.ParseInt(s, 10, 64)
	return id
}

func asOwner(ownerType string, inst any) (Owner, error) {
	o, ok := inst.(Owner)
	if !ok {
		return nil, fmt.Errorf("%w: %s is %T", ErrNotDispatchTarget, ownerType, inst)
	}
	return o, nil
}

// Close releases every cached owner, closing those that implement io.Closer.
// The returned error joins all close failures.
func (c *OwnerCache) Close() error {
	c.mu.Lock()
	instances := c.instances
	c.instances = make(map[string]any)
	c.mu.Unlock()

	names := make([]string, 0, len(instances))
	for name := range instances {
		names = append(names, name)
	}
	sort.Strings(names)

	var errs []error
	for _, name := range names {
		if closer, ok := instances[name].(io.Closer); ok {
			if err := closer.Close(); err != nil {
				errs = append(errs, fmt.Errorf("closing owner %s: %w", name, err))
			}
		}
	}
	return errors.Join(errs...)
}

// Stats returns cache counters.
func (c *OwnerCache) Stats() CacheStats {
	c.mu.RLock()
	n := len(c.instances)
	c.mu.RUnlock()
	return CacheStats{
		Entries: n,
		Hits:    atomic.LoadInt64(&c.hits),
		Misses:  atomic.LoadInt64(&c.misses),
		Loads:   atomic.LoadInt64(&c.loads),
	}
}
