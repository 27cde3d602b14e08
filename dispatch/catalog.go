package dispatch

import (
	"fmt"
	"sort"
	"sync"
)

// Loader is the contract generated code satisfies: it returns the complete
// registry for a namespace, or ErrRegistryNotFound.
type Loader interface {
	LoadRegistry(namespace string) (*Registry, error)
}

// OwnerSource resolves owner type names to their constructors.
type OwnerSource interface {
	LookupOwner(name string) (OwnerType, bool)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(namespace string) (*Registry, error)

func (f LoaderFunc) LoadRegistry(namespace string) (*Registry, error) { return f(namespace) }

// Catalog is the link-time registration table. Generated files add their
// owners and descriptors to it from init(); the engine reads it lazily
// through the Loader and OwnerSource interfaces.
type Catalog struct {
	mu      sync.RWMutex
	owners  map[string]OwnerType
	methods map[string][]MethodDescriptor
}

// DefaultCatalog is the catalog generated code registers into.
var DefaultCatalog = NewCatalog()

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		owners:  make(map[string]OwnerType),
		methods: make(map[string][]MethodDescriptor),
	}
}

// RegisterOwner adds an owner type constructor.
func (c *Catalog) RegisterOwner(ot OwnerType) error {
	if ot.Name == "" {
		return &ConfigurationError{Op: "register owner", Err: ErrEmptyOwnerType}
	}
	if ot.New == nil {
		return &ConfigurationError{Op: "register owner " + ot.Name, Err: fmt.Errorf("constructor is nil")}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.owners[ot.Name]; exists {
		return &ConfigurationError{Op: "register owner", Err: fmt.Errorf("%w: %s", ErrDuplicateOwner, ot.Name)}
	}
	c.owners[ot.Name] = ot
	log.Debugf("registered owner type %s", ot.Name)
	return nil
}

// MustRegisterOwner is RegisterOwner for generated init code.
func (c *Catalog) MustRegisterOwner(ot OwnerType) {
	if err := c.RegisterOwner(ot); err != nil {
		panic(err)
	}
}

// Add appends descriptors to a namespace. Duplicates are rejected here so
// that a bad build fails at startup rather than on first dispatch.
func (c *Catalog) Add(namespace string, descriptors ...MethodDescriptor) error {
	if namespace == "" {
		return &ConfigurationError{Op: "add descriptors", Err: ErrEmptyNamespace}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	existing := c.methods[namespace]
	seen := make(map[MethodKey]bool, len(existing)+len(descriptors))
	for _, d := range existing {
		seen[d.Key] = true
	}
	for i := range descriptors {
		d := &descriptors[i]
		if err := validateDescriptor(d); err != nil {
			return &ConfigurationError{Op: "add descriptors " + namespace, Err: err}
		}
		if seen[d.Key] {
			return &ConfigurationError{
				Op:  "add descriptors",
				Err: fmt.Errorf("%w: %s.%s", ErrDuplicateMethod, namespace, d.Key),
			}
		}
		seen[d.Key] = true
	}
	c.methods[namespace] = append(existing, descriptors...)
	log.Debugf("catalog namespace %s now has %d descriptors", namespace, len(c.methods[namespace]))
	return nil
}

// MustAdd is Add for generated init code.
func (c *Catalog) MustAdd(namespace string, descriptors ...MethodDescriptor) {
	if err := c.Add(namespace, descriptors...); err != nil {
		panic(err)
	}
}

// LoadRegistry builds a fresh immutable registry for namespace. Callers
// cache the result; see RegistryCache.
func (c *Catalog) LoadRegistry(namespace string) (*Registry, error) {
	c.mu.RLock()
	descriptors, ok := c.methods[namespace]
	if ok {
		descriptors = append([]MethodDescriptor(nil), descriptors...)
	}
	c.mu.RUnlock()
	if !ok {
		return nil, ErrRegistryNotFound
	}
	return NewRegistry(namespace, descriptors...)
}

// LookupOwner implements OwnerSource.
func (c *Catalog) LookupOwner(name string) (OwnerType, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ot, ok := c.owners[name]
	return ot, ok
}

// Namespaces returns the registered namespaces in sorted order.
func (c *Catalog) Namespaces() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.methods))
	for ns := range c.methods {
		names = append(names, ns)
	}
	sort.Strings(names)
	return names
}
