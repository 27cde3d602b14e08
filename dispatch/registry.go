package dispatch

import (
	"fmt"
	"sort"
)

// Registry is the immutable table of generated overrides for one namespace.
// It is safe for concurrent use because nothing mutates it after NewRegistry
// returns.
type Registry struct {
	namespace string
	methods   map[MethodKey]*MethodDescriptor
}

// NewRegistry builds a registry from generator-supplied descriptors.
// Descriptors are copied; the caller may reuse the slice.
func NewRegistry(namespace string, descriptors ...MethodDescriptor) (*Registry, error) {
	if namespace == "" {
		return nil, &ConfigurationError{Op: "new registry", Err: ErrEmptyNamespace}
	}
	r := &Registry{
		namespace: namespace,
		methods:   make(map[MethodKey]*MethodDescriptor, len(descriptors)),
	}
	for i := range descriptors {
		d := descriptors[i]
		if err := validateDescriptor(&d); err != nil {
			return nil, &ConfigurationError{Op: "new registry " + namespace, Err: err}
		}
		if _, exists := r.methods[d.Key]; exists {
			return nil, &ConfigurationError{
				Op:  "new registry " + namespace,
				Err: fmt.Errorf("%w: %s.%s", ErrDuplicateMethod, namespace, d.Key),
			}
		}
		d.ParamTypes = append([]string(nil), d.ParamTypes...)
		r.methods[d.Key] = &d
	}
	return r, nil
}

func validateDescriptor(d *MethodDescriptor) error {
	switch {
	case d.Key.Name == "":
		return ErrEmptyMethod
	case !d.Key.Phase.Valid():
		return fmt.Errorf("%w: %s", ErrInvalidPhase, d.Key.Phase)
	case d.OwnerType == "":
		return fmt.Errorf("%w: %s", ErrEmptyOwnerType, d.Key)
	case d.Handle == nil:
		return fmt.Errorf("%w: %s", ErrNilHandle, d.Key)
	}
	return nil
}

// Namespace returns the namespace this registry serves.
func (r *Registry) Namespace() string {
	return r.namespace
}

// Find returns the descriptor for a method at a phase.
func (r *Registry) Find(name string, phase Phase) (*MethodDescriptor, bool) {
	d, ok := r.methods[MethodKey{Name: name, Phase: phase}]
	return d, ok
}

// Len returns the number of descriptors.
func (r *Registry) Len() int {
	return len(r.methods)
}

// Keys returns all method keys, sorted by name then phase.
func (r *Registry) Keys() []MethodKey {
	keys := make([]MethodKey, 0, len(r.methods))
	for k := range r.methods {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Name != keys[j].Name {
			return keys[i].Name < keys[j].Name
		}
		return keys[i].Phase < keys[j].Phase
	})
	return keys
}
