package dispatch

import (
	"errors"
	"fmt"
)

var (
	// ErrRegistryNotFound indicates no generated registry exists for a namespace.
	ErrRegistryNotFound = errors.New("registry not found")
	// ErrDescriptorNotFound indicates a registry has no entry for a method key.
	ErrDescriptorNotFound = errors.New("method descriptor not found")
	// ErrNotDispatchTarget indicates an owner instance lacks the Owner capability.
	ErrNotDispatchTarget = errors.New("owner is not a dispatch target")
	// ErrOwnerNotRegistered indicates no constructor is registered for an owner type.
	ErrOwnerNotRegistered = errors.New("owner type is not registered")
	// ErrArity indicates a call supplied the wrong number of arguments.
	ErrArity = errors.New("argument count mismatch")
	// ErrArgType indicates an argument could not be converted to the parameter type.
	ErrArgType = errors.New("argument type mismatch")
	// ErrNilHandle indicates a descriptor was registered without a handle.
	ErrNilHandle = errors.New("method handle is nil")
	// ErrEmptyNamespace indicates a missing namespace.
	ErrEmptyNamespace = errors.New("namespace is required")
	// ErrEmptyMethod indicates a missing method key.
	ErrEmptyMethod = errors.New("method key is required")
	// ErrEmptyOwnerType indicates a missing owner type name.
	ErrEmptyOwnerType = errors.New("owner type is required")
	// ErrNilWrapper indicates an install without a wrapper.
	ErrNilWrapper = errors.New("wrapper is required")
	// ErrInvalidPhase indicates a phase outside before/after/none.
	ErrInvalidPhase = errors.New("invalid phase")
	// ErrDuplicateMethod indicates two descriptors share a namespace, method and phase.
	ErrDuplicateMethod = errors.New("duplicate method definition")
	// ErrReentrantConstruction indicates an owner constructor reached its own owner type.
	ErrReentrantConstruction = errors.New("owner constructor re-entered its own type")
	// ErrDuplicateOwner indicates an owner type was registered twice.
	ErrDuplicateOwner = errors.New("owner type already registered")
)

// ConfigurationError reports invalid input supplied when installing wrappers
// or building registries. Dispatch itself never returns it: empty keys there
// are a silent no-op.
type ConfigurationError struct {
	Op  string
	Err error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// ConstructionError reports that an owner singleton (or a registry) could
// not be built.
type ConstructionError struct {
	OwnerType string
	Err       error
}

func (e *ConstructionError) Error() string {
	return fmt.Sprintf("constructing %s: %v", e.OwnerType, e.Err)
}

func (e *ConstructionError) Unwrap() error { return e.Err }

// InvocationError reports that override code was found but failed: wrong
// arity, a bad argument, an error returned by the handle or a panic inside it.
type InvocationError struct {
	Namespace string
	Method    string
	Phase     Phase
	Err       error
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("invoking %s.%s (%s): %v", e.Namespace, e.Method, e.Phase, e.Err)
}

func (e *InvocationError) Unwrap() error { return e.Err }

// DispatchError is the only error Dispatch returns. It wraps either a
// *ConstructionError or an *InvocationError.
type DispatchError struct {
	Namespace string
	Method    string
	Phase     Phase
	Err       error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch %s.%s (%s): %v", e.Namespace, e.Method, e.Phase, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// panicError turns a recovered panic value into an error.
func panicError(r any) error {
	if err, ok := r.(error); ok {
		return fmt.Errorf("panic: %w", err)
	}
	return fmt.Errorf("panic: %v", r)
}
