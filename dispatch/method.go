package dispatch

import (
	"fmt"
	"reflect"
)

// Owner is the dispatch-target capability. Override holders opt in by
// declaring the marker method; the engine refuses to invoke anything on an
// instance that does not.
type Owner interface {
	DispatchTarget()
}

// MethodFunc is the signature of a generated override adapter. args[0] is
// always the receiver of the original call; the remaining entries are the
// original arguments in order.
type MethodFunc func(owner Owner, args []any) (any, error)

// MethodKey identifies one override inside a namespace. The phase is part of
// the key so before, after and replace overrides of the same method never
// collide.
type MethodKey struct {
	Name  string
	Phase Phase
}

func (k MethodKey) String() string {
	return k.Name + "@" + k.Phase.String()
}

// MethodDescriptor describes a generated override.
type MethodDescriptor struct {
	OwnerType  string   // Registered owner type hosting the override
	MethodName string   // Name of the override method on the owner
	Key        MethodKey
	ParamTypes []string // Types of the original arguments, receiver excluded
	Handle     MethodFunc
}

// Arity returns the number of original arguments the override expects.
func (d *MethodDescriptor) Arity() int {
	return len(d.ParamTypes)
}

func (d *MethodDescriptor) String() string {
	return fmt.Sprintf("%s.%s%v", d.OwnerType, d.MethodName, d.ParamTypes)
}

// OwnerType registers an override holder and its zero-argument constructor.
//
// New runs at most once per engine under a single-flight guard, so it must
// not dispatch into methods owned by the same type.
type OwnerType struct {
	Name string
	New  func() (any, error)
}

// Arg converts args[i] to T for use by generated adapters. A nil entry
// yields the zero value of T when T can hold nil.
func Arg[T any](args []any, i int) (T, error) {
	var zero T
	if i < 0 || i >= len(args) {
		return zero, fmt.Errorf("%w: index %d of %d", ErrArity, i, len(args))
	}
	v := args[i]
	if v == nil {
		if nilable(reflect.TypeFor[T]()) {
			return zero, nil
		}
		return zero, fmt.Errorf("%w: argument %d is nil, want %s", ErrArgType, i, reflect.TypeFor[T]())
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("%w: argument %d is %T, want %s", ErrArgType, i, v, reflect.TypeFor[T]())
	}
	return t, nil
}

func nilable(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Interface, reflect.Pointer, reflect.Slice, reflect.Map, reflect.Func, reflect.Chan:
		return true
	}
	return false
}
