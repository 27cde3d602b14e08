package dispatch

// Wrapper is an override installed at runtime. It is either a ValueWrapper
// or a BehaviorWrapper.
type Wrapper interface {
	isWrapper()
}

// ValueWrapper short-circuits dispatch with a fixed value.
type ValueWrapper struct {
	Value any
}

func (ValueWrapper) isWrapper() {}

// BehaviorWrapper runs callbacks. At the before and after phases the
// callback only has side effects and the original logic still runs; at the
// none phase Replace produces the final result.
type BehaviorWrapper struct {
	Behavior Behavior
}

func (BehaviorWrapper) isWrapper() {}

// Behavior receives the full argument vector: args[0] is the original
// receiver. Before and After may mutate args; the engine copies the changes
// back into the caller's argument slice.
type Behavior interface {
	Before(args []any) error
	After(args []any) error
	Replace(args []any) (any, error)
}

// BehaviorFuncs adapts optional functions to Behavior. Missing callbacks do
// nothing; a missing ReplaceFunc returns nil.
type BehaviorFuncs struct {
	BeforeFunc  func(args []any) error
	AfterFunc   func(args []any) error
	ReplaceFunc func(args []any) (any, error)
}

func (b BehaviorFuncs) Before(args []any) error {
	if b.BeforeFunc == nil {
		return nil
	}
	return b.BeforeFunc(args)
}

func (b BehaviorFuncs) After(args []any) error {
	if b.AfterFunc == nil {
		return nil
	}
	return b.AfterFunc(args)
}

func (b BehaviorFuncs) Replace(args []any) (any, error) {
	if b.ReplaceFunc == nil {
		return nil, nil
	}
	return b.ReplaceFunc(args)
}

// Value is shorthand for ValueWrapper{Value: v}.
func Value(v any) Wrapper {
	return ValueWrapper{Value: v}
}

// Behave is shorthand for BehaviorWrapper{Behavior: b}.
func Behave(b Behavior) Wrapper {
	return BehaviorWrapper{Behavior: b}
}
