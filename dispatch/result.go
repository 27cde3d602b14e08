package dispatch

import "fmt"

// Result is the outcome of a dispatch: either an override handled the call
// and produced a value (which may itself be nil), or nothing applied and the
// caller must run its original logic.
type Result struct {
	value   any
	handled bool
}

// NotHandled means no interception occurred.
var NotHandled = Result{}

// Handled wraps the authoritative value produced by an override.
func Handled(v any) Result {
	return Result{value: v, handled: true}
}

// IsHandled reports whether an override produced the result.
func (r Result) IsHandled() bool {
	return r.handled
}

// Value returns the handled value, or nil for NotHandled.
func (r Result) Value() any {
	return r.value
}

// Get returns the value and whether the call was handled.
func (r Result) Get() (any, bool) {
	return r.value, r.handled
}

func (r Result) String() string {
	if !r.handled {
		return "NotHandled"
	}
	return fmt.Sprintf("Handled(%v)", r.value)
}
