package dispatch

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/tliron/commonlog"
)

// ErrClosed is returned when installing wrappers on a closed engine.
var ErrClosed = errors.New("engine is closed")

// Engine routes intercepted calls to runtime wrappers or generated
// overrides. The zero value is not usable; call New.
type Engine struct {
	name    string
	log     commonlog.Logger
	metrics *Metrics

	registries *RegistryCache
	owners     *OwnerCache
	wrappers   *WrapperStore

	closed atomic.Bool
}

// Stats is a snapshot of engine activity.
type Stats struct {
	Name       string
	Registries CacheStats
	Owners     CacheStats
	Wrappers   int
}

// New creates an engine. Without WithLoader, WithOwners or WithCatalog it
// reads DefaultCatalog.
func New(opts ...Option) *Engine {
	var cfg engineConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.loader == nil && cfg.owners == nil {
		cfg.loader = DefaultCatalog
		cfg.owners = DefaultCatalog
	}

	logName := "hotpatch.dispatch"
	if cfg.name != "" {
		logName += "." + cfg.name
	}

	e := &Engine{
		name:       cfg.name,
		log:        commonlog.GetLogger(logName),
		metrics:    cfg.metrics,
		registries: NewRegistryCache(cfg.loader, cfg.metrics),
		owners:     NewOwnerCache(cfg.owners, cfg.metrics),
		wrappers:   NewWrapperStore(),
	}
	e.wrappers.onChange = cfg.metrics.setWrappers
	return e
}

// Name returns the engine name given with WithName.
func (e *Engine) Name() string {
	return e.name
}

// Dispatch decides what happens to an intercepted call of method on target
// within namespace. A NotHandled result tells the call site to run its
// original logic; a Handled result carries the value to return instead.
//
// Absence of any override is never an error. The returned error is always
// a *DispatchError wrapping a *ConstructionError or *InvocationError.
//
// For before and after behaviors, changes the callback makes to the
// argument vector are copied back into args.
func (e *Engine) Dispatch(namespace string, phase Phase, method string, target any, args []any) (Result, error) {
	if namespace == "" || method == "" || e.closed.Load() {
		return NotHandled, nil
	}
	start := time.Now()

	full := make([]any, 0, len(args)+1)
	full = append(full, target)
	full = append(full, args...)

	var (
		w  Wrapper
		ok bool
	)
	if phase == PhaseAfter {
		w, ok = e.wrappers.PopIfAfter(namespace, method)
	} else {
		w, ok = e.wrappers.Peek(namespace, method, phase)
	}
	if ok {
		res, outcome, err := e.runWrapper(namespace, method, phase, w, full, args)
		if err != nil {
			e.metrics.observeDispatch(phase, OutcomeError, start)
			return NotHandled, e.fail(namespace, method, phase, err)
		}
		e.metrics.observeDispatch(phase, outcome, start)
		return res, nil
	}

	res, err := e.invokeRegistered(namespace, method, phase, full)
	switch {
	case err != nil:
		e.metrics.observeDispatch(phase, OutcomeError, start)
		return NotHandled, e.fail(namespace, method, phase, err)
	case res.IsHandled():
		e.metrics.observeDispatch(phase, OutcomeRegistry, start)
	default:
		e.metrics.observeDispatch(phase, OutcomeNotHandled, start)
	}
	return res, nil
}

func (e *Engine) runWrapper(namespace, method string, phase Phase, w Wrapper, full, args []any) (Result, string, error) {
	switch w := w.(type) {
	case ValueWrapper:
		return Handled(w.Value), OutcomeValue, nil

	case BehaviorWrapper:
		if phase == PhaseNone {
			v, err := protect(func() (any, error) { return w.Behavior.Replace(full) })
			if err != nil {
				return NotHandled, OutcomeError, &InvocationError{namespace, method, phase, err}
			}
			return Handled(v), OutcomeBehavior, nil
		}

		callback := w.Behavior.Before
		if phase == PhaseAfter {
			callback = w.Behavior.After
		}
		_, err := protect(func() (any, error) { return nil, callback(full) })
		if err != nil {
			return NotHandled, OutcomeError, &InvocationError{namespace, method, phase, err}
		}
		copy(args, full[1:])
		return NotHandled, OutcomeBehavior, nil
	}
	return NotHandled, OutcomeNotHandled, nil
}

func (e *Engine) invokeRegistered(namespace, method string, phase Phase, full []any) (Result, error) {
	reg, err := e.registries.GetOrLoad(namespace)
	if errors.Is(err, ErrRegistryNotFound) {
		return NotHandled, nil
	}
	if err != nil {
		return NotHandled, &ConstructionError{OwnerType: "registry " + namespace, Err: err}
	}

	desc, ok := reg.Find(method, phase)
	if !ok {
		return NotHandled, nil
	}

	owner, err := e.owners.GetOrCreate(desc.OwnerType)
	if errors.Is(err, ErrNotDispatchTarget) {
		e.log.Debugf("skipping %s.%s: %v", namespace, method, err)
		return NotHandled, nil
	}
	if err != nil {
		return NotHandled, err
	}

	if got, want := len(full)-1, desc.Arity(); got != want {
		return NotHandled, &InvocationError{namespace, method, phase,
			fmt.Errorf("%w: %s got %d arguments, want %d", ErrArity, desc, got, want)}
	}

	v, err := protect(func() (any, error) { return desc.Handle(owner, full) })
	if err != nil {
		return NotHandled, &InvocationError{namespace, method, phase, err}
	}
	return Handled(v), nil
}

func (e *Engine) fail(namespace, method string, phase Phase, err error) error {
	e.log.Errorf("dispatch %s.%s (%s) failed: %v", namespace, method, phase, err)
	return &DispatchError{Namespace: namespace, Method: method, Phase: phase, Err: err}
}

// protect runs fn and converts a panic into an error.
func protect(fn func() (any, error)) (v any, err error) {
	defer func() {
		if r := recover(); r != nil {
			v = nil
			err = panicError(r)
		}
	}()
	return fn()
}

// InstallWrapper installs w for (namespace, method, phase), replacing any
// wrapper already there.
func (e *Engine) InstallWrapper(namespace, method string, w Wrapper, phase Phase) error {
	if e.closed.Load() {
		return ErrClosed
	}
	if err := e.wrappers.Install(namespace, method, w, phase); err != nil {
		return err
	}
	e.log.Infof("installed %s wrapper for %s.%s", phase, namespace, method)
	return nil
}

// UninstallWrapper removes the wrapper at (namespace, method, phase) and
// reports whether one was installed.
func (e *Engine) UninstallWrapper(namespace, method string, phase Phase) bool {
	ok := e.wrappers.Uninstall(namespace, method, phase)
	if ok {
		e.log.Infof("uninstalled %s wrapper for %s.%s", phase, namespace, method)
	}
	return ok
}

// Wrappers exposes the engine's wrapper store.
func (e *Engine) Wrappers() *WrapperStore {
	return e.wrappers
}

// Stats returns a snapshot of cache and wrapper counters.
func (e *Engine) Stats() Stats {
	return Stats{
		Name:       e.name,
		Registries: e.registries.Stats(),
		Owners:     e.owners.Stats(),
		Wrappers:   e.wrappers.Len(),
	}
}

// Close drops all wrappers and cached registries and closes owner
// instances that implement io.Closer. Dispatch on a closed engine returns
// NotHandled. Close is idempotent.
func (e *Engine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	e.wrappers.Clear()
	e.registries.Reset()
	err := e.owners.Close()
	e.log.Debugf("engine closed")
	return err
}
