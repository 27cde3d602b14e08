package dispatch

import (
	"sort"
	"sync"
)

type wrapperKey struct {
	namespace string
	method    string
	phase     Phase
}

// Installed describes one wrapper in a WrapperStore snapshot.
type Installed struct {
	Namespace string
	Method    string
	Phase     Phase
	Wrapper   Wrapper
}

// WrapperStore holds wrappers installed at runtime, keyed by
// (namespace, method, phase). Before and none wrappers stay until
// uninstalled; after wrappers are removed by the first PopIfAfter.
type WrapperStore struct {
	mu       sync.RWMutex
	wrappers map[wrapperKey]Wrapper
	onChange func(n int)
}

// NewWrapperStore creates an empty store.
func NewWrapperStore() *WrapperStore {
	return &WrapperStore{
		wrappers: make(map[wrapperKey]Wrapper),
	}
}

// Install adds or replaces the wrapper at (namespace, method, phase).
func (s *WrapperStore) Install(namespace, method string, w Wrapper, phase Phase) error {
	switch {
	case namespace == "":
		return &ConfigurationError{Op: "install wrapper", Err: ErrEmptyNamespace}
	case method == "":
		return &ConfigurationError{Op: "install wrapper " + namespace, Err: ErrEmptyMethod}
	case !phase.Valid():
		return &ConfigurationError{Op: "install wrapper " + namespace + "." + method, Err: ErrInvalidPhase}
	}
	w, ok := normalizeWrapper(w)
	if !ok {
		return &ConfigurationError{Op: "install wrapper " + namespace + "." + method, Err: ErrNilWrapper}
	}

	s.mu.Lock()
	s.wrappers[wrapperKey{namespace, method, phase}] = w
	n := len(s.wrappers)
	s.mu.Unlock()
	s.changed(n)
	return nil
}

func normalizeWrapper(w Wrapper) (Wrapper, bool) {
	switch v := w.(type) {
	case ValueWrapper:
		return v, true
	case *ValueWrapper:
		if v == nil {
			return nil, false
		}
		return *v, true
	case BehaviorWrapper:
		return v, v.Behavior != nil
	case *BehaviorWrapper:
		if v == nil || v.Behavior == nil {
			return nil, false
		}
		return *v, true
	}
	return nil, false
}

// Peek returns the wrapper at (namespace, method, phase) without removing it.
func (s *WrapperStore) Peek(namespace, method string, phase Phase) (Wrapper, bool) {
	s.mu.RLock()
	w, ok := s.wrappers[wrapperKey{namespace, method, phase}]
	s.mu.RUnlock()
	return w, ok
}

// PopIfAfter removes and returns the after-phase wrapper for
// (namespace, method). Of any number of concurrent callers exactly one
// receives it.
func (s *WrapperStore) PopIfAfter(namespace, method string) (Wrapper, bool) {
	key := wrapperKey{namespace, method, PhaseAfter}
	s.mu.Lock()
	w, ok := s.wrappers[key]
	if ok {
		delete(s.wrappers, key)
	}
	n := len(s.wrappers)
	s.mu.Unlock()
	if ok {
		s.changed(n)
	}
	return w, ok
}

// Uninstall removes the wrapper at (namespace, method, phase) and reports
// whether one was installed.
func (s *WrapperStore) Uninstall(namespace, method string, phase Phase) bool {
	key := wrapperKey{namespace, method, phase}
	s.mu.Lock()
	_, ok := s.wrappers[key]
	delete(s.wrappers, key)
	n := len(s.wrappers)
	s.mu.Unlock()
	if ok {
		s.changed(n)
	}
	return ok
}

// List returns a snapshot sorted by namespace, method and phase.
func (s *WrapperStore) List() []Installed {
	s.mu.RLock()
	out := make([]Installed, 0, len(s.wrappers))
	for k, w := range s.wrappers {
		out = append(out, Installed{Namespace: k.namespace, Method: k.method, Phase: k.phase, Wrapper: w})
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Namespace != b.Namespace {
			return a.Namespace < b.Namespace
		}
		if a.Method != b.Method {
			return a.Method < b.Method
		}
		return a.Phase < b.Phase
	})
	return out
}

// Len returns the number of installed wrappers.
func (s *WrapperStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.wrappers)
}

// Clear removes every wrapper.
func (s *WrapperStore) Clear() {
	s.mu.Lock()
	s.wrappers = make(map[wrapperKey]Wrapper)
	s.mu.Unlock()
	s.changed(0)
}

func (s *WrapperStore) changed(n int) {
	if s.onChange != nil {
		s.onChange(n)
	}
}
