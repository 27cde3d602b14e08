package dispatch

import "sync"

var (
	globalMu sync.Mutex
	global   *Engine
)

// Default returns the process-wide engine used by woven call sites that are
// not handed an engine explicitly. It is created over DefaultCatalog on
// first use unless InitGlobal installed one first.
func Default() *Engine {
	globalMu.Lock()
	defer globalMu.Unlock()
	if global == nil {
		global = New(WithCatalog(DefaultCatalog), WithName("default"))
	}
	return global
}

// InitGlobal replaces the process-wide engine and returns the previous one,
// which the caller is responsible for closing.
func InitGlobal(e *Engine) *Engine {
	globalMu.Lock()
	defer globalMu.Unlock()
	prev := global
	global = e
	return prev
}

// CloseGlobal closes and forgets the process-wide engine.
func CloseGlobal() error {
	globalMu.Lock()
	e := global
	global = nil
	globalMu.Unlock()
	if e == nil {
		return nil
	}
	return e.Close()
}

// ReleaseGlobal forgets the process-wide engine if it is e, so the next
// Default call builds a fresh one. It reports whether e was the global
// engine. e itself is not closed.
func ReleaseGlobal(e *Engine) bool {
	globalMu.Lock()
	defer globalMu.Unlock()
	if e == nil || global != e {
		return false
	}
	global = nil
	return true
}
