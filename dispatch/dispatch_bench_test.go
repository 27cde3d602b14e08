package dispatch

import (
	"sync/atomic"
	"testing"
)

// BenchmarkDispatchNotHandled measures the hot path through uninstrumented
// code: a negatively cached namespace.
func BenchmarkDispatchNotHandled(b *testing.B) {
	e := New(WithCatalog(NewCatalog()))
	defer e.Close()
	args := []any{1}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		e.Dispatch("ns.None", PhaseNone, "m", nil, args)
	}
}

// BenchmarkDispatchRegistry measures a generated override call with warm caches.
func BenchmarkDispatchRegistry(b *testing.B) {
	var constructed atomic.Int32
	e := New(WithCatalog(newTestCatalog(&constructed)))
	defer e.Close()
	args := []any{21}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		e.Dispatch("ns.Cls", PhaseNone, "bar", "target", args)
	}
}

// BenchmarkDispatchValueWrapper measures a runtime value patch.
func BenchmarkDispatchValueWrapper(b *testing.B) {
	e := New(WithCatalog(NewCatalog()))
	defer e.Close()
	e.InstallWrapper("ns.Cls", "bar", Value(1), PhaseNone)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		e.Dispatch("ns.Cls", PhaseNone, "bar", "target", nil)
	}
}

// BenchmarkDispatchParallel measures contention on the caches.
func BenchmarkDispatchParallel(b *testing.B) {
	var constructed atomic.Int32
	e := New(WithCatalog(newTestCatalog(&constructed)))
	defer e.Close()

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		args := []any{21}
		for pb.Next() {
			e.Dispatch("ns.Cls", PhaseNone, "bar", "target", args)
		}
	})
}
