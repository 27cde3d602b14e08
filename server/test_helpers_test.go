package server

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"connectrpc.com/connect"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/chazu/hotpatch/dispatch"
	"github.com/chazu/hotpatch/patchstore"
	"github.com/chazu/hotpatch/patchwire"
)

// ---------------------------------------------------------------------------
// Shared test infrastructure for server package tests.
// ---------------------------------------------------------------------------

// testEnv bundles an engine with an optional journal and a running
// httptest server.
type testEnv struct {
	Engine   *dispatch.Engine
	Store    *patchstore.Store
	Registry *prometheus.Registry
	Server   *httptest.Server
	Client   *Client
}

// newTestEnv creates an isolated engine, journal and server. Everything is
// torn down when the test ends.
func newTestEnv(t *testing.T, journal bool) *testEnv {
	t.Helper()

	reg := prometheus.NewRegistry()
	e := dispatch.New(
		dispatch.WithCatalog(dispatch.NewCatalog()),
		dispatch.WithMetrics(dispatch.NewMetrics(reg)),
		dispatch.WithName("test"),
	)
	env := &testEnv{Engine: e, Registry: reg}

	opts := []ServerOption{WithRegistry(reg)}
	if journal {
		store, err := patchstore.Open(filepath.Join(t.TempDir(), "patches.db"))
		if err != nil {
			t.Fatalf("patchstore.Open: %v", err)
		}
		env.Store = store
		opts = append(opts, WithStore(store))
	}

	ps := New(e, opts...)
	env.Server = httptest.NewServer(ps.Handler())
	env.Client = NewClient(env.Server.Client(), env.Server.URL)

	t.Cleanup(func() {
		env.Server.Close()
		e.Close()
		env.Store.Close()
	})
	return env
}

// ---------------------------------------------------------------------------
// Request builder helpers
// ---------------------------------------------------------------------------

func connectReq[T any](msg *T) *connect.Request[T] {
	return connect.NewRequest(msg)
}

func bg() context.Context {
	return context.Background()
}

func mustPatch(t *testing.T, ns, method string, phase dispatch.Phase, v any) patchwire.Patch {
	t.Helper()
	p, err := patchwire.NewPatch(ns, method, phase, v)
	if err != nil {
		t.Fatal(err)
	}
	return p
}
