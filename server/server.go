// Package server exposes an engine's runtime wrappers over a connect
// control service, with Prometheus metrics on /metrics.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tliron/commonlog"

	"github.com/chazu/hotpatch/dispatch"
	"github.com/chazu/hotpatch/patchstore"
)

var log = commonlog.GetLogger("hotpatch.server")

// PatchServer serves the control service for one engine.
type PatchServer struct {
	engine *dispatch.Engine
	store  *patchstore.Store
	mux    *http.ServeMux

	mu      sync.Mutex
	http    *http.Server
	stopped bool
}

// ServerOption configures a PatchServer.
type ServerOption func(*serverConfig)

type serverConfig struct {
	store    *patchstore.Store
	gatherer prometheus.Gatherer
}

// WithStore journals persistent patches installed through the server.
func WithStore(store *patchstore.Store) ServerOption {
	return func(c *serverConfig) { c.store = store }
}

// WithRegistry serves the gatherer's metrics on /metrics. Without it no
// metrics endpoint is mounted.
func WithRegistry(g prometheus.Gatherer) ServerOption {
	return func(c *serverConfig) { c.gatherer = g }
}

// New creates a PatchServer for the given engine.
func New(e *dispatch.Engine, opts ...ServerOption) *PatchServer {
	cfg := &serverConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	s := &PatchServer{
		engine: e,
		store:  cfg.store,
		mux:    http.NewServeMux(),
	}

	path, handler := NewPatchServiceHandler(NewPatchService(e, cfg.store))
	s.mux.Handle(path, handler)
	if cfg.gatherer != nil {
		s.mux.Handle("/metrics", promhttp.HandlerFor(cfg.gatherer, promhttp.HandlerOpts{}))
	}
	return s
}

// Handler returns the server's HTTP handler, for mounting in an existing
// server or in tests.
func (s *PatchServer) Handler() http.Handler {
	return s.mux
}

// ListenAndServe starts the HTTP server on the given address and blocks
// until Stop is called or the listener fails. The address should be in the
// form "host:port" or ":port".
func (s *PatchServer) ListenAndServe(addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(l)
}

// Serve accepts connections on l until Stop is called. It returns nil
// after a clean Stop. A stopped server cannot serve again.
func (s *PatchServer) Serve(l net.Listener) error {
	srv := &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return l.Close()
	}
	s.http = srv
	s.mu.Unlock()

	addr := l.Addr().String()
	log.Noticef("hotpatch control service listening on %s", addr)
	log.Noticef("  Connect (CBOR): http://%s%s", addr, PatchServiceInstallProcedure)
	err := srv.Serve(l)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop shuts the HTTP server down, waiting up to five seconds for
// in-flight requests.
func (s *PatchServer) Stop() error {
	s.mu.Lock()
	srv := s.http
	s.http = nil
	s.stopped = true
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}
