// Package agent assembles a dispatch engine, its patch journal and the
// control service from a manifest, for programs that embed hotpatch.
package agent

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/hotpatch/dispatch"
	"github.com/chazu/hotpatch/manifest"
	"github.com/chazu/hotpatch/patchstore"
	"github.com/chazu/hotpatch/server"
)

var log = commonlog.GetLogger("hotpatch.agent")

// Agent owns an engine and the infrastructure configured around it.
type Agent struct {
	manifest *manifest.Manifest
	engine   *dispatch.Engine
	registry *prometheus.Registry
	store    *patchstore.Store
	server   *server.PatchServer
	addr     net.Addr
	replayed int

	wg       sync.WaitGroup
	serveErr error
	closed   bool
	mu       sync.Mutex
}

// Option configures an Agent.
type Option func(*config)

type config struct {
	catalog  *dispatch.Catalog
	registry *prometheus.Registry
}

// WithCatalog makes the engine read c instead of dispatch.DefaultCatalog.
func WithCatalog(c *dispatch.Catalog) Option {
	return func(cfg *config) { cfg.catalog = c }
}

// WithRegistry registers engine metrics on reg instead of a fresh
// registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(cfg *config) { cfg.registry = reg }
}

// New builds an agent from m. A nil manifest means manifest.Default. The
// journal is opened and replayed and the control service started as m
// asks. Replay failures of individual patches are logged, not returned.
func New(m *manifest.Manifest, opts ...Option) (*Agent, error) {
	if m == nil {
		m = manifest.Default()
	}
	cfg := &config{catalog: dispatch.DefaultCatalog}
	for _, opt := range opts {
		opt(cfg)
	}

	a := &Agent{manifest: m}

	engineOpts := []dispatch.Option{
		dispatch.WithCatalog(cfg.catalog),
		dispatch.WithName(m.Engine.Name),
	}
	if m.Engine.Metrics {
		a.registry = cfg.registry
		if a.registry == nil {
			a.registry = prometheus.NewRegistry()
		}
		engineOpts = append(engineOpts, dispatch.WithMetrics(dispatch.NewMetrics(a.registry)))
	}
	a.engine = dispatch.New(engineOpts...)

	if path := m.StorePath(); path != "" {
		store, err := patchstore.Open(path)
		if err != nil {
			a.engine.Close()
			return nil, fmt.Errorf("opening patch journal: %w", err)
		}
		a.store = store

		if m.Store.Replay {
			n, err := store.Replay(context.Background(), a.engine)
			if err != nil {
				log.Warningf("replay: %v", err)
			}
			a.replayed = n
		}
	}

	if m.Server.Enabled {
		if err := a.startServer(); err != nil {
			a.Close()
			return nil, err
		}
	}

	log.Infof("agent %q ready (replayed %d patches)", m.Engine.Name, a.replayed)
	return a, nil
}

func (a *Agent) startServer() error {
	var opts []server.ServerOption
	if a.store != nil {
		opts = append(opts, server.WithStore(a.store))
	}
	if a.registry != nil {
		opts = append(opts, server.WithRegistry(a.registry))
	}
	a.server = server.New(a.engine, opts...)

	l, err := net.Listen("tcp", a.manifest.Server.Addr)
	if err != nil {
		return fmt.Errorf("control service: %w", err)
	}
	a.addr = l.Addr()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.server.Serve(l); err != nil {
			log.Errorf("control service: %v", err)
			a.mu.Lock()
			a.serveErr = err
			a.mu.Unlock()
		}
	}()
	return nil
}

// Engine returns the agent's engine.
func (a *Agent) Engine() *dispatch.Engine {
	return a.engine
}

// Manifest returns the manifest the agent was built from.
func (a *Agent) Manifest() *manifest.Manifest {
	return a.manifest
}

// Store returns the patch journal, or nil when none is configured.
func (a *Agent) Store() *patchstore.Store {
	return a.store
}

// Registry returns the metrics registry, or nil when metrics are off.
func (a *Agent) Registry() *prometheus.Registry {
	return a.registry
}

// Addr returns the control service's listen address, or nil when the
// service is not running.
func (a *Agent) Addr() net.Addr {
	return a.addr
}

// Replayed returns how many journaled patches were installed at startup.
func (a *Agent) Replayed() int {
	return a.replayed
}

// Close stops the control service, closes the engine and the journal.
// If the engine is the global engine it stops being the default.
// Close is idempotent.
func (a *Agent) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	a.mu.Unlock()

	var errs []error
	if a.server != nil {
		errs = append(errs, a.server.Stop())
		a.wg.Wait()
		a.mu.Lock()
		errs = append(errs, a.serveErr)
		a.mu.Unlock()
	}
	if dispatch.ReleaseGlobal(a.engine) {
		log.Info("released global engine")
	}
	errs = append(errs, a.engine.Close(), a.store.Close())
	return errors.Join(errs...)
}

// Start loads the manifest found from dir (or defaults), configures
// logging from it, builds an agent and installs its engine as the global
// engine. The previous global engine is closed.
func Start(dir string, opts ...Option) (*Agent, error) {
	m, err := manifest.LoadOrDefault(dir)
	if err != nil {
		return nil, err
	}

	var logPath *string
	if p := m.LogFilePath(); p != "" {
		logPath = &p
	}
	commonlog.Configure(m.Engine.Verbosity, logPath)

	a, err := New(m, opts...)
	if err != nil {
		return nil, err
	}
	if prev := dispatch.InitGlobal(a.engine); prev != nil && prev != a.engine {
		if err := prev.Close(); err != nil {
			log.Warningf("closing previous global engine: %v", err)
		}
	}
	return a, nil
}
