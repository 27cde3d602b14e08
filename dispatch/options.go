package dispatch

// Option configures an Engine.
type Option func(*engineConfig)

type engineConfig struct {
	name    string
	loader  Loader
	owners  OwnerSource
	metrics *Metrics
}

// WithLoader sets where registries come from.
func WithLoader(l Loader) Option {
	return func(c *engineConfig) {
		c.loader = l
	}
}

// WithOwners sets where owner constructors come from.
func WithOwners(s OwnerSource) Option {
	return func(c *engineConfig) {
		c.owners = s
	}
}

// WithCatalog uses cat as both the Loader and the OwnerSource.
func WithCatalog(cat *Catalog) Option {
	return func(c *engineConfig) {
		c.loader = cat
		c.owners = cat
	}
}

// WithMetrics attaches Prometheus collectors.
func WithMetrics(m *Metrics) Option {
	return func(c *engineConfig) {
		c.metrics = m
	}
}

// WithName names the engine. The name appears in log output and Stats.
func WithName(name string) Option {
	return func(c *engineConfig) {
		c.name = name
	}
}
