// Package metrics reports mediator cache hit ratio and fetch outcomes to Prometheus.
package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/n-r-w/boundres"
)

// Config configures the Prometheus metrics.
type Config struct {
	// Namespace is the metrics namespace (default: "boundres").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// Option configures the Prometheus metrics.
type Option func(*Config)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) Option {
	return func(c *Config) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) Option {
	return func(c *Config) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) Option {
	return func(c *Config) {
		c.ConstLabels = labels
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) Option {
	return func(c *Config) {
		c.Registry = registry
	}
}

func defaultConfig() Config {
	return Config{
		Namespace:   "boundres",
		Subsystem:   "",
		ConstLabels: nil,
		Registry:    prometheus.DefaultRegisterer,
	}
}

// Prometheus implements boundres.ILogger with Prometheus counters.
//
// Metrics collected:
//   - boundres_cache_lookups_total: runs by resource and result (hit, miss)
//   - boundres_fetches_total: fetches by resource and result (ok, error)
type Prometheus struct {
	lookups *prometheus.CounterVec
	fetches *prometheus.CounterVec
}

var _ boundres.ILogger = (*Prometheus)(nil)

// NewPrometheus registers the counters and returns the hook.
// Registering twice on the same registry panics, as with promauto.
func NewPrometheus(opts ...Option) *Prometheus {
	config := defaultConfig()
	for _, opt := range opts {
		opt(&config)
	}

	factory := promauto.With(config.Registry)

	return &Prometheus{
		lookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "cache_lookups_total",
			Help:        "Total number of resource loads by cache result",
			ConstLabels: config.ConstLabels,
		}, []string{"resource", "result"}),

		fetches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "fetches_total",
			Help:        "Total number of remote fetches by result",
			ConstLabels: config.ConstLabels,
		}, []string{"resource", "result"}),
	}
}

// LogCacheHitRatio implements boundres.ILogger.
func (p *Prometheus) LogCacheHitRatio(_ context.Context, name string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}

	p.lookups.WithLabelValues(name, result).Inc()
}

// LogFetchResult implements boundres.ILogger.
func (p *Prometheus) LogFetchResult(_ context.Context, name string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}

	p.fetches.WithLabelValues(name, result).Inc()
}
