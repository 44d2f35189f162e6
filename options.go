package boundres

import (
	"context"
	"log/slog"
)

// ILogger is an interface for collecting cache hit/miss ratio and fetch outcomes.
type ILogger interface {
	// LogCacheHitRatio is called once per run: hit is true when the cached value was trusted.
	LogCacheHitRatio(ctx context.Context, name string, hit bool)
	// LogFetchResult is called after every fetch. err is nil on success.
	LogFetchResult(ctx context.Context, name string, err error)
}

// Option is a function for configuring a Mediator.
type Option func(*options)

type options struct {
	name   string
	logger ILogger
	log    *slog.Logger

	network Executor
	disk    Executor
}

// WithLogger sets a logger for metrics of cache hit ratio and fetch results.
// By default, the logger is nil.
func WithLogger(name string, logger ILogger) Option {
	return func(c *options) {
		c.name = name
		c.logger = logger
	}
}

// WithSlog sets a structured logger for state transitions. By default, nothing is logged.
func WithSlog(log *slog.Logger) Option {
	return func(c *options) {
		c.log = log
	}
}

// WithNetworkExecutor sets the executor the fetch runs on. By default, a goroutine per fetch.
func WithNetworkExecutor(e Executor) Option {
	return func(c *options) {
		c.network = e
	}
}

// WithDiskExecutor sets the executor the save hook runs on. By default, saves are serialized.
func WithDiskExecutor(e Executor) Option {
	return func(c *options) {
		c.disk = e
	}
}
