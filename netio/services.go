// File: netio/services.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Explicit dependency bundle handed to every component of the package.

package netio

import (
	"github.com/momentics/hioload-net/control"
	"github.com/momentics/hioload-net/pool"
	"go.uber.org/zap"
)

// Metric names recorded by the package.
const (
	MetricBytesRead        = "stream.bytes_read"
	MetricBytesWritten     = "stream.bytes_written"
	MetricAccepted         = "source.accepted"
	MetricConnected        = "source.connected"
	MetricConnectFailures  = "source.connect_failures"
	MetricDatagramsIn      = "datagram.received"
	MetricDatagramsOut     = "datagram.sent"
	MetricResolverHits     = "resolver.cache_hits"
	MetricResolverMisses   = "resolver.cache_misses"
	MetricWakeUps          = "waiting.wakeups"
	MetricRegistrationsHit = "waiting.fired"
)

// Services carries the logger, metrics, configuration and resolver shared
// by the sources, streams and waiting objects created from it. A nil
// *Services is valid and behaves like NewServices().
type Services struct {
	logger   *zap.Logger
	metrics  *control.MetricsRegistry
	config   *control.ConfigStore
	resolver *Resolver
	buffers  *pool.BytePool
}

// NewServices builds a service bundle. Unset dependencies get defaults:
// a no-op logger, a fresh metrics registry, DefaultConfig and a caching
// resolver sized from the configuration.
func NewServices(opts ...Option) *Services {
	s := &Services{}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.metrics == nil {
		s.metrics = control.NewMetricsRegistry()
	}
	if s.config == nil {
		s.config = control.NewConfigStore(control.DefaultConfig())
	}
	if s.resolver == nil {
		s.resolver = NewResolver(s.config.GetSnapshot().ResolverCacheSize, s.logger, s.metrics)
		s.config.OnReload(func(c control.Config) {
			s.resolver.resize(c.ResolverCacheSize)
		})
	}
	s.buffers = pool.NewBytePool()
	return s
}

func orDefault(s *Services) *Services {
	if s == nil {
		return NewServices()
	}
	return s
}

// Logger returns the structured logger.
func (s *Services) Logger() *zap.Logger {
	if s == nil || s.logger == nil {
		return zap.NewNop()
	}
	return s.logger
}

// Metrics returns the metrics registry.
func (s *Services) Metrics() *control.MetricsRegistry {
	if s == nil {
		return nil
	}
	return s.metrics
}

// Config returns the current configuration snapshot.
func (s *Services) Config() control.Config {
	if s == nil || s.config == nil {
		return control.DefaultConfig()
	}
	return s.config.GetSnapshot()
}

// ConfigStore exposes the store so callers can reload settings.
func (s *Services) ConfigStore() *control.ConfigStore {
	if s == nil {
		return nil
	}
	return s.config
}

// Resolver returns the name resolver.
func (s *Services) Resolver() *Resolver {
	if s == nil || s.resolver == nil {
		return NewResolver(0, nil, nil)
	}
	return s.resolver
}
