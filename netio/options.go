// File: netio/options.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package netio

import (
	"github.com/momentics/hioload-net/control"
	"go.uber.org/zap"
)

// Option customizes Services initialization.
type Option func(*Services)

// WithLogger sets the structured logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Services) {
		s.logger = l
	}
}

// WithMetrics shares a metrics registry between several bundles.
func WithMetrics(m *control.MetricsRegistry) Option {
	return func(s *Services) {
		s.metrics = m
	}
}

// WithConfig installs cfg. An invalid cfg falls back to DefaultConfig.
func WithConfig(cfg control.Config) Option {
	return func(s *Services) {
		s.config = control.NewConfigStore(cfg)
	}
}

// WithConfigStore shares a reloadable configuration store.
func WithConfigStore(cs *control.ConfigStore) Option {
	return func(s *Services) {
		s.config = cs
	}
}

// WithResolver overrides the name resolver.
func WithResolver(r *Resolver) Option {
	return func(s *Services) {
		s.resolver = r
	}
}
