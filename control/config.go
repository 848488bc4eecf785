// control/config.go
// Author: momentics <momentics@gmail.com>
//
// Thread-safe configuration store with dynamic update and hot-reload propagation.

package control

import (
	"errors"
	"sync"
)

// ConfigStore holds the current validated Config and notifies listeners
// when it is replaced.
type ConfigStore struct {
	mu        sync.RWMutex
	config    Config
	listeners []func(Config)
}

// NewConfigStore initializes a store with cfg, or DefaultConfig when cfg
// does not validate.
func NewConfigStore(cfg Config) *ConfigStore {
	if len(cfg.Validate()) != 0 {
		cfg = DefaultConfig()
	}
	return &ConfigStore{config: cfg}
}

// GetSnapshot returns a copy of the current configuration.
func (cs *ConfigStore) GetSnapshot() Config {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.config
}

// SetConfig validates cfg, swaps it in and dispatches reload listeners.
// An invalid cfg leaves the store untouched.
func (cs *ConfigStore) SetConfig(cfg Config) error {
	if errs := cfg.Validate(); len(errs) != 0 {
		return errors.Join(errs...)
	}
	cs.mu.Lock()
	cs.config = cfg
	listeners := append([]func(Config){}, cs.listeners...)
	cs.mu.Unlock()

	dispatchReload(listeners, cfg)
	return nil
}

// OnReload registers a listener hook called on config changes.
func (cs *ConfigStore) OnReload(fn func(Config)) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.listeners = append(cs.listeners, fn)
}

// dispatchReload invokes all listeners asynchronously.
func dispatchReload(listeners []func(Config), cfg Config) {
	for _, fn := range listeners {
		go fn(cfg)
	}
}
