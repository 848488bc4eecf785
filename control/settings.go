// control/settings.go
// Author: momentics <momentics@gmail.com>
//
// Tunables of the network layer and their validation.

package control

import (
	"fmt"
	"time"
)

// Config holds the tunables shared by every component built from one
// set of network services.
type Config struct {
	// DefaultTimeout is applied to new resources. Negative means infinite.
	DefaultTimeout time.Duration

	// ConnectCandidates caps how many resolved records are raced by an
	// active stream source.
	ConnectCandidates int

	// ListenBacklog overrides the platform maximum when positive.
	ListenBacklog int

	// ResolverCacheSize is the number of cached resolutions; 0 disables caching.
	ResolverCacheSize int

	// DatagramPoolPrealloc seeds each datagram source's pool.
	DatagramPoolPrealloc int

	// MaxDatagramSize bounds a single received datagram.
	MaxDatagramSize int
}

// DefaultConfig returns the configuration used when none is supplied.
func DefaultConfig() Config {
	return Config{
		DefaultTimeout:       -1,
		ConnectCandidates:    4,
		ListenBacklog:        0,
		ResolverCacheSize:    128,
		DatagramPoolPrealloc: 0,
		MaxDatagramSize:      65535,
	}
}

func (c Config) Validate() []error {
	var errors []error

	if c.ConnectCandidates < 1 || c.ConnectCandidates > 64 {
		errors = append(errors, fmt.Errorf("connect candidates must be in [1, 64], got %d", c.ConnectCandidates))
	}

	if c.ListenBacklog < 0 {
		errors = append(errors, fmt.Errorf("listen backlog must not be negative"))
	}

	if c.ResolverCacheSize < 0 {
		errors = append(errors, fmt.Errorf("resolver cache size must not be negative"))
	}

	if c.DatagramPoolPrealloc < 0 {
		errors = append(errors, fmt.Errorf("datagram pool preallocation must not be negative"))
	}

	if c.MaxDatagramSize < 1 || c.MaxDatagramSize > 65535 {
		errors = append(errors, fmt.Errorf("max datagram size must be in [1, 65535], got %d", c.MaxDatagramSize))
	}

	return errors
}
