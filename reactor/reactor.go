// File: reactor/reactor.go
// Author: momentics <momentics@gmail.com>
//
// Platform-neutral event reactor interface for cross-platform IO multiplexing.

package reactor

import (
	"errors"
	"slices"
	"time"

	"github.com/momentics/hioload-net/api"
)

// ErrClosed is returned by every operation on a closed reactor.
var ErrClosed = errors.New("reactor: closed")

// Reactor multiplexes readiness of many descriptors in one system call.
//
// Registrations are one-shot: once Wait reports a descriptor it stays
// silent until it is armed again. Arm on an already armed descriptor
// replaces its interest mask.
type Reactor interface {
	// Arm registers fd for the events in mask.
	Arm(fd uintptr, mask api.EventMask) error

	// Disarm drops fd. Unknown descriptors are ignored.
	Disarm(fd uintptr) error

	// Wait blocks until at least one armed descriptor is ready or timeout
	// elapses (api.Infinite blocks). Ready descriptors are written to
	// events in ascending descriptor order. A signal interruption returns
	// zero events and no error.
	Wait(events []Event, timeout time.Duration) (int, error)

	// Close releases the OS resources of the reactor.
	Close() error
}

// Event is one readiness notification returned by Wait.
type Event struct {
	Fd   uintptr       // File descriptor or SOCKET handle.
	Mask api.EventMask // Observed events, a subset of the armed mask.
}

func sortEvents(events []Event) {
	slices.SortFunc(events, func(a, b Event) int {
		switch {
		case a.Fd < b.Fd:
			return -1
		case a.Fd > b.Fd:
			return 1
		}
		return 0
	})
}
