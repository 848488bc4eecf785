// File: internal/transport/doc.go
// Package transport
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Platform adapter of hioload-net. Every OS socket call made by the library
// goes through this package: socket lifecycle, non-blocking connect/accept,
// recv/send, poll, raw socket-address encoding and the cross-thread wake
// channel. Exactly one adapter exists per OS family, strictly separated by
// build tags (unix/windows); everything above this boundary is portable.
//
// Descriptors cross the boundary as uintptr. Would-block and in-progress
// results are reported through IsWouldBlock / IsInProgress so that callers
// can treat them as control flow.

package transport
