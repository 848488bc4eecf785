// Package control
// Author: momentics <momentics@gmail.com>
//
// Configuration and runtime metrics for the network layer.
//
// Provides concurrent-safe state handling primitives including:
//   - Validated configuration snapshots with reload listeners
//   - Lock-free counters for I/O telemetry
package control
