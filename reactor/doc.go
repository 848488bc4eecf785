// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package reactor provides the one-shot readiness multiplexer used by the
// waiting object: epoll(7) on Linux and a poll(2)/WSAPoll set on every
// other platform.
package reactor
