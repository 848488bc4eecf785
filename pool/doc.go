// Package pool
// Author: momentics <momentics@gmail.com>
//
// Allocation recycling for the network layer: a typed object pool used for
// datagrams and a size-classed byte pool used for receive buffers.
package pool
