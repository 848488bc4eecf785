// File: pool/bytepool.go
// Author: momentics <momentics@gmail.com>

package pool

import "sync"

// Size classes start at MinClassSize and double numClasses-1 times.
const (
	numClasses   = 7
	MinClassSize = 512
)

// BytePool hands out byte slices from power-of-two size classes.
// Requests above the largest class are served by make and never pooled.
type BytePool struct {
	classes [numClasses]sync.Pool
	sizes   [numClasses]int
}

// NewBytePool builds a pool with classes from MinClassSize to 32 KiB.
func NewBytePool() *BytePool {
	b := &BytePool{}
	size := MinClassSize
	for i := range b.classes {
		n := size
		b.sizes[i] = n
		b.classes[i].New = func() any {
			buf := make([]byte, n)
			return &buf
		}
		size *= 2
	}
	return b
}

// MaxClassSize is the largest capacity the pool recycles.
func (b *BytePool) MaxClassSize() int { return b.sizes[numClasses-1] }

// Get returns a slice of length n. Its capacity is the smallest class
// that fits n.
func (b *BytePool) Get(n int) []byte {
	if n < 0 {
		n = 0
	}
	for i, sz := range b.sizes {
		if n <= sz {
			buf := b.classes[i].Get().(*[]byte)
			return (*buf)[:n]
		}
	}
	return make([]byte, n)
}

// Put recycles buf. Slices whose capacity is not an exact class size
// were not produced by Get and are left to the GC.
func (b *BytePool) Put(buf []byte) {
	c := cap(buf)
	for i, sz := range b.sizes {
		if c == sz {
			buf = buf[:c]
			b.classes[i].Put(&buf)
			return
		}
	}
}
