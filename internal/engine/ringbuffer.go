package engine

import "sync/atomic"

// RingBuffer is a fixed-capacity single-producer/single-consumer sample
// buffer. Write never blocks and drops samples that do not fit; Read
// zero-fills any shortfall. Safe for exactly one writer goroutine and one
// reader goroutine.
type RingBuffer struct {
	buf  []float32
	mask uint64
	head atomic.Uint64 // next read index
	tail atomic.Uint64 // next write index
}

// NewRingBuffer creates a ring buffer holding at least capacity samples.
// Capacity is rounded up to the next power of two.
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity < 1 {
		capacity = 1
	}
	size := 1
	for size < capacity {
		size <<= 1
	}
	return &RingBuffer{
		buf:  make([]float32, size),
		mask: uint64(size - 1),
	}
}

// Cap returns the buffer capacity in samples.
func (r *RingBuffer) Cap() int {
	return len(r.buf)
}

// Len returns the number of samples currently buffered.
func (r *RingBuffer) Len() int {
	return int(r.tail.Load() - r.head.Load())
}

// Write copies samples into the buffer and returns how many were accepted.
// Overflow is dropped, never blocked on.
func (r *RingBuffer) Write(samples []float32) int {
	head := r.head.Load()
	tail := r.tail.Load()

	free := len(r.buf) - int(tail-head)
	n := len(samples)
	if n > free {
		n = free
	}

	for i := 0; i < n; i++ {
		r.buf[(tail+uint64(i))&r.mask] = samples[i]
	}
	r.tail.Store(tail + uint64(n))
	return n
}

// Read fills out from the buffer and returns how many samples were real
// data. Any shortfall at the end of out is zero-filled.
func (r *RingBuffer) Read(out []float32) int {
	head := r.head.Load()
	tail := r.tail.Load()

	avail := int(tail - head)
	n := len(out)
	if n > avail {
		n = avail
	}

	for i := 0; i < n; i++ {
		out[i] = r.buf[(head+uint64(i))&r.mask]
	}
	for i := n; i < len(out); i++ {
		out[i] = 0
	}
	r.head.Store(head + uint64(n))
	return n
}

// Drain discards all buffered samples. Safe to call from the reader side.
func (r *RingBuffer) Drain() {
	r.head.Store(r.tail.Load())
}
