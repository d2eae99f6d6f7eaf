package dispatch

import (
	"sync"
)

// GrowableBuffer is a thread-safe FIFO that doubles its capacity whenever it
// fills past 70%, so a slow consumer backs traffic up in memory instead of
// blocking the dispatch loop.
type GrowableBuffer[T any] struct {
	mu       sync.Mutex
	cond     *sync.Cond
	buf      []T
	head     int
	tail     int
	count    int
	capacity int
	closed   bool

	totalIn     int64
	totalOut    int64
	resizeCount int
}

// BufferStats is a point-in-time snapshot of one buffer.
type BufferStats struct {
	Depth    int
	Capacity int
	TotalIn  int64
	TotalOut int64
	Resizes  int
}

// NewGrowableBuffer creates a buffer with the given initial capacity.
func NewGrowableBuffer[T any](initialCapacity int) *GrowableBuffer[T] {
	if initialCapacity < 1 {
		initialCapacity = 1
	}
	b := &GrowableBuffer[T]{
		buf:      make([]T, initialCapacity),
		capacity: initialCapacity,
	}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Send appends an item, growing the buffer first if it is at 70% capacity.
// Returns false once the buffer is closed.
func (b *GrowableBuffer[T]) Send(item T) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return false
	}

	threshold := (b.capacity * 70) / 100
	if threshold < 1 {
		threshold = 1
	}
	if b.count+1 >= threshold {
		b.grow()
	}

	b.buf[b.tail] = item
	b.tail = (b.tail + 1) % b.capacity
	b.count++
	b.totalIn++

	b.cond.Signal()
	return true
}

// Receive blocks until an item is available or the buffer is closed and
// drained. The second return is false only in the closed-and-drained case.
func (b *GrowableBuffer[T]) Receive() (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for b.count == 0 && !b.closed {
		b.cond.Wait()
	}

	if b.count == 0 {
		var zero T
		return zero, false
	}
	return b.popLocked(), true
}

// TryReceive returns an item without blocking, or false if none is queued.
func (b *GrowableBuffer[T]) TryReceive() (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == 0 {
		var zero T
		return zero, false
	}
	return b.popLocked(), true
}

func (b *GrowableBuffer[T]) popLocked() T {
	item := b.buf[b.head]
	var zero T
	b.buf[b.head] = zero // release the reference
	b.head = (b.head + 1) % b.capacity
	b.count--
	b.totalOut++
	return item
}

// Close marks the buffer closed. Senders are refused; receivers drain what
// remains, then get the closed signal. Idempotent.
func (b *GrowableBuffer[T]) Close() {
	b.mu.Lock()
	b.closed = true
	b.cond.Broadcast()
	b.mu.Unlock()
}

// Len returns the number of queued items.
func (b *GrowableBuffer[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Stats returns a snapshot of the buffer counters.
func (b *GrowableBuffer[T]) Stats() BufferStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BufferStats{
		Depth:    b.count,
		Capacity: b.capacity,
		TotalIn:  b.totalIn,
		TotalOut: b.totalOut,
		Resizes:  b.resizeCount,
	}
}

// grow doubles the capacity, unwrapping the ring into the new slice.
// Caller holds b.mu.
func (b *GrowableBuffer[T]) grow() {
	newCap := b.capacity * 2
	newBuf := make([]T, newCap)

	for i := 0; i < b.count; i++ {
		newBuf[i] = b.buf[(b.head+i)%b.capacity]
	}

	b.buf = newBuf
	b.head = 0
	b.tail = b.count
	b.capacity = newCap
	b.resizeCount++
}
