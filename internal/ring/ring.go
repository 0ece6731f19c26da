// Package ring provides a fixed-capacity FIFO buffer that evicts its oldest
// element when full.
package ring

// Buffer holds at most Cap() values in arrival order. It is not safe for
// concurrent use.
type Buffer[T any] struct {
	data  []T
	head  int
	count int
}

// New creates a buffer with the given capacity. Capacities below one are
// raised to one.
func New[T any](capacity int) *Buffer[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Buffer[T]{data: make([]T, capacity)}
}

// Push appends v, evicting the oldest value if the buffer is full. It
// reports whether a value was evicted.
func (b *Buffer[T]) Push(v T) bool {
	if b.count < len(b.data) {
		b.data[(b.head+b.count)%len(b.data)] = v
		b.count++
		return false
	}
	b.data[b.head] = v
	b.head = (b.head + 1) % len(b.data)
	return true
}

// Len returns the number of values held
func (b *Buffer[T]) Len() int {
	return b.count
}

// Cap returns the buffer capacity
func (b *Buffer[T]) Cap() int {
	return len(b.data)
}

// Last returns the most recently pushed value
func (b *Buffer[T]) Last() (T, bool) {
	var zero T
	if b.count == 0 {
		return zero, false
	}
	return b.data[(b.head+b.count-1)%len(b.data)], true
}

// Values returns a copy of the held values, oldest first
func (b *Buffer[T]) Values() []T {
	out := make([]T, b.count)
	for i := 0; i < b.count; i++ {
		out[i] = b.data[(b.head+i)%len(b.data)]
	}
	return out
}

// Clear drops all values but keeps the capacity
func (b *Buffer[T]) Clear() {
	var zero T
	for i := range b.data {
		b.data[i] = zero
	}
	b.head = 0
	b.count = 0
}

// Resize changes the capacity, keeping the most recent values that fit
func (b *Buffer[T]) Resize(capacity int) {
	if capacity < 1 {
		capacity = 1
	}
	vals := b.Values()
	if len(vals) > capacity {
		vals = vals[len(vals)-capacity:]
	}
	b.data = make([]T, capacity)
	copy(b.data, vals)
	b.head = 0
	b.count = len(vals)
}
