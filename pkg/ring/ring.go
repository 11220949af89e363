package ring

// Buffer is a fixed-capacity ring buffer retaining the most recent values.
// Pushing into a full buffer evicts the oldest value. It is not safe for
// concurrent use; callers own the synchronization.
type Buffer[T any] struct {
	data []T
	head int
	size int
}

// New creates a ring buffer with the given capacity. Capacity must be > 0.
func New[T any](capacity int) *Buffer[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Buffer[T]{data: make([]T, capacity)}
}

// Push appends a value, evicting the oldest one when full.
func (b *Buffer[T]) Push(v T) {
	tail := (b.head + b.size) % len(b.data)
	b.data[tail] = v
	if b.size < len(b.data) {
		b.size++
	} else {
		b.head = (b.head + 1) % len(b.data)
	}
}

// Len returns the number of values currently held.
func (b *Buffer[T]) Len() int {
	return b.size
}

// Cap returns the fixed capacity.
func (b *Buffer[T]) Cap() int {
	return len(b.data)
}

// First returns the oldest value. The second result is false when empty.
func (b *Buffer[T]) First() (T, bool) {
	var zero T
	if b.size == 0 {
		return zero, false
	}
	return b.data[b.head], true
}

// Last returns the most recent value. The second result is false when empty.
func (b *Buffer[T]) Last() (T, bool) {
	var zero T
	if b.size == 0 {
		return zero, false
	}
	return b.data[(b.head+b.size-1)%len(b.data)], true
}

// Pop removes and returns the oldest value. The second result is false
// when empty.
func (b *Buffer[T]) Pop() (T, bool) {
	var zero T
	if b.size == 0 {
		return zero, false
	}
	v := b.data[b.head]
	b.data[b.head] = zero
	b.head = (b.head + 1) % len(b.data)
	b.size--
	return v, true
}

// Values returns the held values oldest first.
func (b *Buffer[T]) Values() []T {
	out := make([]T, 0, b.size)
	for i := 0; i < b.size; i++ {
		out = append(out, b.data[(b.head+i)%len(b.data)])
	}
	return out
}

// Reset drops all held values without reallocating.
func (b *Buffer[T]) Reset() {
	b.head = 0
	b.size = 0
}
