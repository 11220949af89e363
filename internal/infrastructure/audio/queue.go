package audio

import (
	"sync"

	"homestream/internal/core/domain"
	"homestream/internal/core/ports"
	"homestream/pkg/ring"
)

// DefaultQueueCap bounds a per-device queue. Each chunk carries a few
// seconds of audio, so a full queue is already well behind live; the
// oldest chunk is dropped rather than played that late.
const DefaultQueueCap = 16

// queue orders decoded chunks for one device and feeds them to the sink
// strictly one at a time. The next chunk starts only from the previous
// chunk's completion callback, so buffers never overlap and never leave
// a gap the queue itself introduced.
type queue struct {
	sink ports.AudioSink

	mu      sync.Mutex
	pending *ring.Buffer[[]float32]
	playing bool
	closed  bool
	dropped int64
}

func newQueue(sink ports.AudioSink, capacity int) *queue {
	if capacity <= 0 {
		capacity = DefaultQueueCap
	}
	return &queue{
		sink:    sink,
		pending: ring.New[[]float32](capacity),
	}
}

// enqueue accepts one decoded chunk. When the queue is full the oldest
// pending chunk is discarded so playback stays close to live.
func (q *queue) enqueue(samples []float32) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return domain.ErrQueueClosed
	}

	if !q.playing {
		q.playing = true
		q.mu.Unlock()
		if err := q.sink.Play(samples, q.next); err != nil {
			q.mu.Lock()
			q.playing = false
			q.mu.Unlock()
			return err
		}
		return nil
	}

	if q.pending.Len() == q.pending.Cap() {
		q.pending.Pop()
		q.dropped++
	}
	q.pending.Push(samples)
	q.mu.Unlock()
	return nil
}

// next runs when the sink finishes a buffer and starts the following one.
func (q *queue) next() {
	q.mu.Lock()
	if q.closed {
		q.playing = false
		q.mu.Unlock()
		return
	}
	samples, ok := q.pending.Pop()
	if !ok {
		q.playing = false
		q.mu.Unlock()
		return
	}
	q.mu.Unlock()

	if err := q.sink.Play(samples, q.next); err != nil {
		q.mu.Lock()
		q.playing = false
		q.mu.Unlock()
	}
}

func (q *queue) depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pending.Len()
}

func (q *queue) droppedCount() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// close discards pending chunks. The buffer currently on the device is
// allowed to finish; nothing further is started.
func (q *queue) close() {
	q.mu.Lock()
	q.closed = true
	q.pending.Reset()
	q.mu.Unlock()
}
