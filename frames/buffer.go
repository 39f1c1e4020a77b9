package frames

import "sync"

// DefaultBufferCapacity bounds the backlog between capture and
// detection when the caller does not choose one.
const DefaultBufferCapacity = 10

// Buffer is a bounded FIFO of frames shared between the capture
// producer and the detection worker. Push never blocks: when the
// buffer is full the oldest frame is discarded, so under sustained
// backlog the newest frames win. Pop is non-blocking; the worker pairs
// it with a bounded wait so stop requests are observed promptly.
type Buffer struct {
	mu       sync.Mutex
	frames   []Frame
	capacity int
	drops    uint64
}

// NewBuffer creates a buffer holding at most capacity frames.
// Non-positive capacities fall back to DefaultBufferCapacity.
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultBufferCapacity
	}
	return &Buffer{
		frames:   make([]Frame, 0, capacity),
		capacity: capacity,
	}
}

// Push appends a frame, evicting the oldest entry first when full.
func (b *Buffer) Push(f Frame) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.frames) == b.capacity {
		// Drop-oldest policy: recency beats completeness here.
		copy(b.frames, b.frames[1:])
		b.frames = b.frames[:len(b.frames)-1]
		b.drops++
	}
	b.frames = append(b.frames, f)
}

// Pop removes and returns the oldest frame, or ok=false when empty.
func (b *Buffer) Pop() (Frame, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.frames) == 0 {
		return Frame{}, false
	}
	f := b.frames[0]
	copy(b.frames, b.frames[1:])
	b.frames[len(b.frames)-1] = Frame{}
	b.frames = b.frames[:len(b.frames)-1]
	return f, true
}

// Len returns the number of buffered frames.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.frames)
}

// Capacity returns the configured bound.
func (b *Buffer) Capacity() int {
	return b.capacity
}

// Drops returns the number of frames discarded by the drop-oldest
// policy since creation. Dropped frames are not errors; the counter
// exists for health reporting.
func (b *Buffer) Drops() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.drops
}

// Clear discards all buffered frames.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.frames = b.frames[:0]
}
