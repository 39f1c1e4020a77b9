package frames

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testFrame builds a tiny valid frame whose first pixel byte carries a
// sequence tag, so tests can tell frames apart after buffering.
func testFrame(tag byte) Frame {
	f := New(make([]byte, 2*2*Channels), 2, 2)
	f.Pixels[0] = tag
	return f
}

func TestBufferBound(t *testing.T) {
	const capacity = 3
	b := NewBuffer(capacity)

	for i := 0; i < capacity+5; i++ {
		b.Push(testFrame(byte(i + 1)))
		assert.LessOrEqual(t, b.Len(), capacity,
			"length must never exceed capacity")
	}
	assert.Equal(t, capacity, b.Len())
	assert.Equal(t, uint64(5), b.Drops())
}

func TestBufferDropsOldest(t *testing.T) {
	b := NewBuffer(3)

	// Push 5 tagged frames into a capacity-3 buffer: 1 and 2 must be
	// evicted, 3..5 retained in original relative order.
	for i := 1; i <= 5; i++ {
		b.Push(testFrame(byte(i)))
	}

	for _, want := range []byte{3, 4, 5} {
		f, ok := b.Pop()
		require.True(t, ok)
		assert.Equal(t, want, f.Pixels[0])
	}
	_, ok := b.Pop()
	assert.False(t, ok, "buffer should be empty after draining")
}

func TestBufferPopEmpty(t *testing.T) {
	b := NewBuffer(2)
	_, ok := b.Pop()
	assert.False(t, ok)
	assert.Zero(t, b.Drops())
}

func TestBufferFIFOInterleaved(t *testing.T) {
	b := NewBuffer(4)
	b.Push(testFrame(1))
	b.Push(testFrame(2))

	f, ok := b.Pop()
	require.True(t, ok)
	assert.Equal(t, byte(1), f.Pixels[0])

	b.Push(testFrame(3))
	f, ok = b.Pop()
	require.True(t, ok)
	assert.Equal(t, byte(2), f.Pixels[0])
}

func TestBufferClear(t *testing.T) {
	b := NewBuffer(2)
	b.Push(testFrame(1))
	b.Push(testFrame(2))
	b.Clear()
	assert.Zero(t, b.Len())
}

func TestBufferDefaultCapacity(t *testing.T) {
	b := NewBuffer(0)
	assert.Equal(t, DefaultBufferCapacity, b.Capacity())
}
