package images

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCalculateIoU(t *testing.T) {
	tests := []struct {
		name     string
		a, b     Rect
		expected float32
	}{
		{
			name:     "identical boxes",
			a:        Rect{X1: 0, Y1: 0, X2: 10, Y2: 10},
			b:        Rect{X1: 0, Y1: 0, X2: 10, Y2: 10},
			expected: 1.0,
		},
		{
			name: "quarter overlap",
			// intersection 25, union 100 + 100 - 25 = 175
			a:        Rect{X1: 0, Y1: 0, X2: 10, Y2: 10},
			b:        Rect{X1: 5, Y1: 5, X2: 15, Y2: 15},
			expected: 25.0 / 175.0,
		},
		{
			name:     "disjoint boxes",
			a:        Rect{X1: 0, Y1: 0, X2: 10, Y2: 10},
			b:        Rect{X1: 20, Y1: 20, X2: 30, Y2: 30},
			expected: 0,
		},
		{
			name:     "touching edges",
			a:        Rect{X1: 0, Y1: 0, X2: 10, Y2: 10},
			b:        Rect{X1: 10, Y1: 0, X2: 20, Y2: 10},
			expected: 0,
		},
		{
			name:     "contained box",
			a:        Rect{X1: 0, Y1: 0, X2: 10, Y2: 10},
			b:        Rect{X1: 2, Y1: 2, X2: 8, Y2: 8},
			expected: 36.0 / 100.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, CalculateIoU(tt.a, tt.b), 1e-6)
			assert.InDelta(t, tt.expected, CalculateIoU(tt.b, tt.a), 1e-6,
				"IoU should be symmetric")
		})
	}
}

func TestCalculateIoUDegenerate(t *testing.T) {
	valid := Rect{X1: 0, Y1: 0, X2: 10, Y2: 10}

	zeroArea := Rect{X1: 5, Y1: 5, X2: 5, Y2: 15}
	assert.Zero(t, CalculateIoU(valid, zeroArea))

	inverted := Rect{X1: 10, Y1: 10, X2: 0, Y2: 0}
	assert.Zero(t, CalculateIoU(valid, inverted))

	nan := float32(math.NaN())
	withNaN := Rect{X1: nan, Y1: 0, X2: 10, Y2: 10}
	got := CalculateIoU(valid, withNaN)
	assert.Zero(t, got, "NaN coordinates must not leak into IoU results")
}

func TestRectValid(t *testing.T) {
	assert.True(t, Rect{X1: 0, Y1: 0, X2: 1, Y2: 1}.Valid())
	assert.False(t, Rect{X1: 0, Y1: 0, X2: 0, Y2: 1}.Valid())
	assert.False(t, Rect{X1: 0, Y1: 0, X2: float32(math.Inf(1)), Y2: 1}.Valid())
}
