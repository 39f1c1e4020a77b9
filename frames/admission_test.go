package frames

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAdmissionEveryKth(t *testing.T) {
	p := NewAdmissionPolicy(3)

	var admitted []int
	for i := 1; i <= 10; i++ {
		if p.Admit() {
			admitted = append(admitted, i)
		}
	}
	// 1-indexed convention: with skip=3 the 3rd, 6th and 9th frames
	// pass.
	assert.Equal(t, []int{3, 6, 9}, admitted)
	assert.Equal(t, uint64(10), p.Seen())
}

func TestAdmissionSkipOne(t *testing.T) {
	p := NewAdmissionPolicy(1)
	for i := 0; i < 5; i++ {
		assert.True(t, p.Admit())
	}
}

func TestAdmissionClampsInvalidSkip(t *testing.T) {
	p := NewAdmissionPolicy(0)
	assert.True(t, p.Admit(), "skip below 1 behaves as skip=1")
}
