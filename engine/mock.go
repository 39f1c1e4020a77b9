package engine

import (
	"sync"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// Candidate is one scripted raw detection a Mock emits, expressed in
// normalized model-input space like the real detector output.
type Candidate struct {
	ClassID int
	Score   float32
	// CX, CY, W, H in [0,1] of the model input canvas.
	CX, CY, W, H float32
}

// Mock is a scripted engine for tests and the demo CLI. Every Predict
// call emits the configured candidates; Err, when set, makes Predict
// fail instead.
type Mock struct {
	mu         sync.Mutex
	classes    int
	inputSize  int
	candidates []Candidate
	err        error
	calls      int
}

// NewMock creates a mock with the given class count over a 640x640
// input.
func NewMock(classes int) *Mock {
	if classes <= 0 {
		classes = 80
	}
	return &Mock{classes: classes, inputSize: 640}
}

// WithInputSize changes the square model input the mock advertises.
func (m *Mock) WithInputSize(n int) *Mock {
	if n > 0 {
		m.inputSize = n
	}
	return m
}

// Emit replaces the scripted candidates.
func (m *Mock) Emit(candidates ...Candidate) *Mock {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.candidates = candidates
	return m
}

// FailWith makes subsequent Predict calls return err (nil clears).
func (m *Mock) FailWith(err error) *Mock {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// Calls returns how many Predict calls completed or failed.
func (m *Mock) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// InputShape implements Engine.
func (m *Mock) InputShape() tensor.Shape {
	return tensor.Shape{1, 3, m.inputSize, m.inputSize}
}

// OutputShape implements Engine.
func (m *Mock) OutputShape() tensor.Shape {
	return tensor.Shape{1, 4 + m.classes, m.boxes()}
}

// Predict implements Engine, building a [1, 4+classes, boxes] tensor
// in the transposed layout the decoder expects.
func (m *Mock) Predict(input *tensor.Dense) (*tensor.Dense, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	if input == nil {
		return nil, errors.New("mock engine: nil input")
	}

	boxes := m.boxes()
	attrs := 4 + m.classes
	data := make([]float32, attrs*boxes)
	for i, c := range m.candidates {
		data[0*boxes+i] = c.CX
		data[1*boxes+i] = c.CY
		data[2*boxes+i] = c.W
		data[3*boxes+i] = c.H
		if c.ClassID >= 0 && c.ClassID < m.classes {
			data[(4+c.ClassID)*boxes+i] = c.Score
		}
	}
	return tensor.New(
		tensor.WithShape(1, attrs, boxes),
		tensor.WithBacking(data),
	), nil
}

// Close implements Engine.
func (m *Mock) Close() error {
	return nil
}

func (m *Mock) boxes() int {
	if len(m.candidates) == 0 {
		// Keep a non-empty output so decoders exercise their empty-row
		// filtering instead of a zero-length tensor.
		return 1
	}
	return len(m.candidates)
}

var _ Engine = (*Mock)(nil)
