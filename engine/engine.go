// Package engine - inference engine adapters behind one synchronous
// interface.
package engine

import "gorgonia.org/tensor"

// Engine is one loaded detection model. Predict runs a single forward
// pass and is called by exactly one goroutine at a time; adapters are
// not required to be reentrant. Construction fails when the model
// artifact cannot be loaded, and callers treat that as fatal.
type Engine interface {
	// InputShape is the batched NCHW shape Predict expects.
	InputShape() tensor.Shape
	// OutputShape is the raw output layout, [1, 4+classes, boxes] for
	// the detector family in use.
	OutputShape() tensor.Shape
	// Predict runs one forward pass. The returned tensor is owned by
	// the caller; adapters must not reuse its backing slice.
	Predict(input *tensor.Dense) (*tensor.Dense, error)
	Close() error
}
