// Package tflite - TensorFlow Lite inference engine for the
// integer-quantized edge model artifact.
package tflite

import (
	"os"

	"github.com/mattn/go-tflite"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"

	"github.com/wastesense/edge-ml/engine"
	"github.com/wastesense/edge-ml/preprocess"
)

// Config selects the model artifact and interpreter tuning.
type Config struct {
	// ModelPath points at the exported .tflite artifact.
	ModelPath string
	// Threads of 0 keeps the interpreter default.
	Threads int
}

// Engine runs forward passes through a TFLite interpreter. The
// interpreter is single-threaded from the caller's point of view:
// exactly one goroutine may call Predict at a time.
type Engine struct {
	model       *tflite.Model
	options     *tflite.InterpreterOptions
	interpreter *tflite.Interpreter
	inShape     tensor.Shape
	outShape    tensor.Shape
}

// New loads the artifact and allocates interpreter tensors. Failures
// are fatal for the detection worker.
func New(cfg Config) (*Engine, error) {
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, errors.Wrapf(err, "model artifact %s", cfg.ModelPath)
	}

	model := tflite.NewModelFromFile(cfg.ModelPath)
	if model == nil {
		return nil, errors.Errorf("load model %s", cfg.ModelPath)
	}

	options := tflite.NewInterpreterOptions()
	if options == nil {
		model.Delete()
		return nil, errors.New("create interpreter options")
	}
	if cfg.Threads > 0 {
		options.SetNumThread(cfg.Threads)
	}

	interpreter := tflite.NewInterpreter(model, options)
	if interpreter == nil {
		options.Delete()
		model.Delete()
		return nil, errors.Errorf("create interpreter for %s", cfg.ModelPath)
	}
	if status := interpreter.AllocateTensors(); status != tflite.OK {
		interpreter.Delete()
		options.Delete()
		model.Delete()
		return nil, errors.Errorf("allocate tensors for %s", cfg.ModelPath)
	}

	e := &Engine{
		model:       model,
		options:     options,
		interpreter: interpreter,
		inShape:     shapeOf(interpreter.GetInputTensor(0)),
		outShape:    shapeOf(interpreter.GetOutputTensor(0)),
	}
	return e, nil
}

// InputShape implements engine.Engine.
func (e *Engine) InputShape() tensor.Shape {
	return e.inShape
}

// OutputShape implements engine.Engine.
func (e *Engine) OutputShape() tensor.Shape {
	return e.outShape
}

// InputQuantization reports the input tensor's affine quantization so
// the preprocessor can emit matching integer values, or nil for float
// models.
func (e *Engine) InputQuantization() *preprocess.Quantization {
	in := e.interpreter.GetInputTensor(0)
	qp := in.QuantizationParams()
	if qp.Scale == 0 {
		return nil
	}
	q := &preprocess.Quantization{
		Scale:     float32(qp.Scale),
		ZeroPoint: qp.ZeroPoint,
	}
	switch in.Type() {
	case tflite.Int8:
		q.Lo, q.Hi = -128, 127
	default:
		q.Lo, q.Hi = 0, 255
	}
	return q
}

// Predict copies the prepared tensor into the interpreter, invokes it
// and returns the dequantized raw output.
func (e *Engine) Predict(input *tensor.Dense) (*tensor.Dense, error) {
	data, ok := input.Data().([]float32)
	if !ok {
		return nil, errors.New("input tensor is not float32")
	}

	in := e.interpreter.GetInputTensor(0)
	if err := e.fillInput(in, data); err != nil {
		return nil, err
	}

	if status := e.interpreter.Invoke(); status != tflite.OK {
		return nil, errors.New("invoke interpreter")
	}

	out := e.interpreter.GetOutputTensor(0)
	values, err := readOutput(out)
	if err != nil {
		return nil, err
	}
	return tensor.New(
		tensor.WithShape(e.outShape...),
		tensor.WithBacking(values),
	), nil
}

// fillInput casts the preprocessed values into the interpreter's
// native buffer. For quantized models the preprocessor has already
// applied the affine transform, so values are in integer range.
func (e *Engine) fillInput(in *tflite.Tensor, data []float32) error {
	want := e.inShape.TotalSize()
	if len(data) != want {
		return errors.Errorf("input holds %d values, interpreter expects %d", len(data), want)
	}

	switch in.Type() {
	case tflite.Float32:
		if status := in.CopyFromBuffer(data); status != tflite.OK {
			return errors.New("copy input buffer")
		}
	case tflite.UInt8:
		buf := make([]uint8, len(data))
		for i, v := range data {
			buf[i] = uint8(v)
		}
		if status := in.CopyFromBuffer(buf); status != tflite.OK {
			return errors.New("copy input buffer")
		}
	case tflite.Int8:
		buf := make([]int8, len(data))
		for i, v := range data {
			buf[i] = int8(v)
		}
		if status := in.CopyFromBuffer(buf); status != tflite.OK {
			return errors.New("copy input buffer")
		}
	default:
		return errors.Errorf("unsupported input tensor type %v", in.Type())
	}
	return nil
}

// readOutput copies the raw output into float32, dequantizing integer
// tensors with their own affine parameters.
func readOutput(out *tflite.Tensor) ([]float32, error) {
	n := 1
	for i := 0; i < out.NumDims(); i++ {
		n *= out.Dim(i)
	}

	switch out.Type() {
	case tflite.Float32:
		values := make([]float32, n)
		copy(values, out.Float32s())
		return values, nil
	case tflite.UInt8:
		buf := make([]uint8, n)
		if status := out.CopyToBuffer(buf); status != tflite.OK {
			return nil, errors.New("copy output buffer")
		}
		qp := out.QuantizationParams()
		values := make([]float32, n)
		for i, v := range buf {
			values[i] = (float32(v) - float32(qp.ZeroPoint)) * float32(qp.Scale)
		}
		return values, nil
	case tflite.Int8:
		buf := make([]int8, n)
		if status := out.CopyToBuffer(buf); status != tflite.OK {
			return nil, errors.New("copy output buffer")
		}
		qp := out.QuantizationParams()
		values := make([]float32, n)
		for i, v := range buf {
			values[i] = (float32(v) - float32(qp.ZeroPoint)) * float32(qp.Scale)
		}
		return values, nil
	default:
		return nil, errors.Errorf("unsupported output tensor type %v", out.Type())
	}
}

// Close releases the interpreter, options and model.
func (e *Engine) Close() error {
	if e.interpreter != nil {
		e.interpreter.Delete()
		e.interpreter = nil
	}
	if e.options != nil {
		e.options.Delete()
		e.options = nil
	}
	if e.model != nil {
		e.model.Delete()
		e.model = nil
	}
	return nil
}

func shapeOf(t *tflite.Tensor) tensor.Shape {
	dims := make(tensor.Shape, t.NumDims())
	for i := range dims {
		dims[i] = t.Dim(i)
	}
	return dims
}

var _ engine.Engine = (*Engine)(nil)
