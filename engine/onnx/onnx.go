// Package onnx - onnxruntime-backed inference engine.
package onnx

import (
	"os"
	"runtime"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
	"gorgonia.org/tensor"

	"github.com/wastesense/edge-ml/engine"
)

// Config selects the model artifact and session tuning.
type Config struct {
	// ModelPath points at the exported .onnx artifact.
	ModelPath string
	// LibraryPath overrides the onnxruntime shared library location.
	// Empty selects a platform default.
	LibraryPath string
	// InputName, OutputName default to the YOLO export convention
	// ("images"/"output0").
	InputName  string
	OutputName string
	// InputShape and OutputShape default to [1,3,640,640] and
	// [1,84,8400].
	InputShape  []int64
	OutputShape []int64
	// IntraOpThreads/InterOpThreads of 0 keep the runtime defaults.
	IntraOpThreads int
	InterOpThreads int
}

// Engine runs forward passes through an onnxruntime session. The
// session owns fixed input/output tensors; Predict copies data in and
// out, so exactly one goroutine may call it at a time.
type Engine struct {
	session  *ort.AdvancedSession
	input    *ort.Tensor[float32]
	output   *ort.Tensor[float32]
	inShape  tensor.Shape
	outShape tensor.Shape
}

// New loads the model artifact and builds a session. Any failure here
// is fatal for the detection worker: it must not start without a
// loaded engine.
func New(cfg Config) (*Engine, error) {
	if cfg.InputName == "" {
		cfg.InputName = "images"
	}
	if cfg.OutputName == "" {
		cfg.OutputName = "output0"
	}
	if len(cfg.InputShape) == 0 {
		cfg.InputShape = []int64{1, 3, 640, 640}
	}
	if len(cfg.OutputShape) == 0 {
		cfg.OutputShape = []int64{1, 84, 8400}
	}

	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, errors.Wrapf(err, "model artifact %s", cfg.ModelPath)
	}

	libPath := cfg.LibraryPath
	if libPath == "" {
		libPath = sharedLibPath()
	}
	if !ort.IsInitialized() {
		ort.SetSharedLibraryPath(libPath)
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, errors.Wrap(err, "initialize onnxruntime environment")
		}
	}

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(cfg.InputShape...))
	if err != nil {
		return nil, errors.Wrap(err, "create input tensor")
	}
	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(cfg.OutputShape...))
	if err != nil {
		inputTensor.Destroy()
		return nil, errors.Wrap(err, "create output tensor")
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, errors.Wrap(err, "create session options")
	}
	defer options.Destroy()

	if cfg.IntraOpThreads > 0 {
		options.SetIntraOpNumThreads(cfg.IntraOpThreads)
	}
	if cfg.InterOpThreads > 0 {
		options.SetInterOpNumThreads(cfg.InterOpThreads)
	}
	options.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableExtended)

	session, err := ort.NewAdvancedSession(
		cfg.ModelPath,
		[]string{cfg.InputName},
		[]string{cfg.OutputName},
		[]ort.ArbitraryTensor{inputTensor},
		[]ort.ArbitraryTensor{outputTensor},
		options,
	)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, errors.Wrapf(err, "create session for %s", cfg.ModelPath)
	}

	return &Engine{
		session:  session,
		input:    inputTensor,
		output:   outputTensor,
		inShape:  toShape(cfg.InputShape),
		outShape: toShape(cfg.OutputShape),
	}, nil
}

// InputShape implements engine.Engine.
func (e *Engine) InputShape() tensor.Shape {
	return e.inShape
}

// OutputShape implements engine.Engine.
func (e *Engine) OutputShape() tensor.Shape {
	return e.outShape
}

// Predict copies the prepared tensor into the session input, runs the
// graph and returns a copy of the raw output.
func (e *Engine) Predict(input *tensor.Dense) (*tensor.Dense, error) {
	data, ok := input.Data().([]float32)
	if !ok {
		return nil, errors.New("input tensor is not float32")
	}
	dst := e.input.GetData()
	if len(data) != len(dst) {
		return nil, errors.Errorf("input holds %d values, session expects %d", len(data), len(dst))
	}
	copy(dst, data)

	if err := e.session.Run(); err != nil {
		return nil, errors.Wrap(err, "run session")
	}

	src := e.output.GetData()
	out := make([]float32, len(src))
	copy(out, src)
	return tensor.New(
		tensor.WithShape(e.outShape...),
		tensor.WithBacking(out),
	), nil
}

// Close destroys the session and its tensors.
func (e *Engine) Close() error {
	if e.session != nil {
		e.session.Destroy()
		e.session = nil
	}
	if e.input != nil {
		e.input.Destroy()
		e.input = nil
	}
	if e.output != nil {
		e.output.Destroy()
		e.output = nil
	}
	return nil
}

func toShape(dims []int64) tensor.Shape {
	s := make(tensor.Shape, len(dims))
	for i, d := range dims {
		s[i] = int(d)
	}
	return s
}

// sharedLibPath returns the bundled onnxruntime library for the
// current platform.
func sharedLibPath() string {
	switch runtime.GOOS {
	case "windows":
		return "third_party/onnxruntime.dll"
	case "darwin":
		return "third_party/libonnxruntime.dylib"
	default:
		if runtime.GOARCH == "arm64" {
			return "third_party/onnxruntime_arm64.so"
		}
		return "third_party/onnxruntime.so"
	}
}

var _ engine.Engine = (*Engine)(nil)
