// Package detector runs the capture-to-detection pipeline: frame
// admission, a bounded buffer, and a single worker goroutine that
// preprocesses, infers and decodes.
package detector

import (
	"log"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/wastesense/edge-ml/engine"
	"github.com/wastesense/edge-ml/frames"
	"github.com/wastesense/edge-ml/postprocess"
	"github.com/wastesense/edge-ml/preprocess"
)

const (
	// idleWait bounds how long the worker sleeps when the buffer is
	// empty before re-checking for frames and stop requests.
	idleWait = 100 * time.Millisecond
	// joinTimeout bounds how long Stop waits for the worker to drain its
	// current frame.
	joinTimeout = 2 * time.Second
)

// Callback receives the detections of one processed frame. It is
// invoked from the worker goroutine, only for frames that produced at
// least one detection, and must not block for long.
type Callback func(frame frames.Frame, detections []postprocess.Detection)

// Config tunes the pipeline around a given engine.
type Config struct {
	// FrameSkip admits every Nth offered frame. 1 admits everything.
	FrameSkip int
	// BufferCapacity bounds the backlog between AddFrame and the worker.
	BufferCapacity int

	CategoryThresholds map[string]float32
	IoUThreshold       float32
	MaxDetections      int

	InputWidth  int
	InputHeight int
	PadValue    uint8
	// Quant enables integer-quantized preprocessing for engines that
	// want it (the TFLite adapter reports its own via
	// InputQuantization).
	Quant *preprocess.Quantization

	// DeviceID labels this detector in logs.
	DeviceID string
	// Callback, when set, is invoked per frame with detections.
	Callback Callback
}

// DefaultConfig returns the pipeline defaults.
func DefaultConfig() Config {
	return Config{
		FrameSkip:          2,
		BufferCapacity:     frames.DefaultBufferCapacity,
		CategoryThresholds: postprocess.DefaultThresholds(),
		IoUThreshold:       postprocess.DefaultIoUThreshold,
		MaxDetections:      postprocess.DefaultMaxDetections,
		InputWidth:         preprocess.DefaultInputSize,
		InputHeight:        preprocess.DefaultInputSize,
		PadValue:           preprocess.DefaultPadValue,
	}
}

// Detector owns the worker goroutine and the frame buffer. One
// detector serves one engine; the engine is only ever called from the
// worker goroutine, honoring the single-caller contract.
type Detector struct {
	eng       engine.Engine
	pre       *preprocess.Preprocessor
	dec       *postprocess.Decoder
	admission *frames.AdmissionPolicy
	buffer    *frames.Buffer
	deviceID  string
	callback  Callback

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}

	predMu sync.Mutex
	latest []postprocess.Detection
}

// New wires a detector around eng. Zero config fields fall back to the
// defaults; a nil engine is an error.
func New(eng engine.Engine, cfg Config) (*Detector, error) {
	if eng == nil {
		return nil, errors.New("detector: engine is nil")
	}
	if cfg.FrameSkip < 1 {
		cfg.FrameSkip = DefaultConfig().FrameSkip
	}

	preCfg := preprocess.Config{
		InputWidth:  cfg.InputWidth,
		InputHeight: cfg.InputHeight,
		PadValue:    cfg.PadValue,
		Quant:       cfg.Quant,
	}
	if preCfg.InputWidth <= 0 {
		preCfg.InputWidth = preprocess.DefaultInputSize
	}
	if preCfg.InputHeight <= 0 {
		preCfg.InputHeight = preprocess.DefaultInputSize
	}
	if err := preCfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "detector: preprocess config")
	}

	pre := preprocess.New(preCfg)
	if s := eng.InputShape(); len(s) > 0 && s.TotalSize() != pre.InputLen() {
		return nil, errors.Errorf("detector: model input %v holds %d values, preprocessor emits %d",
			s, s.TotalSize(), pre.InputLen())
	}

	return &Detector{
		eng: eng,
		pre: pre,
		dec: postprocess.NewDecoder(postprocess.Config{
			CategoryThresholds: cfg.CategoryThresholds,
			IoUThreshold:       cfg.IoUThreshold,
			MaxDetections:      cfg.MaxDetections,
		}),
		admission: frames.NewAdmissionPolicy(cfg.FrameSkip),
		buffer:    frames.NewBuffer(cfg.BufferCapacity),
		deviceID:  cfg.DeviceID,
		callback:  cfg.Callback,
	}, nil
}

// AddFrame offers one captured frame to the pipeline. Admission and
// buffering are cheap; full validation happens on the worker so the
// capture path never stalls. Empty frames and non-admitted frames are
// dropped silently.
func (d *Detector) AddFrame(f frames.Frame) {
	if f.Empty() {
		return
	}
	if !d.admission.Admit() {
		return
	}
	d.buffer.Push(f)
}

// Start launches the worker goroutine. Calling Start on a running
// detector is a no-op with a warning, as is calling it while a worker
// from a timed-out Stop is still draining: the engine tolerates only
// one caller, so a second worker must never exist.
func (d *Detector) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running {
		log.Printf("detector[%s]: already running", d.deviceID)
		return
	}
	if d.done != nil {
		select {
		case <-d.done:
		default:
			log.Printf("detector[%s]: previous worker still draining, start refused", d.deviceID)
			return
		}
	}
	d.running = true
	d.stop = make(chan struct{})
	d.done = make(chan struct{})
	go d.run(d.stop, d.done)
	log.Printf("detector[%s]: worker started", d.deviceID)
}

// Stop asks the worker to finish its current frame and waits up to
// joinTimeout for it. The buffer is cleared afterwards so a later Start
// begins fresh. Stopping a stopped detector is a no-op.
func (d *Detector) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.running {
		return
	}
	close(d.stop)
	select {
	case <-d.done:
	case <-time.After(joinTimeout):
		log.Printf("detector[%s]: worker did not stop within %s", d.deviceID, joinTimeout)
	}
	d.running = false
	d.buffer.Clear()
	log.Printf("detector[%s]: worker stopped", d.deviceID)
}

// Running reports whether the worker goroutine is active.
func (d *Detector) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

// LatestPredictions returns a copy of the detections from the most
// recently processed frame. A frame with no detections yields an empty
// result: the list is overwritten wholesale on every successful
// iteration. Failed frames leave the previous snapshot in place.
func (d *Detector) LatestPredictions() []postprocess.Detection {
	d.predMu.Lock()
	defer d.predMu.Unlock()

	out := make([]postprocess.Detection, len(d.latest))
	copy(out, d.latest)
	return out
}

// Drops reports how many admitted frames the buffer discarded under
// backlog.
func (d *Detector) Drops() uint64 {
	return d.buffer.Drops()
}

// run is the worker loop. Per-frame failures are logged and skipped;
// only a stop request ends the loop.
func (d *Detector) run(stop, done chan struct{}) {
	defer close(done)

	for {
		select {
		case <-stop:
			return
		default:
		}

		frame, ok := d.buffer.Pop()
		if !ok {
			select {
			case <-stop:
				return
			case <-time.After(idleWait):
			}
			continue
		}

		detections, err := d.process(frame)
		if err != nil {
			// Skip the frame; the last good snapshot stays in place for
			// polling consumers.
			log.Printf("detector[%s]: frame %s: %v", d.deviceID, frame.ID, err)
			continue
		}

		d.predMu.Lock()
		d.latest = detections
		d.predMu.Unlock()

		if len(detections) > 0 && d.callback != nil {
			d.callback(frame, detections)
		}
	}
}

// process runs one frame through preprocess, inference and decode.
func (d *Detector) process(f frames.Frame) ([]postprocess.Detection, error) {
	input, scale, err := d.pre.Prepare(f)
	if err != nil {
		return nil, errors.Wrap(err, "preprocess")
	}

	raw, err := d.eng.Predict(input)
	if err != nil {
		return nil, errors.Wrap(err, "inference")
	}

	detections, err := d.dec.Decode(raw, scale)
	if err != nil {
		return nil, errors.Wrap(err, "postprocess")
	}
	return detections, nil
}
