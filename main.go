// Command edge-ml runs the waste detection pipeline on an edge device:
// frames from a camera or a replay directory feed a single detection
// worker, and detections are logged and optionally saved as annotated
// snapshots.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/errors"

	"github.com/wastesense/edge-ml/config"
	"github.com/wastesense/edge-ml/detector"
	"github.com/wastesense/edge-ml/engine"
	"github.com/wastesense/edge-ml/engine/onnx"
	"github.com/wastesense/edge-ml/engine/tflite"
	"github.com/wastesense/edge-ml/frames"
	"github.com/wastesense/edge-ml/overlay"
	"github.com/wastesense/edge-ml/postprocess"
	"github.com/wastesense/edge-ml/preprocess"
)

func main() {
	var (
		envFile     string
		engineName  string
		modelPath   string
		framesDir   string
		duration    time.Duration
		annotateDir string
	)
	flag.StringVar(&envFile, "env", "", "Path to a .env file loaded before reading the environment")
	flag.StringVar(&engineName, "engine", "", "Inference backend: onnx, tflite or mock (overrides WASTE_ENGINE)")
	flag.StringVar(&modelPath, "model", "", "Path to the model artifact (overrides WASTE_MODEL_PATH)")
	flag.StringVar(&framesDir, "frames", "", "Replay frames from this directory instead of the camera")
	flag.DurationVar(&duration, "duration", 0, "Stop after this long (0 runs until interrupted)")
	flag.StringVar(&annotateDir, "annotate-dir", "", "Save annotated snapshots of frames with detections here")
	flag.Parse()

	// Flags override the environment for quick experiments.
	if engineName != "" {
		os.Setenv("WASTE_ENGINE", strings.ToLower(engineName))
	}
	if modelPath != "" {
		os.Setenv("WASTE_MODEL_PATH", modelPath)
	}

	cfg, err := config.Load(envFile)
	if err != nil {
		log.Fatalf("configuration: %v", err)
	}

	if err := run(cfg, framesDir, duration, annotateDir); err != nil {
		log.Fatal(err)
	}
}

func run(cfg config.Config, framesDir string, duration time.Duration, annotateDir string) error {
	eng, quant, err := buildEngine(cfg)
	if err != nil {
		return errors.Wrap(err, "engine")
	}
	defer eng.Close()

	source, err := buildSource(cfg, framesDir)
	if err != nil {
		return errors.Wrap(err, "frame source")
	}
	defer source.Close()

	if annotateDir != "" {
		if err := os.MkdirAll(annotateDir, 0o755); err != nil {
			return errors.Wrap(err, "create annotation directory")
		}
	}

	dc := cfg.DetectorConfig(quant)
	dc.Callback = func(f frames.Frame, detections []postprocess.Detection) {
		for _, det := range detections {
			log.Printf("[%s] %s", cfg.DeviceID, det)
		}
		if annotateDir == "" {
			return
		}
		path := filepath.Join(annotateDir,
			fmt.Sprintf("%s-%s.jpg", f.CapturedAt.Format("20060102T150405.000"), f.ID))
		if err := overlay.Save(path, f, detections, overlay.Options{
			DeviceLabel: cfg.DeviceID,
		}); err != nil {
			log.Printf("annotate: %v", err)
		}
	}

	d, err := detector.New(eng, dc)
	if err != nil {
		return err
	}

	d.Start()
	defer d.Stop()

	log.Printf("device %s: engine=%s skip=%d buffer=%d",
		cfg.DeviceID, cfg.Engine, cfg.FrameSkip, cfg.BufferCapacity)

	return captureLoop(d, source, cfg.CameraFPS, duration)
}

// captureLoop feeds frames from the source into the detector until the
// source drains, the duration elapses, or an interrupt arrives.
func captureLoop(d *detector.Detector, source frames.Source, fps int, duration time.Duration) error {
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(interrupt)

	var deadline <-chan time.Time
	if duration > 0 {
		deadline = time.After(duration)
	}

	if fps < 1 {
		fps = 1
	}
	tick := time.NewTicker(time.Second / time.Duration(fps))
	defer tick.Stop()

	for {
		select {
		case <-interrupt:
			log.Print("interrupted, shutting down")
			return nil
		case <-deadline:
			log.Printf("duration elapsed, %d frames dropped under backlog", d.Drops())
			return nil
		case <-tick.C:
			frame, err := source.Next()
			if err == io.EOF {
				// Let the worker drain the backlog before stopping.
				time.Sleep(500 * time.Millisecond)
				log.Print("frame source drained")
				return nil
			}
			if err != nil {
				log.Printf("capture: %v", err)
				continue
			}
			d.AddFrame(frame)
		}
	}
}

// buildEngine instantiates the configured backend. The returned
// quantization is non-nil only when the model wants integer inputs.
func buildEngine(cfg config.Config) (engine.Engine, *preprocess.Quantization, error) {
	switch cfg.Engine {
	case config.EngineONNX:
		eng, err := onnx.New(onnx.Config{ModelPath: cfg.ModelPath})
		if err != nil {
			return nil, nil, err
		}
		return eng, nil, nil

	case config.EngineTFLite:
		eng, err := tflite.New(tflite.Config{ModelPath: cfg.ModelPath})
		if err != nil {
			return nil, nil, err
		}
		return eng, eng.InputQuantization(), nil

	case config.EngineMock:
		// A scripted bottle detection, useful for exercising the
		// pipeline on machines without a model or runtime.
		eng := engine.NewMock(80).Emit(engine.Candidate{
			ClassID: 39, Score: 0.9, CX: 0.5, CY: 0.5, W: 0.3, H: 0.4,
		})
		return eng, nil, nil

	default:
		return nil, nil, errors.Errorf("unknown engine %q", cfg.Engine)
	}
}

func buildSource(cfg config.Config, framesDir string) (frames.Source, error) {
	if framesDir != "" {
		return frames.NewDirectorySource(framesDir)
	}
	return frames.OpenWebcam(cfg.CameraDevice)
}
