// Package config loads pipeline settings from the environment, with an
// optional .env file for development setups.
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"

	"github.com/wastesense/edge-ml/detector"
	"github.com/wastesense/edge-ml/frames"
	"github.com/wastesense/edge-ml/postprocess"
	"github.com/wastesense/edge-ml/preprocess"
)

// Engine backend names accepted by WASTE_ENGINE.
const (
	EngineONNX   = "onnx"
	EngineTFLite = "tflite"
	EngineMock   = "mock"
)

// Config is the full runtime configuration of an edge device.
type Config struct {
	// DeviceID identifies this unit in detection reports and logs.
	DeviceID string
	// Engine selects the inference backend.
	Engine string
	// ModelPath points at the model artifact for the selected backend.
	ModelPath string

	// CameraDevice is the capture device index.
	CameraDevice int
	CameraWidth  int
	CameraHeight int
	CameraFPS    int

	FrameSkip      int
	BufferCapacity int

	IoUThreshold  float32
	MaxDetections int
	// Thresholds overrides per-category confidence cutoffs. Categories
	// not listed keep their defaults.
	Thresholds map[string]float32
}

// Default returns the configuration an edge unit ships with.
func Default() Config {
	return Config{
		DeviceID:       "RaspberryPi5",
		Engine:         EngineONNX,
		CameraDevice:   0,
		CameraWidth:    640,
		CameraHeight:   480,
		CameraFPS:      15,
		FrameSkip:      2,
		BufferCapacity: frames.DefaultBufferCapacity,
		IoUThreshold:   postprocess.DefaultIoUThreshold,
		MaxDetections:  postprocess.DefaultMaxDetections,
		Thresholds:     postprocess.DefaultThresholds(),
	}
}

// Load reads the configuration from the environment. When envFile is
// non-empty it is loaded first; already-set variables win over file
// entries, matching godotenv semantics.
//
// Environment variables:
//
//	WASTE_DEVICE_ID, WASTE_ENGINE, WASTE_MODEL_PATH,
//	WASTE_CAMERA_DEVICE, WASTE_CAMERA_WIDTH, WASTE_CAMERA_HEIGHT,
//	WASTE_CAMERA_FPS, WASTE_FRAME_SKIP, WASTE_BUFFER_CAPACITY,
//	WASTE_IOU_THRESHOLD, WASTE_MAX_DETECTIONS,
//	WASTE_THRESHOLDS (e.g. "plastic=0.4,glass=0.3")
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return Config{}, errors.Wrapf(err, "load env file %s", envFile)
		}
	}

	cfg := Default()
	var err error

	if v := os.Getenv("WASTE_DEVICE_ID"); v != "" {
		cfg.DeviceID = v
	}
	if v := os.Getenv("WASTE_ENGINE"); v != "" {
		cfg.Engine = strings.ToLower(v)
	}
	if v := os.Getenv("WASTE_MODEL_PATH"); v != "" {
		cfg.ModelPath = v
	}

	if cfg.CameraDevice, err = intVar("WASTE_CAMERA_DEVICE", cfg.CameraDevice); err != nil {
		return Config{}, err
	}
	if cfg.CameraWidth, err = intVar("WASTE_CAMERA_WIDTH", cfg.CameraWidth); err != nil {
		return Config{}, err
	}
	if cfg.CameraHeight, err = intVar("WASTE_CAMERA_HEIGHT", cfg.CameraHeight); err != nil {
		return Config{}, err
	}
	if cfg.CameraFPS, err = intVar("WASTE_CAMERA_FPS", cfg.CameraFPS); err != nil {
		return Config{}, err
	}
	if cfg.FrameSkip, err = intVar("WASTE_FRAME_SKIP", cfg.FrameSkip); err != nil {
		return Config{}, err
	}
	if cfg.BufferCapacity, err = intVar("WASTE_BUFFER_CAPACITY", cfg.BufferCapacity); err != nil {
		return Config{}, err
	}
	if cfg.MaxDetections, err = intVar("WASTE_MAX_DETECTIONS", cfg.MaxDetections); err != nil {
		return Config{}, err
	}
	if cfg.IoUThreshold, err = floatVar("WASTE_IOU_THRESHOLD", cfg.IoUThreshold); err != nil {
		return Config{}, err
	}

	if v := os.Getenv("WASTE_THRESHOLDS"); v != "" {
		overrides, err := ParseThresholds(v)
		if err != nil {
			return Config{}, err
		}
		for category, threshold := range overrides {
			cfg.Thresholds[category] = threshold
		}
	}

	return cfg, cfg.Validate()
}

// Validate rejects configurations the pipeline cannot run with.
func (c Config) Validate() error {
	switch c.Engine {
	case EngineONNX, EngineTFLite, EngineMock:
	default:
		return errors.Errorf("unknown engine %q", c.Engine)
	}
	if c.Engine != EngineMock && c.ModelPath == "" {
		return errors.Errorf("engine %q requires WASTE_MODEL_PATH", c.Engine)
	}
	if c.FrameSkip < 1 {
		return errors.Errorf("frame skip must be >= 1, got %d", c.FrameSkip)
	}
	if c.IoUThreshold <= 0 || c.IoUThreshold > 1 {
		return errors.Errorf("IoU threshold must be in (0, 1], got %g", c.IoUThreshold)
	}
	for category, threshold := range c.Thresholds {
		if threshold < 0 || threshold > 1 {
			return errors.Errorf("threshold for %s must be in [0, 1], got %g", category, threshold)
		}
	}
	return nil
}

// DetectorConfig converts the loaded settings into a detector config.
// The engine instance and callback are wired by the caller.
func (c Config) DetectorConfig(quant *preprocess.Quantization) detector.Config {
	dc := detector.DefaultConfig()
	dc.FrameSkip = c.FrameSkip
	dc.BufferCapacity = c.BufferCapacity
	dc.CategoryThresholds = c.Thresholds
	dc.IoUThreshold = c.IoUThreshold
	dc.MaxDetections = c.MaxDetections
	dc.Quant = quant
	dc.DeviceID = c.DeviceID
	return dc
}

// ParseThresholds parses a "category=value,category=value" list into
// per-category confidence cutoffs. Unknown categories are rejected so
// typos fail loudly at startup.
func ParseThresholds(s string) (map[string]float32, error) {
	known := make(map[string]bool)
	for _, category := range postprocess.Categories() {
		known[category] = true
	}

	out := make(map[string]float32)
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		category, value, found := strings.Cut(pair, "=")
		if !found {
			return nil, errors.Errorf("threshold entry %q: want category=value", pair)
		}
		category = strings.TrimSpace(category)
		if !known[category] {
			return nil, errors.Errorf("unknown waste category %q", category)
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(value), 32)
		if err != nil {
			return nil, errors.Wrapf(err, "threshold for %s", category)
		}
		out[category] = float32(f)
	}
	return out, nil
}

func intVar(name string, fallback int) (int, error) {
	v := os.Getenv(name)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errors.Wrapf(err, "parse %s", name)
	}
	return n, nil
}

func floatVar(name string, fallback float32) (float32, error) {
	v := os.Getenv(name)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 32)
	if err != nil {
		return 0, errors.Wrapf(err, "parse %s", name)
	}
	return float32(f), nil
}
