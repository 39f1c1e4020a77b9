// Package preprocess - letterboxing and normalization of frames into
// the tensor layout the inference engine expects.
package preprocess

import (
	"image"

	"github.com/chewxy/math32"
	"github.com/nfnt/resize"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"

	"github.com/wastesense/edge-ml/frames"
)

const (
	// DefaultInputSize is the square model input used by the exported
	// detector.
	DefaultInputSize = 640
	// DefaultPadValue fills the letterbox margins. The value must match
	// the padding convention the model was trained with; 114 for the
	// YOLO family in use.
	DefaultPadValue = 114
)

// Quantization is the affine transform of an integer-quantized input
// tensor: q = round(real/Scale) + ZeroPoint, clipped to [Lo, Hi],
// where real is the /255-normalized pixel value.
type Quantization struct {
	Scale     float32
	ZeroPoint int
	Lo, Hi    int
}

// Config selects the model input geometry and numeric range.
type Config struct {
	InputWidth  int
	InputHeight int
	PadValue    uint8
	// Quant switches the output to quantized integer values (still
	// carried as float32; the engine adapter casts to its native
	// integer buffer). Nil means float [0,1] via /255.
	Quant *Quantization
}

// DefaultConfig returns the float 640x640 configuration.
func DefaultConfig() Config {
	return Config{
		InputWidth:  DefaultInputSize,
		InputHeight: DefaultInputSize,
		PadValue:    DefaultPadValue,
	}
}

// ScaleInfo records the letterbox transform applied to one frame so
// decoded boxes can be mapped back to original-frame coordinates.
type ScaleInfo struct {
	// Scale is the uniform resize factor, min of the per-axis ratios.
	Scale float32
	// PadX, PadY are the letterbox margins in model-input pixels.
	PadX, PadY int
	// FrameWidth, FrameHeight are the original frame dimensions.
	FrameWidth, FrameHeight int
	// InputWidth, InputHeight are the model input dimensions.
	InputWidth, InputHeight int
}

// Preprocessor converts frames into batched NCHW RGB tensors.
type Preprocessor struct {
	cfg Config
}

// New creates a preprocessor, filling zero config fields with the
// defaults.
func New(cfg Config) *Preprocessor {
	if cfg.InputWidth <= 0 {
		cfg.InputWidth = DefaultInputSize
	}
	if cfg.InputHeight <= 0 {
		cfg.InputHeight = DefaultInputSize
	}
	if cfg.PadValue == 0 {
		cfg.PadValue = DefaultPadValue
	}
	return &Preprocessor{cfg: cfg}
}

// Prepare letterboxes, normalizes and lays out one frame for
// inference.
//
// Arguments:
//   - f: The frame to prepare. Never mutated; pixels are copied into
//     the output tensor.
//
// Returns:
//   - *tensor.Dense: float32 tensor shaped [1, 3, H, W], RGB planes.
//   - ScaleInfo: The transform needed to invert box coordinates.
//   - error: frames.ErrInvalidFrame for malformed input.
func (p *Preprocessor) Prepare(f frames.Frame) (*tensor.Dense, ScaleInfo, error) {
	if err := f.Validate(); err != nil {
		return nil, ScaleInfo{}, err
	}

	targetW := p.cfg.InputWidth
	targetH := p.cfg.InputHeight

	scale := math32.Min(
		float32(targetW)/float32(f.Width),
		float32(targetH)/float32(f.Height),
	)
	newW := int(float32(f.Width) * scale)
	newH := int(float32(f.Height) * scale)
	if newW < 1 {
		newW = 1
	}
	if newH < 1 {
		newH = 1
	}

	resized := resize.Resize(uint(newW), uint(newH), frameToRGBA(f), resize.Lanczos3)

	padX := (targetW - newW) / 2
	padY := (targetH - newH) / 2

	// Fill the whole canvas with the normalized padding value, then
	// paste the resized frame centered over it, plane by plane.
	channelSize := targetW * targetH
	data := make([]float32, 1*frames.Channels*channelSize)
	padVal := p.normalize(float32(p.cfg.PadValue))
	for i := range data {
		data[i] = padVal
	}

	for y := 0; y < newH; y++ {
		rowBase := (padY + y) * targetW
		for x := 0; x < newW; x++ {
			r, g, b, _ := resized.At(x, y).RGBA()
			i := rowBase + padX + x
			data[i] = p.normalize(float32(r >> 8))
			data[channelSize+i] = p.normalize(float32(g >> 8))
			data[2*channelSize+i] = p.normalize(float32(b >> 8))
		}
	}

	dense := tensor.New(
		tensor.WithShape(1, frames.Channels, targetH, targetW),
		tensor.WithBacking(data),
	)

	info := ScaleInfo{
		Scale:       scale,
		PadX:        padX,
		PadY:        padY,
		FrameWidth:  f.Width,
		FrameHeight: f.Height,
		InputWidth:  targetW,
		InputHeight: targetH,
	}
	return dense, info, nil
}

// normalize maps one 8-bit channel value into the engine's numeric
// range.
func (p *Preprocessor) normalize(v float32) float32 {
	scaled := v / 255.0
	q := p.cfg.Quant
	if q == nil {
		return scaled
	}
	qv := math32.Round(scaled/q.Scale) + float32(q.ZeroPoint)
	return math32.Min(math32.Max(qv, float32(q.Lo)), float32(q.Hi))
}

// frameToRGBA builds an RGBA view of a BGR frame. This is also where
// the capture channel order flips to the RGB order the model expects.
func frameToRGBA(f frames.Frame) *image.RGBA {
	rgba := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			b, g, r := f.At(x, y)
			i := rgba.PixOffset(x, y)
			rgba.Pix[i] = r
			rgba.Pix[i+1] = g
			rgba.Pix[i+2] = b
			rgba.Pix[i+3] = 0xff
		}
	}
	return rgba
}

// InputLen returns the number of float32 values Prepare emits per
// frame, cross-checked against the engine's input shape at detector
// construction.
func (p *Preprocessor) InputLen() int {
	return frames.Channels * p.cfg.InputWidth * p.cfg.InputHeight
}

// Validate rejects configs an engine could not consume.
func (c Config) Validate() error {
	if c.InputWidth <= 0 || c.InputHeight <= 0 {
		return errors.Errorf("invalid model input size %dx%d", c.InputWidth, c.InputHeight)
	}
	if c.Quant != nil && c.Quant.Scale == 0 {
		return errors.New("quantization scale must be non-zero")
	}
	return nil
}
