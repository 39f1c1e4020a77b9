package postprocess

import (
	"log"
	"sort"

	"github.com/chewxy/math32"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"

	"github.com/wastesense/edge-ml/images"
	"github.com/wastesense/edge-ml/preprocess"
)

// boundsEpsilon is how far outside [0,1] an inverted box may land
// before it is treated as a decode error for that candidate. Within
// the epsilon, coordinates are clamped.
const boundsEpsilon = 1e-3

// DefaultMaxDetections caps the result list length.
const DefaultMaxDetections = 100

// DefaultIoUThreshold is the suppression overlap used when none is
// configured.
const DefaultIoUThreshold = 0.45

// Config tunes the decoder.
type Config struct {
	// CategoryThresholds holds one confidence cutoff per waste
	// category. Categories missing from the map fall back to the
	// defaults.
	CategoryThresholds map[string]float32
	IoUThreshold       float32
	MaxDetections      int
	// ClassAware switches NMS to per-category suppression.
	ClassAware bool
}

// DefaultConfig returns the decoder defaults.
func DefaultConfig() Config {
	return Config{
		CategoryThresholds: DefaultThresholds(),
		IoUThreshold:       DefaultIoUThreshold,
		MaxDetections:      DefaultMaxDetections,
	}
}

// Decoder turns raw model output into final detections.
type Decoder struct {
	thresholds map[string]float32
	nms        NMSConfig
	max        int
}

// NewDecoder creates a decoder, filling zero config fields with
// defaults.
func NewDecoder(cfg Config) *Decoder {
	thresholds := DefaultThresholds()
	for category, v := range cfg.CategoryThresholds {
		thresholds[category] = v
	}
	iou := cfg.IoUThreshold
	if iou <= 0 {
		iou = DefaultIoUThreshold
	}
	maxDet := cfg.MaxDetections
	if maxDet <= 0 {
		maxDet = DefaultMaxDetections
	}
	return &Decoder{
		thresholds: thresholds,
		nms:        NMSConfig{IoUThreshold: iou, ClassAware: cfg.ClassAware},
		max:        maxDet,
	}
}

// Decode converts one raw output tensor into detections.
//
// The expected layout is [1, 4+numClasses, numBoxes], transposed so
// attribute k of box i sits at data[k*numBoxes+i]. Per box, attributes
// 0-3 are (cx, cy, w, h) normalized to model-input space and the rest
// are per-class scores; the box confidence is the maximum class score.
// There is no separate objectness attribute in this model family.
//
// Arguments:
//   - raw: The engine output tensor.
//   - scale: The letterbox transform recorded by the preprocessor.
//
// Returns:
//   - []Detection: Confidence-descending detections, at most
//     MaxDetections of them.
//   - error: Error when the tensor layout itself is unusable.
//     Malformed individual candidates are skipped, not fatal.
func (d *Decoder) Decode(raw *tensor.Dense, scale preprocess.ScaleInfo) ([]Detection, error) {
	if raw == nil {
		return nil, errors.New("raw output tensor is nil")
	}
	shape := raw.Shape()
	if len(shape) != 3 || shape[0] != 1 || shape[1] < 5 {
		return nil, errors.Errorf("unexpected output shape %v, want [1, 4+classes, boxes]", shape)
	}
	data, ok := raw.Data().([]float32)
	if !ok {
		return nil, errors.New("raw output tensor is not float32")
	}
	numAttrs := shape[1]
	numBoxes := shape[2]
	if len(data) < numAttrs*numBoxes {
		return nil, errors.Errorf("output holds %d values, want %d", len(data), numAttrs*numBoxes)
	}
	numClasses := numAttrs - 4

	at := func(attr, idx int) float32 {
		return data[attr*numBoxes+idx]
	}

	candidates := make([]Candidate, 0, 64)
	for i := 0; i < numBoxes; i++ {
		classID := 0
		score := float32(-1)
		for c := 0; c < numClasses; c++ {
			if s := at(4+c, i); s > score {
				score = s
				classID = c
			}
		}
		if math32.IsNaN(score) || score <= 0 {
			continue
		}

		category, ok := CategoryFor(classID)
		if !ok {
			continue
		}
		if score < d.thresholds[category] {
			continue
		}

		box, ok := d.invertLetterbox(at(0, i), at(1, i), at(2, i), at(3, i), scale)
		if !ok {
			log.Printf("postprocess: candidate %d (%s %.2f) decoded outside frame, skipped",
				i, category, score)
			continue
		}
		if !box.Valid() {
			// Zero-area or non-finite boxes must not reach IoU math.
			continue
		}

		candidates = append(candidates, Candidate{
			Category: category,
			Score:    score,
			Box:      box,
		})
	}

	// Descending by confidence; SliceStable keeps first-encounter order
	// for ties, which NMS relies on.
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})

	kept := ApplyGreedyNMS(candidates, &d.nms)
	if len(kept) > d.max {
		kept = kept[:d.max]
	}

	detections := make([]Detection, len(kept))
	for i, c := range kept {
		detections[i] = Detection{
			Category:   c.Category,
			Confidence: c.Score,
			X:          (c.Box.X1 + c.Box.X2) / 2,
			Y:          (c.Box.Y1 + c.Box.Y2) / 2,
			W:          c.Box.Width(),
			H:          c.Box.Height(),
		}
	}
	return detections, nil
}

// invertLetterbox maps a center-form box from normalized model-input
// space back to normalized original-frame space. Boxes landing outside
// [0,1] by more than boundsEpsilon are rejected; within the epsilon
// they are clamped.
func (d *Decoder) invertLetterbox(cx, cy, w, h float32, scale preprocess.ScaleInfo) (images.Rect, bool) {
	if scale.Scale <= 0 || scale.FrameWidth <= 0 || scale.FrameHeight <= 0 {
		return images.Rect{}, false
	}

	// To model-input pixels, strip the padding, undo the resize, then
	// renormalize against the original frame.
	px := cx*float32(scale.InputWidth) - float32(scale.PadX)
	py := cy*float32(scale.InputHeight) - float32(scale.PadY)
	fx := px / scale.Scale / float32(scale.FrameWidth)
	fy := py / scale.Scale / float32(scale.FrameHeight)
	fw := w * float32(scale.InputWidth) / scale.Scale / float32(scale.FrameWidth)
	fh := h * float32(scale.InputHeight) / scale.Scale / float32(scale.FrameHeight)

	x1 := fx - fw/2
	y1 := fy - fh/2
	x2 := fx + fw/2
	y2 := fy + fh/2

	for _, v := range [4]float32{x1, y1, x2, y2} {
		if math32.IsNaN(v) || v < -boundsEpsilon || v > 1+boundsEpsilon {
			return images.Rect{}, false
		}
	}

	return images.Rect{
		X1: clamp01(x1),
		Y1: clamp01(y1),
		X2: clamp01(x2),
		Y2: clamp01(y2),
	}, true
}

func clamp01(v float32) float32 {
	return math32.Min(math32.Max(v, 0), 1)
}
