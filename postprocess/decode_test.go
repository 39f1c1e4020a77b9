package postprocess

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorgonia.org/tensor"

	"github.com/wastesense/edge-ml/preprocess"
)

// rawBox is a raw model-output candidate for building test tensors.
type rawBox struct {
	classID      int
	score        float32
	cx, cy, w, h float32
}

// rawTensor lays candidates out as [1, 4+classes, boxes] in the
// transposed layout the decoder reads.
func rawTensor(classes int, boxes []rawBox) *tensor.Dense {
	n := len(boxes)
	attrs := 4 + classes
	data := make([]float32, attrs*n)
	for i, b := range boxes {
		data[0*n+i] = b.cx
		data[1*n+i] = b.cy
		data[2*n+i] = b.w
		data[3*n+i] = b.h
		if b.classID >= 0 && b.classID < classes {
			data[(4+b.classID)*n+i] = b.score
		}
	}
	return tensor.New(tensor.WithShape(1, attrs, n), tensor.WithBacking(data))
}

// identityScale is a 640x640 frame into a 640x640 input: no resize,
// no padding.
func identityScale() preprocess.ScaleInfo {
	return preprocess.ScaleInfo{
		Scale:       1,
		FrameWidth:  640,
		FrameHeight: 640,
		InputWidth:  640,
		InputHeight: 640,
	}
}

func TestDecodeCategoryGating(t *testing.T) {
	// Class 39 is "bottle" -> plastic.
	boxes := []rawBox{{classID: 39, score: 0.05, cx: 0.5, cy: 0.5, w: 0.2, h: 0.2}}

	strict := NewDecoder(Config{CategoryThresholds: map[string]float32{CategoryPlastic: 0.1}})
	detections, err := strict.Decode(rawTensor(80, boxes), identityScale())
	require.NoError(t, err)
	assert.Empty(t, detections, "0.05 confidence must not pass a 0.1 threshold")

	lenient := NewDecoder(Config{CategoryThresholds: map[string]float32{CategoryPlastic: 0.01}})
	detections, err = lenient.Decode(rawTensor(80, boxes), identityScale())
	require.NoError(t, err)
	require.Len(t, detections, 1)
	assert.Equal(t, CategoryPlastic, detections[0].Category)
	assert.InDelta(t, 0.05, detections[0].Confidence, 1e-6)
}

func TestDecodeCategoryRemap(t *testing.T) {
	d := NewDecoder(Config{})
	boxes := []rawBox{
		{classID: 40, score: 0.9, cx: 0.2, cy: 0.2, w: 0.1, h: 0.1}, // wine glass -> glass
		{classID: 73, score: 0.9, cx: 0.5, cy: 0.5, w: 0.1, h: 0.1}, // book -> paper
		{classID: 46, score: 0.9, cx: 0.8, cy: 0.8, w: 0.1, h: 0.1}, // banana -> organic
		{classID: 0, score: 0.99, cx: 0.5, cy: 0.2, w: 0.1, h: 0.1}, // person: not waste
	}

	detections, err := d.Decode(rawTensor(80, boxes), identityScale())
	require.NoError(t, err)
	require.Len(t, detections, 3, "unmapped classes are discarded")

	categories := make(map[string]bool)
	for _, det := range detections {
		categories[det.Category] = true
	}
	assert.True(t, categories[CategoryGlass])
	assert.True(t, categories[CategoryPaper])
	assert.True(t, categories[CategoryOrganic])
}

func TestDecodeFiltersInvalidCandidates(t *testing.T) {
	d := NewDecoder(Config{})
	nan := float32(math.NaN())
	boxes := []rawBox{
		{classID: 39, score: nan, cx: 0.5, cy: 0.5, w: 0.2, h: 0.2},  // NaN confidence
		{classID: 39, score: 0.9, cx: 0.5, cy: 0.5, w: 0, h: 0.2},    // zero-area box
		{classID: 39, score: 0.9, cx: 2.5, cy: 0.5, w: 0.2, h: 0.2},  // far outside frame
		{classID: 39, score: 0.9, cx: 0.3, cy: 0.3, w: 0.2, h: 0.2},  // the one good box
		{},                                                           // empty row
	}

	detections, err := d.Decode(rawTensor(80, boxes), identityScale())
	require.NoError(t, err)
	require.Len(t, detections, 1)
	assert.InDelta(t, 0.3, detections[0].X, 1e-4)
	assert.InDelta(t, 0.3, detections[0].Y, 1e-4)
}

func TestDecodeCoordinateRoundTrip(t *testing.T) {
	// 800x600 letterboxed into 640x640: scale 0.8, padY 80. A box at
	// the exact canvas center must decode to frame center (0.5, 0.5).
	scale := preprocess.ScaleInfo{
		Scale:       0.8,
		PadX:        0,
		PadY:        80,
		FrameWidth:  800,
		FrameHeight: 600,
		InputWidth:  640,
		InputHeight: 640,
	}

	d := NewDecoder(Config{})
	boxes := []rawBox{{classID: 39, score: 0.9, cx: 0.5, cy: 0.5, w: 0.1, h: 0.1}}

	detections, err := d.Decode(rawTensor(80, boxes), scale)
	require.NoError(t, err)
	require.Len(t, detections, 1)

	det := detections[0]
	assert.InDelta(t, 0.5, det.X, 1e-5)
	assert.InDelta(t, 0.5, det.Y, 1e-5)
	// Width: 0.1*640 input px / 0.8 / 800 = 0.1 of the frame.
	assert.InDelta(t, 0.1, det.W, 1e-5)
	// Height: 64 input px / 0.8 / 600.
	assert.InDelta(t, 64.0/0.8/600.0, det.H, 1e-5)
}

func TestDecodeConfidenceOrderAndCap(t *testing.T) {
	d := NewDecoder(Config{MaxDetections: 2})
	boxes := []rawBox{
		{classID: 39, score: 0.6, cx: 0.1, cy: 0.1, w: 0.05, h: 0.05},
		{classID: 40, score: 0.9, cx: 0.5, cy: 0.5, w: 0.05, h: 0.05},
		{classID: 73, score: 0.7, cx: 0.8, cy: 0.8, w: 0.05, h: 0.05},
	}

	detections, err := d.Decode(rawTensor(80, boxes), identityScale())
	require.NoError(t, err)
	require.Len(t, detections, 2, "result list is capped at MaxDetections")
	assert.InDelta(t, 0.9, detections[0].Confidence, 1e-6)
	assert.InDelta(t, 0.7, detections[1].Confidence, 1e-6)
}

func TestDecodeAppliesNMS(t *testing.T) {
	d := NewDecoder(Config{IoUThreshold: 0.5})
	// Two near-identical plastic boxes: the weaker one is suppressed.
	boxes := []rawBox{
		{classID: 39, score: 0.9, cx: 0.5, cy: 0.5, w: 0.2, h: 0.2},
		{classID: 41, score: 0.6, cx: 0.5, cy: 0.5, w: 0.21, h: 0.2},
	}

	detections, err := d.Decode(rawTensor(80, boxes), identityScale())
	require.NoError(t, err)
	require.Len(t, detections, 1)
	assert.InDelta(t, 0.9, detections[0].Confidence, 1e-6)
}

func TestDecodeRejectsBadLayout(t *testing.T) {
	d := NewDecoder(Config{})

	flat := tensor.New(tensor.WithShape(10), tensor.WithBacking(make([]float32, 10)))
	_, err := d.Decode(flat, identityScale())
	assert.Error(t, err)

	_, err = d.Decode(nil, identityScale())
	assert.Error(t, err)
}
