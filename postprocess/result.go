// Package postprocess - decodes raw detector output into waste
// detections: box decoding, category remapping, per-category
// confidence gating and Non-Maximum Suppression.
package postprocess

import (
	"fmt"

	"github.com/wastesense/edge-ml/images"
)

// Detection is one detected waste item. X,Y are the box center and
// W,H its extent, all normalized to [0,1] of the original frame.
// Detections are immutable once returned.
type Detection struct {
	Category   string  `json:"class"`
	Confidence float32 `json:"confidence"`
	X          float32 `json:"x"`
	Y          float32 `json:"y"`
	W          float32 `json:"width"`
	H          float32 `json:"height"`
}

func (d Detection) String() string {
	return fmt.Sprintf("%s (confidence %.3f) center (%.3f, %.3f) size (%.3f, %.3f)",
		d.Category, d.Confidence, d.X, d.Y, d.W, d.H)
}

// Candidate is a decoded box between category gating and NMS.
type Candidate struct {
	Category string
	Score    float32
	// Box is corner-form, normalized to the original frame.
	Box images.Rect
}
