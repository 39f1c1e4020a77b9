// Package overlay draws detection results onto frames for debugging
// and archival snapshots.
package overlay

import (
	"fmt"
	"image"
	"image/color"
	"time"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"

	"github.com/wastesense/edge-ml/frames"
	"github.com/wastesense/edge-ml/postprocess"
)

// Options controls the rendered annotations.
type Options struct {
	// BoxColor outlines detection boxes. Zero value falls back to green.
	BoxColor color.RGBA
	// Thickness of box outlines in pixels; defaults to 2.
	Thickness int
	// FontScale for labels; defaults to 0.5.
	FontScale float64
	// DeviceLabel, when non-empty, is stamped in the top-left corner.
	DeviceLabel string
	// Stamp, when non-zero, is rendered under the device label.
	// Annotate fills it with the frame's capture time.
	Stamp time.Time
}

func (o Options) withDefaults() Options {
	if o.BoxColor == (color.RGBA{}) {
		o.BoxColor = color.RGBA{G: 255, A: 255}
	}
	if o.Thickness <= 0 {
		o.Thickness = 2
	}
	if o.FontScale <= 0 {
		o.FontScale = 0.5
	}
	return o
}

// Draw renders detections, the device label and the timestamp onto an
// existing BGR Mat in place.
//
// Detection coordinates are normalized center-form; they are scaled to
// the Mat's pixel grid here.
func Draw(mat *gocv.Mat, detections []postprocess.Detection, opts Options) {
	opts = opts.withDefaults()
	width := mat.Cols()
	height := mat.Rows()

	for _, det := range detections {
		rect := pixelRect(det, width, height)
		gocv.Rectangle(mat, rect, opts.BoxColor, opts.Thickness)

		label := fmt.Sprintf("%s %.2f", det.Category, det.Confidence)
		labelAt := image.Pt(rect.Min.X, rect.Min.Y-6)
		if labelAt.Y < 12 {
			labelAt.Y = rect.Min.Y + 14
		}
		gocv.PutText(mat, label, labelAt, gocv.FontHersheySimplex, opts.FontScale, opts.BoxColor, 1)
	}

	stampY := 18
	if opts.DeviceLabel != "" {
		gocv.PutText(mat, opts.DeviceLabel, image.Pt(6, stampY),
			gocv.FontHersheySimplex, opts.FontScale, opts.BoxColor, 1)
		stampY += 18
	}
	if !opts.Stamp.IsZero() {
		gocv.PutText(mat, opts.Stamp.Format(time.RFC3339), image.Pt(6, stampY),
			gocv.FontHersheySimplex, opts.FontScale, opts.BoxColor, 1)
	}
}

// Annotate renders detections onto a copy of the frame and returns it
// as a BGR Mat. The caller owns the Mat and must Close it. The frame's
// capture time is used as the timestamp unless the options carry one.
func Annotate(f frames.Frame, detections []postprocess.Detection, opts Options) (gocv.Mat, error) {
	if err := f.Validate(); err != nil {
		return gocv.Mat{}, err
	}
	if opts.Stamp.IsZero() {
		opts.Stamp = f.CapturedAt
	}

	mat, err := gocv.NewMatFromBytes(f.Height, f.Width, gocv.MatTypeCV8UC3, f.Pixels)
	if err != nil {
		return gocv.Mat{}, errors.Wrap(err, "frame to mat")
	}
	Draw(&mat, detections, opts)
	return mat, nil
}

// Save annotates the frame and writes it as an image file; the format
// follows the path extension.
func Save(path string, f frames.Frame, detections []postprocess.Detection, opts Options) error {
	mat, err := Annotate(f, detections, opts)
	if err != nil {
		return err
	}
	defer mat.Close()

	if ok := gocv.IMWrite(path, mat); !ok {
		return errors.Errorf("write annotated frame to %s", path)
	}
	return nil
}

// pixelRect converts a normalized center-form detection into pixel
// corner coordinates, clamped to the frame.
func pixelRect(det postprocess.Detection, width, height int) image.Rectangle {
	x1 := int((det.X - det.W/2) * float32(width))
	y1 := int((det.Y - det.H/2) * float32(height))
	x2 := int((det.X + det.W/2) * float32(width))
	y2 := int((det.Y + det.H/2) * float32(height))

	return image.Rect(
		clampInt(x1, 0, width-1),
		clampInt(y1, 0, height-1),
		clampInt(x2, 0, width-1),
		clampInt(y2, 0, height-1),
	)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
