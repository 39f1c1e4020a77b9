// Package frames - frame acquisition, admission and buffering ahead of
// the detection worker.
package frames

import (
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Channels is the pixel depth of every frame in the pipeline.
const Channels = 3

// ErrInvalidFrame flags frames the detection path cannot process.
var ErrInvalidFrame = errors.New("invalid frame")

// Frame is one captured camera image: 8-bit BGR pixels in row-major
// HWC order, tagged with its capture time. The pixel buffer belongs to
// whichever stage currently holds the frame; the detection path never
// mutates it in place.
type Frame struct {
	ID         uuid.UUID
	Pixels     []byte
	Width      int
	Height     int
	CapturedAt time.Time
}

// New wraps a pixel buffer into a Frame stamped with the current time.
// The buffer is adopted, not copied.
func New(pixels []byte, width, height int) Frame {
	return Frame{
		ID:         uuid.New(),
		Pixels:     pixels,
		Width:      width,
		Height:     height,
		CapturedAt: time.Now(),
	}
}

// Empty reports whether the frame carries no pixel data at all.
// Cheap enough for the ingestion hot path; full geometry validation
// happens in the preprocessor.
func (f Frame) Empty() bool {
	return len(f.Pixels) == 0
}

// Validate checks that the pixel buffer matches the declared geometry.
// A buffer of the wrong size (e.g. a single-channel capture) is
// rejected rather than guessed at.
func (f Frame) Validate() error {
	if f.Width <= 0 || f.Height <= 0 {
		return errors.Wrapf(ErrInvalidFrame, "dimensions %dx%d", f.Width, f.Height)
	}
	want := f.Width * f.Height * Channels
	if len(f.Pixels) != want {
		return errors.Wrapf(ErrInvalidFrame, "pixel buffer holds %d bytes, want %d (%dx%dx%d)",
			len(f.Pixels), want, f.Height, f.Width, Channels)
	}
	return nil
}

// At returns the BGR triple at (x, y). Callers must have validated
// the frame first.
func (f Frame) At(x, y int) (b, g, r byte) {
	i := (y*f.Width + x) * Channels
	return f.Pixels[i], f.Pixels[i+1], f.Pixels[i+2]
}
