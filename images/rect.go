// Package images - box geometry shared by the detection pipeline.
package images

import "github.com/chewxy/math32"

// Rect is a lightweight corner-form bounding box.
type Rect struct {
	// X2,Y2 are exclusive (like image.Rectangle).
	X1, Y1, X2, Y2 float32
}

// Width returns the horizontal extent of the box.
func (r Rect) Width() float32 {
	return r.X2 - r.X1
}

// Height returns the vertical extent of the box.
func (r Rect) Height() float32 {
	return r.Y2 - r.Y1
}

// Area returns the box area, 0 for inverted boxes.
func (r Rect) Area() float32 {
	w := r.Width()
	h := r.Height()
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// Valid reports whether every coordinate is finite and the box has
// positive area. Candidates failing this must never reach IoU
// arithmetic: a NaN comparison would silently corrupt suppression.
func (r Rect) Valid() bool {
	for _, v := range [4]float32{r.X1, r.Y1, r.X2, r.Y2} {
		if math32.IsNaN(v) || math32.IsInf(v, 0) {
			return false
		}
	}
	return r.Area() > 0
}

// CalculateIoU returns the Intersection over Union of two boxes.
//
// Arguments:
//   - r: The first rectangle.
//   - o: The other rectangle to compare against.
//
// Returns:
//   - float32: A value in [0, 1]; 0 when the boxes do not overlap or
//     either box is degenerate.
func CalculateIoU(r, o Rect) float32 {
	if !r.Valid() || !o.Valid() {
		return 0
	}

	// The intersection starts where both boxes have begun and ends as
	// soon as the first one ends.
	ix1 := math32.Max(r.X1, o.X1)
	iy1 := math32.Max(r.Y1, o.Y1)
	ix2 := math32.Min(r.X2, o.X2)
	iy2 := math32.Min(r.Y2, o.Y2)

	interW := ix2 - ix1
	interH := iy2 - iy1
	if interW <= 0 || interH <= 0 {
		return 0
	}
	interArea := interW * interH

	// Inclusion-exclusion: Union(A, B) = Area(A) + Area(B) - Inter(A, B).
	unionArea := r.Area() + o.Area() - interArea

	return interArea / unionArea
}
