// Package common - Shared detection result types and box geometry.
package common

import (
	"fmt"
	"image"

	"github.com/chewxy/math32"
)

// Box is an axis-aligned bounding box in corner form, in pixel coordinates.
type Box struct {
	X1, Y1, X2, Y2 float32
}

// Width returns the horizontal extent of the box.
func (b Box) Width() float32 {
	return math32.Max(b.X2-b.X1, 0)
}

// Height returns the vertical extent of the box.
func (b Box) Height() float32 {
	return math32.Max(b.Y2-b.Y1, 0)
}

// Area returns the area of the box in square pixels.
func (b Box) Area() float32 {
	return b.Width() * b.Height()
}

// Intersection calculates the overlapping area between two boxes.
//
// Arguments:
//   - other: The other box to intersect with.
//
// Returns:
//   - float32: The area of the intersection in square pixels.
func (b Box) Intersection(other Box) float32 {
	w := math32.Min(b.X2, other.X2) - math32.Max(b.X1, other.X1)
	h := math32.Min(b.Y2, other.Y2) - math32.Max(b.Y1, other.Y1)
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// Union calculates the combined area covered by two boxes.
//
// Arguments:
//   - other: The other box to union with.
//
// Returns:
//   - float32: The area of the union in square pixels.
func (b Box) Union(other Box) float32 {
	return b.Area() + other.Area() - b.Intersection(other)
}

// IoU calculates the Intersection over Union between two boxes.
//
// This is the overlap metric used by non-maximum suppression to decide
// whether two candidates describe the same object.
//
// Arguments:
//   - other: The other box to compare against.
//
// Returns:
//   - float32: The IoU value between 0 and 1. A degenerate pair with zero
//     union yields 0.
func (b Box) IoU(other Box) float32 {
	union := b.Union(other)
	if union <= 0 {
		return 0
	}
	return b.Intersection(other) / union
}

// Clamp limits the box corners to the rectangle [0,width]x[0,height].
func (b Box) Clamp(width, height float32) Box {
	return Box{
		X1: math32.Min(math32.Max(b.X1, 0), width),
		Y1: math32.Min(math32.Max(b.Y1, 0), height),
		X2: math32.Min(math32.Max(b.X2, 0), width),
		Y2: math32.Min(math32.Max(b.Y2, 0), height),
	}
}

// ToRect converts the box to an image.Rectangle.
//
// This loses fractional pixels around the edges, which is acceptable for
// drawing overlays and region extraction.
func (b Box) ToRect() image.Rectangle {
	return image.Rect(int(b.X1), int(b.Y1), int(b.X2), int(b.Y2)).Canon()
}

// Detection is a single decoded detection in original-image pixel space.
//
// It is the only value the pipeline exposes to consumers; they are free to
// copy or discard it, and it holds no references back into the pipeline.
type Detection struct {
	Label string
	Score float32
	Box   Box
}

func (d Detection) String() string {
	return fmt.Sprintf("Object %s (confidence %f): (%f, %f), (%f, %f)",
		d.Label, d.Score, d.Box.X1, d.Box.Y1, d.Box.X2, d.Box.Y2)
}
