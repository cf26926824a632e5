// geometry.go: bounding box math shared by the tracker and validators.
package frame

import (
	"image"
	"math"
)

// Center returns the center point of a rectangle.
func Center(r image.Rectangle) image.Point {
	return image.Pt(r.Min.X+r.Dx()/2, r.Min.Y+r.Dy()/2)
}

// Dist returns the euclidean distance between two points.
func Dist(a, b image.Point) float64 {
	dx := float64(a.X - b.X)
	dy := float64(a.Y - b.Y)
	return math.Sqrt(dx*dx + dy*dy)
}

// IoU returns the intersection-over-union of two rectangles in [0, 1].
// Degenerate rectangles yield 0.
func IoU(a, b image.Rectangle) float64 {
	inter := a.Intersect(b)
	if inter.Empty() {
		return 0
	}
	interArea := float64(inter.Dx() * inter.Dy())
	unionArea := float64(a.Dx()*a.Dy()) + float64(b.Dx()*b.Dy()) - interArea
	if unionArea <= 0 {
		return 0
	}
	return interArea / unionArea
}

// AreaRatio returns the area of r relative to a frame of the given size.
func AreaRatio(r image.Rectangle, frameWidth, frameHeight int) float64 {
	frameArea := float64(frameWidth) * float64(frameHeight)
	if frameArea <= 0 {
		return 0
	}
	return float64(r.Dx()*r.Dy()) / frameArea
}

// AspectRatio returns the width/height ratio of r. A zero height yields
// +Inf so callers reject it with the aspect window check.
func AspectRatio(r image.Rectangle) float64 {
	w, h := float64(r.Dx()), float64(r.Dy())
	if h <= 0 {
		return math.Inf(1)
	}
	return w / h
}

// PathLength returns the cumulative distance travelled along a sequence
// of points.
func PathLength(points []image.Point) float64 {
	var total float64
	for i := 1; i < len(points); i++ {
		total += Dist(points[i-1], points[i])
	}
	return total
}
