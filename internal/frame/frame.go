// Package frame holds the frame value type passed from the camera session
// into the decision engine, plus bounding box geometry helpers.
package frame

import (
	"time"

	"gocv.io/x/gocv"
)

// Frame is a captured video frame. The camera session owns the original
// Mat; a Clone is handed to the inference worker so the display loop and
// the worker never share pixel data.
type Frame struct {
	Mat        gocv.Mat
	Width      int
	Height     int
	CapturedAt time.Time
}

// NewFrame wraps a Mat with its dimensions and capture timestamp.
func NewFrame(mat gocv.Mat, capturedAt time.Time) Frame {
	return Frame{
		Mat:        mat,
		Width:      mat.Cols(),
		Height:     mat.Rows(),
		CapturedAt: capturedAt,
	}
}

// Clone returns a deep copy of the frame with its own pixel buffer.
func (f Frame) Clone() Frame {
	return Frame{
		Mat:        f.Mat.Clone(),
		Width:      f.Width,
		Height:     f.Height,
		CapturedAt: f.CapturedAt,
	}
}

// Close releases the underlying pixel buffer.
func (f *Frame) Close() {
	if !f.Mat.Empty() {
		_ = f.Mat.Close()
	}
}

// Area returns the pixel area of the frame.
func (f Frame) Area() float64 {
	return float64(f.Width) * float64(f.Height)
}
