// Package vision wraps the inference oracles: face localization, the
// face embedding sidecar, and the DNN object detector. The models are
// opaque to the rest of the service, adapters only move pixels in and
// boxes/vectors out.
package vision

import "image"

// Detection is one object detector candidate.
type Detection struct {
	Label      string
	Confidence float32
	Box        image.Rectangle
}

// DetectedFace is a localized face within a frame. The embedding is
// computed lazily by the engine, only when a cycle needs identity.
type DetectedFace struct {
	Box        image.Rectangle
	Confidence float32
	Embedding  []float64
}

// LabelCellPhone is the detector class the exam pipeline watches for.
const LabelCellPhone = "cell phone"
