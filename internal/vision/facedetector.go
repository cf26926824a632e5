// facedetector.go: haar cascade face localization plus face crop
// extraction for the embedding sidecar.
package vision

import (
	"image"
	"log/slog"

	"gocv.io/x/gocv"

	"github.com/adityasharma0903/CCTVattendance/internal/errors"
	"github.com/adityasharma0903/CCTVattendance/internal/frame"
	"github.com/adityasharma0903/CCTVattendance/internal/logging"
)

// facePadding is added around the detected box before cropping, the
// embedding model works better with a little context.
const facePadding = 20

// FaceDetector localizes faces within frames.
type FaceDetector struct {
	classifier gocv.CascadeClassifier
	logger     *slog.Logger
}

// NewFaceDetector loads the cascade from the given path.
func NewFaceDetector(cascadePath string) (*FaceDetector, error) {
	classifier := gocv.NewCascadeClassifier()
	if !classifier.Load(cascadePath) {
		_ = classifier.Close()
		return nil, errors.Newf("failed to load face cascade from %s", cascadePath).
			Component("face-detector").
			Category(errors.CategoryConfiguration).
			Build()
	}
	return &FaceDetector{
		classifier: classifier,
		logger:     logging.ForService("face-detector"),
	}, nil
}

// Close releases the cascade.
func (d *FaceDetector) Close() error {
	return d.classifier.Close()
}

// DetectFaces returns the face boxes found in the frame. No faces is a
// normal, frequent outcome and yields an empty slice.
func (d *FaceDetector) DetectFaces(f frame.Frame) []DetectedFace {
	if f.Mat.Empty() {
		return nil
	}
	rects := d.classifier.DetectMultiScale(f.Mat)
	faces := make([]DetectedFace, 0, len(rects))
	for _, r := range rects {
		faces = append(faces, DetectedFace{
			Box: r,
			// Cascade detection carries no score, treat localization as certain
			// and let embedding similarity do the gating.
			Confidence: 1.0,
		})
	}
	return faces
}

// CropJPEG extracts the padded face region and encodes it as JPEG for
// the embedding sidecar.
func (d *FaceDetector) CropJPEG(f frame.Frame, box image.Rectangle) ([]byte, error) {
	padded := image.Rect(
		max(0, box.Min.X-facePadding),
		max(0, box.Min.Y-facePadding),
		min(f.Width, box.Max.X+facePadding),
		min(f.Height, box.Max.Y+facePadding),
	)
	if padded.Empty() {
		return nil, errors.Newf("face box %v collapses to empty region", box).
			Component("face-detector").
			Category(errors.CategoryFrameDecode).
			Build()
	}

	region := f.Mat.Region(padded)
	defer func() { _ = region.Close() }()

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, region)
	if err != nil {
		return nil, errors.New(err).
			Component("face-detector").
			Category(errors.CategoryFrameDecode).
			Build()
	}
	defer buf.Close()

	out := make([]byte, len(buf.GetBytes()))
	copy(out, buf.GetBytes())
	return out, nil
}
