// objectdetector.go: MobileNet-SSD object detection through the gocv DNN
// module, used by the exam pipeline to surface cell phone candidates.
package vision

import (
	"image"
	"log/slog"
	"time"

	"gocv.io/x/gocv"

	"github.com/adityasharma0903/CCTVattendance/internal/conf"
	"github.com/adityasharma0903/CCTVattendance/internal/errors"
	"github.com/adityasharma0903/CCTVattendance/internal/frame"
	"github.com/adityasharma0903/CCTVattendance/internal/logging"
)

// cocoLabels maps the COCO class ids this service cares about. Anything
// else the detector reports is ignored.
var cocoLabels = map[int]string{
	1:  "person",
	62: "chair",
	73: "laptop",
	77: LabelCellPhone,
	84: "book",
}

// ObjectDetector runs a frozen SSD graph over full frames.
type ObjectDetector struct {
	net       gocv.Net
	threshold float32
	logger    *slog.Logger
}

// NewObjectDetector loads the detection graph from settings.
func NewObjectDetector(settings *conf.DetectorSettings) (*ObjectDetector, error) {
	net := gocv.ReadNet(settings.ModelPath, settings.ConfigPath)
	if net.Empty() {
		return nil, errors.Newf("failed to load object detection model from %s", settings.ModelPath).
			Component("object-detector").
			Category(errors.CategoryConfiguration).
			Build()
	}
	return &ObjectDetector{
		net:       net,
		threshold: settings.Threshold,
		logger:    logging.ForService("object-detector"),
	}, nil
}

// Close releases the network.
func (d *ObjectDetector) Close() error {
	return d.net.Close()
}

// Detect runs one forward pass and returns candidates above the raw
// confidence threshold with a known class label.
func (d *ObjectDetector) Detect(f frame.Frame) []Detection {
	if f.Mat.Empty() {
		return nil
	}

	blob := gocv.BlobFromImage(f.Mat, 1.0/127.5, image.Pt(300, 300),
		gocv.NewScalar(127.5, 127.5, 127.5, 0), true, false)
	defer func() { _ = blob.Close() }()

	d.net.SetInput(blob, "")
	output := d.net.Forward("")
	defer func() { _ = output.Close() }()

	var results []Detection
	// SSD output is a flat tensor of 7-value records:
	// [batch, classID, confidence, left, top, right, bottom]
	for i := 0; i < output.Total(); i += 7 {
		confidence := output.GetFloatAt(0, i+2)
		if confidence < d.threshold {
			continue
		}
		classID := int(output.GetFloatAt(0, i+1))
		label, known := cocoLabels[classID]
		if !known {
			continue
		}

		left := int(output.GetFloatAt(0, i+3) * float32(f.Width))
		top := int(output.GetFloatAt(0, i+4) * float32(f.Height))
		right := int(output.GetFloatAt(0, i+5) * float32(f.Width))
		bottom := int(output.GetFloatAt(0, i+6) * float32(f.Height))

		box := image.Rect(left, top, right, bottom).Intersect(image.Rect(0, 0, f.Width, f.Height))
		if box.Empty() {
			continue
		}
		results = append(results, Detection{
			Label:      label,
			Confidence: confidence,
			Box:        box,
		})
	}
	return results
}

// Warmup pushes one blank frame through the network so model load cost
// is paid at session start, not on the first real detection.
func (d *ObjectDetector) Warmup() {
	mat := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), 300, 300, gocv.MatTypeCV8UC3)
	defer func() { _ = mat.Close() }()
	f := frame.NewFrame(mat, time.Now())
	_ = d.Detect(f)
	d.logger.Info("object detector warm")
}
