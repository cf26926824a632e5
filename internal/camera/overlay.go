// overlay.go: live view annotation. The overlay mirrors what the
// decision engine last concluded so an operator glancing at the monitor
// sees pipeline state without opening the status API.
package camera

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/adityasharma0903/CCTVattendance/internal/engine"
)

var (
	overlayGreen  = color.RGBA{G: 200, A: 0}
	overlayYellow = color.RGBA{R: 220, G: 200, A: 0}
	overlayRed    = color.RGBA{R: 220, A: 0}
	overlayGray   = color.RGBA{R: 160, G: 160, B: 160, A: 0}
)

func statusColor(status engine.Status) color.RGBA {
	switch status {
	case engine.StatusMarked:
		return overlayGreen
	case engine.StatusRecognized, engine.StatusPhoneDetected:
		return overlayYellow
	case engine.StatusExamAlert:
		return overlayRed
	default:
		return overlayGray
	}
}

func statusLine(d *engine.Decision) string {
	switch d.Status {
	case engine.StatusMarked:
		names := ""
		for i, m := range d.Marks {
			if i > 0 {
				names += ", "
			}
			names += fmt.Sprintf("%s (%s)", m.Name, m.Status)
		}
		return "MARKED: " + names
	case engine.StatusRecognized:
		return fmt.Sprintf("RECOGNIZED: %v", d.Recognized)
	case engine.StatusNoSchedule:
		return "NO ACTIVE CLASS"
	case engine.StatusNoFace:
		return "SCANNING"
	case engine.StatusExamMonitoring:
		return "EXAM MODE - monitoring"
	case engine.StatusPhoneDetected:
		return fmt.Sprintf("PHONE CANDIDATE (score %d)", d.PhoneScore)
	case engine.StatusExamAlert:
		return "EXAM VIOLATION: " + d.Alert.Name
	default:
		return string(d.Status)
	}
}

// drawOverlay renders the latest decision onto the live frame. A nil
// decision means no cycle has completed yet.
func drawOverlay(mat *gocv.Mat, d *engine.Decision) {
	if d == nil {
		gocv.PutText(mat, "starting...", image.Pt(10, 30),
			gocv.FontHersheySimplex, 0.7, overlayGray, 2)
		return
	}

	clr := statusColor(d.Status)
	gocv.PutText(mat, statusLine(d), image.Pt(10, 30),
		gocv.FontHersheySimplex, 0.7, clr, 2)
	gocv.PutText(mat, fmt.Sprintf("%s | %s | faces: %d", d.CameraID, d.Mode, d.FaceCount),
		image.Pt(10, 60), gocv.FontHersheySimplex, 0.5, overlayGray, 1)
	gocv.PutText(mat, d.At.Format("15:04:05"), image.Pt(10, 85),
		gocv.FontHersheySimplex, 0.5, overlayGray, 1)
}
