// Package camera owns the capture loop for one device: read frames,
// feed the decision engine at a bounded cadence through a single-slot
// dispatcher, and render the live view.
package camera

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"gocv.io/x/gocv"

	"github.com/adityasharma0903/CCTVattendance/internal/backend"
	"github.com/adityasharma0903/CCTVattendance/internal/conf"
	"github.com/adityasharma0903/CCTVattendance/internal/engine"
	"github.com/adityasharma0903/CCTVattendance/internal/errors"
	"github.com/adityasharma0903/CCTVattendance/internal/frame"
	"github.com/adityasharma0903/CCTVattendance/internal/logging"
)

const (
	captureWidth  = 640
	captureHeight = 480
	captureFPS    = 30

	// processEveryNth thins the capture stream before the detection
	// interval gate even looks at the clock.
	processEveryNth = 3

	maxProbeIndex = 4
	readRetryWait = 50 * time.Millisecond
)

// Session drives one camera.
type Session struct {
	cfg          conf.CameraSettings
	eng          *engine.Engine
	interval     time.Duration
	examInterval time.Duration

	capture *gocv.VideoCapture
	window  *gocv.Window
	latest  atomic.Pointer[engine.Decision]
	gate    dispatchGate
	logger  *slog.Logger
}

// NewSession creates a session; Open must succeed before Run. The
// session cycles at detectionInterval in normal mode and tightens to
// examInterval while the camera is proctoring.
func NewSession(cfg conf.CameraSettings, eng *engine.Engine, detectionInterval, examInterval time.Duration) *Session {
	return &Session{
		cfg:          cfg,
		eng:          eng,
		interval:     detectionInterval,
		examInterval: examInterval,
		logger:       logging.ForService("camera").With("camera_id", cfg.ID),
	}
}

// Open claims the video device. A negative configured device index
// triggers a probe over the first few indices.
func (s *Session) Open() error {
	device := s.cfg.Device
	if device < 0 {
		probed, err := probeDevice()
		if err != nil {
			return err
		}
		device = probed
	}

	capture, err := gocv.OpenVideoCapture(device)
	if err != nil {
		return errors.New(err).
			Component("camera").
			Category(errors.CategoryCameraDevice).
			Context("device", device).
			Build()
	}
	capture.Set(gocv.VideoCaptureFrameWidth, captureWidth)
	capture.Set(gocv.VideoCaptureFrameHeight, captureHeight)
	capture.Set(gocv.VideoCaptureFPS, captureFPS)

	s.capture = capture
	if s.cfg.Display {
		s.window = gocv.NewWindow(s.cfg.Name)
	}
	s.logger.Info("camera opened", "device", device)
	return nil
}

// probeDevice finds the first device index that delivers frames.
func probeDevice() (int, error) {
	for idx := 0; idx <= maxProbeIndex; idx++ {
		capture, err := gocv.OpenVideoCapture(idx)
		if err != nil {
			continue
		}
		mat := gocv.NewMat()
		ok := capture.Read(&mat) && !mat.Empty()
		_ = mat.Close()
		_ = capture.Close()
		if ok {
			return idx, nil
		}
	}
	return 0, errors.Newf("no usable video device in indices 0-%d", maxProbeIndex).
		Component("camera").
		Category(errors.CategoryCameraDevice).
		Build()
}

// Run captures until the context is canceled. The in-flight decision
// cycle, if any, finishes fire-and-forget after return.
func (s *Session) Run(ctx context.Context) error {
	mat := gocv.NewMat()
	defer func() { _ = mat.Close() }()

	// Decisions in flight at shutdown may still write attendance; they
	// get a context that survives cancellation.
	cycleCtx := context.WithoutCancel(ctx)

	var lastCycle time.Time
	frameIdx := 0

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if ok := s.capture.Read(&mat); !ok || mat.Empty() {
			time.Sleep(readRetryWait)
			continue
		}
		// Mirror for a natural live view, matching what students expect
		// to see on the monitor.
		gocv.Flip(mat, &mat, 1)
		frameIdx++

		now := time.Now()
		if frameIdx%processEveryNth == 0 && now.Sub(lastCycle) >= s.cycleInterval() {
			f := frame.NewFrame(mat.Clone(), now)
			dispatched := s.gate.tryDispatch(func() {
				defer f.Close()
				d := s.eng.ProcessFrame(cycleCtx, f, now)
				s.latest.Store(&d)
			})
			if dispatched {
				lastCycle = now
			} else {
				f.Close()
			}
		}

		if s.window != nil {
			drawOverlay(&mat, s.latest.Load())
			s.window.IMShow(mat)
			s.window.WaitKey(1)
		}
	}
}

// cycleInterval picks the cadence for the next decision cycle. Exam
// proctoring needs tighter phone sampling than attendance marking, so
// the exam interval applies as soon as the latest decision reports
// exam mode.
func (s *Session) cycleInterval() time.Duration {
	if d := s.latest.Load(); d != nil && d.Mode == backend.ModeExam {
		return s.examInterval
	}
	return s.interval
}

// Latest returns the newest completed decision, nil before the first.
func (s *Session) Latest() *engine.Decision {
	return s.latest.Load()
}

// CameraID returns the configured camera identifier.
func (s *Session) CameraID() string {
	return s.cfg.ID
}

// Close releases the device and the live view window.
func (s *Session) Close() {
	if s.capture != nil {
		if err := s.capture.Close(); err != nil {
			s.logger.Warn("device close failed", "error", err)
		}
	}
	if s.window != nil {
		_ = s.window.Close()
	}
}
