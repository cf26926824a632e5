// Package engine holds the per-frame decision logic: one captured frame
// plus the camera's current mode and schedule context in, one decision
// out. The engine owns every judgement call in the pipeline; capture,
// inference and persistence collaborators are injected.
package engine

import (
	"context"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/adityasharma0903/CCTVattendance/internal/backend"
	"github.com/adityasharma0903/CCTVattendance/internal/conf"
	"github.com/adityasharma0903/CCTVattendance/internal/frame"
	"github.com/adityasharma0903/CCTVattendance/internal/logging"
	"github.com/adityasharma0903/CCTVattendance/internal/matcher"
	"github.com/adityasharma0903/CCTVattendance/internal/observability"
	"github.com/adityasharma0903/CCTVattendance/internal/phonefilter"
	"github.com/adityasharma0903/CCTVattendance/internal/schedule"
	"github.com/adityasharma0903/CCTVattendance/internal/tracker"
	"github.com/adityasharma0903/CCTVattendance/internal/vision"
)

// Status summarizes one decision cycle's outcome.
type Status string

const (
	StatusNoSchedule     Status = "no_schedule"
	StatusMarked         Status = "marked"
	StatusRecognized     Status = "recognized"
	StatusNoFace         Status = "no_face"
	StatusPhoneDetected  Status = "phone_detected"
	StatusExamAlert      Status = "exam_alert"
	StatusExamMonitoring Status = "exam_monitoring"
)

// Mark is one attendance record written during a cycle.
type Mark struct {
	StudentID  string  `json:"student_id"`
	RollNumber string  `json:"roll_number"`
	Name       string  `json:"name"`
	Status     string  `json:"status"` // PRESENT or LATE
	Similarity float64 `json:"similarity"`
}

// Decision is the outcome of one cycle, rendered on the overlay,
// exposed on the status API and optionally published over MQTT.
type Decision struct {
	CameraID   string             `json:"camera_id"`
	Node       string             `json:"node,omitempty"`
	Mode       backend.CameraMode `json:"mode"`
	Status     Status             `json:"status"`
	At         time.Time          `json:"at"`
	FaceCount  int                `json:"face_count"`
	Marks      []Mark             `json:"marks,omitempty"`
	Recognized []string           `json:"recognized,omitempty"`
	PhoneScore int                `json:"phone_score,omitempty"`
	Alert      *Attribution       `json:"alert,omitempty"`
}

// Backend is the subset of the REST client the engine needs.
type Backend interface {
	GetCameraMode(ctx context.Context, cameraID string) (backend.CameraMode, error)
	CheckAttendanceExists(ctx context.Context, rollNumber, date, subjectID, batchID string) (backend.AttendanceCheck, error)
	RecordAttendance(ctx context.Context, record *backend.AttendanceRecord) error
	RecordExamViolation(ctx context.Context, record *backend.ViolationRecord) error
}

// Resolver resolves the active schedule window for a camera.
type Resolver interface {
	Resolve(ctx context.Context, cameraID string, requireExam bool, now time.Time) (*schedule.Window, error)
}

// FaceOracle localizes faces and extracts crops for embedding.
type FaceOracle interface {
	DetectFaces(f frame.Frame) []vision.DetectedFace
	CropJPEG(f frame.Frame, box image.Rectangle) ([]byte, error)
}

// EmbedOracle converts a JPEG face crop to an embedding vector.
type EmbedOracle interface {
	Embed(ctx context.Context, faceJPEG []byte) ([]float64, error)
}

// MatchIndex resolves embeddings to enrolled identities.
type MatchIndex interface {
	BestMatch(ctx context.Context, embedding []float64) matcher.Result
}

// ObjectOracle runs full-frame object detection.
type ObjectOracle interface {
	Detect(f frame.Frame) []vision.Detection
}

// PhoneValidator scores raw phone candidates.
type PhoneValidator interface {
	Evaluate(f frame.Frame, c phonefilter.Candidate, now time.Time) phonefilter.Verdict
	Reset()
}

// Notifier delivers out-of-band alerts. Implementations must treat an
// empty configuration as a silent no-op.
type Notifier interface {
	Send(ctx context.Context, title, message string) error
}

// Journal persists decisions locally for audit when the backend is down.
type Journal interface {
	SaveMark(ctx context.Context, record *backend.AttendanceRecord) error
	SaveViolation(ctx context.Context, record *backend.ViolationRecord) error
}

// Publisher pushes decision records to an external bus.
type Publisher interface {
	Publish(ctx context.Context, d *Decision) error
}

// Deps wires the engine's collaborators. Tracker is required; Notifier,
// Journal, Publisher and Metrics are optional.
type Deps struct {
	Backend   Backend
	Resolver  Resolver
	Faces     FaceOracle
	Embedder  EmbedOracle
	Matcher   MatchIndex
	Objects   ObjectOracle
	Phones    PhoneValidator
	Tracker   *tracker.Tracker
	Notifier  Notifier
	Journal   Journal
	Publisher Publisher
	Metrics   *observability.Metrics
}

// Engine drives the decision cycles for one camera.
type Engine struct {
	cfg    conf.EngineSettings
	camera conf.CameraSettings
	node   string
	deps   Deps

	marks  *EventTracker
	alerts *EventTracker

	rosterMu sync.RWMutex
	roster   map[string]backend.Student

	phoneStreak int
	streakStart time.Time
	lastMode    backend.CameraMode

	logger *slog.Logger
}

// New creates an engine for one camera.
func New(cfg *conf.EngineSettings, camera conf.CameraSettings, node string, deps Deps) *Engine {
	return &Engine{
		cfg:      *cfg,
		camera:   camera,
		node:     node,
		deps:     deps,
		marks:    NewEventTracker(cfg.MarkCooldown),
		alerts:   NewEventTracker(cfg.AlertCooldown),
		roster:   make(map[string]backend.Student),
		lastMode: backend.ModeNormal,
		logger:   logging.ForService("engine").With("camera_id", camera.ID),
	}
}

// SetRoster replaces the enrolled-student lookup table. Called by the
// roster reload loop alongside the matcher cache refresh.
func (e *Engine) SetRoster(students []backend.Student) {
	byRoll := make(map[string]backend.Student, len(students))
	for _, s := range students {
		byRoll[s.RollNumber] = s
	}
	e.rosterMu.Lock()
	e.roster = byRoll
	e.rosterMu.Unlock()
}

func (e *Engine) lookupStudent(rollNumber string) (backend.Student, bool) {
	e.rosterMu.RLock()
	defer e.rosterMu.RUnlock()
	s, ok := e.roster[rollNumber]
	return s, ok
}

// ProcessFrame runs one decision cycle. It never returns an error:
// every collaborator failure degrades to the least-information decision
// for the cycle and the next frame gets a clean attempt.
func (e *Engine) ProcessFrame(ctx context.Context, f frame.Frame, now time.Time) Decision {
	e.deps.Metrics.ObserveFrame(e.camera.ID)

	mode, err := e.deps.Backend.GetCameraMode(ctx, e.camera.ID)
	if err != nil {
		e.logger.Debug("camera mode poll failed, assuming normal", "error", err)
		mode = backend.ModeNormal
	}
	if mode != e.lastMode {
		e.logger.Info("camera mode changed", "from", e.lastMode, "to", mode)
		e.phoneStreak = 0
		if e.deps.Phones != nil {
			e.deps.Phones.Reset()
		}
		e.lastMode = mode
	}

	var d Decision
	if mode == backend.ModeExam {
		d = e.examCycle(ctx, f, now)
	} else {
		d = e.normalCycle(ctx, f, now)
	}

	d.CameraID = e.camera.ID
	d.Node = e.node
	d.Mode = mode
	d.At = now

	e.deps.Metrics.ObserveDecision(e.camera.ID, string(d.Status))
	e.deps.Metrics.SetActiveTracks(e.camera.ID, e.deps.Tracker.ActiveTracks())
	if e.deps.Publisher != nil {
		if err := e.deps.Publisher.Publish(ctx, &d); err != nil {
			e.logger.Warn("decision publish failed", "error", err)
		}
	}
	return d
}

// normalCycle runs the attendance pipeline: schedule, faces, identity,
// mark.
func (e *Engine) normalCycle(ctx context.Context, f frame.Frame, now time.Time) Decision {
	win, err := e.deps.Resolver.Resolve(ctx, e.camera.ID, false, now)
	if err != nil {
		e.logger.Warn("schedule resolution failed", "error", err)
		return Decision{Status: StatusNoSchedule}
	}
	if win == nil {
		return Decision{Status: StatusNoSchedule}
	}

	faces := e.detectFaces(f)
	if len(faces) == 0 {
		return Decision{Status: StatusNoFace}
	}

	observations := make([]tracker.Observation, 0, len(faces))
	for _, face := range faces {
		observations = append(observations, e.observe(ctx, f, face))
	}
	confirmations := e.deps.Tracker.Update(observations, now)

	d := Decision{FaceCount: len(faces)}
	for _, c := range confirmations {
		mark, outcome := e.mark(ctx, c, win, now)
		switch outcome {
		case markWritten:
			d.Marks = append(d.Marks, mark)
		case markSuppressed:
			d.Recognized = append(d.Recognized, c.RollNumber)
		}
	}

	switch {
	case len(d.Marks) > 0:
		d.Status = StatusMarked
	case len(d.Recognized) > 0:
		d.Status = StatusRecognized
	default:
		// Faces on screen but nothing actionable yet: tracks are still
		// gathering evidence or nobody matched the roster.
		d.Status = StatusNoFace
	}
	return d
}

func (e *Engine) detectFaces(f frame.Frame) []vision.DetectedFace {
	started := time.Now()
	faces := e.deps.Faces.DetectFaces(f)
	e.deps.Metrics.ObserveOracle("face-detect", time.Since(started))
	return faces
}

// observe turns one detected face into a track observation, attaching
// an identity when the embed and match oracles deliver one. Any oracle
// failure leaves the observation anonymous for this frame.
func (e *Engine) observe(ctx context.Context, f frame.Frame, face vision.DetectedFace) tracker.Observation {
	o := tracker.Observation{Box: face.Box}

	crop, err := e.deps.Faces.CropJPEG(f, face.Box)
	if err != nil {
		e.logger.Debug("face crop failed", "error", err)
		return o
	}

	started := time.Now()
	embedding, err := e.deps.Embedder.Embed(ctx, crop)
	e.deps.Metrics.ObserveOracle("embed", time.Since(started))
	if err != nil {
		e.logger.Debug("embedding failed", "error", err)
		return o
	}
	if len(embedding) == 0 {
		return o
	}

	started = time.Now()
	result := e.deps.Matcher.BestMatch(ctx, embedding)
	e.deps.Metrics.ObserveOracle("match", time.Since(started))
	if result.Matched {
		o.RollNumber = result.RollNumber
		o.Name = result.Name
		o.Similarity = result.Similarity
	}
	return o
}

type markOutcome int

const (
	markWritten markOutcome = iota
	markSuppressed
	markFailed
)

// mark writes one attendance record for a confirmed identity, guarded
// by the per-student cooldown and the remote existence check.
func (e *Engine) mark(ctx context.Context, c tracker.Confirmation, win *schedule.Window, now time.Time) (Mark, markOutcome) {
	key := e.camera.ID + ":" + c.RollNumber
	if !e.marks.Allowed(key, now) {
		return Mark{}, markSuppressed
	}

	check, err := e.deps.Backend.CheckAttendanceExists(ctx,
		c.RollNumber, now.Format("2006-01-02"), win.SubjectID, win.BatchID)
	if err != nil {
		// Without the dedup answer a write risks a duplicate; skip this
		// cycle and let the next confirmation retry.
		e.logger.Warn("attendance existence check failed",
			"roll_number", c.RollNumber, "error", err)
		return Mark{}, markFailed
	}
	if check.Exists {
		e.logger.Debug("attendance already marked", "roll_number", c.RollNumber)
		e.marks.Mark(key, now)
		return Mark{}, markSuppressed
	}

	status := backend.StatusPresent
	if now.After(win.Start.Add(e.cfg.LateAfter)) {
		status = backend.StatusLate
	}

	student, _ := e.lookupStudent(c.RollNumber)
	record := &backend.AttendanceRecord{
		StudentID:       student.StudentID,
		RollNumber:      c.RollNumber,
		CameraID:        e.camera.ID,
		Timestamp:       now.Format(backend.TimestampLayout),
		SubjectID:       win.SubjectID,
		BatchID:         win.BatchID,
		Status:          status,
		ConfidenceScore: c.Similarity,
	}
	if err := e.deps.Backend.RecordAttendance(ctx, record); err != nil {
		e.logger.Error("attendance write failed",
			"roll_number", c.RollNumber, "error", err)
		return Mark{}, markFailed
	}

	e.marks.Mark(key, now)
	e.deps.Metrics.ObserveMark(e.camera.ID, status)
	e.journalMark(ctx, record)
	e.logger.Info("attendance marked",
		"roll_number", c.RollNumber, "name", c.Name,
		"status", status, "similarity", c.Similarity)

	return Mark{
		StudentID:  student.StudentID,
		RollNumber: c.RollNumber,
		Name:       c.Name,
		Status:     status,
		Similarity: c.Similarity,
	}, markWritten
}

func (e *Engine) journalMark(ctx context.Context, record *backend.AttendanceRecord) {
	if e.deps.Journal == nil {
		return
	}
	if err := e.deps.Journal.SaveMark(ctx, record); err != nil {
		e.logger.Warn("local mark journal failed", "error", err)
	}
}
