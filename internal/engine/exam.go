// exam.go: the exam proctoring cycle. Phone candidates must survive the
// validator and a consecutive-detection streak before an alert fires,
// and alerts are spaced by a cooldown so one phone does not flood the
// backend.
package engine

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/google/uuid"

	"github.com/adityasharma0903/CCTVattendance/internal/backend"
	"github.com/adityasharma0903/CCTVattendance/internal/frame"
	"github.com/adityasharma0903/CCTVattendance/internal/phonefilter"
	"github.com/adityasharma0903/CCTVattendance/internal/schedule"
	"github.com/adityasharma0903/CCTVattendance/internal/vision"
)

// Attribution is the best-effort identity behind an exam violation.
type Attribution struct {
	Tier       string  `json:"tier"` // sure, maybe or unknown
	StudentID  string  `json:"student_id,omitempty"`
	RollNumber string  `json:"roll_number,omitempty"`
	Name       string  `json:"name"`
	Similarity float64 `json:"similarity,omitempty"`
}

// Attribution tiers.
const (
	TierSure    = "sure"
	TierMaybe   = "maybe"
	TierUnknown = "unknown"
)

// Violation severities.
const (
	severityHigh   = "HIGH"
	severityMedium = "MEDIUM"
)

// examCycle runs the proctoring pipeline: schedule, phone candidates,
// validation, streak, alert.
func (e *Engine) examCycle(ctx context.Context, f frame.Frame, now time.Time) Decision {
	win, err := e.deps.Resolver.Resolve(ctx, e.camera.ID, true, now)
	if err != nil {
		e.logger.Warn("exam schedule resolution failed", "error", err)
		e.phoneStreak = 0
		return Decision{Status: StatusNoSchedule}
	}
	if win == nil {
		// A streak must not bridge a schedule gap into the next window.
		e.phoneStreak = 0
		return Decision{Status: StatusNoSchedule}
	}

	candidate, found := e.bestPhoneCandidate(f)
	if !found {
		e.phoneStreak = 0
		return Decision{Status: StatusExamMonitoring}
	}

	verdict := e.deps.Phones.Evaluate(f, candidate, now)
	if !verdict.Accepted {
		e.phoneStreak = 0
		return Decision{Status: StatusExamMonitoring, PhoneScore: verdict.Score}
	}

	if e.phoneStreak == 0 {
		e.streakStart = now
	}
	e.phoneStreak++
	d := Decision{Status: StatusPhoneDetected, PhoneScore: verdict.Score}
	if e.phoneStreak < e.cfg.ExamConsecutive {
		return d
	}
	if !e.alerts.Allowed(e.camera.ID, now) {
		return d
	}

	attribution := e.attribute(ctx, f, candidate.Box)
	e.fireAlert(ctx, win, candidate, attribution, now)
	d.Status = StatusExamAlert
	d.Alert = &attribution
	return d
}

// bestPhoneCandidate picks the highest-confidence cell phone detection.
func (e *Engine) bestPhoneCandidate(f frame.Frame) (phonefilter.Candidate, bool) {
	started := time.Now()
	detections := e.deps.Objects.Detect(f)
	e.deps.Metrics.ObserveOracle("object-detect", time.Since(started))

	var best vision.Detection
	found := false
	for _, det := range detections {
		if det.Label != vision.LabelCellPhone {
			continue
		}
		if !found || det.Confidence > best.Confidence {
			best = det
			found = true
		}
	}
	if !found {
		return phonefilter.Candidate{}, false
	}
	return phonefilter.Candidate{Box: best.Box, Confidence: best.Confidence}, true
}

// attribute identifies the student closest to the phone. The face whose
// center is nearest the candidate box is embedded and matched, then
// placed in one of three tiers by similarity. Any oracle failure lands
// in the unknown tier, never in a false accusation.
func (e *Engine) attribute(ctx context.Context, f frame.Frame, phoneBox image.Rectangle) Attribution {
	unknown := Attribution{Tier: TierUnknown, Name: "Unknown"}

	faces := e.detectFaces(f)
	if len(faces) == 0 {
		return unknown
	}

	phoneCenter := frame.Center(phoneBox)
	nearest := faces[0]
	nearestDist := frame.Dist(frame.Center(nearest.Box), phoneCenter)
	for _, face := range faces[1:] {
		if d := frame.Dist(frame.Center(face.Box), phoneCenter); d < nearestDist {
			nearest, nearestDist = face, d
		}
	}

	crop, err := e.deps.Faces.CropJPEG(f, nearest.Box)
	if err != nil {
		return unknown
	}
	embedding, err := e.deps.Embedder.Embed(ctx, crop)
	if err != nil || len(embedding) == 0 {
		return unknown
	}
	result := e.deps.Matcher.BestMatch(ctx, embedding)
	if result.Similarity < e.cfg.MaybeThreshold || result.RollNumber == "" {
		return unknown
	}

	student, _ := e.lookupStudent(result.RollNumber)
	attribution := Attribution{
		StudentID:  student.StudentID,
		RollNumber: result.RollNumber,
		Name:       result.Name,
		Similarity: result.Similarity,
	}
	if result.Similarity >= e.cfg.SureThreshold {
		attribution.Tier = TierSure
	} else {
		attribution.Tier = TierMaybe
		attribution.Name = "Possibly " + result.Name
	}
	return attribution
}

// fireAlert records the violation and sends the out-of-band alert. Both
// paths are best effort; failures are logged and the streak keeps
// counting for the next alert window.
func (e *Engine) fireAlert(ctx context.Context, win *schedule.Window, candidate phonefilter.Candidate, attribution Attribution, now time.Time) {
	severity := severityMedium
	if attribution.Tier == TierSure {
		severity = severityHigh
	}
	// Elapsed wall-clock time between the streak's first confirmed
	// detection and this one, not a multiple of the check interval.
	duration := now.Sub(e.streakStart).Seconds()

	record := &backend.ViolationRecord{
		ViolationID:     uuid.New().String(),
		Timestamp:       now.Format(backend.TimestampLayout),
		StudentID:       attribution.StudentID,
		StudentName:     attribution.Name,
		TeacherID:       win.TeacherID,
		SubjectID:       win.SubjectID,
		CameraID:        e.camera.ID,
		CameraName:      e.camera.Name,
		CameraLocation:  win.Room,
		Confidence:      float64(candidate.Confidence),
		DurationSeconds: duration,
		Notes:           "Cell phone detected during exam",
		Severity:        severity,
	}

	if err := e.deps.Backend.RecordExamViolation(ctx, record); err != nil {
		e.logger.Error("violation write failed", "error", err)
	}
	e.journalViolation(ctx, record)
	e.deps.Metrics.ObserveViolation(e.camera.ID, severity)

	if e.deps.Notifier != nil {
		message := fmt.Sprintf("Phone detected on %s (%s) during %s. Student: %s",
			e.camera.Name, e.camera.ID, win.SubjectID, attribution.Name)
		if err := e.deps.Notifier.Send(ctx, "Exam violation", message); err != nil {
			e.logger.Warn("alert delivery failed", "error", err)
		}
	}

	e.alerts.Mark(e.camera.ID, now)
	e.logger.Warn("exam violation recorded",
		"violation_id", record.ViolationID,
		"student", attribution.Name,
		"severity", severity,
		"confidence", candidate.Confidence)
}

func (e *Engine) journalViolation(ctx context.Context, record *backend.ViolationRecord) {
	if e.deps.Journal == nil {
		return
	}
	if err := e.deps.Journal.SaveViolation(ctx, record); err != nil {
		e.logger.Warn("local violation journal failed", "error", err)
	}
}
