package engine

import (
	"context"
	"image"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adityasharma0903/CCTVattendance/internal/backend"
	"github.com/adityasharma0903/CCTVattendance/internal/conf"
	"github.com/adityasharma0903/CCTVattendance/internal/frame"
	"github.com/adityasharma0903/CCTVattendance/internal/matcher"
	"github.com/adityasharma0903/CCTVattendance/internal/phonefilter"
	"github.com/adityasharma0903/CCTVattendance/internal/schedule"
	"github.com/adityasharma0903/CCTVattendance/internal/tracker"
	"github.com/adityasharma0903/CCTVattendance/internal/vision"
)

type fakeBackend struct {
	mode       backend.CameraMode
	modeErr    error
	exists     bool
	checkErr   error
	checkCalls int
	recordErr  error
	marks      []*backend.AttendanceRecord
	violations []*backend.ViolationRecord
}

func (b *fakeBackend) GetCameraMode(context.Context, string) (backend.CameraMode, error) {
	if b.modeErr != nil {
		return backend.ModeNormal, b.modeErr
	}
	if b.mode == "" {
		return backend.ModeNormal, nil
	}
	return b.mode, nil
}

func (b *fakeBackend) CheckAttendanceExists(context.Context, string, string, string, string) (backend.AttendanceCheck, error) {
	b.checkCalls++
	if b.checkErr != nil {
		return backend.AttendanceCheck{}, b.checkErr
	}
	return backend.AttendanceCheck{Exists: b.exists}, nil
}

func (b *fakeBackend) RecordAttendance(_ context.Context, record *backend.AttendanceRecord) error {
	if b.recordErr != nil {
		return b.recordErr
	}
	b.marks = append(b.marks, record)
	return nil
}

func (b *fakeBackend) RecordExamViolation(_ context.Context, record *backend.ViolationRecord) error {
	b.violations = append(b.violations, record)
	return nil
}

type fakeResolver struct {
	window *schedule.Window
	err    error
}

func (r *fakeResolver) Resolve(context.Context, string, bool, time.Time) (*schedule.Window, error) {
	return r.window, r.err
}

type fakeFaces struct {
	faces []vision.DetectedFace
}

func (f *fakeFaces) DetectFaces(frame.Frame) []vision.DetectedFace {
	return f.faces
}

func (f *fakeFaces) CropJPEG(frame.Frame, image.Rectangle) ([]byte, error) {
	return []byte("jpeg"), nil
}

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(context.Context, []byte) ([]float64, error) {
	return []float64{1, 0, 0}, nil
}

type fakeMatcher struct {
	result matcher.Result
}

func (m *fakeMatcher) BestMatch(context.Context, []float64) matcher.Result {
	return m.result
}

type fakeObjects struct {
	detections []vision.Detection
}

func (o *fakeObjects) Detect(frame.Frame) []vision.Detection {
	return o.detections
}

type fakePhones struct {
	verdict phonefilter.Verdict
	resets  int
}

func (p *fakePhones) Evaluate(frame.Frame, phonefilter.Candidate, time.Time) phonefilter.Verdict {
	return p.verdict
}

func (p *fakePhones) Reset() { p.resets++ }

type fakeNotifier struct {
	messages []string
}

func (n *fakeNotifier) Send(_ context.Context, _, message string) error {
	n.messages = append(n.messages, message)
	return nil
}

type fakeJournal struct {
	marks      []*backend.AttendanceRecord
	violations []*backend.ViolationRecord
}

func (j *fakeJournal) SaveMark(_ context.Context, record *backend.AttendanceRecord) error {
	j.marks = append(j.marks, record)
	return nil
}

func (j *fakeJournal) SaveViolation(_ context.Context, record *backend.ViolationRecord) error {
	j.violations = append(j.violations, record)
	return nil
}

func testEngineSettings() *conf.EngineSettings {
	return &conf.EngineSettings{
		DetectionInterval: time.Second,
		MarkCooldown:      30 * time.Second,
		LateAfter:         5 * time.Minute,
		ExamCheckInterval: 2 * time.Second,
		ExamConsecutive:   2,
		AlertCooldown:     45 * time.Second,
		SureThreshold:     0.8,
		MaybeThreshold:    0.5,
	}
}

// passthroughTracker confirms every identified observation immediately,
// keeping these tests focused on engine semantics.
func passthroughTracker() *tracker.Tracker {
	return tracker.New(&conf.TrackerSettings{Enabled: false})
}

func classWindow(start time.Time) *schedule.Window {
	return &schedule.Window{
		TimetableID: "TT1",
		SubjectID:   "MATH101",
		TeacherID:   "T9",
		BatchID:     "B1",
		Room:        "204",
		Start:       start,
		End:         start.Add(time.Hour),
	}
}

func oneFace() []vision.DetectedFace {
	return []vision.DetectedFace{{Box: image.Rect(100, 100, 200, 220), Confidence: 1}}
}

func matchedResult(roll string, sim float64) matcher.Result {
	return matcher.Result{Matched: true, RollNumber: roll, Name: "Asha", Similarity: sim}
}

type testRig struct {
	engine   *Engine
	backend  *fakeBackend
	resolver *fakeResolver
	faces    *fakeFaces
	matcher  *fakeMatcher
	objects  *fakeObjects
	phones   *fakePhones
	notifier *fakeNotifier
	journal  *fakeJournal
}

func newRig(cfg *conf.EngineSettings) *testRig {
	rig := &testRig{
		backend:  &fakeBackend{},
		resolver: &fakeResolver{},
		faces:    &fakeFaces{},
		matcher:  &fakeMatcher{},
		objects:  &fakeObjects{},
		phones:   &fakePhones{},
		notifier: &fakeNotifier{},
		journal:  &fakeJournal{},
	}
	rig.engine = New(cfg, conf.CameraSettings{ID: "CAM001", Name: "Front"}, "node1", Deps{
		Backend:   rig.backend,
		Resolver:  rig.resolver,
		Faces:     rig.faces,
		Embedder:  fakeEmbedder{},
		Matcher:   rig.matcher,
		Objects:   rig.objects,
		Phones:    rig.phones,
		Tracker:   passthroughTracker(),
		Notifier:  rig.notifier,
		Journal:   rig.journal,
	})
	rig.engine.SetRoster([]backend.Student{
		{StudentID: "S1", RollNumber: "R42", Name: "Asha", BatchID: "B1"},
	})
	return rig
}

func TestNoScheduleShortCircuits(t *testing.T) {
	rig := newRig(testEngineSettings())
	rig.faces.faces = oneFace()

	d := rig.engine.ProcessFrame(context.Background(), frame.Frame{}, time.Now())
	assert.Equal(t, StatusNoSchedule, d.Status)
	assert.Empty(t, rig.backend.marks)
}

func TestMarksPresentWithinGrace(t *testing.T) {
	start := time.Date(2026, 8, 31, 9, 0, 0, 0, time.UTC)
	now := start.Add(4*time.Minute + 59*time.Second)

	rig := newRig(testEngineSettings())
	rig.resolver.window = classWindow(start)
	rig.faces.faces = oneFace()
	rig.matcher.result = matchedResult("R42", 0.72)

	d := rig.engine.ProcessFrame(context.Background(), frame.Frame{}, now)
	assert.Equal(t, StatusMarked, d.Status)
	require.Len(t, rig.backend.marks, 1)

	record := rig.backend.marks[0]
	assert.Equal(t, backend.StatusPresent, record.Status)
	assert.Equal(t, "S1", record.StudentID)
	assert.Equal(t, "R42", record.RollNumber)
	assert.Equal(t, "MATH101", record.SubjectID)
	assert.Equal(t, "B1", record.BatchID)
	assert.InDelta(t, 0.72, record.ConfidenceScore, 1e-9)

	// Mark mirrored to the local journal.
	require.Len(t, rig.journal.marks, 1)
}

func TestMarksLateAfterGrace(t *testing.T) {
	start := time.Date(2026, 8, 31, 9, 0, 0, 0, time.UTC)
	now := start.Add(5*time.Minute + 1*time.Second)

	rig := newRig(testEngineSettings())
	rig.resolver.window = classWindow(start)
	rig.faces.faces = oneFace()
	rig.matcher.result = matchedResult("R42", 0.72)

	rig.engine.ProcessFrame(context.Background(), frame.Frame{}, now)
	require.Len(t, rig.backend.marks, 1)
	assert.Equal(t, backend.StatusLate, rig.backend.marks[0].Status)
}

func TestCooldownSuppressesRepeatMarks(t *testing.T) {
	start := time.Date(2026, 8, 31, 9, 0, 0, 0, time.UTC)

	rig := newRig(testEngineSettings())
	rig.resolver.window = classWindow(start)
	rig.faces.faces = oneFace()
	rig.matcher.result = matchedResult("R42", 0.72)

	first := rig.engine.ProcessFrame(context.Background(), frame.Frame{}, start.Add(time.Minute))
	second := rig.engine.ProcessFrame(context.Background(), frame.Frame{}, start.Add(time.Minute+10*time.Second))

	assert.Equal(t, StatusMarked, first.Status)
	assert.Equal(t, StatusRecognized, second.Status)
	assert.Len(t, rig.backend.marks, 1)
	// The cooldown gate fires before the remote check, one query total.
	assert.Equal(t, 1, rig.backend.checkCalls)
}

func TestExistingMarkIsNeverDuplicated(t *testing.T) {
	start := time.Date(2026, 8, 31, 9, 0, 0, 0, time.UTC)

	rig := newRig(testEngineSettings())
	rig.backend.exists = true
	rig.resolver.window = classWindow(start)
	rig.faces.faces = oneFace()
	rig.matcher.result = matchedResult("R42", 0.72)

	d := rig.engine.ProcessFrame(context.Background(), frame.Frame{}, start.Add(time.Minute))
	assert.Equal(t, StatusRecognized, d.Status)
	assert.Empty(t, rig.backend.marks)
}

func TestCheckFailureSkipsWriteThisCycle(t *testing.T) {
	start := time.Date(2026, 8, 31, 9, 0, 0, 0, time.UTC)

	rig := newRig(testEngineSettings())
	rig.backend.checkErr = assert.AnError
	rig.resolver.window = classWindow(start)
	rig.faces.faces = oneFace()
	rig.matcher.result = matchedResult("R42", 0.72)

	rig.engine.ProcessFrame(context.Background(), frame.Frame{}, start.Add(time.Minute))
	assert.Empty(t, rig.backend.marks)

	// The cooldown was not consumed; recovery on the next cycle marks.
	rig.backend.checkErr = nil
	d := rig.engine.ProcessFrame(context.Background(), frame.Frame{}, start.Add(time.Minute+time.Second))
	assert.Equal(t, StatusMarked, d.Status)
	assert.Len(t, rig.backend.marks, 1)
}

func TestNoFaceStatus(t *testing.T) {
	start := time.Date(2026, 8, 31, 9, 0, 0, 0, time.UTC)

	rig := newRig(testEngineSettings())
	rig.resolver.window = classWindow(start)

	d := rig.engine.ProcessFrame(context.Background(), frame.Frame{}, start.Add(time.Minute))
	assert.Equal(t, StatusNoFace, d.Status)
}

func TestModePollFailureFallsBackToNormal(t *testing.T) {
	start := time.Date(2026, 8, 31, 9, 0, 0, 0, time.UTC)

	rig := newRig(testEngineSettings())
	rig.backend.modeErr = assert.AnError
	rig.resolver.window = classWindow(start)
	rig.faces.faces = oneFace()
	rig.matcher.result = matchedResult("R42", 0.72)

	d := rig.engine.ProcessFrame(context.Background(), frame.Frame{}, start.Add(time.Minute))
	assert.Equal(t, backend.ModeNormal, d.Mode)
	assert.Equal(t, StatusMarked, d.Status)
}

func phoneDetection(confidence float32) []vision.Detection {
	return []vision.Detection{{
		Label:      vision.LabelCellPhone,
		Confidence: confidence,
		Box:        image.Rect(300, 200, 360, 320),
	}}
}

func examWindow(start time.Time) *schedule.Window {
	w := classWindow(start)
	w.IsExam = true
	return w
}

func TestExamAlertNeedsConsecutiveDetections(t *testing.T) {
	start := time.Date(2026, 8, 31, 9, 0, 0, 0, time.UTC)

	rig := newRig(testEngineSettings())
	rig.backend.mode = backend.ModeExam
	rig.resolver.window = examWindow(start)
	rig.objects.detections = phoneDetection(0.9)
	rig.phones.verdict = phonefilter.Verdict{Accepted: true, Score: 3}

	first := rig.engine.ProcessFrame(context.Background(), frame.Frame{}, start.Add(time.Minute))
	assert.Equal(t, StatusPhoneDetected, first.Status)
	assert.Empty(t, rig.backend.violations)

	second := rig.engine.ProcessFrame(context.Background(), frame.Frame{}, start.Add(time.Minute+2*time.Second))
	assert.Equal(t, StatusExamAlert, second.Status)
	require.Len(t, rig.backend.violations, 1)
	require.Len(t, rig.journal.violations, 1)
	require.Len(t, rig.notifier.messages, 1)

	// Third confirmed detection inside the alert cooldown stays quiet.
	third := rig.engine.ProcessFrame(context.Background(), frame.Frame{}, start.Add(time.Minute+4*time.Second))
	assert.Equal(t, StatusPhoneDetected, third.Status)
	assert.Len(t, rig.backend.violations, 1)
}

func TestExamStreakResetsWithoutConfirmedPhone(t *testing.T) {
	start := time.Date(2026, 8, 31, 9, 0, 0, 0, time.UTC)

	rig := newRig(testEngineSettings())
	rig.backend.mode = backend.ModeExam
	rig.resolver.window = examWindow(start)
	rig.objects.detections = phoneDetection(0.9)
	rig.phones.verdict = phonefilter.Verdict{Accepted: true, Score: 3}

	rig.engine.ProcessFrame(context.Background(), frame.Frame{}, start.Add(time.Minute))

	// A clean frame breaks the streak.
	rig.objects.detections = nil
	d := rig.engine.ProcessFrame(context.Background(), frame.Frame{}, start.Add(time.Minute+2*time.Second))
	assert.Equal(t, StatusExamMonitoring, d.Status)

	// The next detection starts the count over.
	rig.objects.detections = phoneDetection(0.9)
	d = rig.engine.ProcessFrame(context.Background(), frame.Frame{}, start.Add(time.Minute+4*time.Second))
	assert.Equal(t, StatusPhoneDetected, d.Status)
	assert.Empty(t, rig.backend.violations)
}

func TestExamStreakResetsAcrossScheduleGap(t *testing.T) {
	start := time.Date(2026, 8, 31, 9, 0, 0, 0, time.UTC)

	rig := newRig(testEngineSettings())
	rig.backend.mode = backend.ModeExam
	rig.resolver.window = examWindow(start)
	rig.objects.detections = phoneDetection(0.9)
	rig.phones.verdict = phonefilter.Verdict{Accepted: true, Score: 3}

	d := rig.engine.ProcessFrame(context.Background(), frame.Frame{}, start.Add(time.Minute))
	assert.Equal(t, StatusPhoneDetected, d.Status)

	// The window closes between detections.
	rig.resolver.window = nil
	d = rig.engine.ProcessFrame(context.Background(), frame.Frame{}, start.Add(time.Minute+2*time.Second))
	assert.Equal(t, StatusNoSchedule, d.Status)

	// The first detection of the next window must not inherit the old
	// streak and fire immediately.
	rig.resolver.window = examWindow(start.Add(2 * time.Hour))
	d = rig.engine.ProcessFrame(context.Background(), frame.Frame{}, start.Add(2*time.Hour+time.Second))
	assert.Equal(t, StatusPhoneDetected, d.Status)
	assert.Empty(t, rig.backend.violations)
}

func TestViolationDurationTracksDetectionSpacing(t *testing.T) {
	start := time.Date(2026, 8, 31, 9, 0, 0, 0, time.UTC)

	cfg := testEngineSettings()
	cfg.ExamConsecutive = 3
	rig := newRig(cfg)
	rig.backend.mode = backend.ModeExam
	rig.resolver.window = examWindow(start)
	rig.objects.detections = phoneDetection(0.9)
	rig.phones.verdict = phonefilter.Verdict{Accepted: true, Score: 3}

	// Detections arrive with uneven real-world spacing; the recorded
	// duration must follow the clock, not the configured check interval.
	base := start.Add(time.Minute)
	rig.engine.ProcessFrame(context.Background(), frame.Frame{}, base)
	rig.engine.ProcessFrame(context.Background(), frame.Frame{}, base.Add(3*time.Second))
	d := rig.engine.ProcessFrame(context.Background(), frame.Frame{}, base.Add(7*time.Second))

	assert.Equal(t, StatusExamAlert, d.Status)
	require.Len(t, rig.backend.violations, 1)
	assert.InDelta(t, 7.0, rig.backend.violations[0].DurationSeconds, 1e-9)
}

func TestExamRejectedCandidateKeepsMonitoring(t *testing.T) {
	start := time.Date(2026, 8, 31, 9, 0, 0, 0, time.UTC)

	rig := newRig(testEngineSettings())
	rig.backend.mode = backend.ModeExam
	rig.resolver.window = examWindow(start)
	rig.objects.detections = phoneDetection(0.9)
	rig.phones.verdict = phonefilter.Verdict{Accepted: false, Score: 1}

	d := rig.engine.ProcessFrame(context.Background(), frame.Frame{}, start.Add(time.Minute))
	assert.Equal(t, StatusExamMonitoring, d.Status)
	assert.Equal(t, 1, d.PhoneScore)
}

func TestAttributionTiers(t *testing.T) {
	start := time.Date(2026, 8, 31, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name         string
		faces        []vision.DetectedFace
		match        matcher.Result
		wantTier     string
		wantName     string
		wantSeverity string
	}{
		{
			name:         "sure",
			faces:        oneFace(),
			match:        matchedResult("R42", 0.85),
			wantTier:     TierSure,
			wantName:     "Asha",
			wantSeverity: "HIGH",
		},
		{
			name:         "maybe",
			faces:        oneFace(),
			match:        matchedResult("R42", 0.6),
			wantTier:     TierMaybe,
			wantName:     "Possibly Asha",
			wantSeverity: "MEDIUM",
		},
		{
			name:         "unknown below maybe",
			faces:        oneFace(),
			match:        matcher.Result{Similarity: 0.3},
			wantTier:     TierUnknown,
			wantName:     "Unknown",
			wantSeverity: "MEDIUM",
		},
		{
			name:         "unknown without faces",
			faces:        nil,
			match:        matchedResult("R42", 0.9),
			wantTier:     TierUnknown,
			wantName:     "Unknown",
			wantSeverity: "MEDIUM",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rig := newRig(testEngineSettings())
			rig.backend.mode = backend.ModeExam
			rig.resolver.window = examWindow(start)
			rig.objects.detections = phoneDetection(0.9)
			rig.phones.verdict = phonefilter.Verdict{Accepted: true, Score: 3}
			rig.faces.faces = tc.faces
			rig.matcher.result = tc.match

			rig.engine.ProcessFrame(context.Background(), frame.Frame{}, start.Add(time.Minute))
			d := rig.engine.ProcessFrame(context.Background(), frame.Frame{}, start.Add(time.Minute+2*time.Second))

			assert.Equal(t, StatusExamAlert, d.Status)
			require.NotNil(t, d.Alert)
			assert.Equal(t, tc.wantTier, d.Alert.Tier)
			assert.Equal(t, tc.wantName, d.Alert.Name)

			require.Len(t, rig.backend.violations, 1)
			violation := rig.backend.violations[0]
			assert.Equal(t, tc.wantSeverity, violation.Severity)
			assert.Equal(t, tc.wantName, violation.StudentName)
			assert.NotEmpty(t, violation.ViolationID)
			assert.Equal(t, "T9", violation.TeacherID)
		})
	}
}

func TestModeFlipResetsPhoneState(t *testing.T) {
	start := time.Date(2026, 8, 31, 9, 0, 0, 0, time.UTC)

	rig := newRig(testEngineSettings())
	rig.backend.mode = backend.ModeExam
	rig.resolver.window = examWindow(start)
	rig.objects.detections = phoneDetection(0.9)
	rig.phones.verdict = phonefilter.Verdict{Accepted: true, Score: 3}

	rig.engine.ProcessFrame(context.Background(), frame.Frame{}, start.Add(time.Minute))

	rig.backend.mode = backend.ModeNormal
	rig.resolver.window = classWindow(start)
	rig.engine.ProcessFrame(context.Background(), frame.Frame{}, start.Add(time.Minute+2*time.Second))
	// One reset entering exam mode at startup, one leaving it.
	assert.Equal(t, 2, rig.phones.resets)

	// Back in exam mode the streak starts from zero.
	rig.backend.mode = backend.ModeExam
	rig.resolver.window = examWindow(start)
	d := rig.engine.ProcessFrame(context.Background(), frame.Frame{}, start.Add(time.Minute+4*time.Second))
	assert.Equal(t, StatusPhoneDetected, d.Status)
	assert.Empty(t, rig.backend.violations)
}

func TestEndToEndAttendanceWithTracking(t *testing.T) {
	// Full normal-mode scenario: a moving, consistently matched face
	// confirms through the real tracker and produces exactly one record.
	rig := newRig(testEngineSettings())
	rig.engine.deps.Tracker = tracker.New(&conf.TrackerSettings{
		Enabled:         true,
		IoUThreshold:    0.3,
		ConsecutiveN:    3,
		MinVisible:      time.Second,
		LivenessWindow:  10 * time.Second,
		LivenessMinPx:   15,
		StaleTimeout:    5 * time.Second,
		MaxTrackHistory: 64,
	})

	start := time.Date(2026, 8, 31, 9, 0, 0, 0, time.UTC) // a Monday
	rig.resolver.window = classWindow(start)
	rig.matcher.result = matchedResult("R42", 0.9)

	for i := 0; i < 6; i++ {
		rig.faces.faces = []vision.DetectedFace{{
			Box:        image.Rect(100+i*8, 100, 200+i*8, 220),
			Confidence: 1,
		}}
		rig.engine.ProcessFrame(context.Background(),
			frame.Frame{Width: 640, Height: 480},
			start.Add(2*time.Minute+time.Duration(i)*700*time.Millisecond))
	}

	require.Len(t, rig.backend.marks, 1)
	record := rig.backend.marks[0]
	assert.Equal(t, "R42", record.RollNumber)
	assert.Equal(t, "MATH101", record.SubjectID)
	assert.Equal(t, backend.StatusPresent, record.Status)
}

func TestExamOversizedPhoneNeverViolates(t *testing.T) {
	// Full exam scenario through the real validator: a laptop-sized
	// detection at high confidence must never produce a violation.
	rig := newRig(testEngineSettings())
	rig.engine.deps.Phones = phonefilter.NewValidatorWithProbe(
		&conf.PhoneFilterSettings{
			MinAreaRatio:      0.002,
			MaxAreaRatio:      0.25,
			MinAspect:         0.3,
			MaxAspect:         3.5,
			MinRectangularity: 0.60,
			MinEmissiveRatio:  1.08,
			StaticRejectAfter: 5 * time.Second,
			StaticMovementPx:  8,
			HighConfidence:    0.75,
			MinScore:          2,
		},
		func(frame.Frame, image.Rectangle) (float64, float64, bool) {
			return 0.95, 1.5, true
		})

	start := time.Date(2026, 8, 31, 9, 0, 0, 0, time.UTC)
	rig.backend.mode = backend.ModeExam
	rig.resolver.window = examWindow(start)
	// 35% of a 640x480 frame.
	rig.objects.detections = []vision.Detection{{
		Label:      vision.LabelCellPhone,
		Confidence: 0.9,
		Box:        image.Rect(100, 50, 100+420, 50+256),
	}}

	for i := 0; i < 5; i++ {
		d := rig.engine.ProcessFrame(context.Background(),
			frame.Frame{Width: 640, Height: 480},
			start.Add(time.Minute+time.Duration(i)*2*time.Second))
		assert.Equal(t, StatusExamMonitoring, d.Status)
	}
	assert.Empty(t, rig.backend.violations)
}
