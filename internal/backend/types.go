// types.go: wire types for the attendance backend REST API.
package backend

import "time"

// CameraMode selects the decision pipeline run for a camera.
type CameraMode string

const (
	ModeNormal CameraMode = "NORMAL"
	ModeExam   CameraMode = "EXAM"
)

// Student is an enrolled student record with its face embedding. Read
// only to this service; created at enrollment time by external tooling.
type Student struct {
	StudentID  string    `json:"student_id"`
	RollNumber string    `json:"roll_number"`
	Name       string    `json:"name"`
	BatchID    string    `json:"batch_id"`
	Embedding  []float64 `json:"embedding,omitempty"`
}

// TimetableEntry is one scheduled class window.
type TimetableEntry struct {
	TimetableID string `json:"timetable_id"`
	SubjectID   string `json:"subject_id"`
	TeacherID   string `json:"teacher_id"`
	BatchID     string `json:"batch_id"`
	Day         string `json:"day"`        // weekday name, e.g. Monday
	StartTime   string `json:"start_time"` // HH:MM
	EndTime     string `json:"end_time"`   // HH:MM
	Room        string `json:"room,omitempty"`
	IsExam      bool   `json:"is_exam"`
}

// ScheduleLink associates a camera with a timetable entry.
type ScheduleLink struct {
	CameraID    string `json:"camera_id"`
	TimetableID string `json:"timetable_id"`
	IsActive    bool   `json:"is_active"`
}

// AttendanceRecord is the persisted outcome of a confirmed mark.
type AttendanceRecord struct {
	StudentID       string  `json:"student_id"`
	RollNumber      string  `json:"roll_number"`
	CameraID        string  `json:"camera_id"`
	Timestamp       string  `json:"timestamp"` // ISO-8601
	SubjectID       string  `json:"subject_id"`
	BatchID         string  `json:"batch_id"`
	Status          string  `json:"status"` // PRESENT, LATE or ABSENT
	ConfidenceScore float64 `json:"confidence_score"`
}

// Attendance status values.
const (
	StatusPresent = "PRESENT"
	StatusLate    = "LATE"
	StatusAbsent  = "ABSENT"
)

// AttendanceCheck is the response of the attendance existence query.
type AttendanceCheck struct {
	Exists bool              `json:"exists"`
	Record *AttendanceRecord `json:"record,omitempty"`
}

// ViolationRecord is a persisted exam violation with best-effort
// identity attribution.
type ViolationRecord struct {
	ViolationID     string  `json:"violation_id"`
	Timestamp       string  `json:"timestamp"`
	StudentID       string  `json:"student_id"`
	StudentName     string  `json:"student_name"`
	TeacherID       string  `json:"teacher_id"`
	SubjectID       string  `json:"subject_id"`
	CameraID        string  `json:"camera_id"`
	CameraName      string  `json:"camera_name"`
	CameraLocation  string  `json:"camera_location"`
	Confidence      float64 `json:"confidence"`
	DurationSeconds float64 `json:"duration_seconds"`
	Notes           string  `json:"notes"`
	Severity        string  `json:"severity"`
}

// modeResponse is the camera mode poll payload.
type modeResponse struct {
	CameraID string     `json:"camera_id"`
	Mode     CameraMode `json:"mode"`
}

// Timestamp format used for attendance and violation records.
const TimestampLayout = time.RFC3339
