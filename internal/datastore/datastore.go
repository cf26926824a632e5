// Package datastore keeps a local sqlite journal of every mark and
// violation the engine produced. The backend remains the source of
// truth; the journal is the audit trail that survives backend outages.
package datastore

import (
	"context"
	"log/slog"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/adityasharma0903/CCTVattendance/internal/backend"
	"github.com/adityasharma0903/CCTVattendance/internal/errors"
	"github.com/adityasharma0903/CCTVattendance/internal/logging"
)

// Mark is one journaled attendance record.
type Mark struct {
	ID         uint   `gorm:"primaryKey"`
	StudentID  string `gorm:"index"`
	RollNumber string `gorm:"index"`
	CameraID   string `gorm:"index"`
	SubjectID  string
	BatchID    string
	Status     string
	Confidence float64
	MarkedAt   string // backend timestamp, RFC3339
	CreatedAt  time.Time
}

// Violation is one journaled exam violation.
type Violation struct {
	ID              uint   `gorm:"primaryKey"`
	ViolationID     string `gorm:"uniqueIndex"`
	StudentID       string
	StudentName     string
	TeacherID       string
	SubjectID       string
	CameraID        string `gorm:"index"`
	CameraName      string
	CameraLocation  string
	Confidence      float64
	DurationSeconds float64
	Notes           string
	Severity        string
	OccurredAt      string // backend timestamp, RFC3339
	CreatedAt       time.Time
}

// Store is the sqlite-backed journal.
type Store struct {
	db     *gorm.DB
	logger *slog.Logger
}

// Open opens (and migrates) the journal at path. ":memory:" is valid
// for tests.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("path", path).
			Build()
	}
	if err := db.AutoMigrate(&Mark{}, &Violation{}); err != nil {
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}
	return &Store{
		db:     db,
		logger: logging.ForService("datastore"),
	}, nil
}

// SaveMark journals one attendance record.
func (s *Store) SaveMark(ctx context.Context, record *backend.AttendanceRecord) error {
	mark := Mark{
		StudentID:  record.StudentID,
		RollNumber: record.RollNumber,
		CameraID:   record.CameraID,
		SubjectID:  record.SubjectID,
		BatchID:    record.BatchID,
		Status:     record.Status,
		Confidence: record.ConfidenceScore,
		MarkedAt:   record.Timestamp,
	}
	if err := s.db.WithContext(ctx).Create(&mark).Error; err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}
	return nil
}

// SaveViolation journals one exam violation.
func (s *Store) SaveViolation(ctx context.Context, record *backend.ViolationRecord) error {
	violation := Violation{
		ViolationID:     record.ViolationID,
		StudentID:       record.StudentID,
		StudentName:     record.StudentName,
		TeacherID:       record.TeacherID,
		SubjectID:       record.SubjectID,
		CameraID:        record.CameraID,
		CameraName:      record.CameraName,
		CameraLocation:  record.CameraLocation,
		Confidence:      record.Confidence,
		DurationSeconds: record.DurationSeconds,
		Notes:           record.Notes,
		Severity:        record.Severity,
		OccurredAt:      record.Timestamp,
	}
	if err := s.db.WithContext(ctx).Create(&violation).Error; err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}
	return nil
}

// RecentMarks returns the newest journaled marks, newest first.
func (s *Store) RecentMarks(ctx context.Context, limit int) ([]Mark, error) {
	var marks []Mark
	err := s.db.WithContext(ctx).
		Order("id DESC").
		Limit(limit).
		Find(&marks).Error
	if err != nil {
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}
	return marks, nil
}

// RecentViolations returns the newest journaled violations, newest first.
func (s *Store) RecentViolations(ctx context.Context, limit int) ([]Violation, error) {
	var violations []Violation
	err := s.db.WithContext(ctx).
		Order("id DESC").
		Limit(limit).
		Find(&violations).Error
	if err != nil {
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}
	return violations, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
