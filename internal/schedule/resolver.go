// Package schedule resolves which class window, if any, is active for a
// camera at a given wall-clock time.
package schedule

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/adityasharma0903/CCTVattendance/internal/backend"
	"github.com/adityasharma0903/CCTVattendance/internal/logging"
)

// noScheduleLogInterval throttles the "no active schedule" warning so an
// idle camera does not flood the log.
const noScheduleLogInterval = 30 * time.Second

// Source provides timetable data. Implemented by the backend client.
type Source interface {
	GetTimetable(ctx context.Context) ([]backend.TimetableEntry, error)
	GetCameraSchedule(ctx context.Context, cameraID string) ([]backend.ScheduleLink, error)
}

// Window is the resolved class context for a decision cycle. Start and
// End are on the same date as the resolution time.
type Window struct {
	TimetableID string
	SubjectID   string
	TeacherID   string
	BatchID     string
	Room        string
	Start       time.Time
	End         time.Time
	IsExam      bool
}

// Resolver joins camera-schedule links with timetable entries.
type Resolver struct {
	source   Source
	testMode bool // resolve a full-day window when nothing is scheduled

	mu        sync.Mutex
	lastNoLog map[string]time.Time
	logger    *slog.Logger
}

// NewResolver creates a resolver over the given source. testMode enables
// the always-active fallback used for demos.
func NewResolver(source Source, testMode bool) *Resolver {
	return &Resolver{
		source:    source,
		testMode:  testMode,
		lastNoLog: make(map[string]time.Time),
		logger:    logging.ForService("schedule"),
	}
}

// Resolve returns the active window for the camera at time now, or nil
// when no window matches. requireExam filters on the entry's exam flag.
// No match is a normal steady state, not an error. With several
// simultaneously valid windows the earliest start wins, then the lowest
// timetable ID; the ambiguity is logged as a data-integrity warning.
func (r *Resolver) Resolve(ctx context.Context, cameraID string, requireExam bool, now time.Time) (*Window, error) {
	links, err := r.source.GetCameraSchedule(ctx, cameraID)
	if err != nil {
		return nil, err
	}
	entries, err := r.source.GetTimetable(ctx)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]backend.TimetableEntry, len(entries))
	for i := range entries {
		byID[entries[i].TimetableID] = entries[i]
	}

	weekday := now.Weekday().String()
	var candidates []Window

	for i := range links {
		if links[i].CameraID != cameraID || !links[i].IsActive {
			continue
		}
		entry, found := byID[links[i].TimetableID]
		if !found {
			continue
		}
		if entry.Day != weekday || entry.IsExam != requireExam {
			continue
		}
		window, ok := windowFor(entry, now)
		if !ok {
			r.logger.Warn("skipping timetable entry with malformed time",
				"timetable_id", entry.TimetableID,
				"start", entry.StartTime, "end", entry.EndTime)
			continue
		}
		// Inclusive containment on both bounds.
		if now.Before(window.Start) || now.After(window.End) {
			continue
		}
		candidates = append(candidates, window)
	}

	if len(candidates) == 0 {
		if r.testMode && !requireExam {
			if w := r.testModeWindow(links, byID, cameraID, now); w != nil {
				return w, nil
			}
		}
		r.logNoSchedule(cameraID, now)
		return nil, nil
	}

	if len(candidates) > 1 {
		r.logger.Warn("multiple overlapping schedule windows, picking deterministically",
			"camera_id", cameraID, "count", len(candidates))
		sort.Slice(candidates, func(i, j int) bool {
			if !candidates[i].Start.Equal(candidates[j].Start) {
				return candidates[i].Start.Before(candidates[j].Start)
			}
			return candidates[i].TimetableID < candidates[j].TimetableID
		})
	}

	return &candidates[0], nil
}

// windowFor materializes an entry's HH:MM bounds on now's date.
func windowFor(entry backend.TimetableEntry, now time.Time) (Window, bool) {
	start, err := timeOfDayOn(entry.StartTime, now)
	if err != nil {
		return Window{}, false
	}
	end, err := timeOfDayOn(entry.EndTime, now)
	if err != nil {
		return Window{}, false
	}
	return Window{
		TimetableID: entry.TimetableID,
		SubjectID:   entry.SubjectID,
		TeacherID:   entry.TeacherID,
		BatchID:     entry.BatchID,
		Room:        entry.Room,
		Start:       start,
		End:         end,
		IsExam:      entry.IsExam,
	}, true
}

// testModeWindow returns the first active linked entry stretched to a
// full-day window, so demo sessions can mark attendance at any hour.
func (r *Resolver) testModeWindow(links []backend.ScheduleLink, byID map[string]backend.TimetableEntry, cameraID string, now time.Time) *Window {
	for i := range links {
		if links[i].CameraID != cameraID || !links[i].IsActive {
			continue
		}
		entry, found := byID[links[i].TimetableID]
		if !found {
			continue
		}
		dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		return &Window{
			TimetableID: entry.TimetableID,
			SubjectID:   entry.SubjectID,
			TeacherID:   entry.TeacherID,
			BatchID:     entry.BatchID,
			Room:        entry.Room,
			Start:       dayStart,
			End:         dayStart.Add(24*time.Hour - time.Second),
			IsExam:      entry.IsExam,
		}
	}
	return nil
}

// logNoSchedule emits the idle warning at most once per interval per
// camera.
func (r *Resolver) logNoSchedule(cameraID string, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if last, ok := r.lastNoLog[cameraID]; ok && now.Sub(last) < noScheduleLogInterval {
		return
	}
	r.lastNoLog[cameraID] = now
	r.logger.Warn("no active schedule", "camera_id", cameraID,
		"day", now.Weekday().String(), "time", now.Format("15:04:05"))
}

// timeOfDayOn parses an HH:MM string onto the date of ref.
func timeOfDayOn(hhmm string, ref time.Time) (time.Time, error) {
	parsed, err := time.Parse("15:04", hhmm)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(ref.Year(), ref.Month(), ref.Day(),
		parsed.Hour(), parsed.Minute(), 0, 0, ref.Location()), nil
}
