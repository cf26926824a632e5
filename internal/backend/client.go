// Package backend implements the REST client for the attendance backend:
// student roster, timetable, camera mode, attendance and violation writes.
// Mode and schedule lookups are cached with short TTLs so the per-frame
// decision loop never hammers the network.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/adityasharma0903/CCTVattendance/internal/conf"
	"github.com/adityasharma0903/CCTVattendance/internal/errors"
	"github.com/adityasharma0903/CCTVattendance/internal/logging"
)

const (
	timetableCacheKey = "timetable"
	linksCachePrefix  = "camera-schedule:"
	modeCachePrefix   = "camera-mode:"
)

// Client talks to the attendance backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
	modeCache  *cache.Cache
	schedCache *cache.Cache
	logger     *slog.Logger
}

// NewClient creates a backend client from settings.
func NewClient(settings *conf.BackendSettings) *Client {
	return &Client{
		baseURL: settings.BaseURL,
		httpClient: &http.Client{
			Timeout: settings.Timeout,
		},
		modeCache:  cache.New(settings.ModeCacheTTL, time.Minute),
		schedCache: cache.New(settings.ScheduleCacheTTL, time.Minute),
		logger:     logging.ForService("backend"),
	}
}

// GetStudents fetches the full enrolled student roster, embeddings
// included. Used for the local match fallback cache.
func (c *Client) GetStudents(ctx context.Context) ([]Student, error) {
	var students []Student
	if err := c.getJSON(ctx, "/students", nil, &students); err != nil {
		return nil, err
	}
	return students, nil
}

// GetTimetable returns all timetable entries, cached at the schedule TTL.
func (c *Client) GetTimetable(ctx context.Context) ([]TimetableEntry, error) {
	if cached, found := c.schedCache.Get(timetableCacheKey); found {
		return cached.([]TimetableEntry), nil
	}
	var entries []TimetableEntry
	if err := c.getJSON(ctx, "/timetable", nil, &entries); err != nil {
		return nil, err
	}
	c.schedCache.SetDefault(timetableCacheKey, entries)
	return entries, nil
}

// GetCameraSchedule returns the camera to timetable links for one camera,
// cached at the schedule TTL.
func (c *Client) GetCameraSchedule(ctx context.Context, cameraID string) ([]ScheduleLink, error) {
	key := linksCachePrefix + cameraID
	if cached, found := c.schedCache.Get(key); found {
		return cached.([]ScheduleLink), nil
	}
	var links []ScheduleLink
	if err := c.getJSON(ctx, "/camera-schedule/"+url.PathEscape(cameraID), nil, &links); err != nil {
		return nil, err
	}
	c.schedCache.SetDefault(key, links)
	return links, nil
}

// GetCameraMode polls the camera mode. The result is cached with a short
// TTL: a mode flip propagates within seconds while the per-frame loop
// stays off the network. On a fetch error the last cached value, expired
// or not, is returned when available.
func (c *Client) GetCameraMode(ctx context.Context, cameraID string) (CameraMode, error) {
	key := modeCachePrefix + cameraID
	if cached, found := c.modeCache.Get(key); found {
		return cached.(CameraMode), nil
	}

	var resp modeResponse
	if err := c.getJSON(ctx, "/camera-mode/"+url.PathEscape(cameraID), nil, &resp); err != nil {
		// Degrade to the last known mode if we ever had one.
		if stale, found := c.modeCache.Get(key + ":last"); found {
			c.logger.Warn("camera mode fetch failed, using last known mode",
				"camera_id", cameraID, "error", err)
			return stale.(CameraMode), nil
		}
		return ModeNormal, err
	}

	mode := resp.Mode
	if mode != ModeExam {
		mode = ModeNormal
	}
	c.modeCache.SetDefault(key, mode)
	c.modeCache.Set(key+":last", mode, cache.NoExpiration)
	return mode, nil
}

// CheckAttendanceExists reports whether a student already has a mark for
// the given subject, batch and date.
func (c *Client) CheckAttendanceExists(ctx context.Context, rollNumber, date, subjectID, batchID string) (AttendanceCheck, error) {
	params := url.Values{}
	params.Set("roll_number", rollNumber)
	params.Set("date", date)
	params.Set("subject_id", subjectID)
	params.Set("batch_id", batchID)

	var check AttendanceCheck
	if err := c.getJSON(ctx, "/attendance-check", params, &check); err != nil {
		return AttendanceCheck{}, err
	}
	return check, nil
}

// RecordAttendance persists one attendance record. Idempotency is the
// caller's responsibility via CheckAttendanceExists.
func (c *Client) RecordAttendance(ctx context.Context, record *AttendanceRecord) error {
	return c.postJSON(ctx, "/attendance", record)
}

// RecordExamViolation persists one exam violation record. Fire and
// forget from the engine's perspective; failures are logged upstream and
// never retried synchronously.
func (c *Client) RecordExamViolation(ctx context.Context, record *ViolationRecord) error {
	return c.postJSON(ctx, "/exam-violations", record)
}

// getJSON performs a GET request and decodes the JSON response into out.
func (c *Client) getJSON(ctx context.Context, path string, params url.Values, out any) error {
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return errors.New(err).
			Component("backend").
			Category(errors.CategoryHTTP).
			Context("path", path).
			Build()
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.New(err).
			Component("backend").
			Category(errors.CategoryNetwork).
			Context("path", path).
			Build()
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return errors.Newf("backend returned status %d for %s", resp.StatusCode, path).
			Component("backend").
			Category(errors.CategoryHTTP).
			Context("status", resp.StatusCode).
			Build()
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.New(fmt.Errorf("decoding %s response: %w", path, err)).
			Component("backend").
			Category(errors.CategoryHTTP).
			Build()
	}
	return nil
}

// postJSON performs a POST request with a JSON body.
func (c *Client) postJSON(ctx context.Context, path string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return errors.New(err).
			Component("backend").
			Category(errors.CategoryValidation).
			Build()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return errors.New(err).
			Component("backend").
			Category(errors.CategoryHTTP).
			Build()
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.New(err).
			Component("backend").
			Category(errors.CategoryNetwork).
			Context("path", path).
			Build()
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return errors.Newf("backend returned status %d for %s", resp.StatusCode, path).
			Component("backend").
			Category(errors.CategoryHTTP).
			Context("status", resp.StatusCode).
			Build()
	}
	return nil
}

// FlushScheduleCache drops cached timetable and link snapshots, forcing
// the next resolution to refetch.
func (c *Client) FlushScheduleCache() {
	c.schedCache.Flush()
}
