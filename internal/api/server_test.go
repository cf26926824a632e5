package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adityasharma0903/CCTVattendance/internal/backend"
	"github.com/adityasharma0903/CCTVattendance/internal/conf"
	"github.com/adityasharma0903/CCTVattendance/internal/datastore"
	"github.com/adityasharma0903/CCTVattendance/internal/engine"
	"github.com/adityasharma0903/CCTVattendance/internal/observability"
)

type fakeDecisions struct {
	latest map[string]engine.Decision
}

func (f *fakeDecisions) LatestDecisions() map[string]engine.Decision {
	return f.latest
}

type fakeModes struct {
	set     map[string]backend.CameraMode
	cleared []string
	flushes int
}

func (f *fakeModes) FlushScheduleCache() { f.flushes++ }

func (f *fakeModes) SetModeOverride(cameraID string, mode backend.CameraMode) {
	if f.set == nil {
		f.set = make(map[string]backend.CameraMode)
	}
	f.set[cameraID] = mode
}

func (f *fakeModes) ClearModeOverride(cameraID string) {
	f.cleared = append(f.cleared, cameraID)
}

func (f *fakeModes) ModeOverrides() map[string]backend.CameraMode {
	return f.set
}

type fakeJournal struct{}

func (fakeJournal) RecentMarks(context.Context, int) ([]datastore.Mark, error) {
	return []datastore.Mark{{RollNumber: "R42"}}, nil
}

func (fakeJournal) RecentViolations(context.Context, int) ([]datastore.Violation, error) {
	return []datastore.Violation{{ViolationID: "v-1"}}, nil
}

func newTestServer(decisions *fakeDecisions, modes *fakeModes) *Server {
	return NewServer(&conf.HTTPSettings{Enabled: true, Address: ":0"},
		decisions, modes, fakeJournal{}, observability.NewMetrics())
}

func do(s *Server, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	s := newTestServer(&fakeDecisions{}, &fakeModes{})
	rec := do(s, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCameraDecision(t *testing.T) {
	s := newTestServer(&fakeDecisions{latest: map[string]engine.Decision{
		"CAM001": {
			CameraID: "CAM001",
			Status:   engine.StatusMarked,
			Mode:     backend.ModeNormal,
			At:       time.Now(),
		},
	}}, &fakeModes{})

	rec := do(s, http.MethodGet, "/api/v1/decisions/CAM001", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var d engine.Decision
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &d))
	assert.Equal(t, engine.StatusMarked, d.Status)
}

func TestUnknownCameraIs404(t *testing.T) {
	s := newTestServer(&fakeDecisions{}, &fakeModes{})
	rec := do(s, http.MethodGet, "/api/v1/decisions/CAM999", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSetModeOverride(t *testing.T) {
	modes := &fakeModes{}
	s := newTestServer(&fakeDecisions{}, modes)

	rec := do(s, http.MethodPost, "/api/v1/cameras/CAM001/mode", `{"mode":"exam"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, backend.ModeExam, modes.set["CAM001"])

	rec = do(s, http.MethodPost, "/api/v1/cameras/CAM001/mode", `{"mode":"AUTO"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"CAM001"}, modes.cleared)
	// Each change forces the next cycle to re-resolve the schedule.
	assert.Equal(t, 2, modes.flushes)
}

func TestInvalidModeRejected(t *testing.T) {
	s := newTestServer(&fakeDecisions{}, &fakeModes{})
	rec := do(s, http.MethodPost, "/api/v1/cameras/CAM001/mode", `{"mode":"PARTY"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestJournalRoutes(t *testing.T) {
	s := newTestServer(&fakeDecisions{}, &fakeModes{})

	rec := do(s, http.MethodGet, "/api/v1/journal/marks?limit=5", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "R42")

	rec = do(s, http.MethodGet, "/api/v1/journal/violations", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "v-1")
}

func TestMetricsExposed(t *testing.T) {
	s := newTestServer(&fakeDecisions{}, &fakeModes{})
	rec := do(s, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
