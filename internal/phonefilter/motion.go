package phonefilter

import (
	"image"
	"time"

	"github.com/adityasharma0903/CCTVattendance/internal/frame"
)

type timedPoint struct {
	at time.Time
	pt image.Point
}

// motionHistory tracks the center of the current best phone candidate
// over a trailing window. It answers one question: has the candidate
// sat still for longer than the static-reject window.
type motionHistory struct {
	window time.Duration
	minPx  float64
	points []timedPoint
}

func newMotionHistory(window time.Duration, minPx float64) *motionHistory {
	return &motionHistory{window: window, minPx: minPx}
}

func (m *motionHistory) observe(pt image.Point, now time.Time) {
	m.points = append(m.points, timedPoint{at: now, pt: pt})
	m.prune(now)
}

// staticTooLong reports whether the history spans the full window and
// the candidate moved less than the movement threshold across it.
func (m *motionHistory) staticTooLong(now time.Time) bool {
	if len(m.points) < 2 {
		return false
	}
	oldest := m.points[0]
	if now.Sub(oldest.at) < m.window {
		return false
	}
	var maxDist float64
	for _, p := range m.points[1:] {
		if d := frame.Dist(oldest.pt, p.pt); d > maxDist {
			maxDist = d
		}
	}
	return maxDist < m.minPx
}

// prune drops samples older than twice the window so the displacement
// baseline stays anchored just outside the window, not at process start.
func (m *motionHistory) prune(now time.Time) {
	cutoff := now.Add(-2 * m.window)
	i := 0
	for i < len(m.points) && m.points[i].at.Before(cutoff) {
		i++
	}
	if i > 0 {
		m.points = append(m.points[:0], m.points[i:]...)
	}
}

func (m *motionHistory) reset() {
	m.points = m.points[:0]
}
