// Package tracker stabilizes per-frame identity guesses into confirmed
// identities. A single frame match is cheap to fool with a held-up
// photo and noisy under motion blur; a track must sustain the same
// identity across consecutive frames, stay visible long enough, and
// physically move before it is trusted.
package tracker

import (
	"image"
	"log/slog"
	"time"

	"github.com/adityasharma0903/CCTVattendance/internal/conf"
	"github.com/adityasharma0903/CCTVattendance/internal/frame"
	"github.com/adityasharma0903/CCTVattendance/internal/logging"
)

// State is the lifecycle phase of a track.
type State int

const (
	// StateObserving is the initial phase, the track is accumulating
	// evidence and has produced no confirmation.
	StateObserving State = iota
	// StateConfirmed is terminal, a confirmed track never re-confirms.
	StateConfirmed
)

// Observation is one frame's evidence for a face: where it is and who
// the matcher thinks it is. RollNumber is empty when the matcher had no
// answer for this frame.
type Observation struct {
	Box        image.Rectangle
	RollNumber string
	Name       string
	Similarity float64
}

// Confirmation is emitted exactly once per track, when the evidence
// thresholds are all met.
type Confirmation struct {
	TrackID    int
	RollNumber string
	Name       string
	Similarity float64
}

type track struct {
	id          int
	state       State
	box         image.Rectangle
	firstSeen   time.Time
	lastSeen    time.Time
	rollNumber  string
	name        string
	similarity  float64
	consecutive int
	history     []timedCenter
}

type timedCenter struct {
	at time.Time
	pt image.Point
}

// Tracker associates observations with tracks across frames for one
// camera. It is not goroutine safe, the camera session calls it from a
// single pipeline goroutine.
type Tracker struct {
	cfg    conf.TrackerSettings
	nextID int
	tracks []*track
	logger *slog.Logger
}

// New creates a tracker for one camera.
func New(cfg *conf.TrackerSettings) *Tracker {
	return &Tracker{
		cfg:    *cfg,
		nextID: 1,
		logger: logging.ForService("tracker"),
	}
}

// Update feeds one frame's observations in and returns the
// confirmations that emerged this cycle.
//
// With tracking disabled the tracker degrades to a passthrough: every
// identified observation confirms immediately. That restores the
// match-equals-mark behavior for deployments that opt out.
func (t *Tracker) Update(observations []Observation, now time.Time) []Confirmation {
	if !t.cfg.Enabled {
		return t.passthrough(observations)
	}

	matched := t.associate(observations, now)
	var confirmations []Confirmation
	for i, tr := range matched {
		if tr == nil {
			tr = t.spawn(observations[i], now)
		}
		if c := t.advance(tr, observations[i], now); c != nil {
			confirmations = append(confirmations, *c)
		}
	}
	t.evictStale(now)
	return confirmations
}

// associate greedily pairs observations with live tracks by best IoU
// above the threshold. Returns one entry per observation, nil where no
// track claimed it.
func (t *Tracker) associate(observations []Observation, now time.Time) []*track {
	matched := make([]*track, len(observations))
	claimed := make(map[int]bool, len(t.tracks))

	for i, obs := range observations {
		var best *track
		bestIoU := t.cfg.IoUThreshold
		for _, tr := range t.tracks {
			if claimed[tr.id] {
				continue
			}
			if iou := frame.IoU(tr.box, obs.Box); iou >= bestIoU {
				best, bestIoU = tr, iou
			}
		}
		if best != nil {
			claimed[best.id] = true
			matched[i] = best
		}
	}
	return matched
}

func (t *Tracker) spawn(obs Observation, now time.Time) *track {
	tr := &track{
		id:        t.nextID,
		state:     StateObserving,
		box:       obs.Box,
		firstSeen: now,
		lastSeen:  now,
	}
	t.nextID++
	t.tracks = append(t.tracks, tr)
	return tr
}

// advance folds one observation into a track and reports a confirmation
// if this update pushed it over every threshold.
func (t *Tracker) advance(tr *track, obs Observation, now time.Time) *Confirmation {
	tr.box = obs.Box
	tr.lastSeen = now
	tr.history = append(tr.history, timedCenter{at: now, pt: frame.Center(obs.Box)})
	if t.cfg.MaxTrackHistory > 0 && len(tr.history) > t.cfg.MaxTrackHistory {
		tr.history = append(tr.history[:0], tr.history[len(tr.history)-t.cfg.MaxTrackHistory:]...)
	}

	switch {
	case obs.RollNumber == "":
		// A frame with no identity answer breaks the streak.
		tr.consecutive = 0
	case obs.RollNumber == tr.rollNumber:
		tr.consecutive++
		tr.similarity = obs.Similarity
	default:
		tr.rollNumber = obs.RollNumber
		tr.name = obs.Name
		tr.similarity = obs.Similarity
		tr.consecutive = 1
	}

	if tr.state != StateObserving {
		return nil
	}
	if tr.consecutive < t.cfg.ConsecutiveN {
		return nil
	}
	if now.Sub(tr.firstSeen) < t.cfg.MinVisible {
		return nil
	}
	if !t.alive(tr, now) {
		return nil
	}

	tr.state = StateConfirmed
	t.logger.Debug("track confirmed",
		"track_id", tr.id, "roll_number", tr.rollNumber, "consecutive", tr.consecutive)
	return &Confirmation{
		TrackID:    tr.id,
		RollNumber: tr.rollNumber,
		Name:       tr.name,
		Similarity: tr.similarity,
	}
}

// alive measures physical movement over the trailing liveness window. A
// printed photo taped in front of the lens produces a near-zero path
// and never confirms.
func (t *Tracker) alive(tr *track, now time.Time) bool {
	cutoff := now.Add(-t.cfg.LivenessWindow)
	var pts []image.Point
	for _, h := range tr.history {
		if !h.at.Before(cutoff) {
			pts = append(pts, h.pt)
		}
	}
	return frame.PathLength(pts) >= t.cfg.LivenessMinPx
}

func (t *Tracker) evictStale(now time.Time) {
	kept := t.tracks[:0]
	for _, tr := range t.tracks {
		if now.Sub(tr.lastSeen) > t.cfg.StaleTimeout {
			t.logger.Debug("track evicted", "track_id", tr.id, "state", tr.state)
			continue
		}
		kept = append(kept, tr)
	}
	t.tracks = kept
}

func (t *Tracker) passthrough(observations []Observation) []Confirmation {
	var confirmations []Confirmation
	for _, obs := range observations {
		if obs.RollNumber == "" {
			continue
		}
		confirmations = append(confirmations, Confirmation{
			RollNumber: obs.RollNumber,
			Name:       obs.Name,
			Similarity: obs.Similarity,
		})
	}
	return confirmations
}

// ActiveTracks reports how many tracks are currently live, used by the
// status API and metrics.
func (t *Tracker) ActiveTracks() int {
	return len(t.tracks)
}
