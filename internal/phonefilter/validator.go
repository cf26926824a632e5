// Package phonefilter converts raw "cell phone" detector candidates into
// a validated verdict. The raw detector is necessary but not sufficient:
// laptops, papers and static desk clutter all produce phone-class false
// positives, and a false exam alert has real consequences. Validation is
// a scoring pipeline, not a single boolean gate.
package phonefilter

import (
	"image"
	"log/slog"
	"time"

	"github.com/adityasharma0903/CCTVattendance/internal/conf"
	"github.com/adityasharma0903/CCTVattendance/internal/frame"
	"github.com/adityasharma0903/CCTVattendance/internal/logging"
)

// Candidate is one raw detector output under evaluation.
type Candidate struct {
	Box        image.Rectangle
	Confidence float32
}

// Verdict is the outcome of a validation pass.
type Verdict struct {
	Accepted bool
	Score    int
	// SizeRejected marks a mandatory-stage hard reject; no scoring ran.
	SizeRejected bool
}

// PixelProbe measures image-level properties of the candidate region:
// how rectangular its dominant contour is and how much brighter its
// center is than its border band. ok is false when the region could not
// be analyzed, in which case the optional pixel stages award nothing.
type PixelProbe func(f frame.Frame, box image.Rectangle) (rectangularity, emissiveRatio float64, ok bool)

// Validator scores phone candidates for one camera. It keeps a single
// global motion history for "the current best candidate", not per-object
// identity.
type Validator struct {
	cfg    conf.PhoneFilterSettings
	probe  PixelProbe
	motion *motionHistory
	logger *slog.Logger
}

// NewValidator creates a validator using the gocv pixel probe.
func NewValidator(cfg *conf.PhoneFilterSettings) *Validator {
	return NewValidatorWithProbe(cfg, gocvProbe)
}

// NewValidatorWithProbe creates a validator with a custom pixel probe.
func NewValidatorWithProbe(cfg *conf.PhoneFilterSettings, probe PixelProbe) *Validator {
	return &Validator{
		cfg:    *cfg,
		probe:  probe,
		motion: newMotionHistory(cfg.StaticRejectAfter, cfg.StaticMovementPx),
		logger: logging.ForService("phonefilter"),
	}
}

// Evaluate runs the scoring pipeline on one candidate.
//
// The size/aspect stage is mandatory: candidates covering too much of
// the frame (laptops, paper sheets) or too little (noise), or with an
// implausible aspect ratio, are hard-rejected with no further scoring.
// The remaining stages accumulate points; the candidate is confirmed
// only when the total meets the configured minimum.
func (v *Validator) Evaluate(f frame.Frame, c Candidate, now time.Time) Verdict {
	areaRatio := frame.AreaRatio(c.Box, f.Width, f.Height)
	if areaRatio > v.cfg.MaxAreaRatio || areaRatio < v.cfg.MinAreaRatio {
		return Verdict{SizeRejected: true}
	}
	aspect := frame.AspectRatio(c.Box)
	if aspect < v.cfg.MinAspect || aspect > v.cfg.MaxAspect {
		return Verdict{SizeRejected: true}
	}

	score := 0

	if rectangularity, emissive, ok := v.probe(f, c.Box); ok {
		if rectangularity >= v.cfg.MinRectangularity {
			score++
		}
		if emissive >= v.cfg.MinEmissiveRatio {
			score++
		}
	}

	// Motion stage: a candidate parked in the same spot for longer than
	// the static window is desk clutter and earns no point. Momentary
	// stillness while genuinely holding a phone is not punished, the
	// point is only withheld, never turned into a reject.
	v.motion.observe(frame.Center(c.Box), now)
	if !v.motion.staticTooLong(now) {
		score++
	}

	if c.Confidence >= v.cfg.HighConfidence {
		score++
	}

	accepted := score >= v.cfg.MinScore
	if accepted {
		v.logger.Debug("phone candidate confirmed",
			"score", score, "confidence", c.Confidence, "area_ratio", areaRatio)
	}
	return Verdict{Accepted: accepted, Score: score}
}

// Reset clears the motion history, used when the exam window changes.
func (v *Validator) Reset() {
	v.motion.reset()
}
