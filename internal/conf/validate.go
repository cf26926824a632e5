// validate.go: sanity checks for loaded settings.
package conf

import "fmt"

// ValidateSettings checks settings for values that would make the service
// misbehave in ways that are hard to diagnose at runtime.
func ValidateSettings(s *Settings) error {
	if s.Matcher.Threshold < -1 || s.Matcher.Threshold > 1 {
		return fmt.Errorf("matcher.threshold %.2f outside cosine range [-1, 1]", s.Matcher.Threshold)
	}
	if s.Engine.MaybeThreshold > s.Engine.SureThreshold {
		return fmt.Errorf("engine.maybethreshold %.2f must not exceed engine.surethreshold %.2f",
			s.Engine.MaybeThreshold, s.Engine.SureThreshold)
	}
	if s.PhoneFilter.MinAreaRatio >= s.PhoneFilter.MaxAreaRatio {
		return fmt.Errorf("phonefilter.minarearatio %.4f must be below maxarearatio %.4f",
			s.PhoneFilter.MinAreaRatio, s.PhoneFilter.MaxAreaRatio)
	}
	if s.PhoneFilter.MinAspect >= s.PhoneFilter.MaxAspect {
		return fmt.Errorf("phonefilter.minaspect %.2f must be below maxaspect %.2f",
			s.PhoneFilter.MinAspect, s.PhoneFilter.MaxAspect)
	}
	if s.Tracker.Enabled && s.Tracker.ConsecutiveN < 1 {
		return fmt.Errorf("tracker.consecutiven must be at least 1, got %d", s.Tracker.ConsecutiveN)
	}
	if s.Engine.ExamConsecutive < 1 {
		return fmt.Errorf("engine.examconsecutive must be at least 1, got %d", s.Engine.ExamConsecutive)
	}
	if s.Vision.Embedder.Dimension <= 0 {
		return fmt.Errorf("vision.embedder.dimension must be positive, got %d", s.Vision.Embedder.Dimension)
	}
	for i := range s.Cameras {
		if s.Cameras[i].ID == "" {
			return fmt.Errorf("cameras[%d]: id is required", i)
		}
	}
	return nil
}
