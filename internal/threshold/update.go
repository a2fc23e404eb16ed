package threshold

import (
	"fmt"
	"math"
)

// #region update-function
// Update is a pure function that computes the next threshold for one category
// from a feedback event. The result is always inside [Min, Max].
func Update(old CategoryThreshold, fb Feedback, config Config) UpdateResult {
	raw := rawAdjustment(old.Current, fb, config)
	next := Clamp(old.Current+config.Rate*raw, config)
	step := next - old.Current

	newRec := CategoryThreshold{
		Category:      old.Category,
		Current:       next,
		Default:       old.Default,
		LearningCount: old.LearningCount + 1,
		RecentSteps:   appendStep(old.RecentSteps, math.Abs(step), config.ConvergenceWindow),
	}
	newRec.Converged = converged(newRec.RecentSteps, config)

	decision := Decision{Action: "no_op", Reason: fmt.Sprintf("%s: threshold unchanged", fb.Kind)}
	if step != 0 {
		decision = Decision{
			Action: "commit",
			Reason: fmt.Sprintf("%s: raw %+.2f, step %+.3f", fb.Kind, raw, step),
		}
	}

	return UpdateResult{
		New:      newRec,
		Raw:      raw,
		Step:     step,
		Decision: decision,
	}
}

// #endregion update-function

// #region helpers
// rawAdjustment returns the signed adjustment before the learning rate.
func rawAdjustment(current float64, fb Feedback, config Config) float64 {
	switch fb.Kind {
	case FeedbackDismissed:
		// move toward the dismissed confidence, always upward
		return math.Max(config.MinDismissAdjustment, fb.DetectionConfidence-current)
	case FeedbackReportedMissed:
		return config.MissedAdjustment
	case FeedbackSensitivityIncreased:
		return -config.SensitivityStep
	case FeedbackSensitivityDecreased:
		return config.SensitivityStep
	case FeedbackWatchedThrough:
		return config.WatchedAdjustment
	case FeedbackConfirmedCorrect:
		return 0
	}
	return 0
}

// Clamp bounds v to [Min, Max].
func Clamp(v float64, config Config) float64 {
	if math.IsNaN(v) {
		return config.Default
	}
	if v < config.Min {
		return config.Min
	}
	if v > config.Max {
		return config.Max
	}
	return v
}

func appendStep(recent []float64, step float64, window int) []float64 {
	out := make([]float64, 0, window)
	out = append(out, recent...)
	out = append(out, step)
	if len(out) > window {
		out = out[len(out)-window:]
	}
	return out
}

func converged(recent []float64, config Config) bool {
	if len(recent) < config.ConvergenceWindow {
		return false
	}
	for _, s := range recent {
		if s >= config.StabilityEpsilon {
			return false
		}
	}
	return true
}

// #endregion helpers
