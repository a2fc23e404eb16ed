package threshold

import (
	"errors"
	"time"

	"github.com/danielpatrickdp/trigger-guard/internal/detection"
)

// #region feedback
// FeedbackKind is the viewer's reaction to a warning (or to its absence).
type FeedbackKind string

const (
	FeedbackDismissed            FeedbackKind = "dismissed"
	FeedbackReportedMissed       FeedbackKind = "reported_missed"
	FeedbackSensitivityIncreased FeedbackKind = "sensitivity_increased"
	FeedbackSensitivityDecreased FeedbackKind = "sensitivity_decreased"
	FeedbackWatchedThrough       FeedbackKind = "watched_through"
	FeedbackConfirmedCorrect     FeedbackKind = "confirmed_correct"
)

// Valid reports whether k is a known feedback kind.
func (k FeedbackKind) Valid() bool {
	switch k {
	case FeedbackDismissed, FeedbackReportedMissed, FeedbackSensitivityIncreased,
		FeedbackSensitivityDecreased, FeedbackWatchedThrough, FeedbackConfirmedCorrect:
		return true
	}
	return false
}

// Feedback is one feedback event from the presentation layer.
type Feedback struct {
	Category            detection.Category `json:"category"`
	Kind                FeedbackKind       `json:"kind"`
	DetectionConfidence float64            `json:"detection_confidence"`
	Timestamp           float64            `json:"timestamp"`
}

// #endregion feedback

// #region category-threshold
// CategoryThreshold is the learned bar for one (user, category).
type CategoryThreshold struct {
	Category      detection.Category
	Current       float64
	Default       float64
	LearningCount int
	Converged     bool
	RecentSteps   []float64 // magnitudes of the most recent applied steps, oldest first
}

// #endregion category-threshold

// #region decision
// Decision records what the update function decided.
type Decision struct {
	Action string // "commit" | "no_op"
	Reason string
}

// #endregion decision

// #region adjustment
// Adjustment is emitted for every applied feedback event, for telemetry.
type Adjustment struct {
	ID        string
	UserID    string
	Category  detection.Category
	Old       float64
	New       float64
	Feedback  FeedbackKind
	Reasoning string
	Converged bool
	At        time.Time
}

// #endregion adjustment

// #region config
// Config holds learning parameters.
type Config struct {
	Rate              float64 // EMA step applied to each raw adjustment (default 0.1)
	Min               float64 // lower clamp (default 40)
	Max               float64 // upper clamp (default 95)
	Default           float64 // starting threshold (default 65)
	StabilityEpsilon  float64 // steps below this count as stable (default 2)
	ConvergenceWindow int     // number of recent steps that must all be stable (default 5)

	MinDismissAdjustment float64 // dismissed moves at least this far (default 5)
	MissedAdjustment     float64 // default -10
	SensitivityStep      float64 // default 10
	WatchedAdjustment    float64 // default 2
}

// DefaultConfig returns the defaults.
func DefaultConfig() Config {
	return Config{
		Rate:                 0.1,
		Min:                  40,
		Max:                  95,
		Default:              65,
		StabilityEpsilon:     2,
		ConvergenceWindow:    5,
		MinDismissAdjustment: 5,
		MissedAdjustment:     -10,
		SensitivityStep:      10,
		WatchedAdjustment:    2,
	}
}

// #endregion config

// #region update-result
// UpdateResult bundles everything returned by Update().
type UpdateResult struct {
	New      CategoryThreshold
	Raw      float64 // adjustment before the rate was applied
	Step     float64 // applied change after clamping
	Decision Decision
}

// #endregion update-result

// #region errors
var (
	// ErrUnknownCategory is returned for feedback or imports naming a category
	// outside the fixed set.
	ErrUnknownCategory = errors.New("unknown category")
	// ErrUnknownFeedback is returned for an unrecognized feedback kind.
	ErrUnknownFeedback = errors.New("unknown feedback kind")
)

// #endregion errors
