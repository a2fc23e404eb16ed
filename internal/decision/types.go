package decision

import (
	"math"

	"github.com/danielpatrickdp/trigger-guard/internal/detection"
)

// #region decider-config
// DeciderConfig holds the merge and rate-limit windows, in media seconds.
type DeciderConfig struct {
	MergeWindow float64 // a detection this close to an open warning extends it
	MinGap      float64 // quiet time required around a warning before the category re-fires
	WarningSpan float64 // length of a freshly emitted warning
}

// DefaultDeciderConfig returns the defaults.
func DefaultDeciderConfig() DeciderConfig {
	return DeciderConfig{
		MergeWindow: 2,
		MinGap:      3,
		WarningSpan: 5,
	}
}

// #endregion decider-config

// #region action
// Action is what the decider did with a candidate.
type Action string

const (
	ActionEmit     Action = "emit"
	ActionMerge    Action = "merge"
	ActionSuppress Action = "suppress"
)

// Reason explains a suppression.
type Reason string

const (
	ReasonNone               Reason = ""
	ReasonCategoryDisabled   Reason = "category_disabled"
	ReasonValidationRejected Reason = "validation_rejected"
	ReasonBelowThreshold     Reason = "below_threshold"
	ReasonDuplicateKey       Reason = "duplicate_key"
	ReasonCooldown           Reason = "cooldown"
)

// #endregion action

// #region key
// Key is the dedup identity of a warning: category and whole media second.
type Key struct {
	Category detection.Category
	Second   int64
}

// KeyFor returns the key for a category at media time ts.
func KeyFor(c detection.Category, ts float64) Key {
	return Key{Category: c, Second: int64(math.Floor(ts))}
}

// #endregion key

// #region warning
// Warning is the externally visible unit handed to presentation.
type Warning struct {
	ID         string             `json:"id"`
	Category   detection.Category `json:"category"`
	StartTime  float64            `json:"start_time"`
	EndTime    float64            `json:"end_time"`
	Confidence float64            `json:"confidence"`
}

// #endregion warning

// #region input
// Input is one candidate for a warning after validation.
type Input struct {
	Category   detection.Category
	Confidence float64 // final confidence after fusion, validation and plugins
	Timestamp  float64
	Validated  bool
	Enabled    bool    // category enabled in the viewer's profile
	Threshold  float64 // learned threshold for the category
	Offset     float64 // profile narrowing; negative values are ignored
}

// #endregion input

// #region outcome
// Check captures a single gate check, in evaluation order.
type Check struct {
	Name  string
	Value float64
	Pass  bool
}

// Outcome is the result of Decide. Warning is non-nil only for emit and merge.
type Outcome struct {
	Action             Action
	Reason             Reason
	Key                Key
	EffectiveThreshold float64
	Warning            *Warning
	Checks             []Check
}

// Emitted reports whether the outcome produced or extended a warning.
func (o Outcome) Emitted() bool {
	return o.Action == ActionEmit || o.Action == ActionMerge
}

// #endregion outcome
