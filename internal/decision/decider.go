package decision

import (
	"math"

	"github.com/danielpatrickdp/trigger-guard/internal/detection"
	"github.com/google/uuid"
)

// #region decider
// Decider applies the emission gate and deduplication for one session. Not
// safe for concurrent use; the owning session serializes calls.
type Decider struct {
	config  DeciderConfig
	emitted map[Key]struct{}
	open    map[detection.Category]*openWarning
	newID   func() string
}

// openWarning is the most recent warning per category plus the timestamp of
// the last detection folded into it.
type openWarning struct {
	warning  Warning
	lastSeen float64
}

// NewDecider creates a decider with no recorded keys.
func NewDecider(config DeciderConfig) *Decider {
	return &Decider{
		config:  config,
		emitted: make(map[Key]struct{}),
		open:    make(map[detection.Category]*openWarning),
		newID:   func() string { return uuid.New().String() },
	}
}

// Decide runs the gate checks in order and returns the first failing one as a
// suppression. Passing candidates are merged into a still-open or nearby warning,
// suppressed during cooldown, or emitted as a new warning.
func (d *Decider) Decide(in Input) Outcome {
	out := Outcome{
		Key:                KeyFor(in.Category, in.Timestamp),
		EffectiveThreshold: in.Threshold + math.Max(0, in.Offset),
	}

	// 1. Profile enablement
	out.Checks = append(out.Checks, Check{Name: "enabled", Value: boolValue(in.Enabled), Pass: in.Enabled})
	if !in.Enabled {
		return suppress(out, ReasonCategoryDisabled)
	}

	// 2. Corroboration
	out.Checks = append(out.Checks, Check{Name: "validated", Value: boolValue(in.Validated), Pass: in.Validated})
	if !in.Validated {
		return suppress(out, ReasonValidationRejected)
	}

	// 3. Threshold; the profile offset can only raise the bar
	above := in.Confidence >= out.EffectiveThreshold
	out.Checks = append(out.Checks, Check{Name: "threshold", Value: in.Confidence - out.EffectiveThreshold, Pass: above})
	if !above {
		return suppress(out, ReasonBelowThreshold)
	}

	// 4. Emitted key
	_, seen := d.emitted[out.Key]
	out.Checks = append(out.Checks, Check{Name: "key_unseen", Value: float64(out.Key.Second), Pass: !seen})
	if seen {
		return suppress(out, ReasonDuplicateKey)
	}

	// 5. Merge or cooldown against the category's latest warning
	if ow, ok := d.open[in.Category]; ok {
		w := &ow.warning
		// Inside the interval, or within the merge window of the last fold,
		// extends the warning. Past the end the min gap applies.
		nearLast := in.Timestamp <= ow.lastSeen+d.config.MergeWindow
		if in.Timestamp >= w.StartTime-d.config.MergeWindow && (nearLast || in.Timestamp <= w.EndTime) {
			w.StartTime = math.Min(w.StartTime, in.Timestamp)
			w.EndTime = math.Max(w.EndTime, in.Timestamp+d.config.WarningSpan)
			w.Confidence = math.Max(w.Confidence, in.Confidence)
			ow.lastSeen = math.Max(ow.lastSeen, in.Timestamp)
			d.emitted[out.Key] = struct{}{}

			merged := *w
			out.Action = ActionMerge
			out.Warning = &merged
			return out
		}
		candidateEnd := in.Timestamp + d.config.WarningSpan
		if in.Timestamp < w.EndTime+d.config.MinGap && candidateEnd > w.StartTime-d.config.MinGap {
			out.Checks = append(out.Checks, Check{Name: "min_gap", Value: in.Timestamp - w.EndTime, Pass: false})
			return suppress(out, ReasonCooldown)
		}
	}

	w := Warning{
		ID:         d.newID(),
		Category:   in.Category,
		StartTime:  in.Timestamp,
		EndTime:    in.Timestamp + d.config.WarningSpan,
		Confidence: in.Confidence,
	}
	d.open[in.Category] = &openWarning{warning: w, lastSeen: in.Timestamp}
	d.emitted[out.Key] = struct{}{}

	out.Action = ActionEmit
	out.Warning = &w
	return out
}

// #endregion decider

// #region lifecycle
// Reset forgets open warnings after a discontinuity. Emitted keys survive a
// seek; clearKeys drops them too, for a media change.
func (d *Decider) Reset(clearKeys bool) {
	d.open = make(map[detection.Category]*openWarning)
	if clearKeys {
		d.emitted = make(map[Key]struct{})
	}
}

// Seen reports whether k has been emitted or merged.
func (d *Decider) Seen(k Key) bool {
	_, ok := d.emitted[k]
	return ok
}

// OpenCount returns the number of categories with a tracked warning.
func (d *Decider) OpenCount() int {
	return len(d.open)
}

// #endregion lifecycle

// #region helpers
func suppress(out Outcome, r Reason) Outcome {
	out.Action = ActionSuppress
	out.Reason = r
	return out
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// #endregion helpers
