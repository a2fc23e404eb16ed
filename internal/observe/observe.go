// Package observe is the single observability surface every pipeline stage
// reports to.
//
// Stages never keep their own running statistics; they call a Recorder. The
// Registry implementation is thread-safe and renders Prometheus text format.
package observe

import (
	"time"

	"github.com/danielpatrickdp/trigger-guard/internal/detection"
)

// Counter names a monotonically increasing event count.
type Counter string

const (
	CounterIngested           Counter = "detections_ingested_total"
	CounterRejectedMalformed  Counter = "detections_rejected_malformed_total"
	CounterRejectedStale      Counter = "detections_rejected_stale_total"
	CounterStaleEpoch         Counter = "detections_stale_epoch_total"
	CounterValidationRejected Counter = "validation_rejected_total"
	CounterBelowThreshold     Counter = "below_threshold_total"
	CounterDisabled           Counter = "category_disabled_total"
	CounterDuplicate          Counter = "duplicate_key_total"
	CounterCooldown           Counter = "cooldown_total"
	CounterMerged             Counter = "warnings_merged_total"
	CounterEmitted            Counter = "warnings_emitted_total"
	CounterFeedbackApplied    Counter = "feedback_applied_total"
	CounterFeedbackIgnored    Counter = "feedback_ignored_total"
	CounterDiscontinuity      Counter = "discontinuities_total"
	CounterPersistFailed      Counter = "threshold_persist_failed_total"
	CounterStagePanic         Counter = "stage_panics_total"
)

// Gauge names a value that can go up and down.
type Gauge string

const (
	GaugeOpenWarnings   Gauge = "open_warnings"
	GaugeHistorySize    Gauge = "history_size"
	GaugeActiveSessions Gauge = "active_sessions"
)

var counterHelp = map[Counter]string{
	CounterIngested:           "Detections accepted into history.",
	CounterRejectedMalformed:  "Detections rejected as malformed.",
	CounterRejectedStale:      "Detections older than their category window.",
	CounterStaleEpoch:         "Detections stamped with a pre-discontinuity epoch.",
	CounterValidationRejected: "Fused detections dropped for insufficient corroboration.",
	CounterBelowThreshold:     "Candidates suppressed below the learned threshold.",
	CounterDisabled:           "Candidates suppressed because the category is disabled.",
	CounterDuplicate:          "Candidates suppressed by an already emitted key.",
	CounterCooldown:           "Candidates suppressed by the minimum gap.",
	CounterMerged:             "Candidates merged into an open warning.",
	CounterEmitted:            "Warnings emitted.",
	CounterFeedbackApplied:    "Feedback events applied to a threshold.",
	CounterFeedbackIgnored:    "Feedback events ignored.",
	CounterDiscontinuity:      "Seek and media change signals.",
	CounterPersistFailed:      "Threshold persistence failures.",
	CounterStagePanic:         "Recovered panics inside a pipeline stage.",
}

var gaugeHelp = map[Gauge]string{
	GaugeOpenWarnings:   "Categories with an open warning.",
	GaugeHistorySize:    "Detections retained across category histories.",
	GaugeActiveSessions: "Active viewing sessions.",
}

// Recorder receives counters, gauges and latencies. category may be empty for
// events that are not tied to one category.
type Recorder interface {
	Inc(c Counter, category detection.Category)
	Set(g Gauge, v int64)
	ObserveLatency(d time.Duration)
}

// Nop discards everything.
type Nop struct{}

func (Nop) Inc(Counter, detection.Category) {}
func (Nop) Set(Gauge, int64)                {}
func (Nop) ObserveLatency(time.Duration)    {}
