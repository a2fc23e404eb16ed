package orchestrator

// #region imports
import (
	"context"
	"errors"

	"github.com/danielpatrickdp/trigger-guard/internal/decision"
	"github.com/danielpatrickdp/trigger-guard/internal/detection"
	"github.com/danielpatrickdp/trigger-guard/internal/fusion"
	"github.com/danielpatrickdp/trigger-guard/internal/gate"
	"github.com/danielpatrickdp/trigger-guard/internal/intake"
	"github.com/danielpatrickdp/trigger-guard/internal/logging"
	"github.com/danielpatrickdp/trigger-guard/internal/profile"
	"github.com/danielpatrickdp/trigger-guard/internal/routing"
	"github.com/danielpatrickdp/trigger-guard/internal/signals"
	"github.com/danielpatrickdp/trigger-guard/internal/temporal"
	"github.com/danielpatrickdp/trigger-guard/internal/threshold"
)

// #endregion

// #region errors

var (
	// ErrStaleEpoch is returned for a detection stamped with an epoch older
	// than the session's current one.
	ErrStaleEpoch = errors.New("detection from a previous timeline")
	// ErrSessionClosed is returned once a session has been closed.
	ErrSessionClosed = errors.New("session closed")
	// ErrSessionNotFound is returned by Manager lookups.
	ErrSessionNotFound = errors.New("session not found")
)

// #endregion

// #region event

// EventKind tags the variant carried by an Event.
type EventKind string

const (
	EventDetection   EventKind = "detection"
	EventFeedback    EventKind = "feedback"
	EventSeek        EventKind = "seek"
	EventMediaChange EventKind = "media_change"
)

// Event is one input to a session's serialized loop. Exactly one payload is
// meaningful, selected by Kind.
type Event struct {
	Kind      EventKind            `json:"kind"`
	Detection *detection.Detection `json:"detection,omitempty"`
	Feedback  *threshold.Feedback  `json:"feedback,omitempty"`
	SeekTo    float64              `json:"seek_to,omitempty"`
	MediaID   string               `json:"media_id,omitempty"`
}

// #endregion

// #region config

// Config bundles the stage configurations of one session.
type Config struct {
	FusionWindow float64 // seconds either side of a detection whose evidence is fused with it
	Window       intake.WindowConfig
	Regularizer  temporal.RegularizerConfig
	Fusion       fusion.EngineConfig
	Validator    gate.ValidatorConfig
	Producer     signals.ProducerConfig
	Decider      decision.DeciderConfig
}

// DefaultConfig returns the default stage configurations.
func DefaultConfig() Config {
	return Config{
		FusionWindow: 1,
		Window:       intake.DefaultWindowConfig(),
		Regularizer:  temporal.DefaultRegularizerConfig(),
		Fusion:       fusion.DefaultEngineConfig(),
		Validator:    gate.DefaultValidatorConfig(),
		Producer:     signals.DefaultProducerConfig(),
		Decider:      decision.DefaultDeciderConfig(),
	}
}

// #endregion

// #region result

// Result is everything the pipeline computed for one detection.
type Result struct {
	Epoch       uint64
	Detection   detection.Detection
	Regularized temporal.RegularizedDetection
	Route       routing.Route
	Fused       fusion.Result
	Adjustment  signals.Adjustment
	Validation  gate.ValidationResult
	Confidence  float64 // what the decider saw
	Threshold   float64
	Outcome     decision.Outcome
}

// Warning returns the emitted or extended warning, or nil.
func (r Result) Warning() *decision.Warning {
	return r.Outcome.Warning
}

// #endregion

// #region interfaces

// ThresholdStore persists learned thresholds. Both the sqlite and mongo
// stores satisfy it.
type ThresholdStore interface {
	LoadThresholds(ctx context.Context, userID string) ([]threshold.CategoryThreshold, error)
	SaveAdjustment(ctx context.Context, userID string, rec threshold.CategoryThreshold, adj threshold.Adjustment) error
	SaveThresholds(ctx context.Context, userID string, records []threshold.CategoryThreshold) error
}

// Journal records events and outcomes for later replay.
type Journal interface {
	RecordEvent(ctx context.Context, entry logging.EventEntry) error
	RecordDecision(ctx context.Context, entry logging.DecisionEntry) error
}

// ProfileSource supplies the viewer profile current at decision time.
type ProfileSource interface {
	Current() profile.Profile
}

// #endregion
