package logging

import "time"

// #region decision-entry
// DecisionEntry is a single row in the decision_log table: one pipeline
// outcome for one detection.
type DecisionEntry struct {
	SessionID   string
	UserID      string
	Epoch       uint64
	Category    string
	Timestamp   float64
	Confidence  float64
	Threshold   float64
	Action      string // "emit" | "merge" | "suppress"
	Reason      string
	WarningID   string
	SignalsJSON string
	CreatedAt   time.Time
}

// #endregion decision-entry

// #region event-entry
// EventEntry is a single row in the event_journal table. Payload holds the
// raw event as JSON so a session can be replayed later.
type EventEntry struct {
	SessionID string
	Seq       int64
	Kind      string // "detection" | "feedback" | "seek" | "media_change"
	Payload   string
	CreatedAt time.Time
}

// #endregion event-entry

// #region decision-signals
// DecisionSignals is serialized into decision_log.signals_json so an outcome
// can be explained without replaying the session.
type DecisionSignals struct {
	Strategy          string             `json:"strategy"`
	Contributions     map[string]float64 `json:"contributions"`
	Reliability       map[string]float64 `json:"reliability,omitempty"`
	Regularized       float64            `json:"regularized"`
	Fused             float64            `json:"fused"`
	PluginAdjustment  float64            `json:"plugin_adjustment"`
	ValidationLevel   string             `json:"validation_level"`
	ValidationPassed  bool               `json:"validation_passed"`
	ModalitiesPresent []string           `json:"modalities_present,omitempty"`
}

// #endregion decision-signals
