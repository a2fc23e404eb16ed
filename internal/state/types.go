package state

import "time"

// #region journal-record
// JournalRecord is one row of event_journal read back for replay or export.
type JournalRecord struct {
	SessionID string
	Seq       int64
	Kind      string
	Payload   string
	CreatedAt time.Time
}

// #endregion journal-record

// #region decision-record
// DecisionRecord is one row of decision_log.
type DecisionRecord struct {
	SessionID  string
	UserID     string
	Epoch      uint64
	Category   string
	Timestamp  float64
	Confidence float64
	Threshold  float64
	Action     string
	Reason     string
	WarningID  string
	CreatedAt  time.Time
}

// #endregion decision-record

// #region session-summary
// SessionSummary describes a journaled session.
type SessionSummary struct {
	SessionID string
	Events    int
	FirstAt   time.Time
	LastAt    time.Time
}

// #endregion session-summary
