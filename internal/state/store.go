// Package state persists per-user thresholds, their adjustment history and
// the session journal in SQLite.
package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/danielpatrickdp/trigger-guard/internal/detection"
	"github.com/danielpatrickdp/trigger-guard/internal/logging"
	"github.com/danielpatrickdp/trigger-guard/internal/threshold"
	_ "modernc.org/sqlite"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS thresholds (
	user_id        TEXT NOT NULL,
	category       TEXT NOT NULL,
	current        REAL NOT NULL,
	default_value  REAL NOT NULL,
	learning_count INTEGER NOT NULL DEFAULT 0,
	converged      INTEGER NOT NULL DEFAULT 0,
	recent_steps   TEXT,
	updated_at     TEXT NOT NULL,
	PRIMARY KEY (user_id, category)
);

CREATE TABLE IF NOT EXISTS threshold_adjustments (
	id          TEXT PRIMARY KEY,
	user_id     TEXT NOT NULL,
	category    TEXT NOT NULL,
	old         REAL NOT NULL,
	new         REAL NOT NULL,
	feedback    TEXT NOT NULL,
	reasoning   TEXT,
	converged   INTEGER NOT NULL DEFAULT 0,
	created_at  TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_adjustments_user ON threshold_adjustments(user_id, created_at);

CREATE TABLE IF NOT EXISTS event_journal (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id  TEXT NOT NULL,
	seq         INTEGER NOT NULL,
	kind        TEXT NOT NULL,
	payload     TEXT NOT NULL,
	created_at  TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_journal_session ON event_journal(session_id, seq);

CREATE TABLE IF NOT EXISTS decision_log (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id   TEXT NOT NULL,
	user_id      TEXT,
	epoch        INTEGER NOT NULL,
	category     TEXT NOT NULL,
	ts           REAL NOT NULL,
	confidence   REAL NOT NULL,
	threshold    REAL NOT NULL,
	action       TEXT NOT NULL,
	reason       TEXT,
	warning_id   TEXT,
	signals_json TEXT,
	created_at   TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_decisions_session ON decision_log(session_id, id);
`

// #endregion schema

// #region store-struct
// Store persists learner state and the journal in SQLite.
type Store struct {
	db *sql.DB
}

// #endregion store-struct

// #region constructor
// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma busy: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// #endregion constructor

// #region close
// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for the logging package.
func (s *Store) DB() *sql.DB {
	return s.db
}

// #endregion close

// #region thresholds
// LoadThresholds returns every stored threshold for userID. Rows naming an
// unknown category are skipped.
func (s *Store) LoadThresholds(ctx context.Context, userID string) ([]threshold.CategoryThreshold, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT category, current, default_value, learning_count, converged, recent_steps
		 FROM thresholds WHERE user_id = ? ORDER BY category`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("load thresholds: %w", err)
	}
	defer rows.Close()

	var out []threshold.CategoryThreshold
	for rows.Next() {
		var rec threshold.CategoryThreshold
		var category string
		var converged int
		var steps sql.NullString
		if err := rows.Scan(&category, &rec.Current, &rec.Default, &rec.LearningCount, &converged, &steps); err != nil {
			return nil, fmt.Errorf("scan threshold: %w", err)
		}
		rec.Category = detection.Category(category)
		if !rec.Category.Valid() {
			continue
		}
		rec.Converged = converged != 0
		if steps.Valid && steps.String != "" {
			if err := json.Unmarshal([]byte(steps.String), &rec.RecentSteps); err != nil {
				return nil, fmt.Errorf("unmarshal recent steps for %s: %w", category, err)
			}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// SaveThresholds upserts records for userID in one transaction.
func (s *Store) SaveThresholds(ctx context.Context, userID string, records []threshold.CategoryThreshold) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, rec := range records {
		if err := upsertThreshold(ctx, tx, userID, rec); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// SaveAdjustment stores the new threshold state and the adjustment that
// produced it atomically.
func (s *Store) SaveAdjustment(ctx context.Context, userID string, rec threshold.CategoryThreshold, adj threshold.Adjustment) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := upsertThreshold(ctx, tx, userID, rec); err != nil {
		return err
	}

	at := adj.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO threshold_adjustments (id, user_id, category, old, new, feedback, reasoning, converged, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		adj.ID, userID, string(adj.Category), adj.Old, adj.New, string(adj.Feedback),
		nullIfEmpty(adj.Reasoning), boolToInt(adj.Converged), at.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert adjustment: %w", err)
	}
	return tx.Commit()
}

func upsertThreshold(ctx context.Context, tx *sql.Tx, userID string, rec threshold.CategoryThreshold) error {
	steps, err := json.Marshal(rec.RecentSteps)
	if err != nil {
		return fmt.Errorf("marshal recent steps: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO thresholds (user_id, category, current, default_value, learning_count, converged, recent_steps, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id, category) DO UPDATE SET
			current = excluded.current,
			default_value = excluded.default_value,
			learning_count = excluded.learning_count,
			converged = excluded.converged,
			recent_steps = excluded.recent_steps,
			updated_at = excluded.updated_at`,
		userID, string(rec.Category), rec.Current, rec.Default, rec.LearningCount,
		boolToInt(rec.Converged), string(steps), time.Now().UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("upsert threshold %s: %w", rec.Category, err)
	}
	return nil
}

// #endregion thresholds

// #region adjustments
// ListAdjustments returns the most recent adjustments for userID, newest
// first.
func (s *Store) ListAdjustments(ctx context.Context, userID string, limit int) ([]threshold.Adjustment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, category, old, new, feedback, reasoning, converged, created_at
		 FROM threshold_adjustments WHERE user_id = ?
		 ORDER BY created_at DESC, id DESC LIMIT ?`, userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list adjustments: %w", err)
	}
	defer rows.Close()

	var out []threshold.Adjustment
	for rows.Next() {
		adj := threshold.Adjustment{UserID: userID}
		var category, feedback, createdStr string
		var reasoning sql.NullString
		var converged int
		if err := rows.Scan(&adj.ID, &category, &adj.Old, &adj.New, &feedback, &reasoning, &converged, &createdStr); err != nil {
			return nil, fmt.Errorf("scan adjustment: %w", err)
		}
		adj.Category = detection.Category(category)
		adj.Feedback = threshold.FeedbackKind(feedback)
		adj.Reasoning = reasoning.String
		adj.Converged = converged != 0
		adj.At, _ = time.Parse(time.RFC3339Nano, createdStr)
		out = append(out, adj)
	}
	return out, rows.Err()
}

// ListUsers returns every user with stored thresholds.
func (s *Store) ListUsers(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT user_id FROM thresholds ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()
	var users []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// #endregion adjustments

// #region journal
// RecordEvent appends entry to the event journal.
func (s *Store) RecordEvent(_ context.Context, entry logging.EventEntry) error {
	return logging.LogEvent(s.db, entry)
}

// RecordDecision appends entry to the decision log.
func (s *Store) RecordDecision(_ context.Context, entry logging.DecisionEntry) error {
	return logging.LogDecision(s.db, entry)
}

// JournalEvents returns the events of sessionID in sequence order.
func (s *Store) JournalEvents(ctx context.Context, sessionID string) ([]JournalRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, seq, kind, payload, created_at
		 FROM event_journal WHERE session_id = ? ORDER BY seq, id`, sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("journal events: %w", err)
	}
	defer rows.Close()

	var out []JournalRecord
	for rows.Next() {
		var rec JournalRecord
		var createdStr string
		if err := rows.Scan(&rec.SessionID, &rec.Seq, &rec.Kind, &rec.Payload, &createdStr); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Decisions returns the decision log of sessionID in insertion order.
func (s *Store) Decisions(ctx context.Context, sessionID string) ([]DecisionRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, user_id, epoch, category, ts, confidence, threshold, action, reason, warning_id, created_at
		 FROM decision_log WHERE session_id = ? ORDER BY id`, sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("decisions: %w", err)
	}
	defer rows.Close()

	var out []DecisionRecord
	for rows.Next() {
		var rec DecisionRecord
		var userID, reason, warningID sql.NullString
		var epoch int64
		var createdStr string
		if err := rows.Scan(&rec.SessionID, &userID, &epoch, &rec.Category, &rec.Timestamp, &rec.Confidence,
			&rec.Threshold, &rec.Action, &reason, &warningID, &createdStr); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		rec.UserID = userID.String
		rec.Epoch = uint64(epoch)
		rec.Reason = reason.String
		rec.WarningID = warningID.String
		rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ListSessions returns journaled sessions, most recently active first.
func (s *Store) ListSessions(ctx context.Context, limit int) ([]SessionSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, COUNT(*), MIN(created_at), MAX(created_at)
		 FROM event_journal GROUP BY session_id
		 ORDER BY MAX(created_at) DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionSummary
	for rows.Next() {
		var sum SessionSummary
		var first, last string
		if err := rows.Scan(&sum.SessionID, &sum.Events, &first, &last); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sum.FirstAt, _ = time.Parse(time.RFC3339Nano, first)
		sum.LastAt, _ = time.Parse(time.RFC3339Nano, last)
		out = append(out, sum)
	}
	return out, rows.Err()
}

// #endregion journal

// #region helpers
// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// #endregion helpers
