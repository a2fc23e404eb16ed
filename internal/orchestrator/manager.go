package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/danielpatrickdp/trigger-guard/internal/detection"
	"github.com/danielpatrickdp/trigger-guard/internal/logging"
	"github.com/danielpatrickdp/trigger-guard/internal/observe"
	"github.com/danielpatrickdp/trigger-guard/internal/signals"
	"github.com/danielpatrickdp/trigger-guard/internal/threshold"
)

// #region manager-struct

// ManagerOptions wires a Manager.
type ManagerOptions struct {
	Config    Config
	Threshold threshold.Config
	Store     ThresholdStore
	Journal   Journal
	Profiles  ProfileSource
	Plugins   []signals.Plugin
	Recorder  observe.Recorder
	Logger    *slog.Logger

	PersistTimeout time.Duration // per store call; zero means 5s
}

// Manager owns the live sessions of a process. Sessions are independent;
// sessions of the same user share one learner.
type Manager struct {
	opts           ManagerOptions
	logger         *slog.Logger
	persistBackoff time.Duration

	mu       sync.Mutex
	sessions map[string]*Session
	learners map[string]*threshold.Learner
}

// NewManager creates an empty manager.
func NewManager(opts ManagerOptions) *Manager {
	if opts.Recorder == nil {
		opts.Recorder = observe.Nop{}
	}
	if opts.Threshold.Rate == 0 {
		opts.Threshold = threshold.DefaultConfig()
	}
	if opts.Config.FusionWindow <= 0 {
		opts.Config = DefaultConfig()
	}
	if opts.PersistTimeout <= 0 {
		opts.PersistTimeout = 5 * time.Second
	}
	return &Manager{
		opts:           opts,
		logger:         logging.NewComponentLogger(opts.Logger, "manager"),
		persistBackoff: 50 * time.Millisecond,
		sessions:       make(map[string]*Session),
		learners:       make(map[string]*threshold.Learner),
	}
}

// #endregion manager-struct

// #region learners

// Learner returns the shared learner of userID, restoring it from the store
// on first use. The store is read outside the manager lock and bounded by
// the persist timeout; a failure leaves the learner at its defaults.
func (m *Manager) Learner(ctx context.Context, userID string) *threshold.Learner {
	m.mu.Lock()
	l, ok := m.learners[userID]
	m.mu.Unlock()
	if ok {
		return l
	}

	loaded := m.loadLearner(ctx, userID)

	m.mu.Lock()
	defer m.mu.Unlock()
	if l, ok := m.learners[userID]; ok {
		return l
	}
	m.learners[userID] = loaded
	return loaded
}

func (m *Manager) loadLearner(ctx context.Context, userID string) *threshold.Learner {
	l := threshold.NewLearner(userID, m.opts.Threshold)
	if m.opts.Store == nil {
		return l
	}
	callCtx, cancel := context.WithTimeout(ctx, m.opts.PersistTimeout)
	defer cancel()
	records, err := m.opts.Store.LoadThresholds(callCtx, userID)
	if err != nil {
		logging.WarnWithContext(m.logger, "threshold load failed", "threshold_load_failed",
			logging.String(logging.FieldUserID, userID),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the threshold store is reachable"),
			logging.String(logging.FieldImpact, "viewer starts from default thresholds"))
		return l
	}
	l.Restore(records)
	return l
}

// ExportThresholds returns the current thresholds of userID.
func (m *Manager) ExportThresholds(ctx context.Context, userID string) map[detection.Category]float64 {
	return m.Learner(ctx, userID).Export()
}

// ImportThresholds applies a snapshot to userID's learner and persists it.
// Unknown categories are reported but do not block the known ones.
func (m *Manager) ImportThresholds(ctx context.Context, userID string, snapshot map[detection.Category]float64) error {
	l := m.Learner(ctx, userID)
	importErr := l.Import(snapshot)
	if m.opts.Store != nil {
		records := l.All()
		err := persistWithRetry(ctx, m.persistBackoff, func(ctx context.Context) error {
			callCtx, cancel := context.WithTimeout(ctx, m.opts.PersistTimeout)
			defer cancel()
			return m.opts.Store.SaveThresholds(callCtx, userID, records)
		})
		if err != nil {
			m.opts.Recorder.Inc(observe.CounterPersistFailed, "")
			logging.WarnWithContext(m.logger, "threshold import not persisted", "threshold_persist_failed",
				logging.String(logging.FieldUserID, userID),
				logging.Error(err),
				logging.String(logging.FieldImpact, "imported thresholds last for this process only"))
		}
	}
	return importErr
}

// #endregion learners

// #region sessions

// Open starts a new session for userID. A nil profiles uses the manager's
// profile source.
func (m *Manager) Open(ctx context.Context, userID string, profiles ProfileSource) *Session {
	if profiles == nil {
		profiles = m.opts.Profiles
	}
	learner := m.Learner(ctx, userID)

	s := NewSession(SessionOptions{
		Config:   m.opts.Config,
		Learner:  learner,
		Profiles: profiles,
		Plugins:  m.opts.Plugins,
		Store:    m.opts.Store,
		Journal:  m.opts.Journal,
		Recorder: m.opts.Recorder,
		Logger:   m.opts.Logger,

		PersistTimeout: m.opts.PersistTimeout,
	})
	m.mu.Lock()
	m.sessions[s.ID()] = s
	n := len(m.sessions)
	m.mu.Unlock()

	m.opts.Recorder.Set(observe.GaugeActiveSessions, int64(n))
	m.logger.Info("session opened",
		logging.String(logging.FieldSessionID, s.ID()),
		logging.String(logging.FieldUserID, userID))
	return s
}

// Session looks up a live session.
func (m *Manager) Session(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, nil
}

// CloseSession closes and forgets a session. The user's learner is kept.
func (m *Manager) CloseSession(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	n := len(m.sessions)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	s.Close()
	m.opts.Recorder.Set(observe.GaugeActiveSessions, int64(n))
	m.logger.Info("session closed", logging.String(logging.FieldSessionID, id))
	return nil
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// CloseAll closes every session.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()
	for _, s := range sessions {
		s.Close()
	}
	m.opts.Recorder.Set(observe.GaugeActiveSessions, 0)
}

// #endregion sessions
