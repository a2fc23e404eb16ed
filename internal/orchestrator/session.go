// Package orchestrator runs detections through the warning pipeline, one
// event at a time per viewing session.
package orchestrator

// #region imports
import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mdobak/go-xerrors"

	"github.com/danielpatrickdp/trigger-guard/internal/decision"
	"github.com/danielpatrickdp/trigger-guard/internal/detection"
	"github.com/danielpatrickdp/trigger-guard/internal/fusion"
	"github.com/danielpatrickdp/trigger-guard/internal/gate"
	"github.com/danielpatrickdp/trigger-guard/internal/intake"
	"github.com/danielpatrickdp/trigger-guard/internal/logging"
	"github.com/danielpatrickdp/trigger-guard/internal/observe"
	"github.com/danielpatrickdp/trigger-guard/internal/profile"
	"github.com/danielpatrickdp/trigger-guard/internal/routing"
	"github.com/danielpatrickdp/trigger-guard/internal/signals"
	"github.com/danielpatrickdp/trigger-guard/internal/temporal"
	"github.com/danielpatrickdp/trigger-guard/internal/threshold"
)

// #endregion

// #region options

// SessionOptions wires a Session. Only Learner is required.
type SessionOptions struct {
	ID       string
	Config   Config
	Learner  *threshold.Learner
	Profiles ProfileSource
	Plugins  []signals.Plugin
	Store    ThresholdStore
	Journal  Journal
	Recorder observe.Recorder
	Logger   *slog.Logger

	// PersistTimeout bounds each store or journal call. Zero means 5s.
	PersistTimeout time.Duration
}

// StaticProfile is a ProfileSource that never changes.
type StaticProfile profile.Profile

func (p StaticProfile) Current() profile.Profile { return profile.Profile(p) }

// #endregion

// #region session-struct

// Session owns the pipeline state of one viewing session. Every exported
// method may be called from any goroutine; events are processed to
// completion one at a time.
type Session struct {
	id       string
	userID   string
	config   Config
	learner  *threshold.Learner
	profiles ProfileSource
	store    ThresholdStore
	journal  Journal
	rec      observe.Recorder
	logger   *slog.Logger

	persistTimeout time.Duration
	persistBackoff time.Duration

	mu          sync.Mutex
	closed      bool
	epoch       uint64
	seekFloor   float64 // media position the current timeline started at
	seq         int64
	mediaID     string
	window      *intake.Window
	router      *routing.Router
	regularizer *temporal.Regularizer
	engine      *fusion.Engine
	validator   *gate.Validator
	producer    *signals.Producer
	decider     *decision.Decider
	lastContrib map[detection.Category]map[detection.Source]float64
	warnings    []decision.Warning
}

// #endregion

// #region constructor

// NewSession builds a session with fresh stage instances.
func NewSession(opts SessionOptions) *Session {
	if opts.ID == "" {
		opts.ID = uuid.New().String()
	}
	if opts.Learner == nil {
		opts.Learner = threshold.NewLearner("", threshold.DefaultConfig())
	}
	if opts.Profiles == nil {
		opts.Profiles = StaticProfile(profile.Default())
	}
	if opts.Recorder == nil {
		opts.Recorder = observe.Nop{}
	}
	if opts.PersistTimeout <= 0 {
		opts.PersistTimeout = 5 * time.Second
	}
	if opts.Config.FusionWindow <= 0 {
		opts.Config = DefaultConfig()
	}
	plugins := opts.Plugins
	if plugins == nil {
		plugins = signals.DefaultPlugins()
	}

	logger := logging.NewComponentLogger(opts.Logger, "session").With(
		logging.String(logging.FieldSessionID, opts.ID),
		logging.String(logging.FieldUserID, opts.Learner.UserID()),
	)

	return &Session{
		id:             opts.ID,
		userID:         opts.Learner.UserID(),
		config:         opts.Config,
		learner:        opts.Learner,
		profiles:       opts.Profiles,
		store:          opts.Store,
		journal:        opts.Journal,
		rec:            opts.Recorder,
		logger:         logger,
		persistTimeout: opts.PersistTimeout,
		persistBackoff: 50 * time.Millisecond,
		window:         intake.NewWindow(opts.Config.Window),
		router:         routing.NewRouter(),
		regularizer:    temporal.NewRegularizer(opts.Config.Regularizer),
		engine:         fusion.NewEngine(opts.Config.Fusion),
		validator:      gate.NewValidator(opts.Config.Validator),
		producer:       signals.NewProducer(opts.Config.Producer, plugins...),
		decider:        decision.NewDecider(opts.Config.Decider),
		lastContrib:    make(map[detection.Category]map[detection.Source]float64),
	}
}

// #endregion

// #region accessors

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// UserID returns the viewer the session belongs to.
func (s *Session) UserID() string { return s.userID }

// Learner returns the shared threshold learner.
func (s *Session) Learner() *threshold.Learner { return s.learner }

// Epoch returns the current timeline generation.
func (s *Session) Epoch() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch
}

// Warnings returns the warnings emitted or extended in the current epoch.
func (s *Session) Warnings() []decision.Warning {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]decision.Warning(nil), s.warnings...)
}

// FusionWeights returns the session's learned fusion parameters.
func (s *Session) FusionWeights() fusion.LearnedWeights {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Weights()
}

// #endregion

// #region process

// Process runs d through the whole pipeline. A rejected detection returns an
// error wrapping detection.ErrMalformed, intake.ErrStale or ErrStaleEpoch; a
// suppressed candidate is not an error.
func (s *Session) Process(ctx context.Context, d detection.Detection) (Result, error) {
	start := time.Now()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Result{}, ErrSessionClosed
	}
	seq := s.nextSeqLocked()
	res, err := s.processLocked(d)
	s.rec.Set(observe.GaugeHistorySize, int64(s.window.Size()))
	s.rec.Set(observe.GaugeOpenWarnings, int64(s.decider.OpenCount()))
	s.mu.Unlock()

	s.rec.ObserveLatency(time.Since(start))
	s.journalEvent(ctx, seq, Event{Kind: EventDetection, Detection: &d})
	if err == nil {
		s.journalDecision(ctx, res)
	}
	return res, err
}

func (s *Session) processLocked(d detection.Detection) (res Result, err error) {
	res = Result{Epoch: s.epoch, Detection: d}

	defer func() {
		if r := recover(); r != nil {
			err = xerrors.New(fmt.Errorf("pipeline panic on %s: %v", d.Category, r))
			s.rec.Inc(observe.CounterStagePanic, d.Category)
			logging.ErrorWithContext(s.logger, "pipeline stage panicked", "stage_panic",
				logging.String(logging.FieldCategory, string(d.Category)),
				logging.Float64("timestamp", d.Timestamp),
				logging.Error(err))
			res.Outcome = decision.Outcome{Action: decision.ActionSuppress}
		}
	}()

	// 1. Timeline generation. Unstamped detections can only be dated by
	// position: nothing before the last seek target belongs to this timeline.
	if d.Epoch != 0 && d.Epoch < s.epoch {
		s.rec.Inc(observe.CounterStaleEpoch, d.Category)
		return res, fmt.Errorf("%w: epoch %d, current %d", ErrStaleEpoch, d.Epoch, s.epoch)
	}
	if d.Epoch == 0 && d.Timestamp < s.seekFloor {
		s.rec.Inc(observe.CounterStaleEpoch, d.Category)
		return res, fmt.Errorf("%w: unstamped detection at %.2fs precedes seek to %.2fs", ErrStaleEpoch, d.Timestamp, s.seekFloor)
	}

	// 2. Intake
	if err := s.window.Ingest(d); err != nil {
		s.countRejection(d, err)
		return res, err
	}
	s.rec.Inc(observe.CounterIngested, d.Category)

	// Everything below reads this snapshot only.
	history := s.window.Snapshot(d.Category)

	// 3. Temporal regularization of every piece of evidence near d
	res.Regularized = s.regularizer.Regularize(d, history)
	evidence := make([]detection.Detection, 0, len(history))
	for _, h := range history {
		if math.Abs(h.Timestamp-d.Timestamp) > s.config.FusionWindow {
			continue
		}
		h.Confidence = s.regularizer.Regularize(h, history).RegularizedConfidence
		evidence = append(evidence, h)
	}

	// 4. Routing and reliability
	res.Route = s.router.Route(d.Category, routing.Input{Evidence: evidence})

	// 5. Fusion
	res.Fused = s.engine.Fuse(d.Category, res.Route.Contributions, res.Route.Weights)

	// 6. Bounded plugin adjustments
	prof := s.profiles.Current()
	res.Adjustment = s.producer.Produce(signals.ProduceInput{
		Category:   d.Category,
		Confidence: res.Fused.Confidence,
		Sources:    res.Fused.Sources(),
		Evidence:   evidence,
		NightMode:  prof.NightMode,
		StressMode: prof.StressMode,
	})
	adjusted := res.Fused
	adjusted.Confidence = res.Adjustment.Confidence

	// 7. Corroboration
	res.Validation = s.validator.Validate(adjusted, d.Timestamp, history)
	final := adjusted.Confidence
	if res.Validation.Passed {
		final = res.Validation.AdjustedConfidence
	}
	res.Confidence = final

	// 8. Decision
	res.Threshold = s.learner.Threshold(d.Category)
	res.Outcome = s.decider.Decide(decision.Input{
		Category:   d.Category,
		Confidence: final,
		Timestamp:  d.Timestamp,
		Validated:  res.Validation.Passed,
		Enabled:    prof.Enabled(d.Category),
		Threshold:  res.Threshold,
		Offset:     prof.Offset(d.Category),
	})
	s.countOutcome(d.Category, res.Outcome)

	if w := res.Outcome.Warning; w != nil {
		s.lastContrib[d.Category] = res.Fused.Contributions
		s.upsertWarningLocked(*w)
	}
	return res, nil
}

func (s *Session) upsertWarningLocked(w decision.Warning) {
	for i := range s.warnings {
		if s.warnings[i].ID == w.ID {
			s.warnings[i] = w
			return
		}
	}
	s.warnings = append(s.warnings, w)
}

// #endregion

// #region feedback

// Feedback applies a viewer reaction to the shared learner and to this
// session's fusion weights, then persists the new threshold. Feedback for an
// unknown category is logged and ignored.
func (s *Session) Feedback(ctx context.Context, fb threshold.Feedback) (threshold.Adjustment, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return threshold.Adjustment{}, ErrSessionClosed
	}
	seq := s.nextSeqLocked()
	adj, err := s.learner.Apply(fb)
	if err == nil {
		switch fb.Kind {
		case threshold.FeedbackConfirmedCorrect, threshold.FeedbackDismissed:
			if contrib := s.lastContrib[fb.Category]; len(contrib) > 0 {
				s.engine.Learn(contrib, fb.Kind == threshold.FeedbackConfirmedCorrect)
			}
		}
	}
	s.mu.Unlock()

	s.journalEvent(ctx, seq, Event{Kind: EventFeedback, Feedback: &fb})

	if err != nil {
		s.rec.Inc(observe.CounterFeedbackIgnored, fb.Category)
		logging.WarnWithContext(s.logger, "feedback ignored", "feedback_ignored",
			logging.String(logging.FieldCategory, string(fb.Category)),
			logging.String("kind", string(fb.Kind)),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the presentation layer sends known categories"),
			logging.String(logging.FieldImpact, "threshold unchanged"))
		return threshold.Adjustment{}, err
	}
	s.rec.Inc(observe.CounterFeedbackApplied, fb.Category)
	s.logger.Info("threshold adjusted",
		logging.String(logging.FieldCategory, string(adj.Category)),
		logging.String("feedback", string(adj.Feedback)),
		logging.Float64("old", adj.Old),
		logging.Float64("new", adj.New),
		logging.Bool("converged", adj.Converged))

	s.persist(ctx, adj)
	return adj, nil
}

// persist writes the adjusted threshold. Failures leave learning
// session-only.
func (s *Session) persist(ctx context.Context, adj threshold.Adjustment) {
	if s.store == nil {
		return
	}
	rec := s.learner.State(adj.Category)
	err := persistWithRetry(ctx, s.persistBackoff, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, s.persistTimeout)
		defer cancel()
		return s.store.SaveAdjustment(callCtx, s.userID, rec, adj)
	})
	if err != nil {
		s.rec.Inc(observe.CounterPersistFailed, adj.Category)
		logging.WarnWithContext(s.logger, "threshold persist failed", "threshold_persist_failed",
			logging.String(logging.FieldCategory, string(adj.Category)),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the threshold store is reachable"),
			logging.String(logging.FieldImpact, "learning continues for this session only"))
	}
}

// #endregion

// #region discontinuity

// Seek starts a new timeline at the same media. Histories and open warnings
// are dropped; emitted keys are kept so a rewatched second does not warn
// twice. Unstamped detections timed before to are rejected afterwards; after
// a backward seek only the epoch stamp can tell late pre-seek detections
// apart.
func (s *Session) Seek(ctx context.Context, to float64) uint64 {
	return s.discontinuity(ctx, Event{Kind: EventSeek, SeekTo: to}, false)
}

// MediaChanged starts a new timeline for different media and forgets every
// emitted key.
func (s *Session) MediaChanged(ctx context.Context, mediaID string) uint64 {
	return s.discontinuity(ctx, Event{Kind: EventMediaChange, MediaID: mediaID}, true)
}

func (s *Session) discontinuity(ctx context.Context, ev Event, clearKeys bool) uint64 {
	s.mu.Lock()
	seq := s.nextSeqLocked()
	s.epoch++
	epoch := s.epoch
	s.window.Reset()
	s.decider.Reset(clearKeys)
	s.warnings = nil
	if clearKeys {
		s.mediaID = ev.MediaID
		s.lastContrib = make(map[detection.Category]map[detection.Source]float64)
		s.seekFloor = 0
	} else {
		s.seekFloor = ev.SeekTo
	}
	s.rec.Set(observe.GaugeHistorySize, 0)
	s.rec.Set(observe.GaugeOpenWarnings, 0)
	s.mu.Unlock()

	s.rec.Inc(observe.CounterDiscontinuity, "")
	s.logger.Info("timeline reset",
		logging.String("kind", string(ev.Kind)),
		logging.Uint64(logging.FieldEpoch, epoch),
		logging.Float64("seek_to", ev.SeekTo),
		logging.String("media_id", ev.MediaID))
	s.journalEvent(ctx, seq, ev)
	return epoch
}

// #endregion

// #region run

// Handle dispatches one event. It returns the pipeline result for
// detections and nil otherwise.
func (s *Session) Handle(ctx context.Context, ev Event) (*Result, error) {
	switch ev.Kind {
	case EventDetection:
		if ev.Detection == nil {
			return nil, errors.New("detection event without detection")
		}
		res, err := s.Process(ctx, *ev.Detection)
		if err != nil {
			return nil, err
		}
		return &res, nil
	case EventFeedback:
		if ev.Feedback == nil {
			return nil, errors.New("feedback event without feedback")
		}
		_, err := s.Feedback(ctx, *ev.Feedback)
		return nil, err
	case EventSeek:
		s.Seek(ctx, ev.SeekTo)
		return nil, nil
	case EventMediaChange:
		s.MediaChanged(ctx, ev.MediaID)
		return nil, nil
	}
	return nil, fmt.Errorf("unknown event kind %q", ev.Kind)
}

// Run consumes events until ctx is done or events is closed, sending every
// emitted or extended warning to out. A warning computed before a
// discontinuity that raced with it is dropped rather than delivered.
func (s *Session) Run(ctx context.Context, events <-chan Event, out chan<- decision.Warning) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			res, err := s.Handle(ctx, ev)
			if err != nil || res == nil || res.Warning() == nil {
				continue
			}
			if res.Epoch != s.Epoch() {
				s.rec.Inc(observe.CounterStaleEpoch, res.Detection.Category)
				continue
			}
			select {
			case out <- *res.Warning():
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// Close stops the session from accepting events.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

// #endregion

// #region bookkeeping

func (s *Session) nextSeqLocked() int64 {
	s.seq++
	return s.seq
}

func (s *Session) countRejection(d detection.Detection, err error) {
	counter := observe.CounterRejectedMalformed
	if errors.Is(err, intake.ErrStale) {
		counter = observe.CounterRejectedStale
	}
	s.rec.Inc(counter, d.Category)
	s.logger.Debug("detection rejected",
		logging.String(logging.FieldCategory, string(d.Category)),
		logging.String("source", string(d.Source)),
		logging.Error(err))
}

func (s *Session) countOutcome(c detection.Category, out decision.Outcome) {
	switch out.Action {
	case decision.ActionEmit:
		s.rec.Inc(observe.CounterEmitted, c)
	case decision.ActionMerge:
		s.rec.Inc(observe.CounterMerged, c)
	case decision.ActionSuppress:
		switch out.Reason {
		case decision.ReasonCategoryDisabled:
			s.rec.Inc(observe.CounterDisabled, c)
		case decision.ReasonValidationRejected:
			s.rec.Inc(observe.CounterValidationRejected, c)
		case decision.ReasonBelowThreshold:
			s.rec.Inc(observe.CounterBelowThreshold, c)
		case decision.ReasonDuplicateKey:
			s.rec.Inc(observe.CounterDuplicate, c)
		case decision.ReasonCooldown:
			s.rec.Inc(observe.CounterCooldown, c)
		}
	}
}

func (s *Session) journalEvent(ctx context.Context, seq int64, ev Event) {
	if s.journal == nil {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	callCtx, cancel := context.WithTimeout(ctx, s.persistTimeout)
	defer cancel()
	err = s.journal.RecordEvent(callCtx, logging.EventEntry{
		SessionID: s.id,
		Seq:       seq,
		Kind:      string(ev.Kind),
		Payload:   string(payload),
	})
	if err != nil {
		s.rec.Inc(observe.CounterPersistFailed, "")
		s.logger.Debug("journal write failed", logging.Error(err))
	}
}

func (s *Session) journalDecision(ctx context.Context, res Result) {
	if s.journal == nil {
		return
	}
	sig := logging.DecisionSignals{
		Strategy:         string(res.Fused.Strategy),
		Contributions:    make(map[string]float64, len(res.Fused.Contributions)),
		Reliability:      make(map[string]float64, len(res.Route.Reliability)),
		Regularized:      res.Regularized.RegularizedConfidence,
		Fused:            res.Fused.Confidence,
		PluginAdjustment: res.Adjustment.Total,
		ValidationLevel:  string(res.Validation.Level),
		ValidationPassed: res.Validation.Passed,
	}
	for src, v := range res.Fused.Contributions {
		sig.Contributions[string(src)] = v
	}
	for src, v := range res.Route.Reliability {
		sig.Reliability[string(src)] = v
	}
	for _, m := range res.Validation.ModalitiesPresent {
		sig.ModalitiesPresent = append(sig.ModalitiesPresent, string(m))
	}

	entry := logging.DecisionEntry{
		SessionID:   s.id,
		UserID:      s.userID,
		Epoch:       res.Epoch,
		Category:    string(res.Detection.Category),
		Timestamp:   res.Detection.Timestamp,
		Confidence:  res.Fused.Confidence,
		Threshold:   res.Outcome.EffectiveThreshold,
		Action:      string(res.Outcome.Action),
		Reason:      string(res.Outcome.Reason),
		SignalsJSON: logging.MarshalSignals(sig),
	}
	if w := res.Outcome.Warning; w != nil {
		entry.WarningID = w.ID
		entry.Confidence = w.Confidence
	}

	callCtx, cancel := context.WithTimeout(ctx, s.persistTimeout)
	defer cancel()
	if err := s.journal.RecordDecision(callCtx, entry); err != nil {
		s.rec.Inc(observe.CounterPersistFailed, res.Detection.Category)
		s.logger.Debug("decision log write failed", logging.Error(err))
	}
}

// #endregion
