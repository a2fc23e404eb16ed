package replay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/danielpatrickdp/trigger-guard/internal/decision"
	"github.com/danielpatrickdp/trigger-guard/internal/detection"
	"github.com/danielpatrickdp/trigger-guard/internal/observe"
	"github.com/danielpatrickdp/trigger-guard/internal/orchestrator"
	"github.com/danielpatrickdp/trigger-guard/internal/profile"
	"github.com/danielpatrickdp/trigger-guard/internal/signals"
	"github.com/danielpatrickdp/trigger-guard/internal/threshold"
)

// #region types

// Step actions beyond the decider's emit, merge and suppress.
const (
	ActionRejected = "rejected"
	ActionApplied  = "applied"
	ActionIgnored  = "ignored"
	ActionReset    = "reset"
)

// Options configures the session a fixture is replayed through.
type Options struct {
	Config    orchestrator.Config
	Threshold threshold.Config
	Plugins   []signals.Plugin
	Recorder  observe.Recorder
	Logger    *slog.Logger
}

// DefaultOptions returns the daemon's default pipeline configuration.
func DefaultOptions() Options {
	return Options{
		Config:    orchestrator.DefaultConfig(),
		Threshold: threshold.DefaultConfig(),
	}
}

// StepResult captures the outcome of replaying one step.
type StepResult struct {
	Index  int
	Kind   orchestrator.EventKind
	Action string
	Reason string
	Epoch  uint64

	// Detection steps only
	Confidence float64
	Threshold  float64
	Warning    *decision.Warning

	// Feedback steps only
	Adjustment *threshold.Adjustment
}

// Summary provides aggregate stats from a replay run.
type Summary struct {
	Steps        int
	Detections   int
	Emits        int
	Merges       int
	Suppressed   int
	Rejected     int
	Feedback     int
	Resets       int
	Suppressions map[decision.Reason]int
	Warnings     []decision.Warning
	Thresholds   map[detection.Category]float64
}

// Mismatch is one difference between a fixture's expectations and a replay.
type Mismatch struct {
	Index int // -1 for final thresholds
	Field string
	Want  string
	Got   string
}

func (m Mismatch) String() string {
	if m.Index < 0 {
		return fmt.Sprintf("%s: want %s, got %s", m.Field, m.Want, m.Got)
	}
	return fmt.Sprintf("step %d %s: want %s, got %s", m.Index, m.Field, m.Want, m.Got)
}

// #endregion types

// #region replay

// Replay runs every step of f through a fresh session, in order. Pipeline
// rejections are recorded as results, not returned as errors.
func Replay(ctx context.Context, f *Fixture, opts Options) ([]StepResult, *orchestrator.Session, error) {
	if opts.Config.FusionWindow <= 0 {
		opts.Config = orchestrator.DefaultConfig()
	}
	if opts.Threshold.Max == 0 {
		opts.Threshold = threshold.DefaultConfig()
	}

	learner := threshold.NewLearner(f.UserID, opts.Threshold)
	if len(f.Thresholds) > 0 {
		if err := learner.Import(f.Thresholds); err != nil {
			return nil, nil, fmt.Errorf("start thresholds: %w", err)
		}
	}
	prof := profile.Default()
	if f.Profile != nil {
		prof = *f.Profile
	}

	session := orchestrator.NewSession(orchestrator.SessionOptions{
		ID:       "replay",
		Config:   opts.Config,
		Learner:  learner,
		Profiles: orchestrator.StaticProfile(prof),
		Plugins:  opts.Plugins,
		Recorder: opts.Recorder,
		Logger:   opts.Logger,
	})
	defer session.Close()

	results := make([]StepResult, 0, len(f.Steps))
	for i, step := range f.Steps {
		if err := ctx.Err(); err != nil {
			return results, session, err
		}
		results = append(results, replayStep(ctx, session, i, step.Event))
	}
	return results, session, nil
}

func replayStep(ctx context.Context, s *orchestrator.Session, i int, ev orchestrator.Event) StepResult {
	r := StepResult{Index: i, Kind: ev.Kind}
	switch ev.Kind {
	case orchestrator.EventDetection:
		if ev.Detection == nil {
			r.Action = ActionIgnored
			r.Reason = "detection step without detection"
			return r
		}
		res, err := s.Process(ctx, *ev.Detection)
		if err != nil {
			r.Action = ActionRejected
			r.Reason = rejectReason(err)
			r.Epoch = s.Epoch()
			return r
		}
		r.Action = string(res.Outcome.Action)
		r.Reason = string(res.Outcome.Reason)
		r.Epoch = res.Epoch
		r.Confidence = res.Confidence
		r.Threshold = res.Outcome.EffectiveThreshold
		r.Warning = res.Warning()
	case orchestrator.EventFeedback:
		if ev.Feedback == nil {
			r.Action = ActionIgnored
			r.Reason = "feedback step without feedback"
			return r
		}
		adj, err := s.Feedback(ctx, *ev.Feedback)
		if err != nil {
			r.Action = ActionIgnored
			r.Reason = err.Error()
		} else {
			r.Action = ActionApplied
			r.Reason = adj.Reasoning
			r.Adjustment = &adj
		}
		r.Epoch = s.Epoch()
	case orchestrator.EventSeek:
		r.Action = ActionReset
		r.Epoch = s.Seek(ctx, ev.SeekTo)
	case orchestrator.EventMediaChange:
		r.Action = ActionReset
		r.Epoch = s.MediaChanged(ctx, ev.MediaID)
	default:
		r.Action = ActionIgnored
		r.Reason = fmt.Sprintf("unknown event kind %q", ev.Kind)
	}
	return r
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, detection.ErrMalformed):
		return "malformed"
	case errors.Is(err, orchestrator.ErrStaleEpoch):
		return "stale_epoch"
	}
	return err.Error()
}

// #endregion replay

// #region summary

// Summarize computes aggregate stats from replay results.
func Summarize(results []StepResult, s *orchestrator.Session) Summary {
	sum := Summary{
		Steps:        len(results),
		Suppressions: make(map[decision.Reason]int),
	}
	for _, r := range results {
		switch r.Action {
		case string(decision.ActionEmit):
			sum.Detections++
			sum.Emits++
		case string(decision.ActionMerge):
			sum.Detections++
			sum.Merges++
		case string(decision.ActionSuppress):
			sum.Detections++
			sum.Suppressed++
			sum.Suppressions[decision.Reason(r.Reason)]++
		case ActionRejected:
			sum.Detections++
			sum.Rejected++
		case ActionApplied, ActionIgnored:
			if r.Kind == orchestrator.EventFeedback {
				sum.Feedback++
			}
		case ActionReset:
			sum.Resets++
		}
	}
	if s != nil {
		sum.Warnings = s.Warnings()
		sum.Thresholds = s.Learner().Export()
	}
	return sum
}

// Verify compares results against the fixture's expectations. Final
// thresholds are compared to two decimal places.
func Verify(f *Fixture, results []StepResult, s *orchestrator.Session) []Mismatch {
	var out []Mismatch
	for i, step := range f.Steps {
		if step.Expect == nil {
			continue
		}
		if i >= len(results) {
			out = append(out, Mismatch{Index: i, Field: "action", Want: step.Expect.Action, Got: "<missing>"})
			continue
		}
		got := results[i]
		if got.Action != step.Expect.Action {
			out = append(out, Mismatch{Index: i, Field: "action", Want: step.Expect.Action,
				Got: fmt.Sprintf("%s (%s)", got.Action, got.Reason)})
		}
		if step.Expect.Reason != "" && got.Reason != step.Expect.Reason {
			out = append(out, Mismatch{Index: i, Field: "reason", Want: step.Expect.Reason, Got: got.Reason})
		}
	}

	if len(f.ExpectThresholds) > 0 && s != nil {
		cats := make([]detection.Category, 0, len(f.ExpectThresholds))
		for c := range f.ExpectThresholds {
			cats = append(cats, c)
		}
		sort.Slice(cats, func(i, j int) bool { return cats[i] < cats[j] })
		for _, c := range cats {
			want := f.ExpectThresholds[c]
			got := s.Learner().Threshold(c)
			if math.Abs(got-want) > 0.005 {
				out = append(out, Mismatch{Index: -1, Field: "threshold " + string(c),
					Want: fmt.Sprintf("%.2f", want), Got: fmt.Sprintf("%.2f", got)})
			}
		}
	}
	return out
}

// #endregion summary
