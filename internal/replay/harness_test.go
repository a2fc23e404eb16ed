package replay

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/danielpatrickdp/trigger-guard/internal/decision"
	"github.com/danielpatrickdp/trigger-guard/internal/detection"
	"github.com/danielpatrickdp/trigger-guard/internal/observe"
	"github.com/danielpatrickdp/trigger-guard/internal/orchestrator"
	"github.com/danielpatrickdp/trigger-guard/internal/threshold"
)

// #region helpers

func loadAndReplay(t *testing.T, name string) (*Fixture, []StepResult, *orchestrator.Session) {
	t.Helper()
	f, err := LoadFixture(filepath.Join("testdata", name))
	if err != nil {
		t.Fatalf("LoadFixture: %v", err)
	}
	results, s, err := Replay(context.Background(), f, DefaultOptions())
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	return f, results, s
}

func detStep(src detection.Source, c detection.Category, ts, conf float64) Step {
	d := detection.Detection{Source: src, Category: c, Timestamp: ts, Confidence: conf}
	return Step{Event: orchestrator.Event{Kind: orchestrator.EventDetection, Detection: &d}}
}

// #endregion helpers

// #region fixture-regression

// TestFixtures replays every fixture in testdata and compares each step
// against its recorded expectation. Pipeline constant changes show up here.
func TestFixtures(t *testing.T) {
	names := []string{
		"explosion_dedup.json",
		"explosion_merge.json",
		"dismiss_feedback.json",
		"high_risk.json",
		"seek_keeps_keys.json",
	}
	for _, name := range names {
		t.Run(name, func(t *testing.T) {
			f, results, s := loadAndReplay(t, name)
			if len(results) != len(f.Steps) {
				t.Fatalf("expected %d results, got %d", len(f.Steps), len(results))
			}
			for _, m := range Verify(f, results, s) {
				t.Error(m.String())
			}
		})
	}
}

// #endregion fixture-regression

// #region replay-tests

func TestReplay_SummaryCounts(t *testing.T) {
	_, results, s := loadAndReplay(t, "seek_keeps_keys.json")
	sum := Summarize(results, s)

	if sum.Steps != 4 || sum.Detections != 3 {
		t.Errorf("expected 4 steps / 3 detections, got %d / %d", sum.Steps, sum.Detections)
	}
	if sum.Emits != 1 || sum.Suppressed != 2 || sum.Resets != 1 {
		t.Errorf("unexpected counts %+v", sum)
	}
	if sum.Suppressions[decision.ReasonDuplicateKey] != 1 || sum.Suppressions[decision.ReasonCategoryDisabled] != 1 {
		t.Errorf("unexpected suppressions %v", sum.Suppressions)
	}
	// Warnings are per epoch; the seek cleared the first one.
	if len(sum.Warnings) != 0 {
		t.Errorf("expected no open warnings after seek, got %d", len(sum.Warnings))
	}
	if sum.Thresholds[detection.Explosions] != 65 {
		t.Errorf("expected default threshold, got %.2f", sum.Thresholds[detection.Explosions])
	}
}

func TestReplay_EpochAdvancesOnReset(t *testing.T) {
	_, results, _ := loadAndReplay(t, "high_risk.json")
	if results[0].Epoch != 0 {
		t.Errorf("expected epoch 0 before media change, got %d", results[0].Epoch)
	}
	for _, r := range results[1:] {
		if r.Epoch != 1 {
			t.Errorf("step %d: expected epoch 1, got %d", r.Index, r.Epoch)
		}
	}
	if results[3].Warning == nil || results[3].Warning.Category != detection.Murder {
		t.Errorf("expected murder warning, got %+v", results[3].Warning)
	}
}

func TestReplay_StartThresholds(t *testing.T) {
	f := &Fixture{
		Description: "raised bar",
		Thresholds:  map[detection.Category]float64{detection.Explosions: 80},
		Steps:       []Step{detStep(detection.SourceAudioWaveform, detection.Explosions, 10, 85)},
	}
	results, _, err := Replay(context.Background(), f, DefaultOptions())
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if results[0].Reason != string(decision.ReasonBelowThreshold) || results[0].Threshold != 80 {
		t.Errorf("expected below_threshold at 80, got %s at %.2f", results[0].Reason, results[0].Threshold)
	}
}

func TestReplay_UnknownStartCategory(t *testing.T) {
	f := &Fixture{
		Description: "bad",
		Thresholds:  map[detection.Category]float64{"kittens": 50},
		Steps:       []Step{detStep(detection.SourceVisual, detection.Blood, 1, 90)},
	}
	_, _, err := Replay(context.Background(), f, DefaultOptions())
	if !errors.Is(err, threshold.ErrUnknownCategory) {
		t.Fatalf("expected ErrUnknownCategory, got %v", err)
	}
}

func TestReplay_FeedbackIgnored(t *testing.T) {
	fb := threshold.Feedback{Category: detection.Blood, Kind: "shrug"}
	f := &Fixture{
		Description: "bad feedback",
		Steps:       []Step{{Event: orchestrator.Event{Kind: orchestrator.EventFeedback, Feedback: &fb}}},
	}
	results, s, err := Replay(context.Background(), f, DefaultOptions())
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if results[0].Action != ActionIgnored {
		t.Errorf("expected ignored, got %s", results[0].Action)
	}
	if s.Learner().Threshold(detection.Blood) != 65 {
		t.Error("ignored feedback changed the threshold")
	}
	if Summarize(results, s).Feedback != 1 {
		t.Error("expected feedback counted")
	}
}

func TestReplay_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f := &Fixture{Description: "x", Steps: []Step{detStep(detection.SourceVisual, detection.Blood, 1, 90)}}
	results, _, err := Replay(ctx, f, DefaultOptions())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected no results, got %d", len(results))
	}
}

func TestReplay_RecorderCounts(t *testing.T) {
	reg := observe.NewRegistry("replay")
	f, err := LoadFixture(filepath.Join("testdata", "explosion_dedup.json"))
	if err != nil {
		t.Fatalf("LoadFixture: %v", err)
	}
	opts := DefaultOptions()
	opts.Recorder = reg
	if _, _, err := Replay(context.Background(), f, opts); err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if reg.Count(observe.CounterEmitted, detection.Explosions) != 1 {
		t.Error("expected one emission recorded")
	}
	if reg.Count(observe.CounterDuplicate, detection.Explosions) != 1 {
		t.Error("expected one duplicate recorded")
	}
}

// #endregion replay-tests

// #region verify-tests

func TestVerify_ReportsMismatches(t *testing.T) {
	f, results, s := loadAndReplay(t, "dismiss_feedback.json")
	f.Steps[1].Expect = &Expectation{Action: ActionIgnored}
	f.ExpectThresholds[detection.Blood] = 70

	got := Verify(f, results, s)
	if len(got) != 2 {
		t.Fatalf("expected 2 mismatches, got %d: %v", len(got), got)
	}
	if got[0].Index != 1 || got[0].Field != "action" {
		t.Errorf("unexpected first mismatch %+v", got[0])
	}
	if got[1].Index != -1 || got[1].Want != "70.00" || got[1].Got != "65.50" {
		t.Errorf("unexpected threshold mismatch %s", got[1])
	}
}

func TestVerify_ReasonMismatch(t *testing.T) {
	f, results, s := loadAndReplay(t, "explosion_dedup.json")
	f.Steps[1].Expect.Reason = string(decision.ReasonCooldown)
	got := Verify(f, results, s)
	if len(got) != 1 || got[0].Field != "reason" {
		t.Fatalf("expected one reason mismatch, got %v", got)
	}
}

// #endregion verify-tests
