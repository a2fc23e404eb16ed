package threshold

import (
	"errors"
	"sync"
	"testing"

	"github.com/danielpatrickdp/trigger-guard/internal/detection"
)

func TestUpdateNoOp(t *testing.T) {
	cfg := DefaultConfig()
	old := CategoryThreshold{Category: detection.Blood, Current: 65, Default: 65}

	result := Update(old, Feedback{Category: detection.Blood, Kind: FeedbackConfirmedCorrect}, cfg)

	if result.Decision.Action != "no_op" {
		t.Fatalf("expected no_op, got %s", result.Decision.Action)
	}
	if result.New.Current != 65 {
		t.Fatalf("threshold moved: %.3f", result.New.Current)
	}
	if result.New.LearningCount != 1 {
		t.Fatalf("expected learning count 1, got %d", result.New.LearningCount)
	}
}

func TestUpdateDeterministic(t *testing.T) {
	cfg := DefaultConfig()
	old := CategoryThreshold{Category: detection.Blood, Current: 65, Default: 65}
	fb := Feedback{Category: detection.Blood, Kind: FeedbackDismissed, DetectionConfidence: 88}

	r1 := Update(old, fb, cfg)
	r2 := Update(old, fb, cfg)
	if r1.New.Current != r2.New.Current {
		t.Fatalf("non-deterministic: %v vs %v", r1.New.Current, r2.New.Current)
	}
}

func TestUpdateAdjustmentTable(t *testing.T) {
	cfg := DefaultConfig()

	tests := []struct {
		name string
		fb   Feedback
		want float64
	}{
		{"dismissed above", Feedback{Kind: FeedbackDismissed, DetectionConfidence: 85}, 67},
		{"dismissed below uses floor", Feedback{Kind: FeedbackDismissed, DetectionConfidence: 50}, 65.5},
		{"missed", Feedback{Kind: FeedbackReportedMissed}, 64},
		{"sensitivity up", Feedback{Kind: FeedbackSensitivityIncreased}, 64},
		{"sensitivity down", Feedback{Kind: FeedbackSensitivityDecreased}, 66},
		{"watched through", Feedback{Kind: FeedbackWatchedThrough}, 65.2},
		{"confirmed", Feedback{Kind: FeedbackConfirmedCorrect}, 65},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fb.Category = detection.Blood
			got := Update(CategoryThreshold{Category: detection.Blood, Current: 65, Default: 65}, tt.fb, cfg)
			if diff := got.New.Current - tt.want; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("got %.4f, want %.4f", got.New.Current, tt.want)
			}
		})
	}
}

// A dismissed blood warning at 70 against a 65 bar raises the bar.
func TestDismissRaisesThreshold(t *testing.T) {
	l := NewLearner("u1", DefaultConfig())
	adj, err := l.Apply(Feedback{Category: detection.Blood, Kind: FeedbackDismissed, DetectionConfidence: 70})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if adj.Old != 65 {
		t.Fatalf("expected old 65, got %.2f", adj.Old)
	}
	if adj.New <= 65 || adj.New > 95 {
		t.Fatalf("expected new threshold in (65, 95], got %.3f", adj.New)
	}
	if l.Threshold(detection.Blood) != adj.New {
		t.Fatal("learner state does not match adjustment")
	}
}

func TestThresholdStaysInBounds(t *testing.T) {
	l := NewLearner("u1", DefaultConfig())
	kinds := []FeedbackKind{
		FeedbackDismissed, FeedbackReportedMissed, FeedbackSensitivityIncreased,
		FeedbackSensitivityDecreased, FeedbackWatchedThrough, FeedbackConfirmedCorrect,
	}
	for i := 0; i < 2000; i++ {
		fb := Feedback{
			Category:            detection.Gore,
			Kind:                kinds[(i*7)%len(kinds)],
			DetectionConfidence: float64((i * 37) % 101),
		}
		if i%200 < 100 {
			fb.Kind = FeedbackReportedMissed
		}
		if _, err := l.Apply(fb); err != nil {
			t.Fatalf("Apply: %v", err)
		}
		if v := l.Threshold(detection.Gore); v < 40 || v > 95 {
			t.Fatalf("step %d: threshold %.3f outside [40, 95]", i, v)
		}
	}
}

func TestThresholdHitsBothClamps(t *testing.T) {
	l := NewLearner("u1", DefaultConfig())
	for i := 0; i < 100; i++ {
		l.Apply(Feedback{Category: detection.Fire, Kind: FeedbackReportedMissed})
	}
	if got := l.Threshold(detection.Fire); got != 40 {
		t.Fatalf("expected lower clamp 40, got %.3f", got)
	}
	for i := 0; i < 200; i++ {
		l.Apply(Feedback{Category: detection.Fire, Kind: FeedbackDismissed, DetectionConfidence: 100})
	}
	if got := l.Threshold(detection.Fire); got != 95 {
		t.Fatalf("expected upper clamp 95, got %.3f", got)
	}
}

func TestConvergenceAfterFiveConfirmations(t *testing.T) {
	l := NewLearner("u1", DefaultConfig())
	l.Apply(Feedback{Category: detection.Spiders, Kind: FeedbackDismissed, DetectionConfidence: 100})
	before := l.Threshold(detection.Spiders)

	for i := 0; i < 4; i++ {
		adj, _ := l.Apply(Feedback{Category: detection.Spiders, Kind: FeedbackConfirmedCorrect})
		if adj.Converged {
			t.Fatalf("converged after only %d confirmations", i+1)
		}
	}
	adj, _ := l.Apply(Feedback{Category: detection.Spiders, Kind: FeedbackConfirmedCorrect})
	if !adj.Converged {
		t.Fatal("expected converged after 5 confirmations")
	}
	if got := l.Threshold(detection.Spiders); got != before {
		t.Fatalf("threshold drifted from %.3f to %.3f", before, got)
	}
	if !l.State(detection.Spiders).Converged {
		t.Fatal("state should report converged")
	}
}

func TestLargeStepResetsConvergence(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Rate = 0.5
	l := NewLearner("u1", cfg)
	for i := 0; i < 5; i++ {
		l.Apply(Feedback{Category: detection.Snakes, Kind: FeedbackConfirmedCorrect})
	}
	adj, _ := l.Apply(Feedback{Category: detection.Snakes, Kind: FeedbackReportedMissed})
	if adj.Converged {
		t.Fatal("a 5 point step must break convergence")
	}
}

func TestUnknownCategoryIgnored(t *testing.T) {
	l := NewLearner("u1", DefaultConfig())
	l.Apply(Feedback{Category: detection.Blood, Kind: FeedbackReportedMissed})
	before := l.Export()

	_, err := l.Apply(Feedback{Category: "unicorns", Kind: FeedbackReportedMissed})
	if !errors.Is(err, ErrUnknownCategory) {
		t.Fatalf("expected ErrUnknownCategory, got %v", err)
	}
	_, err = l.Apply(Feedback{Category: detection.Blood, Kind: "shrugged"})
	if !errors.Is(err, ErrUnknownFeedback) {
		t.Fatalf("expected ErrUnknownFeedback, got %v", err)
	}
	after := l.Export()
	for c, v := range before {
		if after[c] != v {
			t.Fatalf("%s changed from %.3f to %.3f", c, v, after[c])
		}
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	src := NewLearner("u1", DefaultConfig())
	src.Apply(Feedback{Category: detection.Blood, Kind: FeedbackDismissed, DetectionConfidence: 91.3})
	src.Apply(Feedback{Category: detection.Gore, Kind: FeedbackReportedMissed})
	src.Apply(Feedback{Category: detection.Heights, Kind: FeedbackWatchedThrough})

	snap := src.Export()
	dst := NewLearner("u1", DefaultConfig())
	if err := dst.Import(snap); err != nil {
		t.Fatalf("Import: %v", err)
	}
	got := dst.Export()
	if len(got) != len(snap) {
		t.Fatalf("expected %d entries, got %d", len(snap), len(got))
	}
	for c, v := range snap {
		if got[c] != v {
			t.Errorf("%s: exported %.6f, round-tripped %.6f", c, v, got[c])
		}
	}
}

func TestImportClampsAndReportsUnknown(t *testing.T) {
	l := NewLearner("u1", DefaultConfig())
	err := l.Import(map[detection.Category]float64{
		detection.Blood: 120,
		detection.Gore:  3,
		"unicorns":      70,
	})
	if !errors.Is(err, ErrUnknownCategory) {
		t.Fatalf("expected ErrUnknownCategory in joined error, got %v", err)
	}
	if got := l.Threshold(detection.Blood); got != 95 {
		t.Errorf("expected clamp to 95, got %.2f", got)
	}
	if got := l.Threshold(detection.Gore); got != 40 {
		t.Errorf("expected clamp to 40, got %.2f", got)
	}
}

func TestRestoreRecomputesConvergence(t *testing.T) {
	l := NewLearner("u1", DefaultConfig())
	l.Restore([]CategoryThreshold{
		{Category: detection.Blood, Current: 70, Default: 65, LearningCount: 9, RecentSteps: []float64{0, 0, 0.1, 0, 0, 0}},
		{Category: "unicorns", Current: 70},
	})
	st := l.State(detection.Blood)
	if !st.Converged || st.LearningCount != 9 || st.Current != 70 {
		t.Fatalf("unexpected restored state %+v", st)
	}
	if len(st.RecentSteps) != 5 {
		t.Fatalf("expected steps trimmed to window, got %d", len(st.RecentSteps))
	}
	if len(l.All()) != 1 {
		t.Fatalf("unknown category should be skipped, got %d records", len(l.All()))
	}
}

func TestConcurrentApplySerializes(t *testing.T) {
	l := NewLearner("u1", DefaultConfig())
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Apply(Feedback{Category: detection.Blood, Kind: FeedbackWatchedThrough})
		}()
	}
	wg.Wait()
	if got := l.State(detection.Blood).LearningCount; got != 50 {
		t.Fatalf("expected 50 applied updates, got %d", got)
	}
}
