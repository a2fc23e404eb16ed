package fusion

import (
	"math"
	"testing"

	"github.com/danielpatrickdp/trigger-guard/internal/detection"
)

func TestFuse_StrategySelection(t *testing.T) {
	e := NewEngine(DefaultEngineConfig())

	tests := []struct {
		name    string
		contrib map[detection.Source]float64
		want    Strategy
	}{
		{"single source", map[detection.Source]float64{
			detection.SourceAudioWaveform: 85,
		}, StrategyVoting},
		{"agreeing pair", map[detection.Source]float64{
			detection.SourceAudioWaveform:  85,
			detection.SourceAudioFrequency: 80,
		}, StrategyVoting},
		{"broad evidence", map[detection.Source]float64{
			detection.SourceText:          70,
			detection.SourceVisual:        75,
			detection.SourceAudioWaveform: 80,
		}, StrategyStacking},
		{"disagreeing pair", map[detection.Source]float64{
			detection.SourceText:   20,
			detection.SourceVisual: 90,
		}, StrategyBoosting},
		{"moderate disagreement", map[detection.Source]float64{
			detection.SourceText:   40,
			detection.SourceVisual: 80,
		}, StrategyHybrid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.Fuse(detection.Explosions, tt.contrib, nil)
			if got.Strategy != tt.want {
				t.Errorf("got %q, want %q (agreement %.2f, diversity %.2f)",
					got.Strategy, tt.want, got.Agreement, got.Diversity)
			}
		})
	}
}

func TestFuse_SingleSourcePassesThrough(t *testing.T) {
	e := NewEngine(DefaultEngineConfig())
	got := e.Fuse(detection.Explosions, map[detection.Source]float64{detection.SourceAudioWaveform: 85}, nil)
	if got.Confidence != 85 {
		t.Errorf("expected 85, got %.2f", got.Confidence)
	}
}

func TestFuse_WeightedVoting(t *testing.T) {
	e := NewEngine(DefaultEngineConfig())
	contrib := map[detection.Source]float64{
		detection.SourceAudioWaveform:  90,
		detection.SourceAudioFrequency: 80,
	}
	weights := map[detection.Source]float64{
		detection.SourceAudioWaveform:  1.0,
		detection.SourceAudioFrequency: 0.0,
	}
	got := e.Fuse(detection.Explosions, contrib, weights)
	if math.Abs(got.Confidence-90) > 1e-9 {
		t.Errorf("zero-weight source should not move the vote, got %.4f", got.Confidence)
	}
}

func TestFuse_HybridBlend(t *testing.T) {
	e := NewEngine(DefaultEngineConfig())
	got := e.Fuse(detection.Blood, map[detection.Source]float64{
		detection.SourceText:   40,
		detection.SourceVisual: 80,
	}, nil)
	want := 0.4*got.VotingConfidence + 0.4*got.StackingConfidence + 0.2*got.BoostingConfidence
	if math.Abs(got.Confidence-want) > 1e-9 {
		t.Errorf("hybrid: got %.4f, want %.4f", got.Confidence, want)
	}
}

func TestFuse_OutputClamped(t *testing.T) {
	e := NewEngine(DefaultEngineConfig())
	full := map[detection.Source]float64{
		detection.SourceText:          100,
		detection.SourceVisual:        100,
		detection.SourceAudioWaveform: 100,
	}
	for i := 0; i < 100; i++ {
		e.Learn(map[detection.Source]float64{detection.SourceText: 0}, true)
	}
	got := e.Fuse(detection.Gore, full, nil)
	if got.Confidence > 100 || got.StackingConfidence > 100 {
		t.Fatalf("expected clamp to 100, got %.2f / %.2f", got.Confidence, got.StackingConfidence)
	}
}

func TestFuse_Deterministic(t *testing.T) {
	contrib := map[detection.Source]float64{
		detection.SourceText:             61,
		detection.SourceVisual:           77,
		detection.SourceAudioWaveform:    43,
		detection.SourcePhotosensitivity: 12,
	}
	a := NewEngine(DefaultEngineConfig())
	b := NewEngine(DefaultEngineConfig())
	for i := 0; i < 10; i++ {
		a.Learn(contrib, i%2 == 0)
		b.Learn(contrib, i%2 == 0)
	}
	ra := a.Fuse(detection.Fire, contrib, nil)
	rb := b.Fuse(detection.Fire, contrib, nil)
	if ra.Confidence != rb.Confidence {
		t.Fatalf("same inputs and learning history diverged: %v vs %v", ra.Confidence, rb.Confidence)
	}
}

func TestFuse_Empty(t *testing.T) {
	e := NewEngine(DefaultEngineConfig())
	got := e.Fuse(detection.Fire, nil, nil)
	if got.Confidence != 0 {
		t.Errorf("expected 0 for no evidence, got %.2f", got.Confidence)
	}
}

func TestLearn_Bounded(t *testing.T) {
	cfg := DefaultEngineConfig()
	e := NewEngine(cfg)
	contrib := map[detection.Source]float64{detection.SourceVisual: 5, detection.SourceText: 95}
	for i := 0; i < 500; i++ {
		e.Learn(contrib, i%3 != 0)
	}
	w := e.Weights()
	for s, v := range w.Stacking {
		if v < 0.2 || v > 2 {
			t.Errorf("stacking weight for %s out of bounds: %.3f", s, v)
		}
	}
	for s, v := range w.Emphasis {
		if v < 1 || v > cfg.MaxEmphasis {
			t.Errorf("emphasis for %s out of bounds: %.3f", s, v)
		}
	}
	if math.Abs(w.Bias) > cfg.MaxBias {
		t.Errorf("bias out of bounds: %.3f", w.Bias)
	}
}

func TestLearn_EmphasizesMissedSource(t *testing.T) {
	e := NewEngine(DefaultEngineConfig())
	// visual said 10 but the warning was correct: a hard case for visual
	e.Learn(map[detection.Source]float64{detection.SourceVisual: 10}, true)
	if got := e.Weights().Emphasis[detection.SourceVisual]; got <= 1 {
		t.Errorf("expected emphasis above 1, got %.3f", got)
	}
}

func TestWeights_IsCopy(t *testing.T) {
	e := NewEngine(DefaultEngineConfig())
	w := e.Weights()
	w.Stacking[detection.SourceText] = 99
	if e.Weights().Stacking[detection.SourceText] != 1 {
		t.Fatal("mutating returned weights leaked into engine")
	}
}
