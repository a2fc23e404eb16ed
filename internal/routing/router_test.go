package routing

import (
	"math"
	"testing"

	"github.com/danielpatrickdp/trigger-guard/internal/detection"
)

func TestRoute_FamilyMapping(t *testing.T) {
	r := NewRouter()

	tests := []struct {
		name string
		cat  detection.Category
		want PipelineID
	}{
		{"blood", detection.Blood, PipelineBodilyHarm},
		{"murder", detection.Murder, PipelineViolence},
		{"explosions", detection.Explosions, PipelineDisaster},
		{"spiders", detection.Spiders, PipelinePhobia},
		{"swear-words", detection.SwearWords, PipelineSocial},
		{"flashing-lights", detection.FlashingLights, PipelineSensory},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.Route(tt.cat, Input{})
			if got.Pipeline != tt.want {
				t.Errorf("got %q, want %q", got.Pipeline, tt.want)
			}
		})
	}
}

func TestEveryFamilyHasPipeline(t *testing.T) {
	for _, f := range detection.AllFamilies {
		pid := pipelineFor(f)
		cfg, ok := Pipelines[pid]
		if !ok {
			t.Fatalf("family %s maps to unknown pipeline %s", f, pid)
		}
		if len(cfg.Weights) != len(detection.AllSources) {
			t.Errorf("pipeline %s weights %d sources, want %d", pid, len(cfg.Weights), len(detection.AllSources))
		}
	}
}

func TestAssessReliability_Bounds(t *testing.T) {
	tests := []struct {
		name string
		d    detection.Detection
		want float64
	}{
		{"clean visual", detection.Detection{Source: detection.SourceVisual}, 1.0},
		{"low light", detection.Detection{Source: detection.SourceVisual, Metadata: map[string]string{"low_light": "true"}}, 0.75},
		{"everything wrong", detection.Detection{Source: detection.SourceVisual, Metadata: map[string]string{
			"low_light": "true", "blurry": "true", "compressed": "true",
		}}, 0.6},
		{"auto captions", detection.Detection{Source: detection.SourceText, Metadata: map[string]string{"auto_generated_captions": "1"}}, 0.8},
		{"visual flag on audio ignored", detection.Detection{Source: detection.SourceAudioWaveform, Metadata: map[string]string{"low_light": "true"}}, 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := AssessReliability(tt.d)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("got %.4f, want %.4f", got, tt.want)
			}
			if got < 0.6 || got > 1.0 {
				t.Errorf("factor %.4f outside [0.6, 1.0]", got)
			}
		})
	}
}

func TestAssessReliability_NeverBelowFloor(t *testing.T) {
	d := detection.Detection{Source: detection.SourceVisual, Metadata: map[string]string{
		"low_light": "yes", "blurry": "yes", "compressed": "yes",
	}}
	got, reasons := AssessReliability(d)
	if got != 0.6 {
		t.Errorf("expected floor 0.6, got %.4f", got)
	}
	if len(reasons) != 3 {
		t.Errorf("expected 3 reasons, got %v", reasons)
	}
}

func TestRoute_DegradedSourceStillContributes(t *testing.T) {
	r := NewRouter()
	in := Input{Evidence: []detection.Detection{
		{Source: detection.SourceVisual, Category: detection.Blood, Timestamp: 1, Confidence: 80,
			Metadata: map[string]string{"low_light": "true"}},
	}}
	got := r.Route(detection.Blood, in)

	c, ok := got.Contributions[detection.SourceVisual]
	if !ok {
		t.Fatal("degraded visual source dropped from contributions")
	}
	if math.Abs(c-60) > 1e-9 {
		t.Errorf("expected 80*0.75=60, got %.4f", c)
	}
	if len(got.Reasoning) < 2 {
		t.Errorf("expected discount reasoning, got %v", got.Reasoning)
	}
}

func TestRoute_StrongestPerSourceWins(t *testing.T) {
	r := NewRouter()
	in := Input{Evidence: []detection.Detection{
		{Source: detection.SourceAudioWaveform, Category: detection.Explosions, Timestamp: 1, Confidence: 40},
		{Source: detection.SourceAudioWaveform, Category: detection.Explosions, Timestamp: 2, Confidence: 85},
		{Source: detection.SourceAudioWaveform, Category: detection.Gunshots, Timestamp: 2, Confidence: 99},
	}}
	got := r.Route(detection.Explosions, in)

	if got.Contributions[detection.SourceAudioWaveform] != 85 {
		t.Errorf("expected 85, got %.2f", got.Contributions[detection.SourceAudioWaveform])
	}
	if got.Confidence != 85 {
		t.Errorf("single-source route confidence should equal contribution, got %.2f", got.Confidence)
	}
}

func TestSortedSources_StableOrder(t *testing.T) {
	m := map[detection.Source]float64{
		detection.SourcePhotosensitivity: 1,
		detection.SourceText:             1,
		detection.SourceVisual:           1,
	}
	got := SortedSources(m)
	want := []detection.Source{detection.SourceText, detection.SourceVisual, detection.SourcePhotosensitivity}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("position %d: got %s, want %s", i, got[i], want[i])
		}
	}
}
