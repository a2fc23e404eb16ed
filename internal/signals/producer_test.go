package signals

import (
	"math"
	"testing"

	"github.com/danielpatrickdp/trigger-guard/internal/detection"
)

// #region mock

// fixedPlugin returns a constant adjustment.
type fixedPlugin struct {
	name  string
	value float64
}

func (f fixedPlugin) Name() string                  { return f.name }
func (f fixedPlugin) Adjust(_ ProduceInput) float64 { return f.value }

// #endregion mock

// #region producer-tests

func TestProduce_NoPlugins(t *testing.T) {
	p := NewProducer(DefaultProducerConfig())
	adj := p.Produce(ProduceInput{Category: detection.Blood, Confidence: 70})
	if adj.Total != 0 || adj.Confidence != 70 {
		t.Errorf("expected passthrough, got %+v", adj)
	}
}

func TestProduce_TotalClamped(t *testing.T) {
	p := NewProducer(DefaultProducerConfig(),
		fixedPlugin{"a", 8}, fixedPlugin{"b", 8}, fixedPlugin{"c", 8})
	adj := p.Produce(ProduceInput{Category: detection.Blood, Confidence: 50})
	if adj.Raw != 24 {
		t.Errorf("expected raw 24, got %.2f", adj.Raw)
	}
	if adj.Total != 10 {
		t.Errorf("expected total clamped to 10, got %.2f", adj.Total)
	}
	if adj.Confidence != 60 {
		t.Errorf("expected 60, got %.2f", adj.Confidence)
	}
}

func TestProduce_NegativeClampAndFloor(t *testing.T) {
	p := NewProducer(DefaultProducerConfig(), fixedPlugin{"down", -40})
	adj := p.Produce(ProduceInput{Category: detection.Blood, Confidence: 4})
	if adj.Total != -10 {
		t.Errorf("expected -10, got %.2f", adj.Total)
	}
	if adj.Confidence != 0 {
		t.Errorf("expected floor 0, got %.2f", adj.Confidence)
	}
}

func TestProduce_IgnoresNaN(t *testing.T) {
	p := NewProducer(DefaultProducerConfig(), fixedPlugin{"bad", math.NaN()}, fixedPlugin{"ok", 2})
	adj := p.Produce(ProduceInput{Category: detection.Blood, Confidence: 50})
	if adj.Total != 2 {
		t.Errorf("expected 2, got %.2f", adj.Total)
	}
}

// #endregion producer-tests

// #region builtin-tests

func TestBuiltins(t *testing.T) {
	p := NewProducer(DefaultProducerConfig(), DefaultPlugins()...)

	tests := []struct {
		name  string
		input ProduceInput
		want  float64
	}{
		{"night flashing lights", ProduceInput{Category: detection.FlashingLights, Confidence: 50, NightMode: true}, 5},
		{"night spiders", ProduceInput{Category: detection.Spiders, Confidence: 50, NightMode: true}, 5},
		{"night blood untouched", ProduceInput{Category: detection.Blood, Confidence: 50, NightMode: true}, 0},
		{"stress murder", ProduceInput{Category: detection.Murder, Confidence: 50, StressMode: true}, 5},
		{"stress swear words untouched", ProduceInput{Category: detection.SwearWords, Confidence: 50, StressMode: true}, 0},
		{"auto captions only", ProduceInput{
			Category:   detection.SwearWords,
			Confidence: 50,
			Sources:    []detection.Source{detection.SourceText},
			Evidence: []detection.Detection{{Source: detection.SourceText, Category: detection.SwearWords,
				Metadata: map[string]string{"auto_generated_captions": "true"}}},
		}, -5},
		{"auto captions corroborated", ProduceInput{
			Category:   detection.SwearWords,
			Confidence: 50,
			Sources:    []detection.Source{detection.SourceText, detection.SourceAudioFrequency},
			Evidence: []detection.Detection{{Source: detection.SourceText, Category: detection.SwearWords,
				Metadata: map[string]string{"auto_generated_captions": "true"}}},
		}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adj := p.Produce(tt.input)
			if adj.Total != tt.want {
				t.Errorf("got %.2f, want %.2f (%v)", adj.Total, tt.want, adj.PerPlugin)
			}
		})
	}
}

func TestPluginsByName(t *testing.T) {
	got, err := PluginsByName([]string{"caption_quality", "night_mode"})
	if err != nil {
		t.Fatalf("PluginsByName: %v", err)
	}
	if len(got) != 2 || got[0].Name() != "caption_quality" || got[1].Name() != "night_mode" {
		t.Errorf("unexpected plugins %v", got)
	}
	if _, err := PluginsByName([]string{"moon_phase"}); err == nil {
		t.Error("expected error for unknown plugin")
	}
	none, err := PluginsByName(nil)
	if err != nil || len(none) != 0 {
		t.Errorf("expected empty list, got %v, %v", none, err)
	}
}

// #endregion builtin-tests
