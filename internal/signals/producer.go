package signals

import (
	"fmt"
	"math"

	"github.com/danielpatrickdp/trigger-guard/internal/detection"
)

// #region producer

// Producer runs confidence-adjustment plugins and bounds their combined effect.
type Producer struct {
	plugins []Plugin
	config  ProducerConfig
}

// NewProducer creates a Producer. plugins run in the given order.
func NewProducer(config ProducerConfig, plugins ...Plugin) *Producer {
	return &Producer{plugins: plugins, config: config}
}

// DefaultPlugins returns the built-in plugin set.
func DefaultPlugins() []Plugin {
	return []Plugin{NightMode{}, StressMode{}, CaptionQuality{}}
}

// PluginsByName returns the built-ins with the given names, in order.
func PluginsByName(names []string) ([]Plugin, error) {
	builtins := make(map[string]Plugin)
	for _, p := range DefaultPlugins() {
		builtins[p.Name()] = p
	}
	out := make([]Plugin, 0, len(names))
	for _, n := range names {
		p, ok := builtins[n]
		if !ok {
			return nil, fmt.Errorf("unknown plugin %q", n)
		}
		out = append(out, p)
	}
	return out, nil
}

// #endregion producer

// #region produce

// Produce runs every plugin against input. A plugin returning NaN or Inf
// contributes nothing.
func (p *Producer) Produce(input ProduceInput) Adjustment {
	adj := Adjustment{PerPlugin: make(map[string]float64, len(p.plugins))}
	for _, pl := range p.plugins {
		v := pl.Adjust(input)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			v = 0
		}
		adj.PerPlugin[pl.Name()] = v
		adj.Raw += v
	}
	adj.Total = clamp(adj.Raw, -p.config.MaxTotal, p.config.MaxTotal)
	adj.Confidence = clamp(input.Confidence+adj.Total, 0, 100)
	return adj
}

// #endregion produce

// #region night-mode

// NightMode raises sensory and phobia confidence for late viewing.
type NightMode struct{}

func (NightMode) Name() string { return "night_mode" }

func (NightMode) Adjust(input ProduceInput) float64 {
	if !input.NightMode {
		return 0
	}
	switch input.Category.Family() {
	case detection.FamilySensory, detection.FamilyPhobia:
		return 5
	}
	return 0
}

// #endregion night-mode

// #region stress-mode

// StressMode raises high-risk confidence when the viewer flagged stress.
type StressMode struct{}

func (StressMode) Name() string { return "stress_mode" }

func (StressMode) Adjust(input ProduceInput) float64 {
	if input.StressMode && input.Category.Risk() == detection.RiskHigh {
		return 5
	}
	return 0
}

// #endregion stress-mode

// #region caption-quality

// CaptionQuality lowers confidence when the only evidence is auto-generated
// captions.
type CaptionQuality struct{}

func (CaptionQuality) Name() string { return "caption_quality" }

func (CaptionQuality) Adjust(input ProduceInput) float64 {
	if len(input.Sources) != 1 || input.Sources[0] != detection.SourceText {
		return 0
	}
	for _, d := range input.Evidence {
		if d.Source == detection.SourceText && d.HasFlag("auto_generated_captions") {
			return -5
		}
	}
	return 0
}

// #endregion caption-quality

// #region helpers

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// #endregion helpers
