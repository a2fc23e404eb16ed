package routing

import (
	"fmt"
	"sort"

	"github.com/danielpatrickdp/trigger-guard/internal/detection"
)

// #region reliability

const (
	minReliability = 0.6
	maxReliability = 1.0
)

// discount is one degraded-signal marker and the factor it applies.
type discount struct {
	flag   string
	factor float64
}

var discounts = map[detection.Modality][]discount{
	detection.ModalityVisual: {
		{"low_light", 0.75},
		{"blurry", 0.85},
		{"compressed", 0.9},
	},
	detection.ModalityAudio: {
		{"noisy", 0.8},
		{"low_volume", 0.85},
		{"compressed", 0.95},
	},
	detection.ModalityText: {
		{"auto_generated_captions", 0.8},
	},
	detection.ModalityPhotosensitivity: {
		{"compressed", 0.9},
	},
}

// AssessReliability returns the multiplicative trust factor for a detection
// in [0.6, 1.0] and the markers that lowered it.
func AssessReliability(d detection.Detection) (float64, []string) {
	factor := maxReliability
	var reasons []string
	for _, dc := range discounts[d.Source.Modality()] {
		if d.HasFlag(dc.flag) {
			factor *= dc.factor
			reasons = append(reasons, dc.flag)
		}
	}
	if factor < minReliability {
		factor = minReliability
	}
	return factor, reasons
}

// #endregion reliability

// #region route-types

// Input is the evidence available for one category at one moment: the
// detections of that category inside the correlation window.
type Input struct {
	Evidence []detection.Detection
}

// Route is the routing decision for one category.
type Route struct {
	Pipeline      PipelineID
	Confidence    float64 // pipeline-weighted estimate before fusion
	Reasoning     []string
	Weights       map[detection.Source]float64 // pipeline weight per present source
	Reliability   map[detection.Source]float64 // reliability per present source
	Contributions map[detection.Source]float64 // strongest reliability-weighted confidence per source
}

// #endregion route-types

// #region router

// Router picks the scoring pipeline for a category and discounts degraded sources.
type Router struct{}

// NewRouter creates a router over the built-in pipelines.
func NewRouter() *Router {
	return &Router{}
}

// Route selects the family pipeline for c and summarizes the evidence per source.
func (r *Router) Route(c detection.Category, in Input) Route {
	pid := pipelineFor(c.Family())
	cfg := Pipelines[pid]

	route := Route{
		Pipeline:      pid,
		Weights:       make(map[detection.Source]float64),
		Reliability:   make(map[detection.Source]float64),
		Contributions: make(map[detection.Source]float64),
		Reasoning:     []string{fmt.Sprintf("family %s → pipeline %s", c.Family(), pid)},
	}

	// strongest detection per source wins; its reliability is the source's
	for _, d := range in.Evidence {
		if d.Category != c {
			continue
		}
		rel, reasons := AssessReliability(d)
		weighted := d.Confidence * rel
		if prev, ok := route.Contributions[d.Source]; ok && prev >= weighted {
			continue
		}
		route.Contributions[d.Source] = weighted
		route.Reliability[d.Source] = rel
		route.Weights[d.Source] = cfg.Weights[d.Source]
		if len(reasons) > 0 {
			route.Reasoning = append(route.Reasoning,
				fmt.Sprintf("%s discounted to %.2f (%v)", d.Source, rel, reasons))
		}
	}

	var sum, wsum float64
	for _, src := range sortedSources(route.Contributions) {
		w := route.Weights[src]
		sum += w * route.Contributions[src]
		wsum += w
	}
	if wsum > 0 {
		route.Confidence = sum / wsum
	}
	return route
}

// #endregion router

// #region helpers

// sortedSources returns the keys of m in detection.AllSources order so that
// float sums are reproducible.
func sortedSources(m map[detection.Source]float64) []detection.Source {
	out := make([]detection.Source, 0, len(m))
	for src := range m {
		out = append(out, src)
	}
	order := make(map[detection.Source]int, len(detection.AllSources))
	for i, s := range detection.AllSources {
		order[s] = i
	}
	sort.Slice(out, func(i, j int) bool { return order[out[i]] < order[out[j]] })
	return out
}

// SortedSources is the exported form of sortedSources for other stages.
func SortedSources(m map[detection.Source]float64) []detection.Source {
	return sortedSources(m)
}

// #endregion helpers
