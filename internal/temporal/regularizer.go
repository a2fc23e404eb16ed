package temporal

import (
	"math"

	"github.com/danielpatrickdp/trigger-guard/internal/detection"
)

// #region config

// RegularizerConfig holds the smoothing parameters.
type RegularizerConfig struct {
	NeighborWindow   float64 // seconds either side of the detection that count as neighbors
	MaxAdjustment    float64 // cap on boost or penalty as a fraction of the original confidence
	IsolationPenalty float64 // fraction removed from a detection with no neighbors
	DeviationScale   float64 // confidence deviation at which coherence reaches zero
	FullSupport      int     // neighbor count at which support saturates
}

// DefaultRegularizerConfig returns the defaults.
func DefaultRegularizerConfig() RegularizerConfig {
	return RegularizerConfig{
		NeighborWindow:   5,
		MaxAdjustment:    0.2,
		IsolationPenalty: 0.15,
		DeviationScale:   50,
		FullSupport:      3,
	}
}

// #endregion config

// #region types

// RegularizedDetection is a detection after temporal smoothing.
type RegularizedDetection struct {
	Category              detection.Category
	Timestamp             float64
	OriginalConfidence    float64
	RegularizedConfidence float64
	CoherenceScore        float64 // [0,1]; 0 for isolated detections
	Neighbors             int
}

// Delta returns the signed adjustment applied by regularization.
func (r RegularizedDetection) Delta() float64 {
	return r.RegularizedConfidence - r.OriginalConfidence
}

// #endregion types

// #region regularizer

// Regularizer smooths a detection's confidence against same-category history.
type Regularizer struct {
	config RegularizerConfig
}

// NewRegularizer creates a regularizer.
func NewRegularizer(config RegularizerConfig) *Regularizer {
	return &Regularizer{config: config}
}

// Regularize adjusts d using the same-category neighbors in history. history
// is a snapshot and is not modified; d itself is skipped if present. The
// result depends only on its inputs.
func (r *Regularizer) Regularize(d detection.Detection, history []detection.Detection) RegularizedDetection {
	out := RegularizedDetection{
		Category:           d.Category,
		Timestamp:          d.Timestamp,
		OriginalConfidence: d.Confidence,
	}

	var sum float64
	n := 0
	skippedSelf := false
	for _, h := range history {
		if h.Category != d.Category {
			continue
		}
		if math.Abs(h.Timestamp-d.Timestamp) > r.config.NeighborWindow {
			continue
		}
		if !skippedSelf && h.Source == d.Source && h.Timestamp == d.Timestamp && h.Confidence == d.Confidence {
			skippedSelf = true
			continue
		}
		sum += h.Confidence
		n++
	}
	out.Neighbors = n

	if n == 0 {
		out.RegularizedConfidence = clampConfidence(d.Confidence * (1 - r.config.IsolationPenalty))
		return out
	}

	mean := sum / float64(n)
	coherence := 1 - math.Min(1, math.Abs(d.Confidence-mean)/r.config.DeviationScale)
	support := math.Min(1, float64(n)/float64(r.config.FullSupport))

	// factor in [-1, 1]: positive for a sustained pattern, negative for a spike
	factor := support * (coherence - 0.5) * 2
	adjust := factor * r.config.MaxAdjustment * d.Confidence

	out.CoherenceScore = coherence
	out.RegularizedConfidence = clampConfidence(d.Confidence + adjust)
	return out
}

// #endregion regularizer

// #region helpers

func clampConfidence(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// #endregion helpers
