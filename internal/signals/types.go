package signals

import "github.com/danielpatrickdp/trigger-guard/internal/detection"

// #region plugin-interface

// Plugin is an optional confidence adjustment layered on top of fusion. It
// returns a signed adjustment in confidence points; the Producer bounds the
// combined total so plugins can never override the gates.
type Plugin interface {
	Name() string
	Adjust(input ProduceInput) float64
}

// #endregion plugin-interface

// #region config

// ProducerConfig holds tuning knobs for plugin aggregation.
type ProducerConfig struct {
	MaxTotal float64 // |sum of plugin adjustments| cap, in confidence points
}

// DefaultProducerConfig returns sensible defaults.
func DefaultProducerConfig() ProducerConfig {
	return ProducerConfig{MaxTotal: 10}
}

// #endregion config

// #region input

// ProduceInput bundles everything a plugin may look at for one candidate.
type ProduceInput struct {
	Category   detection.Category
	Confidence float64
	Sources    []detection.Source    // sources that contributed to fusion
	Evidence   []detection.Detection // history snapshot for the category
	NightMode  bool
	StressMode bool
}

// #endregion input

// #region output

// Adjustment is the bounded result of running every plugin.
type Adjustment struct {
	Total      float64            // clamped sum
	Raw        float64            // unclamped sum
	Confidence float64            // input confidence plus Total, clamped to [0,100]
	PerPlugin  map[string]float64 // individual plugin outputs
}

// #endregion output
