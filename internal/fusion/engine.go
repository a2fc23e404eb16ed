package fusion

import (
	"math"

	"github.com/danielpatrickdp/trigger-guard/internal/detection"
	"github.com/danielpatrickdp/trigger-guard/internal/routing"
)

// #region config

// EngineConfig holds strategy selection cutoffs, hybrid blend and learning rate.
type EngineConfig struct {
	HighAgreement      float64 // agreement at or above this with low diversity → voting
	LowAgreement       float64 // agreement below this → boosting
	HighDiversity      float64 // diversity at or above this with enough sources → stacking
	MinStackingSources int
	DeviationScale     float64 // std dev at which agreement reaches zero

	HybridVoting   float64
	HybridStacking float64
	HybridBoosting float64

	LearningRate float64
	MaxEmphasis  float64 // boosting emphasis upper bound
	MaxBias      float64 // stacking intercept bound, in confidence points
}

// DefaultEngineConfig returns the defaults: a 40/40/20 hybrid blend.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		HighAgreement:      0.8,
		LowAgreement:       0.5,
		HighDiversity:      0.5,
		MinStackingSources: 3,
		DeviationScale:     50,
		HybridVoting:       0.4,
		HybridStacking:     0.4,
		HybridBoosting:     0.2,
		LearningRate:       0.05,
		MaxEmphasis:        3,
		MaxBias:            10,
	}
}

// #endregion config

// #region types

// Strategy names the combination scheme that produced a result.
type Strategy string

const (
	StrategyVoting   Strategy = "voting"
	StrategyStacking Strategy = "stacking"
	StrategyBoosting Strategy = "boosting"
	StrategyHybrid   Strategy = "hybrid"
)

// Result is the fused confidence for one category at one moment.
type Result struct {
	Category           detection.Category
	Strategy           Strategy
	Confidence         float64 // final fused confidence in [0,100]
	VotingConfidence   float64
	StackingConfidence float64
	BoostingConfidence float64
	Agreement          float64 // 1 at perfect agreement, 0 at DeviationScale std dev
	Diversity          float64 // share of known sources that contributed
	Contributions      map[detection.Source]float64
}

// Sources returns the contributing sources in stable order.
func (r Result) Sources() []detection.Source {
	return routing.SortedSources(r.Contributions)
}

// LearnedWeights is a copy of the engine's learned parameters.
type LearnedWeights struct {
	Stacking map[detection.Source]float64
	Emphasis map[detection.Source]float64
	Bias     float64
}

// #endregion types

// #region engine

// Engine combines per-source confidences. One engine belongs to one session;
// it is not safe for concurrent use.
type Engine struct {
	config   EngineConfig
	stacking map[detection.Source]float64
	emphasis map[detection.Source]float64
	bias     float64
}

// NewEngine creates an engine with neutral learned weights.
func NewEngine(config EngineConfig) *Engine {
	e := &Engine{
		config:   config,
		stacking: make(map[detection.Source]float64, len(detection.AllSources)),
		emphasis: make(map[detection.Source]float64, len(detection.AllSources)),
	}
	for _, s := range detection.AllSources {
		e.stacking[s] = 1
		e.emphasis[s] = 1
	}
	return e
}

// Fuse combines contributions (per-source confidence, already reliability
// weighted) using pipeline weights. A source missing from weights gets
// weight 1. The result is deterministic for fixed inputs and learned weights.
func (e *Engine) Fuse(c detection.Category, contributions, weights map[detection.Source]float64) Result {
	res := Result{
		Category:      c,
		Contributions: make(map[detection.Source]float64, len(contributions)),
	}
	for s, v := range contributions {
		res.Contributions[s] = v
	}
	if len(contributions) == 0 {
		res.Strategy = StrategyVoting
		return res
	}

	sources := routing.SortedSources(contributions)
	res.Agreement = e.agreement(sources, contributions)
	res.Diversity = float64(len(sources)) / float64(len(detection.AllSources))

	res.VotingConfidence = clamp(e.vote(sources, contributions, weights))
	res.StackingConfidence = clamp(e.stack(sources, contributions, weights))
	res.BoostingConfidence = clamp(e.boost(sources, contributions, weights))

	res.Strategy = e.selectStrategy(len(sources), res.Agreement, res.Diversity)
	switch res.Strategy {
	case StrategyVoting:
		res.Confidence = res.VotingConfidence
	case StrategyStacking:
		res.Confidence = res.StackingConfidence
	case StrategyBoosting:
		res.Confidence = res.BoostingConfidence
	case StrategyHybrid:
		res.Confidence = e.config.HybridVoting*res.VotingConfidence +
			e.config.HybridStacking*res.StackingConfidence +
			e.config.HybridBoosting*res.BoostingConfidence
	}
	res.Confidence = clamp(res.Confidence)
	return res
}

// selectStrategy applies the rules in order: agreeing narrow evidence votes,
// broad evidence stacks, disagreeing evidence boosts, the rest blends.
func (e *Engine) selectStrategy(n int, agreement, diversity float64) Strategy {
	switch {
	case n == 1:
		return StrategyVoting
	case agreement >= e.config.HighAgreement && diversity < e.config.HighDiversity:
		return StrategyVoting
	case diversity >= e.config.HighDiversity && n >= e.config.MinStackingSources:
		return StrategyStacking
	case agreement < e.config.LowAgreement:
		return StrategyBoosting
	default:
		return StrategyHybrid
	}
}

// #endregion engine

// #region strategies

func (e *Engine) vote(sources []detection.Source, contrib, weights map[detection.Source]float64) float64 {
	var sum, wsum float64
	for _, s := range sources {
		w := weightOf(weights, s)
		sum += w * contrib[s]
		wsum += w
	}
	if wsum == 0 {
		return mean(sources, contrib)
	}
	return sum / wsum
}

func (e *Engine) stack(sources []detection.Source, contrib, weights map[detection.Source]float64) float64 {
	var sum, wsum float64
	for _, s := range sources {
		w := weightOf(weights, s) * e.stacking[s]
		sum += w * contrib[s]
		wsum += w
	}
	if wsum == 0 {
		return mean(sources, contrib) + e.bias
	}
	return sum/wsum + e.bias
}

func (e *Engine) boost(sources []detection.Source, contrib, weights map[detection.Source]float64) float64 {
	var sum, wsum float64
	for _, s := range sources {
		w := weightOf(weights, s) * e.emphasis[s]
		sum += w * contrib[s]
		wsum += w
	}
	if wsum == 0 {
		return mean(sources, contrib)
	}
	return sum / wsum
}

func (e *Engine) agreement(sources []detection.Source, contrib map[detection.Source]float64) float64 {
	if len(sources) < 2 {
		return 1
	}
	m := mean(sources, contrib)
	var ss float64
	for _, s := range sources {
		d := contrib[s] - m
		ss += d * d
	}
	std := math.Sqrt(ss / float64(len(sources)))
	return 1 - math.Min(1, std/e.config.DeviationScale)
}

// #endregion strategies

// #region learning

// Learn nudges the stacking coefficients, boosting emphasis and bias toward
// the labelled outcome. positive means the warning was correct.
func (e *Engine) Learn(contributions map[detection.Source]float64, positive bool) {
	if len(contributions) == 0 {
		return
	}
	target := 0.0
	if positive {
		target = 1
	}
	lr := e.config.LearningRate

	var errSum float64
	sources := routing.SortedSources(contributions)
	for _, s := range sources {
		residual := target - contributions[s]/100
		errSum += residual

		// sources that agree with the label gain stacking weight
		agreeing := 1 - math.Abs(residual)
		e.stacking[s] = bound(e.stacking[s]+lr*(agreeing-0.5), 0.2, 2)

		// sources that got it badly wrong are emphasized next time
		if math.Abs(residual) > 0.5 {
			e.emphasis[s] = bound(e.emphasis[s]*(1+lr), 1, e.config.MaxEmphasis)
		} else {
			e.emphasis[s] = bound(e.emphasis[s]-lr, 1, e.config.MaxEmphasis)
		}
	}
	e.bias = bound(e.bias+lr*10*errSum/float64(len(sources)), -e.config.MaxBias, e.config.MaxBias)
}

// Weights returns a copy of the learned parameters.
func (e *Engine) Weights() LearnedWeights {
	lw := LearnedWeights{
		Stacking: make(map[detection.Source]float64, len(e.stacking)),
		Emphasis: make(map[detection.Source]float64, len(e.emphasis)),
		Bias:     e.bias,
	}
	for s, v := range e.stacking {
		lw.Stacking[s] = v
	}
	for s, v := range e.emphasis {
		lw.Emphasis[s] = v
	}
	return lw
}

// #endregion learning

// #region helpers

func weightOf(weights map[detection.Source]float64, s detection.Source) float64 {
	if weights == nil {
		return 1
	}
	w, ok := weights[s]
	if !ok {
		return 1
	}
	return w
}

func mean(sources []detection.Source, contrib map[detection.Source]float64) float64 {
	if len(sources) == 0 {
		return 0
	}
	var sum float64
	for _, s := range sources {
		sum += contrib[s]
	}
	return sum / float64(len(sources))
}

func clamp(v float64) float64 {
	return bound(v, 0, 100)
}

func bound(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// #endregion helpers
