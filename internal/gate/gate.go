package gate

import (
	"fmt"
	"math"
	"sort"

	"github.com/danielpatrickdp/trigger-guard/internal/detection"
	"github.com/danielpatrickdp/trigger-guard/internal/fusion"
)

// #region validator
// Validator enforces the corroboration policy for a category's risk tier.
type Validator struct {
	config ValidatorConfig
}

// NewValidator creates a validator with the given configuration.
func NewValidator(config ValidatorConfig) *Validator {
	return &Validator{config: config}
}

// Validate checks a fused result at media time at against the category's tier.
// Modalities come from the fused contributions plus same-category history
// inside the correlation window. history is a snapshot and is not modified.
func (v *Validator) Validate(fused fusion.Result, at float64, history []detection.Detection) ValidationResult {
	level, required := v.tier(fused.Category.Risk())
	present := v.modalities(fused, at, history)

	res := ValidationResult{
		Level:              level,
		ModalitiesPresent:  present,
		ModalitiesRequired: required,
	}

	var vetoes []VetoSignal

	// --- Hard veto pass ---

	// 1. Nothing contributed
	if len(fused.Contributions) == 0 {
		vetoes = append(vetoes, VetoSignal{
			Type:   VetoNoEvidence,
			Reason: "no contributing sources",
		})
	}

	// 2. Not enough distinct modalities for the tier
	if len(present) < required {
		vetoes = append(vetoes, VetoSignal{
			Type:   VetoInsufficientModalities,
			Reason: fmt.Sprintf("%d of %d modalities present", len(present), required),
		})
	}

	// 3. Lone modality below the tier's single-source bar
	if len(present) == 1 {
		if bar := v.singleBar(level); fused.Confidence < bar {
			vetoes = append(vetoes, VetoSignal{
				Type:   VetoSingleModalityBar,
				Reason: fmt.Sprintf("single modality %.2f below %.2f", fused.Confidence, bar),
			})
		}
	}

	if len(vetoes) > 0 {
		res.Reason = fmt.Sprintf("rejected: %s", vetoes[0].Reason)
		res.Vetoes = vetoes
		return res
	}

	// --- Corroboration bonus ---
	bonus := v.config.CorroborationBonus * float64(len(present)-1)
	res.Passed = true
	res.AdjustedConfidence = math.Min(100, fused.Confidence+bonus)
	res.Reason = fmt.Sprintf("passed %s: %d modalities, bonus %.1f", level, len(present), bonus)
	return res
}

// #endregion validator

// #region helpers
// tier maps a risk level to its validation level and required modality count.
func (v *Validator) tier(r detection.Risk) (Level, int) {
	switch r {
	case detection.RiskHigh:
		return LevelStrict, v.config.StrictModalities
	case detection.RiskMedium:
		return LevelStandard, 1
	case detection.RiskLow:
		return LevelRelaxed, 1
	}
	return LevelStrict, v.config.StrictModalities
}

func (v *Validator) singleBar(l Level) float64 {
	switch l {
	case LevelStandard:
		return v.config.StandardSingleBar
	case LevelRelaxed:
		return v.config.RelaxedSingleBar
	}
	return 0
}

// modalities returns the distinct modalities backing the fused result, sorted.
func (v *Validator) modalities(fused fusion.Result, at float64, history []detection.Detection) []detection.Modality {
	seen := make(map[detection.Modality]struct{})
	for src := range fused.Contributions {
		seen[src.Modality()] = struct{}{}
	}
	for _, h := range history {
		if h.Category != fused.Category {
			continue
		}
		if math.Abs(h.Timestamp-at) > v.config.CorrelationWindow {
			continue
		}
		if h.Confidence < v.config.MinCorroboration {
			continue
		}
		seen[h.Source.Modality()] = struct{}{}
	}
	out := make([]detection.Modality, 0, len(seen))
	for m := range seen {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// #endregion helpers
