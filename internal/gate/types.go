package gate

import "github.com/danielpatrickdp/trigger-guard/internal/detection"

// #region veto-type
// VetoType enumerates the reasons a fused detection is rejected.
type VetoType string

const (
	VetoInsufficientModalities VetoType = "insufficient_modalities"
	VetoSingleModalityBar      VetoType = "single_modality_bar"
	VetoNoEvidence             VetoType = "no_evidence"
)

// #endregion veto-type

// #region veto-signal
// VetoSignal represents a detected rejection condition.
type VetoSignal struct {
	Type   VetoType
	Reason string
}

// #endregion veto-signal

// #region level
// Level is the corroboration tier applied to a category.
type Level string

const (
	LevelStrict   Level = "strict"   // high risk: needs corroboration
	LevelStandard Level = "standard" // medium risk
	LevelRelaxed  Level = "relaxed"  // low risk: single modality at a higher bar
)

// #endregion level

// #region validator-config
// ValidatorConfig holds corroboration requirements per tier.
type ValidatorConfig struct {
	StrictModalities   int     // distinct modalities a high-risk category needs
	StandardSingleBar  float64 // confidence a lone modality needs for medium risk
	RelaxedSingleBar   float64 // confidence a lone modality needs for low risk
	CorrelationWindow  float64 // seconds either side in which history corroborates
	MinCorroboration   float64 // history confidence that counts as corroboration
	CorroborationBonus float64 // points added per extra modality on acceptance
}

// DefaultValidatorConfig returns the defaults.
func DefaultValidatorConfig() ValidatorConfig {
	return ValidatorConfig{
		StrictModalities:   2,
		StandardSingleBar:  50,
		RelaxedSingleBar:   60,
		CorrelationWindow:  3,
		MinCorroboration:   30,
		CorroborationBonus: 5,
	}
}

// #endregion validator-config

// #region validation-result
// ValidationResult is the output of Validate. A result with Passed false is
// dropped by the caller and never retried.
type ValidationResult struct {
	Passed             bool
	Level              Level
	AdjustedConfidence float64
	ModalitiesPresent  []detection.Modality
	ModalitiesRequired int
	Reason             string
	Vetoes             []VetoSignal
}

// #endregion validation-result
