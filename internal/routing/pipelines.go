package routing

import "github.com/danielpatrickdp/trigger-guard/internal/detection"

// #region pipeline-id

// PipelineID identifies a family-specific scoring pipeline.
type PipelineID string

const (
	PipelineBodilyHarm PipelineID = "bodily_harm"
	PipelineViolence   PipelineID = "violence"
	PipelineSexual     PipelineID = "sexual"
	PipelineDisaster   PipelineID = "disaster"
	PipelinePhobia     PipelineID = "phobia"
	PipelineSocial     PipelineID = "social"
	PipelineSubstances PipelineID = "substances"
	PipelineMedical    PipelineID = "medical"
	PipelineSensory    PipelineID = "sensory"
)

// #endregion pipeline-id

// #region pipeline-config

// PipelineConfig defines how much each source is trusted for a family.
type PipelineConfig struct {
	ID      PipelineID
	Weights map[detection.Source]float64
}

// #endregion pipeline-config

// #region pipeline-definitions

// Pipelines is the full set of built-in family pipelines.
var Pipelines = map[PipelineID]PipelineConfig{
	PipelineBodilyHarm: {
		ID: PipelineBodilyHarm,
		Weights: map[detection.Source]float64{
			detection.SourceVisual:           1.0,
			detection.SourceText:             0.8,
			detection.SourceAudioWaveform:    0.5,
			detection.SourceAudioFrequency:   0.5,
			detection.SourcePhotosensitivity: 0.3,
		},
	},
	PipelineViolence: {
		ID: PipelineViolence,
		Weights: map[detection.Source]float64{
			detection.SourceVisual:           0.9,
			detection.SourceText:             0.7,
			detection.SourceAudioWaveform:    0.9,
			detection.SourceAudioFrequency:   0.8,
			detection.SourcePhotosensitivity: 0.3,
		},
	},
	PipelineSexual: {
		ID: PipelineSexual,
		Weights: map[detection.Source]float64{
			detection.SourceVisual:           1.0,
			detection.SourceText:             0.8,
			detection.SourceAudioWaveform:    0.4,
			detection.SourceAudioFrequency:   0.4,
			detection.SourcePhotosensitivity: 0.2,
		},
	},
	PipelineDisaster: {
		ID: PipelineDisaster,
		Weights: map[detection.Source]float64{
			detection.SourceVisual:           0.8,
			detection.SourceText:             0.6,
			detection.SourceAudioWaveform:    1.0,
			detection.SourceAudioFrequency:   0.9,
			detection.SourcePhotosensitivity: 0.5,
		},
	},
	PipelinePhobia: {
		ID: PipelinePhobia,
		Weights: map[detection.Source]float64{
			detection.SourceVisual:           1.0,
			detection.SourceText:             0.7,
			detection.SourceAudioWaveform:    0.5,
			detection.SourceAudioFrequency:   0.5,
			detection.SourcePhotosensitivity: 0.3,
		},
	},
	PipelineSocial: {
		ID: PipelineSocial,
		Weights: map[detection.Source]float64{
			detection.SourceVisual:           0.2,
			detection.SourceText:             1.0,
			detection.SourceAudioWaveform:    0.4,
			detection.SourceAudioFrequency:   0.6,
			detection.SourcePhotosensitivity: 0.1,
		},
	},
	PipelineSubstances: {
		ID: PipelineSubstances,
		Weights: map[detection.Source]float64{
			detection.SourceVisual:           0.9,
			detection.SourceText:             0.9,
			detection.SourceAudioWaveform:    0.3,
			detection.SourceAudioFrequency:   0.3,
			detection.SourcePhotosensitivity: 0.2,
		},
	},
	PipelineMedical: {
		ID: PipelineMedical,
		Weights: map[detection.Source]float64{
			detection.SourceVisual:           1.0,
			detection.SourceText:             0.8,
			detection.SourceAudioWaveform:    0.4,
			detection.SourceAudioFrequency:   0.4,
			detection.SourcePhotosensitivity: 0.2,
		},
	},
	PipelineSensory: {
		ID: PipelineSensory,
		Weights: map[detection.Source]float64{
			detection.SourceVisual:           0.7,
			detection.SourceText:             0.3,
			detection.SourceAudioWaveform:    0.9,
			detection.SourceAudioFrequency:   0.9,
			detection.SourcePhotosensitivity: 1.0,
		},
	},
}

// #endregion pipeline-definitions

// #region family-mapping

// pipelineFor maps a family to its pipeline. The switch is exhaustive over
// detection.AllFamilies.
func pipelineFor(f detection.Family) PipelineID {
	switch f {
	case detection.FamilyBodilyHarm:
		return PipelineBodilyHarm
	case detection.FamilyViolence:
		return PipelineViolence
	case detection.FamilySexual:
		return PipelineSexual
	case detection.FamilyDisaster:
		return PipelineDisaster
	case detection.FamilyPhobia:
		return PipelinePhobia
	case detection.FamilySocial:
		return PipelineSocial
	case detection.FamilySubstances:
		return PipelineSubstances
	case detection.FamilyMedical:
		return PipelineMedical
	case detection.FamilySensory:
		return PipelineSensory
	}
	return PipelineBodilyHarm
}

// #endregion family-mapping
