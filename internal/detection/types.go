package detection

import "errors"

// #region source

// Source identifies the detector that produced a Detection.
type Source string

const (
	SourceText             Source = "text"
	SourceAudioWaveform    Source = "audio-waveform"
	SourceAudioFrequency   Source = "audio-frequency"
	SourceVisual           Source = "visual"
	SourcePhotosensitivity Source = "photosensitivity"
)

// AllSources lists every detector source in a stable order.
var AllSources = []Source{
	SourceText,
	SourceAudioWaveform,
	SourceAudioFrequency,
	SourceVisual,
	SourcePhotosensitivity,
}

// Valid reports whether s is one of the known sources.
func (s Source) Valid() bool {
	switch s {
	case SourceText, SourceAudioWaveform, SourceAudioFrequency, SourceVisual, SourcePhotosensitivity:
		return true
	}
	return false
}

// #endregion source

// #region modality

// Modality groups sources that observe the same physical signal. Both audio
// sources count as a single modality for corroboration.
type Modality string

const (
	ModalityText             Modality = "text"
	ModalityAudio            Modality = "audio"
	ModalityVisual           Modality = "visual"
	ModalityPhotosensitivity Modality = "photosensitivity"
)

// Modality returns the modality the source belongs to.
func (s Source) Modality() Modality {
	switch s {
	case SourceText:
		return ModalityText
	case SourceAudioWaveform, SourceAudioFrequency:
		return ModalityAudio
	case SourceVisual:
		return ModalityVisual
	case SourcePhotosensitivity:
		return ModalityPhotosensitivity
	}
	return ""
}

// #endregion modality

// #region detection

// Detection is one observation of a trigger category from one source.
// Timestamp is media-relative seconds. Epoch, when non-zero, is the session
// generation the producing adapter believed was current.
type Detection struct {
	Source     Source            `json:"source"`
	Category   Category          `json:"category"`
	Timestamp  float64           `json:"timestamp"`
	Confidence float64           `json:"confidence"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Epoch      uint64            `json:"epoch,omitempty"`
}

// HasFlag reports whether metadata key is set to a truthy value.
func (d Detection) HasFlag(key string) bool {
	v, ok := d.Metadata[key]
	if !ok {
		return false
	}
	switch v {
	case "", "0", "false", "no":
		return false
	}
	return true
}

// #endregion detection

// #region errors

// ErrMalformed is returned for detections that can never be processed.
var ErrMalformed = errors.New("malformed detection")

// #endregion errors
