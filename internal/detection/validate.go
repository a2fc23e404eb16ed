package detection

import (
	"fmt"
	"math"
)

// Check reports why d cannot enter the pipeline. The returned error wraps
// ErrMalformed.
func Check(d Detection) error {
	if !d.Source.Valid() {
		return fmt.Errorf("%w: unknown source %q", ErrMalformed, d.Source)
	}
	if !d.Category.Valid() {
		return fmt.Errorf("%w: unknown category %q", ErrMalformed, d.Category)
	}
	if math.IsNaN(d.Confidence) || d.Confidence < 0 || d.Confidence > 100 {
		return fmt.Errorf("%w: confidence %.2f outside [0,100]", ErrMalformed, d.Confidence)
	}
	if math.IsNaN(d.Timestamp) || math.IsInf(d.Timestamp, 0) || d.Timestamp < 0 {
		return fmt.Errorf("%w: invalid timestamp %v", ErrMalformed, d.Timestamp)
	}
	return nil
}
