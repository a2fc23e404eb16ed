package intake

import (
	"errors"
	"fmt"
	"sort"

	"github.com/danielpatrickdp/trigger-guard/internal/detection"
)

// #region config

// WindowConfig holds the sliding-window horizon.
type WindowConfig struct {
	HorizonSeconds float64 // entries older than latest-horizon are purged
}

// DefaultWindowConfig returns a 10 second horizon.
func DefaultWindowConfig() WindowConfig {
	return WindowConfig{HorizonSeconds: 10}
}

// #endregion config

// ErrStale is returned for a detection older than its category's window.
var ErrStale = errors.New("detection older than history horizon")

// #region history

// History is the time-ordered recent detections of a single category.
type History struct {
	entries []detection.Detection
	latest  float64
	seen    bool
}

// Len returns the number of retained entries.
func (h *History) Len() int { return len(h.entries) }

// Latest returns the purge clock for this category.
func (h *History) Latest() float64 { return h.latest }

func (h *History) insert(d detection.Detection, horizon float64) error {
	if h.seen && d.Timestamp < h.latest-horizon {
		return fmt.Errorf("%w: %s at %.2fs, latest %.2fs", ErrStale, d.Category, d.Timestamp, h.latest)
	}

	idx := sort.Search(len(h.entries), func(i int) bool {
		return h.entries[i].Timestamp > d.Timestamp
	})
	h.entries = append(h.entries, detection.Detection{})
	copy(h.entries[idx+1:], h.entries[idx:])
	h.entries[idx] = d

	if !h.seen || d.Timestamp > h.latest {
		h.latest = d.Timestamp
		h.seen = true
	}
	h.purge(horizon)
	return nil
}

// purge drops entries that fell out of the horizon. Entries are sorted so the
// expired ones are always a prefix.
func (h *History) purge(horizon float64) {
	cutoff := h.latest - horizon
	n := sort.Search(len(h.entries), func(i int) bool {
		return h.entries[i].Timestamp >= cutoff
	})
	if n > 0 {
		h.entries = append([]detection.Detection(nil), h.entries[n:]...)
	}
}

// #endregion history

// #region window

// Window keeps one History per category. Not safe for concurrent use; the
// owning session serializes access.
type Window struct {
	config    WindowConfig
	histories map[detection.Category]*History
}

// NewWindow creates an empty window.
func NewWindow(config WindowConfig) *Window {
	return &Window{
		config:    config,
		histories: make(map[detection.Category]*History),
	}
}

// Ingest adds d to its category history and advances that history's purge clock.
func (w *Window) Ingest(d detection.Detection) error {
	if err := detection.Check(d); err != nil {
		return err
	}
	h, ok := w.histories[d.Category]
	if !ok {
		h = &History{}
		w.histories[d.Category] = h
	}
	return h.insert(d, w.config.HorizonSeconds)
}

// Snapshot returns a copy of the category's retained detections in time order.
func (w *Window) Snapshot(c detection.Category) []detection.Detection {
	h, ok := w.histories[c]
	if !ok || len(h.entries) == 0 {
		return nil
	}
	out := make([]detection.Detection, len(h.entries))
	copy(out, h.entries)
	return out
}

// Reset discards every category's history.
func (w *Window) Reset() {
	w.histories = make(map[detection.Category]*History)
}

// Size returns the total number of retained detections across categories.
func (w *Window) Size() int {
	total := 0
	for _, h := range w.histories {
		total += len(h.entries)
	}
	return total
}

// #endregion window
