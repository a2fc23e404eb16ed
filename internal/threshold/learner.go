package threshold

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/danielpatrickdp/trigger-guard/internal/detection"
	"github.com/google/uuid"
)

// #region learner
// Learner owns one user's per-category thresholds. It is the single writer of
// that state; concurrent Apply calls serialize on its mutex and the last
// applied wins.
type Learner struct {
	mu         sync.Mutex
	userID     string
	config     Config
	thresholds map[detection.Category]*CategoryThreshold
	now        func() time.Time
}

// NewLearner creates a learner with every category at the default threshold.
func NewLearner(userID string, config Config) *Learner {
	return &Learner{
		userID:     userID,
		config:     config,
		thresholds: make(map[detection.Category]*CategoryThreshold),
		now:        time.Now,
	}
}

// UserID returns the user the learner belongs to.
func (l *Learner) UserID() string { return l.userID }

// Config returns the learner's configuration.
func (l *Learner) Config() Config { return l.config }

// #endregion learner

// #region read
// Threshold returns the current bar for c, or the default if c has never been
// adjusted.
func (l *Learner) Threshold(c detection.Category) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if t, ok := l.thresholds[c]; ok {
		return t.Current
	}
	return l.config.Default
}

// State returns a copy of the full record for c.
func (l *Learner) State(c detection.Category) CategoryThreshold {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stateLocked(c)
}

func (l *Learner) stateLocked(c detection.Category) CategoryThreshold {
	t, ok := l.thresholds[c]
	if !ok {
		return CategoryThreshold{Category: c, Current: l.config.Default, Default: l.config.Default}
	}
	cp := *t
	cp.RecentSteps = append([]float64(nil), t.RecentSteps...)
	return cp
}

// All returns copies of every adjusted category, sorted by category.
func (l *Learner) All() []CategoryThreshold {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]CategoryThreshold, 0, len(l.thresholds))
	for c := range l.thresholds {
		out = append(out, l.stateLocked(c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out
}

// #endregion read

// #region apply
// Apply runs one feedback event through Update. Feedback for an unknown
// category or of an unknown kind returns an error and changes nothing.
func (l *Learner) Apply(fb Feedback) (Adjustment, error) {
	if !fb.Category.Valid() {
		return Adjustment{}, fmt.Errorf("%w: %q", ErrUnknownCategory, fb.Category)
	}
	if !fb.Kind.Valid() {
		return Adjustment{}, fmt.Errorf("%w: %q", ErrUnknownFeedback, fb.Kind)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	old := l.stateLocked(fb.Category)
	result := Update(old, fb, l.config)
	next := result.New
	l.thresholds[fb.Category] = &next

	return Adjustment{
		ID:        uuid.New().String(),
		UserID:    l.userID,
		Category:  fb.Category,
		Old:       old.Current,
		New:       next.Current,
		Feedback:  fb.Kind,
		Reasoning: result.Decision.Reason,
		Converged: next.Converged,
		At:        l.now().UTC(),
	}, nil
}

// #endregion apply

// #region import-export
// Export returns the current threshold of every category.
func (l *Learner) Export() map[detection.Category]float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[detection.Category]float64, len(detection.AllCategories()))
	for _, c := range detection.AllCategories() {
		if t, ok := l.thresholds[c]; ok {
			out[c] = t.Current
		} else {
			out[c] = l.config.Default
		}
	}
	return out
}

// Import replaces current thresholds from a snapshot, clamping each value.
// Unknown categories are skipped and reported; known ones are still applied.
func (l *Learner) Import(snapshot map[detection.Category]float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var errs []error
	for c, v := range snapshot {
		if !c.Valid() {
			errs = append(errs, fmt.Errorf("%w: %q", ErrUnknownCategory, c))
			continue
		}
		t, ok := l.thresholds[c]
		if !ok {
			t = &CategoryThreshold{Category: c, Default: l.config.Default}
			l.thresholds[c] = t
		}
		t.Current = Clamp(v, l.config)
	}
	return errors.Join(errs...)
}

// Restore loads full records, typically from a store. Values are clamped and
// convergence is recomputed from the recorded steps.
func (l *Learner) Restore(records []CategoryThreshold) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, r := range records {
		if !r.Category.Valid() {
			continue
		}
		rec := r
		rec.Current = Clamp(r.Current, l.config)
		if rec.Default == 0 {
			rec.Default = l.config.Default
		}
		rec.RecentSteps = append([]float64(nil), r.RecentSteps...)
		if len(rec.RecentSteps) > l.config.ConvergenceWindow {
			rec.RecentSteps = rec.RecentSteps[len(rec.RecentSteps)-l.config.ConvergenceWindow:]
		}
		if len(rec.RecentSteps) > 0 {
			rec.Converged = converged(rec.RecentSteps, l.config)
		}
		l.thresholds[r.Category] = &rec
	}
}

// #endregion import-export
