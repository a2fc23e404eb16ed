// Package profile holds the viewer settings the decision stage reads:
// enabled categories, sensitivity and night/stress modifiers.
package profile

import (
	"errors"
	"fmt"
	"os"

	"github.com/danielpatrickdp/trigger-guard/internal/detection"
	"gopkg.in/yaml.v3"
)

// Sensitivity controls how far above the learned threshold a warning must be.
type Sensitivity string

const (
	SensitivityHigh   Sensitivity = "high"
	SensitivityMedium Sensitivity = "medium"
	SensitivityLow    Sensitivity = "low"
)

// Offset returns the narrowing applied on top of the learned threshold. It is
// never negative, so a profile can only raise the bar.
func (s Sensitivity) Offset() float64 {
	switch s {
	case SensitivityMedium:
		return 5
	case SensitivityLow:
		return 10
	}
	return 0
}

// Valid reports whether s is a known sensitivity.
func (s Sensitivity) Valid() bool {
	switch s {
	case SensitivityHigh, SensitivityMedium, SensitivityLow:
		return true
	}
	return false
}

// Profile is a read-only view of one viewer's settings.
type Profile struct {
	UserID              string                             `yaml:"user_id" json:"user_id"`
	EnabledCategories   []detection.Category               `yaml:"enabled_categories,omitempty" json:"enabled_categories,omitempty"`
	DisabledCategories  []detection.Category               `yaml:"disabled_categories,omitempty" json:"disabled_categories,omitempty"`
	Sensitivity         Sensitivity                        `yaml:"sensitivity" json:"sensitivity"`
	CategorySensitivity map[detection.Category]Sensitivity `yaml:"category_sensitivity,omitempty" json:"category_sensitivity,omitempty"`
	NightMode           bool                               `yaml:"night_mode" json:"night_mode"`
	StressMode          bool                               `yaml:"stress_mode" json:"stress_mode"`
}

// Default returns a profile with every category enabled at high sensitivity.
func Default() Profile {
	return Profile{Sensitivity: SensitivityHigh}
}

// Enabled reports whether warnings for c should be shown. An empty enabled
// list means every category; the disabled list always wins.
func (p Profile) Enabled(c detection.Category) bool {
	for _, d := range p.DisabledCategories {
		if d == c {
			return false
		}
	}
	if len(p.EnabledCategories) == 0 {
		return true
	}
	for _, e := range p.EnabledCategories {
		if e == c {
			return true
		}
	}
	return false
}

// Offset returns the threshold narrowing for c.
func (p Profile) Offset(c detection.Category) float64 {
	if s, ok := p.CategorySensitivity[c]; ok {
		return s.Offset()
	}
	return p.Sensitivity.Offset()
}

// Validate checks categories and sensitivities.
func (p Profile) Validate() error {
	var errs []error
	if !p.Sensitivity.Valid() {
		errs = append(errs, fmt.Errorf("sensitivity %q", p.Sensitivity))
	}
	for _, lists := range [][]detection.Category{p.EnabledCategories, p.DisabledCategories} {
		for _, c := range lists {
			if !c.Valid() {
				errs = append(errs, fmt.Errorf("unknown category %q", c))
			}
		}
	}
	for c, s := range p.CategorySensitivity {
		if !c.Valid() {
			errs = append(errs, fmt.Errorf("unknown category %q", c))
		}
		if !s.Valid() {
			errs = append(errs, fmt.Errorf("sensitivity %q for %s", s, c))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid profile: %w", errors.Join(errs...))
	}
	return nil
}

// Parse decodes a YAML profile. Missing fields take their defaults.
func Parse(data []byte) (Profile, error) {
	p := Default()
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Profile{}, fmt.Errorf("parse profile: %w", err)
	}
	if p.Sensitivity == "" {
		p.Sensitivity = SensitivityHigh
	}
	if err := p.Validate(); err != nil {
		return Profile{}, err
	}
	return p, nil
}

// Load reads a YAML profile from path. A missing file yields Default.
func Load(path string) (Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return Profile{}, fmt.Errorf("read profile: %w", err)
	}
	return Parse(data)
}

// Marshal encodes p as YAML.
func Marshal(p Profile) ([]byte, error) {
	return yaml.Marshal(p)
}
