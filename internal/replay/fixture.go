package replay

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/danielpatrickdp/trigger-guard/internal/detection"
	"github.com/danielpatrickdp/trigger-guard/internal/orchestrator"
	"github.com/danielpatrickdp/trigger-guard/internal/profile"
	"github.com/danielpatrickdp/trigger-guard/internal/state"
)

// #region fixture-types

// Fixture is the top-level JSON structure for a replay fixture.
type Fixture struct {
	Description      string                         `json:"description"`
	UserID           string                         `json:"user_id,omitempty"`
	Profile          *profile.Profile               `json:"profile,omitempty"`
	Thresholds       map[detection.Category]float64 `json:"thresholds,omitempty"`
	Steps            []Step                         `json:"steps"`
	ExpectThresholds map[detection.Category]float64 `json:"expect_thresholds,omitempty"`
}

// Step is one recorded event plus what replaying it should produce.
type Step struct {
	orchestrator.Event
	Expect *Expectation `json:"expect,omitempty"`
}

// Expectation is the expected outcome of one step. An empty Reason matches
// any reason.
type Expectation struct {
	Action string `json:"action"`
	Reason string `json:"reason,omitempty"`
}

// #endregion fixture-types

// #region schema

//go:embed fixture.schema.json
var fixtureSchema []byte

const schemaURL = "https://schemas.trigger-guard.dev/replay/fixture.schema.json"

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func loadSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(schemaURL, bytes.NewReader(fixtureSchema)); err != nil {
			schemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}
		compiledSchema, schemaErr = compiler.Compile(schemaURL)
	})
	return compiledSchema, schemaErr
}

// Validate checks raw fixture JSON against the fixture schema.
func Validate(data []byte) error {
	schema, err := loadSchema()
	if err != nil {
		return err
	}
	var instance any
	if err := json.Unmarshal(data, &instance); err != nil {
		return fmt.Errorf("unmarshal fixture: %w", err)
	}
	if err := schema.Validate(instance); err != nil {
		return fmt.Errorf("fixture schema: %w", err)
	}
	return nil
}

// #endregion schema

// #region fixture-loader

// LoadFixture reads, validates and parses a JSON fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	f, err := ParseFixture(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// ParseFixture validates and parses fixture JSON.
func ParseFixture(data []byte) (*Fixture, error) {
	if err := Validate(data); err != nil {
		return nil, err
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture: %w", err)
	}
	if f.Profile != nil {
		if f.Profile.Sensitivity == "" {
			f.Profile.Sensitivity = profile.SensitivityHigh
		}
		if err := f.Profile.Validate(); err != nil {
			return nil, err
		}
	}
	return &f, nil
}

// WriteFixture encodes f as indented JSON.
func WriteFixture(path string, f *Fixture) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal fixture: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write fixture %s: %w", path, err)
	}
	return nil
}

// #endregion fixture-loader

// #region journal-export

// FromJournal rebuilds a fixture from journaled events in the order given.
// Exported steps carry no expectations.
func FromJournal(description, userID string, records []state.JournalRecord) (*Fixture, error) {
	f := &Fixture{Description: description, UserID: userID}
	for _, rec := range records {
		var ev orchestrator.Event
		if err := json.Unmarshal([]byte(rec.Payload), &ev); err != nil {
			return nil, fmt.Errorf("event %d: %w", rec.Seq, err)
		}
		if string(ev.Kind) != rec.Kind {
			return nil, fmt.Errorf("event %d: kind %q does not match payload %q", rec.Seq, rec.Kind, ev.Kind)
		}
		f.Steps = append(f.Steps, Step{Event: ev})
	}
	if len(f.Steps) == 0 {
		return nil, errors.New("no events to export")
	}
	return f, nil
}

// #endregion journal-export
