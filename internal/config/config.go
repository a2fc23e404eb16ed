// Package config loads the triggerd and triggerctl TOML configuration.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/danielpatrickdp/trigger-guard/internal/decision"
	"github.com/danielpatrickdp/trigger-guard/internal/logging"
	"github.com/danielpatrickdp/trigger-guard/internal/orchestrator"
	"github.com/danielpatrickdp/trigger-guard/internal/signals"
	"github.com/danielpatrickdp/trigger-guard/internal/threshold"
)

// Server holds listener and process settings.
type Server struct {
	HTTPBind               string `toml:"http_bind"`
	GRPCBind               string `toml:"grpc_bind"`
	LockPath               string `toml:"lock_path"`
	ShutdownTimeoutSeconds int    `toml:"shutdown_timeout_seconds"`
}

// Storage selects and configures the threshold store.
type Storage struct {
	Backend               string `toml:"backend"` // "sqlite" or "mongo"
	SQLitePath            string `toml:"sqlite_path"`
	MongoURI              string `toml:"mongo_uri"`
	MongoDatabase         string `toml:"mongo_database"`
	PersistTimeoutSeconds int    `toml:"persist_timeout_seconds"`
}

// Pipeline holds the tunable pipeline windows, in media seconds.
type Pipeline struct {
	FusionWindowSeconds   float64  `toml:"fusion_window_seconds"`
	HistoryHorizonSeconds float64  `toml:"history_horizon_seconds"`
	NeighborWindowSeconds float64  `toml:"neighbor_window_seconds"`
	CorrelationWindow     float64  `toml:"correlation_window_seconds"`
	MergeWindowSeconds    float64  `toml:"merge_window_seconds"`
	MinGapSeconds         float64  `toml:"min_gap_seconds"`
	WarningSpanSeconds    float64  `toml:"warning_span_seconds"`
	MaxPluginAdjustment   float64  `toml:"max_plugin_adjustment"`
	Plugins               []string `toml:"plugins"`
}

// Learner holds the threshold learning parameters.
type Learner struct {
	Rate              float64 `toml:"rate"`
	Min               float64 `toml:"min"`
	Max               float64 `toml:"max"`
	Default           float64 `toml:"default"`
	StabilityEpsilon  float64 `toml:"stability_epsilon"`
	ConvergenceWindow int     `toml:"convergence_window"`
}

// Logging configures the process logger.
type Logging struct {
	Level       string   `toml:"level"`
	Format      string   `toml:"format"`
	OutputPaths []string `toml:"output_paths"`
	Development bool     `toml:"development"`
}

// Profile points at the viewer profile file.
type Profile struct {
	Path  string `toml:"path"`
	Watch bool   `toml:"watch"`
}

// Config is the full configuration file.
type Config struct {
	Server   Server   `toml:"server"`
	Storage  Storage  `toml:"storage"`
	Pipeline Pipeline `toml:"pipeline"`
	Learner  Learner  `toml:"learner"`
	Logging  Logging  `toml:"logging"`
	Profile  Profile  `toml:"profile"`
}

// DefaultConfigPath returns the absolute path of the default config file.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load reads path (or the default location when empty), applies .env and
// environment overrides, then normalizes and validates. A missing file is
// not an error; defaults are used. The resolved path and whether it existed
// are returned alongside.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := LoadDotEnv(filepath.Dir(resolvedPath)); err != nil {
		return nil, "", false, err
	}
	if err := cfg.ApplyEnvOverrides(os.LookupEnv); err != nil {
		return nil, "", false, err
	}
	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}
	return &cfg, resolvedPath, exists, nil
}

// Marshal encodes c as TOML.
func Marshal(c Config) ([]byte, error) {
	return toml.Marshal(c)
}

func resolveConfigPath(path string) (string, bool, error) {
	if path == "" {
		path = defaultConfigPath
	}
	expanded, err := expandPath(path)
	if err != nil {
		return "", false, err
	}
	info, err := os.Stat(expanded)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return expanded, false, nil
		}
		return "", false, fmt.Errorf("stat config: %w", err)
	}
	if info.IsDir() {
		return "", false, fmt.Errorf("config path %q is a directory", expanded)
	}
	return expanded, true, nil
}

// EnsureDirectories creates the parent directories of the lock, database
// and profile files.
func (c *Config) EnsureDirectories() error {
	dirs := []string{filepath.Dir(c.Server.LockPath), filepath.Dir(c.Profile.Path)}
	if c.Storage.Backend == BackendSQLite && c.Storage.SQLitePath != ":memory:" {
		dirs = append(dirs, filepath.Dir(c.Storage.SQLitePath))
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// #region conversions

// PipelineConfig builds the session stage configuration.
func (c *Config) PipelineConfig() orchestrator.Config {
	pc := orchestrator.DefaultConfig()
	pc.FusionWindow = c.Pipeline.FusionWindowSeconds
	pc.Window.HorizonSeconds = c.Pipeline.HistoryHorizonSeconds
	pc.Regularizer.NeighborWindow = c.Pipeline.NeighborWindowSeconds
	pc.Validator.CorrelationWindow = c.Pipeline.CorrelationWindow
	pc.Producer.MaxTotal = c.Pipeline.MaxPluginAdjustment
	pc.Decider = decision.DeciderConfig{
		MergeWindow: c.Pipeline.MergeWindowSeconds,
		MinGap:      c.Pipeline.MinGapSeconds,
		WarningSpan: c.Pipeline.WarningSpanSeconds,
	}
	return pc
}

// Plugins returns the enabled confidence-adjustment plugins.
func (c *Config) Plugins() ([]signals.Plugin, error) {
	return signals.PluginsByName(c.Pipeline.Plugins)
}

// ThresholdConfig builds the learner configuration.
func (c *Config) ThresholdConfig() threshold.Config {
	tc := threshold.DefaultConfig()
	tc.Rate = c.Learner.Rate
	tc.Min = c.Learner.Min
	tc.Max = c.Learner.Max
	tc.Default = c.Learner.Default
	tc.StabilityEpsilon = c.Learner.StabilityEpsilon
	tc.ConvergenceWindow = c.Learner.ConvergenceWindow
	return tc
}

// LoggingOptions builds the logger options.
func (c *Config) LoggingOptions() logging.Options {
	return logging.Options{
		Level:       c.Logging.Level,
		Format:      c.Logging.Format,
		OutputPaths: c.Logging.OutputPaths,
		Development: c.Logging.Development,
	}
}

// PersistTimeout returns the per-call store timeout.
func (c *Config) PersistTimeout() time.Duration {
	return time.Duration(c.Storage.PersistTimeoutSeconds) * time.Second
}

// ShutdownTimeout returns how long servers get to drain.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownTimeoutSeconds) * time.Second
}

// #endregion conversions

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}

// ExpandPath exposes the path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}
