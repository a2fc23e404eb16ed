package config

import (
	"errors"
	"fmt"

	"github.com/danielpatrickdp/trigger-guard/internal/signals"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateLearner(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateServer() error {
	if c.Server.HTTPBind == "" && c.Server.GRPCBind == "" {
		return errors.New("server: at least one of http_bind or grpc_bind must be set")
	}
	return nil
}

func (c *Config) validateStorage() error {
	switch c.Storage.Backend {
	case BackendSQLite:
		return nil
	case BackendMongo:
		if c.Storage.MongoURI == "" {
			return errors.New("storage.mongo_uri is required for the mongo backend. Set TRIGGERGUARD_MONGO_URI or edit the config file")
		}
		return nil
	}
	return fmt.Errorf("storage.backend must be %q or %q, got %q", BackendSQLite, BackendMongo, c.Storage.Backend)
}

func (c *Config) validatePipeline() error {
	p := c.Pipeline
	windows := []struct {
		name  string
		value float64
	}{
		{"fusion_window_seconds", p.FusionWindowSeconds},
		{"history_horizon_seconds", p.HistoryHorizonSeconds},
		{"neighbor_window_seconds", p.NeighborWindowSeconds},
		{"correlation_window_seconds", p.CorrelationWindow},
		{"merge_window_seconds", p.MergeWindowSeconds},
		{"warning_span_seconds", p.WarningSpanSeconds},
	}
	for _, w := range windows {
		if w.value <= 0 {
			return fmt.Errorf("pipeline.%s must be positive", w.name)
		}
	}
	if p.MinGapSeconds < 0 {
		return errors.New("pipeline.min_gap_seconds must not be negative")
	}
	if p.FusionWindowSeconds > p.HistoryHorizonSeconds {
		return errors.New("pipeline.fusion_window_seconds must not exceed history_horizon_seconds")
	}
	if p.MaxPluginAdjustment < 0 || p.MaxPluginAdjustment > 50 {
		return errors.New("pipeline.max_plugin_adjustment must be between 0 and 50")
	}
	if _, err := signals.PluginsByName(p.Plugins); err != nil {
		return fmt.Errorf("pipeline.plugins: %w", err)
	}
	return nil
}

func (c *Config) validateLearner() error {
	l := c.Learner
	if l.Rate <= 0 || l.Rate > 1 {
		return errors.New("learner.rate must be in (0, 1]")
	}
	if l.Min < 0 || l.Max > 100 || l.Min >= l.Max {
		return errors.New("learner.min and learner.max must satisfy 0 <= min < max <= 100")
	}
	if l.Default < l.Min || l.Default > l.Max {
		return errors.New("learner.default must lie between learner.min and learner.max")
	}
	if l.StabilityEpsilon <= 0 {
		return errors.New("learner.stability_epsilon must be positive")
	}
	if l.ConvergenceWindow < 1 {
		return errors.New("learner.convergence_window must be at least 1")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format %q is not console or json", c.Logging.Format)
	}
	return nil
}
