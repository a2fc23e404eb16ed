package main

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/trigger-guard/internal/api"
	"github.com/danielpatrickdp/trigger-guard/internal/config"
	"github.com/danielpatrickdp/trigger-guard/internal/mongostore"
	"github.com/danielpatrickdp/trigger-guard/internal/orchestrator"
	"github.com/danielpatrickdp/trigger-guard/internal/state"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// thresholdStore is the part of either backend triggerctl reads and writes.
type thresholdStore interface {
	orchestrator.ThresholdStore
	api.AdjustmentLister
}

// withStore opens the configured threshold backend for the duration of fn.
func (c *commandContext) withStore(ctx context.Context, fn func(thresholdStore) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	if cfg.Storage.Backend == config.BackendMongo {
		ms, err := mongostore.Connect(ctx, cfg.Storage.MongoURI, cfg.Storage.MongoDatabase)
		if err != nil {
			return err
		}
		defer ms.Close(context.Background())
		return fn(ms)
	}
	return c.withJournal(func(s *state.Store) error { return fn(s) })
}

// withJournal opens the sqlite store. The event journal only exists there.
func (c *commandContext) withJournal(fn func(*state.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	if cfg.Storage.Backend != config.BackendSQLite {
		return errors.New("the event journal requires the sqlite storage backend")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}
	store, err := state.NewStore(cfg.Storage.SQLitePath)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store)
}

// withManager builds a manager over the configured store so exports and
// imports follow the same rules as the daemon.
func (c *commandContext) withManager(ctx context.Context, fn func(*orchestrator.Manager) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	return c.withStore(ctx, func(store thresholdStore) error {
		return fn(orchestrator.NewManager(orchestrator.ManagerOptions{
			Config:         cfg.PipelineConfig(),
			Threshold:      cfg.ThresholdConfig(),
			Store:          store,
			PersistTimeout: cfg.PersistTimeout(),
		}))
	})
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
