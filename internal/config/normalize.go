package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizeServer(); err != nil {
		return err
	}
	if err := c.normalizeStorage(); err != nil {
		return err
	}
	if err := c.normalizeProfile(); err != nil {
		return err
	}
	c.normalizePipeline()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizeServer() error {
	c.Server.HTTPBind = strings.TrimSpace(c.Server.HTTPBind)
	c.Server.GRPCBind = strings.TrimSpace(c.Server.GRPCBind)
	if strings.TrimSpace(c.Server.LockPath) == "" {
		c.Server.LockPath = defaultLockPath
	}
	var err error
	if c.Server.LockPath, err = expandPath(c.Server.LockPath); err != nil {
		return fmt.Errorf("server.lock_path: %w", err)
	}
	if c.Server.ShutdownTimeoutSeconds <= 0 {
		c.Server.ShutdownTimeoutSeconds = defaultShutdownTimeoutSeconds
	}
	return nil
}

func (c *Config) normalizeStorage() error {
	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	if c.Storage.Backend == "" {
		c.Storage.Backend = defaultBackend
	}
	if strings.TrimSpace(c.Storage.SQLitePath) == "" {
		c.Storage.SQLitePath = defaultSQLitePath
	}
	if c.Storage.SQLitePath != ":memory:" {
		var err error
		if c.Storage.SQLitePath, err = expandPath(c.Storage.SQLitePath); err != nil {
			return fmt.Errorf("storage.sqlite_path: %w", err)
		}
	}
	c.Storage.MongoURI = strings.TrimSpace(c.Storage.MongoURI)
	if strings.TrimSpace(c.Storage.MongoDatabase) == "" {
		c.Storage.MongoDatabase = defaultMongoDatabase
	}
	if c.Storage.PersistTimeoutSeconds <= 0 {
		c.Storage.PersistTimeoutSeconds = defaultPersistTimeoutSeconds
	}
	return nil
}

func (c *Config) normalizeProfile() error {
	if strings.TrimSpace(c.Profile.Path) == "" {
		c.Profile.Path = defaultProfilePath
	}
	var err error
	if c.Profile.Path, err = expandPath(c.Profile.Path); err != nil {
		return fmt.Errorf("profile.path: %w", err)
	}
	return nil
}

func (c *Config) normalizePipeline() {
	plugins := c.Pipeline.Plugins[:0]
	for _, p := range c.Pipeline.Plugins {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			plugins = append(plugins, p)
		}
	}
	c.Pipeline.Plugins = plugins
}

func (c *Config) normalizeLogging() {
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	if len(c.Logging.OutputPaths) == 0 {
		c.Logging.OutputPaths = []string{"stderr"}
	}
}
