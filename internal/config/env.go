package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "TRIGGERGUARD_"

// LoadDotEnv loads dir/.env into the process environment when present.
// Variables already set are not overwritten.
func LoadDotEnv(dir string) error {
	path := filepath.Join(dir, ".env")
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// ApplyEnvOverrides sets fields from TRIGGERGUARD_* variables found by
// lookup. Unparseable numbers are an error.
func (c *Config) ApplyEnvOverrides(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"HTTP_BIND":      &c.Server.HTTPBind,
		"GRPC_BIND":      &c.Server.GRPCBind,
		"LOCK_PATH":      &c.Server.LockPath,
		"BACKEND":        &c.Storage.Backend,
		"SQLITE_PATH":    &c.Storage.SQLitePath,
		"MONGO_URI":      &c.Storage.MongoURI,
		"MONGO_DATABASE": &c.Storage.MongoDatabase,
		"LOG_LEVEL":      &c.Logging.Level,
		"LOG_FORMAT":     &c.Logging.Format,
		"PROFILE":        &c.Profile.Path,
	}
	for key, dst := range strs {
		if v, ok := lookup(EnvPrefix + key); ok {
			*dst = v
		}
	}

	floats := map[string]*float64{
		"LEARNER_RATE":    &c.Learner.Rate,
		"LEARNER_DEFAULT": &c.Learner.Default,
		"FUSION_WINDOW":   &c.Pipeline.FusionWindowSeconds,
	}
	for key, dst := range floats {
		v, ok := lookup(EnvPrefix + key)
		if !ok {
			continue
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
		}
		*dst = f
	}

	if v, ok := lookup(EnvPrefix + "PLUGINS"); ok {
		c.Pipeline.Plugins = strings.Split(v, ",")
	}
	if v, ok := lookup(EnvPrefix + "PROFILE_WATCH"); ok {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%sPROFILE_WATCH: %w", EnvPrefix, err)
		}
		c.Profile.Watch = b
	}
	return nil
}
