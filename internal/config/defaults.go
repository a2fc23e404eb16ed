package config

const (
	defaultConfigPath             = "~/.config/trigger-guard/config.toml"
	defaultHTTPBind               = "127.0.0.1:7610"
	defaultGRPCBind               = "127.0.0.1:7611"
	defaultLockPath               = "~/.local/share/trigger-guard/triggerd.lock"
	defaultShutdownTimeoutSeconds = 10
	defaultBackend                = BackendSQLite
	defaultSQLitePath             = "~/.local/share/trigger-guard/state.db"
	defaultMongoDatabase          = "trigger_guard"
	defaultPersistTimeoutSeconds  = 5
	defaultLogLevel               = "info"
	defaultLogFormat              = "console"
	defaultProfilePath            = "~/.config/trigger-guard/profile.yaml"
)

// Storage backends.
const (
	BackendSQLite = "sqlite"
	BackendMongo  = "mongo"
)

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Server: Server{
			HTTPBind:               defaultHTTPBind,
			GRPCBind:               defaultGRPCBind,
			LockPath:               defaultLockPath,
			ShutdownTimeoutSeconds: defaultShutdownTimeoutSeconds,
		},
		Storage: Storage{
			Backend:               defaultBackend,
			SQLitePath:            defaultSQLitePath,
			MongoDatabase:         defaultMongoDatabase,
			PersistTimeoutSeconds: defaultPersistTimeoutSeconds,
		},
		Pipeline: Pipeline{
			FusionWindowSeconds:   1,
			HistoryHorizonSeconds: 10,
			NeighborWindowSeconds: 5,
			CorrelationWindow:     3,
			MergeWindowSeconds:    2,
			MinGapSeconds:         3,
			WarningSpanSeconds:    5,
			MaxPluginAdjustment:   10,
			Plugins:               []string{"night_mode", "stress_mode", "caption_quality"},
		},
		Learner: Learner{
			Rate:              0.1,
			Min:               40,
			Max:               95,
			Default:           65,
			StabilityEpsilon:  2,
			ConvergenceWindow: 5,
		},
		Logging: Logging{
			Level:       defaultLogLevel,
			Format:      defaultLogFormat,
			OutputPaths: []string{"stderr"},
		},
		Profile: Profile{
			Path:  defaultProfilePath,
			Watch: true,
		},
	}
}
