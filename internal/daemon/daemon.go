// Package daemon runs triggerd: it owns the store, the session manager and
// both listeners, and holds a file lock so only one instance serves a
// state directory.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"

	"github.com/danielpatrickdp/trigger-guard/internal/api"
	"github.com/danielpatrickdp/trigger-guard/internal/config"
	"github.com/danielpatrickdp/trigger-guard/internal/logging"
	"github.com/danielpatrickdp/trigger-guard/internal/mongostore"
	"github.com/danielpatrickdp/trigger-guard/internal/observe"
	"github.com/danielpatrickdp/trigger-guard/internal/orchestrator"
	"github.com/danielpatrickdp/trigger-guard/internal/profile"
	"github.com/danielpatrickdp/trigger-guard/internal/rpc"
	"github.com/danielpatrickdp/trigger-guard/internal/state"
)

// #region types

// thresholdBackend is what the daemon needs from either store.
type thresholdBackend interface {
	orchestrator.ThresholdStore
	api.AdjustmentLister
}

// Daemon wires configuration into running servers.
type Daemon struct {
	cfg    *config.Config
	base   *slog.Logger
	logger *slog.Logger

	lock     *flock.Flock
	lockPath string

	store    thresholdBackend
	closer   func(context.Context) error
	profiles *profile.Watcher
	metrics  *observe.Registry
	manager  *orchestrator.Manager

	httpServer *http.Server
	httpLn     net.Listener
	grpcServer *grpc.Server
	grpcLn     net.Listener
	health     *health.Server

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// #endregion types

// #region lifecycle

// New opens the configured store and builds the session manager. Nothing
// listens until Start.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("daemon requires a config")
	}
	if logger == nil {
		logger = slog.Default()
	}
	d := &Daemon{
		cfg:      cfg,
		base:     logger,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		lockPath: cfg.Server.LockPath,
		lock:     flock.New(cfg.Server.LockPath),
		metrics:  observe.NewRegistry("triggerguard"),
	}

	var journal orchestrator.Journal
	switch cfg.Storage.Backend {
	case config.BackendMongo:
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		ms, err := mongostore.Connect(connectCtx, cfg.Storage.MongoURI, cfg.Storage.MongoDatabase)
		if err != nil {
			return nil, fmt.Errorf("connect mongo: %w", err)
		}
		d.store = ms
		d.closer = ms.Close
	default:
		ss, err := state.NewStore(cfg.Storage.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		d.store = ss
		d.closer = func(context.Context) error { return ss.Close() }
		journal = ss
	}

	watcher, err := profile.NewWatcher(cfg.Profile.Path, logger)
	if err != nil {
		_ = d.closer(ctx)
		return nil, fmt.Errorf("load profile: %w", err)
	}
	d.profiles = watcher

	plugins, err := cfg.Plugins()
	if err != nil {
		_ = d.closer(ctx)
		return nil, err
	}

	d.manager = orchestrator.NewManager(orchestrator.ManagerOptions{
		Config:    cfg.PipelineConfig(),
		Threshold: cfg.ThresholdConfig(),
		Store:     d.store,
		Journal:   journal,
		Profiles:  watcher,
		Plugins:   plugins,
		Recorder:  d.metrics,
		Logger:    logger,

		PersistTimeout: cfg.PersistTimeout(),
	})
	return d, nil
}

// Start acquires the instance lock and begins serving.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another triggerd instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	if d.cfg.Profile.Watch {
		if err := d.profiles.Watch(runCtx); err != nil {
			logging.WarnWithContext(d.logger, "profile watch unavailable", "profile_watch_unavailable",
				logging.String(logging.FieldErrorHint, "check the profile directory exists"),
				logging.String(logging.FieldImpact, "profile edits need a restart"),
				logging.Error(err))
		}
	}

	if err := d.listen(); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return err
	}
	d.cancel = cancel
	d.serve()

	d.running.Store(true)
	d.logger.Info("triggerd started",
		logging.String("lock", d.lockPath),
		logging.String("http", d.HTTPAddr()),
		logging.String("grpc", d.GRPCAddr()),
		logging.String("backend", d.cfg.Storage.Backend))
	return nil
}

// Stop drains both servers, closes every session and releases the lock.
func (d *Daemon) Stop(ctx context.Context) {
	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}

	if d.httpServer != nil {
		if err := d.httpServer.Shutdown(ctx); err != nil {
			d.logger.Warn("http shutdown", logging.Error(err))
		}
	}
	if d.grpcServer != nil {
		d.health.Shutdown()
		stopped := make(chan struct{})
		go func() {
			d.grpcServer.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-ctx.Done():
			d.grpcServer.Stop()
		}
	}
	d.wg.Wait()

	d.manager.CloseAll()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("triggerd stopped")
}

// Close stops the daemon and closes the store.
func (d *Daemon) Close(ctx context.Context) error {
	d.Stop(ctx)
	if d.closer != nil {
		return d.closer(ctx)
	}
	return nil
}

// Run starts the daemon and blocks until ctx is cancelled.
func Run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	d, err := New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if err := d.Start(ctx); err != nil {
		_ = d.Close(context.Background())
		return err
	}
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer cancel()
	return d.Close(shutdownCtx)
}

// #endregion lifecycle

// #region servers

func (d *Daemon) listen() error {
	if bind := d.cfg.Server.HTTPBind; bind != "" {
		ln, err := net.Listen("tcp", bind)
		if err != nil {
			return fmt.Errorf("listen http %s: %w", bind, err)
		}
		d.httpLn = ln
		d.httpServer = &http.Server{
			Handler: api.NewRouter(api.Options{
				Manager: d.manager,
				History: d.store,
				Metrics: d.metrics.HTTPHandler(),
				Logger:  d.base,
			}),
			ReadHeaderTimeout: 5 * time.Second,
		}
	}
	if bind := d.cfg.Server.GRPCBind; bind != "" {
		ln, err := net.Listen("tcp", bind)
		if err != nil {
			if d.httpLn != nil {
				d.httpLn.Close()
			}
			return fmt.Errorf("listen grpc %s: %w", bind, err)
		}
		d.grpcLn = ln
		d.grpcServer = grpc.NewServer(grpc.UnaryInterceptor(rpc.UnaryLogger(d.base)))
		d.health = rpc.NewServer(d.manager, d.base).Register(d.grpcServer)
	}
	return nil
}

func (d *Daemon) serve() {
	if d.httpServer != nil {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			if err := d.httpServer.Serve(d.httpLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
				d.logger.Error("http server stopped", logging.Error(err))
			}
		}()
	}
	if d.grpcServer != nil {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			if err := d.grpcServer.Serve(d.grpcLn); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				d.logger.Error("grpc server stopped", logging.Error(err))
			}
		}()
	}
}

// HTTPAddr is the bound HTTP address, or "" when HTTP is disabled.
func (d *Daemon) HTTPAddr() string {
	if d.httpLn == nil {
		return ""
	}
	return d.httpLn.Addr().String()
}

// GRPCAddr is the bound gRPC address, or "" when gRPC is disabled.
func (d *Daemon) GRPCAddr() string {
	if d.grpcLn == nil {
		return ""
	}
	return d.grpcLn.Addr().String()
}

// Manager exposes the session manager.
func (d *Daemon) Manager() *orchestrator.Manager { return d.manager }

// #endregion servers
