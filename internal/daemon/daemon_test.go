package daemon

import (
	"context"
	"io"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/danielpatrickdp/trigger-guard/internal/config"
	"github.com/danielpatrickdp/trigger-guard/internal/logging"
	"github.com/danielpatrickdp/trigger-guard/internal/rpc"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Server.HTTPBind = "127.0.0.1:0"
	cfg.Server.GRPCBind = "127.0.0.1:0"
	cfg.Server.LockPath = filepath.Join(dir, "triggerd.lock")
	cfg.Storage.SQLitePath = filepath.Join(dir, "state.db")
	cfg.Profile.Path = filepath.Join(dir, "profile.yaml")
	require.NoError(t, cfg.Validate())
	return &cfg
}

func startDaemon(t *testing.T, cfg *config.Config) *Daemon {
	t.Helper()
	d, err := New(context.Background(), cfg, logging.NewNop())
	require.NoError(t, err)
	require.NoError(t, d.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = d.Close(ctx)
	})
	return d
}

func TestDaemonServesHTTPAndGRPC(t *testing.T) {
	d := startDaemon(t, testConfig(t))
	require.NotEmpty(t, d.HTTPAddr())
	require.NotEmpty(t, d.GRPCAddr())

	resp, err := http.Get("http://" + d.HTTPAddr() + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := grpc.NewClient(d.GRPCAddr(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()
	hc, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: rpc.ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, hc.Status)

	client := rpc.NewClientWithConn(conn)
	id, err := client.OpenSession(ctx, "viewer-1")
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, 1, d.Manager().Len())

	metrics, err := http.Get("http://" + d.HTTPAddr() + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(metrics.Body)
	metrics.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(body), "triggerguard_active_sessions 1")
}

func TestSecondInstanceIsLockedOut(t *testing.T) {
	cfg := testConfig(t)
	startDaemon(t, cfg)

	second, err := New(context.Background(), cfg, logging.NewNop())
	require.NoError(t, err)
	defer second.Close(context.Background())

	err = second.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already running")
}

func TestStopClosesSessionsAndReleasesLock(t *testing.T) {
	cfg := testConfig(t)
	d, err := New(context.Background(), cfg, logging.NewNop())
	require.NoError(t, err)
	require.NoError(t, d.Start(context.Background()))

	d.Manager().Open(context.Background(), "viewer-1", nil)
	require.Equal(t, 1, d.Manager().Len())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, d.Close(ctx))
	assert.Zero(t, d.Manager().Len())

	again := startDaemon(t, cfg)
	assert.NotEmpty(t, again.HTTPAddr())
}

func TestHTTPOnly(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.GRPCBind = ""
	d := startDaemon(t, cfg)
	assert.NotEmpty(t, d.HTTPAddr())
	assert.Empty(t, d.GRPCAddr())
}

func TestRunStopsOnCancel(t *testing.T) {
	cfg := testConfig(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Run(ctx, cfg, logging.NewNop()) }()

	time.Sleep(100 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
