package rpc

import (
	"context"
	"net"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/danielpatrickdp/trigger-guard/internal/decision"
	"github.com/danielpatrickdp/trigger-guard/internal/detection"
	"github.com/danielpatrickdp/trigger-guard/internal/logging"
	"github.com/danielpatrickdp/trigger-guard/internal/orchestrator"
	"github.com/danielpatrickdp/trigger-guard/internal/state"
	"github.com/danielpatrickdp/trigger-guard/internal/threshold"
)

// #region harness

type harness struct {
	client  *Client
	conn    *grpc.ClientConn
	manager *orchestrator.Manager
	store   *state.Store
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	store, err := state.NewStore(filepath.Join(t.TempDir(), "rpc.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	manager := orchestrator.NewManager(orchestrator.ManagerOptions{
		Store:   store,
		Journal: store,
		Logger:  logging.NewNop(),
	})

	lis := bufconn.Listen(1 << 20)
	gs := grpc.NewServer(grpc.UnaryInterceptor(UnaryLogger(logging.NewNop())))
	NewServer(manager, logging.NewNop()).Register(gs)
	go gs.Serve(lis)
	t.Cleanup(gs.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return &harness{client: NewClientWithConn(conn), conn: conn, manager: manager, store: store}
}

func explosion(ts, conf float64) detection.Detection {
	return detection.Detection{Source: detection.SourceAudioWaveform, Category: detection.Explosions, Timestamp: ts, Confidence: conf}
}

// #endregion harness

// #region tests

func TestHealthServing(t *testing.T) {
	h := newHarness(t)
	resp, err := healthpb.NewHealthClient(h.conn).Check(context.Background(),
		&healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)
}

func TestIngestEmitsThenDeduplicates(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	id, err := h.client.OpenSession(ctx, "viewer-1")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	first, err := h.client.Ingest(ctx, id, explosion(10, 85))
	require.NoError(t, err)
	assert.Equal(t, decision.ActionEmit, first.Action)
	require.NotNil(t, first.Warning)
	assert.Equal(t, detection.Explosions, first.Warning.Category)
	assert.Equal(t, 10.0, first.Warning.StartTime)
	assert.GreaterOrEqual(t, first.Confidence, 65.0)
	assert.Equal(t, first.Warning.Confidence, first.Confidence)
	assert.Equal(t, 65.0, first.Threshold)

	second, err := h.client.Ingest(ctx, id, detection.Detection{
		Source: detection.SourceAudioFrequency, Category: detection.Explosions, Timestamp: 10.5, Confidence: 85,
	})
	require.NoError(t, err)
	assert.Equal(t, decision.ActionSuppress, second.Action)
	assert.Equal(t, decision.ReasonDuplicateKey, second.Reason)
	assert.Nil(t, second.Warning)
}

func TestIngestErrorCodes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.client.Ingest(ctx, "", explosion(1, 50))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = h.client.Ingest(ctx, "missing", explosion(1, 50))
	assert.Equal(t, codes.NotFound, status.Code(err))

	id, err := h.client.OpenSession(ctx, "viewer-1")
	require.NoError(t, err)
	_, err = h.client.Ingest(ctx, id, explosion(1, 150))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	epoch, err := h.client.Seek(ctx, id, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), epoch)

	unstamped := explosion(2, 80)
	unstamped.Epoch = 0
	_, err = h.client.Ingest(ctx, id, unstamped)
	assert.NoError(t, err, "unstamped detections are accepted")

	require.NoError(t, h.client.CloseSession(ctx, id))
	_, err = h.client.Ingest(ctx, id, explosion(3, 80))
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestStaleEpochOutOfRange(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	id, err := h.client.OpenSession(ctx, "viewer-1")
	require.NoError(t, err)
	_, err = h.client.MediaChanged(ctx, id, "episode-2")
	require.NoError(t, err)
	epoch, err := h.client.MediaChanged(ctx, id, "episode-3")
	require.NoError(t, err)
	require.Equal(t, uint64(2), epoch)

	d := explosion(5, 90)
	d.Epoch = 1
	_, err = h.client.Ingest(ctx, id, d)
	assert.Equal(t, codes.OutOfRange, status.Code(err))
}

func TestFeedbackPersists(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	id, err := h.client.OpenSession(ctx, "viewer-2")
	require.NoError(t, err)

	resp, err := h.client.Feedback(ctx, id, threshold.Feedback{
		Category: detection.Blood, Kind: threshold.FeedbackReportedMissed,
	})
	require.NoError(t, err)
	assert.Equal(t, 65.0, resp.Old)
	assert.InDelta(t, 64.0, resp.New, 0.001)

	records, err := h.store.LoadThresholds(ctx, "viewer-2")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.InDelta(t, 64.0, records[0].Current, 0.001)

	_, err = h.client.Feedback(ctx, id, threshold.Feedback{Category: "kittens", Kind: threshold.FeedbackDismissed})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestDiscontinuityUnknownKind(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id, err := h.client.OpenSession(ctx, "viewer-1")
	require.NoError(t, err)

	err = h.client.invoke(ctx, "Discontinuity", DiscontinuityRequest{SessionID: id, Kind: "rewind"}, &DiscontinuityResponse{})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestThresholdsExportImport(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	got, err := h.client.ImportThresholds(ctx, "viewer-3", map[detection.Category]float64{
		detection.Spiders: 99,
		detection.Blood:   50,
	})
	require.NoError(t, err)
	assert.Equal(t, 95.0, got[detection.Spiders], "clamped to max")
	assert.Equal(t, 50.0, got[detection.Blood])

	exported, err := h.client.ExportThresholds(ctx, "viewer-3")
	require.NoError(t, err)
	assert.Len(t, exported, len(detection.AllCategories()))
	assert.Equal(t, 65.0, exported[detection.Gore])

	_, err = h.client.ImportThresholds(ctx, "viewer-3", map[detection.Category]float64{"kittens": 70, detection.Gore: 70})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
	assert.Equal(t, 70.0, h.manager.ExportThresholds(ctx, "viewer-3")[detection.Gore], "known categories still applied")
}

func TestStructCodecRoundTrip(t *testing.T) {
	in := IngestRequest{SessionID: "s", Detection: detection.Detection{
		Source: detection.SourceText, Category: detection.SwearWords, Timestamp: 3.25, Confidence: 61.5,
		Metadata: map[string]string{"auto_generated_captions": "true"}, Epoch: 4,
	}}
	s, err := toStruct(in)
	require.NoError(t, err)
	assert.Equal(t, "s", s.Fields["session_id"].GetStringValue())

	var out IngestRequest
	require.NoError(t, fromStruct(s, &out))
	assert.Equal(t, in, out)
}

// #endregion tests
