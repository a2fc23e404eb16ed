package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/trigger-guard/internal/decision"
	"github.com/danielpatrickdp/trigger-guard/internal/detection"
	"github.com/danielpatrickdp/trigger-guard/internal/logging"
	"github.com/danielpatrickdp/trigger-guard/internal/observe"
	"github.com/danielpatrickdp/trigger-guard/internal/orchestrator"
	"github.com/danielpatrickdp/trigger-guard/internal/state"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// #region helpers

type testServer struct {
	router  *gin.Engine
	manager *orchestrator.Manager
	reg     *observe.Registry
}

func newTestServer(t *testing.T, withStore bool) *testServer {
	t.Helper()
	reg := observe.NewRegistry("triggerguard")
	opts := orchestrator.ManagerOptions{Recorder: reg, Logger: logging.NewNop()}
	var history AdjustmentLister
	if withStore {
		store, err := state.NewStore(filepath.Join(t.TempDir(), "api.db"))
		require.NoError(t, err)
		t.Cleanup(func() { store.Close() })
		opts.Store = store
		opts.Journal = store
		history = store
	}
	m := orchestrator.NewManager(opts)
	r := NewRouter(Options{Manager: m, History: history, Metrics: reg.HTTPHandler(), Logger: logging.NewNop()})
	return &testServer{router: r, manager: m, reg: reg}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func (ts *testServer) open(t *testing.T, user string) string {
	t.Helper()
	w := ts.do(t, http.MethodPost, "/v1/sessions", map[string]string{"user_id": user})
	require.Equal(t, http.StatusCreated, w.Code)
	return decode[map[string]any](t, w)["session_id"].(string)
}

// #endregion helpers

// #region tests

func TestHealthz(t *testing.T) {
	ts := newTestServer(t, false)
	ts.open(t, "u1")
	w := ts.do(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[map[string]any](t, w)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, 1.0, body["sessions"])
}

func TestDetectionFlow(t *testing.T) {
	ts := newTestServer(t, false)
	id := ts.open(t, "u1")

	d := detection.Detection{Source: detection.SourceAudioWaveform, Category: detection.Explosions, Timestamp: 10, Confidence: 85}
	w := ts.do(t, http.MethodPost, "/v1/sessions/"+id+"/detections", d)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode[ingestResponse](t, w)
	assert.Equal(t, decision.ActionEmit, res.Action)
	require.NotNil(t, res.Warning)

	w = ts.do(t, http.MethodGet, "/v1/sessions/"+id+"/warnings", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Epoch    uint64             `json:"epoch"`
		Warnings []decision.Warning `json:"warnings"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Warnings, 1)
	assert.Equal(t, res.Warning.ID, list.Warnings[0].ID)

	w = ts.do(t, http.MethodPost, "/v1/sessions/"+id+"/seek", map[string]float64{"seek_to": 0})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1.0, decode[map[string]any](t, w)["epoch"])

	w = ts.do(t, http.MethodGet, "/v1/sessions/"+id+"/warnings", nil)
	assert.Contains(t, w.Body.String(), `"warnings":[]`)

	w = ts.do(t, http.MethodPost, "/v1/sessions/"+id+"/media", map[string]string{"media_id": "episode-2"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2.0, decode[map[string]any](t, w)["epoch"])

	assert.Equal(t, uint64(1), ts.reg.Count(observe.CounterEmitted, detection.Explosions))
}

func TestDetectionErrors(t *testing.T) {
	ts := newTestServer(t, false)
	id := ts.open(t, "u1")

	w := ts.do(t, http.MethodPost, "/v1/sessions/nope/detections",
		detection.Detection{Source: detection.SourceVisual, Category: detection.Blood, Timestamp: 1, Confidence: 50})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = ts.do(t, http.MethodPost, "/v1/sessions/"+id+"/detections",
		detection.Detection{Source: detection.SourceVisual, Category: "kittens", Timestamp: 1, Confidence: 50})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/v1/sessions/"+id+"/detections", strings.NewReader("{"))
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	w = ts.do(t, http.MethodPost, "/v1/sessions/"+id+"/seek", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code, "seek_to is required")

	w = ts.do(t, http.MethodDelete, "/v1/sessions/"+id, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = ts.do(t, http.MethodDelete, "/v1/sessions/"+id, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestFeedbackAndHistory(t *testing.T) {
	ts := newTestServer(t, true)
	id := ts.open(t, "viewer-9")

	w := ts.do(t, http.MethodPost, "/v1/sessions/"+id+"/feedback",
		map[string]any{"category": "blood", "kind": "sensitivity_decreased"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	adj := decode[adjustmentView](t, w)
	assert.Equal(t, 65.0, adj.Old)
	assert.InDelta(t, 66.0, adj.New, 0.001)

	w = ts.do(t, http.MethodPost, "/v1/sessions/"+id+"/feedback",
		map[string]any{"category": "blood", "kind": "shrug"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = ts.do(t, http.MethodGet, "/v1/users/viewer-9/adjustments?limit=10", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var hist struct {
		Adjustments []adjustmentView `json:"adjustments"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &hist))
	require.Len(t, hist.Adjustments, 1)
	assert.Equal(t, "sensitivity_decreased", hist.Adjustments[0].Feedback)

	w = ts.do(t, http.MethodGet, "/v1/users/viewer-9/adjustments?limit=x", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdjustmentsWithoutStore(t *testing.T) {
	ts := newTestServer(t, false)
	w := ts.do(t, http.MethodGet, "/v1/users/u/adjustments", nil)
	assert.Equal(t, http.StatusNotImplemented, w.Code)
}

func TestThresholdsRoundTrip(t *testing.T) {
	ts := newTestServer(t, true)

	w := ts.do(t, http.MethodPut, "/v1/users/u7/thresholds", map[string]float64{"spiders": 30, "gore": 80})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = ts.do(t, http.MethodGet, "/v1/users/u7/thresholds", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Thresholds map[detection.Category]float64 `json:"thresholds"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 40.0, body.Thresholds[detection.Spiders], "clamped to min")
	assert.Equal(t, 80.0, body.Thresholds[detection.Gore])
	assert.Equal(t, 65.0, body.Thresholds[detection.Blood])

	w = ts.do(t, http.MethodPut, "/v1/users/u7/thresholds", map[string]float64{"kittens": 50})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "kittens")
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, false)
	id := ts.open(t, "u1")
	ts.do(t, http.MethodPost, "/v1/sessions/"+id+"/detections",
		detection.Detection{Source: detection.SourceAudioWaveform, Category: detection.Explosions, Timestamp: 10, Confidence: 85})

	w := ts.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "warnings_emitted_total")
}

// #endregion tests
