package restserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/chrissnell/capnograph/internal/pipeline"
	"github.com/chrissnell/capnograph/internal/storage/sqlite"
	"github.com/chrissnell/capnograph/internal/types"
	"github.com/chrissnell/capnograph/pkg/config"
)

type fakeLog struct {
	path string
	err  error
}

func (f *fakeLog) Rotate(path string) error {
	if f.err != nil {
		return f.err
	}
	if path == "" {
		path = "SaveLog.csv"
	}
	f.path = path
	return nil
}

func (f *fakeLog) Path() string { return f.path }

type fakeSessions []sqlite.Session

func (f fakeSessions) Sessions(context.Context) ([]sqlite.Session, error) { return f, nil }

func newTestServer(t *testing.T, backends Backends) (*Controller, *pipeline.Pipeline) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	logger := zaptest.NewLogger(t).Sugar()

	p := pipeline.New(pipeline.DefaultSettings(), nil, logger)
	p.Start(ctx, &wg)
	t.Cleanup(func() {
		cancel()
		wg.Wait()
	})

	backends.Pipeline = p
	ctrl, err := NewController(ctx, &wg, config.RESTServerData{}, backends, logger)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:8080", ctrl.Server.Addr)
	return ctrl, p
}

func do(t *testing.T, ctrl *Controller, method, target string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	var body *strings.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	} else {
		body = strings.NewReader("")
	}
	req := httptest.NewRequest(method, target, body)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	rec := httptest.NewRecorder()
	ctrl.Server.Handler.ServeHTTP(rec, req)
	return rec
}

func TestSnapshotAndHistory(t *testing.T) {
	ctrl, p := newTestServer(t, Backends{})

	base := time.Now()
	for i, v := range []float64{12, 15, 3} {
		require.NoError(t, p.Deliver(context.Background(), types.Sample{Channel: types.Flow, Timestamp: base.Add(time.Duration(i) * 50 * time.Millisecond), Value: v}))
	}

	var snap pipeline.Snapshot
	assert.Eventually(t, func() bool {
		rec := do(t, ctrl, http.MethodGet, "/api/v1/snapshot", nil)
		if rec.Code != http.StatusOK {
			return false
		}
		snap = pipeline.Snapshot{}
		return json.Unmarshal(rec.Body.Bytes(), &snap) == nil && snap.FlowSamples == 3
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, 1, snap.BreathCount)
	assert.InDelta(t, 27*5.0/6000.0, snap.LastBreathVolume, 1e-12)

	rec := do(t, ctrl, http.MethodGet, "/api/v1/history/flow", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var points []types.Point
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &points))
	assert.Len(t, points, 3)

	since := float64(base.Add(75*time.Millisecond).UnixNano()) / 1e9
	rec = do(t, ctrl, http.MethodGet, "/api/v1/history/flow?since="+strconv.FormatFloat(since, 'f', 6, 64), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	points = nil
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &points))
	require.Len(t, points, 1)
	assert.Equal(t, 3.0, points[0].Value)

	rec = do(t, ctrl, http.MethodGet, "/api/v1/history/flow?since=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, ctrl, http.MethodGet, "/api/v1/history/ratio", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = do(t, ctrl, http.MethodGet, "/api/v1/history/pressure", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPutSetting(t *testing.T) {
	ctrl, _ := newTestServer(t, Backends{})

	tests := []struct {
		name    string
		setting string
		value   string
		status  int
	}{
		{"flow trigger", "flow-trigger", "7.5", http.StatusOK},
		{"co2 trigger", "co2-trigger", "25000", http.StatusOK},
		{"history capacity", "history-capacity", "100", http.StatusOK},
		{"unparseable", "flow-trigger", "ten", http.StatusBadRequest},
		{"missing value", "flow-trigger", "", http.StatusBadRequest},
		{"non-finite", "co2-trigger", "NaN", http.StatusBadRequest},
		{"zero capacity", "history-capacity", "0", http.StatusBadRequest},
		{"fractional capacity", "history-capacity", "1.5", http.StatusBadRequest},
		{"unknown setting", "nominal-interval", "1", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, ctrl, http.MethodPut, "/api/v1/settings/"+tt.setting, url.Values{"value": {tt.value}})
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}

	rec := do(t, ctrl, http.MethodGet, "/api/v1/snapshot", nil)
	var snap pipeline.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, 7.5, snap.Settings.FlowTrigger)
	assert.Equal(t, 25000.0, snap.Settings.CO2Trigger)
	assert.Equal(t, 100, snap.Settings.HistoryCapacity)
}

func TestResetSession(t *testing.T) {
	ctrl, _ := newTestServer(t, Backends{})

	rec := do(t, ctrl, http.MethodPost, "/api/v1/session/reset", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	id, err := uuid.Parse(body["session_id"])
	require.NoError(t, err)

	rec = do(t, ctrl, http.MethodGet, "/api/v1/snapshot", nil)
	var snap pipeline.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, id, snap.SessionID)

	rec = do(t, ctrl, http.MethodGet, "/api/v1/session/reset", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestLogRotation(t *testing.T) {
	logs := &fakeLog{path: "SaveLog.csv"}
	ctrl, _ := newTestServer(t, Backends{Log: logs})

	rec := do(t, ctrl, http.MethodPost, "/api/v1/log/rotate", url.Values{"path": {"patient7.csv"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"path":"patient7.csv"}`, rec.Body.String())

	rec = do(t, ctrl, http.MethodGet, "/api/v1/log", nil)
	assert.JSONEq(t, `{"path":"patient7.csv"}`, rec.Body.String())

	rec = do(t, ctrl, http.MethodPost, "/api/v1/log/rotate", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, ctrl, http.MethodDelete, "/api/v1/log", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "SaveLog.csv", logs.path)

	logs.err = errors.New("disk full")
	rec = do(t, ctrl, http.MethodDelete, "/api/v1/log", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestOptionalBackends(t *testing.T) {
	ctrl, _ := newTestServer(t, Backends{})

	assert.Equal(t, http.StatusNotFound, do(t, ctrl, http.MethodGet, "/api/v1/sessions", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, ctrl, http.MethodGet, "/api/v1/log", nil).Code)

	id := uuid.New()
	ctrl, _ = newTestServer(t, Backends{Sessions: fakeSessions{{ID: id, Records: 12, Breaths: 2}}})
	rec := do(t, ctrl, http.MethodGet, "/api/v1/sessions", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var sessions []sqlite.Session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sessions))
	require.Len(t, sessions, 1)
	assert.Equal(t, id, sessions[0].ID)
	assert.Equal(t, 2, sessions[0].Breaths)
}

func TestNewControllerRequiresPipeline(t *testing.T) {
	var wg sync.WaitGroup
	_, err := NewController(context.Background(), &wg, config.RESTServerData{}, Backends{}, zaptest.NewLogger(t).Sugar())
	assert.Error(t, err)
}

func TestStoppedPipelineIsUnavailable(t *testing.T) {
	logger := zaptest.NewLogger(t).Sugar()
	pctx, stop := context.WithCancel(context.Background())
	var pwg sync.WaitGroup
	p := pipeline.New(pipeline.DefaultSettings(), nil, logger)
	p.Start(pctx, &pwg)
	stop()
	pwg.Wait()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup
	ctrl, err := NewController(ctx, &wg, config.RESTServerData{}, Backends{Pipeline: p}, logger)
	require.NoError(t, err)

	rec := do(t, ctrl, http.MethodGet, "/api/v1/snapshot", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = do(t, ctrl, http.MethodPut, "/api/v1/settings/flow-trigger", url.Values{"value": {"12"}})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
