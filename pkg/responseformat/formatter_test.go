package responseformat

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

type payload struct {
	BreathCount int     `json:"breath_count"`
	PeakCO2     float64 `json:"peak_co2_ppm"`
}

func TestWriteResponse(t *testing.T) {
	f := NewFormatter(true)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/snapshot", nil)
	rec := httptest.NewRecorder()
	require.NoError(t, f.WriteResponse(rec, req, http.StatusOK, payload{BreathCount: 3, PeakCO2: 45000}))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.JSONEq(t, `{"breath_count":3,"peak_co2_ppm":45000}`, rec.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/api/v1/snapshot?format=msgpack", nil)
	rec = httptest.NewRecorder()
	require.NoError(t, f.WriteResponse(rec, req, http.StatusAccepted, payload{BreathCount: 3, PeakCO2: 45000}))
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "application/x-msgpack", rec.Header().Get("Content-Type"))

	var decoded map[string]any
	require.NoError(t, msgpack.Unmarshal(rec.Body.Bytes(), &decoded))
	assert.Contains(t, decoded, "breath_count")
	assert.Contains(t, decoded, "peak_co2_ppm")
}

func TestWriteErrorWithoutCORS(t *testing.T) {
	f := NewFormatter(false)
	req := httptest.NewRequest(http.MethodPut, "/api/v1/settings/flow-trigger", nil)
	rec := httptest.NewRecorder()

	require.NoError(t, f.WriteError(rec, req, http.StatusBadRequest, "bad value"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	assert.JSONEq(t, `{"error":"bad value"}`, rec.Body.String())
}
