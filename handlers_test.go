package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kwv/cloudalign/align"
)

func testServer(t *testing.T) (*App, http.Handler) {
	t.Helper()
	app := newTestApp()
	return app, newHTTPServer(app)
}

func TestHealthEndpoint(t *testing.T) {
	_, srv := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var status struct {
		Status    string `json:"status"`
		HasClouds bool   `json:"hasClouds"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "ok", status.Status)
	assert.False(t, status.HasClouds)
}

func TestPosesEndpointEmpty(t *testing.T) {
	_, srv := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/poses", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestPosesEndpoint(t *testing.T) {
	app, srv := testServer(t)

	ref := testCloud("ref", 11, 50)
	app.HandleScan("ref", ref, nil)
	app.HandleScan("mobile", shiftedCloud(ref, "mobile", align.Vec3{X: 0.2}), nil)

	req := httptest.NewRequest(http.MethodGet, "/api/poses", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var entries []struct {
		SensorID    string     `json:"sensor_id"`
		Translation align.Vec3 `json:"translation"`
		Converged   bool       `json:"converged"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "mobile", entries[0].SensorID)
	assert.InDelta(t, -0.2, entries[0].Translation.X, 0.05)
}

func TestAlignEndpoint(t *testing.T) {
	_, srv := testServer(t)

	target := map[string]interface{}{
		"points": [][3]float64{
			{0, 0, 0}, {4, 0, 0}, {0, 4, 0}, {4, 4, 0}, {2, 2, 3}, {1, 3, 1},
		},
	}
	// Source is the target shifted by (-0.5, 0, 0); aligning source onto
	// target should recover +0.5 in X
	source := map[string]interface{}{
		"points": [][3]float64{
			{-0.5, 0, 0}, {3.5, 0, 0}, {-0.5, 4, 0}, {3.5, 4, 0}, {1.5, 2, 3}, {0.5, 3, 1},
		},
	}

	body, err := json.Marshal(map[string]interface{}{"source": source, "target": target})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/align", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Translation align.Vec3 `json:"translation"`
		Pairs       int        `json:"pairs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.InDelta(t, 0.5, resp.Translation.X, 0.05)
	assert.Greater(t, resp.Pairs, 0)
}

func TestAlignEndpointValidation(t *testing.T) {
	_, srv := testServer(t)

	// GET is rejected
	req := httptest.NewRequest(http.MethodGet, "/api/align", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	// Malformed body
	req = httptest.NewRequest(http.MethodPost, "/api/align", strings.NewReader("{"))
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Empty scans
	req = httptest.NewRequest(http.MethodPost, "/api/align",
		strings.NewReader(`{"source": {"points": []}, "target": {"points": []}}`))
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOverlayEndpoints(t *testing.T) {
	app, srv := testServer(t)

	// No clouds yet: overlay unavailable
	req := httptest.NewRequest(http.MethodGet, "/overlay/mobile.svg", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	ref := testCloud("ref", 12, 50)
	app.HandleScan("ref", ref, nil)
	app.HandleScan("mobile", shiftedCloud(ref, "mobile", align.Vec3{X: 0.1}), nil)

	req = httptest.NewRequest(http.MethodGet, "/overlay/mobile.svg", nil)
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/svg+xml", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "<svg")

	req = httptest.NewRequest(http.MethodGet, "/overlay/mobile.geojson", nil)
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "FeatureCollection")
	// The cached pairings of the last round feed the residual segments
	assert.Contains(t, rec.Body.String(), "residuals")

	req = httptest.NewRequest(http.MethodGet, "/overlay/mobile.png", nil)
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))

	// Unknown extension
	req = httptest.NewRequest(http.MethodGet, "/overlay/mobile.gif", nil)
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestIndexPage(t *testing.T) {
	_, srv := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "cloudalign")
	assert.Contains(t, rec.Body.String(), "/overlay/mobile.svg")

	// Unknown paths 404
	req = httptest.NewRequest(http.MethodGet, "/nope", nil)
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
