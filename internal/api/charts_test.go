package api

import (
	"bytes"
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/position.report/internal/location"
	"github.com/banshee-data/position.report/internal/testutil"
	"github.com/banshee-data/position.report/internal/units"
)

func newChartServer(t *testing.T, n int) *http.ServeMux {
	t.Helper()
	store := newTestStore(t)
	t0 := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		require.NoError(t, store.InsertSample(context.Background(), "s", location.Sample{
			Latitude:           51.5 + float64(i)*1e-5,
			Longitude:          -0.12 - float64(i)*1e-5,
			HorizontalAccuracy: 3 + float64(i%4),
			Timestamp:          t0.Add(time.Duration(i) * time.Second),
		}))
	}
	s := NewServer(newFakeTracker(), store, units.Meters)
	mux := http.NewServeMux()
	s.AttachAdminRoutes(mux)
	return mux
}

func TestTrackChart(t *testing.T) {
	mux := newChartServer(t, 20)

	rec := testutil.NewTestRecorder()
	mux.ServeHTTP(rec, testutil.NewTestRequest(http.MethodGet, "/debug/location/track"))
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/html"))
	body := rec.Body.String()
	assert.Contains(t, body, "echarts")
	assert.Contains(t, body, "points=20")

	rec = testutil.NewTestRecorder()
	mux.ServeHTTP(rec, testutil.NewTestRequest(http.MethodGet, "/debug/location/track?max_points=5"))
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	assert.Contains(t, rec.Body.String(), "points=5")
}

func TestAccuracyPlot(t *testing.T) {
	mux := newChartServer(t, 10)

	rec := testutil.NewTestRecorder()
	mux.ServeHTTP(rec, testutil.NewTestRequest(http.MethodGet, "/debug/location/accuracy.png"))
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("\x89PNG\r\n\x1a\n")))
}

func TestAccuracyPlot_Empty(t *testing.T) {
	mux := newChartServer(t, 0)

	rec := testutil.NewTestRecorder()
	mux.ServeHTTP(rec, testutil.NewTestRequest(http.MethodGet, "/debug/location/accuracy.png"))
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("\x89PNG")))
}

func TestCharts_Errors(t *testing.T) {
	mux := newChartServer(t, 1)
	for _, path := range []string{
		"/debug/location/track?max_points=0",
		"/debug/location/accuracy.png?max_points=abc",
	} {
		rec := testutil.NewTestRecorder()
		mux.ServeHTTP(rec, testutil.NewTestRequest(http.MethodGet, path))
		testutil.AssertStatusCode(t, rec.Code, http.StatusBadRequest)
	}

	s := NewServer(newFakeTracker(), nil, units.Meters)
	bare := http.NewServeMux()
	s.AttachAdminRoutes(bare)
	rec := testutil.NewTestRecorder()
	bare.ServeHTTP(rec, testutil.NewTestRequest(http.MethodGet, "/debug/location/track"))
	testutil.AssertStatusCode(t, rec.Code, http.StatusServiceUnavailable)
}
