package arrivals

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestAPI(t *testing.T) (*API, *feedFixture) {
	t.Helper()
	eng, fixture := newTestEngine(t, engineDataset())
	metrics := NewMetrics()
	return NewAPI(eng, zap.NewNop(), metrics), fixture
}

func doRequest(t *testing.T, handler http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	api, _ := newTestAPI(t)
	rec := doRequest(t, api.Routes(), http.MethodGet, "/api/health", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "UP", body["status"])
}

func TestStopArrivalsEndpoint(t *testing.T) {
	api, fixture := newTestAPI(t)
	fixture.set(tripUpdateFeed("TLIVE", "S1", testNow().Unix()+185), nil, nil)

	rec := doRequest(t, api.Routes(), http.MethodGet, "/api/stops/S1/arrivals", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var list []Estimate
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.NotEmpty(t, list)
	assert.Equal(t, "TLIVE", list[0].TripID)
	assert.Equal(t, 3, list[0].ETAMinutes)
}

func TestStopArrivalsUnknownStopIs404(t *testing.T) {
	api, _ := newTestAPI(t)
	rec := doRequest(t, api.Routes(), http.MethodGet, "/api/stops/NOPE/arrivals", "")

	require.Equal(t, http.StatusNotFound, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body["error"])
}

func TestBulkEndpoints(t *testing.T) {
	api, _ := newTestAPI(t)

	rec := doRequest(t, api.Routes(), http.MethodPost, "/api/arrivals/bulk", `{"stop_codes":["0363"]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var categories map[string]CategorySummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &categories))
	assert.Equal(t, []string{"BUS"}, categories["0363"].Arrivals)

	rec = doRequest(t, api.Routes(), http.MethodPost, "/api/arrivals/bulk/detailed", `{"stop_codes":["0363"]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var detailed map[string][]Estimate
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &detailed))
	assert.NotEmpty(t, detailed["0363"])

	rec = doRequest(t, api.Routes(), http.MethodPost, "/api/arrivals/bulk", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTimetableEndpoint(t *testing.T) {
	api, _ := newTestAPI(t)

	rec := doRequest(t, api.Routes(), http.MethodGet, "/api/stop-codes/0363/timetable", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var tt WeekTimetable
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tt))
	require.Contains(t, tt.Weekday, "5")

	rec = doRequest(t, api.Routes(), http.MethodGet, "/api/stop-codes/9999/timetable", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTripEndpointsUnknownTripIs404(t *testing.T) {
	api, _ := newTestAPI(t)
	for _, path := range []string{
		"/api/trips/NOPE/shape",
		"/api/trips/NOPE/stops",
		"/api/trips/NOPE/route-view",
		"/api/trips/NOPE/static-route-view",
	} {
		rec := doRequest(t, api.Routes(), http.MethodGet, path, "")
		assert.Equal(t, http.StatusNotFound, rec.Code, "path %s", path)
	}
}

func TestTripStopsEndpoint(t *testing.T) {
	api, _ := newTestAPI(t)
	rec := doRequest(t, api.Routes(), http.MethodGet, "/api/trips/TLIVE/stops", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var stops []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stops))
	require.Len(t, stops, 2)
	assert.Equal(t, "SPREV", stops[0]["stop_id"])
	assert.Equal(t, "S1", stops[1]["stop_id"])
}

func TestCatalogEndpoints(t *testing.T) {
	api, _ := newTestAPI(t)

	rec := doRequest(t, api.Routes(), http.MethodGet, "/api/routes", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, api.Routes(), http.MethodGet, "/api/stops", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var stops []StopRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stops))
	require.Len(t, stops, 3)

	rec = doRequest(t, api.Routes(), http.MethodGet, "/api/lines", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var lines []StructuredLine
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &lines))
	require.Len(t, lines, 1)
	assert.Equal(t, "5", lines[0].LineName)
	assert.Equal(t, "BUS", lines[0].TransportType)

	rec = doRequest(t, api.Routes(), http.MethodGet, "/api/lines/99/3", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestVehiclesEndpoint(t *testing.T) {
	api, fixture := newTestAPI(t)
	fixture.set(nil, vehicleFeed(vehicleSpec{
		tripID: "TLIVE", lat: targetLat, lon: targetLon,
	}), nil)

	rec := doRequest(t, api.Routes(), http.MethodGet, "/api/vehicles?routes=5,94", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var vehicles []VehicleInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &vehicles))
	require.Len(t, vehicles, 1)
	assert.Equal(t, "TLIVE", vehicles[0].TripID)
	assert.Equal(t, "5", vehicles[0].RouteName)
}

func TestDebugAlertEndpoints(t *testing.T) {
	api, fixture := newTestAPI(t)
	fixture.set(nil, nil, alertFeed("Ремонт."))

	rec := doRequest(t, api.Routes(), http.MethodGet, "/api/debug/alerts", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, api.Routes(), http.MethodGet, "/api/debug/alerts/raw", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
}

func TestMetricsEndpoint(t *testing.T) {
	api, _ := newTestAPI(t)
	_ = doRequest(t, api.Routes(), http.MethodGet, "/api/health", "")

	rec := doRequest(t, api.Routes(), http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "arrivals_http_requests_total")
}

func TestRecoveryMiddleware(t *testing.T) {
	api, _ := newTestAPI(t)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /boom", func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})
	handler := api.withRecovery(mux)

	rec := doRequest(t, handler, http.MethodGet, "/boom", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
