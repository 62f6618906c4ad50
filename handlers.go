package arrivals

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/protobuf/encoding/prototext"
)

// API wires the engine's operations to HTTP routes.
type API struct {
	engine  *Engine
	logger  *zap.Logger
	metrics *Metrics
}

func NewAPI(engine *Engine, logger *zap.Logger, metrics *Metrics) *API {
	return &API{engine: engine, logger: logger, metrics: metrics}
}

// Routes builds the full handler tree, wrapped in recovery and request
// accounting middleware.
func (a *API) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", a.handleHealth)
	mux.HandleFunc("GET /api/stops/{stopID}/arrivals", a.handleStopArrivals)
	mux.HandleFunc("POST /api/arrivals/bulk", a.handleBulkCategories)
	mux.HandleFunc("POST /api/arrivals/bulk/detailed", a.handleBulkDetailed)
	mux.HandleFunc("GET /api/stop-codes/{code}/timetable", a.handleTimetable)
	mux.HandleFunc("GET /api/trips/{tripID}/shape", a.handleTripShape)
	mux.HandleFunc("GET /api/trips/{tripID}/stops", a.handleTripStops)
	mux.HandleFunc("GET /api/trips/{tripID}/route-view", a.handleRouteView)
	mux.HandleFunc("GET /api/trips/{tripID}/static-route-view", a.handleStaticRouteView)
	mux.HandleFunc("GET /api/routes", a.handleAllRoutes)
	mux.HandleFunc("GET /api/stops", a.handleAllStops)
	mux.HandleFunc("GET /api/lines", a.handleLines)
	mux.HandleFunc("GET /api/lines/{line}/{routeType}", a.handleLineVariants)
	mux.HandleFunc("GET /api/vehicles", a.handleVehicles)
	mux.HandleFunc("GET /api/debug/alerts", a.handleDebugAlerts)
	mux.HandleFunc("GET /api/debug/alerts/raw", a.handleDebugAlertsRaw)
	if a.metrics != nil {
		mux.Handle("GET /metrics", a.metrics.Handler())
	}
	return a.withRecovery(a.withRequestMetrics(mux))
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	var epoch int64
	if snap := a.engine.feed.Current(); snap != nil {
		epoch = snap.FetchedAt.Unix()
	}
	a.writeJSON(w, http.StatusOK, map[string]any{
		"status":         "UP",
		"snapshot_epoch": epoch,
	})
}

func (a *API) handleStopArrivals(w http.ResponseWriter, r *http.Request) {
	estimates, err := a.engine.EstimateForStop(r.Context(), r.PathValue("stopID"))
	if err != nil {
		a.writeEngineError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, estimates)
}

type bulkRequest struct {
	StopCodes []string `json:"stop_codes"`
}

func (a *API) decodeBulkRequest(w http.ResponseWriter, r *http.Request) ([]string, bool) {
	var req bulkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, http.StatusBadRequest, "invalid request body")
		return nil, false
	}
	return req.StopCodes, true
}

func (a *API) handleBulkCategories(w http.ResponseWriter, r *http.Request) {
	codes, ok := a.decodeBulkRequest(w, r)
	if !ok {
		return
	}
	a.writeJSON(w, http.StatusOK, a.engine.CategoriesForCodes(r.Context(), codes))
}

func (a *API) handleBulkDetailed(w http.ResponseWriter, r *http.Request) {
	codes, ok := a.decodeBulkRequest(w, r)
	if !ok {
		return
	}
	a.writeJSON(w, http.StatusOK, a.engine.DetailedForCodes(r.Context(), codes))
}

func (a *API) handleTimetable(w http.ResponseWriter, r *http.Request) {
	tt, err := a.engine.WeekTimetableForCode(r.PathValue("code"))
	if err != nil {
		a.writeEngineError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, tt)
}

func (a *API) handleTripShape(w http.ResponseWriter, r *http.Request) {
	pts, err := a.engine.TripShape(r.PathValue("tripID"))
	if err != nil {
		a.writeEngineError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, pts)
}

func (a *API) handleTripStops(w http.ResponseWriter, r *http.Request) {
	stops, err := a.engine.TripStops(r.PathValue("tripID"))
	if err != nil {
		a.writeEngineError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, stops)
}

func (a *API) handleRouteView(w http.ResponseWriter, r *http.Request) {
	view, err := a.engine.RouteView(r.Context(), r.PathValue("tripID"))
	if err != nil {
		a.writeEngineError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, view)
}

func (a *API) handleStaticRouteView(w http.ResponseWriter, r *http.Request) {
	view, err := a.engine.StaticRouteView(r.PathValue("tripID"))
	if err != nil {
		a.writeEngineError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, view)
}

func (a *API) handleAllRoutes(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, http.StatusOK, a.engine.AllRoutes())
}

func (a *API) handleAllStops(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, http.StatusOK, a.engine.AllStops())
}

func (a *API) handleLines(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, http.StatusOK, a.engine.LinesStructured())
}

func (a *API) handleLineVariants(w http.ResponseWriter, r *http.Request) {
	variants, err := a.engine.LineVariants(r.PathValue("line"), r.PathValue("routeType"))
	if err != nil {
		a.writeEngineError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, variants)
}

func (a *API) handleVehicles(w http.ResponseWriter, r *http.Request) {
	names := strings.Split(r.URL.Query().Get("routes"), ",")
	a.writeJSON(w, http.StatusOK, a.engine.VehiclesForRoutes(r.Context(), names))
}

func (a *API) handleDebugAlerts(w http.ResponseWriter, r *http.Request) {
	snap := a.engine.feed.EnsureFresh(r.Context())
	processed := CorrelateAlerts(snap, a.engine.idx)
	a.writeJSON(w, http.StatusOK, map[string]any{
		"status": "OK",
		"count":  len(processed),
		"data":   processed,
	})
}

func (a *API) handleDebugAlertsRaw(w http.ResponseWriter, r *http.Request) {
	snap := a.engine.feed.EnsureFresh(r.Context())
	if snap == nil || snap.Alerts == nil {
		a.writeError(w, http.StatusInternalServerError, "alerts feed not loaded")
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(prototext.Format(snap.Alerts)))
}

func (a *API) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.logger.Error("encode response", zap.Error(err))
	}
}

func (a *API) writeError(w http.ResponseWriter, status int, msg string) {
	a.writeJSON(w, status, map[string]string{"error": msg})
}

// writeEngineError maps the not-found sentinels to 404 and everything
// else to a generic 500 so internal detail never reaches the caller.
func (a *API) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrStopNotFound),
		errors.Is(err, ErrStopCodeNotFound),
		errors.Is(err, ErrTripNotFound),
		errors.Is(err, ErrLineNotFound):
		a.writeError(w, http.StatusNotFound, err.Error())
	default:
		a.logger.Error("request failed",
			zap.String("path", r.URL.Path), zap.Error(err))
		a.writeError(w, http.StatusInternalServerError, "an internal server error occurred")
	}
}
