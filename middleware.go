package arrivals

import (
	"net/http"

	"go.uber.org/zap"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (a *API) withRequestMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		if a.metrics != nil {
			a.metrics.ObserveRequest(r.Method, r.URL.Path, rec.status)
		}
	})
}

// withRecovery converts a handler panic into a generic 500 instead of
// tearing down the connection.
func (a *API) withRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				a.logger.Error("panic in handler",
					zap.Any("panic", rec),
					zap.String("path", r.URL.Path),
					zap.Stack("stack"))
				a.writeError(w, http.StatusInternalServerError, "an internal server error occurred")
			}
		}()
		next.ServeHTTP(w, r)
	})
}
