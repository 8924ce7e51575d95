package metrics

import (
	"net/http"
	"time"
)

// HTTPMetricsMiddleware wraps the handler of one API route. handlerName is
// the mux pattern the handler is registered under, so submissions for every
// source address share one label.
func HTTPMetricsMiddleware(m *Metrics, handlerName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if m == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := &statusRecorder{ResponseWriter: w}
			done := Timer(time.Now(), func(seconds float64) {
				m.RecordHTTPRequest(handlerName, r.Method, rec.status(), seconds)
			})
			next.ServeHTTP(rec, r)
			done()
		})
	}
}

// statusRecorder remembers the first status written. A handler that only
// calls Write has answered 200.
type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.code == 0 {
		r.code = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) status() int {
	if r.code == 0 {
		return http.StatusOK
	}
	return r.code
}

// Timer returns a func that reports the seconds elapsed since start.
//
//	defer metrics.Timer(time.Now(), func(d float64) {
//	    m.RecordActivityDuration("SubmitOperation", d)
//	})()
func Timer(start time.Time, recordFunc func(float64)) func() {
	return func() {
		recordFunc(time.Since(start).Seconds())
	}
}
