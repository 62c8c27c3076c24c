package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/okian/tourney-ingest/pkg/metrics"
)

// Instrument counts and times every call to next under endpoint.
func Instrument(endpoint string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next(rec, r)
		metrics.RecordHTTPRequest(endpoint, r.Method, strconv.Itoa(rec.code()), float64(time.Since(start).Milliseconds()))
	}
}

// statusRecorder remembers the first status written. A body written without
// a header is a 200.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	return s.ResponseWriter.Write(b)
}

func (s *statusRecorder) code() int {
	if s.status == 0 {
		return http.StatusOK
	}
	return s.status
}
