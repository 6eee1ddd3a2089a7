package api

import (
	"math/rand"
	"net/http"
	"time"

	"github.com/oklog/ulid/v2"

	"gpio-server/internal/logger"
)

const requestIDHeader = "X-Request-Id"

func newRequestID() string {
	t := time.Now()
	entropy := ulid.Monotonic(rand.New(rand.NewSource(t.UnixNano())), 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(p []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	n, err := s.ResponseWriter.Write(p)
	s.bytes += n
	return n, err
}

// RequestLogger tags every request with a ULID and logs it once answered.
func RequestLogger(l *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := newRequestID()
			w.Header().Set(requestIDHeader, id)
			l.Debugf("%s %s %s from %s", id, r.Method, r.URL.Path, r.RemoteAddr)

			rec := &statusRecorder{ResponseWriter: w}
			start := time.Now()
			next.ServeHTTP(rec, r)
			if rec.status == 0 {
				rec.status = http.StatusOK
			}
			l.Infof("%s %s %s -> %d (%d bytes, %s)", id, r.Method, r.URL.Path,
				rec.status, rec.bytes, time.Since(start).Round(time.Microsecond))
		})
	}
}
