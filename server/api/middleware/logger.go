package middleware

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// statusWriter wraps http.ResponseWriter to capture status and bytes.
type statusWriter struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.bytes += int64(n)
	return n, err
}

// probePaths are hit by liveness checks every few seconds; successful
// responses on them are not worth an access log line.
var probePaths = map[string]bool{
	"/health": true,
	"/ready":  true,
}

// Logger provides structured access logging for HTTP requests. Failed
// requests log at warn or error depending on the status class.
func Logger(log zerolog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(sw, r)

			if sw.status < 400 && probePaths[r.URL.Path] {
				return
			}

			var evt *zerolog.Event
			switch {
			case sw.status >= 500:
				evt = log.Error()
			case sw.status >= 400:
				evt = log.Warn()
			default:
				evt = log.Info()
			}

			requestID, _ := r.Context().Value(RequestIDKey).(string)
			evt.
				Str("request_id", requestID).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("remote_addr", r.RemoteAddr).
				Int("status", sw.status).
				Int64("bytes", sw.bytes).
				Dur("latency", time.Since(start)).
				Msg("http_request")
		})
	}
}
