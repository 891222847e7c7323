package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/teemow/driveproxy/internal/files"
	"github.com/teemow/driveproxy/internal/instrumentation"
	"github.com/teemow/driveproxy/internal/logging"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

const maxRequestIDLength = 128

// statusRecorder captures the status code and body size of a response.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(p []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(p)
	r.bytes += int64(n)
	return n, err
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func (r *statusRecorder) wroteHeader() bool {
	return r.status != 0
}

// requestID assigns every request an id, reusing a sane incoming one.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" || len(id) > maxRequestIDLength {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(ContextWithRequestID(r.Context(), id)))
	})
}

// observe records the access log line and HTTP metrics of each request.
// The route label is the matched mux pattern, never the raw path.
func observe(logger *slog.Logger, metrics *instrumentation.Metrics, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}

		defer func() {
			status := rec.status
			if status == 0 {
				status = http.StatusOK
			}
			duration := time.Since(start)
			route := r.Pattern
			metrics.RecordHTTPRequest(r.Context(), r.Method, route, status, duration)

			level := slog.LevelInfo
			if status >= http.StatusInternalServerError {
				level = slog.LevelWarn
			}
			requestLogger(logger, r).LogAttrs(r.Context(), level, "request",
				slog.String("method", r.Method),
				logging.Route(route),
				slog.Int("status", status),
				slog.Int64("bytes", rec.bytes),
				slog.Duration("duration", duration),
			)
		}()

		next.ServeHTTP(rec, r)
	})
}

// recoverer turns handler panics into a 500 response. Aborted responses
// are re-panicked so net/http drops the connection.
func recoverer(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w}
		defer func() {
			v := recover()
			if v == nil {
				return
			}
			if v == http.ErrAbortHandler {
				panic(v)
			}
			requestLogger(logger, r).ErrorContext(r.Context(), "handler panic",
				logging.Err(fmt.Errorf("%v", v)),
			)
			if rec.wroteHeader() {
				panic(http.ErrAbortHandler)
			}
			writeMessage(rec, http.StatusInternalServerError, files.MsgInternal)
		}()
		next.ServeHTTP(rec, r)
	})
}
