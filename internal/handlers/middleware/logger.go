package middleware

import (
	"net/http"
	"time"
)

type logger interface {
	Info(msg string, args ...any)
}

type responseData struct {
	status int
	size   int
}

// Response writer remembering status and size of the response
type recordingWriter struct {
	http.ResponseWriter
	data responseData
}

func newRecordingWriter(w http.ResponseWriter) *recordingWriter {
	return &recordingWriter{
		ResponseWriter: w,
		data:           responseData{status: http.StatusOK, size: 0},
	}
}

func (w *recordingWriter) Write(p []byte) (int, error) {
	size, err := w.ResponseWriter.Write(p)
	w.data.size += size
	return size, err
}

func (w *recordingWriter) WriteHeader(statusCode int) {
	w.ResponseWriter.WriteHeader(statusCode)
	w.data.status = statusCode
}

func LoggerMiddleware(l logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rw := newRecordingWriter(w)

			next.ServeHTTP(rw, r)

			l.Info(
				"got HTTP request",
				"method", r.Method,
				"uri", r.RequestURI,
				"duration", time.Since(start),
				"status", rw.data.status,
				"size", rw.data.size,
			)
		})

	}
}
