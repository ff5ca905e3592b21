package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

// requestLogger writes one access log line per request through logrus.
type requestLogger struct {
	log logrus.FieldLogger
}

func (l requestLogger) NewLogEntry(r *http.Request) middleware.LogEntry {
	return &requestEntry{log: l.log.WithFields(logrus.Fields{
		"request_id": middleware.GetReqID(r.Context()),
		"method":     r.Method,
		"path":       r.URL.Path,
		"remote":     r.RemoteAddr,
	})}
}

type requestEntry struct {
	log logrus.FieldLogger
}

func (e *requestEntry) Write(status, bytes int, header http.Header, elapsed time.Duration, extra any) {
	entry := e.log.WithFields(logrus.Fields{
		"status":  status,
		"bytes":   bytes,
		"elapsed": elapsed,
	})
	if status >= http.StatusInternalServerError {
		entry.Warn("request failed")
		return
	}
	entry.Info("request served")
}

func (e *requestEntry) Panic(v any, stack []byte) {
	e.log.WithField("stack", string(stack)).Errorf("panic: %v", v)
}
