// Package server exposes the recorder and a webhook inbox over HTTP.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
	"livewatcher.com/recorder"
)

// InboxSize is how many webhook deliveries the inbox keeps.
const InboxSize = 100

type Recorder interface {
	Start(req recorder.StartRequest) (recorder.TaskInfo, error)
	Stop(name string) (bool, error)
	Status() []recorder.TaskInfo
}

type Server struct {
	rec       Recorder
	publicDir string
	log       logrus.FieldLogger

	mu    sync.Mutex
	inbox []json.RawMessage
}

func New(rec Recorder, publicDir string, log logrus.FieldLogger) *Server {
	return &Server{rec: rec, publicDir: publicDir, log: log}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.RequestLogger(requestLogger{log: s.log}),
		middleware.Recoverer,
	)

	r.Get("/", s.handleIndex)
	r.Route("/api", func(r chi.Router) {
		r.Get("/ping", handlePing)
		r.Route("/record", func(r chi.Router) {
			r.Post("/start", s.handleRecordStart)
			r.Post("/stop", s.handleRecordStop)
			r.Get("/status", s.handleRecordStatus)
		})
		r.Post("/product/new", s.handleProductNew)
		r.Get("/product/recent", s.handleProductRecent)
	})
	r.Handle("/*", http.FileServer(http.Dir(s.publicDir)))
	return r
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func errorJSON(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if _, err := os.Stat(filepath.Join(s.publicDir, "live-manager.html")); err == nil {
		http.Redirect(w, r, "/live-manager.html", http.StatusFound)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("live recording service is running"))
}

func handlePing(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339Nano),
	})
}

func (s *Server) handleRecordStart(w http.ResponseWriter, r *http.Request) {
	var req recorder.StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid request body")
		return
	}

	info, err := s.rec.Start(req)
	switch {
	case errors.Is(err, recorder.ErrMissingParams):
		errorJSON(w, http.StatusBadRequest, "missing required parameters: name, url")
		return
	case errors.Is(err, recorder.ErrAlreadyRecording):
		errorJSON(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		s.log.WithError(err).WithField("task", req.Name).Error("could not start recording")
		errorJSON(w, http.StatusInternalServerError, "could not start recording: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "recording " + info.Name,
		"pid":     info.PID,
		"logFile": info.LogFile,
	})
}

func (s *Server) handleRecordStop(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		errorJSON(w, http.StatusBadRequest, "missing required parameter: name")
		return
	}

	stopped, err := s.rec.Stop(req.Name)
	switch {
	case errors.Is(err, recorder.ErrTaskNotFound):
		errorJSON(w, http.StatusNotFound, err.Error())
		return
	case err != nil:
		errorJSON(w, http.StatusInternalServerError, err.Error())
		return
	}

	msg := "stopped recording " + req.Name
	if !stopped {
		msg = "task " + req.Name + " already stopped"
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": msg})
}

func (s *Server) handleRecordStatus(w http.ResponseWriter, r *http.Request) {
	tasks := s.rec.Status()
	if tasks == nil {
		tasks = []recorder.TaskInfo{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks})
}

// handleProductNew receives webhook deliveries from the room monitor.
func (s *Server) handleProductNew(w http.ResponseWriter, r *http.Request) {
	var body json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid json")
		return
	}

	s.mu.Lock()
	s.inbox = append(s.inbox, body)
	if len(s.inbox) > InboxSize {
		s.inbox = s.inbox[len(s.inbox)-InboxSize:]
	}
	s.mu.Unlock()

	s.log.WithField("event_id", r.Header.Get("X-Event-Id")).Debug("product delivery received")
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// handleProductRecent lists deliveries newest first.
func (s *Server) handleProductRecent(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	out := make([]json.RawMessage, 0, len(s.inbox))
	for i := len(s.inbox) - 1; i >= 0; i-- {
		out = append(out, s.inbox[i])
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"products": out})
}
