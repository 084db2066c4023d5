package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// HealthResponse is returned by /health
type HealthResponse struct {
	Status string            `json:"status"`
	Uptime string            `json:"uptime"`
	Checks map[string]string `json:"checks"`
}

// TriggerResponse is returned by a successful stage run
type TriggerResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ErrorResponse is returned when a stage run fails
type ErrorResponse struct {
	Error string `json:"error"`
}

var (
	serverStartTime = time.Now()

	errBusy = errors.New("another pipeline run is in progress")
)

// handleHealth handles the /health endpoint
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)
	uptime := time.Since(serverStartTime).Round(time.Second).String()

	if err := s.db.Ping(r.Context()); err != nil {
		checks["database"] = "error"
		s.respondJSON(w, http.StatusServiceUnavailable, HealthResponse{
			Status: "unhealthy",
			Uptime: uptime,
			Checks: checks,
		})
		return
	}

	checks["database"] = "ok"

	s.respondJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Uptime: uptime,
		Checks: checks,
	})
}

// handleGatherArticles handles POST /functions/gather-articles
func (s *Server) handleGatherArticles(w http.ResponseWriter, r *http.Request) {
	s.runStage(w, func() (string, error) {
		result, err := s.stages.Gather(r.Context())
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Gathered %d new articles from %d sources",
			result.ArticlesInserted, result.SourcesProcessed+result.SourcesFailed), nil
	})
}

// handleProcessArticles handles POST /functions/process-articles
func (s *Server) handleProcessArticles(w http.ResponseWriter, r *http.Request) {
	s.runStage(w, func() (string, error) {
		result, err := s.stages.Process(r.Context())
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Processed %d articles", result.Processed), nil
	})
}

// handleSendNewsletters handles POST /functions/send-newsletters
func (s *Server) handleSendNewsletters(w http.ResponseWriter, r *http.Request) {
	s.runStage(w, func() (string, error) {
		result, err := s.stages.Send(r.Context())
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Delivered newsletters to %d users", result.Delivered), nil
	})
}

// runStage serializes stage runs and writes the trigger response
func (s *Server) runStage(w http.ResponseWriter, run func() (string, error)) {
	if !s.runMu.TryLock() {
		s.respondError(w, http.StatusConflict, errBusy)
		return
	}
	defer s.runMu.Unlock()

	message, err := run()
	if err != nil {
		s.log.Error("Stage run failed", "error", err)
		s.respondError(w, http.StatusBadRequest, err)
		return
	}

	s.respondJSON(w, http.StatusOK, TriggerResponse{Success: true, Message: message})
}

// respondJSON writes a JSON response
func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error("Failed to encode JSON response", "error", err)
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, err error) {
	s.respondJSON(w, status, ErrorResponse{Error: err.Error()})
}
