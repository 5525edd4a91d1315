package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"github.com/hakim/scanwatch/internal/api/middleware"
	scanerr "github.com/hakim/scanwatch/internal/errors"
	"github.com/hakim/scanwatch/internal/models"
	"github.com/hakim/scanwatch/internal/target"
)

// scanRequest is the body of POST /scan.
type scanRequest struct {
	Target  string         `json:"target" validate:"required,max=255"`
	Options models.Options `json:"options"`
}

type taskResponse struct {
	TaskID string `json:"task_id"`
}

type taskStatusResponse struct {
	Status models.TaskStatus  `json:"status"`
	TaskID string             `json:"task_id"`
	Result *models.ScanRecord `json:"result,omitempty"`
	Error  string             `json:"error,omitempty"`
}

type scansResponse struct {
	Scans []*models.StoredScan `json:"scans"`
}

type latestScanResponse struct {
	LatestScan *models.StoredScan `json:"latest_scan"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// handleSubmitScan validates a scan request and queues it.
func (s *Server) handleSubmitScan(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err := dec.Decode(&req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, "Request body must be a JSON object with a target and optional options.")
		return
	}

	if err := s.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 && verrs[0].Field() == "Target" && verrs[0].Tag() == "required" {
			s.writeError(w, r, http.StatusBadRequest, "Target is required.")
			return
		}
		s.writeError(w, r, http.StatusBadRequest, "Invalid IP address or hostname.")
		return
	}

	tgt := target.Sanitize(req.Target)
	if err := s.service.ValidateRequest(tgt, req.Options); err != nil {
		s.writeServiceError(w, r, err, "Failed to initiate scan. Please try again later.")
		return
	}

	id, err := s.queue.Submit(tgt, req.Options)
	if err != nil {
		s.writeServiceError(w, r, err, "Failed to initiate scan. Please try again later.")
		return
	}

	s.log.WithField("target", tgt).WithField("task_id", id).Info("scan initiated")
	s.writeJSON(w, r, http.StatusAccepted, taskResponse{TaskID: id})
}

// handleTaskStatus reports the state of a submitted scan.
func (s *Server) handleTaskStatus(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["task_id"]

	task, err := s.queue.Status(id)
	if err != nil {
		s.writeServiceError(w, r, err, "Failed to retrieve scan result. Please try again later.")
		return
	}

	s.writeJSON(w, r, http.StatusOK, taskStatusResponse{
		Status: task.Status,
		TaskID: task.ID,
		Result: task.Result,
		Error:  task.Error,
	})
}

// handleRecentScans lists stored scans of a target, newest first.
func (s *Server) handleRecentScans(w http.ResponseWriter, r *http.Request) {
	tgt, ok := s.pathTarget(w, r)
	if !ok {
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			s.writeError(w, r, http.StatusBadRequest, "limit must be a positive integer.")
			return
		}
		limit = n
	}

	scans, err := s.service.RecentScans(r.Context(), tgt, limit)
	if err != nil {
		s.writeServiceError(w, r, err, "Failed to retrieve recent scans. Please try again later.")
		return
	}
	s.writeJSON(w, r, http.StatusOK, scansResponse{Scans: scans})
}

// handleLatestScan returns the newest stored scan of a target.
func (s *Server) handleLatestScan(w http.ResponseWriter, r *http.Request) {
	tgt, ok := s.pathTarget(w, r)
	if !ok {
		return
	}

	scan, err := s.service.LatestScan(r.Context(), tgt)
	if err != nil {
		s.writeServiceError(w, r, err, "Failed to retrieve latest scan. Please try again later.")
		return
	}
	s.writeJSON(w, r, http.StatusOK, latestScanResponse{LatestScan: scan})
}

// handleScanChanges diffs the two newest scans of a target.
func (s *Server) handleScanChanges(w http.ResponseWriter, r *http.Request) {
	tgt, ok := s.pathTarget(w, r)
	if !ok {
		return
	}

	d, err := s.service.ScanChanges(r.Context(), tgt)
	if err != nil {
		s.writeServiceError(w, r, err, "Failed to retrieve scan changes. Please try again later.")
		return
	}
	s.writeJSON(w, r, http.StatusOK, d)
}

// handleWorkerStatus reports dispatcher counters.
func (s *Server) handleWorkerStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, s.queue.Stats())
}

// handleHealth reports liveness, and storage reachability when a health
// check is configured.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.pinger != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()
		if err := s.pinger.Ping(ctx); err != nil {
			s.logInternal(r, err)
			s.writeJSON(w, r, http.StatusServiceUnavailable, map[string]any{
				"status":    "unhealthy",
				"error":     "Storage unavailable.",
				"timestamp": time.Now().UTC(),
			})
			return
		}
	}

	s.writeJSON(w, r, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
	})
}

// pathTarget sanitizes and validates the {target} path variable, writing
// a 400 when it is not a valid address or hostname.
func (s *Server) pathTarget(w http.ResponseWriter, r *http.Request) (string, bool) {
	tgt := target.Sanitize(mux.Vars(r)["target"])
	if !target.IsValid(tgt) {
		s.writeError(w, r, http.StatusBadRequest, "Invalid IP address or hostname.")
		return "", false
	}
	return tgt, true
}

// writeServiceError maps a typed error onto a status code. Anything
// without a client-facing code is logged and answered with fallback.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	var e *scanerr.Error
	if !scanerr.As(err, &e) {
		s.logInternal(r, err)
		s.writeError(w, r, http.StatusInternalServerError, fallback)
		return
	}

	switch e.Code {
	case scanerr.CodeInvalidTarget:
		s.writeError(w, r, http.StatusBadRequest, "Invalid IP address or hostname.")
	case scanerr.CodeInvalidOptions:
		msg := "Invalid scan options."
		if e.Cause != nil {
			msg = "Invalid scan options: " + e.Cause.Error()
		}
		s.writeError(w, r, http.StatusBadRequest, msg)
	case scanerr.CodeOutOfScope:
		s.writeError(w, r, http.StatusForbidden, "Target is outside the allowed scope.")
	case scanerr.CodeNotFound:
		s.writeError(w, r, http.StatusNotFound, "No scans found for the given target.")
	case scanerr.CodeTaskNotFound:
		s.writeError(w, r, http.StatusNotFound, "Task not found.")
	case scanerr.CodeInsufficientHistory:
		s.writeError(w, r, http.StatusUnprocessableEntity, "Not enough scans to compare.")
	case scanerr.CodeQueueFull:
		w.Header().Set("Retry-After", "30")
		s.writeError(w, r, http.StatusServiceUnavailable, "Scan queue is full. Please try again later.")
	default:
		s.logInternal(r, err)
		s.writeError(w, r, http.StatusInternalServerError, fallback)
	}
}

func (s *Server) logInternal(r *http.Request, err error) {
	s.log.WithError(err).WithField("request_id", middleware.GetRequestID(r)).
		WithField("path", r.URL.Path).Error("request failed")
}

// writeJSON writes a JSON response.
func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.WithError(err).WithField("path", r.URL.Path).Error("failed to encode JSON response")
	}
}

// writeError writes a standardized error response.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	s.writeJSON(w, r, status, ErrorResponse{
		Error:     msg,
		RequestID: middleware.GetRequestID(r),
	})
}
