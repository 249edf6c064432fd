package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/gilchrisn/mcmc-coloring-service/pkg/coloring"
	"github.com/gilchrisn/mcmc-coloring-service/pkg/graph"
	"github.com/gilchrisn/mcmc-coloring-service/pkg/parser"
	"github.com/gilchrisn/mcmc-coloring-service/pkg/service"
)

// maxBodyBytes bounds a submission, edge list included.
const maxBodyBytes = 64 << 20

// Handlers contains HTTP request handlers
type Handlers struct {
	jobService *service.JobService
	startedAt  time.Time
}

// NewHandlers creates new API handlers
func NewHandlers(jobService *service.JobService) *Handlers {
	return &Handlers{jobService: jobService, startedAt: time.Now()}
}

// ColoringResponse is returned on submission.
type ColoringResponse struct {
	JobID string      `json:"jobId"`
	Job   service.Job `json:"job"`
}

// ColoringDetail is a job together with its coloring, once there is one.
type ColoringDetail struct {
	Job      service.Job `json:"job"`
	Coloring []uint32    `json:"coloring,omitempty"`
}

// StartColoring queues a coloring job
func (h *Handlers) StartColoring(w http.ResponseWriter, r *http.Request) {
	var req service.ColoringRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		log.Error().Err(err).Msg("Invalid request body")
		WriteErrorResponse(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	job, err := h.jobService.Submit(req)
	if err != nil {
		status := http.StatusInternalServerError
		if isClientError(err) {
			status = http.StatusBadRequest
		}
		log.Error().Err(err).Int("status", status).Msg("Failed to start coloring job")
		WriteErrorResponse(w, status, "Failed to start coloring", err)
		return
	}

	WriteAcceptedResponse(w, "Coloring job started", ColoringResponse{JobID: job.ID, Job: *job})
}

// ListColorings lists all known jobs
func (h *Handlers) ListColorings(w http.ResponseWriter, r *http.Request) {
	WriteSuccessResponse(w, "Coloring jobs retrieved successfully", h.jobService.List())
}

// GetColoring returns a job; with ?include=coloring the node colors are
// attached once the job has finished.
func (h *Handlers) GetColoring(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["jobId"]

	job, err := h.jobService.Get(jobID)
	if err != nil {
		WriteErrorResponse(w, http.StatusNotFound, "Job not found", err)
		return
	}

	detail := ColoringDetail{Job: *job}
	if r.URL.Query().Get("include") == "coloring" {
		result, err := h.jobService.GetResult(jobID)
		if err != nil && !errors.Is(err, service.ErrResultNotReady) {
			WriteErrorResponse(w, http.StatusNotFound, "Job not found", err)
			return
		}
		if result != nil {
			detail.Coloring = result.Coloring
		}
	}

	WriteSuccessResponse(w, "Coloring job retrieved successfully", detail)
}

// CancelColoring raises the stop signal of a job
func (h *Handlers) CancelColoring(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["jobId"]

	if err := h.jobService.Cancel(jobID); err != nil {
		WriteErrorResponse(w, http.StatusNotFound, "Job not found", err)
		return
	}

	log.Info().Str("job_id", jobID).Msg("Coloring job cancelled")
	WriteSuccessResponse(w, "Coloring job cancelled", nil)
}

// HealthCheck reports liveness and uptime.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	WriteSuccessResponse(w, "Service is healthy", map[string]interface{}{
		"status":     "healthy",
		"uptime":     time.Since(h.startedAt).Round(time.Second).String(),
		"strategies": coloring.Strategies,
	})
}

func isClientError(err error) bool {
	return errors.Is(err, coloring.ErrConfiguration) ||
		errors.Is(err, graph.ErrStructural) ||
		errors.Is(err, parser.ErrSyntax) ||
		errors.Is(err, service.ErrInvalidRequest)
}
