// Package handler serves the read-only run history over HTTP.
package handler

import (
	"encoding/json"
	"errors"
	"incident-pipeline/internal/logging"
	"incident-pipeline/internal/model"
	"incident-pipeline/internal/store"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// maxLimit caps the runs a single list request may ask for.
const maxLimit = 500

// RunReader is the part of the run store the API reads. *store.Store
// satisfies it.
type RunReader interface {
	Ping() error
	ListRuns(limit int) ([]model.Run, error)
	GetRun(id string) (model.Run, error)
	ListPollEvents(runID string) ([]model.PollEvent, error)
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthResponse reports service health.
type HealthResponse struct {
	Status string `json:"status"`
}

// RunList is a page of runs.
type RunList struct {
	Runs  []model.Run `json:"runs"`
	Count int         `json:"count"`
	Limit int         `json:"limit"`
}

// PollList is the poll history of one upload run.
type PollList struct {
	RunID string            `json:"run_id"`
	Polls []model.PollEvent `json:"polls"`
	Count int               `json:"count"`
}

// Handler holds the dependencies of the run endpoints.
type Handler struct {
	Runs RunReader
}

func New(runs RunReader) *Handler {
	return &Handler{Runs: runs}
}

// Health reports whether the run store is reachable
// @Summary Health check
// @Description Reports ok when the run history database answers
// @Tags health
// @Produce json
// @Success 200 {object} HealthResponse
// @Failure 503 {object} ErrorResponse
// @Router /healthz [get]
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.Runs.Ping(); err != nil {
		logging.FromContext(r.Context()).Error("store ping failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, "run store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// ListRuns retrieves recent runs
// @Summary List runs
// @Description Get the most recent fetch and upload runs, newest first
// @Tags runs
// @Produce json
// @Param limit query int false "Maximum runs to return" default(50)
// @Success 200 {object} RunList
// @Failure 400 {object} ErrorResponse "Invalid limit"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /api/v1/runs [get]
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit := store.DefaultListLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(parsed, maxLimit)
	}

	runs, err := h.Runs.ListRuns(limit)
	if err != nil {
		logging.FromContext(r.Context()).Error("list runs failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to fetch runs")
		return
	}
	writeJSON(w, http.StatusOK, RunList{Runs: runs, Count: len(runs), Limit: limit})
}

// GetRun retrieves a single run
// @Summary Get run
// @Description Retrieve counts, status and import job details of one run
// @Tags runs
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} model.Run
// @Failure 404 {object} ErrorResponse "Run not found"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /api/v1/runs/{id} [get]
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	run, err := h.Runs.GetRun(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		logging.FromContext(r.Context()).Error("get run failed", "run_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to fetch run")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// ListPolls retrieves the job status polls of an upload run
// @Summary List run polls
// @Description Retrieve every import job status poll recorded for a run, in order
// @Tags runs
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} PollList
// @Failure 404 {object} ErrorResponse "Run not found"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /api/v1/runs/{id}/polls [get]
func (h *Handler) ListPolls(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if _, err := h.Runs.GetRun(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to fetch run")
		return
	}

	polls, err := h.Runs.ListPollEvents(id)
	if err != nil {
		logging.FromContext(r.Context()).Error("list polls failed", "run_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to fetch polls")
		return
	}
	writeJSON(w, http.StatusOK, PollList{RunID: id, Polls: polls, Count: len(polls)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}
