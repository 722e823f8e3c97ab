package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/seantiz/taskengine/internal/engine"
	"github.com/seantiz/taskengine/internal/model"
	"github.com/seantiz/taskengine/internal/store"
)

const (
	maxBodySize  = 1 << 20 // 1 MB
	maxBatchSize = 1000
)

var validate = validator.New()

// submitTaskRequest is the JSON body for POST /v1/tasks and each element of
// POST /v1/tasks/batch.
type submitTaskRequest struct {
	Name     string `json:"name" validate:"required,max=256"`
	Priority *int   `json:"priority" validate:"required"`
}

type submitTaskResponse struct {
	ID uuid.UUID `json:"id"`
}

type batchSubmitResponse struct {
	BatchID string      `json:"batch_id"`
	IDs     []uuid.UUID `json:"ids"`
	Error   string      `json:"error,omitempty"`
}

type listTasksResponse struct {
	Tasks []model.Task `json:"tasks"`
	Total int          `json:"total"`
}

func (s *Server) handleSubmitTask(w http.ResponseWriter, r *http.Request) {
	var req submitTaskRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := validate.Struct(req); err != nil {
		s.writeError(w, http.StatusBadRequest, "name and priority are required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.submitTimeout)
	defer cancel()

	id, err := s.engine.Submit(ctx, req.Name, *req.Priority)
	if err != nil {
		s.writeSubmitError(w, err)
		return
	}

	s.logger.Info("task accepted", "task_id", id, "name", req.Name, "subject", subjectFrom(r.Context()))
	s.writeJSON(w, http.StatusAccepted, submitTaskResponse{ID: id})
}

func (s *Server) handleBatchSubmit(w http.ResponseWriter, r *http.Request) {
	var reqs []submitTaskRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&reqs); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(reqs) == 0 || len(reqs) > maxBatchSize {
		s.writeError(w, http.StatusBadRequest, "batch must contain between 1 and 1000 tasks")
		return
	}
	for _, req := range reqs {
		if err := validate.Struct(req); err != nil {
			s.writeError(w, http.StatusBadRequest, "every task needs a name and priority")
			return
		}
	}

	engineReqs := make([]engine.Request, len(reqs))
	for i, req := range reqs {
		engineReqs[i] = engine.Request{Name: req.Name, Priority: *req.Priority}
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.submitTimeout)
	defer cancel()

	batch, err := s.engine.BatchSubmit(ctx, engineReqs)
	resp := batchSubmitResponse{BatchID: batch.ID, IDs: batch.TaskIDs}
	if err != nil {
		// Tasks already submitted stay queued, so report them alongside the error.
		s.logger.Warn("batch partially submitted",
			"batch_id", batch.ID,
			"submitted", len(batch.TaskIDs),
			"requested", len(reqs),
			"error", err)
		status := http.StatusServiceUnavailable
		resp.Error = submitErrorMessage(err)
		if resp.Error == "" {
			status = http.StatusInternalServerError
			resp.Error = "failed to submit batch"
		}
		s.writeJSON(w, status, resp)
		return
	}

	s.logger.Info("batch accepted", "batch_id", batch.ID, "count", len(batch.TaskIDs), "subject", subjectFrom(r.Context()))
	s.writeJSON(w, http.StatusAccepted, resp)
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	// A malformed ID can never have been issued, so it is reported like an
	// unknown one.
	id, err := model.ParseTaskID(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, http.StatusNotFound, "task not found")
		return
	}

	task, ok := s.engine.Status(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, "task not found")
		return
	}

	s.writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := store.Filter{
		Kind:    model.StatusKind(q.Get("status")),
		BatchID: q.Get("batch_id"),
	}
	switch f.Kind {
	case "", model.KindPending, model.KindProcessing, model.KindCompleted, model.KindFailed:
	default:
		s.writeError(w, http.StatusBadRequest, "unknown status filter")
		return
	}

	tasks := s.engine.Tasks(f)
	s.writeJSON(w, http.StatusOK, listTasksResponse{Tasks: tasks, Total: len(tasks)})
}

func (s *Server) writeSubmitError(w http.ResponseWriter, err error) {
	msg := submitErrorMessage(err)
	if msg == "" {
		s.logger.Error("submit task", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to submit task")
		return
	}
	s.writeError(w, http.StatusServiceUnavailable, msg)
}

// submitErrorMessage maps engine submission errors to client-facing text.
func submitErrorMessage(err error) string {
	switch {
	case errors.Is(err, engine.ErrQueueSaturated):
		return "task queue is full, try again later"
	case errors.Is(err, engine.ErrClosed):
		return "server is shutting down"
	default:
		return ""
	}
}

// writeJSON writes a JSON response with the given status code.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// parseIntQuery parses an integer query parameter with a default value.
func parseIntQuery(r *http.Request, key string, defaultVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}
