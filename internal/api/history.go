package api

import (
	"net/http"

	"github.com/seantiz/taskengine/internal/model"
	"github.com/seantiz/taskengine/internal/store"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

type listHistoryResponse struct {
	Tasks  []model.Task `json:"tasks"`
	Total  int          `json:"total"`
	Limit  int          `json:"limit"`
	Offset int          `json:"offset"`
}

// statsResponse is the JSON response for GET /v1/stats. Archived figures come
// from the history database; Live and QueueLen describe the running engine.
type statsResponse struct {
	Total         int            `json:"total"`
	ByStatus      map[string]int `json:"by_status"`
	AvgDurationMS float64        `json:"avg_duration_ms"`
	Live          map[string]int `json:"live"`
	QueueLen      int            `json:"queue_len"`
}

func (s *Server) handleListHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.writeError(w, http.StatusNotFound, "history is disabled")
		return
	}

	limit := parseIntQuery(r, "limit", defaultListLimit)
	offset := parseIntQuery(r, "offset", 0)
	if limit < 1 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	tasks, total, err := s.history.List(r.Context(), limit, offset)
	if err != nil {
		s.logger.Error("list history", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list history")
		return
	}
	if tasks == nil {
		tasks = []model.Task{}
	}

	s.writeJSON(w, http.StatusOK, listHistoryResponse{
		Tasks:  tasks,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	resp := statsResponse{
		ByStatus: map[string]int{},
		Live:     liveCounts(s.engine.Tasks(store.Filter{})),
		QueueLen: s.engine.QueueLen(),
	}

	if s.history != nil {
		stats, err := s.history.Stats(r.Context())
		if err != nil {
			s.logger.Error("get history stats", "error", err)
			s.writeError(w, http.StatusInternalServerError, "failed to get stats")
			return
		}
		resp.Total = stats.Total
		resp.ByStatus = stats.CountByStatus
		resp.AvgDurationMS = stats.AvgDurationMS
	}

	s.writeJSON(w, http.StatusOK, resp)
}

func liveCounts(tasks []model.Task) map[string]int {
	counts := map[string]int{
		string(model.KindPending):    0,
		string(model.KindProcessing): 0,
		string(model.KindCompleted):  0,
		string(model.KindFailed):     0,
	}
	for _, t := range tasks {
		counts[string(t.Status.Kind)]++
	}
	return counts
}
