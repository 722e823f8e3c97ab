package api

import "net/http"

type executorsResponse struct {
	Executors []string `json:"executors"`
}

func (s *Server) handleListExecutors(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, executorsResponse{Executors: s.engine.Executors()})
}
