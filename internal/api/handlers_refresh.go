package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/cloudshelf/cloudshelf/internal/jobs"
	"github.com/cloudshelf/cloudshelf/internal/models"
	"github.com/cloudshelf/cloudshelf/internal/refresh"
)

type RefreshRequest struct {
	ResetIndex bool `json:"reset_index"`
}

// POST /api/v1/refresh — start a library scan. The body is optional;
// reset_index forces every folder to be re-resolved.
func (s *Server) handleStartRefresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	userID := s.getUserID(r)
	taskID, err := jobs.StartRefresh(s.config, s.taskRepo, s.jobQueue, req.ResetIndex, &userID)
	if err != nil {
		if errors.Is(err, refresh.ErrNotConfigured) {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.respondError(w, http.StatusInternalServerError, "failed to start refresh")
		return
	}

	s.respondJSON(w, http.StatusAccepted, Response{
		Success: true,
		Data:    map[string]string{"task_id": taskID.String()},
	})
}

// GET /api/v1/refresh/tasks — recent scan tasks, newest first.
func (s *Server) handleListRefreshTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.taskRepo.ListRecent(50)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to list scan tasks")
		return
	}
	if tasks == nil {
		tasks = []*models.ScanTask{}
	}
	s.respondJSON(w, http.StatusOK, Response{Success: true, Data: tasks})
}

// GET /api/v1/refresh/tasks/{id}
func (s *Server) handleGetRefreshTask(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid task id")
		return
	}

	task, err := s.taskRepo.GetByID(id)
	if err != nil {
		s.respondError(w, http.StatusNotFound, "scan task not found")
		return
	}
	s.respondJSON(w, http.StatusOK, Response{Success: true, Data: task})
}
