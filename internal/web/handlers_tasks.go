package web

import (
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/crm/internal/core"
	"github.com/JonMunkholm/crm/internal/export"
	"github.com/JonMunkholm/crm/internal/logging"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (s *Server) exportTaskRoutes(r chi.Router) {
	r.Get("/", s.handleListTasks)
	r.Get("/{id}", s.handleGetTask)
	r.Post("/{id}/cancel", s.handleCancelTask)
	r.Get("/{id}/download", s.handleDownloadTask)
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	id, err := core.IdentityFromContext(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	tasks, err := s.api.Tasks.Tasks(r.Context(), id.OrgID, id.UserID, limit)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if tasks == nil {
		tasks = []export.Task{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	id, err := core.IdentityFromContext(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	task, err := s.api.Tasks.Task(r.Context(), id.OrgID, id.UserID, idParam(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleCancelTask(w http.ResponseWriter, r *http.Request) {
	id, err := core.IdentityFromContext(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	task, err := s.api.Tasks.Cancel(r.Context(), id.OrgID, id.UserID, idParam(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	logging.FromContext(r.Context()).Info("export task cancel requested", "task_id", task.ID, "status", task.Status)
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleDownloadTask(w http.ResponseWriter, r *http.Request) {
	id, err := core.IdentityFromContext(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	task, path, err := s.api.Tasks.File(r.Context(), id.OrgID, id.UserID, idParam(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{
		"filename": task.FileName + ".xlsx",
	}))
	http.ServeFile(w, r, path)
}
