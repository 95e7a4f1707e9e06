package web

// handlers.go holds the request plumbing shared by every resource: JSON
// decoding, path ids and the generic CRUD, page and export handlers.

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/crm/internal/core"
	"github.com/JonMunkholm/crm/internal/field"
	"github.com/JonMunkholm/crm/internal/model"
)

// MaxBodySize bounds JSON request bodies.
const MaxBodySize = 4 << 20

// decode reads the JSON body into v. An empty body leaves v untouched.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodySize))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		s.badRequest(w, r, err)
		return false
	}
	return true
}

func idParam(r *http.Request) string {
	return strings.TrimSpace(chi.URLParam(r, "id"))
}

// taskResponse answers an accepted export.
type taskResponse struct {
	TaskID string `json:"taskId"`
}

// idsRequest carries the ids of a batch operation.
type idsRequest struct {
	IDs []string `json:"ids"`
}

func create[Req, Rec any](s *Server, add func(context.Context, Req) (Rec, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req Req
		if !s.decode(w, r, &req) {
			return
		}
		rec, err := add(r.Context(), req)
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

// update decodes the body and takes the record id from the path.
func update[Req, Rec any](s *Server, setID func(*Req, string), upd func(context.Context, Req) (Rec, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req Req
		if !s.decode(w, r, &req) {
			return
		}
		setID(&req, idParam(r))
		rec, err := upd(r.Context(), req)
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

func get[V any](s *Server, fetch func(context.Context, string) (V, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, err := fetch(r.Context(), idParam(r))
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

// act runs an operation on the path id and answers 204.
func act(s *Server, op func(context.Context, string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := op(r.Context(), idParam(r)); err != nil {
			s.respondError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func page[V any](s *Server, list func(context.Context, model.ListQuery) (*model.Page[V], error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var q model.ListQuery
		if !s.decode(w, r, &q) {
			return
		}
		p, err := list(r.Context(), q)
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

// exportTask submits an export and answers 202 with the task id.
func exportTask(s *Server, submit func(context.Context, core.ExportRequest) (string, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req core.ExportRequest
		if !s.decode(w, r, &req) {
			return
		}
		id, err := submit(r.Context(), req)
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		writeJSON(w, http.StatusAccepted, taskResponse{TaskID: id})
	}
}

// form answers the caller's form configuration.
func form(s *Server, load func(context.Context) (field.FormConfig, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, err := load(r.Context())
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, f)
	}
}

// importFile passes the multipart "file" part to run and answers its result.
func importFile(s *Server, run func(context.Context, io.Reader) (*model.ImportResult, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		maxSize := s.cfg.Import.MaxFileSize
		r.Body = http.MaxBytesReader(w, r.Body, maxSize)

		if err := r.ParseMultipartForm(maxSize); err != nil {
			s.badUpload(w, r, err)
			return
		}
		defer r.MultipartForm.RemoveAll()

		file, _, err := r.FormFile("file")
		if err != nil {
			s.badUpload(w, r, err)
			return
		}
		defer file.Close()

		res, err := run(r.Context(), file)
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// crudRoutes mounts the routes every resource has.
func crudRoutes[Req, Rec, View any](s *Server, r chi.Router, api resource[Req, Rec, View], setID func(*Req, string)) {
	r.Post("/", create(s, api.Add))
	r.Post("/page", page(s, api.List))
	r.Post("/export-all", exportTask(s, api.ExportAll))
	r.Post("/export-select", exportTask(s, api.ExportSelected))
	r.Get("/form", form(s, api.Form))
	r.Put("/{id}", update(s, setID, api.Update))
	r.Get("/{id}", get(s, api.Get))
	r.Delete("/{id}", act(s, api.Delete))
}
