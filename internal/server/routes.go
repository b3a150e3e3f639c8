package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"social_feed/internal/api"
	"social_feed/internal/connection"
	"social_feed/internal/domain"
)

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	s.mux.Handle("GET /settings", s.timeout(s.handleGetSettings))
	s.mux.Handle("PUT /settings", s.timeout(s.handleSaveSettings))
	s.mux.Handle("POST /connect", s.timeout(s.handleConnect))
	s.mux.Handle("GET /connect", s.timeout(s.handleGetConnectedPage))
	s.mux.Handle("GET /status", s.timeout(s.handleStatus))

	// GET stays available for external cron callers.
	s.mux.HandleFunc("GET /fetch-posts", s.handleFetchPosts)
	s.mux.HandleFunc("POST /fetch-posts", s.handleFetchPosts)

	for prefix, source := range map[string]domain.Source{
		"/posts": domain.SourceFacebook,
		"/media": domain.SourceInstagram,
	} {
		s.mux.Handle("GET "+prefix, s.timeout(s.handleListItems(source)))
		s.mux.Handle("GET "+prefix+"/{id}", s.timeout(s.handleGetItem(source)))
		s.mux.Handle("DELETE "+prefix+"/{id}", s.timeout(s.handleDeleteItem(source)))
	}

	if s.cfg.UploadsRoot != "" {
		files := http.StripPrefix("/uploads/", http.FileServer(http.Dir(s.cfg.UploadsRoot)))
		s.mux.Handle("GET /uploads/", files)
	}
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	creds, apiErr := s.api.GetSettings(r.Context())
	respond(w, creds, apiErr)
}

func (s *Server) handleSaveSettings(w http.ResponseWriter, r *http.Request) {
	var partial map[string]any
	if !decodeBody(w, r, &partial) {
		return
	}
	creds, apiErr := s.api.SaveSettings(r.Context(), partial)
	respond(w, creds, apiErr)
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	var req connection.ConnectRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, apiErr := s.api.ConnectPage(r.Context(), req)
	respond(w, res, apiErr)
}

func (s *Server) handleGetConnectedPage(w http.ResponseWriter, r *http.Request) {
	page, apiErr := s.api.GetConnectedPage(r.Context())
	respond(w, page, apiErr)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, apiErr := s.api.Status(r.Context())
	respond(w, status, apiErr)
}

func (s *Server) handleFetchPosts(w http.ResponseWriter, r *http.Request) {
	// A caller hanging up does not abort the run; only SyncTimeout bounds it.
	ctx := context.WithoutCancel(r.Context())
	if s.cfg.SyncTimeout > 0 {
		c, cancel := context.WithTimeout(ctx, s.cfg.SyncTimeout)
		defer cancel()
		ctx = c
	}

	res, apiErr := s.api.FetchPosts(ctx)
	respond(w, res, apiErr)
}

func (s *Server) handleListItems(source domain.Source) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		limit, ok := intParam(w, q.Get("limit"), "limit")
		if !ok {
			return
		}
		offset, ok := intParam(w, q.Get("offset"), "offset")
		if !ok {
			return
		}

		list, apiErr := s.api.ListItems(r.Context(), source, api.ListQuery{
			Tag:    q.Get("tag"),
			Limit:  limit,
			Offset: offset,
		})
		respond(w, list, apiErr)
	}
}

func (s *Server) handleGetItem(source domain.Source) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		item, apiErr := s.api.GetItem(r.Context(), source, r.PathValue("id"))
		respond(w, item, apiErr)
	}
}

func (s *Server) handleDeleteItem(source domain.Source) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		item, apiErr := s.api.DeleteItem(r.Context(), source, r.PathValue("id"))
		respond(w, item, apiErr)
	}
}

func respond(w http.ResponseWriter, v any, apiErr *api.Error) {
	if apiErr != nil {
		writeJSON(w, apiErr.Status, apiErr)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, &api.Error{Message: "invalid request body"})
		return false
	}
	return true
}

func intParam(w http.ResponseWriter, raw, name string) (int, bool) {
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, &api.Error{Message: "invalid " + name})
		return 0, false
	}
	return n, true
}
