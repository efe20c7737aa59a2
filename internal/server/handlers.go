package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/policyqa/internal/apperr"
	"github.com/hyperjump/policyqa/internal/extract"
	"github.com/hyperjump/policyqa/internal/provider"
	"github.com/hyperjump/policyqa/internal/session"
)

// multipartMemory is the part of an upload kept in memory before spilling to disk.
const multipartMemory = 8 << 20

type backendInfo struct {
	ID    provider.Backend `json:"id"`
	Label string           `json:"label"`
}

type backendsResponse struct {
	Backends   []backendInfo    `json:"backends"`
	Default    provider.Backend `json:"default"`
	Extensions []string         `json:"extensions"`
}

type backendRequest struct {
	Backend string `json:"backend"`
}

type askRequest struct {
	Question string `json:"question"`
}

func (s *Server) handleIndexPage(w http.ResponseWriter, r *http.Request) {
	page, err := staticFS.ReadFile("static/index.html")
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "page unavailable")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(page)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleBackends(w http.ResponseWriter, r *http.Request) {
	resp := backendsResponse{Backends: []backendInfo{}, Default: s.defaultBackend, Extensions: extract.SupportedExtensions()}
	for _, b := range s.backends.Available() {
		resp.Backends = append(resp.Backends, backendInfo{ID: b, Label: b.Label()})
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleIndexStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{"exists": s.index.Exists()}
	if m, err := s.index.Manifest(); err == nil {
		resp["manifest"] = m
	}
	if n, err := s.index.DiskUsage(); err == nil {
		resp["disk_usage_bytes"] = n
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	backend := s.defaultBackend
	var req backendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Backend != "" {
		b, err := provider.ParseBackend(req.Backend)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "unknown backend")
			return
		}
		if err := s.controller.CheckBackend(b); err != nil {
			s.respondAppError(w, err)
			return
		}
		backend = b
	}
	sess := s.sessions.Create(backend)
	s.logger.Debug("session created", zap.String("session", sess.ID), zap.String("backend", string(backend)))
	s.respondJSON(w, http.StatusCreated, sess.Snapshot())
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	s.respondJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	err := s.sessions.Delete(id)
	if apperr.KindOf(err) == apperr.KindNotFound {
		s.respondAppError(w, err)
		return
	}
	if err != nil {
		s.logger.Warn("failed to close session", zap.String("session", id), zap.Error(err))
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleSelectBackend(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req backendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	b, err := provider.ParseBackend(req.Backend)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "unknown backend")
		return
	}
	if err := s.controller.SelectBackend(sess, b); err != nil {
		s.respondAppError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	if s.config.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxUploadBytes)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || (s.config.MaxUploadBytes > 0 && r.ContentLength > s.config.MaxUploadBytes) {
			s.respondError(w, http.StatusRequestEntityTooLarge, "document is too large")
			return
		}
		if !errors.Is(err, http.ErrNotMultipart) {
			s.respondError(w, http.StatusBadRequest, "invalid upload")
			return
		}
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondAppError(w, apperr.ErrNoDocument)
		return
	}
	defer file.Close()

	doc, err := s.controller.Process(r.Context(), sess, &session.Upload{Name: header.Filename, Reader: file})
	if err != nil {
		s.respondAppError(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, map[string]interface{}{
		"document": doc,
		"state":    sess.State(),
	})
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	reply, err := s.controller.Ask(r.Context(), sess, req.Question)
	if err != nil {
		s.respondAppError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, reply)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	s.controller.Reset(sess)
	s.respondJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, err := s.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.respondAppError(w, err)
		return nil, false
	}
	return sess, true
}

// respondAppError writes the status and user-safe message for err.
func (s *Server) respondAppError(w http.ResponseWriter, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Error(err))
	}
	s.respondJSON(w, status, map[string]string{
		"error": apperr.UserMessage(err),
		"kind":  string(apperr.KindOf(err)),
	})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
