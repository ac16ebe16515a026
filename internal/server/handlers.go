package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/hyperjump/benkyo/internal/config"
	"github.com/hyperjump/benkyo/internal/extract"
	"github.com/hyperjump/benkyo/internal/indexer"
	"github.com/hyperjump/benkyo/internal/models"
	"github.com/hyperjump/benkyo/internal/rag"
	"github.com/hyperjump/benkyo/internal/storage"
	"go.uber.org/zap"
)

// maxBodyBytes bounds JSON request bodies, including fragment batches.
const maxBodyBytes = 32 << 20

type addDocumentRequest struct {
	Path string `json:"path"`
	// Source and Text ingest raw text instead of a file.
	Source string `json:"source,omitempty"`
	Text   string `json:"text,omitempty"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req models.QueryRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.logger.Debug("query request", zap.String("question", req.Question), zap.Int("top_k", req.TopK))
	answer, err := s.session.Ask(r.Context(), req)
	if err != nil {
		s.fail(w, "query failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, answer)
}

func (s *Server) handleAddDocument(w http.ResponseWriter, r *http.Request) {
	var req addDocumentRequest
	if !s.decode(w, r, &req) {
		return
	}
	var (
		res *models.IngestResult
		err error
	)
	switch {
	case req.Path != "":
		res, err = s.session.IngestFile(r.Context(), req.Path)
	case req.Text != "":
		res, err = s.session.IngestText(r.Context(), req.Source, req.Text)
	default:
		s.respondError(w, http.StatusBadRequest, "path or text is required")
		return
	}
	if err != nil {
		s.fail(w, "ingest failed", err)
		return
	}
	s.respondJSON(w, http.StatusCreated, res)
}

func (s *Server) handleAddFragments(w http.ResponseWriter, r *http.Request) {
	var fragments []models.Fragment
	if !s.decode(w, r, &fragments) {
		return
	}
	if err := s.session.AddFragments(r.Context(), fragments); err != nil {
		s.fail(w, "add fragments failed", err)
		return
	}
	s.respondJSON(w, http.StatusCreated, map[string]int{"added": len(fragments)})
}

func (s *Server) handleDocumentsInfo(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.session.Info())
}

func (s *Server) handleClearDocuments(w http.ResponseWriter, r *http.Request) {
	if err := s.session.Clear(r.Context()); err != nil {
		s.fail(w, "clear failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.respondError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	items, err := s.session.History(r.Context(), limit)
	if err != nil {
		s.fail(w, "history failed", err)
		return
	}
	if items == nil {
		items = []*models.Interaction{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"interactions": items})
}

func (s *Server) handleDeleteInteraction(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.session.DeleteInteraction(r.Context(), id); err != nil {
		s.fail(w, "delete interaction failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.session.Status(r.Context())
	if err != nil {
		s.fail(w, "status failed", err)
		return
	}
	resp := map[string]interface{}{
		"status": st,
		"config": map[string]interface{}{
			"embedding_provider":   s.cfg.Embedding.Provider,
			"embedding_dimensions": s.cfg.Embedding.Dimensions,
			"generation_model":     s.cfg.Generation.Model,
			"chunk_size":           s.cfg.Chunking.ChunkSize,
			"chunk_overlap":        s.cfg.Chunking.ChunkOverlap,
			"top_k":                s.cfg.Retrieval.TopK,
			"index_path":           s.cfg.Storage.IndexPath,
			"metadata_path":        s.cfg.Storage.MetadataPath,
			"history_path":         s.cfg.Storage.HistoryPath,
			"extensions":           extract.SupportedExtensions(),
		},
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleWatchDirectoriesList(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"directories": s.watch.Directories()})
}

type watchRequest struct {
	Path string `json:"path"`
	Sync *bool  `json:"sync,omitempty"`
}

func (s *Server) handleWatchDirectoriesAdd(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	var req watchRequest
	if !s.decode(w, r, &req) {
		return
	}
	abs, ok := s.absPath(w, req.Path)
	if !ok {
		return
	}
	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			s.respondError(w, http.StatusNotFound, "directory not found")
			return
		}
		s.fail(w, "watch add failed", err)
		return
	}
	if !info.IsDir() {
		s.respondError(w, http.StatusBadRequest, "path is not a directory")
		return
	}
	syncExisting := req.Sync == nil || *req.Sync
	if err := s.watch.AddDirectory(abs, syncExisting); err != nil {
		s.fail(w, "watch add failed", err)
		return
	}
	s.persistWatchDirectories()
	s.respondJSON(w, http.StatusCreated, map[string]string{"path": abs, "status": "added"})
}

func (s *Server) handleWatchDirectoriesRemove(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	path := r.URL.Query().Get("path")
	if path == "" {
		var req watchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err == nil {
			path = req.Path
		}
	}
	abs, ok := s.absPath(w, path)
	if !ok {
		return
	}
	if err := s.watch.RemoveDirectory(abs); err != nil {
		s.fail(w, "watch remove failed", err)
		return
	}
	s.persistWatchDirectories()
	s.respondJSON(w, http.StatusOK, map[string]string{"path": abs, "status": "removed"})
}

func (s *Server) absPath(w http.ResponseWriter, path string) (string, bool) {
	if path == "" {
		s.respondError(w, http.StatusBadRequest, "path is required")
		return "", false
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid path")
		return "", false
	}
	return abs, true
}

func (s *Server) persistWatchDirectories() {
	if s.configPath == "" {
		return
	}
	s.configMu.Lock()
	defer s.configMu.Unlock()
	s.cfg.Watch.Directories = s.watch.Directories()
	if err := config.Save(s.configPath, s.cfg); err != nil {
		s.logger.Warn("failed to persist watch directories", zap.Error(err))
	}
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// fail maps err to a status code and writes it.
func (s *Server) fail(w http.ResponseWriter, msg string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(msg, zap.Error(err))
	} else {
		s.logger.Debug(msg, zap.Error(err))
	}
	s.respondError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrInvalidInput),
		errors.Is(err, rag.ErrInvalidFragment),
		errors.Is(err, indexer.ErrExtensionNotAllowed),
		errors.Is(err, extract.ErrUnsupportedFormat):
		return http.StatusBadRequest
	case errors.Is(err, indexer.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, indexer.ErrNoContent):
		return http.StatusUnprocessableEntity
	case errors.Is(err, indexer.ErrDuplicateSource):
		return http.StatusConflict
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, os.ErrNotExist):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
