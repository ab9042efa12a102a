package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"

	"github.com/hyperjump/miwake/internal/catalog"
	"github.com/hyperjump/miwake/internal/extract"
	"github.com/hyperjump/miwake/internal/indexer"
	"go.uber.org/zap"
)

func (s *Server) handleIdentify(w http.ResponseWriter, r *http.Request) {
	data, err := readImage(w, r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Debug("identify request", zap.Int("bytes", len(data)))
	res, err := s.engine.IdentifyBytes(r.Context(), data)
	if err != nil {
		s.logger.Error("identify failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleAddEntry(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if err := indexer.ValidateID(id); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	data, err := readImage(w, r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Debug("add entry request", zap.String("id", id), zap.Int("bytes", len(data)))
	out, err := s.engine.AddEntry(r.Context(), id, data)
	switch {
	case errors.Is(err, catalog.ErrDuplicateEntry):
		s.respondError(w, http.StatusConflict, err.Error())
		return
	case errors.Is(err, extract.ErrDecode):
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		s.logger.Error("add entry failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !out.OK() {
		s.respondJSON(w, http.StatusUnprocessableEntity, out)
		return
	}
	s.respondJSON(w, http.StatusCreated, out)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.EnsureLoaded(r.Context()); err != nil {
		s.logger.Error("status: load catalog failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := map[string]interface{}{
		"stats": s.engine.Stats(),
	}
	if s.watch != nil {
		resp["watch_directories"] = s.watch.Directories()
	}
	s.respondJSON(w, http.StatusOK, resp)
}

// readImage returns the request's image bytes: the "image" field of a
// multipart form, or the raw body otherwise.
func readImage(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	var (
		data []byte
		err  error
	)
	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			return nil, fmt.Errorf("invalid multipart form: %w", err)
		}
		file, _, ferr := r.FormFile("image")
		if ferr != nil {
			return nil, errors.New("multipart field \"image\" is required")
		}
		defer file.Close()
		data, err = io.ReadAll(file)
	} else {
		data, err = io.ReadAll(r.Body)
	}
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	if len(data) == 0 {
		return nil, errors.New("image body is required")
	}
	return data, nil
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
