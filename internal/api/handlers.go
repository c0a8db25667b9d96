package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/image2doc/image2doc/internal/coordinator"
	"github.com/image2doc/image2doc/internal/history"
	"github.com/image2doc/image2doc/internal/storage"
)

// statusClientClosedRequest mirrors nginx's convention for requests the
// client abandoned.
const statusClientClosedRequest = 499

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

// respondOperationError maps coordinator errors onto HTTP statuses.
func (s *Server) respondOperationError(w http.ResponseWriter, err error) {
	var verr *coordinator.ValidationError
	switch {
	case errors.As(err, &verr):
		respondJSON(w, http.StatusBadRequest, map[string]any{
			"error":  verr.Error(),
			"errors": verr.Reasons,
		})
	case errors.Is(err, storage.ErrNotFound):
		respondError(w, http.StatusNotFound, "file not found")
	case errors.Is(err, coordinator.ErrNotReady):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, coordinator.ErrBackendUnavailable):
		respondError(w, http.StatusServiceUnavailable, err.Error())
	default:
		s.log.Error().Err(err).Msg("request failed")
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	backend := "up"
	if err := s.backend.Health(r.Context()); err != nil {
		backend = "down"
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok", "backend": backend})
}

func (s *Server) handleLanguages(w http.ResponseWriter, r *http.Request) {
	langs, err := s.langs.Languages(r.Context())
	payload := map[string]any{"languages": langs}
	if err != nil {
		// The fallback list is still usable; flag degraded mode instead
		// of failing the request.
		payload["degraded"] = true
	}
	respondJSON(w, http.StatusOK, payload)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.coord.Stats())
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxFileSize+1<<20)
	file, header, err := r.FormFile("image")
	if err != nil {
		respondError(w, http.StatusBadRequest, "multipart field \"image\" is required")
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	rec, err := s.coord.ProcessUpload(r.Context(), coordinator.Upload{
		Name:        header.Filename,
		Size:        header.Size,
		ContentType: contentType,
		Data:        file,
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			w.WriteHeader(statusClientClosedRequest)
			return
		}
		s.respondOperationError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, rec)
}

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"files": s.coord.Files()})
}

func (s *Server) handleClearFiles(w http.ResponseWriter, r *http.Request) {
	count := s.coord.ClearAllFiles(r.Context())
	respondJSON(w, http.StatusOK, map[string]int{"removed": count})
}

func (s *Server) handleGetFile(w http.ResponseWriter, r *http.Request) {
	rec, err := s.coord.File(chi.URLParam(r, "fileID"))
	if err != nil {
		s.respondOperationError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

func (s *Server) handleRemoveFile(w http.ResponseWriter, r *http.Request) {
	if err := s.coord.RemoveFile(r.Context(), chi.URLParam(r, "fileID")); err != nil {
		s.respondOperationError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type convertRequest struct {
	Format   string `json:"format"`
	Language string `json:"language"`
}

func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	var req convertRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}
	fileID := chi.URLParam(r, "fileID")
	if err := s.coord.StartConversion(r.Context(), fileID, req.Format, req.Language); err != nil {
		s.respondOperationError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	fileID := chi.URLParam(r, "fileID")
	cancelled := s.coord.Cancel(fileID)
	respondJSON(w, http.StatusOK, map[string]bool{"cancelled": cancelled})
}

func (s *Server) handleDownloadURL(w http.ResponseWriter, r *http.Request) {
	fileID := chi.URLParam(r, "fileID")
	rec, err := s.coord.File(fileID)
	if err != nil {
		s.respondOperationError(w, err)
		return
	}
	if rec.DownloadKey == "" {
		respondError(w, http.StatusConflict, "file has no converted document")
		return
	}
	expires := time.Now().Add(s.cfg.SignedURLTTL).Unix()
	signature := s.signer.Sign(fileID, expires)
	url := fmt.Sprintf("/api/files/%s/download?expires=%d&signature=%s", fileID, expires, signature)
	respondJSON(w, http.StatusOK, map[string]any{"url": url, "expires": expires})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	fileID := chi.URLParam(r, "fileID")
	expires := r.URL.Query().Get("expires")
	signature := r.URL.Query().Get("signature")
	if !s.signer.Validate(fileID, expires, signature) {
		respondError(w, http.StatusForbidden, "invalid or expired download link")
		return
	}
	rec, err := s.coord.File(fileID)
	if err != nil {
		s.respondOperationError(w, err)
		return
	}
	w.Header().Set("Content-Type", rec.DownloadType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", rec.DownloadName))
	if _, err := s.coord.Download(r.Context(), fileID, w); err != nil {
		// Headers may already be out; just log.
		s.log.Error().Err(err).Str("file_id", fileID).Msg("download failed")
	}
}

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	active := s.center.Active()
	out := make([]map[string]any, 0, len(active))
	for _, n := range active {
		actions := make([]map[string]string, 0, len(n.Actions))
		for _, a := range n.Actions {
			actions = append(actions, map[string]string{"id": a.ID, "label": a.Label})
		}
		out = append(out, map[string]any{
			"id":        n.ID,
			"level":     n.Level,
			"title":     n.Title,
			"message":   n.Message,
			"actions":   actions,
			"createdAt": n.CreatedAt,
		})
	}
	respondJSON(w, http.StatusOK, map[string]any{"notifications": out})
}

func (s *Server) handleClearNotifications(w http.ResponseWriter, r *http.Request) {
	s.center.Clear()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDismissNotification(w http.ResponseWriter, r *http.Request) {
	s.center.Remove(chi.URLParam(r, "notificationID"))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleNotificationAction(w http.ResponseWriter, r *http.Request) {
	err := s.center.HandleAction(chi.URLParam(r, "notificationID"), chi.URLParam(r, "actionID"))
	if err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetPreferences(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"theme":         s.prefs.Theme(),
		"searchHistory": s.prefs.SearchHistory(),
	})
}

type themeRequest struct {
	Theme string `json:"theme"`
}

func (s *Server) handleSetTheme(w http.ResponseWriter, r *http.Request) {
	var req themeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.prefs.SetTheme(req.Theme); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type searchRequest struct {
	Term string `json:"term"`
}

func (s *Server) handleAddSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.prefs.AddSearch(req.Term); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"searchHistory": s.prefs.SearchHistory()})
}

func (s *Server) handleClearSearches(w http.ResponseWriter, r *http.Request) {
	if err := s.prefs.ClearHistory(); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	entries, err := s.hist.Recent(r.Context(), limit)
	if err != nil {
		s.log.Error().Err(err).Msg("load history")
		respondError(w, http.StatusInternalServerError, "history unavailable")
		return
	}
	if entries == nil {
		entries = []history.Entry{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"conversions": entries})
}
