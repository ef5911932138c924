package web

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/commercekit/dataport/internal/adapter"
	"github.com/commercekit/dataport/internal/session"
	"github.com/commercekit/dataport/internal/workflow"
)

type prepareRequest struct {
	ProfileID      int64          `json:"profileId"`
	Format         string         `json:"format"`
	File           string         `json:"file,omitempty"`
	Limit          int            `json:"limit,omitempty"`
	MaxRecordCount int            `json:"maxRecordCount,omitempty"`
	Filter         adapter.Filter `json:"filter,omitempty"`
}

type stepRequest struct {
	SessionID string `json:"sessionId"`
	Limit     int    `json:"limit,omitempty"`
}

func (s *Server) pageLimit(requested int) int {
	if requested > 0 {
		return requested
	}
	return s.cfg.PageLimit
}

func (s *Server) buildWorkflow(r *http.Request, sess *session.Session, limit int, req prepareRequest) (*workflow.Workflow, error) {
	p, err := s.profiles.Get(r.Context(), sess.ProfileID)
	if err != nil {
		return nil, err
	}
	maxCount := req.MaxRecordCount
	if maxCount == 0 {
		maxCount = s.cfg.MaxRecordCount
	}
	return workflow.New(p, sess, workflow.Options{
		Limit:          s.pageLimit(limit),
		Filter:         req.Filter,
		MaxRecordCount: maxCount,
		FilePath:       filepath.Join(s.cfg.FilesDir, sess.FileName),
	}, s.adapters, s.sessions, s.log)
}

func (s *Server) handlePrepareExport(w http.ResponseWriter, r *http.Request) {
	var req prepareRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}
	p, err := s.profiles.Get(r.Context(), req.ProfileID)
	if err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}

	fileName := fmt.Sprintf("%s-%s.%s", p.Type, time.Now().UTC().Format("20060102-150405"), req.Format)
	sess := session.New(p.ID, session.DirectionExport, req.Format, fileName)

	wf, err := s.buildWorkflow(r, sess, req.Limit, req)
	if err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}
	if err := s.sessions.Create(r.Context(), sess); err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	progress, err := wf.PrepareExport(r.Context())
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	writeSuccess(w, map[string]any{
		"sessionId":  sess.ID,
		"fileName":   sess.FileName,
		"position":   progress.Position,
		"totalCount": progress.Total,
	})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	s.handleStep(w, r, session.DirectionExport)
}

func (s *Server) handlePrepareImport(w http.ResponseWriter, r *http.Request) {
	var req prepareRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}
	fileName, err := safeFileName(req.File)
	if err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}
	p, err := s.profiles.Get(r.Context(), req.ProfileID)
	if err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}

	sess := session.New(p.ID, session.DirectionImport, req.Format, fileName)
	wf, err := s.buildWorkflow(r, sess, req.Limit, req)
	if err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}
	if err := s.sessions.Create(r.Context(), sess); err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	progress, err := wf.PrepareImport(r.Context())
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	writeSuccess(w, map[string]any{
		"sessionId":  sess.ID,
		"position":   progress.Position,
		"totalCount": progress.Total,
	})
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	s.handleStep(w, r, session.DirectionImport)
}

// handleStep runs one page of an existing session.
func (s *Server) handleStep(w http.ResponseWriter, r *http.Request, direction string) {
	var req stepRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}
	id, err := uuid.Parse(req.SessionID)
	if err != nil {
		s.respondError(w, r, errors.New("invalid session id"), http.StatusBadRequest)
		return
	}
	sess, err := s.sessions.Get(r.Context(), id)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, session.ErrSessionNotFound) {
			status = http.StatusNotFound
		}
		s.respondError(w, r, err, status)
		return
	}
	if sess.Direction != direction {
		s.respondError(w, r, fmt.Errorf("session %s is not an %s run", sess.ID, direction), http.StatusBadRequest)
		return
	}

	wf, err := s.buildWorkflow(r, sess, req.Limit, prepareRequest{})
	if err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}

	var progress workflow.Progress
	if direction == session.DirectionExport {
		progress, err = wf.ExportStep(r.Context())
	} else {
		progress, err = wf.ImportStep(r.Context())
	}
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	writeSuccess(w, map[string]any{
		"position":   progress.Position,
		"totalCount": progress.Total,
		"done":       sess.Done(),
		"messages":   sess.Messages,
		"fileName":   sess.FileName,
	})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.sessions.List(r.Context())
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	out := make([]map[string]any, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, map[string]any{
			"id":         sess.ID,
			"profileId":  sess.ProfileID,
			"direction":  sess.Direction,
			"format":     sess.Format,
			"fileName":   sess.FileName,
			"position":   sess.Position,
			"totalCount": sess.TotalCount,
			"state":      sess.State,
			"createdAt":  sess.CreatedAt,
		})
	}
	writeSuccess(w, out)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, errors.New("invalid session id"), http.StatusBadRequest)
		return
	}
	if err := s.sessions.Delete(r.Context(), id); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, session.ErrSessionNotFound) {
			status = http.StatusNotFound
		}
		s.respondError(w, r, err, status)
		return
	}
	writeSuccess(w, nil)
}

func (s *Server) handleDownloadFile(w http.ResponseWriter, r *http.Request) {
	name, err := safeFileName(chi.URLParam(r, "name"))
	if err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	case ".xml":
		w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	default:
		w.Header().Set("Content-Type", "application/octet-stream")
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	http.ServeFile(w, r, filepath.Join(s.cfg.FilesDir, name))
}

// safeFileName rejects names that could escape the files directory.
func safeFileName(name string) (string, error) {
	if name == "" {
		return "", errors.New("file name is required")
	}
	if strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return "", fmt.Errorf("invalid file name %q", name)
	}
	return name, nil
}
