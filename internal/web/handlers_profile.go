package web

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/commercekit/dataport/internal/profile"
)

func parseID(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, name), 10, 64)
}

func (s *Server) handleListProfiles(w http.ResponseWriter, r *http.Request) {
	profiles, err := s.profiles.List(r.Context())
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	out := make([]map[string]any, 0, len(profiles))
	for _, p := range profiles {
		out = append(out, map[string]any{
			"id": p.ID, "name": p.Name, "type": p.Type, "createdAt": p.CreatedAt,
		})
	}
	writeSuccess(w, out)
}

type createProfileRequest struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

func (s *Server) handleCreateProfile(w http.ResponseWriter, r *http.Request) {
	var req createProfileRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		s.respondError(w, r, errors.New("profile name is required"), http.StatusBadRequest)
		return
	}
	p, err := s.profiles.Create(r.Context(), req.Name, req.Type)
	if err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}
	writeSuccess(w, map[string]any{"id": p.ID, "name": p.Name, "type": p.Type})
}

// loadProfile fetches a profile by its path id, translating a missing
// profile to 404.
func (s *Server) loadProfile(w http.ResponseWriter, r *http.Request) (*profile.Profile, bool) {
	id, err := parseID(r, "id")
	if err != nil {
		s.respondError(w, r, errors.New("invalid profile id"), http.StatusBadRequest)
		return nil, false
	}
	p, err := s.profiles.Get(r.Context(), id)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, profile.ErrProfileNotFound) {
			status = http.StatusNotFound
		}
		s.respondError(w, r, err, status)
		return nil, false
	}
	return p, true
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	p, ok := s.loadProfile(w, r)
	if !ok {
		return
	}
	writeSuccess(w, map[string]any{
		"id": p.ID, "name": p.Name, "type": p.Type,
		"tree": p.Tree, "expressions": p.Expressions, "createdAt": p.CreatedAt,
	})
}

func (s *Server) handleDeleteProfile(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		s.respondError(w, r, errors.New("invalid profile id"), http.StatusBadRequest)
		return
	}
	if err := s.profiles.Delete(r.Context(), id); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, profile.ErrProfileNotFound) {
			status = http.StatusNotFound
		}
		s.respondError(w, r, err, status)
		return
	}
	writeSuccess(w, nil)
}

func (s *Server) handleGetTree(w http.ResponseWriter, r *http.Request) {
	p, ok := s.loadProfile(w, r)
	if !ok {
		return
	}
	writeSuccess(w, p.Tree)
}

// nodeRequest carries one tree edit. The field names follow the persisted
// tree transport.
type nodeRequest struct {
	ParentID    string `json:"parentId"`
	Name        string `json:"name"`
	Kind        string `json:"type"`
	Index       int    `json:"index"`
	AdapterName string `json:"adapter"`
	ParentKey   string `json:"parentKey"`
	SourceField string `json:"shopwareField"`
}

func (s *Server) handleCreateNode(w http.ResponseWriter, r *http.Request) {
	p, ok := s.loadProfile(w, r)
	if !ok {
		return
	}
	var req nodeRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}
	if req.ParentID == "" {
		req.ParentID = profile.RootID
	}
	kind := profile.Kind(req.Kind)
	if kind == "" {
		kind = profile.KindNode
	}

	n, err := p.Tree.Append(req.ParentID, &profile.Node{
		Name:        req.Name,
		Kind:        kind,
		OrderIndex:  req.Index,
		SourceField: req.SourceField,
		AdapterName: req.AdapterName,
		ParentKey:   req.ParentKey,
	})
	if err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}
	if err := s.profiles.SaveTree(r.Context(), p.ID, p.Tree); err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	writeSuccess(w, map[string]any{"id": n.ID})
}

func (s *Server) handleUpdateNode(w http.ResponseWriter, r *http.Request) {
	p, ok := s.loadProfile(w, r)
	if !ok {
		return
	}
	nodeID := chi.URLParam(r, "nodeID")
	var req nodeRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}

	// A changed parent id is a move; field changes apply afterwards.
	if req.ParentID != "" {
		if n, found := p.Tree.FindByID(nodeID); found && n.Parent() != nil && n.Parent().ID != req.ParentID {
			if err := p.Tree.Move(nodeID, req.ParentID); err != nil {
				s.respondError(w, r, err, http.StatusBadRequest)
				return
			}
		}
	}
	err := p.Tree.Update(nodeID, profile.NodeUpdate{
		Name:        req.Name,
		OrderIndex:  req.Index,
		SourceField: req.SourceField,
		AdapterName: req.AdapterName,
		ParentKey:   req.ParentKey,
	})
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, profile.ErrNotFound) {
			status = http.StatusNotFound
		}
		s.respondError(w, r, err, status)
		return
	}
	if err := s.profiles.SaveTree(r.Context(), p.ID, p.Tree); err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	writeSuccess(w, nil)
}

func (s *Server) handleDeleteNode(w http.ResponseWriter, r *http.Request) {
	p, ok := s.loadProfile(w, r)
	if !ok {
		return
	}
	nodeID := chi.URLParam(r, "nodeID")
	if !p.Tree.Delete(nodeID) {
		s.respondError(w, r, profile.ErrNotFound, http.StatusNotFound)
		return
	}
	if err := s.profiles.SaveTree(r.Context(), p.ID, p.Tree); err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	writeSuccess(w, nil)
}

type conversionRequest struct {
	Variable         string `json:"variable"`
	ExportConversion string `json:"exportConversion"`
	ImportConversion string `json:"importConversion"`
}

func (s *Server) handleListConversions(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		s.respondError(w, r, errors.New("invalid profile id"), http.StatusBadRequest)
		return
	}
	exprs, err := s.profiles.ListExpressions(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	writeSuccess(w, exprs)
}

func (s *Server) handleCreateConversion(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		s.respondError(w, r, errors.New("invalid profile id"), http.StatusBadRequest)
		return
	}
	var req conversionRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}
	if req.Variable == "" {
		s.respondError(w, r, errors.New("conversion variable is required"), http.StatusBadRequest)
		return
	}
	e, err := s.profiles.CreateExpression(r.Context(), profile.Expression{
		ProfileID:        id,
		Variable:         req.Variable,
		ExportConversion: req.ExportConversion,
		ImportConversion: req.ImportConversion,
	})
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	writeSuccess(w, e)
}

func (s *Server) handleUpdateConversion(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		s.respondError(w, r, errors.New("invalid conversion id"), http.StatusBadRequest)
		return
	}
	var req conversionRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}
	err = s.profiles.UpdateExpression(r.Context(), profile.Expression{
		ID:               id,
		Variable:         req.Variable,
		ExportConversion: req.ExportConversion,
		ImportConversion: req.ImportConversion,
	})
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, profile.ErrNotFound) {
			status = http.StatusNotFound
		}
		s.respondError(w, r, err, status)
		return
	}
	writeSuccess(w, nil)
}

func (s *Server) handleDeleteConversion(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		s.respondError(w, r, errors.New("invalid conversion id"), http.StatusBadRequest)
		return
	}
	if err := s.profiles.DeleteExpression(r.Context(), id); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, profile.ErrNotFound) {
			status = http.StatusNotFound
		}
		s.respondError(w, r, err, status)
		return
	}
	writeSuccess(w, nil)
}
