package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"rfphub/pkg/domain"
)

// /sections/{id}/assignments/{userId}
func (s *Server) handleSectionSubtree(w http.ResponseWriter, r *http.Request, user domain.User) {
	path := strings.TrimPrefix(r.URL.Path, "/sections/")
	parts := strings.Split(path, "/")
	if len(parts) != 3 || parts[0] == "" || parts[1] != "assignments" || parts[2] == "" {
		notFound(w, "not found")
		return
	}
	sectionID, assigneeID := parts[0], parts[2]

	section, ok, err := s.app.GetSection(sectionID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !ok {
		notFound(w, "section not found")
		return
	}
	role, ok := s.requireMember(w, section.ProjectID, user.ID)
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodGet:
		assignment, ok, err := s.app.GetAssignment(sectionID, assigneeID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		if !ok {
			notFound(w, "assignment not found")
			return
		}
		writeJSON(w, http.StatusOK, assignment)
	case http.MethodPut:
		// Contributors may only edit their own draft.
		if assigneeID != user.ID && !canManage(role) {
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		s.handleUpdateAssignment(w, r, sectionID, assigneeID)
	default:
		methodNotAllowed(w)
	}
}

type updateAssignmentRequest struct {
	Content *string `json:"content"`
	Status  *string `json:"status"`
}

func (s *Server) handleUpdateAssignment(w http.ResponseWriter, r *http.Request, sectionID, assigneeID string) {
	var req updateAssignmentRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Content == nil && req.Status == nil {
		writeError(w, http.StatusBadRequest, "content or status is required")
		return
	}
	var status *domain.AssignmentStatus
	if req.Status != nil {
		parsed, ok := parseAssignmentStatus(*req.Status)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid status")
			return
		}
		status = &parsed
	}
	assignment, err := s.app.UpdateAssignment(sectionID, assigneeID, req.Content, status)
	if err != nil {
		writeStoreError(w, err, "assignment not found")
		return
	}
	writeJSON(w, http.StatusOK, assignment)
}

func (s *Server) handleMyAssignments(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	assignments, err := s.app.ListUserAssignments(user.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": assignments,
		"count": len(assignments),
	})
}
