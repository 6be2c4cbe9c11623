package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"rfphub/internal/app"
	"rfphub/pkg/domain"
)

func (s *Server) handleProjects(w http.ResponseWriter, r *http.Request, user domain.User) {
	switch r.Method {
	case http.MethodGet:
		s.handleListProjects(w, user)
	case http.MethodPost:
		s.handleCreateProject(w, r, user)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleListProjects(w http.ResponseWriter, user domain.User) {
	projects, err := s.app.ListProjects(user.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": projects,
		"count": len(projects),
	})
}

type createProjectRequest struct {
	Name   string `json:"name"`
	Client string `json:"client"`
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request, user domain.User) {
	var req createProjectRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if strings.TrimSpace(req.Client) == "" {
		writeError(w, http.StatusBadRequest, "client is required")
		return
	}
	project, err := s.app.CreateProject(strings.TrimSpace(req.Name), strings.TrimSpace(req.Client), user.ID)
	if err != nil {
		writeStoreError(w, err, "project not found")
		return
	}
	writeJSON(w, http.StatusCreated, project)
}

// /projects/{id} and everything nested under it.
func (s *Server) handleProjectSubtree(w http.ResponseWriter, r *http.Request, user domain.User) {
	path := strings.TrimPrefix(r.URL.Path, "/projects/")
	parts := strings.Split(path, "/")
	id := parts[0]
	if id == "" {
		notFound(w, "not found")
		return
	}
	if len(parts) == 1 {
		s.handleProjectByID(w, r, user, id)
		return
	}
	switch parts[1] {
	case "sections":
		if len(parts) != 2 {
			notFound(w, "not found")
			return
		}
		s.handleProjectSections(w, r, user, id)
	case "documents":
		if len(parts) == 2 {
			s.handleProjectDocuments(w, r, user, id)
			return
		}
		if len(parts) == 4 && parts[3] == "selection" && parts[2] != "" {
			s.handleDocumentSelection(w, r, user, id, parts[2])
			return
		}
		notFound(w, "not found")
	case "assignments":
		if len(parts) != 2 {
			notFound(w, "not found")
			return
		}
		s.handleProjectAssignments(w, r, user, id)
	case "versions":
		if len(parts) != 2 {
			notFound(w, "not found")
			return
		}
		s.handleProjectVersions(w, r, user, id)
	case "contributors":
		if len(parts) != 2 {
			notFound(w, "not found")
			return
		}
		s.handleProjectContributors(w, r, user, id)
	default:
		notFound(w, "not found")
	}
}

type projectPatchRequest struct {
	Name      *string    `json:"name"`
	Client    *string    `json:"client"`
	StartDate *time.Time `json:"startDate"`
	Status    *string    `json:"status"`
}

func (s *Server) handleProjectByID(w http.ResponseWriter, r *http.Request, user domain.User, id string) {
	role, ok := s.requireMember(w, id, user.ID)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		project, ok, err := s.app.GetProject(id)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		if !ok {
			notFound(w, "project not found")
			return
		}
		writeJSON(w, http.StatusOK, project)
	case http.MethodPut:
		if !canManage(role) {
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		var req projectPatchRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		patch := domain.ProjectPatch{
			Name:      req.Name,
			Client:    req.Client,
			StartDate: req.StartDate,
			Status:    req.Status,
		}
		if patch.IsEmpty() {
			writeError(w, http.StatusBadRequest, "no fields to update")
			return
		}
		project, found, err := s.app.UpdateProject(id, patch)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		if !found {
			notFound(w, "project not found")
			return
		}
		writeJSON(w, http.StatusOK, project)
	case http.MethodDelete:
		writeError(w, http.StatusNotImplemented, "project deletion not implemented")
	default:
		methodNotAllowed(w)
	}
}

type createSectionRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	OrderNumber int    `json:"orderNumber"`
}

func (s *Server) handleProjectSections(w http.ResponseWriter, r *http.Request, user domain.User, projectID string) {
	role, ok := s.requireMember(w, projectID, user.ID)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		sections, err := s.app.ListSections(projectID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"items": sections,
			"count": len(sections),
		})
	case http.MethodPost:
		if !canManage(role) {
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		var req createSectionRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if strings.TrimSpace(req.Name) == "" {
			writeError(w, http.StatusBadRequest, "name is required")
			return
		}
		section, err := s.app.CreateSection(projectID, strings.TrimSpace(req.Name), req.Description, req.OrderNumber)
		if err != nil {
			writeStoreError(w, err, "project not found")
			return
		}
		writeJSON(w, http.StatusCreated, section)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleProjectDocuments(w http.ResponseWriter, r *http.Request, user domain.User, projectID string) {
	if _, ok := s.requireMember(w, projectID, user.ID); !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		var docType domain.DocumentType
		if v := r.URL.Query().Get("type"); v != "" {
			parsed, ok := parseDocumentType(v)
			if !ok {
				writeError(w, http.StatusBadRequest, "invalid document type")
				return
			}
			docType = parsed
		}
		docs, err := s.app.ListProjectDocuments(projectID, docType)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"items": docs,
			"count": len(docs),
		})
	case http.MethodPost:
		s.handleUploadProjectDocument(w, r, user, projectID)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleUploadProjectDocument(w http.ResponseWriter, r *http.Request, user domain.User, projectID string) {
	if !s.allowUpload(w, user.ID) {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form data")
		return
	}
	name := strings.TrimSpace(r.FormValue("name"))
	if name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	docType, ok := parseDocumentType(r.FormValue("documentType"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid document type")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required (field: file)")
		return
	}
	defer file.Close()
	doc, err := s.app.UploadProjectDocument(projectID, user.ID, name, header.Filename, docType, file, header.Size)
	if err != nil {
		writeStoreError(w, err, "project not found")
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

type selectionRequest struct {
	IsSelected *bool `json:"isSelected"`
}

func (s *Server) handleDocumentSelection(w http.ResponseWriter, r *http.Request, user domain.User, projectID, documentID string) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w)
		return
	}
	if _, ok := s.requireMember(w, projectID, user.ID); !ok {
		return
	}
	var req selectionRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.IsSelected == nil {
		writeError(w, http.StatusBadRequest, "isSelected is required")
		return
	}
	if err := s.app.SetDocumentSelection(projectID, documentID, *req.IsSelected); err != nil {
		writeStoreError(w, err, "document not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (s *Server) handleProjectAssignments(w http.ResponseWriter, r *http.Request, user domain.User, projectID string) {
	role, ok := s.requireMember(w, projectID, user.ID)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		assignments, err := s.app.ListProjectAssignments(projectID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"items": assignments,
			"count": len(assignments),
		})
	case http.MethodPut:
		if !canManage(role) {
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		// Body maps section id to assignee id. Empty string unassigns.
		var desired map[string]string
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&desired); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if err := s.app.ReconcileAssignments(projectID, desired); err != nil {
			switch {
			case errors.Is(err, app.ErrUnknownSection):
				notFound(w, "section not found")
			case errors.Is(err, app.ErrUnknownAssignee):
				notFound(w, "user not found")
			default:
				writeStoreError(w, err, "project not found")
			}
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleProjectVersions(w http.ResponseWriter, r *http.Request, user domain.User, projectID string) {
	role, ok := s.requireMember(w, projectID, user.ID)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		versions, err := s.app.ListRfpVersions(projectID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"items": versions,
			"count": len(versions),
		})
	case http.MethodPost:
		if !canManage(role) {
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		if !s.allowUpload(w, user.ID) {
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			writeError(w, http.StatusBadRequest, "invalid form data")
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			writeError(w, http.StatusBadRequest, "file is required (field: file)")
			return
		}
		defer file.Close()
		version, err := s.app.UploadRfpVersion(projectID, header.Filename, file, header.Size)
		if err != nil {
			writeStoreError(w, err, "project not found")
			return
		}
		writeJSON(w, http.StatusCreated, version)
	default:
		methodNotAllowed(w)
	}
}

type addContributorRequest struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	Role   string `json:"role"`
}

func (s *Server) handleProjectContributors(w http.ResponseWriter, r *http.Request, user domain.User, projectID string) {
	role, ok := s.requireMember(w, projectID, user.ID)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		contributors, err := s.app.ListContributors(projectID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"items": contributors,
			"count": len(contributors),
		})
	case http.MethodPost:
		if !canManage(role) {
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		var req addContributorRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		newRole, ok := parseRole(req.Role)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid role")
			return
		}
		member, ok, err := s.app.ResolveUser(req.UserID, req.Email)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		if !ok {
			notFound(w, "user not found")
			return
		}
		if err := s.app.AddContributor(projectID, member.ID, newRole); err != nil {
			writeStoreError(w, err, "project not found")
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"status": "added"})
	default:
		methodNotAllowed(w)
	}
}
