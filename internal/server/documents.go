package server

import (
	"errors"
	"net/http"
	"strings"

	"rfphub/internal/app"
	"rfphub/pkg/domain"
)

func (s *Server) handleDocuments(w http.ResponseWriter, r *http.Request, user domain.User) {
	switch r.Method {
	case http.MethodGet:
		docs, err := s.app.ListAgencyDocuments()
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"items": docs,
			"count": len(docs),
		})
	case http.MethodPost:
		s.handleUploadAgencyDocument(w, r, user)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleUploadAgencyDocument(w http.ResponseWriter, r *http.Request, user domain.User) {
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
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required (field: file)")
		return
	}
	defer file.Close()
	doc, err := s.app.UploadAgencyDocument(user.ID, name, header.Filename, file, header.Size)
	if err != nil {
		writeStoreError(w, err, "document not found")
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

// /documents/{id}/download
func (s *Server) handleDocumentByID(w http.ResponseWriter, r *http.Request, user domain.User) {
	path := strings.TrimPrefix(r.URL.Path, "/documents/")
	parts := strings.SplitN(path, "/", 2)
	id := parts[0]
	if id == "" || len(parts) != 2 || parts[1] != "download" {
		notFound(w, "not found")
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	url, filename, err := s.app.DocumentDownloadURL(id, user.ID)
	if err != nil {
		if errors.Is(err, app.ErrForbidden) {
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		writeStoreError(w, err, "document not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"url":      url,
		"filename": filename,
	})
}
