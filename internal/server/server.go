package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"rfphub/internal/app"
	"rfphub/internal/ratelimit"
	"rfphub/internal/usertoken"
	"rfphub/internal/util"
	"rfphub/pkg/domain"
	"rfphub/pkg/store"
)

// TokenVerifier checks a bearer token and returns the caller's identity.
type TokenVerifier interface {
	VerifyIdentity(token string) (usertoken.Identity, error)
}

// Config wires required dependencies for the HTTP server.
type Config struct {
	App            *app.App
	TokenVerifier  TokenVerifier
	UploadLimiter  *ratelimit.FixedWindowLimiter
	MaxUploadBytes int64
}

// Server exposes the proposal workspace HTTP API.
type Server struct {
	app            *app.App
	tokenVerifier  TokenVerifier
	uploadLimiter  *ratelimit.FixedWindowLimiter
	mux            *http.ServeMux
	maxUploadBytes int64
}

// New constructs the server with routes configured.
func New(cfg Config) *Server {
	maxUploadBytes := cfg.MaxUploadBytes
	if maxUploadBytes <= 0 {
		maxUploadBytes = 50 * 1024 * 1024
	}
	s := &Server{
		app:            cfg.App,
		tokenVerifier:  cfg.TokenVerifier,
		uploadLimiter:  cfg.UploadLimiter,
		mux:            http.NewServeMux(),
		maxUploadBytes: maxUploadBytes,
	}
	s.routes()
	return s
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog("rfphub", util.WithSecurityHeaders(util.WithCORS(s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	// projects and project-scoped resources
	s.mux.Handle("/projects", s.withUser(s.handleProjects))
	s.mux.Handle("/projects/", s.withUser(s.handleProjectSubtree))

	// per-section drafts
	s.mux.Handle("/sections/", s.withUser(s.handleSectionSubtree))

	// agency-wide documents
	s.mux.Handle("/documents", s.withUser(s.handleDocuments))
	s.mux.Handle("/documents/", s.withUser(s.handleDocumentByID))

	s.mux.Handle("/me/assignments", s.withUser(s.handleMyAssignments))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type userHandler func(http.ResponseWriter, *http.Request, domain.User)

func (s *Server) withUser(next userHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.tokenVerifier == nil {
			writeError(w, http.StatusInternalServerError, "auth verifier not configured")
			return
		}
		token, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		identity, err := s.tokenVerifier.VerifyIdentity(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		user, err := s.app.SyncUser(domain.User{
			ID:    identity.ID,
			Name:  identity.Name,
			Email: identity.Email,
		})
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		next(w, r, user)
	})
}

// requireMember loads the caller's role on the project and writes the error
// response itself when the caller does not belong.
func (s *Server) requireMember(w http.ResponseWriter, projectID, userID string) (domain.ProjectRole, bool) {
	role, ok, err := s.app.MembershipRole(userID, projectID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return "", false
	}
	if !ok {
		writeError(w, http.StatusForbidden, "forbidden")
		return "", false
	}
	return role, true
}

func canManage(role domain.ProjectRole) bool {
	return role == domain.RoleOwner || role == domain.RoleManager
}

// allowUpload applies the per-user upload quota. A nil limiter disables it.
func (s *Server) allowUpload(w http.ResponseWriter, userID string) bool {
	if s.uploadLimiter == nil {
		return true
	}
	if !s.uploadLimiter.Allow(userID) {
		w.Header().Set("Retry-After", "60")
		writeError(w, http.StatusTooManyRequests, "upload limit exceeded")
		return false
	}
	return true
}

// writeStoreError maps store sentinel errors onto HTTP statuses.
func writeStoreError(w http.ResponseWriter, err error, notFoundMsg string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		notFound(w, notFoundMsg)
	case errors.Is(err, store.ErrDuplicate):
		writeError(w, http.StatusConflict, "already exists")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func parseRole(role string) (domain.ProjectRole, bool) {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case string(domain.RoleOwner):
		return domain.RoleOwner, true
	case string(domain.RoleManager):
		return domain.RoleManager, true
	case string(domain.RoleContributor):
		return domain.RoleContributor, true
	default:
		return "", false
	}
}

func parseDocumentType(docType string) (domain.DocumentType, bool) {
	switch strings.ToLower(strings.TrimSpace(docType)) {
	case string(domain.DocActiveRFP):
		return domain.DocActiveRFP, true
	case string(domain.DocTargetResearch):
		return domain.DocTargetResearch, true
	case string(domain.DocBackground):
		return domain.DocBackground, true
	default:
		return "", false
	}
}

func parseAssignmentStatus(status string) (domain.AssignmentStatus, bool) {
	switch strings.TrimSpace(status) {
	case string(domain.StatusNotStarted):
		return domain.StatusNotStarted, true
	case string(domain.StatusInProgress):
		return domain.StatusInProgress, true
	case string(domain.StatusCompleted):
		return domain.StatusCompleted, true
	default:
		return "", false
	}
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func notFound(w http.ResponseWriter, msg string) {
	writeError(w, http.StatusNotFound, msg)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"requestId,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{
		Error:     msg,
		Code:      errorCode(status, msg),
		RequestID: strings.TrimSpace(w.Header().Get("X-Request-Id")),
	})
}

func errorCode(status int, msg string) string {
	message := strings.ToLower(strings.TrimSpace(msg))
	switch {
	case message == "auth verifier not configured":
		return "SYSTEM_INTERNAL_ERROR"
	case message == "unauthorized":
		return "AUTH_INVALID_TOKEN"
	case message == "forbidden":
		return "PROJECT_FORBIDDEN"
	case message == "project not found":
		return "PROJECT_NOT_FOUND"
	case message == "section not found":
		return "SECTION_NOT_FOUND"
	case message == "document not found":
		return "DOCUMENT_NOT_FOUND"
	case message == "assignment not found":
		return "ASSIGNMENT_NOT_FOUND"
	case message == "user not found":
		return "USER_NOT_FOUND"
	case message == "already exists":
		return "RESOURCE_CONFLICT"
	case message == "upload limit exceeded":
		return "UPLOAD_RATE_LIMITED"
	case strings.Contains(message, "file is required"):
		return "UPLOAD_FILE_REQUIRED"
	case message == "invalid form data":
		return "UPLOAD_INVALID_FORM"
	case message == "invalid json body":
		return "REQUEST_INVALID_BODY"
	case message == "project deletion not implemented":
		return "PROJECT_DELETE_UNSUPPORTED"
	case message == "method not allowed":
		return "SYSTEM_METHOD_NOT_ALLOWED"
	case message == "not found":
		return "SYSTEM_NOT_FOUND"
	}

	switch status {
	case http.StatusBadRequest:
		return "REQUEST_INVALID_BODY"
	case http.StatusUnauthorized:
		return "AUTH_INVALID_TOKEN"
	case http.StatusForbidden:
		return "PROJECT_FORBIDDEN"
	case http.StatusNotFound:
		return "SYSTEM_NOT_FOUND"
	case http.StatusMethodNotAllowed:
		return "SYSTEM_METHOD_NOT_ALLOWED"
	case http.StatusConflict:
		return "RESOURCE_CONFLICT"
	case http.StatusTooManyRequests:
		return "UPLOAD_RATE_LIMITED"
	case http.StatusNotImplemented:
		return "PROJECT_DELETE_UNSUPPORTED"
	default:
		if status >= http.StatusInternalServerError {
			return "SYSTEM_INTERNAL_ERROR"
		}
		return "REQUEST_ERROR"
	}
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}
