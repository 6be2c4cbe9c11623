package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"rfphub/pkg/domain"
	"rfphub/pkg/storage"
	"rfphub/pkg/store"
)

// Config holds runtime configuration for the core application.
type Config struct {
	DatabaseURL    string
	Store          store.Store
	Objects        storage.ObjectStore
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool
}

// App is the data service façade: every handler operation goes through here,
// composing the relational store and object storage.
type App struct {
	store         store.Store
	objects       storage.ObjectStore
	presignExpiry time.Duration
}

// New constructs the application with database-backed metadata storage and
// object-backed file storage.
func New(cfg Config) (*App, error) {
	dataStore := cfg.Store
	if dataStore == nil {
		if cfg.DatabaseURL == "" {
			return nil, errors.New("database URL required")
		}
		var err error
		dataStore, err = store.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
	}
	objects := cfg.Objects
	if objects == nil {
		var err error
		objects, err = storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if err != nil {
			return nil, err
		}
	}
	return &App{
		store:         dataStore,
		objects:       objects,
		presignExpiry: 15 * time.Minute,
	}, nil
}

// SyncUser upserts the user row for an identity supplied by the auth
// provider. This is the "first sign-in sync" that creates User records; on
// later sign-ins it refreshes name and email when the provider claims
// changed. Empty claims never blank stored fields.
func (a *App) SyncUser(identity domain.User) (domain.User, error) {
	existing, ok, err := a.store.GetUserByID(identity.ID)
	if err != nil {
		return domain.User{}, err
	}
	if ok {
		changed := false
		if identity.Name != "" && identity.Name != existing.Name {
			existing.Name = identity.Name
			changed = true
		}
		if identity.Email != "" && identity.Email != existing.Email {
			existing.Email = identity.Email
			changed = true
		}
		if !changed {
			return existing, nil
		}
		existing.UpdatedAt = time.Now().UTC()
		if err := a.store.EnsureUser(existing); err != nil {
			return domain.User{}, fmt.Errorf("sync user: %w", err)
		}
		return existing, nil
	}
	now := time.Now().UTC()
	user := domain.User{
		ID:        identity.ID,
		Name:      identity.Name,
		Email:     identity.Email,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := a.store.EnsureUser(user); err != nil {
		return domain.User{}, fmt.Errorf("sync user: %w", err)
	}
	return user, nil
}

// CreateProject creates a project and its owner membership in one store
// transaction. New projects start "In Progress" with start date now.
func (a *App) CreateProject(name, client, ownerID string) (domain.Project, error) {
	now := time.Now().UTC()
	project := domain.Project{
		ID:        uuid.NewString(),
		Name:      name,
		Client:    client,
		StartDate: now,
		Status:    "In Progress",
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := a.store.CreateProject(project, ownerID); err != nil {
		return domain.Project{}, fmt.Errorf("create project: %w", err)
	}
	return project, nil
}

// GetProject retrieves a project by ID.
func (a *App) GetProject(id string) (domain.Project, bool, error) {
	return a.store.GetProjectByID(id)
}

// ListProjects returns the projects the user belongs to.
func (a *App) ListProjects(userID string) ([]domain.Project, error) {
	return a.store.ListProjectsByUser(userID)
}

// UpdateProject applies a sparse patch and returns the current record.
func (a *App) UpdateProject(id string, patch domain.ProjectPatch) (domain.Project, bool, error) {
	return a.store.UpdateProject(id, patch)
}

// MembershipRole returns the caller's role on a project.
func (a *App) MembershipRole(userID, projectID string) (domain.ProjectRole, bool, error) {
	return a.store.GetMembershipRole(userID, projectID)
}

// AddContributor adds a user to a project with a role.
func (a *App) AddContributor(projectID, userID string, role domain.ProjectRole) error {
	return a.store.AddMembership(userID, projectID, role)
}

// ListContributors returns the project's members with user identity.
func (a *App) ListContributors(projectID string) ([]domain.Contributor, error) {
	return a.store.ListContributors(projectID)
}

// ResolveUser looks a user up by ID when given, falling back to email.
func (a *App) ResolveUser(userID, email string) (domain.User, bool, error) {
	if userID != "" {
		return a.store.GetUserByID(userID)
	}
	if email != "" {
		return a.store.GetUserByEmail(email)
	}
	return domain.User{}, false, nil
}

// UploadAgencyDocument stores file bytes and records agency-wide metadata.
func (a *App) UploadAgencyDocument(userID, name, filename string, r io.Reader, size int64) (domain.Document, error) {
	doc := a.newDocument(userID, name, filename, size, true)
	doc.FilePath = fmt.Sprintf("agency-docs/%s/%s", userID, filepath.Base(filename))
	if err := a.putObject(doc.FilePath, filename, r, size); err != nil {
		return domain.Document{}, err
	}
	if err := a.store.CreateDocument(doc); err != nil {
		_ = a.objects.Delete(context.Background(), doc.FilePath)
		return domain.Document{}, fmt.Errorf("save document: %w", err)
	}
	return doc, nil
}

// UploadProjectDocument stores file bytes and records the document plus its
// project link in one store transaction.
func (a *App) UploadProjectDocument(projectID, userID, name, filename string, docType domain.DocumentType, r io.Reader, size int64) (domain.Document, error) {
	doc := a.newDocument(userID, name, filename, size, false)
	doc.FilePath = fmt.Sprintf("project-docs/%s/%s", projectID, filepath.Base(filename))
	if err := a.putObject(doc.FilePath, filename, r, size); err != nil {
		return domain.Document{}, err
	}
	if err := a.store.CreateProjectDocument(doc, projectID, docType); err != nil {
		_ = a.objects.Delete(context.Background(), doc.FilePath)
		return domain.Document{}, fmt.Errorf("save document: %w", err)
	}
	return doc, nil
}

func (a *App) newDocument(userID, name, filename string, size int64, agency bool) domain.Document {
	now := time.Now().UTC()
	return domain.Document{
		ID:          uuid.NewString(),
		Name:        name,
		FileType:    strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), "."),
		FileSize:    size,
		UserID:      userID,
		IsAgencyDoc: agency,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func (a *App) putObject(key, filename string, r io.Reader, size int64) error {
	contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(filename)))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if err := a.objects.Put(context.Background(), key, r, size, contentType); err != nil {
		return fmt.Errorf("save file: %w", err)
	}
	return nil
}

// ListAgencyDocuments returns agency-wide documents.
func (a *App) ListAgencyDocuments() ([]domain.Document, error) {
	return a.store.ListAgencyDocuments()
}

// ListProjectDocuments returns a project's documents, optionally filtered.
func (a *App) ListProjectDocuments(projectID string, docType domain.DocumentType) ([]domain.ProjectDocumentView, error) {
	return a.store.ListProjectDocuments(projectID, docType)
}

// SetDocumentSelection flips a link's selection flag.
func (a *App) SetDocumentSelection(projectID, documentID string, selected bool) error {
	return a.store.SetDocumentSelection(projectID, documentID, selected)
}

// ErrForbidden is returned when the caller may not access a document.
var ErrForbidden = errors.New("forbidden")

// DocumentDownloadURL returns a pre-signed URL and the document name.
// Agency-wide documents are downloadable by any signed-in user;
// project-specific ones only by their uploader or a member of a linking
// project.
func (a *App) DocumentDownloadURL(id, userID string) (string, string, error) {
	doc, ok, err := a.store.GetDocumentByID(id)
	if err != nil {
		return "", "", err
	}
	if !ok {
		return "", "", store.ErrNotFound
	}
	if !doc.IsAgencyDoc && doc.UserID != userID {
		projectIDs, err := a.store.ListDocumentProjects(id)
		if err != nil {
			return "", "", err
		}
		member := false
		for _, projectID := range projectIDs {
			_, ok, err := a.store.GetMembershipRole(userID, projectID)
			if err != nil {
				return "", "", err
			}
			if ok {
				member = true
				break
			}
		}
		if !member {
			return "", "", ErrForbidden
		}
	}
	url, err := a.objects.PresignGet(context.Background(), doc.FilePath, a.presignExpiry)
	if err != nil {
		return "", "", err
	}
	return url, doc.Name, nil
}

// UploadRfpVersion stores the file bytes and allocates the next version
// number for the project.
func (a *App) UploadRfpVersion(projectID, filename string, r io.Reader, size int64) (domain.RfpVersion, error) {
	key := fmt.Sprintf("rfp-versions/%s/%d_%s", projectID, time.Now().UnixMilli(), filepath.Base(filename))
	if err := a.putObject(key, filename, r, size); err != nil {
		return domain.RfpVersion{}, err
	}
	version, err := a.store.CreateRfpVersion(domain.RfpVersion{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		FilePath:  key,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		_ = a.objects.Delete(context.Background(), key)
		return domain.RfpVersion{}, fmt.Errorf("save version: %w", err)
	}
	return version, nil
}

// ListRfpVersions returns a project's versions.
func (a *App) ListRfpVersions(projectID string) ([]domain.RfpVersion, error) {
	return a.store.ListRfpVersions(projectID)
}

// CreateSection adds a named, ordered section to a project.
func (a *App) CreateSection(projectID, name, description string, orderNumber int) (domain.RfpSection, error) {
	now := time.Now().UTC()
	section := domain.RfpSection{
		ID:          uuid.NewString(),
		ProjectID:   projectID,
		Name:        name,
		Description: description,
		OrderNumber: orderNumber,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := a.store.CreateSection(section); err != nil {
		return domain.RfpSection{}, fmt.Errorf("create section: %w", err)
	}
	return section, nil
}

// GetSection retrieves a section by ID.
func (a *App) GetSection(id string) (domain.RfpSection, bool, error) {
	return a.store.GetSectionByID(id)
}

// ListSections returns a project's sections in display order.
func (a *App) ListSections(projectID string) ([]domain.RfpSection, error) {
	return a.store.ListSections(projectID)
}

// GetAssignment retrieves one contributor's draft for one section.
func (a *App) GetAssignment(sectionID, userID string) (domain.SectionAssignment, bool, error) {
	return a.store.GetAssignment(sectionID, userID)
}

// UpdateAssignment merges the supplied content/status into the existing
// assignment and writes the result. Status moves are unrestricted: a
// Completed draft may be reopened.
func (a *App) UpdateAssignment(sectionID, userID string, content *string, status *domain.AssignmentStatus) (domain.SectionAssignment, error) {
	existing, ok, err := a.store.GetAssignment(sectionID, userID)
	if err != nil {
		return domain.SectionAssignment{}, err
	}
	if !ok {
		return domain.SectionAssignment{}, store.ErrNotFound
	}
	if content != nil {
		existing.Content = content
	}
	if status != nil {
		existing.Status = *status
	}
	if err := a.store.UpdateAssignment(sectionID, userID, existing.Content, existing.Status); err != nil {
		return domain.SectionAssignment{}, err
	}
	existing.UpdatedAt = time.Now().UTC()
	return existing, nil
}

// ListProjectAssignments returns the project's assignment board.
func (a *App) ListProjectAssignments(projectID string) ([]domain.ProjectAssignment, error) {
	return a.store.ListProjectAssignments(projectID)
}

// ListUserAssignments returns a contributor's assignments across projects.
func (a *App) ListUserAssignments(userID string) ([]domain.UserAssignment, error) {
	return a.store.ListUserAssignments(userID)
}

// Reconciliation rejects mappings that reference rows outside the project.
var (
	ErrUnknownSection  = errors.New("section not in project")
	ErrUnknownAssignee = errors.New("assignee not found")
)

// ReconcileAssignments applies a desired section to assignee mapping. An
// empty user ID unassigns the section. Every key must name a section of the
// given project and every non-empty value an existing user; otherwise a
// manager of one project could plant assignments on another project's
// sections. The plan is a set diff against current rows: assignees already
// matching the mapping are kept (drafts survive), stale assignees are
// removed, missing ones created. The whole plan is applied in one store
// transaction.
func (a *App) ReconcileAssignments(projectID string, desired map[string]string) error {
	sections, err := a.store.ListSections(projectID)
	if err != nil {
		return err
	}
	known := make(map[string]bool, len(sections))
	for _, section := range sections {
		known[section.ID] = true
	}
	for sectionID, userID := range desired {
		if !known[sectionID] {
			return fmt.Errorf("section %s: %w", sectionID, ErrUnknownSection)
		}
		if userID == "" {
			continue
		}
		if _, ok, err := a.store.GetUserByID(userID); err != nil {
			return err
		} else if !ok {
			return fmt.Errorf("user %s: %w", userID, ErrUnknownAssignee)
		}
	}

	current, err := a.store.ListProjectAssignments(projectID)
	if err != nil {
		return err
	}
	assignees := make(map[string][]string)
	for _, row := range current {
		assignees[row.SectionID] = append(assignees[row.SectionID], row.UserID)
	}

	var creates []domain.SectionAssignment
	var deletes []domain.AssignmentKey
	now := time.Now().UTC()
	for sectionID, userID := range desired {
		keep := false
		for _, existing := range assignees[sectionID] {
			if existing == userID {
				keep = true
				continue
			}
			deletes = append(deletes, domain.AssignmentKey{SectionID: sectionID, UserID: existing})
		}
		if userID == "" || keep {
			continue
		}
		creates = append(creates, domain.SectionAssignment{
			ID:        uuid.NewString(),
			SectionID: sectionID,
			UserID:    userID,
			Status:    domain.StatusNotStarted,
			CreatedAt: now,
			UpdatedAt: now,
		})
	}
	return a.store.ApplyAssignmentChanges(creates, deletes)
}
