package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"rfphub/pkg/domain"
)

const migrateLockID int64 = 52895289

// allocation under concurrent version creation retries this many times
// before giving up; the unique index makes the retry safe.
const versionAllocRetries = 3

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

var _ Store = (*GormStore)(nil)

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         gormLog,
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(
			&UserModel{},
			&ProjectModel{},
			&UserProjectModel{},
			&DocumentModel{},
			&ProjectDocumentModel{},
			&RfpVersionModel{},
			&RfpSectionModel{},
			&SectionAssignmentModel{},
		); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicate
	}
	return err
}

// EnsureUser registers a user on first sight or refreshes name/email.
func (s *GormStore) EnsureUser(u domain.User) error {
	model := userToModel(u)
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "email", "updated_at"}),
	}).Create(&model).Error
}

// GetUserByID returns a user by ID.
func (s *GormStore) GetUserByID(id string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// GetUserByEmail looks up a user by email.
func (s *GormStore) GetUserByEmail(email string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.Where("email = ?", email).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// CreateProject inserts the project and its owner membership atomically.
// Every project has at least one owner row from the moment it exists.
func (s *GormStore) CreateProject(project domain.Project, ownerID string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		model := projectToModel(project)
		if err := tx.Create(&model).Error; err != nil {
			return translate(err)
		}
		membership := UserProjectModel{
			ID:        uuid.NewString(),
			UserID:    ownerID,
			ProjectID: project.ID,
			Role:      string(domain.RoleOwner),
			CreatedAt: project.CreatedAt,
		}
		if err := tx.Create(&membership).Error; err != nil {
			return translate(err)
		}
		return nil
	})
}

// GetProjectByID retrieves a project.
func (s *GormStore) GetProjectByID(id string) (domain.Project, bool, error) {
	var model ProjectModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Project{}, false, nil
		}
		return domain.Project{}, false, err
	}
	return projectFromModel(model), true, nil
}

// ListProjectsByUser returns projects the user is a member of, newest start first.
func (s *GormStore) ListProjectsByUser(userID string) ([]domain.Project, error) {
	var models []ProjectModel
	if err := s.db.
		Joins("JOIN user_projects up ON up.project_id = projects.id").
		Where("up.user_id = ?", userID).
		Order("projects.start_date DESC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Project, 0, len(models))
	for _, m := range models {
		res = append(res, projectFromModel(m))
	}
	return res, nil
}

// UpdateProject applies a sparse patch and returns the current row.
// An empty patch only re-reads.
func (s *GormStore) UpdateProject(id string, patch domain.ProjectPatch) (domain.Project, bool, error) {
	if !patch.IsEmpty() {
		updates := map[string]any{"updated_at": time.Now().UTC()}
		if patch.Name != nil {
			updates["name"] = *patch.Name
		}
		if patch.Client != nil {
			updates["client"] = *patch.Client
		}
		if patch.StartDate != nil {
			updates["start_date"] = patch.StartDate.UTC()
		}
		if patch.Status != nil {
			updates["status"] = *patch.Status
		}
		if err := s.db.Model(&ProjectModel{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			return domain.Project{}, false, err
		}
	}
	return s.GetProjectByID(id)
}

// AddMembership inserts a membership row. A repeated (user, project) pair
// surfaces as ErrDuplicate.
func (s *GormStore) AddMembership(userID, projectID string, role domain.ProjectRole) error {
	model := UserProjectModel{
		ID:        uuid.NewString(),
		UserID:    userID,
		ProjectID: projectID,
		Role:      string(role),
		CreatedAt: time.Now().UTC(),
	}
	return translate(s.db.Create(&model).Error)
}

// GetMembershipRole returns the role a user holds on a project.
func (s *GormStore) GetMembershipRole(userID, projectID string) (domain.ProjectRole, bool, error) {
	var model UserProjectModel
	if err := s.db.Where("user_id = ? AND project_id = ?", userID, projectID).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	return domain.ProjectRole(model.Role), true, nil
}

// ListContributors returns the project's members joined with user identity.
func (s *GormStore) ListContributors(projectID string) ([]domain.Contributor, error) {
	var rows []struct {
		UserID string
		Name   string
		Email  string
		Role   string
	}
	if err := s.db.Table("users u").
		Select("u.id AS user_id, u.name, u.email, up.role").
		Joins("JOIN user_projects up ON up.user_id = u.id").
		Where("up.project_id = ?", projectID).
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Contributor, 0, len(rows))
	for _, r := range rows {
		res = append(res, domain.Contributor{
			UserID: r.UserID,
			Name:   r.Name,
			Email:  r.Email,
			Role:   domain.ProjectRole(r.Role),
		})
	}
	return res, nil
}

// CreateDocument inserts document metadata only; bytes live in object storage.
func (s *GormStore) CreateDocument(doc domain.Document) error {
	model := documentToModel(doc)
	return translate(s.db.Create(&model).Error)
}

// CreateProjectDocument inserts the document and its project link atomically,
// so a project-specific document is never left unlinked.
func (s *GormStore) CreateProjectDocument(doc domain.Document, projectID string, docType domain.DocumentType) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		model := documentToModel(doc)
		if err := tx.Create(&model).Error; err != nil {
			return translate(err)
		}
		link := ProjectDocumentModel{
			ID:           uuid.NewString(),
			ProjectID:    projectID,
			DocumentID:   doc.ID,
			DocumentType: string(docType),
			IsSelected:   false,
			CreatedAt:    doc.CreatedAt,
		}
		if err := tx.Create(&link).Error; err != nil {
			return translate(err)
		}
		return nil
	})
}

// GetDocumentByID retrieves document metadata.
func (s *GormStore) GetDocumentByID(id string) (domain.Document, bool, error) {
	var model DocumentModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Document{}, false, nil
		}
		return domain.Document{}, false, err
	}
	return documentFromModel(model), true, nil
}

// ListAgencyDocuments returns agency-wide documents, newest first.
func (s *GormStore) ListAgencyDocuments() ([]domain.Document, error) {
	var models []DocumentModel
	if err := s.db.Where("is_agency_doc = ?", true).Order("created_at DESC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Document, 0, len(models))
	for _, m := range models {
		res = append(res, documentFromModel(m))
	}
	return res, nil
}

// LinkDocument attaches an existing document to a project.
func (s *GormStore) LinkDocument(projectID, documentID string, docType domain.DocumentType, selected bool) error {
	model := ProjectDocumentModel{
		ID:           uuid.NewString(),
		ProjectID:    projectID,
		DocumentID:   documentID,
		DocumentType: string(docType),
		IsSelected:   selected,
		CreatedAt:    time.Now().UTC(),
	}
	return translate(s.db.Create(&model).Error)
}

// ListProjectDocuments returns a project's documents with their selection
// flags, optionally filtered by link type, newest first.
func (s *GormStore) ListProjectDocuments(projectID string, docType domain.DocumentType) ([]domain.ProjectDocumentView, error) {
	query := s.db.Table("documents d").
		Select("d.*, pd.document_type, pd.is_selected").
		Joins("JOIN project_documents pd ON pd.document_id = d.id").
		Where("pd.project_id = ?", projectID)
	if docType != "" {
		query = query.Where("pd.document_type = ?", docType)
	}
	var rows []struct {
		DocumentModel
		DocumentType string
		IsSelected   bool
	}
	if err := query.Order("d.created_at DESC").Scan(&rows).Error; err != nil {
		return nil, err
	}
	res := make([]domain.ProjectDocumentView, 0, len(rows))
	for _, r := range rows {
		res = append(res, domain.ProjectDocumentView{
			Document:     documentFromModel(r.DocumentModel),
			DocumentType: domain.DocumentType(r.DocumentType),
			IsSelected:   r.IsSelected,
		})
	}
	return res, nil
}

// ListDocumentProjects returns the IDs of projects a document is linked to.
func (s *GormStore) ListDocumentProjects(documentID string) ([]string, error) {
	var ids []string
	if err := s.db.Model(&ProjectDocumentModel{}).
		Where("document_id = ?", documentID).
		Pluck("project_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// SetDocumentSelection flips the selection flag on a project-document link.
// Matching zero rows is an error, not a silent no-op.
func (s *GormStore) SetDocumentSelection(projectID, documentID string, selected bool) error {
	res := s.db.Model(&ProjectDocumentModel{}).
		Where("project_id = ? AND document_id = ?", projectID, documentID).
		Update("is_selected", selected)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateRfpVersion allocates the next version number for the project and
// inserts the row. The read-then-insert runs in a transaction and the unique
// (project_id, version_number) index backstops concurrent allocation; a
// duplicate-key failure re-runs the allocation.
func (s *GormStore) CreateRfpVersion(version domain.RfpVersion) (domain.RfpVersion, error) {
	var created domain.RfpVersion
	err := allocateWithRetry(func() error {
		attempt := version
		txErr := s.db.Transaction(func(tx *gorm.DB) error {
			var next int
			if err := tx.Raw(
				"SELECT COALESCE(MAX(version_number), 0) + 1 FROM rfp_versions WHERE project_id = ?",
				version.ProjectID,
			).Scan(&next).Error; err != nil {
				return err
			}
			attempt.VersionNumber = next
			model := rfpVersionToModel(attempt)
			return tx.Create(&model).Error
		})
		if txErr == nil {
			created = attempt
		}
		return txErr
	})
	if err != nil {
		return domain.RfpVersion{}, err
	}
	return created, nil
}

// allocateWithRetry re-runs alloc when the insert loses the race on the
// unique (project_id, version_number) index. Each retry re-reads the max
// inside a fresh transaction; any other failure stops immediately.
func allocateWithRetry(alloc func() error) error {
	var lastErr error
	for attempt := 0; attempt < versionAllocRetries; attempt++ {
		err := alloc()
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("allocate version number: %w", lastErr)
}

// ListRfpVersions returns a project's versions, newest number first.
func (s *GormStore) ListRfpVersions(projectID string) ([]domain.RfpVersion, error) {
	var models []RfpVersionModel
	if err := s.db.Where("project_id = ?", projectID).Order("version_number DESC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.RfpVersion, 0, len(models))
	for _, m := range models {
		res = append(res, rfpVersionFromModel(m))
	}
	return res, nil
}

// CreateSection inserts a section row.
func (s *GormStore) CreateSection(section domain.RfpSection) error {
	model := sectionToModel(section)
	return translate(s.db.Create(&model).Error)
}

// GetSectionByID retrieves a section.
func (s *GormStore) GetSectionByID(id string) (domain.RfpSection, bool, error) {
	var model RfpSectionModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.RfpSection{}, false, nil
		}
		return domain.RfpSection{}, false, err
	}
	return sectionFromModel(model), true, nil
}

// ListSections returns a project's sections in display order.
func (s *GormStore) ListSections(projectID string) ([]domain.RfpSection, error) {
	var models []RfpSectionModel
	if err := s.db.Where("project_id = ?", projectID).Order("order_number ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.RfpSection, 0, len(models))
	for _, m := range models {
		res = append(res, sectionFromModel(m))
	}
	return res, nil
}

// AssignSection inserts an assignment row.
func (s *GormStore) AssignSection(assignment domain.SectionAssignment) error {
	model := assignmentToModel(assignment)
	return translate(s.db.Create(&model).Error)
}

// GetAssignment retrieves the assignment for a (section, user) pair.
func (s *GormStore) GetAssignment(sectionID, userID string) (domain.SectionAssignment, bool, error) {
	var model SectionAssignmentModel
	if err := s.db.Where("section_id = ? AND user_id = ?", sectionID, userID).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.SectionAssignment{}, false, nil
		}
		return domain.SectionAssignment{}, false, err
	}
	return assignmentFromModel(model), true, nil
}

// UpdateAssignment replaces content and status for a (section, user) pair.
// Matching zero rows is an error, not a silent no-op.
func (s *GormStore) UpdateAssignment(sectionID, userID string, content *string, status domain.AssignmentStatus) error {
	res := s.db.Model(&SectionAssignmentModel{}).
		Where("section_id = ? AND user_id = ?", sectionID, userID).
		Updates(map[string]any{
			"content":    content,
			"status":     string(status),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteAssignment removes the assignment for a (section, user) pair.
func (s *GormStore) DeleteAssignment(sectionID, userID string) error {
	return s.db.Delete(&SectionAssignmentModel{}, "section_id = ? AND user_id = ?", sectionID, userID).Error
}

// ListProjectAssignments returns a project's assignments enriched with
// section name and assignee identity, in section display order.
func (s *GormStore) ListProjectAssignments(projectID string) ([]domain.ProjectAssignment, error) {
	var rows []struct {
		SectionAssignmentModel
		SectionName string
		UserName    string
		UserEmail   string
	}
	if err := s.db.Table("section_assignments sa").
		Select("sa.*, rs.name AS section_name, u.name AS user_name, u.email AS user_email").
		Joins("JOIN rfp_sections rs ON sa.section_id = rs.id").
		Joins("JOIN users u ON sa.user_id = u.id").
		Where("rs.project_id = ?", projectID).
		Order("rs.order_number ASC").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	res := make([]domain.ProjectAssignment, 0, len(rows))
	for _, r := range rows {
		res = append(res, domain.ProjectAssignment{
			SectionAssignment: assignmentFromModel(r.SectionAssignmentModel),
			SectionName:       r.SectionName,
			UserName:          r.UserName,
			UserEmail:         r.UserEmail,
		})
	}
	return res, nil
}

// ListUserAssignments returns a user's assignments across projects, most
// recently touched first.
func (s *GormStore) ListUserAssignments(userID string) ([]domain.UserAssignment, error) {
	var rows []struct {
		SectionAssignmentModel
		SectionName string
		ProjectID   string
		ProjectName string
	}
	if err := s.db.Table("section_assignments sa").
		Select("sa.*, rs.name AS section_name, rs.project_id, p.name AS project_name").
		Joins("JOIN rfp_sections rs ON sa.section_id = rs.id").
		Joins("JOIN projects p ON rs.project_id = p.id").
		Where("sa.user_id = ?", userID).
		Order("sa.updated_at DESC").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	res := make([]domain.UserAssignment, 0, len(rows))
	for _, r := range rows {
		res = append(res, domain.UserAssignment{
			SectionAssignment: assignmentFromModel(r.SectionAssignmentModel),
			SectionName:       r.SectionName,
			ProjectID:         r.ProjectID,
			ProjectName:       r.ProjectName,
		})
	}
	return res, nil
}

// ApplyAssignmentChanges applies a reconciliation plan in one transaction:
// stale rows go first so a reassigned section never holds two rows.
func (s *GormStore) ApplyAssignmentChanges(creates []domain.SectionAssignment, deletes []domain.AssignmentKey) error {
	if len(creates) == 0 && len(deletes) == 0 {
		return nil
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		for _, key := range deletes {
			if err := tx.Delete(&SectionAssignmentModel{}, "section_id = ? AND user_id = ?", key.SectionID, key.UserID).Error; err != nil {
				return err
			}
		}
		for _, assignment := range creates {
			model := assignmentToModel(assignment)
			if err := tx.Create(&model).Error; err != nil {
				return translate(err)
			}
		}
		return nil
	})
}

func userToModel(u domain.User) UserModel {
	return UserModel{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

func userFromModel(m UserModel) domain.User {
	return domain.User{
		ID:        m.ID,
		Name:      m.Name,
		Email:     m.Email,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func projectToModel(p domain.Project) ProjectModel {
	return ProjectModel{
		ID:        p.ID,
		Name:      p.Name,
		Client:    p.Client,
		StartDate: p.StartDate,
		Status:    p.Status,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

func projectFromModel(m ProjectModel) domain.Project {
	return domain.Project{
		ID:        m.ID,
		Name:      m.Name,
		Client:    m.Client,
		StartDate: m.StartDate,
		Status:    m.Status,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func documentToModel(d domain.Document) DocumentModel {
	return DocumentModel{
		ID:          d.ID,
		Name:        d.Name,
		FileType:    d.FileType,
		FilePath:    d.FilePath,
		FileSize:    d.FileSize,
		UserID:      d.UserID,
		IsAgencyDoc: d.IsAgencyDoc,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

func documentFromModel(m DocumentModel) domain.Document {
	return domain.Document{
		ID:          m.ID,
		Name:        m.Name,
		FileType:    m.FileType,
		FilePath:    m.FilePath,
		FileSize:    m.FileSize,
		UserID:      m.UserID,
		IsAgencyDoc: m.IsAgencyDoc,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

func rfpVersionToModel(v domain.RfpVersion) RfpVersionModel {
	return RfpVersionModel{
		ID:            v.ID,
		ProjectID:     v.ProjectID,
		VersionNumber: v.VersionNumber,
		FilePath:      v.FilePath,
		CreatedAt:     v.CreatedAt,
	}
}

func rfpVersionFromModel(m RfpVersionModel) domain.RfpVersion {
	return domain.RfpVersion{
		ID:            m.ID,
		ProjectID:     m.ProjectID,
		VersionNumber: m.VersionNumber,
		FilePath:      m.FilePath,
		CreatedAt:     m.CreatedAt,
	}
}

func sectionToModel(s domain.RfpSection) RfpSectionModel {
	return RfpSectionModel{
		ID:          s.ID,
		ProjectID:   s.ProjectID,
		Name:        s.Name,
		Description: s.Description,
		OrderNumber: s.OrderNumber,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
	}
}

func sectionFromModel(m RfpSectionModel) domain.RfpSection {
	return domain.RfpSection{
		ID:          m.ID,
		ProjectID:   m.ProjectID,
		Name:        m.Name,
		Description: m.Description,
		OrderNumber: m.OrderNumber,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

func assignmentToModel(a domain.SectionAssignment) SectionAssignmentModel {
	return SectionAssignmentModel{
		ID:        a.ID,
		SectionID: a.SectionID,
		UserID:    a.UserID,
		Content:   a.Content,
		Status:    string(a.Status),
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

func assignmentFromModel(m SectionAssignmentModel) domain.SectionAssignment {
	return domain.SectionAssignment{
		ID:        m.ID,
		SectionID: m.SectionID,
		UserID:    m.UserID,
		Content:   m.Content,
		Status:    domain.AssignmentStatus(m.Status),
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}
