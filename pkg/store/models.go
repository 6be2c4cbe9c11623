package store

import "time"

// GORM models used for persistence. Composite unique indexes are the
// correctness backstop for handler-level sequences: membership rows,
// document links, assignment rows, and per-project version numbers can
// never be duplicated regardless of request interleaving.
type UserModel struct {
	ID        string `gorm:"primaryKey"`
	Name      string
	Email     string    `gorm:"uniqueIndex;not null"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time
}

func (UserModel) TableName() string { return "users" }

type ProjectModel struct {
	ID        string    `gorm:"primaryKey"`
	Name      string    `gorm:"not null"`
	Client    string    `gorm:"not null"`
	StartDate time.Time `gorm:"not null;index"`
	Status    string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time
}

func (ProjectModel) TableName() string { return "projects" }

type UserProjectModel struct {
	ID        string    `gorm:"primaryKey"`
	UserID    string    `gorm:"not null;uniqueIndex:idx_user_project"`
	ProjectID string    `gorm:"not null;uniqueIndex:idx_user_project;index"`
	Role      string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`
}

func (UserProjectModel) TableName() string { return "user_projects" }

type DocumentModel struct {
	ID          string `gorm:"primaryKey"`
	Name        string `gorm:"not null"`
	FileType    string
	FilePath    string `gorm:"not null"`
	FileSize    int64
	UserID      string    `gorm:"not null;index"`
	IsAgencyDoc bool      `gorm:"not null;index"`
	CreatedAt   time.Time `gorm:"not null;index"`
	UpdatedAt   time.Time
}

func (DocumentModel) TableName() string { return "documents" }

type ProjectDocumentModel struct {
	ID           string    `gorm:"primaryKey"`
	ProjectID    string    `gorm:"not null;uniqueIndex:idx_project_document"`
	DocumentID   string    `gorm:"not null;uniqueIndex:idx_project_document"`
	DocumentType string    `gorm:"not null"`
	IsSelected   bool      `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null"`
}

func (ProjectDocumentModel) TableName() string { return "project_documents" }

type RfpVersionModel struct {
	ID            string    `gorm:"primaryKey"`
	ProjectID     string    `gorm:"not null;uniqueIndex:idx_project_version"`
	VersionNumber int       `gorm:"not null;uniqueIndex:idx_project_version"`
	FilePath      string    `gorm:"not null"`
	CreatedAt     time.Time `gorm:"not null"`
}

func (RfpVersionModel) TableName() string { return "rfp_versions" }

type RfpSectionModel struct {
	ID          string `gorm:"primaryKey"`
	ProjectID   string `gorm:"not null;index"`
	Name        string `gorm:"not null"`
	Description string
	OrderNumber int       `gorm:"not null"`
	CreatedAt   time.Time `gorm:"not null"`
	UpdatedAt   time.Time
}

func (RfpSectionModel) TableName() string { return "rfp_sections" }

type SectionAssignmentModel struct {
	ID        string  `gorm:"primaryKey"`
	SectionID string  `gorm:"not null;uniqueIndex:idx_section_user"`
	UserID    string  `gorm:"not null;uniqueIndex:idx_section_user;index"`
	Content   *string `gorm:"type:text"`
	Status    string  `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null;index"`
}

func (SectionAssignmentModel) TableName() string { return "section_assignments" }
