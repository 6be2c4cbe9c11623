package domain

import "time"

type ProjectRole string

const (
	RoleOwner       ProjectRole = "owner"
	RoleManager     ProjectRole = "manager"
	RoleContributor ProjectRole = "contributor"
)

type DocumentType string

const (
	DocActiveRFP      DocumentType = "active_rfp"
	DocTargetResearch DocumentType = "target_research"
	DocBackground     DocumentType = "background"
)

type AssignmentStatus string

const (
	StatusNotStarted AssignmentStatus = "Not Started"
	StatusInProgress AssignmentStatus = "In Progress"
	StatusCompleted  AssignmentStatus = "Completed"
)

type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name,omitempty"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type Project struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Client    string    `json:"client"`
	StartDate time.Time `json:"startDate"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ProjectPatch is a sparse update: nil fields are left untouched.
type ProjectPatch struct {
	Name      *string
	Client    *string
	StartDate *time.Time
	Status    *string
}

// IsEmpty reports whether the patch changes nothing.
func (p ProjectPatch) IsEmpty() bool {
	return p.Name == nil && p.Client == nil && p.StartDate == nil && p.Status == nil
}

type Membership struct {
	UserID    string      `json:"userId"`
	ProjectID string      `json:"projectId"`
	Role      ProjectRole `json:"role"`
	CreatedAt time.Time   `json:"createdAt"`
}

// Contributor is a membership row joined with user identity.
type Contributor struct {
	UserID string      `json:"userId"`
	Name   string      `json:"name,omitempty"`
	Email  string      `json:"email"`
	Role   ProjectRole `json:"role"`
}

type Document struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	FileType    string    `json:"fileType"`
	FilePath    string    `json:"filePath"`
	FileSize    int64     `json:"fileSize"`
	UserID      string    `json:"userId"`
	IsAgencyDoc bool      `json:"isAgencyDoc"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// ProjectDocumentView is a document joined with its project link.
type ProjectDocumentView struct {
	Document
	DocumentType DocumentType `json:"documentType"`
	IsSelected   bool         `json:"isSelected"`
}

type RfpVersion struct {
	ID            string    `json:"id"`
	ProjectID     string    `json:"projectId"`
	VersionNumber int       `json:"versionNumber"`
	FilePath      string    `json:"filePath"`
	CreatedAt     time.Time `json:"createdAt"`
}

type RfpSection struct {
	ID          string    `json:"id"`
	ProjectID   string    `json:"projectId"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	OrderNumber int       `json:"orderNumber"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type SectionAssignment struct {
	ID        string           `json:"id"`
	SectionID string           `json:"sectionId"`
	UserID    string           `json:"userId"`
	Content   *string          `json:"content"`
	Status    AssignmentStatus `json:"status"`
	CreatedAt time.Time        `json:"createdAt"`
	UpdatedAt time.Time        `json:"updatedAt"`
}

// ProjectAssignment is an assignment enriched with section and user identity,
// as shown on a project's assignment board.
type ProjectAssignment struct {
	SectionAssignment
	SectionName string `json:"sectionName"`
	UserName    string `json:"userName,omitempty"`
	UserEmail   string `json:"userEmail"`
}

// UserAssignment is an assignment enriched with section and project identity,
// as shown on a contributor's dashboard.
type UserAssignment struct {
	SectionAssignment
	SectionName string `json:"sectionName"`
	ProjectID   string `json:"projectId"`
	ProjectName string `json:"projectName"`
}

// AssignmentKey identifies one assignment row by its natural key.
type AssignmentKey struct {
	SectionID string
	UserID    string
}
