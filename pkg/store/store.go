package store

import (
	"errors"

	"rfphub/pkg/domain"
)

var (
	// ErrNotFound is returned when a mutation matched no row.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicate is returned when an insert violates a uniqueness constraint.
	ErrDuplicate = errors.New("duplicate record")
)

// Store defines persistence operations for users, projects, documents,
// sections, versions, and assignments. It is the only reader and writer of
// the relational schema; all query construction lives behind it.
type Store interface {
	// users
	EnsureUser(domain.User) error
	GetUserByID(id string) (domain.User, bool, error)
	GetUserByEmail(email string) (domain.User, bool, error)

	// projects
	CreateProject(project domain.Project, ownerID string) error
	GetProjectByID(id string) (domain.Project, bool, error)
	ListProjectsByUser(userID string) ([]domain.Project, error)
	UpdateProject(id string, patch domain.ProjectPatch) (domain.Project, bool, error)

	// memberships
	AddMembership(userID, projectID string, role domain.ProjectRole) error
	GetMembershipRole(userID, projectID string) (domain.ProjectRole, bool, error)
	ListContributors(projectID string) ([]domain.Contributor, error)

	// documents
	CreateDocument(doc domain.Document) error
	CreateProjectDocument(doc domain.Document, projectID string, docType domain.DocumentType) error
	GetDocumentByID(id string) (domain.Document, bool, error)
	ListAgencyDocuments() ([]domain.Document, error)
	LinkDocument(projectID, documentID string, docType domain.DocumentType, selected bool) error
	ListProjectDocuments(projectID string, docType domain.DocumentType) ([]domain.ProjectDocumentView, error)
	ListDocumentProjects(documentID string) ([]string, error)
	SetDocumentSelection(projectID, documentID string, selected bool) error

	// rfp versions
	CreateRfpVersion(version domain.RfpVersion) (domain.RfpVersion, error)
	ListRfpVersions(projectID string) ([]domain.RfpVersion, error)

	// rfp sections
	CreateSection(section domain.RfpSection) error
	GetSectionByID(id string) (domain.RfpSection, bool, error)
	ListSections(projectID string) ([]domain.RfpSection, error)

	// section assignments
	AssignSection(assignment domain.SectionAssignment) error
	GetAssignment(sectionID, userID string) (domain.SectionAssignment, bool, error)
	UpdateAssignment(sectionID, userID string, content *string, status domain.AssignmentStatus) error
	DeleteAssignment(sectionID, userID string) error
	ListProjectAssignments(projectID string) ([]domain.ProjectAssignment, error)
	ListUserAssignments(userID string) ([]domain.UserAssignment, error)
	ApplyAssignmentChanges(creates []domain.SectionAssignment, deletes []domain.AssignmentKey) error
}
