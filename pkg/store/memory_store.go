package store

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"rfphub/pkg/domain"
)

// MemoryStore keeps everything in-process. It mirrors the GormStore
// semantics (ordering, uniqueness, rows-affected errors) so handlers and the
// app façade can be tested without Postgres.
type MemoryStore struct {
	mu          sync.RWMutex
	users       map[string]domain.User
	projects    map[string]domain.Project
	memberships []domain.Membership
	documents   map[string]domain.Document
	links       []memoryLink
	versions    []domain.RfpVersion
	sections    map[string]domain.RfpSection
	assignments []domain.SectionAssignment
}

type memoryLink struct {
	ProjectID    string
	DocumentID   string
	DocumentType domain.DocumentType
	IsSelected   bool
	CreatedAt    time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:     make(map[string]domain.User),
		projects:  make(map[string]domain.Project),
		documents: make(map[string]domain.Document),
		sections:  make(map[string]domain.RfpSection),
	}
}

func (m *MemoryStore) EnsureUser(u domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.users[u.ID]; ok {
		existing.Name = u.Name
		existing.Email = u.Email
		existing.UpdatedAt = u.UpdatedAt
		m.users[u.ID] = existing
		return nil
	}
	m.users[u.ID] = u
	return nil
}

func (m *MemoryStore) GetUserByID(id string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	return u, ok, nil
}

func (m *MemoryStore) GetUserByEmail(email string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if u.Email == email {
			return u, true, nil
		}
	}
	return domain.User{}, false, nil
}

func (m *MemoryStore) CreateProject(project domain.Project, ownerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.projects[project.ID] = project
	m.memberships = append(m.memberships, domain.Membership{
		UserID:    ownerID,
		ProjectID: project.ID,
		Role:      domain.RoleOwner,
		CreatedAt: project.CreatedAt,
	})
	return nil
}

func (m *MemoryStore) GetProjectByID(id string) (domain.Project, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.projects[id]
	return p, ok, nil
}

func (m *MemoryStore) ListProjectsByUser(userID string) ([]domain.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Project, 0)
	for _, ms := range m.memberships {
		if ms.UserID != userID {
			continue
		}
		if p, ok := m.projects[ms.ProjectID]; ok {
			res = append(res, p)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].StartDate.After(res[j].StartDate) })
	return res, nil
}

func (m *MemoryStore) UpdateProject(id string, patch domain.ProjectPatch) (domain.Project, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[id]
	if !ok {
		return domain.Project{}, false, nil
	}
	if !patch.IsEmpty() {
		if patch.Name != nil {
			p.Name = *patch.Name
		}
		if patch.Client != nil {
			p.Client = *patch.Client
		}
		if patch.StartDate != nil {
			p.StartDate = *patch.StartDate
		}
		if patch.Status != nil {
			p.Status = *patch.Status
		}
		p.UpdatedAt = time.Now().UTC()
		m.projects[id] = p
	}
	return p, true, nil
}

func (m *MemoryStore) AddMembership(userID, projectID string, role domain.ProjectRole) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ms := range m.memberships {
		if ms.UserID == userID && ms.ProjectID == projectID {
			return ErrDuplicate
		}
	}
	m.memberships = append(m.memberships, domain.Membership{
		UserID:    userID,
		ProjectID: projectID,
		Role:      role,
		CreatedAt: time.Now().UTC(),
	})
	return nil
}

func (m *MemoryStore) GetMembershipRole(userID, projectID string) (domain.ProjectRole, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, ms := range m.memberships {
		if ms.UserID == userID && ms.ProjectID == projectID {
			return ms.Role, true, nil
		}
	}
	return "", false, nil
}

func (m *MemoryStore) ListContributors(projectID string) ([]domain.Contributor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Contributor, 0)
	for _, ms := range m.memberships {
		if ms.ProjectID != projectID {
			continue
		}
		u := m.users[ms.UserID]
		res = append(res, domain.Contributor{
			UserID: ms.UserID,
			Name:   u.Name,
			Email:  u.Email,
			Role:   ms.Role,
		})
	}
	return res, nil
}

func (m *MemoryStore) CreateDocument(doc domain.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.documents[doc.ID] = doc
	return nil
}

func (m *MemoryStore) CreateProjectDocument(doc domain.Document, projectID string, docType domain.DocumentType) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.documents[doc.ID] = doc
	m.links = append(m.links, memoryLink{
		ProjectID:    projectID,
		DocumentID:   doc.ID,
		DocumentType: docType,
		CreatedAt:    doc.CreatedAt,
	})
	return nil
}

func (m *MemoryStore) GetDocumentByID(id string) (domain.Document, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.documents[id]
	return d, ok, nil
}

func (m *MemoryStore) ListAgencyDocuments() ([]domain.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Document, 0)
	for _, d := range m.documents {
		if d.IsAgencyDoc {
			res = append(res, d)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.After(res[j].CreatedAt) })
	return res, nil
}

func (m *MemoryStore) LinkDocument(projectID, documentID string, docType domain.DocumentType, selected bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.links {
		if l.ProjectID == projectID && l.DocumentID == documentID {
			return ErrDuplicate
		}
	}
	m.links = append(m.links, memoryLink{
		ProjectID:    projectID,
		DocumentID:   documentID,
		DocumentType: docType,
		IsSelected:   selected,
		CreatedAt:    time.Now().UTC(),
	})
	return nil
}

func (m *MemoryStore) ListProjectDocuments(projectID string, docType domain.DocumentType) ([]domain.ProjectDocumentView, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.ProjectDocumentView, 0)
	for _, l := range m.links {
		if l.ProjectID != projectID {
			continue
		}
		if docType != "" && l.DocumentType != docType {
			continue
		}
		d, ok := m.documents[l.DocumentID]
		if !ok {
			continue
		}
		res = append(res, domain.ProjectDocumentView{
			Document:     d,
			DocumentType: l.DocumentType,
			IsSelected:   l.IsSelected,
		})
	}
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.After(res[j].CreatedAt) })
	return res, nil
}

func (m *MemoryStore) ListDocumentProjects(documentID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]string, 0)
	for _, l := range m.links {
		if l.DocumentID == documentID {
			res = append(res, l.ProjectID)
		}
	}
	return res, nil
}

func (m *MemoryStore) SetDocumentSelection(projectID, documentID string, selected bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, l := range m.links {
		if l.ProjectID == projectID && l.DocumentID == documentID {
			m.links[i].IsSelected = selected
			return nil
		}
	}
	return ErrNotFound
}

func (m *MemoryStore) CreateRfpVersion(version domain.RfpVersion) (domain.RfpVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	next := 1
	for _, v := range m.versions {
		if v.ProjectID == version.ProjectID && v.VersionNumber >= next {
			next = v.VersionNumber + 1
		}
	}
	version.VersionNumber = next
	m.versions = append(m.versions, version)
	return version, nil
}

func (m *MemoryStore) ListRfpVersions(projectID string) ([]domain.RfpVersion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.RfpVersion, 0)
	for _, v := range m.versions {
		if v.ProjectID == projectID {
			res = append(res, v)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].VersionNumber > res[j].VersionNumber })
	return res, nil
}

func (m *MemoryStore) CreateSection(section domain.RfpSection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sections[section.ID] = section
	return nil
}

func (m *MemoryStore) GetSectionByID(id string) (domain.RfpSection, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sections[id]
	return s, ok, nil
}

func (m *MemoryStore) ListSections(projectID string) ([]domain.RfpSection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.RfpSection, 0)
	for _, s := range m.sections {
		if s.ProjectID == projectID {
			res = append(res, s)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].OrderNumber < res[j].OrderNumber })
	return res, nil
}

func (m *MemoryStore) AssignSection(assignment domain.SectionAssignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.assignLocked(assignment)
}

func (m *MemoryStore) assignLocked(assignment domain.SectionAssignment) error {
	for _, a := range m.assignments {
		if a.SectionID == assignment.SectionID && a.UserID == assignment.UserID {
			return ErrDuplicate
		}
	}
	if assignment.ID == "" {
		assignment.ID = uuid.NewString()
	}
	m.assignments = append(m.assignments, assignment)
	return nil
}

func (m *MemoryStore) GetAssignment(sectionID, userID string) (domain.SectionAssignment, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.assignments {
		if a.SectionID == sectionID && a.UserID == userID {
			return a, true, nil
		}
	}
	return domain.SectionAssignment{}, false, nil
}

func (m *MemoryStore) UpdateAssignment(sectionID, userID string, content *string, status domain.AssignmentStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, a := range m.assignments {
		if a.SectionID == sectionID && a.UserID == userID {
			m.assignments[i].Content = content
			m.assignments[i].Status = status
			m.assignments[i].UpdatedAt = time.Now().UTC()
			return nil
		}
	}
	return ErrNotFound
}

func (m *MemoryStore) DeleteAssignment(sectionID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteLocked(sectionID, userID)
	return nil
}

func (m *MemoryStore) deleteLocked(sectionID, userID string) {
	filtered := m.assignments[:0]
	for _, a := range m.assignments {
		if a.SectionID != sectionID || a.UserID != userID {
			filtered = append(filtered, a)
		}
	}
	m.assignments = filtered
}

func (m *MemoryStore) ListProjectAssignments(projectID string) ([]domain.ProjectAssignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.ProjectAssignment, 0)
	for _, a := range m.assignments {
		section, ok := m.sections[a.SectionID]
		if !ok || section.ProjectID != projectID {
			continue
		}
		u := m.users[a.UserID]
		res = append(res, domain.ProjectAssignment{
			SectionAssignment: a,
			SectionName:       section.Name,
			UserName:          u.Name,
			UserEmail:         u.Email,
		})
	}
	sort.Slice(res, func(i, j int) bool {
		return m.sections[res[i].SectionID].OrderNumber < m.sections[res[j].SectionID].OrderNumber
	})
	return res, nil
}

func (m *MemoryStore) ListUserAssignments(userID string) ([]domain.UserAssignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.UserAssignment, 0)
	for _, a := range m.assignments {
		if a.UserID != userID {
			continue
		}
		section, ok := m.sections[a.SectionID]
		if !ok {
			continue
		}
		project := m.projects[section.ProjectID]
		res = append(res, domain.UserAssignment{
			SectionAssignment: a,
			SectionName:       section.Name,
			ProjectID:         section.ProjectID,
			ProjectName:       project.Name,
		})
	}
	sort.Slice(res, func(i, j int) bool { return res[i].UpdatedAt.After(res[j].UpdatedAt) })
	return res, nil
}

func (m *MemoryStore) ApplyAssignmentChanges(creates []domain.SectionAssignment, deletes []domain.AssignmentKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range deletes {
		m.deleteLocked(key.SectionID, key.UserID)
	}
	for _, assignment := range creates {
		if err := m.assignLocked(assignment); err != nil {
			return err
		}
	}
	return nil
}
