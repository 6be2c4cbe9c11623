package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"rfphub/internal/app"
	"rfphub/internal/ratelimit"
	"rfphub/internal/usertoken"
	"rfphub/pkg/domain"
	"rfphub/pkg/store"
)

type stubVerifier struct {
	users map[string]usertoken.Identity
}

func (v stubVerifier) VerifyIdentity(token string) (usertoken.Identity, error) {
	identity, ok := v.users[token]
	if !ok {
		return usertoken.Identity{}, errors.New("invalid token")
	}
	return identity, nil
}

type fakeObjects struct {
	objects map[string][]byte
	deleted []string
	putErr  error
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{objects: make(map[string][]byte)}
}

func (f *fakeObjects) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	if f.putErr != nil {
		return f.putErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.objects[key] = data
	return nil
}

func (f *fakeObjects) PresignGet(_ context.Context, key string, _ time.Duration) (string, error) {
	if _, ok := f.objects[key]; !ok {
		return "", errors.New("object missing")
	}
	return "https://files.test/" + key, nil
}

func (f *fakeObjects) Delete(_ context.Context, key string) error {
	delete(f.objects, key)
	f.deleted = append(f.deleted, key)
	return nil
}

const (
	ownerToken    = "owner-token"
	contribToken  = "contrib-token"
	outsiderToken = "outsider-token"
)

func newTestServer(t *testing.T, limiter *ratelimit.FixedWindowLimiter) (*httptest.Server, *store.MemoryStore, *fakeObjects) {
	t.Helper()
	mem := store.NewMemoryStore()
	objects := newFakeObjects()
	appCore, err := app.New(app.Config{Store: mem, Objects: objects})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	verifier := stubVerifier{users: map[string]usertoken.Identity{
		ownerToken:    {ID: "user-owner", Email: "owner@agency.test", Name: "Olive Owner"},
		contribToken:  {ID: "user-contrib", Email: "contrib@agency.test", Name: "Carl Contributor"},
		outsiderToken: {ID: "user-outsider", Email: "outsider@agency.test", Name: "Oscar Outsider"},
	}}
	srv := New(Config{
		App:           appCore,
		TokenVerifier: verifier,
		UploadLimiter: limiter,
	})
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts, mem, objects
}

func doJSON(t *testing.T, method, url, token string, body any) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func doUpload(t *testing.T, url, token string, fields map[string]string, filename string, content []byte) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := fw.Write(content); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do upload: %v", err)
	}
	return resp
}

type listResponse[T any] struct {
	Items []T `json:"items"`
	Count int `json:"count"`
}

func createProject(t *testing.T, ts *httptest.Server, token, name, client string) domain.Project {
	t.Helper()
	resp := doJSON(t, http.MethodPost, ts.URL+"/projects", token, map[string]string{"name": name, "client": client})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create project expected 201, got %d", resp.StatusCode)
	}
	return decodeBody[domain.Project](t, resp)
}

func addContributor(t *testing.T, ts *httptest.Server, projectID, email, role string) {
	t.Helper()
	resp := doJSON(t, http.MethodPost, ts.URL+"/projects/"+projectID+"/contributors", ownerToken,
		map[string]string{"email": email, "role": role})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("add contributor expected 201, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

// syncUsers makes one authenticated request per token so user rows exist.
func syncUsers(t *testing.T, ts *httptest.Server, tokens ...string) {
	t.Helper()
	for _, token := range tokens {
		resp := doJSON(t, http.MethodGet, ts.URL+"/projects", token, nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("sync user expected 200, got %d", resp.StatusCode)
		}
		resp.Body.Close()
	}
}

func TestHealthzIsPublic(t *testing.T) {
	ts, _, _ := newTestServer(t, nil)
	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz expected 200, got %d", resp.StatusCode)
	}
}

func TestRoutesRequireValidToken(t *testing.T) {
	ts, _, _ := newTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/projects")
	if err != nil {
		t.Fatalf("request missing token: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("missing token expected 401, got %d", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodGet, ts.URL+"/projects", "bogus-token", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("invalid token expected 401, got %d", resp.StatusCode)
	}
}

func TestCreateProjectValidatesAndAddsOwner(t *testing.T) {
	ts, _, _ := newTestServer(t, nil)

	resp := doJSON(t, http.MethodPost, ts.URL+"/projects", ownerToken, map[string]string{"name": "Rebrand"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing client expected 400, got %d", resp.StatusCode)
	}

	project := createProject(t, ts, ownerToken, "Rebrand", "Acme Corp")
	if project.Status != "In Progress" {
		t.Fatalf("new project status = %q, want %q", project.Status, "In Progress")
	}

	resp = doJSON(t, http.MethodGet, ts.URL+"/projects", ownerToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list projects expected 200, got %d", resp.StatusCode)
	}
	projects := decodeBody[listResponse[domain.Project]](t, resp)
	if projects.Count != 1 || projects.Items[0].ID != project.ID {
		t.Fatalf("list projects = %+v, want the created project", projects)
	}

	resp = doJSON(t, http.MethodGet, ts.URL+"/projects/"+project.ID+"/contributors", ownerToken, nil)
	contributors := decodeBody[listResponse[domain.Contributor]](t, resp)
	if contributors.Count != 1 || contributors.Items[0].Role != domain.RoleOwner {
		t.Fatalf("contributors = %+v, want the owner membership", contributors)
	}
}

func TestUpdateProjectAppliesSparsePatch(t *testing.T) {
	ts, _, _ := newTestServer(t, nil)
	project := createProject(t, ts, ownerToken, "Rebrand", "Acme Corp")

	resp := doJSON(t, http.MethodPut, ts.URL+"/projects/"+project.ID, ownerToken, map[string]string{"status": "Completed"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("patch expected 200, got %d", resp.StatusCode)
	}
	updated := decodeBody[domain.Project](t, resp)
	if updated.Status != "Completed" {
		t.Fatalf("status = %q, want Completed", updated.Status)
	}
	if updated.Name != "Rebrand" || updated.Client != "Acme Corp" {
		t.Fatalf("untouched fields changed: %+v", updated)
	}

	resp = doJSON(t, http.MethodPut, ts.URL+"/projects/"+project.ID, ownerToken, map[string]string{})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("empty patch expected 400, got %d", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodDelete, ts.URL+"/projects/"+project.ID, ownerToken, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotImplemented {
		t.Fatalf("delete expected 501, got %d", resp.StatusCode)
	}
}

func TestProjectAccessRequiresMembership(t *testing.T) {
	ts, _, _ := newTestServer(t, nil)
	syncUsers(t, ts, outsiderToken, contribToken)
	project := createProject(t, ts, ownerToken, "Rebrand", "Acme Corp")

	resp := doJSON(t, http.MethodGet, ts.URL+"/projects/"+project.ID, outsiderToken, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("outsider expected 403, got %d", resp.StatusCode)
	}

	addContributor(t, ts, project.ID, "contrib@agency.test", "contributor")

	resp = doJSON(t, http.MethodGet, ts.URL+"/projects/"+project.ID, contribToken, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("contributor read expected 200, got %d", resp.StatusCode)
	}

	// Contributors cannot change project metadata.
	resp = doJSON(t, http.MethodPut, ts.URL+"/projects/"+project.ID, contribToken, map[string]string{"status": "Completed"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("contributor patch expected 403, got %d", resp.StatusCode)
	}

	// Duplicate membership is rejected.
	resp = doJSON(t, http.MethodPost, ts.URL+"/projects/"+project.ID+"/contributors", ownerToken,
		map[string]string{"email": "contrib@agency.test", "role": "contributor"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate contributor expected 409, got %d", resp.StatusCode)
	}

	// Unknown users cannot be added.
	resp = doJSON(t, http.MethodPost, ts.URL+"/projects/"+project.ID+"/contributors", ownerToken,
		map[string]string{"email": "ghost@agency.test", "role": "contributor"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown contributor expected 404, got %d", resp.StatusCode)
	}
}

func TestProjectDocumentUploadFilterAndSelection(t *testing.T) {
	ts, _, objects := newTestServer(t, nil)
	project := createProject(t, ts, ownerToken, "Rebrand", "Acme Corp")

	resp := doUpload(t, ts.URL+"/projects/"+project.ID+"/documents", ownerToken,
		map[string]string{"name": "RFP brief", "documentType": "active_rfp"}, "brief.pdf", []byte("pdf-bytes"))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("upload expected 201, got %d", resp.StatusCode)
	}
	rfpDoc := decodeBody[domain.Document](t, resp)
	if rfpDoc.FileType != "pdf" {
		t.Fatalf("fileType = %q, want pdf", rfpDoc.FileType)
	}
	if _, ok := objects.objects[rfpDoc.FilePath]; !ok {
		t.Fatalf("uploaded bytes not stored under %q", rfpDoc.FilePath)
	}

	resp = doUpload(t, ts.URL+"/projects/"+project.ID+"/documents", ownerToken,
		map[string]string{"name": "Client research", "documentType": "target_research"}, "research.docx", []byte("docx-bytes"))
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("second upload expected 201, got %d", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodGet, ts.URL+"/projects/"+project.ID+"/documents?type=active_rfp", ownerToken, nil)
	filtered := decodeBody[listResponse[domain.ProjectDocumentView]](t, resp)
	if filtered.Count != 1 || filtered.Items[0].ID != rfpDoc.ID {
		t.Fatalf("filtered documents = %+v, want only the RFP brief", filtered)
	}

	resp = doJSON(t, http.MethodGet, ts.URL+"/projects/"+project.ID+"/documents", ownerToken, nil)
	all := decodeBody[listResponse[domain.ProjectDocumentView]](t, resp)
	if all.Count != 2 {
		t.Fatalf("unfiltered documents count = %d, want 2", all.Count)
	}

	resp = doJSON(t, http.MethodPut, ts.URL+"/projects/"+project.ID+"/documents/"+rfpDoc.ID+"/selection", ownerToken,
		map[string]bool{"isSelected": true})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("selection expected 200, got %d", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodGet, ts.URL+"/projects/"+project.ID+"/documents?type=active_rfp", ownerToken, nil)
	filtered = decodeBody[listResponse[domain.ProjectDocumentView]](t, resp)
	if !filtered.Items[0].IsSelected {
		t.Fatalf("document not marked selected: %+v", filtered.Items[0])
	}

	resp = doJSON(t, http.MethodPut, ts.URL+"/projects/"+project.ID+"/documents/missing/selection", ownerToken,
		map[string]bool{"isSelected": true})
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("selection on unknown link expected 404, got %d", resp.StatusCode)
	}
}

func TestAgencyDocumentsAndDownload(t *testing.T) {
	ts, _, _ := newTestServer(t, nil)
	syncUsers(t, ts, ownerToken)

	resp := doUpload(t, ts.URL+"/documents", ownerToken,
		map[string]string{"name": "Agency deck"}, "deck.pptx", []byte("pptx-bytes"))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("agency upload expected 201, got %d", resp.StatusCode)
	}
	doc := decodeBody[domain.Document](t, resp)
	if !doc.IsAgencyDoc {
		t.Fatalf("document not flagged agency-wide: %+v", doc)
	}

	resp = doJSON(t, http.MethodGet, ts.URL+"/documents", ownerToken, nil)
	docs := decodeBody[listResponse[domain.Document]](t, resp)
	if docs.Count != 1 {
		t.Fatalf("agency documents count = %d, want 1", docs.Count)
	}

	resp = doJSON(t, http.MethodGet, ts.URL+"/documents/"+doc.ID+"/download", ownerToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("download expected 200, got %d", resp.StatusCode)
	}
	download := decodeBody[map[string]string](t, resp)
	if download["url"] != "https://files.test/"+doc.FilePath {
		t.Fatalf("download url = %q", download["url"])
	}
	if download["filename"] != "Agency deck" {
		t.Fatalf("download filename = %q", download["filename"])
	}

	resp = doJSON(t, http.MethodGet, ts.URL+"/documents/missing/download", ownerToken, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("download unknown expected 404, got %d", resp.StatusCode)
	}
}

func TestSectionsAndAssignmentLifecycle(t *testing.T) {
	ts, _, _ := newTestServer(t, nil)
	syncUsers(t, ts, contribToken)
	project := createProject(t, ts, ownerToken, "Rebrand", "Acme Corp")
	addContributor(t, ts, project.ID, "contrib@agency.test", "contributor")

	var sections []domain.RfpSection
	for i, name := range []string{"Executive Summary", "Pricing", "Timeline"} {
		resp := doJSON(t, http.MethodPost, ts.URL+"/projects/"+project.ID+"/sections", ownerToken,
			map[string]any{"name": name, "orderNumber": i + 1})
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("create section expected 201, got %d", resp.StatusCode)
		}
		sections = append(sections, decodeBody[domain.RfpSection](t, resp))
	}

	// Contributors cannot add sections.
	resp := doJSON(t, http.MethodPost, ts.URL+"/projects/"+project.ID+"/sections", contribToken,
		map[string]any{"name": "Appendix", "orderNumber": 4})
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("contributor section create expected 403, got %d", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodGet, ts.URL+"/projects/"+project.ID+"/sections", contribToken, nil)
	listed := decodeBody[listResponse[domain.RfpSection]](t, resp)
	if listed.Count != 3 || listed.Items[0].Name != "Executive Summary" {
		t.Fatalf("sections = %+v, want 3 in display order", listed)
	}

	resp = doJSON(t, http.MethodPut, ts.URL+"/projects/"+project.ID+"/assignments", ownerToken,
		map[string]string{
			sections[0].ID: "user-contrib",
			sections[1].ID: "user-owner",
		})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("assignments put expected 200, got %d", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodGet, ts.URL+"/projects/"+project.ID+"/assignments", ownerToken, nil)
	board := decodeBody[listResponse[domain.ProjectAssignment]](t, resp)
	if board.Count != 2 {
		t.Fatalf("assignment board count = %d, want 2", board.Count)
	}
	for _, row := range board.Items {
		if row.Status != domain.StatusNotStarted {
			t.Fatalf("fresh assignment status = %q, want %q", row.Status, domain.StatusNotStarted)
		}
		if row.SectionName == "" || row.UserEmail == "" {
			t.Fatalf("assignment row missing joined names: %+v", row)
		}
	}

	// Contributor saves a draft on their own section.
	assignmentURL := ts.URL + "/sections/" + sections[0].ID + "/assignments/user-contrib"
	resp = doJSON(t, http.MethodPut, assignmentURL, contribToken,
		map[string]string{"content": "Draft intro", "status": "In Progress"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("draft save expected 200, got %d", resp.StatusCode)
	}
	saved := decodeBody[domain.SectionAssignment](t, resp)
	if saved.Content == nil || *saved.Content != "Draft intro" || saved.Status != domain.StatusInProgress {
		t.Fatalf("saved draft = %+v", saved)
	}

	// Status-only update keeps the draft text.
	resp = doJSON(t, http.MethodPut, assignmentURL, contribToken, map[string]string{"status": "Completed"})
	saved = decodeBody[domain.SectionAssignment](t, resp)
	if saved.Content == nil || *saved.Content != "Draft intro" {
		t.Fatalf("status-only update dropped content: %+v", saved)
	}

	// Contributors cannot edit someone else's draft.
	resp = doJSON(t, http.MethodPut, ts.URL+"/sections/"+sections[1].ID+"/assignments/user-owner", contribToken,
		map[string]string{"content": "hijack"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("foreign draft edit expected 403, got %d", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodGet, ts.URL+"/sections/"+sections[0].ID+"/assignments/user-missing", ownerToken, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown assignment expected 404, got %d", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodGet, ts.URL+"/me/assignments", contribToken, nil)
	mine := decodeBody[listResponse[domain.UserAssignment]](t, resp)
	if mine.Count != 1 || mine.Items[0].ProjectName != "Rebrand" {
		t.Fatalf("my assignments = %+v, want the contributor's one row", mine)
	}

	// Reassigning section 0 and unassigning section 1 via the board.
	resp = doJSON(t, http.MethodPut, ts.URL+"/projects/"+project.ID+"/assignments", ownerToken,
		map[string]string{
			sections[0].ID: "user-owner",
			sections[1].ID: "",
		})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("reassign expected 200, got %d", resp.StatusCode)
	}
	resp = doJSON(t, http.MethodGet, ts.URL+"/projects/"+project.ID+"/assignments", ownerToken, nil)
	board = decodeBody[listResponse[domain.ProjectAssignment]](t, resp)
	if board.Count != 1 || board.Items[0].UserID != "user-owner" || board.Items[0].SectionID != sections[0].ID {
		t.Fatalf("board after reassign = %+v", board)
	}
}

func TestAssignmentReconcileCannotReachOtherProjects(t *testing.T) {
	ts, mem, _ := newTestServer(t, nil)
	syncUsers(t, ts, contribToken)
	mine := createProject(t, ts, ownerToken, "Rebrand", "Acme Corp")
	theirs := createProject(t, ts, contribToken, "Other bid", "Globex")

	resp := doJSON(t, http.MethodPost, ts.URL+"/projects/"+mine.ID+"/sections", ownerToken,
		map[string]any{"name": "Summary", "orderNumber": 1})
	mySection := decodeBody[domain.RfpSection](t, resp)
	resp = doJSON(t, http.MethodPost, ts.URL+"/projects/"+theirs.ID+"/sections", contribToken,
		map[string]any{"name": "Intro", "orderNumber": 1})
	foreignSection := decodeBody[domain.RfpSection](t, resp)

	// The owner of one project must not be able to plant assignments on
	// another project's sections through their own board.
	resp = doJSON(t, http.MethodPut, ts.URL+"/projects/"+mine.ID+"/assignments", ownerToken,
		map[string]string{foreignSection.ID: "user-owner"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("foreign section reconcile expected 404, got %d", resp.StatusCode)
	}
	if _, ok, _ := mem.GetAssignment(foreignSection.ID, "user-owner"); ok {
		t.Fatalf("assignment created on another project's section")
	}

	// Assignees that do not exist are rejected instead of inserted.
	resp = doJSON(t, http.MethodPut, ts.URL+"/projects/"+mine.ID+"/assignments", ownerToken,
		map[string]string{mySection.ID: "user-ghost"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown assignee reconcile expected 404, got %d", resp.StatusCode)
	}
	if _, ok, _ := mem.GetAssignment(mySection.ID, "user-ghost"); ok {
		t.Fatalf("assignment created for a nonexistent user")
	}
}

func TestProjectDocumentDownloadRequiresMembership(t *testing.T) {
	ts, _, _ := newTestServer(t, nil)
	syncUsers(t, ts, outsiderToken, contribToken)
	project := createProject(t, ts, ownerToken, "Rebrand", "Acme Corp")

	resp := doUpload(t, ts.URL+"/projects/"+project.ID+"/documents", ownerToken,
		map[string]string{"name": "RFP brief", "documentType": "active_rfp"}, "brief.pdf", []byte("pdf-bytes"))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("upload expected 201, got %d", resp.StatusCode)
	}
	doc := decodeBody[domain.Document](t, resp)

	resp = doJSON(t, http.MethodGet, ts.URL+"/documents/"+doc.ID+"/download", outsiderToken, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("outsider download expected 403, got %d", resp.StatusCode)
	}

	addContributor(t, ts, project.ID, "contrib@agency.test", "contributor")
	resp = doJSON(t, http.MethodGet, ts.URL+"/documents/"+doc.ID+"/download", contribToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("member download expected 200, got %d", resp.StatusCode)
	}
	download := decodeBody[map[string]string](t, resp)
	if download["url"] != "https://files.test/"+doc.FilePath {
		t.Fatalf("download url = %q", download["url"])
	}
}

func TestVersionUploadsAllocateSequentialNumbers(t *testing.T) {
	ts, _, _ := newTestServer(t, nil)
	syncUsers(t, ts, contribToken)
	project := createProject(t, ts, ownerToken, "Rebrand", "Acme Corp")
	addContributor(t, ts, project.ID, "contrib@agency.test", "contributor")

	for want := 1; want <= 2; want++ {
		resp := doUpload(t, ts.URL+"/projects/"+project.ID+"/versions", ownerToken, nil,
			fmt.Sprintf("rfp-v%d.pdf", want), []byte("pdf"))
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("version upload expected 201, got %d", resp.StatusCode)
		}
		version := decodeBody[domain.RfpVersion](t, resp)
		if version.VersionNumber != want {
			t.Fatalf("version number = %d, want %d", version.VersionNumber, want)
		}
	}

	resp := doUpload(t, ts.URL+"/projects/"+project.ID+"/versions", contribToken, nil, "rogue.pdf", []byte("pdf"))
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("contributor version upload expected 403, got %d", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodGet, ts.URL+"/projects/"+project.ID+"/versions", ownerToken, nil)
	versions := decodeBody[listResponse[domain.RfpVersion]](t, resp)
	if versions.Count != 2 {
		t.Fatalf("versions count = %d, want 2", versions.Count)
	}
}

func TestUploadRateLimitReturns429(t *testing.T) {
	redis := miniredis.RunT(t)
	limiter, err := ratelimit.NewRedisFixedWindowLimiter(redis.Addr(), "", "", 2, time.Minute)
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	ts, _, _ := newTestServer(t, limiter)
	syncUsers(t, ts, ownerToken)

	for i := 0; i < 2; i++ {
		resp := doUpload(t, ts.URL+"/documents", ownerToken,
			map[string]string{"name": "Deck"}, "deck.pdf", []byte("pdf"))
		resp.Body.Close()
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("upload %d expected 201, got %d", i+1, resp.StatusCode)
		}
	}
	resp := doUpload(t, ts.URL+"/documents", ownerToken,
		map[string]string{"name": "Deck"}, "deck.pdf", []byte("pdf"))
	resp.Body.Close()
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("third upload expected 429, got %d", resp.StatusCode)
	}
}
