package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"leaddesk-api/domain"
	"leaddesk-api/identity"
	"leaddesk-api/linking"
	"leaddesk-api/visibility"
	"leaddesk-api/watch"
)

type mockStore struct {
	mu       sync.Mutex
	accounts map[string]domain.Account
	tasks    map[string][]domain.Task
	comments map[string][]domain.Comment
	leads    map[string][]domain.Lead
	clients  []domain.ClientSummary

	upserted []domain.Task
	deleted  []string
	photoURL string
}

func newMockStore() *mockStore {
	return &mockStore{
		accounts: make(map[string]domain.Account),
		tasks:    make(map[string][]domain.Task),
		comments: make(map[string][]domain.Comment),
		leads:    make(map[string][]domain.Lead),
	}
}

func (m *mockStore) GetAccount(ctx context.Context, id string) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	acc, ok := m.accounts[id]
	if !ok {
		return nil, nil
	}
	return &acc, nil
}

func (m *mockStore) UpdateAccountPhoto(ctx context.Context, id, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.photoURL = url
	return nil
}

func (m *mockStore) LinkedClients(ctx context.Context, managerID string) ([]domain.ClientSummary, error) {
	return m.clients, nil
}

func (m *mockStore) GetTask(ctx context.Context, ownerID, taskID string) (*domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tasks[ownerID] {
		if t.ID == taskID {
			return &t, nil
		}
	}
	return nil, nil
}

func (m *mockStore) UpsertTask(ctx context.Context, t domain.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upserted = append(m.upserted, t)
	return nil
}

func (m *mockStore) DeleteTask(ctx context.Context, ownerID, taskID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, taskID)
	return nil
}

func (m *mockStore) TasksByOwner(ctx context.Context, ownerID string, status domain.TaskStatus) ([]domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.Task{}
	for _, t := range m.tasks[ownerID] {
		if status == "" || t.Status == status {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *mockStore) AppendComment(ctx context.Context, c domain.Comment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.comments[c.TaskID] = append(m.comments[c.TaskID], c)
	return nil
}

func (m *mockStore) CommentsForTask(ctx context.Context, taskID string) ([]domain.Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.comments[taskID], nil
}

func (m *mockStore) UpsertLead(ctx context.Context, l domain.Lead) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.leads[l.OwnerID] = append(m.leads[l.OwnerID], l)
	return nil
}

func (m *mockStore) DeleteLead(ctx context.Context, ownerID, leadID string) error { return nil }

func (m *mockStore) LeadsByOwner(ctx context.Context, ownerID string) ([]domain.Lead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.leads[ownerID], nil
}

type mockAuth struct{ userID string }

func (a mockAuth) UserIDFromAuthHeader(string) (string, error) { return a.userID, nil }

type mockLinker struct {
	err    error
	calls  []string
	lastID string
}

func (l *mockLinker) record(op, id string) error {
	l.calls = append(l.calls, op)
	l.lastID = id
	return l.err
}

func (l *mockLinker) RequestLink(ctx context.Context, clientID, code string) error {
	return l.record("request", clientID)
}
func (l *mockLinker) Approve(ctx context.Context, managerID, clientID string) error {
	return l.record("approve", clientID)
}
func (l *mockLinker) Reject(ctx context.Context, managerID, clientID string) error {
	return l.record("reject", clientID)
}
func (l *mockLinker) Remove(ctx context.Context, managerID, clientID string) error {
	return l.record("remove", clientID)
}
func (l *mockLinker) ConvertToClient(ctx context.Context, adminID, accountID string) error {
	return l.record("to-client", accountID)
}
func (l *mockLinker) ConvertToManager(ctx context.Context, adminID, accountID string) error {
	return l.record("to-manager", accountID)
}

type stubExtractor struct {
	draft domain.TaskDraft
	err   error
}

func (s stubExtractor) Draft(ctx context.Context, text string) (domain.TaskDraft, error) {
	return s.draft, s.err
}

func testDeps(store *mockStore, userID string) Deps {
	logger := log.New()
	watcher := watch.NewWatcher(nil, "updates")
	return Deps{
		Store:      store,
		Auth:       mockAuth{userID: userID},
		Resolver:   identity.NewResolver(store, watcher, 0, logger),
		Linker:     &mockLinker{},
		Visibility: visibility.NewRule(store),
		Watcher:    watcher,
		Logger:     logger,
	}
}

func doRequest(t *testing.T, e *echo.Echo, handler echo.HandlerFunc, req *http.Request, pathParams map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req.Header.Set(echo.HeaderAuthorization, "Bearer token")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	for k, v := range pathParams {
		c.SetParamNames(k)
		c.SetParamValues(v)
	}
	if err := handler(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	return rec
}

func TestGetMeManagerIncludesClients(t *testing.T) {
	store := newMockStore()
	store.accounts["m1"] = domain.Account{ID: "m1", Role: domain.RoleManager, AdminStatus: domain.AdminApproved, ManagerCode: "MAN-ABC123"}
	store.clients = []domain.ClientSummary{{ID: "c1", Name: "Client", Status: domain.LinkApproved}}
	d := testDeps(store, "m1")

	e := echo.New()
	rec := doRequest(t, e, getMe(d), httptest.NewRequest(http.MethodGet, "/api/me", nil), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	var resp meResponse
	if err := sonic.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if resp.ID != "m1" || resp.ManagerCode != "MAN-ABC123" {
		t.Fatalf("unexpected account: %#v", resp.Account)
	}
	if len(resp.LinkedClients) != 1 || resp.LinkedClients[0].ID != "c1" {
		t.Fatalf("unexpected linked clients: %#v", resp.LinkedClients)
	}
}

func TestGetMePendingManagerForbidden(t *testing.T) {
	store := newMockStore()
	store.accounts["m1"] = domain.Account{ID: "m1", Role: domain.RoleManager, AdminStatus: domain.AdminPending}
	d := testDeps(store, "m1")

	e := echo.New()
	rec := doRequest(t, e, getMe(d), httptest.NewRequest(http.MethodGet, "/api/me", nil), nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected status 403 got %d", rec.Code)
	}
}

func TestGetMeUnknownAccount(t *testing.T) {
	store := newMockStore()
	d := testDeps(store, "ghost")

	e := echo.New()
	rec := doRequest(t, e, getMe(d), httptest.NewRequest(http.MethodGet, "/api/me", nil), nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404 got %d", rec.Code)
	}
}

func TestGetTasksManager(t *testing.T) {
	store := newMockStore()
	store.accounts["m1"] = domain.Account{ID: "m1", Role: domain.RoleManager, AdminStatus: domain.AdminApproved}
	store.tasks["m1"] = []domain.Task{
		{ID: "1", Title: "call", Status: domain.StatusTodo, OwnerID: "m1"},
		{ID: "2", Title: "done", Status: domain.StatusDone, OwnerID: "m1"},
	}
	d := testDeps(store, "m1")

	e := echo.New()
	rec := doRequest(t, e, getTasks(d), httptest.NewRequest(http.MethodGet, "/api/tasks?status=todo", nil), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	var resp tasksResponse
	if err := sonic.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if len(resp.Tasks) != 1 || resp.Tasks[0].ID != "1" {
		t.Fatalf("unexpected tasks: %#v", resp.Tasks)
	}
}

func TestGetTasksUnknownBucket(t *testing.T) {
	store := newMockStore()
	store.accounts["m1"] = domain.Account{ID: "m1", Role: domain.RoleManager, AdminStatus: domain.AdminApproved}
	d := testDeps(store, "m1")

	e := echo.New()
	rec := doRequest(t, e, getTasks(d), httptest.NewRequest(http.MethodGet, "/api/tasks?status=blocked", nil), nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 got %d", rec.Code)
	}
}

func TestGetTasksClientSeesOnlyAssigned(t *testing.T) {
	store := newMockStore()
	store.accounts["c1"] = domain.Account{
		ID: "c1", Role: domain.RoleClient, AdminStatus: domain.AdminApproved,
		Status: domain.LinkApproved, LinkedManagerID: "m1",
	}
	store.tasks["m1"] = []domain.Task{
		{ID: "1", Title: "mine", OwnerID: "m1", AssignedTo: []string{"c1"}},
		{ID: "2", Title: "created but unassigned", OwnerID: "m1", CreatedBy: "c1"},
	}
	d := testDeps(store, "c1")

	e := echo.New()
	rec := doRequest(t, e, getTasks(d), httptest.NewRequest(http.MethodGet, "/api/tasks", nil), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	var resp tasksResponse
	if err := sonic.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if len(resp.Tasks) != 1 || resp.Tasks[0].ID != "1" {
		t.Fatalf("unexpected tasks: %#v", resp.Tasks)
	}
}

func TestGetTasksAdminRequiresTarget(t *testing.T) {
	store := newMockStore()
	store.accounts["a1"] = domain.Account{ID: "a1", Role: domain.RoleAdmin}
	d := testDeps(store, "a1")

	e := echo.New()
	rec := doRequest(t, e, getTasks(d), httptest.NewRequest(http.MethodGet, "/api/tasks", nil), nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected status 403 got %d", rec.Code)
	}
}

func TestPostTaskClientOwnedByLinkedManager(t *testing.T) {
	store := newMockStore()
	store.accounts["c1"] = domain.Account{
		ID: "c1", Role: domain.RoleClient, AdminStatus: domain.AdminApproved,
		Status: domain.LinkApproved, LinkedManagerID: "m1",
	}
	d := testDeps(store, "c1")

	body := strings.NewReader(`{"title":"call back","phone":"+1 (555) 010-2345"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/tasks", body)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)

	e := echo.New()
	rec := doRequest(t, e, postTask(d), req, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201 got %d: %s", rec.Code, rec.Body.String())
	}
	if len(store.upserted) != 1 {
		t.Fatalf("expected 1 upserted task, got %d", len(store.upserted))
	}
	got := store.upserted[0]
	if got.OwnerID != "m1" || got.CreatedBy != "c1" {
		t.Fatalf("unexpected ownership: owner=%q createdBy=%q", got.OwnerID, got.CreatedBy)
	}
	if got.Phone != "+15550102345" {
		t.Fatalf("expected normalized phone, got %q", got.Phone)
	}
	if got.Status != domain.StatusTodo {
		t.Fatalf("expected default status todo, got %q", got.Status)
	}
}

func TestPostTaskPendingClientForbidden(t *testing.T) {
	store := newMockStore()
	store.accounts["c1"] = domain.Account{
		ID: "c1", Role: domain.RoleClient, AdminStatus: domain.AdminApproved,
		Status: domain.LinkPending, LinkedManagerID: "m1",
	}
	d := testDeps(store, "c1")

	req := httptest.NewRequest(http.MethodPost, "/api/tasks", strings.NewReader(`{"title":"x"}`))
	e := echo.New()
	rec := doRequest(t, e, postTask(d), req, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected status 403 got %d", rec.Code)
	}
	if len(store.upserted) != 0 {
		t.Fatalf("expected no writes, got %d", len(store.upserted))
	}
}

func TestPostTaskMissingTitle(t *testing.T) {
	store := newMockStore()
	store.accounts["m1"] = domain.Account{ID: "m1", Role: domain.RoleManager, AdminStatus: domain.AdminApproved}
	d := testDeps(store, "m1")

	req := httptest.NewRequest(http.MethodPost, "/api/tasks", strings.NewReader(`{"phone":"+15550102345"}`))
	e := echo.New()
	rec := doRequest(t, e, postTask(d), req, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 got %d", rec.Code)
	}
}

func TestPatchTaskRevalidates(t *testing.T) {
	store := newMockStore()
	store.accounts["m1"] = domain.Account{ID: "m1", Role: domain.RoleManager, AdminStatus: domain.AdminApproved}
	store.tasks["m1"] = []domain.Task{{ID: "t1", Title: "old", Status: domain.StatusTodo, OwnerID: "m1"}}
	d := testDeps(store, "m1")

	req := httptest.NewRequest(http.MethodPatch, "/api/tasks/t1", strings.NewReader(`{"status":"done"}`))
	e := echo.New()
	rec := doRequest(t, e, patchTask(d), req, map[string]string{"id": "t1"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d: %s", rec.Code, rec.Body.String())
	}
	if len(store.upserted) != 1 || store.upserted[0].Status != domain.StatusDone {
		t.Fatalf("unexpected upsert: %#v", store.upserted)
	}
	if store.upserted[0].Title != "old" {
		t.Fatalf("patch clobbered unrelated field: %#v", store.upserted[0])
	}
}

func TestPatchTaskClientForbidden(t *testing.T) {
	store := newMockStore()
	store.accounts["c1"] = domain.Account{
		ID: "c1", Role: domain.RoleClient, AdminStatus: domain.AdminApproved,
		Status: domain.LinkApproved, LinkedManagerID: "m1",
	}
	d := testDeps(store, "c1")

	req := httptest.NewRequest(http.MethodPatch, "/api/tasks/t1", strings.NewReader(`{"status":"done"}`))
	e := echo.New()
	rec := doRequest(t, e, patchTask(d), req, map[string]string{"id": "t1"})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected status 403 got %d", rec.Code)
	}
}

func TestDeleteTaskUnknown(t *testing.T) {
	store := newMockStore()
	store.accounts["m1"] = domain.Account{ID: "m1", Role: domain.RoleManager, AdminStatus: domain.AdminApproved}
	d := testDeps(store, "m1")

	req := httptest.NewRequest(http.MethodDelete, "/api/tasks/ghost", nil)
	e := echo.New()
	rec := doRequest(t, e, deleteTask(d), req, map[string]string{"id": "ghost"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404 got %d", rec.Code)
	}
}

func TestLinkRequestInvalidCode(t *testing.T) {
	store := newMockStore()
	store.accounts["c1"] = domain.Account{ID: "c1", Role: domain.RoleClient, AdminStatus: domain.AdminApproved}
	d := testDeps(store, "c1")
	d.Linker = &mockLinker{err: domain.ErrInvalidCode}

	req := httptest.NewRequest(http.MethodPost, "/api/link/request", strings.NewReader(`{"code":"DEV-ZZ9999"}`))
	e := echo.New()
	rec := doRequest(t, e, postLinkRequest(d), req, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404 got %d", rec.Code)
	}
}

func TestLinkApproveWrongManager(t *testing.T) {
	store := newMockStore()
	store.accounts["m2"] = domain.Account{ID: "m2", Role: domain.RoleManager, AdminStatus: domain.AdminApproved}
	d := testDeps(store, "m2")
	d.Linker = &mockLinker{err: domain.ErrNotAuthorized}

	req := httptest.NewRequest(http.MethodPost, "/api/link/approve", strings.NewReader(`{"clientId":"c1"}`))
	e := echo.New()
	rec := doRequest(t, e, postLinkAction(d, "approve"), req, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected status 403 got %d", rec.Code)
	}
}

func TestLinkRejectConflict(t *testing.T) {
	store := newMockStore()
	store.accounts["m1"] = domain.Account{ID: "m1", Role: domain.RoleManager, AdminStatus: domain.AdminApproved}
	d := testDeps(store, "m1")
	d.Linker = &mockLinker{err: linking.ErrConflict}

	req := httptest.NewRequest(http.MethodPost, "/api/link/reject", strings.NewReader(`{"clientId":"c1"}`))
	e := echo.New()
	rec := doRequest(t, e, postLinkAction(d, "reject"), req, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected status 409 got %d", rec.Code)
	}
}

func TestLinkActionClientForbidden(t *testing.T) {
	store := newMockStore()
	store.accounts["c1"] = domain.Account{ID: "c1", Role: domain.RoleClient, AdminStatus: domain.AdminApproved}
	d := testDeps(store, "c1")
	linker := &mockLinker{}
	d.Linker = linker

	req := httptest.NewRequest(http.MethodPost, "/api/link/remove", strings.NewReader(`{"clientId":"c2"}`))
	e := echo.New()
	rec := doRequest(t, e, postLinkAction(d, "remove"), req, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected status 403 got %d", rec.Code)
	}
	if len(linker.calls) != 0 {
		t.Fatalf("expected no linker calls, got %v", linker.calls)
	}
}

func TestConvertUnknownRole(t *testing.T) {
	store := newMockStore()
	store.accounts["a1"] = domain.Account{ID: "a1", Role: domain.RoleAdmin}
	d := testDeps(store, "a1")

	req := httptest.NewRequest(http.MethodPost, "/api/admin/convert", strings.NewReader(`{"accountId":"m1","role":"superuser"}`))
	e := echo.New()
	rec := doRequest(t, e, postConvert(d), req, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 got %d", rec.Code)
	}
}

func TestConvertDispatch(t *testing.T) {
	store := newMockStore()
	store.accounts["a1"] = domain.Account{ID: "a1", Role: domain.RoleAdmin}
	d := testDeps(store, "a1")
	linker := &mockLinker{}
	d.Linker = linker

	req := httptest.NewRequest(http.MethodPost, "/api/admin/convert", strings.NewReader(`{"accountId":"m1","role":"client"}`))
	e := echo.New()
	rec := doRequest(t, e, postConvert(d), req, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	if len(linker.calls) != 1 || linker.calls[0] != "to-client" || linker.lastID != "m1" {
		t.Fatalf("unexpected linker calls: %v (%s)", linker.calls, linker.lastID)
	}
}

func TestPostCommentLinkedClient(t *testing.T) {
	store := newMockStore()
	store.accounts["c1"] = domain.Account{
		ID: "c1", Name: "Client One", Role: domain.RoleClient, AdminStatus: domain.AdminApproved,
		Status: domain.LinkApproved, LinkedManagerID: "m1",
	}
	store.tasks["m1"] = []domain.Task{{ID: "t1", Title: "x", OwnerID: "m1", AssignedTo: []string{"c1"}}}
	d := testDeps(store, "c1")

	req := httptest.NewRequest(http.MethodPost, "/api/tasks/t1/comments", strings.NewReader(`{"text":"on my way"}`))
	e := echo.New()
	rec := doRequest(t, e, postComment(d), req, map[string]string{"id": "t1"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201 got %d: %s", rec.Code, rec.Body.String())
	}
	comments := store.comments["t1"]
	if len(comments) != 1 || comments[0].AuthorID != "c1" || comments[0].AuthorName != "Client One" {
		t.Fatalf("unexpected comments: %#v", comments)
	}
}

func TestPostCommentUnlinkedClientForbidden(t *testing.T) {
	store := newMockStore()
	store.accounts["c2"] = domain.Account{
		ID: "c2", Role: domain.RoleClient, AdminStatus: domain.AdminApproved,
		Status: domain.LinkApproved, LinkedManagerID: "m1",
	}
	store.tasks["m1"] = []domain.Task{{ID: "t1", Title: "x", OwnerID: "m2"}}
	d := testDeps(store, "c2")

	// The task resolves through c2's linked manager partition but belongs to
	// another manager, so commenting is refused.
	req := httptest.NewRequest(http.MethodPost, "/api/tasks/t1/comments", strings.NewReader(`{"text":"hi"}`))
	e := echo.New()
	rec := doRequest(t, e, postComment(d), req, map[string]string{"id": "t1"})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected status 403 got %d", rec.Code)
	}
}

func TestPostExtractValidatesDraft(t *testing.T) {
	store := newMockStore()
	store.accounts["m1"] = domain.Account{ID: "m1", Role: domain.RoleManager, AdminStatus: domain.AdminApproved}
	d := testDeps(store, "m1")
	d.Extractor = stubExtractor{draft: domain.TaskDraft{Title: "Call Dana", Phone: "555-010-2345", Due: "2026-09-02"}}

	req := httptest.NewRequest(http.MethodPost, "/api/extract", strings.NewReader(`{"text":"call dana tomorrow"}`))
	e := echo.New()
	rec := doRequest(t, e, postExtract(d), req, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d: %s", rec.Code, rec.Body.String())
	}
	var task domain.Task
	if err := sonic.Unmarshal(rec.Body.Bytes(), &task); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if task.Title != "Call Dana" || task.Phone != "5550102345" {
		t.Fatalf("unexpected draft result: %#v", task)
	}
	if task.ID != "" || task.OwnerID != "" {
		t.Fatalf("extract must not mint a persisted task: %#v", task)
	}
}

func TestPostExtractRejectsBadDraft(t *testing.T) {
	store := newMockStore()
	store.accounts["m1"] = domain.Account{ID: "m1", Role: domain.RoleManager, AdminStatus: domain.AdminApproved}
	d := testDeps(store, "m1")
	d.Extractor = stubExtractor{draft: domain.TaskDraft{Title: "", Phone: "not-a-phone"}}

	req := httptest.NewRequest(http.MethodPost, "/api/extract", strings.NewReader(`{"text":"gibberish"}`))
	e := echo.New()
	rec := doRequest(t, e, postExtract(d), req, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 got %d", rec.Code)
	}
}

func TestLeadsManagerOnly(t *testing.T) {
	store := newMockStore()
	store.accounts["c1"] = domain.Account{
		ID: "c1", Role: domain.RoleClient, AdminStatus: domain.AdminApproved,
		Status: domain.LinkApproved, LinkedManagerID: "m1",
	}
	d := testDeps(store, "c1")

	e := echo.New()
	rec := doRequest(t, e, getLeads(d), httptest.NewRequest(http.MethodGet, "/api/leads", nil), nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected status 403 got %d", rec.Code)
	}
}
