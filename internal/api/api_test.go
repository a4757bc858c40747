package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/starford/robotdb/internal/catalog"
	"github.com/starford/robotdb/internal/models"
	"github.com/starford/robotdb/internal/parser"
	"github.com/starford/robotdb/internal/scanner"
	"github.com/starford/robotdb/internal/testutil"
)

const suiteSource = `*** Settings ***
Library           Collections
Resource          common.resource

*** Test Cases ***
Valid Login
    Open Login Page    http://localhost
`

const resourceSource = `*** Keywords ***
Open Login Page
    [Documentation]    Opens the login page.
    [Arguments]    ${url}
    [Tags]    smoke
    Log    ${url}
`

// blockingParser holds every parse until release is closed.
type blockingParser struct {
	*parser.Parser
	started chan struct{}
	release chan struct{}
}

func (p *blockingParser) ParseLibrary(name string, args []string) (*models.Record, error) {
	select {
	case p.started <- struct{}{}:
	default:
	}
	<-p.release
	return p.Parser.ParseLibrary(name, args)
}

type testEnvironment struct {
	router    http.Handler
	svc       *catalog.Service
	workspace string
}

// testEnv sets up a temp workspace, store, SQLite DB, service, and router.
// An empty authToken means disabled mode.
func testEnv(t *testing.T, authToken string) *testEnvironment {
	t.Helper()
	return testEnvWith(t, authToken != "", authToken, parser.New(nil), nil)
}

func testEnvWith(t *testing.T, authEnabled bool, authToken string, p scanner.Parser, sseHandler http.Handler) *testEnvironment {
	t.Helper()

	ws := t.TempDir()
	if err := os.WriteFile(filepath.Join(ws, "login.robot"), []byte(suiteSource), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(ws, "common.resource"), []byte(resourceSource), 0o644); err != nil {
		t.Fatal(err)
	}

	storeDir, store := testutil.TestStore(t)
	db := testutil.TestDB(t)
	sc := scanner.New(p, nil)
	svc := catalog.NewService(store, db,
		catalog.WithScanner(sc, catalog.Target{Workspace: ws, Extension: "robot", StoreDir: storeDir}))

	return &testEnvironment{
		router:    NewRouter(svc, authEnabled, authToken, sseHandler),
		svc:       svc,
		workspace: ws,
	}
}

func (e *testEnvironment) scan(t *testing.T) {
	t.Helper()
	if _, err := e.svc.Rescan(context.Background()); err != nil {
		t.Fatalf("Rescan: %v", err)
	}
}

func (e *testEnvironment) get(path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func TestScanEndpoint(t *testing.T) {
	env := testEnv(t, "")

	req := httptest.NewRequest(http.MethodPost, "/scan", nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("scan status = %d, body = %s", w.Code, w.Body.String())
	}

	var res struct {
		Discovered int `json:"discovered"`
		Stored     int `json:"stored"`
		Failed     int `json:"failed"`
		Indexed    int `json:"indexed"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	// BuiltIn, login.robot and common.resource. Collections has no spec
	// available and is reported as a failure.
	if res.Discovered != 4 || res.Stored != 3 || res.Failed != 1 || res.Indexed != 3 {
		t.Errorf("scan result = %+v", res)
	}
}

func TestScanEndpoint_Busy(t *testing.T) {
	bp := &blockingParser{
		Parser:  parser.New(nil),
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	env := testEnvWith(t, false, "", bp, nil)

	done := make(chan error, 1)
	go func() {
		_, err := env.svc.Rescan(context.Background())
		done <- err
	}()

	select {
	case <-bp.started:
	case <-time.After(2 * time.Second):
		t.Fatal("first scan did not start")
	}

	req := httptest.NewRequest(http.MethodPost, "/scan", nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusConflict {
		t.Errorf("concurrent scan = %d, want 409", w.Code)
	}

	close(bp.release)
	if err := <-done; err != nil {
		t.Fatalf("first scan: %v", err)
	}
}

func TestListAssets(t *testing.T) {
	env := testEnv(t, "")
	env.scan(t)

	w := env.get("/assets")
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d", w.Code)
	}
	var resp struct {
		Assets []AssetItem `json:"assets"`
		Total  int         `json:"total"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Total != 3 || len(resp.Assets) != 3 {
		t.Errorf("total = %d, assets = %d, want 3", resp.Total, len(resp.Assets))
	}

	w = env.get("/assets?limit=2&offset=2")
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Total != 3 || len(resp.Assets) != 1 {
		t.Errorf("second page: total = %d, assets = %d, want 3/1", resp.Total, len(resp.Assets))
	}

	w = env.get("/assets?kind=library")
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Total != 1 || len(resp.Assets) != 1 {
		t.Fatalf("libraries: total = %d, assets = %d, want 1", resp.Total, len(resp.Assets))
	}
	if resp.Assets[0].Kind != models.KindLibrary {
		t.Errorf("kind = %q, want library", resp.Assets[0].Kind)
	}
}

func TestListAssets_InvalidKind(t *testing.T) {
	env := testEnv(t, "")

	w := env.get("/assets?kind=keyword")
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid kind = %d, want 400", w.Code)
	}
}

func TestGetAsset(t *testing.T) {
	env := testEnv(t, "")
	env.scan(t)
	resource := filepath.Join(env.workspace, "common.resource")

	for _, path := range []string{
		"/assets/" + url.PathEscape(resource),
		"/assets" + resource,
	} {
		w := env.get(path)
		if w.Code != http.StatusOK {
			t.Fatalf("GET %s = %d, body = %s", path, w.Code, w.Body.String())
		}
		var detail RecordDetail
		if err := json.Unmarshal(w.Body.Bytes(), &detail); err != nil {
			t.Fatal(err)
		}
		if detail.Identity != resource {
			t.Errorf("identity = %q, want %q", detail.Identity, resource)
		}
		if detail.Record.Kind != models.KindResource {
			t.Errorf("kind = %q, want resource", detail.Record.Kind)
		}
		if _, ok := detail.Record.Keywords["open_login_page"]; !ok {
			t.Errorf("keywords = %v", detail.Record.Keywords)
		}
		if len(detail.Dependents) != 1 {
			t.Errorf("dependents = %+v, want 1", detail.Dependents)
		}
	}
}

func TestGetAsset_Library(t *testing.T) {
	env := testEnv(t, "")
	env.scan(t)

	w := env.get("/assets/" + scanner.DefaultBuiltin)
	if w.Code != http.StatusOK {
		t.Fatalf("builtin = %d", w.Code)
	}
	var detail RecordDetail
	_ = json.Unmarshal(w.Body.Bytes(), &detail)
	if detail.Record.LibraryModule != scanner.DefaultBuiltin {
		t.Errorf("library_module = %q", detail.Record.LibraryModule)
	}
	if len(detail.Record.Keywords) == 0 {
		t.Error("BuiltIn record has no keywords")
	}
}

func TestGetAsset_NotFound(t *testing.T) {
	env := testEnv(t, "")

	w := env.get("/assets/" + url.PathEscape("/nowhere/missing.robot"))
	if w.Code != http.StatusNotFound {
		t.Errorf("missing asset = %d, want 404", w.Code)
	}
}

func TestDependentsEndpoint(t *testing.T) {
	env := testEnv(t, "")
	env.scan(t)

	w := env.get("/dependents/Collections")
	if w.Code != http.StatusOK {
		t.Fatalf("dependents status = %d", w.Code)
	}
	var resp struct {
		Identity   string                  `json:"identity"`
		Dependents []catalog.DependentItem `json:"dependents"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Identity != "Collections" {
		t.Errorf("identity = %q", resp.Identity)
	}
	if len(resp.Dependents) != 1 || resp.Dependents[0].Identity != filepath.Join(env.workspace, "login.robot") {
		t.Fatalf("dependents = %+v", resp.Dependents)
	}
	if resp.Dependents[0].Via != models.KindLibrary {
		t.Errorf("via = %q, want library", resp.Dependents[0].Via)
	}
}

func TestSearchKeywordsEndpoint(t *testing.T) {
	env := testEnv(t, "")
	env.scan(t)

	w := env.get("/keywords?q=login")
	if w.Code != http.StatusOK {
		t.Fatalf("search status = %d", w.Code)
	}
	var resp struct {
		Results []KeywordItem `json:"results"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Results) == 0 {
		t.Fatal("expected at least one hit")
	}
	if resp.Results[0].Name != "Open Login Page" {
		t.Errorf("first hit = %q", resp.Results[0].Name)
	}
	if len(resp.Results[0].Tags) != 1 || resp.Results[0].Tags[0] != "smoke" {
		t.Errorf("tags = %v", resp.Results[0].Tags)
	}
}

func TestSearchKeywords_MissingQuery(t *testing.T) {
	env := testEnv(t, "")

	w := env.get("/keywords?q=%20")
	if w.Code != http.StatusBadRequest {
		t.Errorf("search no query = %d, want 400", w.Code)
	}
}

func TestGraphEndpoint(t *testing.T) {
	env := testEnv(t, "")
	env.scan(t)

	w := env.get("/graph")
	if w.Code != http.StatusOK {
		t.Fatalf("graph status = %d", w.Code)
	}
	var g catalog.Graph
	_ = json.Unmarshal(w.Body.Bytes(), &g)
	// Three stored assets plus Collections as a missing node.
	if len(g.Nodes) != 4 {
		t.Errorf("nodes = %d, want 4", len(g.Nodes))
	}
	missing := 0
	for _, n := range g.Nodes {
		if n.Missing {
			missing++
			if n.ID != "Collections" {
				t.Errorf("missing node = %q, want Collections", n.ID)
			}
		}
	}
	if missing != 1 {
		t.Errorf("missing nodes = %d, want 1", missing)
	}
	if len(g.Links) != 2 {
		t.Errorf("links = %d, want 2", len(g.Links))
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	env := testEnv(t, "secret123")

	req := httptest.NewRequest(http.MethodGet, "/assets", nil)
	req.Header.Set("Authorization", "Bearer secret123")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("authed list = %d, want 200", w.Code)
	}
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	env := testEnv(t, "secret123")

	w := env.get("/assets")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("unauthed = %d, want 401", w.Code)
	}
	if w.Header().Get("WWW-Authenticate") == "" {
		t.Error("missing WWW-Authenticate header")
	}
}

func TestAuthMiddleware_WrongToken(t *testing.T) {
	env := testEnv(t, "secret123")

	req := httptest.NewRequest(http.MethodPost, "/scan", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_Disabled(t *testing.T) {
	env := testEnv(t, "")

	w := env.get("/assets")
	if w.Code != http.StatusOK {
		t.Errorf("no auth = %d, want 200", w.Code)
	}
}

// SSE endpoint auth tests.

// sseStub writes headers and blocks until the request context is done.
var sseStub = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	<-r.Context().Done()
})

func TestSSEEvents_AuthProtected(t *testing.T) {
	env := testEnvWith(t, true, "secret", parser.New(nil), sseStub)

	w := env.get("/events")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("SSE no auth = %d, want 401", w.Code)
	}
}

func TestSSEEvents_AuthDisabled(t *testing.T) {
	env := testEnvWith(t, false, "", parser.New(nil), sseStub)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code == http.StatusUnauthorized {
		t.Error("SSE should not require auth when disabled")
	}
}

func TestSSEEvents_ValidToken(t *testing.T) {
	env := testEnvWith(t, true, "tok", parser.New(nil), sseStub)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code == http.StatusUnauthorized {
		t.Error("SSE with valid token should not 401")
	}
}
