package index

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/starford/robotdb/internal/apperr"
	"github.com/starford/robotdb/internal/models"
	"github.com/starford/robotdb/internal/storage"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	f, err := os.CreateTemp("", "robotdb-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	db, err := Open(f.Name())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func suiteRecord(path string, resources ...string) *models.Record {
	rec := &models.Record{
		FileName:  "suite.robot",
		FilePath:  path,
		Kind:      models.KindSuite,
		Variables: []string{},
		Resources: resources,
		Libraries: []models.LibraryImport{{Name: "Collections", Arguments: []string{}}},
	}
	rec.AddKeyword(models.Keyword{
		Name:          "Open Login Page",
		Arguments:     []string{"${url}"},
		Documentation: "Opens the login page in a browser.",
		Tags:          []string{"smoke"},
	})
	return rec
}

func upsert(t *testing.T, db *DB, rec *models.Record, cs string) {
	t.Helper()
	row := AssetRowFor(rec, storage.FileName(rec.Identity()), cs, time.Now())
	if err := db.UpsertAsset(row, rec); err != nil {
		t.Fatalf("UpsertAsset: %v", err)
	}
}

func TestSchemaCreation(t *testing.T) {
	db := testDB(t)
	for _, table := range []string{"assets", "keywords", "imports"} {
		var count int
		if err := db.conn.QueryRow(`SELECT count(*) FROM ` + table).Scan(&count); err != nil {
			t.Fatalf("%s table missing: %v", table, err)
		}
	}
}

func TestUpsertAndGetAsset(t *testing.T) {
	db := testDB(t)
	upsert(t, db, suiteRecord("/ws/suite.robot"), "abc123")

	a, err := db.GetAsset("/ws/suite.robot")
	if err != nil {
		t.Fatalf("GetAsset: %v", err)
	}
	if a.Checksum != "abc123" || a.Kind != models.KindSuite || a.KeywordCount != 1 {
		t.Errorf("asset = %+v", a)
	}
	if a.Document != storage.FileName("/ws/suite.robot") {
		t.Errorf("document = %q", a.Document)
	}
}

func TestGetAsset_NotFound(t *testing.T) {
	db := testDB(t)
	_, err := db.GetAsset("/ws/none.robot")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpsertReplacesChildren(t *testing.T) {
	db := testDB(t)
	upsert(t, db, suiteRecord("/ws/suite.robot", "/ws/old.resource"), "1")

	rec := suiteRecord("/ws/suite.robot", "/ws/new.resource")
	rec.Keywords = map[string]models.Keyword{}
	rec.AddKeyword(models.Keyword{Name: "Replacement"})
	upsert(t, db, rec, "2")

	if deps, _ := db.Dependents("/ws/old.resource"); len(deps) != 0 {
		t.Errorf("old import should be removed on upsert: %+v", deps)
	}
	if deps, _ := db.Dependents("/ws/new.resource"); len(deps) != 1 {
		t.Errorf("new import should exist: %+v", deps)
	}
	hits, err := db.SearchKeywords("login", 10)
	if err != nil {
		t.Fatalf("SearchKeywords: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("old keyword still indexed: %+v", hits)
	}
}

func TestDependents(t *testing.T) {
	db := testDB(t)
	upsert(t, db, suiteRecord("/ws/a.robot", "/ws/common.resource"), "1")
	upsert(t, db, suiteRecord("/ws/b.robot", "/ws/common.resource"), "2")

	deps, err := db.Dependents("/ws/common.resource")
	if err != nil {
		t.Fatalf("Dependents: %v", err)
	}
	if len(deps) != 2 || deps[0].Identity != "/ws/a.robot" || deps[0].Via != models.KindResource || deps[0].Kind != models.KindSuite {
		t.Fatalf("dependents = %+v", deps)
	}

	libs, _ := db.Dependents("Collections")
	if len(libs) != 2 || libs[0].Via != models.KindLibrary {
		t.Errorf("library dependents = %+v", libs)
	}
}

func TestDeleteAsset(t *testing.T) {
	db := testDB(t)
	upsert(t, db, suiteRecord("/ws/del.robot", "/ws/target.resource"), "x")

	if err := db.DeleteAsset("/ws/del.robot"); err != nil {
		t.Fatalf("DeleteAsset: %v", err)
	}
	if _, err := db.GetAsset("/ws/del.robot"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("asset still present: %v", err)
	}
	if deps, _ := db.Dependents("/ws/target.resource"); len(deps) != 0 {
		t.Errorf("expected 0 dependents after delete, got %d", len(deps))
	}
	if hits, _ := db.SearchKeywords("login", 10); len(hits) != 0 {
		t.Errorf("keywords still indexed: %+v", hits)
	}
}

func TestListAssets(t *testing.T) {
	db := testDB(t)
	upsert(t, db, suiteRecord("/ws/a.robot"), "1")
	upsert(t, db, suiteRecord("/ws/b.robot"), "2")
	lib := &models.Record{Kind: models.KindLibrary, LibraryModule: "BuiltIn", Arguments: []string{}}
	lib.AddKeyword(models.Keyword{Name: "Log"})
	upsert(t, db, lib, "3")

	all, total, err := db.ListAssets("", 10, 0)
	if err != nil {
		t.Fatalf("ListAssets: %v", err)
	}
	if total != 3 || len(all) != 3 || all[0].Identity != "/ws/a.robot" || all[2].Identity != "BuiltIn" {
		t.Errorf("all = %+v (total %d)", all, total)
	}

	page, total, _ := db.ListAssets(string(models.KindSuite), 1, 1)
	if total != 2 || len(page) != 1 || page[0].Identity != "/ws/b.robot" {
		t.Errorf("page = %+v (total %d)", page, total)
	}
}

func TestGraph(t *testing.T) {
	db := testDB(t)
	upsert(t, db, suiteRecord("/ws/a.robot", "/ws/common.resource"), "1")

	nodes, links, err := db.Graph()
	if err != nil {
		t.Fatalf("Graph: %v", err)
	}
	if len(links) != 2 {
		t.Fatalf("links = %+v", links)
	}
	missing := 0
	for _, n := range nodes {
		if n.Missing {
			missing++
		}
	}
	if len(nodes) != 3 || missing != 2 {
		t.Errorf("nodes = %+v", nodes)
	}
}

func TestSearchKeywords_Basic(t *testing.T) {
	db := testDB(t)
	upsert(t, db, suiteRecord("/ws/a.robot"), "1")

	hits, err := db.SearchKeywords("login", 10)
	if err != nil {
		t.Fatalf("SearchKeywords: %v", err)
	}
	if len(hits) != 1 || hits[0].Key != "open_login_page" || hits[0].Identity != "/ws/a.robot" {
		t.Fatalf("hits = %+v", hits)
	}
	if len(hits[0].Arguments) != 1 || hits[0].Arguments[0] != "${url}" || hits[0].Tags[0] != "smoke" {
		t.Errorf("hit = %+v", hits[0])
	}

	if hits, _ := db.SearchKeywords("   ", 10); len(hits) != 0 {
		t.Errorf("blank query should match nothing: %+v", hits)
	}
}

func TestSync(t *testing.T) {
	dir := t.TempDir()
	store, err := storage.NewFS(dir, 0)
	if err != nil {
		t.Fatal(err)
	}
	db := testDB(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	a := suiteRecord("/ws/a.robot")
	b := suiteRecord("/ws/b.robot")
	if _, err := store.Put(a); err != nil {
		t.Fatal(err)
	}
	nameB, err := store.Put(b)
	if err != nil {
		t.Fatal(err)
	}

	indexed, removed, err := Sync(db, store, logger)
	if err != nil || indexed != 2 || removed != 0 {
		t.Fatalf("first sync = %d, %d, %v", indexed, removed, err)
	}

	indexed, _, _ = Sync(db, store, logger)
	if indexed != 0 {
		t.Errorf("unchanged documents re-indexed: %d", indexed)
	}

	if err := os.Remove(filepath.Join(dir, nameB)); err != nil {
		t.Fatal(err)
	}
	a.AddKeyword(models.Keyword{Name: "Fresh Keyword"})
	if _, err := store.Put(a); err != nil {
		t.Fatal(err)
	}

	indexed, removed, err = Sync(db, store, logger)
	if err != nil || indexed != 1 || removed != 1 {
		t.Fatalf("third sync = %d, %d, %v", indexed, removed, err)
	}
	if _, err := db.GetAsset("/ws/b.robot"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("stale asset kept: %v", err)
	}
	if hits, _ := db.SearchKeywords("fresh", 10); len(hits) != 1 {
		t.Errorf("changed document not re-indexed: %+v", hits)
	}
}
