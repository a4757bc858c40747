//go:build sqlite_fts5

package index

import (
	"testing"

	"github.com/starford/robotdb/internal/models"
)

func TestFTS5_TableExists(t *testing.T) {
	db := testDB(t)
	var count int
	if err := db.conn.QueryRow(`SELECT count(*) FROM keywords_fts`).Scan(&count); err != nil {
		t.Fatalf("keywords_fts table missing: %v", err)
	}
}

func TestFTS5_SearchWithSnippet(t *testing.T) {
	db := testDB(t)
	rec := &models.Record{FileName: "fts.resource", FilePath: "/ws/fts.resource", Kind: models.KindResource}
	rec.AddKeyword(models.Keyword{
		Name:          "Verify Dashboard",
		Documentation: "Checks the dashboard renders powerful widgets.",
		Tags:          []string{"ui"},
	})
	upsert(t, db, rec, "f1")

	hits, err := db.SearchKeywords("powerful", 10)
	if err != nil {
		t.Fatalf("SearchKeywords: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("expected 1 result, got %d", len(hits))
	}
	if hits[0].Key != "verify_dashboard" {
		t.Errorf("key = %q", hits[0].Key)
	}
	if hits[0].Snippet == "" {
		t.Error("expected non-empty snippet")
	}
}

func TestFTS5_PrefixAndPunctuation(t *testing.T) {
	db := testDB(t)
	upsert(t, db, suiteRecord("/ws/a.robot"), "1")

	for _, q := range []string{"Logi", "open login", `"login"`, "page:"} {
		hits, err := db.SearchKeywords(q, 10)
		if err != nil {
			t.Fatalf("SearchKeywords(%q): %v", q, err)
		}
		if len(hits) != 1 {
			t.Errorf("SearchKeywords(%q) = %+v", q, hits)
		}
	}
}

func TestFTS5_DeleteRemovesFromFTS(t *testing.T) {
	db := testDB(t)
	upsert(t, db, suiteRecord("/ws/gone.robot"), "g")
	_ = db.DeleteAsset("/ws/gone.robot")

	var count int
	if err := db.conn.QueryRow(`SELECT count(*) FROM keywords_fts WHERE identity = ?`, "/ws/gone.robot").Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Error("deleted asset still in FTS index")
	}
}
