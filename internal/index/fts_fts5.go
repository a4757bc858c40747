//go:build sqlite_fts5

package index

import (
	"database/sql"
	"fmt"
	"strings"
)

func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS keywords_fts USING fts5(
			identity UNINDEXED,
			key UNINDEXED,
			name,
			documentation,
			tags,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`)
	return err
}

func ftsUpsert(tx *sql.Tx, identity, key, name, doc string, tags []string) error {
	_, _ = tx.Exec(`DELETE FROM keywords_fts WHERE identity = ? AND key = ?`, identity, key)
	_, err := tx.Exec(`INSERT INTO keywords_fts (identity, key, name, documentation, tags) VALUES (?, ?, ?, ?, ?)`,
		identity, key, name, doc, strings.Join(tags, " "))
	if err != nil {
		return fmt.Errorf("index: upsert fts: %w", err)
	}
	return nil
}

func ftsDelete(tx *sql.Tx, identity string) {
	_, _ = tx.Exec(`DELETE FROM keywords_fts WHERE identity = ?`, identity)
}

// ftsQuery quotes every term so keyword names with punctuation are matched
// literally; the last term is a prefix match.
func ftsQuery(q string) string {
	terms := strings.Fields(q)
	for i, t := range terms {
		terms[i] = `"` + strings.ReplaceAll(t, `"`, `""`) + `"`
	}
	if n := len(terms); n > 0 {
		terms[n-1] += "*"
	}
	return strings.Join(terms, " ")
}

// SearchKeywords performs an FTS5 full-text search over keyword names,
// documentation and tags and returns matching keywords with snippets.
func (db *DB) SearchKeywords(query string, limit int) ([]KeywordHit, error) {
	if limit <= 0 {
		limit = 20
	}
	match := ftsQuery(query)
	if match == "" {
		return nil, nil
	}
	rows, err := db.conn.Query(`
		SELECT f.identity, f.key, k.name, k.arguments, k.documentation, k.tags,
		       snippet(keywords_fts, 3, '<b>', '</b>', '...', 32)
		FROM keywords_fts f
		JOIN keywords k ON k.identity = f.identity AND k.key = f.key
		WHERE keywords_fts MATCH ?
		ORDER BY rank
		LIMIT ?
	`, match, limit)
	if err != nil {
		return nil, fmt.Errorf("index: search: %w", err)
	}
	defer rows.Close()

	var out []KeywordHit
	for rows.Next() {
		var h KeywordHit
		var args, tags string
		if err := rows.Scan(&h.Identity, &h.Key, &h.Name, &args, &h.Documentation, &tags, &h.Snippet); err != nil {
			return nil, err
		}
		scanKeyword(&h, args, tags)
		out = append(out, h)
	}
	return out, rows.Err()
}
