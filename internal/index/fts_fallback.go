//go:build !sqlite_fts5

package index

import (
	"database/sql"
	"fmt"
	"strings"
)

func initFTS(_ *sql.DB) error {
	// FTS5 not available; keyword search uses LIKE on the keywords table.
	return nil
}

func ftsUpsert(_ *sql.Tx, _, _, _, _ string, _ []string) error {
	return nil
}

func ftsDelete(_ *sql.Tx, _ string) {}

// SearchKeywords performs a LIKE-based search over keyword names,
// documentation and tags (fallback when FTS5 is not compiled in). Name
// matches rank first.
func (db *DB) SearchKeywords(query string, limit int) ([]KeywordHit, error) {
	if limit <= 0 {
		limit = 20
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	like := likePattern(query)
	rows, err := db.conn.Query(`
		SELECT identity, key, name, arguments, documentation, tags, substr(documentation, 1, 200)
		FROM keywords
		WHERE name LIKE ? ESCAPE '\' OR documentation LIKE ? ESCAPE '\' OR tags LIKE ? ESCAPE '\'
		ORDER BY (name LIKE ? ESCAPE '\') DESC, key, identity
		LIMIT ?
	`, like, like, like, like, limit)
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
