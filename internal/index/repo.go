package index

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/starford/robotdb/internal/apperr"
	"github.com/starford/robotdb/internal/models"
)

// AssetRow represents a row in the assets table.
type AssetRow struct {
	Identity     string
	Kind         models.Kind
	FileName     string
	FilePath     string
	Module       string
	Document     string
	Checksum     string
	KeywordCount int
	UpdatedAt    time.Time
}

// KeywordHit represents one keyword search hit.
type KeywordHit struct {
	Identity      string
	Key           string
	Name          string
	Arguments     []string
	Documentation string
	Tags          []string
	Snippet       string
}

// Dependent is an asset importing another one.
type Dependent struct {
	Identity string
	Kind     models.Kind
	Via      models.Kind
}

// GraphNode is one asset of the import graph. Missing nodes are import
// targets that have no stored record.
type GraphNode struct {
	ID      string
	Kind    models.Kind
	Missing bool
}

// GraphLink is one import edge.
type GraphLink struct {
	Source string
	Target string
	Kind   models.Kind
}

// AssetRowFor builds the row for a stored record.
func AssetRowFor(rec *models.Record, document, checksum string, updatedAt time.Time) AssetRow {
	return AssetRow{
		Identity:  rec.Identity(),
		Kind:      rec.Kind,
		FileName:  rec.FileName,
		FilePath:  rec.FilePath,
		Module:    rec.LibraryModule,
		Document:  document,
		Checksum:  checksum,
		UpdatedAt: updatedAt,
	}
}

// UpsertAsset inserts or replaces an asset, its keywords, FTS entries and
// imports within a transaction.
func (db *DB) UpsertAsset(a AssetRow, rec *models.Record) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	// A document name maps to one identity; drop a previous owner.
	var prev string
	err = tx.QueryRow(`SELECT identity FROM assets WHERE document = ? AND identity <> ?`, a.Document, a.Identity).Scan(&prev)
	switch {
	case err == nil:
		if err := deleteChildren(tx, prev); err != nil {
			return err
		}
		if _, err := tx.Exec(`DELETE FROM assets WHERE identity = ?`, prev); err != nil {
			return fmt.Errorf("index: clear document: %w", err)
		}
	case !errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("index: lookup document: %w", err)
	}

	_, err = tx.Exec(`
		INSERT INTO assets (identity, kind, file_name, file_path, module, document, checksum, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(identity) DO UPDATE SET
			kind       = excluded.kind,
			file_name  = excluded.file_name,
			file_path  = excluded.file_path,
			module     = excluded.module,
			document   = excluded.document,
			checksum   = excluded.checksum,
			updated_at = excluded.updated_at
	`, a.Identity, string(a.Kind), a.FileName, a.FilePath, a.Module, a.Document, a.Checksum, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("index: upsert asset: %w", err)
	}

	if err := deleteChildren(tx, a.Identity); err != nil {
		return err
	}

	if len(rec.Keywords) > 0 {
		stmt, err := tx.Prepare(`INSERT INTO keywords (identity, key, name, arguments, documentation, tags) VALUES (?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("index: prepare keyword insert: %w", err)
		}
		defer stmt.Close()
		for key, kw := range rec.Keywords {
			argsJSON, _ := json.Marshal(nonNil(kw.Arguments))
			tagsJSON, _ := json.Marshal(nonNil(kw.Tags))
			if _, err := stmt.Exec(a.Identity, key, kw.Name, string(argsJSON), kw.Documentation, string(tagsJSON)); err != nil {
				return fmt.Errorf("index: insert keyword: %w", err)
			}
			if err := ftsUpsert(tx, a.Identity, key, kw.Name, kw.Documentation, kw.Tags); err != nil {
				return err
			}
		}
	}

	links := importsOf(rec)
	if len(links) > 0 {
		stmt, err := tx.Prepare(`INSERT OR IGNORE INTO imports (source, target, kind) VALUES (?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("index: prepare import insert: %w", err)
		}
		defer stmt.Close()
		for _, l := range links {
			if _, err := stmt.Exec(a.Identity, l.Target, string(l.Kind)); err != nil {
				return fmt.Errorf("index: insert import: %w", err)
			}
		}
	}

	return tx.Commit()
}

func importsOf(rec *models.Record) []GraphLink {
	var out []GraphLink
	for _, lib := range rec.Libraries {
		out = append(out, GraphLink{Target: lib.Identity(), Kind: models.KindLibrary})
	}
	for _, res := range rec.Resources {
		out = append(out, GraphLink{Target: res, Kind: models.KindResource})
	}
	for _, vf := range rec.VariableFiles {
		for path := range vf {
			out = append(out, GraphLink{Target: path, Kind: models.KindVariable})
		}
	}
	return out
}

func deleteChildren(tx *sql.Tx, identity string) error {
	ftsDelete(tx, identity)
	if _, err := tx.Exec(`DELETE FROM keywords WHERE identity = ?`, identity); err != nil {
		return fmt.Errorf("index: delete keywords: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM imports WHERE source = ?`, identity); err != nil {
		return fmt.Errorf("index: delete imports: %w", err)
	}
	return nil
}

// DeleteAsset removes an asset, its keywords, FTS entries and outgoing imports.
func (db *DB) DeleteAsset(identity string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := deleteChildren(tx, identity); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM assets WHERE identity = ?`, identity); err != nil {
		return fmt.Errorf("index: delete asset: %w", err)
	}
	return tx.Commit()
}

// DeleteDocument removes the asset stored in the named document, if any.
func (db *DB) DeleteDocument(name string) error {
	var identity string
	err := db.conn.QueryRow(`SELECT identity FROM assets WHERE document = ?`, name).Scan(&identity)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("index: lookup document: %w", err)
	}
	return db.DeleteAsset(identity)
}

// AllChecksums returns the checksum of every indexed document, keyed by
// document name.
func (db *DB) AllChecksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT document, checksum FROM assets`)
	if err != nil {
		return nil, fmt.Errorf("index: all checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var doc, cs string
		if err := rows.Scan(&doc, &cs); err != nil {
			return nil, err
		}
		out[doc] = cs
	}
	return out, rows.Err()
}

const assetColumns = `a.identity, a.kind, a.file_name, a.file_path, a.module, a.document, a.checksum, a.updated_at,
	(SELECT count(*) FROM keywords k WHERE k.identity = a.identity)`

func scanAsset(sc interface{ Scan(...any) error }) (AssetRow, error) {
	var r AssetRow
	var kind string
	err := sc.Scan(&r.Identity, &kind, &r.FileName, &r.FilePath, &r.Module, &r.Document, &r.Checksum, &r.UpdatedAt, &r.KeywordCount)
	r.Kind = models.Kind(kind)
	return r, err
}

// GetAsset returns one asset row, or apperr.ErrNotFound.
func (db *DB) GetAsset(identity string) (*AssetRow, error) {
	row := db.conn.QueryRow(`SELECT `+assetColumns+` FROM assets a WHERE a.identity = ?`, identity)
	r, err := scanAsset(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("index: asset %s: %w", identity, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("index: get asset: %w", err)
	}
	return &r, nil
}

// ListAssets returns a page of assets ordered by identity, optionally
// filtered by kind, and the total number of matching assets.
func (db *DB) ListAssets(kind string, limit, offset int) ([]AssetRow, int, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	where := ""
	var args []any
	if kind != "" {
		where = " WHERE a.kind = ?"
		args = append(args, kind)
	}

	var total int
	if err := db.conn.QueryRow(`SELECT count(*) FROM assets a`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("index: count assets: %w", err)
	}

	rows, err := db.conn.Query(`SELECT `+assetColumns+` FROM assets a`+where+` ORDER BY a.identity LIMIT ? OFFSET ?`,
		append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("index: list assets: %w", err)
	}
	defer rows.Close()

	var out []AssetRow
	for rows.Next() {
		r, err := scanAsset(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, r)
	}
	return out, total, rows.Err()
}

// Dependents returns the assets that import identity.
func (db *DB) Dependents(identity string) ([]Dependent, error) {
	rows, err := db.conn.Query(`
		SELECT i.source, COALESCE(a.kind, ''), i.kind
		FROM imports i
		LEFT JOIN assets a ON a.identity = i.source
		WHERE i.target = ?
		ORDER BY i.source
	`, identity)
	if err != nil {
		return nil, fmt.Errorf("index: dependents: %w", err)
	}
	defer rows.Close()

	var out []Dependent
	for rows.Next() {
		var d Dependent
		var kind, via string
		if err := rows.Scan(&d.Identity, &kind, &via); err != nil {
			return nil, err
		}
		d.Kind, d.Via = models.Kind(kind), models.Kind(via)
		out = append(out, d)
	}
	return out, rows.Err()
}

// Graph returns every asset and import edge. Import targets without a
// stored record are included as missing nodes.
func (db *DB) Graph() ([]GraphNode, []GraphLink, error) {
	rows, err := db.conn.Query(`SELECT identity, kind FROM assets ORDER BY identity`)
	if err != nil {
		return nil, nil, fmt.Errorf("index: graph nodes: %w", err)
	}
	var nodes []GraphNode
	known := make(map[string]bool)
	for rows.Next() {
		var n GraphNode
		var kind string
		if err := rows.Scan(&n.ID, &kind); err != nil {
			rows.Close()
			return nil, nil, err
		}
		n.Kind = models.Kind(kind)
		known[n.ID] = true
		nodes = append(nodes, n)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	lrows, err := db.conn.Query(`SELECT source, target, kind FROM imports ORDER BY source, target`)
	if err != nil {
		return nil, nil, fmt.Errorf("index: graph links: %w", err)
	}
	defer lrows.Close()
	var links []GraphLink
	for lrows.Next() {
		var l GraphLink
		var kind string
		if err := lrows.Scan(&l.Source, &l.Target, &kind); err != nil {
			return nil, nil, err
		}
		l.Kind = models.Kind(kind)
		links = append(links, l)
		if !known[l.Target] {
			known[l.Target] = true
			nodes = append(nodes, GraphNode{ID: l.Target, Kind: l.Kind, Missing: true})
		}
	}
	return nodes, links, lrows.Err()
}

func scanKeyword(h *KeywordHit, argsJSON, tagsJSON string) {
	_ = json.Unmarshal([]byte(argsJSON), &h.Arguments)
	_ = json.Unmarshal([]byte(tagsJSON), &h.Tags)
	h.Arguments = nonNil(h.Arguments)
	h.Tags = nonNil(h.Tags)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// likePattern escapes LIKE wildcards in q.
func likePattern(q string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(q) + "%"
}
