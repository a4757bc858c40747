// Package catalog answers queries about scanned assets and drives rescans.
// It coordinates the record store, the keyword index and the scanner.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/starford/robotdb/internal/apperr"
	"github.com/starford/robotdb/internal/index"
	"github.com/starford/robotdb/internal/models"
	"github.com/starford/robotdb/internal/scanner"
	"github.com/starford/robotdb/internal/storage"
)

// Event names passed to an EventFunc.
const (
	EventScanStarted   = "scan.started"
	EventScanCompleted = "scan.completed"
	EventScanFailed    = "scan.failed"
	EventIndexUpdated  = "index.updated"
)

// EventFunc receives catalog events.
type EventFunc func(name string, data any)

// Target is what Rescan crawls.
type Target struct {
	Workspace string
	Extension string
	StoreDir  string
}

// RecordDetail is a stored record with its index metadata.
type RecordDetail struct {
	Identity   string          `json:"identity"`
	Document   string          `json:"document"`
	Checksum   string          `json:"checksum,omitempty"`
	UpdatedAt  *time.Time      `json:"updated_at,omitempty"`
	Record     *models.Record  `json:"record"`
	Dependents []DependentItem `json:"dependents"`
}

// AssetItem is a lightweight item in a list response.
type AssetItem struct {
	Identity     string      `json:"identity"`
	Kind         models.Kind `json:"kind"`
	FileName     string      `json:"file_name,omitempty"`
	FilePath     string      `json:"file_path,omitempty"`
	Module       string      `json:"library_module,omitempty"`
	Document     string      `json:"document"`
	KeywordCount int         `json:"keyword_count"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// KeywordItem is one keyword search hit.
type KeywordItem struct {
	Identity      string   `json:"identity"`
	Key           string   `json:"key"`
	Name          string   `json:"keyword_name"`
	Arguments     []string `json:"keyword_arguments"`
	Documentation string   `json:"documentation"`
	Tags          []string `json:"tags"`
	Snippet       string   `json:"snippet,omitempty"`
}

// DependentItem is an asset that imports the queried one.
type DependentItem struct {
	Identity string      `json:"identity"`
	Kind     models.Kind `json:"kind"`
	Via      models.Kind `json:"via"`
}

// GraphNode is one asset of the import graph.
type GraphNode struct {
	ID      string      `json:"id"`
	Kind    models.Kind `json:"kind"`
	Missing bool        `json:"missing,omitempty"`
}

// GraphLink is one import edge.
type GraphLink struct {
	Source string      `json:"source"`
	Target string      `json:"target"`
	Kind   models.Kind `json:"kind"`
}

// Graph is the whole import graph.
type Graph struct {
	Nodes []GraphNode `json:"nodes"`
	Links []GraphLink `json:"links"`
}

// ScanResult reports a rescan and the index sync that followed it.
type ScanResult struct {
	*scanner.Summary
	Indexed int `json:"indexed"`
	Removed int `json:"removed"`
}

// Service coordinates storage, index and scanner operations.
type Service struct {
	store   storage.Provider
	db      *index.DB
	scanner *scanner.Scanner
	target  Target
	logger  *slog.Logger
	onEvent EventFunc
}

// Option configures a Service.
type Option func(*Service)

// WithScanner enables Rescan over target.
func WithScanner(sc *scanner.Scanner, target Target) Option {
	return func(s *Service) {
		s.scanner = sc
		s.target = target
	}
}

// WithEvents registers fn to receive scan and index events.
func WithEvents(fn EventFunc) Option {
	return func(s *Service) { s.onEvent = fn }
}

// WithLogger sets the logger used by Rescan and Reindex.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// NewService creates a new catalog service.
func NewService(store storage.Provider, db *index.DB, opts ...Option) *Service {
	s := &Service{
		store:  store,
		db:     db,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetRecord reads a record from the store and enriches it with its index
// metadata and dependents.
func (s *Service) GetRecord(ctx context.Context, identity string) (*RecordDetail, error) {
	rec, err := s.store.Get(identity)
	if err != nil {
		return nil, err
	}
	detail := &RecordDetail{
		Identity:   identity,
		Document:   storage.FileName(identity),
		Record:     rec,
		Dependents: []DependentItem{},
	}

	row, err := s.db.GetAsset(identity)
	switch {
	case err == nil:
		detail.Checksum = row.Checksum
		updated := row.UpdatedAt
		detail.UpdatedAt = &updated
	case !errors.Is(err, apperr.ErrNotFound):
		return nil, err
	}

	deps, err := s.Dependents(ctx, identity)
	if err != nil {
		return nil, err
	}
	detail.Dependents = deps
	return detail, nil
}

// ListAssets returns paginated assets, optionally of one kind.
func (s *Service) ListAssets(_ context.Context, kind string, limit, offset int) ([]AssetItem, int, error) {
	rows, total, err := s.db.ListAssets(kind, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	items := make([]AssetItem, len(rows))
	for i, r := range rows {
		items[i] = AssetItem{
			Identity:     r.Identity,
			Kind:         r.Kind,
			FileName:     r.FileName,
			FilePath:     r.FilePath,
			Module:       r.Module,
			Document:     r.Document,
			KeywordCount: r.KeywordCount,
			UpdatedAt:    r.UpdatedAt,
		}
	}
	return items, total, nil
}

// SearchKeywords delegates keyword search to the index.
func (s *Service) SearchKeywords(_ context.Context, query string, limit int) ([]KeywordItem, error) {
	hits, err := s.db.SearchKeywords(query, limit)
	if err != nil {
		return nil, err
	}
	items := make([]KeywordItem, len(hits))
	for i, h := range hits {
		items[i] = KeywordItem{
			Identity:      h.Identity,
			Key:           h.Key,
			Name:          h.Name,
			Arguments:     nonNilSlice(h.Arguments),
			Documentation: h.Documentation,
			Tags:          nonNilSlice(h.Tags),
			Snippet:       h.Snippet,
		}
	}
	return items, nil
}

// Dependents returns the assets importing identity.
func (s *Service) Dependents(_ context.Context, identity string) ([]DependentItem, error) {
	deps, err := s.db.Dependents(identity)
	if err != nil {
		return nil, err
	}
	items := make([]DependentItem, len(deps))
	for i, d := range deps {
		items[i] = DependentItem{Identity: d.Identity, Kind: d.Kind, Via: d.Via}
	}
	return items, nil
}

// Graph returns all nodes and links of the import graph.
func (s *Service) Graph(_ context.Context) (*Graph, error) {
	nodes, links, err := s.db.Graph()
	if err != nil {
		return nil, err
	}
	g := &Graph{
		Nodes: make([]GraphNode, len(nodes)),
		Links: make([]GraphLink, len(links)),
	}
	for i, n := range nodes {
		g.Nodes[i] = GraphNode{ID: n.ID, Kind: n.Kind, Missing: n.Missing}
	}
	for i, l := range links {
		g.Links[i] = GraphLink{Source: l.Source, Target: l.Target, Kind: l.Kind}
	}
	return g, nil
}

// Reindex brings the index in line with the store.
func (s *Service) Reindex(_ context.Context) (int, int, error) {
	indexed, removed, err := index.Sync(s.db, s.store, s.logger)
	if err != nil {
		return 0, 0, fmt.Errorf("catalog: reindex: %w", err)
	}
	if indexed > 0 || removed > 0 {
		s.emit(EventIndexUpdated, map[string]int{"indexed": indexed, "removed": removed})
	}
	return indexed, removed, nil
}

// Rescan crawls the workspace into the store and syncs the index. It
// returns apperr.ErrBusy when a scan is already running.
func (s *Service) Rescan(ctx context.Context) (*ScanResult, error) {
	if s.scanner == nil {
		return nil, errors.New("catalog: rescan: no scanner configured")
	}

	started := false
	sum, err := s.scanner.ScanNotify(ctx, s.target.Workspace, s.target.Extension, s.target.StoreDir,
		func(workspace, store string) {
			started = true
			s.emit(EventScanStarted, map[string]string{"workspace": workspace, "store": store})
		})
	if !started {
		if errors.Is(err, apperr.ErrBusy) {
			return nil, err
		}
		return nil, fmt.Errorf("catalog: rescan: %w", err)
	}
	// Records may have been rewritten even when the scan stopped early.
	s.store.Purge()
	if err != nil {
		s.emit(EventScanFailed, map[string]string{"error": err.Error()})
		return nil, fmt.Errorf("catalog: rescan: %w", err)
	}

	indexed, removed, err := s.Reindex(ctx)
	if err != nil {
		s.emit(EventScanFailed, map[string]string{"error": err.Error()})
		return nil, err
	}
	res := &ScanResult{Summary: sum, Indexed: indexed, Removed: removed}
	s.emit(EventScanCompleted, map[string]int{
		"discovered": sum.Discovered,
		"stored":     sum.Stored,
		"failed":     sum.Failed,
		"indexed":    indexed,
		"removed":    removed,
	})
	return res, nil
}

func (s *Service) emit(name string, data any) {
	if s.onEvent != nil {
		s.onEvent(name, data)
	}
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
