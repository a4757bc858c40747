package index

import "github.com/starford/robotdb/internal/models"

// KeywordIndex defines the interface for keyword index operations.
// Consumers should depend on this interface rather than the concrete *DB type
// to facilitate testing with mocks.
type KeywordIndex interface {
	UpsertAsset(a AssetRow, rec *models.Record) error
	DeleteAsset(identity string) error
	DeleteDocument(name string) error
	GetAsset(identity string) (*AssetRow, error)
	ListAssets(kind string, limit, offset int) ([]AssetRow, int, error)
	SearchKeywords(query string, limit int) ([]KeywordHit, error)
	Dependents(identity string) ([]Dependent, error)
	Graph() ([]GraphNode, []GraphLink, error)
	AllChecksums() (map[string]string, error)
	Close() error
}

// Verify *DB satisfies KeywordIndex at compile time.
var _ KeywordIndex = (*DB)(nil)
