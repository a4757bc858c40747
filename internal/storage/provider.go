// Package storage persists one JSON document per parsed asset, named from
// the asset identity.
package storage

import "github.com/starford/robotdb/internal/models"

// Provider is the interface for record store operations.
type Provider interface {
	// Put writes rec under its identity and returns the document name.
	Put(rec *models.Record) (string, error)
	// Get returns the record stored for identity.
	Get(identity string) (*models.Record, error)
	// List returns metadata for every stored document.
	List() ([]models.DocumentMeta, error)
	// Read returns the raw bytes of a document by file name.
	Read(name string) ([]byte, error)
	// Purge drops cached records, for stores rewritten by another writer.
	Purge()
}

var _ Provider = (*FS)(nil)
