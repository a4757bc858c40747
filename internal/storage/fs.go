package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/starford/robotdb/internal/apperr"
	"github.com/starford/robotdb/internal/checksum"
	"github.com/starford/robotdb/internal/models"
)

const (
	docExt           = ".json"
	defaultCacheSize = 256
)

// FS implements Provider backed by a directory of JSON documents.
type FS struct {
	root  string // absolute path to the store directory
	cache *lru.Cache[string, *models.Record]
}

// NewFS creates a new FS provider rooted at the given directory.
// The directory must already exist.
func NewFS(root string, cacheSize int) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: root is not a directory: %s", abs)
	}
	if cacheSize <= 0 {
		cacheSize = defaultCacheSize
	}
	cache, err := lru.New[string, *models.Record](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("storage: init cache: %w", err)
	}
	return &FS{root: abs, cache: cache}, nil
}

// Root returns the absolute store directory.
func (f *FS) Root() string {
	return f.root
}

// FileName returns the document name for an identity:
// "<basename>-<md5 of identity>.json".
func FileName(identity string) string {
	return fmt.Sprintf("%s-%s%s", models.BaseName(identity), checksum.Identity(identity), docExt)
}

// Put serializes rec and atomically overwrites its document.
func (f *FS) Put(rec *models.Record) (string, error) {
	identity := rec.Identity()
	if identity == "" {
		return "", errors.New("storage: record has no identity")
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return "", fmt.Errorf("storage: encode %s: %w", identity, err)
	}
	name := FileName(identity)
	if err := f.write(name, append(data, '\n')); err != nil {
		return "", err
	}
	f.cache.Remove(identity)
	return name, nil
}

// Get returns the stored record for identity.
func (f *FS) Get(identity string) (*models.Record, error) {
	if rec, ok := f.cache.Get(identity); ok {
		return rec, nil
	}
	data, err := f.Read(FileName(identity))
	if err != nil {
		return nil, err
	}
	rec, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("storage: decode %s: %w", identity, err)
	}
	f.cache.Add(identity, rec)
	return rec, nil
}

// Decode parses a stored document.
func Decode(data []byte) (*models.Record, error) {
	var rec models.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// List returns metadata for every document in the store, sorted by name.
func (f *FS) List() ([]models.DocumentMeta, error) {
	entries, err := os.ReadDir(f.root)
	if err != nil {
		return nil, fmt.Errorf("storage: list: %w", err)
	}
	var out []models.DocumentMeta
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), docExt) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, fmt.Errorf("storage: list: %w", err)
		}
		data, err := os.ReadFile(filepath.Join(f.root, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("storage: list: %w", err)
		}
		out = append(out, models.DocumentMeta{
			Name:      e.Name(),
			Checksum:  checksum.Sum(data),
			UpdatedAt: info.ModTime(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Purge drops every cached record.
func (f *FS) Purge() {
	f.cache.Purge()
}

// Read returns the raw bytes of a document by file name.
func (f *FS) Read(name string) ([]byte, error) {
	if name != filepath.Base(name) {
		return nil, fmt.Errorf("storage: invalid document name: %s", name)
	}
	data, err := os.ReadFile(filepath.Join(f.root, name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("storage: read %s: %w", name, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("storage: read %s: %w", name, err)
	}
	return data, nil
}

// write atomically writes content: tmp file → fsync → rename.
func (f *FS) write(name string, content []byte) error {
	tmp, err := os.CreateTemp(f.root, ".robotdb-tmp-*")
	if err != nil {
		return fmt.Errorf("storage: create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if err := tmp.Chmod(0o644); err != nil {
		return fmt.Errorf("storage: chmod temp: %w", err)
	}
	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("storage: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("storage: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("storage: close temp: %w", err)
	}
	if err := os.Rename(tmpName, filepath.Join(f.root, name)); err != nil {
		return fmt.Errorf("storage: rename: %w", err)
	}
	success = true
	return nil
}
