// Package models defines the domain types for robotdb.
package models

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"time"
)

// Kind is the kind of a discoverable test asset. The zero value means the
// kind is not known yet (files found by the workspace walk).
type Kind string

const (
	KindUnknown  Kind = ""
	KindSuite    Kind = "suite"
	KindResource Kind = "resource"
	KindLibrary  Kind = "library"
	KindVariable Kind = "variable"
)

// String returns "unknown" for the zero kind.
func (k Kind) String() string {
	if k == KindUnknown {
		return "unknown"
	}
	return string(k)
}

// Status is the discovery status of an asset during one scan.
type Status string

const (
	StatusUnscanned Status = "unscanned"
	StatusQueued    Status = "queued"
	StatusScanned   Status = "scanned"
	StatusFailed    Status = "failed"
)

// Keyword is a single keyword definition.
type Keyword struct {
	Name          string   `json:"keyword_name"`
	Arguments     []string `json:"keyword_arguments"`
	Documentation string   `json:"documentation"`
	Tags          []string `json:"tags"`
}

// LibraryImport is a library reference declared in a suite or resource.
type LibraryImport struct {
	Name      string   `json:"library_name"`
	Alias     *string  `json:"library_alias"`
	Arguments []string `json:"library_arguments"`
	Path      *string  `json:"library_path"`
}

// Identity returns the queue identity of the imported library: its
// resolved path when it was imported by path, its name otherwise.
func (l LibraryImport) Identity() string {
	if l.Path != nil && *l.Path != "" {
		return *l.Path
	}
	return l.Name
}

// VariableFileArgs holds the arguments given to a variable file import.
type VariableFileArgs struct {
	Arguments []string `json:"variable_file_arguments"`
}

// VariableFileImport maps a resolved variable file path to its arguments.
// It always holds exactly one entry.
type VariableFileImport map[string]VariableFileArgs

// Record is the parsed representation of one asset.
type Record struct {
	FileName      string               `json:"file_name,omitempty"`
	FilePath      string               `json:"file_path,omitempty"`
	Kind          Kind                 `json:"kind"`
	LibraryModule string               `json:"library_module,omitempty"`
	Arguments     []string             `json:"arguments,omitempty"`
	Keywords      map[string]Keyword   `json:"keywords"`
	Variables     []string             `json:"variables"`
	Resources     []string             `json:"resources,omitempty"`
	Libraries     []LibraryImport      `json:"libraries,omitempty"`
	VariableFiles []VariableFileImport `json:"variable_files,omitempty"`
}

// MarshalJSON always writes resources, libraries and variable_files for
// suites and resources, as empty lists when the file imports nothing.
// Library and variable file records leave them out.
func (r Record) MarshalJSON() ([]byte, error) {
	type plain Record
	if r.Kind != KindSuite && r.Kind != KindResource {
		return json.Marshal(plain(r))
	}
	return json.Marshal(struct {
		plain
		Resources     []string             `json:"resources"`
		Libraries     []LibraryImport      `json:"libraries"`
		VariableFiles []VariableFileImport `json:"variable_files"`
	}{
		plain:         plain(r),
		Resources:     orEmpty(r.Resources),
		Libraries:     orEmpty(r.Libraries),
		VariableFiles: orEmpty(r.VariableFiles),
	})
}

func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// Identity returns the identity the record is stored under: the file path
// for file-backed assets, the module name for libraries imported by name.
func (r *Record) Identity() string {
	if r.FilePath != "" {
		return r.FilePath
	}
	return r.LibraryModule
}

// AddKeyword stores kw under its normalized key. A keyword whose key
// collides with an existing one replaces it.
func (r *Record) AddKeyword(kw Keyword) {
	if r.Keywords == nil {
		r.Keywords = make(map[string]Keyword)
	}
	if kw.Arguments == nil {
		kw.Arguments = []string{}
	}
	if kw.Tags == nil {
		kw.Tags = []string{}
	}
	r.Keywords[KeywordKey(kw.Name)] = kw
}

// KeywordKey lower-cases name and replaces spaces with underscores.
func KeywordKey(name string) string {
	return strings.ReplaceAll(strings.ToLower(name), " ", "_")
}

// BaseName returns the last path element of an identity. Bare library
// names are returned unchanged.
func BaseName(identity string) string {
	return filepath.Base(identity)
}

// DocumentMeta describes one persisted document in the store.
type DocumentMeta struct {
	Name      string    `json:"name"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}
