// Package apperr holds the sentinel errors shared across packages.
package apperr

import "errors"

var (
	ErrNotFound = errors.New("not found")
	ErrBusy     = errors.New("scan already running")

	// ErrEnvironment marks invalid workspace or store paths. It is raised
	// before any traversal starts.
	ErrEnvironment = errors.New("environment error")

	ErrFileNotFound      = errors.New("file does not exist")
	ErrLibraryNotFound   = errors.New("library does not exist")
	ErrNoKeywords        = errors.New("library did not contain keywords")
	ErrUnsupportedFormat = errors.New("unsupported library format")
	ErrNotLibrarySpec    = errors.New("xml file is not a library spec")
)
