package scanner

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
)

// Filter decides which workspace files are assets. Exclude patterns are
// matched against base names, so "*_tmp" skips a directory or file with
// that suffix anywhere in the tree.
type Filter struct {
	ext     string
	exclude []glob.Glob
	ignored []string
}

// NewFilter builds a filter for files with extension ext (with or without
// the leading dot) that do not match any exclude pattern.
func NewFilter(ext string, exclude []string) (*Filter, error) {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext == "" {
		return nil, fmt.Errorf("scanner: empty extension")
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	f := &Filter{ext: ext}
	for _, pattern := range exclude {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("scanner: exclude pattern %q: %w", pattern, err)
		}
		f.exclude = append(f.exclude, g)
	}
	return f, nil
}

// Ext returns the normalized extension, including the dot.
func (f *Filter) Ext() string {
	return f.ext
}

// Ignore excludes the trees rooted at dirs, such as a store directory kept
// inside the workspace.
func (f *Filter) Ignore(dirs ...string) {
	for _, d := range dirs {
		if abs, err := filepath.Abs(d); err == nil {
			f.ignored = append(f.ignored, abs)
		}
	}
}

// Excluded reports whether path lies in an ignored tree or its base name
// matches an exclude pattern.
func (f *Filter) Excluded(path string) bool {
	for _, d := range f.ignored {
		if path == d || strings.HasPrefix(path, d+string(filepath.Separator)) {
			return true
		}
	}
	base := filepath.Base(path)
	for _, g := range f.exclude {
		if g.Match(base) {
			return true
		}
	}
	return false
}

// Match reports whether path is an asset file.
func (f *Filter) Match(path string) bool {
	return strings.EqualFold(filepath.Ext(path), f.ext) && !f.Excluded(path)
}

// relatedExts are extensions of files reached through imports rather than
// the workspace walk.
var relatedExts = map[string]bool{
	".resource": true,
	".robot":    true,
	".py":       true,
	".yaml":     true,
	".yml":      true,
	".json":     true,
	".xml":      true,
	".libspec":  true,
}

// Related reports whether a change to path can affect scan results: an
// asset file or a file an asset may import.
func (f *Filter) Related(path string) bool {
	if f.Excluded(path) {
		return false
	}
	ext := strings.ToLower(filepath.Ext(path))
	return ext == f.ext || relatedExts[ext]
}
