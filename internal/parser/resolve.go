package parser

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Resolution is the outcome of resolving an import path. When Resolved is
// false, Path is the best-effort location next to the importing file and
// Diagnostic explains what could not be found.
type Resolution struct {
	Path       string
	Resolved   bool
	Diagnostic string
}

// Resolve locates an import relative to the importing file, then relative
// to the configured search paths. ${CURDIR} and ${/} are expanded.
func (p *Parser) Resolve(name, importer string) Resolution {
	dir := filepath.Dir(importer)
	expanded := expandPathVariables(name, dir)

	var candidates []string
	if filepath.IsAbs(expanded) {
		candidates = []string{expanded}
	} else {
		candidates = append(candidates, filepath.Join(dir, expanded))
		for _, sp := range p.searchPaths {
			candidates = append(candidates, filepath.Join(sp, expanded))
		}
	}

	for _, c := range candidates {
		if isFile(c) {
			abs, err := normalizePath(c)
			if err == nil {
				return Resolution{Path: abs, Resolved: true}
			}
		}
	}

	best := filepath.Clean(candidates[0])
	if abs, err := normalizePath(best); err == nil {
		best = abs
	}
	return Resolution{
		Path:       best,
		Diagnostic: fmt.Sprintf("import failure on file %s, could not locate %s", importer, name),
	}
}

// resolveImport resolves and reports unresolved imports. The reference is
// kept with its best-effort path either way.
func (p *Parser) resolveImport(name, importer string) Resolution {
	res := p.Resolve(name, importer)
	if !res.Resolved {
		p.logger.Warn("parser: unresolved import",
			slog.String("file", importer),
			slog.String("import", name),
			slog.String("path", res.Path),
			slog.String("diagnostic", res.Diagnostic))
	}
	return res
}

func expandPathVariables(name, dir string) string {
	r := strings.NewReplacer(
		"${CURDIR}", dir,
		"${/}", string(filepath.Separator),
	)
	return filepath.FromSlash(r.Replace(name))
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
