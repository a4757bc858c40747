// Package parser turns Robot Framework test data, libraries and variable
// files into records.
package parser

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/starford/robotdb/internal/apperr"
	"github.com/starford/robotdb/internal/models"
)

// Parser extracts records from assets. It holds no crawl state; all
// configuration is fixed at construction.
type Parser struct {
	base   *slog.Logger
	logger *slog.Logger

	specDirs    []string
	pythonPaths []string
	searchPaths []string
	libdocCmd   []string
}

// Option configures a Parser.
type Option func(*Parser)

// WithSpecDirs adds directories searched for libdoc spec files
// (<name>.json, <name>.libspec, <name>.xml) of libraries imported by name.
func WithSpecDirs(dirs ...string) Option {
	return func(p *Parser) { p.specDirs = append(p.specDirs, dirs...) }
}

// WithPythonPaths adds directories searched for Python library modules.
func WithPythonPaths(dirs ...string) Option {
	return func(p *Parser) { p.pythonPaths = append(p.pythonPaths, dirs...) }
}

// WithSearchPaths adds directories searched for resource and variable file
// imports that are not found next to the importing file.
func WithSearchPaths(dirs ...string) Option {
	return func(p *Parser) { p.searchPaths = append(p.searchPaths, dirs...) }
}

// WithLibdocCommand sets the command used to generate a JSON spec for
// libraries that cannot be resolved otherwise, e.g.
// ["python", "-m", "robot.libdoc"]. The library and output path are appended.
func WithLibdocCommand(cmd ...string) Option {
	return func(p *Parser) { p.libdocCmd = cmd }
}

// New creates a Parser that reports diagnostics to logger.
func New(logger *slog.Logger, opts ...Option) *Parser {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	p := &Parser{base: logger, logger: logger}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// EnableConsole routes parser diagnostics to w in human readable form
// until DisableConsole is called.
func (p *Parser) EnableConsole(w io.Writer) {
	p.logger = slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// DisableConsole restores the logger given to New.
func (p *Parser) DisableConsole() {
	p.logger = p.base
}

// ParseSuiteOrResource parses a plain-text suite or resource file. The kind
// of the returned record is "suite" when the file has a test or task table
// or is a suite initialization file, "resource" otherwise.
func (p *Parser) ParseSuiteOrResource(path string) (*models.Record, error) {
	abs, err := normalizePath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("parser: %s: %w", path, apperr.ErrFileNotFound)
		}
		return nil, fmt.Errorf("parser: read %s: %w", path, err)
	}

	f := parseRobot(data)
	rec := &models.Record{
		FileName:  filepath.Base(abs),
		FilePath:  abs,
		Kind:      models.KindResource,
		Keywords:  map[string]models.Keyword{},
		Variables: variableNames(f.variables),
	}
	if f.hasTests || isInitFile(abs) {
		rec.Kind = models.KindSuite
	}
	for _, kw := range f.keywords {
		rec.AddKeyword(keywordFromDef(kw))
	}
	p.collectImports(rec, f.settings)
	return rec, nil
}

func keywordFromDef(def *keywordDef) models.Keyword {
	kw := models.Keyword{Name: def.name}
	var doc []string
	for _, r := range def.body {
		head := r[0]
		if len(head) == 0 || !isKeywordSetting(head[0]) {
			continue
		}
		switch normalizeSetting(head[0]) {
		case "arguments":
			kw.Arguments = append(kw.Arguments, r.cells()[1:]...)
		case "documentation":
			for i, seg := range r {
				if i == 0 {
					seg = seg[1:]
					if len(seg) == 0 {
						continue
					}
				}
				doc = append(doc, strings.Join(seg, " "))
			}
		case "tags":
			kw.Tags = append(kw.Tags, r.cells()[1:]...)
		}
	}
	kw.Documentation = strings.Join(doc, "\n")
	return kw
}

func isKeywordSetting(cell string) bool {
	return strings.HasPrefix(cell, "[") && strings.HasSuffix(cell, "]")
}

func variableNames(rows []row) []string {
	names := []string{}
	for _, r := range rows {
		cells := r.cells()
		if len(cells) == 0 {
			continue
		}
		name := strings.TrimSpace(strings.TrimSuffix(cells[0], "="))
		if len(name) < 4 || !strings.ContainsRune("$@&%", rune(name[0])) || name[1] != '{' {
			continue
		}
		names = append(names, name)
	}
	return names
}

func (p *Parser) collectImports(rec *models.Record, settings []row) {
	for _, r := range settings {
		cells := r.cells()
		if len(cells) < 2 {
			continue
		}
		switch normalizeSetting(cells[0]) {
		case "library":
			rec.Libraries = append(rec.Libraries, p.libraryImport(rec.FilePath, cells[1], cells[2:]))
		case "resource":
			res := p.resolveImport(cells[1], rec.FilePath)
			rec.Resources = append(rec.Resources, res.Path)
		case "variables":
			res := p.resolveImport(cells[1], rec.FilePath)
			args := append([]string{}, cells[2:]...)
			rec.VariableFiles = append(rec.VariableFiles, models.VariableFileImport{
				res.Path: {Arguments: args},
			})
		}
	}
}

// libraryImport splits "Library  name  args...  WITH NAME|AS  alias".
// Libraries given as a file are resolved relative to the importing file.
func (p *Parser) libraryImport(importer, name string, rest []string) models.LibraryImport {
	args := append([]string{}, rest...)
	var alias *string
	for i := len(args) - 2; i >= 0; i-- {
		if args[i] == "AS" || strings.EqualFold(strings.Join(strings.Fields(args[i]), " "), "WITH NAME") {
			a := args[i+1]
			alias = &a
			args = args[:i]
			break
		}
	}

	lib := models.LibraryImport{Name: name, Alias: alias, Arguments: args}
	if isLibraryFile(name) {
		res := p.resolveImport(name, importer)
		lib.Name = filepath.Base(res.Path)
		lib.Path = &res.Path
	}
	return lib
}

func isLibraryFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".py", ".xml", ".json", ".libspec":
		return true
	}
	return strings.ContainsAny(name, `/\`)
}

func isInitFile(path string) bool {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base)) == "__init__"
}

func normalizePath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("parser: resolve %s: %w", path, err)
	}
	return filepath.Clean(abs), nil
}
