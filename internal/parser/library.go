package parser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/starford/robotdb/internal/apperr"
	"github.com/starford/robotdb/internal/models"
)

const libdocTimeout = 60 * time.Second

var robotPathVars = []string{"${/}", "${OUTPUT_DIR}", "${EXECDIR}"}

// ParseLibrary builds the record of a library given either as a file path
// or as a name. Arguments are recorded as given.
func (p *Parser) ParseLibrary(nameOrPath string, args []string) (*models.Record, error) {
	rec := &models.Record{
		Kind:      models.KindLibrary,
		Arguments: append([]string{}, args...),
		Keywords:  map[string]models.Keyword{},
	}

	var (
		keywords []models.Keyword
		err      error
	)
	if isFile(nameOrPath) {
		abs, aerr := normalizePath(nameOrPath)
		if aerr != nil {
			return nil, aerr
		}
		rec.FileName = filepath.Base(abs)
		rec.FilePath = abs
		rec.LibraryModule = strings.TrimSuffix(rec.FileName, filepath.Ext(rec.FileName))
		keywords, err = p.libraryFile(abs, rec.LibraryModule)
	} else if strings.ContainsAny(nameOrPath, `/\`) {
		return nil, fmt.Errorf("parser: %s: %w", nameOrPath, apperr.ErrLibraryNotFound)
	} else {
		rec.LibraryModule = nameOrPath
		keywords, err = p.libraryByName(nameOrPath, args)
	}
	if err != nil {
		return nil, err
	}
	if len(keywords) == 0 {
		return nil, fmt.Errorf("parser: %s: %w", nameOrPath, apperr.ErrNoKeywords)
	}
	for _, kw := range keywords {
		rec.AddKeyword(kw)
	}
	return rec, nil
}

func (p *Parser) libraryFile(path, module string) ([]models.Keyword, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".xml", ".libspec", ".json", ".py":
	default:
		return nil, fmt.Errorf("parser: %s: %w", path, apperr.ErrUnsupportedFormat)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("parser: read %s: %w", path, err)
	}
	var kws []models.Keyword
	switch ext {
	case ".xml", ".libspec":
		_, kws, err = parseXMLSpec(data)
	case ".json":
		_, kws, err = parseJSONSpec(data)
	case ".py":
		kws, err = pythonKeywords(module, data)
	}
	if err != nil {
		return nil, fmt.Errorf("parser: %s: %w", path, err)
	}
	return kws, nil
}

// libraryByName walks the lookup chain for a library imported by name:
// spec dirs, bundled specs, python paths, then the libdoc command.
func (p *Parser) libraryByName(name string, args []string) ([]models.Keyword, error) {
	for _, dir := range p.specDirs {
		for _, ext := range []string{".json", ".libspec", ".xml"} {
			candidate := filepath.Join(dir, name+ext)
			if isFile(candidate) {
				p.logger.Debug("parser: library from spec dir", slog.String("library", name), slog.String("spec", candidate))
				return p.libraryFile(candidate, name)
			}
		}
	}

	if data, ok := bundledSpec(name); ok {
		_, kws, err := parseJSONSpec(data)
		if err != nil {
			return nil, fmt.Errorf("parser: bundled %s: %w", name, err)
		}
		return kws, nil
	}

	if path, ok := p.findPythonModule(name); ok {
		p.logger.Debug("parser: library from python path", slog.String("library", name), slog.String("module", path))
		module := name[strings.LastIndex(name, ".")+1:]
		return p.libraryFile(path, module)
	}

	if len(p.libdocCmd) > 0 {
		return p.runLibdoc(name, args)
	}
	return nil, fmt.Errorf("parser: %s: %w", name, apperr.ErrLibraryNotFound)
}

func (p *Parser) findPythonModule(name string) (string, bool) {
	rel := filepath.FromSlash(strings.ReplaceAll(name, ".", "/"))
	for _, dir := range p.pythonPaths {
		for _, candidate := range []string{
			filepath.Join(dir, rel+".py"),
			filepath.Join(dir, rel, "__init__.py"),
		} {
			if isFile(candidate) {
				return candidate, true
			}
		}
	}
	return "", false
}

// runLibdoc asks the external libdoc command for a JSON spec of the
// library. Library arguments are appended with "::" the way libdoc expects.
func (p *Parser) runLibdoc(name string, args []string) ([]models.Keyword, error) {
	out, err := os.MkdirTemp("", "robotdb-libdoc-*")
	if err != nil {
		return nil, fmt.Errorf("parser: libdoc temp dir: %w", err)
	}
	defer os.RemoveAll(out)

	libArgs, cleanup, err := p.libdocArguments(name, args)
	defer cleanup()
	if err != nil {
		return nil, err
	}

	target := name
	for _, a := range libArgs {
		target += "::" + a
	}
	specPath := filepath.Join(out, "spec.json")

	ctx, cancel := context.WithTimeout(context.Background(), libdocTimeout)
	defer cancel()

	argv := append(append([]string{}, p.libdocCmd[1:]...), target, specPath)
	cmd := exec.CommandContext(ctx, p.libdocCmd[0], argv...)
	if output, err := cmd.CombinedOutput(); err != nil {
		p.logger.Debug("parser: libdoc failed",
			slog.String("library", name),
			slog.String("output", strings.TrimSpace(string(output))),
			slog.String("error", err.Error()))
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("parser: %s: %w", name, apperr.ErrLibraryNotFound)
		}
		return nil, fmt.Errorf("parser: run libdoc for %s: %w", name, err)
	}

	data, err := os.ReadFile(specPath)
	if err != nil {
		return nil, fmt.Errorf("parser: read libdoc output for %s: %w", name, err)
	}
	_, kws, err := parseJSONSpec(data)
	if err != nil {
		return nil, fmt.Errorf("parser: %s: %w", name, err)
	}
	return kws, nil
}

// libdocArguments replaces arguments that point into Robot Framework output
// or execution directories with a fresh temporary directory, since neither
// exists outside a test run.
func (p *Parser) libdocArguments(name string, args []string) ([]string, func(), error) {
	var dirs []string
	cleanup := func() {
		for _, d := range dirs {
			_ = os.RemoveAll(d)
		}
	}

	out := make([]string, 0, len(args))
	for _, a := range args {
		if !containsRobotPath(a) {
			out = append(out, a)
			continue
		}
		dir, err := os.MkdirTemp("", "robotdb-arg-*")
		if err != nil {
			return nil, cleanup, fmt.Errorf("parser: argument temp dir: %w", err)
		}
		dirs = append(dirs, dir)
		p.logger.Info("parser: robot path in library arguments",
			slog.String("library", name),
			slog.String("argument", a),
			slog.String("replacement", dir))
		out = append(out, dir)
	}
	return out, cleanup, nil
}

func containsRobotPath(arg string) bool {
	for _, v := range robotPathVars {
		if strings.Contains(arg, v) {
			return true
		}
	}
	return false
}
