package parser

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/starford/robotdb/internal/apperr"
	"github.com/starford/robotdb/internal/models"
)

// ParseVariableFile lists the variables a variable file defines. Arguments
// are accepted for symmetry with the import but only influence variable
// files that compute their content in get_variables, which is not run.
func (p *Parser) ParseVariableFile(path string, args []string) (*models.Record, error) {
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

	var names []string
	switch strings.ToLower(filepath.Ext(abs)) {
	case ".py":
		var dynamic bool
		names, dynamic, err = pythonVariables(data)
		if err != nil {
			return nil, fmt.Errorf("parser: %s: %w", path, err)
		}
		if dynamic {
			p.logger.Warn("parser: variable file uses get_variables, only static names recorded",
				slog.String("file", abs),
				slog.Int("args", len(args)))
		}
	case ".yaml", ".yml":
		var doc map[string]any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parser: decode %s: %w", path, err)
		}
		names = mappingNames(doc)
	case ".json":
		var doc map[string]any
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parser: decode %s: %w", path, err)
		}
		names = mappingNames(doc)
	default:
		return nil, fmt.Errorf("parser: %s: %w", path, apperr.ErrUnsupportedFormat)
	}

	return &models.Record{
		FileName:  filepath.Base(abs),
		FilePath:  abs,
		Kind:      models.KindVariable,
		Keywords:  map[string]models.Keyword{},
		Variables: names,
	}, nil
}

func mappingNames(doc map[string]any) []string {
	names := make([]string, 0, len(doc))
	for k := range doc {
		names = append(names, "${"+k+"}")
	}
	sort.Strings(names)
	return names
}
