package internal

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/starford/robotdb/internal/apperr"
	"github.com/starford/robotdb/internal/models"
)

const entrySuite = `*** Settings ***
Resource          shared.resource
Variables         env.yaml

*** Test Cases ***
Smoke
    Prepare Environment
`

const entryResource = `*** Keywords ***
Prepare Environment
    [Documentation]    Sets up the environment.
    No Operation
`

func testConfig(t *testing.T) *Config {
	t.Helper()
	root := t.TempDir()
	ws := filepath.Join(root, "tests")
	if err := os.MkdirAll(filepath.Join(ws, "results"), 0o755); err != nil {
		t.Fatal(err)
	}
	files := map[string]string{
		"smoke.robot":        entrySuite,
		"shared.resource":    entryResource,
		"env.yaml":           "host: localhost\n",
		"results/skip.robot": entrySuite,
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(ws, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	cfg := NewDefaultConfig()
	cfg.Workspace.Path = ws
	cfg.Store.Path = filepath.Join(root, "db")
	cfg.Index.Path = filepath.Join(root, "index", "robotdb.sqlite")
	cfg.Watch.Enabled = false
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	return cfg
}

func quiet() Option {
	return WithLogger(slog.New(slog.DiscardHandler))
}

func TestScan(t *testing.T) {
	cfg := testConfig(t)

	res, err := Scan(context.Background(), WithConfig(cfg), quiet())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	// BuiltIn, smoke.robot, shared.resource, env.yaml; results/ is excluded.
	if res.Stored != 4 || res.Failed != 0 {
		t.Errorf("stored/failed = %d/%d, want 4/0: %+v", res.Stored, res.Failed, res.Failures)
	}
	if res.Indexed != 4 {
		t.Errorf("indexed = %d, want 4", res.Indexed)
	}

	docs, err := filepath.Glob(filepath.Join(cfg.Store.Path, "*.json"))
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 4 {
		t.Errorf("documents = %d, want 4", len(docs))
	}
}

func TestScan_MissingWorkspace(t *testing.T) {
	cfg := testConfig(t)
	cfg.Workspace.Path = filepath.Join(t.TempDir(), "absent")

	_, err := Scan(context.Background(), WithConfig(cfg), quiet())
	if !errors.Is(err, apperr.ErrEnvironment) {
		t.Fatalf("err = %v, want ErrEnvironment", err)
	}
	if _, statErr := os.Stat(cfg.Store.Path); !os.IsNotExist(statErr) {
		t.Error("store directory created for a missing workspace")
	}
}

func TestScan_StoreIsFile(t *testing.T) {
	cfg := testConfig(t)
	if err := os.WriteFile(cfg.Store.Path, []byte("keep"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := Scan(context.Background(), WithConfig(cfg), quiet())
	if !errors.Is(err, apperr.ErrEnvironment) {
		t.Fatalf("err = %v, want ErrEnvironment", err)
	}
	if data, _ := os.ReadFile(cfg.Store.Path); string(data) != "keep" {
		t.Errorf("store file modified: %q", data)
	}
}

func TestScan_Console(t *testing.T) {
	cfg := testConfig(t)
	suite := filepath.Join(cfg.Workspace.Path, "smoke.robot")
	broken := strings.Replace(entrySuite, "Variables", "Resource          gone.resource\nVariables", 1)
	if err := os.WriteFile(suite, []byte(broken), 0o644); err != nil {
		t.Fatal(err)
	}

	var console bytes.Buffer
	if _, err := Scan(context.Background(), WithConfig(cfg), quiet(), WithConsole(&console)); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(console.String(), "gone.resource") {
		t.Errorf("console output missing unresolved import: %q", console.String())
	}
}

func TestSearchAndShow(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()
	if _, err := Scan(ctx, WithConfig(cfg), quiet()); err != nil {
		t.Fatal(err)
	}

	hits, err := Search(ctx, "environment", 10, WithConfig(cfg), quiet())
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	found := false
	for _, h := range hits {
		if h.Name == "Prepare Environment" {
			found = true
		}
	}
	if !found {
		t.Fatalf("hits = %+v", hits)
	}

	detail, err := Show(ctx, filepath.Join(cfg.Workspace.Path, "env.yaml"), WithConfig(cfg), quiet())
	if err != nil {
		t.Fatalf("Show: %v", err)
	}
	if detail.Record.Kind != models.KindVariable {
		t.Errorf("kind = %q, want variable", detail.Record.Kind)
	}
	if len(detail.Record.Variables) != 1 || detail.Record.Variables[0] != "${host}" {
		t.Errorf("variables = %v", detail.Record.Variables)
	}

	builtin, err := Show(ctx, "BuiltIn", WithConfig(cfg), quiet())
	if err != nil {
		t.Fatalf("Show BuiltIn: %v", err)
	}
	if builtin.Record.Kind != models.KindLibrary {
		t.Errorf("kind = %q, want library", builtin.Record.Kind)
	}
}

func TestSearch_WithoutStore(t *testing.T) {
	cfg := testConfig(t)

	_, err := Search(context.Background(), "x", 10, WithConfig(cfg), quiet())
	if !errors.Is(err, apperr.ErrEnvironment) {
		t.Fatalf("err = %v, want ErrEnvironment", err)
	}
}

func TestRun_RequiresConfig(t *testing.T) {
	if err := Run(context.Background()); err == nil {
		t.Fatal("Run without config should fail")
	}
}

func TestIdentityArg(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "a.robot")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	t.Chdir(dir)

	if got := identityArg("a.robot"); got != file {
		t.Errorf("identityArg(a.robot) = %q, want %q", got, file)
	}
	if got := identityArg("company.helpers"); got != "company.helpers" {
		t.Errorf("library name rewritten to %q", got)
	}
}
