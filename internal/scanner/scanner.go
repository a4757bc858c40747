// Package scanner crawls a workspace of Robot Framework assets and writes
// one record per asset to a store.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/starford/robotdb/internal/apperr"
	"github.com/starford/robotdb/internal/models"
	"github.com/starford/robotdb/internal/queue"
	"github.com/starford/robotdb/internal/storage"
)

// DefaultBuiltin is the library every Robot Framework file imports implicitly.
const DefaultBuiltin = "BuiltIn"

// Parser extracts records from assets. *parser.Parser satisfies it.
type Parser interface {
	ParseSuiteOrResource(path string) (*models.Record, error)
	ParseLibrary(nameOrPath string, args []string) (*models.Record, error)
	ParseVariableFile(path string, args []string) (*models.Record, error)
}

// RecordHook is called after a record has been written to the store.
type RecordHook func(rec *models.Record, fileName string)

// Failure describes an asset that could not be parsed.
type Failure struct {
	Identity string      `json:"identity"`
	Kind     models.Kind `json:"kind"`
	Err      string      `json:"error"`
}

// Summary reports the outcome of one scan.
type Summary struct {
	Workspace  string        `json:"workspace"`
	Store      string        `json:"store"`
	Discovered int           `json:"discovered"`
	Stored     int           `json:"stored"`
	Failed     int           `json:"failed"`
	Failures   []Failure     `json:"failures,omitempty"`
	Duration   time.Duration `json:"duration"`
}

// Scanner drives a crawl: it seeds a queue, drains it through the parser
// and persists every record. One Scanner runs at most one scan at a time.
type Scanner struct {
	parser Parser
	logger *slog.Logger

	builtin   string
	exclude   []string
	preload   []models.LibraryImport
	cacheSize int
	hooks     []RecordHook

	mu sync.Mutex // held for the duration of a scan

	qmu   sync.Mutex
	queue *queue.Queue
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithExclude skips workspace files and directories whose base name matches
// one of the glob patterns.
func WithExclude(patterns ...string) Option {
	return func(s *Scanner) { s.exclude = append(s.exclude, patterns...) }
}

// WithPreload queues libraries before the workspace walk, as if every
// suite imported them.
func WithPreload(libs ...models.LibraryImport) Option {
	return func(s *Scanner) { s.preload = append(s.preload, libs...) }
}

// WithBuiltin overrides the name of the implicitly imported library. An
// empty name disables it.
func WithBuiltin(name string) Option {
	return func(s *Scanner) { s.builtin = name }
}

// WithCacheSize sets the record cache size of the store opened per scan.
func WithCacheSize(n int) Option {
	return func(s *Scanner) { s.cacheSize = n }
}

// WithRecordHook registers fn to be called after each stored record.
func WithRecordHook(fn RecordHook) Option {
	return func(s *Scanner) { s.hooks = append(s.hooks, fn) }
}

// New creates a Scanner.
func New(p Parser, logger *slog.Logger, opts ...Option) *Scanner {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &Scanner{
		parser:  p,
		logger:  logger,
		builtin: DefaultBuiltin,
		queue:   queue.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Queue returns the queue of the current or last scan.
func (s *Scanner) Queue() *queue.Queue {
	s.qmu.Lock()
	defer s.qmu.Unlock()
	return s.queue
}

// Filter returns the asset filter for ext with the configured excludes.
func (s *Scanner) Filter(ext string) (*Filter, error) {
	return NewFilter(ext, s.exclude)
}

// AddBuiltin queues the implicitly imported library.
func (s *Scanner) AddBuiltin() {
	if s.builtin == "" {
		return
	}
	s.Queue().Add(s.builtin, models.KindLibrary)
}

// AddLibrariesQueue queues libraries by path when known, by name otherwise,
// carrying their import arguments.
func (s *Scanner) AddLibrariesQueue(libs []models.LibraryImport) {
	q := s.Queue()
	for _, lib := range libs {
		q.AddWithArgs(lib.Identity(), models.KindLibrary, lib.Arguments)
	}
}

// ParseAll dispatches an item to the parser by kind. Items of unknown kind
// are handed to the suite/resource parser, which decides the kind from the
// file structure.
func (s *Scanner) ParseAll(item queue.Item) (*models.Record, error) {
	var (
		rec *models.Record
		err error
	)
	switch item.State.Kind {
	case models.KindLibrary:
		rec, err = s.parser.ParseLibrary(item.Identity, item.State.Args)
	case models.KindVariable:
		rec, err = s.parser.ParseVariableFile(item.Identity, item.State.Args)
	default:
		rec, err = s.parser.ParseSuiteOrResource(item.Identity)
	}
	if err != nil {
		return nil, err
	}
	if rec.Kind == models.KindUnknown {
		rec.Kind = item.State.Kind
	}
	return rec, nil
}

// Scan crawls workspace for files with extension ext and writes one record
// per discovered asset to dbDir.
func (s *Scanner) Scan(workspace, ext, dbDir string) (*Summary, error) {
	return s.ScanContext(context.Background(), workspace, ext, dbDir)
}

// StartFunc is called once a scan has been accepted, with the resolved
// workspace and store directories.
type StartFunc func(workspace, store string)

// ScanContext is Scan with cancellation. A cancelled scan returns the
// summary so far together with ctx.Err().
func (s *Scanner) ScanContext(ctx context.Context, workspace, ext, dbDir string) (*Summary, error) {
	return s.ScanNotify(ctx, workspace, ext, dbDir, nil)
}

// ScanNotify is ScanContext with a start callback. started is not called
// when the scanner is busy or the environment is rejected.
func (s *Scanner) ScanNotify(ctx context.Context, workspace, ext, dbDir string, started StartFunc) (*Summary, error) {
	if !s.mu.TryLock() {
		return nil, apperr.ErrBusy
	}
	defer s.mu.Unlock()

	start := time.Now()
	root, dest, filter, err := s.prepare(workspace, ext, dbDir)
	if err != nil {
		return nil, err
	}
	store, err := storage.NewFS(dest, s.cacheSize)
	if err != nil {
		return nil, fmt.Errorf("scanner: open store: %w: %w", apperr.ErrEnvironment, err)
	}

	s.qmu.Lock()
	s.queue = queue.New()
	s.qmu.Unlock()

	sum := &Summary{Workspace: root, Store: dest}
	s.logger.Info("scanner: started",
		slog.String("workspace", root),
		slog.String("ext", filter.Ext()),
		slog.String("store", dest))
	if started != nil {
		started(root, dest)
	}

	s.AddBuiltin()
	s.AddLibrariesQueue(s.preload)
	if err := s.seed(root, filter); err != nil {
		return nil, err
	}

	err = s.drain(ctx, store, sum)
	sum.Duration = time.Since(start)
	if err != nil {
		return sum, err
	}

	s.logger.Info("scanner: completed",
		slog.Int("discovered", sum.Discovered),
		slog.Int("stored", sum.Stored),
		slog.Int("failed", sum.Failed),
		slog.Duration("duration", sum.Duration))
	return sum, nil
}

// prepare validates the environment before anything is written. The store
// directory is created only once the workspace has been accepted.
func (s *Scanner) prepare(workspace, ext, dbDir string) (string, string, *Filter, error) {
	root, err := filepath.Abs(workspace)
	if err != nil {
		return "", "", nil, fmt.Errorf("scanner: workspace %s: %w: %w", workspace, apperr.ErrEnvironment, err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return "", "", nil, fmt.Errorf("scanner: workspace %s: %w: %w", workspace, apperr.ErrEnvironment, err)
	}
	if !info.IsDir() {
		return "", "", nil, fmt.Errorf("scanner: workspace %s is not a directory: %w", workspace, apperr.ErrEnvironment)
	}

	filter, err := s.Filter(ext)
	if err != nil {
		return "", "", nil, fmt.Errorf("%w: %w", apperr.ErrEnvironment, err)
	}

	dest, err := filepath.Abs(dbDir)
	if err != nil {
		return "", "", nil, fmt.Errorf("scanner: store %s: %w: %w", dbDir, apperr.ErrEnvironment, err)
	}
	info, err = os.Stat(dest)
	switch {
	case err == nil && !info.IsDir():
		return "", "", nil, fmt.Errorf("scanner: store %s is not a directory: %w", dbDir, apperr.ErrEnvironment)
	case errors.Is(err, fs.ErrNotExist):
		if err := os.MkdirAll(dest, 0o755); err != nil {
			return "", "", nil, fmt.Errorf("scanner: create store %s: %w: %w", dbDir, apperr.ErrEnvironment, err)
		}
	case err != nil:
		return "", "", nil, fmt.Errorf("scanner: store %s: %w: %w", dbDir, apperr.ErrEnvironment, err)
	}
	filter.Ignore(dest)
	return root, dest, filter, nil
}

// seed registers every matching workspace file with unknown kind, in
// lexical walk order.
func (s *Scanner) seed(root string, filter *Filter) error {
	q := s.Queue()
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			s.logger.Warn("scanner: walk failed", slog.String("path", path), slog.String("error", err.Error()))
			if d != nil && d.IsDir() && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		if path != root && filter.Excluded(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !filter.Match(path) {
			return nil
		}
		q.Add(filepath.Clean(path), models.KindUnknown)
		return nil
	})
}

func (s *Scanner) drain(ctx context.Context, store *storage.FS, sum *Summary) error {
	q := s.Queue()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		item, ok := q.PopNext()
		if !ok {
			return nil
		}
		sum.Discovered++

		rec, err := s.ParseAll(item)
		if err != nil {
			s.logger.Warn("scanner: parse failed",
				slog.String("identity", item.Identity),
				slog.String("kind", item.State.Kind.String()),
				slog.String("error", err.Error()))
			sum.Failed++
			sum.Failures = append(sum.Failures, Failure{
				Identity: item.Identity,
				Kind:     item.State.Kind,
				Err:      err.Error(),
			})
			q.Fail(item.Identity)
			continue
		}

		name, err := store.Put(rec)
		if err != nil {
			return fmt.Errorf("scanner: store %s: %w", item.Identity, err)
		}
		sum.Stored++
		added := q.Merge(rec)
		q.Complete(item.Identity)

		s.logger.Debug("scanner: stored",
			slog.String("identity", item.Identity),
			slog.String("kind", rec.Kind.String()),
			slog.String("file", name),
			slog.Int("queued", added))
		for _, h := range s.hooks {
			h(rec, name)
		}
	}
}
