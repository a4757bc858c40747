package internal

import (
	"fmt"
	"log/slog"
	"regexp"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/gobwas/glob"

	"github.com/starford/robotdb/internal/models"
	"github.com/starford/robotdb/internal/scanner"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

var extensionRe = regexp.MustCompile(`^\.?[A-Za-z0-9_]+$`)

// Config represents the application configuration.
type Config struct {
	App       ApplicationConfig `yaml:"app"`
	Workspace WorkspaceConfig   `yaml:"workspace"`
	Store     StoreConfig       `yaml:"store"`
	Index     IndexConfig       `yaml:"index"`
	Libraries LibrariesConfig   `yaml:"libraries"`
	Watch     WatchConfig       `yaml:"watch"`
	Auth      AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	sections := []validation.Validatable{
		&c.App, &c.Workspace, &c.Store, &c.Index, &c.Libraries, &c.Watch, &c.Auth,
	}
	names := []string{"app", "workspace", "store", "index", "libraries", "watch", "auth"}
	for i, s := range sections {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("%s: %w", names[i], err)
		}
	}
	return nil
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// WorkspaceConfig describes the tree to crawl.
type WorkspaceConfig struct {
	Path      string   `yaml:"path"`
	Extension string   `yaml:"extension"`
	Exclude   []string `yaml:"exclude"`
}

// Validate validates the workspace configuration.
func (c *WorkspaceConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
		validation.Field(&c.Extension, validation.Required, validation.Match(extensionRe)),
		validation.Field(&c.Exclude, validation.Each(validation.Required, validation.By(validGlob))),
	)
}

func validGlob(value any) error {
	pattern, _ := value.(string)
	if _, err := glob.Compile(pattern); err != nil {
		return fmt.Errorf("invalid pattern %q", pattern)
	}
	return nil
}

// StoreConfig holds the record store location.
type StoreConfig struct {
	Path      string `yaml:"path"`
	CacheSize int    `yaml:"cache_size"`
}

// Validate validates the store configuration.
func (c *StoreConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
		validation.Field(&c.CacheSize, validation.Min(0)),
	)
}

// IndexConfig holds SQLite keyword index configuration.
type IndexConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the index configuration.
func (c *IndexConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// LibrariesConfig controls how libraries are located and which are always
// scanned.
type LibrariesConfig struct {
	Builtin       string           `yaml:"builtin"`
	SpecDirs      []string         `yaml:"spec_dirs"`
	PythonPaths   []string         `yaml:"python_paths"`
	SearchPaths   []string         `yaml:"search_paths"`
	LibdocCommand []string         `yaml:"libdoc_command"`
	Preload       []PreloadLibrary `yaml:"preload"`
}

// Validate validates the libraries configuration.
func (c *LibrariesConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.SpecDirs, validation.Each(validation.Required)),
		validation.Field(&c.PythonPaths, validation.Each(validation.Required)),
		validation.Field(&c.SearchPaths, validation.Each(validation.Required)),
		validation.Field(&c.Preload),
	)
}

// Imports returns the preloaded libraries as imports.
func (c *LibrariesConfig) Imports() []models.LibraryImport {
	out := make([]models.LibraryImport, 0, len(c.Preload))
	for _, p := range c.Preload {
		args := p.Args
		if args == nil {
			args = []string{}
		}
		out = append(out, models.LibraryImport{Name: p.Name, Arguments: args})
	}
	return out
}

// PreloadLibrary is a library scanned on every run.
type PreloadLibrary struct {
	Name string   `yaml:"name"`
	Args []string `yaml:"args"`
}

// Validate validates a preloaded library.
func (p PreloadLibrary) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Name, validation.Required),
	)
}

// WatchConfig controls rescans on workspace changes.
type WatchConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Debounce time.Duration `yaml:"debounce"`
}

// Validate validates the watch configuration.
func (c *WatchConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Debounce, validation.Min(time.Duration(0))),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Workspace: WorkspaceConfig{
			Path:      ".",
			Extension: "robot",
			Exclude:   []string{".git", ".venv", "node_modules", "results"},
		},
		Store: StoreConfig{
			Path:      "./robotdb",
			CacheSize: 256,
		},
		Index: IndexConfig{
			Path: "./robotdb.sqlite",
		},
		Libraries: LibrariesConfig{
			Builtin: scanner.DefaultBuiltin,
		},
		Watch: WatchConfig{
			Enabled:  true,
			Debounce: scanner.DefaultDebounce,
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
