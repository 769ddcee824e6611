// Package config loads the packer's JSON input configuration and
// merges it with command-line flag overrides.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	pkgerrors "github.com/tourze/php-packer/internal/errors"
)

// Optimization holds the optimization.* config keys.
type Optimization struct {
	RemoveComments     bool `json:"remove_comments"`
	MinimizeWhitespace bool `json:"minimize_whitespace"`
	Enabled            bool `json:"enabled"`
}

// Autoload holds additional autoload rules supplied directly in the
// config, layered on top of whatever composer.json declares.
type Autoload struct {
	PSR4 map[string]json.RawMessage `json:"psr-4"`
}

// Config is the decoded form of the JSON input document described by
// the external-interfaces contract.
type Config struct {
	Entry          string       `json:"entry"`
	Output         string       `json:"output"`
	Database       string       `json:"database"`
	Include        []string     `json:"include"`
	IncludePaths   []string     `json:"include_paths"`
	Exclude        []string     `json:"exclude"`
	ExcludePatterns []string    `json:"exclude_patterns"`
	Autoload       Autoload     `json:"autoload"`
	Optimization   Optimization `json:"optimization"`
	ErrorHandler   bool         `json:"error_handler"`

	// Root is the directory the config was loaded relative to; it is
	// not a JSON field, it is set by Load/LoadWithRoot.
	Root string `json:"-"`
}

// DefaultExcludePatterns mirrors the project-agnostic defaults the
// loader seeds when the config sets neither exclude nor exclude_patterns, narrowed to
// what a PHP bundling run needs to ignore by default.
var DefaultExcludePatterns = []string{
	"**/tests/**",
	"**/*Test.php",
	"**/vendor/**",
}

const (
	defaultOutput   = "packed.php"
	defaultDatabase = "build/packer.db"
)

// Load reads and validates the JSON config file at path, resolved
// relative to the current working directory.
func Load(path string) (*Config, error) {
	root, err := os.Getwd()
	if err != nil {
		return nil, pkgerrors.NewConfigError("root", err)
	}
	return LoadWithRoot(path, root)
}

// LoadWithRoot reads and validates the JSON config file at path,
// resolving relative entries against rootDir.
func LoadWithRoot(path, rootDir string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, pkgerrors.NewConfigError(path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, pkgerrors.NewConfigError(path, fmt.Errorf("invalid JSON: %w", err))
	}

	cfg.Root = rootDir
	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Output == "" {
		cfg.Output = defaultOutput
	}
	if cfg.Database == "" {
		cfg.Database = defaultDatabase
	}
	if len(cfg.ExcludePatterns) == 0 && len(cfg.Exclude) == 0 {
		cfg.ExcludePatterns = append([]string{}, DefaultExcludePatterns...)
	} else {
		// union both keys, deduplicated.
		seen := make(map[string]bool)
		merged := make([]string, 0, len(cfg.Exclude)+len(cfg.ExcludePatterns))
		for _, p := range append(cfg.Exclude, cfg.ExcludePatterns...) {
			if !seen[p] {
				seen[p] = true
				merged = append(merged, p)
			}
		}
		cfg.ExcludePatterns = merged
	}
}

// Validate checks the required keys and reports ConfigError on a
// missing or invalid entry.
func (c *Config) Validate() error {
	if c.Entry == "" {
		return pkgerrors.NewConfigError("entry", fmt.Errorf("required"))
	}
	return nil
}

// EntryPath returns the entry script's absolute path.
func (c *Config) EntryPath() string {
	if filepath.IsAbs(c.Entry) {
		return c.Entry
	}
	return filepath.Join(c.Root, c.Entry)
}

// OutputPath returns the bundle output's absolute path.
func (c *Config) OutputPath() string {
	if filepath.IsAbs(c.Output) {
		return c.Output
	}
	return filepath.Join(c.Root, c.Output)
}

// DatabasePath returns the Store file's absolute path.
func (c *Config) DatabasePath() string {
	if filepath.IsAbs(c.Database) {
		return c.Database
	}
	return filepath.Join(c.Root, c.Database)
}

// ApplyOverrides layers CLI flag values over the loaded config (a
// non-empty flag always wins).
func (c *Config) ApplyOverrides(entry, output, database string) {
	if entry != "" {
		c.Entry = entry
	}
	if output != "" {
		c.Output = output
	}
	if database != "" {
		c.Database = database
	}
}
