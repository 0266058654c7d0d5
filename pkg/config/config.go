// Package config handles loading and saving uikit-tree configuration.
//
// Configuration follows the XDG Base Directory specification:
//   - Config:  ~/.config/uikit-tree/config.yaml
//   - Hooks:   ~/.config/uikit-tree/hooks.yaml (see package hooks)
//   - State:   ~/.local/state/uikit-tree/ (expanded folders per root)
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/suitenumerique/ui-kit/pkg/tree"
)

const appName = "uikit-tree"

// TreeConfig tunes the tree engine.
type TreeConfig struct {
	RootID           string        `yaml:"root_id,omitempty"`            // Empty means the source's root
	PageSize         int           `yaml:"page_size,omitempty"`          // Children per "load more" page
	HoverExpandDelay time.Duration `yaml:"hover_expand_delay,omitempty"` // Drag hover before a folder opens
	LoadPolicy       string        `yaml:"load_policy,omitempty"`        // last-writer-wins, drop-stale
}

// SourceConfig locates the hierarchy.
type SourceConfig struct {
	DBPath  string `yaml:"db_path,omitempty"`
	Fixture string `yaml:"fixture,omitempty"` // YAML seeded into db_path when the database is empty
}

// UIConfig holds UI preference settings.
type UIConfig struct {
	StateDir string `yaml:"state_dir,omitempty"`
	Theme    string `yaml:"theme,omitempty"` // auto, mono
}

// Config is the top-level configuration.
type Config struct {
	Tree   TreeConfig   `yaml:"tree,omitempty"`
	Source SourceConfig `yaml:"source,omitempty"`
	UI     UIConfig     `yaml:"ui,omitempty"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Tree: TreeConfig{
			PageSize:         50,
			HoverExpandDelay: 500 * time.Millisecond,
			LoadPolicy:       tree.LoadPolicyLastWriterWins.String(),
		},
		Source: SourceConfig{
			DBPath: filepath.Join(DataDir(), "tree.db"),
		},
		UI: UIConfig{
			StateDir: StateDir(),
			Theme:    "auto",
		},
	}
}

func xdgDir(env string, fallback ...string) string {
	if dir := os.Getenv(env); dir != "" {
		return filepath.Join(dir, appName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(append(append([]string{home}, fallback...), appName)...)
}

// ConfigDir returns the XDG config directory.
func ConfigDir() string { return xdgDir("XDG_CONFIG_HOME", ".config") }

// DataDir returns the XDG data directory, home of the default database.
func DataDir() string { return xdgDir("XDG_DATA_HOME", ".local", "share") }

// StateDir returns the XDG state directory.
func StateDir() string { return xdgDir("XDG_STATE_HOME", ".local", "state") }

// ConfigPath returns the full path to config.yaml.
func ConfigPath() string {
	dir := ConfigDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "config.yaml")
}

// Load reads the config file from the XDG config directory.
// Returns DefaultConfig if the file doesn't exist.
func Load() (Config, error) {
	path := ConfigPath()
	if path == "" {
		return DefaultConfig(), nil
	}
	return LoadFrom(path)
}

// LoadFrom reads config from a specific path.
// Returns DefaultConfig if the file doesn't exist.
func LoadFrom(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config: %w", err)
	}

	cfg.Source.DBPath = expandHome(cfg.Source.DBPath)
	cfg.Source.Fixture = expandHome(cfg.Source.Fixture)
	cfg.UI.StateDir = expandHome(cfg.UI.StateDir)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects values the engine cannot run with.
func (c Config) Validate() error {
	if c.Tree.PageSize <= 0 {
		return fmt.Errorf("tree.page_size must be positive, got %d", c.Tree.PageSize)
	}
	if c.Tree.HoverExpandDelay < 0 {
		return fmt.Errorf("tree.hover_expand_delay must not be negative, got %v", c.Tree.HoverExpandDelay)
	}
	if _, err := c.LoadPolicy(); err != nil {
		return fmt.Errorf("tree.load_policy: %w", err)
	}
	return nil
}

// LoadPolicy parses tree.load_policy.
func (c Config) LoadPolicy() (tree.LoadPolicy, error) {
	return tree.ParseLoadPolicy(c.Tree.LoadPolicy)
}

// Save writes the config to the XDG config directory.
func Save(cfg Config) error {
	path := ConfigPath()
	if path == "" {
		return fmt.Errorf("cannot determine config directory")
	}
	return SaveTo(cfg, path)
}

// SaveTo writes the config to a specific path.
func SaveTo(cfg Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
