package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/suitenumerique/ui-kit/pkg/tree"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Tree.PageSize != 50 {
		t.Errorf("expected page size 50, got %d", cfg.Tree.PageSize)
	}
	if cfg.Tree.HoverExpandDelay != 500*time.Millisecond {
		t.Errorf("expected hover delay 500ms, got %v", cfg.Tree.HoverExpandDelay)
	}
	if cfg.UI.Theme != "auto" {
		t.Errorf("expected theme 'auto', got %q", cfg.UI.Theme)
	}
	if filepath.Base(cfg.Source.DBPath) != "tree.db" {
		t.Errorf("expected default database tree.db, got %q", cfg.Source.DBPath)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
	if p, _ := cfg.LoadPolicy(); p != tree.LoadPolicyLastWriterWins {
		t.Errorf("expected last-writer-wins, got %v", p)
	}
}

func TestLoadFrom_NonExistent(t *testing.T) {
	cfg, err := LoadFrom("/nonexistent/path/config.yaml")
	if err != nil {
		t.Fatalf("expected no error for missing file, got: %v", err)
	}
	if cfg.Tree.PageSize != 50 {
		t.Errorf("expected default config, got page size %d", cfg.Tree.PageSize)
	}
}

func TestLoadFrom_ValidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	content := `
tree:
  root_id: workspace
  page_size: 20
  hover_expand_delay: 750ms
  load_policy: drop-stale

source:
  db_path: ~/trees/docs.db
  fixture: /srv/fixtures/docs.yaml

ui:
  state_dir: /tmp/uikit-state
  theme: mono
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Tree.RootID != "workspace" {
		t.Errorf("expected root id 'workspace', got %q", cfg.Tree.RootID)
	}
	if cfg.Tree.PageSize != 20 {
		t.Errorf("expected page size 20, got %d", cfg.Tree.PageSize)
	}
	if cfg.Tree.HoverExpandDelay != 750*time.Millisecond {
		t.Errorf("expected hover delay 750ms, got %v", cfg.Tree.HoverExpandDelay)
	}
	if p, err := cfg.LoadPolicy(); err != nil || p != tree.LoadPolicyDropStale {
		t.Errorf("expected drop-stale, got %v (%v)", p, err)
	}

	home, _ := os.UserHomeDir()
	if want := filepath.Join(home, "trees/docs.db"); cfg.Source.DBPath != want {
		t.Errorf("expected expanded path %q, got %q", want, cfg.Source.DBPath)
	}
	if cfg.Source.Fixture != "/srv/fixtures/docs.yaml" {
		t.Errorf("unexpected fixture %q", cfg.Source.Fixture)
	}
	if cfg.UI.StateDir != "/tmp/uikit-state" || cfg.UI.Theme != "mono" {
		t.Errorf("unexpected ui config %+v", cfg.UI)
	}
}

func TestLoadFrom_PartialConfigKeepsDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("tree:\n  page_size: 5\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Tree.PageSize != 5 {
		t.Errorf("expected page size 5, got %d", cfg.Tree.PageSize)
	}
	if cfg.Tree.HoverExpandDelay != 500*time.Millisecond {
		t.Errorf("expected default hover delay, got %v", cfg.Tree.HoverExpandDelay)
	}
	if cfg.UI.Theme != "auto" {
		t.Errorf("expected default theme, got %q", cfg.UI.Theme)
	}
}

func TestLoadFrom_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	if err := os.WriteFile(path, []byte("{{invalid yaml"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := LoadFrom(path)
	if err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestLoadFrom_InvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"zero page size", "tree:\n  page_size: 0\n", "page_size"},
		{"negative delay", "tree:\n  hover_expand_delay: -1s\n", "hover_expand_delay"},
		{"unknown policy", "tree:\n  load_policy: newest\n", "load_policy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
				t.Fatal(err)
			}
			_, err := LoadFrom(path)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error mentioning %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestSaveAndLoad_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "config.yaml")

	cfg := DefaultConfig()
	cfg.Tree.RootID = "root"
	cfg.Tree.PageSize = 10
	cfg.Tree.HoverExpandDelay = time.Second
	cfg.Tree.LoadPolicy = tree.LoadPolicyDropStale.String()
	cfg.Source.DBPath = "/data/tree.db"
	cfg.UI.Theme = "mono"

	if err := SaveTo(cfg, path); err != nil {
		t.Fatalf("SaveTo failed: %v", err)
	}

	loaded, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom failed: %v", err)
	}
	if loaded != cfg {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", loaded, cfg)
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("cannot determine home dir")
	}

	tests := []struct {
		input    string
		expected string
	}{
		{"~/foo", filepath.Join(home, "foo")},
		{"~/", filepath.Join(home, "")},
		{"/absolute", "/absolute"},
		{"relative", "relative"},
	}

	for _, tt := range tests {
		got := expandHome(tt.input)
		if got != tt.expected {
			t.Errorf("expandHome(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestXDGOverrides(t *testing.T) {
	tests := []struct {
		env string
		fn  func() string
	}{
		{"XDG_CONFIG_HOME", ConfigDir},
		{"XDG_DATA_HOME", DataDir},
		{"XDG_STATE_HOME", StateDir},
	}

	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			dir := t.TempDir()
			t.Setenv(tt.env, dir)
			if got, want := tt.fn(), filepath.Join(dir, "uikit-tree"); got != want {
				t.Errorf("expected %q, got %q", want, got)
			}
		})
	}
}

func TestConfigPath(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	if got, want := ConfigPath(), filepath.Join(dir, "uikit-tree", "config.yaml"); got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}
