// Package hooks runs user shell commands around tree moves and exports.
// Hooks are configured in hooks.yaml next to the uikit-tree config file.
package hooks

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// HookPhase represents when a hook runs
type HookPhase string

const (
	// PreExport runs before an export is written. Failure cancels the export.
	PreExport HookPhase = "pre-export"
	// PostExport runs after an export is written.
	PostExport HookPhase = "post-export"
	// PostMove runs after a move has been persisted.
	PostMove HookPhase = "post-move"
)

// Pre reports whether failures in this phase abort the operation by default.
func (p HookPhase) Pre() bool { return strings.HasPrefix(string(p), "pre-") }

// Hook defines a single hook configuration
type Hook struct {
	Name    string            `yaml:"name" json:"name"`
	Command string            `yaml:"command" json:"command"` // run with sh -c
	Timeout time.Duration     `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	Env     map[string]string `yaml:"env,omitempty" json:"env,omitempty"`
	OnError string            `yaml:"on_error,omitempty" json:"on_error,omitempty"` // "fail" or "continue"
}

// Config holds all hook configurations
type Config struct {
	Hooks HooksByPhase `yaml:"hooks" json:"hooks"`
}

// HooksByPhase organizes hooks by their execution phase
type HooksByPhase struct {
	PreExport  []Hook `yaml:"pre-export,omitempty" json:"pre-export,omitempty"`
	PostExport []Hook `yaml:"post-export,omitempty" json:"post-export,omitempty"`
	PostMove   []Hook `yaml:"post-move,omitempty" json:"post-move,omitempty"`
}

// For returns the hooks configured for phase.
func (h HooksByPhase) For(phase HookPhase) []Hook {
	switch phase {
	case PreExport:
		return h.PreExport
	case PostExport:
		return h.PostExport
	case PostMove:
		return h.PostMove
	default:
		return nil
	}
}

// Context is the information handed to hooks as environment variables.
type Context interface {
	ToEnv() []string
}

// ExportContext describes an export.
type ExportContext struct {
	ExportPath   string    // UIKIT_EXPORT_PATH, empty for stdout
	ExportFormat string    // UIKIT_EXPORT_FORMAT: json, svg or png
	NodeCount    int       // UIKIT_NODE_COUNT
	DBPath       string    // UIKIT_DB_PATH
	Timestamp    time.Time // UIKIT_TIMESTAMP (RFC3339)
}

// ToEnv converts export context to environment variables
func (c ExportContext) ToEnv() []string {
	return []string{
		fmt.Sprintf("UIKIT_EXPORT_PATH=%s", c.ExportPath),
		fmt.Sprintf("UIKIT_EXPORT_FORMAT=%s", c.ExportFormat),
		fmt.Sprintf("UIKIT_NODE_COUNT=%d", c.NodeCount),
		fmt.Sprintf("UIKIT_DB_PATH=%s", c.DBPath),
		fmt.Sprintf("UIKIT_TIMESTAMP=%s", c.Timestamp.Format(time.RFC3339)),
	}
}

// MoveContext describes a persisted move.
type MoveContext struct {
	SourceID    string
	TargetID    string
	Mode        string
	OldParentID string
	DBPath      string
	Timestamp   time.Time
}

func (c MoveContext) ToEnv() []string {
	return []string{
		"UIKIT_MOVE_SOURCE=" + c.SourceID,
		"UIKIT_MOVE_TARGET=" + c.TargetID,
		"UIKIT_MOVE_MODE=" + c.Mode,
		"UIKIT_MOVE_OLD_PARENT=" + c.OldParentID,
		"UIKIT_DB_PATH=" + c.DBPath,
		"UIKIT_TIMESTAMP=" + c.Timestamp.Format(time.RFC3339),
	}
}

// DefaultTimeout is the default hook execution timeout
const DefaultTimeout = 30 * time.Second

// FileName is the hooks file looked up in the config directory.
const FileName = "hooks.yaml"

// Loader loads hook configuration from a directory's hooks.yaml.
type Loader struct {
	dir      string
	config   *Config
	warnings []string
}

// LoaderOption configures the loader
type LoaderOption func(*Loader)

// WithDir sets the directory holding hooks.yaml (default: current directory)
func WithDir(dir string) LoaderOption {
	return func(l *Loader) {
		l.dir = dir
	}
}

// NewLoader creates a new hook loader with options
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{}
	for _, opt := range opts {
		opt(l)
	}
	if l.dir == "" {
		l.dir, _ = os.Getwd()
	}
	return l
}

// Path is the file Load reads.
func (l *Loader) Path() string {
	return filepath.Join(l.dir, FileName)
}

// Load reads and normalizes hooks.yaml. A missing file means no hooks.
func (l *Loader) Load() error {
	path := l.Path()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			l.config = &Config{}
			return nil
		}
		return fmt.Errorf("reading hooks config: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	l.warnings = nil
	config.Hooks.PreExport, l.warnings = normalizeHooks(config.Hooks.PreExport, PreExport, l.warnings)
	config.Hooks.PostExport, l.warnings = normalizeHooks(config.Hooks.PostExport, PostExport, l.warnings)
	config.Hooks.PostMove, l.warnings = normalizeHooks(config.Hooks.PostMove, PostMove, l.warnings)

	l.config = &config
	return nil
}

// normalizeHooks applies defaults, drops empty commands, and accumulates warnings.
func normalizeHooks(hooks []Hook, phase HookPhase, warnings []string) ([]Hook, []string) {
	var out []Hook
	for i := range hooks {
		hook := hooks[i]
		if strings.TrimSpace(hook.Command) == "" {
			warnings = append(warnings, fmt.Sprintf("%s hook %d has empty command; skipping", phase, i+1))
			continue
		}
		if hook.Timeout == 0 {
			hook.Timeout = DefaultTimeout
		}
		switch hook.OnError {
		case "":
			if phase.Pre() {
				hook.OnError = "fail"
			} else {
				hook.OnError = "continue"
			}
		case "fail", "continue":
		default:
			warnings = append(warnings, fmt.Sprintf("%s hook %d: unknown on_error %q; using continue", phase, i+1, hook.OnError))
			hook.OnError = "continue"
		}
		if hook.Name == "" {
			hook.Name = fmt.Sprintf("%s-%d", phase, i+1)
		}
		out = append(out, hook)
	}
	return out, warnings
}

// Config returns the loaded configuration (or empty if not loaded)
func (l *Loader) Config() *Config {
	if l.config == nil {
		return &Config{}
	}
	return l.config
}

// HasHooks returns true if any hooks are configured
func (l *Loader) HasHooks() bool {
	if l.config == nil {
		return false
	}
	h := l.config.Hooks
	return len(h.PreExport)+len(h.PostExport)+len(h.PostMove) > 0
}

// GetHooks returns hooks for a specific phase
func (l *Loader) GetHooks(phase HookPhase) []Hook {
	if l.config == nil {
		return nil
	}
	return l.config.Hooks.For(phase)
}

// Warnings returns any warnings from loading
func (l *Loader) Warnings() []string {
	return l.warnings
}

// UnmarshalYAML accepts timeouts as durations ("5s") or bare seconds.
func (h *Hook) UnmarshalYAML(node *yaml.Node) error {
	// Must mirror Hook except for Timeout.
	type hookDTO struct {
		Name    string            `yaml:"name"`
		Command string            `yaml:"command"`
		Timeout string            `yaml:"timeout,omitempty"`
		Env     map[string]string `yaml:"env,omitempty"`
		OnError string            `yaml:"on_error,omitempty"`
	}

	var dto hookDTO
	if err := node.Decode(&dto); err != nil {
		return err
	}

	h.Name = dto.Name
	h.Command = dto.Command
	h.Env = dto.Env
	h.OnError = dto.OnError

	if dto.Timeout != "" {
		d, err := time.ParseDuration(dto.Timeout)
		if err == nil {
			h.Timeout = d
		} else {
			var seconds float64
			if _, scanErr := fmt.Sscanf(dto.Timeout, "%f", &seconds); scanErr == nil {
				h.Timeout = time.Duration(seconds * float64(time.Second))
			} else {
				return fmt.Errorf("invalid timeout %q: %w", dto.Timeout, err)
			}
		}
	}
	return nil
}
