package hooks

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// maxSummaryStderr bounds the stderr excerpt per failed hook in Summary.
const maxSummaryStderr = 200

// Result is the outcome of one hook run.
type Result struct {
	Hook     Hook
	Phase    HookPhase
	Success  bool
	Stdout   string
	Stderr   string
	Duration time.Duration
	Err      error
}

// Executor runs the configured hooks with a fixed context.
type Executor struct {
	config *Config
	ctx    Context
	logger zerolog.Logger

	mu      sync.Mutex
	results []Result
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithLogger sets the logger hook runs are reported to.
func WithLogger(l zerolog.Logger) ExecutorOption {
	return func(e *Executor) { e.logger = l }
}

// NewExecutor returns an executor for config. hctx is exported to every hook.
func NewExecutor(config *Config, hctx Context, opts ...ExecutorOption) *Executor {
	if config == nil {
		config = &Config{}
	}
	e := &Executor{config: config, ctx: hctx, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SetContext replaces the context exported to later runs.
func (e *Executor) SetContext(hctx Context) {
	e.mu.Lock()
	e.ctx = hctx
	e.mu.Unlock()
}

// Run executes the hooks of phase in order. In a pre phase the first failing
// hook with on_error "fail" stops the run; in a post phase every hook runs
// and the first such failure is returned at the end.
func (e *Executor) Run(ctx context.Context, phase HookPhase) error {
	e.mu.Lock()
	hctx := e.ctx
	e.mu.Unlock()
	return e.RunWith(ctx, phase, hctx)
}

// RunWith is Run with hctx exported instead of the executor's context.
func (e *Executor) RunWith(ctx context.Context, phase HookPhase, hctx Context) error {
	var first error
	for _, hook := range e.config.Hooks.For(phase) {
		res := e.runHook(ctx, phase, hook, hctx)
		if res.Success || hook.OnError != "fail" {
			continue
		}
		err := fmt.Errorf("%s hook %q failed: %w", phase, hook.Name, res.Err)
		if phase.Pre() {
			return err
		}
		if first == nil {
			first = err
		}
	}
	return first
}

// RunPreExport runs the pre-export hooks.
func (e *Executor) RunPreExport(ctx context.Context) error { return e.Run(ctx, PreExport) }

// RunPostExport runs the post-export hooks.
func (e *Executor) RunPostExport(ctx context.Context) error { return e.Run(ctx, PostExport) }

// RunPostMove runs the post-move hooks.
func (e *Executor) RunPostMove(ctx context.Context) error { return e.Run(ctx, PostMove) }

func (e *Executor) runHook(ctx context.Context, phase HookPhase, hook Hook, hctx Context) Result {
	timeout := hook.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	env := os.Environ()
	if hctx != nil {
		env = append(env, hctx.ToEnv()...)
	}
	env = append(env, expandEnv(hook.Env, env)...)

	cmd := exec.CommandContext(runCtx, "sh", "-c", hook.Command)
	cmd.Env = env
	cmd.WaitDelay = time.Second
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	res := Result{
		Hook:     hook,
		Phase:    phase,
		Stdout:   strings.TrimSpace(stdout.String()),
		Stderr:   strings.TrimSpace(stderr.String()),
		Duration: time.Since(start),
	}
	switch {
	case err == nil:
		res.Success = true
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		res.Err = fmt.Errorf("timed out after %s", timeout)
	default:
		res.Err = err
	}

	ev := e.logger.Debug()
	if !res.Success {
		ev = e.logger.Warn().AnErr("error", res.Err).Str("stderr", truncate(res.Stderr, maxSummaryStderr))
	}
	ev.Str("phase", string(phase)).Str("hook", hook.Name).Dur("took", res.Duration).Msg("hook finished")

	e.mu.Lock()
	e.results = append(e.results, res)
	e.mu.Unlock()
	return res
}

// expandEnv renders extra as KEY=value pairs, expanding $VARS in values
// against base.
func expandEnv(extra map[string]string, base []string) []string {
	if len(extra) == 0 {
		return nil
	}
	lookup := make(map[string]string, len(base))
	for _, kv := range base {
		if k, v, ok := strings.Cut(kv, "="); ok {
			lookup[k] = v
		}
	}
	out := make([]string, 0, len(extra))
	for k, v := range extra {
		out = append(out, k+"="+os.Expand(v, func(name string) string { return lookup[name] }))
	}
	return out
}

// Results returns a copy of the results recorded so far.
func (e *Executor) Results() []Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Result(nil), e.results...)
}

// Summary describes the runs so far, one line per failure. Empty when
// nothing ran.
func (e *Executor) Summary() string {
	results := e.Results()
	if len(results) == 0 {
		return ""
	}
	var ok, failed int
	var b strings.Builder
	for _, r := range results {
		if r.Success {
			ok++
			continue
		}
		failed++
		fmt.Fprintf(&b, "\n  %s %s: %v", r.Phase, r.Hook.Name, r.Err)
		if r.Stderr != "" {
			fmt.Fprintf(&b, "\n    stderr: %s", truncate(r.Stderr, maxSummaryStderr))
		}
	}
	return fmt.Sprintf("hooks: %d succeeded, %d failed", ok, failed) + b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// RunHooks loads the hooks in dir and returns an executor for them, or nil
// when disabled or nothing is configured.
func RunHooks(dir string, hctx Context, disabled bool, opts ...ExecutorOption) (*Executor, error) {
	if disabled {
		return nil, nil
	}
	loader := NewLoader(WithDir(dir))
	if err := loader.Load(); err != nil {
		return nil, err
	}
	if !loader.HasHooks() {
		return nil, nil
	}
	e := NewExecutor(loader.Config(), hctx, opts...)
	for _, w := range loader.Warnings() {
		e.logger.Warn().Str("file", loader.Path()).Msg(w)
	}
	return e, nil
}
