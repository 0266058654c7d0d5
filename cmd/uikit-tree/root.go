package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/suitenumerique/ui-kit/internal/datasource"
	"github.com/suitenumerique/ui-kit/pkg/config"
	"github.com/suitenumerique/ui-kit/pkg/debug"
	"github.com/suitenumerique/ui-kit/pkg/hooks"
	"github.com/suitenumerique/ui-kit/pkg/metrics"
	"github.com/suitenumerique/ui-kit/pkg/model"
	"github.com/suitenumerique/ui-kit/pkg/tree"
	"github.com/suitenumerique/ui-kit/pkg/treectx"
	"github.com/suitenumerique/ui-kit/pkg/version"
)

// app carries what every subcommand shares.
type app struct {
	configPath string
	dbPath     string
	rootID     string
	logFile    string
	debug      bool
	noHooks    bool

	cfg      config.Config
	logger   zerolog.Logger
	closeLog func() error
}

func newRootCmd() *cobra.Command {
	a := &app{closeLog: func() error { return nil }}

	root := &cobra.Command{
		Use:           "uikit-tree",
		Short:         "Browse and rearrange a document tree stored in SQLite",
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			a.logMetrics()
			return a.closeLog()
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "config file (default $XDG_CONFIG_HOME/uikit-tree/config.yaml)")
	pf.StringVar(&a.dbPath, "db", "", "SQLite database (overrides source.db_path)")
	pf.StringVar(&a.rootID, "root", "", "id of the node to show as root (overrides tree.root_id)")
	pf.StringVar(&a.logFile, "log-file", "", "write logs to this file")
	pf.BoolVar(&a.debug, "debug", false, "enable debug logging (same as "+debug.EnvVar+"=1)")
	pf.BoolVar(&a.noHooks, "no-hooks", false, "skip the commands in hooks.yaml")

	root.AddCommand(
		newBrowseCmd(a),
		newSeedCmd(a),
		newExportCmd(a),
		newMoveCmd(a),
		newVersionCmd(),
	)
	return root
}

// setup loads configuration, applies flag overrides, and installs the logger.
func (a *app) setup(cmd *cobra.Command) error {
	var err error
	if a.configPath != "" {
		a.cfg, err = config.LoadFrom(a.configPath)
	} else {
		a.cfg, err = config.Load()
	}
	if err != nil {
		return err
	}
	if a.dbPath != "" {
		a.cfg.Source.DBPath = a.dbPath
	}
	if a.rootID != "" {
		a.cfg.Tree.RootID = a.rootID
	}
	if a.debug {
		debug.SetEnabled(true)
	}

	// The TUI owns the terminal, so browse logs to a file by default.
	logFile := a.logFile
	if logFile == "" && cmd.Name() == "browse" && a.cfg.UI.StateDir != "" {
		if err := os.MkdirAll(a.cfg.UI.StateDir, 0o755); err != nil {
			return fmt.Errorf("creating state directory: %w", err)
		}
		logFile = filepath.Join(a.cfg.UI.StateDir, "uikit-tree.log")
	}
	a.logger, a.closeLog, err = debug.Setup(logFile)
	if err != nil {
		return err
	}
	a.logger.Debug().
		Str("db", a.cfg.Source.DBPath).
		Str("root", a.cfg.Tree.RootID).
		Int("page_size", a.cfg.Tree.PageSize).
		Msg("configured")
	return nil
}

// logMetrics reports the timings gathered during the command at debug level.
func (a *app) logMetrics() {
	if !debug.Enabled() {
		return
	}
	for _, st := range metrics.AllTimingStats() {
		a.logger.Debug().
			Str("metric", st.Name).
			Int64("count", st.Count).
			Float64("avg_ms", st.AvgMs).
			Float64("max_ms", st.MaxMs).
			Float64("total_ms", st.TotalMs).
			Msg("timing")
	}
	for _, c := range metrics.AllCacheMetrics() {
		if c.Hits()+c.Misses() == 0 {
			continue
		}
		a.logger.Debug().
			Str("metric", c.Name()).
			Int64("hits", c.Hits()).
			Int64("misses", c.Misses()).
			Float64("hit_rate", c.HitRate()).
			Msg("cache")
	}
}

// hooksDir is where hooks.yaml lives: next to the config file in use.
func (a *app) hooksDir() string {
	if a.configPath != "" {
		return filepath.Dir(a.configPath)
	}
	return config.ConfigDir()
}

// hookRunner returns an executor for the configured hooks, or nil when there are
// none or --no-hooks is set.
func (a *app) hookRunner(hctx hooks.Context) (*hooks.Executor, error) {
	return hooks.RunHooks(a.hooksDir(), hctx, a.noHooks, hooks.WithLogger(a.logger))
}

// moveContext describes a persisted move to hooks.
func (a *app) moveContext(instr tree.MoveInstruction) hooks.MoveContext {
	return hooks.MoveContext{
		SourceID:    instr.SourceNodeID,
		TargetID:    instr.TargetNodeID,
		Mode:        string(instr.Mode),
		OldParentID: instr.OldParentID,
		DBPath:      a.cfg.Source.DBPath,
		Timestamp:   time.Now(),
	}
}

// openSource opens the configured database, seeding it from the configured
// fixture when it holds no nodes yet.
func (a *app) openSource(ctx context.Context) (*datasource.SQLiteSource, error) {
	path := a.cfg.Source.DBPath
	ds, err := datasource.DetectSource(path)
	if err != nil {
		return nil, err
	}
	if ds.Type != datasource.SourceTypeSQLite {
		return nil, fmt.Errorf("%s is not a SQLite database", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}
	src, err := datasource.OpenSQLite(path,
		datasource.WithPageSize(a.cfg.Tree.PageSize),
		datasource.WithLogger(a.logger),
	)
	if err != nil {
		return nil, err
	}
	if a.cfg.Source.Fixture == "" {
		return src, nil
	}
	n, err := src.Count(ctx)
	if err != nil {
		src.Close()
		return nil, err
	}
	if n == 0 {
		f, err := datasource.LoadFixture(a.cfg.Source.Fixture)
		if err == nil {
			err = src.Seed(ctx, f)
		}
		if err != nil {
			src.Close()
			return nil, fmt.Errorf("seeding from %s: %w", a.cfg.Source.Fixture, err)
		}
		a.logger.Info().Str("fixture", a.cfg.Source.Fixture).Msg("seeded empty database")
	}
	return src, nil
}

// newProvider builds a provider over src rooted at the configured root.
func (a *app) newProvider(ctx context.Context, src *datasource.SQLiteSource, paged bool, afterMove treectx.AfterMoveFunc[model.Doc]) (*treectx.Provider[model.Doc], error) {
	var (
		root *tree.Node[model.Doc]
		err  error
	)
	if a.cfg.Tree.RootID != "" {
		root, err = src.Node(ctx, a.cfg.Tree.RootID)
	} else {
		root, err = src.Root(ctx)
	}
	if errors.Is(err, datasource.ErrNoRoot) {
		return nil, fmt.Errorf("%s is empty; run `uikit-tree seed` first", src.Path())
	}
	if err != nil {
		return nil, err
	}
	policy, err := a.cfg.LoadPolicy()
	if err != nil {
		return nil, err
	}

	opts := []treectx.Option[model.Doc]{
		treectx.WithLoadChildren[model.Doc](src.LoadChildren),
		treectx.WithPageLoader[model.Doc](src.LoadPage),
		treectx.WithRefresh[model.Doc](src.Refresh),
		treectx.WithLoadPolicy[model.Doc](policy),
		treectx.WithHoverDelay[model.Doc](a.cfg.Tree.HoverExpandDelay),
		treectx.WithLogger[model.Doc](a.logger),
	}
	if paged {
		opts = append(opts, treectx.WithPagedLoads[model.Doc]())
	}
	if afterMove != nil {
		opts = append(opts, treectx.WithAfterMove[model.Doc](afterMove))
	}
	p := treectx.New[model.Doc](root.ID, opts...)
	if err := p.Store().Replace(root); err != nil {
		p.Close()
		return nil, err
	}
	return p, nil
}

// loadAll fetches children until no node in the store still needs them.
func loadAll(ctx context.Context, p *treectx.Provider[model.Doc]) error {
	for {
		root := p.Store().Snapshot()
		var ids []string
		if root.NeedsChildren() {
			ids = append(ids, root.ID)
		}
		tree.Walk(root, func(n tree.TreeNode[model.Doc], _ string, _ int) bool {
			if node := tree.AsNode(n); node != nil && node.NeedsChildren() {
				ids = append(ids, node.ID)
			}
			return true
		})
		if len(ids) == 0 {
			return nil
		}
		if err := p.Prefetch(ctx, ids); err != nil {
			return err
		}
	}
}
