package datasource

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
	_ "modernc.org/sqlite"

	"github.com/suitenumerique/ui-kit/pkg/metrics"
	"github.com/suitenumerique/ui-kit/pkg/model"
	"github.com/suitenumerique/ui-kit/pkg/tree"
)

// DefaultPageSize is the number of children LoadPage returns per page.
const DefaultPageSize = 50

const schema = `
CREATE TABLE IF NOT EXISTS nodes (
	id         TEXT PRIMARY KEY,
	parent_id  TEXT REFERENCES nodes(id) ON DELETE CASCADE,
	position   INTEGER NOT NULL DEFAULT 0,
	kind       TEXT NOT NULL DEFAULT 'file',
	title      TEXT NOT NULL DEFAULT '',
	updated_at TEXT
);
CREATE INDEX IF NOT EXISTS idx_nodes_parent ON nodes(parent_id, position);
`

// nodeColumns selects a node with its child count.
const nodeColumns = `
	n.id, n.kind, n.title, n.updated_at,
	(SELECT COUNT(*) FROM nodes c WHERE c.parent_id = n.id)`

// ErrNoRoot is returned when the database holds no root row.
var ErrNoRoot = errors.New("no root node")

// SQLiteSource serves a document hierarchy from SQLite. Its methods match
// the tree callbacks, so it can be handed to a Provider directly.
type SQLiteSource struct {
	db       *sql.DB
	path     string
	pageSize int
	logger   zerolog.Logger
	pages    singleflight.Group
}

// SourceOption configures a SQLiteSource.
type SourceOption func(*SQLiteSource)

// WithPageSize sets the page size of LoadPage. Values below 1 are ignored.
func WithPageSize(n int) SourceOption {
	return func(s *SQLiteSource) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) SourceOption {
	return func(s *SQLiteSource) { s.logger = l }
}

// OpenSQLite opens or creates the database at path and ensures the schema.
func OpenSQLite(path string, opts ...SourceOption) (*SQLiteSource, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}
	// One writer at a time keeps renumbering transactions serial.
	db.SetMaxOpenConns(1)

	s := &SQLiteSource{
		db:       db,
		path:     path,
		pageSize: DefaultPageSize,
		logger:   log.Logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close closes the database.
func (s *SQLiteSource) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Path returns the database path.
func (s *SQLiteSource) Path() string { return s.path }

// PageSize returns the LoadPage page size.
func (s *SQLiteSource) PageSize() int { return s.pageSize }

// Count returns the number of rows.
func (s *SQLiteSource) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM nodes`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting nodes: %w", err)
	}
	return n, nil
}

// RootID returns the id of the row without a parent.
func (s *SQLiteSource) RootID(ctx context.Context) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `SELECT id FROM nodes WHERE parent_id IS NULL ORDER BY position LIMIT 1`).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNoRoot
	}
	if err != nil {
		return "", fmt.Errorf("finding root: %w", err)
	}
	return id, nil
}

// Root returns the root row as an unloaded node.
func (s *SQLiteSource) Root(ctx context.Context) (*tree.Node[model.Doc], error) {
	id, err := s.RootID(ctx)
	if err != nil {
		return nil, err
	}
	return s.Node(ctx, id)
}

// Node returns one row as an unloaded node.
func (s *SQLiteSource) Node(ctx context.Context, id string) (*tree.Node[model.Doc], error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+nodeColumns+` FROM nodes n WHERE n.id = ?`, id)
	n, err := scanNode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %q", tree.ErrNotFound, id)
	}
	return n, err
}

// LoadChildren returns every child of node in position order.
func (s *SQLiteSource) LoadChildren(ctx context.Context, node *tree.Node[model.Doc]) ([]tree.TreeNode[model.Doc], error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+nodeColumns+` FROM nodes n WHERE n.parent_id = ? ORDER BY n.position, n.id`, node.ID)
	if err != nil {
		return nil, fmt.Errorf("querying children of %s: %w", node.ID, err)
	}
	defer rows.Close()
	children, err := scanNodes(rows)
	if err != nil {
		return nil, fmt.Errorf("reading children of %s: %w", node.ID, err)
	}
	s.logger.Debug().Str("id", node.ID).Int("children", len(children)).Msg("children loaded")
	return children, nil
}

// LoadPage returns one page (1-based) of node's children. Identical
// concurrent requests share one query.
func (s *SQLiteSource) LoadPage(ctx context.Context, node *tree.Node[model.Doc], page int) (tree.PaginatedChildren[model.Doc], error) {
	if page < 1 {
		page = 1
	}
	key := fmt.Sprintf("%s\x00%d", node.ID, page)
	v, err, shared := s.pages.Do(key, func() (any, error) {
		return s.loadPage(ctx, node.ID, page)
	})
	if shared {
		metrics.PageFetch.Hit()
	} else {
		metrics.PageFetch.Miss()
	}
	if err != nil {
		return tree.PaginatedChildren[model.Doc]{}, err
	}
	res := v.(tree.PaginatedChildren[model.Doc])
	// Callers own their nodes; shared results must not alias.
	if shared {
		out := make([]tree.TreeNode[model.Doc], len(res.Children))
		for i, c := range res.Children {
			out[i] = tree.Clone(c)
		}
		res.Children = out
	}
	return res, nil
}

func (s *SQLiteSource) loadPage(ctx context.Context, parentID string, page int) (tree.PaginatedChildren[model.Doc], error) {
	defer metrics.Timer(metrics.SourceQuery)()

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM nodes WHERE parent_id = ?`, parentID).Scan(&total); err != nil {
		return tree.PaginatedChildren[model.Doc]{}, fmt.Errorf("counting children of %s: %w", parentID, err)
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+nodeColumns+` FROM nodes n WHERE n.parent_id = ? ORDER BY n.position, n.id LIMIT ? OFFSET ?`,
		parentID, s.pageSize, (page-1)*s.pageSize)
	if err != nil {
		return tree.PaginatedChildren[model.Doc]{}, fmt.Errorf("querying page %d of %s: %w", page, parentID, err)
	}
	defer rows.Close()
	children, err := scanNodes(rows)
	if err != nil {
		return tree.PaginatedChildren[model.Doc]{}, err
	}
	return tree.PaginatedChildren[model.Doc]{
		Children: children,
		Pagination: tree.Pagination{
			Page:       page,
			PageSize:   s.pageSize,
			TotalCount: total,
			HasMore:    page*s.pageSize < total,
		},
	}, nil
}

// Refresh returns the current fields of id.
func (s *SQLiteSource) Refresh(ctx context.Context, id string) (tree.NodePatch[model.Doc], error) {
	n, err := s.Node(ctx, id)
	if err != nil {
		return tree.NodePatch[model.Doc]{}, err
	}
	return tree.NodePatch[model.Doc]{
		Data:          &n.Data,
		ChildrenCount: &n.ChildrenCount,
		CanDrop:       n.CanDrop,
	}, nil
}

// Insert adds a row under parentID at the end of its children. An empty
// parentID inserts a root.
func (s *SQLiteSource) Insert(ctx context.Context, parentID, id string, doc model.Doc) error {
	if err := doc.Validate(); err != nil {
		return fmt.Errorf("insert %s: %w", id, err)
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return insertRow(ctx, tx, parentID, id, doc, -1)
	})
}

// Delete removes id and its subtree.
func (s *SQLiteSource) Delete(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var parent sql.NullString
		if err := tx.QueryRowContext(ctx, `SELECT parent_id FROM nodes WHERE id = ?`, id).Scan(&parent); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%w: %q", tree.ErrNotFound, id)
			}
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM nodes WHERE id = ?`, id); err != nil {
			return fmt.Errorf("deleting %s: %w", id, err)
		}
		if !parent.Valid {
			return nil
		}
		ids, err := childIDs(ctx, tx, parent.String)
		if err != nil {
			return err
		}
		return renumber(ctx, tx, parent.String, ids)
	})
}

// ChildIDs returns the ids under parentID in position order.
func (s *SQLiteSource) ChildIDs(ctx context.Context, parentID string) ([]string, error) {
	return childIDs(ctx, s.db, parentID)
}

// ApplyMove persists a resolved move: the source row is re-parented and
// both the old and new sibling lists are renumbered, in one transaction.
func (s *SQLiteSource) ApplyMove(ctx context.Context, instr tree.MoveInstruction) error {
	defer metrics.Timer(metrics.SourceQuery)()

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		parentID, err := destinationParent(ctx, tx, instr)
		if err != nil {
			return err
		}
		inside, err := isWithin(ctx, tx, parentID, instr.SourceNodeID)
		if err != nil {
			return err
		}
		if inside {
			return fmt.Errorf("%w: %q is inside %q", tree.ErrInvalidDropTarget, parentID, instr.SourceNodeID)
		}

		var oldParent sql.NullString
		if err := tx.QueryRowContext(ctx, `SELECT parent_id FROM nodes WHERE id = ?`, instr.SourceNodeID).Scan(&oldParent); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%w: %q", tree.ErrNotFound, instr.SourceNodeID)
			}
			return err
		}

		siblings, err := childIDs(ctx, tx, parentID)
		if err != nil {
			return err
		}
		// Anchor while the source still sits in the list, so a node
		// dropped beside itself keeps its place.
		at, err := insertionIndex(siblings, instr)
		if err != nil {
			return err
		}
		if i := slices.Index(siblings, instr.SourceNodeID); i >= 0 {
			siblings = slices.Delete(siblings, i, i+1)
			if i < at {
				at--
			}
		}
		siblings = append(siblings[:at], append([]string{instr.SourceNodeID}, siblings[at:]...)...)

		if _, err := tx.ExecContext(ctx, `UPDATE nodes SET parent_id = ?, updated_at = ? WHERE id = ?`,
			parentID, formatTime(time.Now()), instr.SourceNodeID); err != nil {
			return fmt.Errorf("re-parenting %s: %w", instr.SourceNodeID, err)
		}
		if err := renumber(ctx, tx, parentID, siblings); err != nil {
			return err
		}
		if oldParent.Valid && oldParent.String != parentID {
			old, err := childIDs(ctx, tx, oldParent.String)
			if err != nil {
				return err
			}
			return renumber(ctx, tx, oldParent.String, old)
		}
		return nil
	})
	if err != nil {
		s.logger.Error().Err(err).Str("instruction", instr.String()).Msg("persisting move")
		return err
	}
	s.logger.Debug().Str("instruction", instr.String()).Msg("move persisted")
	return nil
}

func destinationParent(ctx context.Context, tx *sql.Tx, instr tree.MoveInstruction) (string, error) {
	switch instr.Mode {
	case tree.MoveFirstChild, tree.MoveLastChild:
		var kind string
		err := tx.QueryRowContext(ctx, `SELECT kind FROM nodes WHERE id = ?`, instr.TargetNodeID).Scan(&kind)
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("%w: %q", tree.ErrNotFound, instr.TargetNodeID)
		}
		if err != nil {
			return "", err
		}
		if model.Kind(kind) != model.KindFolder {
			return "", fmt.Errorf("%w: %q is not a folder", tree.ErrInvalidDropTarget, instr.TargetNodeID)
		}
		return instr.TargetNodeID, nil
	case tree.MoveLeft, tree.MoveRight:
		var parent sql.NullString
		err := tx.QueryRowContext(ctx, `SELECT parent_id FROM nodes WHERE id = ?`, instr.TargetNodeID).Scan(&parent)
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("%w: %q", tree.ErrNotFound, instr.TargetNodeID)
		}
		if err != nil {
			return "", err
		}
		if !parent.Valid {
			return "", fmt.Errorf("%w: cannot place beside the root", tree.ErrInvalidDropTarget)
		}
		return parent.String, nil
	default:
		return "", fmt.Errorf("unknown move mode %q", instr.Mode)
	}
}

func insertionIndex(siblings []string, instr tree.MoveInstruction) (int, error) {
	switch instr.Mode {
	case tree.MoveFirstChild:
		return 0, nil
	case tree.MoveLastChild:
		return len(siblings), nil
	}
	for i, id := range siblings {
		if id == instr.TargetNodeID {
			if instr.Mode == tree.MoveRight {
				return i + 1, nil
			}
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: %q is not a sibling", tree.ErrNotFound, instr.TargetNodeID)
}

// isWithin reports whether id is ancestorID or lies beneath it.
func isWithin(ctx context.Context, tx *sql.Tx, id, ancestorID string) (bool, error) {
	var n int
	err := tx.QueryRowContext(ctx, `
		WITH RECURSIVE up(id, parent_id) AS (
			SELECT id, parent_id FROM nodes WHERE id = ?
			UNION ALL
			SELECT n.id, n.parent_id FROM nodes n JOIN up ON n.id = up.parent_id
		)
		SELECT COUNT(*) FROM up WHERE id = ?`, id, ancestorID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking ancestry of %s: %w", id, err)
	}
	return n > 0, nil
}

func (s *SQLiteSource) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func childIDs(ctx context.Context, q querier, parentID string) ([]string, error) {
	rows, err := q.QueryContext(ctx, `SELECT id FROM nodes WHERE parent_id = ? ORDER BY position, id`, parentID)
	if err != nil {
		return nil, fmt.Errorf("listing children of %s: %w", parentID, err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func renumber(ctx context.Context, tx *sql.Tx, parentID string, ids []string) error {
	stmt, err := tx.PrepareContext(ctx, `UPDATE nodes SET position = ? WHERE id = ? AND parent_id = ?`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i, id := range ids {
		if _, err := stmt.ExecContext(ctx, i, id, parentID); err != nil {
			return fmt.Errorf("renumbering %s: %w", id, err)
		}
	}
	return nil
}

// insertRow adds a row at position pos, or at the end when pos is negative.
func insertRow(ctx context.Context, tx *sql.Tx, parentID, id string, doc model.Doc, pos int) error {
	var parent any
	if parentID != "" {
		parent = parentID
		if pos < 0 {
			if err := tx.QueryRowContext(ctx,
				`SELECT COALESCE(MAX(position) + 1, 0) FROM nodes WHERE parent_id = ?`, parentID).Scan(&pos); err != nil {
				return fmt.Errorf("positioning %s: %w", id, err)
			}
		}
	}
	pos = max(pos, 0)
	updated := doc.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO nodes (id, parent_id, position, kind, title, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, parent, pos, string(doc.Kind), doc.Title, formatTime(updated))
	if err != nil {
		return fmt.Errorf("inserting %s: %w", id, err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanNode(row scanner) (*tree.Node[model.Doc], error) {
	var (
		id, kind, title string
		updated         sql.NullString
		count           int
	)
	if err := row.Scan(&id, &kind, &title, &updated, &count); err != nil {
		return nil, err
	}
	k, err := model.ParseKind(kind)
	if err != nil {
		return nil, fmt.Errorf("node %s: %w", id, err)
	}
	n := &tree.Node[model.Doc]{
		ID:            id,
		Data:          model.Doc{Title: title, Kind: k},
		ChildrenCount: count,
	}
	if updated.Valid {
		n.Data.UpdatedAt = parseTime(updated.String)
	}
	if k != model.KindFolder {
		// Files hold nothing, so there is nothing left to load.
		n.HasLoadedChildren = true
		n.CanDrop = tree.Bool(false)
	}
	return n, nil
}

func scanNodes(rows *sql.Rows) ([]tree.TreeNode[model.Doc], error) {
	var out []tree.TreeNode[model.Doc]
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
