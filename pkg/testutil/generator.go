// Package testutil builds deterministic doc trees and structural assertions
// for tests of the tree engine, the provider, and the data source.
package testutil

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/suitenumerique/ui-kit/pkg/model"
	"github.com/suitenumerique/ui-kit/pkg/tree"
)

// RootID is the virtual root id used by every generated tree.
const RootID = "root"

// GeneratorConfig controls tree generation.
type GeneratorConfig struct {
	Seed        int64     // Random seed for determinism (0 = use current time)
	IDPrefix    string    // Prefix for node ids (default: "n")
	BaseTime    time.Time // Base time for UpdatedAt (default: fixed time)
	MaxChildren int       // Upper bound on children per folder in Random (default: 4)
	LoadAll     bool      // Mark every folder as loaded
}

// DefaultConfig returns a config suitable for most tests.
func DefaultConfig() GeneratorConfig {
	return GeneratorConfig{
		Seed:        42,
		IDPrefix:    "n",
		BaseTime:    time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC),
		MaxChildren: 4,
		LoadAll:     true,
	}
}

// Generator creates doc trees of various shapes.
type Generator struct {
	cfg  GeneratorConfig
	rng  *rand.Rand
	next int
}

// New creates a Generator with the given config.
func New(cfg GeneratorConfig) *Generator {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	if cfg.BaseTime.IsZero() {
		cfg.BaseTime = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	}
	if cfg.IDPrefix == "" {
		cfg.IDPrefix = "n"
	}
	if cfg.MaxChildren <= 0 {
		cfg.MaxChildren = 4
	}
	return &Generator{
		cfg: cfg,
		rng: rand.New(rand.NewSource(seed)),
	}
}

// NewDefault creates a Generator with default config.
func NewDefault() *Generator {
	return New(DefaultConfig())
}

// Root returns an empty loaded root.
func (g *Generator) Root() *tree.Node[model.Doc] {
	return &tree.Node[model.Doc]{
		ID:                RootID,
		Data:              model.Doc{Title: "Root", Kind: model.KindFolder},
		HasLoadedChildren: true,
		Children:          []tree.TreeNode[model.Doc]{},
	}
}

// Folder returns a fresh folder node with the given children.
func (g *Generator) Folder(children ...tree.TreeNode[model.Doc]) *tree.Node[model.Doc] {
	n := g.node(model.KindFolder)
	n.Children = children
	n.ChildrenCount = len(children)
	n.HasLoadedChildren = g.cfg.LoadAll || len(children) > 0
	return n
}

// File returns a fresh leaf node.
func (g *Generator) File() *tree.Node[model.Doc] {
	n := g.node(model.KindFile)
	n.HasLoadedChildren = true
	return n
}

func (g *Generator) node(kind model.Kind) *tree.Node[model.Doc] {
	i := g.next
	g.next++
	id := fmt.Sprintf("%s%d", g.cfg.IDPrefix, i)
	return &tree.Node[model.Doc]{
		ID: id,
		Data: model.Doc{
			Title:     fmt.Sprintf("%s %d", kind, i),
			Kind:      kind,
			UpdatedAt: g.cfg.BaseTime.Add(time.Duration(i) * time.Minute),
		},
	}
}

// Chain nests depth folders inside each other under the root.
func (g *Generator) Chain(depth int) *tree.Node[model.Doc] {
	root := g.Root()
	parent := root
	for i := 0; i < depth; i++ {
		f := g.Folder()
		attach[model.Doc](parent, f)
		parent = f
	}
	return root
}

// Flat puts size files directly under the root.
func (g *Generator) Flat(size int) *tree.Node[model.Doc] {
	root := g.Root()
	for i := 0; i < size; i++ {
		attach[model.Doc](root, g.File())
	}
	return root
}

// Balanced builds a full tree of folders with the given depth and breadth;
// the last level holds files.
func (g *Generator) Balanced(depth, breadth int) *tree.Node[model.Doc] {
	root := g.Root()
	var fill func(parent *tree.Node[model.Doc], level int)
	fill = func(parent *tree.Node[model.Doc], level int) {
		for i := 0; i < breadth; i++ {
			if level == depth-1 {
				attach[model.Doc](parent, g.File())
				continue
			}
			f := g.Folder()
			attach[model.Doc](parent, f)
			fill(f, level+1)
		}
	}
	if depth > 0 {
		fill(root, 0)
	}
	return root
}

// Random builds a tree with exactly size nodes below the root. Each new node
// goes under a randomly chosen existing folder.
func (g *Generator) Random(size int) *tree.Node[model.Doc] {
	root := g.Root()
	folders := []*tree.Node[model.Doc]{root}
	for i := 0; i < size; i++ {
		parent := folders[g.rng.Intn(len(folders))]
		if len(parent.Children) >= g.cfg.MaxChildren && len(folders) > 1 {
			parent = folders[len(folders)-1]
		}
		if g.rng.Intn(2) == 0 {
			f := g.Folder()
			attach[model.Doc](parent, f)
			folders = append(folders, f)
		} else {
			attach[model.Doc](parent, g.File())
		}
	}
	return root
}

// Sectioned builds the root with a title, two files, a separator and a
// folder, the mix of variants a sidebar shows.
func (g *Generator) Sectioned() *tree.Node[model.Doc] {
	root := g.Root()
	attach[model.Doc](root, &tree.Title[model.Doc]{ID: "title-docs", HeaderTitle: "Documents"})
	attach[model.Doc](root, g.File())
	attach[model.Doc](root, g.File())
	attach[model.Doc](root, &tree.Separator[model.Doc]{ID: "sep-1"})
	attach[model.Doc](root, g.Folder(g.File()))
	return root
}

func attach[T any](parent *tree.Node[T], child tree.TreeNode[T]) {
	parent.Children = append(parent.Children, child)
	if child.Type() != tree.NodeTypeViewMore {
		parent.ChildrenCount++
	}
	parent.HasLoadedChildren = true
}

// QuickRandom returns a random tree from the default generator.
func QuickRandom(size int) *tree.Node[model.Doc] {
	return NewDefault().Random(size)
}

// QuickBalanced returns a balanced tree from the default generator.
func QuickBalanced(depth, breadth int) *tree.Node[model.Doc] {
	return NewDefault().Balanced(depth, breadth)
}

// NewStore returns a store loaded with root and silenced logging.
func NewStore(root *tree.Node[model.Doc], opts ...tree.Option[model.Doc]) *tree.Store[model.Doc] {
	s := tree.NewStore[model.Doc](root.ID, append([]tree.Option[model.Doc]{tree.WithLogger[model.Doc](nopLogger())}, opts...)...)
	if err := s.Replace(root); err != nil {
		panic(err)
	}
	return s
}
