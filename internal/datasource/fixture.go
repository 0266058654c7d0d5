package datasource

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/suitenumerique/ui-kit/pkg/model"
)

// Fixture is a document hierarchy written as YAML:
//
//	root:
//	  id: workspace
//	  title: Workspace
//	  kind: folder
//	  children:
//	    - id: specs
//	      title: Specs
//	      kind: folder
//	      children:
//	        - {id: intro, title: Introduction}
type Fixture struct {
	Root FixtureNode `yaml:"root"`
}

// FixtureNode is one document in a fixture. Kind defaults to folder when
// children are listed and to file otherwise.
type FixtureNode struct {
	ID        string        `yaml:"id"`
	Title     string        `yaml:"title"`
	Kind      model.Kind    `yaml:"kind,omitempty"`
	UpdatedAt time.Time     `yaml:"updated_at,omitempty"`
	Children  []FixtureNode `yaml:"children,omitempty"`
}

func (n FixtureNode) doc() (model.Doc, error) {
	kind := n.Kind
	if kind == "" {
		kind = model.KindFile
		if len(n.Children) > 0 {
			kind = model.KindFolder
		}
	}
	d := model.Doc{Title: n.Title, Kind: kind, UpdatedAt: n.UpdatedAt}
	if d.Title == "" {
		d.Title = n.ID
	}
	if err := d.Validate(); err != nil {
		return model.Doc{}, fmt.Errorf("fixture node %q: %w", n.ID, err)
	}
	if len(n.Children) > 0 && kind != model.KindFolder {
		return model.Doc{}, fmt.Errorf("fixture node %q: a %s cannot have children", n.ID, kind)
	}
	return d, nil
}

func (n FixtureNode) count() int {
	c := 1
	for _, ch := range n.Children {
		c += ch.count()
	}
	return c
}

// LoadFixture reads and checks a fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading fixture: %w", err)
	}
	return ParseFixture(data)
}

// ParseFixture decodes and checks fixture YAML.
func ParseFixture(data []byte) (*Fixture, error) {
	var f Fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing fixture: %w", err)
	}
	if f.Root.ID == "" {
		return nil, fmt.Errorf("fixture has no root id")
	}
	if f.Root.Kind == "" {
		f.Root.Kind = model.KindFolder
	}
	seen := map[string]bool{}
	var check func(n FixtureNode) error
	check = func(n FixtureNode) error {
		if n.ID == "" {
			return fmt.Errorf("fixture node without id")
		}
		if seen[n.ID] {
			return fmt.Errorf("duplicate fixture id %q", n.ID)
		}
		seen[n.ID] = true
		if _, err := n.doc(); err != nil {
			return err
		}
		for _, c := range n.Children {
			if err := check(c); err != nil {
				return err
			}
		}
		return nil
	}
	if err := check(f.Root); err != nil {
		return nil, err
	}
	return &f, nil
}

// Seed replaces the database contents with the fixture.
func (s *SQLiteSource) Seed(ctx context.Context, f *Fixture) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM nodes`); err != nil {
			return fmt.Errorf("clearing nodes: %w", err)
		}
		var insert func(parentID string, pos int, n FixtureNode) error
		insert = func(parentID string, pos int, n FixtureNode) error {
			d, err := n.doc()
			if err != nil {
				return err
			}
			if err := insertRow(ctx, tx, parentID, n.ID, d, pos); err != nil {
				return err
			}
			for i, c := range n.Children {
				if err := insert(n.ID, i, c); err != nil {
					return err
				}
			}
			return nil
		}
		return insert("", 0, f.Root)
	})
	if err != nil {
		return err
	}
	s.logger.Info().Str("root", f.Root.ID).Int("nodes", f.Root.count()).Msg("database seeded")
	return nil
}
