// Package datasource backs the tree browser with a document hierarchy kept
// in SQLite, seeded from YAML fixtures.
package datasource

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// SourceType identifies the kind of file a source lives in.
type SourceType string

const (
	// SourceTypeSQLite is a hierarchy database.
	SourceTypeSQLite SourceType = "sqlite"
	// SourceTypeFixture is a YAML fixture that is seeded into a database.
	SourceTypeFixture SourceType = "fixture"
)

// DataSource describes a file that can feed the tree.
type DataSource struct {
	Type    SourceType `json:"type"`
	Path    string     `json:"path"`
	ModTime time.Time  `json:"mod_time"`
	Size    int64      `json:"size"`
	// Valid is set by ValidateSource.
	Valid           bool   `json:"valid"`
	ValidationError string `json:"validation_error,omitempty"`
	NodeCount       int    `json:"node_count"`
}

// String returns a human-readable description of the source.
func (s DataSource) String() string {
	status := "valid"
	if !s.Valid {
		status = fmt.Sprintf("invalid: %s", s.ValidationError)
	}
	return fmt.Sprintf("%s (%s, mod=%s, nodes=%d, %s)",
		s.Path, s.Type, s.ModTime.Format(time.RFC3339), s.NodeCount, status)
}

// DetectSource classifies path by extension and stats it. A database that
// does not exist yet is reported with a zero ModTime.
func DetectSource(path string) (DataSource, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return DataSource{}, fmt.Errorf("resolving %s: %w", path, err)
	}
	src := DataSource{Path: abs}
	switch strings.ToLower(filepath.Ext(abs)) {
	case ".db", ".sqlite", ".sqlite3":
		src.Type = SourceTypeSQLite
	case ".yaml", ".yml":
		src.Type = SourceTypeFixture
	default:
		return DataSource{}, fmt.Errorf("unknown source type for %s", path)
	}
	info, err := os.Stat(abs)
	switch {
	case err == nil:
		src.ModTime = info.ModTime()
		src.Size = info.Size()
	case os.IsNotExist(err) && src.Type == SourceTypeSQLite:
	default:
		return DataSource{}, fmt.Errorf("stat %s: %w", path, err)
	}
	return src, nil
}

// ValidateSource opens the source and counts its nodes, recording the
// outcome on src.
func ValidateSource(src *DataSource) error {
	var err error
	switch src.Type {
	case SourceTypeSQLite:
		err = validateSQLite(src)
	case SourceTypeFixture:
		err = validateFixture(src)
	default:
		err = fmt.Errorf("unknown source type: %s", src.Type)
	}
	src.Valid = err == nil
	src.ValidationError = ""
	if err != nil {
		src.ValidationError = err.Error()
	}
	return err
}

func validateSQLite(src *DataSource) error {
	if src.ModTime.IsZero() {
		return fmt.Errorf("database does not exist")
	}
	s, err := OpenSQLite(src.Path)
	if err != nil {
		return err
	}
	defer s.Close()
	n, err := s.Count(context.Background())
	if err != nil {
		return err
	}
	src.NodeCount = n
	return nil
}

func validateFixture(src *DataSource) error {
	f, err := LoadFixture(src.Path)
	if err != nil {
		return err
	}
	src.NodeCount = f.Root.count()
	return nil
}
