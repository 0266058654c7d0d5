// Package model holds the payload carried by tree nodes in the browser and
// the SQLite data source.
package model

import (
	"fmt"
	"strings"
	"time"
)

// Kind distinguishes containers from leaves.
type Kind string

const (
	KindFolder Kind = "folder"
	KindFile   Kind = "file"
)

// IsValid reports whether k is a known kind.
func (k Kind) IsValid() bool {
	return k == KindFolder || k == KindFile
}

// ParseKind maps a stored kind to a Kind, defaulting empty values to file.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if k == "" {
		return KindFile, nil
	}
	if !k.IsValid() {
		return "", fmt.Errorf("unknown kind %q", s)
	}
	return k, nil
}

// Doc is one document or folder.
type Doc struct {
	Title     string    `json:"title" yaml:"title"`
	Kind      Kind      `json:"kind" yaml:"kind"`
	UpdatedAt time.Time `json:"updated_at,omitempty" yaml:"updated_at,omitempty"`
}

// IsFolder reports whether the doc can hold children.
func (d Doc) IsFolder() bool {
	return d.Kind == KindFolder
}

// Validate checks the doc for required fields.
func (d Doc) Validate() error {
	if strings.TrimSpace(d.Title) == "" {
		return fmt.Errorf("title cannot be empty")
	}
	if !d.Kind.IsValid() {
		return fmt.Errorf("invalid kind: %q", d.Kind)
	}
	return nil
}
