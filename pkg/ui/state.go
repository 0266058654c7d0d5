package ui

import (
	"os"
	"path/filepath"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

// TreeState is the persisted expand state of one tree, saved as
// <state dir>/<tree id>/tree-state.json:
//
//	{
//	  "version": 1,
//	  "expanded": {
//	    "folder-3": true,
//	    "folder-7": false
//	  }
//	}
//
// Only explicit user changes are stored. Nodes absent from the map are
// collapsed. A missing or corrupt file means defaults.
type TreeState struct {
	Version  int             `json:"version"`
	Expanded map[string]bool `json:"expanded"`
}

// TreeStateVersion is the current schema version.
const TreeStateVersion = 1

const treeStateFileName = "tree-state.json"

// DefaultTreeState returns an empty state.
func DefaultTreeState() *TreeState {
	return &TreeState{
		Version:  TreeStateVersion,
		Expanded: make(map[string]bool),
	}
}

// TreeStatePath returns where the state of the tree rooted at rootID lives.
func TreeStatePath(stateDir, rootID string) string {
	return filepath.Join(stateDir, rootID, treeStateFileName)
}

// SaveTreeState writes state to path. Errors are logged and returned.
func SaveTreeState(path string, state *TreeState) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		log.Warn().Err(err).Msg("marshal tree state")
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("create tree state directory")
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("write tree state")
		return err
	}
	return nil
}

// LoadTreeState reads the state at path, falling back to defaults.
func LoadTreeState(path string) *TreeState {
	data, err := os.ReadFile(path)
	if err != nil {
		return DefaultTreeState()
	}
	var state TreeState
	if err := json.Unmarshal(data, &state); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("invalid tree state file, using defaults")
		return DefaultTreeState()
	}
	if state.Expanded == nil {
		state.Expanded = make(map[string]bool)
	}
	return &state
}
