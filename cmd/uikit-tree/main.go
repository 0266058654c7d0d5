// Command uikit-tree browses, exports, and edits a document hierarchy kept
// in SQLite through the tree engine.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
