// Package report renders the outcome of a search run.
package report

import (
	"github.com/zjy-dev/tgen/internal/archive"
	"github.com/zjy-dev/tgen/internal/corpus"
	"github.com/zjy-dev/tgen/internal/state"
)

// Report gathers everything known about a finished run.
type Report struct {
	Archive archive.Snapshot
	Run     state.RunState
	// Suite is the manifest of the saved suite, if any.
	Suite *corpus.Manifest
}

// Reporter defines the interface for saving run reports.
type Reporter interface {
	// Save writes r to disk and returns the path of the written file.
	Save(r *Report) (string, error)
}
