package archive

import "errors"

// Contract violations. These are programmer errors: callers get them wrapped
// with context and can test for them with errors.Is.
var (
	ErrUnknownTarget      = errors.New("target not registered in archive")
	ErrNilSolution        = errors.New("solution is nil")
	ErrFitnessRange       = errors.New("fitness value must be a non-negative number")
	ErrHeuristicRange     = errors.New("heuristic value must be in [0, 1]")
	ErrPopulationSize     = errors.New("population size must be positive")
	ErrUnknownComparator  = errors.New("comparator not found")
	ErrUnknownIndicator   = errors.New("performance indicator not found")
	ErrUnknownArchiveKind = errors.New("archive kind not found")
)
