package solution

import "github.com/zjy-dev/tgen/internal/target"

// CoverageFitness counts the targets a suite leaves uncovered.
type CoverageFitness struct {
	Targets []target.Target
}

// Name implements SuiteFitness.
func (f *CoverageFitness) Name() string { return "coverage" }

// Evaluate implements SuiteFitness.
func (f *CoverageFitness) Evaluate(s *Suite) float64 {
	missing := 0
	for _, t := range f.Targets {
		if !s.Covers(t) {
			missing++
		}
	}
	return float64(missing)
}

// SizeFitness is the total number of statements in a suite.
type SizeFitness struct{}

// Name implements SuiteFitness.
func (SizeFitness) Name() string { return "size" }

// Evaluate implements SuiteFitness.
func (SizeFitness) Evaluate(s *Suite) float64 { return float64(s.Size()) }
