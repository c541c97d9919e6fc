package archive

import (
	"fmt"

	"github.com/zjy-dev/tgen/internal/logger"
	"github.com/zjy-dev/tgen/internal/solution"
	"github.com/zjy-dev/tgen/internal/target"
)

// CoverageArchive stores the single best solution of every covered target.
// A registered target is either in covered or in uncovered, never both.
type CoverageArchive struct {
	base
	covered   map[target.Target]solution.Solution
	uncovered map[target.Target]struct{}
}

// NewCoverageArchive creates an empty coverage archive.
func NewCoverageArchive(opts ...Option) *CoverageArchive {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	a := &CoverageArchive{
		covered:   make(map[target.Target]solution.Solution),
		uncovered: make(map[target.Target]struct{}),
	}
	a.init(KindCoverage, o)
	return a
}

// AddTarget implements Archive.
func (a *CoverageArchive) AddTarget(t target.Target) {
	a.mu.Lock()
	defer a.unlock()
	a.addTarget(t)
}

// AddTargets implements Archive.
func (a *CoverageArchive) AddTargets(ts []target.Target) {
	a.mu.Lock()
	defer a.unlock()
	for _, t := range ts {
		a.addTarget(t)
	}
}

func (a *CoverageArchive) addTarget(t target.Target) {
	if !a.register(t) {
		return
	}
	a.uncovered[t] = struct{}{}
}

// UpdateArchive implements Archive. Only covering solutions (fitness 0) are
// considered; anything else is ignored.
func (a *CoverageArchive) UpdateArchive(t target.Target, s solution.Solution, fitness float64) (bool, error) {
	a.mu.Lock()
	defer a.unlock()

	if err := a.checkRegistered(t); err != nil {
		return false, fmt.Errorf("failed to update archive: %w", err)
	}
	if s == nil {
		return false, fmt.Errorf("failed to update archive for %s: %w", t, ErrNilSolution)
	}
	if err := checkFitness(fitness); err != nil {
		return false, fmt.Errorf("failed to update archive for %s: %w", t, err)
	}

	if fitness > 0 {
		updatesTotal.WithLabelValues(a.kind, resultIgnored).Inc()
		return false, nil
	}

	current, isCovered := a.covered[t]
	if isCovered && !a.cmp.IsBetterThanCurrent(current, s) {
		updatesTotal.WithLabelValues(a.kind, resultRejected).Inc()
		return false, nil
	}

	a.covered[t] = a.cloneOf(s, nil)
	delete(a.uncovered, t)
	a.resolve(t)
	a.updated = true

	if isCovered {
		updatesTotal.WithLabelValues(a.kind, resultImproved).Inc()
		logger.Debug("[Archive] Replaced solution of %s (size %d -> %d)", t, current.Size(), s.Size())
	} else {
		updatesTotal.WithLabelValues(a.kind, resultNewCoverage).Inc()
		coveredTargets.WithLabelValues(a.kind).Set(float64(len(a.covered)))
		logger.Debug("[Archive] New covered target %s (size %d)", t, s.Size())
	}
	return true, nil
}

// NumberOfCoveredTargets implements Archive.
func (a *CoverageArchive) NumberOfCoveredTargets() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.covered)
}

// NumberOfUncoveredTargets implements Archive.
func (a *CoverageArchive) NumberOfUncoveredTargets() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.uncovered)
}

// NumberOfCoveredTargetsOf implements Archive.
func (a *CoverageArchive) NumberOfCoveredTargetsOf(kind target.Kind) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for t := range a.covered {
		if t.Kind == kind {
			n++
		}
	}
	return n
}

// CoveredTargets implements Archive.
func (a *CoverageArchive) CoveredTargets() []target.Target {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]target.Target, 0, len(a.covered))
	for _, t := range a.targets {
		if _, ok := a.covered[t]; ok {
			out = append(out, t)
		}
	}
	return out
}

// UncoveredTargets implements Archive.
func (a *CoverageArchive) UncoveredTargets() []target.Target {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]target.Target, 0, len(a.uncovered))
	for _, t := range a.targets {
		if _, ok := a.uncovered[t]; ok {
			out = append(out, t)
		}
	}
	return out
}

// storedInOrder lists stored solutions in target registration order, with
// one entry per covered target. Caller holds the lock.
func (a *CoverageArchive) storedInOrder() []solution.Solution {
	out := make([]solution.Solution, 0, len(a.covered))
	for _, t := range a.targets {
		if s, ok := a.covered[t]; ok {
			out = append(out, s)
		}
	}
	return out
}

// Solutions implements Archive.
func (a *CoverageArchive) Solutions() []solution.Solution {
	a.mu.Lock()
	defer a.mu.Unlock()
	return uniqueClones(a.storedInOrder())
}

// SolutionFor implements Archive.
func (a *CoverageArchive) SolutionFor(t target.Target) (solution.Solution, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.checkRegistered(t); err != nil {
		return nil, err
	}
	s, ok := a.covered[t]
	if !ok {
		return nil, nil
	}
	return s.Clone(), nil
}

// HasSolution implements Archive.
func (a *CoverageArchive) HasSolution(t target.Target) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.checkRegistered(t); err != nil {
		return false, err
	}
	_, ok := a.covered[t]
	return ok, nil
}

// RandomSolution implements Archive. It picks uniformly among covered
// targets, so a solution covering k targets is k times as likely to be
// returned as one covering a single target.
func (a *CoverageArchive) RandomSolution() solution.Solution {
	a.mu.Lock()
	defer a.mu.Unlock()
	stored := a.storedInOrder()
	if len(stored) == 0 {
		return nil
	}
	samplesTotal.WithLabelValues(a.kind).Inc()
	return stored[a.rng.Intn(len(stored))].Clone()
}

// Solution implements Archive; for this strategy it is RandomSolution.
func (a *CoverageArchive) Solution() solution.Solution {
	return a.RandomSolution()
}

// IsEmpty implements Archive.
func (a *CoverageArchive) IsEmpty() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.covered) == 0
}

// ShrinkSolutions implements Archive. One solution per target is already the
// minimum, so only the argument is checked.
func (a *CoverageArchive) ShrinkSolutions(n int) error {
	if n <= 0 {
		return fmt.Errorf("%w: %d", ErrPopulationSize, n)
	}
	return nil
}

// isStale reports whether a test's last execution can no longer be trusted.
func isStale(s solution.Solution) bool {
	return s.IsChanged() || s.LastOutcome().Failed()
}

// MergeArchiveAndSolution implements Archive. Tests of the candidate suite
// that changed since their last execution, timed out or threw are dropped
// before archived solutions are merged in.
func (a *CoverageArchive) MergeArchiveAndSolution(suite *solution.Suite) *solution.Suite {
	if suite == nil {
		suite = solution.NewSuite()
	}

	a.mu.Lock()
	merged := suite.Clone()
	dropped := merged.RemoveIf(isStale)
	added := a.mergeInto(merged, func(t target.Target) solution.Solution {
		return a.covered[t]
	})
	a.mu.Unlock()

	mergeAddedTests.WithLabelValues(a.kind).Observe(float64(added))
	logger.Debug("[Archive] Merged suite %s: dropped %d stale tests, added %d archived tests", merged.ID(), dropped, added)

	rescore(merged, suite)
	return merged
}

// Snapshot implements Archive.
func (a *CoverageArchive) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	snap := a.snapshot(func(t target.Target) bool {
		_, ok := a.covered[t]
		return ok
	})
	snap.Solutions = countDistinct(a.storedInOrder())
	return snap
}

// Reset implements Archive.
func (a *CoverageArchive) Reset() {
	a.mu.Lock()
	defer a.unlock()
	a.resetBase()
	a.covered = make(map[target.Target]solution.Solution)
	a.uncovered = make(map[target.Target]struct{})
	coveredTargets.WithLabelValues(a.kind).Set(0)
}
