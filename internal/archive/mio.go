package archive

import (
	"fmt"
	"math"

	"github.com/zjy-dev/tgen/internal/logger"
	"github.com/zjy-dev/tgen/internal/solution"
	"github.com/zjy-dev/tgen/internal/target"
)

// MIOArchive keeps, for every target, a bounded population of the solutions
// that came closest to covering it. Populations start at populationSize and
// collapse to the single covering solution once the target is covered.
type MIOArchive struct {
	base
	populationSize int // capacity of populations created from now on
	initialSize    int
	populations    map[target.Target]*Population
}

// NewMIOArchive creates an empty MIO archive.
func NewMIOArchive(opts ...Option) (*MIOArchive, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.populationSize <= 0 {
		return nil, fmt.Errorf("failed to create MIO archive: %w: %d", ErrPopulationSize, o.populationSize)
	}
	a := &MIOArchive{
		populationSize: o.populationSize,
		initialSize:    o.populationSize,
		populations:    make(map[target.Target]*Population),
	}
	a.init(KindMIO, o)
	return a, nil
}

// PopulationSize returns the capacity given to newly registered targets. It
// starts at the configured size and follows ShrinkSolutions.
func (a *MIOArchive) PopulationSize() int { return a.populationSize }

// AddTarget implements Archive.
func (a *MIOArchive) AddTarget(t target.Target) {
	a.mu.Lock()
	defer a.unlock()
	a.addTarget(t)
}

// AddTargets implements Archive.
func (a *MIOArchive) AddTargets(ts []target.Target) {
	a.mu.Lock()
	defer a.unlock()
	for _, t := range ts {
		a.addTarget(t)
	}
}

func (a *MIOArchive) addTarget(t target.Target) {
	if !a.register(t) {
		return
	}
	// populationSize is validated by the constructor.
	p, _ := NewPopulation(a.populationSize, a.cmp, a.rng)
	a.populations[t] = p
}

// UpdateArchive implements Archive. The raw fitness is turned into a
// heuristic value h = 1 - fitness/(1+fitness); h == 1 means covered. The
// stored copy is truncated after the first statement that threw.
func (a *MIOArchive) UpdateArchive(t target.Target, s solution.Solution, fitness float64) (bool, error) {
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

	h := 1 - Normalize(fitness)
	if fitness > 0 && h == 1 {
		// rounding must not turn a near miss into coverage
		h = math.Nextafter(1, 0)
	}
	pop := a.populations[t]
	if h == 0 {
		updatesTotal.WithLabelValues(a.kind, resultRejected).Inc()
		return false, nil
	}

	clone := a.cloneOf(s, chopAfterException)

	wasCovered := pop.IsCovered()
	accepted, err := pop.AddSolution(h, clone)
	if err != nil {
		return false, fmt.Errorf("failed to update archive for %s: %w", t, err)
	}
	if !accepted {
		updatesTotal.WithLabelValues(a.kind, resultRejected).Inc()
		return false, nil
	}

	a.updated = true
	if !wasCovered && pop.IsCovered() {
		a.resolve(t)
		updatesTotal.WithLabelValues(a.kind, resultNewCoverage).Inc()
		coveredTargets.WithLabelValues(a.kind).Set(float64(a.numCovered()))
		logger.Debug("[Archive] New covered target %s (size %d)", t, clone.Size())
	} else {
		updatesTotal.WithLabelValues(a.kind, resultImproved).Inc()
		logger.Debug("[Archive] Kept solution for %s with h=%.4f (%d/%d)", t, h, pop.NumSolutions(), pop.Capacity())
	}
	return true, nil
}

// chopAfterException drops the statements that never ran because an earlier
// one threw.
func chopAfterException(s solution.Solution) {
	if o := s.LastOutcome(); o != nil && o.FirstExceptionAt >= 0 {
		s.Chop(o.FirstExceptionAt + 1)
	}
}

// numCovered counts covered populations. Caller holds the lock.
func (a *MIOArchive) numCovered() int {
	n := 0
	for _, p := range a.populations {
		if p.IsCovered() {
			n++
		}
	}
	return n
}

// NumberOfCoveredTargets implements Archive.
func (a *MIOArchive) NumberOfCoveredTargets() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.numCovered()
}

// NumberOfUncoveredTargets implements Archive.
func (a *MIOArchive) NumberOfUncoveredTargets() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.populations) - a.numCovered()
}

// NumberOfCoveredTargetsOf implements Archive.
func (a *MIOArchive) NumberOfCoveredTargetsOf(kind target.Kind) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for t, p := range a.populations {
		if t.Kind == kind && p.IsCovered() {
			n++
		}
	}
	return n
}

// NumberOfSolutions returns the number of entries stored across all
// populations, partial solutions included.
func (a *MIOArchive) NumberOfSolutions() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, p := range a.populations {
		n += p.NumSolutions()
	}
	return n
}

func (a *MIOArchive) filterTargets(covered bool) []target.Target {
	out := make([]target.Target, 0, len(a.targets))
	for _, t := range a.targets {
		if a.populations[t].IsCovered() == covered {
			out = append(out, t)
		}
	}
	return out
}

// CoveredTargets implements Archive.
func (a *MIOArchive) CoveredTargets() []target.Target {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.filterTargets(true)
}

// UncoveredTargets implements Archive.
func (a *MIOArchive) UncoveredTargets() []target.Target {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.filterTargets(false)
}

// bestInOrder lists covering solutions in target registration order. Caller
// holds the lock.
func (a *MIOArchive) bestInOrder() []solution.Solution {
	out := make([]solution.Solution, 0, len(a.targets))
	for _, t := range a.targets {
		if s := a.populations[t].BestSolutionIfAny(); s != nil {
			out = append(out, s)
		}
	}
	return out
}

// Solutions implements Archive.
func (a *MIOArchive) Solutions() []solution.Solution {
	a.mu.Lock()
	defer a.mu.Unlock()
	return uniqueClones(a.bestInOrder())
}

// SolutionFor implements Archive.
func (a *MIOArchive) SolutionFor(t target.Target) (solution.Solution, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.checkRegistered(t); err != nil {
		return nil, err
	}
	s := a.populations[t].BestSolutionIfAny()
	if s == nil {
		return nil, nil
	}
	return s.Clone(), nil
}

// HasSolution implements Archive.
func (a *MIOArchive) HasSolution(t target.Target) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.checkRegistered(t); err != nil {
		return false, err
	}
	return a.populations[t].IsCovered(), nil
}

// RandomSolution implements Archive. It picks uniformly among distinct
// covering solutions.
func (a *MIOArchive) RandomSolution() solution.Solution {
	a.mu.Lock()
	defer a.mu.Unlock()
	distinct := uniqueRefs(a.bestInOrder())
	if len(distinct) == 0 {
		return nil
	}
	samplesTotal.WithLabelValues(a.kind).Inc()
	return distinct[a.rng.Intn(len(distinct))].Clone()
}

// Solution implements Archive. Among targets with at least one stored
// solution it prefers those not covered yet, falling back to covered ones.
// The population with the smallest counter wins, ties broken by registration
// order. Sampling increments that counter.
func (a *MIOArchive) Solution() solution.Solution {
	a.mu.Lock()
	defer a.mu.Unlock()

	var partial, covered []target.Target
	for _, t := range a.targets {
		p := a.populations[t]
		if p.NumSolutions() == 0 {
			continue
		}
		if p.IsCovered() {
			covered = append(covered, t)
		} else {
			partial = append(partial, t)
		}
	}

	candidates := partial
	if len(candidates) == 0 {
		candidates = covered
	}
	if len(candidates) == 0 {
		return nil
	}

	chosen := a.populations[candidates[0]]
	for _, t := range candidates[1:] {
		if p := a.populations[t]; p.Counter() < chosen.Counter() {
			chosen = p
		}
	}

	s := chosen.SampleSolution()
	if s == nil {
		return nil
	}
	samplesTotal.WithLabelValues(a.kind).Inc()
	return s.Clone()
}

// IsEmpty implements Archive.
func (a *MIOArchive) IsEmpty() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, p := range a.populations {
		if p.NumSolutions() > 0 {
			return false
		}
	}
	return true
}

// ShrinkSolutions implements Archive by shrinking every population to n.
// Targets registered afterwards start at capacity n as well.
func (a *MIOArchive) ShrinkSolutions(n int) error {
	if n <= 0 {
		return fmt.Errorf("failed to shrink archive: %w: %d", ErrPopulationSize, n)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, p := range a.populations {
		if err := p.ShrinkPopulation(n); err != nil {
			return fmt.Errorf("failed to shrink archive: %w", err)
		}
	}
	a.populationSize = n
	logger.Debug("[Archive] Shrunk populations to %d", n)
	return nil
}

// MergeArchiveAndSolution implements Archive.
func (a *MIOArchive) MergeArchiveAndSolution(suite *solution.Suite) *solution.Suite {
	if suite == nil {
		suite = solution.NewSuite()
	}

	a.mu.Lock()
	merged := suite.Clone()
	added := a.mergeInto(merged, func(t target.Target) solution.Solution {
		return a.populations[t].BestSolutionIfAny()
	})
	a.mu.Unlock()

	mergeAddedTests.WithLabelValues(a.kind).Observe(float64(added))
	logger.Debug("[Archive] Merged suite %s: added %d archived tests", merged.ID(), added)

	rescore(merged, suite)
	return merged
}

// Snapshot implements Archive.
func (a *MIOArchive) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	snap := a.snapshot(func(t target.Target) bool {
		return a.populations[t].IsCovered()
	})
	snap.Solutions = countDistinct(a.bestInOrder())
	snap.Populations = make([]PopulationStats, 0, len(a.targets))
	for _, t := range a.targets {
		p := a.populations[t]
		stats := PopulationStats{
			Target:   t,
			Capacity: p.Capacity(),
			Counter:  p.Counter(),
			Size:     p.NumSolutions(),
			Covered:  p.IsCovered(),
		}
		if hs := p.Heuristics(); len(hs) > 0 {
			stats.BestH = hs[0]
		}
		snap.Populations = append(snap.Populations, stats)
	}
	return snap
}

// Reset implements Archive.
func (a *MIOArchive) Reset() {
	a.mu.Lock()
	defer a.unlock()
	a.resetBase()
	a.populationSize = a.initialSize
	a.populations = make(map[target.Target]*Population)
	coveredTargets.WithLabelValues(a.kind).Set(0)
}
