package archive

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/zjy-dev/tgen/internal/solution"
)

type entry struct {
	h float64
	s solution.Solution
}

// Population is the bounded, ranked set of solutions a MIO archive keeps for
// one target. Entries are sorted from best (highest h) to worst.
//
// Invariants: len(entries) <= capacity; once covered, the population holds a
// single entry with h == 1 and capacity == 1 for good.
//
// A Population is not safe for concurrent use; MIOArchive guards it.
type Population struct {
	capacity int
	counter  int
	entries  []entry
	cmp      Comparator
	rng      *rand.Rand
}

// NewPopulation creates an empty population.
func NewPopulation(capacity int, cmp Comparator, rng *rand.Rand) (*Population, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrPopulationSize, capacity)
	}
	if cmp == nil {
		cmp = PenaltyComparator{}
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Population{
		capacity: capacity,
		entries:  make([]entry, 0, capacity),
		cmp:      cmp,
		rng:      rng,
	}, nil
}

// AddSolution offers s with heuristic value h and reports whether it was kept.
func (p *Population) AddSolution(h float64, s solution.Solution) (bool, error) {
	if math.IsNaN(h) || h < 0 || h > 1 {
		return false, fmt.Errorf("%w: %v", ErrHeuristicRange, h)
	}
	if s == nil {
		return false, ErrNilSolution
	}

	// A zero heuristic carries no information about the target.
	if h == 0 {
		return false, nil
	}

	if p.IsCovered() {
		if h < 1 {
			return false, nil
		}
		if !p.cmp.IsBetterThanCurrent(p.entries[0].s, s) {
			return false, nil
		}
		p.entries[0] = entry{h: h, s: s}
		p.counter = 0
		return true, nil
	}

	if h == 1 {
		// First full coverage: drop the partial solutions for good.
		p.entries = []entry{{h: h, s: s}}
		p.capacity = 1
		p.counter = 0
		return true, nil
	}

	if len(p.entries) < p.capacity {
		p.entries = append(p.entries, entry{h: h, s: s})
		p.sort()
		p.counter = 0
		return true, nil
	}

	p.sort()
	last := len(p.entries) - 1
	worst := p.entries[last]
	if h > worst.h || (h == worst.h && p.cmp.IsBetterThanCurrent(worst.s, s)) {
		p.entries[last] = entry{h: h, s: s}
		p.sort()
		p.counter = 0
		return true, nil
	}
	return false, nil
}

// SampleSolution returns a uniformly chosen stored solution (not a clone), or
// nil when empty. Every call counts as one sample without improvement.
func (p *Population) SampleSolution() solution.Solution {
	p.counter++
	if len(p.entries) == 0 {
		return nil
	}
	return p.entries[p.rng.Intn(len(p.entries))].s
}

// BestSolutionIfAny returns the covering solution, or nil when the target is
// only partially covered.
func (p *Population) BestSolutionIfAny() solution.Solution {
	if !p.IsCovered() {
		return nil
	}
	return p.entries[0].s
}

// ShrinkPopulation lowers the capacity to n, keeping the n best entries. It
// is a no-op once the target is covered.
func (p *Population) ShrinkPopulation(n int) error {
	if n <= 0 {
		return fmt.Errorf("%w: %d", ErrPopulationSize, n)
	}
	if p.IsCovered() {
		return nil
	}
	p.capacity = n
	if len(p.entries) > n {
		p.sort()
		for i := n; i < len(p.entries); i++ {
			p.entries[i] = entry{}
		}
		p.entries = p.entries[:n]
	}
	return nil
}

// IsCovered reports whether the population holds exactly one full-coverage
// entry and has been collapsed to capacity 1.
func (p *Population) IsCovered() bool {
	return p.capacity == 1 && len(p.entries) == 1 && p.entries[0].h == 1
}

// Capacity returns the current maximum size.
func (p *Population) Capacity() int { return p.capacity }

// Counter returns the stagnation counter.
func (p *Population) Counter() int { return p.counter }

// NumSolutions returns the number of stored entries.
func (p *Population) NumSolutions() int { return len(p.entries) }

// Heuristics returns the stored heuristic values, best first.
func (p *Population) Heuristics() []float64 {
	hs := make([]float64, len(p.entries))
	for i, e := range p.entries {
		hs[i] = e.h
	}
	return hs
}

// sort orders entries by decreasing h; equal values keep their order.
func (p *Population) sort() {
	sort.SliceStable(p.entries, func(i, j int) bool {
		return p.entries[i].h > p.entries[j].h
	})
}
