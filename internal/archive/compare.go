package archive

import (
	"fmt"
	"sort"

	"github.com/zjy-dev/tgen/internal/solution"
)

// Comparator decides between two solutions that tie on fitness for the same
// target.
type Comparator interface {
	// Name identifies the policy in configuration.
	Name() string

	// IsBetterThanCurrent reports whether candidate should replace current.
	IsBetterThanCurrent(current, candidate solution.Solution) bool
}

// Penalty counts the disallowed constructs a solution uses (0 to 3).
func Penalty(s solution.Solution) int {
	penalty := 0
	if s.UsesDisallowedMockingOfGenerableType() {
		penalty++
	}
	if s.UsesDisallowedMocking() {
		penalty++
	}
	if s.UsesPrivateAccess() {
		penalty++
	}
	return penalty
}

// comparePenalty returns -1 if candidate has the lower penalty, 1 if current
// has, 0 on a tie.
func comparePenalty(current, candidate solution.Solution) int {
	pc, pn := Penalty(current), Penalty(candidate)
	switch {
	case pn < pc:
		return -1
	case pn > pc:
		return 1
	default:
		return 0
	}
}

// PenaltyComparator is the default policy: lower penalty wins, then the
// shorter solution wins.
type PenaltyComparator struct{}

// Name implements Comparator.
func (PenaltyComparator) Name() string { return "penalty" }

// IsBetterThanCurrent implements Comparator.
func (PenaltyComparator) IsBetterThanCurrent(current, candidate solution.Solution) bool {
	if c := comparePenalty(current, candidate); c != 0 {
		return c < 0
	}
	return candidate.Size() < current.Size()
}

// ComparatorOptions carries the settings of indicator based policies.
type ComparatorOptions struct {
	Indicators []string
	Epsilon    float64
}

// ComparatorFactory builds a comparator from options.
type ComparatorFactory func(opts ComparatorOptions) (Comparator, error)

var comparators = make(map[string]ComparatorFactory)

// RegisterComparator adds a comparator factory to the registry.
func RegisterComparator(name string, factory ComparatorFactory) {
	comparators[name] = factory
}

// NewComparator creates a comparator by name.
func NewComparator(name string, opts ComparatorOptions) (Comparator, error) {
	factory, ok := comparators[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownComparator, name)
	}
	return factory(opts)
}

// ComparatorNames lists registered comparator names in sorted order.
func ComparatorNames() []string {
	names := make([]string, 0, len(comparators))
	for name := range comparators {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func init() {
	RegisterComparator("penalty", func(ComparatorOptions) (Comparator, error) {
		return PenaltyComparator{}, nil
	})
	RegisterComparator("dominance", func(opts ComparatorOptions) (Comparator, error) {
		inds, err := IndicatorsByName(opts.Indicators)
		if err != nil {
			return nil, err
		}
		if opts.Epsilon < 0 {
			return nil, fmt.Errorf("epsilon must be non-negative, got %v", opts.Epsilon)
		}
		return &DominanceComparator{Indicators: inds, Epsilon: opts.Epsilon}, nil
	})
	RegisterComparator("minmax", func(opts ComparatorOptions) (Comparator, error) {
		inds, err := IndicatorsByName(opts.Indicators)
		if err != nil {
			return nil, err
		}
		return &MinMaxComparator{Indicators: inds}, nil
	})
	RegisterComparator("sum", func(opts ComparatorOptions) (Comparator, error) {
		inds, err := IndicatorsByName(opts.Indicators)
		if err != nil {
			return nil, err
		}
		return &SumComparator{Indicators: inds}, nil
	})
}
