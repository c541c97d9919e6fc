package archive

import (
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/zjy-dev/tgen/internal/solution"
)

// Indicator extracts one performance measure from a solution. Lower is better.
// Solutions that were never executed measure 0 on execution-based indicators.
type Indicator interface {
	Name() string
	Value(s solution.Solution) float64
}

type indicatorFunc struct {
	name string
	fn   func(solution.Solution) float64
}

func (i indicatorFunc) Name() string                      { return i.name }
func (i indicatorFunc) Value(s solution.Solution) float64 { return i.fn(s) }

func fromOutcome(fn func(*solution.Outcome) int) func(solution.Solution) float64 {
	return func(s solution.Solution) float64 {
		o := s.LastOutcome()
		if o == nil {
			return 0
		}
		return float64(fn(o))
	}
}

var indicators = map[string]Indicator{
	"test_length": indicatorFunc{"test_length", func(s solution.Solution) float64 {
		return float64(s.Size())
	}},
	"executed_statements": indicatorFunc{"executed_statements", fromOutcome(func(o *solution.Outcome) int {
		return o.ExecutedStatements
	})},
	"method_calls": indicatorFunc{"method_calls", fromOutcome(func(o *solution.Outcome) int {
		return o.MethodCalls
	})},
	"loop_iterations": indicatorFunc{"loop_iterations", fromOutcome(func(o *solution.Outcome) int {
		return o.LoopIterations
	})},
}

// DefaultIndicatorNames is the indicator vector used when none is configured.
var DefaultIndicatorNames = []string{"test_length", "executed_statements", "method_calls", "loop_iterations"}

// IndicatorsByName resolves indicator names. An empty list yields the defaults.
func IndicatorsByName(names []string) ([]Indicator, error) {
	if len(names) == 0 {
		names = DefaultIndicatorNames
	}
	out := make([]Indicator, 0, len(names))
	for _, name := range names {
		ind, ok := indicators[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownIndicator, name)
		}
		out = append(out, ind)
	}
	return out, nil
}

func measure(inds []Indicator, s solution.Solution) []float64 {
	v := make([]float64, len(inds))
	for i, ind := range inds {
		v[i] = ind.Value(s)
	}
	return v
}

// DominanceComparator prefers solutions that did not fail, then lower
// penalty, then epsilon-dominance over the indicator vector.
type DominanceComparator struct {
	Indicators []Indicator
	Epsilon    float64
}

// Name implements Comparator.
func (c *DominanceComparator) Name() string { return "dominance" }

// IsBetterThanCurrent implements Comparator.
func (c *DominanceComparator) IsBetterThanCurrent(current, candidate solution.Solution) bool {
	if current.LastOutcome().Failed() && !candidate.LastOutcome().Failed() {
		return true
	}
	if p := comparePenalty(current, candidate); p != 0 {
		return p < 0
	}
	if len(c.Indicators) == 0 {
		return false
	}
	return epsilonDominates(measure(c.Indicators, candidate), measure(c.Indicators, current), c.Epsilon)
}

// epsilonDominates reports whether a is no worse than b by more than eps on
// every indicator and better than b by more than eps on at least one.
func epsilonDominates(a, b []float64, eps float64) bool {
	diff := make([]float64, len(a))
	floats.SubTo(diff, a, b)
	return floats.Max(diff) <= eps && floats.Min(diff) < -eps
}

// MinMaxComparator normalizes every indicator into [0, 1] using the pair's
// own min and max, then prefers the lower sum.
type MinMaxComparator struct {
	Indicators []Indicator
}

// Name implements Comparator.
func (c *MinMaxComparator) Name() string { return "minmax" }

// IsBetterThanCurrent implements Comparator.
func (c *MinMaxComparator) IsBetterThanCurrent(current, candidate solution.Solution) bool {
	if p := comparePenalty(current, candidate); p != 0 {
		return p < 0
	}
	if len(c.Indicators) == 0 {
		return false
	}
	cur := measure(c.Indicators, current)
	cand := measure(c.Indicators, candidate)
	normCur := make([]float64, len(cur))
	normCand := make([]float64, len(cand))
	for i := range cur {
		pair := []float64{cur[i], cand[i]}
		lo, hi := floats.Min(pair), floats.Max(pair)
		if hi == lo {
			continue
		}
		normCur[i] = (cur[i] - lo) / (hi - lo)
		normCand[i] = (cand[i] - lo) / (hi - lo)
	}
	return floats.Sum(normCand) < floats.Sum(normCur)
}

// SumComparator prefers the lower plain sum of indicator values.
type SumComparator struct {
	Indicators []Indicator
}

// Name implements Comparator.
func (c *SumComparator) Name() string { return "sum" }

// IsBetterThanCurrent implements Comparator.
func (c *SumComparator) IsBetterThanCurrent(current, candidate solution.Solution) bool {
	if p := comparePenalty(current, candidate); p != 0 {
		return p < 0
	}
	if len(c.Indicators) == 0 {
		return false
	}
	return floats.Sum(measure(c.Indicators, candidate)) < floats.Sum(measure(c.Indicators, current))
}
