package solution

import "github.com/zjy-dev/tgen/internal/target"

// SuiteFitness scores a whole suite. Lower values are better.
type SuiteFitness interface {
	// Name identifies the function; a suite keeps one score per name.
	Name() string

	// Evaluate computes the fitness of s.
	Evaluate(s *Suite) float64
}

// Score is one recorded suite fitness value.
type Score struct {
	Function SuiteFitness
	Value    float64
}

// Suite is an ordered collection of tests together with the fitness
// functions it has been scored against.
type Suite struct {
	SuiteID string
	Tests   []Solution

	scores []Score
}

// NewSuite creates a suite holding the given tests (not cloned).
func NewSuite(tests ...Solution) *Suite {
	return &Suite{
		SuiteID: NewID(),
		Tests:   append([]Solution(nil), tests...),
	}
}

// ID returns the suite identifier.
func (s *Suite) ID() string { return s.SuiteID }

// Len returns the number of tests.
func (s *Suite) Len() int { return len(s.Tests) }

// Size returns the total number of statements across all tests.
func (s *Suite) Size() int {
	n := 0
	for _, t := range s.Tests {
		n += t.Size()
	}
	return n
}

// AddTest appends t without cloning it.
func (s *Suite) AddTest(t Solution) {
	s.Tests = append(s.Tests, t)
}

// RemoveIf drops every test matching pred and returns how many were removed.
func (s *Suite) RemoveIf(pred func(Solution) bool) int {
	kept := s.Tests[:0]
	removed := 0
	for _, t := range s.Tests {
		if pred(t) {
			removed++
			continue
		}
		kept = append(kept, t)
	}
	for i := len(kept); i < len(s.Tests); i++ {
		s.Tests[i] = nil
	}
	s.Tests = kept
	return removed
}

// Covers reports whether any test in the suite covers t.
func (s *Suite) Covers(t target.Target) bool {
	for _, tc := range s.Tests {
		if tc.Covers(t) {
			return true
		}
	}
	return false
}

// Score evaluates f on the suite, records the value and returns it.
func (s *Suite) Score(f SuiteFitness) float64 {
	v := f.Evaluate(s)
	for i := range s.scores {
		if s.scores[i].Function.Name() == f.Name() {
			s.scores[i] = Score{Function: f, Value: v}
			return v
		}
	}
	s.scores = append(s.scores, Score{Function: f, Value: v})
	return v
}

// Fitness returns the last recorded value for the named function.
func (s *Suite) Fitness(name string) (float64, bool) {
	for _, sc := range s.scores {
		if sc.Function.Name() == name {
			return sc.Value, true
		}
	}
	return 0, false
}

// Functions returns the fitness functions the suite was scored with, in order.
func (s *Suite) Functions() []SuiteFitness {
	out := make([]SuiteFitness, len(s.scores))
	for i, sc := range s.scores {
		out[i] = sc.Function
	}
	return out
}

// Scores returns a copy of the recorded scores.
func (s *Suite) Scores() []Score {
	return append([]Score(nil), s.scores...)
}

// Clone deep-copies every test and keeps the recorded scores.
func (s *Suite) Clone() *Suite {
	c := &Suite{
		SuiteID: s.SuiteID,
		Tests:   make([]Solution, len(s.Tests)),
		scores:  append([]Score(nil), s.scores...),
	}
	for i, t := range s.Tests {
		c.Tests[i] = t.Clone()
	}
	return c
}
