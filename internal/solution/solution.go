// Package solution models candidate test cases and test suites produced by the
// search and stored by the archive.
package solution

import (
	"encoding/json"
	"sort"

	"github.com/zjy-dev/tgen/internal/target"
)

// Solution is a candidate test case as seen by the archive.
//
// Implementations must be pointer types: the archive deduplicates merged
// solutions by reference.
type Solution interface {
	// ID returns a short identifier, preserved by Clone.
	ID() string

	// Size returns the number of statements.
	Size() int

	// Clone returns an independent deep copy, including the last outcome.
	Clone() Solution

	// UsesDisallowedMocking reports whether any statement mocks an object.
	UsesDisallowedMocking() bool

	// UsesDisallowedMockingOfGenerableType reports whether any statement mocks
	// a type the generator could have constructed itself.
	UsesDisallowedMockingOfGenerableType() bool

	// UsesPrivateAccess reports whether any statement reflects into private members.
	UsesPrivateAccess() bool

	// LastOutcome returns the metadata of the last execution, or nil if the
	// solution has never been executed.
	LastOutcome() *Outcome

	// IsChanged reports whether the solution was mutated since its last execution.
	IsChanged() bool

	// Chop truncates the solution to its first n statements.
	Chop(n int)

	// Covers reports whether the last execution covered t.
	Covers(t target.Target) bool
}

// Outcome summarizes the last execution of a solution.
type Outcome struct {
	Timeout   bool
	Exception bool
	// FirstExceptionAt is the index of the statement that threw first, -1 if none.
	FirstExceptionAt int

	// Performance counters, all "lower is better".
	ExecutedStatements int
	MethodCalls        int
	LoopIterations     int

	covered map[target.Target]struct{}
}

// NewOutcome returns an empty outcome with no exception recorded.
func NewOutcome() *Outcome {
	return &Outcome{
		FirstExceptionAt: -1,
		covered:          make(map[target.Target]struct{}),
	}
}

// Failed reports whether the execution timed out or threw an uncaught exception.
func (o *Outcome) Failed() bool {
	return o != nil && (o.Timeout || o.Exception)
}

// MarkCovered records t as covered by this execution.
func (o *Outcome) MarkCovered(t target.Target) {
	if o.covered == nil {
		o.covered = make(map[target.Target]struct{})
	}
	o.covered[t] = struct{}{}
}

// Covers reports whether t was covered.
func (o *Outcome) Covers(t target.Target) bool {
	if o == nil {
		return false
	}
	_, ok := o.covered[t]
	return ok
}

// CoveredTargets returns the covered targets in a stable order.
func (o *Outcome) CoveredTargets() []target.Target {
	if o == nil {
		return nil
	}
	out := make([]target.Target, 0, len(o.covered))
	for t := range o.covered {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].String() < out[j].String()
	})
	return out
}

// Clone returns a deep copy.
func (o *Outcome) Clone() *Outcome {
	if o == nil {
		return nil
	}
	c := *o
	if o.covered != nil {
		c.covered = make(map[target.Target]struct{}, len(o.covered))
		for t := range o.covered {
			c.covered[t] = struct{}{}
		}
	}
	return &c
}

type outcomeJSON struct {
	Timeout            bool            `json:"timeout"`
	Exception          bool            `json:"exception"`
	FirstExceptionAt   int             `json:"first_exception_at"`
	ExecutedStatements int             `json:"executed_statements"`
	MethodCalls        int             `json:"method_calls"`
	LoopIterations     int             `json:"loop_iterations"`
	Covered            []target.Target `json:"covered,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (o *Outcome) MarshalJSON() ([]byte, error) {
	return json.Marshal(outcomeJSON{
		Timeout:            o.Timeout,
		Exception:          o.Exception,
		FirstExceptionAt:   o.FirstExceptionAt,
		ExecutedStatements: o.ExecutedStatements,
		MethodCalls:        o.MethodCalls,
		LoopIterations:     o.LoopIterations,
		Covered:            o.CoveredTargets(),
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (o *Outcome) UnmarshalJSON(data []byte) error {
	var raw outcomeJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*o = Outcome{
		Timeout:            raw.Timeout,
		Exception:          raw.Exception,
		FirstExceptionAt:   raw.FirstExceptionAt,
		ExecutedStatements: raw.ExecutedStatements,
		MethodCalls:        raw.MethodCalls,
		LoopIterations:     raw.LoopIterations,
		covered:            make(map[target.Target]struct{}, len(raw.Covered)),
	}
	for _, t := range raw.Covered {
		o.covered[t] = struct{}{}
	}
	return nil
}
