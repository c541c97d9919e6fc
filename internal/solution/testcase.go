package solution

import (
	"github.com/google/uuid"

	"github.com/zjy-dev/tgen/internal/target"
)

// Statement is a single call in a test case.
type Statement struct {
	Class         string `json:"class"`
	Method        string `json:"method"`
	Args          []int  `json:"args,omitempty"`
	Mock          bool   `json:"mock,omitempty"`           // receiver is a mock object
	GenerableMock bool   `json:"generable_mock,omitempty"` // mocked type could have been generated
	PrivateAccess bool   `json:"private_access,omitempty"` // reflective access to a private member
}

func (s Statement) clone() Statement {
	c := s
	if s.Args != nil {
		c.Args = append([]int(nil), s.Args...)
	}
	return c
}

// NewID returns a short random identifier.
func NewID() string {
	return uuid.New().String()[:8]
}

// TestCase is the concrete Solution: an ordered list of statements plus the
// outcome of its last execution.
type TestCase struct {
	TestID     string      `json:"id"`
	Statements []Statement `json:"statements"`
	Outcome    *Outcome    `json:"outcome,omitempty"`

	changed bool
}

// NewTestCase creates a test case that has not been executed yet.
func NewTestCase(stmts ...Statement) *TestCase {
	tc := &TestCase{
		TestID:  NewID(),
		changed: true,
	}
	for _, s := range stmts {
		tc.Statements = append(tc.Statements, s.clone())
	}
	return tc
}

// ID returns the test identifier.
func (tc *TestCase) ID() string { return tc.TestID }

// Size returns the number of statements.
func (tc *TestCase) Size() int { return len(tc.Statements) }

// Clone returns a deep copy that keeps the ID, outcome and changed flag.
func (tc *TestCase) Clone() Solution {
	return tc.CloneTestCase()
}

// CloneTestCase is Clone with the concrete type.
func (tc *TestCase) CloneTestCase() *TestCase {
	c := &TestCase{
		TestID:  tc.TestID,
		Outcome: tc.Outcome.Clone(),
		changed: tc.changed,
	}
	if tc.Statements != nil {
		c.Statements = make([]Statement, len(tc.Statements))
		for i, s := range tc.Statements {
			c.Statements[i] = s.clone()
		}
	}
	return c
}

// UsesDisallowedMocking implements Solution.
func (tc *TestCase) UsesDisallowedMocking() bool {
	for _, s := range tc.Statements {
		if s.Mock {
			return true
		}
	}
	return false
}

// UsesDisallowedMockingOfGenerableType implements Solution.
func (tc *TestCase) UsesDisallowedMockingOfGenerableType() bool {
	for _, s := range tc.Statements {
		if s.GenerableMock {
			return true
		}
	}
	return false
}

// UsesPrivateAccess implements Solution.
func (tc *TestCase) UsesPrivateAccess() bool {
	for _, s := range tc.Statements {
		if s.PrivateAccess {
			return true
		}
	}
	return false
}

// LastOutcome implements Solution.
func (tc *TestCase) LastOutcome() *Outcome { return tc.Outcome }

// IsChanged implements Solution.
func (tc *TestCase) IsChanged() bool { return tc.changed }

// Chop keeps the first n statements. The outcome is left untouched: statements
// after the first thrown exception never ran.
func (tc *TestCase) Chop(n int) {
	if n < 0 {
		n = 0
	}
	if n < len(tc.Statements) {
		tc.Statements = tc.Statements[:n]
	}
}

// Covers implements Solution.
func (tc *TestCase) Covers(t target.Target) bool {
	return tc.Outcome.Covers(t)
}

// SetOutcome records the result of an execution and clears the changed flag.
func (tc *TestCase) SetOutcome(o *Outcome) {
	tc.Outcome = o
	tc.changed = false
}

// Append adds a statement at the end.
func (tc *TestCase) Append(s Statement) {
	tc.Statements = append(tc.Statements, s.clone())
	tc.changed = true
}

// Replace swaps the statement at index i.
func (tc *TestCase) Replace(i int, s Statement) {
	if i < 0 || i >= len(tc.Statements) {
		return
	}
	tc.Statements[i] = s.clone()
	tc.changed = true
}

// Remove drops the statement at index i.
func (tc *TestCase) Remove(i int) {
	if i < 0 || i >= len(tc.Statements) {
		return
	}
	tc.Statements = append(tc.Statements[:i], tc.Statements[i+1:]...)
	tc.changed = true
}

// MarkChanged flags the test as needing re-execution.
func (tc *TestCase) MarkChanged() { tc.changed = true }
