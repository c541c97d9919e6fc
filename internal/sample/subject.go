// Package sample provides a small deterministic unit under test. Its methods
// take integer arguments and branch on "arg op constant" conditions, which
// gives the search a classic branch-distance fitness landscape.
package sample

import (
	"fmt"
	"math"

	"github.com/zjy-dev/tgen/internal/solution"
	"github.com/zjy-dev/tgen/internal/target"
)

// Op is a comparison operator.
type Op string

const (
	OpLT Op = "<"
	OpLE Op = "<="
	OpEQ Op = "=="
	OpNE Op = "!="
	OpGT Op = ">"
	OpGE Op = ">="
)

func (op Op) negate() Op {
	switch op {
	case OpLT:
		return OpGE
	case OpLE:
		return OpGT
	case OpEQ:
		return OpNE
	case OpNE:
		return OpEQ
	case OpGT:
		return OpLE
	default:
		return OpLT
	}
}

// distance is the classic branch distance: 0 when "a op b" holds, otherwise
// how far a is from making it hold.
func (op Op) distance(a, b int) float64 {
	d := float64(a - b)
	switch op {
	case OpLT:
		if a < b {
			return 0
		}
		return d + 1
	case OpLE:
		if a <= b {
			return 0
		}
		return d
	case OpEQ:
		return math.Abs(d)
	case OpNE:
		if a != b {
			return 0
		}
		return 1
	case OpGT:
		if a > b {
			return 0
		}
		return -d + 1
	default: // OpGE
		if a >= b {
			return 0
		}
		return -d
	}
}

// Condition is one "args[Arg] Op Value" decision in a method.
type Condition struct {
	Arg   int
	Op    Op
	Value int
	// Throws makes the method throw when the condition holds.
	Throws bool
}

// Method is a callable of the subject.
type Method struct {
	Class      string
	Name       string
	Arity      int
	Conditions []Condition
	// LoopArg, if non-negative, loops args[LoopArg] times after the
	// conditions; more than LoopBound iterations time out.
	LoopArg   int
	LoopBound int
}

// Key identifies the method as "Class.Name".
func (m *Method) Key() string { return m.Class + "." + m.Name }

// Targets lists the coverage targets of m: its entry, both outcomes of
// every condition and one exception target per throwing condition.
func (m *Method) Targets() []target.Target {
	ts := []target.Target{target.New(m.Class, m.Name, target.KindMethod, "entry")}
	for i, c := range m.Conditions {
		ts = append(ts,
			target.New(m.Class, m.Name, target.KindBranch, fmt.Sprintf("b%d:true", i)),
			target.New(m.Class, m.Name, target.KindBranch, fmt.Sprintf("b%d:false", i)),
		)
		if c.Throws {
			ts = append(ts, target.New(m.Class, m.Name, target.KindException, fmt.Sprintf("b%d", i)))
		}
	}
	return ts
}

// Subject is a set of classes under test.
type Subject struct {
	methods []*Method
	byKey   map[string]*Method
}

// NewSubject builds a subject from method definitions.
func NewSubject(methods ...Method) (*Subject, error) {
	s := &Subject{byKey: make(map[string]*Method, len(methods))}
	for i := range methods {
		m := methods[i]
		if _, dup := s.byKey[m.Key()]; dup {
			return nil, fmt.Errorf("duplicate method %s", m.Key())
		}
		for _, c := range m.Conditions {
			if c.Arg < 0 || c.Arg >= m.Arity {
				return nil, fmt.Errorf("method %s: condition on argument %d out of range", m.Key(), c.Arg)
			}
		}
		if m.LoopArg >= m.Arity {
			return nil, fmt.Errorf("method %s: loop argument %d out of range", m.Key(), m.LoopArg)
		}
		s.methods = append(s.methods, &m)
		s.byKey[m.Key()] = &m
	}
	return s, nil
}

// defaultMethods is the built-in class set.
var defaultMethods = []Method{
	{Class: "Calc", Name: "add", Arity: 2, LoopArg: -1, Conditions: []Condition{
		{Arg: 0, Op: OpGT, Value: 10},
		{Arg: 1, Op: OpEQ, Value: 42},
	}},
	{Class: "Calc", Name: "div", Arity: 2, LoopArg: -1, Conditions: []Condition{
		{Arg: 1, Op: OpEQ, Value: 0, Throws: true},
		{Arg: 0, Op: OpGE, Value: 100},
	}},
	{Class: "Account", Name: "deposit", Arity: 1, LoopArg: -1, Conditions: []Condition{
		{Arg: 0, Op: OpLE, Value: 0, Throws: true},
		{Arg: 0, Op: OpGE, Value: 1000},
	}},
	{Class: "Account", Name: "withdraw", Arity: 2, LoopArg: -1, Conditions: []Condition{
		{Arg: 0, Op: OpGT, Value: 500, Throws: true},
		{Arg: 1, Op: OpNE, Value: 0},
		{Arg: 0, Op: OpLT, Value: -20},
	}},
	{Class: "Parser", Name: "parse", Arity: 2, LoopArg: 0, LoopBound: 50, Conditions: []Condition{
		{Arg: 1, Op: OpEQ, Value: 7},
		{Arg: 0, Op: OpGT, Value: 20},
	}},
}

// Default returns the built-in subject used by the CLI.
func Default() *Subject {
	// defaultMethods is validated by the package tests.
	s, _ := NewSubject(defaultMethods...)
	return s
}

// Methods returns the methods in declaration order.
func (s *Subject) Methods() []*Method { return s.methods }

// Method looks a method up by "Class.Name".
func (s *Subject) Method(key string) (*Method, bool) {
	m, ok := s.byKey[key]
	return m, ok
}

// Targets lists every target of every method in declaration order.
func (s *Subject) Targets() []target.Target {
	var ts []target.Target
	for _, m := range s.methods {
		ts = append(ts, m.Targets()...)
	}
	return ts
}

// Result is the outcome of one execution plus the best distance reached for
// every target.
type Result struct {
	Outcome  *solution.Outcome
	distance map[target.Target]float64
}

// Fitness returns the raw fitness of t: 0 when covered, the smallest branch
// distance when reached, +Inf when never reached.
func (r *Result) Fitness(t target.Target) float64 {
	if d, ok := r.distance[t]; ok {
		return d
	}
	return math.Inf(1)
}

func (r *Result) observe(t target.Target, d float64) {
	if cur, ok := r.distance[t]; !ok || d < cur {
		r.distance[t] = d
	}
	if d == 0 {
		r.Outcome.MarkCovered(t)
	}
}

// Execute runs tc and records the outcome on it. Execution stops at the first
// exception or timeout. Calls to unknown methods execute as no-ops.
func (s *Subject) Execute(tc *solution.TestCase) *Result {
	r := &Result{
		Outcome:  solution.NewOutcome(),
		distance: make(map[target.Target]float64),
	}

	for i, st := range tc.Statements {
		r.Outcome.ExecutedStatements++
		m, ok := s.byKey[st.Class+"."+st.Method]
		if !ok {
			continue
		}
		r.Outcome.MethodCalls++
		if s.call(m, st.Args, r) {
			if r.Outcome.Exception {
				r.Outcome.FirstExceptionAt = i
			}
			break
		}
	}

	tc.SetOutcome(r.Outcome)
	return r
}

// call executes one method call and reports whether execution must stop.
func (s *Subject) call(m *Method, args []int, r *Result) bool {
	arg := func(i int) int {
		if i < len(args) {
			return args[i]
		}
		return 0
	}

	r.observe(target.New(m.Class, m.Name, target.KindMethod, "entry"), 0)

	for i, c := range m.Conditions {
		a := arg(c.Arg)
		dTrue := c.Op.distance(a, c.Value)
		dFalse := c.Op.negate().distance(a, c.Value)
		r.observe(target.New(m.Class, m.Name, target.KindBranch, fmt.Sprintf("b%d:true", i)), dTrue)
		r.observe(target.New(m.Class, m.Name, target.KindBranch, fmt.Sprintf("b%d:false", i)), dFalse)
		if c.Throws {
			r.observe(target.New(m.Class, m.Name, target.KindException, fmt.Sprintf("b%d", i)), dTrue)
			if dTrue == 0 {
				r.Outcome.Exception = true
				return true
			}
		}
	}

	if m.LoopArg >= 0 {
		n := arg(m.LoopArg)
		if n > m.LoopBound {
			r.Outcome.LoopIterations += m.LoopBound
			r.Outcome.Timeout = true
			return true
		}
		if n > 0 {
			r.Outcome.LoopIterations += n
		}
	}
	return false
}
