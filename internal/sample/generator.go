package sample

import (
	"math/rand"

	"github.com/zjy-dev/tgen/internal/solution"
)

const (
	// argRange bounds freshly drawn arguments to [-argRange, argRange].
	argRange = 1200
	// shortcutRate is the chance that a fresh statement mocks its receiver or
	// reaches into private state.
	shortcutRate = 0.05
)

// Generator builds and mutates test cases against the callables of a
// Registry. It is not safe for concurrent use.
type Generator struct {
	registry      *Registry
	rng           *rand.Rand
	maxStatements int
}

// NewGenerator creates a generator producing tests of up to maxStatements
// statements.
func NewGenerator(r *Registry, rng *rand.Rand, maxStatements int) *Generator {
	if maxStatements <= 0 {
		maxStatements = 1
	}
	return &Generator{registry: r, rng: rng, maxStatements: maxStatements}
}

// callables falls back to the whole subject once every method is resolved,
// so the generator never runs dry.
func (g *Generator) callables() []*Method {
	if ms := g.registry.Callables(); len(ms) > 0 {
		return ms
	}
	return g.registry.subject.methods
}

func (g *Generator) randomArg() int {
	// Small values are likelier to hit boundary constants.
	if g.rng.Intn(2) == 0 {
		return g.rng.Intn(101) - 50
	}
	return g.rng.Intn(2*argRange+1) - argRange
}

// Statement draws a random call.
func (g *Generator) Statement() solution.Statement {
	ms := g.callables()
	m := ms[g.rng.Intn(len(ms))]
	args := make([]int, m.Arity)
	for i := range args {
		args[i] = g.randomArg()
	}
	st := solution.Statement{Class: m.Class, Method: m.Name, Args: args}
	if g.rng.Float64() < shortcutRate {
		switch g.rng.Intn(3) {
		case 0:
			st.Mock = true
		case 1:
			st.Mock, st.GenerableMock = true, true
		default:
			st.PrivateAccess = true
		}
	}
	return st
}

// Random creates a test with 1 to maxStatements random calls.
func (g *Generator) Random() *solution.TestCase {
	n := 1 + g.rng.Intn(g.maxStatements)
	stmts := make([]solution.Statement, n)
	for i := range stmts {
		stmts[i] = g.Statement()
	}
	return solution.NewTestCase(stmts...)
}

// Mutate applies one random edit to tc: tweak an argument, insert a call or
// drop a call. The result is always marked changed.
func (g *Generator) Mutate(tc *solution.TestCase) {
	n := tc.Size()
	switch {
	case n == 0:
		tc.Append(g.Statement())
	case g.rng.Float64() < 0.6:
		i := g.rng.Intn(n)
		st := tc.Statements[i]
		st.Args = append([]int(nil), st.Args...)
		if len(st.Args) > 0 {
			j := g.rng.Intn(len(st.Args))
			if g.rng.Intn(3) == 0 {
				st.Args[j] = g.randomArg()
			} else {
				// local search step of +-1..10
				delta := 1 + g.rng.Intn(10)
				if g.rng.Intn(2) == 0 {
					delta = -delta
				}
				st.Args[j] += delta
			}
		}
		tc.Replace(i, st)
	case n < g.maxStatements && g.rng.Intn(2) == 0:
		tc.Append(g.Statement())
	case n > 1:
		tc.Remove(g.rng.Intn(n))
	default:
		tc.Replace(0, g.Statement())
	}
}
