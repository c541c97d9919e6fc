package archive

import (
	"sync"

	"github.com/zjy-dev/tgen/internal/solution"
	"github.com/zjy-dev/tgen/internal/target"
)

var (
	t1 = target.New("Calc", "add", target.KindBranch, "b0:true")
	t2 = target.New("Calc", "add", target.KindBranch, "b0:false")
	t3 = target.New("Calc", "div", target.KindBranch, "b0:true")
	t4 = target.New("Calc", "div", target.KindLine, "12")
)

// executed builds an executed test case with size statements covering ts.
func executed(size int, ts ...target.Target) *solution.TestCase {
	stmts := make([]solution.Statement, size)
	for i := range stmts {
		stmts[i] = solution.Statement{Class: "Calc", Method: "add", Args: []int{i}}
	}
	tc := solution.NewTestCase(stmts...)
	o := solution.NewOutcome()
	o.ExecutedStatements = size
	for _, t := range ts {
		o.MarkCovered(t)
	}
	tc.SetOutcome(o)
	return tc
}

// withPenalty marks the first statement with the given number of disallowed
// constructs (0 to 3).
func withPenalty(tc *solution.TestCase, n int) *solution.TestCase {
	st := &tc.Statements[0]
	st.GenerableMock = n >= 3
	st.Mock = n >= 1
	st.PrivateAccess = n >= 2
	return tc
}

// recordingRegistry records RemoveCallable calls. If archive is set it calls
// back into it, which deadlocks if the notification is sent under the lock.
type recordingRegistry struct {
	mu      sync.Mutex
	removed []string
	archive Archive
}

func (r *recordingRegistry) RemoveCallable(className, methodName string) {
	if r.archive != nil {
		_ = r.archive.NumberOfCoveredTargets()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removed = append(r.removed, className+"."+methodName)
}

func (r *recordingRegistry) calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.removed...)
}
