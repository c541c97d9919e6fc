package archive

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zjy-dev/tgen/internal/solution"
	"github.com/zjy-dev/tgen/internal/target"
)

func newTestCoverageArchive(opts ...Option) *CoverageArchive {
	return NewCoverageArchive(append([]Option{WithSeed(1)}, opts...)...)
}

func assertDisjoint(t *testing.T, a *CoverageArchive) {
	t.Helper()
	covered := a.CoveredTargets()
	uncovered := a.UncoveredTargets()
	assert.Equal(t, a.NumberOfTargets(), len(covered)+len(uncovered))
	for _, c := range covered {
		assert.NotContains(t, uncovered, c)
	}
}

func TestCoverageArchive_AddTarget(t *testing.T) {
	t.Run("should register targets once", func(t *testing.T) {
		a := newTestCoverageArchive()
		a.AddTarget(t1)
		a.AddTarget(t1)
		a.AddTargets([]target.Target{t1, t2})

		assert.Equal(t, 2, a.NumberOfTargets())
		assert.Equal(t, map[string]int{"Calcadd": 2}, a.OutstandingMethods())
		assert.Equal(t, []target.Target{t1, t2}, a.UncoveredTargets())
		assert.True(t, a.HasTarget(t1))
		assert.False(t, a.HasTarget(t3))
	})
}

func TestCoverageArchive_UpdateArchive(t *testing.T) {
	t.Run("should store a clone of a covering solution", func(t *testing.T) {
		a := newTestCoverageArchive()
		a.AddTargets([]target.Target{t1, t2})
		tc := executed(3, t1)

		ok, err := a.UpdateArchive(t1, tc, 0)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.True(t, a.HasBeenUpdated())
		assert.Equal(t, []target.Target{t1}, a.CoveredTargets())
		assert.Equal(t, []target.Target{t2}, a.UncoveredTargets())

		tc.Append(solution.Statement{Class: "Calc", Method: "sub"})
		stored, err := a.SolutionFor(t1)
		require.NoError(t, err)
		assert.Equal(t, 3, stored.Size(), "archive must not alias the caller's solution")
		assertDisjoint(t, a)
	})

	t.Run("should ignore non-covering fitness", func(t *testing.T) {
		a := newTestCoverageArchive()
		a.AddTarget(t1)

		ok, err := a.UpdateArchive(t1, executed(1), 0.3)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.False(t, a.HasBeenUpdated())
		assert.True(t, a.IsEmpty())
		assertDisjoint(t, a)
	})

	t.Run("should replace only with a better solution", func(t *testing.T) {
		a := newTestCoverageArchive()
		a.AddTarget(t1)
		_, _ = a.UpdateArchive(t1, executed(4, t1), 0)

		ok, err := a.UpdateArchive(t1, executed(5, t1), 0)
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = a.UpdateArchive(t1, executed(2, t1), 0)
		require.NoError(t, err)
		assert.True(t, ok)

		stored, _ := a.SolutionFor(t1)
		assert.Equal(t, 2, stored.Size())
		assert.Equal(t, 1, a.NumberOfCoveredTargets())
	})

	t.Run("should fail on precondition violations", func(t *testing.T) {
		a := newTestCoverageArchive()
		a.AddTarget(t1)

		_, err := a.UpdateArchive(t3, executed(1), 0)
		assert.ErrorIs(t, err, ErrUnknownTarget)

		_, err = a.UpdateArchive(t1, nil, 0)
		assert.ErrorIs(t, err, ErrNilSolution)

		_, err = a.UpdateArchive(t1, executed(1), -1)
		assert.ErrorIs(t, err, ErrFitnessRange)

		_, err = a.UpdateArchive(t1, executed(1), math.NaN())
		assert.ErrorIs(t, err, ErrFitnessRange)

		_, err = a.SolutionFor(t3)
		assert.ErrorIs(t, err, ErrUnknownTarget)

		_, err = a.HasSolution(t3)
		assert.ErrorIs(t, err, ErrUnknownTarget)
	})
}

func TestCoverageArchive_Bookkeeping(t *testing.T) {
	t.Run("should notify the registry once per resolved method", func(t *testing.T) {
		reg := &recordingRegistry{}
		a := newTestCoverageArchive(WithRegistry(reg))
		reg.archive = a
		a.AddTargets([]target.Target{t1, t2, t3})

		_, _ = a.UpdateArchive(t1, executed(2, t1), 0)
		assert.Empty(t, reg.calls())
		assert.Equal(t, map[string]int{"Calcadd": 1, "Calcdiv": 1}, a.OutstandingMethods())

		_, _ = a.UpdateArchive(t2, executed(2, t2), 0)
		assert.Equal(t, []string{"Calc.add"}, reg.calls())

		// a better solution for an already resolved target must not notify again
		_, _ = a.UpdateArchive(t2, executed(1, t2), 0)
		assert.Equal(t, []string{"Calc.add"}, reg.calls())
		assert.Equal(t, map[string]int{"Calcdiv": 1}, a.OutstandingMethods())
	})

	t.Run("should count covered targets by kind", func(t *testing.T) {
		a := newTestCoverageArchive()
		a.AddTargets([]target.Target{t1, t3, t4})
		_, _ = a.UpdateArchive(t1, executed(1, t1), 0)
		_, _ = a.UpdateArchive(t4, executed(1, t4), 0)

		assert.Equal(t, 1, a.NumberOfCoveredTargetsOf(target.KindBranch))
		assert.Equal(t, 1, a.NumberOfCoveredTargetsOf(target.KindLine))
		assert.Equal(t, 0, a.NumberOfCoveredTargetsOf(target.KindMutant))
	})
}

func TestCoverageArchive_Solutions(t *testing.T) {
	t.Run("should return distinct clones", func(t *testing.T) {
		a := newTestCoverageArchive()
		a.AddTargets([]target.Target{t1, t2, t3})
		both := executed(2, t1, t2)
		_, _ = a.UpdateArchive(t1, both, 0)
		_, _ = a.UpdateArchive(t3, executed(1, t3), 0)

		sols := a.Solutions()
		assert.Len(t, sols, 2)
		for _, s := range sols {
			assert.NotSame(t, both, s)
		}
	})

	t.Run("should return nil from an empty archive", func(t *testing.T) {
		a := newTestCoverageArchive()
		a.AddTarget(t1)
		assert.Nil(t, a.RandomSolution())
		assert.Nil(t, a.Solution())
		assert.Empty(t, a.Solutions())

		s, err := a.SolutionFor(t1)
		require.NoError(t, err)
		assert.Nil(t, s)
	})

	t.Run("should sample proportionally to covered targets", func(t *testing.T) {
		a := newTestCoverageArchive()
		a.AddTargets([]target.Target{t1, t2, t3})
		wide := executed(2, t1)
		narrow := executed(3, t3)
		_, _ = a.UpdateArchive(t1, wide, 0)
		_, _ = a.UpdateArchive(t2, wide, 0)
		_, _ = a.UpdateArchive(t3, narrow, 0)

		counts := map[int]int{}
		for i := 0; i < 3000; i++ {
			counts[a.RandomSolution().Size()]++
		}
		assert.InDelta(t, 2000, counts[2], 150)
		assert.InDelta(t, 1000, counts[3], 150)
	})
}

func TestCoverageArchive_MergeArchiveAndSolution(t *testing.T) {
	t.Run("should add each archived solution once", func(t *testing.T) {
		a := newTestCoverageArchive()
		a.AddTargets([]target.Target{t1, t2, t3})
		both := executed(2, t1, t2)
		_, _ = a.UpdateArchive(t1, both, 0)
		_, _ = a.UpdateArchive(t2, both, 0)

		merged := a.MergeArchiveAndSolution(solution.NewSuite())
		assert.Equal(t, 1, merged.Len())
		assert.True(t, merged.Covers(t1))
		assert.True(t, merged.Covers(t2))
		assert.False(t, merged.Covers(t3))
	})

	t.Run("should skip targets the suite already covers", func(t *testing.T) {
		a := newTestCoverageArchive()
		a.AddTargets([]target.Target{t1, t3})
		_, _ = a.UpdateArchive(t1, executed(2, t1), 0)
		_, _ = a.UpdateArchive(t3, executed(2, t3), 0)

		own := executed(5, t1)
		merged := a.MergeArchiveAndSolution(solution.NewSuite(own))
		require.Equal(t, 2, merged.Len())
		assert.Equal(t, own.ID(), merged.Tests[0].ID())
		assert.True(t, merged.Tests[1].Covers(t3))
	})

	t.Run("should drop stale and failed tests", func(t *testing.T) {
		a := newTestCoverageArchive()
		a.AddTarget(t1)
		_, _ = a.UpdateArchive(t1, executed(1, t1), 0)

		changed := executed(3, t1)
		changed.MarkChanged()
		failed := executed(3)
		failed.Outcome.Timeout = true
		thrown := executed(3)
		thrown.Outcome.Exception = true
		fresh := executed(4)

		suite := solution.NewSuite(changed, failed, thrown, fresh)
		merged := a.MergeArchiveAndSolution(suite)

		require.Equal(t, 2, merged.Len())
		assert.Equal(t, fresh.ID(), merged.Tests[0].ID())
		assert.True(t, merged.Tests[1].Covers(t1))
		assert.Equal(t, 4, suite.Len(), "input suite must be left alone")
	})

	t.Run("should rescore with the suite's fitness functions", func(t *testing.T) {
		a := newTestCoverageArchive()
		a.AddTargets([]target.Target{t1, t3})
		_, _ = a.UpdateArchive(t3, executed(2, t3), 0)

		cov := &solution.CoverageFitness{Targets: []target.Target{t1, t3}}
		suite := solution.NewSuite(executed(3, t1))
		assert.Equal(t, 1.0, suite.Score(cov))

		merged := a.MergeArchiveAndSolution(suite)
		v, ok := merged.Fitness("coverage")
		require.True(t, ok)
		assert.Equal(t, 0.0, v)
		_, ok = merged.Fitness("size")
		assert.False(t, ok)
	})

	t.Run("should accept a nil suite", func(t *testing.T) {
		a := newTestCoverageArchive()
		a.AddTarget(t1)
		_, _ = a.UpdateArchive(t1, executed(1, t1), 0)

		merged := a.MergeArchiveAndSolution(nil)
		assert.Equal(t, 1, merged.Len())
	})
}

func TestCoverageArchive_Reset(t *testing.T) {
	a := newTestCoverageArchive()
	a.AddTargets([]target.Target{t1, t2})
	_, _ = a.UpdateArchive(t1, executed(1, t1), 0)

	a.Reset()
	assert.Equal(t, 0, a.NumberOfTargets())
	assert.True(t, a.IsEmpty())
	assert.False(t, a.HasBeenUpdated())
	assert.Empty(t, a.OutstandingMethods())
	assert.Empty(t, a.CoveredTargets())

	a.AddTarget(t1)
	assert.Equal(t, []target.Target{t1}, a.UncoveredTargets())
}

func TestCoverageArchive_Snapshot(t *testing.T) {
	a := newTestCoverageArchive()
	a.AddTargets([]target.Target{t1, t2, t4})
	both := executed(1, t1, t2)
	_, _ = a.UpdateArchive(t1, both, 0)
	_, _ = a.UpdateArchive(t2, both, 0)

	snap := a.Snapshot()
	assert.Equal(t, KindCoverage, snap.Kind)
	assert.Equal(t, 3, snap.Targets)
	assert.Equal(t, 2, snap.Covered)
	assert.Equal(t, 1, snap.Solutions)
	assert.Equal(t, 2, snap.CoveredByKind[target.KindBranch])
	assert.Equal(t, 1, snap.TargetsByKind[target.KindLine])
	assert.Equal(t, map[string]int{"Calcdiv": 1}, snap.Outstanding)
	assert.Nil(t, snap.Populations)
}
