package archive

import (
	"fmt"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zjy-dev/tgen/internal/solution"
	"github.com/zjy-dev/tgen/internal/target"
)

func TestNew(t *testing.T) {
	t.Run("should create archives by kind", func(t *testing.T) {
		a, err := New(KindCoverage)
		require.NoError(t, err)
		assert.IsType(t, &CoverageArchive{}, a)

		a, err = New(KindMIO, WithPopulationSize(5))
		require.NoError(t, err)
		require.IsType(t, &MIOArchive{}, a)
		assert.Equal(t, 5, a.(*MIOArchive).PopulationSize())
	})

	t.Run("should reject unknown kinds", func(t *testing.T) {
		_, err := New("wholesuite")
		assert.ErrorIs(t, err, ErrUnknownArchiveKind)
	})

	t.Run("should propagate constructor errors", func(t *testing.T) {
		_, err := New(KindMIO, WithPopulationSize(-1))
		assert.ErrorIs(t, err, ErrPopulationSize)
	})

	t.Run("should keep independent state per instance", func(t *testing.T) {
		a, _ := New(KindCoverage)
		b, _ := New(KindCoverage)
		a.AddTarget(t1)
		assert.Equal(t, 1, a.NumberOfTargets())
		assert.Equal(t, 0, b.NumberOfTargets())
	})
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, 0.0, Normalize(0))
	assert.Equal(t, 0.5, Normalize(1))
	assert.InDelta(t, 0.75, Normalize(3), 1e-12)
	assert.Equal(t, 1.0, Normalize(math.Inf(1)))
}

func TestArchive_SharedCopies(t *testing.T) {
	t.Run("should store one copy for consecutive submissions", func(t *testing.T) {
		a := newTestCoverageArchive()
		a.AddTargets([]target.Target{t1, t2})
		tc := executed(2, t1, t2)
		_, _ = a.UpdateArchive(t1, tc, 0)
		_, _ = a.UpdateArchive(t2, tc, 0)
		assert.Same(t, a.covered[t1], a.covered[t2])
	})

	t.Run("should not share a copy after the solution changed", func(t *testing.T) {
		a := newTestCoverageArchive()
		a.AddTargets([]target.Target{t1, t2})
		tc := executed(2, t1, t2)
		_, _ = a.UpdateArchive(t1, tc, 0)
		tc.MarkChanged()
		_, _ = a.UpdateArchive(t2, tc, 0)
		assert.NotSame(t, a.covered[t1], a.covered[t2])
	})

	t.Run("should copy again after the solution was chopped", func(t *testing.T) {
		a := newTestCoverageArchive()
		a.AddTargets([]target.Target{t1, t3})
		tc := executed(4, t1, t3)
		_, _ = a.UpdateArchive(t1, tc, 0)
		tc.Chop(1)
		_, _ = a.UpdateArchive(t3, tc, 0)

		assert.NotSame(t, a.covered[t1], a.covered[t3])
		assert.Equal(t, 4, a.covered[t1].Size())
		assert.Equal(t, 1, a.covered[t3].Size())
	})

	t.Run("should copy again after a statement was edited in place", func(t *testing.T) {
		a := newTestCoverageArchive()
		a.AddTargets([]target.Target{t1, t3})
		tc := executed(2, t1, t3)
		_, _ = a.UpdateArchive(t1, tc, 0)
		tc.Statements[1].Args[0] = 99
		_, _ = a.UpdateArchive(t3, tc, 0)

		require.NotSame(t, a.covered[t1], a.covered[t3])
		stored := a.covered[t3].(*solution.TestCase)
		assert.Equal(t, []int{99}, stored.Statements[1].Args)
		assert.Equal(t, []int{1}, a.covered[t1].(*solution.TestCase).Statements[1].Args)
	})

	t.Run("should share a trimmed copy across targets", func(t *testing.T) {
		a := newTestMIOArchive(t)
		a.AddTargets([]target.Target{t1, t2})
		tc := executed(5, t1, t2)
		tc.Outcome.Exception = true
		tc.Outcome.FirstExceptionAt = 1
		_, _ = a.UpdateArchive(t1, tc, 0)
		_, _ = a.UpdateArchive(t2, tc, 0)

		first := a.populations[t1].BestSolutionIfAny()
		assert.Same(t, first, a.populations[t2].BestSolutionIfAny())
		assert.Equal(t, 2, first.Size())
		assert.Equal(t, 5, tc.Size())
	})
}

// Each test in this group runs against both strategies.
func TestArchive_Contract(t *testing.T) {
	for _, kind := range []string{KindCoverage, KindMIO} {
		kind := kind
		t.Run(kind, func(t *testing.T) {
			t.Run("should cover targets with a zero fitness", func(t *testing.T) {
				a, err := New(kind, WithSeed(3))
				require.NoError(t, err)
				a.AddTargets([]target.Target{t1, t2})

				ok, err := a.UpdateArchive(t1, executed(2, t1), 0)
				require.NoError(t, err)
				assert.True(t, ok)

				has, err := a.HasSolution(t1)
				require.NoError(t, err)
				assert.True(t, has)
				assert.Equal(t, 1, a.NumberOfCoveredTargets())
				assert.Equal(t, 1, a.NumberOfUncoveredTargets())
				assert.False(t, a.IsEmpty())
				assert.NotNil(t, a.Solution())
				assert.NotNil(t, a.RandomSolution())
			})

			t.Run("should send registry notifications after releasing the lock", func(t *testing.T) {
				reg := &recordingRegistry{}
				a, err := New(kind, WithRegistry(reg))
				require.NoError(t, err)
				reg.archive = a
				a.AddTarget(t3)

				_, err = a.UpdateArchive(t3, executed(1, t3), 0)
				require.NoError(t, err)
				assert.Equal(t, []string{"Calc.div"}, reg.calls())
			})

			t.Run("should survive concurrent use", func(t *testing.T) {
				a, err := New(kind, WithSeed(5), WithPopulationSize(3))
				require.NoError(t, err)

				var targets []target.Target
				for i := 0; i < 8; i++ {
					targets = append(targets, target.New("Calc", fmt.Sprintf("m%d", i), target.KindMethod, "entry"))
				}
				a.AddTargets(targets)

				var wg sync.WaitGroup
				for w := 0; w < 8; w++ {
					wg.Add(1)
					go func(w int) {
						defer wg.Done()
						for i := 0; i < 50; i++ {
							tg := targets[(w+i)%len(targets)]
							fitness := float64(i % 4)
							_, err := a.UpdateArchive(tg, executed(1+i%5, tg), fitness)
							assert.NoError(t, err)
							a.Solution()
							a.Snapshot()
						}
					}(w)
				}
				wg.Wait()

				assert.Equal(t, len(targets), a.NumberOfCoveredTargets())
				assert.Empty(t, a.OutstandingMethods())
				assert.Len(t, a.MergeArchiveAndSolution(nil).Tests, len(targets))
			})
		})
	}
}
