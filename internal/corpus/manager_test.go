package corpus

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/zjy-dev/tgen/internal/solution"
	"github.com/zjy-dev/tgen/internal/target"
)

var (
	addTrue = target.New("Calc", "add", target.KindBranch, "b0:true")
	divExc  = target.New("Calc", "div", target.KindException, "b0")
)

func executedTest(exception bool, covered ...target.Target) *solution.TestCase {
	tc := solution.NewTestCase(
		solution.Statement{Class: "Calc", Method: "add", Args: []int{11, 3}},
		solution.Statement{Class: "Calc", Method: "div", Args: []int{5, 0}, Mock: true},
	)
	o := solution.NewOutcome()
	o.ExecutedStatements = 2
	o.MethodCalls = 2
	if exception {
		o.Exception = true
		o.FirstExceptionAt = 1
	}
	for _, t := range covered {
		o.MarkCovered(t)
	}
	tc.SetOutcome(o)
	return tc
}

func scoredSuite(tests ...solution.Solution) *solution.Suite {
	s := solution.NewSuite(tests...)
	s.Score(&solution.CoverageFitness{Targets: []target.Target{addTrue, divExc}})
	s.Score(solution.SizeFitness{})
	return s
}

func TestFileManager(t *testing.T) {
	t.Run("should initialize directory structure", func(t *testing.T) {
		dir := t.TempDir()
		m := NewFileManager(dir)
		require.NoError(t, m.Initialize())

		for _, sub := range []string{TestsDir, StateDir} {
			info, err := os.Stat(filepath.Join(dir, sub))
			require.NoError(t, err)
			assert.True(t, info.IsDir())
		}
		assert.Equal(t, filepath.Join(dir, TestsDir), m.GetTestsDir())
		assert.Equal(t, filepath.Join(dir, StateDir), filepath.Dir(m.GetStateManager().GetFilePath()))
	})

	t.Run("should round trip a suite", func(t *testing.T) {
		dir := t.TempDir()
		m := NewFileManager(dir)
		require.NoError(t, m.Initialize())

		a := executedTest(false, addTrue)
		b := executedTest(true, divExc)
		suite := scoredSuite(a, b)

		manifest, err := m.SaveSuite(suite)
		require.NoError(t, err)
		assert.Equal(t, suite.ID(), manifest.SuiteID)
		assert.Equal(t, 4, manifest.Statements)
		assert.Equal(t, 2, manifest.CoveredTargets)
		assert.Equal(t, map[string]float64{"coverage": 0, "size": 4}, manifest.Fitness)
		require.Len(t, manifest.Tests, 2)
		assert.Equal(t, "tests/id-000001-"+a.ID()+".json", manifest.Tests[0].File)
		assert.True(t, manifest.Tests[1].Exception)

		loaded, lm, err := m.LoadSuite()
		require.NoError(t, err)
		assert.Equal(t, suite.ID(), loaded.ID())
		assert.Equal(t, manifest.Tests, lm.Tests)
		require.Equal(t, 2, loaded.Len())

		got := loaded.Tests[0].(*solution.TestCase)
		assert.Equal(t, a.ID(), got.ID())
		assert.Equal(t, a.Statements, got.Statements)
		assert.False(t, got.IsChanged())
		assert.True(t, got.Covers(addTrue))
		assert.True(t, loaded.Covers(divExc))
		assert.Equal(t, 1, loaded.Tests[1].LastOutcome().FirstExceptionAt)
		assert.True(t, loaded.Tests[1].UsesDisallowedMocking())
	})

	t.Run("should replace a previous suite", func(t *testing.T) {
		dir := t.TempDir()
		m := NewFileManager(dir)
		require.NoError(t, m.Initialize())

		_, err := m.SaveSuite(scoredSuite(executedTest(false), executedTest(false), executedTest(false)))
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(m.GetTestsDir(), "notes.txt"), []byte("keep"), 0644))

		_, err = m.SaveSuite(scoredSuite(executedTest(false, addTrue)))
		require.NoError(t, err)

		entries, err := os.ReadDir(m.GetTestsDir())
		require.NoError(t, err)
		assert.Len(t, entries, 2, "one test file plus the unrelated file")

		loaded, _, err := m.LoadSuite()
		require.NoError(t, err)
		assert.Equal(t, 1, loaded.Len())
	})

	t.Run("should save an unexecuted test without outcome", func(t *testing.T) {
		m := NewFileManager(t.TempDir())
		tc := solution.NewTestCase(solution.Statement{Class: "Calc", Method: "add"})
		manifest, err := m.SaveSuite(solution.NewSuite(tc))
		require.NoError(t, err)
		assert.Nil(t, manifest.Fitness)
		assert.Empty(t, manifest.Tests[0].Covered)

		loaded, _, err := m.LoadSuite()
		require.NoError(t, err)
		assert.Nil(t, loaded.Tests[0].LastOutcome())
	})

	t.Run("should write a readable manifest", func(t *testing.T) {
		dir := t.TempDir()
		m := NewFileManager(dir)
		_, err := m.SaveSuite(scoredSuite(executedTest(false, addTrue)))
		require.NoError(t, err)

		data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
		require.NoError(t, err)
		var raw map[string]any
		require.NoError(t, yaml.Unmarshal(data, &raw))
		assert.Contains(t, raw, "suite_id")
		assert.Contains(t, raw, "tests")
		assert.EqualValues(t, 1, raw["covered_targets"])
	})

	t.Run("should report a missing suite", func(t *testing.T) {
		m := NewFileManager(t.TempDir())
		_, _, err := m.LoadSuite()
		assert.ErrorIs(t, err, ErrNoSuite)
		_, err = m.LoadManifest()
		assert.ErrorIs(t, err, ErrNoSuite)
	})

	t.Run("should detect a mismatched test file", func(t *testing.T) {
		dir := t.TempDir()
		m := NewFileManager(dir)
		a := executedTest(false)
		manifest, err := m.SaveSuite(solution.NewSuite(a))
		require.NoError(t, err)

		other := executedTest(false)
		manifest.Tests[0].ID = other.ID()
		data, err := yaml.Marshal(manifest)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(dir, ManifestFile), data, 0644))

		_, _, err = m.LoadSuite()
		assert.ErrorContains(t, err, "manifest expects id")
	})

	t.Run("should reject a corrupted manifest", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, ManifestFile), []byte("tests: [unclosed"), 0644))
		_, err := NewFileManager(dir).LoadManifest()
		assert.ErrorContains(t, err, "failed to parse manifest")
	})

	t.Run("should satisfy the Manager interface", func(t *testing.T) {
		var _ Manager = NewFileManager(t.TempDir())
	})
}
