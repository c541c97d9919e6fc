// Package search runs a simple evolutionary test generation loop against the
// sample subject, keeping its best tests in an archive.
package search

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zjy-dev/tgen/internal/archive"
	"github.com/zjy-dev/tgen/internal/logger"
	"github.com/zjy-dev/tgen/internal/sample"
	"github.com/zjy-dev/tgen/internal/solution"
	"github.com/zjy-dev/tgen/internal/state"
	"github.com/zjy-dev/tgen/internal/target"
)

// Config holds configuration for the search engine.
type Config struct {
	// Core components
	Archive   archive.Archive
	Subject   *sample.Subject
	Generator *sample.Generator

	// Optional progress tracking
	State state.Manager
	UI    *state.TerminalUI

	// Search parameters
	Generations       int     // generation budget
	Population        int     // tests bred per generation
	Workers           int     // parallel evaluations
	Seed              int64   // seed of the breeding rng
	ReseedRate        float64 // chance an offspring comes from the archive
	ExploitationStart float64 // budget share after which populations shrink
	PopulationSize    int     // per-target capacity before shrinking
	SaveEvery         int     // generations between state saves
}

// Engine implements the generation loop.
type Engine struct {
	cfg     Config
	rng     *rand.Rand
	targets []target.Target

	current    []*solution.TestCase
	generation int
	capacity   int
	stale      int // generations without an archive update

	evaluations atomic.Int64
	updates     atomic.Int64
	startTime   time.Time
}

// NewEngine creates a new search engine.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Archive == nil {
		return nil, errors.New("search engine needs an archive")
	}
	if cfg.Subject == nil || cfg.Generator == nil {
		return nil, errors.New("search engine needs a subject and a generator")
	}
	if cfg.Population <= 0 {
		cfg.Population = 1
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.PopulationSize <= 0 {
		cfg.PopulationSize = archive.DefaultPopulationSize
	}
	if cfg.SaveEvery <= 0 {
		cfg.SaveEvery = 10
	}
	return &Engine{
		cfg:      cfg,
		rng:      rand.New(rand.NewSource(cfg.Seed)),
		capacity: cfg.PopulationSize,
	}, nil
}

// Run searches until the budget is spent, every target is covered or ctx is
// done. It returns the last generation merged with the archive. On
// cancellation the partial result is returned together with ctx.Err().
func (e *Engine) Run(ctx context.Context) (*solution.Suite, error) {
	e.startTime = time.Now()
	e.targets = e.cfg.Subject.Targets()
	e.cfg.Archive.AddTargets(e.targets)
	if e.cfg.State != nil {
		e.cfg.State.Start(e.cfg.Archive.Kind(), e.cfg.Archive.NumberOfTargets())
	}

	logger.Info("[Search] Starting search: %d targets, %d generations of %d tests, %s archive",
		len(e.targets), e.cfg.Generations, e.cfg.Population, e.cfg.Archive.Kind())

	var runErr error
	for gen := 0; gen < e.cfg.Generations; gen++ {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}

		if err := e.exploit(gen); err != nil {
			return nil, err
		}

		offspring := e.breed()
		if err := e.evaluate(ctx, offspring); err != nil {
			if ctx.Err() != nil {
				runErr = ctx.Err()
				break
			}
			return nil, err
		}
		e.current = offspring
		e.generation = gen + 1

		if e.cfg.Archive.HasBeenUpdated() {
			e.stale = 0
			e.cfg.Archive.ClearUpdated()
		} else {
			e.stale++
		}
		e.recordProgress()

		covered := e.cfg.Archive.NumberOfCoveredTargets()
		logger.Info("[Search] Generation %d/%d: %d/%d targets covered, %d evaluations",
			e.generation, e.cfg.Generations, covered, len(e.targets), e.evaluations.Load())
		if e.stale > 0 && e.stale%10 == 0 {
			logger.Debug("[Search] No archive update for %d generations", e.stale)
		}

		if e.generation%e.cfg.SaveEvery == 0 {
			e.saveState()
		}

		if e.cfg.Archive.NumberOfUncoveredTargets() == 0 {
			logger.Info("All targets covered! Search complete.")
			break
		}
	}

	if runErr != nil {
		logger.Warn("[Search] Interrupted after %d generations: %v", e.generation, runErr)
	}

	suite := e.result()
	e.saveState()
	if e.cfg.UI != nil {
		e.cfg.UI.Clear()
	}
	e.printSummary(suite)
	return suite, runErr
}

// capacityAt is the exploitation schedule: the full population size until
// ExploitationStart of the budget is spent, then linearly down to 1 at the
// last generation.
func (e *Engine) capacityAt(gen int) int {
	size := e.cfg.PopulationSize
	total := e.cfg.Generations
	start := int(math.Ceil(e.cfg.ExploitationStart * float64(total)))
	if size <= 1 || gen < start || start >= total {
		return size
	}
	span := total - start
	if span <= 1 {
		return 1
	}
	progress := float64(gen-start) / float64(span-1)
	n := size - int(math.Round(progress*float64(size-1)))
	if n < 1 {
		n = 1
	}
	return n
}

func (e *Engine) exploit(gen int) error {
	n := e.capacityAt(gen)
	if n >= e.capacity {
		return nil
	}
	if err := e.cfg.Archive.ShrinkSolutions(n); err != nil {
		return fmt.Errorf("failed to shrink archive at generation %d: %w", gen, err)
	}
	logger.Debug("[Search] Generation %d: per-target capacity %d -> %d", gen, e.capacity, n)
	e.capacity = n
	return nil
}

// breed creates the next generation. It runs on the calling goroutine only,
// since neither the rng nor the generator is safe for concurrent use.
func (e *Engine) breed() []*solution.TestCase {
	out := make([]*solution.TestCase, e.cfg.Population)
	for i := range out {
		out[i] = e.offspring(i)
	}
	return out
}

func (e *Engine) offspring(i int) *solution.TestCase {
	if e.rng.Float64() < e.cfg.ReseedRate {
		if tc, ok := e.cfg.Archive.Solution().(*solution.TestCase); ok {
			return e.mutant(tc)
		}
	}
	if i < len(e.current) && e.rng.Intn(2) == 0 {
		return e.mutant(e.current[i].CloneTestCase())
	}
	return e.cfg.Generator.Random()
}

// mutant mutates tc in place under a fresh ID; tc must not be shared.
func (e *Engine) mutant(tc *solution.TestCase) *solution.TestCase {
	tc.TestID = solution.NewID()
	e.cfg.Generator.Mutate(tc)
	return tc
}

// evaluate executes tests in parallel and submits each of them to the archive
// for every target.
func (e *Engine) evaluate(ctx context.Context, tests []*solution.TestCase) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Workers)
	for _, tc := range tests {
		tc := tc // per-iteration copy; go.mod targets go 1.21 loop semantics
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return e.evaluateOne(tc)
		})
	}
	return g.Wait()
}

func (e *Engine) evaluateOne(tc *solution.TestCase) error {
	res := e.cfg.Subject.Execute(tc)
	e.evaluations.Add(1)
	for _, t := range e.targets {
		accepted, err := e.cfg.Archive.UpdateArchive(t, tc, res.Fitness(t))
		if err != nil {
			return fmt.Errorf("failed to update archive with test %s for %s: %w", tc.ID(), t, err)
		}
		if accepted {
			e.updates.Add(1)
		}
	}
	return nil
}

// result scores the last generation and merges the archive into it.
func (e *Engine) result() *solution.Suite {
	candidate := solution.NewSuite()
	for _, tc := range e.current {
		candidate.AddTest(tc)
	}
	candidate.Score(&solution.CoverageFitness{Targets: e.targets})
	candidate.Score(solution.SizeFitness{})
	return e.cfg.Archive.MergeArchiveAndSolution(candidate)
}

func (e *Engine) recordProgress() {
	if e.cfg.State == nil {
		return
	}
	e.cfg.State.RecordGeneration(e.generation, e.evaluations.Load(), e.updates.Load())
	e.cfg.State.UpdateCoverage(e.cfg.Archive.NumberOfCoveredTargets())
	if e.cfg.UI != nil {
		e.cfg.UI.SetState(e.cfg.State.GetState())
		e.cfg.UI.Render()
	}
}

// saveState persists the run state.
func (e *Engine) saveState() {
	if e.cfg.State == nil {
		return
	}
	if err := e.cfg.State.Save(); err != nil {
		logger.Warn("Failed to save run state: %v", err)
	}
}

// printSummary prints a summary of the search run.
func (e *Engine) printSummary(suite *solution.Suite) {
	elapsed := time.Since(e.startTime)
	snap := e.cfg.Archive.Snapshot()

	logger.Info("=========================================")
	logger.Info("      SEARCH SUMMARY")
	logger.Info("=========================================")
	logger.Info("Duration:        %v", elapsed.Round(time.Millisecond))
	logger.Info("Generations:     %d", e.generation)
	logger.Info("Evaluations:     %d", e.evaluations.Load())
	logger.Info("Archive updates: %d", e.updates.Load())
	logger.Info("-----------------------------------------")
	pct := 0.0
	if snap.Targets > 0 {
		pct = float64(snap.Covered) * 100 / float64(snap.Targets)
	}
	logger.Info("Covered targets: %d/%d (%.1f%%)", snap.Covered, snap.Targets, pct)
	for _, k := range target.Kinds() {
		if total := snap.TargetsByKind[k]; total > 0 {
			logger.Info("  %-10s %d/%d", k, snap.CoveredByKind[k], total)
		}
	}
	logger.Info("Final suite:     %d tests, %d statements", suite.Len(), suite.Size())
	logger.Info("=========================================")
}

// Generation returns the number of completed generations.
func (e *Engine) Generation() int {
	return e.generation
}

// Evaluations returns the number of executed tests.
func (e *Engine) Evaluations() int64 {
	return e.evaluations.Load()
}

// Updates returns the number of accepted archive submissions.
func (e *Engine) Updates() int64 {
	return e.updates.Load()
}
