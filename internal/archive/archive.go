// Package archive keeps the best test cases found so far for every coverage
// target of a search-based test generation run.
//
// Two strategies are provided. CoverageArchive stores one solution per
// covered target. MIOArchive keeps a bounded, ranked population of partial
// solutions per target and collapses it to a single entry once the target is
// covered. Both share the per-method bookkeeping of outstanding targets
// implemented here.
//
// An archive instance is safe for concurrent use: every operation runs under
// one mutex per instance.
package archive

import (
	"fmt"
	"math"
	"math/rand"
	"reflect"
	"sync"
	"time"

	"github.com/zjy-dev/tgen/internal/logger"
	"github.com/zjy-dev/tgen/internal/solution"
	"github.com/zjy-dev/tgen/internal/target"
)

const (
	// KindCoverage selects CoverageArchive.
	KindCoverage = "coverage"
	// KindMIO selects MIOArchive.
	KindMIO = "mio"

	// DefaultPopulationSize is the per-target capacity of a MIO archive.
	DefaultPopulationSize = 10
)

// Archive is the contract the search loop relies on.
type Archive interface {
	// Kind returns KindCoverage or KindMIO.
	Kind() string

	// AddTarget registers t. Registering the same target twice is a no-op.
	AddTarget(t target.Target)

	// AddTargets registers every target in ts.
	AddTargets(ts []target.Target)

	// UpdateArchive submits s, evaluated against t with the given raw fitness
	// (0 means covered). It reports whether the archive kept a copy of s.
	UpdateArchive(t target.Target, s solution.Solution, fitness float64) (bool, error)

	// IsBetterThanCurrent reports whether candidate should replace current
	// when both tie on fitness.
	IsBetterThanCurrent(current, candidate solution.Solution) bool

	NumberOfTargets() int
	NumberOfCoveredTargets() int
	NumberOfUncoveredTargets() int
	NumberOfCoveredTargetsOf(kind target.Kind) int
	CoveredTargets() []target.Target
	UncoveredTargets() []target.Target
	HasTarget(t target.Target) bool

	// OutstandingMethods maps method keys to their count of unresolved targets.
	OutstandingMethods() map[string]int

	// Solutions returns clones of the distinct covering solutions.
	Solutions() []solution.Solution

	// SolutionFor returns a clone of the covering solution of t, or nil.
	SolutionFor(t target.Target) (solution.Solution, error)

	// HasSolution reports whether t is covered.
	HasSolution(t target.Target) (bool, error)

	// RandomSolution returns a clone of a random covering solution, or nil.
	RandomSolution() solution.Solution

	// Solution returns a clone of a stored solution suited to re-seed the
	// search population, or nil when the archive is empty.
	Solution() solution.Solution

	// IsEmpty reports whether nothing is stored.
	IsEmpty() bool

	// ShrinkSolutions lowers the per-target capacity to n.
	ShrinkSolutions(n int) error

	// MergeArchiveAndSolution returns a copy of suite extended with archived
	// solutions for every target the suite does not cover yet.
	MergeArchiveAndSolution(suite *solution.Suite) *solution.Suite

	HasBeenUpdated() bool
	ClearUpdated()

	// Snapshot returns a read-only summary.
	Snapshot() Snapshot

	// Reset forgets every target and solution.
	Reset()
}

// CallableRegistry is the test-surface collaborator told when all targets of
// a method are resolved, so the generator stops calling that method.
//
// RemoveCallable is invoked after the archive lock is released; it may call
// back into the archive.
type CallableRegistry interface {
	RemoveCallable(className, methodName string)
}

type nopRegistry struct{}

func (nopRegistry) RemoveCallable(string, string) {}

// Option configures an archive.
type Option func(*options)

type options struct {
	comparator     Comparator
	registry       CallableRegistry
	rng            *rand.Rand
	populationSize int
}

func defaultOptions() options {
	return options{
		comparator:     PenaltyComparator{},
		registry:       nopRegistry{},
		populationSize: DefaultPopulationSize,
	}
}

// WithComparator sets the tie-break policy.
func WithComparator(c Comparator) Option {
	return func(o *options) {
		if c != nil {
			o.comparator = c
		}
	}
}

// WithRegistry sets the collaborator notified of fully covered methods.
func WithRegistry(r CallableRegistry) Option {
	return func(o *options) {
		if r != nil {
			o.registry = r
		}
	}
}

// WithRand sets the random source. It is only used under the archive lock.
func WithRand(r *rand.Rand) Option {
	return func(o *options) { o.rng = r }
}

// WithSeed seeds a private random source.
func WithSeed(seed int64) Option {
	return func(o *options) { o.rng = rand.New(rand.NewSource(seed)) }
}

// WithPopulationSize sets the initial per-target capacity of a MIO archive.
func WithPopulationSize(n int) Option {
	return func(o *options) { o.populationSize = n }
}

// New creates an archive of the given kind.
func New(kind string, opts ...Option) (Archive, error) {
	switch kind {
	case KindCoverage:
		return NewCoverageArchive(opts...), nil
	case KindMIO:
		return NewMIOArchive(opts...)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownArchiveKind, kind)
	}
}

// base holds what both strategies share: target registration, the
// method -> outstanding targets index, and the updated flag.
type base struct {
	mu sync.Mutex

	kind     string
	cmp      Comparator
	registry CallableRegistry
	rng      *rand.Rand

	targets     []target.Target // registration order
	registered  map[target.Target]struct{}
	outstanding map[string]map[target.Target]struct{}
	updated     bool

	// pending holds one target per newly resolved method; drained by unlock.
	pending []target.Target

	// last remembers the most recent private copy so that one solution
	// submitted for several targets is stored once.
	last struct {
		src     solution.Solution
		outcome *solution.Outcome
		copy    solution.Solution
		// state is src as it was when copied, before trimming.
		state solution.Solution
	}
}

// cloneOf returns the archive's private copy of s. The copy is shared with
// the previous call when s is the same unchanged solution with the same
// outcome and the same content as when it was copied. trim, if set, is
// applied to fresh copies only.
func (b *base) cloneOf(s solution.Solution, trim func(solution.Solution)) solution.Solution {
	o := s.LastOutcome()
	if o != nil && !s.IsChanged() && b.last.src == s && b.last.outcome == o &&
		reflect.DeepEqual(s, b.last.state) {
		return b.last.copy
	}
	c := s.Clone()
	state := c
	if trim != nil {
		state = s.Clone()
		trim(c)
	}
	b.last.src, b.last.outcome, b.last.copy, b.last.state = s, o, c, state
	if o == nil || s.IsChanged() {
		b.last.src = nil
	}
	return c
}

func (b *base) init(kind string, o options) {
	b.kind = kind
	b.cmp = o.comparator
	b.registry = o.registry
	b.rng = o.rng
	if b.rng == nil {
		b.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	b.registered = make(map[target.Target]struct{})
	b.outstanding = make(map[string]map[target.Target]struct{})
}

// unlock releases the lock, then delivers queued registry notifications.
func (b *base) unlock() {
	pending := b.pending
	b.pending = nil
	b.mu.Unlock()

	for _, t := range pending {
		logger.Info("[Archive] All targets of %s.%s resolved, removing it from the test surface", t.Class, t.Method)
		b.registry.RemoveCallable(t.Class, t.Method)
	}
}

// register adds t to the registration order and to its method's outstanding
// set. It returns false if t was already registered.
func (b *base) register(t target.Target) bool {
	if _, ok := b.registered[t]; ok {
		return false
	}
	b.registered[t] = struct{}{}
	b.targets = append(b.targets, t)

	key := t.MethodKey()
	set, ok := b.outstanding[key]
	if !ok {
		set = make(map[target.Target]struct{})
		b.outstanding[key] = set
	}
	set[t] = struct{}{}
	return true
}

// resolve removes t from its method's outstanding set. When the set empties
// the method key is dropped and a notification is queued.
func (b *base) resolve(t target.Target) {
	key := t.MethodKey()
	set, ok := b.outstanding[key]
	if !ok {
		return
	}
	if _, ok := set[t]; !ok {
		return
	}
	delete(set, t)
	if len(set) == 0 {
		delete(b.outstanding, key)
		b.pending = append(b.pending, t)
	}
}

func (b *base) checkRegistered(t target.Target) error {
	if _, ok := b.registered[t]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTarget, t)
	}
	return nil
}

func (b *base) resetBase() {
	b.targets = nil
	b.registered = make(map[target.Target]struct{})
	b.outstanding = make(map[string]map[target.Target]struct{})
	b.updated = false
	b.pending = nil
	b.last.src, b.last.outcome, b.last.copy, b.last.state = nil, nil, nil, nil
}

// Kind implements Archive.
func (b *base) Kind() string { return b.kind }

// IsBetterThanCurrent implements Archive by delegating to the comparator.
func (b *base) IsBetterThanCurrent(current, candidate solution.Solution) bool {
	return b.cmp.IsBetterThanCurrent(current, candidate)
}

// NumberOfTargets implements Archive.
func (b *base) NumberOfTargets() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.targets)
}

// HasTarget implements Archive.
func (b *base) HasTarget(t target.Target) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.registered[t]
	return ok
}

// OutstandingMethods implements Archive.
func (b *base) OutstandingMethods() map[string]int {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]int, len(b.outstanding))
	for k, set := range b.outstanding {
		out[k] = len(set)
	}
	return out
}

// HasBeenUpdated implements Archive.
func (b *base) HasBeenUpdated() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.updated
}

// ClearUpdated implements Archive.
func (b *base) ClearUpdated() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.updated = false
}

// checkFitness rejects raw fitness values the archive cannot interpret.
func checkFitness(fitness float64) error {
	if math.IsNaN(fitness) || fitness < 0 {
		return fmt.Errorf("%w: %v", ErrFitnessRange, fitness)
	}
	return nil
}

// Normalize maps a raw fitness in [0, +Inf] to [0, 1].
func Normalize(x float64) float64 {
	if math.IsInf(x, 1) {
		return 1
	}
	return x / (1 + x)
}

// uniqueClones clones each distinct solution once, preserving order.
func uniqueClones(in []solution.Solution) []solution.Solution {
	out := uniqueRefs(in)
	for i, s := range out {
		out[i] = s.Clone()
	}
	return out
}

// uniqueRefs drops repeated references, preserving order.
func uniqueRefs(in []solution.Solution) []solution.Solution {
	seen := make(map[solution.Solution]struct{}, len(in))
	out := make([]solution.Solution, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func countDistinct(in []solution.Solution) int {
	seen := make(map[solution.Solution]struct{}, len(in))
	for _, s := range in {
		seen[s] = struct{}{}
	}
	return len(seen)
}

// mergeInto appends a clone of every archived solution that covers a target
// the merged suite misses. Each archived solution is added at most once.
func (b *base) mergeInto(merged *solution.Suite, best func(target.Target) solution.Solution) int {
	added := make(map[solution.Solution]struct{})
	for _, t := range b.targets {
		if merged.Covers(t) {
			continue
		}
		s := best(t)
		if s == nil {
			continue
		}
		if _, ok := added[s]; ok {
			continue
		}
		added[s] = struct{}{}
		merged.AddTest(s.Clone())
	}
	return len(added)
}

// rescore evaluates merged against every fitness function original was
// scored with.
func rescore(merged, original *solution.Suite) {
	for _, f := range original.Functions() {
		merged.Score(f)
	}
}
