package archive

import "github.com/zjy-dev/tgen/internal/target"

// Snapshot is a point-in-time summary of an archive, used for reporting.
type Snapshot struct {
	Kind          string
	Targets       int
	Covered       int
	TargetsByKind map[target.Kind]int
	CoveredByKind map[target.Kind]int
	// Outstanding maps method keys to their unresolved target count.
	Outstanding map[string]int
	// Solutions is the number of distinct covering solutions.
	Solutions int
	// Populations is filled by MIO archives only, in registration order.
	Populations []PopulationStats
}

// PopulationStats describes one MIO population.
type PopulationStats struct {
	Target   target.Target
	Capacity int
	Counter  int
	Size     int
	Covered  bool
	BestH    float64
}

// snapshot fills the strategy-independent part. Caller holds the lock.
func (b *base) snapshot(covered func(target.Target) bool) Snapshot {
	snap := Snapshot{
		Kind:          b.kind,
		Targets:       len(b.targets),
		TargetsByKind: make(map[target.Kind]int),
		CoveredByKind: make(map[target.Kind]int),
		Outstanding:   make(map[string]int, len(b.outstanding)),
	}
	for _, t := range b.targets {
		snap.TargetsByKind[t.Kind]++
		if covered(t) {
			snap.Covered++
			snap.CoveredByKind[t.Kind]++
		}
	}
	for k, set := range b.outstanding {
		snap.Outstanding[k] = len(set)
	}
	return snap
}
