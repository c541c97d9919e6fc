package archive

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Update results recorded by updatesTotal.
const (
	resultNewCoverage = "new_coverage"
	resultImproved    = "improved"
	resultRejected    = "rejected"
	resultIgnored     = "ignored"
)

var (
	// updatesTotal counts UpdateArchive calls by archive kind and result.
	// Labels: "new_coverage", "improved", "rejected", "ignored"
	updatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tgen_archive_updates_total",
		Help: "Archive update calls by result",
	}, []string{"archive", "result"})

	coveredTargets = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tgen_archive_covered_targets",
		Help: "Targets currently covered by the archive",
	}, []string{"archive"})

	samplesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tgen_archive_samples_total",
		Help: "Solutions sampled from the archive to re-seed the search",
	}, []string{"archive"})

	mergeAddedTests = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tgen_archive_merge_added_tests",
		Help:    "Archived tests appended to a suite by one merge",
		Buckets: []float64{0, 1, 2, 5, 10, 20, 50, 100},
	}, []string{"archive"})
)
