package report

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/zjy-dev/tgen/internal/target"
)

// MarkdownReporter implements the Reporter interface by saving reports as markdown files.
type MarkdownReporter struct {
	outputDir string
	now       func() time.Time
}

// NewMarkdownReporter creates a new MarkdownReporter.
func NewMarkdownReporter(outputDir string) *MarkdownReporter {
	return &MarkdownReporter{
		outputDir: outputDir,
		now:       time.Now,
	}
}

// Save renders r into a timestamped markdown file.
func (r *MarkdownReporter) Save(rep *Report) (string, error) {
	if err := os.MkdirAll(r.outputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}

	now := r.now()
	reportPath := filepath.Join(r.outputDir, fmt.Sprintf("report_%s.md", now.Format("20060102-150405")))
	if err := os.WriteFile(reportPath, []byte(Render(rep, now)), 0644); err != nil {
		return "", fmt.Errorf("failed to write report %s: %w", reportPath, err)
	}
	return reportPath, nil
}

func percent(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) * 100 / float64(total)
}

// Render formats rep as markdown.
func Render(rep *Report, at time.Time) string {
	var sb strings.Builder
	snap := rep.Archive
	run := rep.Run

	sb.WriteString("# Test Generation Report\n\n")
	fmt.Fprintf(&sb, "**Archive:** %s  \n", snap.Kind)
	fmt.Fprintf(&sb, "**Generated:** %s\n\n", at.Format(time.RFC3339))

	sb.WriteString("## Summary\n\n")
	sb.WriteString("| Metric | Value |\n|---|---|\n")
	fmt.Fprintf(&sb, "| Targets | %d |\n", snap.Targets)
	fmt.Fprintf(&sb, "| Covered | %d (%.1f%%) |\n", snap.Covered, percent(snap.Covered, snap.Targets))
	fmt.Fprintf(&sb, "| Distinct solutions | %d |\n", snap.Solutions)
	fmt.Fprintf(&sb, "| Generations | %d |\n", run.Generation)
	fmt.Fprintf(&sb, "| Evaluations | %d |\n", run.Evaluations)
	fmt.Fprintf(&sb, "| Archive updates | %d |\n", run.ArchiveUpdates)
	fmt.Fprintf(&sb, "| Duration | %s |\n\n", run.Elapsed().Round(time.Millisecond))

	sb.WriteString("## Coverage by Kind\n\n")
	sb.WriteString("| Kind | Covered | Total | % |\n|---|---|---|---|\n")
	for _, k := range target.Kinds() {
		total := snap.TargetsByKind[k]
		if total == 0 {
			continue
		}
		covered := snap.CoveredByKind[k]
		fmt.Fprintf(&sb, "| %s | %d | %d | %.1f |\n", k, covered, total, percent(covered, total))
	}
	sb.WriteString("\n")

	sb.WriteString("## Outstanding Methods\n\n")
	if len(snap.Outstanding) == 0 {
		sb.WriteString("All methods fully covered.\n\n")
	} else {
		keys := make([]string, 0, len(snap.Outstanding))
		for k := range snap.Outstanding {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&sb, "- `%s`: %d open targets\n", k, snap.Outstanding[k])
		}
		sb.WriteString("\n")
	}

	if len(snap.Populations) > 0 {
		sb.WriteString("## Populations\n\n")
		sb.WriteString("| Target | Covered | Size | Capacity | Counter | Best h |\n|---|---|---|---|---|---|\n")
		for _, p := range snap.Populations {
			fmt.Fprintf(&sb, "| `%s` | %t | %d | %d | %d | %.3f |\n",
				p.Target, p.Covered, p.Size, p.Capacity, p.Counter, p.BestH)
		}
		sb.WriteString("\n")
	}

	if m := rep.Suite; m != nil {
		sb.WriteString("## Suite\n\n")
		fmt.Fprintf(&sb, "**Suite ID:** %s  \n", m.SuiteID)
		fmt.Fprintf(&sb, "**Tests:** %d, **Statements:** %d, **Covered targets:** %d\n\n", len(m.Tests), m.Statements, m.CoveredTargets)

		if len(m.Fitness) > 0 {
			names := make([]string, 0, len(m.Fitness))
			for n := range m.Fitness {
				names = append(names, n)
			}
			sort.Strings(names)
			for _, n := range names {
				fmt.Fprintf(&sb, "- %s fitness: %g\n", n, m.Fitness[n])
			}
			sb.WriteString("\n")
		}

		sb.WriteString("| # | ID | Statements | Covered | Flags |\n|---|---|---|---|---|\n")
		for i, e := range m.Tests {
			var flags []string
			if e.Exception {
				flags = append(flags, "exception")
			}
			if e.Timeout {
				flags = append(flags, "timeout")
			}
			fmt.Fprintf(&sb, "| %d | %s | %d | %d | %s |\n", i+1, e.ID, e.Statements, len(e.Covered), strings.Join(flags, ", "))
		}
		sb.WriteString("\n")
	}

	return sb.String()
}
