package app

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/zjy-dev/tgen/internal/corpus"
	"github.com/zjy-dev/tgen/internal/state"
)

// NewInspectCommand creates the "inspect" subcommand.
func NewInspectCommand(load configLoader) *cobra.Command {
	var listTests bool

	cmd := &cobra.Command{
		Use:   "inspect [output_dir]",
		Short: "Print a summary of a saved suite.",
		Long: `Print the manifest and run state stored in an output directory.
Without an argument the configured output_dir is used.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := ""
			if len(args) == 1 {
				dir = args[0]
			} else {
				cfg, err := load()
				if err != nil {
					return err
				}
				dir = cfg.OutputDir
			}
			return inspect(cmd, dir, listTests)
		},
	}

	cmd.Flags().BoolVar(&listTests, "tests", false, "List every test of the suite")

	return cmd
}

func inspect(cmd *cobra.Command, dir string, listTests bool) error {
	manifest, err := corpus.NewFileManager(dir).LoadManifest()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Suite:           %s\n", manifest.SuiteID)
	fmt.Fprintf(out, "Saved at:        %s\n", manifest.SavedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(out, "Tests:           %d\n", len(manifest.Tests))
	fmt.Fprintf(out, "Statements:      %d\n", manifest.Statements)
	fmt.Fprintf(out, "Covered targets: %d\n", manifest.CoveredTargets)

	names := make([]string, 0, len(manifest.Fitness))
	for n := range manifest.Fitness {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		fmt.Fprintf(out, "Fitness %-8s %g\n", n+":", manifest.Fitness[n])
	}

	sm := state.NewFileManager(filepath.Join(dir, corpus.StateDir))
	if err := sm.Load(); err != nil {
		return fmt.Errorf("failed to load run state: %w", err)
	}
	if st := sm.GetState(); !st.StartTime.IsZero() {
		fmt.Fprintf(out, "Run:             %s archive, %d generations, %d evaluations, %d/%d targets (%.1f%%)\n",
			st.ArchiveKind, st.Generation, st.Evaluations, st.CoveredTargets, st.TotalTargets, st.Coverage())
	}

	if listTests {
		for i, e := range manifest.Tests {
			fmt.Fprintf(out, "  %3d  %s  %2d statements  %2d targets  %s\n", i+1, e.ID, e.Statements, len(e.Covered), e.File)
		}
	}
	return nil
}
