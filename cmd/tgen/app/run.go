package app

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/zjy-dev/tgen/internal/archive"
	"github.com/zjy-dev/tgen/internal/config"
	"github.com/zjy-dev/tgen/internal/corpus"
	"github.com/zjy-dev/tgen/internal/logger"
	"github.com/zjy-dev/tgen/internal/report"
	"github.com/zjy-dev/tgen/internal/sample"
	"github.com/zjy-dev/tgen/internal/search"
	"github.com/zjy-dev/tgen/internal/state"
)

// ReportsDir is the subdirectory of the output directory holding reports.
const ReportsDir = "reports"

type configLoader func() (*config.Config, error)

// NewRunCommand creates the "run" subcommand.
func NewRunCommand(load configLoader) *cobra.Command {
	var (
		kind        string
		comparator  string
		generations int
		population  int
		workers     int
		seed        int64
		outputDir   string
		metricsAddr string
		logLevel    string
		showUI      bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Generate a test suite for the built-in sample classes.",
		Long: `Run the search loop against the built-in sample classes.

Output directory structure:
  {output_dir}/
    ├── manifest.yaml  # Saved suite
    ├── tests/         # One JSON file per test
    ├── state/         # Run state
    └── reports/       # Markdown reports

Configuration:
  Default values are loaded from config.yaml under the 'config' section.
  Command line flags override the config file values.

Examples:
  # Run with the configured defaults
  tgen run

  # Compare strategies on the same seed
  tgen run --kind coverage --seed 42
  tgen run --kind mio --comparator dominance --seed 42

  # Expose Prometheus metrics while running
  tgen run --metrics-addr :9090`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}

			if cmd.Flags().Changed("kind") {
				cfg.Archive.Kind = kind
			}
			if cmd.Flags().Changed("comparator") {
				cfg.Archive.Comparator = comparator
			}
			if cmd.Flags().Changed("generations") {
				cfg.Search.Generations = generations
			}
			if cmd.Flags().Changed("population") {
				cfg.Search.Population = population
			}
			if cmd.Flags().Changed("workers") {
				cfg.Search.Workers = workers
			}
			if cmd.Flags().Changed("seed") {
				cfg.Search.Seed = seed
			}
			if cmd.Flags().Changed("output-dir") {
				cfg.OutputDir = outputDir
			}
			if cmd.Flags().Changed("metrics-addr") {
				cfg.MetricsAddr = metricsAddr
			}
			if cmd.Flags().Changed("log-level") {
				cfg.Log.Level = logLevel
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid options: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runSearch(ctx, cfg, showUI && state.IsTerminal())
		},
	}

	// Flags (placeholder defaults, actual defaults come from config)
	cmd.Flags().StringVar(&kind, "kind", archive.KindMIO, "Archive strategy (mio, coverage)")
	cmd.Flags().StringVar(&comparator, "comparator", "penalty", "Tie-break policy (penalty, dominance, minmax, sum)")
	cmd.Flags().IntVar(&generations, "generations", 100, "Generation budget")
	cmd.Flags().IntVar(&population, "population", 20, "Tests bred per generation")
	cmd.Flags().IntVar(&workers, "workers", 4, "Parallel evaluations")
	cmd.Flags().Int64Var(&seed, "seed", 0, "Random seed (0 = time based)")
	cmd.Flags().StringVar(&outputDir, "output-dir", "tgen_out", "Output directory")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	cmd.Flags().BoolVar(&showUI, "ui", false, "Show a live progress panel on the terminal")

	return cmd
}

func runSearch(ctx context.Context, cfg *config.Config, showUI bool) error {
	if cfg.Log.Dir != "" {
		if err := logger.InitWithFile(cfg.Log.Level, cfg.Log.Dir); err != nil {
			return err
		}
		defer logger.Close()
	} else {
		logger.SetLevel(cfg.Log.Level)
	}

	seed := cfg.Search.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	logger.Info("[Run] Archive: %s, comparator: %s, seed: %d", cfg.Archive.Kind, cfg.Archive.Comparator, seed)
	logger.Info("[Run] Output directory: %s", cfg.OutputDir)

	if cfg.MetricsAddr != "" {
		srv := startMetricsServer(cfg.MetricsAddr)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	cmp, err := archive.NewComparator(cfg.Archive.Comparator, cfg.Archive.ComparatorOptions())
	if err != nil {
		return fmt.Errorf("failed to create comparator: %w", err)
	}

	subject := sample.Default()
	registry := sample.NewRegistry(subject)
	arch, err := archive.New(cfg.Archive.Kind,
		archive.WithComparator(cmp),
		archive.WithRegistry(registry),
		archive.WithSeed(seed),
		archive.WithPopulationSize(cfg.Archive.PopulationSize),
	)
	if err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}

	corpusManager := corpus.NewFileManager(cfg.OutputDir)
	if err := corpusManager.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize output directory: %w", err)
	}

	var ui *state.TerminalUI
	if showUI {
		ui = state.NewTerminalUI()
	}

	engine, err := search.NewEngine(search.Config{
		Archive:           arch,
		Subject:           subject,
		Generator:         sample.NewGenerator(registry, rand.New(rand.NewSource(seed+1)), cfg.Search.MaxStatements),
		State:             corpusManager.GetStateManager(),
		UI:                ui,
		Generations:       cfg.Search.Generations,
		Population:        cfg.Search.Population,
		Workers:           cfg.Search.Workers,
		Seed:              seed,
		ReseedRate:        cfg.Search.ReseedRate,
		ExploitationStart: cfg.Search.ExploitationStart,
		PopulationSize:    cfg.Archive.PopulationSize,
	})
	if err != nil {
		return fmt.Errorf("failed to create search engine: %w", err)
	}

	suite, runErr := engine.Run(ctx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return fmt.Errorf("search failed: %w", runErr)
	}

	manifest, err := corpusManager.SaveSuite(suite)
	if err != nil {
		return fmt.Errorf("failed to save suite: %w", err)
	}

	reporter := report.NewMarkdownReporter(filepath.Join(cfg.OutputDir, ReportsDir))
	reportPath, err := reporter.Save(&report.Report{
		Archive: arch.Snapshot(),
		Run:     corpusManager.GetStateManager().GetState(),
		Suite:   manifest,
	})
	if err != nil {
		return fmt.Errorf("failed to save report: %w", err)
	}

	logger.Info("[Run] Saved %d tests to %s", len(manifest.Tests), corpusManager.GetTestsDir())
	logger.Info("[Run] Report: %s", reportPath)
	if path := logger.GetLogFilePath(); path != "" {
		logger.Info("[Run] Log file: %s", path)
	}
	return nil
}

func startMetricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("[Metrics] Server stopped: %v", err)
		}
	}()
	logger.Info("[Metrics] Serving /metrics on %s", addr)
	return srv
}
