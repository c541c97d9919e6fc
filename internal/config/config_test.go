package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zjy-dev/tgen/internal/archive"
)

// setupTestConfigs creates a temporary directory structure for testing.
// It returns the temporary "configs" directory and a cleanup function.
func setupTestConfigs(t *testing.T) (string, func()) {
	configDir := t.TempDir()

	// Viper requires a "configs" subdirectory to be present.
	actualConfigPath := filepath.Join(configDir, "configs")
	err := os.Mkdir(actualConfigPath, 0755)
	require.NoError(t, err)

	// Change working directory to the parent of "configs"
	oldWd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(configDir))

	cleanup := func() {
		_ = os.Chdir(oldWd)
	}

	return actualConfigPath, cleanup
}

func writeConfig(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Run("should read the config object", func(t *testing.T) {
		actualConfigPath, cleanup := setupTestConfigs(t)
		defer cleanup()

		writeConfig(t, actualConfigPath, "config.yaml", `
config:
  archive:
    kind: coverage
    comparator: dominance
    epsilon: 0.5
    indicators: [test_length, method_calls]
  search:
    generations: 7
    workers: 2
    seed: 42
  log:
    level: debug
  output_dir: out
`)

		cfg, err := LoadConfig()
		require.NoError(t, err)
		assert.Equal(t, archive.KindCoverage, cfg.Archive.Kind)
		assert.Equal(t, "dominance", cfg.Archive.Comparator)
		assert.Equal(t, 0.5, cfg.Archive.Epsilon)
		assert.Equal(t, []string{"test_length", "method_calls"}, cfg.Archive.Indicators)
		assert.Equal(t, 7, cfg.Search.Generations)
		assert.Equal(t, 2, cfg.Search.Workers)
		assert.Equal(t, int64(42), cfg.Search.Seed)
		assert.Equal(t, "debug", cfg.Log.Level)
		assert.Equal(t, "out", cfg.OutputDir)

		// unspecified values fall back to defaults
		assert.Equal(t, archive.DefaultPopulationSize, cfg.Archive.PopulationSize)
		assert.Equal(t, 20, cfg.Search.Population)
		assert.Equal(t, 0.5, cfg.Search.ReseedRate)
		assert.Equal(t, 8, cfg.Search.MaxStatements)
		assert.Empty(t, cfg.MetricsAddr)
	})

	t.Run("should use defaults without a config file", func(t *testing.T) {
		_, cleanup := setupTestConfigs(t)
		defer cleanup()

		cfg, err := LoadConfig()
		require.NoError(t, err)
		assert.Equal(t, archive.KindMIO, cfg.Archive.Kind)
		assert.Equal(t, "penalty", cfg.Archive.Comparator)
		assert.Equal(t, archive.DefaultIndicatorNames, cfg.Archive.Indicators)
		assert.Equal(t, 100, cfg.Search.Generations)
		assert.Equal(t, 4, cfg.Search.Workers)
		assert.Equal(t, "info", cfg.Log.Level)
		assert.Equal(t, "tgen_out", cfg.OutputDir)
	})

	t.Run("should apply environment overrides", func(t *testing.T) {
		actualConfigPath, cleanup := setupTestConfigs(t)
		defer cleanup()

		writeConfig(t, actualConfigPath, "config.yaml", `
config:
  archive:
    kind: mio
  search:
    generations: 7
`)
		t.Setenv("TGEN_CONFIG_ARCHIVE_KIND", "coverage")
		t.Setenv("TGEN_CONFIG_SEARCH_GENERATIONS", "11")
		t.Setenv("TGEN_CONFIG_METRICS_ADDR", ":9464")

		cfg, err := LoadConfig()
		require.NoError(t, err)
		assert.Equal(t, archive.KindCoverage, cfg.Archive.Kind)
		assert.Equal(t, 11, cfg.Search.Generations)
		assert.Equal(t, ":9464", cfg.MetricsAddr)
	})

	t.Run("should reject invalid values", func(t *testing.T) {
		actualConfigPath, cleanup := setupTestConfigs(t)
		defer cleanup()

		writeConfig(t, actualConfigPath, "config.yaml", `
config:
  archive:
    kind: wholesuite
    comparator: lexicographic
    population_size: 0
  search:
    reseed_rate: 1.5
`)

		_, err := LoadConfig()
		require.Error(t, err)
		assert.ErrorIs(t, err, archive.ErrUnknownArchiveKind)
		assert.ErrorIs(t, err, archive.ErrUnknownComparator)
		assert.Contains(t, err.Error(), "archive.population_size")
		assert.Contains(t, err.Error(), "search.reseed_rate")
	})
}

func TestLoadConfigFile(t *testing.T) {
	t.Run("should load an explicit path", func(t *testing.T) {
		dir := t.TempDir()
		path := writeConfig(t, dir, "custom.yaml", `
config:
  archive:
    population_size: 3
`)
		cfg, err := LoadConfigFile(path)
		require.NoError(t, err)
		assert.Equal(t, 3, cfg.Archive.PopulationSize)
	})

	t.Run("should fail when an explicit path is missing", func(t *testing.T) {
		_, err := LoadConfigFile(filepath.Join(t.TempDir(), "missing.yaml"))
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to read config file")
	})

	t.Run("should fail on malformed YAML", func(t *testing.T) {
		path := writeConfig(t, t.TempDir(), "malformed.yaml", "config: test\n  archive: oops") // Bad indentation
		_, err := LoadConfigFile(path)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to read config file")
	})

	t.Run("should fail on a malformed searched file", func(t *testing.T) {
		actualConfigPath, cleanup := setupTestConfigs(t)
		defer cleanup()

		writeConfig(t, actualConfigPath, "config.yaml", "config: test\n  archive: oops")
		_, err := LoadConfig()
		assert.ErrorContains(t, err, "failed to read config file")
	})

	t.Run("should fail when values do not decode", func(t *testing.T) {
		path := writeConfig(t, t.TempDir(), "typed.yaml", `
config:
  search:
    generations: many
`)
		_, err := LoadConfigFile(path)
		assert.ErrorContains(t, err, "failed to unmarshal config data")
	})
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Archive:   ArchiveConfig{Kind: archive.KindMIO, Comparator: "penalty", PopulationSize: 10},
			Search:    SearchConfig{Generations: 1, Population: 1, Workers: 1, MaxStatements: 1, ReseedRate: 0.5},
			Log:       LogConfig{Level: "INFO"},
			OutputDir: "out",
		}
	}

	t.Run("should accept a valid config", func(t *testing.T) {
		cfg := valid()
		assert.NoError(t, cfg.Validate())
	})

	t.Run("should reject unknown indicators", func(t *testing.T) {
		cfg := valid()
		cfg.Archive.Indicators = []string{"heap_bytes"}
		assert.ErrorIs(t, cfg.Validate(), archive.ErrUnknownIndicator)
	})

	t.Run("should reject an unknown log level", func(t *testing.T) {
		cfg := valid()
		cfg.Log.Level = "verbose"
		assert.ErrorContains(t, cfg.Validate(), "log.level")
	})

	t.Run("should convert comparator options", func(t *testing.T) {
		cfg := valid()
		cfg.Archive.Epsilon = 0.25
		cfg.Archive.Indicators = []string{"test_length"}
		opts := cfg.Archive.ComparatorOptions()
		assert.Equal(t, 0.25, opts.Epsilon)
		assert.Equal(t, []string{"test_length"}, opts.Indicators)
	})
}
