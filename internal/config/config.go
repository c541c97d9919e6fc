package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/viper"

	"github.com/zjy-dev/tgen/internal/archive"
)

// EnvPrefix is the prefix of environment overrides, e.g.
// TGEN_CONFIG_ARCHIVE_KIND=coverage.
const EnvPrefix = "TGEN"

// Config is the top-level configuration, read from the "config" object of
// configs/config.yaml.
type Config struct {
	Archive     ArchiveConfig `mapstructure:"archive"`
	Search      SearchConfig  `mapstructure:"search"`
	Log         LogConfig     `mapstructure:"log"`
	OutputDir   string        `mapstructure:"output_dir"`
	MetricsAddr string        `mapstructure:"metrics_addr"` // empty disables the metrics endpoint
}

// ArchiveConfig selects the archive strategy and its tie-break policy.
type ArchiveConfig struct {
	Kind           string   `mapstructure:"kind"`       // "mio" or "coverage"
	Comparator     string   `mapstructure:"comparator"` // "penalty", "dominance", "minmax", "sum"
	PopulationSize int      `mapstructure:"population_size"`
	Epsilon        float64  `mapstructure:"epsilon"`
	Indicators     []string `mapstructure:"indicators"`
}

// SearchConfig holds the budget and operators of the search loop.
type SearchConfig struct {
	Generations int   `mapstructure:"generations"`
	Population  int   `mapstructure:"population"`
	Workers     int   `mapstructure:"workers"`
	Seed        int64 `mapstructure:"seed"` // 0 means time based
	// ReseedRate is the probability that an offspring starts from an
	// archived solution.
	ReseedRate float64 `mapstructure:"reseed_rate"`
	// ExploitationStart is the fraction of the budget after which archive
	// populations start shrinking.
	ExploitationStart float64 `mapstructure:"exploitation_start"`
	MaxStatements     int     `mapstructure:"max_statements"`
}

// LogConfig configures the logger.
type LogConfig struct {
	Level string `mapstructure:"level"`
	Dir   string `mapstructure:"dir"` // empty logs to the console only
}

var defaults = map[string]interface{}{
	"config.archive.kind":              archive.KindMIO,
	"config.archive.comparator":        "penalty",
	"config.archive.population_size":   archive.DefaultPopulationSize,
	"config.archive.epsilon":           0.0,
	"config.archive.indicators":        archive.DefaultIndicatorNames,
	"config.search.generations":        100,
	"config.search.population":         20,
	"config.search.workers":            4,
	"config.search.seed":               0,
	"config.search.reseed_rate":        0.5,
	"config.search.exploitation_start": 0.5,
	"config.search.max_statements":     8,
	"config.log.level":                 "info",
	"config.log.dir":                   "",
	"config.output_dir":                "tgen_out",
	"config.metrics_addr":              "",
}

func newViper(configName string) *viper.Viper {
	v := viper.New()
	v.SetConfigName(configName)
	v.SetConfigType("yaml")
	v.AddConfigPath("configs")
	v.AddConfigPath("../configs")
	v.AddConfigPath("../../configs")
	return v
}

// read reads the configuration file of v into result. With optional set, a
// file that cannot be found is not an error.
func read(v *viper.Viper, result interface{}, optional bool) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !optional || !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := v.Unmarshal(result); err != nil {
		return fmt.Errorf("failed to unmarshal config data: %w", err)
	}

	return nil
}

// LoadConfig searches configs/config.yaml. A missing file is not an error:
// defaults and environment overrides still apply.
func LoadConfig() (*Config, error) {
	return LoadConfigFile("")
}

// LoadConfigFile loads the configuration from path, or searches the configs
// directories when path is empty. Values resolve in this order: environment,
// file, defaults.
func LoadConfigFile(path string) (*Config, error) {
	v := newViper("config")
	if path != "" {
		v.SetConfigFile(path)
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var file struct {
		Config Config `mapstructure:"config"`
	}
	if err := read(v, &file, path == ""); err != nil {
		return nil, err
	}

	cfg := &file.Config
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

var logLevels = []string{"debug", "info", "warn", "warning", "error", "fatal"}

// Validate checks value ranges and names.
func (c *Config) Validate() error {
	var errs []error

	switch c.Archive.Kind {
	case archive.KindMIO, archive.KindCoverage:
	default:
		errs = append(errs, fmt.Errorf("archive.kind: %w: %q", archive.ErrUnknownArchiveKind, c.Archive.Kind))
	}
	if !slices.Contains(archive.ComparatorNames(), c.Archive.Comparator) {
		errs = append(errs, fmt.Errorf("archive.comparator: %w: %q", archive.ErrUnknownComparator, c.Archive.Comparator))
	}
	if c.Archive.PopulationSize <= 0 {
		errs = append(errs, fmt.Errorf("archive.population_size must be positive, got %d", c.Archive.PopulationSize))
	}
	if c.Archive.Epsilon < 0 {
		errs = append(errs, fmt.Errorf("archive.epsilon must be non-negative, got %v", c.Archive.Epsilon))
	}
	if _, err := archive.IndicatorsByName(c.Archive.Indicators); err != nil {
		errs = append(errs, fmt.Errorf("archive.indicators: %w", err))
	}

	if c.Search.Generations <= 0 {
		errs = append(errs, fmt.Errorf("search.generations must be positive, got %d", c.Search.Generations))
	}
	if c.Search.Population <= 0 {
		errs = append(errs, fmt.Errorf("search.population must be positive, got %d", c.Search.Population))
	}
	if c.Search.Workers <= 0 {
		errs = append(errs, fmt.Errorf("search.workers must be positive, got %d", c.Search.Workers))
	}
	if c.Search.MaxStatements <= 0 {
		errs = append(errs, fmt.Errorf("search.max_statements must be positive, got %d", c.Search.MaxStatements))
	}
	if c.Search.ReseedRate < 0 || c.Search.ReseedRate > 1 {
		errs = append(errs, fmt.Errorf("search.reseed_rate must be in [0, 1], got %v", c.Search.ReseedRate))
	}
	if c.Search.ExploitationStart < 0 || c.Search.ExploitationStart > 1 {
		errs = append(errs, fmt.Errorf("search.exploitation_start must be in [0, 1], got %v", c.Search.ExploitationStart))
	}

	if !slices.Contains(logLevels, strings.ToLower(c.Log.Level)) {
		errs = append(errs, fmt.Errorf("log.level: unknown level %q", c.Log.Level))
	}
	if c.OutputDir == "" {
		errs = append(errs, errors.New("output_dir must not be empty"))
	}

	return errors.Join(errs...)
}

// ComparatorOptions converts the archive section into comparator settings.
func (c ArchiveConfig) ComparatorOptions() archive.ComparatorOptions {
	return archive.ComparatorOptions{
		Indicators: c.Indicators,
		Epsilon:    c.Epsilon,
	}
}
