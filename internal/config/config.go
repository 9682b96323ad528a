// Package config resolves the run configuration from flags, environment and
// an optional YAML file.
//
// Precedence, highest first: command-line flags, MICROSIM_* environment
// variables, the config file, Defaults. Nested keys map to environment names
// with underscores, e.g. results.db -> MICROSIM_RESULTS_DB.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/roach88/microsim/internal/tracing"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "MICROSIM"

// Config is one simulation run.
type Config struct {
	Seed       uint64 `mapstructure:"seed"`
	StartYear  int    `mapstructure:"start_year"`
	EndYear    int    `mapstructure:"end_year"`
	Workers    int    `mapstructure:"workers"`    // 0 = GOMAXPROCS
	Params     string `mapstructure:"params"`     // CUE file; empty = built-in defaults
	Population string `mapstructure:"population"` // YAML fixture, required
	Verbose    bool   `mapstructure:"verbose"`

	Results ResultsConfig  `mapstructure:"results"`
	Metrics MetricsConfig  `mapstructure:"metrics"`
	Tracing tracing.Config `mapstructure:"tracing"`
}

// ResultsConfig selects the persistent sinks. Empty paths disable a sink.
type ResultsConfig struct {
	DB  string `mapstructure:"db"`
	CSV string `mapstructure:"csv"`
}

// MetricsConfig controls the Prometheus textfile dump written after the run.
type MetricsConfig struct {
	File string `mapstructure:"file"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() Config {
	return Config{
		Seed:      1,
		StartYear: 2011,
		EndYear:   2011,
		Tracing: tracing.Config{
			Exporter:   tracing.ExporterNone,
			SampleRate: 1.0,
		},
	}
}

// New creates a viper instance preloaded with defaults and environment binding.
func New() *viper.Viper {
	v := viper.New()
	d := Defaults()
	v.SetDefault("seed", d.Seed)
	v.SetDefault("start_year", d.StartYear)
	v.SetDefault("end_year", d.EndYear)
	v.SetDefault("workers", d.Workers)
	v.SetDefault("params", d.Params)
	v.SetDefault("population", d.Population)
	v.SetDefault("verbose", d.Verbose)
	v.SetDefault("results.db", d.Results.DB)
	v.SetDefault("results.csv", d.Results.CSV)
	v.SetDefault("metrics.file", d.Metrics.File)
	v.SetDefault("tracing.exporter", d.Tracing.Exporter)
	v.SetDefault("tracing.file_path", d.Tracing.FilePath)
	v.SetDefault("tracing.sample_rate", d.Tracing.SampleRate)
	v.SetDefault("tracing.service_name", d.Tracing.ServiceName)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// BindFlags binds each config key to the flag of the same name with dots
// replaced by dashes, e.g. results.db -> --results-db. Missing flags are skipped.
func BindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for _, key := range v.AllKeys() {
		f := flags.Lookup(strings.ReplaceAll(strings.ReplaceAll(key, ".", "-"), "_", "-"))
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag %s: %w", f.Name, err)
		}
	}
	return nil
}

// Load reads the optional config file and resolves the configuration.
// A named file that does not exist is an error; an empty name skips the file.
func Load(v *viper.Viper, file string) (Config, error) {
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", file, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the fields that cannot be checked by type alone.
func (c Config) Validate() error {
	var errs []error
	if c.Population == "" {
		errs = append(errs, errors.New("population is required"))
	}
	if c.EndYear < c.StartYear {
		errs = append(errs, fmt.Errorf("end_year %d is before start_year %d", c.EndYear, c.StartYear))
	}
	if c.Workers < 0 {
		errs = append(errs, fmt.Errorf("workers must not be negative, got %d", c.Workers))
	}
	if err := ValidateTracing(c.Tracing); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ValidateTracing checks the tracing section.
func ValidateTracing(t tracing.Config) error {
	if t.SampleRate < 0.0 || t.SampleRate > 1.0 {
		return fmt.Errorf("tracing.sample_rate must be between 0.0 and 1.0, got %v", t.SampleRate)
	}
	switch t.Exporter {
	case "", tracing.ExporterNone, tracing.ExporterStdout:
	case tracing.ExporterFile:
		if t.FilePath == "" {
			return fmt.Errorf("tracing.file_path is required when exporter is %q", tracing.ExporterFile)
		}
	default:
		return fmt.Errorf("tracing.exporter must be \"none\", \"stdout\" or \"file\", got %q", t.Exporter)
	}
	return nil
}
